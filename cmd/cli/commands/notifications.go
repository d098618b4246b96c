package commands

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/access"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/notifications"
)

func printNotification(out io.Writer, it model.NotificationItem) {
	marker := " "
	if !it.Read {
		marker = okColor.Sprint("*")
	}
	title := it.Title
	if it.Priority {
		title = errorColor.Sprint(title)
	}
	when := ""
	if !it.CreatedAt.IsZero() {
		when = it.CreatedAt.Local().Format("02/01 15:04")
	}
	fmt.Fprintf(out, "%s %-11s %s\n", marker, when, title)
	if it.Message != "" {
		fmt.Fprintf(out, "              %s\n", it.Message)
	}
	if it.ID != "" {
		dimColor.Fprintf(out, "              id: %s\n", it.ID)
	}
}

func printNotifications(out io.Writer, state notifications.State, unreadOnly bool) {
	items := state.Items
	if unreadOnly {
		items = state.UnreadItems()
	}
	fmt.Fprintf(out, "%d unread\n\n", state.Unread)
	if len(items) == 0 {
		fmt.Fprintln(out, "No notifications.")
		return
	}
	for _, it := range items {
		printNotification(out, it)
	}
}

// NotificationsCmd creates the notifications command
func NotificationsCmd(app *AppContext) *cobra.Command {
	var unreadOnly bool

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List your notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Require(access.ViewNotifications); err != nil {
				return err
			}

			state, err := app.Center.Fetch(app.Ctx)
			if err != nil {
				return err
			}
			printNotifications(cmd.OutOrStdout(), state, unreadOnly)
			return nil
		},
	}

	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "Only unread notifications")
	return cmd
}

// MarkReadCmd creates the markRead command
func MarkReadCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "markRead <notification_id>",
		Short: "Mark one notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Require(access.ViewNotifications); err != nil {
				return err
			}
			if _, err := app.Center.Fetch(app.Ctx); err != nil {
				return err
			}
			if err := app.Center.MarkRead(app.Ctx, args[0]); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Marked as read (%d unread)", app.Center.State().Unread)
			return nil
		},
	}
}

// MarkAllReadCmd creates the markAllRead command
func MarkAllReadCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "markAllRead",
		Short: "Mark every notification as read",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Require(access.ViewNotifications); err != nil {
				return err
			}
			if _, err := app.Center.Fetch(app.Ctx); err != nil {
				return err
			}
			err := app.Center.MarkAllRead(app.Ctx)
			out := cmd.OutOrStdout()
			if err != nil {
				// Some items may still have been marked
				fmt.Fprintf(out, "%d unread\n", app.Center.State().Unread)
				return err
			}
			success(out, "All notifications marked as read")
			return nil
		},
	}
}

// WatchNotificationsCmd creates the watchNotifications command
func WatchNotificationsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watchNotifications",
		Short: "Poll for notifications and print new ones until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Require(access.ViewNotifications); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			ctx, stop := signal.NotifyContext(app.Ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			seen := make(map[string]bool)
			poller := notifications.NewPoller(app.Center, app.Cfg.Notifications.PollInterval, app.Logger)
			poller.OnFetch = func(state notifications.State, err error) {
				if err != nil {
					app.Logger.Warn("Notification poll failed", zap.Error(err))
					return
				}
				for _, it := range state.UnreadItems() {
					key := it.ID
					if key == "" {
						key = it.Title + it.CreatedAt.String()
					}
					if seen[key] {
						continue
					}
					seen[key] = true
					printNotification(out, it)
				}
			}
			detach := poller.FollowSession(ctx, app.Session)
			defer detach()

			fmt.Fprintf(out, "Watching notifications every %s, press Ctrl+C to stop\n", app.Cfg.Notifications.PollInterval)
			<-ctx.Done()
			return nil
		},
	}
}
