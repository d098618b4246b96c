package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/apperr"
	"github.com/jakechorley/volunteer-portal/pkg/core/access"
	"github.com/jakechorley/volunteer-portal/pkg/core/ics"
	"github.com/jakechorley/volunteer-portal/pkg/core/services"
)

// EnrollCmd creates the enroll command
func EnrollCmd(app *AppContext) *cobra.Command {
	var reminderDir string

	cmd := &cobra.Command{
		Use:   "enroll <activity_id>",
		Short: "Enroll in an activity if it has free places",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Require(access.Enroll); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			result, err := app.Workflow.Enroll(app.Ctx, args[0])
			if err != nil {
				if result != nil && result.Reminder != nil {
					printReminder(out, result.Reminder, reminderDir, app.Logger)
				}
				if apperr.HasCode(err, apperr.CodeNoCapacity) {
					fmt.Fprintln(out, "Other activities with free places: volunteer listActivities --available")
				}
				return err
			}

			success(out, "Enrolled")
			fmt.Fprintf(out, "Places left: %d of %d\n", result.Availability.Available, result.Availability.Capacity)
			if len(result.Delivered) > 0 {
				fmt.Fprintf(out, "Calendar entry sent to: %s\n", strings.Join(result.Delivered, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&reminderDir, "reminder-dir", "", "Write the reminder for full activities as an .ics file here")
	return cmd
}

func printReminder(out io.Writer, reminder *services.Reminder, dir string, logger *zap.Logger) {
	fmt.Fprintf(out, "\nA reminder to check again (%s) repeats %d times until the activity starts.\n",
		reminder.Event.RRule, len(reminder.Occurrences))
	if dir == "" {
		return
	}
	path := filepath.Join(dir, ics.FileName(reminder.Event.Title))
	if err := os.WriteFile(path, ics.Render(reminder.Event), 0644); err != nil {
		logger.Warn("Failed to write reminder", zap.String("path", path), zap.Error(err))
		return
	}
	fmt.Fprintf(out, "Reminder saved to %s\n", path)
}

// UnenrollCmd creates the unenroll command
func UnenrollCmd(app *AppContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "unenroll <activity_id>",
		Short: "Cancel your enrollment in an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Require(access.Unenroll); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			result, err := app.Workflow.Unenroll(app.Ctx, args[0], reason, app.Confirmer(out))
			if err != nil {
				return err
			}

			success(out, "Unenrolled")
			fmt.Fprintf(out, "Places left: %d of %d\n", result.Availability.Available, result.Availability.Capacity)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Optional reason")
	return cmd
}
