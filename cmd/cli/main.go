package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/cmd/cli/commands"
	"github.com/jakechorley/volunteer-portal/internal/config"
	"github.com/jakechorley/volunteer-portal/pkg/clients/apiclient"
	"github.com/jakechorley/volunteer-portal/pkg/clients/calendarclient"
	"github.com/jakechorley/volunteer-portal/pkg/clients/gmailclient"
	"github.com/jakechorley/volunteer-portal/pkg/clients/sheetsclient"
	"github.com/jakechorley/volunteer-portal/pkg/core/access"
	"github.com/jakechorley/volunteer-portal/pkg/core/ics"
	"github.com/jakechorley/volunteer-portal/pkg/core/notifications"
	"github.com/jakechorley/volunteer-portal/pkg/core/services"
	"github.com/jakechorley/volunteer-portal/pkg/core/session"
	"github.com/jakechorley/volunteer-portal/pkg/core/validation"
	"github.com/jakechorley/volunteer-portal/pkg/db"
	"github.com/jakechorley/volunteer-portal/pkg/postgres"
	"github.com/jakechorley/volunteer-portal/pkg/sqlite"
	"github.com/jakechorley/volunteer-portal/pkg/utils"
	"github.com/jakechorley/volunteer-portal/pkg/utils/logging"
)

var (
	env       string
	verbose   bool
	assumeYes bool
	app       = &commands.AppContext{}
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "volunteer",
		Short: "Volunteer Portal CLI - find activities and manage your volunteering",
		Long: `A CLI for the volunteer portal: browse activities, enroll and unenroll,
review your history and notifications, and coordinate rosters and attendance.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeApp()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (selects volunteer_config.<env>.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log info messages to the console")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Answer yes to every confirmation")

	rootCmd.AddCommand(
		commands.RegisterCmd(app),
		commands.VerifyAccountCmd(app),
		commands.LoginCmd(app),
		commands.LogoutCmd(app),
		commands.WhoamiCmd(app),
		commands.SetActiveRoleCmd(app),
		commands.RequestRoleCmd(app),
		commands.UpdateProfileCmd(app),
		commands.DownloadAvatarCmd(app),
		commands.ListActivitiesCmd(app),
		commands.ShowActivityCmd(app),
		commands.CreateActivityCmd(app),
		commands.SuggestLocationsCmd(app),
		commands.EnrollCmd(app),
		commands.UnenrollCmd(app),
		commands.AssignVolunteerCmd(app),
		commands.AdminUnenrollCmd(app),
		commands.ViewRosterCmd(app),
		commands.MarkAttendanceCmd(app),
		commands.SearchVolunteersCmd(app),
		commands.ViewHistoryCmd(app),
		commands.NotificationsCmd(app),
		commands.MarkReadCmd(app),
		commands.MarkAllReadCmd(app),
		commands.WatchNotificationsCmd(app),
		commands.InteractiveCmd(app),
	)

	if err := rootCmd.Execute(); err != nil {
		code := commands.ReportError(os.Stderr, err)
		closeApp()
		os.Exit(code)
	}
}

// initApp sets up logger, config, storage, session and workflows
func initApp() error {
	var err error
	app.Ctx = context.Background()
	app.AssumeYes = assumeYes
	app.Input = bufio.NewReader(os.Stdin)

	// Load configuration first so the logs directory is known
	cfg, err := config.LoadWithEnv(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.Cfg = cfg

	app.Logger, err = logging.InitLogger(env, cfg.LogsDir, verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger.Info("Starting application",
		zap.String("environment", env),
		zap.String("api", cfg.APIBaseURL),
		zap.String("storage", cfg.Storage.Driver))

	app.Logger.Debug("Opening session storage")
	app.Store, err = openStore(app.Ctx, cfg.Storage)
	if err != nil {
		return err
	}

	// The gateway reads the token from the session on every request
	app.API = apiclient.NewClient(cfg.APIBaseURL,
		apiclient.TokenFunc(func() string { return app.Session.Token() }),
		apiclient.WithTimeout(cfg.RequestTimeout),
		apiclient.WithAvatarMaxBytes(cfg.AvatarMaxBytes),
		apiclient.WithLogger(app.Logger),
	)
	app.Session = session.New(app.Store, app.API, app.Logger)
	app.Session.Load(app.Ctx)

	app.Gate, err = access.NewGate(app.Logger)
	if err != nil {
		return fmt.Errorf("failed to load access policies: %w", err)
	}
	app.Validate = validation.New(nil)

	app.Center = notifications.NewCenter(app.API, app.Logger)
	app.Poller = notifications.NewPoller(app.Center, cfg.Notifications.PollInterval, app.Logger)

	if cfg.Calendar.OutputDir != "" {
		app.Sinks = append(app.Sinks, ics.FileSink{Dir: cfg.Calendar.OutputDir})
	}
	if err := initGoogle(); err != nil {
		return err
	}

	app.Workflow = services.NewEnrollmentWorkflow(app.API, services.WorkflowConfig{
		DefaultDuration: cfg.Calendar.DefaultDuration(),
		ReminderRule:    cfg.Calendar.ReminderRRule,
		Sinks:           app.Sinks,
		Notifier:        app.Center,
	}, app.Logger)

	app.Logger.Debug("Application initialized")
	return nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (db.StateStore, error) {
	switch cfg.Driver {
	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.Path, cfg.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("failed to open session storage: %w", err)
		}
		return store, nil
	case "postgres":
		pg, err := postgres.NewDB(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to session storage: %w", err)
		}
		if err := pg.RunMigrations(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("failed to migrate session storage: %w", err)
		}
		return pg, nil
	default:
		return db.NewMemoryStore(), nil
	}
}

// initGoogle creates the Google clients; they share one token covering the
// configured integrations
func initGoogle() error {
	oauthCfg, err := config.LoadGoogleClient(app.Cfg, env)
	if err != nil {
		return fmt.Errorf("failed to load OAuth client config: %w", err)
	}
	if oauthCfg == nil {
		return nil
	}
	google := app.Cfg.Google

	auth, err := utils.NewGoogleAuth(oauthCfg, google, env, "", app.Logger)
	if err != nil {
		return fmt.Errorf("failed to set up Google authorization: %w", err)
	}
	token, err := auth.TokenSource(app.Ctx)
	if err != nil {
		return fmt.Errorf("failed to get Google token: %w", err)
	}

	if google.CalendarID != "" {
		app.Logger.Debug("Initializing calendar client")
		cal, err := calendarclient.NewClient(app.Ctx, token, google.CalendarID)
		if err != nil {
			return fmt.Errorf("failed to create calendar client: %w", err)
		}
		app.Sinks = append(app.Sinks, cal)
	}

	if google.InviteRecipient != "" {
		app.Logger.Debug("Initializing gmail client")
		gmail, err := gmailclient.NewClient(app.Ctx, token, google.InviteRecipient)
		if err != nil {
			return fmt.Errorf("failed to create gmail client: %w", err)
		}
		app.Sinks = append(app.Sinks, gmail)
	}

	if google.HistorySheetID != "" {
		app.Logger.Debug("Initializing sheets client")
		sheets, err := sheetsclient.NewClient(app.Ctx, token, google.HistorySheetID)
		if err != nil {
			return fmt.Errorf("failed to create sheets client: %w", err)
		}
		app.HistoryExporter = sheets
	}

	app.Logger.Info("Google integrations enabled", zap.Int("sinks", len(app.Sinks)))
	return nil
}

func closeApp() {
	if app.Session != nil {
		app.Session.Close()
	}
	if app.Store != nil {
		if err := app.Store.Close(); err != nil {
			app.Logger.Warn("Failed to close session storage", zap.Error(err))
		}
		app.Store = nil
	}
	if app.Logger != nil {
		_ = app.Logger.Sync()
	}
}
