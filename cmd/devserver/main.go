package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/devserver"
)

const shutdownTimeout = 5 * time.Second

func main() {
	var addr string
	var seed, debug bool
	var tokenTTL time.Duration

	rootCmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run an in-memory volunteer portal backend for local development",
		Long: `Serves the volunteer portal REST API under /api/v1 from memory.
Tokens are signed with DEVSERVER_SECRET (read from the environment or .env).
State is lost when the server stops.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			logger, err := newLogger(debug)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if !debug {
				gin.SetMode(gin.ReleaseMode)
			}

			backend := devserver.New(devserver.Config{
				Secret:   os.Getenv("DEVSERVER_SECRET"),
				TokenTTL: tokenTTL,
			}, logger)
			if seed {
				seedDemoData(backend, logger)
			}

			return serve(cmd.Context(), addr, backend.Handler(), logger)
		},
	}

	rootCmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	rootCmd.Flags().BoolVar(&seed, "seed", true, "Create demo users and activities")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Debug logging and gin debug mode")
	rootCmd.Flags().DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "Lifetime of issued tokens")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

func seedDemoData(backend *devserver.Server, logger *zap.Logger) {
	backend.SeedUser(devserver.UserSeed{
		FirstName: "Carmen",
		LastName:  "Ruiz",
		Email:     "coordinator@example.org",
		Password:  "password",
		Roles:     []model.Role{model.RoleCoordinator},
	})
	volunteer := backend.SeedUser(devserver.UserSeed{
		FirstName: "Diego",
		LastName:  "Martin",
		Email:     "volunteer@example.org",
		Password:  "password",
		Address:   "Calle Mayor 1, Madrid",
	})

	day := 24 * time.Hour
	base := time.Now().Add(3 * day).Truncate(time.Hour)
	activities := []model.Activity{
		{
			Name:          "Beach clean up",
			Description:   "Collect plastic and litter along the shore with the environment team",
			Date:          base,
			Location:      "Playa de la Victoria",
			City:          "Cadiz",
			Department:    "Andalucia",
			Type:          "Environment",
			Project:       "Clean coasts",
			DurationHours: 3,
			Capacity:      12,
		},
		{
			Name:          "Food bank sorting",
			Description:   "Sort and pack donated food for distribution to local families",
			Date:          base.Add(2 * day),
			Location:      "Nave 3, Mercamadrid",
			City:          "Madrid",
			Department:    "Madrid",
			Type:          "Social",
			Project:       "Food bank",
			DurationHours: 4,
			Capacity:      2,
		},
		{
			Name:        "Reading club",
			Description: "Read aloud with elderly residents at the day centre",
			Date:        base.Add(5 * day),
			Location:    "Centro de dia San Blas",
			City:        "Madrid",
			Department:  "Madrid",
			Type:        "Social",
			Project:     "Company for the elderly",
			Capacity:    4,
		},
	}

	var ids []string
	for _, a := range activities {
		ids = append(ids, backend.SeedActivity(a))
	}
	backend.SeedEnrollment(ids[1], volunteer)
	backend.Notify(volunteer, "Welcome", "Your account is ready. Browse activities with listActivities.")

	logger.Info("Seeded demo data",
		zap.Int("activities", len(ids)),
		zap.String("coordinator", "coordinator@example.org"),
		zap.String("volunteer", "volunteer@example.org"))
}
