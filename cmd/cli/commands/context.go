package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/internal/config"
	"github.com/jakechorley/volunteer-portal/pkg/clients/apiclient"
	"github.com/jakechorley/volunteer-portal/pkg/core/access"
	"github.com/jakechorley/volunteer-portal/pkg/core/ics"
	"github.com/jakechorley/volunteer-portal/pkg/core/notifications"
	"github.com/jakechorley/volunteer-portal/pkg/core/services"
	"github.com/jakechorley/volunteer-portal/pkg/core/session"
	"github.com/jakechorley/volunteer-portal/pkg/core/validation"
	"github.com/jakechorley/volunteer-portal/pkg/db"
)

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Cfg      *config.Config
	Store    db.StateStore
	API      *apiclient.Client
	Session  *session.Store
	Gate     *access.Gate
	Validate *validation.Validator
	Workflow *services.EnrollmentWorkflow
	Center   *notifications.Center
	Poller   *notifications.Poller
	Sinks    []ics.Sink
	// HistoryExporter is nil unless a history spreadsheet is configured
	HistoryExporter services.HistoryExporter
	Logger          *zap.Logger
	Ctx             context.Context

	// AssumeYes skips confirmation prompts
	AssumeYes bool
	Input     *bufio.Reader
}

// Require refuses the action unless the current session may perform it.
// It waits for a pending profile refresh so roles are known.
func (app *AppContext) Require(action access.Action) error {
	app.Session.Wait()
	return app.Gate.Check(app.Session.Snapshot(), action)
}

// Confirmer asks on out and reads the answer from the shared input
func (app *AppContext) Confirmer(out io.Writer) services.Confirmer {
	if app.AssumeYes {
		return services.AlwaysConfirm
	}
	return services.ConfirmFunc(func(ctx context.Context, prompt string) (bool, error) {
		fmt.Fprintf(out, "%s [y/N]: ", prompt)
		line, err := app.Input.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				return false, nil
			}
			return false, fmt.Errorf("failed to read answer: %w", err)
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	})
}

// ReadLine prompts on out and returns the trimmed answer
func (app *AppContext) ReadLine(out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	line, err := app.Input.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// lockedWriter serializes writes from several goroutines
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
