package commands

import (
	"bufio"
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/internal/config"
	"github.com/jakechorley/volunteer-portal/pkg/clients/apiclient"
	"github.com/jakechorley/volunteer-portal/pkg/core/access"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/notifications"
	"github.com/jakechorley/volunteer-portal/pkg/core/services"
	"github.com/jakechorley/volunteer-portal/pkg/core/session"
	"github.com/jakechorley/volunteer-portal/pkg/core/validation"
	"github.com/jakechorley/volunteer-portal/pkg/db"
	"github.com/jakechorley/volunteer-portal/pkg/devserver"
)

const testPassword = "password123"

func init() {
	gin.SetMode(gin.TestMode)
	color.NoColor = true
}

// testApp is an AppContext wired to an in-memory backend
type testApp struct {
	*AppContext
	backend *devserver.Server
	// storage is shared by every process started from this app
	storage *db.MemoryBackend
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	backend := devserver.New(devserver.Config{}, nil)
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	return wireTestApp(t, backend, srv.URL+"/api/v1", db.NewMemoryBackend())
}

// restart simulates the next CLI invocation: a new process on the same
// backend and storage, hydrated the way initApp does it
func (a *testApp) restart(t *testing.T) *testApp {
	t.Helper()
	next := wireTestApp(t, a.backend, a.Cfg.APIBaseURL, a.storage)
	next.Session.Load(next.Ctx)
	return next
}

func wireTestApp(t *testing.T, backend *devserver.Server, apiURL string, storage *db.MemoryBackend) *testApp {
	t.Helper()
	cfg := config.Default()
	cfg.APIBaseURL = apiURL
	cfg.Storage.Driver = "memory"

	logger := zap.NewNop()
	app := &AppContext{
		Cfg:    cfg,
		Store:  storage.Open(),
		Logger: logger,
		Ctx:    context.Background(),
		Input:  bufio.NewReader(strings.NewReader("")),
	}
	app.API = apiclient.NewClient(cfg.APIBaseURL, apiclient.TokenFunc(func() string { return app.Session.Token() }))
	app.Session = session.New(app.Store, app.API, logger)
	t.Cleanup(app.Session.Close)

	gate, err := access.NewGate(logger)
	require.NoError(t, err)
	app.Gate = gate
	app.Validate = validation.New(nil)
	app.Center = notifications.NewCenter(app.API, logger)
	app.Poller = notifications.NewPoller(app.Center, time.Hour, logger)
	app.Workflow = services.NewEnrollmentWorkflow(app.API, services.WorkflowConfig{
		ReminderRule: cfg.Calendar.ReminderRRule,
		Notifier:     app.Center,
	}, logger)

	return &testApp{AppContext: app, backend: backend, storage: storage}
}

func (a *testApp) seedUser(email string, roles ...model.Role) string {
	return a.backend.SeedUser(devserver.UserSeed{
		FirstName: strings.Split(email, "@")[0],
		LastName:  "Test",
		Email:     email,
		Password:  testPassword,
		Roles:     roles,
	})
}

func (a *testApp) seedActivity(capacity int) string {
	return a.backend.SeedActivity(model.Activity{
		Name:        "Beach clean up",
		Description: "Collect plastic along the shore",
		Date:        time.Now().Add(96 * time.Hour).UTC().Truncate(time.Second),
		Location:    "Pier 4",
		City:        "Cadiz",
		Type:        "Environment",
		Capacity:    capacity,
	})
}

// answer replaces the input read by prompts
func (a *testApp) answer(lines ...string) {
	a.Input = bufio.NewReader(strings.NewReader(strings.Join(lines, "\n") + "\n"))
}

func (a *testApp) login(t *testing.T, email string) {
	t.Helper()
	_, err := run(LoginCmd(a.AppContext), "--email", email, "--password", testPassword)
	require.NoError(t, err)
	require.NotNil(t, a.Session.Snapshot().User)
}

// run executes a single command and returns what it printed
func run(cmd *cobra.Command, args ...string) (string, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err := cmd.Execute()
	return out.String(), err
}

// syncBuffer is an output buffer the test can read while a command writes
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
