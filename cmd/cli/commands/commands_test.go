package commands

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/volunteer-portal/pkg/apperr"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/services"
)

func TestEnrollCmd_RequiresLogin(t *testing.T) {
	app := newTestApp(t)
	activityID := app.seedActivity(2)

	_, err := run(EnrollCmd(app.AppContext), activityID)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeNotAuthenticated))
	assert.Equal(t, 0, app.backend.EnrolledCount(activityID))
}

func TestEnrollCmd_AfterLogin(t *testing.T) {
	app := newTestApp(t)
	app.seedUser("ana@example.org")
	activityID := app.seedActivity(2)
	app.login(t, "ana@example.org")

	out, err := run(EnrollCmd(app.AppContext), activityID)
	require.NoError(t, err)
	assert.Contains(t, out, "Enrolled")
	assert.Contains(t, out, "Places left: 1 of 2")
	assert.Equal(t, 1, app.backend.EnrolledCount(activityID))
	assert.Equal(t, 1, app.Center.State().Unread)
}

func TestEnrollCmd_FullActivityWritesReminder(t *testing.T) {
	app := newTestApp(t)
	other := app.seedUser("ben@example.org")
	app.seedUser("ana@example.org")
	activityID := app.seedActivity(1)
	app.backend.SeedEnrollment(activityID, other)
	app.login(t, "ana@example.org")

	dir := t.TempDir()
	out, err := run(EnrollCmd(app.AppContext), activityID, "--reminder-dir", dir)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeNoCapacity))
	assert.Contains(t, out, "FREQ=DAILY")
	assert.Contains(t, out, "listActivities --available")

	files, err := filepath.Glob(filepath.Join(dir, "*.ics"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "RRULE:FREQ=DAILY")
}

func TestUnenrollCmd_DeclinedKeepsEnrollment(t *testing.T) {
	app := newTestApp(t)
	user := app.seedUser("ana@example.org")
	activityID := app.seedActivity(2)
	app.backend.SeedEnrollment(activityID, user)
	app.login(t, "ana@example.org")

	app.answer("n")
	out, err := run(UnenrollCmd(app.AppContext), activityID)
	assert.ErrorIs(t, err, services.ErrDeclined)
	assert.Contains(t, out, "[y/N]")
	assert.Equal(t, 1, app.backend.EnrolledCount(activityID))

	app.answer("yes")
	out, err = run(UnenrollCmd(app.AppContext), activityID, "--reason", "ill")
	require.NoError(t, err)
	assert.Contains(t, out, "Places left: 2 of 2")
	assert.Equal(t, 0, app.backend.EnrolledCount(activityID))
}

func TestViewRosterCmd_RefusedForVolunteer(t *testing.T) {
	app := newTestApp(t)
	app.seedUser("ana@example.org")
	activityID := app.seedActivity(2)
	app.login(t, "ana@example.org")

	_, err := run(ViewRosterCmd(app.AppContext), activityID)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeForbidden))
}

func TestCoordinatorCommands(t *testing.T) {
	app := newTestApp(t)
	app.seedUser("cora@example.org", model.RoleCoordinator)
	vol := app.seedUser("ana@example.org")
	activityID := app.seedActivity(3)
	app.login(t, "cora@example.org")

	out, err := run(AssignVolunteerCmd(app.AppContext), activityID, "--email", "ana@example.org")
	require.NoError(t, err)
	assert.Contains(t, out, "Places left: 2 of 3")

	out, err = run(ViewRosterCmd(app.AppContext), activityID)
	require.NoError(t, err)
	assert.Contains(t, out, "ana@example.org")

	roster, err := services.Roster(app.Ctx, app.API, activityID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, vol, roster[0].UserID)

	app.AssumeYes = true
	out, err = run(MarkAttendanceCmd(app.AppContext), activityID, roster[0].EnrollmentID)
	require.NoError(t, err)
	assert.Contains(t, out, "Attendance confirmed")

	_, err = run(MarkAttendanceCmd(app.AppContext), activityID, roster[0].EnrollmentID)
	assert.True(t, apperr.HasCode(err, apperr.CodeAlreadyAttended))
}

func TestCoordinatorCommands_InLaterInvocation(t *testing.T) {
	app := newTestApp(t)
	app.seedUser("cora@example.org", model.RoleCoordinator)
	app.seedUser("ana@example.org")
	activityID := app.seedActivity(3)
	app.login(t, "cora@example.org")

	next := app.restart(t)
	out, err := run(AssignVolunteerCmd(next.AppContext), activityID, "--email", "ana@example.org")
	require.NoError(t, err)
	assert.Contains(t, out, "Places left: 2 of 3")

	out, err = run(ViewRosterCmd(app.restart(t).AppContext), activityID)
	require.NoError(t, err)
	assert.Contains(t, out, "ana@example.org")
}

func TestRequestRoleCmd_UsesRoleSelectedEarlier(t *testing.T) {
	app := newTestApp(t)
	app.seedUser("ana@example.org")
	app.login(t, "ana@example.org")

	out, err := run(SetActiveRoleCmd(app.AppContext), "--role", "COORDINADOR")
	require.NoError(t, err)
	assert.Contains(t, out, "not granted yet")

	out, err = run(WhoamiCmd(app.restart(t).AppContext))
	require.NoError(t, err)
	assert.Contains(t, out, "Active role: VOLUNTARIO")
	assert.Contains(t, out, "Role COORDINADOR is selected but not granted")

	next := app.restart(t)
	out, err = run(RequestRoleCmd(next.AppContext))
	require.NoError(t, err)
	assert.Contains(t, out, "Role COORDINADOR granted")
	assert.Contains(t, out, "Active role: COORDINADOR")

	_, err = run(ViewRosterCmd(app.restart(t).AppContext), app.seedActivity(2))
	assert.NoError(t, err)
}

func TestRequestRoleCmd_RoleFlag(t *testing.T) {
	app := newTestApp(t)
	app.seedUser("ana@example.org")
	app.login(t, "ana@example.org")

	_, err := run(RequestRoleCmd(app.AppContext), "--role", "superuser")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	out, err := run(RequestRoleCmd(app.AppContext), "--role", "coordinator")
	require.NoError(t, err)
	assert.Contains(t, out, "Role COORDINADOR granted")
	assert.Contains(t, out, "Roles:       VOLUNTARIO, COORDINADOR")
}

func TestSearchVolunteersCmd_Live(t *testing.T) {
	app := newTestApp(t)
	app.seedUser("cora@example.org", model.RoleCoordinator)
	app.seedUser("ana@example.org")
	app.login(t, "cora@example.org")
	app.Cfg.Search.Debounce = time.Millisecond

	input, typed := io.Pipe()
	app.Input = bufio.NewReader(input)

	out := &syncBuffer{}
	cmd := SearchVolunteersCmd(app.AppContext)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"--live"})
	cmd.SilenceUsage = true
	errc := make(chan error, 1)
	go func() { errc <- cmd.Execute() }()

	_, err := io.WriteString(typed, "ana test\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "ana@example.org")
	}, 2*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(typed, "\n")
	require.NoError(t, err)
	require.NoError(t, <-errc)

	got := out.String()
	assert.Contains(t, got, "search> ")
	assert.Contains(t, got, `Results for "ana test"`)
	assert.NotContains(t, got, "cora@example.org")
}

func TestViewHistoryCmd(t *testing.T) {
	app := newTestApp(t)
	user := app.seedUser("ana@example.org")
	activityID := app.seedActivity(2)
	app.backend.SeedEnrollment(activityID, user)
	app.login(t, "ana@example.org")

	t.Run("table", func(t *testing.T) {
		out, err := run(ViewHistoryCmd(app.AppContext))
		require.NoError(t, err)
		assert.Contains(t, out, "Beach clean up")
		assert.Contains(t, out, "Total: 1 activities")
	})

	t.Run("csv", func(t *testing.T) {
		out, err := run(ViewHistoryCmd(app.AppContext), "--csv")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)
		assert.Equal(t, strings.Join(services.HistoryHeader, ","), lines[0])
	})

	t.Run("filtered out", func(t *testing.T) {
		out, err := run(ViewHistoryCmd(app.AppContext), "--type", "Social")
		require.NoError(t, err)
		assert.Contains(t, out, "No activities match.")
	})

	t.Run("bad date", func(t *testing.T) {
		_, err := run(ViewHistoryCmd(app.AppContext), "--from", "30/06/2025")
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})

	t.Run("sheets without exporter", func(t *testing.T) {
		_, err := run(ViewHistoryCmd(app.AppContext), "--sheets")
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})
}

func TestNotificationCommands(t *testing.T) {
	app := newTestApp(t)
	user := app.seedUser("ana@example.org")
	id := app.backend.Notify(user, "Shift moved", "Now starts at 10:00")
	app.login(t, "ana@example.org")

	out, err := run(NotificationsCmd(app.AppContext), "--unread")
	require.NoError(t, err)
	assert.Contains(t, out, "Shift moved")
	assert.Contains(t, out, "1 unread")

	out, err = run(MarkReadCmd(app.AppContext), id)
	require.NoError(t, err)
	assert.Contains(t, out, "0 unread")
}

func TestLogoutCmd_ClearsSession(t *testing.T) {
	app := newTestApp(t)
	app.seedUser("ana@example.org")
	app.login(t, "ana@example.org")

	_, err := run(LogoutCmd(app.AppContext))
	require.NoError(t, err)

	out, err := run(WhoamiCmd(app.AppContext))
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")
}
