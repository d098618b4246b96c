package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/apperr"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/devserver"
)

func coordinatorFixture(t *testing.T, capacity int) (*backendFixture, *EnrollmentWorkflow, *recordingNotifier, string) {
	t.Helper()
	f := newBackend(t)
	coord := f.backend.SeedUser(devserver.UserSeed{FirstName: "Cora", Email: "cora@example.org", Roles: []model.Role{model.RoleCoordinator}})
	activityID := f.seedActivity(capacity)
	notifier := &recordingNotifier{}
	w := NewEnrollmentWorkflow(f.clientFor(t, coord), WorkflowConfig{Notifier: notifier}, zap.NewNop())
	return f, w, notifier, activityID
}

func TestAssignVolunteer_ByIDAndEmail(t *testing.T) {
	f, w, notifier, activityID := coordinatorFixture(t, 3)
	ana := f.backend.SeedUser(devserver.UserSeed{FirstName: "Ana", Email: "ana@example.org"})
	f.backend.SeedUser(devserver.UserSeed{FirstName: "Ben", Email: "ben@example.org"})

	result, err := w.AssignVolunteer(context.Background(), activityID, AssignTarget{UserID: ana})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Availability.Available)

	result, err = w.AssignVolunteer(context.Background(), activityID, AssignTarget{Email: " ben@example.org "})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Availability.Available)

	assert.Equal(t, 2, f.backend.EnrolledCount(activityID))
	assert.Equal(t, []string{"Volunteer assigned", "Volunteer assigned"}, notifier.all())
}

func TestAssignVolunteer_RefusedWhenFull(t *testing.T) {
	f, w, _, activityID := coordinatorFixture(t, 1)
	ana := f.backend.SeedUser(devserver.UserSeed{FirstName: "Ana", Email: "ana@example.org"})
	ben := f.backend.SeedUser(devserver.UserSeed{FirstName: "Ben", Email: "ben@example.org"})
	f.backend.SeedEnrollment(activityID, ana)

	_, err := w.AssignVolunteer(context.Background(), activityID, AssignTarget{UserID: ben})
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeNoCapacity))
	assert.Equal(t, 0, f.backend.RequestCount(http.MethodPost, "/api/v1/activities/:id/assign/:userId"))
}

func TestAssignVolunteer_RefusesDuplicateFromRoster(t *testing.T) {
	f, w, _, activityID := coordinatorFixture(t, 5)
	ana := f.backend.SeedUser(devserver.UserSeed{FirstName: "Ana", Email: "ana@example.org"})
	f.backend.SeedEnrollment(activityID, ana)

	_, err := w.AssignVolunteer(context.Background(), activityID, AssignTarget{Email: "ANA@example.org"})
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeAlreadyEnrolled))
	assert.Equal(t, 0, f.backend.RequestCount(http.MethodPost, "/api/v1/activities/:id/assignByEmail"))
}

func TestAssignVolunteer_RequiresTarget(t *testing.T) {
	_, w, _, activityID := coordinatorFixture(t, 5)

	_, err := w.AssignVolunteer(context.Background(), activityID, AssignTarget{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestMarkAttendance_OneDirectional(t *testing.T) {
	f, w, notifier, activityID := coordinatorFixture(t, 5)
	ana := f.backend.SeedUser(devserver.UserSeed{FirstName: "Ana", Email: "ana@example.org"})
	enrollmentID := f.backend.SeedEnrollment(activityID, ana)
	const markRoute = "/api/v1/activities/attendance/:enrollmentId/mark"

	declined := &countingConfirmer{answer: false}
	_, err := w.MarkAttendance(context.Background(), activityID, enrollmentID, declined)
	assert.ErrorIs(t, err, ErrDeclined)
	assert.Equal(t, 1, declined.asked)
	assert.Equal(t, 0, f.backend.RequestCount(http.MethodPost, markRoute))

	record, err := w.MarkAttendance(context.Background(), activityID, enrollmentID, AlwaysConfirm)
	require.NoError(t, err)
	assert.True(t, record.Attended)
	assert.Equal(t, enrollmentID, record.EnrollmentID)

	confirm := &countingConfirmer{answer: true}
	_, err = w.MarkAttendance(context.Background(), activityID, enrollmentID, confirm)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeAlreadyAttended))
	assert.Equal(t, 0, confirm.asked)
	assert.Equal(t, 1, f.backend.RequestCount(http.MethodPost, markRoute))
	assert.Equal(t, []string{"Attendance confirmed"}, notifier.all())
}

func TestMarkAttendance_UnknownEnrollment(t *testing.T) {
	_, w, _, activityID := coordinatorFixture(t, 5)

	_, err := w.MarkAttendance(context.Background(), activityID, "missing", AlwaysConfirm)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestRoster_SortedByName(t *testing.T) {
	f := newBackend(t)
	coord := f.backend.SeedUser(devserver.UserSeed{FirstName: "Cora", Email: "cora@example.org", Roles: []model.Role{model.RoleCoordinator}})
	activityID := f.seedActivity(5)
	f.backend.SeedEnrollment(activityID, f.backend.SeedUser(devserver.UserSeed{FirstName: "Zoe", Email: "zoe@example.org"}))
	f.backend.SeedEnrollment(activityID, f.backend.SeedUser(devserver.UserSeed{FirstName: "ana", Email: "ana@example.org"}))

	roster, err := Roster(context.Background(), f.clientFor(t, coord), activityID)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, "ana@example.org", roster[0].Email)
	assert.Equal(t, "zoe@example.org", roster[1].Email)
}
