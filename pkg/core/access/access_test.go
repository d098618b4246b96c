package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/apperr"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/session"
)

func snapshot(active model.Role, granted ...model.Role) session.Snapshot {
	return session.Snapshot{
		Token:        "tok",
		User:         &model.Profile{ID: "1", Roles: granted, RolesListed: true},
		Roles:        granted,
		ActiveRole:   active,
		SelectedRole: active,
	}
}

func TestGate_Decisions(t *testing.T) {
	gate, err := NewGate(zap.NewNop())
	require.NoError(t, err)

	tests := []struct {
		name    string
		snap    session.Snapshot
		action  Action
		allowed bool
	}{
		{"anonymous cannot enroll", session.Snapshot{}, Enroll, false},
		{"volunteer can enroll", snapshot(model.RoleVolunteer, model.RoleVolunteer), Enroll, true},
		{"volunteer cannot create activity", snapshot(model.RoleVolunteer, model.RoleVolunteer), CreateActivity, false},
		{"coordinator acting as volunteer cannot view roster",
			snapshot(model.RoleVolunteer, model.RoleVolunteer, model.RoleCoordinator), ViewRoster, false},
		{"coordinator can view roster",
			snapshot(model.RoleCoordinator, model.RoleVolunteer, model.RoleCoordinator), ViewRoster, true},
		{"pending coordinator cannot mark attendance",
			snapshot(model.RoleCoordinator, model.RoleVolunteer), MarkAttendance, false},
		{"admin can search volunteers", snapshot(model.RoleAdmin, model.RoleAdmin), SearchVolunteers, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, gate.Allowed(tt.snap, tt.action))
		})
	}
}

func TestGate_CheckExplainsRefusal(t *testing.T) {
	gate, err := NewGate(zap.NewNop())
	require.NoError(t, err)

	err = gate.Check(session.Snapshot{}, Enroll)
	assert.True(t, apperr.HasCode(err, apperr.CodeNotAuthenticated))

	err = gate.Check(snapshot(model.RoleCoordinator, model.RoleVolunteer), CreateActivity)
	assert.True(t, apperr.HasCode(err, apperr.CodeForbidden))
	assert.Contains(t, err.Error(), "not been granted")

	err = gate.Check(snapshot(model.RoleVolunteer, model.RoleVolunteer, model.RoleCoordinator), CreateActivity)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Contains(t, e.Hint, "setActiveRole")

	assert.NoError(t, gate.Check(snapshot(model.RoleCoordinator, model.RoleCoordinator), CreateActivity))
}

func TestGate_CheckReportsUnloadedProfile(t *testing.T) {
	gate, err := NewGate(zap.NewNop())
	require.NoError(t, err)

	tests := []struct {
		name string
		snap session.Snapshot
	}{
		{"still loading", session.Snapshot{Token: "tok", Loading: true, ActiveRole: model.RoleCoordinator}},
		{"profile fetch failed", session.Snapshot{Token: "tok", ActiveRole: model.RoleCoordinator}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.Check(tt.snap, ViewRoster)
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, apperr.CodeForbidden, e.Code)
			assert.Contains(t, e.Message, "not loaded")
			assert.Contains(t, e.Hint, "whoami")
		})
	}
}

func TestNewGateFromBytes_RejectsInvalidPolicy(t *testing.T) {
	_, err := NewGateFromBytes([]byte("permit ("), zap.NewNop())
	assert.Error(t, err)
}
