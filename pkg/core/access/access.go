// Package access gates CLI actions on the session's active role using the
// embedded Cedar policies. The gateway itself is not gated.
package access

import (
	_ "embed"
	"fmt"

	"github.com/cedar-policy/cedar-go"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/apperr"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/session"
)

//go:embed policies.cedar
var policiesContent []byte

type Action string

const (
	Enroll            Action = "enroll"
	Unenroll          Action = "unenroll"
	ViewHistory       Action = "view_history"
	ViewNotifications Action = "view_notifications"
	UpdateProfile     Action = "update_profile"
	RequestRole       Action = "request_role"

	CreateActivity   Action = "create_activity"
	AssignVolunteer  Action = "assign_volunteer"
	AdminUnenroll    Action = "admin_unenroll"
	ViewRoster       Action = "view_roster"
	MarkAttendance   Action = "mark_attendance"
	SearchVolunteers Action = "search_volunteers"
)

// Coordinating reports whether the action needs a coordinating role
func (a Action) Coordinating() bool {
	switch a {
	case CreateActivity, AssignVolunteer, AdminUnenroll, ViewRoster, MarkAttendance, SearchVolunteers:
		return true
	}
	return false
}

// Gate evaluates actions against the policy set
type Gate struct {
	policies *cedar.PolicySet
	logger   *zap.Logger
}

// NewGate parses the embedded policies
func NewGate(logger *zap.Logger) (*Gate, error) {
	return NewGateFromBytes(policiesContent, logger)
}

// NewGateFromBytes parses policies from an alternative source
func NewGateFromBytes(policies []byte, logger *zap.Logger) (*Gate, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ps, err := cedar.NewPolicySetFromBytes("policies.cedar", policies)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policies: %w", err)
	}
	return &Gate{policies: ps, logger: logger}, nil
}

// Allowed reports whether the session may perform the action
func (g *Gate) Allowed(snap session.Snapshot, action Action) bool {
	principalID := "anonymous"
	if snap.User != nil && snap.User.ID != "" {
		principalID = snap.User.ID
	}

	req := cedar.Request{
		Principal: cedar.NewEntityUID("User", cedar.String(principalID)),
		Action:    cedar.NewEntityUID("Action", cedar.String(string(action))),
		Resource:  cedar.NewEntityUID("Portal", "volunteer-portal"),
		Context: cedar.NewRecord(cedar.RecordMap{
			"authenticated":       cedar.Boolean(snap.Authenticated()),
			"active_role":         cedar.String(string(snap.ActiveRole)),
			"active_role_granted": cedar.Boolean(snap.HasRole(snap.ActiveRole)),
		}),
	}

	decision, diag := cedar.Authorize(g.policies, cedar.EntityMap{}, req)
	for _, e := range diag.Errors {
		g.logger.Error("Policy evaluation error",
			zap.String("policy", string(e.PolicyID)),
			zap.String("error", e.Message))
	}

	allowed := decision == cedar.Allow
	g.logger.Debug("Access decision",
		zap.String("principal", principalID),
		zap.String("action", string(action)),
		zap.String("activeRole", string(snap.ActiveRole)),
		zap.Bool("allowed", allowed))
	return allowed
}

// Check returns an AuthError describing why the action is refused, or nil
func (g *Gate) Check(snap session.Snapshot, action Action) error {
	if g.Allowed(snap, action) {
		return nil
	}
	if !snap.Authenticated() {
		return apperr.Auth(apperr.CodeNotAuthenticated, "You need to log in first", nil).
			WithHint("Run: volunteer login --email <email>")
	}
	if snap.Loading || snap.User == nil {
		return apperr.Auth(apperr.CodeForbidden, "Your profile is not loaded, so your roles are unknown", nil).
			WithHint("Check the connection and run: volunteer whoami")
	}

	if pending, ok := snap.PendingRole(); ok {
		return apperr.Auth(apperr.CodeForbidden,
			fmt.Sprintf("Role %s has not been granted yet", pending), nil).
			WithHint("Run: volunteer requestRole, or switch with: volunteer setActiveRole")
	}
	if action.Coordinating() && model.ContainsRole(snap.Roles, model.RoleCoordinator) {
		return apperr.Auth(apperr.CodeForbidden, "This action requires acting as COORDINADOR", nil).
			WithHint("Run: volunteer setActiveRole --role COORDINADOR")
	}
	return apperr.Auth(apperr.CodeForbidden, "You do not have permission for this action", nil)
}
