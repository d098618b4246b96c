package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/apperr"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/session"
	"github.com/jakechorley/volunteer-portal/pkg/core/validation"
)

// SessionRefresher re-reads the profile into the session
type SessionRefresher interface {
	Snapshot() session.Snapshot
	Refresh(ctx context.Context) error
}

// VerifyAccount confirms a registration with the emailed token
func VerifyAccount(ctx context.Context, client ProfileClient, logger *zap.Logger, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperr.Validation("A verification token is required", apperr.FieldError{
			Field:   "token",
			Message: "is required",
		})
	}
	msg, err := client.Verify(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to verify account: %w", err)
	}
	logger.Info("Account verified")
	return msg, nil
}

// UpdateProfile validates and saves profile changes, then refreshes the
// session so the new profile is visible
func UpdateProfile(ctx context.Context, client ProfileClient, sess SessionRefresher, logger *zap.Logger, upd model.ProfileUpdate, avatar *model.Avatar) (*model.Profile, error) {
	if err := validation.Struct(upd, "The profile is not valid"); err != nil {
		return nil, err
	}

	profile, err := client.UpdateProfile(ctx, upd, avatar)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	if err := sess.Refresh(ctx); err != nil {
		logger.Warn("Failed to refresh session after profile update", zap.Error(err))
	}
	return &profile, nil
}

// AvatarView is either image bytes or the initials to show instead
type AvatarView struct {
	Data     []byte
	Initials string
}

// LoadAvatar downloads the profile's avatar. A missing, oversized or
// unreachable avatar falls back to initials.
func LoadAvatar(ctx context.Context, client ProfileClient, logger *zap.Logger, profile model.Profile) AvatarView {
	view := AvatarView{Initials: profile.Initials()}
	if view.Initials == "" {
		view.Initials = "U"
	}
	if profile.AvatarRef == "" {
		return view
	}

	data, err := client.Avatar(ctx, profile.AvatarRef)
	if err != nil {
		logger.Debug("Avatar unavailable, using initials", zap.Error(err))
		return view
	}
	view.Data = data
	return view
}

// DesiredRole picks the role to request: the selected role, else the active
// role, else the first granted role, else VOLUNTARIO
func DesiredRole(snap session.Snapshot) model.Role {
	if snap.SelectedRole != "" {
		return snap.SelectedRole
	}
	if snap.ActiveRole != "" {
		return snap.ActiveRole
	}
	if len(snap.Roles) > 0 {
		return snap.Roles[0]
	}
	return model.RoleVolunteer
}

// RequestRole asks the backend to grant role, or DesiredRole when role is
// empty, and refreshes the session with the result
func RequestRole(ctx context.Context, client ProfileClient, sess SessionRefresher, logger *zap.Logger, role model.Role) (*model.RoleGrant, error) {
	snap := sess.Snapshot()
	if !snap.Authenticated() {
		return nil, apperr.Auth(apperr.CodeNotAuthenticated, "You need to log in first", nil)
	}

	if role == "" {
		role = DesiredRole(snap)
	}
	logger.Debug("Requesting role", zap.String("role", string(role)))
	grant, err := client.UpdateRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("failed to request role %s: %w", role, err)
	}

	if err := sess.Refresh(ctx); err != nil {
		logger.Warn("Failed to refresh session after role request", zap.Error(err))
	}
	logger.Info("Role granted", zap.String("role", string(grant.Role)))
	return &grant, nil
}
