package services

import (
	"context"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
)

// ActivityClient defines the activity and enrollment operations of the
// REST gateway
type ActivityClient interface {
	ListActivities(ctx context.Context) ([]model.Activity, error)
	GetActivity(ctx context.Context, id string) (model.Activity, error)
	CreateActivity(ctx context.Context, req model.ActivityRequest) (model.Activity, error)
	Availability(ctx context.Context, activityID string) (model.Availability, error)
	Enroll(ctx context.Context, activityID string) (model.Enrollment, error)
	Unenroll(ctx context.Context, activityID, reason string) error
	AdminUnenroll(ctx context.Context, activityID, userID, reason string) error
	Roster(ctx context.Context, activityID string) ([]model.RosterEntry, error)
	AssignVolunteer(ctx context.Context, activityID, userID string) (model.Enrollment, error)
	AssignVolunteerByEmail(ctx context.Context, activityID, email string) (model.Enrollment, error)
	MarkAttendance(ctx context.Context, enrollmentID string) (model.AttendanceRecord, error)
	MyEnrollments(ctx context.Context) ([]model.EnrollmentRecord, error)
}

// VolunteerClient searches the volunteer directory
type VolunteerClient interface {
	SearchVolunteers(ctx context.Context, q string) ([]model.Volunteer, error)
}

// ProfileClient defines the profile operations of the REST gateway
type ProfileClient interface {
	Verify(ctx context.Context, token string) (string, error)
	Me(ctx context.Context) (model.Profile, error)
	UpdateProfile(ctx context.Context, upd model.ProfileUpdate, avatar *model.Avatar) (model.Profile, error)
	Avatar(ctx context.Context, ref string) ([]byte, error)
	UpdateRole(ctx context.Context, role model.Role) (model.RoleGrant, error)
}

// Notifier records local notifications for successful workflow actions
type Notifier interface {
	AddLocal(title, message, link string) model.NotificationItem
}

// Confirmer asks the user to confirm an action
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// AlwaysConfirm accepts every prompt, used for --yes
var AlwaysConfirm = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })
