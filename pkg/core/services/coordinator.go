package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/apperr"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
)

// AssignTarget identifies the volunteer to assign, by user id or by email
type AssignTarget struct {
	UserID string
	Email  string
}

func (t AssignTarget) String() string {
	if t.UserID != "" {
		return t.UserID
	}
	return t.Email
}

func (t AssignTarget) matches(e model.RosterEntry) bool {
	if t.UserID != "" {
		return e.UserID == t.UserID
	}
	return strings.EqualFold(strings.TrimSpace(e.Email), strings.TrimSpace(t.Email))
}

// AssignResult describes a successful assignment
type AssignResult struct {
	Enrollment   model.Enrollment
	Availability model.Availability
}

// AssignVolunteer enrolls another user in an activity. It is refused while
// the activity has no free places, and when the roster already lists the
// volunteer.
func (w *EnrollmentWorkflow) AssignVolunteer(ctx context.Context, activityID string, target AssignTarget) (*AssignResult, error) {
	if target.UserID == "" && strings.TrimSpace(target.Email) == "" {
		return nil, apperr.Validation("Choose a volunteer to assign", apperr.FieldError{
			Field:   "volunteer",
			Message: "user id or email is required",
		})
	}

	unlock := w.locks.lock(activityID)
	defer unlock()

	w.logger.Debug("Starting assign", zap.String("activity_id", activityID), zap.Stringer("target", target))

	// Step 1: Fresh availability
	avail, err := w.client.Availability(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to check availability: %w", err)
	}
	if !avail.HasCapacity() {
		return nil, apperr.Conflict(apperr.CodeNoCapacity, "There are no places left in this activity")
	}

	// Step 2: Roster duplicate check
	roster, err := w.client.Roster(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}
	for _, e := range roster {
		if target.matches(e) {
			return nil, apperr.Conflict(apperr.CodeAlreadyEnrolled,
				fmt.Sprintf("%s is already enrolled in this activity", fallbackName(e)))
		}
	}

	// Step 3: Assign
	var enrollment model.Enrollment
	if target.UserID != "" {
		enrollment, err = w.client.AssignVolunteer(ctx, activityID, target.UserID)
	} else {
		enrollment, err = w.client.AssignVolunteerByEmail(ctx, activityID, target.Email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to assign volunteer: %w", err)
	}

	w.notify("Volunteer assigned", fmt.Sprintf("%s was assigned to activity %s", target, activityID))
	w.logger.Info("Assigned volunteer", zap.String("activity_id", activityID), zap.Stringer("target", target))

	return &AssignResult{
		Enrollment:   enrollment,
		Availability: w.freshAvailability(ctx, activityID),
	}, nil
}

// MarkAttendance confirms that an enrolled volunteer attended. The roster
// is fetched fresh; an entry already marked is refused without contacting
// the backend.
func (w *EnrollmentWorkflow) MarkAttendance(ctx context.Context, activityID, enrollmentID string, confirm Confirmer) (*model.AttendanceRecord, error) {
	unlock := w.locks.lock(activityID)
	defer unlock()

	roster, err := w.client.Roster(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}

	var entry *model.RosterEntry
	for i := range roster {
		if roster[i].EnrollmentID == enrollmentID {
			entry = &roster[i]
			break
		}
	}
	if entry == nil {
		return nil, apperr.NotFound(fmt.Sprintf("Enrollment %s is not part of this activity", enrollmentID))
	}
	if entry.Attended {
		return nil, apperr.Conflict(apperr.CodeAlreadyAttended,
			fmt.Sprintf("Attendance for %s is already confirmed", fallbackName(*entry)))
	}

	ok, err := confirm.Confirm(ctx, fmt.Sprintf("Confirm that %s attended?", fallbackName(*entry)))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDeclined
	}

	record, err := w.client.MarkAttendance(ctx, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark attendance: %w", err)
	}

	w.notify("Attendance confirmed", fmt.Sprintf("Attendance confirmed for %s", fallbackName(*entry)))
	return &record, nil
}

// Roster returns the activity's enrollments sorted by name
func Roster(ctx context.Context, client ActivityClient, activityID string) ([]model.RosterEntry, error) {
	roster, err := client.Roster(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}
	sort.SliceStable(roster, func(i, j int) bool {
		return strings.ToLower(fallbackName(roster[i])) < strings.ToLower(fallbackName(roster[j]))
	})
	return roster, nil
}

func fallbackName(e model.RosterEntry) string {
	switch {
	case strings.TrimSpace(e.Name) != "":
		return e.Name
	case e.Email != "":
		return e.Email
	default:
		return "user " + e.UserID
	}
}
