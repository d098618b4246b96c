package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/apperr"
	"github.com/jakechorley/volunteer-portal/pkg/core/ics"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
)

// ErrDeclined is returned when the user does not confirm an action
var ErrDeclined = errors.New("cancelled by user")

// EnrollState is the acting user's view of one activity
type EnrollState int

const (
	StateUnknown EnrollState = iota
	StateChecking
	StateNoCapacity
	StateAlreadyEnrolled
	StateEligible
	StateEnrolling
	StateEnrolled
	StateFailed
)

func (s EnrollState) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateNoCapacity:
		return "no capacity"
	case StateAlreadyEnrolled:
		return "already enrolled"
	case StateEligible:
		return "eligible"
	case StateEnrolling:
		return "enrolling"
	case StateEnrolled:
		return "enrolled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// WorkflowConfig configures an EnrollmentWorkflow
type WorkflowConfig struct {
	// DefaultDuration is used for calendar events of activities without one
	DefaultDuration time.Duration
	// ReminderRule is the RRULE offered when an activity is full. Empty
	// disables reminders.
	ReminderRule string
	// Sinks receive the calendar event after a successful enrollment
	Sinks []ics.Sink
	// Notifier records local notifications, may be nil
	Notifier Notifier
	Now      func() time.Time
}

// EnrollmentWorkflow runs the check-then-act sequences for enrolling,
// assigning and attendance. Sequences for the same activity are serialized
// so two of them can never pass the pre-checks together.
type EnrollmentWorkflow struct {
	client ActivityClient
	cfg    WorkflowConfig
	logger *zap.Logger
	locks  keyedMutex

	mu     sync.Mutex
	states map[string]EnrollState
}

func NewEnrollmentWorkflow(client ActivityClient, cfg WorkflowConfig, logger *zap.Logger) *EnrollmentWorkflow {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = ics.DefaultDuration
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentWorkflow{
		client: client,
		cfg:    cfg,
		logger: logger,
		states: make(map[string]EnrollState),
	}
}

// State returns the last known state for an activity
func (w *EnrollmentWorkflow) State(activityID string) EnrollState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.states[activityID]
}

func (w *EnrollmentWorkflow) setState(activityID string, s EnrollState) {
	w.mu.Lock()
	w.states[activityID] = s
	w.mu.Unlock()
	w.logger.Debug("Enrollment state", zap.String("activity_id", activityID), zap.Stringer("state", s))
}

func (w *EnrollmentWorkflow) notify(title, message string) {
	if w.cfg.Notifier != nil {
		w.cfg.Notifier.AddLocal(title, message, "")
	}
}

// Reminder is the alternative offered for a full activity
type Reminder struct {
	Event       ics.Event
	Occurrences []time.Time
}

// EnrollResult describes the outcome of Enroll
type EnrollResult struct {
	State        EnrollState
	Availability model.Availability
	Enrollment   *model.Enrollment
	// Event is the calendar entry for the enrolled activity
	Event *ics.Event
	// Delivered names the sinks that accepted the event
	Delivered []string
	// Reminder is set when the activity is full and a reminder rule is
	// configured
	Reminder *Reminder
}

// Enroll enrolls the current user in an activity. Availability is always
// fetched fresh and the user's enrollments are checked before the enroll
// request is sent. Full or duplicate enrollments return a ConflictError
// together with the result.
func (w *EnrollmentWorkflow) Enroll(ctx context.Context, activityID string) (*EnrollResult, error) {
	unlock := w.locks.lock(activityID)
	defer unlock()

	w.logger.Debug("Starting enroll", zap.String("activity_id", activityID))

	// Step 1: Fresh availability
	w.setState(activityID, StateChecking)
	avail, err := w.client.Availability(ctx, activityID)
	if err != nil {
		w.setState(activityID, StateUnknown)
		return nil, fmt.Errorf("failed to check availability: %w", err)
	}
	result := &EnrollResult{Availability: avail}

	// Step 2: Capacity gate
	if !avail.HasCapacity() {
		w.setState(activityID, StateNoCapacity)
		result.State = StateNoCapacity
		result.Reminder = w.reminder(ctx, activityID)
		return result, apperr.Conflict(apperr.CodeNoCapacity, "There are no places left in this activity").
			WithHint("Run: volunteer listActivities --available")
	}

	// Step 3: Duplicate check
	enrolled, err := w.isEnrolled(ctx, activityID)
	if err != nil {
		w.setState(activityID, StateUnknown)
		return nil, fmt.Errorf("failed to check existing enrollments: %w", err)
	}
	if enrolled {
		w.setState(activityID, StateAlreadyEnrolled)
		result.State = StateAlreadyEnrolled
		return result, apperr.Conflict(apperr.CodeAlreadyEnrolled, "You are already enrolled in this activity")
	}

	// Step 4: Enroll
	w.setState(activityID, StateEligible)
	w.setState(activityID, StateEnrolling)
	enrollment, err := w.client.Enroll(ctx, activityID)
	if err != nil {
		result.State = StateFailed
		switch {
		case apperr.HasCode(err, apperr.CodeNoCapacity):
			w.setState(activityID, StateNoCapacity)
		case apperr.HasCode(err, apperr.CodeAlreadyEnrolled):
			w.setState(activityID, StateAlreadyEnrolled)
		default:
			w.setState(activityID, StateEligible)
		}
		return result, fmt.Errorf("failed to enroll: %w", err)
	}
	w.setState(activityID, StateEnrolled)
	result.State = StateEnrolled
	result.Enrollment = &enrollment

	// Step 5: Re-fetch availability to reflect the new count
	if fresh, err := w.client.Availability(ctx, activityID); err != nil {
		w.logger.Warn("Failed to refresh availability after enroll", zap.Error(err))
		result.Availability = model.NewAvailability(avail.Capacity, avail.Enrolled+1)
	} else {
		result.Availability = fresh
	}

	// Step 6: Calendar artifact and local notification
	activity, err := w.client.GetActivity(ctx, activityID)
	if err != nil {
		w.logger.Warn("Failed to load activity for calendar event", zap.Error(err))
		w.notify("Enrollment confirmed", "You are enrolled in activity "+activityID)
		return result, nil
	}
	event := ics.FromActivity(activity, w.cfg.DefaultDuration, w.cfg.Now())
	result.Event = &event
	result.Delivered = w.deliver(ctx, event)
	w.notify("Enrollment confirmed", fmt.Sprintf("You are enrolled in %s on %s", activity.Name, activity.Date.Local().Format("2006-01-02 15:04")))

	w.logger.Info("Enrolled",
		zap.String("activity_id", activityID),
		zap.Int("available", result.Availability.Available),
		zap.Strings("delivered", result.Delivered))
	return result, nil
}

func (w *EnrollmentWorkflow) isEnrolled(ctx context.Context, activityID string) (bool, error) {
	records, err := w.client.MyEnrollments(ctx)
	if err != nil {
		return false, err
	}
	for _, r := range records {
		if r.ActivityID == activityID {
			return true, nil
		}
	}
	return false, nil
}

func (w *EnrollmentWorkflow) deliver(ctx context.Context, event ics.Event) []string {
	var delivered []string
	for _, sink := range w.cfg.Sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			w.logger.Warn("Failed to deliver calendar event",
				zap.String("sink", sink.Name()),
				zap.Error(err))
			continue
		}
		delivered = append(delivered, sink.Name())
	}
	return delivered
}

func (w *EnrollmentWorkflow) reminder(ctx context.Context, activityID string) *Reminder {
	if w.cfg.ReminderRule == "" {
		return nil
	}
	activity, err := w.client.GetActivity(ctx, activityID)
	if err != nil {
		w.logger.Warn("Failed to load activity for reminder", zap.Error(err))
		return nil
	}
	event, occurrences, err := ics.CapacityReminder(activity, w.cfg.ReminderRule, w.cfg.Now())
	if err != nil {
		w.logger.Debug("No reminder for full activity", zap.Error(err))
		return nil
	}
	return &Reminder{Event: event, Occurrences: occurrences}
}

// UnenrollResult describes the outcome of an unenroll
type UnenrollResult struct {
	Availability model.Availability
}

// Unenroll removes the current user from an activity after confirmation
func (w *EnrollmentWorkflow) Unenroll(ctx context.Context, activityID, reason string, confirm Confirmer) (*UnenrollResult, error) {
	ok, err := confirm.Confirm(ctx, "Leave this activity?")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDeclined
	}

	unlock := w.locks.lock(activityID)
	defer unlock()

	if err := w.client.Unenroll(ctx, activityID, strings.TrimSpace(reason)); err != nil {
		return nil, fmt.Errorf("failed to unenroll: %w", err)
	}
	w.setState(activityID, StateUnknown)
	w.notify("Unenrolled", "You left activity "+activityID)

	return &UnenrollResult{Availability: w.freshAvailability(ctx, activityID)}, nil
}

// AdminUnenroll removes another user from an activity after confirmation
func (w *EnrollmentWorkflow) AdminUnenroll(ctx context.Context, activityID, userID, reason string, confirm Confirmer) (*UnenrollResult, error) {
	ok, err := confirm.Confirm(ctx, fmt.Sprintf("Remove user %s from this activity?", userID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDeclined
	}

	unlock := w.locks.lock(activityID)
	defer unlock()

	if err := w.client.AdminUnenroll(ctx, activityID, userID, strings.TrimSpace(reason)); err != nil {
		return nil, fmt.Errorf("failed to unenroll user %s: %w", userID, err)
	}
	w.notify("User unenrolled", fmt.Sprintf("User %s was removed from activity %s", userID, activityID))
	w.logger.Info("Removed user from activity", zap.String("activity_id", activityID), zap.String("user_id", userID))

	return &UnenrollResult{Availability: w.freshAvailability(ctx, activityID)}, nil
}

func (w *EnrollmentWorkflow) freshAvailability(ctx context.Context, activityID string) model.Availability {
	avail, err := w.client.Availability(ctx, activityID)
	if err != nil {
		w.logger.Warn("Failed to refresh availability", zap.String("activity_id", activityID), zap.Error(err))
	}
	return avail
}

// keyedMutex serializes work per key
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
