package apiclient

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/roles"
)

// wireTimeLayouts are tried in order; zone-less values are read as local time
var wireTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseWireTime parses a timestamp as the backend formats it
func ParseWireTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for i, layout := range wireTimeLayouts {
		loc := time.UTC
		if i > 0 {
			loc = time.Local
		}
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// FormatWireTime formats a timestamp for the backend
func FormatWireTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseOptionalTime(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := ParseWireTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// flexID accepts identifiers serialized as JSON strings or numbers
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", string(b), err)
	}
	*f = flexID(n.String())
	return nil
}

type activityWire struct {
	ID            flexID   `json:"id,omitempty"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	ScheduledAt   string   `json:"scheduledAt"`
	Location      string   `json:"location"`
	City          string   `json:"city,omitempty"`
	Department    string   `json:"department,omitempty"`
	Type          string   `json:"type,omitempty"`
	Project       string   `json:"project,omitempty"`
	DurationHours *float64 `json:"durationHours,omitempty"`
	Capacity      int      `json:"capacity"`
	CreatedByID   flexID   `json:"createdById,omitempty"`
}

func (w activityWire) toModel() (model.Activity, error) {
	date, err := ParseWireTime(w.ScheduledAt)
	if err != nil {
		return model.Activity{}, fmt.Errorf("activity %s: %w", w.ID, err)
	}
	a := model.Activity{
		ID:          string(w.ID),
		Name:        w.Name,
		Description: w.Description,
		Date:        date,
		Location:    w.Location,
		City:        w.City,
		Department:  w.Department,
		Type:        w.Type,
		Project:     w.Project,
		Capacity:    w.Capacity,
		CreatorID:   string(w.CreatedByID),
	}
	if w.DurationHours != nil {
		a.DurationHours = *w.DurationHours
	}
	return a, nil
}

func activityRequestToWire(r model.ActivityRequest) activityWire {
	w := activityWire{
		Name:        strings.TrimSpace(r.Name),
		Description: strings.TrimSpace(r.Description),
		ScheduledAt: FormatWireTime(r.Date),
		Location:    strings.TrimSpace(r.Location),
		City:        strings.TrimSpace(r.City),
		Department:  strings.TrimSpace(r.Department),
		Type:        strings.TrimSpace(r.Type),
		Project:     strings.TrimSpace(r.Project),
		Capacity:    r.Capacity,
	}
	if r.DurationHours > 0 {
		d := r.DurationHours
		w.DurationHours = &d
	}
	return w
}

func activitiesToModel(ws []activityWire) ([]model.Activity, error) {
	result := make([]model.Activity, 0, len(ws))
	for _, w := range ws {
		a, err := w.toModel()
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, nil
}

type profileWire struct {
	ID        flexID       `json:"id"`
	FirstName string       `json:"firstName"`
	LastName  string       `json:"lastName"`
	Email     string       `json:"email"`
	Phone     string       `json:"phone"`
	Address   string       `json:"address"`
	Skills    string       `json:"skills"`
	Roles     *[]roles.Raw `json:"roles"`
	Role      *roles.Raw   `json:"role"`
	AvatarURL string       `json:"avatarUrl"`
}

func (w profileWire) toModel() model.Profile {
	p := model.Profile{
		ID:        string(w.ID),
		FirstName: w.FirstName,
		LastName:  w.LastName,
		Email:     w.Email,
		Phone:     w.Phone,
		Address:   w.Address,
		Skills:    w.Skills,
		AvatarRef: w.AvatarURL,
	}
	if w.Roles != nil {
		p.RolesListed = true
		p.Roles = roles.ResolveAll(*w.Roles)
	}
	if w.Role != nil {
		if r, ok := roles.Resolve(*w.Role); ok {
			p.PrimaryRole = r
		}
	}
	return p
}

type loginWire struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expiresAt"`
	Email     string      `json:"email"`
	Roles     []roles.Raw `json:"roles"`
	Role      string      `json:"role"`
}

func (w loginWire) toModel() model.LoginResult {
	res := model.LoginResult{
		Token: w.Token,
		Email: w.Email,
		Roles: roles.ResolveAll(w.Roles),
	}
	// expiresAt is informational; an unparsable value is left zero
	if t, err := ParseWireTime(w.ExpiresAt); err == nil {
		res.ExpiresAt = t
	}
	res.RawRole = w.Role
	if res.RawRole == "" {
		for _, r := range w.Roles {
			if r.Shape != roles.ShapeUnknown && r.Text != "" {
				res.RawRole = r.Text
				break
			}
		}
	}
	return res
}

type enrollmentWire struct {
	ID         flexID `json:"id"`
	ActivityID flexID `json:"activityId"`
	UserID     flexID `json:"userId"`
	CreatedAt  string `json:"createdAt"`
}

func (w enrollmentWire) toModel() (model.Enrollment, error) {
	created, err := ParseWireTime(w.CreatedAt)
	if err != nil {
		return model.Enrollment{}, err
	}
	return model.Enrollment{
		ID:         string(w.ID),
		ActivityID: string(w.ActivityID),
		UserID:     string(w.UserID),
		CreatedAt:  created,
	}, nil
}

type enrollmentRecordWire struct {
	ID         flexID       `json:"id"`
	ActivityID flexID       `json:"activityId"`
	CreatedAt  string       `json:"createdAt"`
	Activity   activityWire `json:"activity"`
}

func (w enrollmentRecordWire) toModel() (model.EnrollmentRecord, error) {
	created, err := ParseWireTime(w.CreatedAt)
	if err != nil {
		return model.EnrollmentRecord{}, err
	}
	activity, err := w.Activity.toModel()
	if err != nil {
		return model.EnrollmentRecord{}, err
	}
	activityID := string(w.ActivityID)
	if activityID == "" {
		activityID = activity.ID
	}
	return model.EnrollmentRecord{
		ID:         string(w.ID),
		ActivityID: activityID,
		CreatedAt:  created,
		Activity:   activity,
	}, nil
}

type rosterWire struct {
	EnrollmentID flexID `json:"enrollmentId"`
	UserID       flexID `json:"userId"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Attended     bool   `json:"attended"`
	AttendedAt   string `json:"attendedAt"`
}

func (w rosterWire) toModel() (model.RosterEntry, error) {
	at, err := parseOptionalTime(w.AttendedAt)
	if err != nil {
		return model.RosterEntry{}, err
	}
	return model.RosterEntry{
		EnrollmentID: string(w.EnrollmentID),
		UserID:       string(w.UserID),
		Name:         w.Name,
		Email:        w.Email,
		Attended:     w.Attended,
		AttendedAt:   at,
	}, nil
}

type attendanceWire struct {
	Attended   bool   `json:"attended"`
	AttendedAt string `json:"attendedAt"`
}

type availabilityWire struct {
	Capacity int `json:"capacity"`
	Enrolled int `json:"enrolled"`
}

type volunteerWire struct {
	ID      flexID `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

type notificationWire struct {
	ID        flexID `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Link      string `json:"link"`
	CreatedAt string `json:"createdAt"`
	Read      bool   `json:"read"`
	Priority  bool   `json:"priority"`
}

func (w notificationWire) toModel() (model.NotificationItem, error) {
	created, err := ParseWireTime(w.CreatedAt)
	if err != nil {
		return model.NotificationItem{}, err
	}
	return model.NotificationItem{
		ID:        string(w.ID),
		Title:     w.Title,
		Message:   w.Message,
		Link:      w.Link,
		CreatedAt: created,
		Read:      w.Read,
		Priority:  w.Priority,
	}, nil
}

// unreadCount accepts a bare number or an object carrying the count
type unreadCount int

func (u *unreadCount) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*u = unreadCount(n)
		return nil
	}
	var obj struct {
		Count  *int `json:"count"`
		Unread *int `json:"unread"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("invalid unread count %s: %w", string(b), err)
	}
	switch {
	case obj.Count != nil:
		*u = unreadCount(*obj.Count)
	case obj.Unread != nil:
		*u = unreadCount(*obj.Unread)
	}
	return nil
}

type roleGrantWire struct {
	Role  string   `json:"role"`
	Roles []string `json:"roles"`
}
