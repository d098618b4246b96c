package model

import (
	"strings"
	"time"
	"unicode"
)

// Role is a canonical role identifier
type Role string

const (
	RoleVolunteer   Role = "VOLUNTARIO"
	RoleCoordinator Role = "COORDINADOR"
	RoleAdmin       Role = "ADMIN"
)

func (r Role) IsValid() bool {
	return r == RoleVolunteer || r == RoleCoordinator || r == RoleAdmin
}

// IsCoordinating reports whether the role may manage other volunteers' enrollments
func (r Role) IsCoordinating() bool {
	return r == RoleCoordinator || r == RoleAdmin
}

// ContainsRole reports whether role is present in roles
func ContainsRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Profile represents the authenticated user's profile as returned by the backend
type Profile struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Address   string
	Skills    string
	Roles     []Role
	// RolesListed is false when the backend omitted the roles list entirely
	RolesListed bool
	// PrimaryRole is the single "role" field some backend versions return
	PrimaryRole Role
	AvatarRef   string
}

// FullName joins first and last name
func (p Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Initials is the avatar fallback shown when no avatar can be loaded
func (p Profile) Initials() string {
	var b strings.Builder
	for _, part := range []string{p.FirstName, p.LastName} {
		for _, r := range strings.TrimSpace(part) {
			b.WriteRune(unicode.ToUpper(r))
			break
		}
	}
	if b.Len() == 0 && p.Email != "" {
		for _, r := range p.Email {
			b.WriteRune(unicode.ToUpper(r))
			break
		}
	}
	return b.String()
}

// ProfileUpdate holds the editable profile fields
type ProfileUpdate struct {
	FirstName string `json:"firstName,omitempty" validate:"omitempty,min=2"`
	LastName  string `json:"lastName,omitempty" validate:"omitempty,min=2"`
	Phone     string `json:"phone,omitempty" validate:"omitempty,min=8"`
	Address   string `json:"address,omitempty" validate:"omitempty,min=4"`
	Skills    string `json:"skills,omitempty"`
}

// Avatar is an image file uploaded with a profile update
type Avatar struct {
	FileName string
	Data     []byte
}

// Credentials are the login inputs
type Credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// RegisterRequest is the account registration payload
type RegisterRequest struct {
	FirstName string `json:"firstName" validate:"required,min=2"`
	LastName  string `json:"lastName,omitempty" validate:"omitempty,min=2"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	Phone     string `json:"phone,omitempty" validate:"omitempty,min=8"`
	Address   string `json:"address,omitempty" validate:"omitempty,min=4"`
	Skills    string `json:"skills,omitempty"`
	Role      Role   `json:"role" validate:"required,oneof=VOLUNTARIO COORDINADOR"`
}

// LoginResult is the outcome of a successful login
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Email     string
	// RawRole is the role as the backend reported it, before normalization
	RawRole string
	Roles   []Role
}

// RoleGrant is the backend's answer to a role request
type RoleGrant struct {
	Role  Role
	Roles []Role
}

// Activity represents a volunteering activity
type Activity struct {
	ID            string
	Name          string
	Description   string
	Date          time.Time
	Location      string
	City          string
	Department    string
	Type          string
	Project       string
	DurationHours float64 // 0 when unknown
	Capacity      int
	CreatorID     string
}

// ActivityRequest is the payload for creating an activity
type ActivityRequest struct {
	Name          string    `validate:"required,trimmedlen=5-100"`
	Description   string    `validate:"required,trimmedlen=20-1000"`
	Date          time.Time `validate:"required,leadtime"`
	Location      string    `validate:"required,trimmedlen=3-500"`
	City          string    `validate:"required,trimmedlen=2-100"`
	Department    string    `validate:"required,trimmedlen=2-100"`
	Type          string
	Project       string
	DurationHours float64 `validate:"gte=0"`
	Capacity      int     `validate:"min=1,max=500"`
}

// Availability is the capacity snapshot of an activity
type Availability struct {
	Capacity  int
	Enrolled  int
	Available int
}

// NewAvailability derives the available count from capacity and enrolled
func NewAvailability(capacity, enrolled int) Availability {
	available := capacity - enrolled
	if available < 0 {
		available = 0
	}
	return Availability{
		Capacity:  capacity,
		Enrolled:  enrolled,
		Available: available,
	}
}

// HasCapacity reports whether at least one seat is free
func (a Availability) HasCapacity() bool {
	return a.Available > 0
}

// Enrollment represents a user's registration for one activity
type Enrollment struct {
	ID         string
	ActivityID string
	UserID     string
	CreatedAt  time.Time
}

// EnrollmentRecord is an entry of the personal history
type EnrollmentRecord struct {
	ID         string
	ActivityID string
	CreatedAt  time.Time
	Activity   Activity
}

// AttendanceRecord tracks whether an enrolled volunteer attended
type AttendanceRecord struct {
	EnrollmentID string
	Attended     bool
	AttendedAt   *time.Time
}

// RosterEntry is an enrollment as seen by a coordinator
type RosterEntry struct {
	EnrollmentID string
	UserID       string
	Name         string
	Email        string
	Attended     bool
	AttendedAt   *time.Time
}

// Attendance returns the attendance part of the entry
func (e RosterEntry) Attendance() AttendanceRecord {
	return AttendanceRecord{
		EnrollmentID: e.EnrollmentID,
		Attended:     e.Attended,
		AttendedAt:   e.AttendedAt,
	}
}

// Volunteer is a search result from the volunteer directory
type Volunteer struct {
	ID      string
	Name    string
	Email   string
	Address string
}

// NotificationItem is a notification shown to the user
type NotificationItem struct {
	ID        string
	Title     string
	Message   string
	Link      string
	CreatedAt time.Time
	Read      bool
	Priority  bool
	// Local items were recorded by this client and are unknown to the backend
	Local bool
}
