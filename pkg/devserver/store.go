package devserver

import (
	"strings"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
)

// The *Locked helpers must be called with s.mu held.

func (s *Server) addUserLocked(u *user) {
	s.users[u.ID] = u
	s.usersByEmail[u.Email] = u
}

func (s *Server) addActivityLocked(a *activity) {
	if _, exists := s.activities[a.ID]; !exists {
		s.activityOrder = append(s.activityOrder, a.ID)
	}
	s.activities[a.ID] = a
}

func (s *Server) enrolledCountLocked(activityID string) int {
	n := 0
	for _, e := range s.enrollments {
		if e.ActivityID == activityID {
			n++
		}
	}
	return n
}

func (s *Server) findEnrollmentLocked(activityID, userID string) *enrollment {
	for _, e := range s.enrollments {
		if e.ActivityID == activityID && e.UserID == userID {
			return e
		}
	}
	return nil
}

func (s *Server) notifyLocked(userID, title, message, link string) string {
	n := &notification{
		ID:        newID(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Link:      link,
		CreatedAt: s.now(),
	}
	s.notifications = append(s.notifications, n)
	return n.ID
}

// UserSeed describes a user created directly, bypassing registration
type UserSeed struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Address   string
	Roles     []model.Role
	// Unverified users cannot log in until verified
	Unverified bool
}

// SeedUser adds a user and returns its id
func (s *Server) SeedUser(seed UserSeed) string {
	userRoles := seed.Roles
	if len(userRoles) == 0 {
		userRoles = []model.Role{model.RoleVolunteer}
	}
	u := &user{
		ID:        newID(),
		FirstName: seed.FirstName,
		LastName:  seed.LastName,
		Email:     strings.ToLower(seed.Email),
		Password:  seed.Password,
		Address:   seed.Address,
		Roles:     append([]model.Role(nil), userRoles...),
		Verified:  !seed.Unverified,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.addUserLocked(u)
	if seed.Unverified {
		s.verifyTokens[newID()] = u.ID
	}
	return u.ID
}

// SeedActivity adds an activity and returns its id. A.ID is kept when set.
func (s *Server) SeedActivity(a model.Activity) string {
	if a.ID == "" {
		a.ID = newID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addActivityLocked(&activity{Activity: a})
	return a.ID
}

// SeedEnrollment enrolls a user without capacity checks
func (s *Server) SeedEnrollment(activityID, userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &enrollment{
		ID:         newID(),
		ActivityID: activityID,
		UserID:     userID,
		CreatedAt:  s.now(),
	}
	s.enrollments[e.ID] = e
	return e.ID
}

// Notify adds a server-side notification for a user
func (s *Server) Notify(userID, title, message string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifyLocked(userID, title, message, "")
}

// VerificationToken returns the pending verification token of a user. It
// stands in for the verification email.
func (s *Server) VerificationToken(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return "", false
	}
	for token, userID := range s.verifyTokens {
		if userID == u.ID {
			return token, true
		}
	}
	return "", false
}

// EnrolledCount returns the number of enrollments of an activity
func (s *Server) EnrolledCount(activityID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enrolledCountLocked(activityID)
}

// UnenrollEvents returns the recorded unenrollments
func (s *Server) UnenrollEvents() []UnenrollEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UnenrollEvent(nil), s.unenrollLog...)
}

// RemoveRole revokes a role from a user
func (s *Server) RemoveRole(userID string, role model.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return
	}
	kept := u.Roles[:0]
	for _, r := range u.Roles {
		if r != role {
			kept = append(kept, r)
		}
	}
	u.Roles = kept
}
