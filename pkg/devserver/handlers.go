package devserver

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jakechorley/volunteer-portal/pkg/apperr"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/roles"
)

const maxAvatarUpload = 2 << 20

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func optionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func activityJSON(a *activity) gin.H {
	h := gin.H{
		"id":          a.ID,
		"name":        a.Name,
		"description": a.Description,
		"scheduledAt": formatTime(a.Date),
		"location":    a.Location,
		"city":        a.City,
		"department":  a.Department,
		"type":        a.Type,
		"project":     a.Project,
		"capacity":    a.Capacity,
		"createdById": a.CreatorID,
	}
	if a.DurationHours > 0 {
		h["durationHours"] = a.DurationHours
	}
	return h
}

func enrollmentJSON(e *enrollment) gin.H {
	return gin.H{
		"id":         e.ID,
		"activityId": e.ActivityID,
		"userId":     e.UserID,
		"createdAt":  formatTime(e.CreatedAt),
	}
}

func profileJSON(u *user) gin.H {
	roleObjs := make([]gin.H, len(u.Roles))
	for i, r := range u.Roles {
		roleObjs[i] = gin.H{"name": string(r)}
	}
	h := gin.H{
		"id":        u.ID,
		"firstName": u.FirstName,
		"lastName":  u.LastName,
		"email":     u.Email,
		"phone":     u.Phone,
		"address":   u.Address,
		"skills":    u.Skills,
		"roles":     roleObjs,
	}
	if u.AvatarRef != "" {
		h["avatarUrl"] = u.AvatarRef
	}
	return h
}

// ---- Profile ----

func (s *Server) getProfile(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, profileJSON(s.users[c.GetString(userIDKey)]))
}

type profileBody struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	Skills    string `json:"skills"`
}

func (s *Server) updateProfile(c *gin.Context) {
	var body profileBody
	if data := c.PostForm("data"); data != "" {
		if err := json.Unmarshal([]byte(data), &body); err != nil {
			jsonError(c, http.StatusBadRequest, apperr.CodeInvalidInput, "Invalid profile data")
			return
		}
	}

	var upload *avatar
	var uploadName string
	if fh, err := c.FormFile("avatar"); err == nil {
		if fh.Size > maxAvatarUpload {
			jsonError(c, http.StatusBadRequest, apperr.CodeInvalidInput, "Avatar is too large")
			return
		}
		f, err := fh.Open()
		if err != nil {
			jsonError(c, http.StatusBadRequest, apperr.CodeInvalidInput, "Unreadable avatar")
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			jsonError(c, http.StatusBadRequest, apperr.CodeInvalidInput, "Unreadable avatar")
			return
		}
		upload = &avatar{ContentType: http.DetectContentType(data), Data: data}
		uploadName = fh.Filename
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.users[c.GetString(userIDKey)]
	if body.FirstName != "" {
		u.FirstName = strings.TrimSpace(body.FirstName)
	}
	if body.LastName != "" {
		u.LastName = strings.TrimSpace(body.LastName)
	}
	if body.Phone != "" {
		u.Phone = body.Phone
	}
	if body.Address != "" {
		u.Address = body.Address
	}
	if body.Skills != "" {
		u.Skills = body.Skills
	}
	if upload != nil {
		ref := newID() + strings.ToLower(filepath.Ext(uploadName))
		s.avatars[ref] = *upload
		u.AvatarRef = ref
	}

	c.JSON(http.StatusOK, profileJSON(u))
}

func (s *Server) getAvatar(c *gin.Context) {
	s.mu.Lock()
	a, ok := s.avatars[c.Param("ref")]
	s.mu.Unlock()
	if !ok {
		jsonError(c, http.StatusNotFound, apperr.CodeNotFound, "Avatar not found")
		return
	}
	c.Data(http.StatusOK, a.ContentType, a.Data)
}

func (s *Server) updateRole(c *gin.Context) {
	var body struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, apperr.CodeInvalidInput, "Role is required")
		return
	}
	role, ok := roles.Normalize(body.Role)
	if !ok {
		jsonError(c, http.StatusBadRequest, apperr.CodeInvalidInput, "Unknown role")
		return
	}
	if role == model.RoleAdmin {
		jsonError(c, http.StatusForbidden, apperr.CodeForbidden, "The admin role cannot be requested")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.users[c.GetString(userIDKey)]
	if !model.ContainsRole(u.Roles, role) {
		u.Roles = append(u.Roles, role)
	}
	names := make([]string, len(u.Roles))
	for i, r := range u.Roles {
		names[i] = string(r)
	}
	c.JSON(http.StatusOK, gin.H{"role": string(role), "roles": names})
}

// ---- Activities ----

func (s *Server) listActivities(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]gin.H, 0, len(s.activityOrder))
	for _, id := range s.activityOrder {
		result = append(result, activityJSON(s.activities[id]))
	}
	c.JSON(http.StatusOK, result)
}

type activityBody struct {
	Name          string   `json:"name" binding:"required"`
	Description   string   `json:"description"`
	ScheduledAt   string   `json:"scheduledAt" binding:"required"`
	Location      string   `json:"location"`
	City          string   `json:"city"`
	Department    string   `json:"department"`
	Type          string   `json:"type"`
	Project       string   `json:"project"`
	DurationHours *float64 `json:"durationHours"`
	Capacity      int      `json:"capacity" binding:"min=1"`
}

func (s *Server) createActivity(c *gin.Context) {
	var body activityBody
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, apperr.CodeInvalidInput, "Invalid activity: "+err.Error())
		return
	}
	date, err := time.Parse(time.RFC3339, body.ScheduledAt)
	if err != nil {
		jsonError(c, http.StatusBadRequest, apperr.CodeInvalidInput, "scheduledAt must be an RFC 3339 timestamp")
		return
	}

	a := &activity{Activity: model.Activity{
		ID:          newID(),
		Name:        body.Name,
		Description: body.Description,
		Date:        date,
		Location:    body.Location,
		City:        body.City,
		Department:  body.Department,
		Type:        body.Type,
		Project:     body.Project,
		Capacity:    body.Capacity,
		CreatorID:   c.GetString(userIDKey),
	}}
	if body.DurationHours != nil {
		a.DurationHours = *body.DurationHours
	}

	s.mu.Lock()
	s.addActivityLocked(a)
	s.mu.Unlock()

	c.JSON(http.StatusCreated, activityJSON(a))
}

func (s *Server) availability(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.activities[c.Param("id")]
	if !ok {
		jsonError(c, http.StatusNotFound, apperr.CodeNotFound, "Activity not found")
		return
	}
	avail := model.NewAvailability(a.Capacity, s.enrolledCountLocked(a.ID))
	c.JSON(http.StatusOK, gin.H{
		"capacity":  avail.Capacity,
		"enrolled":  avail.Enrolled,
		"available": avail.Available,
	})
}

// ---- Enrollments ----

func (s *Server) enroll(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollLocked(c, c.Param("id"), c.GetString(userIDKey))
}

// enrollLocked checks capacity and duplicates and writes the enrollment
// under the same lock
func (s *Server) enrollLocked(c *gin.Context, activityID, userID string) {
	a, ok := s.activities[activityID]
	if !ok {
		jsonError(c, http.StatusNotFound, apperr.CodeNotFound, "Activity not found")
		return
	}
	u, ok := s.users[userID]
	if !ok {
		jsonError(c, http.StatusNotFound, apperr.CodeNotFound, "User not found")
		return
	}
	if s.findEnrollmentLocked(activityID, userID) != nil {
		jsonError(c, http.StatusConflict, apperr.CodeAlreadyEnrolled, "Already enrolled in this activity")
		return
	}
	if s.enrolledCountLocked(activityID) >= a.Capacity {
		jsonError(c, http.StatusConflict, apperr.CodeNoCapacity, "No places left for this activity")
		return
	}

	e := &enrollment{
		ID:         newID(),
		ActivityID: activityID,
		UserID:     u.ID,
		CreatedAt:  s.now(),
	}
	s.enrollments[e.ID] = e
	s.notifyLocked(u.ID, "Enrollment confirmed", "You are enrolled in "+a.Name, "/activities/"+a.ID)

	c.JSON(http.StatusCreated, enrollmentJSON(e))
}

func (s *Server) unenroll(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID := c.GetString(userIDKey)
	s.unenrollLocked(c, c.Param("id"), userID, userID, c.Query("reason"))
}

func (s *Server) adminUnenroll(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unenrollLocked(c, c.Param("id"), c.Param("userId"), c.GetString(userIDKey), c.Query("reason"))
}

func (s *Server) unenrollLocked(c *gin.Context, activityID, userID, byUserID, reason string) {
	e := s.findEnrollmentLocked(activityID, userID)
	if e == nil {
		jsonError(c, http.StatusNotFound, apperr.CodeNotEnrolled, "Enrollment not found")
		return
	}
	delete(s.enrollments, e.ID)
	s.unenrollLog = append(s.unenrollLog, UnenrollEvent{
		ActivityID: activityID,
		UserID:     userID,
		ByUserID:   byUserID,
		Reason:     reason,
	})
	if byUserID != userID {
		name := s.activities[activityID].Name
		s.notifyLocked(userID, "Enrollment cancelled", "A coordinator removed you from "+name, "")
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) myEnrollments(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID := c.GetString(userIDKey)
	mine := make([]*enrollment, 0)
	for _, e := range s.enrollments {
		if e.UserID == userID {
			mine = append(mine, e)
		}
	}
	sort.Slice(mine, func(i, j int) bool { return mine[i].CreatedAt.Before(mine[j].CreatedAt) })

	result := make([]gin.H, 0, len(mine))
	for _, e := range mine {
		h := enrollmentJSON(e)
		h["activity"] = activityJSON(s.activities[e.ActivityID])
		result = append(result, h)
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) roster(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	activityID := c.Param("id")
	if _, ok := s.activities[activityID]; !ok {
		jsonError(c, http.StatusNotFound, apperr.CodeNotFound, "Activity not found")
		return
	}

	entries := make([]*enrollment, 0)
	for _, e := range s.enrollments {
		if e.ActivityID == activityID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })

	result := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		u := s.users[e.UserID]
		result = append(result, gin.H{
			"enrollmentId": e.ID,
			"userId":       e.UserID,
			"name":         u.name(),
			"email":        u.Email,
			"attended":     e.Attended,
			"attendedAt":   optionalTime(e.AttendedAt),
		})
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) assign(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollLocked(c, c.Param("id"), c.Param("userId"))
}

func (s *Server) assignByEmail(c *gin.Context) {
	var body struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, apperr.CodeInvalidInput, "A valid email is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByEmail[strings.ToLower(strings.TrimSpace(body.Email))]
	if !ok {
		jsonError(c, http.StatusNotFound, apperr.CodeNotFound, "No user registered with that email")
		return
	}
	s.enrollLocked(c, c.Param("id"), u.ID)
}

func (s *Server) markAttendance(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.enrollments[c.Param("enrollmentId")]
	if !ok {
		jsonError(c, http.StatusNotFound, apperr.CodeNotFound, "Enrollment not found")
		return
	}
	if e.Attended {
		jsonError(c, http.StatusConflict, apperr.CodeAlreadyAttended, "Attendance already recorded")
		return
	}
	now := s.now()
	e.Attended = true
	e.AttendedAt = &now

	c.JSON(http.StatusOK, gin.H{"attended": true, "attendedAt": formatTime(now)})
}

func (s *Server) searchVolunteers(c *gin.Context) {
	terms := strings.Fields(strings.ToLower(c.Query("q")))

	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]gin.H, 0)
	for _, u := range s.users {
		if !u.Verified {
			continue
		}
		if !matchesAny(strings.ToLower(u.name()+" "+u.Email), terms) {
			continue
		}
		result = append(result, gin.H{
			"id":      u.ID,
			"name":    u.name(),
			"email":   u.Email,
			"address": u.Address,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i]["name"].(string) < result[j]["name"].(string)
	})
	c.JSON(http.StatusOK, result)
}

func matchesAny(haystack string, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	for _, t := range terms {
		if strings.Contains(haystack, t) {
			return true
		}
	}
	return false
}

// ---- Notifications ----

func (s *Server) listNotifications(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID := c.GetString(userIDKey)
	result := make([]gin.H, 0)
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if n.UserID != userID {
			continue
		}
		result = append(result, gin.H{
			"id":        n.ID,
			"title":     n.Title,
			"message":   n.Message,
			"link":      n.Link,
			"createdAt": formatTime(n.CreatedAt),
			"read":      n.Read,
			"priority":  n.Priority,
		})
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) unreadCount(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID := c.GetString(userIDKey)
	count := 0
	for _, n := range s.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	c.JSON(http.StatusOK, count)
}

func (s *Server) markNotificationRead(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID := c.GetString(userIDKey)
	for _, n := range s.notifications {
		if n.ID == c.Param("id") && n.UserID == userID {
			n.Read = true
			c.Status(http.StatusNoContent)
			return
		}
	}
	jsonError(c, http.StatusNotFound, apperr.CodeNotFound, "Notification not found")
}
