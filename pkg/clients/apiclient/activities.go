package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/jakechorley/volunteer-portal/pkg/apperr"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
)

// ListActivities returns all activities
func (c *Client) ListActivities(ctx context.Context) ([]model.Activity, error) {
	var ws []activityWire
	if err := c.call(ctx, request{method: http.MethodGet, path: "/activities"}, &ws); err != nil {
		return nil, err
	}
	activities, err := activitiesToModel(ws)
	if err != nil {
		return nil, apperr.Internal("unexpected activity in response", err)
	}
	return activities, nil
}

// GetActivity finds one activity by id. The backend has no single-activity
// endpoint, so the list is fetched and searched.
func (c *Client) GetActivity(ctx context.Context, id string) (model.Activity, error) {
	activities, err := c.ListActivities(ctx)
	if err != nil {
		return model.Activity{}, err
	}
	for _, a := range activities {
		if a.ID == id {
			return a, nil
		}
	}
	return model.Activity{}, apperr.NotFound("Activity not found")
}

// CreateActivity creates an activity. The request is not validated here.
func (c *Client) CreateActivity(ctx context.Context, req model.ActivityRequest) (model.Activity, error) {
	body, err := jsonBody(activityRequestToWire(req))
	if err != nil {
		return model.Activity{}, err
	}
	var w activityWire
	err = c.call(ctx, request{
		method:      http.MethodPost,
		path:        "/activities",
		body:        body,
		contentType: "application/json",
	}, &w)
	if err != nil {
		return model.Activity{}, err
	}
	a, err := w.toModel()
	if err != nil {
		return model.Activity{}, apperr.Internal("unexpected activity in response", err)
	}
	return a, nil
}

// Availability fetches the current capacity snapshot. Available is always
// derived from capacity and enrolled.
func (c *Client) Availability(ctx context.Context, activityID string) (model.Availability, error) {
	var w availabilityWire
	if err := c.call(ctx, request{method: http.MethodGet, path: pathf("/activities/%s/availability", activityID)}, &w); err != nil {
		return model.Availability{}, err
	}
	return model.NewAvailability(w.Capacity, w.Enrolled), nil
}

// Enroll enrolls the current user
func (c *Client) Enroll(ctx context.Context, activityID string) (model.Enrollment, error) {
	return c.postEnrollment(ctx, request{method: http.MethodPost, path: pathf("/activities/%s/enroll", activityID)})
}

// Unenroll removes the current user's enrollment; reason is optional
func (c *Client) Unenroll(ctx context.Context, activityID, reason string) error {
	return c.call(ctx, request{
		method: http.MethodDelete,
		path:   pathf("/activities/%s/enroll", activityID),
		query:  reasonQuery(reason),
	}, nil)
}

// AdminUnenroll removes another user's enrollment; reason is optional
func (c *Client) AdminUnenroll(ctx context.Context, activityID, userID, reason string) error {
	return c.call(ctx, request{
		method: http.MethodDelete,
		path:   pathf("/activities/%s/unenroll/%s", activityID, userID),
		query:  reasonQuery(reason),
	}, nil)
}

// Roster lists an activity's enrollments with attendance status
func (c *Client) Roster(ctx context.Context, activityID string) ([]model.RosterEntry, error) {
	var ws []rosterWire
	if err := c.call(ctx, request{method: http.MethodGet, path: pathf("/activities/%s/enrollments", activityID)}, &ws); err != nil {
		return nil, err
	}
	entries := make([]model.RosterEntry, 0, len(ws))
	for _, w := range ws {
		e, err := w.toModel()
		if err != nil {
			return nil, apperr.Internal("unexpected roster entry in response", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// AssignVolunteer enrolls the user with userID
func (c *Client) AssignVolunteer(ctx context.Context, activityID, userID string) (model.Enrollment, error) {
	return c.postEnrollment(ctx, request{method: http.MethodPost, path: pathf("/activities/%s/assign/%s", activityID, userID)})
}

// AssignVolunteerByEmail enrolls the user registered with email
func (c *Client) AssignVolunteerByEmail(ctx context.Context, activityID, email string) (model.Enrollment, error) {
	body, err := jsonBody(map[string]string{"email": strings.TrimSpace(email)})
	if err != nil {
		return model.Enrollment{}, err
	}
	return c.postEnrollment(ctx, request{
		method:      http.MethodPost,
		path:        pathf("/activities/%s/assignByEmail", activityID),
		body:        body,
		contentType: "application/json",
	})
}

func (c *Client) postEnrollment(ctx context.Context, r request) (model.Enrollment, error) {
	var w enrollmentWire
	if err := c.call(ctx, r, &w); err != nil {
		return model.Enrollment{}, err
	}
	e, err := w.toModel()
	if err != nil {
		return model.Enrollment{}, apperr.Internal("unexpected enrollment in response", err)
	}
	return e, nil
}

// MarkAttendance marks an enrollment as attended
func (c *Client) MarkAttendance(ctx context.Context, enrollmentID string) (model.AttendanceRecord, error) {
	var w attendanceWire
	if err := c.call(ctx, request{method: http.MethodPost, path: pathf("/activities/attendance/%s/mark", enrollmentID)}, &w); err != nil {
		return model.AttendanceRecord{}, err
	}
	at, err := parseOptionalTime(w.AttendedAt)
	if err != nil {
		return model.AttendanceRecord{}, apperr.Internal("unexpected attendance in response", err)
	}
	return model.AttendanceRecord{
		EnrollmentID: enrollmentID,
		Attended:     w.Attended,
		AttendedAt:   at,
	}, nil
}

// MyEnrollments lists the current user's enrollments with their activities
func (c *Client) MyEnrollments(ctx context.Context) ([]model.EnrollmentRecord, error) {
	var ws []enrollmentRecordWire
	if err := c.call(ctx, request{method: http.MethodGet, path: "/enrollments/me"}, &ws); err != nil {
		return nil, err
	}
	records := make([]model.EnrollmentRecord, 0, len(ws))
	for _, w := range ws {
		r, err := w.toModel()
		if err != nil {
			return nil, apperr.Internal("unexpected enrollment in response", err)
		}
		records = append(records, r)
	}
	return records, nil
}

// SearchVolunteers queries the volunteer directory
func (c *Client) SearchVolunteers(ctx context.Context, q string) ([]model.Volunteer, error) {
	var query url.Values
	if q = strings.TrimSpace(q); q != "" {
		query = url.Values{"q": {q}}
	}
	var ws []volunteerWire
	if err := c.call(ctx, request{method: http.MethodGet, path: "/volunteers", query: query}, &ws); err != nil {
		return nil, err
	}
	result := make([]model.Volunteer, 0, len(ws))
	for _, w := range ws {
		result = append(result, model.Volunteer{
			ID:      string(w.ID),
			Name:    w.Name,
			Email:   w.Email,
			Address: w.Address,
		})
	}
	return result, nil
}
