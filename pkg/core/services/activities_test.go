package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/apperr"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/validation"
	"github.com/jakechorley/volunteer-portal/pkg/devserver"
)

func TestAvailableActivities_OnlyWithFreePlaces(t *testing.T) {
	f := newBackend(t)
	user := f.backend.SeedUser(devserver.UserSeed{FirstName: "Ana", Email: "ana@example.org"})
	other := f.backend.SeedUser(devserver.UserSeed{FirstName: "Ben", Email: "ben@example.org"})
	open := f.seedActivity(2)
	full := f.seedActivity(1)
	f.backend.SeedEnrollment(full, other)

	client := f.clientFor(t, user)

	all, err := ListActivitiesWithAvailability(context.Background(), client, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	available, err := AvailableActivities(context.Background(), client, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, open, available[0].Activity.ID)
	assert.Equal(t, model.Availability{Capacity: 2, Enrolled: 0, Available: 2}, available[0].Availability)
}

func TestShowActivity(t *testing.T) {
	f := newBackend(t)
	user := f.backend.SeedUser(devserver.UserSeed{FirstName: "Ana", Email: "ana@example.org"})
	activityID := f.seedActivity(4)
	f.backend.SeedEnrollment(activityID, user)

	shown, err := ShowActivity(context.Background(), f.clientFor(t, user), activityID)
	require.NoError(t, err)
	assert.Equal(t, "Beach clean up", shown.Activity.Name)
	assert.Equal(t, 3, shown.Availability.Available)

	_, err = ShowActivity(context.Background(), f.clientFor(t, user), "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func validActivityRequest(now time.Time) model.ActivityRequest {
	return model.ActivityRequest{
		Name:        "Community garden",
		Description: "Help prepare the beds for the spring season",
		Date:        now.Add(72 * time.Hour),
		Location:    "Calle Mayor 3",
		City:        "Sevilla",
		Department:  "Andalucia",
		Capacity:    10,
	}
}

func TestCreateActivity(t *testing.T) {
	f := newBackend(t)
	coord := f.backend.SeedUser(devserver.UserSeed{FirstName: "Cora", Email: "cora@example.org", Roles: []model.Role{model.RoleCoordinator}})
	client := f.clientFor(t, coord)
	now := time.Now()
	v := validation.New(func() time.Time { return now })

	created, err := CreateActivity(context.Background(), client, v, zap.NewNop(), validActivityRequest(now))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Community garden", created.Name)
	assert.Equal(t, 1, f.backend.RequestCount(http.MethodPost, "/api/v1/activities"))
}

func TestCreateActivity_InvalidNeverReachesBackend(t *testing.T) {
	f := newBackend(t)
	coord := f.backend.SeedUser(devserver.UserSeed{FirstName: "Cora", Email: "cora@example.org", Roles: []model.Role{model.RoleCoordinator}})
	client := f.clientFor(t, coord)
	now := time.Now()
	v := validation.New(func() time.Time { return now })

	req := validActivityRequest(now)
	req.Name = "  ab  "
	req.Date = now.Add(time.Hour)
	req.Capacity = 0

	_, err := CreateActivity(context.Background(), client, v, zap.NewNop(), req)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	appErr, ok := apperr.As(err)
	require.True(t, ok)
	var fields []string
	for _, fe := range appErr.Fields {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"name", "date", "capacity"}, fields)
	assert.Equal(t, 0, f.backend.RequestCount(http.MethodPost, "/api/v1/activities"))
}
