package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/validation"
)

const maxConcurrentAvailabilityRequests = 8

// ActivityAvailability pairs an activity with freshly fetched availability
type ActivityAvailability struct {
	Activity     model.Activity
	Availability model.Availability
}

// ListActivitiesWithAvailability lists activities and fetches the
// availability of each one concurrently
func ListActivitiesWithAvailability(ctx context.Context, client ActivityClient, logger *zap.Logger) ([]ActivityAvailability, error) {
	logger.Debug("Fetching activities")
	activities, err := client.ListActivities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}

	out := make([]ActivityAvailability, len(activities))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentAvailabilityRequests)
	for i, a := range activities {
		out[i].Activity = a
		g.Go(func() error {
			avail, err := client.Availability(gctx, a.ID)
			if err != nil {
				return fmt.Errorf("failed to fetch availability for activity %s: %w", a.ID, err)
			}
			out[i].Availability = avail
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Debug("Fetched availability", zap.Int("activities", len(out)))
	return out, nil
}

// AvailableActivities returns only the activities with free places, using
// availability fetched now
func AvailableActivities(ctx context.Context, client ActivityClient, logger *zap.Logger) ([]ActivityAvailability, error) {
	all, err := ListActivitiesWithAvailability(ctx, client, logger)
	if err != nil {
		return nil, err
	}
	var available []ActivityAvailability
	for _, a := range all {
		if a.Availability.HasCapacity() {
			available = append(available, a)
		}
	}
	return available, nil
}

// ShowActivity loads one activity with its current availability
func ShowActivity(ctx context.Context, client ActivityClient, activityID string) (*ActivityAvailability, error) {
	activity, err := client.GetActivity(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load activity: %w", err)
	}
	avail, err := client.Availability(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch availability: %w", err)
	}
	return &ActivityAvailability{Activity: activity, Availability: avail}, nil
}

// CreateActivity validates the request and creates the activity. Invalid
// requests fail with a ValidationError before any network call.
func CreateActivity(ctx context.Context, client ActivityClient, v *validation.Validator, logger *zap.Logger, req model.ActivityRequest) (*model.Activity, error) {
	if err := v.Struct(req, "The activity is not valid"); err != nil {
		return nil, err
	}

	activity, err := client.CreateActivity(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create activity: %w", err)
	}

	logger.Info("Created activity", zap.String("id", activity.ID), zap.String("name", activity.Name))
	return &activity, nil
}
