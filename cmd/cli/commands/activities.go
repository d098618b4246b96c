package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/access"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/services"
)

const activityDateLayout = "Mon 02/01/2006 15:04"

// availabilityColor picks the colour for free places: orange when three or
// fewer are left, yellow when at most half, green otherwise
func availabilityColor(available, capacity int, green, yellow, orange string) string {
	if available <= 3 {
		return orange
	}
	if available <= capacity/2 {
		return yellow
	}
	return green
}

var (
	placesGreen  = color.New(color.FgGreen)
	placesYellow = color.New(color.FgYellow)
	placesOrange = color.New(color.FgHiRed)
)

func placesCell(a model.Availability) string {
	cell := fmt.Sprintf("%d/%d free", a.Available, a.Capacity)
	if a.Available == 0 {
		return dimColor.Sprint("full")
	}
	switch availabilityColor(a.Available, a.Capacity, "green", "yellow", "orange") {
	case "green":
		return placesGreen.Sprint(cell)
	case "yellow":
		return placesYellow.Sprint(cell)
	default:
		return placesOrange.Sprint(cell)
	}
}

func printActivities(out io.Writer, list []services.ActivityAvailability) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No activities found.")
		return
	}

	nameWidth := 20
	for _, a := range list {
		if len(a.Activity.Name) > nameWidth {
			nameWidth = len(a.Activity.Name)
		}
	}

	fmt.Fprintf(out, "\n%-38s %-*s %-22s %s\n", "ID", nameWidth, "Activity", "Date", "Places")
	fmt.Fprintln(out, strings.Repeat("-", 38+nameWidth+22+14))
	for _, a := range list {
		fmt.Fprintf(out, "%-38s %-*s %-22s %s\n",
			a.Activity.ID,
			nameWidth, a.Activity.Name,
			a.Activity.Date.Local().Format(activityDateLayout),
			placesCell(a.Availability))
	}
	fmt.Fprintln(out)
}

// ListActivitiesCmd creates the listActivities command
func ListActivitiesCmd(app *AppContext) *cobra.Command {
	var availableOnly bool

	cmd := &cobra.Command{
		Use:   "listActivities",
		Short: "List activities with their current availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Logger.Debug("listActivities command", zap.Bool("available", availableOnly))

			var list []services.ActivityAvailability
			var err error
			if availableOnly {
				list, err = services.AvailableActivities(app.Ctx, app.API, app.Logger)
			} else {
				list, err = services.ListActivitiesWithAvailability(app.Ctx, app.API, app.Logger)
			}
			if err != nil {
				return err
			}

			printActivities(cmd.OutOrStdout(), list)
			return nil
		},
	}

	cmd.Flags().BoolVar(&availableOnly, "available", false, "Only activities with free places")
	return cmd
}

// ShowActivityCmd creates the showActivity command
func ShowActivityCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "showActivity <activity_id>",
		Short: "Show one activity and its availability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shown, err := services.ShowActivity(app.Ctx, app.API, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			a := shown.Activity
			fmt.Fprintf(out, "\n%s\n", color.New(color.Bold).Sprint(a.Name))
			fmt.Fprintf(out, "Date:     %s\n", a.Date.Local().Format(activityDateLayout))
			fmt.Fprintf(out, "Where:    %s, %s (%s)\n", a.Location, a.City, a.Department)
			if a.Type != "" || a.Project != "" {
				fmt.Fprintf(out, "Type:     %s  Project: %s\n", a.Type, a.Project)
			}
			fmt.Fprintf(out, "Places:   %s\n\n", placesCell(shown.Availability))
			fmt.Fprintln(out, a.Description)

			if app.Session.Snapshot().Authenticated() {
				fmt.Fprintf(out, "\nYour status: %s\n", app.Workflow.State(a.ID))
			}
			return nil
		},
	}
}

// CreateActivityCmd creates the createActivity command
func CreateActivityCmd(app *AppContext) *cobra.Command {
	var req model.ActivityRequest
	var date string

	cmd := &cobra.Command{
		Use:   "createActivity",
		Short: "Create an activity (coordinators)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Require(access.CreateActivity); err != nil {
				return err
			}

			if date != "" {
				parsed, err := time.ParseInLocation("2006-01-02 15:04", date, time.Local)
				if err != nil {
					return fmt.Errorf("date must look like 2006-01-02 15:04: %w", err)
				}
				req.Date = parsed
			}

			activity, err := services.CreateActivity(app.Ctx, app.API, app.Validate, app.Logger, req)
			if err != nil {
				return err
			}

			success(cmd.OutOrStdout(), "Activity created: %s (%s)", activity.Name, activity.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Activity name")
	cmd.Flags().StringVar(&req.Description, "description", "", "Description")
	cmd.Flags().StringVar(&date, "date", "", "Start, as 2006-01-02 15:04 local time")
	cmd.Flags().StringVar(&req.Location, "location", "", "Location")
	cmd.Flags().StringVar(&req.City, "city", "", "City")
	cmd.Flags().StringVar(&req.Department, "department", "", "Department")
	cmd.Flags().StringVar(&req.Type, "type", "", "Activity type")
	cmd.Flags().StringVar(&req.Project, "project", "", "Project")
	cmd.Flags().Float64Var(&req.DurationHours, "hours", 0, "Duration in hours")
	cmd.Flags().IntVar(&req.Capacity, "capacity", 0, "Number of places (1-500)")

	return cmd
}

// SuggestLocationsCmd creates the suggestLocations command
func SuggestLocationsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "suggestLocations <prefix>",
		Short: "Suggest locations and cities from known activities",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			suggester := services.NewLocationSuggester(app.API, app.Cfg.Search.Debounce, app.Cfg.Search.MaxSuggestions, app.Logger)
			defer suggester.Stop()

			suggester.Query(app.Ctx, strings.Join(args, " "))
			select {
			case res := <-suggester.Results():
				if res.Err != nil {
					return res.Err
				}
				out := cmd.OutOrStdout()
				if len(res.Value) == 0 {
					fmt.Fprintln(out, services.HintNoMatches)
					return nil
				}
				for _, s := range res.Value {
					fmt.Fprintf(out, "  %s\n", s)
				}
				return nil
			case <-app.Ctx.Done():
				return app.Ctx.Err()
			}
		},
	}
}
