package commands

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/jakechorley/volunteer-portal/pkg/core/access"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/services"
)

// AssignVolunteerCmd creates the assignVolunteer command
func AssignVolunteerCmd(app *AppContext) *cobra.Command {
	var target services.AssignTarget

	cmd := &cobra.Command{
		Use:   "assignVolunteer <activity_id>",
		Short: "Enroll a volunteer by id or email (coordinators)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Require(access.AssignVolunteer); err != nil {
				return err
			}

			result, err := app.Workflow.AssignVolunteer(app.Ctx, args[0], target)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			success(out, "Volunteer assigned")
			fmt.Fprintf(out, "Places left: %d of %d\n", result.Availability.Available, result.Availability.Capacity)
			return nil
		},
	}

	cmd.Flags().StringVar(&target.UserID, "user", "", "Volunteer id")
	cmd.Flags().StringVar(&target.Email, "email", "", "Volunteer email")
	cmd.MarkFlagsMutuallyExclusive("user", "email")
	return cmd
}

// AdminUnenrollCmd creates the adminUnenroll command
func AdminUnenrollCmd(app *AppContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "adminUnenroll <activity_id> <user_id>",
		Short: "Remove a volunteer from an activity (coordinators)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Require(access.AdminUnenroll); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			result, err := app.Workflow.AdminUnenroll(app.Ctx, args[0], args[1], reason, app.Confirmer(out))
			if err != nil {
				return err
			}

			success(out, "Volunteer unenrolled")
			fmt.Fprintf(out, "Places left: %d of %d\n", result.Availability.Available, result.Availability.Capacity)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Optional reason")
	return cmd
}

func printRoster(out io.Writer, roster []model.RosterEntry) {
	if len(roster) == 0 {
		fmt.Fprintln(out, "Nobody is enrolled yet.")
		return
	}

	nameWidth := 20
	for _, e := range roster {
		if len(e.Name) > nameWidth {
			nameWidth = len(e.Name)
		}
	}

	fmt.Fprintf(out, "\n%-38s %-*s %-30s %s\n", "Enrollment", nameWidth, "Name", "Email", "Attended")
	fmt.Fprintln(out, strings.Repeat("-", 38+nameWidth+30+12))
	for _, e := range roster {
		attended := dimColor.Sprint("no")
		if e.Attended {
			attended = okColor.Sprint("yes")
			if e.AttendedAt != nil {
				attended = okColor.Sprintf("yes (%s)", e.AttendedAt.Local().Format("02/01 15:04"))
			}
		}
		fmt.Fprintf(out, "%-38s %-*s %-30s %s\n", e.EnrollmentID, nameWidth, e.Name, e.Email, attended)
	}
	fmt.Fprintln(out)
}

// ViewRosterCmd creates the viewRoster command
func ViewRosterCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "viewRoster <activity_id>",
		Short: "List the volunteers enrolled in an activity (coordinators)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Require(access.ViewRoster); err != nil {
				return err
			}

			roster, err := services.Roster(app.Ctx, app.API, args[0])
			if err != nil {
				return err
			}
			printRoster(cmd.OutOrStdout(), roster)
			return nil
		},
	}
}

// MarkAttendanceCmd creates the markAttendance command
func MarkAttendanceCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "markAttendance <activity_id> <enrollment_id>",
		Short: "Confirm that a volunteer attended; this cannot be undone",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Require(access.MarkAttendance); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			record, err := app.Workflow.MarkAttendance(app.Ctx, args[0], args[1], app.Confirmer(out))
			if err != nil {
				return err
			}

			success(out, "Attendance confirmed")
			if record.AttendedAt != nil {
				fmt.Fprintf(out, "Recorded at %s\n", record.AttendedAt.Local().Format(activityDateLayout))
			}
			return nil
		},
	}
}

func printSuggestions(out io.Writer, res services.VolunteerSuggestions) {
	for _, v := range res.Volunteers {
		fmt.Fprintf(out, "  %-30s %-30s %s\n", v.Name, v.Email, dimColor.Sprint(v.ID))
	}
	if res.Hint != "" {
		hintColor.Fprintf(out, "  %s\n", res.Hint)
	}
}

// SearchVolunteersCmd creates the searchVolunteers command
func SearchVolunteersCmd(app *AppContext) *cobra.Command {
	var live bool

	cmd := &cobra.Command{
		Use:   "searchVolunteers [query...]",
		Short: "Search the volunteer directory (coordinators)",
		Long: `Search the volunteer directory by name or email.

With --live every line typed is a new query; queries typed quickly replace
each other and only the latest result is shown. An empty line ends the search.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Require(access.SearchVolunteers); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !live {
				res, err := services.SearchVolunteers(app.Ctx, app.API, strings.Join(args, " "), app.Cfg.Search.MaxSuggestions)
				if err != nil {
					return err
				}
				printSuggestions(out, res)
				return nil
			}

			searcher := services.NewVolunteerSearcher(app.API, app.Cfg.Search.Debounce, app.Cfg.Search.MaxSuggestions, app.Logger)
			defer searcher.Stop()

			// results arrive while the prompt is being written
			shared := &lockedWriter{w: out}
			done := make(chan struct{})
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case res := <-searcher.Results():
						var block bytes.Buffer
						if res.Err != nil {
							ReportError(&block, res.Err)
						} else {
							fmt.Fprintf(&block, "\nResults for %q:\n", res.Query)
							printSuggestions(&block, res.Value)
						}
						shared.Write(block.Bytes())
					case <-done:
						return
					}
				}
			}()
			defer func() {
				close(done)
				wg.Wait()
			}()

			for {
				line, err := app.ReadLine(shared, "search> ")
				if err != nil || line == "" {
					return nil
				}
				searcher.Query(app.Ctx, line)
			}
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "Read queries from input as you type them")
	return cmd
}
