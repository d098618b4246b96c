package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jakechorley/volunteer-portal/pkg/apperr"
	"github.com/jakechorley/volunteer-portal/pkg/core/access"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/services"
)

const filterDateLayout = "2006-01-02"

func parseFilterDate(flag, value string, endOfDay bool) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(filterDateLayout, value, time.Local)
	if err != nil {
		return time.Time{}, apperr.Validation("Invalid date filter", apperr.FieldError{
			Field:   flag,
			Message: "must be YYYY-MM-DD",
		})
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func printHistory(out io.Writer, result *services.HistoryResult) {
	if len(result.Records) == 0 {
		fmt.Fprintln(out, "No activities match.")
		return
	}

	fmt.Fprintf(out, "\n%-22s %-30s %-14s %-20s %s\n", "Date", "Activity", "Type", "Project", "Hours")
	fmt.Fprintln(out, strings.Repeat("-", 96))
	for _, r := range result.Records {
		fmt.Fprintf(out, "%-22s %-30s %-14s %-20s %s\n",
			r.Activity.Date.Local().Format(activityDateLayout),
			r.Activity.Name,
			r.Activity.Type,
			r.Activity.Project,
			hoursCell(r.Activity))
	}
	fmt.Fprintf(out, "\nTotal: %d activities, %.1f hours\n", len(result.Records), result.TotalHours)
	if len(result.Types) > 0 {
		dimColor.Fprintf(out, "Types: %s\n", strings.Join(result.Types, ", "))
	}
}

func hoursCell(a model.Activity) string {
	if a.DurationHours == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f", a.DurationHours)
}

// ViewHistoryCmd creates the viewHistory command
func ViewHistoryCmd(app *AppContext) *cobra.Command {
	var from, to, project string
	var types []string
	var csvOut, sheets bool

	cmd := &cobra.Command{
		Use:   "viewHistory",
		Short: "Show the activities you have enrolled in",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Require(access.ViewHistory); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			filter := services.HistoryFilter{Types: types, Project: project}
			var err error
			if filter.From, err = parseFilterDate("from", from, false); err != nil {
				return err
			}
			if filter.To, err = parseFilterDate("to", to, true); err != nil {
				return err
			}

			result, err := services.History(app.Ctx, app.API, app.Logger, filter)
			if err != nil {
				return err
			}

			if sheets {
				if app.HistoryExporter == nil {
					return apperr.Validation("No history spreadsheet is configured; set google.historySheetID")
				}
				tab, err := services.ExportHistory(app.Ctx, app.HistoryExporter, app.Logger, result.Records, time.Now())
				if err != nil {
					return err
				}
				success(out, "Exported %d rows to tab %q", len(result.Records), tab)
				return nil
			}

			if csvOut {
				return services.WriteHistoryCSV(out, result.Records)
			}

			printHistory(out, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Only activities on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Only activities on or before this date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&types, "type", nil, "Only these activity types")
	cmd.Flags().StringVar(&project, "project", "", "Only projects containing this text")
	cmd.Flags().BoolVar(&csvOut, "csv", false, "Write CSV to stdout")
	cmd.Flags().BoolVar(&sheets, "sheets", false, "Export to the configured Google spreadsheet")
	cmd.MarkFlagsMutuallyExclusive("csv", "sheets")
	return cmd
}
