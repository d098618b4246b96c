package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/ics"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
)

// HistoryHeader is the first row of every history export
var HistoryHeader = []string{"Date", "Time", "Activity", "Type", "Project", "Duration(h)", "Description"}

// HistoryFilter narrows the personal history. Zero values do not filter.
type HistoryFilter struct {
	From    time.Time
	To      time.Time
	Types   []string
	Project string
}

func (f HistoryFilter) matches(r model.EnrollmentRecord) bool {
	date := r.Activity.Date
	if !f.From.IsZero() && date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && date.After(f.To) {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == r.Activity.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Project != "" && !strings.Contains(strings.ToLower(r.Activity.Project), strings.ToLower(f.Project)) {
		return false
	}
	return true
}

// HistoryResult is the filtered personal history
type HistoryResult struct {
	// Records are sorted by activity date, newest first
	Records []model.EnrollmentRecord
	// Types are the distinct activity types across the whole history
	Types      []string
	TotalHours float64
}

// History fetches the user's enrollments and applies the filter
func History(ctx context.Context, client ActivityClient, logger *zap.Logger, filter HistoryFilter) (*HistoryResult, error) {
	logger.Debug("Fetching enrollment history")
	records, err := client.MyEnrollments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch enrollments: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Activity.Date.After(records[j].Activity.Date)
	})

	result := &HistoryResult{}
	seen := make(map[string]bool)
	for _, r := range records {
		if t := r.Activity.Type; t != "" && !seen[t] {
			seen[t] = true
			result.Types = append(result.Types, t)
		}
		if !filter.matches(r) {
			continue
		}
		result.Records = append(result.Records, r)
		result.TotalHours += durationHours(r.Activity)
	}

	logger.Debug("History filtered",
		zap.Int("total", len(records)),
		zap.Int("matching", len(result.Records)),
		zap.Float64("hours", result.TotalHours))
	return result, nil
}

// durationHours counts activities without a duration as the default
func durationHours(a model.Activity) float64 {
	if a.DurationHours > 0 {
		return a.DurationHours
	}
	return ics.DefaultDuration.Hours()
}

// HistoryRows renders the records as export rows, header first
func HistoryRows(records []model.EnrollmentRecord) [][]string {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, HistoryHeader)
	for _, r := range records {
		d := r.Activity.Date.Local()
		rows = append(rows, []string{
			d.Format("02/01/2006"),
			d.Format("15:04"),
			r.Activity.Name,
			r.Activity.Type,
			r.Activity.Project,
			strconv.FormatFloat(durationHours(r.Activity), 'f', -1, 64),
			r.Activity.Description,
		})
	}
	return rows
}

// WriteHistoryCSV writes the records as CSV
func WriteHistoryCSV(w io.Writer, records []model.EnrollmentRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(HistoryRows(records)); err != nil {
		return fmt.Errorf("failed to write history csv: %w", err)
	}
	return nil
}

// HistoryExporter writes rows into a named tab of a spreadsheet
type HistoryExporter interface {
	ExportRows(ctx context.Context, tab string, rows [][]string) error
}

// ExportHistory writes the records into a tab named after the date, which is
// created or overwritten
func ExportHistory(ctx context.Context, exporter HistoryExporter, logger *zap.Logger, records []model.EnrollmentRecord, now time.Time) (string, error) {
	tab := "History " + now.Format("2006-01-02")
	if err := exporter.ExportRows(ctx, tab, HistoryRows(records)); err != nil {
		return "", fmt.Errorf("failed to export history: %w", err)
	}
	logger.Info("Exported history", zap.String("tab", tab), zap.Int("rows", len(records)))
	return tab, nil
}
