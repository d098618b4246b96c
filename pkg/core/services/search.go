package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
)

const (
	DefaultSearchDebounce = 250 * time.Millisecond
	DefaultMaxSuggestions = 6

	HintFullName  = "Enter the volunteer's first and last name"
	HintNoMatches = "No matches found"
)

// VolunteerSuggestions is the answer to one volunteer search
type VolunteerSuggestions struct {
	Query      string
	Volunteers []model.Volunteer
	Hint       string
}

// SearchVolunteers queries the directory, narrows the answer with
// FilterVolunteers and keeps the first limit results by name
func SearchVolunteers(ctx context.Context, client VolunteerClient, q string, limit int) (VolunteerSuggestions, error) {
	if limit <= 0 {
		limit = DefaultMaxSuggestions
	}
	found, err := client.SearchVolunteers(ctx, strings.TrimSpace(q))
	if err != nil {
		return VolunteerSuggestions{Query: q}, fmt.Errorf("failed to search volunteers: %w", err)
	}
	res := FilterVolunteers(found, q)
	if len(res) > limit {
		res = res[:limit]
	}

	out := VolunteerSuggestions{Query: q, Volunteers: res}
	switch {
	case len(strings.Fields(q)) < 2:
		out.Hint = HintFullName
	case len(res) == 0:
		out.Hint = HintNoMatches
	}
	return out, nil
}

// FilterVolunteers applies the local match rules: with two or more words
// every word must appear in the name, or the email contains the whole term;
// otherwise the name or email contains the term
func FilterVolunteers(volunteers []model.Volunteer, q string) []model.Volunteer {
	term := strings.ToLower(strings.TrimSpace(q))
	tokens := strings.Fields(term)
	if len(tokens) == 0 {
		out := append([]model.Volunteer(nil), volunteers...)
		sortByName(out)
		return out
	}

	var out []model.Volunteer
	for _, v := range volunteers {
		name := strings.ToLower(v.Name)
		email := strings.ToLower(v.Email)
		var ok bool
		if len(tokens) >= 2 {
			ok = strings.Contains(email, term)
			if !ok {
				ok = true
				for _, t := range tokens {
					if !strings.Contains(name, t) {
						ok = false
						break
					}
				}
			}
		} else {
			ok = strings.Contains(name, term) || strings.Contains(email, term)
		}
		if ok {
			out = append(out, v)
		}
	}
	sortByName(out)
	return out
}

func sortByName(volunteers []model.Volunteer) {
	sort.SliceStable(volunteers, func(i, j int) bool {
		return strings.ToLower(volunteers[i].Name) < strings.ToLower(volunteers[j].Name)
	})
}

// LocationSuggestions draws place names from known activities that contain
// the query, locations before cities, without duplicates
func LocationSuggestions(activities []model.Activity, q string, limit int) []string {
	if limit <= 0 {
		limit = DefaultMaxSuggestions
	}
	term := strings.ToLower(strings.TrimSpace(q))
	if term == "" {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] || !strings.Contains(key, term) {
			return
		}
		seen[key] = true
		out = append(out, s)
	}
	for _, a := range activities {
		add(a.Location)
	}
	for _, a := range activities {
		add(a.City)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Result is the outcome of one debounced query
type Result[T any] struct {
	Query string
	Value T
	Err   error
}

// Debounced runs a lookup after a quiet period. A new query cancels the
// pending or in-flight one and its result is never delivered.
type Debounced[T any] struct {
	run    func(ctx context.Context, q string) (T, error)
	delay  time.Duration
	logger *zap.Logger

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
	out    chan Result[T]
}

func NewDebounced[T any](delay time.Duration, logger *zap.Logger, run func(ctx context.Context, q string) (T, error)) *Debounced[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Debounced[T]{
		run:    run,
		delay:  delay,
		logger: logger,
		out:    make(chan Result[T], 1),
	}
}

// Results delivers the latest result; an undelivered older result is
// replaced
func (d *Debounced[T]) Results() <-chan Result[T] {
	return d.out
}

// Query schedules a lookup for q, superseding any earlier one
func (d *Debounced[T]) Query(ctx context.Context, q string) {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.seq++
	seq := d.seq
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	go func() {
		timer := time.NewTimer(d.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		v, err := d.run(ctx, q)

		d.mu.Lock()
		defer d.mu.Unlock()
		if seq != d.seq || ctx.Err() != nil {
			d.logger.Debug("Dropping superseded lookup", zap.String("query", q))
			return
		}
		select {
		case <-d.out:
		default:
		}
		d.out <- Result[T]{Query: q, Value: v, Err: err}
	}()
}

// Stop cancels the pending lookup
func (d *Debounced[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.seq++
}

// NewVolunteerSearcher debounces volunteer directory searches
func NewVolunteerSearcher(client VolunteerClient, debounce time.Duration, limit int, logger *zap.Logger) *Debounced[VolunteerSuggestions] {
	return NewDebounced(debounce, logger, func(ctx context.Context, q string) (VolunteerSuggestions, error) {
		return SearchVolunteers(ctx, client, q, limit)
	})
}

// NewLocationSuggester debounces location autocompletion over the current
// activity list
func NewLocationSuggester(client ActivityClient, debounce time.Duration, limit int, logger *zap.Logger) *Debounced[[]string] {
	return NewDebounced(debounce, logger, func(ctx context.Context, q string) ([]string, error) {
		activities, err := client.ListActivities(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list activities: %w", err)
		}
		return LocationSuggestions(activities, q, limit), nil
	})
}
