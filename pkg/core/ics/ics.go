// Package ics renders activities as RFC 5545 calendar files and delivers
// them to configured sinks.
package ics

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
)

// DefaultDuration applies when an activity has no duration
const DefaultDuration = 2 * time.Hour

const (
	stampLayout = "20060102T150405Z"
	prodID      = "-//Volunteer Portal//Activity Calendar//ES"
	// maxLineOctets is the RFC 5545 content line limit before folding
	maxLineOctets = 75
)

// Event is one VEVENT
type Event struct {
	UID         string
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Stamp       time.Time
	// RRule is the RRULE value without the "RRULE:" prefix
	RRule string
}

// FromActivity builds the event for an activity. A missing or zero
// duration falls back to defaultDuration.
func FromActivity(a model.Activity, defaultDuration time.Duration, now time.Time) Event {
	if defaultDuration <= 0 {
		defaultDuration = DefaultDuration
	}
	duration := defaultDuration
	if a.DurationHours > 0 {
		duration = time.Duration(a.DurationHours * float64(time.Hour))
	}

	uid := uuid.NewString()
	if a.ID != "" {
		uid = "activity-" + a.ID + "@volunteer-portal"
	}

	location := a.Location
	if a.City != "" {
		location = strings.TrimSpace(location + ", " + a.City)
	}

	return Event{
		UID:         uid,
		Title:       a.Name,
		Description: a.Description,
		Location:    location,
		Start:       a.Date,
		End:         a.Date.Add(duration),
		Stamp:       now,
	}
}

// CapacityReminder builds a recurring reminder for a full activity. The
// rule comes from configuration, starts now and stops at the activity
// date. The returned times are the reminder occurrences.
func CapacityReminder(a model.Activity, rule string, now time.Time) (Event, []time.Time, error) {
	if !a.Date.After(now) {
		return Event{}, nil, fmt.Errorf("activity %s has already started", a.ID)
	}

	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return Event{}, nil, fmt.Errorf("failed to parse reminder rule: %w", err)
	}
	opt.Dtstart = now.UTC().Truncate(time.Minute)
	opt.Until = a.Date.UTC()

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return Event{}, nil, fmt.Errorf("failed to build reminder rule: %w", err)
	}
	occurrences := r.All()

	event := Event{
		UID:         uuid.NewString(),
		Title:       "Check availability: " + a.Name,
		Description: fmt.Sprintf("%s is full. Check again for free places before %s.", a.Name, a.Date.Format("2006-01-02 15:04")),
		Location:    a.Location,
		Start:       opt.Dtstart,
		End:         opt.Dtstart.Add(15 * time.Minute),
		Stamp:       now,
		RRule:       opt.RRuleString(),
	}
	return event, occurrences, nil
}

// Render writes a VCALENDAR holding the events, with CRLF line endings
func Render(events ...Event) []byte {
	var buf bytes.Buffer
	line := func(s string) {
		buf.WriteString(fold(s))
		buf.WriteString("\r\n")
	}

	line("BEGIN:VCALENDAR")
	line("VERSION:2.0")
	line("PRODID:" + prodID)
	line("CALSCALE:GREGORIAN")
	for _, e := range events {
		line("BEGIN:VEVENT")
		line("UID:" + e.UID)
		line("DTSTAMP:" + stamp(e.Stamp))
		line("DTSTART:" + stamp(e.Start))
		line("DTEND:" + stamp(e.End))
		line("SUMMARY:" + Escape(e.Title))
		if e.Location != "" {
			line("LOCATION:" + Escape(e.Location))
		}
		if e.Description != "" {
			line("DESCRIPTION:" + Escape(e.Description))
		}
		if e.RRule != "" {
			line("RRULE:" + e.RRule)
		}
		line("END:VEVENT")
	}
	line("END:VCALENDAR")
	return buf.Bytes()
}

func stamp(t time.Time) string {
	return t.UTC().Format(stampLayout)
}

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	",", `\,`,
	";", `\;`,
	"\r\n", `\n`,
	"\n", `\n`,
)

// Escape escapes TEXT values
func Escape(s string) string {
	return textEscaper.Replace(s)
}

// fold splits lines longer than 75 octets, continuing with a single space.
// Multi-byte runes are never split.
func fold(s string) string {
	if len(s) <= maxLineOctets {
		return s
	}
	var b strings.Builder
	limit := maxLineOctets
	n := 0
	for _, r := range s {
		size := len(string(r))
		if n+size > limit {
			b.WriteString("\r\n ")
			n = 0
			limit = maxLineOctets - 1
		}
		b.WriteRune(r)
		n += size
	}
	return b.String()
}

var whitespace = regexp.MustCompile(`\s+`)

// FileName derives the download name from an event title
func FileName(title string) string {
	name := whitespace.ReplaceAllString(strings.TrimSpace(title), "_")
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, name)
	if name == "" {
		name = "event"
	}
	return name + ".ics"
}

// Sink receives a rendered event after a successful enrollment
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

// FileSink writes .ics files into a directory
type FileSink struct {
	Dir string
}

func (s FileSink) Name() string {
	return "file"
}

// Deliver writes the event to Path(event), replacing any previous file
func (s FileSink) Deliver(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create calendar directory: %w", err)
	}
	if err := os.WriteFile(s.Path(event), Render(event), 0o644); err != nil {
		return fmt.Errorf("failed to write calendar file: %w", err)
	}
	return nil
}

// Path returns where Deliver writes the event
func (s FileSink) Path(event Event) string {
	return filepath.Join(s.Dir, FileName(event.Title))
}
