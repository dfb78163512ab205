package calendarsrc

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MirDochEgal555/Dashboard/internal/dashboard"
)

type parsedDateTime struct {
	value  time.Time
	allDay bool
}

// unfoldLines undoes RFC 5545 line folding: a line starting with a space or
// tab continues the previous one.
func unfoldLines(raw string) []string {
	var unfolded []string
	for _, rawLine := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		line := strings.TrimRight(rawLine, "\r\n")
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && len(unfolded) > 0 {
			unfolded[len(unfolded)-1] += line[1:]
			continue
		}
		unfolded = append(unfolded, line)
	}
	return unfolded
}

// parseProperty splits "NAME;PARAM=V:value" into its parts.
func parseProperty(line string) (name string, params map[string]string, value string, err error) {
	head, value, found := strings.Cut(line, ":")
	if !found {
		return "", nil, "", fmt.Errorf("malformed ICS property line: %q", line)
	}

	tokens := strings.Split(head, ";")
	name = strings.ToUpper(strings.TrimSpace(tokens[0]))
	params = make(map[string]string)
	for _, token := range tokens[1:] {
		key, raw, found := strings.Cut(token, "=")
		if !found {
			continue
		}
		params[strings.ToUpper(strings.TrimSpace(key))] = strings.TrimSpace(raw)
	}
	return name, params, strings.TrimSpace(value), nil
}

func parseCompactDate(value string) (time.Time, error) {
	return time.Parse("20060102", value)
}

func parseCompactDateTime(value string) (time.Time, error) {
	for _, layout := range []string{"20060102T150405", "20060102T1504"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ICS datetime value: %q", value)
}

// parseDateOrDateTime handles the three DTSTART/DTEND shapes: VALUE=DATE
// (all-day), a Z-suffixed UTC instant, and a floating or TZID-qualified local
// time.
func parseDateOrDateTime(value string, params map[string]string, defaultTZ *time.Location) (parsedDateTime, error) {
	raw := strings.TrimSpace(value)
	isDate := strings.EqualFold(params["VALUE"], "DATE") || !strings.Contains(raw, "T")
	if isDate {
		day, err := parseCompactDate(raw)
		if err != nil {
			return parsedDateTime{}, err
		}
		return parsedDateTime{
			value:  time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, defaultTZ),
			allDay: true,
		}, nil
	}

	if strings.HasSuffix(raw, "Z") {
		ts, err := parseCompactDateTime(strings.TrimSuffix(raw, "Z"))
		if err != nil {
			return parsedDateTime{}, err
		}
		utc := time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), 0, time.UTC)
		return parsedDateTime{value: utc.In(defaultTZ)}, nil
	}

	ts, err := parseCompactDateTime(raw)
	if err != nil {
		return parsedDateTime{}, err
	}

	tz := defaultTZ
	if tzid := params["TZID"]; tzid != "" {
		if loaded, err := time.LoadLocation(tzid); err == nil {
			tz = loaded
		}
	}
	local := time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), 0, tz)
	return parsedDateTime{value: local.In(defaultTZ)}, nil
}

// parseEventBlock builds one event out of the lines between BEGIN:VEVENT and
// END:VEVENT. Events without a DTSTART are dropped. Missing DTEND defaults to
// one day (all-day) or one hour (timed) after the start.
func parseEventBlock(lines []string, sourceName string, defaultTZ *time.Location) *dashboard.CalendarEvent {
	var (
		summary string
		dtstart *parsedDateTime
		dtend   *parsedDateTime
	)

	for _, rawLine := range lines {
		if strings.TrimSpace(rawLine) == "" {
			continue
		}
		name, params, value, err := parseProperty(rawLine)
		if err != nil {
			continue
		}
		switch {
		case name == "SUMMARY" && summary == "":
			summary = value
		case name == "DTSTART" && dtstart == nil:
			if parsed, err := parseDateOrDateTime(value, params, defaultTZ); err == nil {
				dtstart = &parsed
			}
		case name == "DTEND" && dtend == nil:
			if parsed, err := parseDateOrDateTime(value, params, defaultTZ); err == nil {
				dtend = &parsed
			}
		}
	}

	if dtstart == nil {
		return nil
	}

	allDay := dtstart.allDay
	start := dtstart.value
	var end time.Time
	if dtend == nil {
		if allDay {
			end = start.AddDate(0, 0, 1)
		} else {
			end = start.Add(time.Hour)
		}
	} else {
		allDay = allDay && dtend.allDay
		end = dtend.value
	}

	if !end.After(start) {
		if allDay {
			end = start.AddDate(0, 0, 1)
		} else {
			end = start.Add(30 * time.Minute)
		}
	}

	title := strings.TrimSpace(summary)
	if title == "" {
		title = "Untitled event"
	}
	return &dashboard.CalendarEvent{
		Title:  title,
		Start:  start,
		End:    end,
		AllDay: allDay,
		Source: sourceName,
	}
}

func parseEvents(lines []string, sourceName string, defaultTZ *time.Location) []dashboard.CalendarEvent {
	var (
		events     []dashboard.CalendarEvent
		eventLines []string
		inEvent    bool
	)

	for _, rawLine := range lines {
		switch strings.ToUpper(strings.TrimSpace(rawLine)) {
		case "BEGIN:VEVENT":
			inEvent = true
			eventLines = nil
		case "END:VEVENT":
			if inEvent {
				if event := parseEventBlock(eventLines, sourceName, defaultTZ); event != nil {
					events = append(events, *event)
				}
			}
			inEvent = false
			eventLines = nil
		default:
			if inEvent {
				eventLines = append(eventLines, rawLine)
			}
		}
	}
	return events
}

// eventsForDay parses raw ICS text and keeps the events overlapping the given
// local calendar day, sorted by (start, title, source).
func eventsForDay(raw, sourceName string, tz *time.Location, day time.Time) []dashboard.CalendarEvent {
	all := parseEvents(unfoldLines(raw), sourceName, tz)

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, tz)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var kept []dashboard.CalendarEvent
	for _, event := range all {
		if event.Start.Before(dayEnd) && event.End.After(dayStart) {
			kept = append(kept, event)
		}
	}
	SortEvents(kept)
	return kept
}

// SortEvents orders events by start time, then case-insensitive title, then
// source. The calendar job reuses it after merging multiple sources.
func SortEvents(events []dashboard.CalendarEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		ti, tj := strings.ToLower(events[i].Title), strings.ToLower(events[j].Title)
		if ti != tj {
			return ti < tj
		}
		return strings.ToLower(events[i].Source) < strings.ToLower(events[j].Source)
	})
}
