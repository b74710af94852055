package period

import (
	"fmt"
	"regexp"
	"time"
)

// Type identifies a competition cycle.
type Type uint8

const (
	Daily Type = iota
	Weekly
	Monthly
)

// String returns the UTF-8 word encoding used by entitlement and period
// state addresses.
func (t Type) String() string {
	switch t {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	}
	return "unknown"
}

// Byte returns the single-byte discriminant encoding used by leaderboard
// addresses. The two encodings coexist on purpose: each address kind is
// bound to exactly one of them.
func (t Type) Byte() byte {
	return byte(t)
}

func ParseType(s string) (Type, error) {
	switch s {
	case "daily":
		return Daily, nil
	case "weekly":
		return Weekly, nil
	case "monthly":
		return Monthly, nil
	}
	return Daily, fmt.Errorf("invalid period type %q", s)
}

var (
	dailyPattern   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	weeklyPattern  = regexp.MustCompile(`^\d{4}-W\d{2}$`)
	monthlyPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)
)

// Valid reports whether id is well-formed for the given type.
func Valid(t Type, id string) bool {
	switch t {
	case Daily:
		return dailyPattern.MatchString(id)
	case Weekly:
		return weeklyPattern.MatchString(id)
	case Monthly:
		return monthlyPattern.MatchString(id)
	}
	return false
}

// Generator is the single canonical clock-based period id source. Both the
// gateway and the settlement engine must derive ids through the same
// generator or period boundaries drift between them.
type Generator struct {
	now func() time.Time
}

func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// Current returns the period id containing the generator's current time.
func (g *Generator) Current(t Type) string {
	return ID(t, g.now())
}

// Previous returns the period id of the cycle that closed most recently.
func (g *Generator) Previous(t Type) string {
	return ID(t, startOf(t, g.now()).Add(-time.Second))
}

// ID computes the period id containing the given instant. All times are
// taken in UTC.
func ID(t Type, at time.Time) string {
	at = at.UTC()
	switch t {
	case Daily:
		return at.Format("2006-01-02")
	case Weekly:
		return fmt.Sprintf("%04d-W%02d", at.Year(), weekOfYear(at))
	case Monthly:
		return at.Format("2006-01")
	}
	return ""
}

// weekOfYear numbers weeks as fixed 7-day chunks of the year starting at
// January 1st, giving weeks 01..53.
func weekOfYear(at time.Time) int {
	return (at.YearDay()-1)/7 + 1
}

func startOf(t Type, at time.Time) time.Time {
	at = at.UTC()
	switch t {
	case Daily:
		return time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	case Weekly:
		week := weekOfYear(at)
		jan1 := time.Date(at.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		return jan1.AddDate(0, 0, (week-1)*7)
	case Monthly:
		return time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return at
}

// NextBoundary returns the instant at which the period containing now
// closes. The settlement scheduler fires shortly after this.
func NextBoundary(t Type, now time.Time) time.Time {
	start := startOf(t, now)
	switch t {
	case Daily:
		return start.AddDate(0, 0, 1)
	case Weekly:
		next := start.AddDate(0, 0, 7)
		// Week chunks never cross a year boundary.
		if next.Year() != start.Year() {
			return time.Date(start.Year()+1, 1, 1, 0, 0, 0, 0, time.UTC)
		}
		return next
	case Monthly:
		return start.AddDate(0, 1, 0)
	}
	return now
}
