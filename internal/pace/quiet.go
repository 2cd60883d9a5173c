package pace

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxQuietSpans bounds how many quiet-hour spans a config may carry.
const MaxQuietSpans = 3

// Span is a time-of-day window at minute granularity, start-inclusive and
// end-exclusive. start == end means the full day (always quiet).
type Span struct {
	start int // minutes since midnight
	end   int
}

// ParseSpan parses a "HH:MM-HH:MM" 24-hour span.
func ParseSpan(raw string) (Span, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), "-", 2)
	if len(parts) != 2 {
		return Span{}, fmt.Errorf("invalid span %q (want HH:MM-HH:MM)", raw)
	}
	start, err := parseHHMM(parts[0])
	if err != nil {
		return Span{}, fmt.Errorf("invalid span %q: %w", raw, err)
	}
	end, err := parseHHMM(parts[1])
	if err != nil {
		return Span{}, fmt.Errorf("invalid span %q: %w", raw, err)
	}
	return Span{start: start, end: end}, nil
}

// Contains reports whether the wall-clock time falls inside the span.
// Seconds are ignored. Spans with start > end wrap across midnight.
func (sp Span) Contains(now time.Time) bool {
	m := now.Hour()*60 + now.Minute()
	switch {
	case sp.start == sp.end:
		return true
	case sp.start < sp.end:
		return m >= sp.start && m < sp.end
	default:
		return m >= sp.start || m < sp.end
	}
}

// InSpan reports whether now falls inside the raw span. Malformed spans are
// never quiet.
func InSpan(raw string, now time.Time) bool {
	sp, err := ParseSpan(raw)
	if err != nil {
		return false
	}
	return sp.Contains(now)
}

// InQuietHours reports whether any configured span matches now. Malformed
// entries are skipped so one bad span can't suppress evaluation of the rest.
// ignore treats the schedule as never-quiet (operational override).
func InQuietHours(spans []string, now time.Time, ignore bool) bool {
	if ignore {
		return false
	}
	n := len(spans)
	if n > MaxQuietSpans {
		n = MaxQuietSpans
	}
	for _, raw := range spans[:n] {
		if InSpan(raw, now) {
			return true
		}
	}
	return false
}

func parseHHMM(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour %q", parts[0])
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute %q", parts[1])
	}
	if h < 0 || h > 23 {
		return 0, fmt.Errorf("hour out of range: %d", h)
	}
	if m < 0 || m > 59 {
		return 0, fmt.Errorf("minute out of range: %d", m)
	}
	return h*60 + m, nil
}
