package pace

import (
	"testing"
	"time"
)

func at(hh, mm int) time.Time {
	return time.Date(2026, 3, 14, hh, mm, 30, 0, time.UTC)
}

func TestInSpanBoundaries(t *testing.T) {
	t.Parallel()
	tests := []struct {
		hh, mm int
		want   bool
	}{
		{11, 59, false},
		{12, 0, true},
		{13, 59, true},
		{14, 0, false}, // end-exclusive
	}
	for _, tt := range tests {
		if got := InSpan("12:00-14:00", at(tt.hh, tt.mm)); got != tt.want {
			t.Fatalf("InSpan(12:00-14:00, %02d:%02d) = %v, want %v", tt.hh, tt.mm, got, tt.want)
		}
	}
}

func TestInSpanWrapAround(t *testing.T) {
	t.Parallel()
	tests := []struct {
		hh, mm int
		want   bool
	}{
		{23, 30, true},
		{1, 30, true},
		{3, 0, false},
		{22, 59, false},
	}
	for _, tt := range tests {
		if got := InSpan("23:00-02:00", at(tt.hh, tt.mm)); got != tt.want {
			t.Fatalf("InSpan(23:00-02:00, %02d:%02d) = %v, want %v", tt.hh, tt.mm, got, tt.want)
		}
	}
}

func TestInSpanDegenerate(t *testing.T) {
	t.Parallel()
	// start == end means the whole day; deliberate policy, not an error.
	for _, tm := range []time.Time{at(0, 0), at(8, 0), at(23, 59)} {
		if !InSpan("08:00-08:00", tm) {
			t.Fatalf("expected full-day span to contain %v", tm)
		}
	}
}

func TestInQuietHoursMultipleSpans(t *testing.T) {
	t.Parallel()
	spans := []string{"21:00-09:00", "12:00-14:00"}
	tests := []struct {
		hh, mm int
		want   bool
	}{
		{21, 0, true},
		{1, 0, true},
		{8, 59, true},
		{12, 0, true},
		{13, 0, true},
		{9, 0, false},
		{10, 0, false},
		{14, 0, false},
		{15, 0, false},
		{20, 59, false},
	}
	for _, tt := range tests {
		if got := InQuietHours(spans, at(tt.hh, tt.mm), false); got != tt.want {
			t.Fatalf("InQuietHours(%02d:%02d) = %v, want %v", tt.hh, tt.mm, got, tt.want)
		}
	}
}

func TestInQuietHoursSkipsMalformedSpans(t *testing.T) {
	t.Parallel()
	spans := []string{"25:00-26:00", "garbage", "12:00-14:00"}
	if !InQuietHours(spans, at(13, 0), false) {
		t.Fatal("valid span should still match despite malformed siblings")
	}
	if InQuietHours(spans, at(15, 0), false) {
		t.Fatal("no span should match at 15:00")
	}
}

func TestInQuietHoursIgnoreOverride(t *testing.T) {
	t.Parallel()
	if InQuietHours([]string{"00:00-00:00"}, at(12, 0), true) {
		t.Fatal("ignore override must treat schedule as never-quiet")
	}
}

func TestParseSpanErrors(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "12:00", "12:60-13:00", "24:00-01:00", "aa:bb-cc:dd"} {
		if _, err := ParseSpan(raw); err == nil {
			t.Fatalf("ParseSpan(%q): expected error", raw)
		}
	}
}
