package tabular

import (
	"testing"
	"time"
)

func TestInferDayFirst(t *testing.T) {
	if InferDayFirst([]string{"03/04/2011", "05/06/2011"}) {
		t.Fatal("ambiguous column must stay month-first")
	}
	if !InferDayFirst([]string{"03/04/2011", "25/06/2011"}) {
		t.Fatal("first component above 12 must flip the column to day-first")
	}
	if InferDayFirst([]string{"2011-03-14", "June 2011"}) {
		t.Fatal("non-numeric forms carry no day-order evidence")
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		raw      string
		dayFirst bool
		want     time.Time
	}{
		{"2011-03-14", false, time.Date(2011, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"2011-03-14 09:30", false, time.Date(2011, 3, 14, 9, 30, 0, 0, time.UTC)},
		{"03/04/2011", false, time.Date(2011, 3, 4, 0, 0, 0, 0, time.UTC)},
		{"03/04/2011", true, time.Date(2011, 4, 3, 0, 0, 0, 0, time.UTC)},
		{"25.06.2011", true, time.Date(2011, 6, 25, 0, 0, 0, 0, time.UTC)},
		{"Jun 2011", false, time.Date(2011, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"2011", false, time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2005-2010", false, time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.raw, tc.dayFirst)
		if err != nil {
			t.Fatalf("ParseDate(%q): %v", tc.raw, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("ParseDate(%q, dayFirst=%v) = %v, want %v", tc.raw, tc.dayFirst, got, tc.want)
		}
	}
}

func TestParseDateTwoDigitYearsNeverLandInTheFuture(t *testing.T) {
	got, err := ParseDate("03/04/68", false)
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if got.Year() != 1968 {
		t.Fatalf("year = %d, want 1968", got.Year())
	}
	if got.After(time.Now()) {
		t.Fatal("windowed year must not be in the future")
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "soon", "13/32/2011", "99/99/99"} {
		if _, err := ParseDate(raw, false); err == nil {
			t.Fatalf("ParseDate(%q) should fail", raw)
		}
	}
}
