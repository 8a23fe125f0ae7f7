package hours

import (
	"errors"
	"testing"
	"time"

	"github.com/marge-app/booking/internal/model"
)

var week = model.WeekSchedule{
	time.Sunday:    "closed",
	time.Monday:    "09:00-17:00",
	time.Tuesday:   "9:00-17:00",
	time.Wednesday: "09:00-17:00",
	time.Thursday:  "09:00-17:00",
	time.Friday:    "09:00-17:00",
	time.Saturday:  "10:00-14:00",
}

func TestResolveOpenDay(t *testing.T) {
	mon := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	rng, open, err := Resolve(week, mon)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !open {
		t.Fatal("expected Monday to be open")
	}
	if rng.Open != 9*60 || rng.Close != 17*60 {
		t.Fatalf("expected 540-1020, got %d-%d", rng.Open, rng.Close)
	}
}

func TestResolveSingleDigitHour(t *testing.T) {
	tue := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	rng, open, err := Resolve(week, tue)
	if err != nil || !open {
		t.Fatalf("Resolve failed: open=%v err=%v", open, err)
	}
	if rng.Open != 540 {
		t.Fatalf("expected open at 540, got %d", rng.Open)
	}
}

func TestResolveClosedDay(t *testing.T) {
	sun := time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)
	_, open, err := Resolve(week, sun)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if open {
		t.Fatal("expected Sunday to be closed")
	}
}

func TestResolveMalformed(t *testing.T) {
	cases := []string{"", "garbage", "09:00", "17:00-09:00", "25:00-26:00", "09:xx-17:00"}
	for _, entry := range cases {
		bad := week
		bad[time.Monday] = entry
		mon := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
		_, open, err := Resolve(bad, mon)
		if err == nil {
			t.Errorf("entry %q: expected error", entry)
		}
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("entry %q: expected ErrMalformed, got %v", entry, err)
		}
		if open {
			t.Errorf("entry %q: malformed hours must resolve closed", entry)
		}
	}
}

func TestClockRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want int
	}{
		{"00:00", 0},
		{"9:05", 545},
		{"23:59", 1439},
	} {
		got, err := ParseClock(tc.in)
		if err != nil {
			t.Fatalf("ParseClock(%q) failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseClock(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
	if Clock(545) != "09:05" {
		t.Fatalf("Clock(545) = %q", Clock(545))
	}
}
