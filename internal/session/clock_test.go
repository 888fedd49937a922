package session

import (
	"errors"
	"testing"
	"time"

	"idxquote/internal/domain"
)

func jakartaClock(t *testing.T) *Clock {
	t.Helper()
	c, err := NewClock(JakartaConfig())
	if err != nil {
		t.Fatalf("NewClock: %v", err)
	}
	return c
}

func wib(t *testing.T, year int, month time.Month, day, hour, min int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	return time.Date(year, month, day, hour, min, 0, 0, loc)
}

func TestClassify(t *testing.T) {
	clock := jakartaClock(t)

	// 2025-11-04 is a Tuesday, 2025-11-08 a Saturday.
	cases := []struct {
		name string
		at   time.Time
		want domain.SessionState
	}{
		{"early morning", wib(t, 2025, 11, 4, 6, 0), domain.SessionClosed},
		{"minute before pre-open", wib(t, 2025, 11, 4, 8, 44), domain.SessionClosed},
		{"pre-open start", wib(t, 2025, 11, 4, 8, 45), domain.SessionPre},
		{"minute before open", wib(t, 2025, 11, 4, 8, 59), domain.SessionPre},
		{"session one opens", wib(t, 2025, 11, 4, 9, 0), domain.SessionOpen},
		{"mid session one", wib(t, 2025, 11, 4, 10, 30), domain.SessionOpen},
		{"break starts", wib(t, 2025, 11, 4, 12, 0), domain.SessionBreak},
		{"mid break", wib(t, 2025, 11, 4, 12, 30), domain.SessionBreak},
		{"break flips back to open", wib(t, 2025, 11, 4, 13, 30), domain.SessionOpen},
		{"last open minute", wib(t, 2025, 11, 4, 15, 49), domain.SessionOpen},
		{"post close starts", wib(t, 2025, 11, 4, 15, 50), domain.SessionPost},
		{"post close ends", wib(t, 2025, 11, 4, 16, 15), domain.SessionClosed},
		{"evening", wib(t, 2025, 11, 4, 20, 0), domain.SessionClosed},
		{"saturday mid-morning", wib(t, 2025, 11, 8, 10, 0), domain.SessionClosed},
		{"saturday during would-be break", wib(t, 2025, 11, 8, 12, 30), domain.SessionClosed},
		{"sunday", wib(t, 2025, 11, 9, 14, 0), domain.SessionClosed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := clock.Classify(tc.at); got != tc.want {
				t.Errorf("Classify(%v) = %v, want %v", tc.at, got, tc.want)
			}
		})
	}
}

func TestClassifyUTCInput(t *testing.T) {
	clock := jakartaClock(t)

	// 03:30 UTC is 10:30 WIB on the same Tuesday.
	at := time.Date(2025, 11, 4, 3, 30, 0, 0, time.UTC)
	if got := clock.Classify(at); got != domain.SessionOpen {
		t.Errorf("Classify(%v) = %v, want OPEN", at, got)
	}
}

func TestNextOpen(t *testing.T) {
	clock := jakartaClock(t)

	cases := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"pre-open same day", wib(t, 2025, 11, 4, 8, 50), wib(t, 2025, 11, 4, 9, 0)},
		{"before pre-open same day", wib(t, 2025, 11, 4, 5, 0), wib(t, 2025, 11, 4, 9, 0)},
		{"weekday evening rolls to next day", wib(t, 2025, 11, 4, 20, 0), wib(t, 2025, 11, 5, 9, 0)},
		{"saturday rolls to monday", wib(t, 2025, 11, 8, 10, 0), wib(t, 2025, 11, 10, 9, 0)},
		{"friday post rolls to monday", wib(t, 2025, 11, 7, 16, 0), wib(t, 2025, 11, 10, 9, 0)},
		{"sunday rolls to monday", wib(t, 2025, 11, 9, 23, 0), wib(t, 2025, 11, 10, 9, 0)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := clock.NextOpen(tc.at); !got.Equal(tc.want) {
				t.Errorf("NextOpen(%v) = %v, want %v", tc.at, got, tc.want)
			}
		})
	}
}

func TestTimeUntilOpen(t *testing.T) {
	clock := jakartaClock(t)

	at := wib(t, 2025, 11, 4, 8, 50)
	if got := clock.TimeUntilOpen(at); got != 10*time.Minute {
		t.Errorf("TimeUntilOpen = %v, want 10m", got)
	}
}

func TestNewClockValidation(t *testing.T) {
	t.Run("unknown timezone", func(t *testing.T) {
		cfg := JakartaConfig()
		cfg.Timezone = "Mars/Olympus_Mons"
		if _, err := NewClock(cfg); err == nil {
			t.Fatal("expected error for unknown timezone")
		}
	})

	t.Run("non-increasing boundaries", func(t *testing.T) {
		cfg := JakartaConfig()
		cfg.BreakStart = cfg.SessionOneStart
		_, err := NewClock(cfg)
		if err == nil {
			t.Fatal("expected error for non-increasing boundaries")
		}
		var ce *domain.ConfigError
		if !errors.As(err, &ce) {
			t.Errorf("expected ConfigError, got %T", err)
		}
	})

	t.Run("boundary past midnight", func(t *testing.T) {
		cfg := JakartaConfig()
		cfg.PostCloseEnd = 24 * 60
		if _, err := NewClock(cfg); err == nil {
			t.Fatal("expected error for boundary past midnight")
		}
	})
}
