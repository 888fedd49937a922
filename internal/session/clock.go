// Package session classifies wall-clock time against the exchange's trading
// calendar. The clock is a pure function of time: it holds no state beyond
// its configured boundaries and can be evaluated at any instant.
package session

import (
	"fmt"
	"time"

	"idxquote/internal/domain"
)

// Config holds the session boundaries as minutes since local midnight.
// Boundaries are configuration so a non-Jakarta exchange can reuse the clock.
type Config struct {
	Timezone        string `yaml:"timezone"`
	PreOpenStart    int    `yaml:"pre_open_start"`
	SessionOneStart int    `yaml:"session_one_start"`
	BreakStart      int    `yaml:"break_start"`
	SessionTwoStart int    `yaml:"session_two_start"`
	SessionTwoEnd   int    `yaml:"session_two_end"`
	PostCloseEnd    int    `yaml:"post_close_end"`
}

// JakartaConfig returns the IDX reference schedule: pre-open 08:45-09:00,
// session one 09:00-12:00, break 12:00-13:30, session two 13:30-15:50,
// post-close 15:50-16:15.
func JakartaConfig() Config {
	return Config{
		Timezone:        "Asia/Jakarta",
		PreOpenStart:    8*60 + 45,
		SessionOneStart: 9 * 60,
		BreakStart:      12 * 60,
		SessionTwoStart: 13*60 + 30,
		SessionTwoEnd:   15*60 + 50,
		PostCloseEnd:    16*60 + 15,
	}
}

// Clock classifies instants into market session states.
type Clock struct {
	cfg Config
	loc *time.Location
}

// NewClock validates the configuration and resolves the timezone. Bad session
// config is fatal at startup, not per request.
func NewClock(cfg Config) (*Clock, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, &domain.ConfigError{Field: "session.timezone", Err: err}
	}
	bounds := []int{cfg.PreOpenStart, cfg.SessionOneStart, cfg.BreakStart,
		cfg.SessionTwoStart, cfg.SessionTwoEnd, cfg.PostCloseEnd}
	for i := 1; i < len(bounds); i++ {
		if bounds[i] <= bounds[i-1] {
			return nil, &domain.ConfigError{
				Field: "session boundaries",
				Err:   fmt.Errorf("must be strictly increasing, got %v", bounds),
			}
		}
	}
	if cfg.PreOpenStart < 0 || cfg.PostCloseEnd >= 24*60 {
		return nil, &domain.ConfigError{
			Field: "session boundaries",
			Err:   fmt.Errorf("must fall within one local day"),
		}
	}
	return &Clock{cfg: cfg, loc: loc}, nil
}

// Location returns the exchange's timezone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// Classify maps an instant to the market session state. Saturday and Sunday
// are CLOSED regardless of time of day.
func (c *Clock) Classify(now time.Time) domain.SessionState {
	local := now.In(c.loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return domain.SessionClosed
	}

	t := local.Hour()*60 + local.Minute()
	switch {
	case t < c.cfg.PreOpenStart:
		return domain.SessionClosed
	case t < c.cfg.SessionOneStart:
		return domain.SessionPre
	case t < c.cfg.BreakStart:
		return domain.SessionOpen
	case t < c.cfg.SessionTwoStart:
		return domain.SessionBreak
	case t < c.cfg.SessionTwoEnd:
		return domain.SessionOpen
	case t < c.cfg.PostCloseEnd:
		return domain.SessionPost
	default:
		return domain.SessionClosed
	}
}

// NextOpen returns the next session-one start after now. Callers are expected
// to consult Classify first and use this while CLOSED or PRE; mid-session it
// still answers with the following day's open rather than the one already
// under way.
func (c *Clock) NextOpen(now time.Time) time.Time {
	local := now.In(c.loc)

	open := c.openAt(local)
	if wd := local.Weekday(); wd != time.Saturday && wd != time.Sunday && local.Before(open) {
		return open
	}

	day := local
	for {
		day = day.AddDate(0, 0, 1)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		return c.openAt(day)
	}
}

// TimeUntilOpen reports how long until the next session-one start.
func (c *Clock) TimeUntilOpen(now time.Time) time.Duration {
	return c.NextOpen(now).Sub(now)
}

func (c *Clock) openAt(day time.Time) time.Time {
	h, m := c.cfg.SessionOneStart/60, c.cfg.SessionOneStart%60
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, c.loc)
}
