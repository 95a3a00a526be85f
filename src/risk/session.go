package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// Session labels the New York trading day phase. Index CFDs stay quoted
// around the clock but liquidity does not, so entry volume is scaled by
// session.
type Session string

const (
	SessionClosed    Session = "closed"
	SessionPre       Session = "pre_market"
	SessionRegular   Session = "regular"
	SessionAfter     Session = "after_hours"
	SessionOvernight Session = "overnight"
)

// SessionSizing maps each session to a volume multiplier. A zero multiplier
// means no new entries in that session.
type SessionSizing struct {
	PreMultiplier       decimal.Decimal
	RegularMultiplier   decimal.Decimal
	AfterMultiplier     decimal.Decimal
	OvernightMultiplier decimal.Decimal

	BlockHolidays bool
}

func DefaultSessionSizing() SessionSizing {
	return SessionSizing{
		PreMultiplier:       decimal.NewFromFloat(0.5),
		RegularMultiplier:   decimal.NewFromFloat(1.0),
		AfterMultiplier:     decimal.NewFromFloat(0.5),
		OvernightMultiplier: decimal.NewFromFloat(0.25),
		BlockHolidays:       true,
	}
}

// SizeForSession scales a nominal entry volume by the session active at now.
// Weekends and (optionally) US market holidays return zero volume.
func SizeForSession(baseVolume decimal.Decimal, now time.Time, cfg SessionSizing) (decimal.Decimal, Session) {
	if baseVolume.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, SessionClosed
	}

	et := easternTime(now)

	if et.Weekday() == time.Saturday || et.Weekday() == time.Sunday {
		return decimal.Zero, SessionClosed
	}
	if cfg.BlockHolidays && isUSMarketHoliday(et) {
		return decimal.Zero, SessionClosed
	}

	sess := detectSession(et)
	var mult decimal.Decimal
	switch sess {
	case SessionPre:
		mult = cfg.PreMultiplier
	case SessionRegular:
		mult = cfg.RegularMultiplier
	case SessionAfter:
		mult = cfg.AfterMultiplier
	default:
		mult = cfg.OvernightMultiplier
	}
	return baseVolume.Mul(mult), sess
}

func easternTime(t time.Time) time.Time {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return t.UTC()
	}
	return t.In(loc)
}

// detectSession buckets an ET timestamp. Cash hours are 09:30 to 16:00;
// pre-market opens at 04:00, after-hours runs to 20:00.
func detectSession(t time.Time) Session {
	minutes := t.Hour()*60 + t.Minute()
	switch {
	case minutes >= 4*60 && minutes < 9*60+30:
		return SessionPre
	case minutes >= 9*60+30 && minutes < 16*60:
		return SessionRegular
	case minutes >= 16*60 && minutes < 20*60:
		return SessionAfter
	default:
		return SessionOvernight
	}
}

// isUSMarketHoliday covers the NYSE full-closure calendar. Observed dates
// shift to Monday when the holiday lands on a Sunday.
func isUSMarketHoliday(t time.Time) bool {
	year := t.Year()

	observed := func(d time.Time) time.Time {
		if d.Weekday() == time.Sunday {
			return d.AddDate(0, 0, 1)
		}
		return d
	}

	newYears := observed(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC))
	mlkDay := nthWeekday(year, time.January, time.Monday, 3)
	presidents := nthWeekday(year, time.February, time.Monday, 3)

	memorial := time.Date(year, time.May, 31, 0, 0, 0, 0, time.UTC)
	for memorial.Weekday() != time.Monday {
		memorial = memorial.AddDate(0, 0, -1)
	}

	independence := observed(time.Date(year, time.July, 4, 0, 0, 0, 0, time.UTC))
	labor := nthWeekday(year, time.September, time.Monday, 1)
	thanksgiving := nthWeekday(year, time.November, time.Thursday, 4)
	christmas := observed(time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC))

	holidays := []time.Time{newYears, mlkDay, presidents, memorial, independence, labor, thanksgiving, christmas}
	for _, h := range holidays {
		if t.Format("2006-01-02") == h.Format("2006-01-02") {
			return true
		}
	}
	return false
}

// nthWeekday returns the nth given weekday of a month, n starting at 1.
func nthWeekday(year int, month time.Month, day time.Weekday, n int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(day-first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+(n-1)*7)
}
