package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestTrailingProfitPath(t *testing.T) {
	cfg := DefaultTrailingConfig()

	peak := decimal.Zero
	path := []decimal.Decimal{d(0.2), d(0.9), d(1.3), d(0.4)}

	closed := false
	for _, p := range path {
		if p.GreaterThan(peak) {
			peak = p
		}
		if cfg.ShouldClose(peak, p) {
			closed = true
			require.True(t, p.Equal(d(0.4)), "must only close at the final drop")
		}
	}
	require.True(t, closed)
}

func TestTrailingInactiveBelowActivation(t *testing.T) {
	cfg := DefaultTrailingConfig()
	// peak never reached activation, even a full retrace stays open
	require.False(t, cfg.ShouldClose(d(0.4), d(0.0)))
}

func TestTrailingDistanceTiers(t *testing.T) {
	cfg := DefaultTrailingConfig()

	require.True(t, cfg.TrailingDistance(d(1.3)).Equal(d(0.5)))
	// peak 60 retains 70%, allowed give-back 18
	require.True(t, cfg.TrailingDistance(d(60)).Equal(d(18)))
	// peak 100 retains 80%, allowed give-back 20
	require.True(t, cfg.TrailingDistance(d(100)).Equal(d(20)))
}

func TestProtectedFloor(t *testing.T) {
	require.True(t, ProtectedFloor(d(40)).IsZero())
	require.True(t, ProtectedFloor(d(50)).Equal(d(35)))
	require.True(t, ProtectedFloor(d(80)).Equal(d(60)))
	require.True(t, ProtectedFloor(d(120)).Equal(d(96)))
}

func TestDailyStatePeakMonotonic(t *testing.T) {
	st := NewDailyState(DefaultLimits())

	st.RecordRealized(d(100))
	st.RecordRealized(d(-60))
	st.RecordRealized(d(20))

	snap := st.Snapshot()
	require.True(t, snap.DailyPnL.Equal(d(60)))
	require.True(t, snap.PeakPnL.Equal(d(100)))
}

func TestEquitySumsOpenPnLAcrossSymbols(t *testing.T) {
	st := NewDailyState(DefaultLimits())

	st.RecordRealized(d(100))
	st.ReportOpenPnL("US100", d(-30))
	st.ReportOpenPnL("US500", d(20))
	require.True(t, st.Equity().Equal(d(90)))

	st.ReportOpenPnL("US100", d(0))
	require.True(t, st.Equity().Equal(d(120)))
}

func TestReportOpenPnLRaisesPeak(t *testing.T) {
	st := NewDailyState(DefaultLimits())

	st.ReportOpenPnL("US100", d(60))
	require.True(t, st.PeakPnL().Equal(d(60)))

	st.ReportOpenPnL("US100", d(10))
	require.True(t, st.PeakPnL().Equal(d(60)))
}

func TestDailyStateBreakerOnLossLimit(t *testing.T) {
	st := NewDailyState(Limits{MaxDailyLoss: d(-500), MaxOperations: 20})

	st.RecordRealized(d(-200))
	require.False(t, st.BreakerTripped())

	st.RecordRealized(d(-350))
	require.True(t, st.BreakerTripped())
}

func TestDailyStateOperationBudget(t *testing.T) {
	st := NewDailyState(Limits{MaxOperations: 2})

	require.True(t, st.OperationAllowed())
	st.RecordOperation()
	require.True(t, st.OperationAllowed())
	st.RecordOperation()
	require.False(t, st.OperationAllowed())

	unlimited := NewDailyState(Limits{})
	for i := 0; i < 100; i++ {
		unlimited.RecordOperation()
	}
	require.True(t, unlimited.OperationAllowed())
}

func TestProfitGoal(t *testing.T) {
	st := NewDailyState(Limits{DailyProfitGoal: d(1000)})
	require.False(t, st.ProfitGoalReached())
	st.RecordRealized(d(1200))
	require.True(t, st.ProfitGoalReached())
}

func TestTripBreakerIdempotent(t *testing.T) {
	st := NewDailyState(DefaultLimits())
	st.TripBreaker("first")
	st.TripBreaker("second")
	require.Equal(t, "first", st.Snapshot().BreakerReason)
}

func nyTime(year int, month time.Month, day, hour, minute int) time.Time {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
	}
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}

func TestSizeForSession(t *testing.T) {
	cfg := DefaultSessionSizing()
	base := d(1.0)

	tests := []struct {
		name     string
		at       time.Time
		wantSess Session
		wantVol  decimal.Decimal
	}{
		{"regular cash hours", nyTime(2025, time.March, 4, 11, 0), SessionRegular, d(1.0)},
		{"pre-market", nyTime(2025, time.March, 4, 5, 0), SessionPre, d(0.5)},
		{"after-hours", nyTime(2025, time.March, 4, 17, 30), SessionAfter, d(0.5)},
		{"overnight", nyTime(2025, time.March, 4, 2, 0), SessionOvernight, d(0.25)},
		{"saturday closed", nyTime(2025, time.March, 8, 12, 0), SessionClosed, decimal.Zero},
		{"july 4 closed", nyTime(2025, time.July, 4, 12, 0), SessionClosed, decimal.Zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vol, sess := SizeForSession(base, tt.at, cfg)
			require.Equal(t, tt.wantSess, sess)
			require.True(t, vol.Equal(tt.wantVol), "got %s want %s", vol, tt.wantVol)
		})
	}
}

func TestSizeForSessionZeroBase(t *testing.T) {
	vol, sess := SizeForSession(decimal.Zero, nyTime(2025, time.March, 4, 11, 0), DefaultSessionSizing())
	require.True(t, vol.IsZero())
	require.Equal(t, SessionClosed, sess)
}

func TestSizeForSessionHolidaysAllowed(t *testing.T) {
	cfg := DefaultSessionSizing()
	cfg.BlockHolidays = false
	vol, sess := SizeForSession(d(1.0), nyTime(2025, time.July, 4, 12, 0), cfg)
	require.Equal(t, SessionRegular, sess)
	require.True(t, vol.Equal(d(1.0)))
}