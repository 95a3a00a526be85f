package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"gextrader/src/broker"
	"gextrader/src/execution"
	"gextrader/src/risk"
)

type fakeAPI struct {
	positions []broker.BrokerPosition
	closed    []uint64
	resets    int
	closeErr  bool
}

func (f *fakeAPI) Positions(_ context.Context, symbol string, _ int64) ([]broker.BrokerPosition, error) {
	var out []broker.BrokerPosition
	for _, p := range f.positions {
		if p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeAPI) PositionClose(_ context.Context, ticket uint64) (*broker.TradeResult, error) {
	if f.closeErr {
		return &broker.TradeResult{Retcode: broker.RetcodeTradeDisabled}, nil
	}
	f.closed = append(f.closed, ticket)
	for i, p := range f.positions {
		if p.Ticket == ticket {
			f.positions = append(f.positions[:i], f.positions[i+1:]...)
			break
		}
	}
	return &broker.TradeResult{Retcode: broker.RetcodeDone}, nil
}

func (f *fakeAPI) Reset(context.Context) error { f.resets++; return nil }

func (f *fakeAPI) Quote(context.Context, string) (*broker.Quote, error)           { return nil, nil }
func (f *fakeAPI) SymbolSpec(context.Context, string) (*broker.SymbolSpec, error) { return nil, nil }
func (f *fakeAPI) OrderSend(context.Context, broker.TradeRequest) (*broker.TradeResult, error) {
	return nil, nil
}
func (f *fakeAPI) OrderCancel(context.Context, uint64) (*broker.TradeResult, error) {
	return nil, nil
}
func (f *fakeAPI) PositionModify(context.Context, uint64, string, string) (*broker.TradeResult, error) {
	return nil, nil
}
func (f *fakeAPI) Orders(context.Context, string, int64) ([]broker.PendingOrder, error) {
	return nil, nil
}

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func newManager(api *fakeAPI, st *risk.DailyState) *Manager {
	engine := execution.NewEngine(api, 2, time.Millisecond)
	cfg := DefaultConfig()
	cfg.SessionCloseHour = 0 // disable for most tests
	m := NewManager(api, engine, st, risk.DefaultTrailingConfig(), cfg)
	m.now = func() time.Time { return time.Date(2025, time.March, 4, 12, 0, 0, 0, time.UTC) }
	return m
}

func pos(ticket uint64, profit decimal.Decimal) broker.BrokerPosition {
	return broker.BrokerPosition{Ticket: ticket, Symbol: "US100", Magic: 777, Profit: profit}
}

func TestTrailingClosesAfterRetrace(t *testing.T) {
	api := &fakeAPI{}
	st := risk.NewDailyState(risk.DefaultLimits())
	m := newManager(api, st)

	for _, profit := range []decimal.Decimal{d(0.2), d(0.9), d(1.3)} {
		api.positions = []broker.BrokerPosition{pos(1, profit)}
		require.NoError(t, m.ManageOnce(context.Background(), "US100", 777))
		require.Empty(t, api.closed, "must stay open at profit %s", profit)
	}

	api.positions = []broker.BrokerPosition{pos(1, d(0.4))}
	require.NoError(t, m.ManageOnce(context.Background(), "US100", 777))
	require.Equal(t, []uint64{1}, api.closed)

	// realized pnl lands in the daily state
	require.True(t, st.DailyPnL().Equal(d(0.4)))
}

func TestHardStopBeatsTrailing(t *testing.T) {
	api := &fakeAPI{}
	st := risk.NewDailyState(risk.DefaultLimits())
	m := newManager(api, st)

	api.positions = []broker.BrokerPosition{pos(1, d(5))}
	require.NoError(t, m.ManageOnce(context.Background(), "US100", 777))

	api.positions = []broker.BrokerPosition{pos(1, d(-250))}
	require.NoError(t, m.ManageOnce(context.Background(), "US100", 777))
	require.Equal(t, []uint64{1}, api.closed)
}

func TestVanishedPositionSettled(t *testing.T) {
	api := &fakeAPI{}
	st := risk.NewDailyState(risk.DefaultLimits())
	m := newManager(api, st)

	api.positions = []broker.BrokerPosition{pos(7, d(12))}
	require.NoError(t, m.ManageOnce(context.Background(), "US100", 777))

	// closed at the terminal between cycles
	api.positions = nil
	require.NoError(t, m.ManageOnce(context.Background(), "US100", 777))
	require.True(t, st.DailyPnL().Equal(d(12)))
}

func TestEquityBreakerClosesAll(t *testing.T) {
	api := &fakeAPI{}
	st := risk.NewDailyState(risk.Limits{MaxDailyLoss: d(-500)})
	m := newManager(api, st)

	api.positions = []broker.BrokerPosition{pos(1, d(-300)), pos(2, d(-250))}
	require.NoError(t, m.ManageOnce(context.Background(), "US100", 777))

	require.ElementsMatch(t, []uint64{1, 2}, api.closed)
	require.True(t, st.BreakerTripped())
}

// Losses spread over several symbols count against the one daily limit: two
// floating totals that are each inside the limit trip the breaker combined.
func TestEquityBreakerAggregatesAcrossSymbols(t *testing.T) {
	api := &fakeAPI{}
	st := risk.NewDailyState(risk.Limits{MaxDailyLoss: d(-250)})
	m := newManager(api, st)

	api.positions = []broker.BrokerPosition{
		{Ticket: 1, Symbol: "US100", Magic: 777, Profit: d(-150)},
		{Ticket: 2, Symbol: "US500", Magic: 777, Profit: d(-150)},
	}

	// one symbol alone stays inside the limit
	require.NoError(t, m.ManageOnce(context.Background(), "US100", 777))
	require.False(t, st.BreakerTripped())
	require.Empty(t, api.closed)

	// the second pushes combined equity to -300
	require.NoError(t, m.ManageOnce(context.Background(), "US500", 777))
	require.True(t, st.BreakerTripped())
	require.Equal(t, []uint64{2}, api.closed)

	// the active breaker sweeps the first symbol on its next pass
	require.NoError(t, m.ManageOnce(context.Background(), "US100", 777))
	require.ElementsMatch(t, []uint64{2, 1}, api.closed)
}

// Managing one symbol must not settle another symbol's still-open position as
// vanished.
func TestVanishedSettlementScopedToSymbol(t *testing.T) {
	api := &fakeAPI{}
	st := risk.NewDailyState(risk.DefaultLimits())
	m := newManager(api, st)

	api.positions = []broker.BrokerPosition{
		{Ticket: 1, Symbol: "US100", Magic: 777, Profit: d(25)},
		{Ticket: 2, Symbol: "US500", Magic: 777, Profit: d(10)},
	}
	require.NoError(t, m.ManageOnce(context.Background(), "US100", 777))
	require.NoError(t, m.ManageOnce(context.Background(), "US500", 777))

	// both still open elsewhere, nothing realized
	require.NoError(t, m.ManageOnce(context.Background(), "US100", 777))
	require.True(t, st.DailyPnL().IsZero())

	// only the US500 ticket is gone
	api.positions = api.positions[:1]
	require.NoError(t, m.ManageOnce(context.Background(), "US500", 777))
	require.True(t, st.DailyPnL().Equal(d(10)))
}

func TestBreakerBlocksNextCycle(t *testing.T) {
	api := &fakeAPI{}
	st := risk.NewDailyState(risk.DefaultLimits())
	st.TripBreaker("test")
	m := newManager(api, st)

	api.positions = []broker.BrokerPosition{pos(1, d(10))}
	require.NoError(t, m.ManageOnce(context.Background(), "US100", 777))
	require.Equal(t, []uint64{1}, api.closed, "breaker active closes everything")
}

func TestProfitProtectionLock(t *testing.T) {
	api := &fakeAPI{}
	st := risk.NewDailyState(risk.Limits{MaxDailyLoss: d(-5000)})
	m := newManager(api, st)

	// equity peaks above the lowest protection tier
	api.positions = []broker.BrokerPosition{pos(1, d(60))}
	require.NoError(t, m.ManageOnce(context.Background(), "US100", 777))
	require.Empty(t, api.closed)

	// retrace below the 70% floor (42)
	api.positions = []broker.BrokerPosition{pos(1, d(40))}
	require.NoError(t, m.ManageOnce(context.Background(), "US100", 777))
	require.Equal(t, []uint64{1}, api.closed)
	require.True(t, st.BreakerTripped())
}

func TestSessionCloseOncePerDay(t *testing.T) {
	api := &fakeAPI{}
	st := risk.NewDailyState(risk.DefaultLimits())
	m := newManager(api, st)
	m.cfg.SessionCloseHour = 15
	m.cfg.SessionCloseMinute = 50

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	m.now = func() time.Time { return time.Date(2025, time.March, 4, 15, 55, 0, 0, loc) }

	api.positions = []broker.BrokerPosition{pos(1, d(3))}
	require.NoError(t, m.ManageOnce(context.Background(), "US100", 777))
	require.Equal(t, []uint64{1}, api.closed)
	require.True(t, st.SessionClosed())
}

func TestCloseFailureResetsSession(t *testing.T) {
	api := &fakeAPI{closeErr: true}
	st := risk.NewDailyState(risk.DefaultLimits())
	m := newManager(api, st)

	err := m.closeOne(context.Background(), pos(1, d(-250)), "hard stop")
	require.Error(t, err)
	require.Equal(t, 1, api.resets)
}
