package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"gextrader/src/broker"
	"gextrader/src/execution"
	"gextrader/src/risk"
)

// Config bounds individual positions and sets the end-of-session liquidation
// time in New York hours.
type Config struct {
	MaxLossPerPosition decimal.Decimal
	SessionCloseHour   int
	SessionCloseMinute int
}

func DefaultConfig() Config {
	return Config{
		MaxLossPerPosition: decimal.NewFromInt(200),
		SessionCloseHour:   15,
		SessionCloseMinute: 50,
	}
}

// Manager walks open positions once per cycle and enforces, in order: the
// per-position hard stop, the trailing stop, the account circuit breaker, the
// profit protection lock and the end-of-session liquidation. The broker's
// position list is the source of truth; local peaks are rebuilt from it and
// positions that vanish between cycles are settled at their last seen profit.
type Manager struct {
	api      broker.API
	engine   *execution.Engine
	riskSt   *risk.DailyState
	trailing risk.TrailingConfig
	cfg      Config

	peaks      map[uint64]decimal.Decimal
	lastProfit map[uint64]tracked

	now func() time.Time
	log *logger.Entry
}

// tracked is the last view of an open position, kept per ticket so a position
// vanishing at the broker can still be settled at its final observed profit.
type tracked struct {
	symbol string
	profit decimal.Decimal
}

func NewManager(api broker.API, engine *execution.Engine, riskState *risk.DailyState, trailing risk.TrailingConfig, cfg Config) *Manager {
	return &Manager{
		api:        api,
		engine:     engine,
		riskSt:     riskState,
		trailing:   trailing,
		cfg:        cfg,
		peaks:      map[uint64]decimal.Decimal{},
		lastProfit: map[uint64]tracked{},
		now:        time.Now,
		log:        logger.WithField("component", "lifecycle"),
	}
}

// ManageOnce runs one management pass for a symbol under this trader's magic
// number.
func (m *Manager) ManageOnce(ctx context.Context, symbol string, magic int64) error {
	positions, err := m.api.Positions(ctx, symbol, magic)
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}

	m.settleVanished(symbol, positions)

	openTotal := decimal.Zero
	for _, p := range positions {
		openTotal = openTotal.Add(p.Profit)
	}
	// account-level checks run on combined equity, so a loss spread over
	// several symbols still counts against the one daily limit
	m.riskSt.ReportOpenPnL(symbol, openTotal)
	equity := m.riskSt.Equity()

	// account-level rules come before per-position ones so a breaker pass
	// closes everything in one sweep
	if m.riskSt.BreakerTripped() {
		return m.closeAll(ctx, symbol, positions, "circuit breaker active")
	}
	// DailyState trips on realized losses; floating losses trip here
	if loss := m.riskSt.MaxDailyLossLimit(); loss.Sign() < 0 && equity.LessThanOrEqual(loss) {
		m.riskSt.TripBreaker("equity below daily loss limit")
		return m.closeAll(ctx, symbol, positions, "equity below daily loss limit")
	}

	dayPeak := m.riskSt.PeakPnL()
	if floor := risk.ProtectedFloor(dayPeak); floor.Sign() > 0 && equity.LessThanOrEqual(floor) {
		m.riskSt.TripBreaker("profit protection lock")
		return m.closeAll(ctx, symbol, positions, "profit protection lock")
	}
	// The goal realizes gains without tripping the breaker; the consensus
	// gate keeps new entries out while the goal holds.
	if m.riskSt.ProfitGoalReached() {
		return m.closeAll(ctx, symbol, positions, "daily profit goal reached")
	}

	if m.sessionCloseDue() && !m.riskSt.SessionClosed() {
		err := m.closeAll(ctx, symbol, positions, "session close")
		if err == nil {
			m.riskSt.MarkSessionClosed()
		}
		return err
	}

	for _, p := range positions {
		m.managePosition(ctx, p)
	}
	return nil
}

func (m *Manager) managePosition(ctx context.Context, p broker.BrokerPosition) {
	peak := m.peaks[p.Ticket]
	if p.Profit.GreaterThan(peak) {
		peak = p.Profit
		m.peaks[p.Ticket] = peak
	}
	m.lastProfit[p.Ticket] = tracked{symbol: p.Symbol, profit: p.Profit}

	log := m.log.WithFields(map[string]interface{}{
		"ticket": p.Ticket,
		"symbol": p.Symbol,
		"profit": p.Profit.String(),
		"peak":   peak.String(),
	})

	// hard stop wins over trailing when both would fire
	if m.cfg.MaxLossPerPosition.Sign() > 0 && p.Profit.LessThanOrEqual(m.cfg.MaxLossPerPosition.Neg()) {
		log.Warn("hard stop hit, closing position")
		m.closeOne(ctx, p, "hard stop")
		return
	}

	if m.trailing.ShouldClose(peak, p.Profit) {
		log.Info("trailing stop hit, closing position")
		m.closeOne(ctx, p, "trailing stop")
	}
}

// settleVanished realizes the PnL of this symbol's positions that disappeared
// since the last pass. A position closed elsewhere (take profit at the
// terminal, manual intervention) still counts against the daily totals. Other
// symbols' tickets are left alone; their own passes reconcile them.
func (m *Manager) settleVanished(symbol string, current []broker.BrokerPosition) {
	seen := map[uint64]bool{}
	for _, p := range current {
		seen[p.Ticket] = true
	}
	for ticket, tr := range m.lastProfit {
		if tr.symbol != symbol || seen[ticket] {
			continue
		}
		m.log.WithFields(map[string]interface{}{
			"ticket": ticket,
			"profit": tr.profit.String(),
		}).Info("position closed at broker, settling realized pnl")
		m.riskSt.RecordRealized(tr.profit)
		delete(m.lastProfit, ticket)
		delete(m.peaks, ticket)
	}
}

// closeAll flattens the symbol and re-reports its remaining floating total,
// so settled profit is not counted twice against the combined equity.
func (m *Manager) closeAll(ctx context.Context, symbol string, positions []broker.BrokerPosition, reason string) error {
	var firstErr error
	remaining := decimal.Zero
	for _, p := range positions {
		if err := m.closeOne(ctx, p, reason); err != nil {
			remaining = remaining.Add(p.Profit)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	m.riskSt.ReportOpenPnL(symbol, remaining)
	return firstErr
}

// closeOne closes through the engine; when retries are exhausted it resets
// the broker session and tries once more before escalating.
func (m *Manager) closeOne(ctx context.Context, p broker.BrokerPosition, reason string) error {
	log := m.log.WithFields(map[string]interface{}{
		"ticket": p.Ticket,
		"reason": reason,
	})

	err := m.engine.ClosePosition(ctx, p)
	if err == nil {
		m.settle(p)
		return nil
	}

	log.WithError(err).Warn("close failed, resetting broker session and retrying")
	if rerr := m.api.Reset(ctx); rerr != nil {
		log.WithError(rerr).Error("session reset failed")
	}
	if err = m.engine.ClosePosition(ctx, p); err == nil {
		m.settle(p)
		return nil
	}

	log.WithError(err).Error("position could not be closed after session reset, manual intervention required")
	return err
}

func (m *Manager) settle(p broker.BrokerPosition) {
	m.riskSt.RecordRealized(p.Profit)
	delete(m.lastProfit, p.Ticket)
	delete(m.peaks, p.Ticket)
}

func (m *Manager) sessionCloseDue() bool {
	if m.cfg.SessionCloseHour <= 0 {
		return false
	}
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	now := m.now().In(loc)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), m.cfg.SessionCloseHour, m.cfg.SessionCloseMinute, 0, 0, loc)
	return !now.Before(cutoff)
}
