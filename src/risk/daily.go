package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// Limits bounds one trading day. Zero-valued limits mean "no limit" except
// MaxDailyLoss, which must be negative to trip anything.
type Limits struct {
	MaxDailyLoss     decimal.Decimal
	DailyProfitGoal  decimal.Decimal
	MaxOperations    int
	MaxOpenPositions int
}

func DefaultLimits() Limits {
	return Limits{
		MaxDailyLoss:     decimal.NewFromInt(-500),
		DailyProfitGoal:  decimal.NewFromInt(1000),
		MaxOperations:    20,
		MaxOpenPositions: 3,
	}
}

// DailyState is the single shared record of today's trading activity. All
// access goes through its methods; the consensus gate and the lifecycle
// manager hold the same instance.
type DailyState struct {
	mu sync.Mutex

	limits Limits
	day    time.Time

	dailyPnL   decimal.Decimal
	peakPnL    decimal.Decimal
	openPnL    map[string]decimal.Decimal
	operations int

	breakerTripped bool
	breakerReason  string

	sessionClosed bool

	log *logger.Entry
}

func NewDailyState(limits Limits) *DailyState {
	return &DailyState{
		limits:  limits,
		day:     today(),
		openPnL: map[string]decimal.Decimal{},
		log:     logger.WithField("component", "risk"),
	}
}

func today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// ResetIfNewDay clears accumulated state once the calendar day rolls over.
// The breaker does not survive the boundary.
func (s *DailyState) ResetIfNewDay() {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := today()
	if d.Equal(s.day) {
		return
	}
	s.log.WithField("day", d.Format("2006-01-02")).Info("new trading day, resetting daily risk state")
	s.day = d
	s.dailyPnL = decimal.Zero
	s.peakPnL = decimal.Zero
	s.openPnL = map[string]decimal.Decimal{}
	s.operations = 0
	s.breakerTripped = false
	s.breakerReason = ""
	s.sessionClosed = false
}

// RecordRealized folds a realized profit or loss into the day's totals and
// trips the breaker when the loss limit is crossed. Peak PnL only ever rises.
func (s *DailyState) RecordRealized(pnl decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dailyPnL = s.dailyPnL.Add(pnl)
	if s.dailyPnL.GreaterThan(s.peakPnL) {
		s.peakPnL = s.dailyPnL
	}
	if s.limits.MaxDailyLoss.Sign() < 0 && s.dailyPnL.LessThanOrEqual(s.limits.MaxDailyLoss) && !s.breakerTripped {
		s.breakerTripped = true
		s.breakerReason = "max daily loss reached"
		s.log.WithField("daily_pnl", s.dailyPnL.String()).Error("daily loss limit crossed, tripping circuit breaker")
	}
}

// ReportOpenPnL publishes one symbol's floating total. Each symbol loop
// reports its own figure every cycle; the account-level checks run against
// the combined equity, so losses spread across symbols still add up.
func (s *DailyState) ReportOpenPnL(symbol string, total decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openPnL[symbol] = total
	if eq := s.equityLocked(); eq.GreaterThan(s.peakPnL) {
		s.peakPnL = eq
	}
}

// Equity is realized plus floating PnL across every reported symbol.
func (s *DailyState) Equity() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.equityLocked()
}

func (s *DailyState) equityLocked() decimal.Decimal {
	eq := s.dailyPnL
	for _, open := range s.openPnL {
		eq = eq.Add(open)
	}
	return eq
}

// DailyPnL returns today's realized total.
func (s *DailyState) DailyPnL() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dailyPnL
}

// PeakPnL returns the highest equity seen today.
func (s *DailyState) PeakPnL() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peakPnL
}

// MaxDailyLossLimit exposes the configured loss floor for equity checks.
func (s *DailyState) MaxDailyLossLimit() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits.MaxDailyLoss
}

// RecordOperation counts one order attempt against today's budget.
func (s *DailyState) RecordOperation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations++
}

func (s *DailyState) OperationAllowed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limits.MaxOperations <= 0 {
		return true
	}
	return s.operations < s.limits.MaxOperations
}

func (s *DailyState) TripBreaker(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.breakerTripped {
		return
	}
	s.breakerTripped = true
	s.breakerReason = reason
	s.log.WithField("reason", reason).Error("circuit breaker tripped")
}

func (s *DailyState) BreakerTripped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.breakerTripped
}

// ProfitGoalReached reports whether the daily target is hit. The lifecycle
// manager uses it to lock in the day instead of giving profits back.
func (s *DailyState) ProfitGoalReached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limits.DailyProfitGoal.Sign() <= 0 {
		return false
	}
	return s.dailyPnL.GreaterThanOrEqual(s.limits.DailyProfitGoal)
}

func (s *DailyState) MaxOpenPositions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits.MaxOpenPositions
}

// MarkSessionClosed records that the end-of-session liquidation already ran
// today, so the manager does not repeat it every cycle.
func (s *DailyState) MarkSessionClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionClosed = true
}

func (s *DailyState) SessionClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionClosed
}

// Snapshot is a read-only copy for logging and the status endpoint.
type Snapshot struct {
	Day            string          `json:"day"`
	DailyPnL       decimal.Decimal `json:"daily_pnl"`
	PeakPnL        decimal.Decimal `json:"peak_pnl"`
	Operations     int             `json:"operations"`
	BreakerTripped bool            `json:"breaker_tripped"`
	BreakerReason  string          `json:"breaker_reason,omitempty"`
}

func (s *DailyState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Day:            s.day.Format("2006-01-02"),
		DailyPnL:       s.dailyPnL,
		PeakPnL:        s.peakPnL,
		Operations:     s.operations,
		BreakerTripped: s.breakerTripped,
		BreakerReason:  s.breakerReason,
	}
}
