package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"gextrader/src/broker"
	"gextrader/src/consensus"
	"gextrader/src/execution"
	"gextrader/src/feed"
	"gextrader/src/lifecycle"
	"gextrader/src/model"
	"gextrader/src/repository"
	"gextrader/src/risk"
	"gextrader/src/security"
	"gextrader/src/setups"
)

// exposureFeed is the slice of the indicator feed the cycle consumes.
type exposureFeed interface {
	Snapshot(ctx context.Context, symbol string) (*model.ExposureSnapshot, error)
	Close()
}

// brokerSession adds connection teardown to the trade surface.
type brokerSession interface {
	broker.API
	Close()
}

// trader bundles everything one StartLoop run owns. Symbol loops share the
// broker session, risk state and repositories; each symbol keeps its own
// cycle state, consensus gate and cooldown counter.
type trader struct {
	cfg      Config
	setupCfg setups.Config

	feed    exposureFeed
	session brokerSession
	engine  *execution.Engine
	riskSt  *risk.DailyState
	manager *lifecycle.Manager

	decisions *repository.DecisionRepository
	ops       *repository.OperationLogRepository

	analyzer *setups.Analyzer

	log *logger.Entry
}

// StartLoop runs the trading cycle for every configured symbol until the
// context is cancelled. The caller owns riskState so the HTTP surface can
// report the same numbers the loop trades against. On shutdown the loop makes
// one best-effort pass to flatten whatever is still open.
func StartLoop(ctx context.Context, riskState *risk.DailyState) error {
	cfg := GetConfig()
	log := logger.WithField("component", "executor")

	client := broker.NewClient(cfg.BrokerBaseURL, cfg.BrokerTimeout)
	if cfg.BrokerTokenCR != "" {
		token, err := security.DecryptString(cfg.BrokerTokenCR)
		if err != nil {
			return fmt.Errorf("decrypting broker token: %w", err)
		}
		client = client.WithAuthToken(token)
	}
	session := broker.NewSession(client, cfg.BrokerTimeout)
	engine := execution.NewEngine(session, cfg.OrderRetries, cfg.OrderBackoff)

	manager := lifecycle.NewManager(session, engine, riskState, risk.DefaultTrailingConfig(), lifecycle.Config{
		MaxLossPerPosition: decimal.NewFromFloat(cfg.MaxLossPerPosition),
		SessionCloseHour:   cfg.SessionCloseHour,
		SessionCloseMinute: cfg.SessionCloseMinute,
	})

	t := &trader{
		cfg:       cfg,
		setupCfg:  setups.DefaultConfig(),
		feed:      feed.NewClient(cfg.FeedURL, cfg.BrokerTimeout),
		session:   session,
		engine:    engine,
		riskSt:    riskState,
		manager:   manager,
		decisions: repository.NewDecisionRepository(),
		ops:       repository.NewOperationLogRepository(),
		analyzer:  setups.NewAnalyzer(setups.DefaultConfig(), logger.WithField("component", "setups")),
		log:       log,
	}

	log.WithFields(map[string]interface{}{
		"symbols":     cfg.Symbols,
		"loop_period": cfg.LoopPeriod.String(),
		"magic":       cfg.MagicNumber,
	}).Info("starting trading loop")

	g, gctx := errgroup.WithContext(ctx)
	for _, symbol := range cfg.Symbols {
		symbol := symbol
		g.Go(func() error {
			return t.runSymbol(gctx, symbol)
		})
	}
	err := g.Wait()

	t.shutdown()
	return err
}

func (t *trader) runSymbol(ctx context.Context, symbol string) error {
	log := t.log.WithField("symbol", symbol)

	state := &cycleState{}
	gate := consensus.NewGate(buildSources(state), t.riskSt, log)
	cooldown := 0

	ticker := time.NewTicker(t.cfg.LoopPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("symbol loop stopped")
			return nil
		case <-ticker.C:
			t.cycle(ctx, symbol, state, gate, &cooldown)
		}
	}
}

// cycle is one full pass for a symbol: refresh the market view, collect and
// gate opinions, persist the decision, execute when approved and always run
// position management, even when the feed is down.
func (t *trader) cycle(ctx context.Context, symbol string, state *cycleState, gate *consensus.Gate, cooldown *int) {
	log := t.log.WithField("symbol", symbol)

	t.riskSt.ResetIfNewDay()

	// An armed cooldown pauses the symbol entirely. No snapshot, no
	// opinions, no decision row; position management still runs.
	if *cooldown > 0 {
		*cooldown--
		log.WithField("cycles_left", *cooldown).Info("consolidation cooldown, skipping cycle")
		t.manage(ctx, symbol)
		return
	}

	snap, err := t.feed.Snapshot(ctx, symbol)
	if err != nil {
		log.WithError(err).Warn("exposure snapshot failed, managing positions only")
		t.manage(ctx, symbol)
		return
	}
	state.set(snap, t.analyzer)

	opinions := gate.Collect(ctx, symbol)
	cd := gate.Aggregate(opinions)
	approved, reason := gate.ShouldExecute(cd)

	// A consolidated market reading suspends the symbol for the next few
	// cycles. The arming cycle itself does not trade either.
	if _, _, results := state.view(); consolidatedActive(results) {
		*cooldown = t.cfg.CooldownCycles
		if approved {
			approved = false
			reason = "consolidated market, cooldown armed"
		}
		log.WithField("cycles", *cooldown).Info("consolidated market, arming cooldown")
	}

	executed := false
	if approved {
		if err := t.execute(ctx, symbol, cd, state); err != nil {
			log.WithError(err).Error("execution failed")
			reason = "execution failed: " + err.Error()
		} else {
			executed = true
		}
	}

	t.recordDecision(ctx, symbol, cd, executed, reason)
	t.manage(ctx, symbol)
}

func (t *trader) manage(ctx context.Context, symbol string) {
	if err := t.manager.ManageOnce(ctx, symbol, t.cfg.MagicNumber); err != nil {
		t.log.WithField("symbol", symbol).WithError(err).Error("position management failed")
	}
}

// execute flattens the opposite side, then enters with a market order plus a
// resting limit grid behind it. Stops and targets come from the strongest
// active setup trading the same side as the decision.
func (t *trader) execute(ctx context.Context, symbol string, cd model.CollectiveDecision, state *cycleState) error {
	log := t.log.WithFields(map[string]interface{}{
		"symbol":   symbol,
		"decision": cd.FinalDecision,
	})

	positions, err := t.session.Positions(ctx, symbol, t.cfg.MagicNumber)
	if err != nil {
		return err
	}

	buying := cd.FinalDecision == model.DecisionBuy

	if n, err := t.engine.CancelSide(ctx, symbol, t.cfg.MagicNumber, !buying); err != nil {
		log.WithError(err).Warn("cancelling opposite pendings failed")
	} else if n > 0 {
		log.WithField("cancelled", n).Info("cancelled opposite side pendings")
	}

	var sameSide int
	for _, p := range positions {
		if p.Side == string(cd.FinalDecision) {
			sameSide++
			continue
		}
		if err := t.engine.ClosePosition(ctx, p); err != nil {
			log.WithField("ticket", p.Ticket).WithError(err).Warn("closing opposite position failed")
		}
	}

	if max := t.riskSt.MaxOpenPositions(); max > 0 && sameSide >= max {
		log.WithField("open", sameSide).Info("position limit reached, skipping entry")
		return nil
	}

	volume := decimal.NewFromFloat(t.cfg.BaseVolume)
	if t.cfg.EnableSessionSizing {
		sized, sess := risk.SizeForSession(volume, time.Now(), risk.DefaultSessionSizing())
		if sized.IsZero() {
			log.WithField("session", string(sess)).Info("market session closed, skipping entry")
			return nil
		}
		volume = sized
	}

	quote, err := t.session.Quote(ctx, symbol)
	if err != nil {
		return err
	}
	spec, err := t.session.SymbolSpec(ctx, symbol)
	if err != nil {
		return err
	}

	_, _, results := state.view()
	stopLoss, takeProfit := stopsForDecision(cd.FinalDecision, results, *quote, t.setupCfg)

	req := broker.TradeRequest{
		Symbol:     symbol,
		Kind:       broker.OrderMarket,
		Side:       string(cd.FinalDecision),
		Volume:     volume,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Magic:      t.cfg.MagicNumber,
		ClientTag:  uuid.NewString(),
		Comment:    "entry",
	}

	outcome, err := t.engine.Submit(ctx, req, *spec, *quote)
	t.logOperation(ctx, req, outcome, err)
	if err != nil {
		return err
	}
	t.riskSt.RecordOperation()
	log.WithFields(map[string]interface{}{
		"ticket": outcome.Ticket,
		"status": outcome.Status,
	}).Info("entry placed")

	if t.cfg.GridLevels > 0 {
		plan := execution.GridPlan{
			Symbol:     symbol,
			Side:       cd.FinalDecision,
			Levels:     t.cfg.GridLevels,
			OffsetPct:  decimal.NewFromFloat(t.cfg.GridOffsetPct),
			SpacingPct: decimal.NewFromFloat(t.cfg.GridSpacePct),
			Volume:     volume,
			StopLoss:   stopLoss,
			TakeProfit: takeProfit,
			Magic:      t.cfg.MagicNumber,
			Comment:    "grid",
		}
		for _, res := range t.engine.PlaceGrid(ctx, plan, *spec, *quote) {
			t.logOperation(ctx, res.Request, res.Outcome, res.Err)
			if res.Err == nil {
				t.riskSt.RecordOperation()
			}
		}
	}
	return nil
}

func (t *trader) recordDecision(ctx context.Context, symbol string, cd model.CollectiveDecision, executed bool, reason string) {
	opinions, err := json.Marshal(cd.Opinions)
	if err != nil {
		opinions = []byte("[]")
	}
	record := &model.DecisionRecord{
		Symbol:         symbol,
		FinalDecision:  string(cd.FinalDecision),
		Confidence:     cd.Confidence,
		ConsensusLevel: cd.ConsensusLevel,
		OpinionCount:   len(cd.Opinions),
		Opinions:       string(opinions),
		Reasoning:      strings.Join(cd.Reasoning, "\n"),
		Executed:       executed,
		GateReason:     reason,
	}
	if err := t.decisions.Create(ctx, record); err != nil {
		t.log.WithField("symbol", symbol).WithError(err).Error("persisting decision failed")
	}
}

func (t *trader) logOperation(ctx context.Context, req broker.TradeRequest, out execution.Outcome, opErr error) {
	volume, _ := req.Volume.Float64()
	price, _ := req.Price.Float64()

	row := &model.OperationLog{
		Symbol:    req.Symbol,
		Kind:      string(req.Kind),
		Side:      req.Side,
		Volume:    volume,
		Price:     price,
		Ticket:    out.Ticket,
		ClientTag: req.ClientTag,
		Status:    out.Status,
		Retcode:   out.Retcode,
		Attempts:  out.Attempts,
	}
	if opErr != nil {
		if row.Status == "" {
			row.Status = model.OperationStatusFailed
		}
		row.Reason = opErr.Error()
	}
	if err := t.ops.Create(ctx, row); err != nil {
		t.log.WithField("client_tag", req.ClientTag).WithError(err).Error("persisting operation log failed")
	}
}

// shutdown flattens open positions on a fresh deadline so a cancelled parent
// context does not prevent the final cleanup, then releases the session and
// the feed connection.
func (t *trader) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.BrokerTimeout*2)
	defer cancel()

	for _, symbol := range t.cfg.Symbols {
		positions, err := t.session.Positions(ctx, symbol, t.cfg.MagicNumber)
		if err != nil {
			t.log.WithField("symbol", symbol).WithError(err).Warn("shutdown position listing failed")
			continue
		}
		for _, p := range positions {
			if err := t.engine.ClosePosition(ctx, p); err != nil {
				t.log.WithField("ticket", p.Ticket).WithError(err).Error("shutdown close failed, manual intervention required")
			}
		}
	}

	t.session.Close()
	t.feed.Close()
	t.log.Info("trading loop stopped")
}

// stopsForDecision picks stop and target from the strongest active setup that
// trades the same side as the collective decision. A setup pointing the other
// way would hand a buy an inverted stop, so when no aligned setup is active
// the levels fall back to a fixed band off the quote instead.
func stopsForDecision(decision model.Decision, results []model.SetupResult, quote broker.Quote, cfg setups.Config) (stopLoss, takeProfit decimal.Decimal) {
	var best *model.SetupResult
	for i := range results {
		if !results[i].Active || setups.DecisionFor(results[i].SetupType) != decision {
			continue
		}
		if best == nil || results[i].Confidence > best.Confidence {
			best = &results[i]
		}
	}
	if best != nil {
		if best.StopLoss != nil {
			stopLoss = *best.StopLoss
		}
		if best.TargetPrice != nil {
			takeProfit = *best.TargetPrice
		}
		return stopLoss, takeProfit
	}

	one := decimal.NewFromInt(1)
	stopPct := decimal.NewFromFloat(cfg.StopBandPct)
	targetPct := decimal.NewFromFloat(cfg.TargetBandPct)
	if decision == model.DecisionBuy {
		return quote.Bid.Mul(one.Sub(stopPct)), quote.Bid.Mul(one.Add(targetPct))
	}
	return quote.Ask.Mul(one.Add(stopPct)), quote.Ask.Mul(one.Sub(targetPct))
}

func consolidatedActive(results []model.SetupResult) bool {
	for _, r := range results {
		if r.SetupType == model.SetupConsolidated && r.Active {
			return true
		}
	}
	return false
}
