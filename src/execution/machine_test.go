package execution

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"gextrader/src/broker"
	"gextrader/src/model"
)

// fakeBroker scripts OrderSend answers and records every call.
type fakeBroker struct {
	sendResults []sendScript
	sendCalls   []broker.TradeRequest
	positions   []broker.BrokerPosition
	orders      []broker.PendingOrder
	quote       *broker.Quote

	closeResults []sendScript
	closeCalls   int
	cancelled    []uint64
}

type sendScript struct {
	result *broker.TradeResult
	err    error
}

func (f *fakeBroker) OrderSend(_ context.Context, req broker.TradeRequest) (*broker.TradeResult, error) {
	f.sendCalls = append(f.sendCalls, req)
	if len(f.sendResults) == 0 {
		return &broker.TradeResult{Retcode: broker.RetcodeDone, Ticket: 1}, nil
	}
	s := f.sendResults[0]
	f.sendResults = f.sendResults[1:]
	return s.result, s.err
}

func (f *fakeBroker) PositionClose(context.Context, uint64) (*broker.TradeResult, error) {
	f.closeCalls++
	if len(f.closeResults) == 0 {
		return &broker.TradeResult{Retcode: broker.RetcodeDone}, nil
	}
	s := f.closeResults[0]
	f.closeResults = f.closeResults[1:]
	return s.result, s.err
}

func (f *fakeBroker) OrderCancel(_ context.Context, ticket uint64) (*broker.TradeResult, error) {
	f.cancelled = append(f.cancelled, ticket)
	return &broker.TradeResult{Retcode: broker.RetcodeCancelled}, nil
}

func (f *fakeBroker) Positions(context.Context, string, int64) ([]broker.BrokerPosition, error) {
	return f.positions, nil
}

func (f *fakeBroker) Orders(context.Context, string, int64) ([]broker.PendingOrder, error) {
	return f.orders, nil
}

func (f *fakeBroker) Quote(context.Context, string) (*broker.Quote, error)           { return f.quote, nil }
func (f *fakeBroker) SymbolSpec(context.Context, string) (*broker.SymbolSpec, error) { return nil, nil }
func (f *fakeBroker) PositionModify(context.Context, uint64, string, string) (*broker.TradeResult, error) {
	return nil, nil
}
func (f *fakeBroker) Reset(context.Context) error { return nil }

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func testSpec() broker.SymbolSpec {
	return broker.SymbolSpec{
		Symbol:    "US100",
		Point:     dec(0.01),
		MinVolume: dec(0.1),
	}
}

func testQuote() broker.Quote {
	return broker.Quote{Symbol: "US100", Bid: dec(19999), Ask: dec(20001)}
}

func marketBuy() broker.TradeRequest {
	return broker.TradeRequest{
		Symbol:    "US100",
		Kind:      broker.OrderMarket,
		Side:      "buy",
		Volume:    dec(1),
		Magic:     777,
		ClientTag: "tag-1",
	}
}

func TestSubmitHappyPath(t *testing.T) {
	fb := &fakeBroker{}
	e := NewEngine(fb, 3, time.Millisecond)

	out, err := e.Submit(context.Background(), marketBuy(), testSpec(), testQuote())
	require.NoError(t, err)
	require.Equal(t, model.OperationStatusDone, out.Status)
	require.EqualValues(t, 1, out.Ticket)
	require.Equal(t, broker.FillIOC, out.Fill)
	require.Equal(t, 1, out.Attempts)
}

func TestSubmitValidationNeverTouchesNetwork(t *testing.T) {
	fb := &fakeBroker{}
	e := NewEngine(fb, 3, time.Millisecond)

	req := marketBuy()
	req.Volume = decimal.Zero
	out, err := e.Submit(context.Background(), req, testSpec(), testQuote())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, model.OperationStatusRejected, out.Status)
	require.Empty(t, fb.sendCalls)
}

func TestSubmitFillModeFallback(t *testing.T) {
	fb := &fakeBroker{sendResults: []sendScript{
		{result: &broker.TradeResult{Retcode: broker.RetcodeInvalidFill}},
		{result: &broker.TradeResult{Retcode: broker.RetcodeInvalidFill}},
		{result: &broker.TradeResult{Retcode: broker.RetcodeDone, Ticket: 7}},
	}}
	e := NewEngine(fb, 3, time.Millisecond)

	out, err := e.Submit(context.Background(), marketBuy(), testSpec(), testQuote())
	require.NoError(t, err)
	require.Equal(t, broker.FillBOC, out.Fill)
	require.Equal(t, broker.FillIOC, fb.sendCalls[0].Fill)
	require.Equal(t, broker.FillFOK, fb.sendCalls[1].Fill)
	require.Equal(t, broker.FillBOC, fb.sendCalls[2].Fill)
}

// Unknown outcome, then the position shows up at the broker with our tag:
// the submission is assumed done and nothing is resent.
func TestSubmitIndeterminateThenVerified(t *testing.T) {
	fb := &fakeBroker{sendResults: []sendScript{{result: nil}}}
	fb.positions = []broker.BrokerPosition{{Ticket: 99, Symbol: "US100", Magic: 777, ClientTag: "tag-1"}}
	e := NewEngine(fb, 3, time.Millisecond)

	out, err := e.Submit(context.Background(), marketBuy(), testSpec(), testQuote())
	require.NoError(t, err)
	require.Equal(t, model.OperationStatusAssumed, out.Status)
	require.EqualValues(t, 99, out.Ticket)
	require.Len(t, fb.sendCalls, 1, "no duplicate orders after verification")
}

// Unknown outcomes with nothing at the broker: the same request is retried
// until the bridge finally answers.
func TestSubmitIndeterminateThenResent(t *testing.T) {
	fb := &fakeBroker{sendResults: []sendScript{
		{result: nil},
		{result: nil},
		{result: &broker.TradeResult{Retcode: broker.RetcodeDone, Ticket: 3}},
	}}
	e := NewEngine(fb, 3, time.Millisecond)

	out, err := e.Submit(context.Background(), marketBuy(), testSpec(), testQuote())
	require.NoError(t, err)
	require.Equal(t, model.OperationStatusDone, out.Status)
	require.Equal(t, 3, out.Attempts)
	for _, call := range fb.sendCalls {
		require.Equal(t, "tag-1", call.ClientTag, "resubmissions reuse the tag")
	}
}

func TestSubmitTerminalAborts(t *testing.T) {
	fb := &fakeBroker{sendResults: []sendScript{
		{result: &broker.TradeResult{Retcode: broker.RetcodeNoMoney}},
	}}
	e := NewEngine(fb, 3, time.Millisecond)

	out, err := e.Submit(context.Background(), marketBuy(), testSpec(), testQuote())
	var rerr *RejectedError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, broker.RetcodeNoMoney, rerr.Retcode)
	require.Equal(t, model.OperationStatusRejected, out.Status)
	require.Len(t, fb.sendCalls, 1, "terminal retcode must not be retried")
}

func TestSubmitTransientRetries(t *testing.T) {
	fb := &fakeBroker{sendResults: []sendScript{
		{result: &broker.TradeResult{Retcode: broker.RetcodeRequote}},
		{result: &broker.TradeResult{Retcode: broker.RetcodeDone, Ticket: 5}},
	}}
	e := NewEngine(fb, 3, time.Millisecond)

	out, err := e.Submit(context.Background(), marketBuy(), testSpec(), testQuote())
	require.NoError(t, err)
	require.Equal(t, 2, out.Attempts)
}

// A requoted pending order must chase the market: the retry re-fetches the
// quote and re-anchors the price at its original distance instead of
// resending the refused price.
func TestSubmitRequoteRepricesPending(t *testing.T) {
	fb := &fakeBroker{
		sendResults: []sendScript{
			{result: &broker.TradeResult{Retcode: broker.RetcodeRequote}},
			{result: &broker.TradeResult{Retcode: broker.RetcodeDone, Ticket: 8}},
		},
		quote: &broker.Quote{Symbol: "US100", Bid: dec(20049), Ask: dec(20051)},
	}
	e := NewEngine(fb, 3, time.Millisecond)

	req := broker.TradeRequest{
		Symbol: "US100", Kind: broker.OrderBuyLimit, Side: "buy",
		Volume: dec(1), Price: dec(19959), // 40 under the bid
		Magic: 777, ClientTag: "tag-1",
	}
	out, err := e.Submit(context.Background(), req, testSpec(), testQuote())
	require.NoError(t, err)
	require.Equal(t, model.OperationStatusDone, out.Status)
	require.Len(t, fb.sendCalls, 2)
	require.False(t, fb.sendCalls[1].Price.Equal(fb.sendCalls[0].Price),
		"retry must not resend the refused price")
	require.True(t, fb.sendCalls[1].Price.Equal(dec(20009)),
		"retry keeps the original distance from the fresh bid")
}

// A timeout answer may hide a fill: the retry first looks the tag up at the
// broker and must not resend once the order is visible there.
func TestSubmitTransientVerifiesBeforeRetry(t *testing.T) {
	fb := &fakeBroker{sendResults: []sendScript{
		{result: &broker.TradeResult{Retcode: broker.RetcodeTimeout}},
	}}
	fb.positions = []broker.BrokerPosition{{Ticket: 42, Symbol: "US100", Magic: 777, ClientTag: "tag-1"}}
	e := NewEngine(fb, 3, time.Millisecond)

	out, err := e.Submit(context.Background(), marketBuy(), testSpec(), testQuote())
	require.NoError(t, err)
	require.Equal(t, model.OperationStatusAssumed, out.Status)
	require.EqualValues(t, 42, out.Ticket)
	require.Len(t, fb.sendCalls, 1, "a filled order must not be duplicated after a timeout")
}

func TestClosePositionAlreadyGone(t *testing.T) {
	fb := &fakeBroker{closeResults: []sendScript{
		{result: &broker.TradeResult{Retcode: broker.RetcodePositionClosed}},
	}}
	e := NewEngine(fb, 3, time.Millisecond)

	err := e.ClosePosition(context.Background(), broker.BrokerPosition{Ticket: 4, Symbol: "US100", Magic: 777})
	require.NoError(t, err)
}

func TestClosePositionIndeterminateVerifiesGone(t *testing.T) {
	fb := &fakeBroker{
		closeResults: []sendScript{{result: nil}},
		positions:    nil, // ticket absent at the broker
	}
	e := NewEngine(fb, 3, time.Millisecond)

	err := e.ClosePosition(context.Background(), broker.BrokerPosition{Ticket: 4, Symbol: "US100", Magic: 777})
	require.NoError(t, err)
	require.Equal(t, 1, fb.closeCalls)
}

func TestCancelSide(t *testing.T) {
	fb := &fakeBroker{orders: []broker.PendingOrder{
		{Ticket: 1, Kind: broker.OrderBuyLimit},
		{Ticket: 2, Kind: broker.OrderSellLimit},
		{Ticket: 3, Kind: broker.OrderBuyStop},
	}}
	e := NewEngine(fb, 3, time.Millisecond)

	n, err := e.CancelSide(context.Background(), "US100", 777, true)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.ElementsMatch(t, []uint64{1, 3}, fb.cancelled)
}

func TestValidatePendingPrices(t *testing.T) {
	spec := testSpec()
	quote := testQuote()

	req := broker.TradeRequest{
		Symbol: "US100", Kind: broker.OrderBuyLimit, Side: "buy",
		Volume: dec(1), Price: dec(20005),
	}
	require.Error(t, Validate(req, spec, quote), "buy limit above bid must fail")

	req.Price = dec(19900)
	require.NoError(t, Validate(req, spec, quote))

	req.Kind = broker.OrderSellLimit
	req.Side = "sell"
	require.Error(t, Validate(req, spec, quote), "sell limit below ask must fail")

	req.Price = dec(20100)
	require.NoError(t, Validate(req, spec, quote))
}

func TestValidateStopOrdering(t *testing.T) {
	req := marketBuy()
	req.StopLoss = dec(20100) // above ask on a buy
	require.Error(t, Validate(req, testSpec(), testQuote()))

	req.StopLoss = dec(19900)
	req.TakeProfit = dec(20200)
	require.NoError(t, Validate(req, testSpec(), testQuote()))
}

func TestPlaceGridLevels(t *testing.T) {
	fb := &fakeBroker{}
	e := NewEngine(fb, 3, time.Millisecond)

	plan := GridPlan{
		Symbol:     "US100",
		Side:       model.DecisionBuy,
		Levels:     3,
		OffsetPct:  dec(0.002),
		SpacingPct: dec(0.001),
		Volume:     dec(3),
		Magic:      777,
	}
	results := e.PlaceGrid(context.Background(), plan, testSpec(), testQuote())
	require.Len(t, results, 3)

	for i, r := range results {
		require.NoError(t, r.Err)
		require.Equal(t, broker.OrderBuyLimit, r.Request.Kind)
		require.True(t, r.Request.Volume.Equal(dec(1)))
		require.True(t, r.Request.Price.LessThan(testQuote().Bid))
		if i > 0 {
			require.True(t, r.Request.Price.LessThan(results[i-1].Request.Price),
				"levels must step away from the market")
		}
		require.NotEmpty(t, r.Request.ClientTag)
	}
}
