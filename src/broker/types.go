package broker

import (
	"time"

	"github.com/shopspring/decimal"
)

// FillMode mirrors the bridge's order filling policies. The engine walks
// through the modes in preference order until the bridge accepts one.
type FillMode string

const (
	FillIOC    FillMode = "IOC"
	FillFOK    FillMode = "FOK"
	FillBOC    FillMode = "BOC"
	FillReturn FillMode = "RETURN"
)

// DefaultFillOrder is the preference order used when the symbol spec does not
// advertise its supported modes.
var DefaultFillOrder = []FillMode{FillIOC, FillFOK, FillBOC, FillReturn}

type OrderKind string

const (
	OrderMarket    OrderKind = "market"
	OrderBuyLimit  OrderKind = "buy_limit"
	OrderSellLimit OrderKind = "sell_limit"
	OrderBuyStop   OrderKind = "buy_stop"
	OrderSellStop  OrderKind = "sell_stop"
)

func (k OrderKind) IsPending() bool {
	return k != OrderMarket
}

func (k OrderKind) IsBuy() bool {
	return k == OrderBuyLimit || k == OrderBuyStop
}

// Quote is the bridge's current top of book for a symbol.
type Quote struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Time   time.Time       `json:"time"`
}

// SymbolSpec carries the contract parameters needed to validate a request
// before it goes on the wire.
type SymbolSpec struct {
	Symbol       string          `json:"symbol"`
	Point        decimal.Decimal `json:"point"`
	Digits       int             `json:"digits"`
	MinVolume    decimal.Decimal `json:"min_volume"`
	MaxVolume    decimal.Decimal `json:"max_volume"`
	VolumeStep   decimal.Decimal `json:"volume_step"`
	StopDistance decimal.Decimal `json:"stop_distance"`
	FillModes    []FillMode      `json:"fill_modes,omitempty"`
}

// TradeRequest is one order submission. ClientTag carries the caller's UUID
// so an order can be found again after an indeterminate response.
type TradeRequest struct {
	Symbol     string          `json:"symbol"`
	Kind       OrderKind       `json:"kind"`
	Side       string          `json:"side"`
	Volume     decimal.Decimal `json:"volume"`
	Price      decimal.Decimal `json:"price,omitempty"`
	StopLoss   decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit decimal.Decimal `json:"take_profit,omitempty"`
	Fill       FillMode        `json:"fill"`
	Magic      int64           `json:"magic"`
	ClientTag  string          `json:"client_tag"`
	Comment    string          `json:"comment,omitempty"`
}

// TradeResult is the bridge's answer to a trade request. A nil *TradeResult
// with a nil error from the session means the bridge accepted the request but
// its outcome is unknown; callers must re-verify by tag.
type TradeResult struct {
	Retcode int             `json:"retcode"`
	Ticket  uint64          `json:"ticket"`
	Price   decimal.Decimal `json:"price"`
	Volume  decimal.Decimal `json:"volume"`
	Comment string          `json:"comment,omitempty"`
}

func (r *TradeResult) Done() bool {
	return r != nil && (r.Retcode == RetcodeDone || r.Retcode == RetcodeDonePartial)
}

// BrokerPosition is an open position as the bridge reports it. The bridge is
// the source of truth; local state is reconciled against this every cycle.
type BrokerPosition struct {
	Ticket     uint64          `json:"ticket"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Volume     decimal.Decimal `json:"volume"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	Profit     decimal.Decimal `json:"profit"`
	Magic      int64           `json:"magic"`
	ClientTag  string          `json:"client_tag,omitempty"`
	OpenedAt   time.Time       `json:"opened_at"`
}

// PendingOrder is a resting limit or stop order at the bridge.
type PendingOrder struct {
	Ticket    uint64          `json:"ticket"`
	Symbol    string          `json:"symbol"`
	Kind      OrderKind       `json:"kind"`
	Volume    decimal.Decimal `json:"volume"`
	Price     decimal.Decimal `json:"price"`
	Magic     int64           `json:"magic"`
	ClientTag string          `json:"client_tag,omitempty"`
	PlacedAt  time.Time       `json:"placed_at"`
}
