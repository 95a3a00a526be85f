package broker

import "fmt"

// Trade server return codes as the bridge forwards them.
const (
	RetcodeRequote        = 10004
	RetcodeRejected       = 10006
	RetcodeCancelled      = 10007
	RetcodePlaced         = 10008
	RetcodeDone           = 10009
	RetcodeDonePartial    = 10010
	RetcodeError          = 10011
	RetcodeTimeout        = 10012
	RetcodeInvalid        = 10013
	RetcodeInvalidVolume  = 10014
	RetcodeInvalidPrice   = 10015
	RetcodeInvalidStops   = 10016
	RetcodeTradeDisabled  = 10017
	RetcodeMarketClosed   = 10018
	RetcodeNoMoney        = 10019
	RetcodePriceChanged   = 10020
	RetcodePriceOff       = 10021
	RetcodeTooManyOrders  = 10024
	RetcodeInvalidFill    = 10030
	RetcodeNoConnection   = 10031
	RetcodeLimitOrders    = 10033
	RetcodeLimitVolume    = 10034
	RetcodePositionClosed = 10036
)

var retcodeNames = map[int]string{
	RetcodeRequote:        "TRADE_RETCODE_REQUOTE",
	RetcodeRejected:       "TRADE_RETCODE_REJECT",
	RetcodeCancelled:      "TRADE_RETCODE_CANCEL",
	RetcodePlaced:         "TRADE_RETCODE_PLACED",
	RetcodeDone:           "TRADE_RETCODE_DONE",
	RetcodeDonePartial:    "TRADE_RETCODE_DONE_PARTIAL",
	RetcodeError:          "TRADE_RETCODE_ERROR",
	RetcodeTimeout:        "TRADE_RETCODE_TIMEOUT",
	RetcodeInvalid:        "TRADE_RETCODE_INVALID",
	RetcodeInvalidVolume:  "TRADE_RETCODE_INVALID_VOLUME",
	RetcodeInvalidPrice:   "TRADE_RETCODE_INVALID_PRICE",
	RetcodeInvalidStops:   "TRADE_RETCODE_INVALID_STOPS",
	RetcodeTradeDisabled:  "TRADE_RETCODE_TRADE_DISABLED",
	RetcodeMarketClosed:   "TRADE_RETCODE_MARKET_CLOSED",
	RetcodeNoMoney:        "TRADE_RETCODE_NO_MONEY",
	RetcodePriceChanged:   "TRADE_RETCODE_PRICE_CHANGED",
	RetcodePriceOff:       "TRADE_RETCODE_PRICE_OFF",
	RetcodeTooManyOrders:  "TRADE_RETCODE_TOO_MANY_REQUESTS",
	RetcodeInvalidFill:    "TRADE_RETCODE_INVALID_FILL",
	RetcodeNoConnection:   "TRADE_RETCODE_CONNECTION",
	RetcodeLimitOrders:    "TRADE_RETCODE_LIMIT_ORDERS",
	RetcodeLimitVolume:    "TRADE_RETCODE_LIMIT_VOLUME",
	RetcodePositionClosed: "TRADE_RETCODE_POSITION_CLOSED",
}

// RetcodeName returns the symbolic name for a return code, or a generic
// label including the raw code when unknown.
func RetcodeName(code int) string {
	if name, ok := retcodeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_RETCODE_%d", code)
}

// IsTransient reports whether a retcode is worth retrying the same request
// for. Requotes and price drift want a fresh price, connection loss and
// timeouts want the same request again.
func IsTransient(code int) bool {
	switch code {
	case RetcodeRequote, RetcodeTimeout, RetcodePriceChanged, RetcodePriceOff,
		RetcodeNoConnection, RetcodeTooManyOrders, RetcodeError:
		return true
	}
	return false
}

// IsTerminal reports whether a retcode means the request can never succeed
// as-is. Terminal codes abort the attempt loop immediately.
func IsTerminal(code int) bool {
	switch code {
	case RetcodeRejected, RetcodeInvalid, RetcodeInvalidVolume, RetcodeInvalidPrice,
		RetcodeInvalidStops, RetcodeTradeDisabled, RetcodeMarketClosed, RetcodeNoMoney,
		RetcodeLimitOrders, RetcodeLimitVolume:
		return true
	}
	return false
}

// NeedsFillFallback reports whether the bridge refused the filling policy,
// in which case the next mode in the preference order should be tried.
func NeedsFillFallback(code int) bool {
	return code == RetcodeInvalidFill
}
