package ledger

import (
	"github.com/shopspring/decimal"
)

// Side represents the direction of a spot transfer
type Side int32

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// SpotTransfer is a single internal transfer between the spot wallet and the
// futures/margin wallet, expressed in quote currency (USDT). Events are
// immutable once appended; only whole-event deletion by position is supported.
type SpotTransfer struct {
	Side   Side
	Amount decimal.Decimal // quote currency moved, always >= 0

	// RealizedPnl is only meaningful on sells: the signed profit or loss
	// realized on the underlying asset, separate from the cash received.
	RealizedPnl decimal.Decimal
}

// CostBasis returns the wallet value released by a sell. The cash amount
// received is not what leaves the wallet; the original cost basis is, and
// realized PnL is the difference between the two.
//
// Example: an asset that cost 30 is sold for 10 cash with realized PnL -20.
// CostBasis = 10 - (-20) = 30, zeroing out the basis that left the wallet.
func (t SpotTransfer) CostBasis() decimal.Decimal {
	return t.Amount.Sub(t.RealizedPnl)
}

// FuturesPnl is a manually recorded futures PnL adjustment. Amount is signed
// and never zero; zero entries are rejected at append time.
type FuturesPnl struct {
	Amount decimal.Decimal
}
