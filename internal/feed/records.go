package feed

import (
	"context"
	"time"

	"RoiLedger/internal/ledger"
	"RoiLedger/internal/roi"

	"github.com/shopspring/decimal"
)

// TransferKind classifies an external capital movement. Internal spot/futures
// transfers are never TransferRecords; they arrive as FillRecords.
type TransferKind int32

const (
	KindExternalDeposit TransferKind = iota
	KindExternalWithdrawal
)

func (k TransferKind) String() string {
	switch k {
	case KindExternalDeposit:
		return "deposit"
	case KindExternalWithdrawal:
		return "withdrawal"
	default:
		return "unknown"
	}
}

// TransferRecord is one external deposit or withdrawal fetched from a venue.
// Amount is always positive; Kind carries the direction.
type TransferRecord struct {
	ID        string
	Timestamp time.Time
	Currency  string
	Kind      TransferKind
	Amount    decimal.Decimal
}

// FillRecord is one spot trade against the margin currency. Amount is the
// notional value of the fill in the margin currency.
type FillRecord struct {
	ID          string
	Timestamp   time.Time
	Instrument  string
	Side        ledger.Side
	Price       decimal.Decimal
	Size        decimal.Decimal
	RealizedPnl decimal.Decimal
}

// Amount is the notional transferred by the fill: price times size.
func (f FillRecord) Amount() decimal.Decimal {
	return f.Price.Mul(f.Size)
}

// PnlRecord is one signed futures income entry (realized PnL, funding fee).
type PnlRecord struct {
	ID        string
	Timestamp time.Time
	Amount    decimal.Decimal
}

// AccountSnapshot is a venue's view of the account at fetch time.
type AccountSnapshot struct {
	Timestamp        time.Time
	Currency         string
	Equity           decimal.Decimal
	AvailableBalance decimal.Decimal
	UnrealizedPnl    decimal.Decimal
}

// MarginUsed is equity minus the freely available balance.
func (s AccountSnapshot) MarginUsed() decimal.Decimal {
	return s.Equity.Sub(s.AvailableBalance)
}

// MarginUsedExclUpl strips unrealized PnL out of the margin figure, leaving
// only the collateral actually committed to open positions.
func (s AccountSnapshot) MarginUsedExclUpl() decimal.Decimal {
	return s.MarginUsed().Sub(s.UnrealizedPnl)
}

// Window bounds a fetch: records with Timestamp in [Start, End) for Currency.
type Window struct {
	Start    time.Time
	End      time.Time
	Currency string
}

// Batch is everything one fetch returned for a window.
type Batch struct {
	Transfers []TransferRecord
	Fills     []FillRecord
	Pnl       []PnlRecord
	Snapshot  *AccountSnapshot
}

// Source fetches reconciliation inputs from a venue for a time window.
// Policy is the principal-adjustment policy that matches how the venue
// reports flows. Implementations live under internal/exchange.
type Source interface {
	Name() string
	Policy() roi.Policy
	Fetch(ctx context.Context, w Window) (Batch, error)
}
