package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"RoiLedger/internal/ledger"

	"github.com/shopspring/decimal"
)

// ParseRawRecord converts a RawRecord (JSON bytes + record type string) into a
// typed feed record: TransferRecord, FillRecord or PnlRecord. Normalization
// happens here, at the edge; everything past this point is typed and validated.
func ParseRawRecord(raw RawRecord, recordType string) (any, error) {
	switch recordType {
	case "Transfer":
		return parseTransfer(raw.Data)
	case "Fill":
		return parseFill(raw.Data)
	case "Pnl":
		return parsePnl(raw.Data)
	default:
		return nil, fmt.Errorf("unknown record type: %s", recordType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS. Field names
// use snake_case to match upstream producers; money fields are decimal
// strings, never floats.

type transferJSON struct {
	ID          string `json:"id"`
	Currency    string `json:"currency"`
	Kind        string `json:"kind"` // "deposit" or "withdrawal"
	Amount      string `json:"amount"`
	TimestampMs int64  `json:"timestamp_ms"`
}

func parseTransfer(data []byte) (TransferRecord, error) {
	var j transferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return TransferRecord{}, fmt.Errorf("parse Transfer: %w", err)
	}

	var kind TransferKind
	switch j.Kind {
	case "deposit":
		kind = KindExternalDeposit
	case "withdrawal":
		kind = KindExternalWithdrawal
	default:
		return TransferRecord{}, fmt.Errorf("parse Transfer: unknown kind %q", j.Kind)
	}

	amount, err := decimal.NewFromString(j.Amount)
	if err != nil {
		return TransferRecord{}, fmt.Errorf("parse amount: %w", err)
	}
	if amount.IsNegative() {
		return TransferRecord{}, fmt.Errorf("parse Transfer %s: %w (got %s)", j.ID, ledger.ErrNegativeAmount, amount)
	}

	return TransferRecord{
		ID:        j.ID,
		Timestamp: time.UnixMilli(j.TimestampMs),
		Currency:  j.Currency,
		Kind:      kind,
		Amount:    amount,
	}, nil
}

type fillJSON struct {
	ID          string `json:"id"`
	Instrument  string `json:"instrument"`
	Side        string `json:"side"` // "buy" or "sell"
	Price       string `json:"price"`
	Size        string `json:"size"`
	RealizedPnl string `json:"realized_pnl"`
	TimestampMs int64  `json:"timestamp_ms"`
}

func parseFill(data []byte) (FillRecord, error) {
	var j fillJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return FillRecord{}, fmt.Errorf("parse Fill: %w", err)
	}

	var side ledger.Side
	switch j.Side {
	case "buy":
		side = ledger.SideBuy
	case "sell":
		side = ledger.SideSell
	default:
		return FillRecord{}, fmt.Errorf("parse Fill: unknown side %q", j.Side)
	}

	price, err := decimal.NewFromString(j.Price)
	if err != nil {
		return FillRecord{}, fmt.Errorf("parse price: %w", err)
	}
	size, err := decimal.NewFromString(j.Size)
	if err != nil {
		return FillRecord{}, fmt.Errorf("parse size: %w", err)
	}
	if price.IsNegative() || size.IsNegative() {
		return FillRecord{}, fmt.Errorf("parse Fill %s: %w", j.ID, ledger.ErrNegativeAmount)
	}

	pnl := decimal.Zero
	if j.RealizedPnl != "" {
		pnl, err = decimal.NewFromString(j.RealizedPnl)
		if err != nil {
			return FillRecord{}, fmt.Errorf("parse realized_pnl: %w", err)
		}
	}

	return FillRecord{
		ID:          j.ID,
		Timestamp:   time.UnixMilli(j.TimestampMs),
		Instrument:  j.Instrument,
		Side:        side,
		Price:       price,
		Size:        size,
		RealizedPnl: pnl,
	}, nil
}

type pnlJSON struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"` // signed
	TimestampMs int64  `json:"timestamp_ms"`
}

func parsePnl(data []byte) (PnlRecord, error) {
	var j pnlJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return PnlRecord{}, fmt.Errorf("parse Pnl: %w", err)
	}

	amount, err := decimal.NewFromString(j.Amount)
	if err != nil {
		return PnlRecord{}, fmt.Errorf("parse amount: %w", err)
	}

	return PnlRecord{
		ID:        j.ID,
		Timestamp: time.UnixMilli(j.TimestampMs),
		Amount:    amount,
	}, nil
}
