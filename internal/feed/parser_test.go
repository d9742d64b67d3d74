package feed_test

import (
	"encoding/json"
	"testing"
	"time"

	"RoiLedger/internal/feed"
	"RoiLedger/internal/ledger"
)

func rawFromJSON(t *testing.T, v interface{}) feed.RawRecord {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return feed.RawRecord{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseTransfer(t *testing.T) {
	payload := map[string]interface{}{
		"id":           "dep-001",
		"currency":     "USDT",
		"kind":         "deposit",
		"amount":       "250.5",
		"timestamp_ms": int64(1700000000000),
	}

	raw := rawFromJSON(t, payload)
	rec, err := feed.ParseRawRecord(raw, "Transfer")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	tr, ok := rec.(feed.TransferRecord)
	if !ok {
		t.Fatalf("expected feed.TransferRecord, got %T", rec)
	}
	if tr.Kind != feed.KindExternalDeposit {
		t.Errorf("kind: got %v, want deposit", tr.Kind)
	}
	if !tr.Amount.Equal(dec("250.5")) {
		t.Errorf("amount: got %s, want 250.5", tr.Amount)
	}
	if tr.Timestamp.UnixMilli() != 1700000000000 {
		t.Errorf("timestamp: got %d", tr.Timestamp.UnixMilli())
	}
}

func TestParseTransfer_NegativeAmountRejected(t *testing.T) {
	raw := rawFromJSON(t, map[string]interface{}{
		"id": "dep-002", "currency": "USDT", "kind": "deposit", "amount": "-5",
	})
	if _, err := feed.ParseRawRecord(raw, "Transfer"); err == nil {
		t.Fatal("negative transfer amount must be rejected")
	}
}

func TestParseTransfer_UnknownKindRejected(t *testing.T) {
	raw := rawFromJSON(t, map[string]interface{}{
		"id": "x", "currency": "USDT", "kind": "rebate", "amount": "5",
	})
	if _, err := feed.ParseRawRecord(raw, "Transfer"); err == nil {
		t.Fatal("unknown kind must be rejected")
	}
}

func TestParseFill(t *testing.T) {
	payload := map[string]interface{}{
		"id":           "fill-001",
		"instrument":   "BTC-USDT",
		"side":         "sell",
		"price":        "50000",
		"size":         "0.002",
		"realized_pnl": "-20",
		"timestamp_ms": int64(1700000001000),
	}

	rec, err := feed.ParseRawRecord(rawFromJSON(t, payload), "Fill")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	f, ok := rec.(feed.FillRecord)
	if !ok {
		t.Fatalf("expected feed.FillRecord, got %T", rec)
	}
	if f.Side != ledger.SideSell {
		t.Errorf("side: got %v, want sell", f.Side)
	}
	if !f.Amount().Equal(dec("100")) {
		t.Errorf("amount: got %s, want price*size = 100", f.Amount())
	}
	if !f.RealizedPnl.Equal(dec("-20")) {
		t.Errorf("realized pnl: got %s, want -20", f.RealizedPnl)
	}
}

func TestParseFill_EmptyPnlDefaultsToZero(t *testing.T) {
	rec, err := feed.ParseRawRecord(rawFromJSON(t, map[string]interface{}{
		"id": "fill-002", "instrument": "ETH-USDT", "side": "buy",
		"price": "3000", "size": "1",
	}), "Fill")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !rec.(feed.FillRecord).RealizedPnl.IsZero() {
		t.Error("omitted realized_pnl must default to zero")
	}
}

func TestParsePnl_SignedAmount(t *testing.T) {
	rec, err := feed.ParseRawRecord(rawFromJSON(t, map[string]interface{}{
		"id": "pnl-001", "amount": "-12.75", "timestamp_ms": int64(1700000002000),
	}), "Pnl")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !rec.(feed.PnlRecord).Amount.Equal(dec("-12.75")) {
		t.Errorf("amount: got %s, want -12.75", rec.(feed.PnlRecord).Amount)
	}
}

func TestParseRawRecord_UnknownType(t *testing.T) {
	if _, err := feed.ParseRawRecord(rawFromJSON(t, map[string]interface{}{}), "Dividend"); err == nil {
		t.Fatal("unknown record type must be rejected")
	}
}
