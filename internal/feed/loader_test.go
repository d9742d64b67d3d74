package feed_test

import (
	"testing"
	"time"

	"RoiLedger/internal/feed"
	"RoiLedger/internal/ledger"
	"RoiLedger/internal/roi"
	"RoiLedger/internal/session"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ts(sec int64) time.Time {
	return time.Unix(sec, 0)
}

func TestLoader_FoldsBatchIntoSession(t *testing.T) {
	s := session.New(roi.PolicyHighWaterMark)
	l := feed.NewLoader(zerolog.Nop())

	stats, err := l.Load(s, feed.Batch{
		Transfers: []feed.TransferRecord{
			{ID: "d1", Kind: feed.KindExternalDeposit, Amount: dec("500"), Timestamp: ts(1)},
			{ID: "d2", Kind: feed.KindExternalDeposit, Amount: dec("100"), Timestamp: ts(2)},
			{ID: "w1", Kind: feed.KindExternalWithdrawal, Amount: dec("80"), Timestamp: ts(3)},
		},
		Fills: []feed.FillRecord{
			{ID: "f1", Side: ledger.SideSell, Price: dec("10"), Size: dec("5"), Timestamp: ts(5)},
			{ID: "f2", Side: ledger.SideBuy, Price: dec("10"), Size: dec("2"), Timestamp: ts(6)},
		},
		Pnl: []feed.PnlRecord{
			{ID: "p1", Amount: dec("-7"), Timestamp: ts(7)},
			{ID: "p2", Amount: decimal.Zero, Timestamp: ts(8)},
		},
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if stats.TransfersApplied != 3 || stats.FillsApplied != 2 || stats.PnlApplied != 1 || stats.PnlSkipped != 1 {
		t.Errorf("stats = %+v", stats)
	}

	res := s.ComputeResult()
	if !res.ExternalDeposit.Equal(dec("600")) {
		t.Errorf("externalDeposit = %s, want 600", res.ExternalDeposit)
	}
	if !res.ExternalWithdrawal.Equal(dec("80")) {
		t.Errorf("externalWithdrawal = %s, want 80", res.ExternalWithdrawal)
	}
	if !res.TotalSpotSell.Equal(dec("50")) || !res.TotalSpotBuy.Equal(dec("20")) {
		t.Errorf("spot totals = %s/%s, want 50/20", res.TotalSpotSell, res.TotalSpotBuy)
	}
	if !res.FuturesPnlTotal.Equal(dec("-7")) {
		t.Errorf("futuresPnlTotal = %s, want -7", res.FuturesPnlTotal)
	}
}

func TestLoader_FillsAppliedInTimestampOrder(t *testing.T) {
	s := session.New(roi.PolicyHighWaterMark)
	l := feed.NewLoader(zerolog.Nop())

	// Out of order on the wire: the buy executed first, then the sell.
	_, err := l.Load(s, feed.Batch{
		Fills: []feed.FillRecord{
			{ID: "late-sell", Side: ledger.SideSell, Price: dec("100"), Size: dec("1"), Timestamp: ts(20)},
			{ID: "early-buy", Side: ledger.SideBuy, Price: dec("60"), Size: dec("1"), Timestamp: ts(10)},
		},
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// buy 60 then sell 100: flow peaks at 40. Wire order would peak at 100.
	if got := s.ComputeResult().HwmSpotFlow; !got.Equal(dec("40")) {
		t.Errorf("hwm = %s, want 40 (fills must be sorted by timestamp)", got)
	}
}

func TestLoader_AbortsOnBadFill(t *testing.T) {
	s := session.New(roi.PolicyHighWaterMark)
	l := feed.NewLoader(zerolog.Nop())

	_, err := l.Load(s, feed.Batch{
		Fills: []feed.FillRecord{
			{ID: "ok", Side: ledger.SideSell, Price: dec("10"), Size: dec("1"), Timestamp: ts(1)},
			{ID: "bad", Side: ledger.SideBuy, Price: dec("-10"), Size: dec("1"), Timestamp: ts(2)},
		},
	})
	if err == nil {
		t.Fatal("negative fill amount must abort the load")
	}

	// The first fill stays applied.
	if got := s.ComputeResult().TotalSpotSell; !got.Equal(dec("10")) {
		t.Errorf("totalSpotSell = %s, want 10", got)
	}
}
