package roi

import (
	"RoiLedger/internal/ledger"

	"github.com/shopspring/decimal"
)

// FlowPoint is one step of the high-water-mark replay, kept for the audit
// breakdown: the event applied, the net spot flow after it, and the running
// high-water mark.
type FlowPoint struct {
	Side          ledger.Side
	Amount        decimal.Decimal
	Flow          decimal.Decimal
	HighWaterMark decimal.Decimal
}

// HighWaterMark replays the spot transfer sequence and returns the peak net
// outflow from spot into futures observed at any prefix, together with the
// per-event trace.
//
// Flow at any prefix is (cumSell - cumBuy) - min(cumSell, initialSpot): cash
// pulled out of spot net of cash put back in, after allowing the first
// initialSpot of cumulative sells to count as return-of-capital rather than
// extraction. The running maximum is monotonic non-decreasing: later buys
// that refill spot never retroactively lower a peak that already occurred, so
// cycling funds out and back cannot reset the mark.
//
// With zero transfers the mark is zero.
func HighWaterMark(initialSpot decimal.Decimal, transfers []ledger.SpotTransfer) (decimal.Decimal, []FlowPoint) {
	cumSell, cumBuy := decimal.Zero, decimal.Zero
	hwm := decimal.Zero

	trace := make([]FlowPoint, 0, len(transfers))
	for _, t := range transfers {
		switch t.Side {
		case ledger.SideSell:
			cumSell = cumSell.Add(t.Amount)
		case ledger.SideBuy:
			cumBuy = cumBuy.Add(t.Amount)
		}

		deduction := decimal.Min(cumSell, initialSpot)
		flow := cumSell.Sub(cumBuy).Sub(deduction)
		if flow.GreaterThan(hwm) {
			hwm = flow
		}

		trace = append(trace, FlowPoint{
			Side:          t.Side,
			Amount:        t.Amount,
			Flow:          flow,
			HighWaterMark: hwm,
		})
	}

	return hwm, trace
}

// NetSpotFlow is the non-HWM fallback: the net flow over the whole window,
// ignoring the path taken. Used by the raw net-flow policy variant.
func NetSpotFlow(totalSell, totalBuy, initialSpot decimal.Decimal) decimal.Decimal {
	deduction := decimal.Min(totalSell, initialSpot)
	return totalSell.Sub(totalBuy).Sub(deduction)
}
