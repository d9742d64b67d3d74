package roi

import (
	"RoiLedger/internal/ledger"

	"github.com/shopspring/decimal"
)

// ReplaySpotBalance derives the current spot wallet balance from the initial
// balance and the full transfer sequence, replayed in insertion order. Buys
// add the cash amount; sells release the original cost basis rather than the
// cash received, so a sell at a loss does not distort the remaining balance.
// The result is clamped at zero; negative spot balances are not representable.
func ReplaySpotBalance(initialSpot decimal.Decimal, transfers []ledger.SpotTransfer) decimal.Decimal {
	balance := initialSpot
	for _, t := range transfers {
		switch t.Side {
		case ledger.SideBuy:
			balance = balance.Add(t.Amount)
		case ledger.SideSell:
			balance = balance.Sub(t.CostBasis())
		}
	}
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// SpotTotals sums the raw cash amounts per side. These totals are independent
// of cost-basis logic and feed the flow and principal calculations.
func SpotTotals(transfers []ledger.SpotTransfer) (totalSell, totalBuy decimal.Decimal) {
	totalSell, totalBuy = decimal.Zero, decimal.Zero
	for _, t := range transfers {
		switch t.Side {
		case ledger.SideSell:
			totalSell = totalSell.Add(t.Amount)
		case ledger.SideBuy:
			totalBuy = totalBuy.Add(t.Amount)
		}
	}
	return totalSell, totalBuy
}
