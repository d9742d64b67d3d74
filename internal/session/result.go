package session

import (
	"fmt"
	"strings"

	"RoiLedger/internal/roi"

	"github.com/shopspring/decimal"
)

// Result is the full set of derived values for a session at one point in
// time. Every field is a pure function of the scalar inputs and the two event
// sequences; none can be mutated directly by a caller.
type Result struct {
	Policy roi.Policy `json:"policy"`

	StartBalance       decimal.Decimal `json:"start_balance"`
	EndBalance         decimal.Decimal `json:"end_balance"`
	ExternalDeposit    decimal.Decimal `json:"external_deposit"`
	ExternalWithdrawal decimal.Decimal `json:"external_withdrawal"`
	InitialSpotBalance decimal.Decimal `json:"initial_spot_balance"`

	CurrentSpotBalance decimal.Decimal `json:"current_spot_balance"`
	TotalSpotSell      decimal.Decimal `json:"total_spot_sell"`
	TotalSpotBuy       decimal.Decimal `json:"total_spot_buy"`
	HwmSpotFlow        decimal.Decimal `json:"hwm_spot_flow"`
	NetSpotFlow        decimal.Decimal `json:"net_spot_flow"`
	FuturesPnlTotal    decimal.Decimal `json:"futures_pnl_total"`

	roi.Outcome

	FlowTrace []roi.FlowPoint `json:"-"`
}

func (r Result) clone() Result {
	out := r
	out.FlowTrace = make([]roi.FlowPoint, len(r.FlowTrace))
	copy(out.FlowTrace, r.FlowTrace)
	return out
}

// Equal compares every derived value of two results. Used by callers that
// need to verify a rejected mutation changed nothing.
func (r Result) Equal(other Result) bool {
	return r.Policy == other.Policy &&
		r.StartBalance.Equal(other.StartBalance) &&
		r.EndBalance.Equal(other.EndBalance) &&
		r.ExternalDeposit.Equal(other.ExternalDeposit) &&
		r.ExternalWithdrawal.Equal(other.ExternalWithdrawal) &&
		r.InitialSpotBalance.Equal(other.InitialSpotBalance) &&
		r.CurrentSpotBalance.Equal(other.CurrentSpotBalance) &&
		r.TotalSpotSell.Equal(other.TotalSpotSell) &&
		r.TotalSpotBuy.Equal(other.TotalSpotBuy) &&
		r.HwmSpotFlow.Equal(other.HwmSpotFlow) &&
		r.NetSpotFlow.Equal(other.NetSpotFlow) &&
		r.FuturesPnlTotal.Equal(other.FuturesPnlTotal) &&
		r.TotalDeposit.Equal(other.TotalDeposit) &&
		r.TotalWithdrawal.Equal(other.TotalWithdrawal) &&
		r.PrincipalAdjustment.Equal(other.PrincipalAdjustment) &&
		r.RawPnl.Equal(other.RawPnl) &&
		r.AdjustedPnl.Equal(other.AdjustedPnl) &&
		r.RoiPercent.Equal(other.RoiPercent) &&
		len(r.FlowTrace) == len(other.FlowTrace)
}

// BreakdownTable renders the audit trace of every intermediate value as a
// human-readable table, mirroring the four calculation stages: flow
// aggregation, principal adjustment, adjusted PnL, ROI.
func (r Result) BreakdownTable() string {
	var b strings.Builder

	fmt.Fprintf(&b, "1. Deposit / withdrawal aggregation\n")
	fmt.Fprintf(&b, "   total deposit    = external deposit (%s) + spot sell (%s) = %s\n",
		r.ExternalDeposit, r.TotalSpotSell, r.TotalDeposit)
	fmt.Fprintf(&b, "   total withdrawal = external withdrawal (%s) + spot buy (%s) = %s\n",
		r.ExternalWithdrawal, r.TotalSpotBuy, r.TotalWithdrawal)

	fmt.Fprintf(&b, "2. Principal adjustment (policy=%s)\n", r.Policy)
	switch r.Policy {
	case roi.PolicyHighWaterMark:
		for _, p := range r.FlowTrace {
			fmt.Fprintf(&b, "   %-4s %-12s -> net spot flow: %s (hwm: %s)\n",
				p.Side, p.Amount, p.Flow, p.HighWaterMark)
		}
		fmt.Fprintf(&b, "   principal adjustment = external deposit (%s) + max(0, hwm %s) = %s\n",
			r.ExternalDeposit, r.HwmSpotFlow, r.PrincipalAdjustment)
	case roi.PolicyNetFlow:
		fmt.Fprintf(&b, "   net spot flow = sell (%s) - buy (%s) - min(sell, initial spot %s) = %s\n",
			r.TotalSpotSell, r.TotalSpotBuy, r.InitialSpotBalance, r.NetSpotFlow)
		fmt.Fprintf(&b, "   principal adjustment = external deposit (%s) + max(0, net flow %s) = %s\n",
			r.ExternalDeposit, r.NetSpotFlow, r.PrincipalAdjustment)
	case roi.PolicySimpleTransfer:
		fmt.Fprintf(&b, "   principal adjustment = external deposit = %s\n", r.PrincipalAdjustment)
	}

	fmt.Fprintf(&b, "3. Adjusted PnL\n")
	fmt.Fprintf(&b, "   adjusted pnl = end (%s) - start (%s) - total deposit (%s) + total withdrawal (%s) = %s\n",
		r.EndBalance, r.StartBalance, r.TotalDeposit, r.TotalWithdrawal, r.AdjustedPnl)

	fmt.Fprintf(&b, "4. ROI\n")
	fmt.Fprintf(&b, "   roi %% = adjusted pnl (%s) / (start (%s) + principal adjustment (%s)) * 100 = %s%%\n",
		r.AdjustedPnl, r.StartBalance, r.PrincipalAdjustment, r.RoiPercent.StringFixed(2))

	fmt.Fprintf(&b, "   current spot balance: %s | futures pnl total: %s\n",
		r.CurrentSpotBalance, r.FuturesPnlTotal)

	return b.String()
}
