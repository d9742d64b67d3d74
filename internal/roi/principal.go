package roi

import (
	"github.com/shopspring/decimal"
)

// Policy selects how internal spot/futures transfers feed the principal
// adjustment. The choice is a per-venue configuration, never inferred from
// the data.
type Policy int32

const (
	// PolicyHighWaterMark credits the peak net spot-to-futures extraction as
	// injected principal. Default for venues with an internal spot transfer
	// channel (e.g. OKX unified accounts).
	PolicyHighWaterMark Policy = iota

	// PolicyNetFlow credits the end-of-window net spot flow instead of the
	// peak. Retained as a selectable fallback for callers that do not want
	// path-dependent adjustment.
	PolicyNetFlow

	// PolicySimpleTransfer ignores spot flows entirely: only external
	// deposits count as injected principal. For venues where no internal
	// spot transfer channel exists (e.g. isolated futures-only wallets).
	PolicySimpleTransfer
)

func (p Policy) String() string {
	switch p {
	case PolicyHighWaterMark:
		return "hwm"
	case PolicyNetFlow:
		return "netflow"
	case PolicySimpleTransfer:
		return "simple"
	default:
		return "unknown"
	}
}

// ParsePolicy maps a config/API string to a Policy.
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "hwm", "":
		return PolicyHighWaterMark, true
	case "netflow":
		return PolicyNetFlow, true
	case "simple":
		return PolicySimpleTransfer, true
	default:
		return PolicyHighWaterMark, false
	}
}

// Inputs carries everything the principal/ROI calculation needs: the five
// user-editable scalars plus the replay-derived flow values.
type Inputs struct {
	Policy Policy

	StartBalance       decimal.Decimal
	EndBalance         decimal.Decimal
	ExternalDeposit    decimal.Decimal
	ExternalWithdrawal decimal.Decimal
	InitialSpotBalance decimal.Decimal

	TotalSpotSell decimal.Decimal
	TotalSpotBuy  decimal.Decimal
	HwmSpotFlow   decimal.Decimal
	NetSpotFlow   decimal.Decimal
}

// Outcome is the principal adjustment and ROI derived from Inputs. All fields
// are pure functions of the inputs.
type Outcome struct {
	TotalDeposit        decimal.Decimal `json:"total_deposit"`
	TotalWithdrawal     decimal.Decimal `json:"total_withdrawal"`
	PrincipalAdjustment decimal.Decimal `json:"principal_adjustment"`
	RawPnl              decimal.Decimal `json:"raw_pnl"`
	AdjustedPnl         decimal.Decimal `json:"adjusted_pnl"`
	RoiPercent          decimal.Decimal `json:"roi_percent"`
}

var hundred = decimal.NewFromInt(100)

// Compute produces the adjusted PnL and ROI, excluding external capital
// movements and internal spot/futures transfers from the trading result.
//
// ROI with a zero denominator (start balance and principal adjustment both
// zero) reports 0 rather than failing; the computation is total.
func Compute(in Inputs) Outcome {
	totalDeposit := in.ExternalDeposit.Add(in.TotalSpotSell)
	totalWithdrawal := in.ExternalWithdrawal.Add(in.TotalSpotBuy)

	principal := in.ExternalDeposit
	switch in.Policy {
	case PolicyHighWaterMark:
		principal = principal.Add(decimal.Max(decimal.Zero, in.HwmSpotFlow))
	case PolicyNetFlow:
		principal = principal.Add(decimal.Max(decimal.Zero, in.NetSpotFlow))
	case PolicySimpleTransfer:
		// External deposits only; the venue has no internal spot channel.
	}

	rawPnl := in.EndBalance.Sub(in.StartBalance)
	adjustedPnl := rawPnl.Sub(totalDeposit).Add(totalWithdrawal)

	denominator := in.StartBalance.Add(principal)
	roiPercent := decimal.Zero
	if denominator.IsPositive() {
		roiPercent = adjustedPnl.Div(denominator).Mul(hundred)
	}

	return Outcome{
		TotalDeposit:        totalDeposit,
		TotalWithdrawal:     totalWithdrawal,
		PrincipalAdjustment: principal,
		RawPnl:              rawPnl,
		AdjustedPnl:         adjustedPnl,
		RoiPercent:          roiPercent,
	}
}
