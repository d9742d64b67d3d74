package session

import (
	"fmt"

	"RoiLedger/internal/ledger"
	"RoiLedger/internal/roi"

	"github.com/shopspring/decimal"
)

// ScalarField identifies one of the five user-editable scalar inputs.
type ScalarField int32

const (
	FieldStartBalance ScalarField = iota
	FieldEndBalance
	FieldExternalDeposit
	FieldExternalWithdrawal
	FieldInitialSpotBalance
)

func (f ScalarField) String() string {
	switch f {
	case FieldStartBalance:
		return "start_balance"
	case FieldEndBalance:
		return "end_balance"
	case FieldExternalDeposit:
		return "external_deposit"
	case FieldExternalWithdrawal:
		return "external_withdrawal"
	case FieldInitialSpotBalance:
		return "initial_spot_balance"
	default:
		return "unknown"
	}
}

// ErrUnknownField rejects SetScalarInput calls naming a field that does not
// exist.
var ErrUnknownField = fmt.Errorf("unknown scalar field")

// ParseScalarField maps an API field name to a ScalarField.
func ParseScalarField(name string) (ScalarField, error) {
	for _, f := range []ScalarField{
		FieldStartBalance, FieldEndBalance, FieldExternalDeposit,
		FieldExternalWithdrawal, FieldInitialSpotBalance,
	} {
		if f.String() == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// State is the root aggregate of one simulation session: the five scalar
// inputs plus the two event sequences. Each interactive session owns exactly
// one State; it is never shared and never global. Every successful mutation
// is followed synchronously by a full recompute of all derived values before
// control returns, so callers can never observe partial state. Failed
// mutations leave the state untouched.
type State struct {
	policy roi.Policy

	startBalance       decimal.Decimal
	endBalance         decimal.Decimal
	externalDeposit    decimal.Decimal
	externalWithdrawal decimal.Decimal
	initialSpotBalance decimal.Decimal

	store  *ledger.Store
	result Result
}

// New creates an empty session with all scalars at zero.
func New(policy roi.Policy) *State {
	s := &State{
		policy: policy,
		store:  ledger.NewStore(),
	}
	s.recompute()
	return s
}

// AddSpotTransfer appends a spot transfer event and recomputes.
func (s *State) AddSpotTransfer(side ledger.Side, amount, realizedPnl decimal.Decimal) error {
	err := s.store.AppendSpotTransfer(ledger.SpotTransfer{
		Side:        side,
		Amount:      amount,
		RealizedPnl: realizedPnl,
	})
	if err != nil {
		return err
	}
	s.recompute()
	return nil
}

// DeleteSpotTransfer removes the spot transfer at position i and recomputes.
func (s *State) DeleteSpotTransfer(i int) error {
	if err := s.store.DeleteSpotTransfer(i); err != nil {
		return err
	}
	s.recompute()
	return nil
}

// AddFuturesPnl appends a signed futures-PnL adjustment and recomputes.
func (s *State) AddFuturesPnl(amount decimal.Decimal) error {
	if err := s.store.AppendFuturesPnl(ledger.FuturesPnl{Amount: amount}); err != nil {
		return err
	}
	s.recompute()
	return nil
}

// DeleteFuturesPnl removes the futures-PnL entry at position i and recomputes.
func (s *State) DeleteFuturesPnl(i int) error {
	if err := s.store.DeleteFuturesPnl(i); err != nil {
		return err
	}
	s.recompute()
	return nil
}

// SetScalarInput edits one of the five scalar inputs and recomputes. Negative
// values are rejected; all five inputs are non-negative by contract.
func (s *State) SetScalarInput(f ScalarField, v decimal.Decimal) error {
	if v.IsNegative() {
		return fmt.Errorf("set %s: %w (got %s)", f, ledger.ErrNegativeAmount, v)
	}

	switch f {
	case FieldStartBalance:
		s.startBalance = v
	case FieldEndBalance:
		s.endBalance = v
	case FieldExternalDeposit:
		s.externalDeposit = v
	case FieldExternalWithdrawal:
		s.externalWithdrawal = v
	case FieldInitialSpotBalance:
		s.initialSpotBalance = v
	default:
		return fmt.Errorf("%w: %d", ErrUnknownField, f)
	}

	s.recompute()
	return nil
}

// AddScalarInput accumulates onto one of the scalar inputs. Used by the feed
// loader, which folds one transfer record at a time into the external
// deposit/withdrawal totals.
func (s *State) AddScalarInput(f ScalarField, delta decimal.Decimal) error {
	if delta.IsNegative() {
		return fmt.Errorf("add %s: %w (got %s)", f, ledger.ErrNegativeAmount, delta)
	}
	return s.SetScalarInput(f, s.Scalar(f).Add(delta))
}

// SetPolicy switches the principal-adjustment policy and recomputes.
func (s *State) SetPolicy(p roi.Policy) {
	s.policy = p
	s.recompute()
}

func (s *State) Policy() roi.Policy { return s.policy }

// Scalar returns the current value of one scalar input.
func (s *State) Scalar(f ScalarField) decimal.Decimal {
	switch f {
	case FieldStartBalance:
		return s.startBalance
	case FieldEndBalance:
		return s.endBalance
	case FieldExternalDeposit:
		return s.externalDeposit
	case FieldExternalWithdrawal:
		return s.externalWithdrawal
	case FieldInitialSpotBalance:
		return s.initialSpotBalance
	default:
		return decimal.Zero
	}
}

// SpotTransfers returns a copy of the spot transfer ledger.
func (s *State) SpotTransfers() []ledger.SpotTransfer { return s.store.SpotTransfers() }

// FuturesPnl returns a copy of the futures-PnL ledger.
func (s *State) FuturesPnl() []ledger.FuturesPnl { return s.store.FuturesPnl() }

// Reset clears both event sequences and zeroes all five scalar inputs.
func (s *State) Reset() {
	s.store.Reset()
	s.startBalance = decimal.Zero
	s.endBalance = decimal.Zero
	s.externalDeposit = decimal.Zero
	s.externalWithdrawal = decimal.Zero
	s.initialSpotBalance = decimal.Zero
	s.recompute()
}

// ProjectedEndBalance derives what the end balance would be if the recorded
// flows and futures PnL fully explained it:
// start + deposits - withdrawals + spot sells - spot buys + futures PnL.
// Advisory only: it is never written into the end-balance input
// automatically; callers may copy it in explicitly.
func (s *State) ProjectedEndBalance() decimal.Decimal {
	totalSell, totalBuy := roi.SpotTotals(s.store.SpotTransfers())
	return s.startBalance.
		Add(s.externalDeposit).
		Sub(s.externalWithdrawal).
		Add(totalSell).
		Sub(totalBuy).
		Add(s.store.FuturesPnlTotal())
}

// ComputeResult returns the derived values for the current state. It is a
// pure query: calling it any number of times without an intervening mutation
// yields identical output.
func (s *State) ComputeResult() Result {
	return s.result.clone()
}

// recompute performs the full derivation pass: spot balance replay, then the
// high-water mark, then the principal adjustment and ROI. It is pure
// arithmetic over valid state and runs after every successful mutation.
func (s *State) recompute() {
	transfers := s.store.SpotTransfers()

	currentSpot := roi.ReplaySpotBalance(s.initialSpotBalance, transfers)
	totalSell, totalBuy := roi.SpotTotals(transfers)
	hwm, trace := roi.HighWaterMark(s.initialSpotBalance, transfers)
	netFlow := roi.NetSpotFlow(totalSell, totalBuy, s.initialSpotBalance)

	out := roi.Compute(roi.Inputs{
		Policy:             s.policy,
		StartBalance:       s.startBalance,
		EndBalance:         s.endBalance,
		ExternalDeposit:    s.externalDeposit,
		ExternalWithdrawal: s.externalWithdrawal,
		InitialSpotBalance: s.initialSpotBalance,
		TotalSpotSell:      totalSell,
		TotalSpotBuy:       totalBuy,
		HwmSpotFlow:        hwm,
		NetSpotFlow:        netFlow,
	})

	s.result = Result{
		Policy:             s.policy,
		StartBalance:       s.startBalance,
		EndBalance:         s.endBalance,
		ExternalDeposit:    s.externalDeposit,
		ExternalWithdrawal: s.externalWithdrawal,
		InitialSpotBalance: s.initialSpotBalance,
		CurrentSpotBalance: currentSpot,
		TotalSpotSell:      totalSell,
		TotalSpotBuy:       totalBuy,
		HwmSpotFlow:        hwm,
		NetSpotFlow:        netFlow,
		FuturesPnlTotal:    s.store.FuturesPnlTotal(),
		Outcome:            out,
		FlowTrace:          trace,
	}
}
