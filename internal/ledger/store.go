package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Store holds the two ordered, append-only event sequences of a session:
// spot transfers and futures-PnL adjustments. Insertion order is the
// chronological trade order and is never changed by any operation; events
// are appended at the end, deleted by position, or cleared wholesale.
type Store struct {
	spotTransfers []SpotTransfer
	futuresPnl    []FuturesPnl
}

func NewStore() *Store {
	return &Store{}
}

// AppendSpotTransfer validates and appends a spot transfer event. Appends are
// atomic: a rejected event leaves the store unchanged.
func (s *Store) AppendSpotTransfer(t SpotTransfer) error {
	if t.Amount.IsNegative() {
		return fmt.Errorf("append spot transfer: %w (got %s)", ErrNegativeAmount, t.Amount)
	}
	s.spotTransfers = append(s.spotTransfers, t)
	return nil
}

// AppendFuturesPnl validates and appends a futures-PnL adjustment.
func (s *Store) AppendFuturesPnl(p FuturesPnl) error {
	if p.Amount.IsZero() {
		return fmt.Errorf("append futures pnl: %w", ErrZeroAmount)
	}
	s.futuresPnl = append(s.futuresPnl, p)
	return nil
}

// DeleteSpotTransfer removes exactly the event at position i, preserving the
// relative order of the rest.
func (s *Store) DeleteSpotTransfer(i int) error {
	if i < 0 || i >= len(s.spotTransfers) {
		return fmt.Errorf("delete spot transfer %d of %d: %w", i, len(s.spotTransfers), ErrIndexOutOfRange)
	}
	s.spotTransfers = append(s.spotTransfers[:i], s.spotTransfers[i+1:]...)
	return nil
}

// DeleteFuturesPnl removes exactly the event at position i.
func (s *Store) DeleteFuturesPnl(i int) error {
	if i < 0 || i >= len(s.futuresPnl) {
		return fmt.Errorf("delete futures pnl %d of %d: %w", i, len(s.futuresPnl), ErrIndexOutOfRange)
	}
	s.futuresPnl = append(s.futuresPnl[:i], s.futuresPnl[i+1:]...)
	return nil
}

// Reset clears both sequences.
func (s *Store) Reset() {
	s.spotTransfers = nil
	s.futuresPnl = nil
}

// SpotTransfers returns a copy of the spot transfer sequence in insertion order.
func (s *Store) SpotTransfers() []SpotTransfer {
	out := make([]SpotTransfer, len(s.spotTransfers))
	copy(out, s.spotTransfers)
	return out
}

// FuturesPnl returns a copy of the futures-PnL sequence in insertion order.
func (s *Store) FuturesPnl() []FuturesPnl {
	out := make([]FuturesPnl, len(s.futuresPnl))
	copy(out, s.futuresPnl)
	return out
}

func (s *Store) SpotTransferCount() int { return len(s.spotTransfers) }
func (s *Store) FuturesPnlCount() int   { return len(s.futuresPnl) }

// FuturesPnlTotal sums all recorded futures-PnL adjustments.
func (s *Store) FuturesPnlTotal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.futuresPnl {
		total = total.Add(p.Amount)
	}
	return total
}
