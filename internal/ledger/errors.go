package ledger

import "errors"

var (
	// ErrNegativeAmount rejects appends and scalar edits with amount < 0.
	ErrNegativeAmount = errors.New("amount must be non-negative")

	// ErrZeroAmount rejects futures-PnL appends with amount == 0.
	ErrZeroAmount = errors.New("amount must be non-zero")

	// ErrIndexOutOfRange rejects deletes referencing a position outside the
	// sequence. The sequence is left unchanged.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrNotFinite rejects scalar inputs that are NaN or infinite. Decimal
	// values cannot represent either, so this only fires at float boundaries.
	ErrNotFinite = errors.New("value must be finite")
)
