package feed

import (
	"fmt"
	"sort"

	"RoiLedger/internal/session"

	"github.com/rs/zerolog"
)

// LoadStats reports what a Load pass applied to the session.
type LoadStats struct {
	TransfersApplied int
	FillsApplied     int
	PnlApplied       int
	PnlSkipped       int
}

// Loader folds fetched batches into a session. Fills are applied in timestamp
// order so the high-water mark sees the flows in the order the venue executed
// them.
type Loader struct {
	log zerolog.Logger
}

func NewLoader(log zerolog.Logger) *Loader {
	return &Loader{log: log}
}

// Load applies a batch to the session. Transfers accumulate onto the external
// deposit/withdrawal inputs, fills append to the spot transfer ledger, and pnl
// records append to the futures ledger. Zero-amount pnl records carry no
// information and are skipped, not rejected. The first failed mutation aborts
// the load; everything applied before it stays applied.
func (l *Loader) Load(s *session.State, b Batch) (LoadStats, error) {
	var stats LoadStats

	for _, tr := range b.Transfers {
		field := session.FieldExternalDeposit
		if tr.Kind == KindExternalWithdrawal {
			field = session.FieldExternalWithdrawal
		}
		if err := s.AddScalarInput(field, tr.Amount); err != nil {
			return stats, fmt.Errorf("apply transfer %s: %w", tr.ID, err)
		}
		stats.TransfersApplied++
	}

	fills := make([]FillRecord, len(b.Fills))
	copy(fills, b.Fills)
	sort.SliceStable(fills, func(i, j int) bool {
		return fills[i].Timestamp.Before(fills[j].Timestamp)
	})
	for _, f := range fills {
		if err := s.AddSpotTransfer(f.Side, f.Amount(), f.RealizedPnl); err != nil {
			return stats, fmt.Errorf("apply fill %s: %w", f.ID, err)
		}
		stats.FillsApplied++
	}

	for _, p := range b.Pnl {
		if p.Amount.IsZero() {
			stats.PnlSkipped++
			continue
		}
		if err := s.AddFuturesPnl(p.Amount); err != nil {
			return stats, fmt.Errorf("apply pnl %s: %w", p.ID, err)
		}
		stats.PnlApplied++
	}

	l.log.Info().
		Int("transfers", stats.TransfersApplied).
		Int("fills", stats.FillsApplied).
		Int("pnl", stats.PnlApplied).
		Int("pnl_skipped", stats.PnlSkipped).
		Msg("batch loaded into session")

	return stats, nil
}
