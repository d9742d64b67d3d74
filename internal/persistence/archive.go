// Package persistence archives fetched feed records to Postgres. The archive
// is an audit trail of raw reconciliation inputs; session state itself is
// ephemeral and never stored here.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"RoiLedger/internal/feed"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Archive writes fetched batches to the roi_archive schema using multi-row
// INSERTs. Writes are idempotent: re-archiving the same venue records is a
// no-op.
type Archive struct {
	db *sql.DB
}

func NewArchive(db *sql.DB) *Archive {
	return &Archive{db: db}
}

// Open connects to Postgres and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// ArchiveBatch stores every record of one fetch under a fresh fetch ID and
// returns it. The three record kinds go to their own tables inside a single
// transaction.
func (a *Archive) ArchiveBatch(ctx context.Context, venue string, b feed.Batch) (uuid.UUID, error) {
	fetchID := uuid.New()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertTransfers(ctx, tx, venue, fetchID, b.Transfers); err != nil {
		return uuid.Nil, fmt.Errorf("archive transfers: %w", err)
	}
	if err := insertFills(ctx, tx, venue, fetchID, b.Fills); err != nil {
		return uuid.Nil, fmt.Errorf("archive fills: %w", err)
	}
	if err := insertPnl(ctx, tx, venue, fetchID, b.Pnl); err != nil {
		return uuid.Nil, fmt.Errorf("archive pnl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}
	return fetchID, nil
}

func insertTransfers(ctx context.Context, tx *sql.Tx, venue string, fetchID uuid.UUID, records []feed.TransferRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `INSERT INTO roi_archive.transfers
		(venue, record_id, fetch_id, kind, currency, amount, record_ts)
		VALUES `

	values := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*7)
	for i, r := range records {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			venue, r.ID, fetchID, r.Kind.String(), r.Currency,
			r.Amount.String(), r.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (venue, record_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func insertFills(ctx context.Context, tx *sql.Tx, venue string, fetchID uuid.UUID, records []feed.FillRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `INSERT INTO roi_archive.fills
		(venue, record_id, fetch_id, instrument, side, price, size, realized_pnl, record_ts)
		VALUES `

	values := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*9)
	for i, r := range records {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			venue, r.ID, fetchID, r.Instrument, r.Side.String(),
			r.Price.String(), r.Size.String(), r.RealizedPnl.String(), r.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (venue, record_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func insertPnl(ctx context.Context, tx *sql.Tx, venue string, fetchID uuid.UUID, records []feed.PnlRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `INSERT INTO roi_archive.pnl
		(venue, record_id, fetch_id, amount, record_ts)
		VALUES `

	values := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*5)
	for i, r := range records {
		base := i * 5
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, venue, r.ID, fetchID, r.Amount.String(), r.Timestamp)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (venue, record_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
