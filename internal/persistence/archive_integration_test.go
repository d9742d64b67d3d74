package persistence

import (
	"context"
	"testing"
	"time"

	"RoiLedger/internal/feed"
	"RoiLedger/internal/ledger"
	"RoiLedger/internal/testutil"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestArchiveBatch_Integration(t *testing.T) {
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := NewMigrator(db, "../../migrations", zerolog.Nop()).Up(ctx); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	batch := feed.Batch{
		Transfers: []feed.TransferRecord{
			{ID: "t1", Timestamp: time.Unix(100, 0), Currency: "USDT", Kind: feed.KindExternalDeposit, Amount: decimal.NewFromInt(300)},
		},
		Fills: []feed.FillRecord{
			{ID: "f1", Timestamp: time.Unix(200, 0), Instrument: "BTC-USDT", Side: ledger.SideSell,
				Price: decimal.NewFromInt(50000), Size: decimal.RequireFromString("0.002"), RealizedPnl: decimal.NewFromInt(-5)},
		},
		Pnl: []feed.PnlRecord{
			{ID: "p1", Timestamp: time.Unix(300, 0), Amount: decimal.NewFromInt(-7)},
		},
	}

	archive := NewArchive(db)
	fetchID, err := archive.ArchiveBatch(ctx, "okx", batch)
	if err != nil {
		t.Fatalf("archive batch: %v", err)
	}
	if fetchID == uuid.Nil {
		t.Fatal("archive returned nil fetch id")
	}

	for _, table := range []string{"transfers", "fills", "pnl"} {
		var count int
		err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM roi_archive."+table+" WHERE venue = 'okx'").Scan(&count)
		if err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("%s: %d rows, want 1", table, count)
		}
	}

	// Re-archiving the same records is idempotent.
	if _, err := archive.ArchiveBatch(ctx, "okx", batch); err != nil {
		t.Fatalf("re-archive batch: %v", err)
	}
	var count int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM roi_archive.transfers WHERE venue = 'okx'").Scan(&count); err != nil {
		t.Fatalf("count transfers: %v", err)
	}
	if count != 1 {
		t.Errorf("after re-archive: %d transfer rows, want 1", count)
	}

	var price string
	err = db.QueryRowContext(ctx,
		"SELECT price::TEXT FROM roi_archive.fills WHERE venue = 'okx' AND record_id = 'f1'").Scan(&price)
	if err != nil {
		t.Fatalf("read fill: %v", err)
	}
	if got := decimal.RequireFromString(price); !got.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("fill price = %s, want 50000", got)
	}
}
