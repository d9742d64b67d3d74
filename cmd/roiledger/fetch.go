package main

import (
	"context"
	"fmt"
	"time"

	"RoiLedger/internal/config"
	"RoiLedger/internal/feed"
	"RoiLedger/internal/persistence"
	"RoiLedger/internal/session"

	"github.com/spf13/cobra"
)

func newFetchCmd() *cobra.Command {
	var (
		venue string
		start string
		end   string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch one window of account activity from a venue and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd.Context(), venue, start, end)
		},
	}
	cmd.Flags().StringVar(&venue, "venue", "okx", "venue to fetch from (okx, binance)")
	cmd.Flags().StringVar(&start, "start", "", "window start (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "window end (RFC3339, defaults to now)")
	cmd.MarkFlagRequired("start")
	return cmd
}

func runFetch(ctx context.Context, venue, start, end string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger("fetch", cfg.LogLevel)

	startTime, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return fmt.Errorf("parse --start: %w", err)
	}
	endTime := time.Now().UTC()
	if end != "" {
		if endTime, err = time.Parse(time.RFC3339, end); err != nil {
			return fmt.Errorf("parse --end: %w", err)
		}
	}
	if !endTime.After(startTime) {
		return fmt.Errorf("--end must be after --start")
	}

	sources := buildSources(cfg, log)
	source, ok := sources[venue]
	if !ok {
		return fmt.Errorf("venue %q not configured (set its API credentials)", venue)
	}

	window := feed.Window{Start: startTime, End: endTime, Currency: cfg.Session.Currency}
	log.Info().Str("venue", venue).
		Time("start", window.Start).Time("end", window.End).
		Msg("fetching")

	batch, err := source.Fetch(ctx, window)
	if err != nil {
		return fmt.Errorf("fetch from %s: %w", venue, err)
	}
	log.Info().
		Int("transfers", len(batch.Transfers)).
		Int("fills", len(batch.Fills)).
		Int("pnl", len(batch.Pnl)).
		Msg("fetched")

	if cfg.Postgres.Enabled {
		db, err := persistence.Open(cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer db.Close()

		fetchID, err := persistence.NewArchive(db).ArchiveBatch(ctx, venue, batch)
		if err != nil {
			return fmt.Errorf("archive batch: %w", err)
		}
		log.Info().Str("fetch_id", fetchID.String()).Msg("batch archived")
	}

	state := session.New(source.Policy())
	loader := feed.NewLoader(log)
	stats, err := loader.Load(state, batch)
	if err != nil {
		return fmt.Errorf("load batch: %w", err)
	}
	log.Info().
		Int("transfers_applied", stats.TransfersApplied).
		Int("fills_applied", stats.FillsApplied).
		Int("pnl_applied", stats.PnlApplied).
		Int("pnl_skipped", stats.PnlSkipped).
		Msg("batch loaded")

	if batch.Snapshot != nil {
		fmt.Printf("account snapshot (%s): equity %s | available %s | unrealized pnl %s | margin used %s\n",
			batch.Snapshot.Currency, batch.Snapshot.Equity, batch.Snapshot.AvailableBalance,
			batch.Snapshot.UnrealizedPnl, batch.Snapshot.MarginUsed())
	}

	fmt.Print(state.ComputeResult().BreakdownTable())
	return nil
}
