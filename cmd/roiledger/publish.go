package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"RoiLedger/internal/config"
	"RoiLedger/internal/feed"

	"github.com/spf13/cobra"
)

func newPublishCmd() *cobra.Command {
	var (
		recordType string
		venue      string
		file       string
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish raw feed records onto the record stream",
		Long: `Publish reads newline-delimited JSON records and publishes each onto the
JetStream subject for its record type. Used to backfill or replay records
into a running server's live session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd.Context(), recordType, venue, file)
		},
	}
	cmd.Flags().StringVar(&recordType, "type", "", "record type (Transfer, Fill, Pnl)")
	cmd.Flags().StringVar(&venue, "venue", "manual", "venue tag for the subject suffix")
	cmd.Flags().StringVar(&file, "file", "-", "path to newline-delimited JSON records, - for stdin")
	cmd.MarkFlagRequired("type")
	return cmd
}

func runPublish(ctx context.Context, recordType, venue, file string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger("publish", cfg.LogLevel)

	var in io.Reader = os.Stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	nc, js, err := feed.ConnectNATS(cfg.NATS.URL, log)
	if err != nil {
		return err
	}
	defer nc.Close()

	pub := feed.NewPublisher(js, log)

	published := 0
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return fmt.Errorf("line %d: not valid JSON", published+1)
		}
		if err := pub.Publish(ctx, recordType, venue, line); err != nil {
			return err
		}
		published++
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	log.Info().Int("records", published).Str("type", recordType).Msg("published")
	return nil
}
