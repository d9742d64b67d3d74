package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"RoiLedger/internal/config"
	"RoiLedger/internal/exchange/binance"
	"RoiLedger/internal/exchange/okx"
	"RoiLedger/internal/feed"
	"RoiLedger/internal/observability"
	"RoiLedger/internal/persistence"
	"RoiLedger/internal/roi"
	"RoiLedger/internal/server"
	"RoiLedger/internal/session"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := newLogger("serve", cfg.LogLevel)
	log.Info().Str("config", cfg.Redacted()).Msg("starting")

	policy, _ := roi.ParsePolicy(cfg.Session.DefaultPolicy)

	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()
	registry := server.NewRegistry()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sources := buildSources(cfg, log)
	for name := range sources {
		log.Info().Str("venue", name).Msg("venue source configured")
	}

	var archive *persistence.Archive
	if cfg.Postgres.Enabled {
		db, err := persistence.Open(cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer db.Close()

		migrator := persistence.NewMigrator(db, cfg.Postgres.MigrationsDir, log)
		if err := migrator.Up(ctx); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		archive = persistence.NewArchive(db)
		log.Info().Msg("postgres connected, archive enabled")
	}

	if cfg.NATS.Enabled {
		nc, js, err := feed.ConnectNATS(cfg.NATS.URL, log)
		if err != nil {
			return err
		}
		defer nc.Close()

		if err := feed.EnsureStreams(ctx, js, log); err != nil {
			return err
		}

		recordChan := make(chan feed.RawRecord, 4096)
		sub := feed.NewNATSSubscriber(js, recordChan, log)
		if err := sub.Subscribe(ctx, feed.DefaultSubjects()); err != nil {
			return fmt.Errorf("nats subscribe: %w", err)
		}
		defer sub.Stop()

		// Streamed records fold into one designated live session.
		liveID := registry.Create(policy)
		metrics.SessionsActive.Set(float64(registry.Count()))
		log.Info().Str("session_id", liveID.String()).Msg("live session created for streamed records")

		go runFeedLoop(ctx, recordChan, registry, liveID, metrics, log)
	}

	srv := server.NewServer(
		server.Config{
			Addr:          cfg.Server.Addr,
			DefaultPolicy: policy,
			Currency:      cfg.Session.Currency,
		},
		registry, sources, archive, health, metrics, log,
	)

	errChan := make(chan error, 2)
	go func() {
		errChan <- srv.Start()
	}()

	metricsServer := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: metricsMux()}
	go func() {
		log.Info().Str("addr", cfg.Server.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	health.SetReady(true)
	log.Info().Str("addr", cfg.Server.Addr).Msg("ready")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errChan:
		if err != nil {
			log.Error().Err(err).Msg("server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer shutdownCancel()

	metricsServer.Shutdown(shutdownCtx)
	return srv.Shutdown(shutdownCtx)
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func buildSources(cfg config.Config, log zerolog.Logger) map[string]feed.Source {
	sources := make(map[string]feed.Source)
	if cfg.OKX.Key != "" {
		sources["okx"] = okx.NewClient(cfg.OKX.BaseURL, okx.Credentials{
			Key:        cfg.OKX.Key,
			Secret:     cfg.OKX.Secret,
			Passphrase: cfg.OKX.Passphrase,
		}, log)
	}
	if cfg.Binance.Key != "" {
		sources["binance"] = binance.NewClient(cfg.Binance.BaseURL, binance.Credentials{
			Key:    cfg.Binance.Key,
			Secret: cfg.Binance.Secret,
		}, log)
	}
	return sources
}

// runFeedLoop normalizes raw NATS records and applies them to the live
// session. Unparseable records are acked to avoid a redelivery loop; records
// that fail validation against live state are acked too, since redelivery
// would fail the same way.
func runFeedLoop(
	ctx context.Context,
	recordChan <-chan feed.RawRecord,
	registry *server.Registry,
	liveID uuid.UUID,
	metrics *observability.Metrics,
	log zerolog.Logger,
) {
	subjectToType := make(map[string]string)
	for _, cfg := range feed.DefaultSubjects() {
		prefix := strings.TrimSuffix(cfg.Subject, ".>")
		subjectToType[prefix] = cfg.RecordType
	}

	entry, err := registry.Get(liveID)
	if err != nil {
		log.Error().Err(err).Msg("live session lost, feed loop stopped")
		return
	}

	loader := feed.NewLoader(log)

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-recordChan:
			if !ok {
				return
			}

			recordType := resolveRecordType(raw.Subject, subjectToType)
			if recordType == "" {
				log.Warn().Str("subject", raw.Subject).Msg("unknown subject")
				raw.AckFunc()
				continue
			}

			rec, err := feed.ParseRawRecord(raw, recordType)
			if err != nil {
				metrics.FeedRecordsRejected.WithLabelValues(recordType, "parse").Inc()
				log.Warn().Err(err).Str("subject", raw.Subject).Msg("record rejected")
				raw.AckFunc()
				continue
			}
			metrics.FeedRecordsNormalized.WithLabelValues(recordType).Inc()

			batch := batchFor(rec)
			var loadErr error
			entry.With(func(s *session.State) {
				_, loadErr = loader.Load(s, batch)
			})
			if loadErr != nil {
				metrics.FeedRecordsRejected.WithLabelValues(recordType, "validation").Inc()
				log.Warn().Err(loadErr).Msg("record failed validation")
			}
			raw.AckFunc()
		}
	}
}

func batchFor(rec any) feed.Batch {
	switch r := rec.(type) {
	case feed.TransferRecord:
		return feed.Batch{Transfers: []feed.TransferRecord{r}}
	case feed.FillRecord:
		return feed.Batch{Fills: []feed.FillRecord{r}}
	case feed.PnlRecord:
		return feed.Batch{Pnl: []feed.PnlRecord{r}}
	default:
		return feed.Batch{}
	}
}

// resolveRecordType finds the record type for a NATS subject by matching the
// longest configured prefix.
func resolveRecordType(subject string, prefixMap map[string]string) string {
	bestMatch := ""
	bestType := ""
	for prefix, recType := range prefixMap {
		if strings.HasPrefix(subject, prefix) && len(prefix) > len(bestMatch) {
			bestMatch = prefix
			bestType = recType
		}
	}
	return bestType
}

func newLogger(component, level string) zerolog.Logger {
	switch level {
	case "debug":
		return observability.NewLoggerWithLevel(component, zerolog.DebugLevel)
	case "warn":
		return observability.NewLoggerWithLevel(component, zerolog.WarnLevel)
	case "error":
		return observability.NewLoggerWithLevel(component, zerolog.ErrorLevel)
	default:
		return observability.NewLoggerWithLevel(component, zerolog.InfoLevel)
	}
}
