// Command archive-calls moves calls older than the retention window from the
// live calls table to calls_archive and purges expired idempotency records.
// It is meant to run from cron or a Kubernetes CronJob.
//
// Usage:
//
//	archive-calls [-days 90] [-batch 500] [-dry-run]
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/callcenter-backend/internal/classify"
	"github.com/tbourn/callcenter-backend/internal/config"
	"github.com/tbourn/callcenter-backend/internal/repo"
	"github.com/tbourn/callcenter-backend/internal/services"
	"github.com/tbourn/callcenter-backend/internal/sysutil"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadJob()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	days := flag.Int("days", cfg.Archive.Days, "archive calls created more than this many days ago")
	batch := flag.Int("batch", cfg.Archive.Batch, "rows moved per transaction")
	dryRun := flag.Bool("dry-run", false, "report storage stats without moving rows")
	flag.Parse()

	sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, "archive-calls")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.Open(repo.Options{
		Driver: cfg.DB.Driver,
		DSN:    cfg.DB.DSN,
		Path:   cfg.DB.Path,
		Pool:   repo.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	before, err := services.NewCallService(db, classify.NewKeywordClassifier()).StorageStats(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("storage stats")
	}
	if *dryRun {
		log.Info().Int64("live", before.Live).Int64("archived", before.Archived).Msg("dry run")
		return
	}

	start := time.Now()
	moved, err := (&services.ArchiveService{DB: db, Days: *days, Batch: *batch}).Run(ctx)
	if err != nil {
		// Batches already committed stay archived.
		log.Error().Err(err).Int64("moved", moved).Msg("archive interrupted")
		os.Exit(1)
	}

	purged, err := repo.PurgeExpiredIdempotency(ctx, db, time.Now().UTC())
	if err != nil {
		log.Warn().Err(err).Msg("purge idempotency records")
	}

	ev := log.Info().
		Int("days", *days).
		Int64("moved", moved).
		Int64("idempotency_purged", purged).
		Int64("live_before", before.Live).
		Int64("archived_before", before.Archived)
	if after, err := repo.CountCalls(ctx, db); err == nil {
		ev = ev.Int64("live_after", after)
	} else {
		log.Warn().Err(err).Msg("count live calls")
	}
	if after, err := repo.CountArchivedCalls(ctx, db); err == nil {
		ev = ev.Int64("archived_after", after)
	} else {
		log.Warn().Err(err).Msg("count archived calls")
	}
	ev.Dur("took", time.Since(start)).Msg("archive complete")
}
