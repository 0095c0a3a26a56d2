// Package services – ArchiveService
//
// This file implements the retention job that keeps the live calls table
// small: calls older than the retention window are copied to calls_archive
// and deleted from calls in bounded batches.
package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/callcenter-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ArchiveService moves old calls from calls to calls_archive.
type ArchiveService struct {
	DB *gorm.DB
	// Days is the retention of the live table; DefaultArchiveDays when <= 0.
	Days int
	// Batch bounds the rows moved per transaction; DefaultArchiveBatch when <= 0.
	Batch int
	Now   func() time.Time
}

// Archive defaults.
const (
	DefaultArchiveDays  = 90
	DefaultArchiveBatch = 500
)

// Run archives every call created before now-Days, batch by batch, and
// returns the number of rows moved. It stops early when ctx is cancelled.
func (s *ArchiveService) Run(ctx context.Context) (int64, error) {
	days, batch := s.Days, s.Batch
	if days <= 0 {
		days = DefaultArchiveDays
	}
	if batch <= 0 {
		batch = DefaultArchiveBatch
	}
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	cutoff := now.AddDate(0, 0, -days)

	ctx, span := otel.Tracer("services/ArchiveService").Start(ctx, "Run",
		trace.WithAttributes(attribute.Int("archive.days", days), attribute.Int("archive.batch", batch)),
	)
	defer span.End()

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := repo.ArchiveCallsBefore(ctx, s.DB, cutoff, batch)
		if err != nil {
			logFrom(ctx).Error().Err(err).Int64("moved", total).Msg("archive calls")
			return total, fmt.Errorf("archive calls: %w", err)
		}
		total += n
		if n == 0 {
			break
		}
		logFrom(ctx).Info().Int64("batch", n).Int64("moved", total).Msg("archived batch")
	}
	logFrom(ctx).Info().Int64("moved", total).Time("cutoff", cutoff).Msg("archive complete")
	return total, nil
}
