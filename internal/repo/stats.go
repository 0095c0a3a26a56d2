// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides aggregate and statistics queries used by
// the dashboard projections. Time windows are computed by the caller and
// passed in as absolute cutoffs so the same SQL runs on MySQL and SQLite.
package repo

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/callcenter-backend/internal/domain"
)

// CompletedStats aggregates ended calls inside a window.
type CompletedStats struct {
	Count         int64
	TotalDuration int64
	// AvgDuration averages calls with a stored duration; 0 when none.
	AvgDuration float64
}

// CompletedCallStats aggregates ended calls whose start_time is at or after
// since.
func CompletedCallStats(ctx context.Context, db *gorm.DB, since time.Time) (CompletedStats, error) {
	var row struct {
		N     int64
		Timed int64
		Total int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Call{}).
		Select("COUNT(*) AS n, COUNT(duration) AS timed, COALESCE(SUM(duration), 0) AS total").
		Where("status = ? AND start_time >= ?", domain.StatusEnded, since).
		Scan(&row).Error
	if err != nil {
		return CompletedStats{}, err
	}
	out := CompletedStats{Count: row.N, TotalDuration: row.Total}
	if row.Timed > 0 {
		out.AvgDuration = float64(row.Total) / float64(row.Timed)
	}
	return out, nil
}

// CountCallEventsByType counts call events created at or after since,
// grouped by event type.
func CountCallEventsByType(ctx context.Context, db *gorm.DB, since time.Time) (map[domain.EventType]int64, error) {
	var rows []struct {
		EventType domain.EventType
		C         int64
	}
	err := db.WithContext(ctx).
		Model(&domain.CallEvent{}).
		Select("event_type, COUNT(*) AS c").
		Where("created_at >= ?", since).
		Group("event_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.EventType]int64, len(rows))
	for _, r := range rows {
		out[r.EventType] = r.C
	}
	return out, nil
}

// DayCount is the number of events on one UTC calendar day.
type DayCount struct {
	Day   string `json:"day"` // YYYY-MM-DD
	Count int64  `json:"count"`
}

// DailyEventCounts buckets events of type created at or after since by UTC
// day, oldest day first. Days without events are omitted.
func DailyEventCounts(ctx context.Context, db *gorm.DB, eventType domain.EventType, since time.Time) ([]DayCount, error) {
	var stamps []time.Time
	err := db.WithContext(ctx).
		Model(&domain.CallEvent{}).
		Where("event_type = ? AND created_at >= ?", eventType, since).
		Pluck("created_at", &stamps).Error
	if err != nil {
		return nil, err
	}
	buckets := map[string]int64{}
	for _, ts := range stamps {
		buckets[ts.UTC().Format("2006-01-02")]++
	}
	out := make([]DayCount, 0, len(buckets))
	for d, c := range buckets {
		out = append(out, DayCount{Day: d, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

// CountCalls returns the number of rows in the live calls table.
func CountCalls(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Call{}).Count(&n).Error
	return n, err
}

// CountArchivedCalls returns the number of rows in calls_archive.
func CountArchivedCalls(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.CallArchive{}).Count(&n).Error
	return n, err
}
