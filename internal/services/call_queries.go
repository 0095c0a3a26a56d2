// Package services – CallService read projections
//
// This file implements the dashboard projections of CallService: the live
// and waiting lists, aggregate statistics, the filtered history, the status
// board, per-conversation history built from notifications, and storage
// statistics. Durations are always reported in whole seconds; open calls get
// a live value computed against the service clock.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tbourn/callcenter-backend/internal/domain"
	"github.com/tbourn/callcenter-backend/internal/repo"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultStatsHours is the stats window used when none (or a non-positive
	// one) is requested.
	DefaultStatsHours = 24
	// boardWindow is the look-back window of the status board.
	boardWindow = 24 * time.Hour
	// boardLimit caps each list on the status board.
	boardLimit = 20
	// storageDays is the growth window reported by StorageStats.
	storageDays = 7
)

// CallView is the JSON projection of a call returned to clients.
type CallView struct {
	ID             int64             `json:"id"`
	ConversationID string            `json:"conversation_id"`
	PatientName    string            `json:"patient_name"`
	PatientPhone   *string           `json:"patient_phone,omitempty"`
	AgentName      string            `json:"agent_name"`
	CallType       domain.CallType   `json:"call_type"`
	Status         domain.CallStatus `json:"status"`
	Priority       domain.Priority   `json:"priority"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	EndedAt        *time.Time        `json:"ended_at,omitempty"`
	Duration       int               `json:"duration"`
	Transcript     *string           `json:"transcript,omitempty"`
	AudioURL       *string           `json:"audio_url,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	Data           json.RawMessage   `json:"data,omitempty"`
}

func newCallView(c domain.Call, duration int) CallView {
	return CallView{
		ID:             c.ID,
		ConversationID: c.ConversationID,
		PatientName:    c.PatientName,
		PatientPhone:   c.PatientPhone,
		AgentName:      c.AgentName,
		CallType:       c.CallType,
		Status:         c.Status,
		Priority:       c.Priority,
		StartedAt:      c.StartTime,
		EndedAt:        c.EndTime,
		Duration:       duration,
		Transcript:     c.Transcript,
		AudioURL:       c.AudioURL,
		CreatedAt:      c.CreatedAt,
		Data:           rawJSON(c.WebhookData),
	}
}

// rawJSON returns s as embedded JSON; invalid JSON is embedded as a string.
func rawJSON(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}

func since(now time.Time, start *time.Time) int {
	if start == nil {
		return 0
	}
	return domain.WholeSeconds(now.Sub(*start))
}

// ActiveCalls returns active calls, oldest start first, with the elapsed
// time since start as duration.
func (s *CallService) ActiveCalls(ctx context.Context) ([]CallView, error) {
	ctx, span := tracer().Start(ctx, "ActiveCalls")
	defer span.End()

	rows, err := repo.ListActiveCalls(ctx, s.DB)
	if err != nil {
		logFrom(ctx).Error().Err(err).Msg("list active calls")
		return nil, fmt.Errorf("list active calls: %w", err)
	}
	now := s.now()
	out := make([]CallView, 0, len(rows))
	for _, c := range rows {
		out = append(out, newCallView(c, since(now, c.StartTime)))
	}
	return out, nil
}

// WaitingCalls returns the waiting queue (priority rank, then oldest first)
// with the time since creation as duration.
func (s *CallService) WaitingCalls(ctx context.Context) ([]CallView, error) {
	ctx, span := tracer().Start(ctx, "WaitingCalls")
	defer span.End()

	rows, err := repo.ListWaitingCalls(ctx, s.DB)
	if err != nil {
		logFrom(ctx).Error().Err(err).Msg("list waiting calls")
		return nil, fmt.Errorf("list waiting calls: %w", err)
	}
	now := s.now()
	out := make([]CallView, 0, len(rows))
	for _, c := range rows {
		created := c.CreatedAt
		out = append(out, newCallView(c, since(now, &created)))
	}
	return out, nil
}

// CallStats summarizes current load and calls completed in the window.
type CallStats struct {
	Active         int64   `json:"active"`
	Waiting        int64   `json:"waiting"`
	CompletedToday int64   `json:"completed_today"`
	TotalDuration  int64   `json:"total_duration"`
	AvgDuration    float64 `json:"avg_duration"`
}

// CallStats counts active and waiting calls and aggregates calls ended that
// started within the last hours (DefaultStatsHours when hours <= 0).
func (s *CallService) CallStats(ctx context.Context, hours int) (CallStats, error) {
	if hours <= 0 {
		hours = DefaultStatsHours
	}
	ctx, span := tracer().Start(ctx, "CallStats",
		trace.WithAttributes(attribute.Int("stats.hours", hours)),
	)
	defer span.End()

	var st CallStats
	var err error
	if st.Active, err = repo.CountCallsByStatus(ctx, s.DB, domain.StatusActive); err != nil {
		return CallStats{}, s.readErr(ctx, "count active calls", err)
	}
	if st.Waiting, err = repo.CountCallsByStatus(ctx, s.DB, domain.StatusWaiting); err != nil {
		return CallStats{}, s.readErr(ctx, "count waiting calls", err)
	}
	done, err := repo.CompletedCallStats(ctx, s.DB, s.now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		return CallStats{}, s.readErr(ctx, "completed call stats", err)
	}
	st.CompletedToday = done.Count
	st.TotalDuration = done.TotalDuration
	st.AvgDuration = done.AvgDuration
	return st, nil
}

// HistoryOptions selects a page of the call history.
type HistoryOptions struct {
	repo.CallHistoryFilter
	Limit  int
	Offset int
}

// CallHistory returns calls matching opts, newest start first. Calls without
// a stored duration report end-start, or now-start while still open.
func (s *CallService) CallHistory(ctx context.Context, opts HistoryOptions) ([]CallView, error) {
	ctx, span := tracer().Start(ctx, "CallHistory",
		trace.WithAttributes(
			attribute.String("filter.status", opts.Status),
			attribute.String("filter.priority", opts.Priority),
			attribute.Int("limit", opts.Limit),
			attribute.Int("offset", opts.Offset),
		),
	)
	defer span.End()

	rows, err := repo.CallHistoryPage(ctx, s.DB, opts.CallHistoryFilter, opts.Limit, opts.Offset)
	if err != nil {
		return nil, s.readErr(ctx, "call history", err)
	}
	now := s.now()
	out := make([]CallView, 0, len(rows))
	for _, c := range rows {
		out = append(out, newCallView(c, c.EffectiveDuration(now)))
	}
	return out, nil
}

// CountCallHistory returns the number of calls matching f.
func (s *CallService) CountCallHistory(ctx context.Context, f repo.CallHistoryFilter) (int64, error) {
	ctx, span := tracer().Start(ctx, "CountCallHistory")
	defer span.End()

	n, err := repo.CountCallHistory(ctx, s.DB, f)
	if err != nil {
		return 0, s.readErr(ctx, "count call history", err)
	}
	return n, nil
}

// BoardStats is the counter block of the status board.
type BoardStats struct {
	ActiveCalls    int   `json:"active_calls"`
	CompletedCalls int   `json:"completed_calls"`
	CallStarted    int64 `json:"call_started"`
	CallEnded      int64 `json:"call_ended"`
	Total          int   `json:"total"`
}

// StatusBoard is the projection served by GET /calls/status.
type StatusBoard struct {
	Stats          BoardStats `json:"stats"`
	LastUpdated    time.Time  `json:"last_updated"`
	ActiveCalls    []CallView `json:"active_calls"`
	CompletedCalls []CallView `json:"completed_calls"`
}

// StatusBoard returns the calls active and ended within the last 24 hours
// (at most 20 each) plus started/ended event counts over the same window.
func (s *CallService) StatusBoard(ctx context.Context) (*StatusBoard, error) {
	ctx, span := tracer().Start(ctx, "StatusBoard")
	defer span.End()

	now := s.now()
	cutoff := now.Add(-boardWindow)

	active, err := repo.ListRecentCalls(ctx, s.DB, domain.StatusActive, cutoff, "start_time", boardLimit)
	if err != nil {
		return nil, s.readErr(ctx, "status board active calls", err)
	}
	ended, err := repo.ListRecentCalls(ctx, s.DB, domain.StatusEnded, cutoff, "end_time", boardLimit)
	if err != nil {
		return nil, s.readErr(ctx, "status board ended calls", err)
	}
	counts, err := repo.CountCallEventsByType(ctx, s.DB, cutoff)
	if err != nil {
		return nil, s.readErr(ctx, "status board event counts", err)
	}

	b := &StatusBoard{
		LastUpdated:    now,
		ActiveCalls:    make([]CallView, 0, len(active)),
		CompletedCalls: make([]CallView, 0, len(ended)),
	}
	for _, c := range active {
		b.ActiveCalls = append(b.ActiveCalls, newCallView(c, c.EffectiveDuration(now)))
	}
	for _, c := range ended {
		b.CompletedCalls = append(b.CompletedCalls, newCallView(c, c.EffectiveDuration(now)))
	}
	b.Stats = BoardStats{
		ActiveCalls:    len(b.ActiveCalls),
		CompletedCalls: len(b.CompletedCalls),
		CallStarted:    counts[domain.EventStarted],
		CallEnded:      counts[domain.EventEnded],
		Total:          len(b.ActiveCalls) + len(b.CompletedCalls),
	}
	return b, nil
}

// Dashboard bundles the live lists and default-window stats.
type Dashboard struct {
	Active  []CallView `json:"active"`
	Waiting []CallView `json:"waiting"`
	Stats   CallStats  `json:"stats"`
}

// Dashboard returns active calls, the waiting queue and 24h stats.
func (s *CallService) Dashboard(ctx context.Context) (*Dashboard, error) {
	active, err := s.ActiveCalls(ctx)
	if err != nil {
		return nil, err
	}
	waiting, err := s.WaitingCalls(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.CallStats(ctx, DefaultStatsHours)
	if err != nil {
		return nil, err
	}
	return &Dashboard{Active: active, Waiting: waiting, Stats: st}, nil
}

// HistoryEvent is one notification in a conversation history.
type HistoryEvent struct {
	Type      domain.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	Data      map[string]any          `json:"data"`
	Timestamp time.Time               `json:"timestamp"`
	Status    string                  `json:"status"`
}

// ConversationHistory summarizes one conversation from its notifications.
type ConversationHistory struct {
	ConversationID string         `json:"conversation_id"`
	Status         string         `json:"status"` // completed | active
	StartedAt      *time.Time     `json:"started_at"`
	EndedAt        *time.Time     `json:"ended_at"`
	Duration       int            `json:"duration"`
	Events         []HistoryEvent `json:"events"`
}

// ConversationHistory rebuilds the timeline of conversationID from its
// call_started and call_ended notifications. It returns ErrCallNotFound when
// there are none.
func (s *CallService) ConversationHistory(ctx context.Context, conversationID string) (*ConversationHistory, error) {
	ctx, span := tracer().Start(ctx, "ConversationHistory",
		trace.WithAttributes(attribute.String("call.conversation_id", conversationID)),
	)
	defer span.End()

	rows, err := repo.ListCallNotifications(ctx, s.DB, conversationID)
	if err != nil {
		return nil, s.readErr(ctx, "conversation history", err)
	}
	if len(rows) == 0 {
		return nil, ErrCallNotFound
	}

	h := &ConversationHistory{
		ConversationID: conversationID,
		Status:         "active",
		Events:         make([]HistoryEvent, 0, len(rows)),
	}
	for _, n := range rows {
		ts := n.CreatedAt
		h.Events = append(h.Events, HistoryEvent{
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			Data:      n.DataMap(),
			Timestamp: ts,
			Status:    n.Status,
		})
		switch n.Type {
		case domain.NotificationCallStarted:
			if h.StartedAt == nil {
				h.StartedAt = &ts
			}
		case domain.NotificationCallEnded:
			if h.EndedAt == nil {
				h.EndedAt = &ts
			}
		}
	}
	if h.EndedAt != nil {
		h.Status = "completed"
	}
	switch {
	case h.StartedAt != nil && h.EndedAt != nil:
		h.Duration = domain.WholeSeconds(h.EndedAt.Sub(*h.StartedAt))
	case h.StartedAt != nil:
		h.Duration = since(s.now(), h.StartedAt)
	}
	return h, nil
}

// StorageStats reports live and archived row counts and the number of calls
// started per day over the last week.
type StorageStats struct {
	Live      int64           `json:"live"`
	Archived  int64           `json:"archived"`
	Total     int64           `json:"total"`
	Last7Days []repo.DayCount `json:"last7days"`
}

// StorageStats computes the storage growth projection.
func (s *CallService) StorageStats(ctx context.Context) (*StorageStats, error) {
	ctx, span := tracer().Start(ctx, "StorageStats")
	defer span.End()

	live, err := repo.CountCalls(ctx, s.DB)
	if err != nil {
		return nil, s.readErr(ctx, "count live calls", err)
	}
	archived, err := repo.CountArchivedCalls(ctx, s.DB)
	if err != nil {
		return nil, s.readErr(ctx, "count archived calls", err)
	}
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	days, err := repo.DailyEventCounts(ctx, s.DB, domain.EventStarted, today.AddDate(0, 0, -storageDays))
	if err != nil {
		return nil, s.readErr(ctx, "daily started events", err)
	}
	return &StorageStats{
		Live:      live,
		Archived:  archived,
		Total:     live + archived,
		Last7Days: days,
	}, nil
}

// readErr logs and wraps an infrastructure failure on a read path.
func (s *CallService) readErr(ctx context.Context, what string, err error) error {
	logFrom(ctx).Error().Err(err).Msg(what)
	return fmt.Errorf("%s: %w", what, err)
}
