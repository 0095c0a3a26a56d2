// Package services – CallService
//
// This file implements the write side of CallService: creating calls from the
// "call started" webhook, ending them from the "call ended" webhook, and the
// operator transitions (transfer, waiting, attend, hold).
//
// Every transition is a single guarded UPDATE executed by the repository. The
// audit event that follows a successful update is a separate, best-effort
// write: its failure is logged and never undoes or fails the transition.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// carry the call or conversation identifier.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/callcenter-backend/internal/classify"
	"github.com/tbourn/callcenter-backend/internal/domain"
	"github.com/tbourn/callcenter-backend/internal/repo"
	"github.com/tbourn/callcenter-backend/internal/webhook"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MinAgentNameRunes is the shortest accepted agent name.
const MinAgentNameRunes = 2

// CallService owns every write to calls and call_events and exposes the read
// projections used by the dashboards.
type CallService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Classifier derives call type and priority at creation.
	Classifier classify.Classifier
	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
	// NewID generates fallback conversation ids; defaults to uuid.NewString.
	NewID func() string
}

// NewCallService constructs a CallService with the keyword classifier.
func NewCallService(db *gorm.DB, c classify.Classifier) *CallService {
	if c == nil {
		c = classify.NewKeywordClassifier()
	}
	return &CallService{
		DB:         db,
		Classifier: c,
		Now:        time.Now,
		NewID:      uuid.NewString,
	}
}

func (s *CallService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *CallService) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *CallService) classifier() classify.Classifier {
	if s.Classifier != nil {
		return s.Classifier
	}
	return classify.NewKeywordClassifier()
}

func tracer() trace.Tracer { return otel.Tracer("services/CallService") }

// StartCall inserts an active call for the payload and records the started
// event. A payload without conversation_id gets "call_<uuid>". When the
// conversation already has an active call, that call is returned unchanged.
func (s *CallService) StartCall(ctx context.Context, p webhook.Payload) (*domain.Call, error) {
	c, _, err := s.start(ctx, p)
	return c, err
}

// start is StartCall that also reports whether a new row was inserted.
func (s *CallService) start(ctx context.Context, p webhook.Payload) (*domain.Call, bool, error) {
	ctx, span := tracer().Start(ctx, "StartCall")
	defer span.End()

	conv := p.ConversationID.String()
	if conv == "" {
		conv = "call_" + s.newID()
	} else {
		existing, err := repo.FindActiveCall(ctx, s.DB, conv)
		switch {
		case err == nil:
			transitions.WithLabelValues("create", outcomeNoop).Inc()
			logFrom(ctx).Warn().Int64("call_id", existing.ID).Str("conversation_id", conv).
				Msg("call already active; start ignored")
			return existing, false, nil
		case !errors.Is(err, repo.ErrNotFound):
			transitions.WithLabelValues("create", outcomeError).Inc()
			logFrom(ctx).Error().Err(err).Str("conversation_id", conv).Msg("create call")
			return nil, false, fmt.Errorf("create call: %w", err)
		}
	}
	span.SetAttributes(attribute.String("call.conversation_id", conv))

	cls := s.classifier().Classify(p.ClassifyInput())
	now := s.now()
	call := &domain.Call{
		ConversationID: conv,
		PatientName:    p.PatientName(),
		PatientPhone:   p.PatientPhone(),
		AgentName:      p.AgentName(),
		CallType:       cls.CallType,
		Status:         domain.StatusActive,
		Priority:       cls.Priority,
		StartTime:      &now,
		WebhookData:    p.RawString(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := repo.InsertCall(ctx, s.DB, call); err != nil {
		transitions.WithLabelValues("create", outcomeError).Inc()
		logFrom(ctx).Error().Err(err).Str("conversation_id", conv).Msg("create call")
		return nil, false, fmt.Errorf("create call: %w", err)
	}
	transitions.WithLabelValues("create", outcomeApplied).Inc()
	span.SetAttributes(attribute.Int64("call.id", call.ID))

	s.recordEvent(ctx, call.ID, conv, domain.EventStarted, call.AgentName, map[string]any{
		"priority": cls.Priority,
		"callType": cls.CallType,
	})
	logFrom(ctx).Info().Int64("call_id", call.ID).Str("conversation_id", conv).
		Str("call_type", string(cls.CallType)).Str("priority", string(cls.Priority)).
		Msg("call created")
	return call, true, nil
}

// CreateCall is StartCall returning only the new call id.
func (s *CallService) CreateCall(ctx context.Context, p webhook.Payload) (int64, error) {
	c, err := s.StartCall(ctx, p)
	if err != nil {
		return 0, err
	}
	return c.ID, nil
}

// EndCall ends the active call for the payload's conversation. It returns
// false with no error when no active call matched (already ended or never
// started). A payload without conversation_id fails before touching the
// database.
func (s *CallService) EndCall(ctx context.Context, p webhook.Payload) (bool, error) {
	conv := p.ConversationID.String()
	if conv == "" {
		return false, ErrMissingConversationID
	}
	ctx, span := tracer().Start(ctx, "EndCall",
		trace.WithAttributes(attribute.String("call.conversation_id", conv)),
	)
	defer span.End()

	now := s.now()
	duration := p.DurationSeconds(now)
	end := repo.CallEnd{
		EndTime:        now,
		Duration:       duration,
		Transcript:     optional(p.Transcript.String()),
		AudioURL:       optional(p.Audio()),
		WebhookDataEnd: p.RawString(),
	}
	n, err := repo.EndActiveCall(ctx, s.DB, conv, end)
	if err != nil {
		transitions.WithLabelValues("end", outcomeError).Inc()
		logFrom(ctx).Error().Err(err).Str("conversation_id", conv).Msg("end call")
		return false, fmt.Errorf("end call %s: %w", conv, err)
	}
	if n == 0 {
		transitions.WithLabelValues("end", outcomeNoop).Inc()
		logFrom(ctx).Warn().Str("conversation_id", conv).Msg("no active call to end")
		return false, nil
	}
	transitions.WithLabelValues("end", outcomeApplied).Inc()

	var (
		callID int64
		agent  string
	)
	if c, err := repo.FindCallByConversation(ctx, s.DB, conv); err != nil {
		logFrom(ctx).Warn().Err(err).Str("conversation_id", conv).Msg("ended call lookup failed; recording event without call id")
	} else {
		callID, agent = c.ID, c.AgentName
	}
	s.recordEvent(ctx, callID, conv, domain.EventEnded, agent, map[string]any{"duration": duration})
	logFrom(ctx).Info().Str("conversation_id", conv).Int("duration", duration).Msg("call ended")
	return true, nil
}

// TransferCall reassigns call id to agent whatever its status.
func (s *CallService) TransferCall(ctx context.Context, id int64, agent string) (bool, error) {
	agent, err := validateTransition(id, agent, true)
	if err != nil {
		return false, err
	}
	return s.transition(ctx, "transfer", id, repo.StatusGuard{},
		map[string]any{"agent_name": agent},
		domain.EventTransfer, func(*domain.Call) string { return agent })
}

// MoveToWaiting parks call id in the waiting queue unless it already ended.
func (s *CallService) MoveToWaiting(ctx context.Context, id int64) (bool, error) {
	if _, err := validateTransition(id, "", false); err != nil {
		return false, err
	}
	return s.transition(ctx, "waiting", id,
		repo.StatusGuard{NotIn: []domain.CallStatus{domain.StatusEnded}},
		map[string]any{"status": domain.StatusWaiting},
		domain.EventWaiting, func(c *domain.Call) string { return c.AgentName })
}

// AttendCall takes call id out of the waiting queue for agent. The call's
// start time is reset to now.
func (s *CallService) AttendCall(ctx context.Context, id int64, agent string) (bool, error) {
	agent, err := validateTransition(id, agent, true)
	if err != nil {
		return false, err
	}
	return s.transition(ctx, "attend", id,
		repo.StatusGuard{In: []domain.CallStatus{domain.StatusWaiting}},
		map[string]any{"status": domain.StatusActive, "agent_name": agent, "start_time": s.now()},
		domain.EventAttend, func(*domain.Call) string { return agent })
}

// HoldCall moves an active call id to the waiting queue.
func (s *CallService) HoldCall(ctx context.Context, id int64) (bool, error) {
	if _, err := validateTransition(id, "", false); err != nil {
		return false, err
	}
	return s.transition(ctx, "hold", id,
		repo.StatusGuard{In: []domain.CallStatus{domain.StatusActive}},
		map[string]any{"status": domain.StatusWaiting},
		domain.EventHold, func(c *domain.Call) string { return c.AgentName })
}

// transition runs one guarded update and, when it applied, records ev with
// the agent returned by agentOf. The follow-up lookup is best-effort.
func (s *CallService) transition(
	ctx context.Context,
	action string,
	id int64,
	guard repo.StatusGuard,
	fields map[string]any,
	ev domain.EventType,
	agentOf func(*domain.Call) string,
) (bool, error) {
	ctx, span := tracer().Start(ctx, action,
		trace.WithAttributes(attribute.Int64("call.id", id)),
	)
	defer span.End()

	n, err := repo.UpdateCallGuarded(ctx, s.DB, id, guard, fields)
	if err != nil {
		transitions.WithLabelValues(action, outcomeError).Inc()
		logFrom(ctx).Error().Err(err).Int64("call_id", id).Str("action", action).Msg("call transition")
		return false, fmt.Errorf("%s call %d: %w", action, id, err)
	}
	if n == 0 {
		transitions.WithLabelValues(action, outcomeNoop).Inc()
		logFrom(ctx).Warn().Int64("call_id", id).Str("action", action).Msg("call transition matched no row")
		return false, nil
	}
	transitions.WithLabelValues(action, outcomeApplied).Inc()

	var conv, agent string
	if c, err := repo.GetCall(ctx, s.DB, id); err != nil {
		logFrom(ctx).Warn().Err(err).Int64("call_id", id).Msg("call lookup after transition failed")
		agent = agentOf(&domain.Call{})
	} else {
		conv, agent = c.ConversationID, agentOf(c)
	}
	s.recordEvent(ctx, id, conv, ev, agent, nil)
	return true, nil
}

// recordEvent appends an audit event. Zero values become NULL columns.
// Failures are logged and swallowed.
func (s *CallService) recordEvent(ctx context.Context, callID int64, conv string, ev domain.EventType, agent string, meta map[string]any) {
	row := &domain.CallEvent{
		EventType:      ev,
		ConversationID: optional(conv),
		AgentName:      optional(agent),
		CreatedAt:      s.now(),
	}
	if callID > 0 {
		row.CallID = &callID
	}
	if meta != nil {
		if b, err := json.Marshal(meta); err == nil {
			m := string(b)
			row.Meta = &m
		}
	}
	if err := repo.AppendCallEvent(ctx, s.DB, row); err != nil {
		logFrom(ctx).Warn().Err(err).Int64("call_id", callID).Str("event", string(ev)).Msg("append call event")
	}
}

// validateTransition checks id and, when needAgent is set, returns the
// trimmed agent name.
func validateTransition(id int64, agent string, needAgent bool) (string, error) {
	if id <= 0 {
		return "", ErrInvalidCallID
	}
	if !needAgent {
		return "", nil
	}
	agent = strings.TrimSpace(agent)
	if utf8.RuneCountInString(agent) < MinAgentNameRunes {
		return "", ErrInvalidAgent
	}
	return agent, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
