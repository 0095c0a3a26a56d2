// Package services – WebhookService
//
// This file implements WebhookService, which turns verified provider webhooks
// into call lifecycle operations and dashboard notifications, and records
// every delivery in webhook_logs. The call transition is the primary write;
// the notification and the log row are best-effort.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/callcenter-backend/internal/domain"
	"github.com/tbourn/callcenter-backend/internal/repo"
	"github.com/tbourn/callcenter-backend/internal/webhook"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// previewRunes caps the transcript preview stored on call_ended notifications.
const previewRunes = 100

// Webhook log statuses.
const (
	webhookLogSuccess = "success"
	webhookLogError   = "error"
)

// StartedResult is returned for a processed call_started webhook.
// Duplicate is set when the conversation already had an active call; no
// new row or notification is created then.
type StartedResult struct {
	ConversationID string `json:"conversation_id"`
	CallID         int64  `json:"call_id"`
	NotificationID *int64 `json:"notification_id"`
	Duplicate      bool   `json:"duplicate,omitempty"`
}

// EndedResult is returned for a processed call_ended webhook. Ended is false
// when no active call matched.
type EndedResult struct {
	ConversationID string `json:"conversation_id"`
	Ended          bool   `json:"ended"`
	NotificationID *int64 `json:"notification_id"`
}

// WebhookService processes inbound call webhooks.
type WebhookService struct {
	DB    *gorm.DB
	Calls *CallService
}

// NewWebhookService constructs a WebhookService over calls.
func NewWebhookService(db *gorm.DB, calls *CallService) *WebhookService {
	return &WebhookService{DB: db, Calls: calls}
}

func webhookTracer() trace.Tracer { return otel.Tracer("services/WebhookService") }

// CallStarted creates the call and raises a call_started notification.
func (s *WebhookService) CallStarted(ctx context.Context, p webhook.Payload) (*StartedResult, error) {
	ctx, span := webhookTracer().Start(ctx, "CallStarted")
	defer span.End()

	call, created, err := s.Calls.start(ctx, p)
	if err != nil {
		webhooksProcessed.WithLabelValues(string(webhook.KindCallStarted), outcomeError).Inc()
		s.log(ctx, webhook.KindCallStarted, p.ConversationID.String(), p, nil, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("call.conversation_id", call.ConversationID))

	if !created {
		res := &StartedResult{ConversationID: call.ConversationID, CallID: call.ID, Duplicate: true}
		webhooksProcessed.WithLabelValues(string(webhook.KindCallStarted), outcomeNoop).Inc()
		s.log(ctx, webhook.KindCallStarted, call.ConversationID, p, res, nil)
		return res, nil
	}

	data := payloadMap(p)
	data["call_id"] = call.ID
	agentID := p.AgentID.String()
	if agentID == "" {
		agentID = "unknown"
	}
	nid := s.notify(ctx, &domain.Notification{
		Type:           domain.NotificationCallStarted,
		Title:          "Llamada Iniciada - ElevenLabs",
		Message:        fmt.Sprintf("Nueva llamada iniciada. Conversación: %s, Agente: %s", call.ConversationID, agentID),
		ConversationID: call.ConversationID,
		Priority:       "normal",
	}, data)

	res := &StartedResult{ConversationID: call.ConversationID, CallID: call.ID, NotificationID: nid}
	webhooksProcessed.WithLabelValues(string(webhook.KindCallStarted), outcomeApplied).Inc()
	s.log(ctx, webhook.KindCallStarted, call.ConversationID, p, res, nil)
	return res, nil
}

// CallEnded ends the call and raises a call_ended notification. The
// notification is recorded even when no active call matched. A payload
// without conversation_id fails with ErrMissingConversationID.
func (s *WebhookService) CallEnded(ctx context.Context, p webhook.Payload) (*EndedResult, error) {
	ctx, span := webhookTracer().Start(ctx, "CallEnded")
	defer span.End()

	conv := p.ConversationID.String()
	span.SetAttributes(attribute.String("call.conversation_id", conv))

	ended, err := s.Calls.EndCall(ctx, p)
	if err != nil {
		webhooksProcessed.WithLabelValues(string(webhook.KindCallEnded), outcomeError).Inc()
		s.log(ctx, webhook.KindCallEnded, conv, p, nil, err)
		return nil, err
	}

	transcript := p.Transcript.String()
	if transcript == "" {
		transcript = "No transcript available"
	}
	data := payloadMap(p)
	data["transcript_preview"] = preview(transcript, previewRunes)
	data["call_ended_success"] = ended

	nid := s.notify(ctx, &domain.Notification{
		Type:           domain.NotificationCallEnded,
		Title:          "Llamada Finalizada - ElevenLabs",
		Message:        fmt.Sprintf("Llamada finalizada. Conversación: %s, Duración: %ds. Transcripción disponible.", conv, p.DurationSeconds(s.Calls.now())),
		ConversationID: conv,
		Priority:       "high",
	}, data)

	outcome := outcomeApplied
	if !ended {
		outcome = outcomeNoop
	}
	webhooksProcessed.WithLabelValues(string(webhook.KindCallEnded), outcome).Inc()
	res := &EndedResult{ConversationID: conv, Ended: ended, NotificationID: nid}
	s.log(ctx, webhook.KindCallEnded, conv, p, res, nil)
	return res, nil
}

// notify stores n with data as its payload and returns its id, or nil when
// the insert failed.
func (s *WebhookService) notify(ctx context.Context, n *domain.Notification, data map[string]any) *int64 {
	b, err := json.Marshal(data)
	if err != nil {
		b = []byte("{}")
	}
	n.Data = string(b)
	n.Status = "pending"
	n.CreatedAt = s.Calls.now()
	if err := repo.CreateNotification(ctx, s.DB, n); err != nil {
		logFrom(ctx).Warn().Err(err).Str("conversation_id", n.ConversationID).Str("type", string(n.Type)).Msg("create notification")
		return nil
	}
	id := n.ID
	return &id
}

// log records one webhook delivery. Failures are logged and swallowed.
func (s *WebhookService) log(ctx context.Context, kind webhook.Kind, conv string, p webhook.Payload, res any, procErr error) {
	if conv == "" {
		conv = "unknown"
	}
	row := &domain.WebhookLog{
		WebhookType:    string(kind),
		ConversationID: conv,
		Payload:        p.RawString(),
		Status:         webhookLogSuccess,
		CreatedAt:      s.Calls.now(),
	}
	if procErr != nil {
		row.Status = webhookLogError
		msg := procErr.Error()
		row.ErrorMessage = &msg
	} else if res != nil {
		if b, err := json.Marshal(res); err == nil {
			r := string(b)
			row.Response = &r
		}
	}
	if err := repo.CreateWebhookLog(ctx, s.DB, row); err != nil {
		logFrom(ctx).Warn().Err(err).Str("type", string(kind)).Msg("create webhook log")
	}
}

// payloadMap decodes the raw payload into a map for notification data.
func payloadMap(p webhook.Payload) map[string]any {
	out := map[string]any{}
	_ = json.Unmarshal([]byte(p.RawString()), &out)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

// preview truncates s to n runes, appending an ellipsis when cut.
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
