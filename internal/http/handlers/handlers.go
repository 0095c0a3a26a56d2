// Package handlers exposes the REST endpoints of the call center backend:
//   - provider webhooks under /webhooks/elevenlabs
//   - dashboard read projections under /calls
//   - operator actions under /calls/{id}/...
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into the response envelope.
package handlers

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/callcenter-backend/internal/cache"
	"github.com/tbourn/callcenter-backend/internal/repo"
	"github.com/tbourn/callcenter-backend/internal/services"
	"github.com/tbourn/callcenter-backend/internal/webhook"
)

//
// Service contracts (context-aware)
//

// CallService defines the call read projections and operator transitions
// consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type CallService interface {
	ActiveCalls(ctx context.Context) ([]services.CallView, error)
	WaitingCalls(ctx context.Context) ([]services.CallView, error)
	CallStats(ctx context.Context, hours int) (services.CallStats, error)
	CallHistory(ctx context.Context, opts services.HistoryOptions) ([]services.CallView, error)
	CountCallHistory(ctx context.Context, f repo.CallHistoryFilter) (int64, error)
	StatusBoard(ctx context.Context) (*services.StatusBoard, error)
	Dashboard(ctx context.Context) (*services.Dashboard, error)
	ConversationHistory(ctx context.Context, conversationID string) (*services.ConversationHistory, error)
	StorageStats(ctx context.Context) (*services.StorageStats, error)

	// Transitions report false when the call was not in a valid state.
	TransferCall(ctx context.Context, id int64, agent string) (bool, error)
	AttendCall(ctx context.Context, id int64, agent string) (bool, error)
	HoldCall(ctx context.Context, id int64) (bool, error)
	MoveToWaiting(ctx context.Context, id int64) (bool, error)
}

// WebhookService processes verified provider webhooks.
type WebhookService interface {
	CallStarted(ctx context.Context, p webhook.Payload) (*services.StartedResult, error)
	CallEnded(ctx context.Context, p webhook.Payload) (*services.EndedResult, error)
}

//
// Handler wiring
//

// DefaultIdempotencyTTL is how long a recorded operator action is replayed.
const DefaultIdempotencyTTL = 24 * time.Hour

// Options wires Handlers.
type Options struct {
	Calls    CallService
	Webhooks WebhookService

	// Cache holds dashboard snapshots. Nil disables caching.
	Cache cache.Snapshots

	// Secrets sign the provider webhooks.
	Secrets            webhook.Secrets
	SignatureTolerance time.Duration
	// AllowUnsigned accepts webhooks when no secret is configured. Only
	// meant for local development.
	AllowUnsigned bool

	// DB stores idempotency records for operator actions. Nil disables
	// replay.
	DB             *gorm.DB
	IdempotencyTTL time.Duration
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	calls    CallService
	webhooks WebhookService
	cache    cache.Snapshots

	secrets       webhook.Secrets
	tolerance     time.Duration
	allowUnsigned bool

	db      *gorm.DB
	idemTTL time.Duration
}

// New constructs Handlers from opts.
func New(opts Options) *Handlers {
	h := &Handlers{
		calls:         opts.Calls,
		webhooks:      opts.Webhooks,
		cache:         opts.Cache,
		secrets:       opts.Secrets,
		tolerance:     opts.SignatureTolerance,
		allowUnsigned: opts.AllowUnsigned,
		db:            opts.DB,
		idemTTL:       opts.IdempotencyTTL,
	}
	if h.cache == nil {
		h.cache = cache.Nop{}
	}
	if h.idemTTL <= 0 {
		h.idemTTL = DefaultIdempotencyTTL
	}
	return h
}
