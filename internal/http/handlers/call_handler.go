// Call HTTP handlers.
//
// This file exposes the dashboard endpoints:
//   - GET  /calls/status, /calls/dashboard   (snapshot-cached projections)
//   - GET  /calls/active, /calls/waiting     (live queues)
//   - GET  /calls/stats, /calls/storage-stats
//   - GET  /calls/history                    (filtered, paginated)
//   - GET  /calls/{id}/history               (conversation timeline)
//   - POST /calls/{id}/transfer|attend|hold|waiting
//
// Operator actions honor Idempotency-Key: a retried POST with the same key
// is answered from the recorded outcome with `Idempotency-Replayed: true`
// instead of appending another audit event.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/callcenter-backend/internal/cache"
	"github.com/tbourn/callcenter-backend/internal/http/middleware"
	"github.com/tbourn/callcenter-backend/internal/repo"
	"github.com/tbourn/callcenter-backend/internal/services"
	"github.com/tbourn/callcenter-backend/internal/utils"
)

// History and stats query bounds.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	maxStatsHours       = 24 * 30
)

// HeaderCache reports whether a projection came from the snapshot cache.
const HeaderCache = "X-Cache"

//
// DTOs
//

// CallListResponse wraps a live queue.
type CallListResponse struct {
	Items []services.CallView `json:"items"`
	Count int                 `json:"count" example:"3"`
}

// CallHistoryResponse is a page of the call history.
type CallHistoryResponse struct {
	Items  []services.CallView `json:"items"`
	Total  int64               `json:"total" example:"128"`
	Limit  int                 `json:"limit" example:"50"`
	Offset int                 `json:"offset" example:"0"`
}

// AgentRequest names the agent taking over a call. When AgentName is empty
// the authenticated operator's name is used.
type AgentRequest struct {
	AgentName string `json:"agent_name" example:"Dra. Pérez"`
}

// ActionResponse reports an applied operator action.
type ActionResponse struct {
	CallID  int64  `json:"call_id" example:"42"`
	Action  string `json:"action" example:"transfer"`
	Message string `json:"message" example:"call transferred"`
}

// Operator actions.
const (
	actionTransfer = "transfer"
	actionAttend   = "attend"
	actionHold     = "hold"
	actionWaiting  = "waiting"
)

var actionMessages = map[string]string{
	actionTransfer: "call transferred",
	actionAttend:   "call attended",
	actionHold:     "call put on hold",
	actionWaiting:  "call moved to waiting",
}

//
// Helpers
//

// snapshot serves key from the cache or computes it with load and stores
// the result. Cache failures are logged and never fail the request.
func snapshot[T any](c *gin.Context, snaps cache.Snapshots, key string, load func(context.Context) (*T, error)) (*T, error) {
	ctx := c.Request.Context()
	var cached T
	hit, err := snaps.Get(ctx, key, &cached)
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Str("key", key).Msg("snapshot read failed")
	}
	if hit {
		c.Header(HeaderCache, "HIT")
		return &cached, nil
	}

	v, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if err := snaps.Set(ctx, key, v); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Str("key", key).Msg("snapshot write failed")
	}
	c.Header(HeaderCache, "MISS")
	return v, nil
}

// invalidate drops dashboard snapshots after a write.
func (h *Handlers) invalidate(c *gin.Context) {
	if err := h.cache.Invalidate(c.Request.Context()); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("snapshot invalidate failed")
	}
}

// callID parses the numeric :id path parameter.
func callID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

//
// Read handlers
//

// CallStatus godoc
// @ID          callStatus
// @Summary     Call status board
// @Description Active and completed calls of the last 24 hours with event counters. Served from a short-lived snapshot.
// @Tags        Calls
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.StatusBoard
// @Header      200  {string}  X-Cache  "HIT or MISS"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /calls/status [get]
func (h *Handlers) CallStatus(c *gin.Context) {
	b, err := snapshot(c, h.cache, cache.KeyStatusBoard, h.calls.StatusBoard)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeQueryFailed, "failed to load call status")
		return
	}
	ok(c, http.StatusOK, b)
}

// Dashboard godoc
// @ID          callDashboard
// @Summary     Operator dashboard
// @Description Active queue, waiting queue and 24h stats in one response. Served from a short-lived snapshot.
// @Tags        Calls
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.Dashboard
// @Header      200  {string}  X-Cache  "HIT or MISS"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /calls/dashboard [get]
func (h *Handlers) Dashboard(c *gin.Context) {
	d, err := snapshot(c, h.cache, cache.KeyDashboard, h.calls.Dashboard)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeQueryFailed, "failed to load dashboard")
		return
	}
	ok(c, http.StatusOK, d)
}

// ActiveCalls godoc
// @ID          activeCalls
// @Summary     Active calls
// @Description Calls currently connected to an agent, oldest first, with live durations.
// @Tags        Calls
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.CallListResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /calls/active [get]
func (h *Handlers) ActiveCalls(c *gin.Context) {
	items, err := h.calls.ActiveCalls(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeQueryFailed, "failed to load active calls")
		return
	}
	ok(c, http.StatusOK, CallListResponse{Items: items, Count: len(items)})
}

// WaitingCalls godoc
// @ID          waitingCalls
// @Summary     Waiting queue
// @Description Calls waiting for an agent, most urgent first, then longest waiting.
// @Tags        Calls
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.CallListResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /calls/waiting [get]
func (h *Handlers) WaitingCalls(c *gin.Context) {
	items, err := h.calls.WaitingCalls(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeQueryFailed, "failed to load waiting calls")
		return
	}
	ok(c, http.StatusOK, CallListResponse{Items: items, Count: len(items)})
}

// CallStats godoc
// @ID          callStats
// @Summary     Call statistics
// @Description Current load plus totals for calls completed within the window.
// @Tags        Calls
// @Produce     json
// @Security    BearerAuth
// @Param       hours  query  int  false  "Window in hours"  minimum(1) maximum(720) default(24)
// @Success     200  {object}  services.CallStats
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /calls/stats [get]
func (h *Handlers) CallStats(c *gin.Context) {
	hours := utils.Clamp(utils.AtoiDefault(c.Query("hours"), services.DefaultStatsHours), 1, maxStatsHours)
	st, err := h.calls.CallStats(c.Request.Context(), hours)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeQueryFailed, "failed to load call stats")
		return
	}
	ok(c, http.StatusOK, st)
}

// CallHistory godoc
// @ID          callHistory
// @Summary     Call history (paginated)
// @Description Filtered call history, newest first. limit < 1 falls back to 50 and is capped at 200; negative offsets become 0.
// @Tags        Calls
// @Produce     json
// @Security    BearerAuth
// @Param       status    query  string  false  "active | waiting | ended | all"
// @Param       priority  query  string  false  "Baja | Normal | Alta | Urgencia | all"
// @Param       search    query  string  false  "Case-insensitive match on patient name, phone or agent"
// @Param       limit     query  int     false  "Page size"  minimum(1) maximum(200) default(50)
// @Param       offset    query  int     false  "Rows to skip"  minimum(0) default(0)
// @Success     200  {object}  handlers.CallHistoryResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /calls/history [get]
func (h *Handlers) CallHistory(c *gin.Context) {
	ctx := c.Request.Context()
	f := repo.CallHistoryFilter{
		Status:   strings.TrimSpace(c.Query("status")),
		Priority: strings.TrimSpace(c.Query("priority")),
		Search:   strings.TrimSpace(c.Query("search")),
	}
	limit := utils.Limit(c.Query("limit"), defaultHistoryLimit, maxHistoryLimit)
	offset := utils.Offset(c.Query("offset"))

	items, err := h.calls.CallHistory(ctx, services.HistoryOptions{CallHistoryFilter: f, Limit: limit, Offset: offset})
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeQueryFailed, "failed to load call history")
		return
	}
	total, err := h.calls.CountCallHistory(ctx, f)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeQueryFailed, "failed to count call history")
		return
	}
	ok(c, http.StatusOK, CallHistoryResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}

// ConversationHistory godoc
// @ID          conversationHistory
// @Summary     Conversation timeline
// @Description Start/end notifications recorded for a conversation with a synthesized summary.
// @Tags        Calls
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Conversation ID"
// @Success     200  {object}  services.ConversationHistory
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "No events for this conversation"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /calls/{id}/history [get]
func (h *Handlers) ConversationHistory(c *gin.Context) {
	conv := strings.TrimSpace(c.Param("id"))
	if conv == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id required")
		return
	}
	hist, err := h.calls.ConversationHistory(c.Request.Context(), conv)
	switch {
	case errors.Is(err, services.ErrCallNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no call history for this conversation")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeQueryFailed, "failed to load conversation history")
	default:
		ok(c, http.StatusOK, hist)
	}
}

// StorageStats godoc
// @ID          storageStats
// @Summary     Storage statistics
// @Description Live and archived call counts and calls created per day over the last week.
// @Tags        Calls
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.StorageStats
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /calls/storage-stats [get]
func (h *Handlers) StorageStats(c *gin.Context) {
	st, err := h.calls.StorageStats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeQueryFailed, "failed to load storage stats")
		return
	}
	ok(c, http.StatusOK, st)
}

//
// Operator actions
//

// TransferCall godoc
// @ID          transferCall
// @Summary     Transfer a call
// @Description Assigns the call to another agent. Supports Idempotency-Key for safe retries.
// @Tags        Actions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id               path    int                      true   "Call ID"  minimum(1)
// @Param       Idempotency-Key  header  string                   false  "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.AgentRequest    false  "Agent taking the call"
// @Success     200  {object}  handlers.ActionResponse
// @Header      200  {string}  Idempotency-Replayed  "true when served from a previous request"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid id or agent"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Call not found"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /calls/{id}/transfer [post]
func (h *Handlers) TransferCall(c *gin.Context) {
	h.action(c, actionTransfer, true, func(ctx context.Context, id int64, agent string) (bool, error) {
		return h.calls.TransferCall(ctx, id, agent)
	})
}

// AttendCall godoc
// @ID          attendCall
// @Summary     Attend a waiting call
// @Description Connects a waiting call to an agent. Calls that are not waiting are left unchanged (404).
// @Tags        Actions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id               path    int                      true   "Call ID"  minimum(1)
// @Param       Idempotency-Key  header  string                   false  "Idempotency key for safe retries"
// @Param       body             body    handlers.AgentRequest    false  "Agent taking the call"
// @Success     200  {object}  handlers.ActionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid id or agent"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Call not found or not waiting"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /calls/{id}/attend [post]
func (h *Handlers) AttendCall(c *gin.Context) {
	h.action(c, actionAttend, true, func(ctx context.Context, id int64, agent string) (bool, error) {
		return h.calls.AttendCall(ctx, id, agent)
	})
}

// HoldCall godoc
// @ID          holdCall
// @Summary     Put an active call on hold
// @Tags        Actions
// @Produce     json
// @Security    BearerAuth
// @Param       id               path    int     true   "Call ID"  minimum(1)
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries"
// @Success     200  {object}  handlers.ActionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid id"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Call not found or not active"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /calls/{id}/hold [post]
func (h *Handlers) HoldCall(c *gin.Context) {
	h.action(c, actionHold, false, func(ctx context.Context, id int64, _ string) (bool, error) {
		return h.calls.HoldCall(ctx, id)
	})
}

// MoveToWaiting godoc
// @ID          moveToWaiting
// @Summary     Move a call to the waiting queue
// @Tags        Actions
// @Produce     json
// @Security    BearerAuth
// @Param       id               path    int     true   "Call ID"  minimum(1)
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries"
// @Success     200  {object}  handlers.ActionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid id"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Call not found or already ended"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /calls/{id}/waiting [post]
func (h *Handlers) MoveToWaiting(c *gin.Context) {
	h.action(c, actionWaiting, false, func(ctx context.Context, id int64, _ string) (bool, error) {
		return h.calls.MoveToWaiting(ctx, id)
	})
}

// action runs an operator transition with idempotent replay.
func (h *Handlers) action(c *gin.Context, name string, needAgent bool, run func(context.Context, int64, string) (bool, error)) {
	ctx := c.Request.Context()
	id, valid := callID(c)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeInvalidCallID, "call id must be a positive integer")
		return
	}

	var agent string
	if needAgent {
		var req AgentRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
		agent = strings.TrimSpace(req.AgentName)
		if agent == "" {
			agent = middleware.OperatorName(c)
		}
	}

	// Idempotency (replay path). The validator already found a record; the
	// action must match too.
	idemKey, hasKey := middleware.GetIdempotencyKey(c)
	key := repo.IdempotencyKey{UserID: middleware.UserID(c), CallID: strconv.FormatInt(id, 10), Key: idemKey}
	if hasKey && h.db != nil && middleware.IsReplay(c) {
		rec, err := repo.GetIdempotency(ctx, h.db, key, time.Now().UTC())
		if err == nil && rec.Action == name {
			c.Header("Idempotency-Replayed", "true")
			h.respondAction(c, id, name, rec.Status == http.StatusOK)
			return
		}
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency read failed")
		}
	}

	applied, err := run(ctx, id, agent)
	switch {
	case errors.Is(err, services.ErrInvalidAgent):
		fail(c, http.StatusBadRequest, ErrCodeInvalidAgent, err.Error())
		return
	case errors.Is(err, services.ErrInvalidCallID):
		fail(c, http.StatusBadRequest, ErrCodeInvalidCallID, err.Error())
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeActionFailed, "failed to "+name+" call")
		return
	}

	if applied {
		h.invalidate(c)
	}

	// Idempotency (store path), best effort.
	if hasKey && h.db != nil {
		status := http.StatusNotFound
		if applied {
			status = http.StatusOK
		}
		if _, err := repo.CreateIdempotency(ctx, h.db, key, name, status, h.idemTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency write failed")
		}
	}

	h.respondAction(c, id, name, applied)
}

func (h *Handlers) respondAction(c *gin.Context, id int64, name string, applied bool) {
	if !applied {
		fail(c, http.StatusNotFound, ErrCodeCallNotFound, "call not found or not in a valid state")
		return
	}
	ok(c, http.StatusOK, ActionResponse{CallID: id, Action: name, Message: actionMessages[name]})
}
