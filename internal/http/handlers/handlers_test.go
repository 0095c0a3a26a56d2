package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/callcenter-backend/internal/classify"
	"github.com/tbourn/callcenter-backend/internal/domain"
	"github.com/tbourn/callcenter-backend/internal/http/middleware"
	"github.com/tbourn/callcenter-backend/internal/repo"
	"github.com/tbourn/callcenter-backend/internal/services"
	"github.com/tbourn/callcenter-backend/internal/webhook"
)

const testSecret = "wsec_test-secret"

// ---------- test DB + fixtures ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:call_handlers_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// memSnapshots is an in-process Snapshots that counts invalidations.
type memSnapshots struct {
	mu            sync.Mutex
	data          map[string][]byte
	invalidations int
}

func newMemSnapshots() *memSnapshots { return &memSnapshots{data: map[string][]byte{}} }

func (m *memSnapshots) Get(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (m *memSnapshots) Set(_ context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = b
	m.mu.Unlock()
	return nil
}

func (m *memSnapshots) Invalidate(context.Context) error {
	m.mu.Lock()
	m.data = map[string][]byte{}
	m.invalidations++
	m.mu.Unlock()
	return nil
}

type testEnv struct {
	r     *gin.Engine
	db    *gorm.DB
	cache *memSnapshots
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerDB(t)
	calls := services.NewCallService(db, classify.NewKeywordClassifier())
	snaps := newMemSnapshots()
	h := New(Options{
		Calls:    calls,
		Webhooks: services.NewWebhookService(db, calls),
		Cache:    snaps,
		Secrets:  webhook.Secrets{General: testSecret},
		DB:       db,
	})

	r := gin.New()
	r.Use(middleware.RequestID())

	wh := r.Group("/webhooks/elevenlabs")
	wh.POST("/call-started", h.CallStartedWebhook)
	wh.POST("/call-ended", h.CallEndedWebhook)

	// stands in for RequireBearer
	auth := func(c *gin.Context) {
		c.Set("userID", "op-1")
		c.Set("operatorName", "Operator One")
		c.Next()
	}
	lookup := func(ctx context.Context, userID, callID, key string, now time.Time) (bool, error) {
		_, err := repo.GetIdempotency(ctx, db, repo.IdempotencyKey{UserID: userID, CallID: callID, Key: key}, now)
		return err == nil, nil
	}
	g := r.Group("/calls", auth, middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, lookup))
	g.GET("/status", h.CallStatus)
	g.GET("/dashboard", h.Dashboard)
	g.GET("/active", h.ActiveCalls)
	g.GET("/waiting", h.WaitingCalls)
	g.GET("/stats", h.CallStats)
	g.GET("/history", h.CallHistory)
	g.GET("/storage-stats", h.StorageStats)
	g.GET("/:id/history", h.ConversationHistory)
	g.POST("/:id/transfer", h.TransferCall)
	g.POST("/:id/attend", h.AttendCall)
	g.POST("/:id/hold", h.HoldCall)
	g.POST("/:id/waiting", h.MoveToWaiting)

	return &testEnv{r: r, db: db, cache: snaps}
}

func (e *testEnv) do(method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *testEnv) webhook(path, body string) *httptest.ResponseRecorder {
	sig := webhook.Sign(testSecret, time.Now(), []byte(body))
	return e.do(http.MethodPost, path, body, map[string]string{webhook.HeaderSignature: sig})
}

// envelope decodes the data member of a success response into dst.
func envelope(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, w.Body.String())
	}
	if !env.Success {
		t.Fatalf("expected success, got %s", w.Body.String())
	}
	if dst != nil {
		if err := json.Unmarshal(env.Data, dst); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error: %v (%s)", err, w.Body.String())
	}
	return er.Code
}

func (e *testEnv) startCall(t *testing.T, conv string) int64 {
	t.Helper()
	w := e.webhook("/webhooks/elevenlabs/call-started", `{"conversation_id":"`+conv+`","agent_id":"agent-7"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("call-started status=%d body=%s", w.Code, w.Body.String())
	}
	var res services.StartedResult
	envelope(t, w, &res)
	return res.CallID
}

// ---------- webhooks ----------

func TestCallStartedWebhook(t *testing.T) {
	e := newTestEnv(t)

	id := e.startCall(t, "conv-1")
	if id <= 0 {
		t.Fatalf("call id = %d", id)
	}
	if e.cache.invalidations != 1 {
		t.Fatalf("invalidations = %d", e.cache.invalidations)
	}

	c, err := repo.GetCall(context.Background(), e.db, id)
	if err != nil || c.Status != domain.StatusActive || c.ConversationID != "conv-1" {
		t.Fatalf("stored call = %+v, %v", c, err)
	}
}

func TestWebhook_SignatureAndPayloadErrors(t *testing.T) {
	e := newTestEnv(t)
	path := "/webhooks/elevenlabs/call-started"

	w := e.do(http.MethodPost, path, `{"conversation_id":"x"}`, nil)
	if w.Code != http.StatusUnauthorized || errorCode(t, w) != ErrCodeInvalidSignature {
		t.Fatalf("unsigned: status=%d body=%s", w.Code, w.Body.String())
	}

	bad := webhook.Sign("other-secret", time.Now(), []byte(`{}`))
	w = e.do(http.MethodPost, path, `{}`, map[string]string{webhook.HeaderSignature: bad})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: status=%d", w.Code)
	}

	w = e.webhook(path, `[1,2]`)
	if w.Code != http.StatusBadRequest || errorCode(t, w) != ErrCodeInvalidPayload {
		t.Fatalf("array payload: status=%d body=%s", w.Code, w.Body.String())
	}
	if e.cache.invalidations != 0 {
		t.Fatalf("rejected webhooks must not invalidate")
	}
}

func TestWebhook_AllowUnsignedWithoutSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlerDB(t)
	calls := services.NewCallService(db, classify.NewKeywordClassifier())
	h := New(Options{Calls: calls, Webhooks: services.NewWebhookService(db, calls), AllowUnsigned: true})

	r := gin.New()
	r.POST("/started", h.CallStartedWebhook)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/started", strings.NewReader(`{"conversation_id":"dev"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestCallEndedWebhook(t *testing.T) {
	e := newTestEnv(t)
	e.startCall(t, "conv-end")
	path := "/webhooks/elevenlabs/call-ended"

	w := e.webhook(path, `{"conversation_id":"conv-end","duration":42}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var res services.EndedResult
	envelope(t, w, &res)
	if !res.Ended || res.ConversationID != "conv-end" {
		t.Fatalf("result = %+v", res)
	}

	// repeated end is acknowledged as a no-op
	w = e.webhook(path, `{"conversation_id":"conv-end"}`)
	envelope(t, w, &res)
	if w.Code != http.StatusOK || res.Ended {
		t.Fatalf("second end: status=%d result=%+v", w.Code, res)
	}
	if e.cache.invalidations != 2 {
		t.Fatalf("invalidations = %d; a no-op end must not invalidate", e.cache.invalidations)
	}

	w = e.webhook(path, `{"duration":3}`)
	if w.Code != http.StatusBadRequest || errorCode(t, w) != ErrCodeMissingConv {
		t.Fatalf("missing conversation: status=%d body=%s", w.Code, w.Body.String())
	}
}

// ---------- reads ----------

func TestCallStatus_Snapshot(t *testing.T) {
	e := newTestEnv(t)
	e.startCall(t, "conv-s")

	w := e.do(http.MethodGet, "/calls/status", "", nil)
	if w.Code != http.StatusOK || w.Header().Get(HeaderCache) != "MISS" {
		t.Fatalf("first: status=%d cache=%q", w.Code, w.Header().Get(HeaderCache))
	}
	var b services.StatusBoard
	envelope(t, w, &b)
	if b.Stats.ActiveCalls != 1 || len(b.ActiveCalls) != 1 {
		t.Fatalf("board = %+v", b)
	}

	w = e.do(http.MethodGet, "/calls/status", "", nil)
	if w.Header().Get(HeaderCache) != "HIT" {
		t.Fatalf("second request should hit the snapshot")
	}

	// a write drops the snapshot
	e.startCall(t, "conv-s2")
	w = e.do(http.MethodGet, "/calls/status", "", nil)
	envelope(t, w, &b)
	if w.Header().Get(HeaderCache) != "MISS" || b.Stats.ActiveCalls != 2 {
		t.Fatalf("after write: cache=%q board=%+v", w.Header().Get(HeaderCache), b.Stats)
	}
}

func TestDashboardAndQueues(t *testing.T) {
	e := newTestEnv(t)
	id := e.startCall(t, "conv-q")
	e.startCall(t, "conv-q2")

	w := e.do(http.MethodPost, fmt.Sprintf("/calls/%d/hold", id), "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("hold status=%d body=%s", w.Code, w.Body.String())
	}

	var list CallListResponse
	envelope(t, e.do(http.MethodGet, "/calls/active", "", nil), &list)
	if list.Count != 1 || len(list.Items) != 1 {
		t.Fatalf("active = %+v", list)
	}
	envelope(t, e.do(http.MethodGet, "/calls/waiting", "", nil), &list)
	if list.Count != 1 || list.Items[0].ID != id {
		t.Fatalf("waiting = %+v", list)
	}

	var d services.Dashboard
	envelope(t, e.do(http.MethodGet, "/calls/dashboard", "", nil), &d)
	if d.Stats.Active != 1 || d.Stats.Waiting != 1 {
		t.Fatalf("dashboard stats = %+v", d.Stats)
	}

	var st services.CallStats
	envelope(t, e.do(http.MethodGet, "/calls/stats?hours=abc", "", nil), &st)
	if st.Active != 1 || st.Waiting != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestCallHistory_PaginationBounds(t *testing.T) {
	e := newTestEnv(t)
	for i := 0; i < 3; i++ {
		e.startCall(t, fmt.Sprintf("conv-h%d", i))
	}

	var page CallHistoryResponse
	w := e.do(http.MethodGet, "/calls/history?limit=500&offset=-5", "", nil)
	envelope(t, w, &page)
	if page.Limit != maxHistoryLimit || page.Offset != 0 || page.Total != 3 || len(page.Items) != 3 {
		t.Fatalf("page = %+v", page)
	}

	envelope(t, e.do(http.MethodGet, "/calls/history?limit=0&offset=2", "", nil), &page)
	if page.Limit != defaultHistoryLimit || page.Offset != 2 || len(page.Items) != 1 || page.Total != 3 {
		t.Fatalf("page = %+v", page)
	}

	envelope(t, e.do(http.MethodGet, "/calls/history?status=ended", "", nil), &page)
	if page.Total != 0 || len(page.Items) != 0 {
		t.Fatalf("filtered page = %+v", page)
	}
}

func TestConversationHistory(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodGet, "/calls/unknown/history", "", nil)
	if w.Code != http.StatusNotFound || errorCode(t, w) != ErrCodeNotFound {
		t.Fatalf("unknown: status=%d body=%s", w.Code, w.Body.String())
	}

	e.startCall(t, "conv-t")
	var h services.ConversationHistory
	envelope(t, e.do(http.MethodGet, "/calls/conv-t/history", "", nil), &h)
	if h.ConversationID != "conv-t" || h.Status != "active" || len(h.Events) != 1 {
		t.Fatalf("history = %+v", h)
	}
}

func TestStorageStats(t *testing.T) {
	e := newTestEnv(t)
	e.startCall(t, "conv-st")

	var st services.StorageStats
	envelope(t, e.do(http.MethodGet, "/calls/storage-stats", "", nil), &st)
	if st.Live != 1 || st.Total != 1 {
		t.Fatalf("storage = %+v", st)
	}
}

// ---------- actions ----------

func TestActions_Validation(t *testing.T) {
	e := newTestEnv(t)

	for _, p := range []string{"/calls/abc/hold", "/calls/0/waiting", "/calls/-3/transfer"} {
		w := e.do(http.MethodPost, p, "", nil)
		if w.Code != http.StatusBadRequest || errorCode(t, w) != ErrCodeInvalidCallID {
			t.Fatalf("%s: status=%d body=%s", p, w.Code, w.Body.String())
		}
	}

	id := e.startCall(t, "conv-v")
	w := e.do(http.MethodPost, fmt.Sprintf("/calls/%d/transfer", id), `{"agent_name":"x"}`, nil)
	if w.Code != http.StatusBadRequest || errorCode(t, w) != ErrCodeInvalidAgent {
		t.Fatalf("short agent: status=%d body=%s", w.Code, w.Body.String())
	}

	w = e.do(http.MethodPost, fmt.Sprintf("/calls/%d/transfer", id), `{bad`, nil)
	if w.Code != http.StatusBadRequest || errorCode(t, w) != ErrCodeBadRequest {
		t.Fatalf("bad json: status=%d", w.Code)
	}
}

func TestActions_Transitions(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.startCall(t, "conv-a")
	base := fmt.Sprintf("/calls/%d", id)

	// attend requires waiting
	w := e.do(http.MethodPost, base+"/attend", `{"agent_name":"Dr. Ruiz"}`, nil)
	if w.Code != http.StatusNotFound || errorCode(t, w) != ErrCodeCallNotFound {
		t.Fatalf("attend active: status=%d body=%s", w.Code, w.Body.String())
	}

	w = e.do(http.MethodPost, base+"/waiting", "", nil)
	var ar ActionResponse
	envelope(t, w, &ar)
	if ar.CallID != id || ar.Action != actionWaiting {
		t.Fatalf("waiting = %+v", ar)
	}

	// falls back to the operator name from the token
	w = e.do(http.MethodPost, base+"/attend", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("attend: status=%d body=%s", w.Code, w.Body.String())
	}
	c, _ := repo.GetCall(ctx, e.db, id)
	if c.Status != domain.StatusActive || c.AgentName != "Operator One" {
		t.Fatalf("call after attend = %+v", c)
	}

	w = e.do(http.MethodPost, "/calls/9999/hold", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown id: status=%d", w.Code)
	}
}

func TestTransfer_IdempotentReplay(t *testing.T) {
	e := newTestEnv(t)
	id := e.startCall(t, "conv-i")
	path := fmt.Sprintf("/calls/%d/transfer", id)
	hdr := map[string]string{middleware.HeaderIdempotencyKey: "retry-123"}

	w := e.do(http.MethodPost, path, `{"agent_name":"Dr. Ana"}`, hdr)
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("first: status=%d replayed=%q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}
	w = e.do(http.MethodPost, path, `{"agent_name":"Dr. Ana"}`, hdr)
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("retry: status=%d replayed=%q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}

	evs, err := repo.ListCallEvents(context.Background(), e.db, id)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	transfers := 0
	for _, ev := range evs {
		if ev.EventType == domain.EventTransfer {
			transfers++
		}
	}
	if transfers != 1 {
		t.Fatalf("transfer events = %d; a replay must not re-run the action", transfers)
	}

	// recorded no-ops replay as 404
	hdr = map[string]string{middleware.HeaderIdempotencyKey: "retry-404"}
	w = e.do(http.MethodPost, "/calls/9999/hold", "", hdr)
	if w.Code != http.StatusNotFound {
		t.Fatalf("first no-op: status=%d", w.Code)
	}
	w = e.do(http.MethodPost, "/calls/9999/hold", "", hdr)
	if w.Code != http.StatusNotFound || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replayed no-op: status=%d replayed=%q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}
}
