// ABOUTME: HTTP endpoint tests over a real routing service and store
// ABOUTME: Session flow, idempotent send, webhook signing, sweep, rate limit

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayline/switchboard/internal/assign"
	"github.com/relayline/switchboard/internal/controller"
	"github.com/relayline/switchboard/internal/dedupe"
	"github.com/relayline/switchboard/internal/platform"
	"github.com/relayline/switchboard/internal/routing"
	"github.com/relayline/switchboard/internal/store"
)

const (
	testJWTSecret     = "test-jwt-secret"
	testWebhookSecret = "test-webhook-secret"
	testCronToken     = "test-cron-token"
)

func setupServer(t *testing.T) (*Server, *store.SQLiteStore, *platform.Recorder) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	rec := platform.NewRecorder()
	led := dedupe.NewLedger(st, nil)
	t.Cleanup(led.Close)

	svc := routing.NewService(st, assign.New(st, nil), led, controller.New(st, rec, nil), nil, rec, nil)
	srv := NewServer(Config{
		Service:       svc,
		Tokens:        NewSessionTokens([]byte(testJWTSecret)),
		WebhookSecret: testWebhookSecret,
		CronToken:     testCronToken,
	})
	return srv, st, rec
}

func postJSON(t *testing.T, handler http.Handler, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, handler http.Handler) SessionResponse {
	t.Helper()
	w := postJSON(t, handler, "/api/chat/session", SessionRequest{Name: "Ada"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestServer_SessionCreatesConversation(t *testing.T) {
	srv, st, _ := setupServer(t)
	h := srv.Handler()

	resp := createSession(t, h)
	assert.NotEmpty(t, resp.SessionID)
	assert.NotEmpty(t, resp.Token)

	conv, err := st.GetConversation(context.Background(), resp.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, resp.SessionID, conv.SessionID)

	// Same session id returns the same conversation.
	w := postJSON(t, h, "/api/chat/session", SessionRequest{SessionID: resp.SessionID}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var again SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &again))
	assert.Equal(t, resp.ConversationID, again.ConversationID)
}

func TestServer_SendRequiresToken(t *testing.T) {
	srv, _, _ := setupServer(t)
	h := srv.Handler()

	w := postJSON(t, h, "/api/chat/send", SendRequest{Text: "hi"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer bogus")
	w = postJSON(t, h, "/api/chat/send", SendRequest{Text: "hi"}, hdr)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_SendPersistsOnce(t *testing.T) {
	srv, st, _ := setupServer(t)
	h := srv.Handler()
	sess := createSession(t, h)

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+sess.Token)
	hdr.Set("X-Idempotency-Key", "send-1")

	w := postJSON(t, h, "/api/chat/send", SendRequest{Text: "hello"}, hdr)
	require.Equal(t, http.StatusAccepted, w.Code)

	// Replay with the same key: accepted, not duplicated.
	w = postJSON(t, h, "/api/chat/send", SendRequest{Text: "hello"}, hdr)
	require.Equal(t, http.StatusAccepted, w.Code)

	msgs, err := st.ListMessages(context.Background(), sess.ConversationID, 50)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestServer_SendEmptyTextRejected(t *testing.T) {
	srv, _, _ := setupServer(t)
	h := srv.Handler()
	sess := createSession(t, h)

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+sess.Token)
	w := postJSON(t, h, "/api/chat/send", SendRequest{Text: "   "}, hdr)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_SendToClosedConversationConflicts(t *testing.T) {
	srv, st, _ := setupServer(t)
	h := srv.Handler()
	sess := createSession(t, h)

	require.NoError(t, st.CloseConversation(context.Background(), sess.ConversationID, time.Now().UTC()))

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+sess.Token)
	w := postJSON(t, h, "/api/chat/send", SendRequest{Text: "hello?"}, hdr)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestServer_HistoryReturnsMessages(t *testing.T) {
	srv, _, _ := setupServer(t)
	h := srv.Handler()
	sess := createSession(t, h)

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+sess.Token)
	for i, text := range []string{"first", "second"} {
		hdr.Set("X-Idempotency-Key", "send-"+strconv.Itoa(i))
		w := postJSON(t, h, "/api/chat/send", SendRequest{Text: text}, hdr)
		require.Equal(t, http.StatusAccepted, w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/chat/history", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, sess.ConversationID, resp.ConversationID)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "first", resp.Messages[0].Text)
	assert.Equal(t, "second", resp.Messages[1].Text)
	assert.Equal(t, store.RoleUser, resp.Messages[0].Role)
}

func TestServer_HistoryRequiresToken(t *testing.T) {
	srv, _, _ := setupServer(t)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/chat/history", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_HistoryRejectsBadLimit(t *testing.T) {
	srv, _, _ := setupServer(t)
	h := srv.Handler()
	sess := createSession(t, h)

	req := httptest.NewRequest(http.MethodGet, "/api/chat/history?limit=zero", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_SendRateLimited(t *testing.T) {
	srv, _, _ := setupServer(t)
	h := srv.Handler()
	sess := createSession(t, h)

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+sess.Token)

	limited := false
	for i := 0; i < sendRateBurst+2; i++ {
		w := postJSON(t, h, "/api/chat/send", SendRequest{Text: "spam"}, hdr)
		if w.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	assert.True(t, limited, "burst beyond the limiter must hit 429")
}

func TestServer_WebhookRejectsBadSignature(t *testing.T) {
	srv, _, _ := setupServer(t)
	h := srv.Handler()

	hdr := http.Header{}
	hdr.Set("X-Signature-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	hdr.Set("X-Signature", "v0=deadbeef")
	w := postJSON(t, h, "/webhook/platform", WebhookEnvelope{
		EventID: "e1", ThreadRef: "thread-1", ActorID: "@a1:example.org", Kind: routing.SignalClaim,
	}, hdr)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_WebhookProcessesSignedClaim(t *testing.T) {
	srv, st, _ := setupServer(t)
	h := srv.Handler()
	sess := createSession(t, h)

	conv, err := st.GetConversation(context.Background(), sess.ConversationID)
	require.NoError(t, err)
	require.NotEmpty(t, conv.ThreadRef)

	env := WebhookEnvelope{
		EventID:   "evt-1",
		ThreadRef: conv.ThreadRef,
		ActorID:   "@a1:example.org",
		Kind:      routing.SignalClaim,
	}
	body, err := json.Marshal(env)
	require.NoError(t, err)
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	req := httptest.NewRequest(http.MethodPost, "/webhook/platform", bytes.NewReader(body))
	req.Header.Set("X-Signature-Timestamp", ts)
	req.Header.Set("X-Signature", SignBody([]byte(testWebhookSecret), ts, body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code, "webhook acks before processing")

	// Processing is async; wait for the claim to land.
	require.Eventually(t, func() bool {
		fresh, err := st.GetConversation(context.Background(), sess.ConversationID)
		return err == nil && fresh.AssignedAgentID == "@a1:example.org"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_WebhookRejectsInvalidEnvelope(t *testing.T) {
	srv, _, _ := setupServer(t)
	h := srv.Handler()

	body := []byte(`{"event_id":"e1"}`) // no thread_ref, no kind
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/webhook/platform", bytes.NewReader(body))
	req.Header.Set("X-Signature-Timestamp", ts)
	req.Header.Set("X-Signature", SignBody([]byte(testWebhookSecret), ts, body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_SweepRequiresCronToken(t *testing.T) {
	srv, _, _ := setupServer(t)
	h := srv.Handler()

	w := postJSON(t, h, "/cron/sweep", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+testCronToken)
	w = postJSON(t, h, "/cron/sweep", nil, hdr)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp["reassigned"])
}

func TestServer_Healthz(t *testing.T) {
	srv, _, _ := setupServer(t)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
