// ABOUTME: HTTP surface for the widget, platform webhook, and cron endpoints
// ABOUTME: Session minting, idempotent send, websocket events, ack-first webhook

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/relayline/switchboard/internal/routing"
	"github.com/relayline/switchboard/internal/store"
)

const (
	maxBodyBytes   = 1 << 20
	webhookTimeout = 30 * time.Second

	// Per-session widget send budget.
	sendRateInterval = 500 * time.Millisecond
	sendRateBurst    = 5

	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Config wires the server's dependencies.
type Config struct {
	Service *routing.Service
	Events  http.Handler // websocket handler, nil disables /api/chat/events
	Tokens  *SessionTokens

	// WebhookSecret signs platform deliveries; empty disables
	// verification (development only).
	WebhookSecret string
	// CronToken guards /cron/sweep when set.
	CronToken string

	Logger *slog.Logger
}

// Server exposes the routing core over HTTP.
type Server struct {
	service *routing.Service
	events  http.Handler
	tokens  *SessionTokens

	webhookSecret string
	cronToken     string
	logger        *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewServer creates the HTTP server shell.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		service:       cfg.Service,
		events:        cfg.Events,
		tokens:        cfg.Tokens,
		webhookSecret: cfg.WebhookSecret,
		cronToken:     cfg.CronToken,
		logger:        logger.With("component", "httpapi"),
		limiters:      make(map[string]*rate.Limiter),
	}
}

// RegisterRoutes attaches all endpoints to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/chat/session", s.handleSession)
	mux.HandleFunc("/api/chat/send", s.handleSend)
	mux.HandleFunc("/api/chat/history", s.handleHistory)
	mux.HandleFunc("/api/chat/events", s.handleEvents)
	mux.HandleFunc("/webhook/platform", s.handleWebhook)
	mux.HandleFunc("/cron/sweep", s.handleSweep)
	mux.HandleFunc("/healthz", s.handleHealthz)
}

// Handler returns a mux with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// SessionRequest is the JSON body for POST /api/chat/session.
type SessionRequest struct {
	SessionID string            `json:"session_id,omitempty"`
	Email     string            `json:"email,omitempty"`
	Name      string            `json:"name,omitempty"`
	Business  string            `json:"business,omitempty"`
	UTM       map[string]string `json:"utm,omitempty"`
}

// SessionResponse is the JSON response for POST /api/chat/session.
type SessionResponse struct {
	SessionID      string `json:"session_id"`
	ConversationID string `json:"conversation_id"`
	Token          string `json:"token"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req SessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	convID, created, err := s.service.EnsureConversation(r.Context(), sessionID, routing.Profile{
		Email:    req.Email,
		Name:     req.Name,
		Business: req.Business,
		UTM:      req.UTM,
	})
	if err != nil {
		s.logger.Error("failed to ensure conversation", "session", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if created {
		if err := s.service.OnNewConversation(r.Context(), convID); err != nil {
			// The conversation exists; routing it to a human can be
			// retried by the sweep or a later signal.
			s.logger.Error("failed to route new conversation", "conversation", convID, "error", err)
		}
	}

	token, err := s.tokens.Mint(sessionID, convID)
	if err != nil {
		s.logger.Error("failed to mint session token", "session", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		SessionID:      sessionID,
		ConversationID: convID,
		Token:          token,
	})
}

// SendRequest is the JSON body for POST /api/chat/send.
type SendRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sessionID, convID, ok := s.authorize(w, r)
	if !ok {
		return
	}
	if !s.limiter(sessionID).Allow() {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req SendRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	idemKey := r.Header.Get("X-Idempotency-Key")
	if idemKey == "" {
		idemKey = uuid.New().String()
	}

	if err := s.service.RecordVisitorMessage(r.Context(), convID, req.Text, idemKey); err != nil {
		switch {
		case errors.Is(err, store.ErrConversationClosed):
			writeError(w, http.StatusConflict, "conversation is closed")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "conversation not found")
		default:
			s.logger.Error("failed to record message", "conversation", convID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

// HistoryMessage is one message in the GET /api/chat/history response.
type HistoryMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryResponse is the JSON response for GET /api/chat/history.
type HistoryResponse struct {
	ConversationID string           `json:"conversation_id"`
	Messages       []HistoryMessage `json:"messages"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	_, convID, ok := s.authorize(w, r)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	msgs, err := s.service.History(r.Context(), convID, limit)
	if err != nil {
		s.logger.Error("failed to load history", "conversation", convID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := HistoryResponse{ConversationID: convID, Messages: make([]HistoryMessage, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, HistoryMessage{
			ID:        m.ID,
			Role:      m.Role,
			Text:      m.Text,
			CreatedAt: m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotFound, "realtime disabled")
		return
	}

	// Browsers cannot set headers on websocket dials, so the token
	// rides in the query string.
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing token")
		return
	}
	_, convID, err := s.tokens.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	// The subscription follows the token's conversation, never a
	// client-supplied id.
	q := r.URL.Query()
	q.Set("conversation_id", convID)
	r.URL.RawQuery = q.Encode()
	s.events.ServeHTTP(w, r)
}

// WebhookEnvelope is one signed platform delivery.
type WebhookEnvelope struct {
	EventID   string `json:"event_id"`
	ThreadRef string `json:"thread_ref"`
	ActorID   string `json:"actor_id"`
	Kind      string `json:"kind"`
	Text      string `json:"text,omitempty"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if s.webhookSecret != "" {
		ts := r.Header.Get("X-Signature-Timestamp")
		sig := r.Header.Get("X-Signature")
		if err := VerifySignature([]byte(s.webhookSecret), ts, sig, body, time.Now()); err != nil {
			s.logger.Warn("rejected webhook delivery", "error", err)
			writeError(w, http.StatusUnauthorized, "bad signature")
			return
		}
	}

	var env WebhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.ThreadRef == "" || env.Kind == "" {
		writeError(w, http.StatusBadRequest, "invalid envelope")
		return
	}

	// Ack first: the platform retries slow responses, and the dedupe
	// ledger makes redelivery safe anyway.
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
		defer cancel()
		err := s.service.OnAgentSignal(ctx, routing.Signal{
			ThreadRef: env.ThreadRef,
			ActorID:   env.ActorID,
			Kind:      env.Kind,
			Text:      env.Text,
			IdemKey:   env.EventID,
		})
		if err != nil {
			s.logger.Error("failed to process platform signal",
				"thread", env.ThreadRef,
				"kind", env.Kind,
				"error", err)
		}
	}()
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.cronToken != "" {
		if bearerToken(r) != s.cronToken {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
	}

	n, err := s.service.SweepTimeouts(r.Context())
	if err != nil {
		s.logger.Error("sweep failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"reassigned": n})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authorize extracts and verifies the bearer token, writing the error
// response itself on failure.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (sessionID, convID string, ok bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return "", "", false
	}
	sessionID, convID, err := s.tokens.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return "", "", false
	}
	return sessionID, convID, true
}

func (s *Server) limiter(sessionID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[sessionID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(sendRateInterval), sendRateBurst)
		s.limiters[sessionID] = lim
	}
	return lim
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
