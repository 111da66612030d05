// Package web serves the HTTP chat API: a JSON turn endpoint, a
// conversation inspector, metrics, and a websocket variant of the chat
// loop for interactive clients.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"marketmate/pkg/api"
	"marketmate/pkg/gateway"
	"marketmate/pkg/monitor"
	"marketmate/pkg/ratelimit"
	"marketmate/pkg/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for decoupled UI
	},
}

type WebConfig struct {
	Port int `json:"port"` // Default: 9453
}

// ChatRequest is the POST /api/chat body.
type ChatRequest struct {
	UserID         string `json:"user_id"`
	Username       string `json:"username,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
	Model          string `json:"model,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// WebChannel is the HTTP/websocket api.Channel.
type WebChannel struct {
	config  WebConfig
	server  *http.Server
	turns   api.TurnService
	store   *store.Store
	metrics *monitor.Counters
	gw      *gateway.Manager

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewWebChannel(cfg WebConfig, turns api.TurnService, st *store.Store, metrics *monitor.Counters, gw *gateway.Manager) *WebChannel {
	if cfg.Port == 0 {
		cfg.Port = 9453
	}
	return &WebChannel{
		config:  cfg,
		turns:   turns,
		store:   st,
		metrics: metrics,
		gw:      gw,
		conns:   make(map[*websocket.Conn]struct{}),
	}
}

func (c *WebChannel) ID() string {
	return "web"
}

func (c *WebChannel) Start(ctx context.Context) error {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Minute))

	r.Get("/healthz", c.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", c.handleChat)
		r.Get("/conversations/{id}/messages", c.handleMessages)
		r.Get("/metrics", c.handleMetrics)
		r.Get("/ws", c.handleWebSocket)
	})

	c.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", c.config.Port),
		Handler: r,
	}

	slog.Info("Web API listening", "port", c.config.Port)

	go func() {
		if err := c.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Web API server error", "error", err)
		}
	}()

	return nil
}

func (c *WebChannel) Stop() error {
	c.mu.Lock()
	for conn := range c.conns {
		conn.Close()
	}
	c.mu.Unlock()

	if c.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return c.server.Shutdown(shutdownCtx)
	}
	return nil
}

func (c *WebChannel) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (c *WebChannel) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.UserID == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_id and message are required"})
		return
	}

	c.gw.ObserveUser(c.ID(), req.Username, req.Message)

	res, err := c.turns.HandleTurn(r.Context(), api.TurnRequest{
		UserID:         req.UserID,
		Username:       req.Username,
		ConversationID: req.ConversationID,
		Content:        req.Message,
		Channel:        c.ID(),
		Model:          req.Model,
	})
	if err != nil {
		writeJSON(w, statusForError(err), errorResponse{Error: err.Error()})
		return
	}

	c.gw.ObserveAssistant(c.ID(), req.Username, res.Response)
	writeJSON(w, http.StatusOK, res)
}

func (c *WebChannel) handleMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	conv, err := c.store.Conversation(r.Context(), id)
	if err != nil {
		writeJSON(w, statusForError(err), errorResponse{Error: err.Error()})
		return
	}

	msgs, err := c.store.Messages(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	type messageView struct {
		Role      string    `json:"role"`
		Content   string    `json:"content"`
		Timestamp time.Time `json:"timestamp"`
	}
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: time.Unix(m.Timestamp, 0),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conv.ID,
		"summary":         conv.Summary,
		"messages":        views,
	})
}

func (c *WebChannel) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if c.metrics == nil {
		writeJSON(w, http.StatusOK, map[string]int64{})
		return
	}
	writeJSON(w, http.StatusOK, c.metrics.Snapshot())
}

// handleWebSocket runs the chat loop over a websocket: each inbound
// ChatRequest frame yields one TurnResult frame.
func (c *WebChannel) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Websocket upgrade failed", "error", err)
		return
	}
	c.mu.Lock()
	c.conns[conn] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.conns, conn)
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		var req ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("Websocket read ended", "error", err)
			}
			return
		}
		if req.UserID == "" || req.Message == "" {
			if err := conn.WriteJSON(errorResponse{Error: "user_id and message are required"}); err != nil {
				return
			}
			continue
		}

		c.gw.ObserveUser(c.ID(), req.Username, req.Message)

		res, err := c.turns.HandleTurn(r.Context(), api.TurnRequest{
			UserID:         req.UserID,
			Username:       req.Username,
			ConversationID: req.ConversationID,
			Content:        req.Message,
			Channel:        c.ID(),
			Model:          req.Model,
		})
		if err != nil {
			if werr := conn.WriteJSON(errorResponse{Error: err.Error()}); werr != nil {
				return
			}
			continue
		}

		c.gw.ObserveAssistant(c.ID(), req.Username, res.Response)
		if err := conn.WriteJSON(res); err != nil {
			return
		}
	}
}

func statusForError(err error) int {
	var limitErr *ratelimit.LimitError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &limitErr):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
