// Package chat implements the turn service: the glue between channels,
// the rate limiter, persistence and the workflow engine.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"marketmate/pkg/api"
	"marketmate/pkg/monitor"
	"marketmate/pkg/ratelimit"
	"marketmate/pkg/store"
	"marketmate/pkg/workflow"
)

// estTokensPerTurn is the flat token cost charged against the TPM
// budget per turn. A tokenizer would be more precise; the budget math
// only needs a consistent estimate.
const estTokensPerTurn = 10

// Config tunes the service.
type Config struct {
	HistoryWindow int
	TurnTimeout   time.Duration
	DefaultModel  string
}

// Service is the production api.TurnService.
type Service struct {
	engine  *workflow.Engine
	store   *store.Store
	limiter *ratelimit.Limiter
	metrics monitor.Metrics
	cfg     Config
}

func NewService(engine *workflow.Engine, st *store.Store, limiter *ratelimit.Limiter, metrics monitor.Metrics, cfg Config) *Service {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 10
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 10 * time.Minute
	}
	if metrics == nil {
		metrics = monitor.NopMetrics{}
	}
	return &Service{
		engine:  engine,
		store:   st,
		limiter: limiter,
		metrics: metrics,
		cfg:     cfg,
	}
}

// HandleTurn processes one inbound message end to end. Rate limiting
// happens before any model work so a rejected turn costs nothing.
func (s *Service) HandleTurn(ctx context.Context, req api.TurnRequest) (*api.TurnResult, error) {
	if req.Content == "" {
		return nil, fmt.Errorf("empty message")
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("missing user id")
	}

	tier, err := s.store.EnsureUser(ctx, req.UserID, req.Username)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Check(req.UserID, tier, estTokensPerTurn); err != nil {
		slog.Warn("Turn rejected by rate limiter", "user_id", req.UserID, "tier", tier, "error", err)
		return nil, err
	}

	conv, err := s.resolveConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	history, err := s.store.History(ctx, conv.ID, s.cfg.HistoryWindow)
	if err != nil {
		return nil, err
	}
	userCount, err := s.store.CountUserMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	state := workflow.NewChatState(conv.ID, req.UserID, tier, req.Content, history)
	state.Summary = conv.Summary
	state.UserMessageCount = userCount + 1
	state.Model = conv.Model
	if state.Model == "" {
		state.Model = s.cfg.DefaultModel
	}
	state.Metadata = map[string]any{"user_id": req.UserID, "tier": tier}

	turnCtx, cancel := context.WithTimeout(ctx, s.cfg.TurnTimeout)
	defer cancel()

	slog.Info("Running chat workflow",
		"session_id", conv.ID, "user_id", req.UserID, "model", state.Model, "channel", req.Channel)

	if err := s.engine.Run(turnCtx, state); err != nil {
		return nil, fmt.Errorf("run workflow: %w", err)
	}

	if err := s.store.ApplyTurn(ctx, conv.ID, req.Content, state.Response, state.Summary); err != nil {
		// The reply still goes out; losing one transcript row beats
		// dropping the turn.
		slog.Error("Failed to persist turn", "session_id", conv.ID, "error", err)
	}

	s.metrics.Turn()
	return &api.TurnResult{
		ConversationID: conv.ID,
		Response:       state.Response,
		IsFinancial:    state.IsFinancial,
		Iterations:     state.Iteration,
	}, nil
}

// resolveConversation finds the conversation for the request: explicit
// id first, then the channel session key, otherwise a fresh one.
func (s *Service) resolveConversation(ctx context.Context, req api.TurnRequest) (*store.Conversation, error) {
	if req.ConversationID != "" {
		conv, err := s.store.Conversation(ctx, req.ConversationID)
		if err != nil {
			return nil, err
		}
		if conv.UserID != req.UserID {
			return nil, fmt.Errorf("conversation %s does not belong to user %s", conv.ID, req.UserID)
		}
		return conv, nil
	}

	if req.SessionKey != "" {
		conv, err := s.store.ConversationByKey(ctx, req.SessionKey)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	return s.store.CreateConversation(ctx, req.UserID, req.Model, req.SessionKey)
}
