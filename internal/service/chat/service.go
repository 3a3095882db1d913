package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/digital-human/internal/model/chat"
	wire "github.com/zhouzirui/digital-human/internal/model/dialogue"
)

// MaxHistoryRounds 是每个会话保留的对话轮数，一轮包含用户与助手各一条。
const MaxHistoryRounds = 20

// 回复来源，用于日志与指标。
const (
	SourceMock     = "mock"
	SourceLLM      = "llm"
	SourceFallback = "fallback"
)

var ErrSessionNotFound = errors.New("session not found")

// Responder 生成 LLM 回复，*ai.Service 满足该接口。
type Responder interface {
	Reply(ctx context.Context, history []chat.Message, userText string, meta map[string]any) (wire.ChatResponse, error)
}

// Observer 接收会话指标。
type Observer interface {
	ObserveChat(source string)
	SetSessions(n int)
}

// Option 调整 Service 行为。
type Option func(*Service)

// WithResponder 启用 LLM 回复。
func WithResponder(r Responder) Option {
	return func(s *Service) { s.responder = r }
}

// WithObserver 注入指标采集。
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// Service encapsulates conversation state and reply generation.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	messages map[string][]chat.Message

	responder Responder
	observer  Observer
	mock      *MockReplier
	logger    zerolog.Logger
}

// NewService bootstraps the in-memory dialogue service.
func NewService(logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		sessions: make(map[string]chat.Session),
		messages: make(map[string][]chat.Message),
		mock:     NewMockReplier(),
		logger:   logger.With().Str("component", "chat").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LLMEnabled 报告是否配置了 LLM。
func (s *Service) LLMEnabled() bool {
	return s.responder != nil
}

// GenerateReply 为一次用户输入生成回复；带 sessionId 的请求会记录到会话历史。
// LLM 失败时回退到本地 mock 回复，因此该方法总能给出结果。
func (s *Service) GenerateReply(ctx context.Context, req wire.ChatRequest) (wire.ChatResponse, string) {
	sessionID := strings.TrimSpace(req.SessionID)
	history := s.history(sessionID)
	s.record(sessionID, chat.RoleUser, req.UserText, "")

	reply, source := s.reply(ctx, history, req)
	s.record(sessionID, chat.RoleAssistant, reply.ReplyText, string(reply.Emotion))

	if s.observer != nil {
		s.observer.ObserveChat(source)
	}
	s.logger.Info().
		Str("session", sessionID).
		Str("source", source).
		Str("emotion", string(reply.Emotion)).
		Str("action", string(reply.Action)).
		Msg("reply generated")
	return reply, source
}

func (s *Service) reply(ctx context.Context, history []chat.Message, req wire.ChatRequest) (wire.ChatResponse, string) {
	if s.responder == nil {
		return s.mock.Reply(req.UserText), SourceMock
	}

	reply, err := s.responder.Reply(ctx, history, req.UserText, req.Meta)
	if err != nil {
		s.logger.Error().Err(err).Msg("调用 LLM 失败，将使用智能 Mock 回复")
		return s.mock.Reply(req.UserText), SourceFallback
	}
	return reply, SourceLLM
}

func (s *Service) history(sessionID string) []chat.Message {
	if sessionID == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	messages := s.messages[sessionID]
	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied
}

func (s *Service) record(sessionID string, role chat.Role, text, emotion string) {
	if sessionID == "" {
		return
	}

	message := chat.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Text:      text,
		Emotion:   emotion,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	if _, ok := s.sessions[sessionID]; !ok {
		s.sessions[sessionID] = chat.Session{ID: sessionID, CreatedAt: message.CreatedAt}
	}
	messages := append(s.messages[sessionID], message)
	if limit := MaxHistoryRounds * 2; len(messages) > limit {
		messages = append([]chat.Message(nil), messages[len(messages)-limit:]...)
	}
	s.messages[sessionID] = messages
	count := len(s.sessions)
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.SetSessions(count)
	}
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// LoadTranscript returns stored messages for the provided session.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// ClearSession 删除会话及其历史。
func (s *Service) ClearSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	if _, ok := s.sessions[sessionID]; !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	delete(s.messages, sessionID)
	count := len(s.sessions)
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.SetSessions(count)
	}
	s.logger.Info().Str("session", sessionID).Msg("session cleared")
	return nil
}

// SessionCount 返回当前会话数量。
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
