// Package store 是客户端唯一的共享状态容器。所有组件只通过这里声明的 setter 修改状态。
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/digital-human/internal/model/avatar"
	"github.com/zhouzirui/digital-human/internal/model/chat"
	"github.com/zhouzirui/digital-human/internal/storage"
)

// DefaultSessionKey is the storage key holding the persisted session id.
const DefaultSessionKey = "digital-human-session-id"

// Options 配置状态容器。
type Options struct {
	Storage              storage.Store
	SessionKey           string
	MaxChatHistory       int
	MaxErrorQueue        int
	DefaultErrorAutoHide time.Duration
	Logger               zerolog.Logger
}

// DefaultOptions returns the documented defaults with no persistent storage.
func DefaultOptions() Options {
	return Options{
		SessionKey:           DefaultSessionKey,
		MaxChatHistory:       50,
		MaxErrorQueue:        5,
		DefaultErrorAutoHide: 5 * time.Second,
		Logger:               zerolog.Nop(),
	}
}

// Listener receives the state after and before every committed change.
type Listener func(next, prev State)

type listenerEntry struct {
	id int
	fn Listener
}

// Store holds the shared client state.
type Store struct {
	mu        sync.RWMutex
	state     State
	opts      Options
	logger    zerolog.Logger
	listeners []listenerEntry
	nextID    int
	timers    map[string]*time.Timer
	now       func() time.Time
}

// New builds a Store and resolves the session id before returning, so the
// session id is never empty afterwards.
func New(opts Options) *Store {
	defaults := DefaultOptions()
	if opts.SessionKey == "" {
		opts.SessionKey = defaults.SessionKey
	}
	if opts.MaxChatHistory <= 0 {
		opts.MaxChatHistory = defaults.MaxChatHistory
	}
	if opts.MaxErrorQueue <= 0 {
		opts.MaxErrorQueue = defaults.MaxErrorQueue
	}
	if opts.DefaultErrorAutoHide == 0 {
		opts.DefaultErrorAutoHide = defaults.DefaultErrorAutoHide
	}

	s := &Store{
		state:  initialState(),
		opts:   opts,
		logger: opts.Logger.With().Str("component", "store").Logger(),
		timers: make(map[string]*time.Timer),
		now:    time.Now,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.InitSession(ctx)
	return s
}

// Get returns a copy of the current state.
func (s *Store) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Subscribe registers fn for every change and returns a function removing it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, entry := range s.listeners {
			if entry.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Update applies a partial mutation atomically and notifies subscribers.
func (s *Store) Update(mutate func(*State)) {
	s.commit(func(st *State) bool {
		mutate(st)
		return true
	})
}

// commit runs mutate under the write lock; listeners run after the lock is released.
func (s *Store) commit(mutate func(*State) bool) bool {
	s.mu.Lock()
	prev := s.state.clone()
	if !mutate(&s.state) {
		s.mu.Unlock()
		return false
	}
	next := s.state.clone()
	listeners := make([]listenerEntry, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, entry := range listeners {
		entry.fn(next, prev)
	}
	return true
}

// SetEmotion writes the emotion. Values are validated upstream by the animation engine.
func (s *Store) SetEmotion(e avatar.Emotion) {
	s.Update(func(st *State) { st.Emotion = e })
}

// SetExpression writes the expression.
func (s *Store) SetExpression(x avatar.Expression) {
	s.Update(func(st *State) { st.Expression = x })
}

// SetBehavior writes the behavior.
func (s *Store) SetBehavior(b avatar.Behavior) {
	s.Update(func(st *State) { st.Behavior = b })
}

// SetAnimation writes the current animation.
func (s *Store) SetAnimation(a avatar.Animation) {
	s.Update(func(st *State) { st.Animation = a })
}

// SetSpeaking toggles the speaking flag.
func (s *Store) SetSpeaking(v bool) {
	s.Update(func(st *State) { st.IsSpeaking = v })
}

// SetListening toggles the listening flag.
func (s *Store) SetListening(v bool) {
	s.Update(func(st *State) { st.IsListening = v })
}

// SetLoading toggles the loading flag.
func (s *Store) SetLoading(v bool) {
	s.Update(func(st *State) { st.IsLoading = v })
}

// SetMuted toggles speech output muting.
func (s *Store) SetMuted(v bool) {
	s.Update(func(st *State) { st.IsMuted = v })
}

// SetPlaying toggles avatar playback.
func (s *Store) SetPlaying(v bool) {
	s.Update(func(st *State) { st.IsPlaying = v })
}

// SetConnectionStatus moves the connection along a legal edge. Illegal edges
// are logged and ignored; the return value reports whether the status changed
// or was already equal.
func (s *Store) SetConnectionStatus(status avatar.ConnectionStatus) bool {
	var from avatar.ConnectionStatus
	applied := s.commit(func(st *State) bool {
		from = st.Connection.Status
		if !from.CanTransition(status) {
			return false
		}
		st.Connection.Status = status
		switch status {
		case avatar.ConnectionConnected:
			st.Connection.LastConnectedAt = s.now()
			st.Connection.ReconnectAttempts = 0
		case avatar.ConnectionError:
			st.Connection.LastErrorAt = s.now()
		}
		return true
	})
	if !applied {
		s.logger.Warn().Str("from", string(from)).Str("to", string(status)).Msg("rejected invalid connection transition")
	}
	return applied
}

// SetReconnectAttempts records the current retry attempt.
func (s *Store) SetReconnectAttempts(n int) {
	s.Update(func(st *State) { st.Connection.ReconnectAttempts = n })
}

// AddChatMessage appends a message and evicts the oldest beyond MaxChatHistory.
func (s *Store) AddChatMessage(role chat.Role, text string) chat.Message {
	var msg chat.Message
	s.Update(func(st *State) {
		msg = chat.Message{
			ID:        uuid.NewString(),
			SessionID: st.Session.ID,
			Role:      role,
			Text:      text,
			CreatedAt: s.now(),
		}
		history := append(st.Session.ChatHistory, msg)
		if overflow := len(history) - s.opts.MaxChatHistory; overflow > 0 {
			history = append([]chat.Message(nil), history[overflow:]...)
		}
		st.Session.ChatHistory = history
	})
	return msg
}

// ClearChatHistory empties the chat history but keeps the session id.
func (s *Store) ClearChatHistory() {
	s.Update(func(st *State) { st.Session.ChatHistory = nil })
}

// InitSession (re)initialises the session: the id comes from storage when
// available, and the chat history is cleared.
func (s *Store) InitSession(ctx context.Context) {
	id := s.resolveSessionID(ctx)
	s.Update(func(st *State) {
		st.Session = SessionState{ID: id, CreatedAt: s.now()}
	})
}

func (s *Store) resolveSessionID(ctx context.Context) string {
	if s.opts.Storage == nil {
		return uuid.NewString()
	}

	if id, err := s.opts.Storage.Get(ctx, s.opts.SessionKey); err == nil && id != "" {
		return id
	} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn().Err(err).Msg("session storage unavailable, using in-memory session id")
	}

	id := uuid.NewString()
	if err := s.opts.Storage.Set(ctx, s.opts.SessionKey, id); err != nil {
		s.logger.Warn().Err(err).Msg("failed to persist session id")
	}
	return id
}

// UpdatePerformance replaces the performance metrics.
func (s *Store) UpdatePerformance(p Performance) {
	s.Update(func(st *State) { st.Performance = p })
}
