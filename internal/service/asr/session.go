// Package asr 管理单个语音识别会话：权限、超时自动停止、转写结果分发，
// 以及在转发给对话服务之前拦截本地语音指令。
package asr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/digital-human/internal/model/avatar"
	"github.com/zhouzirui/digital-human/internal/model/chat"
	wire "github.com/zhouzirui/digital-human/internal/model/dialogue"
	"github.com/zhouzirui/digital-human/internal/service/animation"
	"github.com/zhouzirui/digital-human/internal/store"
)

// Mode 决定最终结果是否参与指令拦截与对话转发。
type Mode string

const (
	ModeCommand   Mode = "command"
	ModeDictation Mode = "dictation"
)

// State 识别会话状态。
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateError   State = "error"
)

// Config 识别会话配置。
type Config struct {
	Language       string        `mapstructure:"language"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Continuous     bool          `mapstructure:"continuous"`
	InterimResults bool          `mapstructure:"interim_results"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{Language: "zh-CN", Timeout: 30 * time.Second, Continuous: true, InterimResults: true}
}

// Result 一条转写结果。
type Result struct {
	Text  string
	Final bool
}

// StartOptions 单次启动的参数；零值表示命令模式与默认超时。
type StartOptions struct {
	Mode      Mode
	Timeout   time.Duration
	OnResult  func(Result)
	OnTimeout func()
	OnError   func(error)
}

// Deps 识别会话的协作者。Speech 与 Responder 可以为空。
type Deps struct {
	Microphone Microphone
	Recognizer Recognizer
	Store      *store.Store
	Engine     *animation.Engine
	Dialogue   DialogueSender
	Speech     SpeechControl
	Responder  Responder
	Logger     zerolog.Logger
}

// Session owns at most one recognition session at a time.
type Session struct {
	deps   Deps
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	state  State
	opts   StartOptions
	stream AudioStream
	timer  *time.Timer
	gen    uint64
	turns  sync.WaitGroup
}

// NewSession 创建识别会话。
func NewSession(deps Deps, cfg Config) *Session {
	defaults := DefaultConfig()
	if cfg.Language == "" {
		cfg.Language = defaults.Language
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	return &Session{
		deps:   deps,
		cfg:    cfg,
		logger: deps.Logger.With().Str("component", "asr").Logger(),
		state:  StateIdle,
	}
}

// State 返回当前状态。
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning 是否正在识别。
func (s *Session) IsRunning() bool {
	return s.State() == StateRunning
}

// CheckPermission queries the microphone permission. A denial is reported to
// the store; it is never returned as an error.
func (s *Session) CheckPermission(ctx context.Context) Permission {
	if s.deps.Microphone == nil {
		s.report(ErrorMessage("service-not-allowed"))
		return PermissionDenied
	}
	perm, err := s.deps.Microphone.Query(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("permission query failed")
		return PermissionPrompt
	}
	if perm == PermissionDenied {
		s.report(ErrorMessage("not-allowed"))
	}
	return perm
}

// RequestPermission acquires and immediately releases the microphone.
func (s *Session) RequestPermission(ctx context.Context) Permission {
	if s.deps.Microphone == nil {
		s.report(ErrorMessage("service-not-allowed"))
		return PermissionDenied
	}
	stream, err := s.deps.Microphone.Acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			s.report(ErrorMessage("not-allowed"))
			return PermissionDenied
		}
		s.report(ErrorMessage("audio-capture"))
		return PermissionPrompt
	}
	stream.Close()
	return PermissionGranted
}

// Start begins recognition. A second Start while running only swaps the
// options. Every failure path releases the microphone.
func (s *Session) Start(ctx context.Context, opts StartOptions) error {
	if opts.Mode == "" {
		opts.Mode = ModeCommand
	}
	if opts.Timeout <= 0 {
		opts.Timeout = s.cfg.Timeout
	}

	s.mu.Lock()
	if s.state == StateRunning {
		s.opts = opts
		s.mu.Unlock()
		s.logger.Debug().Msg("recognition already running, options updated")
		return nil
	}
	s.mu.Unlock()

	if s.deps.Microphone == nil || s.deps.Recognizer == nil {
		s.fail(ErrorMessage("service-not-allowed"))
		return ErrUnsupported
	}

	if s.CheckPermission(ctx) == PermissionDenied {
		s.setState(StateError)
		return ErrPermissionDenied
	}

	stream, err := s.deps.Microphone.Acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			s.fail(ErrorMessage("not-allowed"))
			return ErrPermissionDenied
		}
		s.fail(ErrorMessage("audio-capture"))
		return fmt.Errorf("acquire microphone: %w", err)
	}

	s.mu.Lock()
	if s.state == StateRunning {
		s.opts = opts
		s.mu.Unlock()
		stream.Close()
		return nil
	}
	s.gen++
	gen := s.gen
	s.state = StateRunning
	s.opts = opts
	s.stream = stream
	s.mu.Unlock()

	events := Events{
		OnResult: func(text string, final bool) { s.handleResult(gen, text, final) },
		OnError:  func(code string) { s.handleError(gen, code) },
		OnEnd:    func() { s.handleEnd(gen) },
	}
	recOpts := RecognizerOptions{
		Language:       s.cfg.Language,
		Continuous:     s.cfg.Continuous,
		InterimResults: s.cfg.InterimResults,
	}
	if err := s.deps.Recognizer.Start(ctx, stream, recOpts, events); err != nil {
		s.cleanup(true, true)
		s.fail(ErrorMessage("service-not-allowed"))
		return fmt.Errorf("start recognizer: %w", err)
	}

	s.mu.Lock()
	if s.gen == gen {
		s.armTimerLocked(gen, opts.Timeout)
	}
	s.mu.Unlock()

	s.deps.Store.SetListening(true)
	s.deps.Engine.SetBehavior(string(avatar.BehaviorListening), nil)
	s.logger.Info().Str("mode", string(opts.Mode)).Dur("timeout", opts.Timeout).Msg("recognition started")
	return nil
}

// Stop ends the session and releases every resource. Safe without a session.
func (s *Session) Stop() {
	s.cleanup(false, true)
}

// Abort is Stop for error and interrupt paths.
func (s *Session) Abort() {
	s.cleanup(true, true)
}

// Wait blocks until every forwarded dialogue turn has been answered.
func (s *Session) Wait() {
	s.turns.Wait()
}

func (s *Session) handleResult(gen uint64, text string, final bool) {
	s.mu.Lock()
	if gen != s.gen || s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.armTimerLocked(gen, s.opts.Timeout)
	opts := s.opts
	s.mu.Unlock()

	if opts.OnResult != nil {
		opts.OnResult(Result{Text: text, Final: final})
	}
	if final && opts.Mode == ModeCommand {
		s.route(text)
	}
}

func (s *Session) handleError(gen uint64, code string) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	onError := s.opts.OnError
	s.mu.Unlock()

	recErr := &RecognitionError{Code: code, Message: ErrorMessage(code)}
	s.logger.Error().Str("code", code).Msg("recognition error")

	s.cleanup(true, true)
	s.fail(recErr.Message)
	if onError != nil {
		onError(recErr)
	}
}

func (s *Session) handleEnd(gen uint64) {
	s.mu.Lock()
	current := gen == s.gen && s.state == StateRunning
	s.mu.Unlock()
	if current {
		// 对话回合进行中时行为由回合负责。
		s.cleanup(false, !s.deps.Store.Get().IsLoading)
	}
}

func (s *Session) handleTimeout(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	onTimeout := s.opts.OnTimeout
	s.mu.Unlock()

	s.logger.Info().Msg("no speech before timeout, stopping recognition")
	s.Stop()
	if onTimeout != nil {
		onTimeout()
	}
}

// armTimerLocked requires s.mu held.
func (s *Session) armTimerLocked(gen uint64, d time.Duration) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(d, func() { s.handleTimeout(gen) })
}

// cleanup is shared by every exit path.
func (s *Session) cleanup(abort, resetBehavior bool) {
	s.mu.Lock()
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	stream := s.stream
	s.stream = nil
	s.state = StateIdle
	s.opts = StartOptions{}
	s.mu.Unlock()

	if s.deps.Recognizer != nil {
		if abort {
			s.deps.Recognizer.Abort()
		} else {
			s.deps.Recognizer.Stop()
		}
	}
	if stream != nil {
		stream.Close()
	}

	s.deps.Store.SetListening(false)
	if resetBehavior {
		s.deps.Engine.SetBehavior(string(avatar.BehaviorIdle), nil)
	}
}

func (s *Session) route(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if cmd, ok := MatchCommand(text); ok {
		s.execute(cmd)
		return
	}
	s.forward(text)
}

func (s *Session) execute(cmd Command) {
	s.logger.Info().Str("command", string(cmd)).Msg("local voice command")
	engine := s.deps.Engine
	st := s.deps.Store

	switch cmd {
	case CommandUnmute:
		st.SetMuted(false)
	case CommandMute:
		st.SetMuted(true)
		if s.deps.Speech != nil {
			s.deps.Speech.ClearQueue()
		}
	case CommandPlay:
		st.SetPlaying(true)
		if s.deps.Speech != nil {
			s.deps.Speech.Resume()
		}
	case CommandPause:
		st.SetPlaying(false)
		if s.deps.Speech != nil {
			s.deps.Speech.Pause()
		}
	case CommandReset:
		engine.Reset()
	case CommandGreeting:
		engine.PerformGreeting()
	case CommandDance:
		engine.PlayAnimation(string(avatar.AnimationDance), true)
	case CommandNod:
		engine.PlayAnimation(string(avatar.AnimationNod), true)
	case CommandShakeHead:
		engine.PlayAnimation(string(avatar.AnimationShakeHead), true)
	}
}

func (s *Session) forward(text string) {
	st := s.deps.Store
	st.AddChatMessage(chat.RoleUser, text)
	if s.deps.Dialogue == nil {
		return
	}

	s.deps.Engine.SetBehavior(string(avatar.BehaviorThinking), nil)
	st.SetLoading(true)

	req := wire.ChatRequest{SessionID: st.Get().Session.ID, UserText: text}
	s.turns.Add(1)
	go func() {
		defer s.turns.Done()
		ctx := context.Background()
		resp := s.deps.Dialogue.SendUserInput(ctx, req)
		st.SetLoading(false)
		if s.deps.Responder != nil {
			s.deps.Responder(ctx, resp)
		} else {
			s.deps.Engine.SetBehavior(string(avatar.BehaviorIdle), nil)
		}
	}()
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// fail records message in the store and moves to the error state.
func (s *Session) fail(message string) {
	s.setState(StateError)
	s.report(message)
}

func (s *Session) report(message string) {
	s.deps.Store.PushError(message, store.SeverityError, 0)
}
