// Package app 把各个客户端组件装配成一个可运行的数字人。
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/digital-human/internal/config"
	"github.com/zhouzirui/digital-human/internal/metrics"
	"github.com/zhouzirui/digital-human/internal/model/avatar"
	"github.com/zhouzirui/digital-human/internal/model/chat"
	wire "github.com/zhouzirui/digital-human/internal/model/dialogue"
	"github.com/zhouzirui/digital-human/internal/service/animation"
	"github.com/zhouzirui/digital-human/internal/service/asr"
	"github.com/zhouzirui/digital-human/internal/service/dialogue"
	"github.com/zhouzirui/digital-human/internal/service/orchestrator"
	"github.com/zhouzirui/digital-human/internal/service/tts"
	"github.com/zhouzirui/digital-human/internal/service/vision"
	"github.com/zhouzirui/digital-human/internal/storage"
	"github.com/zhouzirui/digital-human/internal/store"
)

// TranscriptFeeder 接收外部注入的语音转写，console.Voice 满足该接口。
type TranscriptFeeder interface {
	Feed(text string) bool
}

// Deps 是运行环境提供的能力。
type Deps struct {
	Storage     storage.Store
	Synthesizer tts.Synthesizer
	Microphone  asr.Microphone
	Recognizer  asr.Recognizer
	Transcripts TranscriptFeeder
	Camera      vision.Camera
	Models      vision.ModelLoader
	VideoTarget vision.VideoTarget
	HTTPClient  *http.Client
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

// Client 持有一套完整的客户端组件，所有组件共享同一个 Store。
type Client struct {
	Store        *store.Store
	Engine       *animation.Engine
	Speech       *tts.Queue
	Dialogue     *dialogue.Client
	Orchestrator *orchestrator.Orchestrator
	Listener     *asr.Session
	Vision       *vision.Pipeline

	cfg    *config.Config
	deps   Deps
	logger zerolog.Logger
	turns  sync.WaitGroup
}

// NewClient 按配置装配组件。
func NewClient(cfg *config.Config, deps Deps) *Client {
	logger := deps.Logger

	st := store.New(store.Options{
		Storage:              deps.Storage,
		SessionKey:           cfg.Store.SessionKey,
		MaxChatHistory:       cfg.Store.MaxChatHistory,
		MaxErrorQueue:        cfg.Store.MaxErrorQueue,
		DefaultErrorAutoHide: cfg.Store.ErrorAutoHide,
		Logger:               logger,
	})
	engine := animation.NewEngine(st, logger)

	var speechOpts []tts.Option
	var dialogueOpts []dialogue.Option
	var visionObserver vision.Observer
	if deps.Metrics != nil {
		speechOpts = append(speechOpts, tts.WithObserver(deps.Metrics))
		dialogueOpts = append(dialogueOpts, dialogue.WithRecorder(deps.Metrics))
		visionObserver = deps.Metrics
	}
	if deps.HTTPClient != nil {
		dialogueOpts = append(dialogueOpts, dialogue.WithHTTPClient(deps.HTTPClient))
	}

	c := &Client{
		Store:        st,
		Engine:       engine,
		Speech:       tts.NewQueue(deps.Synthesizer, st, cfg.Speech.TTS, logger, speechOpts...),
		Dialogue:     dialogue.NewClient(cfg.Dialogue, st, logger, dialogueOpts...),
		Orchestrator: orchestrator.New(engine, st, logger),
		cfg:          cfg,
		deps:         deps,
		logger:       logger.With().Str("component", "client").Logger(),
	}

	c.Listener = asr.NewSession(asr.Deps{
		Microphone: deps.Microphone,
		Recognizer: deps.Recognizer,
		Store:      st,
		Engine:     engine,
		Dialogue:   c.Dialogue,
		Speech:     c.Speech,
		Responder:  c.respond,
		Logger:     logger,
	}, cfg.Speech.ASR)

	c.Vision = vision.NewPipeline(vision.Deps{
		Camera:   deps.Camera,
		Models:   deps.Models,
		Store:    st,
		Observer: visionObserver,
		Logger:   logger,
	}, cfg.Vision.Pipeline)

	return c
}

// Start 探测后端健康状况，并在启用时开启视觉识别。后端不可用不会阻止启动。
func (c *Client) Start(ctx context.Context) wire.HealthStatus {
	health := c.Dialogue.CheckServerHealth(ctx)
	if health.Healthy {
		c.logger.Info().Dur("latency", health.Latency).Msg("dialogue backend healthy")
	} else {
		c.logger.Warn().Str("error", health.Error).Msg("dialogue backend unavailable, replies will use fallback")
	}

	if c.cfg.Vision.Enabled && c.deps.Camera != nil && c.deps.Models != nil && c.deps.VideoTarget != nil {
		started := c.Vision.Start(ctx, c.deps.VideoTarget,
			func(e avatar.Emotion) { c.Orchestrator.HandleUserEmotion(e) },
			func(m avatar.Behavior) { c.Orchestrator.HandleUserMotion(m) },
		)
		if !started {
			c.logger.Warn().Str("status", string(c.Vision.Status())).Msg("vision pipeline not started")
		}
	}

	c.Engine.PerformGreeting()
	return health
}

// SendText 处理一次文字输入，返回本轮回复；回复播放完成后才返回。
func (c *Client) SendText(ctx context.Context, text string) (wire.ChatResponse, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return wire.ChatResponse{}, fmt.Errorf("empty input")
	}

	c.turns.Add(1)
	defer c.turns.Done()

	c.Store.AddChatMessage(chat.RoleUser, text)
	c.Engine.SetBehavior(string(avatar.BehaviorThinking), nil)
	c.Store.SetLoading(true)

	resp := c.Dialogue.SendUserInput(ctx, wire.ChatRequest{
		SessionID: c.Store.Get().Session.ID,
		UserText:  text,
		Meta:      map[string]any{"source": "text"},
	})
	c.Store.SetLoading(false)

	c.respond(ctx, resp)
	return resp, nil
}

// Hear 把一条语音转写交给识别会话；会话未运行时先以命令模式启动。
func (c *Client) Hear(ctx context.Context, transcript string) error {
	if c.deps.Transcripts == nil {
		return fmt.Errorf("recognizer does not accept transcripts")
	}
	if !c.Listener.IsRunning() {
		if err := c.Listener.Start(ctx, asr.StartOptions{Mode: asr.ModeCommand}); err != nil {
			return fmt.Errorf("start listening: %w", err)
		}
	}

	if !c.deps.Transcripts.Feed(transcript) {
		return fmt.Errorf("recognizer is not listening")
	}
	return nil
}

func (c *Client) respond(ctx context.Context, resp wire.ChatResponse) {
	c.Orchestrator.HandleDialogueResponse(ctx, resp, orchestrator.TurnOptions{
		IsMuted:       c.Store.Get().IsMuted,
		WaitForSpeech: true,
		Speak:         c.Speech.SpeakAndWait,
	})
}

// Wait 等待进行中的对话回合结束。
func (c *Client) Wait() {
	c.Listener.Wait()
	c.turns.Wait()
}

// Close 停止所有组件并释放定时器。
func (c *Client) Close() {
	c.Listener.Abort()
	c.Vision.Stop()
	c.Speech.ClearQueue()
	c.Engine.ClearAnimationQueue()
	c.Orchestrator.Close()
	c.Wait()
	c.Store.Close()
}
