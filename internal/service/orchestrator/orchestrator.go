// Package orchestrator 按"情绪 -> 动作 -> 语音"的顺序执行一轮对话回复，
// 并提供视觉镜像的入口。
package orchestrator

import (
	"context"
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

// DefaultMuteResetDelay 静音时动作结束后恢复 idle/neutral 的延迟。
const DefaultMuteResetDelay = 3 * time.Second

// SpeakFunc speaks text and returns when the utterance has finished.
type SpeakFunc func(ctx context.Context, text string) error

// TurnOptions 控制一轮回复的处理方式。
type TurnOptions struct {
	IsMuted       bool
	WaitForSpeech bool
	// SkipAssistantMessage 为 true 时不写入聊天记录。
	SkipAssistantMessage bool
	Speak                SpeakFunc
	TransitionDuration   time.Duration
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithMuteResetDelay overrides the delay used on muted turns.
func WithMuteResetDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.muteResetDelay = d }
}

// Orchestrator sequences one dialogue turn.
type Orchestrator struct {
	engine         *animation.Engine
	store          *store.Store
	logger         zerolog.Logger
	muteResetDelay time.Duration

	mu        sync.Mutex
	muteTimer *time.Timer
}

// New 创建编排器。
func New(engine *animation.Engine, st *store.Store, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:         engine,
		store:          st,
		logger:         logger.With().Str("component", "orchestrator").Logger(),
		muteResetDelay: DefaultMuteResetDelay,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleDialogueResponse applies emotion, then action, then speech. Speech
// failures are logged and never abort the turn.
func (o *Orchestrator) HandleDialogueResponse(ctx context.Context, resp wire.ChatResponse, opts TurnOptions) {
	o.cancelMuteReset()

	reply := strings.TrimSpace(resp.ReplyText)
	if reply != "" && !opts.SkipAssistantMessage {
		o.store.AddChatMessage(chat.RoleAssistant, resp.ReplyText)
	}

	o.engine.SetEmotion(string(resp.Emotion))

	action := o.applyAction(resp.Action, !opts.WaitForSpeech)

	if reply != "" && !opts.IsMuted && opts.Speak != nil {
		o.engine.SetBehavior(string(avatar.BehaviorSpeaking), nil)
		if err := opts.Speak(ctx, resp.ReplyText); err != nil {
			o.logger.Error().Err(err).Msg("speech output failed, continuing turn")
		}
		if opts.WaitForSpeech {
			if opts.TransitionDuration > 0 {
				if err := o.TransitionState(ctx, avatar.BehaviorIdle, opts.TransitionDuration); err != nil {
					o.logger.Debug().Err(err).Msg("transition interrupted")
				}
			} else {
				o.engine.SetBehavior(string(avatar.BehaviorIdle), nil)
			}
			o.engine.SetEmotion(string(avatar.EmotionNeutral))
		}
	}

	if opts.IsMuted && action != avatar.BehaviorIdle {
		o.scheduleMuteReset()
	}
}

// applyAction validates the action and triggers it. Animation names play
// through the engine, plain behaviors are set directly.
func (o *Orchestrator) applyAction(raw avatar.Behavior, autoReset bool) avatar.Behavior {
	action, ok := avatar.ParseBehavior(string(raw))
	if !ok {
		o.logger.Warn().Str("action", string(raw)).Msg("invalid action, falling back to idle")
	}
	if action == avatar.BehaviorIdle {
		return action
	}

	if _, isAnimation := avatar.ParseAnimation(string(action)); isAnimation {
		o.engine.PlayAnimation(string(action), autoReset)
	} else {
		o.engine.SetBehavior(string(action), nil)
	}
	return action
}

// TransitionState waits d, then sets behavior.
func (o *Orchestrator) TransitionState(ctx context.Context, behavior avatar.Behavior, d time.Duration) error {
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	o.engine.SetBehavior(string(behavior), nil)
	return nil
}

// HandleUserEmotion mirrors a detected user emotion unless the avatar is busy.
func (o *Orchestrator) HandleUserEmotion(emotion avatar.Emotion) bool {
	if o.busy() {
		return false
	}
	return o.engine.SetEmotion(string(emotion))
}

var motionAnimations = map[avatar.Behavior]avatar.Animation{
	avatar.BehaviorNod:       avatar.AnimationNod,
	avatar.BehaviorShakeHead: avatar.AnimationShakeHead,
	avatar.BehaviorWaveHand:  avatar.AnimationWave,
	avatar.BehaviorRaiseHand: avatar.AnimationRaiseHand,
}

// HandleUserMotion answers a detected user motion with a matching animation
// unless the avatar is busy.
func (o *Orchestrator) HandleUserMotion(motion avatar.Behavior) bool {
	if o.busy() {
		return false
	}
	anim, ok := motionAnimations[motion]
	if !ok {
		o.logger.Warn().Str("motion", string(motion)).Msg("unknown user motion ignored")
		return false
	}
	return o.engine.PlayAnimation(string(anim), true)
}

func (o *Orchestrator) busy() bool {
	snap := o.store.Get()
	return snap.IsSpeaking || snap.IsLoading
}

func (o *Orchestrator) scheduleMuteReset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.muteTimer != nil {
		o.muteTimer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(o.muteResetDelay, func() {
		o.mu.Lock()
		if o.muteTimer != timer {
			o.mu.Unlock()
			return
		}
		o.muteTimer = nil
		o.mu.Unlock()

		o.engine.SetBehavior(string(avatar.BehaviorIdle), nil)
		o.engine.SetEmotion(string(avatar.EmotionNeutral))
	})
	o.muteTimer = timer
}

func (o *Orchestrator) cancelMuteReset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.muteTimer != nil {
		o.muteTimer.Stop()
		o.muteTimer = nil
	}
}

// Close 取消尚未触发的静音复位。
func (o *Orchestrator) Close() {
	o.cancelMuteReset()
}
