// Package animation 负责把情绪、表情、行为与动画名称转换为状态写入，
// 并维护一个逐个播放的动画队列。
package animation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/digital-human/internal/model/avatar"
	"github.com/zhouzirui/digital-human/internal/store"
)

// QueueOptions 描述单个排队动画的播放方式。
type QueueOptions struct {
	// Duration 为零时使用动画自身的时长表。
	Duration time.Duration
	// AutoReset 为 nil 时默认 true。
	AutoReset  *bool
	OnComplete func()
}

type queueItem struct {
	name       avatar.Animation
	duration   time.Duration
	autoReset  bool
	onComplete func()
}

// Engine is the only component that writes avatar visuals to the store.
type Engine struct {
	store  *store.Store
	logger zerolog.Logger

	mu       sync.Mutex
	queue    []queueItem
	draining bool
	gen      uint64
	timer    *time.Timer
	done     chan struct{}
}

// NewEngine 创建动画引擎。
func NewEngine(st *store.Store, logger zerolog.Logger) *Engine {
	return &Engine{
		store:  st,
		logger: logger.With().Str("component", "animation").Logger(),
	}
}

// SetEmotion writes the emotion and its default expression. Unknown values
// force neutral/neutral and return false.
func (e *Engine) SetEmotion(raw string) bool {
	emotion, ok := avatar.ParseEmotion(raw)
	if !ok {
		e.logger.Warn().Str("emotion", raw).Msg("invalid emotion, falling back to neutral")
	}
	expression := avatar.DefaultExpression(emotion)
	e.store.Update(func(st *store.State) {
		st.Emotion = emotion
		st.Expression = expression
	})
	return ok
}

// SetExpression writes the expression, falling back to neutral.
func (e *Engine) SetExpression(raw string) bool {
	expression, ok := avatar.ParseExpression(raw)
	if !ok {
		e.logger.Warn().Str("expression", raw).Msg("invalid expression, falling back to neutral")
	}
	e.store.SetExpression(expression)
	return ok
}

// SetBehavior writes the behavior, falling back to idle. params are only logged.
func (e *Engine) SetBehavior(raw string, params map[string]any) bool {
	behavior, ok := avatar.ParseBehavior(raw)
	if !ok {
		e.logger.Warn().Str("behavior", raw).Msg("invalid behavior, falling back to idle")
	}
	if len(params) > 0 {
		e.logger.Debug().Str("behavior", string(behavior)).Fields(params).Msg("behavior params")
	}
	e.store.SetBehavior(behavior)
	return ok
}

// PlayAnimation plays name immediately, dropping the pending queue and any
// running auto-reset timer.
func (e *Engine) PlayAnimation(raw string, autoReset bool) bool {
	name, ok := avatar.ParseAnimation(raw)
	if !ok {
		e.logger.Warn().Str("animation", raw).Msg("unknown animation ignored")
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if dropped := len(e.queue); dropped > 0 {
		e.logger.Debug().Int("dropped", dropped).Msg("immediate animation clears queue")
	}
	e.queue = nil
	e.draining = false
	e.cancelCurrentLocked()

	duration := name.Duration()
	e.applyLocked(name)
	if autoReset && duration > 0 {
		e.armLocked(duration, true, nil)
	}
	return true
}

// QueueAnimation appends name to the queue. When the engine is idle the
// first item starts before QueueAnimation returns.
func (e *Engine) QueueAnimation(raw string, opts QueueOptions) bool {
	name, ok := avatar.ParseAnimation(raw)
	if !ok {
		e.logger.Warn().Str("animation", raw).Msg("unknown animation not queued")
		return false
	}

	item := queueItem{
		name:       name,
		duration:   opts.Duration,
		autoReset:  true,
		onComplete: opts.OnComplete,
	}
	if item.duration <= 0 {
		item.duration = name.Duration()
	}
	if opts.AutoReset != nil {
		item.autoReset = *opts.AutoReset
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.queue = append(e.queue, item)
	if !e.draining {
		e.draining = true
		e.startNextLocked()
	}
	return true
}

// ClearAnimationQueue drops items that have not started. The current one finishes.
func (e *Engine) ClearAnimationQueue() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = nil
}

// QueueLength 返回尚未开始播放的动画数量。
func (e *Engine) QueueLength() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// WaitForCurrentAnimation blocks until the running timed animation ends or
// is superseded. It returns at once when nothing is armed.
func (e *Engine) WaitForCurrentAnimation(ctx context.Context) error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PerformGreeting 开心地挥手。
func (e *Engine) PerformGreeting() {
	e.SetEmotion(string(avatar.EmotionHappy))
	e.PlayAnimation(string(avatar.AnimationWave), true)
}

// PerformThinking 进入思考姿态。
func (e *Engine) PerformThinking() {
	e.SetEmotion(string(avatar.EmotionNeutral))
	e.PlayAnimation(string(avatar.AnimationThink), true)
}

// PerformListening 进入聆听姿态。
func (e *Engine) PerformListening() {
	e.SetEmotion(string(avatar.EmotionNeutral))
	e.SetBehavior(string(avatar.BehaviorListening), nil)
}

// Reset stops queue and timers and restores the idle/neutral defaults.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.queue = nil
	e.draining = false
	e.cancelCurrentLocked()
	e.store.Update(func(st *store.State) {
		st.Animation = avatar.AnimationIdle
		st.Behavior = avatar.BehaviorIdle
		st.Emotion = avatar.EmotionNeutral
		st.Expression = avatar.ExpressionNeutral
	})
}

// applyLocked writes the animation and its mapped behavior in one update.
func (e *Engine) applyLocked(name avatar.Animation) {
	behavior, mapped := name.Behavior()
	e.store.Update(func(st *store.State) {
		st.Animation = name
		if mapped {
			st.Behavior = behavior
		}
	})
}

// armLocked supersedes whatever is armed, releasing its waiters.
func (e *Engine) armLocked(d time.Duration, reset bool, onComplete func()) {
	e.cancelCurrentLocked()
	gen := e.gen
	e.done = make(chan struct{})
	e.timer = time.AfterFunc(d, func() { e.finish(gen, reset, onComplete) })
}

func (e *Engine) cancelCurrentLocked() {
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.done != nil {
		close(e.done)
		e.done = nil
	}
}

func (e *Engine) startNextLocked() {
	if len(e.queue) == 0 {
		e.draining = false
		return
	}
	item := e.queue[0]
	e.queue = e.queue[1:]

	e.applyLocked(item.name)
	e.armLocked(item.duration, item.autoReset, func() {
		if item.onComplete != nil {
			item.onComplete()
		}
		e.drainNext()
	})
}

func (e *Engine) drainNext() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.draining {
		e.startNextLocked()
	}
}

// finish runs on timer expiry; a stale generation means it was superseded.
func (e *Engine) finish(gen uint64, reset bool, then func()) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	if reset {
		e.store.Update(func(st *store.State) {
			st.Animation = avatar.AnimationIdle
			st.Behavior = avatar.BehaviorIdle
		})
	}
	if e.done != nil {
		close(e.done)
		e.done = nil
	}
	e.mu.Unlock()

	if then != nil {
		then()
	}
}
