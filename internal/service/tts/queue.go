// Package tts 串行化语音合成请求，并把"正在说话"状态同步到共享状态。
package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/digital-human/internal/model/avatar"
	"github.com/zhouzirui/digital-human/internal/store"
)

// ErrQueueCleared 表示排队中的语音被 ClearQueue 取消。
var ErrQueueCleared = errors.New("speech queue cleared")

// Synthesizer is the speech engine. Speak blocks until the utterance ends;
// it should return early when ctx is cancelled.
type Synthesizer interface {
	Speak(ctx context.Context, text string, cfg Config) error
	Cancel()
	Pause()
	Resume()
}

// LengthObserver receives the pending queue length after every change.
type LengthObserver interface {
	SetSpeechQueueLength(n int)
}

// Option customises a Queue.
type Option func(*Queue)

// WithObserver reports queue depth to obs.
func WithObserver(obs LengthObserver) Option {
	return func(q *Queue) { q.observer = obs }
}

type item struct {
	text string
	cfg  Config
	done chan error
}

func (it *item) settle(err error) {
	it.done <- err
	close(it.done)
}

// Queue plays utterances one at a time in enqueue order.
type Queue struct {
	synth    Synthesizer
	store    *store.Store
	logger   zerolog.Logger
	observer LengthObserver

	mu       sync.Mutex
	config   Config
	items    []*item
	current  *item
	cancel   context.CancelFunc
	draining bool
	epoch    uint64
}

// NewQueue 创建语音输出队列。
func NewQueue(synth Synthesizer, st *store.Store, cfg Config, logger zerolog.Logger, opts ...Option) *Queue {
	q := &Queue{
		synth:  synth,
		store:  st,
		logger: logger.With().Str("component", "tts").Logger(),
		config: DefaultConfig().Merge(cfg),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Speak enqueues text and returns a channel that yields exactly one value:
// nil on success, the engine error, or ErrQueueCleared. Blank text settles
// immediately without touching the queue.
func (q *Queue) Speak(text string, override *ConfigUpdate) <-chan error {
	if strings.TrimSpace(text) == "" {
		it := &item{done: make(chan error, 1)}
		it.settle(nil)
		return it.done
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	cfg := q.config
	if override != nil {
		cfg = cfg.Apply(*override)
	}
	it := &item{text: text, cfg: cfg, done: make(chan error, 1)}
	q.items = append(q.items, it)
	q.observeLocked()

	if !q.draining {
		q.draining = true
		go q.drain()
	}
	return it.done
}

// SpeakAndWait speaks text with the default config and waits for it.
func (q *Queue) SpeakAndWait(ctx context.Context, text string) error {
	select {
	case err := <-q.Speak(text, nil):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateConfig merges update into the defaults used by later Speak calls.
// Items already queued keep the config captured when they were enqueued.
func (q *Queue) UpdateConfig(update ConfigUpdate) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.config = q.config.Apply(update)
}

// Config 返回当前默认配置。
func (q *Queue) Config() Config {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.config
}

// ClearQueue rejects every pending and in-flight utterance with ErrQueueCleared,
// stops the engine and forces speaking=false, behavior=idle.
func (q *Queue) ClearQueue() {
	q.mu.Lock()
	rejected := q.items
	q.items = nil
	if q.current != nil {
		rejected = append(rejected, q.current)
		q.current = nil
	}
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	q.epoch++
	q.store.Update(func(st *store.State) {
		st.IsSpeaking = false
		st.Behavior = avatar.BehaviorIdle
	})
	q.observeLocked()
	q.mu.Unlock()

	q.synth.Cancel()
	for _, it := range rejected {
		it.settle(ErrQueueCleared)
	}
	if len(rejected) > 0 {
		q.logger.Info().Int("rejected", len(rejected)).Msg("speech queue cleared")
	}
}

// Pause 透传给合成引擎，不影响队列。
func (q *Queue) Pause() { q.synth.Pause() }

// Resume 透传给合成引擎，不影响队列。
func (q *Queue) Resume() { q.synth.Resume() }

// QueueLength returns the number of utterances waiting behind the current one.
func (q *Queue) QueueLength() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsSpeaking reports whether an utterance is in flight.
func (q *Queue) IsSpeaking() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current != nil
}

// drain is the single consumer. Only one drain goroutine exists at a time
// because draining is cleared under the lock when the queue is empty.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		it := q.items[0]
		q.items = q.items[1:]
		ctx, cancel := context.WithCancel(context.Background())
		q.current = it
		q.cancel = cancel
		epoch := q.epoch
		q.store.Update(func(st *store.State) {
			st.IsSpeaking = true
			st.Behavior = avatar.BehaviorSpeaking
		})
		q.observeLocked()
		q.mu.Unlock()

		err := q.synth.Speak(ctx, it.text, it.cfg)
		cancel()

		q.mu.Lock()
		if q.epoch != epoch {
			// ClearQueue already settled this item.
			q.mu.Unlock()
			continue
		}
		q.current = nil
		q.cancel = nil
		last := len(q.items) == 0
		if last {
			q.draining = false
			q.store.Update(func(st *store.State) {
				st.IsSpeaking = false
				st.Behavior = avatar.BehaviorIdle
			})
		}
		q.mu.Unlock()

		if err != nil {
			q.logger.Error().Err(err).Str("text", it.text).Msg("speech synthesis failed")
			q.store.PushError(fmt.Sprintf("语音播放失败: %v", err), store.SeverityError, 0)
		}
		it.settle(err)

		if last {
			return
		}
	}
}

func (q *Queue) observeLocked() {
	if q.observer != nil {
		q.observer.SetSpeechQueueLength(len(q.items))
	}
}
