// Package console 为无界面运行时提供语音、识别与摄像头能力：合成器把文字写到终端，
// 识别器由输入行驱动。
package console

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/zhouzirui/digital-human/internal/service/tts"
)

const tick = 10 * time.Millisecond

// Synthesizer 打印要说的话，并按字数模拟播放时长。
type Synthesizer struct {
	out          io.Writer
	charDuration time.Duration

	mu     sync.Mutex
	paused bool
	cancel chan struct{}
}

// NewSynthesizer 创建终端合成器；charDuration 为语速 1 时每个字符的时长。
func NewSynthesizer(out io.Writer, charDuration time.Duration) *Synthesizer {
	return &Synthesizer{out: out, charDuration: charDuration, cancel: make(chan struct{})}
}

// Speak 阻塞直到"播放"完成、被取消或 ctx 结束。
func (s *Synthesizer) Speak(ctx context.Context, text string, cfg tts.Config) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if _, err := fmt.Fprintf(s.out, "🗣  %s\n", text); err != nil {
		return fmt.Errorf("write utterance: %w", err)
	}

	rate := cfg.Rate
	if rate <= 0 {
		rate = 1
	}
	remaining := time.Duration(float64(s.charDuration) * float64(len([]rune(text))) / rate)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cancel:
			return context.Canceled
		case <-ticker.C:
			if !s.isPaused() {
				remaining -= tick
			}
		}
	}
	return nil
}

// Cancel 中断正在进行的播放。
func (s *Synthesizer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.cancel)
	s.cancel = make(chan struct{})
	s.paused = false
}

func (s *Synthesizer) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

func (s *Synthesizer) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}

func (s *Synthesizer) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}
