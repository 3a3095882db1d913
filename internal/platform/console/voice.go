package console

import (
	"context"
	"strings"
	"sync"

	"github.com/zhouzirui/digital-human/internal/service/asr"
)

// Voice 同时充当麦克风与识别引擎：Feed 进来的每一行都被当作一次最终转写结果。
type Voice struct {
	mu         sync.Mutex
	active     bool
	continuous bool
	events     asr.Events
}

// NewVoice 创建控制台语音输入。
func NewVoice() *Voice {
	return &Voice{}
}

// Query 终端始终允许"录音"。
func (v *Voice) Query(context.Context) (asr.Permission, error) {
	return asr.PermissionGranted, nil
}

func (v *Voice) Acquire(context.Context) (asr.AudioStream, error) {
	return stream{}, nil
}

func (v *Voice) Start(_ context.Context, _ asr.AudioStream, opts asr.RecognizerOptions, events asr.Events) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.active = true
	v.continuous = opts.Continuous
	v.events = events
	return nil
}

func (v *Voice) Stop() {
	v.end()
}

func (v *Voice) Abort() {
	v.mu.Lock()
	v.active = false
	v.events = asr.Events{}
	v.mu.Unlock()
}

// Feed 投递一条转写；识别未启动时返回 false。非连续模式下投递后识别随即结束。
func (v *Voice) Feed(text string) bool {
	text = strings.TrimSpace(text)
	v.mu.Lock()
	if !v.active || text == "" {
		v.mu.Unlock()
		return false
	}
	events := v.events
	continuous := v.continuous
	v.mu.Unlock()

	if events.OnResult != nil {
		events.OnResult(text, true)
	}
	if !continuous {
		v.end()
	}
	return true
}

// Fail 模拟识别引擎报错，code 取 Web Speech API 的错误名。
func (v *Voice) Fail(code string) {
	v.mu.Lock()
	if !v.active {
		v.mu.Unlock()
		return
	}
	events := v.events
	v.mu.Unlock()

	if events.OnError != nil {
		events.OnError(code)
	}
}

func (v *Voice) end() {
	v.mu.Lock()
	if !v.active {
		v.mu.Unlock()
		return
	}
	v.active = false
	events := v.events
	v.events = asr.Events{}
	v.mu.Unlock()

	if events.OnEnd != nil {
		events.OnEnd()
	}
}

type stream struct{}

func (stream) Close() {}
