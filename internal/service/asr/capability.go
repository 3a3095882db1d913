package asr

import (
	"context"
	"errors"

	wire "github.com/zhouzirui/digital-human/internal/model/dialogue"
	"github.com/zhouzirui/digital-human/internal/service/dialogue"
)

// Permission 麦克风权限状态。
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionPrompt  Permission = "prompt"
)

var (
	// ErrUnsupported 表示当前环境没有语音识别能力。
	ErrUnsupported = errors.New("speech recognition unsupported")
	// ErrPermissionDenied 表示麦克风权限被拒绝。
	ErrPermissionDenied = errors.New("microphone permission denied")
)

// Microphone grants access to an audio input.
type Microphone interface {
	Query(ctx context.Context) (Permission, error)
	Acquire(ctx context.Context) (AudioStream, error)
}

// AudioStream is an acquired microphone stream; Close releases its tracks.
type AudioStream interface {
	Close()
}

// RecognizerOptions 传给识别引擎的参数。
type RecognizerOptions struct {
	Language       string
	Continuous     bool
	InterimResults bool
}

// Events are the recognizer callbacks. Error codes follow the Web Speech API
// names (no-speech, audio-capture, not-allowed, ...).
type Events struct {
	OnResult func(text string, final bool)
	OnError  func(code string)
	OnEnd    func()
}

// Recognizer is the speech recognition engine.
type Recognizer interface {
	Start(ctx context.Context, stream AudioStream, opts RecognizerOptions, events Events) error
	Stop()
	Abort()
}

// DialogueSender forwards free text to the dialogue backend.
type DialogueSender interface {
	SendUserInput(ctx context.Context, req wire.ChatRequest, opts ...dialogue.RequestOption) wire.ChatResponse
}

// SpeechControl is the part of the speech output queue driven by voice commands.
type SpeechControl interface {
	ClearQueue()
	Pause()
	Resume()
}

// Responder receives the dialogue reply for forwarded text.
type Responder func(ctx context.Context, resp wire.ChatResponse)
