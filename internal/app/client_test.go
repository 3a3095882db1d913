package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/digital-human/internal/config"
	chathandler "github.com/zhouzirui/digital-human/internal/handler/chat"
	"github.com/zhouzirui/digital-human/internal/metrics"
	"github.com/zhouzirui/digital-human/internal/model/avatar"
	"github.com/zhouzirui/digital-human/internal/platform/console"
	chatservice "github.com/zhouzirui/digital-human/internal/service/chat"
	"github.com/zhouzirui/digital-human/internal/service/asr"
	"github.com/zhouzirui/digital-human/internal/service/dialogue"
	"github.com/zhouzirui/digital-human/internal/service/tts"
	"github.com/zhouzirui/digital-human/internal/storage"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	client   *Client
	spoken   *lockedBuffer
	requests *atomic.Int32
	backend  *chatservice.Service
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Dialogue: dialogue.Config{
			BaseURL:       baseURL,
			MaxRetries:    0,
			RetryDelay:    10 * time.Millisecond,
			Timeout:       time.Second,
			HealthTimeout: time.Second,
		},
		Speech: config.SpeechConfig{
			TTS: tts.DefaultConfig(),
			ASR: asr.Config{Language: "zh-CN", Timeout: 5 * time.Second},
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	backend := chatservice.NewService(zerolog.Nop())
	requests := &atomic.Int32{}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.URL.Path == "/v1/chat" {
				requests.Add(1)
			}
			next.ServeHTTP(w, req)
		})
	})
	chathandler.New(backend, zerolog.Nop()).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	spoken := &lockedBuffer{}
	voice := console.NewVoice()
	client := NewClient(testConfig(srv.URL), Deps{
		Storage:     storage.NewMemoryStore(),
		Synthesizer: console.NewSynthesizer(spoken, time.Millisecond),
		Microphone:  voice,
		Recognizer:  voice,
		Transcripts: voice,
		Metrics:     metrics.New(),
		Logger:      zerolog.Nop(),
	})
	t.Cleanup(client.Close)

	return &harness{client: client, spoken: spoken, requests: requests, backend: backend}
}

func TestStartChecksBackendHealth(t *testing.T) {
	h := newHarness(t)

	health := h.client.Start(context.Background())
	assert.True(t, health.Healthy)
	assert.Equal(t, "mock", health.Services["llm"])
}

func TestSendTextRunsFullTurn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.client.SendText(ctx, "谢谢")
	require.NoError(t, err)
	assert.Equal(t, avatar.EmotionHappy, resp.Emotion)
	assert.Equal(t, avatar.BehaviorNod, resp.Action)

	state := h.client.Store.Get()
	assert.Equal(t, avatar.ConnectionConnected, state.Connection.Status)
	assert.False(t, state.IsLoading)
	assert.False(t, state.IsSpeaking)
	assert.Equal(t, avatar.BehaviorIdle, state.Behavior)
	assert.Equal(t, avatar.EmotionNeutral, state.Emotion)
	require.Len(t, state.Session.ChatHistory, 2)
	assert.Equal(t, resp.ReplyText, state.Session.ChatHistory[1].Text)
	assert.Contains(t, h.spoken.String(), resp.ReplyText)

	transcript, err := h.backend.LoadTranscript(ctx, state.Session.ID)
	require.NoError(t, err)
	assert.Len(t, transcript, 2)
}

func TestSendTextRejectsBlank(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.SendText(context.Background(), "   ")
	require.Error(t, err)
	assert.Equal(t, int32(0), h.requests.Load())
}

func TestHearCommandStaysLocal(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.client.Hear(context.Background(), "点头"))

	state := h.client.Store.Get()
	assert.Equal(t, avatar.AnimationNod, state.Animation)
	assert.False(t, state.IsListening)
	assert.False(t, h.client.Listener.IsRunning())
	assert.Equal(t, int32(0), h.requests.Load())
	assert.Empty(t, state.Session.ChatHistory)
}

func TestHearFreeTextForwardsToDialogue(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.client.Hear(context.Background(), "今天天气怎么样"))
	h.client.Wait()

	state := h.client.Store.Get()
	assert.Equal(t, int32(1), h.requests.Load())
	require.Len(t, state.Session.ChatHistory, 2)
	assert.Equal(t, "今天天气怎么样", state.Session.ChatHistory[0].Text)
	assert.False(t, state.IsLoading)
	assert.Contains(t, h.spoken.String(), "天气")
}

func TestSendTextFallsBackWhenBackendDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	voice := console.NewVoice()
	client := NewClient(testConfig(srv.URL), Deps{
		Synthesizer: console.NewSynthesizer(&lockedBuffer{}, time.Millisecond),
		Microphone:  voice,
		Recognizer:  voice,
		Transcripts: voice,
		Logger:      zerolog.Nop(),
	})
	t.Cleanup(client.Close)

	resp, err := client.SendText(context.Background(), "你好")
	require.NoError(t, err)
	assert.Equal(t, avatar.BehaviorWave, resp.Action)

	state := client.Store.Get()
	assert.Equal(t, avatar.ConnectionError, state.Connection.Status)
	assert.NotEmpty(t, state.Errors)
}

func TestRunConsole(t *testing.T) {
	h := newHarness(t)
	out := &lockedBuffer{}

	input := strings.NewReader("/state\n你好\n!静音\n/quit\n这一行不会被处理\n")
	require.NoError(t, h.client.RunConsole(context.Background(), input, out))

	state := h.client.Store.Get()
	assert.True(t, state.IsMuted)
	assert.Equal(t, int32(1), h.requests.Load())
	assert.Contains(t, out.String(), `"isMuted": false`)
	assert.Contains(t, out.String(), "happy")
}
