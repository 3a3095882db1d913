package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/digital-human/internal/model/avatar"
	"github.com/zhouzirui/digital-human/internal/model/chat"
	wire "github.com/zhouzirui/digital-human/internal/model/dialogue"
	"github.com/zhouzirui/digital-human/internal/service/animation"
	"github.com/zhouzirui/digital-human/internal/store"
)

func newTestOrchestrator(t *testing.T, opts ...Option) (*Orchestrator, *store.Store) {
	t.Helper()
	st := store.New(store.Options{})
	t.Cleanup(st.Close)
	engine := animation.NewEngine(st, zerolog.Nop())
	o := New(engine, st, zerolog.Nop(), opts...)
	t.Cleanup(o.Close)
	return o, st
}

func TestTurnOrderEmotionActionSpeech(t *testing.T) {
	o, st := newTestOrchestrator(t)

	var during store.State
	speak := func(_ context.Context, text string) error {
		during = st.Get()
		assert.Equal(t, "嗨", text)
		return nil
	}

	o.HandleDialogueResponse(context.Background(),
		wire.ChatResponse{ReplyText: "嗨", Emotion: avatar.EmotionHappy, Action: avatar.BehaviorWave},
		TurnOptions{WaitForSpeech: true, Speak: speak})

	assert.Equal(t, avatar.EmotionHappy, during.Emotion)
	assert.Equal(t, avatar.ExpressionSmile, during.Expression)
	assert.Equal(t, avatar.AnimationWave, during.Animation)
	assert.Equal(t, avatar.BehaviorSpeaking, during.Behavior)

	snap := st.Get()
	assert.Equal(t, avatar.BehaviorIdle, snap.Behavior)
	assert.Equal(t, avatar.EmotionNeutral, snap.Emotion)
	require.Len(t, snap.Session.ChatHistory, 1)
	assert.Equal(t, chat.RoleAssistant, snap.Session.ChatHistory[0].Role)
}

func TestSkipAssistantMessage(t *testing.T) {
	o, st := newTestOrchestrator(t)

	o.HandleDialogueResponse(context.Background(),
		wire.ChatResponse{ReplyText: "好的", Emotion: avatar.EmotionNeutral, Action: avatar.BehaviorIdle},
		TurnOptions{SkipAssistantMessage: true})
	assert.Empty(t, st.Get().Session.ChatHistory)
}

func TestInvalidValuesFallBack(t *testing.T) {
	o, st := newTestOrchestrator(t)

	o.HandleDialogueResponse(context.Background(),
		wire.ChatResponse{ReplyText: "", Emotion: "rage", Action: "cartwheel"},
		TurnOptions{})

	snap := st.Get()
	assert.Equal(t, avatar.EmotionNeutral, snap.Emotion)
	assert.Equal(t, avatar.BehaviorIdle, snap.Behavior)
	assert.Equal(t, avatar.AnimationIdle, snap.Animation)
}

func TestMutedTurnNeverSpeaks(t *testing.T) {
	o, st := newTestOrchestrator(t, WithMuteResetDelay(30*time.Millisecond))

	called := false
	o.HandleDialogueResponse(context.Background(),
		wire.ChatResponse{ReplyText: "跳个舞", Emotion: avatar.EmotionHappy, Action: avatar.BehaviorDance},
		TurnOptions{IsMuted: true, WaitForSpeech: true, Speak: func(context.Context, string) error {
			called = true
			return nil
		}})

	assert.False(t, called)
	snap := st.Get()
	assert.Equal(t, avatar.EmotionHappy, snap.Emotion)
	assert.Equal(t, avatar.AnimationDance, snap.Animation)

	require.Eventually(t, func() bool {
		s := st.Get()
		return s.Behavior == avatar.BehaviorIdle && s.Emotion == avatar.EmotionNeutral
	}, time.Second, 5*time.Millisecond)
}

func TestNewTurnCancelsPendingMuteReset(t *testing.T) {
	o, st := newTestOrchestrator(t, WithMuteResetDelay(40*time.Millisecond))

	o.HandleDialogueResponse(context.Background(),
		wire.ChatResponse{Emotion: avatar.EmotionHappy, Action: avatar.BehaviorNod},
		TurnOptions{IsMuted: true})
	o.HandleDialogueResponse(context.Background(),
		wire.ChatResponse{Emotion: avatar.EmotionSad, Action: avatar.BehaviorIdle},
		TurnOptions{IsMuted: true})

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, avatar.EmotionSad, st.Get().Emotion)
}

func TestSpeakFailureDoesNotAbortTurn(t *testing.T) {
	o, st := newTestOrchestrator(t)

	o.HandleDialogueResponse(context.Background(),
		wire.ChatResponse{ReplyText: "你好", Emotion: avatar.EmotionHappy, Action: avatar.BehaviorIdle},
		TurnOptions{WaitForSpeech: true, Speak: func(context.Context, string) error {
			return errors.New("synth offline")
		}})

	snap := st.Get()
	assert.Equal(t, avatar.BehaviorIdle, snap.Behavior)
	assert.Equal(t, avatar.EmotionNeutral, snap.Emotion)
}

func TestTransitionDurationDelaysIdle(t *testing.T) {
	o, st := newTestOrchestrator(t)

	start := time.Now()
	o.HandleDialogueResponse(context.Background(),
		wire.ChatResponse{ReplyText: "稍等", Emotion: avatar.EmotionNeutral, Action: avatar.BehaviorThink},
		TurnOptions{WaitForSpeech: true, TransitionDuration: 30 * time.Millisecond,
			Speak: func(context.Context, string) error { return nil }})

	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, avatar.BehaviorIdle, st.Get().Behavior)
}

func TestTransitionStateHonoursContext(t *testing.T) {
	o, st := newTestOrchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, o.TransitionState(ctx, avatar.BehaviorThinking, time.Second), context.Canceled)
	assert.Equal(t, avatar.BehaviorIdle, st.Get().Behavior)

	require.NoError(t, o.TransitionState(context.Background(), avatar.BehaviorThinking, 0))
	assert.Equal(t, avatar.BehaviorThinking, st.Get().Behavior)
}

func TestMirroringSuppressedWhileBusy(t *testing.T) {
	o, st := newTestOrchestrator(t)

	st.SetSpeaking(true)
	assert.False(t, o.HandleUserEmotion(avatar.EmotionSad))
	assert.False(t, o.HandleUserMotion(avatar.BehaviorNod))

	st.SetSpeaking(false)
	st.SetLoading(true)
	assert.False(t, o.HandleUserEmotion(avatar.EmotionSad))
	assert.Equal(t, avatar.EmotionNeutral, st.Get().Emotion)

	st.SetLoading(false)
	assert.True(t, o.HandleUserEmotion(avatar.EmotionSad))
	assert.Equal(t, avatar.EmotionSad, st.Get().Emotion)

	assert.True(t, o.HandleUserMotion(avatar.BehaviorWaveHand))
	assert.Equal(t, avatar.AnimationWave, st.Get().Animation)
	assert.False(t, o.HandleUserMotion(avatar.BehaviorDance))
}
