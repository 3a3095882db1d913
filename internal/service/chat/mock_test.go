package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/digital-human/internal/model/avatar"
)

func TestMockReplierRules(t *testing.T) {
	tests := []struct {
		input   string
		emotion avatar.Emotion
		action  avatar.Behavior
	}{
		{"你是谁", avatar.EmotionHappy, avatar.BehaviorGreet},
		{"谢谢", avatar.EmotionHappy, avatar.BehaviorNod},
		{"Bye now", avatar.EmotionHappy, avatar.BehaviorWave},
		{"今天天气", avatar.EmotionHappy, avatar.BehaviorThink},
		{"来段舞", avatar.EmotionHappy, avatar.BehaviorDance},
		{"可以吗", avatar.EmotionNeutral, avatar.BehaviorThink},
	}

	m := NewMockReplier()
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got := m.Reply(tc.input)
			assert.Equal(t, tc.emotion, got.Emotion)
			assert.Equal(t, tc.action, got.Action)
			assert.NotEmpty(t, got.ReplyText)
		})
	}
}

func TestMockReplierRotatesGreetings(t *testing.T) {
	m := NewMockReplier()

	first := m.Reply("你好")
	second := m.Reply("你好")
	third := m.Reply("你好")
	fourth := m.Reply("你好")

	assert.Equal(t, avatar.BehaviorWave, first.Action)
	assert.Equal(t, avatar.BehaviorGreet, second.Action)
	assert.NotEqual(t, first.ReplyText, second.ReplyText)
	assert.NotEqual(t, second.ReplyText, third.ReplyText)
	assert.Equal(t, first.ReplyText, fourth.ReplyText)
}

func TestMockReplierDefaultUsesAnalyzedEmotion(t *testing.T) {
	m := NewMockReplier()

	got := m.Reply("我好难过")
	assert.Equal(t, avatar.EmotionSad, got.Emotion)

	got = m.Reply("嗯")
	assert.Equal(t, avatar.EmotionNeutral, got.Emotion)
}
