package chat

import (
	"strings"
	"sync/atomic"

	"github.com/zhouzirui/digital-human/internal/analysis/emotion"
	"github.com/zhouzirui/digital-human/internal/model/avatar"
	wire "github.com/zhouzirui/digital-human/internal/model/dialogue"
)

type cannedReply struct {
	text    string
	emotion avatar.Emotion
	action  avatar.Behavior
}

func (c cannedReply) response() wire.ChatResponse {
	return wire.ChatResponse{ReplyText: c.text, Emotion: c.emotion, Action: c.action}
}

type mockRule struct {
	keywords []string
	// lower 为 true 时在小写文本上匹配
	lower   bool
	replies []cannedReply
}

var mockRules = []mockRule{
	{
		keywords: []string{"你好", "您好", "hello", "hi", "嗨", "早上好", "下午好", "晚上好"},
		lower:    true,
		replies: []cannedReply{
			{"您好！很高兴见到您，有什么可以帮助您的吗？", avatar.EmotionHappy, avatar.BehaviorWave},
			{"你好呀！今天心情怎么样？", avatar.EmotionHappy, avatar.BehaviorGreet},
			{"嗨！欢迎来到数字人交互系统！", avatar.EmotionHappy, avatar.BehaviorWave},
		},
	},
	{
		keywords: []string{"你是谁", "介绍", "什么"},
		replies: []cannedReply{
			{"我是一个数字人助手，可以和您进行对话交流，展示各种表情和动作。您可以问我问题，或者让我做一些动作！", avatar.EmotionHappy, avatar.BehaviorGreet},
		},
	},
	{
		keywords: []string{"谢谢", "感谢"},
		replies: []cannedReply{
			{"不客气！能帮到您我很开心。还有其他需要帮助的吗？", avatar.EmotionHappy, avatar.BehaviorNod},
		},
	},
	{
		keywords: []string{"再见", "拜拜", "bye"},
		lower:    true,
		replies: []cannedReply{
			{"再见！期待下次与您交流！", avatar.EmotionHappy, avatar.BehaviorWave},
		},
	},
	{
		keywords: []string{"天气"},
		replies: []cannedReply{
			{"今天天气看起来不错呢！适合出去走走。不过我是数字人，没办法真正感受天气，哈哈。", avatar.EmotionHappy, avatar.BehaviorThink},
		},
	},
	{
		keywords: []string{"跳舞", "舞"},
		replies: []cannedReply{
			{"好的，让我来给您跳一段舞！", avatar.EmotionHappy, avatar.BehaviorDance},
		},
	},
	{
		keywords: []string{"?", "？", "吗"},
		replies: []cannedReply{
			{"这是个好问题！让我想想... 作为数字人助手，我会尽力帮助您。您能说得更具体一些吗？", avatar.EmotionNeutral, avatar.BehaviorThink},
		},
	},
}

var defaultReplies = []cannedReply{
	{"我明白了，请继续说。", avatar.EmotionNeutral, avatar.BehaviorNod},
	{"好的，我在听。", avatar.EmotionNeutral, avatar.BehaviorIdle},
	{"嗯嗯，有什么我可以帮助您的吗？", avatar.EmotionNeutral, avatar.BehaviorNod},
	{"了解了，还有其他想说的吗？", avatar.EmotionNeutral, avatar.BehaviorIdle},
}

// MockReplier 是未配置 LLM 时的本地关键词回复，候选回复轮流使用。
type MockReplier struct {
	counter atomic.Uint64
}

// NewMockReplier 创建本地回复器。
func NewMockReplier() *MockReplier {
	return &MockReplier{}
}

// Reply 按规则顺序匹配关键词；均未命中时从默认回复中轮换，并用关键词分析结果决定情绪。
func (m *MockReplier) Reply(userText string) wire.ChatResponse {
	lowered := strings.ToLower(userText)
	for _, rule := range mockRules {
		text := userText
		if rule.lower {
			text = lowered
		}
		if containsAny(text, rule.keywords) {
			return m.pick(rule.replies).response()
		}
	}

	reply := m.pick(defaultReplies).response()
	reply.Emotion = emotion.Analyze(userText, reply.ReplyText).Emotion
	return reply
}

func (m *MockReplier) pick(replies []cannedReply) cannedReply {
	if len(replies) == 1 {
		return replies[0]
	}
	n := m.counter.Add(1) - 1
	return replies[n%uint64(len(replies))]
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
