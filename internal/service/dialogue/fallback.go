package dialogue

import (
	"strings"

	"github.com/zhouzirui/digital-human/internal/model/avatar"
	wire "github.com/zhouzirui/digital-human/internal/model/dialogue"
)

type fallbackRule struct {
	keywords []string
	reply    wire.ChatResponse
}

// 按顺序匹配，第一条命中即返回。
var fallbackRules = []fallbackRule{
	{
		keywords: []string{"你好", "您好", "嗨", "早上好", "晚上好"},
		reply: wire.ChatResponse{
			ReplyText: "你好！我现在暂时连不上服务器，不过很高兴见到你。",
			Emotion:   avatar.EmotionHappy,
			Action:    avatar.BehaviorWave,
		},
	},
	{
		keywords: []string{"谢谢", "感谢"},
		reply: wire.ChatResponse{
			ReplyText: "不客气！网络有点不稳定，我们稍后继续聊。",
			Emotion:   avatar.EmotionHappy,
			Action:    avatar.BehaviorNod,
		},
	},
	{
		keywords: []string{"再见", "拜拜"},
		reply: wire.ChatResponse{
			ReplyText: "再见！期待下次和你聊天。",
			Emotion:   avatar.EmotionHappy,
			Action:    avatar.BehaviorWave,
		},
	},
	{
		keywords: []string{"在吗", "怎么了", "还好吗"},
		reply: wire.ChatResponse{
			ReplyText: "我还在这里，只是暂时连不上服务器，请稍后再试。",
			Emotion:   avatar.EmotionNeutral,
			Action:    avatar.BehaviorThink,
		},
	},
}

var genericFallback = wire.ChatResponse{
	ReplyText: "抱歉，我暂时无法连接到服务器，请检查网络后再试。",
	Emotion:   avatar.EmotionNeutral,
	Action:    avatar.BehaviorIdle,
}

// FallbackReply 根据关键词合成本地回复，未命中时返回通用的中性回复。
func FallbackReply(userText string) wire.ChatResponse {
	for _, rule := range fallbackRules {
		for _, kw := range rule.keywords {
			if strings.Contains(userText, kw) {
				return rule.reply
			}
		}
	}
	return genericFallback
}
