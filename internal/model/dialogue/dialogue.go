// Package dialogue 定义 POST /v1/chat 与 GET /health 的线上数据结构。
package dialogue

import (
	"time"

	"github.com/zhouzirui/digital-human/internal/model/avatar"
)

// ChatRequest 是 POST /v1/chat 的请求体。
type ChatRequest struct {
	SessionID string         `json:"sessionId,omitempty"`
	UserText  string         `json:"userText"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// ChatResponse 是经过校验的对话回复，Emotion 与 Action 始终位于封闭集合内。
type ChatResponse struct {
	ReplyText string          `json:"replyText"`
	Emotion   avatar.Emotion  `json:"emotion"`
	Action    avatar.Behavior `json:"action"`
}

// Normalize 将任意来源的字段归一化为合法回复。
func Normalize(replyText, emotion, action string) ChatResponse {
	e, _ := avatar.ParseEmotion(emotion)
	a, _ := avatar.ParseAction(action)
	return ChatResponse{ReplyText: replyText, Emotion: e, Action: a}
}

// HealthStatus 是健康探测的结果。
type HealthStatus struct {
	Healthy   bool              `json:"healthy"`
	Latency   time.Duration     `json:"latency"`
	Services  map[string]string `json:"services,omitempty"`
	Error     string            `json:"error,omitempty"`
	CheckedAt time.Time         `json:"checkedAt"`
}
