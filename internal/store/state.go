package store

import (
	"encoding/json"
	"time"

	"github.com/zhouzirui/digital-human/internal/model/avatar"
	"github.com/zhouzirui/digital-human/internal/model/chat"
)

// Severity 错误提示的级别。
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ErrorItem 是错误队列中的一条用户可见提示。
type ErrorItem struct {
	ID        string        `json:"id"`
	Message   string        `json:"message"`
	Severity  Severity      `json:"severity"`
	CreatedAt time.Time     `json:"timestamp"`
	AutoHide  time.Duration `json:"autoHideMs,omitempty"`
}

// ConnectionState 描述与对话后端的连接。
type ConnectionState struct {
	Status            avatar.ConnectionStatus `json:"status"`
	LastConnectedAt   time.Time               `json:"lastConnectedAt,omitempty"`
	LastErrorAt       time.Time               `json:"lastErrorAt,omitempty"`
	ReconnectAttempts int                     `json:"reconnectAttempts"`
}

// SessionState 当前会话及其有界聊天记录。
type SessionState struct {
	ID          string         `json:"sessionId"`
	ChatHistory []chat.Message `json:"chatHistory"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Performance 渲染侧上报的性能指标。
type Performance struct {
	FPS       float64       `json:"fps"`
	FrameTime time.Duration `json:"frameTimeMs"`
	MemoryMB  float64       `json:"memoryMb"`
}

// State is the full snapshot shared by every client component.
type State struct {
	Emotion    avatar.Emotion    `json:"emotion"`
	Expression avatar.Expression `json:"expression"`
	Behavior   avatar.Behavior   `json:"behavior"`
	Animation  avatar.Animation  `json:"animation"`

	IsSpeaking  bool `json:"isSpeaking"`
	IsListening bool `json:"isListening"`
	IsLoading   bool `json:"isLoading"`
	IsMuted     bool `json:"isMuted"`
	IsPlaying   bool `json:"isPlaying"`

	Connection  ConnectionState `json:"connection"`
	Session     SessionState    `json:"session"`
	Error       string          `json:"error,omitempty"`
	Errors      []ErrorItem     `json:"errorQueue"`
	Performance Performance     `json:"performance"`
}

// MarshalJSON 以毫秒输出 autoHideMs。
func (e ErrorItem) MarshalJSON() ([]byte, error) {
	type alias ErrorItem
	return json.Marshal(struct {
		alias
		AutoHide int64 `json:"autoHideMs,omitempty"`
	}{alias: alias(e), AutoHide: e.AutoHide.Milliseconds()})
}

func (e *ErrorItem) UnmarshalJSON(data []byte) error {
	type alias ErrorItem
	aux := struct {
		*alias
		AutoHide int64 `json:"autoHideMs"`
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.AutoHide = time.Duration(aux.AutoHide) * time.Millisecond
	return nil
}

// MarshalJSON 以毫秒输出 frameTimeMs。
func (p Performance) MarshalJSON() ([]byte, error) {
	type alias Performance
	return json.Marshal(struct {
		alias
		FrameTime float64 `json:"frameTimeMs"`
	}{alias: alias(p), FrameTime: float64(p.FrameTime) / float64(time.Millisecond)})
}

func (p *Performance) UnmarshalJSON(data []byte) error {
	type alias Performance
	aux := struct {
		*alias
		FrameTime float64 `json:"frameTimeMs"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.FrameTime = time.Duration(aux.FrameTime * float64(time.Millisecond))
	return nil
}

func initialState() State {
	return State{
		Emotion:    avatar.EmotionNeutral,
		Expression: avatar.ExpressionNeutral,
		Behavior:   avatar.BehaviorIdle,
		Animation:  avatar.AnimationIdle,
		Connection: ConnectionState{Status: avatar.ConnectionDisconnected},
	}
}

func (s State) clone() State {
	out := s
	if s.Session.ChatHistory != nil {
		out.Session.ChatHistory = append([]chat.Message(nil), s.Session.ChatHistory...)
	}
	if s.Errors != nil {
		out.Errors = append([]ErrorItem(nil), s.Errors...)
	}
	return out
}
