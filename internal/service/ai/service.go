package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/digital-human/internal/model/chat"
	wire "github.com/zhouzirui/digital-human/internal/model/dialogue"
)

const historyLimit = 10

// systemPrompt 约束模型只输出 replyText/emotion/action 三个字段的 JSON 对象。
const systemPrompt = "你是一个驱动虚拟数字人的对话大脑。" +
	"必须使用简体中文回答用户。" +
	"请只输出一个 JSON 对象，包含三个字段：" +
	"replyText（字符串，给用户的自然语言回答，要友好自然），" +
	"emotion（字符串，取值限定为: neutral, happy, surprised, sad, angry），" +
	"action（字符串，取值限定为: idle, wave, greet, think, nod, shakeHead, dance, speak）。" +
	"不要输出 JSON 以外的任何文字。根据对话内容选择合适的情感和动作。"

// Service encapsulates LLM-backed reply generation.
type Service struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	logger zerolog.Logger
}

// NewService compiles the prompt -> chat model chain.
func NewService(ctx context.Context, chatModel model.BaseChatModel, logger zerolog.Logger) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
		schema.MessagesPlaceholder("context", true),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chain:  runnable,
		logger: logger.With().Str("component", "ai").Logger(),
	}, nil
}

// Reply 生成一条回复。history 为本轮之前的会话记录，meta 作为附加上下文传给模型。
func (s *Service) Reply(ctx context.Context, history []chat.Message, userText string, meta map[string]any) (wire.ChatResponse, error) {
	input := map[string]any{
		"system":  systemPrompt,
		"history": buildHistoryMessages(history),
		"query":   userText,
		"context": buildContextMessages(meta),
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return wire.ChatResponse{}, fmt.Errorf("failed to run AI chain: %w", err)
	}

	reply, ok := ParseReply(response.Content, userText)
	if !ok {
		s.logger.Warn().Str("content", response.Content).Msg("LLM 返回内容不是合法 JSON，将内容作为 replyText 使用")
	}
	s.logger.Debug().Int("length", len(response.Content)).Str("emotion", string(reply.Emotion)).Str("action", string(reply.Action)).Msg("generated reply")
	return reply, nil
}

// ParseReply 解析模型输出。非 JSON 内容整体作为 replyText，情绪与动作取默认值；
// 第二个返回值表示是否按 JSON 解析成功。
func ParseReply(content, userText string) (wire.ChatResponse, bool) {
	var parsed struct {
		ReplyText string `json:"replyText"`
		Emotion   string `json:"emotion"`
		Action    string `json:"action"`
	}
	if err := json.Unmarshal([]byte(stripFence(content)), &parsed); err != nil {
		return wire.Normalize(content, "", ""), false
	}

	reply := strings.TrimSpace(parsed.ReplyText)
	if reply == "" {
		reply = "你刚才说：" + userText
	}
	return wire.Normalize(reply, parsed.Emotion, parsed.Action), true
}

// stripFence 去掉模型偶尔包裹在外层的 ``` 代码块。
func stripFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Text))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Text, nil))
		}
	}
	return history
}

func buildContextMessages(meta map[string]any) []*schema.Message {
	if len(meta) == 0 {
		return nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return []*schema.Message{schema.SystemMessage("附加上下文信息（可选）：" + string(data))}
}
