package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/zhouzirui/digital-human/internal/store"
)

// VoicePrefix 标记一行输入为语音转写而不是文字输入。
const VoicePrefix = "!"

const consoleHelp = `输入文字与数字人对话；以 ! 开头的行按语音处理（例如 "!点头"、"!静音"）。
/state 查看当前状态，/health 检查对话后端，/clear 清空聊天记录，/quit 退出。`

// RunConsole 逐行读取 in 直到 EOF、/quit 或 ctx 结束。
func (c *Client) RunConsole(ctx context.Context, in io.Reader, w io.Writer) error {
	out := &syncWriter{w: w}
	unsubscribe := c.Store.Subscribe(func(next, prev store.State) {
		if next.Emotion != prev.Emotion || next.Behavior != prev.Behavior || next.Animation != prev.Animation {
			fmt.Fprintf(out, "   [%s | %s | %s]\n", next.Emotion, next.Behavior, next.Animation)
		}
		if next.Error != "" && next.Error != prev.Error {
			fmt.Fprintf(out, "⚠  %s\n", next.Error)
		}
	})
	defer unsubscribe()

	fmt.Fprintln(out, consoleHelp)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if quit := c.handleLine(ctx, strings.TrimSpace(line), out); quit {
				return nil
			}
		}
	}
}

func (c *Client) handleLine(ctx context.Context, line string, out io.Writer) bool {
	switch {
	case line == "":
		return false
	case line == "/quit" || line == "/exit":
		return true
	case line == "/help":
		fmt.Fprintln(out, consoleHelp)
	case line == "/state":
		data, err := json.MarshalIndent(c.Store.Get(), "", "  ")
		if err != nil {
			c.logger.Error().Err(err).Msg("encode state")
			return false
		}
		fmt.Fprintln(out, string(data))
	case line == "/health":
		health := c.Dialogue.CheckServerHealth(ctx)
		if health.Healthy {
			fmt.Fprintf(out, "后端正常，延迟 %s\n", health.Latency)
		} else {
			fmt.Fprintf(out, "后端不可用：%s\n", health.Error)
		}
	case line == "/clear":
		c.Store.ClearChatHistory()
		c.Dialogue.ClearSession(c.Store.Get().Session.ID)
	case strings.HasPrefix(line, VoicePrefix):
		if err := c.Hear(ctx, strings.TrimPrefix(line, VoicePrefix)); err != nil {
			c.logger.Warn().Err(err).Msg("voice input ignored")
		}
	default:
		if _, err := c.SendText(ctx, line); err != nil {
			c.logger.Warn().Err(err).Msg("text input ignored")
		}
	}
	return false
}

// syncWriter 串行化状态订阅与输入处理两路输出。
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
