package asr

import "strings"

// Command 本地语音指令。
type Command string

const (
	CommandUnmute    Command = "unmute"
	CommandMute      Command = "mute"
	CommandPlay      Command = "play"
	CommandPause     Command = "pause"
	CommandReset     Command = "reset"
	CommandGreeting  Command = "greeting"
	CommandDance     Command = "dance"
	CommandNod       Command = "nod"
	CommandShakeHead Command = "shakeHead"
)

type commandRule struct {
	command  Command
	keywords []string
}

// 顺序即优先级：取消静音必须排在静音之前。
var commandTable = []commandRule{
	{CommandUnmute, []string{"取消静音", "unmute"}},
	{CommandMute, []string{"静音", "mute"}},
	{CommandPlay, []string{"播放", "play"}},
	{CommandPause, []string{"暂停", "pause"}},
	{CommandReset, []string{"重置", "reset"}},
	{CommandGreeting, []string{"你好", "您好", "hello"}},
	{CommandDance, []string{"跳舞", "dance"}},
	{CommandNod, []string{"点头", "nod"}},
	{CommandShakeHead, []string{"摇头", "shake head"}},
}

// MatchCommand finds the first command whose keyword occurs in text, ignoring case.
func MatchCommand(text string) (Command, bool) {
	lower := strings.ToLower(text)
	for _, rule := range commandTable {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.command, true
			}
		}
	}
	return "", false
}
