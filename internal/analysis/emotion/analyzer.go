package emotion

import (
	"strings"

	"github.com/zhouzirui/digital-human/internal/model/avatar"
)

// Decision 给出情绪识别结果与关键词得分。
type Decision struct {
	Emotion avatar.Emotion
	Score   int
}

// buckets 的顺序决定同分时的优先级。
var buckets = []struct {
	emotion  avatar.Emotion
	keywords []string
}{
	{avatar.EmotionHappy, []string{
		"开心", "高兴", "喜悦", "快乐", "太好了", "太棒了", "真棒", "哈哈", "喜欢", "满意", "好耶", "笑死",
		"lol", "amazing", "awesome", "great", "thanks", "thank you", "love",
	}},
	{avatar.EmotionSurprised, []string{
		"惊讶", "震惊", "没想到", "居然", "竟然", "真的吗", "哇塞", "哇哦", "天哪", "不敢相信",
		"wow", "unbelievable", "no way", "omg",
	}},
	{avatar.EmotionSad, []string{
		"难过", "伤心", "失落", "沮丧", "悲伤", "哭", "痛苦", "寂寞", "孤单", "失望", "心碎", "低落", "委屈",
		"unhappy", "sad", "cry", "depressed", "upset", "hurt",
	}},
	{avatar.EmotionAngry, []string{
		"生气", "愤怒", "火大", "气死", "烦死", "受够了", "怒火", "气愤", "抓狂", "气炸",
		"angry", "furious", "rage", "mad", "annoyed",
	}},
}

// Analyze 根据用户话语与回复推断数字人应呈现的情绪。
func Analyze(userUtterance, replyUtterance string) Decision {
	reply := scoreText(replyUtterance)
	if reply.Score > 0 {
		return reply
	}

	// 回复本身没有明显情感时，参照用户情绪做共情映射。
	user := scoreText(userUtterance)
	if user.Score == 0 {
		return Decision{Emotion: avatar.EmotionNeutral}
	}
	return coerceFromUser(user)
}

func scoreText(text string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(text))
	if normalized == "" {
		return Decision{Emotion: avatar.EmotionNeutral}
	}

	best := Decision{Emotion: avatar.EmotionNeutral}
	for _, bucket := range buckets {
		score := 0
		for _, word := range bucket.keywords {
			if strings.Contains(normalized, word) {
				score += 3
			}
		}
		if bucket.emotion == avatar.EmotionSurprised {
			score += strings.Count(text, "!") + strings.Count(text, "！")
		}
		if score > best.Score {
			best = Decision{Emotion: bucket.emotion, Score: score}
		}
	}
	return best
}

func coerceFromUser(user Decision) Decision {
	switch user.Emotion {
	case avatar.EmotionAngry:
		// 不以怒制怒
		return Decision{Emotion: avatar.EmotionNeutral, Score: user.Score}
	default:
		return user
	}
}
