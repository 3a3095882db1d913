package vision

import (
	"time"

	"github.com/zhouzirui/digital-human/internal/model/avatar"
)

// ClassifyEmotion maps face blendshape scores to an avatar emotion.
func ClassifyEmotion(scores map[string]float64, cfg Config) avatar.Emotion {
	pair := func(a, b string) float64 { return (scores[a] + scores[b]) / 2 }

	switch {
	case pair("mouthSmileLeft", "mouthSmileRight") > cfg.SmileThreshold:
		return avatar.EmotionHappy
	case scores["jawOpen"] > cfg.SurpriseThreshold && scores["browInnerUp"] > cfg.SurpriseThreshold:
		return avatar.EmotionSurprised
	case pair("browDownLeft", "browDownRight") > cfg.BrowDownThreshold:
		return avatar.EmotionAngry
	case pair("mouthFrownLeft", "mouthFrownRight") > cfg.FrownThreshold:
		return avatar.EmotionSad
	default:
		return avatar.EmotionNeutral
	}
}

// Debouncer emits an emotion only after it has been seen repeat times in a
// row and the debounce interval has passed since the previous emission.
type Debouncer struct {
	candidate avatar.Emotion
	count     int
	emitted   avatar.Emotion
	emittedAt time.Time
}

// Observe feeds one detection.
func (d *Debouncer) Observe(e avatar.Emotion, now time.Time, repeat int, interval time.Duration) (avatar.Emotion, bool) {
	if e == d.candidate {
		d.count++
	} else {
		d.candidate = e
		d.count = 1
	}

	if d.count < repeat || e == d.emitted {
		return "", false
	}
	if !d.emittedAt.IsZero() && now.Sub(d.emittedAt) < interval {
		return "", false
	}
	d.emitted = e
	d.emittedAt = now
	return e, true
}

// Reset 清空去抖状态。
func (d *Debouncer) Reset() {
	*d = Debouncer{}
}
