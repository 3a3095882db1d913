// Package avatar 定义数字人的封闭枚举（情绪、表情、行为、动画）以及它们之间的固定映射。
package avatar

import "strings"

// Emotion 数字人的情绪。
type Emotion string

const (
	EmotionNeutral   Emotion = "neutral"
	EmotionHappy     Emotion = "happy"
	EmotionSurprised Emotion = "surprised"
	EmotionSad       Emotion = "sad"
	EmotionAngry     Emotion = "angry"
)

// Expression 面部表情。
type Expression string

const (
	ExpressionNeutral      Expression = "neutral"
	ExpressionSmile        Expression = "smile"
	ExpressionLaugh        Expression = "laugh"
	ExpressionSurprise     Expression = "surprise"
	ExpressionSad          Expression = "sad"
	ExpressionAngry        Expression = "angry"
	ExpressionBlink        Expression = "blink"
	ExpressionEyebrowRaise Expression = "eyebrow_raise"
	ExpressionEyeBlink     Expression = "eye_blink"
	ExpressionMouthOpen    Expression = "mouth_open"
	ExpressionHeadNod      Expression = "head_nod"
)

// Behavior 粗粒度的行为状态。
type Behavior string

const (
	BehaviorIdle      Behavior = "idle"
	BehaviorGreeting  Behavior = "greeting"
	BehaviorListening Behavior = "listening"
	BehaviorThinking  Behavior = "thinking"
	BehaviorSpeaking  Behavior = "speaking"
	BehaviorExcited   Behavior = "excited"
	BehaviorWave      Behavior = "wave"
	BehaviorGreet     Behavior = "greet"
	BehaviorThink     Behavior = "think"
	BehaviorNod       Behavior = "nod"
	BehaviorShakeHead Behavior = "shakeHead"
	BehaviorDance     Behavior = "dance"
	BehaviorSpeak     Behavior = "speak"
	BehaviorWaveHand  Behavior = "waveHand"
	BehaviorRaiseHand Behavior = "raiseHand"
)

var emotions = []Emotion{EmotionNeutral, EmotionHappy, EmotionSurprised, EmotionSad, EmotionAngry}

var expressions = []Expression{
	ExpressionNeutral, ExpressionSmile, ExpressionLaugh, ExpressionSurprise, ExpressionSad,
	ExpressionAngry, ExpressionBlink, ExpressionEyebrowRaise, ExpressionEyeBlink,
	ExpressionMouthOpen, ExpressionHeadNod,
}

var behaviors = []Behavior{
	BehaviorIdle, BehaviorGreeting, BehaviorListening, BehaviorThinking, BehaviorSpeaking,
	BehaviorExcited, BehaviorWave, BehaviorGreet, BehaviorThink, BehaviorNod, BehaviorShakeHead,
	BehaviorDance, BehaviorSpeak, BehaviorWaveHand, BehaviorRaiseHand,
}

// actions 是对话后端允许返回的动作集合。
var actions = []Behavior{
	BehaviorIdle, BehaviorWave, BehaviorGreet, BehaviorThink, BehaviorNod,
	BehaviorShakeHead, BehaviorDance, BehaviorSpeak,
}

// Emotions returns the closed emotion set in declaration order.
func Emotions() []Emotion { return append([]Emotion(nil), emotions...) }

// Expressions returns the closed expression set.
func Expressions() []Expression { return append([]Expression(nil), expressions...) }

// Behaviors returns the closed behavior set.
func Behaviors() []Behavior { return append([]Behavior(nil), behaviors...) }

// Actions returns the subset of behaviors the dialogue backend may answer with.
func Actions() []Behavior { return append([]Behavior(nil), actions...) }

// Valid reports whether e belongs to the emotion set.
func (e Emotion) Valid() bool {
	for _, candidate := range emotions {
		if candidate == e {
			return true
		}
	}
	return false
}

// Valid reports whether x belongs to the expression set.
func (x Expression) Valid() bool {
	for _, candidate := range expressions {
		if candidate == x {
			return true
		}
	}
	return false
}

// Valid reports whether b belongs to the behavior set.
func (b Behavior) Valid() bool {
	for _, candidate := range behaviors {
		if candidate == b {
			return true
		}
	}
	return false
}

// IsAction reports whether b is one of the dialogue actions.
func (b Behavior) IsAction() bool {
	for _, candidate := range actions {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseEmotion 解析情绪，忽略首尾空白。值不在集合中时返回 neutral 与 false。
func ParseEmotion(raw string) (Emotion, bool) {
	e := Emotion(strings.TrimSpace(raw))
	if !e.Valid() {
		return EmotionNeutral, false
	}
	return e, true
}

// ParseExpression 解析表情，失败时回退到 neutral。
func ParseExpression(raw string) (Expression, bool) {
	x := Expression(strings.TrimSpace(raw))
	if !x.Valid() {
		return ExpressionNeutral, false
	}
	return x, true
}

// ParseBehavior 解析行为，失败时回退到 idle。
func ParseBehavior(raw string) (Behavior, bool) {
	b := Behavior(strings.TrimSpace(raw))
	if !b.Valid() {
		return BehaviorIdle, false
	}
	return b, true
}

// ParseAction 解析对话动作（8 个取值），失败时回退到 idle。
func ParseAction(raw string) (Behavior, bool) {
	b := Behavior(strings.TrimSpace(raw))
	if !b.IsAction() {
		return BehaviorIdle, false
	}
	return b, true
}

var defaultExpressionByEmotion = map[Emotion]Expression{
	EmotionNeutral:   ExpressionNeutral,
	EmotionHappy:     ExpressionSmile,
	EmotionSurprised: ExpressionSurprise,
	EmotionSad:       ExpressionSad,
	EmotionAngry:     ExpressionAngry,
}

// DefaultExpression returns the expression paired with an emotion.
func DefaultExpression(e Emotion) Expression {
	if x, ok := defaultExpressionByEmotion[e]; ok {
		return x
	}
	return ExpressionNeutral
}
