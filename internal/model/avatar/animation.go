package avatar

import (
	"strings"
	"time"
)

// Animation 是一段有时长的动作片段名称。
type Animation string

const (
	AnimationIdle      Animation = "idle"
	AnimationWave      Animation = "wave"
	AnimationGreet     Animation = "greet"
	AnimationThink     Animation = "think"
	AnimationNod       Animation = "nod"
	AnimationShakeHead Animation = "shakeHead"
	AnimationDance     Animation = "dance"
	AnimationSpeak     Animation = "speak"
	AnimationWaveHand  Animation = "waveHand"
	AnimationRaiseHand Animation = "raiseHand"
)

// DefaultAnimationDuration applies to animations missing from the duration table.
const DefaultAnimationDuration = 3 * time.Second

// idle and speak have no fixed length: speech drives the latter.
var animationDurations = map[Animation]time.Duration{
	AnimationIdle:      0,
	AnimationWave:      2 * time.Second,
	AnimationGreet:     2500 * time.Millisecond,
	AnimationThink:     3 * time.Second,
	AnimationNod:       1500 * time.Millisecond,
	AnimationShakeHead: 1500 * time.Millisecond,
	AnimationDance:     6 * time.Second,
	AnimationSpeak:     0,
	AnimationWaveHand:  2 * time.Second,
	AnimationRaiseHand: 2 * time.Second,
}

var behaviorByAnimation = map[Animation]Behavior{
	AnimationIdle:  BehaviorIdle,
	AnimationWave:  BehaviorGreeting,
	AnimationGreet: BehaviorGreeting,
	AnimationDance: BehaviorExcited,
	AnimationThink: BehaviorThinking,
	AnimationSpeak: BehaviorSpeaking,
}

// Valid reports whether a is a known animation clip.
func (a Animation) Valid() bool {
	_, ok := animationDurations[a]
	return ok
}

// ParseAnimation trims raw and checks it against the clip table.
func ParseAnimation(raw string) (Animation, bool) {
	a := Animation(strings.TrimSpace(raw))
	if !a.Valid() {
		return AnimationIdle, false
	}
	return a, true
}

// Duration returns the fixed length of a clip, DefaultAnimationDuration when unknown.
func (a Animation) Duration() time.Duration {
	if d, ok := animationDurations[a]; ok {
		return d
	}
	return DefaultAnimationDuration
}

// Behavior returns the behavior derived from a clip; ok is false for clips that
// leave the behavior untouched.
func (a Animation) Behavior() (Behavior, bool) {
	b, ok := behaviorByAnimation[a]
	return b, ok
}
