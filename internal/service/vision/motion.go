package vision

import (
	"math"
	"time"

	"github.com/zhouzirui/digital-human/internal/model/avatar"
)

// MediaPipe face mesh / pose landmark indices.
const (
	faceLeftEye  = 33
	faceRightEye = 263
	faceNose     = 1
	faceForehead = 10
	faceChin     = 152

	poseLeftShoulder  = 11
	poseRightShoulder = 12
	poseLeftWrist     = 15
	poseRightWrist    = 16
)

// HeadPose 头部姿态角度（度）。
type HeadPose struct {
	Yaw   float64
	Pitch float64
}

// EstimateHeadPose derives yaw and pitch from face mesh landmarks.
func EstimateHeadPose(landmarks []Point) (HeadPose, bool) {
	if len(landmarks) <= faceRightEye {
		return HeadPose{}, false
	}
	left, right := landmarks[faceLeftEye], landmarks[faceRightEye]
	nose := landmarks[faceNose]
	forehead, chin := landmarks[faceForehead], landmarks[faceChin]

	eyeDist := math.Hypot(right.X-left.X, right.Y-left.Y)
	faceHeight := chin.Y - forehead.Y
	if eyeDist == 0 || faceHeight == 0 {
		return HeadPose{}, false
	}

	eyeMidX := (left.X + right.X) / 2
	faceMidY := (forehead.Y + chin.Y) / 2
	return HeadPose{
		Yaw:   degrees(math.Atan2(nose.X-eyeMidX, eyeDist)),
		Pitch: degrees(math.Atan2(nose.Y-faceMidY, faceHeight)),
	}, true
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// window is a bounded FIFO of samples.
type window struct {
	size    int
	samples []float64
}

func (w *window) push(v float64) {
	w.samples = append(w.samples, v)
	if len(w.samples) > w.size {
		w.samples = w.samples[len(w.samples)-w.size:]
	}
}

func (w *window) spread() float64 {
	if len(w.samples) == 0 {
		return 0
	}
	lo, hi := w.samples[0], w.samples[0]
	for _, v := range w.samples[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return hi - lo
}

func (w *window) reset() { w.samples = w.samples[:0] }

// minHeadSamples 判定头部动作前至少需要的样本数。
const minHeadSamples = 5

// HeadTracker detects nod and shakeHead from yaw/pitch windows.
type HeadTracker struct {
	yaw   window
	pitch window
}

func newHeadTracker(size int) *HeadTracker {
	return &HeadTracker{yaw: window{size: size}, pitch: window{size: size}}
}

// Add records a pose and reports a detected motion. Both windows are cleared on detection.
func (h *HeadTracker) Add(pose HeadPose, cfg Config) (avatar.Behavior, bool) {
	h.yaw.push(pose.Yaw)
	h.pitch.push(pose.Pitch)
	if len(h.pitch.samples) < minHeadSamples {
		return "", false
	}

	yawRange, pitchRange := h.yaw.spread(), h.pitch.spread()
	var motion avatar.Behavior
	switch {
	case pitchRange > cfg.NodThreshold && yawRange < cfg.HeadTolerance:
		motion = avatar.BehaviorNod
	case yawRange > cfg.ShakeThreshold && pitchRange < cfg.HeadTolerance:
		motion = avatar.BehaviorShakeHead
	default:
		return "", false
	}
	h.Reset()
	return motion, true
}

// Reset 清空窗口。
func (h *HeadTracker) Reset() {
	h.yaw.reset()
	h.pitch.reset()
}

// ArmTracker detects waveHand and raiseHand from shoulder and wrist landmarks.
type ArmTracker struct {
	wristX      window
	raiseFrames int
}

func newArmTracker(size int) *ArmTracker {
	return &ArmTracker{wristX: window{size: size}}
}

// Add records one pose frame.
func (a *ArmTracker) Add(landmarks []Point, cfg Config) (avatar.Behavior, bool) {
	if len(landmarks) <= poseRightWrist {
		a.Reset()
		return "", false
	}

	wrist, raised := raisedWrist(landmarks)
	if !raised {
		a.Reset()
		return "", false
	}

	a.raiseFrames++
	a.wristX.push(wrist.X)

	if a.wristX.spread() > cfg.WaveRange {
		a.Reset()
		return avatar.BehaviorWaveHand, true
	}
	if a.raiseFrames >= cfg.RaiseHoldFrames && a.wristX.spread() < cfg.RaiseLateralMargin {
		a.Reset()
		return avatar.BehaviorRaiseHand, true
	}
	return "", false
}

// Reset 清空手腕轨迹。
func (a *ArmTracker) Reset() {
	a.wristX.reset()
	a.raiseFrames = 0
}

// raisedWrist returns the higher wrist if it is above its shoulder.
func raisedWrist(lm []Point) (Point, bool) {
	left := lm[poseLeftWrist]
	right := lm[poseRightWrist]
	leftUp := left.Y < lm[poseLeftShoulder].Y
	rightUp := right.Y < lm[poseRightShoulder].Y

	switch {
	case leftUp && rightUp:
		if left.Y < right.Y {
			return left, true
		}
		return right, true
	case leftUp:
		return left, true
	case rightUp:
		return right, true
	}
	return Point{}, false
}

// Cooldown suppresses motions fired too close together. Repeating the same
// motion needs twice the cooldown.
type Cooldown struct {
	last   avatar.Behavior
	lastAt time.Time
}

// Allow reports whether motion may fire at now and records it if so.
func (c *Cooldown) Allow(motion avatar.Behavior, now time.Time, cooldown time.Duration) bool {
	if !c.lastAt.IsZero() {
		elapsed := now.Sub(c.lastAt)
		if elapsed < cooldown {
			return false
		}
		if motion == c.last && elapsed < 2*cooldown {
			return false
		}
	}
	c.last = motion
	c.lastAt = now
	return true
}

// Reset 清空冷却状态。
func (c *Cooldown) Reset() {
	*c = Cooldown{}
}
