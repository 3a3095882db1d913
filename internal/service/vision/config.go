package vision

import "time"

// Config 视觉管线配置。阈值均为经验值，可按场景调整。
type Config struct {
	FaceModelURL string      `mapstructure:"face_model_url"`
	PoseModelURL string      `mapstructure:"pose_model_url"`
	Constraints  Constraints `mapstructure:"constraints"`

	ModelLoadAttempts int           `mapstructure:"model_load_attempts"`
	ModelRetryBase    time.Duration `mapstructure:"model_retry_base"`

	// 头部动作，单位为角度。
	HeadWindow     int     `mapstructure:"head_window"`
	NodThreshold   float64 `mapstructure:"nod_threshold"`
	ShakeThreshold float64 `mapstructure:"shake_threshold"`
	HeadTolerance  float64 `mapstructure:"head_tolerance"`

	// 手臂动作，单位为归一化坐标。
	WristWindow        int     `mapstructure:"wrist_window"`
	WaveRange          float64 `mapstructure:"wave_range"`
	RaiseHoldFrames    int     `mapstructure:"raise_hold_frames"`
	RaiseLateralMargin float64 `mapstructure:"raise_lateral_margin"`

	MotionCooldown  time.Duration `mapstructure:"motion_cooldown"`
	EmotionDebounce time.Duration `mapstructure:"emotion_debounce"`
	EmotionRepeat   int           `mapstructure:"emotion_repeat"`

	SmileThreshold    float64 `mapstructure:"smile_threshold"`
	SurpriseThreshold float64 `mapstructure:"surprise_threshold"`
	FrownThreshold    float64 `mapstructure:"frown_threshold"`
	BrowDownThreshold float64 `mapstructure:"brow_down_threshold"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		FaceModelURL: "https://storage.googleapis.com/mediapipe-models/face_landmarker/face_landmarker/float16/1/face_landmarker.task",
		PoseModelURL: "https://storage.googleapis.com/mediapipe-models/pose_landmarker/pose_landmarker_lite/float16/1/pose_landmarker_lite.task",
		Constraints:  Constraints{Width: 640, Height: 480, FrameRate: 30, FacingMode: "user"},

		ModelLoadAttempts: 3,
		ModelRetryBase:    time.Second,

		HeadWindow:     20,
		NodThreshold:   15,
		ShakeThreshold: 20,
		HeadTolerance:  8,

		WristWindow:        15,
		WaveRange:          0.15,
		RaiseHoldFrames:    10,
		RaiseLateralMargin: 0.05,

		MotionCooldown:  1500 * time.Millisecond,
		EmotionDebounce: time.Second,
		EmotionRepeat:   3,

		SmileThreshold:    0.5,
		SurpriseThreshold: 0.4,
		FrownThreshold:    0.4,
		BrowDownThreshold: 0.5,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FaceModelURL == "" {
		c.FaceModelURL = d.FaceModelURL
	}
	if c.PoseModelURL == "" {
		c.PoseModelURL = d.PoseModelURL
	}
	if c.Constraints == (Constraints{}) {
		c.Constraints = d.Constraints
	}
	if c.ModelLoadAttempts <= 0 {
		c.ModelLoadAttempts = d.ModelLoadAttempts
	}
	if c.ModelRetryBase <= 0 {
		c.ModelRetryBase = d.ModelRetryBase
	}
	if c.HeadWindow <= 0 || c.HeadWindow > d.HeadWindow {
		c.HeadWindow = d.HeadWindow
	}
	if c.NodThreshold <= 0 {
		c.NodThreshold = d.NodThreshold
	}
	if c.ShakeThreshold <= 0 {
		c.ShakeThreshold = d.ShakeThreshold
	}
	if c.HeadTolerance <= 0 {
		c.HeadTolerance = d.HeadTolerance
	}
	if c.WristWindow <= 0 {
		c.WristWindow = d.WristWindow
	}
	if c.WaveRange <= 0 {
		c.WaveRange = d.WaveRange
	}
	if c.RaiseHoldFrames <= 0 {
		c.RaiseHoldFrames = d.RaiseHoldFrames
	}
	if c.RaiseLateralMargin <= 0 {
		c.RaiseLateralMargin = d.RaiseLateralMargin
	}
	if c.MotionCooldown <= 0 {
		c.MotionCooldown = d.MotionCooldown
	}
	if c.EmotionDebounce <= 0 {
		c.EmotionDebounce = d.EmotionDebounce
	}
	if c.EmotionRepeat <= 0 {
		c.EmotionRepeat = d.EmotionRepeat
	}
	if c.SmileThreshold <= 0 {
		c.SmileThreshold = d.SmileThreshold
	}
	if c.SurpriseThreshold <= 0 {
		c.SurpriseThreshold = d.SurpriseThreshold
	}
	if c.FrownThreshold <= 0 {
		c.FrownThreshold = d.FrownThreshold
	}
	if c.BrowDownThreshold <= 0 {
		c.BrowDownThreshold = d.BrowDownThreshold
	}
	return c
}

// ConfigUpdate 运行时可调整的参数，nil 字段保持不变。
type ConfigUpdate struct {
	NodThreshold    *float64
	ShakeThreshold  *float64
	HeadTolerance   *float64
	WaveRange       *float64
	MotionCooldown  *time.Duration
	EmotionDebounce *time.Duration
	SmileThreshold  *float64
}

func (c Config) apply(u ConfigUpdate) Config {
	if u.NodThreshold != nil {
		c.NodThreshold = *u.NodThreshold
	}
	if u.ShakeThreshold != nil {
		c.ShakeThreshold = *u.ShakeThreshold
	}
	if u.HeadTolerance != nil {
		c.HeadTolerance = *u.HeadTolerance
	}
	if u.WaveRange != nil {
		c.WaveRange = *u.WaveRange
	}
	if u.MotionCooldown != nil {
		c.MotionCooldown = *u.MotionCooldown
	}
	if u.EmotionDebounce != nil {
		c.EmotionDebounce = *u.EmotionDebounce
	}
	if u.SmileThreshold != nil {
		c.SmileThreshold = *u.SmileThreshold
	}
	return c
}
