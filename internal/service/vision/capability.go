package vision

import (
	"context"
	"time"
)

// Point 归一化的关键点坐标，Y 轴向下。
type Point struct {
	X          float64
	Y          float64
	Z          float64
	Visibility float64
}

// Frame 一帧视频。
type Frame struct {
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
}

// FaceResult 人脸网格关键点及 blendshape 分数。
type FaceResult struct {
	Landmarks   []Point
	Blendshapes map[string]float64
}

// PoseResult 人体姿态关键点。
type PoseResult struct {
	Landmarks []Point
}

// Constraints 请求摄像头时的约束。
type Constraints struct {
	Width      int    `mapstructure:"width"`
	Height     int    `mapstructure:"height"`
	FrameRate  int    `mapstructure:"frame_rate"`
	FacingMode string `mapstructure:"facing_mode"`
}

// Camera opens a video stream.
type Camera interface {
	Open(ctx context.Context, c Constraints) (VideoStream, error)
}

// VideoStream delivers frames until Close. Frames is closed when the stream ends.
type VideoStream interface {
	Frames() <-chan Frame
	Close()
}

// VideoTarget displays the stream, e.g. a preview surface.
type VideoTarget interface {
	Attach(stream VideoStream) error
	Detach()
}

// ModelLoader loads the two detectors.
type ModelLoader interface {
	LoadFace(ctx context.Context, url string) (FaceDetector, error)
	LoadPose(ctx context.Context, url string) (PoseDetector, error)
}

// FaceDetector runs face landmark detection on a frame; nil means no face.
type FaceDetector interface {
	Detect(frame Frame) (*FaceResult, error)
	Close()
}

// PoseDetector runs pose landmark detection on a frame; nil means no body.
type PoseDetector interface {
	Detect(frame Frame) (*PoseResult, error)
	Close()
}

// Observer counts emitted events.
type Observer interface {
	ObserveMotion(motion string)
	ObserveEmotion(emotion string)
}
