package console

import (
	"context"
	"fmt"

	"github.com/zhouzirui/digital-human/internal/service/vision"
)

// Camera 表示终端环境下没有可用的视频设备。
type Camera struct{}

func (Camera) Open(context.Context, vision.Constraints) (vision.VideoStream, error) {
	return nil, vision.ErrDeviceNotFound
}

// Models 在终端环境下无法加载视觉模型。
type Models struct{}

func (Models) LoadFace(_ context.Context, url string) (vision.FaceDetector, error) {
	return nil, fmt.Errorf("load face model %s: %w", url, vision.ErrUnsupported)
}

func (Models) LoadPose(_ context.Context, url string) (vision.PoseDetector, error) {
	return nil, fmt.Errorf("load pose model %s: %w", url, vision.ErrUnsupported)
}

// Target 丢弃视频画面。
type Target struct{}

func (Target) Attach(vision.VideoStream) error { return nil }

func (Target) Detach() {}
