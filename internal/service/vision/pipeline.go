// Package vision 把摄像头画面转换成两路限流事件：来自人脸的情绪事件，
// 以及来自头部和上半身的离散动作事件。
package vision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/digital-human/internal/model/avatar"
	"github.com/zhouzirui/digital-human/internal/store"
)

// Status 管线状态。
type Status string

const (
	StatusIdle     Status = "idle"
	StatusLoading  Status = "loading"
	StatusRunning  Status = "running"
	StatusError    Status = "error"
	StatusNoCamera Status = "no_camera"
)

// EmotionHandler receives debounced user emotions.
type EmotionHandler func(avatar.Emotion)

// MotionHandler receives cooldown-filtered user motions.
type MotionHandler func(avatar.Behavior)

// ErrorHandler receives pipeline failures.
type ErrorHandler func(error)

// Deps 视觉管线的协作者。Store 与 Observer 可以为空。
type Deps struct {
	Camera   Camera
	Models   ModelLoader
	Store    *store.Store
	Observer Observer
	Logger   zerolog.Logger
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithClock replaces time.Now for frames without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithSleep replaces the model retry wait.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) { p.sleep = fn }
}

// Pipeline owns the camera and both detectors.
type Pipeline struct {
	deps   Deps
	logger zerolog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	cfg       Config
	status    Status
	running   bool
	stream    VideoStream
	target    VideoTarget
	face      FaceDetector
	pose      PoseDetector
	onEmotion EmotionHandler
	onMotion  MotionHandler
	onError   ErrorHandler
	cancel    context.CancelFunc
	loopDone  chan struct{}

	// startGen 每次 Start 与 Stop 都递增，用于识别被 Stop 取代的加载。
	startGen   uint64
	loadCancel context.CancelFunc

	head     *HeadTracker
	arm      *ArmTracker
	cooldown Cooldown
	debounce Debouncer

	fps        float64
	fpsFrames  int
	fpsStarted time.Time
}

// NewPipeline 创建视觉管线。
func NewPipeline(deps Deps, cfg Config, opts ...Option) *Pipeline {
	cfg = cfg.withDefaults()
	p := &Pipeline{
		deps:   deps,
		logger: deps.Logger.With().Str("component", "vision").Logger(),
		now:    time.Now,
		sleep:  sleepContext,
		cfg:    cfg,
		status: StatusIdle,
		head:   newHeadTracker(cfg.HeadWindow),
		arm:    newArmTracker(cfg.WristWindow),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetErrorHandler 设置错误回调。
func (p *Pipeline) SetErrorHandler(fn ErrorHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = fn
}

// Start opens the camera, loads the detectors and starts the frame loop.
// While running or loading it only swaps the callbacks. A Stop issued during
// loading wins: Start then releases what it acquired and returns false.
func (p *Pipeline) Start(ctx context.Context, target VideoTarget, onEmotion EmotionHandler, onMotion MotionHandler) bool {
	p.mu.Lock()
	p.onEmotion = onEmotion
	p.onMotion = onMotion
	if p.running || p.status == StatusLoading {
		p.mu.Unlock()
		return true
	}
	p.status = StatusLoading
	p.startGen++
	gen := p.startGen
	loadCtx, loadCancel := context.WithCancel(ctx)
	p.loadCancel = loadCancel
	cfg := p.cfg
	p.mu.Unlock()
	defer loadCancel()

	if p.deps.Camera == nil || p.deps.Models == nil {
		p.failStart(gen, ErrUnsupported)
		return false
	}

	stream, err := p.deps.Camera.Open(ctx, cfg.Constraints)
	if err != nil {
		p.failStart(gen, err)
		return false
	}

	release := func(face FaceDetector, pose PoseDetector) {
		if target != nil {
			target.Detach()
		}
		stream.Close()
		if face != nil {
			face.Close()
		}
		if pose != nil {
			pose.Close()
		}
	}

	if target != nil {
		if err := target.Attach(stream); err != nil {
			stream.Close()
			p.failStart(gen, fmt.Errorf("attach video target: %w", err))
			return false
		}
	}

	face, pose := p.loadDetectors(loadCtx, cfg)
	if face == nil && pose == nil {
		release(nil, nil)
		p.failStart(gen, ErrModelLoad)
		return false
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.mu.Lock()
	if p.startGen != gen {
		p.mu.Unlock()
		cancel()
		release(face, pose)
		p.logger.Info().Msg("vision pipeline stopped while loading")
		return false
	}
	p.stream = stream
	p.target = target
	p.face = face
	p.pose = pose
	p.loadCancel = nil
	p.cancel = cancel
	p.loopDone = done
	p.running = true
	p.status = StatusRunning
	p.fpsStarted = time.Time{}
	p.mu.Unlock()

	go p.loop(loopCtx, stream, done)

	p.logger.Info().Bool("face", face != nil).Bool("pose", pose != nil).Msg("vision pipeline started")
	return true
}

// loadDetectors loads both models concurrently; one failing does not block the other.
func (p *Pipeline) loadDetectors(ctx context.Context, cfg Config) (FaceDetector, PoseDetector) {
	var (
		face FaceDetector
		pose PoseDetector
		g    errgroup.Group
	)

	g.Go(func() error {
		err := p.retry(ctx, cfg, "face", func() error {
			var err error
			face, err = p.deps.Models.LoadFace(ctx, cfg.FaceModelURL)
			return err
		})
		if err != nil {
			face = nil
		}
		return nil
	})
	g.Go(func() error {
		err := p.retry(ctx, cfg, "pose", func() error {
			var err error
			pose, err = p.deps.Models.LoadPose(ctx, cfg.PoseModelURL)
			return err
		})
		if err != nil {
			pose = nil
		}
		return nil
	})
	_ = g.Wait()
	return face, pose
}

func (p *Pipeline) retry(ctx context.Context, cfg Config, name string, load func() error) error {
	var err error
	for attempt := 0; attempt < cfg.ModelLoadAttempts; attempt++ {
		if err = load(); err == nil {
			return nil
		}
		p.logger.Warn().Err(err).Str("model", name).Int("attempt", attempt+1).Msg("detector load failed")
		if attempt == cfg.ModelLoadAttempts-1 {
			break
		}
		if sleepErr := p.sleep(ctx, cfg.ModelRetryBase*time.Duration(1<<attempt)); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

func (p *Pipeline) loop(ctx context.Context, stream VideoStream, done chan struct{}) {
	defer close(done)
	frames := stream.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			p.ProcessFrame(frame)
		}
	}
}

// ProcessFrame runs both detectors on one frame and dispatches any events.
func (p *Pipeline) ProcessFrame(frame Frame) {
	if frame.Timestamp.IsZero() {
		frame.Timestamp = p.now()
	}

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	face, pose := p.face, p.pose
	p.tickFPSLocked(frame.Timestamp)
	p.mu.Unlock()

	var faceRes *FaceResult
	var poseRes *PoseResult
	if face != nil {
		res, err := face.Detect(frame)
		if err != nil {
			p.logger.Debug().Err(err).Msg("face detection failed")
		}
		faceRes = res
	}
	if pose != nil {
		res, err := pose.Detect(frame)
		if err != nil {
			p.logger.Debug().Err(err).Msg("pose detection failed")
		}
		poseRes = res
	}

	var motions []avatar.Behavior
	var emotion avatar.Emotion
	var emotionFired bool

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cfg := p.cfg
	if faceRes != nil {
		if headPose, ok := EstimateHeadPose(faceRes.Landmarks); ok {
			if m, ok := p.head.Add(headPose, cfg); ok && p.cooldown.Allow(m, frame.Timestamp, cfg.MotionCooldown) {
				motions = append(motions, m)
			}
		}
		if len(faceRes.Blendshapes) > 0 {
			detected := ClassifyEmotion(faceRes.Blendshapes, cfg)
			emotion, emotionFired = p.debounce.Observe(detected, frame.Timestamp, cfg.EmotionRepeat, cfg.EmotionDebounce)
		}
	}
	if poseRes != nil {
		if m, ok := p.arm.Add(poseRes.Landmarks, cfg); ok && p.cooldown.Allow(m, frame.Timestamp, cfg.MotionCooldown) {
			motions = append(motions, m)
		}
	}
	onEmotion, onMotion := p.onEmotion, p.onMotion
	p.mu.Unlock()

	if emotionFired {
		p.logger.Debug().Str("emotion", string(emotion)).Msg("user emotion")
		if p.deps.Observer != nil {
			p.deps.Observer.ObserveEmotion(string(emotion))
		}
		if onEmotion != nil {
			onEmotion(emotion)
		}
	}
	for _, m := range motions {
		p.logger.Debug().Str("motion", string(m)).Msg("user motion")
		if p.deps.Observer != nil {
			p.deps.Observer.ObserveMotion(string(m))
		}
		if onMotion != nil {
			onMotion(m)
		}
	}
}

// tickFPSLocked updates the frame rate once per second of frame time.
func (p *Pipeline) tickFPSLocked(now time.Time) {
	if p.fpsStarted.IsZero() {
		p.fpsStarted = now
		p.fpsFrames = 0
	}
	p.fpsFrames++
	if elapsed := now.Sub(p.fpsStarted); elapsed >= time.Second {
		p.fps = float64(p.fpsFrames) / elapsed.Seconds()
		p.fpsStarted = now
		p.fpsFrames = 0
	}
}

// Stop releases the camera and detectors and resets every window. Safe when never started.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	stream, target := p.stream, p.target
	face, pose := p.face, p.pose
	cancel, done := p.cancel, p.loopDone
	loadCancel := p.loadCancel

	p.startGen++
	p.loadCancel = nil
	p.stream, p.target = nil, nil
	p.face, p.pose = nil, nil
	p.cancel, p.loopDone = nil, nil
	p.onEmotion, p.onMotion = nil, nil
	p.head.Reset()
	p.arm.Reset()
	p.cooldown.Reset()
	p.debounce.Reset()
	p.fps, p.fpsFrames, p.fpsStarted = 0, 0, time.Time{}
	p.running = false
	p.status = StatusIdle
	p.mu.Unlock()

	if loadCancel != nil {
		loadCancel()
	}
	if cancel != nil {
		cancel()
	}
	if stream != nil {
		stream.Close()
	}
	if done != nil {
		<-done
	}
	if target != nil {
		target.Detach()
	}
	if face != nil {
		face.Close()
	}
	if pose != nil {
		pose.Close()
	}
}

// FPS 最近一秒的处理帧率。
func (p *Pipeline) FPS() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fps
}

// IsRunning 是否在处理帧。
func (p *Pipeline) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Status 返回当前状态。
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// UpdateConfig 调整运行时阈值。
func (p *Pipeline) UpdateConfig(update ConfigUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = p.cfg.apply(update)
}

// failStart reports err unless a Stop already superseded this start.
func (p *Pipeline) failStart(gen uint64, err error) {
	p.mu.Lock()
	current := p.startGen == gen
	if current {
		p.loadCancel = nil
	}
	p.mu.Unlock()
	if !current {
		p.logger.Debug().Err(err).Msg("vision start superseded")
		return
	}
	p.fail(err)
}

func (p *Pipeline) fail(err error) {
	status := StatusError
	if errors.Is(err, ErrDeviceNotFound) {
		status = StatusNoCamera
	}

	p.mu.Lock()
	p.status = status
	onError := p.onError
	p.mu.Unlock()

	message := Message(err)
	p.logger.Error().Err(err).Str("status", string(status)).Msg(message)
	if p.deps.Store != nil {
		p.deps.Store.PushError(message, store.SeverityError, 0)
	}
	if onError != nil {
		onError(err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
