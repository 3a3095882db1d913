package vision

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/digital-human/internal/model/avatar"
	"github.com/zhouzirui/digital-human/internal/store"
)

type fakeStream struct {
	frames chan Frame
	once   sync.Once
	closed chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{frames: make(chan Frame), closed: make(chan struct{})}
}

func (s *fakeStream) Frames() <-chan Frame { return s.frames }

func (s *fakeStream) Close() { s.once.Do(func() { close(s.closed) }) }

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type fakeCamera struct {
	err    error
	opened int
	stream *fakeStream
}

func (c *fakeCamera) Open(context.Context, Constraints) (VideoStream, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.opened++
	c.stream = newFakeStream()
	return c.stream, nil
}

type fakeTarget struct {
	attached, detached int
}

func (t *fakeTarget) Attach(VideoStream) error { t.attached++; return nil }
func (t *fakeTarget) Detach()                  { t.detached++ }

type scriptedFace struct {
	mu      sync.Mutex
	results []*FaceResult
	next    int
	closed  bool
}

func (f *scriptedFace) Detect(Frame) (*FaceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) == 0 {
		return nil, nil
	}
	res := f.results[f.next%len(f.results)]
	f.next++
	return res, nil
}

func (f *scriptedFace) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

type stubPose struct{ closed bool }

func (p *stubPose) Detect(Frame) (*PoseResult, error) { return nil, nil }
func (p *stubPose) Close()                           { p.closed = true }

type fakeLoader struct {
	mu        sync.Mutex
	face      *scriptedFace
	pose      *stubPose
	faceFails int
	poseFails int
	faceCalls int
	poseCalls int
}

func (l *fakeLoader) LoadFace(context.Context, string) (FaceDetector, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faceCalls++
	if l.faceCalls <= l.faceFails {
		return nil, errors.New("cdn unavailable")
	}
	return l.face, nil
}

func (l *fakeLoader) LoadPose(context.Context, string) (PoseDetector, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.poseCalls++
	if l.poseCalls <= l.poseFails {
		return nil, errors.New("cdn unavailable")
	}
	return l.pose, nil
}

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

type pipelineFixture struct {
	pipeline *Pipeline
	camera   *fakeCamera
	loader   *fakeLoader
	target   *fakeTarget
	sleeps   *recordedSleeps
	store    *store.Store
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	st := store.New(store.Options{})
	t.Cleanup(st.Close)

	f := &pipelineFixture{
		camera: &fakeCamera{},
		loader: &fakeLoader{face: &scriptedFace{}, pose: &stubPose{}},
		target: &fakeTarget{},
		sleeps: &recordedSleeps{},
		store:  st,
	}
	f.pipeline = NewPipeline(Deps{
		Camera: f.camera,
		Models: f.loader,
		Store:  st,
		Logger: zerolog.Nop(),
	}, Config{}, WithSleep(f.sleeps.sleep))
	t.Cleanup(f.pipeline.Stop)
	return f
}

func TestStartRunsAndRestartSwapsCallbacks(t *testing.T) {
	f := newPipelineFixture(t)

	require.True(t, f.pipeline.Start(context.Background(), f.target, nil, nil))
	assert.True(t, f.pipeline.IsRunning())
	assert.Equal(t, StatusRunning, f.pipeline.Status())

	var got []avatar.Emotion
	require.True(t, f.pipeline.Start(context.Background(), f.target, func(e avatar.Emotion) { got = append(got, e) }, nil))
	assert.Equal(t, 1, f.camera.opened)
	assert.Equal(t, 1, f.target.attached)

	f.loader.face.results = []*FaceResult{{Blendshapes: map[string]float64{"mouthSmileLeft": 0.9, "mouthSmileRight": 0.9}}}
	t0 := time.Unix(100, 0)
	for i := 0; i < 5; i++ {
		f.pipeline.ProcessFrame(Frame{Timestamp: t0.Add(time.Duration(i) * 33 * time.Millisecond)})
	}
	assert.Equal(t, []avatar.Emotion{avatar.EmotionHappy}, got)
}

func TestOneDetectorFailingStillStarts(t *testing.T) {
	f := newPipelineFixture(t)
	f.loader.faceFails = 10

	require.True(t, f.pipeline.Start(context.Background(), f.target, nil, nil))
	assert.Equal(t, 3, f.loader.faceCalls)
	assert.Equal(t, 1, f.loader.poseCalls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.sleeps.delays)
}

func TestDetectorRetrySucceeds(t *testing.T) {
	f := newPipelineFixture(t)
	f.loader.poseFails = 2

	require.True(t, f.pipeline.Start(context.Background(), f.target, nil, nil))
	assert.Equal(t, 3, f.loader.poseCalls)
}

func TestBothDetectorsFailing(t *testing.T) {
	f := newPipelineFixture(t)
	f.loader.faceFails = 10
	f.loader.poseFails = 10

	var gotErr error
	f.pipeline.SetErrorHandler(func(err error) { gotErr = err })

	assert.False(t, f.pipeline.Start(context.Background(), f.target, nil, nil))
	assert.ErrorIs(t, gotErr, ErrModelLoad)
	assert.Equal(t, StatusError, f.pipeline.Status())
	assert.True(t, f.camera.stream.isClosed())
	assert.Equal(t, 1, f.target.detached)
	assert.Equal(t, Message(ErrModelLoad), f.store.Get().Error)

	f.loader.faceFails = 0
	assert.True(t, f.pipeline.Start(context.Background(), f.target, nil, nil), "pipeline can be restarted")
}

func TestCameraErrors(t *testing.T) {
	cases := []struct {
		err    error
		status Status
	}{
		{ErrDeviceNotFound, StatusNoCamera},
		{ErrPermissionDenied, StatusError},
		{ErrDeviceBusy, StatusError},
		{ErrInsecureContext, StatusError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			f := newPipelineFixture(t)
			f.camera.err = tc.err

			assert.False(t, f.pipeline.Start(context.Background(), f.target, nil, nil))
			assert.Equal(t, tc.status, f.pipeline.Status())
			assert.Equal(t, Message(tc.err), f.store.Get().Error)
			assert.Zero(t, f.loader.faceCalls)
		})
	}
}

func TestUnsupportedWithoutCamera(t *testing.T) {
	p := NewPipeline(Deps{Logger: zerolog.Nop()}, Config{})
	assert.False(t, p.Start(context.Background(), nil, nil, nil))
	assert.Equal(t, StatusError, p.Status())
}

func TestMotionCooldownThroughPipeline(t *testing.T) {
	f := newPipelineFixture(t)

	var motions []avatar.Behavior
	require.True(t, f.pipeline.Start(context.Background(), f.target, nil, func(m avatar.Behavior) {
		motions = append(motions, m)
	}))

	var nodding []*FaceResult
	for _, dy := range []float64{0, 0.15, -0.15, 0.15, -0.15} {
		nodding = append(nodding, &FaceResult{Landmarks: faceLandmarks(0, dy)})
	}
	f.loader.face.results = nodding

	t0 := time.Unix(200, 0)
	for i := 0; i < 10; i++ {
		f.pipeline.ProcessFrame(Frame{Timestamp: t0.Add(time.Duration(i) * 10 * time.Millisecond)})
	}
	assert.Equal(t, []avatar.Behavior{avatar.BehaviorNod}, motions)
}

func TestStopResetsEverything(t *testing.T) {
	f := newPipelineFixture(t)
	f.pipeline.Stop()
	assert.Equal(t, StatusIdle, f.pipeline.Status())

	require.True(t, f.pipeline.Start(context.Background(), f.target, nil, nil))
	stream := f.camera.stream
	f.pipeline.Stop()

	assert.False(t, f.pipeline.IsRunning())
	assert.Equal(t, StatusIdle, f.pipeline.Status())
	assert.True(t, stream.isClosed())
	assert.Equal(t, 1, f.target.detached)
	assert.True(t, f.loader.face.closed)
	assert.True(t, f.loader.pose.closed)
	assert.Zero(t, f.pipeline.FPS())
}

func TestFrameLoopComputesFPS(t *testing.T) {
	f := newPipelineFixture(t)
	require.True(t, f.pipeline.Start(context.Background(), f.target, nil, nil))

	t0 := time.Unix(300, 0)
	for i := 0; i <= 30; i++ {
		f.camera.stream.frames <- Frame{Timestamp: t0.Add(time.Duration(i) * time.Second / 30)}
	}
	require.Eventually(t, func() bool { return f.pipeline.FPS() > 0 }, time.Second, 5*time.Millisecond)
	assert.InDelta(t, 30, f.pipeline.FPS(), 1.5)
}

func TestUpdateConfig(t *testing.T) {
	f := newPipelineFixture(t)
	cooldown := 10 * time.Millisecond
	f.pipeline.UpdateConfig(ConfigUpdate{MotionCooldown: &cooldown})

	f.pipeline.mu.Lock()
	defer f.pipeline.mu.Unlock()
	assert.Equal(t, cooldown, f.pipeline.cfg.MotionCooldown)
	assert.Equal(t, DefaultConfig().NodThreshold, f.pipeline.cfg.NodThreshold)
}

// gatedLoader holds LoadFace until gate is closed, ignoring ctx.
type gatedLoader struct {
	*fakeLoader
	entered chan struct{}
	gate    chan struct{}
}

func newGatedLoader(inner *fakeLoader) *gatedLoader {
	return &gatedLoader{fakeLoader: inner, entered: make(chan struct{}, 1), gate: make(chan struct{})}
}

func (l *gatedLoader) LoadFace(ctx context.Context, url string) (FaceDetector, error) {
	select {
	case l.entered <- struct{}{}:
	default:
	}
	<-l.gate
	return l.fakeLoader.LoadFace(ctx, url)
}

func newGatedPipeline(t *testing.T, f *pipelineFixture) *gatedLoader {
	t.Helper()
	loader := newGatedLoader(f.loader)
	f.pipeline = NewPipeline(Deps{
		Camera: f.camera,
		Models: loader,
		Store:  f.store,
		Logger: zerolog.Nop(),
	}, Config{}, WithSleep(f.sleeps.sleep))
	t.Cleanup(f.pipeline.Stop)
	return loader
}

func TestStopDuringLoadingReleasesCamera(t *testing.T) {
	f := newPipelineFixture(t)
	loader := newGatedPipeline(t, f)

	started := make(chan bool, 1)
	go func() { started <- f.pipeline.Start(context.Background(), f.target, nil, nil) }()

	select {
	case <-loader.entered:
	case <-time.After(time.Second):
		t.Fatal("detector loading never began")
	}
	f.pipeline.Stop()
	close(loader.gate)

	select {
	case ok := <-started:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("start did not return")
	}

	assert.False(t, f.pipeline.IsRunning())
	assert.Equal(t, StatusIdle, f.pipeline.Status())
	assert.True(t, f.camera.stream.isClosed())
	assert.Equal(t, 1, f.target.detached)
	assert.True(t, f.loader.pose.closed)
	assert.True(t, f.loader.face.closed)
	assert.Empty(t, f.store.Get().Errors)
}

func TestStartWhileLoadingKeepsLatestCallbacks(t *testing.T) {
	f := newPipelineFixture(t)
	loader := newGatedPipeline(t, f)

	started := make(chan bool, 1)
	go func() {
		started <- f.pipeline.Start(context.Background(), f.target, func(avatar.Emotion) {
			t.Error("callbacks of the first start must be replaced")
		}, nil)
	}()
	<-loader.entered

	var mu sync.Mutex
	var got []avatar.Emotion
	require.True(t, f.pipeline.Start(context.Background(), f.target, func(e avatar.Emotion) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	}, nil))
	close(loader.gate)
	require.True(t, <-started)

	f.loader.face.mu.Lock()
	f.loader.face.results = []*FaceResult{{Blendshapes: map[string]float64{"mouthSmileLeft": 0.9, "mouthSmileRight": 0.9}}}
	f.loader.face.mu.Unlock()
	t0 := time.Unix(100, 0)
	for i := 0; i < 5; i++ {
		f.pipeline.ProcessFrame(Frame{Timestamp: t0.Add(time.Duration(i) * 33 * time.Millisecond)})
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []avatar.Emotion{avatar.EmotionHappy}, got)
}
