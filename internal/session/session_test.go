package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voicewire/voicewire/internal/channel"
	"github.com/voicewire/voicewire/internal/config"
	"github.com/voicewire/voicewire/internal/playback"
	"github.com/voicewire/voicewire/internal/protocol"
	"github.com/voicewire/voicewire/internal/session"
	"github.com/voicewire/voicewire/internal/transcript"
	"github.com/voicewire/voicewire/pkg/audio"
)

type fakeCapture struct {
	mu        sync.Mutex
	startErr  error
	onSamples func([]float32)
	started   bool
	stops     int
}

func (f *fakeCapture) Start(onSamples func([]float32)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.onSamples = onSamples
	f.started = true
	return nil
}

func (f *fakeCapture) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	f.stops++
	return nil
}

func (f *fakeCapture) feed(samples []float32) {
	f.mu.Lock()
	cb := f.onSamples
	f.mu.Unlock()
	if cb != nil {
		cb(samples)
	}
}

func (f *fakeCapture) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fakeChannel struct {
	mu       sync.Mutex
	frames   [][]byte
	controls []protocol.ControlMessage
	closed   bool
}

func (f *fakeChannel) SendAudioFrame(frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
}

func (f *fakeChannel) SendControl(msg protocol.ControlMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out
}

func (f *fakeChannel) sentControls() []protocol.ControlMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.ControlMessage, len(f.controls))
	copy(out, f.controls)
	return out
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeDialer struct {
	mu       sync.Mutex
	dialErr  error
	ch       *fakeChannel
	handlers channel.Handlers
	dials    int
}

func (f *fakeDialer) Dial(_ context.Context, _ string, handlers channel.Handlers) (channel.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	f.handlers = handlers
	return f.ch, nil
}

func (f *fakeDialer) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func (f *fakeDialer) channelHandlers() channel.Handlers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers
}

type fakeScheduler struct {
	mu      sync.Mutex
	items   [][]float32
	cancels int
}

func (f *fakeScheduler) Enqueue(item []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, item)
}

func (f *fakeScheduler) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
}

func (f *fakeScheduler) State() playback.State { return playback.StateIdle }
func (f *fakeScheduler) QueueLen() int         { return 0 }

func (f *fakeScheduler) enqueued() [][]float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]float32, len(f.items))
	copy(out, f.items)
	return out
}

func (f *fakeScheduler) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Audio.FrameSize = 4
	cfg.Session.PingIntervalSeconds = 0
	cfg.Session.EndpointSilenceMillis = 0
	cfg.Session.MeterIntervalMillis = 0
	return cfg
}

type fixture struct {
	capture   *fakeCapture
	dialer    *fakeDialer
	ch        *fakeChannel
	scheduler *fakeScheduler
	history   *transcript.History
	ctrl      session.Controller
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()

	ch := &fakeChannel{}
	f := &fixture{
		capture:   &fakeCapture{},
		dialer:    &fakeDialer{ch: ch},
		ch:        ch,
		scheduler: &fakeScheduler{},
	}
	history, err := transcript.NewHistory(cfg.Session.TranscriptHistorySize)
	require.NoError(t, err)
	f.history = history
	f.ctrl = session.NewController(
		zaptest.NewLogger(t), cfg, f.capture, f.scheduler, f.dialer, f.history)
	return f
}

func TestControllerStartStreamsCompleteFrames(t *testing.T) {
	f := newFixture(t, testConfig())

	require.NoError(t, f.ctrl.Start(context.Background()))
	require.Equal(t, session.StateRecording, f.ctrl.State())

	// Frame size is 4: six samples complete one frame and carry two.
	f.capture.feed([]float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6})

	frames := f.ch.sentFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, audio.EncodePCM16([]float32{0.1, 0.2, 0.3, 0.4}), frames[0])

	// Two more samples flush the carried remainder.
	f.capture.feed([]float32{0.7, 0.8})
	frames = f.ch.sentFrames()
	require.Len(t, frames, 2)
	assert.Equal(t, audio.EncodePCM16([]float32{0.5, 0.6, 0.7, 0.8}), frames[1])
}

func TestControllerStartDeviceFailure(t *testing.T) {
	f := newFixture(t, testConfig())
	f.capture.startErr = errors.New("device busy")

	err := f.ctrl.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrDeviceAccess)
	assert.Equal(t, session.StateError, f.ctrl.State())
	assert.Zero(t, f.dialer.dialCount(), "no connection attempt without a device")
}

func TestControllerStartDialFailure(t *testing.T) {
	f := newFixture(t, testConfig())
	f.dialer.dialErr = errors.New("connection refused")

	err := f.ctrl.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrChannel)
	assert.Equal(t, session.StateError, f.ctrl.State())
	assert.Equal(t, 1, f.capture.stopCount(), "device released after failed dial")
}

func TestControllerStartWhileRecordingIsNoOp(t *testing.T) {
	f := newFixture(t, testConfig())

	require.NoError(t, f.ctrl.Start(context.Background()))
	require.NoError(t, f.ctrl.Start(context.Background()))

	assert.Equal(t, 1, f.dialer.dialCount())
	assert.Equal(t, session.StateRecording, f.ctrl.State())
}

func TestControllerStopIsIdempotent(t *testing.T) {
	f := newFixture(t, testConfig())

	// Stop before ever starting.
	f.ctrl.Stop()
	assert.Equal(t, session.StateStopped, f.ctrl.State())

	require.NoError(t, f.ctrl.Start(context.Background()))
	f.ctrl.Stop()
	f.ctrl.Stop()

	assert.Equal(t, session.StateStopped, f.ctrl.State())
	assert.True(t, f.ch.isClosed())
	assert.GreaterOrEqual(t, f.scheduler.cancelCount(), 1)
}

func TestControllerStopSilencesCapture(t *testing.T) {
	f := newFixture(t, testConfig())

	require.NoError(t, f.ctrl.Start(context.Background()))
	f.ctrl.Stop()

	// A straggler burst after Stop must not reach the channel.
	f.capture.feed([]float32{0.1, 0.2, 0.3, 0.4})
	assert.Empty(t, f.ch.sentFrames())
}

func TestControllerChannelClosedTearsDown(t *testing.T) {
	f := newFixture(t, testConfig())

	require.NoError(t, f.ctrl.Start(context.Background()))
	handlers := f.dialer.channelHandlers()
	require.NotNil(t, handlers.OnClosed)

	handlers.OnClosed(errors.New("connection reset"))

	assert.Equal(t, session.StateError, f.ctrl.State())
	assert.Equal(t, 1, f.capture.stopCount())
	assert.GreaterOrEqual(t, f.scheduler.cancelCount(), 1)
}

func TestControllerInboundAudioGoesToScheduler(t *testing.T) {
	f := newFixture(t, testConfig())

	require.NoError(t, f.ctrl.Start(context.Background()))
	handlers := f.dialer.channelHandlers()

	item := []float32{0.5, -0.5}
	handlers.OnAudio(item)

	require.Equal(t, [][]float32{item}, f.scheduler.enqueued())
}

func TestControllerTranscriptRecordedAndReported(t *testing.T) {
	f := newFixture(t, testConfig())

	type line struct{ role, text string }
	reported := make(chan line, 1)
	f.ctrl.SetEvents(session.Events{
		OnTranscript: func(role, text string) {
			reported <- line{role, text}
		},
	})

	require.NoError(t, f.ctrl.Start(context.Background()))
	f.dialer.channelHandlers().OnTranscript(protocol.RoleUser, "hello there")

	select {
	case got := <-reported:
		assert.Equal(t, line{protocol.RoleUser, "hello there"}, got)
	case <-time.After(time.Second):
		t.Fatal("transcript event never reported")
	}

	lines := f.history.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "hello there", lines[0].Text)
}

func TestControllerClearBuffer(t *testing.T) {
	f := newFixture(t, testConfig())

	require.ErrorIs(t, f.ctrl.ClearBuffer(), session.ErrNotRecording)

	require.NoError(t, f.ctrl.Start(context.Background()))
	before := f.scheduler.cancelCount()
	require.NoError(t, f.ctrl.ClearBuffer())

	assert.Greater(t, f.scheduler.cancelCount(), before, "local queue dropped immediately")
	controls := f.ch.sentControls()
	require.Len(t, controls, 1)
	assert.Equal(t, protocol.TypeClearBuffer, controls[0].Type)
}

func TestControllerReportsEndOfSpeechAfterSilence(t *testing.T) {
	cfg := testConfig()
	cfg.Session.EndpointSilenceMillis = 30
	cfg.Session.SpeechThreshold = 500
	f := newFixture(t, cfg)

	require.NoError(t, f.ctrl.Start(context.Background()))

	// One loud frame arms the silence window.
	f.capture.feed([]float32{0.9, 0.9, 0.9, 0.9})

	require.Eventually(t, func() bool {
		for _, msg := range f.ch.sentControls() {
			if msg.Type == protocol.TypeUserStoppedSpeaking {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestControllerQuietAudioDoesNotTriggerEndpointing(t *testing.T) {
	cfg := testConfig()
	cfg.Session.EndpointSilenceMillis = 20
	cfg.Session.SpeechThreshold = 500
	f := newFixture(t, cfg)

	require.NoError(t, f.ctrl.Start(context.Background()))

	// Below-threshold audio never arms the window.
	f.capture.feed([]float32{0.001, 0.001, 0.001, 0.001})

	time.Sleep(100 * time.Millisecond)
	for _, msg := range f.ch.sentControls() {
		assert.NotEqual(t, protocol.TypeUserStoppedSpeaking, msg.Type)
	}
}

func TestControllerStateObserver(t *testing.T) {
	f := newFixture(t, testConfig())

	var mu sync.Mutex
	var seen []session.State
	f.ctrl.SetEvents(session.Events{
		OnState: func(s session.State) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		},
	})

	require.NoError(t, f.ctrl.Start(context.Background()))
	f.ctrl.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, session.StateInitializing)
	assert.Contains(t, seen, session.StateRecording)
	assert.Contains(t, seen, session.StateStopped)
}
