// Package session coordinates one conversation: it owns the capture
// device, the websocket channel, and the playback scheduler, and moves
// the whole assembly through its lifecycle as a unit.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voicewire/voicewire/internal/channel"
	"github.com/voicewire/voicewire/internal/config"
	"github.com/voicewire/voicewire/internal/device"
	"github.com/voicewire/voicewire/internal/playback"
	"github.com/voicewire/voicewire/internal/protocol"
	"github.com/voicewire/voicewire/internal/transcript"
	"github.com/voicewire/voicewire/pkg/audio"
	"github.com/voicewire/voicewire/pkg/util"
)

// State represents the current state of a session.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateRecording
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Events receives session notifications. Every callback is optional and
// must return quickly; they are invoked from session-internal goroutines.
type Events struct {
	// OnState fires on every state transition.
	OnState func(state State)

	// OnTranscript fires for each transcript line after it is recorded
	// in the history.
	OnTranscript func(role, text string)

	// OnLevel reports microphone peak amplitude and RMS on the meter
	// interval while recording. Best effort.
	OnLevel func(peak int, rms float64)
}

// Controller drives the session lifecycle.
type Controller interface {
	// Start acquires the capture device, connects to the voice service,
	// and begins streaming. Fails with ErrDeviceAccess or ErrChannel;
	// no retries, the recovery path is Stop then Start. Start while a
	// session is already active is a no-op.
	Start(ctx context.Context) error

	// Stop tears the session down: releases the device, closes the
	// channel, cancels playback. Idempotent from any state.
	Stop()

	// ClearBuffer discards queued playback locally and asks the server
	// to drop its buffered output. Fails when no session is active.
	ClearBuffer() error

	// State returns the current lifecycle state.
	State() State

	// SetEvents installs the notification callbacks. Call before Start.
	SetEvents(events Events)
}

type controller struct {
	logger    *zap.Logger
	cfg       *config.Config
	capture   device.Capture
	scheduler playback.Scheduler
	dialer    channel.Dialer
	history   *transcript.History

	mu     sync.Mutex
	state  State
	events Events
	ch     channel.Channel
	acc    *audio.Accumulator
	quiet  *util.Debouncer
	done   chan struct{}
	gen    int // session generation; stale channel callbacks are discarded

	levelMu    sync.Mutex
	peak       int
	rms        float64
	levelFresh bool
}

// NewController creates the session Controller.
func NewController(
	logger *zap.Logger,
	cfg *config.Config,
	capture device.Capture,
	scheduler playback.Scheduler,
	dialer channel.Dialer,
	history *transcript.History,
) Controller {
	return &controller{
		logger:    logger,
		cfg:       cfg,
		capture:   capture,
		scheduler: scheduler,
		dialer:    dialer,
		history:   history,
		state:     StateIdle,
	}
}

func (c *controller) SetEvents(events Events) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = events
}

func (c *controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateInitializing || c.state == StateRecording {
		c.mu.Unlock()
		c.logger.Debug("Start ignored, session already active")
		return nil
	}

	c.gen++
	gen := c.gen
	c.acc = audio.NewAccumulator(c.cfg.Audio.FrameSize)
	c.done = make(chan struct{})

	if window := c.cfg.Session.EndpointSilenceMillis; window > 0 {
		c.quiet = util.NewDebouncer(time.Duration(window)*time.Millisecond, func() {
			c.reportStoppedSpeaking()
		})
	} else {
		c.quiet = nil
	}

	c.setState(StateInitializing)
	c.mu.Unlock()

	if err := c.capture.Start(c.onSamples); err != nil {
		c.failStart(gen)
		return fmt.Errorf("%w: %v", ErrDeviceAccess, err)
	}

	ch, err := c.dialer.Dial(ctx, c.cfg.Server.URL, c.handlers(gen))
	if err != nil {
		_ = c.capture.Stop()
		c.failStart(gen)
		return fmt.Errorf("%w: %v", ErrChannel, err)
	}

	c.mu.Lock()
	c.ch = ch
	done := c.done
	c.setState(StateRecording)
	c.mu.Unlock()

	go c.pingLoop(done, ch)
	go c.meterLoop(done)

	c.logger.Info("Session started",
		zap.String("url", c.cfg.Server.URL),
		zap.Int("frame_size", c.cfg.Audio.FrameSize))
	return nil
}

func (c *controller) Stop() {
	c.mu.Lock()
	c.gen++ // channel callbacks from this session are now stale
	ch := c.ch
	c.ch = nil
	quiet := c.quiet
	c.quiet = nil
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	alreadyStopped := c.state == StateStopped
	c.setState(StateStopped)
	c.mu.Unlock()

	// Device and channel teardown happens outside the lock so the audio
	// callback can never deadlock against it.
	_ = c.capture.Stop()
	if quiet != nil {
		quiet.Stop()
	}
	if ch != nil {
		_ = ch.Close()
	}
	c.scheduler.Cancel()

	if !alreadyStopped {
		c.logger.Info("Session stopped")
	}
}

func (c *controller) ClearBuffer() error {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()

	// Local queue is dropped immediately for instant silence; the
	// server-side buffer clears when buffer_cleared comes back.
	c.scheduler.Cancel()

	if ch == nil {
		return ErrNotRecording
	}
	return ch.SendControl(protocol.ControlMessage{Type: protocol.TypeClearBuffer})
}

// onSamples runs on the audio thread for every capture burst.
func (c *controller) onSamples(samples []float32) {
	c.mu.Lock()
	recording := c.state == StateRecording
	ch := c.ch
	acc := c.acc
	quiet := c.quiet
	threshold := c.cfg.Session.SpeechThreshold
	c.mu.Unlock()

	if !recording || acc == nil || ch == nil {
		return
	}

	for _, frame := range acc.Ingest(samples) {
		pcm := audio.EncodePCM16(frame)
		peak, rms := audio.LevelStats(pcm)
		c.recordLevel(peak, rms)
		if quiet != nil && peak >= threshold {
			quiet.Touch()
		}
		ch.SendAudioFrame(pcm)
	}
}

func (c *controller) handlers(gen int) channel.Handlers {
	return channel.Handlers{
		OnTranscript: func(role, text string) {
			c.history.Append(role, text)
			c.mu.Lock()
			cb := c.events.OnTranscript
			c.mu.Unlock()
			if cb != nil {
				cb(role, text)
			}
		},
		OnAudio: c.scheduler.Enqueue,
		OnAudioEnd: func() {
			c.logger.Debug("Response audio complete")
		},
		OnBufferCleared: func() {
			c.logger.Info("Server output buffer cleared")
		},
		OnPong: func() {
			c.logger.Debug("Pong received")
		},
		OnClosed: func(err error) {
			c.handleChannelClosed(gen, err)
		},
	}
}

// handleChannelClosed tears the session down when the connection ends
// underneath it. No reconnection is attempted.
func (c *controller) handleChannelClosed(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen {
		// A local Stop (or a newer session) already ran.
		c.mu.Unlock()
		return
	}
	c.gen++
	c.ch = nil
	quiet := c.quiet
	c.quiet = nil
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	if err != nil {
		c.logger.Warn("Connection lost, ending session", zap.Error(err))
		c.setState(StateError)
	} else {
		c.setState(StateStopped)
	}
	c.mu.Unlock()

	_ = c.capture.Stop()
	if quiet != nil {
		quiet.Stop()
	}
	c.scheduler.Cancel()
}

func (c *controller) failStart(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	if c.quiet != nil {
		c.quiet.Stop()
		c.quiet = nil
	}
	c.setState(StateError)
}

func (c *controller) pingLoop(done chan struct{}, ch channel.Channel) {
	interval := time.Duration(c.cfg.Session.PingIntervalSeconds) * time.Second
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := ch.SendControl(protocol.ControlMessage{Type: protocol.TypePing}); err != nil {
				c.logger.Debug("Keepalive ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *controller) meterLoop(done chan struct{}) {
	interval := time.Duration(c.cfg.Session.MeterIntervalMillis) * time.Millisecond
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			peak, rms, fresh := c.takeLevel()
			if !fresh {
				continue
			}
			c.mu.Lock()
			cb := c.events.OnLevel
			c.mu.Unlock()
			if cb != nil {
				cb(peak, rms)
			}
		}
	}
}

func (c *controller) recordLevel(peak int, rms float64) {
	c.levelMu.Lock()
	c.peak = peak
	c.rms = rms
	c.levelFresh = true
	c.levelMu.Unlock()
}

func (c *controller) takeLevel() (peak int, rms float64, fresh bool) {
	c.levelMu.Lock()
	defer c.levelMu.Unlock()
	peak, rms, fresh = c.peak, c.rms, c.levelFresh
	c.levelFresh = false
	return peak, rms, fresh
}

func (c *controller) reportStoppedSpeaking() {
	c.mu.Lock()
	ch := c.ch
	recording := c.state == StateRecording
	c.mu.Unlock()

	if !recording || ch == nil {
		return
	}
	c.logger.Debug("Silence window elapsed, reporting end of speech")
	if err := ch.SendControl(protocol.ControlMessage{Type: protocol.TypeUserStoppedSpeaking}); err != nil {
		c.logger.Debug("End of speech report failed", zap.Error(err))
	}
}

// setState must be called with c.mu held. The observer is invoked on a
// separate goroutine so it can call back into the controller freely.
func (c *controller) setState(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.logger.Debug("Session state changed", zap.Stringer("state", s))
	if cb := c.events.OnState; cb != nil {
		go cb(s)
	}
}
