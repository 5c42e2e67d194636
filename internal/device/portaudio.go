package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"github.com/voicewire/voicewire/internal/config"
)

// playChunkFrames is the blocking-write buffer length for the output
// stream. Small enough that cancellation between chunks is prompt, large
// enough to keep the device fed.
const playChunkFrames = 1024

var (
	// ErrCaptureActive reports a Start on an already started capture.
	ErrCaptureActive = errors.New("capture already started")
	// ErrPlayerClosed reports a Play after Close.
	ErrPlayerClosed = errors.New("player closed")
)

type portaudioCapture struct {
	logger *zap.Logger
	cfg    *config.AudioConfig

	mu     sync.Mutex
	stream *portaudio.Stream
}

// NewCapture creates a Capture backed by the system default input device.
func NewCapture(logger *zap.Logger, cfg *config.Config) Capture {
	return &portaudioCapture{
		logger: logger,
		cfg:    &cfg.Audio,
	}
}

func (c *portaudioCapture) Start(onSamples func([]float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		return ErrCaptureActive
	}

	stream, err := portaudio.OpenDefaultStream(
		c.cfg.Channels, 0,
		float64(c.cfg.SampleRate),
		portaudio.FramesPerBufferUnspecified,
		func(in []float32) {
			onSamples(in)
		},
	)
	if err != nil {
		return fmt.Errorf("open capture device: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start capture device: %w", err)
	}

	c.stream = stream
	c.logger.Info("Capture device acquired",
		zap.Int("sample_rate", c.cfg.SampleRate),
		zap.Int("channels", c.cfg.Channels))

	return nil
}

func (c *portaudioCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return nil
	}

	if err := c.stream.Stop(); err != nil {
		c.logger.Warn("Stopping capture stream", zap.Error(err))
	}
	err := c.stream.Close()
	c.stream = nil

	c.logger.Info("Capture device released")
	return err
}

type portaudioPlayer struct {
	logger *zap.Logger
	cfg    *config.AudioConfig

	mu     sync.Mutex
	stream *portaudio.Stream
	chunk  *chunker
	closed bool
}

// NewPlayer creates a Player backed by the system default output device.
// The device is opened lazily on the first Play so a playback-less session
// never touches output hardware.
func NewPlayer(logger *zap.Logger, cfg *config.Config) Player {
	return &portaudioPlayer{
		logger: logger,
		cfg:    &cfg.Audio,
	}
}

func (p *portaudioPlayer) ensureStream() error {
	if p.stream != nil {
		return nil
	}

	p.chunk = newChunker(playChunkFrames * p.cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(
		0, p.cfg.Channels,
		float64(p.cfg.SampleRate),
		playChunkFrames,
		&p.chunk.buf,
	)
	if err != nil {
		return fmt.Errorf("open playback device: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start playback device: %w", err)
	}

	p.stream = stream
	p.logger.Info("Playback device acquired",
		zap.Int("sample_rate", p.cfg.SampleRate))
	return nil
}

func (p *portaudioPlayer) Play(samples []float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPlayerClosed
	}
	if err := p.ensureStream(); err != nil {
		return err
	}

	// Full chunks go to the blocking stream; the remainder is carried,
	// not padded, so back-to-back buffers render gaplessly.
	return p.chunk.push(samples, p.writeChunk)
}

func (p *portaudioPlayer) writeChunk() error {
	if err := p.stream.Write(); err != nil {
		return fmt.Errorf("write playback chunk: %w", err)
	}
	return nil
}

func (p *portaudioPlayer) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.stream == nil {
		return nil
	}
	return p.chunk.flush(p.writeChunk)
}

func (p *portaudioPlayer) Discard() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.chunk != nil {
		p.chunk.discard()
	}
}

func (p *portaudioPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.chunk != nil {
		p.chunk.discard()
	}

	if p.stream == nil {
		return nil
	}
	if err := p.stream.Stop(); err != nil {
		p.logger.Warn("Stopping playback stream", zap.Error(err))
	}
	err := p.stream.Close()
	p.stream = nil

	p.logger.Info("Playback device released")
	return err
}
