// Package channel owns the persistent duplex websocket connection to the
// voice service. One connection carries both message shapes: opaque binary
// PCM16 frames and JSON control messages. Inbound traffic is routed by
// message kind to the handlers supplied at dial time.
package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voicewire/voicewire/internal/protocol"
	"github.com/voicewire/voicewire/pkg/audio"
)

const writeTimeout = 5 * time.Second

// Handlers receives inbound traffic and connection lifecycle events.
// Handlers run on the read loop goroutine one at a time, so they must
// return quickly and never block on I/O.
type Handlers struct {
	// OnTranscript delivers a transcript line. Malformed control
	// messages degrade to a transcript line carrying the raw text.
	OnTranscript func(role, text string)

	// OnAudio delivers one decoded non-empty playback buffer.
	OnAudio func(samples []float32)

	// OnAudioEnd signals upstream completion of the response audio.
	OnAudioEnd func()

	// OnBufferCleared acknowledges a clear_buffer request.
	OnBufferCleared func()

	// OnPong acknowledges a keepalive ping.
	OnPong func()

	// OnClosed fires exactly once when the connection ends, whether by
	// local Close, server disconnect, or transport error. err is nil
	// for an orderly local close.
	OnClosed func(err error)
}

// Channel is one open duplex connection.
type Channel interface {
	// SendAudioFrame transmits raw PCM16 bytes as a binary message.
	// When the connection is not open the frame is dropped and logged;
	// stale audio is worse than dropped audio, so nothing is queued or
	// retried.
	SendAudioFrame(frame []byte)

	// SendControl transmits a structured message as a text frame.
	SendControl(msg protocol.ControlMessage) error

	// Close shuts the connection down. Idempotent.
	Close() error
}

// Dialer opens channels. Sessions dial once and own the result for their
// lifetime.
type Dialer interface {
	Dial(ctx context.Context, url string, handlers Handlers) (Channel, error)
}

type wsDialer struct {
	logger *zap.Logger
}

// NewDialer creates the websocket Dialer.
func NewDialer(logger *zap.Logger) Dialer {
	return &wsDialer{logger: logger}
}

func (d *wsDialer) Dial(ctx context.Context, url string, handlers Handlers) (Channel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	ch := &wsChannel{
		logger:   d.logger,
		conn:     conn,
		handlers: handlers,
		open:     true,
	}
	go ch.readLoop()

	d.logger.Info("Channel connected", zap.String("url", url))
	return ch, nil
}

type wsChannel struct {
	logger   *zap.Logger
	conn     *websocket.Conn
	handlers Handlers

	writeMu sync.Mutex // one writer at a time on the websocket

	mu     sync.Mutex
	open   bool
	local  bool // Close was called here, as opposed to a transport failure
	closed sync.Once
}

func (c *wsChannel) SendAudioFrame(frame []byte) {
	if !c.isOpen() {
		c.logger.Debug("Dropping audio frame, channel not open",
			zap.Int("bytes", len(frame)))
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		c.logger.Warn("Audio frame send failed", zap.Error(err))
		c.markClosed()
	}
}

func (c *wsChannel) SendControl(msg protocol.ControlMessage) error {
	if !c.isOpen() {
		return fmt.Errorf("send %s: channel not open", msg.Type)
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.markClosed()
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

func (c *wsChannel) Close() error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil
	}
	c.open = false
	c.local = true
	c.mu.Unlock()

	// Best-effort close handshake; the read loop unblocks either way.
	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	return c.conn.Close()
}

func (c *wsChannel) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *wsChannel) markClosed() {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
}

// readLoop pulls messages until the connection dies and dispatches each
// by transport message kind. It is the only reader, so handler calls are
// never concurrent with each other.
func (c *wsChannel) readLoop() {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasOpen := c.open
			local := c.local
			c.open = false
			c.mu.Unlock()

			switch {
			case local:
				err = nil // orderly local close, not a failure
			case wasOpen:
				c.logger.Info("Channel closed by peer", zap.Error(err))
			default:
				// A failed send already marked the channel; the
				// transport error still reaches the session.
				c.logger.Warn("Channel closed after send failure", zap.Error(err))
			}
			c.notifyClosed(err)
			return
		}

		switch messageType {
		case websocket.TextMessage:
			c.dispatchControl(data)
		case websocket.BinaryMessage:
			c.dispatchAudio(data)
		default:
			c.logger.Debug("Ignoring websocket message",
				zap.Int("message_type", messageType))
		}
	}
}

func (c *wsChannel) dispatchControl(data []byte) {
	msg, err := protocol.Parse(data)
	if err != nil {
		// Unparseable text is shown as a transcript line rather than
		// treated as fatal.
		c.logger.Warn("Malformed control message, displaying raw text",
			zap.Error(err))
		if c.handlers.OnTranscript != nil {
			c.handlers.OnTranscript(protocol.RoleAssistant, string(data))
		}
		return
	}

	switch msg.Type {
	case protocol.TypeTranscript:
		if c.handlers.OnTranscript != nil {
			c.handlers.OnTranscript(msg.Role, msg.Text)
		}
	case protocol.TypeAudioEnd:
		if c.handlers.OnAudioEnd != nil {
			c.handlers.OnAudioEnd()
		}
	case protocol.TypeBufferCleared:
		if c.handlers.OnBufferCleared != nil {
			c.handlers.OnBufferCleared()
		}
	case protocol.TypePong:
		if c.handlers.OnPong != nil {
			c.handlers.OnPong()
		}
	default:
		// Forward compatible: unknown types are logged, never fatal.
		c.logger.Info("Unrecognized control message type",
			zap.String("type", msg.Type))
	}
}

func (c *wsChannel) dispatchAudio(data []byte) {
	samples := audio.DecodePCM16(data)
	if len(samples) == 0 {
		// Zero-length frames are valid and ignored.
		c.logger.Debug("Dropping empty audio frame", zap.Int("bytes", len(data)))
		return
	}
	if c.handlers.OnAudio != nil {
		c.handlers.OnAudio(samples)
	}
}

func (c *wsChannel) notifyClosed(err error) {
	c.closed.Do(func() {
		if c.handlers.OnClosed != nil {
			c.handlers.OnClosed(err)
		}
	})
}
