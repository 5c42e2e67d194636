package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voicewire/voicewire/internal/config"
)

func collectChunks(c *chunker, emitted *[][]float32) func() error {
	return func() error {
		chunk := make([]float32, len(c.buf))
		copy(chunk, c.buf)
		*emitted = append(*emitted, chunk)
		return nil
	}
}

func TestChunkerCarriesRemainderAcrossPushes(t *testing.T) {
	c := newChunker(4)
	var emitted [][]float32
	emit := collectChunks(c, &emitted)

	// Six samples: one full chunk out, two carried.
	require.NoError(t, c.push([]float32{1, 2, 3, 4, 5, 6}, emit))
	require.Equal(t, [][]float32{{1, 2, 3, 4}}, emitted)

	// The next buffer continues exactly where the last one stopped;
	// no padding appears between them.
	require.NoError(t, c.push([]float32{7, 8}, emit))
	require.Equal(t, [][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}}, emitted)
}

func TestChunkerFlushPadsOnlyAtPause(t *testing.T) {
	c := newChunker(4)
	var emitted [][]float32
	emit := collectChunks(c, &emitted)

	// 3000-style odd length: full chunks plus a remainder.
	require.NoError(t, c.push([]float32{1, 1, 1, 1, 1, 1}, emit))
	require.Len(t, emitted, 1)

	// The pause renders the remainder padded with silence.
	require.NoError(t, c.flush(emit))
	require.Equal(t, [][]float32{{1, 1, 1, 1}, {1, 1, 0, 0}}, emitted)

	// Nothing carried, nothing emitted.
	require.NoError(t, c.flush(emit))
	assert.Len(t, emitted, 2)
}

func TestChunkerDiscardDropsRemainder(t *testing.T) {
	c := newChunker(4)
	var emitted [][]float32
	emit := collectChunks(c, &emitted)

	require.NoError(t, c.push([]float32{9, 9, 9}, emit))
	c.discard()

	// A fresh buffer starts on a clean chunk boundary.
	require.NoError(t, c.push([]float32{1, 2, 3, 4}, emit))
	require.Equal(t, [][]float32{{1, 2, 3, 4}}, emitted)
}

func TestPlayerClosedBehavior(t *testing.T) {
	// Exercises the lifecycle guards that never touch the audio runtime.
	p := NewPlayer(zaptest.NewLogger(t), config.DefaultConfig())

	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "close is idempotent")

	assert.ErrorIs(t, p.Play([]float32{0}), ErrPlayerClosed)
	assert.NoError(t, p.Flush(), "flush after close is a no-op")
	p.Discard() // no panic
}
