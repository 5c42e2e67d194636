package audio

// Accumulator collects device-driven sample bursts into fixed-length
// capture frames. Bursts arrive with arbitrary lengths not aligned to the
// frame boundary; whenever the internal cursor reaches capacity a complete
// copy of the buffer is emitted and the cursor resets. Partial frames are
// never emitted; whatever remains at teardown is discarded.
//
// Ingest runs inside the device callback, so it never blocks and never
// allocates beyond the emitted frame copies. Not safe for concurrent use;
// the capture callback is the only caller.
type Accumulator struct {
	buf    []float32
	cursor int
}

// NewAccumulator creates an accumulator emitting frames of frameSize
// samples. frameSize must be positive.
func NewAccumulator(frameSize int) *Accumulator {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	return &Accumulator{buf: make([]float32, frameSize)}
}

// FrameSize returns the configured frame length in samples.
func (a *Accumulator) FrameSize() int {
	return len(a.buf)
}

// Pending returns the number of carried-over samples awaiting a boundary.
func (a *Accumulator) Pending() int {
	return a.cursor
}

// Ingest appends samples and returns every frame completed by this call,
// in capture order. Returns nil when no boundary was crossed. Each
// returned frame is an independent copy owned by the caller.
func (a *Accumulator) Ingest(samples []float32) [][]float32 {
	var frames [][]float32
	for len(samples) > 0 {
		n := copy(a.buf[a.cursor:], samples)
		a.cursor += n
		samples = samples[n:]
		if a.cursor == len(a.buf) {
			frame := make([]float32, len(a.buf))
			copy(frame, a.buf)
			frames = append(frames, frame)
			a.cursor = 0
		}
	}
	return frames
}

// Reset discards any carried-over samples.
func (a *Accumulator) Reset() {
	a.cursor = 0
}
