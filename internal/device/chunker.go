package device

// chunker packs arbitrary-length sample buffers into the fixed-size
// chunk the output stream renders from. A trailing partial fill is
// carried across calls so consecutive buffers stay contiguous on the
// device; zero-padding happens only at an explicit flush, never between
// buffers.
type chunker struct {
	buf  []float32
	fill int
}

func newChunker(size int) *chunker {
	return &chunker{buf: make([]float32, size)}
}

// push appends samples, invoking emit once for every completed chunk in
// buf. The remainder stays buffered for the next push or flush.
func (c *chunker) push(samples []float32, emit func() error) error {
	for len(samples) > 0 {
		n := copy(c.buf[c.fill:], samples)
		c.fill += n
		samples = samples[n:]
		if c.fill == len(c.buf) {
			c.fill = 0
			if err := emit(); err != nil {
				return err
			}
		}
	}
	return nil
}

// flush zero-pads and emits the carried partial chunk, if any. The pad
// renders as silence, so flush belongs at a pause in the stream.
func (c *chunker) flush(emit func() error) error {
	if c.fill == 0 {
		return nil
	}
	for i := c.fill; i < len(c.buf); i++ {
		c.buf[i] = 0
	}
	c.fill = 0
	return emit()
}

// discard drops the carried partial chunk without rendering it.
func (c *chunker) discard() {
	c.fill = 0
}
