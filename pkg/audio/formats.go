package audio

// Format constants shared by the capture and playback paths. The wire
// contract is fixed for the life of a connection: raw signed 16-bit
// little-endian samples, mono, 16 kHz, no header.
const (
	SampleRate     = 16_000 // Hz, both directions
	Channels       = 1
	BytesPerSample = 2 // 16-bit PCM

	// DefaultFrameSize is the capture frame length in samples. One frame
	// is 256 ms of audio and 2*DefaultFrameSize bytes on the wire.
	DefaultFrameSize = 4096
)
