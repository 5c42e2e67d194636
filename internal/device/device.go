// Package device owns audio hardware access. The capture and playback
// sides are independent: each has its own open/close path so a failure in
// one never corrupts the other.
package device

// Capture acquires the default input device and delivers normalized
// float samples to the callback on the device's own cadence. The callback
// runs on the audio thread and must return quickly without blocking.
type Capture interface {
	// Start acquires the device and begins delivering sample bursts.
	// Burst lengths are device-driven and not aligned to any frame
	// boundary. Fails if the device is unavailable or permission is
	// denied.
	Start(onSamples func([]float32)) error

	// Stop releases the device. Safe to call when not started and safe
	// to call repeatedly. No callback fires after Stop returns.
	Stop() error
}

// Player renders normalized float samples on the default output device.
// Play blocks until the samples have been handed to the hardware, which
// is what serializes gapless playback. Buffers shorter than the device
// chunk are carried, not padded, so consecutive Play calls produce one
// contiguous stream; the caller marks stream pauses with Flush or
// Discard.
type Player interface {
	// Play renders one buffer. A trailing sub-chunk remainder is held
	// back until the next Play, Flush, or Discard. Returns promptly
	// with an error if the device was closed mid-render.
	Play(samples []float32) error

	// Flush renders the held-back remainder zero-padded to a full
	// device chunk. Call when the stream of buffers pauses.
	Flush() error

	// Discard drops the held-back remainder without rendering it. Call
	// when the buffers it came from were cancelled.
	Discard()

	// Close releases the output device, waiting out an in-flight
	// render. Idempotent.
	Close() error
}
