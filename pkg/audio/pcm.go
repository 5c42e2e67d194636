// Package audio provides the PCM16 wire codec and capture-frame
// accumulation used by the streaming pipeline.
package audio

import (
	"encoding/binary"
	"math"
)

// EncodePCM16 converts normalized float samples into raw little-endian
// PCM16 bytes. Samples are clamped to [-1, 1] and scaled asymmetrically:
// negative values by 32768, non-negative values by 32767. The asymmetry
// matches the int16 range and is required for bit-level interop with the
// service; do not "fix" it.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// DecodePCM16 converts raw little-endian PCM16 bytes into normalized
// float samples, dividing each by 32768. Empty or odd-length input
// yields an empty slice rather than an error; a trailing odd byte is
// dropped. Decode is not a perfect inverse of EncodePCM16 at the
// positive extreme (1.0 encodes to 32767, which decodes to 32767/32768).
func DecodePCM16(b []byte) []float32 {
	n := len(b) / BytesPerSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(b[i*2:]))
		out[i] = float32(v) / 32768
	}
	return out
}

// LevelStats reports the peak absolute amplitude and RMS of a PCM16
// little-endian byte sequence. Used by the level meter tick; best effort,
// a short or empty buffer reports zero.
func LevelStats(b []byte) (peakAbs int, rms float64) {
	n := len(b) / BytesPerSample
	if n == 0 {
		return 0, 0
	}
	var sumSquares float64
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(b[i*2:]))
		abs := int(v)
		if abs < 0 {
			abs = -abs
		}
		if abs > peakAbs {
			peakAbs = abs
		}
		f := float64(v) / 32768
		sumSquares += f * f
	}
	return peakAbs, math.Sqrt(sumSquares / float64(n))
}
