package audio

import "math"

// Int16ToBytes converts int16 samples to a little-endian byte buffer.
func Int16ToBytes(samples []int16) []byte {
	bytes := make([]byte, len(samples)*2)

	for i, sample := range samples {
		bytes[i*2] = byte(sample & 0xFF)
		bytes[i*2+1] = byte((sample >> 8) & 0xFF)
	}

	return bytes
}

// BytesToInt16 converts a little-endian byte buffer to int16 samples. A
// trailing odd byte is ignored.
func BytesToInt16(bytes []byte) []int16 {
	sampleCount := len(bytes) / 2
	samples := make([]int16, sampleCount)

	for i := range sampleCount {
		samples[i] = int16(bytes[i*2]) | (int16(bytes[i*2+1]) << 8)
	}

	return samples
}

// FloatToPCM16 clamps each float sample to [-1, 1] and scales it to the
// 16-bit integer range.
func FloatToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))

	for i, s := range samples {
		clamped := max(float32(-1), min(float32(1), s))
		out[i] = int16(clamped * 0x7FFF)
	}

	return out
}

// PCM16ToFloat scales 16-bit samples back to the [-1, 1] float range.
func PCM16ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))

	for i, s := range samples {
		out[i] = float32(s) / 0x7FFF
	}

	return out
}

// RMS computes the root-mean-square energy of a float frame, in [0, 1] for
// clamped input.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		clamped := float64(max(float32(-1), min(float32(1), s)))
		sum += clamped * clamped
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// MergeFrames concatenates frames into one contiguous sample sequence in
// arrival order.
func MergeFrames(frames [][]int16) []int16 {
	var total int
	for _, f := range frames {
		total += len(f)
	}

	merged := make([]int16, 0, total)
	for _, f := range frames {
		merged = append(merged, f...)
	}

	return merged
}
