package audio

import "math"

// RMSLevel computes the root-mean-square amplitude of a 16-bit little-endian
// PCM buffer, normalized to [0.0, 1.0]. The live session controller exposes
// this per captured frame as the input-volume signal for UI meters.
//
// An empty or odd-length buffer yields 0.
func RMSLevel(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < samples*2; i += 2 {
		s := int16(pcm[i]) | int16(pcm[i+1])<<8
		v := float64(s) / 32768.0
		sum += v * v
	}

	return math.Sqrt(sum / float64(samples))
}
