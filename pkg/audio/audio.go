// Package audio provides the PCM sample-level helpers shared by the live
// session controller, the WebSocket bridge and the streaming audio providers.
//
// All audio in mentord is 16-bit little-endian PCM. The microphone uplink runs
// at 16 kHz mono and the model's synthesized downlink at 24 kHz mono; both
// rates are fixed by the live endpoint contract.
package audio

import "time"

// Capture/playback formats fixed by the live endpoint.
const (
	CaptureSampleRate  = 16000
	PlaybackSampleRate = 24000

	// CaptureMIMEType is the MIME type declared on each uplink frame.
	CaptureMIMEType = "audio/pcm;rate=16000"
)

// PCMDuration computes the duration of raw 16-bit PCM of the given byte
// length at the given sample rate and channel count.
func PCMDuration(byteLen, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 || byteLen <= 0 {
		return 0
	}
	samples := byteLen / (2 * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
