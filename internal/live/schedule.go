package live

import (
	"time"

	"github.com/deirlabs/mentord/pkg/audio"
)

// Chunk is one audio buffer placed on the playback timeline.
type Chunk struct {
	// Data is the raw PCM16 payload.
	Data []byte

	// Start is the absolute time the chunk begins playing.
	Start time.Time

	// Duration is the playout length derived from the sample rate.
	Duration time.Duration
}

// End returns the instant the chunk finishes playing.
func (c Chunk) End() time.Time {
	return c.Start.Add(c.Duration)
}

// Schedule places inbound audio chunks back-to-back on a monotonic playback
// timeline. Each chunk starts at max(previous chunk end, now), so chunks never
// overlap and a late chunk plays immediately instead of being pushed into the
// past. Not safe for concurrent use; the controller serialises access.
type Schedule struct {
	sampleRate int
	channels   int
	cursor     time.Time
	pending    []Chunk
}

// NewSchedule creates a playback schedule for mono PCM16 at the given sample
// rate.
func NewSchedule(sampleRate int) *Schedule {
	return &Schedule{sampleRate: sampleRate, channels: 1}
}

// Add places data on the timeline and returns the resulting chunk. The cursor
// advances to the chunk's end.
func (s *Schedule) Add(data []byte, now time.Time) Chunk {
	start := s.cursor
	if now.After(start) {
		start = now
	}

	c := Chunk{
		Data:     data,
		Start:    start,
		Duration: audio.PCMDuration(len(data), s.sampleRate, s.channels),
	}
	s.cursor = c.End()
	s.pending = append(s.pending, c)
	return c
}

// Flush discards every chunk that has not finished playing and resets the
// cursor to now, so the next chunk plays without artificial delay. It returns
// the number of discarded chunks.
func (s *Schedule) Flush(now time.Time) int {
	discarded := 0
	for _, c := range s.pending {
		if c.End().After(now) {
			discarded++
		}
	}
	s.pending = nil
	s.cursor = now
	return discarded
}

// Prune drops chunks that finished playing at or before now. Called
// periodically so the pending set tracks only scheduled-but-unplayed buffers.
func (s *Schedule) Prune(now time.Time) {
	kept := s.pending[:0]
	for _, c := range s.pending {
		if c.End().After(now) {
			kept = append(kept, c)
		}
	}
	s.pending = kept
}

// Pending returns the number of chunks scheduled but not yet finished at now.
func (s *Schedule) Pending(now time.Time) int {
	n := 0
	for _, c := range s.pending {
		if c.End().After(now) {
			n++
		}
	}
	return n
}

// Cursor returns the time the next chunk would start if it arrived now or
// earlier.
func (s *Schedule) Cursor() time.Time {
	return s.cursor
}
