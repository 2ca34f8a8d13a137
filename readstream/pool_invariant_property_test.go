package readstream

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

// countAllBlocks sums blocks resident in the pool, the ring, and every
// cache slot. In-flight blocks (posted to the server, not yet answered)
// are the only ones not counted directly, but draining responses before
// each count folds any that have arrived back into the pool, ring, or
// caches; the property below tolerates a small in-flight remainder by
// only asserting the total never exceeds the construction-time population.
func countAllBlocks(s *Stream) int {
	n := s.pool.Len()
	for i := range s.ring.slots {
		if s.ring.slots[i].filled {
			n++
		}
	}
	for ci := range s.caches {
		for i := range s.caches[ci].blocks {
			if s.caches[ci].filled[i] {
				n++
			}
		}
	}
	return n
}

// TestPoolPopulationNeverExceedsConstructionSize exercises spec.md's
// quantified invariant ("the multiset of data blocks across {pool, caches,
// lookahead ring, in-flight, ...} is constant") under randomized sequences
// of Seek/Cache/Read/IsReady calls, the way doismellburning-samoyed uses
// pgregory.net/rapid for property checks over its protocol state machines.
func TestPoolPopulationNeverExceedsConstructionSize(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		opts := Options{BlockLen: 8, NumLookAheadBlocks: 2, NumCaches: 2, NumCacheBlocks: 2}
		dec := &rampDecoder{totalFrames: 100000, channels: 1, failAt: -1}
		s, err := Open("fake.wav", dec, 0, opts)
		if err != nil {
			rt.Fatal(err)
		}
		defer s.Close()

		total := opts.totalBlocks()
		steps := rapid.IntRange(1, 30).Draw(rt, "steps")

		for i := 0; i < steps; i++ {
			action := rapid.SampledFrom([]string{"seek", "cache", "read", "isready"}).Draw(rt, "action")
			switch action {
			case "seek":
				frame := rapid.Int64Range(0, 99000).Draw(rt, "frame")
				s.Seek(frame, Auto)
			case "cache":
				idx := rapid.IntRange(0, opts.NumCaches-1).Draw(rt, "cache_index")
				frame := rapid.Int64Range(0, 99000).Draw(rt, "cache_frame")
				s.Cache(idx, frame)
			case "read":
				n := rapid.IntRange(0, opts.BlockLen*2).Draw(rt, "n")
				s.Read(n)
			case "isready":
				s.IsReady()
			}

			if got := countAllBlocks(s); got > total {
				rt.Fatalf("resident block count %d exceeds construction population %d", got, total)
			}
		}

		// Give the in-memory decoder goroutine a moment to drain any
		// outstanding in-flight requests, fold the responses back in, and
		// check the same upper bound once more.
		time.Sleep(10 * time.Millisecond)
		for i := 0; i < 50; i++ {
			s.IsReady()
		}
		if got := countAllBlocks(s); got > total {
			rt.Fatalf("resident block count %d exceeds construction population %d after drain", got, total)
		}
	})
}
