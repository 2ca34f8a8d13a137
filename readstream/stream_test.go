package readstream

import (
	"errors"
	"testing"
	"time"

	"github.com/drgolem/go-audiostream/audioblock"
	"github.com/drgolem/go-audiostream/streamerr"
	"github.com/stretchr/testify/require"
)

// rampDecoder is a deterministic fake codec.Decoder: channel 0, frame f
// decodes to float32(f) (mod nothing — exact, so tests can assert content).
type rampDecoder struct {
	totalFrames int64
	channels    int
	failAt      int64
}

func (d *rampDecoder) Open(path string, startFrame int64) (int64, int, int, error) {
	return d.totalFrames, d.channels, 44100, nil
}

func (d *rampDecoder) Decode(startFrame int64, dest *audioblock.Block) (int, error) {
	if d.failAt >= 0 && startFrame >= d.failAt {
		return 0, errors.New("synthetic decode failure")
	}
	filled := dest.Len
	if startFrame+int64(filled) > d.totalFrames {
		filled = int(d.totalFrames - startFrame)
		if filled < 0 {
			filled = 0
		}
	}
	for ch := 0; ch < dest.NumChannels(); ch++ {
		row := dest.Channels[ch]
		for i := 0; i < filled; i++ {
			row[i] = float32(startFrame + int64(i))
		}
		for i := filled; i < dest.Len; i++ {
			row[i] = 0
		}
	}
	dest.Valid = filled
	return filled, nil
}

func (d *rampDecoder) SeekHint(frame int64) {}
func (d *rampDecoder) Close() error         { return nil }

func smallOpts() Options {
	return Options{BlockLen: 16, NumLookAheadBlocks: 3, NumCaches: 2, NumCacheBlocks: 2}
}

func waitReady(t *testing.T, s *Stream) {
	t.Helper()
	require.NoError(t, s.BlockUntilReady())
}

func TestReadFromStartMatchesSource(t *testing.T) {
	s, err := Open("fake.wav", &rampDecoder{totalFrames: 1000, channels: 2, failAt: -1}, 0, smallOpts())
	require.NoError(t, err)
	defer s.Close()

	waitReady(t, s)
	view, err := s.Read(10)
	require.NoError(t, err)
	require.Equal(t, 10, view.NumFrames)
	require.Equal(t, 10, view.ValidFrames)
	for i := 0; i < 10; i++ {
		require.Equal(t, float32(i), view.Channel(0)[i])
	}
}

func TestReadCrossesBlockBoundaryInTwoCalls(t *testing.T) {
	opts := smallOpts()
	s, err := Open("fake.wav", &rampDecoder{totalFrames: 1000, channels: 1, failAt: -1}, 0, opts)
	require.NoError(t, err)
	defer s.Close()
	waitReady(t, s)

	v1, err := s.Read(opts.BlockLen + 5)
	require.NoError(t, err)
	require.Equal(t, opts.BlockLen, v1.NumFrames, "first read must stop at block boundary")

	// Second call may need the server to have already delivered the next
	// block; poll briefly.
	deadline := time.Now().Add(time.Second)
	var v2 View
	for time.Now().Before(deadline) {
		v2, err = s.Read(5)
		if err == nil {
			break
		}
		if !errors.Is(err, streamerr.ErrBuffering) {
			t.Fatalf("unexpected error: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, err)
	require.Equal(t, 5, v2.NumFrames)
	require.Equal(t, float32(opts.BlockLen), v2.Channel(0)[0])
}

func TestCacheThenSeekIsImmediatelyReadyAndReadsCorrectFrames(t *testing.T) {
	opts := smallOpts()
	s, err := Open("fake.wav", &rampDecoder{totalFrames: 10000, channels: 1, failAt: -1}, 0, opts)
	require.NoError(t, err)
	defer s.Close()
	waitReady(t, s)

	require.NoError(t, s.Cache(0, 500))
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.IsReady() // drive response draining
		if s.caches[0].state == cacheLoaded {
			break
		}
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, cacheLoaded, s.caches[0].state)

	ready, err := s.Seek(520, Auto)
	require.NoError(t, err)
	require.True(t, ready, "seek into a loaded cache must be immediately ready")

	view, err := s.Read(8)
	require.NoError(t, err)
	require.Equal(t, float32(520), view.Channel(0)[0])
}

func TestSeekWithNoCoveringCacheBuffersThenBecomesReady(t *testing.T) {
	opts := smallOpts()
	s, err := Open("fake.wav", &rampDecoder{totalFrames: 1_000_000, channels: 1, failAt: -1}, 0, opts)
	require.NoError(t, err)
	defer s.Close()
	waitReady(t, s)

	ready, err := s.Seek(190000, Auto)
	require.NoError(t, err)
	require.False(t, ready)

	waitReady(t, s)
	view, err := s.Read(4)
	require.NoError(t, err)
	require.Equal(t, float32(190000), view.Channel(0)[0])
}

func TestSeekIsIdempotentWithoutInterveningState(t *testing.T) {
	opts := smallOpts()
	s, err := Open("fake.wav", &rampDecoder{totalFrames: 1_000_000, channels: 1, failAt: -1}, 0, opts)
	require.NoError(t, err)
	defer s.Close()
	waitReady(t, s)

	r1, err1 := s.Seek(12345, Auto)
	p1 := s.Playhead()
	r2, err2 := s.Seek(12345, Auto)
	p2 := s.Playhead()

	require.NoError(t, err1)
	require.NoError(t, err2)
	require.Equal(t, r1, r2)
	require.Equal(t, p1, p2)
}

func TestReadPastEOFReturnsSilenceWithTruthfulValidCount(t *testing.T) {
	opts := smallOpts()
	opts.BlockLen = 32 // one block spans end of file at frame 20
	s, err := Open("fake.wav", &rampDecoder{totalFrames: 20, channels: 1, failAt: -1}, 0, opts)
	require.NoError(t, err)
	defer s.Close()
	waitReady(t, s)

	view, err := s.Read(opts.BlockLen)
	require.NoError(t, err)
	require.Equal(t, 20, view.ValidFrames)
	for i := 20; i < opts.BlockLen; i++ {
		require.Equal(t, float32(0), view.Channel(0)[i])
	}
}

func TestDecodeErrorLatchesAndCloseSucceeds(t *testing.T) {
	opts := smallOpts()
	dec := &rampDecoder{totalFrames: 1_000_000, channels: 1, failAt: 0}
	s, err := Open("fake.wav", dec, 0, opts)
	require.NoError(t, err)

	var lastErr error
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		_, lastErr = s.IsReady()
		if lastErr != nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	require.Error(t, lastErr)
	var decErr *streamerr.DecodeError
	require.True(t, errors.As(lastErr, &decErr))

	// Every later call keeps surfacing the same latched error.
	_, err = s.Read(4)
	require.Error(t, err)

	require.NoError(t, s.Close())
}

func TestNumFramesZeroDoesNotAdvancePlayhead(t *testing.T) {
	opts := smallOpts()
	s, err := Open("fake.wav", &rampDecoder{totalFrames: 1000, channels: 1, failAt: -1}, 0, opts)
	require.NoError(t, err)
	defer s.Close()
	waitReady(t, s)

	before := s.Playhead()
	view, err := s.Read(0)
	require.NoError(t, err)
	require.Equal(t, 0, view.NumFrames)
	require.Equal(t, before, s.Playhead())
}
