package ioengine

import (
	"errors"
	"testing"
	"time"

	"github.com/drgolem/go-audiostream/audioblock"
	"github.com/drgolem/go-audiostream/spsc"
	"github.com/drgolem/go-audiostream/streamerr"
)

// fakeDecoder decodes a deterministic ramp signal so tests can check
// content without needing a real codec.
type fakeDecoder struct {
	channels    int
	failAtFrame int64
}

func (d *fakeDecoder) Open(path string, startFrame int64) (int64, int, int, error) {
	return 0, d.channels, 44100, nil
}

func (d *fakeDecoder) Decode(startFrame int64, dest *audioblock.Block) (int, error) {
	if d.failAtFrame >= 0 && startFrame == d.failAtFrame {
		return 0, errors.New("synthetic decode failure")
	}
	for ch := 0; ch < dest.NumChannels(); ch++ {
		for i := 0; i < dest.Len; i++ {
			dest.Channels[ch][i] = float32(startFrame + int64(i))
		}
	}
	dest.Valid = dest.Len
	return dest.Len, nil
}

func (d *fakeDecoder) SeekHint(frame int64) {}
func (d *fakeDecoder) Close() error         { return nil }

func popWithTimeout(t *testing.T, q *spsc.Queue[Response], timeout time.Duration) Response {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r, ok := q.Pop(); ok {
			return r
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for response")
	return Response{}
}

func TestServerReadIntoFillsBlockAndEchoesEpoch(t *testing.T) {
	toServer := spsc.New[Job](8)
	fromServer := spsc.New[Response](8)
	pool := audioblock.NewPool(4, 2, 8)

	srv := NewReadServer(&fakeDecoder{channels: 2, failAtFrame: -1}, 1000, toServer, fromServer)
	go srv.Run()

	b := pool.Take()
	toServer.Push(Job{Kind: JobReadInto, Epoch: 7, StartFrame: 16, Block: b})

	resp := popWithTimeout(t, fromServer, time.Second)
	if resp.Kind != RespSlotFilled {
		t.Fatalf("Kind = %v, want RespSlotFilled", resp.Kind)
	}
	if resp.Epoch != 7 {
		t.Fatalf("Epoch = %d, want 7", resp.Epoch)
	}
	if resp.Block.Channels[0][0] != 16 {
		t.Fatalf("decoded content wrong: got %v, want 16", resp.Block.Channels[0][0])
	}

	toServer.Push(Job{Kind: JobShutdown})
	srv.Shutdown()
}

func TestServerEOFZeroFills(t *testing.T) {
	toServer := spsc.New[Job](8)
	fromServer := spsc.New[Response](8)
	pool := audioblock.NewPool(1, 1, 4)

	srv := NewReadServer(&fakeDecoder{channels: 1, failAtFrame: -1}, 10, toServer, fromServer)
	go srv.Run()

	b := pool.Take()
	b.Channels[0][0] = 42 // stale data that must be cleared
	toServer.Push(Job{Kind: JobReadInto, StartFrame: 20, Block: b})

	resp := popWithTimeout(t, fromServer, time.Second)
	if resp.ValidFrames != 0 {
		t.Fatalf("ValidFrames = %d, want 0 past EOF", resp.ValidFrames)
	}
	if resp.Block.Channels[0][0] != 0 {
		t.Fatalf("block not cleared past EOF")
	}

	toServer.Push(Job{Kind: JobShutdown})
	srv.Shutdown()
}

func TestServerLatchesFatalErrorForSubsequentRequests(t *testing.T) {
	toServer := spsc.New[Job](8)
	fromServer := spsc.New[Response](8)
	pool := audioblock.NewPool(2, 1, 4)

	srv := NewReadServer(&fakeDecoder{channels: 1, failAtFrame: 100}, 1000, toServer, fromServer)
	go srv.Run()

	toServer.Push(Job{Kind: JobReadInto, Epoch: 1, StartFrame: 100, Block: pool.Take()})
	r1 := popWithTimeout(t, fromServer, time.Second)
	if r1.Kind != RespFatalError {
		t.Fatalf("Kind = %v, want RespFatalError", r1.Kind)
	}
	var decErr *streamerr.DecodeError
	if !errors.As(r1.Err, &decErr) {
		t.Fatalf("Err = %v, want *streamerr.DecodeError", r1.Err)
	}

	// A later, unrelated request must also see the latched error.
	toServer.Push(Job{Kind: JobReadInto, Epoch: 2, StartFrame: 0, Block: pool.Take()})
	r2 := popWithTimeout(t, fromServer, time.Second)
	if r2.Kind != RespFatalError {
		t.Fatalf("second Kind = %v, want RespFatalError", r2.Kind)
	}

	toServer.Push(Job{Kind: JobShutdown})
	srv.Shutdown()
}
