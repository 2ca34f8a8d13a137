// Package writestream implements the realtime-side write client: the
// in-progress block, the recycled-block pool, and the wait-free Write
// surface described in spec.md section 4.4.
package writestream

import (
	"log/slog"

	"github.com/drgolem/go-audiostream/audioblock"
	"github.com/drgolem/go-audiostream/codec"
	"github.com/drgolem/go-audiostream/ioengine"
	"github.com/drgolem/go-audiostream/spsc"
	"github.com/drgolem/go-audiostream/streamerr"
)

// Stream is the realtime-side write client. Write is wait-free and
// allocation-free once constructed; FinishAndClose is non-realtime (it
// joins the IO server goroutine).
type Stream struct {
	opts        Options
	numChannels int

	pool       *audioblock.Pool
	toServer   *spsc.Queue[ioengine.Job]
	fromServer *spsc.Queue[ioengine.Response]
	server     *ioengine.Server

	current    *audioblock.Block
	currentLen int

	latched error
}

// Create opens path via enc, pre-allocates the write pool and spawns the
// IO server.
func Create(path string, enc codec.Encoder, numChannels, sampleRate int, opts Options) (*Stream, error) {
	if numChannels <= 0 {
		return nil, invalidArg("numChannels must be positive, got %d", numChannels)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := enc.Open(path, numChannels, sampleRate); err != nil {
		return nil, &streamerr.OpenError{Path: path, Err: err}
	}

	queueCap := ioengine.QueueCapacityFor(opts.NumWriteBlocks)
	toServer := spsc.New[ioengine.Job](queueCap)
	fromServer := spsc.New[ioengine.Response](queueCap)
	srv := ioengine.NewWriteServer(enc, toServer, fromServer)

	s := &Stream{
		opts:        opts,
		numChannels: numChannels,
		pool:        audioblock.NewPool(opts.NumWriteBlocks, numChannels, opts.BlockLen),
		toServer:    toServer,
		fromServer:  fromServer,
		server:      srv,
	}
	go srv.Run()

	slog.Debug("write stream created", "path", path, "channels", numChannels, "sample_rate", sampleRate)
	return s, nil
}

// Write copies numFrames = len(channels[0]) frames (one slice per channel,
// all equal length) into the in-progress block, posting it to the IO
// server whenever it fills. It never blocks: if the server has fallen
// behind and no free block is available, it returns ErrPoolExhausted
// immediately so the realtime caller can report an underrun.
func (s *Stream) Write(channels [][]float32) error {
	if s.latched != nil {
		return s.latched
	}
	if len(channels) != s.numChannels {
		return invalidArg("channel count mismatch: got %d, want %d", len(channels), s.numChannels)
	}
	if len(channels) == 0 {
		return nil
	}
	n := len(channels[0])
	for _, c := range channels[1:] {
		if len(c) != n {
			return invalidArg("channel slices must all have equal length")
		}
	}

	s.drainResponses()
	if s.latched != nil {
		return s.latched
	}

	written := 0
	for written < n {
		if s.current != nil && s.currentLen == s.opts.BlockLen {
			if !s.flushCurrent() {
				return streamerr.ErrPoolExhausted
			}
		}
		if s.current == nil {
			b := s.pool.Take()
			if b == nil {
				return streamerr.ErrPoolExhausted
			}
			s.current = b
			s.currentLen = 0
		}

		room := s.opts.BlockLen - s.currentLen
		take := n - written
		if take > room {
			take = room
		}
		for ch := 0; ch < s.numChannels; ch++ {
			copy(s.current.Channels[ch][s.currentLen:s.currentLen+take], channels[ch][written:written+take])
		}
		s.currentLen += take
		written += take
	}

	if s.current != nil && s.currentLen == s.opts.BlockLen {
		s.flushCurrent()
	}
	return nil
}

// flushCurrent posts the in-progress block if the server has queue room,
// and only then clears it. Failing to clear on a full queue lets the next
// Write retry the flush instead of silently overwriting unposted samples.
func (s *Stream) flushCurrent() bool {
	ok := s.toServer.Push(ioengine.Job{Kind: ioengine.JobWriteBlock, Block: s.current, ValidFrames: s.currentLen})
	if ok {
		s.current = nil
		s.currentLen = 0
	}
	return ok
}

func (s *Stream) drainResponses() {
	for {
		resp, ok := s.fromServer.Pop()
		if !ok {
			return
		}
		if resp.Kind == ioengine.RespFatalError {
			s.latched = resp.Err
		}
		if resp.Block != nil {
			s.pool.Return(resp.Block)
		}
	}
}

// FinishAndClose flushes any partial block, finalizes the output file and
// joins the IO server goroutine. Non-realtime.
func (s *Stream) FinishAndClose() error {
	if s.current != nil && s.currentLen > 0 {
		for !s.toServer.Push(ioengine.Job{Kind: ioengine.JobWriteBlock, Block: s.current, ValidFrames: s.currentLen}) {
			s.drainResponses()
		}
		s.current = nil
		s.currentLen = 0
	}
	s.toServer.Push(ioengine.Job{Kind: ioengine.JobFinishAndClose})
	s.server.Shutdown()

	var result error
	for {
		resp, ok := s.fromServer.Pop()
		if !ok {
			break
		}
		if resp.Block != nil {
			s.pool.Return(resp.Block)
		}
		if resp.Kind == ioengine.RespClosed || resp.Kind == ioengine.RespFatalError {
			if resp.Err != nil {
				result = resp.Err
			}
		}
	}
	if s.latched != nil {
		return s.latched
	}
	return result
}
