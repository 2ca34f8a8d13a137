package ioengine

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/drgolem/go-audiostream/codec"
	"github.com/drgolem/go-audiostream/spsc"
	"github.com/drgolem/go-audiostream/streamerr"
)

// idleBackoff is how long the server goroutine sleeps between polls of an
// empty inbound queue. The server is not realtime, so parking briefly here
// is fine; it just keeps the goroutine from busy-spinning a whole core.
const idleBackoff = 200 * time.Microsecond

// Server is the single non-realtime worker that owns a decoder or an
// encoder and all blocking file IO for exactly one stream. It runs on its
// own goroutine, started by the client constructor and stopped by a
// JobShutdown/JobFinishAndClose message.
type Server struct {
	dec codec.Decoder
	enc codec.Encoder

	toServer   *spsc.Queue[Job]
	fromServer *spsc.Queue[Response]

	totalFrames int64
	latched     error
	done        chan struct{}
}

// NewReadServer builds a server around an already-open decoder.
func NewReadServer(dec codec.Decoder, totalFrames int64, toServer *spsc.Queue[Job], fromServer *spsc.Queue[Response]) *Server {
	return &Server{
		dec:         dec,
		totalFrames: totalFrames,
		toServer:    toServer,
		fromServer:  fromServer,
		done:        make(chan struct{}),
	}
}

// NewWriteServer builds a server around an already-open encoder.
func NewWriteServer(enc codec.Encoder, toServer *spsc.Queue[Job], fromServer *spsc.Queue[Response]) *Server {
	return &Server{
		enc:        enc,
		toServer:   toServer,
		fromServer: fromServer,
		done:       make(chan struct{}),
	}
}

// Run is the server loop. Call it via `go server.Run()`.
func (s *Server) Run() {
	defer close(s.done)
	for {
		job, ok := s.toServer.Pop()
		if !ok {
			time.Sleep(idleBackoff)
			runtime.Gosched()
			continue
		}

		switch job.Kind {
		case JobShutdown:
			s.closeDecoder()
			return

		case JobFinishAndClose:
			result := s.finishEncoder()
			s.pushResponse(Response{Kind: RespClosed, Err: result})
			return

		case JobReadInto:
			s.handleReadInto(job)

		case JobSeekHint:
			if s.dec != nil {
				s.dec.SeekHint(job.StartFrame)
			}

		case JobWriteBlock:
			s.handleWriteBlock(job)
		}
	}
}

// Shutdown blocks (non-realtime caller only) until the server goroutine has
// exited after processing a JobShutdown/JobFinishAndClose message already
// posted to toServer.
func (s *Server) Shutdown() {
	<-s.done
}

func (s *Server) handleReadInto(job Job) {
	b := job.Block
	if s.latched != nil {
		s.pushResponse(Response{Kind: RespFatalError, Epoch: job.Epoch, Dest: job.Dest, StartFrame: job.StartFrame, Block: b, Err: s.latched})
		return
	}

	if job.StartFrame >= s.totalFrames {
		b.Clear()
		s.pushResponse(Response{Kind: RespSlotFilled, Epoch: job.Epoch, Dest: job.Dest, StartFrame: job.StartFrame, Block: b, ValidFrames: 0})
		return
	}

	filled, err := s.dec.Decode(job.StartFrame, b)
	if err != nil {
		de := &streamerr.DecodeError{StartFrame: job.StartFrame, Err: err}
		s.latched = de
		slog.Error("decode failed, latching error", "start_frame", job.StartFrame, "error", err)
		s.pushResponse(Response{Kind: RespFatalError, Epoch: job.Epoch, Dest: job.Dest, StartFrame: job.StartFrame, Block: b, Err: de})
		return
	}
	b.Valid = filled
	s.pushResponse(Response{Kind: RespSlotFilled, Epoch: job.Epoch, Dest: job.Dest, StartFrame: job.StartFrame, Block: b, ValidFrames: filled})
}

func (s *Server) handleWriteBlock(job Job) {
	if s.latched != nil {
		s.pushResponse(Response{Kind: RespFatalError, Block: job.Block, Err: s.latched})
		return
	}
	if err := s.enc.Encode(job.Block, job.ValidFrames); err != nil {
		ee := &streamerr.EncodeError{Err: err}
		s.latched = ee
		slog.Error("encode failed, latching error", "error", err)
		s.pushResponse(Response{Kind: RespFatalError, Block: job.Block, Err: ee})
		return
	}
	s.pushResponse(Response{Kind: RespBlockReturned, Block: job.Block})
}

func (s *Server) closeDecoder() {
	if s.dec == nil {
		return
	}
	if err := s.dec.Close(); err != nil {
		slog.Error("decoder close failed", "error", err)
	}
}

func (s *Server) finishEncoder() error {
	if s.enc == nil {
		return nil
	}
	if err := s.enc.Finish(); err != nil {
		return &streamerr.IoError{Err: err}
	}
	return nil
}

func (s *Server) pushResponse(r Response) {
	for !s.fromServer.Push(r) {
		// The from-server queue is sized to the outstanding in-flight
		// count by construction (see readstream/writestream Options), so
		// this should never spin for long; yield rather than drop a
		// message that carries block ownership.
		runtime.Gosched()
	}
}

// QueueCapacityFor returns the to-server/from-server queue capacity for a
// stream with numBlocksInFlight blocks; kept here since both clients need
// the same sizing rule.
func QueueCapacityFor(numBlocksInFlight int) int {
	if numBlocksInFlight < 1 {
		return 1
	}
	return numBlocksInFlight
}
