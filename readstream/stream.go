// Package readstream implements the realtime-side read client: the
// lookahead prefetch ring, the fixed-capacity cache set, seek/epoch
// invalidation, and the wait-free Read/IsReady surface described in
// spec.md section 4.3.
package readstream

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/drgolem/go-audiostream/audioblock"
	"github.com/drgolem/go-audiostream/codec"
	"github.com/drgolem/go-audiostream/ioengine"
	"github.com/drgolem/go-audiostream/spsc"
	"github.com/drgolem/go-audiostream/streamerr"
)

// Mode selects whether Seek also sends the decoder a best-effort
// repositioning hint.
type Mode int

const (
	Auto Mode = iota
	NoHint
)

// Info describes the stream's fixed format, reported by Info().
type Info struct {
	TotalFrames int64
	NumChannels int
	SampleRate  int
	BlockLen    int
}

// View is a borrowed, zero-copy window into at most one block's worth of
// frames. It is only valid until the next call to Read on the same Stream.
type View struct {
	NumFrames int
	// ValidFrames is how many of NumFrames are real decoded samples; the
	// rest (NumFrames-ValidFrames) are silence, either trailing EOF
	// padding or pre-roll from a not-yet-decoded tail of a block that
	// still satisfied IsReady.
	ValidFrames int
	chans       [][]float32
}

func (v View) NumChannels() int           { return len(v.chans) }
func (v View) Channel(ch int) []float32   { return v.chans[ch][:v.NumFrames] }

// Stream is the realtime-side read client. Read, Seek, Cache, IsReady and
// Playhead are wait-free and allocation-free once constructed; only
// BlockUntilReady may park, and it is documented non-realtime.
type Stream struct {
	opts Options

	pool       *audioblock.Pool
	toServer   *spsc.Queue[ioengine.Job]
	fromServer *spsc.Queue[ioengine.Response]
	server     *ioengine.Server

	info Info

	epoch    uint64
	playhead int64

	ring                *lookaheadRing
	caches              []cacheSlot
	activeCache         int
	ringPrimedForHandoff bool

	viewScratch [][]float32

	latched error
}

// Open opens path via dec, builds the heap pool and spawns the IO server,
// and primes the lookahead ring starting at startFrame.
func Open(path string, dec codec.Decoder, startFrame int64, opts Options) (*Stream, error) {
	if startFrame < 0 {
		return nil, invalidArg("startFrame must be non-negative, got %d", startFrame)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	totalFrames, numChannels, sampleRate, err := dec.Open(path, startFrame)
	if err != nil {
		return nil, &streamerr.OpenError{Path: path, Err: err}
	}

	queueCap := ioengine.QueueCapacityFor(opts.totalBlocks())
	toServer := spsc.New[ioengine.Job](queueCap)
	fromServer := spsc.New[ioengine.Response](queueCap)
	srv := ioengine.NewReadServer(dec, totalFrames, toServer, fromServer)

	s := &Stream{
		opts:        opts,
		pool:        audioblock.NewPool(opts.totalBlocks(), numChannels, opts.BlockLen),
		toServer:    toServer,
		fromServer:  fromServer,
		server:      srv,
		info:        Info{TotalFrames: totalFrames, NumChannels: numChannels, SampleRate: sampleRate, BlockLen: opts.BlockLen},
		playhead:    startFrame,
		ring:        newLookaheadRing(opts.NumLookAheadBlocks, opts.BlockLen),
		caches:      newCacheSlots(opts.NumCaches, opts.NumCacheBlocks),
		activeCache: -1,
		viewScratch: make([][]float32, numChannels),
	}

	go srv.Run()

	s.ring.resetTo(alignDown(startFrame, opts.BlockLen))
	for i := 0; i < s.ring.len(); i++ {
		s.requestRingSlot(i)
	}

	slog.Debug("read stream opened", "path", path, "total_frames", totalFrames,
		"channels", numChannels, "sample_rate", sampleRate, "start_frame", startFrame)

	return s, nil
}

// Info reports the stream's fixed format.
func (s *Stream) Info() Info { return s.info }

// Playhead reports the next frame Read will return.
func (s *Stream) Playhead() int64 { return s.playhead }

// Cache marks cache slot index as Loading for the range starting at
// startFrame and posts the fill requests. It returns immediately without
// waiting for any of them to complete.
func (s *Stream) Cache(index int, startFrame int64) error {
	if index < 0 || index >= len(s.caches) {
		return invalidArg("cache index %d out of range [0,%d)", index, len(s.caches))
	}
	if startFrame < 0 {
		return invalidArg("startFrame must be non-negative, got %d", startFrame)
	}

	c := &s.caches[index]
	for i, b := range c.blocks {
		if c.filled[i] && b != nil {
			s.pool.Return(b)
		}
		c.blocks[i] = nil
		c.filled[i] = false
		c.valid[i] = 0
	}
	c.generation++
	c.state = cacheLoading
	c.start = startFrame

	for i := range c.blocks {
		frame := startFrame + int64(i)*int64(s.opts.BlockLen)
		b := s.pool.Take()
		if b == nil {
			// Pool sizing (Options.totalBlocks) guarantees enough blocks to
			// cover every cache plus the ring plus in-flight; reaching
			// this means a caller issued overlapping Cache calls faster
			// than the server could return blocks. Leave the slot unfilled
			// — it simply won't reach Loaded until stale blocks return.
			continue
		}
		s.toServer.Push(ioengine.Job{
			Kind:       ioengine.JobReadInto,
			Epoch:      s.epoch,
			StartFrame: frame,
			Dest:       ioengine.Dest{Kind: ioengine.DestCache, CacheIndex: index, Generation: c.generation},
			Block:      b,
		})
	}
	return nil
}

// Seek repositions the playhead. If a Loaded cache fully covers frame, the
// lowest-indexed such cache becomes the active source and Seek returns
// ready immediately with no server round trip. Otherwise it resets the
// lookahead ring to the block-aligned position at frame and returns
// buffering; the caller should poll IsReady.
func (s *Stream) Seek(frame int64, mode Mode) (ready bool, err error) {
	if frame < 0 {
		return false, invalidArg("frame must be non-negative, got %d", frame)
	}
	s.epoch++
	s.ringPrimedForHandoff = false

	if idx, ok := s.findCoveringCache(frame); ok {
		s.releaseRing()
		s.activeCache = idx
		s.playhead = frame
		return true, nil
	}

	s.activeCache = -1
	s.releaseRing()
	s.ring.resetTo(alignDown(frame, s.opts.BlockLen))
	for i := 0; i < s.ring.len(); i++ {
		s.requestRingSlot(i)
	}
	if mode == Auto {
		s.toServer.Push(ioengine.Job{Kind: ioengine.JobSeekHint, Epoch: s.epoch, StartFrame: frame})
	}
	s.playhead = frame
	return false, nil
}

// findCoveringCache returns the lowest-indexed Loaded cache that fully
// covers frame. A cache whose load is only partially complete is treated
// as not matching even if frame falls in its declared range.
func (s *Stream) findCoveringCache(frame int64) (int, bool) {
	for i := range s.caches {
		if s.caches[i].covers(frame, s.opts.BlockLen) {
			return i, true
		}
	}
	return -1, false
}

// IsReady drains pending responses (bounded work proportional to queue
// depth) and reports whether the block containing the playhead is present
// in the active source.
func (s *Stream) IsReady() (bool, error) {
	if s.latched != nil {
		return false, s.latched
	}
	s.drainResponses()
	if s.latched != nil {
		return false, s.latched
	}
	return s.playheadReady(), nil
}

// BlockUntilReady parks the calling goroutine until IsReady is true or a
// fatal error is latched. Not realtime-safe; documented for non-realtime
// callers only (spec.md section 4.3/5).
func (s *Stream) BlockUntilReady() error {
	for {
		ready, err := s.IsReady()
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
		runtime.Gosched()
		time.Sleep(time.Millisecond)
	}
}

// Read returns a borrowed view of at most num_frames contiguous samples
// from the current source and advances the playhead by the number of
// frames returned. The returned View aliases a block owned by the stream
// and is only valid until the next Read call.
func (s *Stream) Read(numFrames int) (View, error) {
	if s.latched != nil {
		return View{}, s.latched
	}
	if numFrames <= 0 {
		return View{}, nil
	}

	if s.activeCache >= 0 {
		c := &s.caches[s.activeCache]
		if !c.covers(s.playhead, s.opts.BlockLen) {
			s.activeCache = -1
			s.ringPrimedForHandoff = false
		} else {
			return s.readFromCache(c, numFrames), nil
		}
	}

	return s.readFromRing(numFrames)
}

func (s *Stream) readFromCache(c *cacheSlot, numFrames int) View {
	idx, offset := c.blockIndexFor(s.playhead, s.opts.BlockLen)
	avail := s.opts.BlockLen - offset
	if avail > numFrames {
		avail = numFrames
	}
	view := s.buildView(c.blocks[idx], offset, avail)
	s.playhead += int64(avail)
	s.maybeHandoffFromCache(c)
	return view
}

func (s *Stream) readFromRing(numFrames int) (View, error) {
	front := s.ring.front0()
	if !front.filled || s.playhead < s.ring.frontFrom || s.playhead >= s.ring.frontFrom+int64(s.opts.BlockLen) {
		return View{}, streamerr.ErrBuffering
	}

	offset := int(s.playhead - s.ring.frontFrom)
	avail := s.opts.BlockLen - offset
	if avail > numFrames {
		avail = numFrames
	}
	view := s.buildView(front.block, offset, avail)
	s.playhead += int64(avail)

	if offset+avail >= s.opts.BlockLen {
		s.pool.Return(front.block)
		s.ring.advance()
		s.requestRingSlot(s.ring.len() - 1)
	}
	return view, nil
}

// maybeHandoffFromCache begins prefetching the region past the active
// cache into the lookahead ring once the remaining cached frames fall
// below one ring's worth, so the transition out of the cache is seamless.
func (s *Stream) maybeHandoffFromCache(c *cacheSlot) {
	if s.ringPrimedForHandoff {
		return
	}
	remaining := c.remainingFrames(s.playhead, s.opts.BlockLen)
	threshold := int64(s.opts.NumLookAheadBlocks) * int64(s.opts.BlockLen)
	if remaining >= threshold {
		return
	}
	cacheEnd := c.start + int64(len(c.blocks))*int64(s.opts.BlockLen)
	s.releaseRing()
	s.ring.resetTo(cacheEnd)
	for i := 0; i < s.ring.len(); i++ {
		s.requestRingSlot(i)
	}
	s.ringPrimedForHandoff = true
}

func (s *Stream) buildView(b *audioblock.Block, offset, n int) View {
	for ch := range b.Channels {
		s.viewScratch[ch] = b.Channels[ch][offset : offset+n]
	}
	valid := b.Valid - offset
	if valid < 0 {
		valid = 0
	}
	if valid > n {
		valid = n
	}
	return View{NumFrames: n, ValidFrames: valid, chans: s.viewScratch}
}

func (s *Stream) requestRingSlot(i int) {
	frame := s.ring.slotFrame(i)
	b := s.pool.Take()
	if b == nil {
		return
	}
	s.toServer.Push(ioengine.Job{
		Kind:       ioengine.JobReadInto,
		Epoch:      s.epoch,
		StartFrame: frame,
		Dest:       ioengine.Dest{Kind: ioengine.DestRing},
		Block:      b,
	})
}

// releaseRing returns every currently-filled ring block to the pool and
// clears the ring's slots. In-flight (not yet filled) requests are not
// cancelled; their eventual stale responses are discarded by drainResponses.
func (s *Stream) releaseRing() {
	for i := range s.ring.slots {
		sl := &s.ring.slots[i]
		if sl.filled && sl.block != nil {
			s.pool.Return(sl.block)
		}
		*sl = ringSlot{}
	}
}

func (s *Stream) drainResponses() {
	for {
		resp, ok := s.fromServer.Pop()
		if !ok {
			return
		}
		s.handleResponse(resp)
	}
}

func (s *Stream) handleResponse(resp ioengine.Response) {
	if resp.Kind == ioengine.RespFatalError {
		s.latched = resp.Err
		if resp.Block != nil {
			s.pool.Return(resp.Block)
		}
		return
	}
	if resp.Kind != ioengine.RespSlotFilled {
		return
	}

	switch resp.Dest.Kind {
	case ioengine.DestRing:
		s.installRingResponse(resp)
	case ioengine.DestCache:
		s.installCacheResponse(resp)
	}
}

func (s *Stream) installRingResponse(resp ioengine.Response) {
	if resp.Epoch != s.epoch {
		s.pool.Return(resp.Block)
		return
	}
	idx := -1
	for i := 0; i < s.ring.len(); i++ {
		if s.ring.slotFrame(i) == resp.StartFrame {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.pool.Return(resp.Block)
		return
	}
	slot := s.ring.at(idx)
	if slot.filled && slot.block != nil {
		s.pool.Return(slot.block)
	}
	slot.block = resp.Block
	slot.startFrame = resp.StartFrame
	slot.valid = resp.ValidFrames
	slot.filled = true
}

func (s *Stream) installCacheResponse(resp ioengine.Response) {
	idx := resp.Dest.CacheIndex
	if idx < 0 || idx >= len(s.caches) {
		s.pool.Return(resp.Block)
		return
	}
	c := &s.caches[idx]
	if resp.Dest.Generation != c.generation {
		s.pool.Return(resp.Block)
		return
	}
	blockIdx, _ := c.blockIndexFor(resp.StartFrame, s.opts.BlockLen)
	if blockIdx < 0 || blockIdx >= len(c.blocks) {
		s.pool.Return(resp.Block)
		return
	}
	if c.filled[blockIdx] && c.blocks[blockIdx] != nil {
		s.pool.Return(c.blocks[blockIdx])
	}
	c.blocks[blockIdx] = resp.Block
	c.valid[blockIdx] = resp.ValidFrames
	c.filled[blockIdx] = true
	c.markLoadedIfComplete()
}

func (s *Stream) playheadReady() bool {
	if s.activeCache >= 0 {
		c := &s.caches[s.activeCache]
		return c.covers(s.playhead, s.opts.BlockLen)
	}
	front := s.ring.front0()
	return front.filled &&
		s.playhead >= s.ring.frontFrom &&
		s.playhead < s.ring.frontFrom+int64(s.opts.BlockLen)
}

// Close shuts down the IO server and joins its goroutine. Any blocks still
// in flight are abandoned; they never return to the pool, which is fine
// since the pool itself is being torn down with the stream.
func (s *Stream) Close() error {
	s.toServer.Push(ioengine.Job{Kind: ioengine.JobShutdown})
	s.server.Shutdown()
	return nil
}

func alignDown(frame int64, blockLen int) int64 {
	bl := int64(blockLen)
	return (frame / bl) * bl
}
