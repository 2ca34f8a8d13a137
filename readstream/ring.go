package readstream

import "github.com/drgolem/go-audiostream/audioblock"

// ringSlot is one position of the lookahead ring: the block that will
// start at startFrame once it arrives, or nil while in flight / unfilled.
type ringSlot struct {
	block      *audioblock.Block
	startFrame int64
	valid      int
	filled     bool
}

// lookaheadRing is the ordered sequence of NumLookAheadBlocks slots
// described in spec.md section 3: slot i always corresponds to file frame
// range [frontFrame + i*blockLen, frontFrame + (i+1)*blockLen).
type lookaheadRing struct {
	slots     []ringSlot
	front     int   // index of the slot currently at the playhead-aligned front
	frontFrom int64 // frame at which slots[front] starts
	blockLen  int
}

func newLookaheadRing(n, blockLen int) *lookaheadRing {
	return &lookaheadRing{
		slots:    make([]ringSlot, n),
		blockLen: blockLen,
	}
}

func (r *lookaheadRing) len() int { return len(r.slots) }

// resetTo discards all ring content (the caller is responsible for
// returning any filled blocks to the pool first) and repositions the ring
// so slot 0 starts at frame.
func (r *lookaheadRing) resetTo(frame int64) {
	for i := range r.slots {
		r.slots[i] = ringSlot{}
	}
	r.front = 0
	r.frontFrom = frame
}

// slotFrame returns the file frame that ring position i (0 == front)
// starts at.
func (r *lookaheadRing) slotFrame(i int) int64 {
	return r.frontFrom + int64(i)*int64(r.blockLen)
}

func (r *lookaheadRing) at(i int) *ringSlot {
	idx := (r.front + i) % len(r.slots)
	return &r.slots[idx]
}

// nextFrameAfterBack is the frame that would be requested next when the
// ring advances — i.e. one block length past the current back slot.
func (r *lookaheadRing) nextFrameAfterBack() int64 {
	return r.frontFrom + int64(len(r.slots))*int64(r.blockLen)
}

// advance recycles the front slot (caller must have already consumed it
// and reclaimed its block) and slides the window forward by one block.
func (r *lookaheadRing) advance() {
	r.slots[r.front] = ringSlot{}
	r.front = (r.front + 1) % len(r.slots)
	r.frontFrom += int64(r.blockLen)
}

// front0 returns a pointer to the slot currently aligned with the front of
// the window (the one the playhead should be inside once filled).
func (r *lookaheadRing) front0() *ringSlot {
	return &r.slots[r.front]
}
