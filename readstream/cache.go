package readstream

import "github.com/drgolem/go-audiostream/audioblock"

// cacheState is one of Empty/Loading/Loaded as named in spec.md section 3.
type cacheState int

const (
	cacheEmpty cacheState = iota
	cacheLoading
	cacheLoaded
)

// cacheSlot is one of the stream's fixed-capacity, user-addressable cache
// entries. generation is bumped every time Cache() reassigns this slot, so
// responses from a superseded load can be told apart from a fresh one even
// though both might share the stream's current seek epoch.
type cacheSlot struct {
	state      cacheState
	start      int64
	blocks     []*audioblock.Block
	valid      []int
	filled     []bool
	generation uint64
}

func newCacheSlots(numCaches, numCacheBlocks int) []cacheSlot {
	slots := make([]cacheSlot, numCaches)
	for i := range slots {
		slots[i] = cacheSlot{
			blocks: make([]*audioblock.Block, numCacheBlocks),
			valid:  make([]int, numCacheBlocks),
			filled: make([]bool, numCacheBlocks),
		}
	}
	return slots
}

// covers reports whether the slot, fully Loaded, contains frame.
func (c *cacheSlot) covers(frame int64, blockLen int) bool {
	if c.state != cacheLoaded {
		return false
	}
	end := c.start + int64(len(c.blocks))*int64(blockLen)
	return frame >= c.start && frame < end
}

// allFilled reports whether every block slot has arrived.
func (c *cacheSlot) allFilled() bool {
	for _, f := range c.filled {
		if !f {
			return false
		}
	}
	return true
}

func (c *cacheSlot) markLoadedIfComplete() {
	if c.allFilled() {
		c.state = cacheLoaded
	}
}

// blockIndexFor returns which block within the cache holds frame, and the
// offset of frame within that block.
func (c *cacheSlot) blockIndexFor(frame int64, blockLen int) (idx int, offset int) {
	rel := frame - c.start
	idx = int(rel / int64(blockLen))
	offset = int(rel % int64(blockLen))
	return idx, offset
}

// remainingFrames is how many frames are left in the cache from frame
// onward, assuming frame is covered.
func (c *cacheSlot) remainingFrames(frame int64, blockLen int) int64 {
	end := c.start + int64(len(c.blocks))*int64(blockLen)
	return end - frame
}
