package audioblock

// Pool is a pre-allocated set of data blocks. No allocation happens after
// NewPool returns: Take and Return are O(1) slice operations.
//
// Pool is owned exclusively by the realtime client goroutine — the IO
// server never reaches into it directly, it only ever receives and returns
// blocks the client has already taken out. That single-owner rule is what
// lets Take/Return skip locks and atomics entirely while still satisfying
// spec.md's "non-blocking, constant time" requirement.
type Pool struct {
	free []*Block
	size int
}

// NewPool pre-allocates numBlocks blocks, each sized for numChannels
// channels of blockLen frames, and returns a pool holding all of them.
func NewPool(numBlocks, numChannels, blockLen int) *Pool {
	p := &Pool{
		free: make([]*Block, 0, numBlocks),
		size: numBlocks,
	}
	for i := 0; i < numBlocks; i++ {
		p.free = append(p.free, newBlock(numChannels, blockLen))
	}
	return p
}

// Take removes and returns a free block, or nil if the pool is exhausted.
func (p *Pool) Take() *Block {
	n := len(p.free)
	if n == 0 {
		return nil
	}
	b := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	return b
}

// Return puts a block back on the free list. The caller must not retain
// any reference to b afterward.
func (p *Pool) Return(b *Block) {
	if b == nil {
		return
	}
	p.free = append(p.free, b)
}

// Len reports the number of blocks currently free. Exposed for tests that
// check the construction-time population invariant.
func (p *Pool) Len() int {
	return len(p.free)
}

// Size is the construction-time population of the pool.
func (p *Pool) Size() int {
	return p.size
}
