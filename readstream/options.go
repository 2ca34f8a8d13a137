package readstream

// Options configures the pool sizing and prefetch shape of a read Stream,
// per spec.md section 4.3. BlockLen is fixed for the stream's lifetime.
type Options struct {
	BlockLen           int
	NumLookAheadBlocks int
	NumCaches          int
	NumCacheBlocks     int
}

// DefaultOptions mirrors the sizes used in spec.md's worked examples.
func DefaultOptions() Options {
	return Options{
		BlockLen:           16384,
		NumLookAheadBlocks: 4,
		NumCaches:          2,
		NumCacheBlocks:     4,
	}
}

func (o Options) validate() error {
	if o.BlockLen <= 0 {
		return invalidArg("BlockLen must be positive, got %d", o.BlockLen)
	}
	if o.NumLookAheadBlocks <= 0 {
		return invalidArg("NumLookAheadBlocks must be positive, got %d", o.NumLookAheadBlocks)
	}
	if o.NumCaches < 0 {
		return invalidArg("NumCaches must be non-negative, got %d", o.NumCaches)
	}
	if o.NumCaches > 0 && o.NumCacheBlocks <= 0 {
		return invalidArg("NumCacheBlocks must be positive when NumCaches > 0, got %d", o.NumCacheBlocks)
	}
	return nil
}

// totalBlocks returns the heap pool population required by the invariant
// in spec.md section 3: lookahead + caches + in-flight slots. In-flight
// capacity is sized to cover one outstanding request per ring slot plus
// one per cache block, so every block the client ever relinquishes has a
// guaranteed home in the response queue.
func (o Options) totalBlocks() int {
	inFlight := o.NumLookAheadBlocks + o.NumCaches*o.NumCacheBlocks
	return o.NumLookAheadBlocks + o.NumCaches*o.NumCacheBlocks + inFlight
}
