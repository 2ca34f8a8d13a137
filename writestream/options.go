package writestream

// Options configures a write Stream's block recycling pool, per spec.md
// section 4.4.
type Options struct {
	BlockLen       int
	NumWriteBlocks int
}

// DefaultOptions gives the in-progress block plus a handful of blocks in
// flight to the encoder at once.
func DefaultOptions() Options {
	return Options{BlockLen: 16384, NumWriteBlocks: 4}
}

func (o Options) validate() error {
	if o.BlockLen <= 0 {
		return invalidArg("BlockLen must be positive, got %d", o.BlockLen)
	}
	if o.NumWriteBlocks <= 0 {
		return invalidArg("NumWriteBlocks must be positive, got %d", o.NumWriteBlocks)
	}
	return nil
}
