// Package audioblock provides the fixed-size per-channel sample buffers
// that circulate between the realtime client and the IO server, and the
// heap pool that owns them.
package audioblock

// Block is a fixed-length run of frames stored as one contiguous []float32
// per channel. Len is the block's capacity in frames; Valid is the number
// of frames at the front of the block that hold real samples (the
// remainder, if any, is silence — used for EOF and pre-roll padding).
type Block struct {
	Channels [][]float32
	Len      int
	Valid    int
}

func newBlock(numChannels, blockLen int) *Block {
	b := &Block{
		Channels: make([][]float32, numChannels),
		Len:      blockLen,
	}
	for ch := range b.Channels {
		b.Channels[ch] = make([]float32, blockLen)
	}
	return b
}

// Clear zeroes the block and marks it fully silent. Called by the IO server
// for a read request that starts at or past end of file, so a recycled
// block never carries stale samples into the silent region.
func (b *Block) Clear() {
	for ch := range b.Channels {
		row := b.Channels[ch]
		for i := range row {
			row[i] = 0
		}
	}
	b.Valid = 0
}

// NumChannels reports the channel count the block was allocated for.
func (b *Block) NumChannels() int {
	return len(b.Channels)
}
