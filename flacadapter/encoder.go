package flacadapter

import (
	"fmt"

	"github.com/drgolem/go-audiostream/audioblock"
	"github.com/drgolem/go-audiostream/flac"
)

// encodeBitDepth is the bit depth samples are quantized to before being
// handed to libFLAC's interleaved int32 encoder input.
const encodeBitDepth = 16

// Encoder adapts flac.FlacEncoder to codec.Encoder.
type Encoder struct {
	enc         *flac.FlacEncoder
	numChannels int
	scratch     []int32
}

// NewEncoder returns an Encoder that quantizes to 16-bit FLAC output, the
// teacher's own default bit depth for the interleaved path.
func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) Open(path string, numChannels, sampleRate int) error {
	enc, err := flac.NewFlacEncoder(sampleRate, numChannels, encodeBitDepth)
	if err != nil {
		return fmt.Errorf("flacadapter: %w", err)
	}
	if err := enc.InitFile(path); err != nil {
		return fmt.Errorf("flacadapter: init %q: %w", path, err)
	}
	e.enc = enc
	e.numChannels = numChannels
	return nil
}

func (e *Encoder) Encode(block *audioblock.Block, validFrames int) error {
	if validFrames == 0 {
		return nil
	}
	need := validFrames * e.numChannels
	if cap(e.scratch) < need {
		e.scratch = make([]int32, need)
	}
	interleaved := e.scratch[:need]

	scale := float32(int32(1) << (encodeBitDepth - 1))
	idx := 0
	for i := 0; i < validFrames; i++ {
		for ch := 0; ch < block.NumChannels(); ch++ {
			v := block.Channels[ch][i]
			interleaved[idx] = int32(clampFloat(v, -1, 1) * scale)
			idx++
		}
	}

	if err := e.enc.ProcessInterleaved(interleaved, validFrames); err != nil {
		return fmt.Errorf("flacadapter: encode: %w", err)
	}
	return nil
}

func (e *Encoder) Finish() error {
	if e.enc == nil {
		return nil
	}
	err := e.enc.Finish()
	e.enc.Close()
	e.enc = nil
	if err != nil {
		return fmt.Errorf("flacadapter: finish: %w", err)
	}
	return nil
}

func clampFloat(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
