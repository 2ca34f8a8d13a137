// Package flacadapter wraps the cgo libFLAC bindings in package flac behind
// the codec.Decoder/codec.Encoder capability contracts, so the engine can
// stream FLAC files exactly the way it streams WAV.
package flacadapter

import (
	"fmt"
	"io"

	"github.com/drgolem/go-audiostream/audioblock"
	"github.com/drgolem/go-audiostream/flac"
)

// decodeBitDepth is the output bit depth requested from libFLAC; 24 bits
// covers every FLAC source bit depth (8/16/24) without any loss, short of
// requesting the full 32-bit path.
const decodeBitDepth = 24

// Decoder adapts flac.FlacDecoder to codec.Decoder. It owns a small
// interleaved scratch buffer for the PCM bytes libFLAC's ring buffer
// hands back, since codec.Decoder deals in per-channel float32 blocks.
type Decoder struct {
	dec         *flac.FlacDecoder
	numChannels int
	totalFrames int64
	scratch     []byte
}

// NewDecoder returns an unopened Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Open(path string, startFrame int64) (int64, int, int, error) {
	dec, err := flac.NewFlacFrameDecoder(decodeBitDepth)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("flacadapter: %w", err)
	}
	if err := dec.Open(path); err != nil {
		dec.Delete()
		return 0, 0, 0, fmt.Errorf("flacadapter: open %q: %w", path, err)
	}

	rate, channels, _ := dec.GetFormat()
	d.dec = dec
	d.numChannels = channels
	d.totalFrames = dec.TotalSamples()

	if startFrame > 0 {
		d.SeekHint(startFrame)
	}
	return d.totalFrames, channels, rate, nil
}

func (d *Decoder) Decode(startFrame int64, dest *audioblock.Block) (int, error) {
	if startFrame != d.dec.TellCurrentSample() {
		if _, err := d.dec.Seek(startFrame, io.SeekStart); err != nil {
			return 0, fmt.Errorf("flacadapter: seek to frame %d: %w", startFrame, err)
		}
	}

	bytesPerSample := decodeBitDepth / 8
	need := dest.Len * d.numChannels * bytesPerSample
	if cap(d.scratch) < need {
		d.scratch = make([]byte, need)
	}
	scratch := d.scratch[:need]

	n, err := d.dec.DecodeSamples(dest.Len, scratch)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("flacadapter: decode at frame %d: %w", startFrame, err)
	}

	off := 0
	for i := 0; i < n; i++ {
		for ch := 0; ch < dest.NumChannels(); ch++ {
			dest.Channels[ch][i] = decode24ToFloat(scratch[off : off+bytesPerSample])
			off += bytesPerSample
		}
	}
	for i := n; i < dest.Len; i++ {
		for ch := 0; ch < dest.NumChannels(); ch++ {
			dest.Channels[ch][i] = 0
		}
	}
	dest.Valid = n
	return n, nil
}

func (d *Decoder) SeekHint(frame int64) {
	if d.dec == nil {
		return
	}
	d.dec.Seek(frame, io.SeekStart)
}

func (d *Decoder) Close() error {
	if d.dec == nil {
		return nil
	}
	d.dec.Close()
	err := d.dec.Delete()
	d.dec = nil
	return err
}

// decode24ToFloat interprets buf as a little-endian signed 24-bit sample,
// the format DecodeSamples packs when decodeBitDepth is 24.
func decode24ToFloat(buf []byte) float32 {
	v := int32(buf[0]) | int32(buf[1])<<8 | int32(buf[2])<<16
	if v&0x800000 != 0 {
		v |= ^int32(0xFFFFFF)
	}
	return float32(v) / 8388608
}
