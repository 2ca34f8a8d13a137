package wav

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"

	"github.com/drgolem/go-audiostream/audioblock"
)

const (
	riffHeaderSize = 12
	fmtChunkSize   = 16
	dataChunkHdr   = 8
)

// Encoder implements codec.Encoder, writing a canonical RIFF/WAVE file:
// a 16-byte "fmt " chunk followed by a single "data" chunk. The RIFF and
// data chunk sizes are written as placeholders on Open and patched with
// the true sizes on Finish, since they aren't known until all frames have
// been appended.
type Encoder struct {
	f             *os.File
	format        SampleFormat
	numChannels   int
	bytesPerFrame int
	dataBytes     int64
	scratch       []byte
}

// NewEncoder returns an Encoder that writes samples in the given format.
func NewEncoder(format SampleFormat) *Encoder {
	return &Encoder{format: format}
}

// Open creates path and writes the RIFF/fmt header, leaving size fields as
// placeholders to be patched by Finish.
func (e *Encoder) Open(path string, numChannels, sampleRate int) error {
	if numChannels <= 0 {
		return fmt.Errorf("wav: numChannels must be positive, got %d", numChannels)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wav: create %q: %w", path, err)
	}

	e.numChannels = numChannels
	e.bytesPerFrame = e.format.bytesPerSample() * numChannels
	e.scratch = make([]byte, e.bytesPerFrame)

	bitsPerSample := e.format.bytesPerSample() * 8
	byteRate := sampleRate * e.bytesPerFrame
	blockAlign := e.bytesPerFrame

	header := make([]byte, riffHeaderSize+dataChunkHdr+fmtChunkSize+dataChunkHdr)
	copy(header[0:4], riffID)
	binary.LittleEndian.PutUint32(header[4:8], 0) // patched on Finish
	copy(header[8:12], waveID)

	copy(header[12:16], fmtID)
	binary.LittleEndian.PutUint32(header[16:20], fmtChunkSize)
	binary.LittleEndian.PutUint16(header[20:22], e.format.audioFormatTag())
	binary.LittleEndian.PutUint16(header[22:24], uint16(numChannels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], uint16(bitsPerSample))

	copy(header[36:40], dataID)
	binary.LittleEndian.PutUint32(header[40:44], 0) // patched on Finish

	if _, err := f.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("wav: write header: %w", err)
	}

	e.f = f
	slog.Debug("wav encoder opened", "path", path, "channels", numChannels,
		"sample_rate", sampleRate, "format", e.format.String())
	return nil
}

// Encode appends the first validFrames frames of block.
func (e *Encoder) Encode(block *audioblock.Block, validFrames int) error {
	spb := e.format.bytesPerSample()
	for i := 0; i < validFrames; i++ {
		off := 0
		for ch := 0; ch < block.NumChannels(); ch++ {
			encodeSample(e.scratch[off:off+spb], block.Channels[ch][i], e.format)
			off += spb
		}
		if _, err := e.f.Write(e.scratch); err != nil {
			return fmt.Errorf("wav: write frame: %w", err)
		}
	}
	e.dataBytes += int64(validFrames) * int64(e.bytesPerFrame)
	return nil
}

// Finish patches the RIFF and data chunk sizes now that the final frame
// count is known, then closes the file.
func (e *Encoder) Finish() error {
	// RIFF size covers everything after the "RIFF" tag and this size field
	// itself: the "WAVE" tag, the fmt chunk, the data chunk header, and
	// the data bytes.
	const waveTagSize = 4
	riffSize := uint32(waveTagSize + dataChunkHdr + fmtChunkSize + dataChunkHdr + e.dataBytes)
	dataSize := uint32(e.dataBytes)

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], riffSize)
	if _, err := e.f.WriteAt(buf[:], 4); err != nil {
		e.f.Close()
		return fmt.Errorf("wav: patch riff size: %w", err)
	}
	binary.LittleEndian.PutUint32(buf[:], dataSize)
	if _, err := e.f.WriteAt(buf[:], 40); err != nil {
		e.f.Close()
		return fmt.Errorf("wav: patch data size: %w", err)
	}

	return e.f.Close()
}
