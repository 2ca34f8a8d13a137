package wav

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/drgolem/go-audiostream/audioblock"
)

const (
	riffID = "RIFF"
	waveID = "WAVE"
	fmtID  = "fmt "
	dataID = "data"
)

// Decoder implements codec.Decoder over a canonical RIFF/WAVE file: one
// "fmt " chunk followed by one "data" chunk. It is owned exclusively by
// one IO server goroutine for its lifetime, matching the contract
// codec.Decoder documents.
type Decoder struct {
	f             *os.File
	format        SampleFormat
	numChannels   int
	sampleRate    int
	bytesPerFrame int
	dataOffset    int64
	totalFrames   int64

	// pos tracks the file's current read offset in frames, so sequential
	// Decode calls (the common case) skip the Seek syscall entirely.
	pos int64

	scratch []byte
}

// NewDecoder returns an unopened Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open parses the RIFF header, locates "fmt "/"data", and positions the
// file at startFrame.
func (d *Decoder) Open(path string, startFrame int64) (int64, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("wav: open %q: %w", path, err)
	}

	var header [12]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		f.Close()
		return 0, 0, 0, fmt.Errorf("wav: read riff header: %w", err)
	}
	if string(header[0:4]) != riffID || string(header[8:12]) != waveID {
		f.Close()
		return 0, 0, 0, fmt.Errorf("wav: not a RIFF/WAVE file")
	}

	var sawFmt bool
	var dataSize uint32
	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(f, chunkHeader[:]); err != nil {
			f.Close()
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return 0, 0, 0, fmt.Errorf("wav: read chunk header: %w", err)
		}
		id := string(chunkHeader[0:4])
		size := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch id {
		case fmtID:
			if err := d.readFmtChunk(f, size); err != nil {
				f.Close()
				return 0, 0, 0, err
			}
			sawFmt = true
		case dataID:
			if !sawFmt {
				f.Close()
				return 0, 0, 0, fmt.Errorf("wav: data chunk precedes fmt chunk")
			}
			off, err := f.Seek(0, io.SeekCurrent)
			if err != nil {
				f.Close()
				return 0, 0, 0, fmt.Errorf("wav: tell: %w", err)
			}
			d.dataOffset = off
			dataSize = size
			// The data chunk is the last one we care about; stop parsing
			// so trailing metadata chunks (LIST, etc.) are ignored.
			goto haveData
		default:
			if _, err := f.Seek(int64(size)+int64(size&1), io.SeekCurrent); err != nil {
				f.Close()
				return 0, 0, 0, fmt.Errorf("wav: skip chunk %q: %w", id, err)
			}
		}
	}
haveData:
	if !sawFmt {
		f.Close()
		return 0, 0, 0, fmt.Errorf("wav: missing fmt chunk")
	}
	if d.dataOffset == 0 {
		f.Close()
		return 0, 0, 0, fmt.Errorf("wav: missing data chunk")
	}

	d.f = f
	d.totalFrames = int64(dataSize) / int64(d.bytesPerFrame)
	d.pos = 0
	d.scratch = make([]byte, d.bytesPerFrame)

	if startFrame > 0 {
		d.SeekHint(startFrame)
	}

	slog.Debug("wav decoder opened", "path", path, "channels", d.numChannels,
		"sample_rate", d.sampleRate, "format", d.format.String(), "total_frames", d.totalFrames)
	return d.totalFrames, d.numChannels, d.sampleRate, nil
}

func (d *Decoder) readFmtChunk(f *os.File, size uint32) error {
	buf := make([]byte, size)
	if _, err := io.ReadFull(f, buf); err != nil {
		return fmt.Errorf("wav: read fmt chunk: %w", err)
	}
	if size < 16 {
		return fmt.Errorf("wav: fmt chunk too short (%d bytes)", size)
	}
	audioFormat := binary.LittleEndian.Uint16(buf[0:2])
	numChannels := binary.LittleEndian.Uint16(buf[2:4])
	sampleRate := binary.LittleEndian.Uint32(buf[4:8])
	bitsPerSample := binary.LittleEndian.Uint16(buf[14:16])

	format, err := sampleFormatFor(audioFormat, int(bitsPerSample))
	if err != nil {
		return err
	}

	d.format = format
	d.numChannels = int(numChannels)
	d.sampleRate = int(sampleRate)
	d.bytesPerFrame = format.bytesPerSample() * d.numChannels
	if d.bytesPerFrame == 0 {
		return fmt.Errorf("wav: zero channels in fmt chunk")
	}
	// size&1 accounts for the RIFF rule that every chunk is word-aligned;
	// an odd-sized fmt chunk has one pad byte we haven't consumed yet.
	if size&1 == 1 {
		var pad [1]byte
		io.ReadFull(f, pad[:])
	}
	return nil
}

// Decode fills dest with frames [startFrame, startFrame+dest.Len), seeking
// only when startFrame does not follow the previous call sequentially.
func (d *Decoder) Decode(startFrame int64, dest *audioblock.Block) (int, error) {
	if startFrame != d.pos {
		if err := d.seekToFrame(startFrame); err != nil {
			return 0, err
		}
	}

	filled := dest.Len
	if startFrame+int64(filled) > d.totalFrames {
		filled = int(d.totalFrames - startFrame)
		if filled < 0 {
			filled = 0
		}
	}

	for i := 0; i < filled; i++ {
		if _, err := io.ReadFull(d.f, d.scratch); err != nil {
			return 0, fmt.Errorf("wav: read frame %d: %w", startFrame+int64(i), err)
		}
		off := 0
		spb := d.format.bytesPerSample()
		for ch := 0; ch < dest.NumChannels(); ch++ {
			dest.Channels[ch][i] = decodeSample(d.scratch[off:off+spb], d.format)
			off += spb
		}
	}
	for i := filled; i < dest.Len; i++ {
		for ch := 0; ch < dest.NumChannels(); ch++ {
			dest.Channels[ch][i] = 0
		}
	}
	dest.Valid = filled
	d.pos = startFrame + int64(filled)
	return filled, nil
}

func (d *Decoder) seekToFrame(frame int64) error {
	off := d.dataOffset + frame*int64(d.bytesPerFrame)
	if _, err := d.f.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("wav: seek to frame %d: %w", frame, err)
	}
	d.pos = frame
	return nil
}

// SeekHint repositions the file pointer eagerly; wav decoding is cheap
// enough that there is no streaming state worth warming up separately.
func (d *Decoder) SeekHint(frame int64) {
	if frame == d.pos {
		return
	}
	if frame < 0 || frame > d.totalFrames {
		return
	}
	if err := d.seekToFrame(frame); err != nil {
		slog.Debug("wav seek hint failed", "frame", frame, "error", err)
	}
}

func (d *Decoder) Close() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}
