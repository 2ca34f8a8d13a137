// Package wav implements a pure-Go codec.Decoder and codec.Encoder for
// canonical RIFF/WAVE files: one "fmt " chunk, one "data" chunk, PCM or
// IEEE float samples. It is the in-tree reference format the round-trip
// property in the design notes is defined over.
package wav

import "fmt"

// SampleFormat selects the on-disk sample representation an Encoder
// writes. Decode auto-detects the format actually present in the file
// from the "fmt " chunk, so SampleFormat is only consumed by Encoder.
type SampleFormat int

const (
	FormatUint8 SampleFormat = iota
	FormatInt16
	FormatInt24
	FormatInt32
	FormatFloat32
	FormatFloat64
)

const (
	wavFormatPCM       = 1
	wavFormatIEEEFloat = 3
)

func (f SampleFormat) bytesPerSample() int {
	switch f {
	case FormatUint8:
		return 1
	case FormatInt16:
		return 2
	case FormatInt24:
		return 3
	case FormatInt32, FormatFloat32:
		return 4
	case FormatFloat64:
		return 8
	default:
		return 0
	}
}

func (f SampleFormat) audioFormatTag() uint16 {
	if f == FormatFloat32 || f == FormatFloat64 {
		return wavFormatIEEEFloat
	}
	return wavFormatPCM
}

func (f SampleFormat) String() string {
	switch f {
	case FormatUint8:
		return "uint8"
	case FormatInt16:
		return "int16"
	case FormatInt24:
		return "int24"
	case FormatInt32:
		return "int32"
	case FormatFloat32:
		return "float32"
	case FormatFloat64:
		return "float64"
	default:
		return fmt.Sprintf("SampleFormat(%d)", int(f))
	}
}

func sampleFormatFor(audioFormat uint16, bitsPerSample int) (SampleFormat, error) {
	switch {
	case audioFormat == wavFormatPCM && bitsPerSample == 8:
		return FormatUint8, nil
	case audioFormat == wavFormatPCM && bitsPerSample == 16:
		return FormatInt16, nil
	case audioFormat == wavFormatPCM && bitsPerSample == 24:
		return FormatInt24, nil
	case audioFormat == wavFormatPCM && bitsPerSample == 32:
		return FormatInt32, nil
	case audioFormat == wavFormatIEEEFloat && bitsPerSample == 32:
		return FormatFloat32, nil
	case audioFormat == wavFormatIEEEFloat && bitsPerSample == 64:
		return FormatFloat64, nil
	default:
		return 0, fmt.Errorf("unsupported wav format: tag %d, %d bits per sample", audioFormat, bitsPerSample)
	}
}
