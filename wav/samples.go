package wav

import (
	"encoding/binary"
	"math"
)

// Full-scale divisors shared by decode and encode for each integer format.
// Using the same constant on both sides (rather than decode-by-N,
// encode-by-N-1) is what makes decode(encode(x)) == x exactly on the
// quantization grid: encoding 16384/32768 = 0.5 for int16 must reproduce
// 16384 on decode, not 16383 from a rounding-down asymmetry.
const (
	scaleUint8 = 128
	scaleInt16 = 32768
	scaleInt24 = 8388608
	scaleInt32 = 2147483648
)

// decodeSample reads one sample starting at buf[0] in the given format and
// returns it as a float32 in [-1, 1] (clipping is the caller's concern on
// the encode side; decode never clips, it only rescales).
func decodeSample(buf []byte, format SampleFormat) float32 {
	switch format {
	case FormatUint8:
		// 8-bit PCM is unsigned, centered at 128.
		return (float32(buf[0]) - 128) / scaleUint8
	case FormatInt16:
		v := int16(binary.LittleEndian.Uint16(buf))
		return float32(v) / scaleInt16
	case FormatInt24:
		v := int32(buf[0]) | int32(buf[1])<<8 | int32(buf[2])<<16
		if v&0x800000 != 0 {
			v |= ^int32(0xFFFFFF)
		}
		return float32(v) / scaleInt24
	case FormatInt32:
		v := int32(binary.LittleEndian.Uint32(buf))
		return float32(v) / scaleInt32
	case FormatFloat32:
		bits := binary.LittleEndian.Uint32(buf)
		return math.Float32frombits(bits)
	case FormatFloat64:
		bits := binary.LittleEndian.Uint64(buf)
		return float32(math.Float64frombits(bits))
	default:
		return 0
	}
}

// encodeSample writes one sample in the given format to buf[0:bytesPerSample].
// Quantization rounds to nearest and clamps to the representable range,
// using the same scale decodeSample divides by so the two are inverses of
// each other on the quantization grid.
func encodeSample(buf []byte, v float32, format SampleFormat) {
	v = clampFloat(v, -1, 1)
	switch format {
	case FormatUint8:
		buf[0] = byte(quantize(v, scaleUint8, -128, 127) + 128)
	case FormatInt16:
		binary.LittleEndian.PutUint16(buf, uint16(int16(quantize(v, scaleInt16, -32768, 32767))))
	case FormatInt24:
		iv := int32(quantize(v, scaleInt24, -8388608, 8388607))
		buf[0] = byte(iv)
		buf[1] = byte(iv >> 8)
		buf[2] = byte(iv >> 16)
	case FormatInt32:
		binary.LittleEndian.PutUint32(buf, uint32(int32(quantize(v, scaleInt32, -2147483648, 2147483647))))
	case FormatFloat32:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
	case FormatFloat64:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(float64(v)))
	}
}

// quantize rounds v*scale to the nearest integer and clamps it into
// [lo, hi], the representable range for the target integer width.
// FormatUint8 passes the signed pre-offset range (-128, 127); the caller
// adds the 128 zero-offset afterward to land in [0, 255].
func quantize(v float32, scale float64, lo, hi int64) int64 {
	iv := int64(math.Round(float64(v) * scale))
	if iv < lo {
		return lo
	}
	if iv > hi {
		return hi
	}
	return iv
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
