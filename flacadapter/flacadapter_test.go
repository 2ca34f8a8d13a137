package flacadapter

import (
	"path/filepath"
	"testing"

	"github.com/drgolem/go-audiostream/audioblock"
	"github.com/stretchr/testify/require"
)

// TestRoundTripThroughCodecInterfaces exercises Encoder/Decoder exactly the
// way readstream/writestream drive a codec.Encoder/codec.Decoder, rather
// than calling the underlying flac package directly (that is covered by
// flac's own roundtrip_test.go).
func TestRoundTripThroughCodecInterfaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtrip.flac")
	const numChannels, sampleRate, blockLen = 2, 44100, 512

	enc := NewEncoder()
	require.NoError(t, enc.Open(path, numChannels, sampleRate))

	src := &audioblock.Block{
		Channels: [][]float32{make([]float32, blockLen), make([]float32, blockLen)},
		Len:      blockLen,
	}
	for i := 0; i < blockLen; i++ {
		src.Channels[0][i] = float32(i%200-100) / 100
		src.Channels[1][i] = -src.Channels[0][i]
	}
	require.NoError(t, enc.Encode(src, blockLen))
	require.NoError(t, enc.Finish())

	dec := NewDecoder()
	total, gotChannels, gotRate, err := dec.Open(path, 0)
	require.NoError(t, err)
	require.Equal(t, numChannels, gotChannels)
	require.Equal(t, sampleRate, gotRate)
	require.Equal(t, int64(blockLen), total)
	defer dec.Close()

	dest := &audioblock.Block{
		Channels: [][]float32{make([]float32, blockLen), make([]float32, blockLen)},
		Len:      blockLen,
	}
	filled, err := dec.Decode(0, dest)
	require.NoError(t, err)
	require.Equal(t, blockLen, filled)

	// 16-bit lossy quantization (FLAC's interleaved encode path), so
	// compare within two LSBs rather than requiring bit-exact equality.
	for i := 0; i < blockLen; i++ {
		require.InDelta(t, src.Channels[0][i], dest.Channels[0][i], 1.0/32768*2)
		require.InDelta(t, src.Channels[1][i], dest.Channels[1][i], 1.0/32768*2)
	}
}

func TestSeekHintRepositionsDecode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seek.flac")
	const numChannels, sampleRate, blockLen = 1, 44100, 2048

	enc := NewEncoder()
	require.NoError(t, enc.Open(path, numChannels, sampleRate))
	src := &audioblock.Block{Channels: [][]float32{make([]float32, blockLen)}, Len: blockLen}
	for i := 0; i < blockLen; i++ {
		src.Channels[0][i] = float32(i%200-100) / 100
	}
	require.NoError(t, enc.Encode(src, blockLen))
	require.NoError(t, enc.Finish())

	dec := NewDecoder()
	_, _, _, err := dec.Open(path, 0)
	require.NoError(t, err)
	defer dec.Close()

	dec.SeekHint(1000)
	dest := &audioblock.Block{Channels: [][]float32{make([]float32, 16)}, Len: 16}
	filled, err := dec.Decode(1000, dest)
	require.NoError(t, err)
	require.Equal(t, 16, filled)
	require.InDelta(t, src.Channels[0][1000], dest.Channels[0][0], 1.0/32768*2)
}
