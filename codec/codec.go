// Package codec defines the narrow capability interfaces the IO server
// runs against. Concrete decoders/encoders (wav, flacadapter, or a caller's
// own) are external collaborators from the engine's point of view: the
// engine never knows which format it is talking to.
package codec

import "github.com/drgolem/go-audiostream/audioblock"

// Decoder opens one file and decodes arbitrary frame ranges from it. A
// Decoder is owned exclusively by one IO server goroutine for its lifetime;
// Decode must be deterministic for a given (startFrame) on a given open
// file and must not allocate beyond what the implementation documents.
type Decoder interface {
	// Open opens path and reports the stream's total frame count, channel
	// count and sample rate. startFrame is a hint some decoders can use to
	// warm up streaming state; it does not have to be honored exactly.
	Open(path string, startFrame int64) (totalFrames int64, numChannels, sampleRate int, err error)

	// Decode fills dest with frames [startFrame, startFrame+dest.Len)
	// and sets dest.Valid to the number of real (non-silence) frames
	// written, zero-filling the remainder on short reads/EOF. It returns
	// the same count.
	Decode(startFrame int64, dest *audioblock.Block) (filledFrames int, err error)

	// SeekHint is a best-effort repositioning hint; implementations that
	// have no use for it may no-op.
	SeekHint(frame int64)

	Close() error
}

// Encoder opens one output file and appends fully-populated blocks to it.
// An Encoder is owned exclusively by one IO server goroutine.
type Encoder interface {
	Open(path string, numChannels, sampleRate int) error

	// Encode appends the first validFrames frames of block to the file.
	Encode(block *audioblock.Block, validFrames int) error

	// Finish finalizes the file (e.g. patches RIFF sizes) and closes it.
	Finish() error
}
