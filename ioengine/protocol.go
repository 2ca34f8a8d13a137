package ioengine

import "github.com/drgolem/go-audiostream/audioblock"

// JobKind identifies what the client is asking the server to do.
type JobKind int

const (
	JobReadInto JobKind = iota
	JobSeekHint
	JobWriteBlock
	JobFinishAndClose
	JobShutdown
)

// RespKind identifies what the server is reporting back.
type RespKind int

const (
	RespSlotFilled RespKind = iota
	RespBlockReturned
	RespClosed
	RespFatalError
)

// DestKind says where a read-side response belongs: the lookahead ring or
// one of the fixed cache slots.
type DestKind int

const (
	DestRing DestKind = iota
	DestCache
)

// Dest identifies the installation target of a read-side job/response, and
// the generation it was issued for. A cache reload bumps its Generation
// independently of the global seek epoch, so a stale reload of the same
// cache index is distinguishable from a fresh one even within one epoch.
type Dest struct {
	Kind       DestKind
	CacheIndex int
	Generation uint64
}

// Job is a message posted from the realtime client to the IO server. It
// always carries ownership of Block (the client gives it up when Push
// succeeds) until the matching Response hands a block back.
type Job struct {
	Kind        JobKind
	Epoch       uint64
	StartFrame  int64
	Dest        Dest
	Block       *audioblock.Block
	ValidFrames int
}

// Response is a message posted from the IO server back to the realtime
// client.
type Response struct {
	Kind        RespKind
	Epoch       uint64
	StartFrame  int64
	Dest        Dest
	Block       *audioblock.Block
	ValidFrames int
	Err         error
}
