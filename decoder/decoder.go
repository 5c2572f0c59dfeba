// Package decoder implements a header-first decoder-wrapper contract:
// the first Decode call may report BufTooSmall while exposing the
// frame's true resolution/format, the caller allocates accordingly and
// redrives; video decoders additionally own an optional color-convert
// stage and a pluggable framebuffer callback that lets a renderer hand
// over its own backbuffer instead of taking an extra copy.
package decoder

import (
	"github.com/edgemedia/avrtc/media"
	"github.com/edgemedia/avrtc/mediaerr"
)

// Result mirrors encoder.Result for the decode direction.
type Result int

const (
	ResultOk Result = iota
	ResultBufTooSmall
	ResultBadInput
)

// Audio is the decoder-wrapper contract for one audio stream.
type Audio interface {
	SupportedCodecs() []media.AudioCodec
	Start(info media.AudioInfo) error
	// Decode consumes one encoded frame from in and writes decoded PCM
	// into out, reporting the frame's AudioFrameInfo once known.
	Decode(in, out []byte) (n int, frameInfo media.AudioFrameInfo, res Result, err error)
	Stop() error
}

// FrameBuffer is the pluggable framebuffer callback: Fetch hands the
// decoder a pointer-equivalent buffer to decode into
// (skipping a copy when the renderer's own backbuffer can be reused
// directly), and Return gives it back, optionally discarding it.
type FrameBuffer interface {
	Fetch(align, size int) ([]byte, error)
	Return(buf []byte, discard bool)
}

// Video is the decoder-wrapper contract for one video stream.
type Video interface {
	SupportedCodecs() []media.VideoCodec
	Start(info media.VideoInfo) error
	// Decode consumes one encoded frame, writes the decoded frame into
	// out (converted to the SetOutputFormat target when one is set,
	// otherwise in the decoder's native format), and reports the
	// VideoFrameInfo (width/height/format) of what it wrote.
	Decode(in, out []byte) (n int, frameInfo media.VideoFrameInfo, res Result, err error)
	// SetOutputFormat configures the optional color-convert stage;
	// VideoCodecNone or the decoder's native format disables
	// conversion.
	SetOutputFormat(want media.VideoCodec) error
	// SetFrameBuffer installs a pluggable backbuffer provider; nil
	// reverts to decoding into caller-supplied buffers only.
	SetFrameBuffer(fb FrameBuffer)
	Stop() error
}

var errNotStarted = mediaerr.New(mediaerr.WrongState, "decoder: Start not called")
