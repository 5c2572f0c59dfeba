// Package encoder defines the uniform audio/video encoder contract
// (supported codecs, frame sizing, bitrate, encode-one-frame) and
// provides reference backends: PCM-family passthrough/G.711 companding
// for audio, and a gocv-backed MJPEG backend plus an interface-only
// H.264 backend for video (the actual H.264 bitstream codec is an
// external collaborator).
package encoder

import (
	"github.com/edgemedia/avrtc/media"
	"github.com/edgemedia/avrtc/mediaerr"
)

// Result distinguishes the encode outcomes callers must handle
// differently: Ok, BufTooSmall (skip the frame, don't tear down), and
// every other failure.
type Result int

const (
	ResultOk Result = iota
	ResultBufTooSmall
	ResultBadInput
)

// Audio is the encoder-wrapper contract for one audio stream.
type Audio interface {
	SupportedCodecs() []media.AudioCodec
	Start(info media.AudioInfo) error
	// FrameSizes returns the exact input frame size (bytes) this
	// encoder requires per call, and the output buffer size a caller
	// should reserve.
	FrameSizes() (inBytes, outBytes int)
	SetBitrate(bps int) error
	// Encode consumes exactly in-frame-size bytes from in and writes
	// into out, returning the encoded length and a Result.
	Encode(in, out []byte) (n int, res Result, err error)
	Stop() error
	Clone() Audio
}

// Video is the encoder-wrapper contract for one video stream.
type Video interface {
	SupportedCodecs() []media.VideoCodec
	// InputCodecs reports which raw/video codecs this encoder can
	// accept to produce `out`.
	InputCodecs(out media.VideoCodec) []media.VideoCodec
	Start(info media.VideoInfo) error
	FrameSizes() (inBytes, outBytes int)
	SetBitrate(bps int) error
	Encode(in, out []byte) (n int, res Result, err error)
	Stop() error
	Clone() Video
}

// AlignUp128 rounds n up to the next multiple of 128, matching
// typical H.264 macroblock-aligned output-buffer sizing.
func AlignUp128(n int) int {
	const align = 128
	return (n + align - 1) / align * align
}

var errNotStarted = mediaerr.New(mediaerr.WrongState, "encoder: Start not called")
