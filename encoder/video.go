package encoder

import (
	"gocv.io/x/gocv"

	"github.com/edgemedia/avrtc/media"
	"github.com/edgemedia/avrtc/mediaerr"
)

// MJPEGEncoder wraps gocv's IMEncode, OpenCV's JPEG codec. Encode
// accepts raw BGR frames (width*height*3 bytes) and writes a JPEG
// bitstream.
type MJPEGEncoder struct {
	info    media.VideoInfo
	quality int
	started bool
}

// NewMJPEGEncoder builds an MJPEG encoder at the given JPEG quality
// (1-100; 0 selects quality 85).
func NewMJPEGEncoder(quality int) *MJPEGEncoder {
	return &MJPEGEncoder{quality: quality}
}

func (e *MJPEGEncoder) SupportedCodecs() []media.VideoCodec {
	return []media.VideoCodec{media.VideoCodecMJPEG}
}

func (e *MJPEGEncoder) InputCodecs(out media.VideoCodec) []media.VideoCodec {
	if out != media.VideoCodecMJPEG {
		return nil
	}
	return []media.VideoCodec{media.VideoCodecYUV420P, media.VideoCodecYUV422P, media.VideoCodecRGB565}
}

func (e *MJPEGEncoder) Start(info media.VideoInfo) error {
	e.info = info
	e.started = true
	return nil
}

// FrameSizes reports the raw input size and a conservative output
// reservation of raw_size/20, a typical JPEG compression ratio for
// natural video content.
func (e *MJPEGEncoder) FrameSizes() (inBytes, outBytes int) {
	raw := e.info.RawSize()
	out := raw / 20
	if out < 4096 {
		out = 4096
	}
	return raw, out
}

func (e *MJPEGEncoder) SetBitrate(int) error {
	return nil // quality-driven, not bitrate-driven
}

func (e *MJPEGEncoder) Encode(in, out []byte) (int, Result, error) {
	if !e.started {
		return 0, ResultBadInput, errNotStarted
	}
	mat, err := gocv.NewMatFromBytes(e.info.Height, e.info.Width, gocv.MatTypeCV8UC3, in)
	if err != nil {
		return 0, ResultBadInput, mediaerr.Wrap(mediaerr.BadData, "MJPEGEncoder.Encode: NewMatFromBytes", err)
	}
	defer mat.Close()

	params := []int{gocv.IMWriteJpegQuality, 85}
	if e.quality > 0 {
		params[1] = e.quality
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, params)
	if err != nil {
		return 0, ResultBadInput, mediaerr.Wrap(mediaerr.BadData, "MJPEGEncoder.Encode: IMEncode", err)
	}
	defer buf.Close()

	encoded := buf.GetBytes()
	if len(out) < len(encoded) {
		return 0, ResultBufTooSmall, nil
	}
	n := copy(out, encoded)
	return n, ResultOk, nil
}

func (e *MJPEGEncoder) Stop() error { e.started = false; return nil }

func (e *MJPEGEncoder) Clone() Video { return NewMJPEGEncoder(e.quality) }

// H264Encoder is a contract-only stand-in: the actual H.264 bitstream
// codec is out of scope for this module, so this type only reports
// the sizing policy (aligned_up(raw_size, 128)) and delegates the real
// encode to an injected function, returning NotSupported when none is
// configured.
type H264Encoder struct {
	info    media.VideoInfo
	started bool

	// EncodeFunc, when set, performs the actual bitstream encode. Left
	// nil, Encode reports NotSupported — this type exists to let
	// CapturePath negotiate H264 as a sink codec without this module
	// owning a bitstream implementation.
	EncodeFunc func(in, out []byte) (n int, ok bool)
}

func (e *H264Encoder) SupportedCodecs() []media.VideoCodec {
	return []media.VideoCodec{media.VideoCodecH264}
}

func (e *H264Encoder) InputCodecs(out media.VideoCodec) []media.VideoCodec {
	if out != media.VideoCodecH264 {
		return nil
	}
	return []media.VideoCodec{media.VideoCodecYUV420P}
}

func (e *H264Encoder) Start(info media.VideoInfo) error {
	e.info = info
	e.started = true
	return nil
}

func (e *H264Encoder) FrameSizes() (inBytes, outBytes int) {
	raw := e.info.RawSize()
	return raw, AlignUp128(raw)
}

func (e *H264Encoder) SetBitrate(int) error { return nil }

func (e *H264Encoder) Encode(in, out []byte) (int, Result, error) {
	if !e.started {
		return 0, ResultBadInput, errNotStarted
	}
	if e.EncodeFunc == nil {
		return 0, ResultBadInput, mediaerr.New(mediaerr.NotSupported, "H264Encoder.Encode: no backend configured")
	}
	n, ok := e.EncodeFunc(in, out)
	if !ok {
		return 0, ResultBufTooSmall, nil
	}
	return n, ResultOk, nil
}

func (e *H264Encoder) Stop() error { e.started = false; return nil }

func (e *H264Encoder) Clone() Video { return &H264Encoder{EncodeFunc: e.EncodeFunc} }
