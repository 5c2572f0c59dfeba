package decoder

import (
	"gocv.io/x/gocv"

	"github.com/edgemedia/avrtc/media"
	"github.com/edgemedia/avrtc/mediaerr"
)

// MJPEGDecoder wraps gocv's IMDecode and owns the optional
// color-convert stage (gocv.CvtColor): if the renderer wants a
// format other than the decoder's native BGR output, a conversion
// table (here, just the target codec) and an intermediate Mat are
// kept across calls.
type MJPEGDecoder struct {
	started    bool
	wantFormat media.VideoCodec // media.VideoCodecNone means "native, no convert"
	fb         FrameBuffer

	scratch gocv.Mat
}

func NewMJPEGDecoder() *MJPEGDecoder { return &MJPEGDecoder{} }

func (d *MJPEGDecoder) SupportedCodecs() []media.VideoCodec {
	return []media.VideoCodec{media.VideoCodecMJPEG}
}

func (d *MJPEGDecoder) Start(media.VideoInfo) error {
	d.scratch = gocv.NewMat()
	d.started = true
	return nil
}

func (d *MJPEGDecoder) SetOutputFormat(want media.VideoCodec) error {
	d.wantFormat = want
	return nil
}

func (d *MJPEGDecoder) SetFrameBuffer(fb FrameBuffer) { d.fb = fb }

func (d *MJPEGDecoder) Decode(in, out []byte) (int, media.VideoFrameInfo, Result, error) {
	if !d.started {
		return 0, media.VideoFrameInfo{}, ResultBadInput, errNotStarted
	}

	mat, err := gocv.IMDecode(in, gocv.IMReadColor)
	if err != nil {
		return 0, media.VideoFrameInfo{}, ResultBadInput, mediaerr.Wrap(mediaerr.BadData, "MJPEGDecoder.Decode: IMDecode", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return 0, media.VideoFrameInfo{}, ResultBadInput, mediaerr.New(mediaerr.BadData, "MJPEGDecoder.Decode: empty JPEG")
	}

	final := mat
	convertedFormat := media.VideoCodecBGR24 // gocv.IMDecode's native output
	if d.wantFormat != media.VideoCodecNone && d.wantFormat != convertedFormat {
		if err := d.convert(mat, d.wantFormat); err != nil {
			return 0, media.VideoFrameInfo{}, ResultBadInput, err
		}
		final = d.scratch
		convertedFormat = d.wantFormat
	}

	frameInfo := media.VideoFrameInfo{Width: final.Cols(), Height: final.Rows(), Format: convertedFormat}
	need := final.Total() * final.Channels()
	if len(out) < need {
		return 0, frameInfo, ResultBufTooSmall, nil
	}
	n := copy(out, final.ToBytes())
	return n, frameInfo, ResultOk, nil
}

func (d *MJPEGDecoder) convert(src gocv.Mat, want media.VideoCodec) error {
	var code gocv.ColorConversionCode
	switch want {
	case media.VideoCodecYUV420P, media.VideoCodecYUV422P:
		code = gocv.ColorBGRToYUV
	case media.VideoCodecRGB565:
		code = gocv.ColorBGRToBGR565
	default:
		return mediaerr.New(mediaerr.NotSupported, "MJPEGDecoder.convert: unsupported target format")
	}
	gocv.CvtColor(src, &d.scratch, code)
	return nil
}

func (d *MJPEGDecoder) Stop() error {
	if d.started {
		d.scratch.Close()
	}
	d.started = false
	return nil
}
