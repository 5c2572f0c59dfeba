// Package media holds the wire-level data model shared by the capture,
// decode, and render subsystems: stream frames, codec descriptors, and
// the pooled-buffer ownership contract.
package media

// Kind identifies the media type carried by a StreamFrame.
type Kind int

const (
	Audio Kind = iota
	Video
	Data
)

func (k Kind) String() string {
	switch k {
	case Audio:
		return "audio"
	case Video:
		return "video"
	case Data:
		return "data"
	default:
		return "unknown"
	}
}

// AudioCodec is the closed set of audio codecs recognized by the core.
// The actual encode/decode math for Opus/AAC/G.711 is an external
// collaborator; this type only names the wire format.
type AudioCodec int

const (
	AudioCodecNone AudioCodec = iota
	AudioCodecPCM
	AudioCodecG711A
	AudioCodecG711U
	AudioCodecOpus
	AudioCodecAAC
)

func (c AudioCodec) String() string {
	switch c {
	case AudioCodecNone:
		return "none"
	case AudioCodecPCM:
		return "pcm"
	case AudioCodecG711A:
		return "g711a"
	case AudioCodecG711U:
		return "g711u"
	case AudioCodecOpus:
		return "opus"
	case AudioCodecAAC:
		return "aac"
	default:
		return "unknown"
	}
}

// VideoCodec is the closed set of video codecs recognized by the core.
type VideoCodec int

const (
	VideoCodecNone VideoCodec = iota
	VideoCodecMJPEG
	VideoCodecH264
	VideoCodecRGB565
	VideoCodecYUV420P
	VideoCodecYUV422P
	// VideoCodecBGR24 is the uncompressed 3-bytes/pixel BGR layout
	// gocv.IMDecode produces natively, before any color-convert stage.
	VideoCodecBGR24
)

func (c VideoCodec) String() string {
	switch c {
	case VideoCodecNone:
		return "none"
	case VideoCodecMJPEG:
		return "mjpeg"
	case VideoCodecH264:
		return "h264"
	case VideoCodecRGB565:
		return "rgb565"
	case VideoCodecYUV420P:
		return "yuv420p"
	case VideoCodecYUV422P:
		return "yuv422p"
	case VideoCodecBGR24:
		return "bgr24"
	default:
		return "unknown"
	}
}

// AudioInfo describes an audio stream's wire format.
type AudioInfo struct {
	Codec         AudioCodec
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// BytesPerSample returns the per-channel sample width in bytes.
func (a AudioInfo) BytesPerSample() int {
	return (a.BitsPerSample + 7) / 8
}

// FrameBytes returns the byte size of a PCM-family frame spanning durMs
// milliseconds, given this stream's rate/channels/sample width.
func (a AudioInfo) FrameBytes(durMs int) int {
	samples := a.SampleRate * durMs / 1000
	return samples * a.Channels * a.BytesPerSample()
}

// VideoInfo describes a video stream's wire format.
type VideoInfo struct {
	Codec  VideoCodec
	Width  int
	Height int
	FPS    int
}

// RawSize returns the size of one uncompressed BGR/YUV-ish frame at this
// resolution for planning encoder output buffers. Callers with an exact
// pixel format should compute their own size; this is the 3-bytes/pixel
// upper bound the capture path plans against.
func (v VideoInfo) RawSize() int {
	return v.Width * v.Height * 3
}

// AudioFrameInfo is the decoded-form descriptor handed to an AudioSink.
type AudioFrameInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// VideoFrameInfo is the decoded-form descriptor handed to a VideoSink.
type VideoFrameInfo struct {
	Width  int
	Height int
	Format VideoCodec // raw pixel layout: BGR24, RGB565, YUV420P, YUV422P
}

// RawSize returns the exact decoded-buffer size for this frame's
// resolution and pixel format, for sizing a decode destination buffer
// after a BufTooSmall report.
func (f VideoFrameInfo) RawSize() int {
	pixels := f.Width * f.Height
	switch f.Format {
	case VideoCodecRGB565, VideoCodecYUV422P:
		return pixels * 2
	case VideoCodecYUV420P:
		return pixels * 3 / 2
	case VideoCodecBGR24:
		return pixels * 3
	default:
		return pixels * 3
	}
}

// SinkConfig names the two (optional) streams a CapturePath or AVRender
// is configured for. A codec of *CodecNone disables that stream.
type SinkConfig struct {
	Audio AudioInfo
	Video VideoInfo
}

// StreamFrame is one presented unit of media moving through the
// pipeline. size == 0 && data == nil && EOS == true is the canonical
// end-of-stream sentinel.
type StreamFrame struct {
	Kind Kind
	PTS  uint32 // presentation timestamp, milliseconds
	Data []byte
	EOS  bool

	// Pool, if non-nil, must be called exactly once when this frame is
	// fully consumed (rendered, dropped, or flushed) — see PooledBuffer.
	Pool func()
}

// Size returns len(Data).
func (f StreamFrame) Size() int { return len(f.Data) }

// IsEOS reports whether this frame is the end-of-stream marker.
func (f StreamFrame) IsEOS() bool { return f.EOS && f.Data == nil && len(f.Data) == 0 }

// EOSFrame builds the canonical end-of-stream marker for kind k.
func EOSFrame(k Kind) StreamFrame {
	return StreamFrame{Kind: k, EOS: true}
}

// Release invokes the frame's pool-free hook exactly once, tolerating a
// nil hook so callers can always defer f.Release() regardless of origin.
func (f *StreamFrame) Release() {
	if f.Pool != nil {
		free := f.Pool
		f.Pool = nil
		free()
	}
}

// PooledBuffer captures a buffer borrowed from a caller-owned pool plus
// the one-shot hook that returns it. Every component that accepts one
// must consume-or-forward it within its scope and call Free exactly
// once on every exit path (render, drop, or flush).
type PooledBuffer struct {
	Data []byte
	Ctx  any
	Free func(data []byte, ctx any)
}

// release calls Free exactly once; safe to call on a zero-value buffer.
func (b *PooledBuffer) release() {
	if b.Free != nil {
		free := b.Free
		b.Free = nil
		free(b.Data, b.Ctx)
	}
}

// Release is the exported one-shot free, matching StreamFrame.Release.
func (b *PooledBuffer) Release() { b.release() }
