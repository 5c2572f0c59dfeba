package encoder

import (
	"bytes"
	"testing"

	"github.com/edgemedia/avrtc/media"
)

func TestPCMPassthroughRoundTrip(t *testing.T) {
	e := NewPCMPassthrough(20)
	info := media.AudioInfo{Codec: media.AudioCodecPCM, SampleRate: 8000, Channels: 1, BitsPerSample: 16}
	if err := e.Start(info); err != nil {
		t.Fatalf("Start: %v", err)
	}
	in, out := e.FrameSizes()
	if in != out {
		t.Fatalf("PCM passthrough in/out sizes differ: %d vs %d", in, out)
	}
	src := bytes.Repeat([]byte{0x01, 0x02}, in/2)
	dst := make([]byte, out)
	n, res, err := e.Encode(src, dst)
	if err != nil || res != ResultOk {
		t.Fatalf("Encode: n=%d res=%v err=%v", n, res, err)
	}
	if !bytes.Equal(dst[:n], src) {
		t.Fatalf("passthrough altered bytes")
	}
}

func TestPCMPassthroughBufTooSmall(t *testing.T) {
	e := NewPCMPassthrough(20)
	info := media.AudioInfo{SampleRate: 8000, Channels: 1, BitsPerSample: 16}
	e.Start(info)
	in, _ := e.FrameSizes()
	src := make([]byte, in)
	dst := make([]byte, in-1)
	_, res, err := e.Encode(src, dst)
	if err != nil {
		t.Fatalf("Encode should report BufTooSmall without an error, got %v", err)
	}
	if res != ResultBufTooSmall {
		t.Fatalf("res = %v, want ResultBufTooSmall", res)
	}
}

func TestG711ALawEncodesSilence(t *testing.T) {
	e := NewG711ALaw(20)
	info := media.AudioInfo{SampleRate: 8000, Channels: 1, BitsPerSample: 16}
	if err := e.Start(info); err != nil {
		t.Fatalf("Start: %v", err)
	}
	in, out := e.FrameSizes()
	if out != in/2 {
		t.Fatalf("A-law output size = %d, want %d (half of input)", out, in/2)
	}
	src := make([]byte, in) // all-zero == silence
	dst := make([]byte, out)
	n, res, err := e.Encode(src, dst)
	if err != nil || res != ResultOk {
		t.Fatalf("Encode: n=%d res=%v err=%v", n, res, err)
	}
	// A-law silence encodes to 0xD5 (0x55 sign-and-bias-flipped zero).
	for i := 0; i < n; i++ {
		if dst[i] != 0xD5 {
			t.Fatalf("A-law silence byte %d = %#x, want 0xd5", i, dst[i])
		}
	}
}

func TestG711MuLawEncodesSilence(t *testing.T) {
	e := NewG711MuLaw(20)
	info := media.AudioInfo{SampleRate: 8000, Channels: 1, BitsPerSample: 16}
	e.Start(info)
	in, out := e.FrameSizes()
	src := make([]byte, in)
	dst := make([]byte, out)
	n, res, err := e.Encode(src, dst)
	if err != nil || res != ResultOk {
		t.Fatalf("Encode: n=%d res=%v err=%v", n, res, err)
	}
	// mu-law silence encodes to 0xFF.
	for i := 0; i < n; i++ {
		if dst[i] != 0xFF {
			t.Fatalf("mu-law silence byte %d = %#x, want 0xff", i, dst[i])
		}
	}
}

func TestG711RejectsNon16Bit(t *testing.T) {
	e := NewG711ALaw(20)
	info := media.AudioInfo{SampleRate: 8000, Channels: 1, BitsPerSample: 8}
	if err := e.Start(info); err == nil {
		t.Fatal("Start with 8-bit input should be rejected")
	}
}

func TestEncodeBeforeStartIsRejected(t *testing.T) {
	e := NewPCMPassthrough(20)
	_, _, err := e.Encode(make([]byte, 10), make([]byte, 10))
	if err == nil {
		t.Fatal("Encode before Start should fail")
	}
}

func TestH264EncoderFrameSizePolicy(t *testing.T) {
	e := &H264Encoder{}
	info := media.VideoInfo{Width: 640, Height: 480}
	if err := e.Start(info); err != nil {
		t.Fatalf("Start: %v", err)
	}
	in, out := e.FrameSizes()
	raw := 640 * 480 * 3
	if in != raw {
		t.Fatalf("in = %d, want %d", in, raw)
	}
	if out != AlignUp128(raw) {
		t.Fatalf("out = %d, want %d", out, AlignUp128(raw))
	}
}

func TestH264EncoderWithoutBackendIsNotSupported(t *testing.T) {
	e := &H264Encoder{}
	e.Start(media.VideoInfo{Width: 64, Height: 64})
	_, _, err := e.Encode(make([]byte, 64*64*3), make([]byte, 4096))
	if err == nil {
		t.Fatal("Encode without an injected backend should fail")
	}
}

func TestH264EncoderWithInjectedBackend(t *testing.T) {
	e := &H264Encoder{EncodeFunc: func(in, out []byte) (int, bool) {
		return copy(out, in[:4]), true
	}}
	e.Start(media.VideoInfo{Width: 64, Height: 64})
	n, res, err := e.Encode(make([]byte, 64*64*3), make([]byte, 4096))
	if err != nil || res != ResultOk || n != 4 {
		t.Fatalf("n=%d res=%v err=%v", n, res, err)
	}
}

func TestAlignUp128(t *testing.T) {
	cases := map[int]int{0: 0, 1: 128, 128: 128, 129: 256, 921600: 921600}
	for in, want := range cases {
		if got := AlignUp128(in); got != want {
			t.Fatalf("AlignUp128(%d) = %d, want %d", in, got, want)
		}
	}
}
