package render

import (
	"sync"
	"testing"
	"time"

	"github.com/edgemedia/avrtc/decoder"
	"github.com/edgemedia/avrtc/media"
)

// passthroughDecoder treats its input as already-decoded PCM.
type passthroughDecoder struct {
	info media.AudioInfo
}

func (d *passthroughDecoder) SupportedCodecs() []media.AudioCodec {
	return []media.AudioCodec{media.AudioCodecPCM}
}
func (d *passthroughDecoder) Start(info media.AudioInfo) error { d.info = info; return nil }
func (d *passthroughDecoder) Decode(in, out []byte) (int, media.AudioFrameInfo, decoder.Result, error) {
	n := copy(out, in)
	fi := media.AudioFrameInfo{SampleRate: d.info.SampleRate, Channels: d.info.Channels, BitsPerSample: d.info.BitsPerSample}
	return n, fi, decoder.ResultOk, nil
}
func (d *passthroughDecoder) Stop() error { return nil }

type recordingSink struct {
	mu       sync.Mutex
	rendered []uint32
}

func (s *recordingSink) Configure(media.AudioFrameInfo) error { return nil }
func (s *recordingSink) Render(data []byte, pts uint32) error {
	s.mu.Lock()
	s.rendered = append(s.rendered, pts)
	s.mu.Unlock()
	return nil
}
func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) snapshot() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint32, len(s.rendered))
	copy(out, s.rendered)
	return out
}

func TestAudioRenderPTSMonotonic(t *testing.T) {
	r := Open(Config{SyncMode: SyncNone, AudioRenderFIFOBytes: 8})
	sink := &recordingSink{}
	dec := &passthroughDecoder{}
	info := media.AudioInfo{Codec: media.AudioCodecPCM, SampleRate: 8000, Channels: 1, BitsPerSample: 16}
	if err := r.AddAudioStream(info, dec, sink); err != nil {
		t.Fatalf("AddAudioStream: %v", err)
	}
	defer r.Close()

	for i := uint32(0); i < 5; i++ {
		if err := r.AddAudioData([]byte{1, 2, 3, 4}, i*20, nil); err != nil {
			t.Fatalf("AddAudioData: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.snapshot()) < 5 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	got := sink.snapshot()
	if len(got) < 5 {
		t.Fatalf("only %d frames rendered, want 5", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i] < got[i-1] {
			t.Fatalf("render PTS not monotonic: %v", got)
		}
	}
	if r.GetRenderPts() == 0 {
		t.Fatal("GetRenderPts should reflect the last rendered frame")
	}
}

func TestFlushResetsRenderPts(t *testing.T) {
	r := Open(Config{AudioRenderFIFOBytes: 8})
	sink := &recordingSink{}
	dec := &passthroughDecoder{}
	info := media.AudioInfo{Codec: media.AudioCodecPCM, SampleRate: 8000, Channels: 1, BitsPerSample: 16}
	r.AddAudioStream(info, dec, sink)
	defer r.Close()

	r.AddAudioData([]byte{1, 2, 3, 4}, 100, nil)
	deadline := time.Now().Add(time.Second)
	for r.GetRenderPts() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if r.GetRenderPts() == 0 {
		t.Fatal("expected a rendered frame before flush")
	}
	r.Flush()
	if r.GetRenderPts() != 0 {
		t.Fatalf("GetRenderPts after Flush = %d, want 0", r.GetRenderPts())
	}
}

func TestEOSEmittedExactlyOnce(t *testing.T) {
	r := Open(Config{AudioRenderFIFOBytes: 8, QuitWhenEOS: false})
	sink := &recordingSink{}
	dec := &passthroughDecoder{}
	info := media.AudioInfo{Codec: media.AudioCodecPCM, SampleRate: 8000, Channels: 1, BitsPerSample: 16}

	var mu sync.Mutex
	eosCount := 0
	r.SetEventCB(func(ev Event) {
		if ev.Kind == EventAudioEOS {
			mu.Lock()
			eosCount++
			mu.Unlock()
		}
	})

	r.AddAudioStream(info, dec, sink)
	defer r.Close()

	r.AddAudioData([]byte{1, 2}, 0, nil)
	r.AddAudioData(nil, 0, nil) // EOS sentinel: size==0 && data==nil

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		c := eosCount
		mu.Unlock()
		if c >= 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(50 * time.Millisecond) // let any duplicate events surface
	mu.Lock()
	defer mu.Unlock()
	if eosCount != 1 {
		t.Fatalf("EventAudioEOS fired %d times, want exactly 1", eosCount)
	}
}

// fakeVideoDecoder reports its native frame size via VideoFrameInfo and
// honors ResultBufTooSmall like gocv's MJPEGDecoder does.
type fakeVideoDecoder struct {
	width, height int
	wantFormat    media.VideoCodec
}

func (d *fakeVideoDecoder) SupportedCodecs() []media.VideoCodec {
	return []media.VideoCodec{media.VideoCodecMJPEG}
}
func (d *fakeVideoDecoder) Start(info media.VideoInfo) error {
	d.width, d.height = info.Width, info.Height
	return nil
}
func (d *fakeVideoDecoder) SetOutputFormat(want media.VideoCodec) error {
	d.wantFormat = want
	return nil
}
func (d *fakeVideoDecoder) SetFrameBuffer(decoder.FrameBuffer) {}
func (d *fakeVideoDecoder) Decode(in, out []byte) (int, media.VideoFrameInfo, decoder.Result, error) {
	fi := media.VideoFrameInfo{Width: d.width, Height: d.height, Format: media.VideoCodecBGR24}
	need := fi.RawSize()
	if len(out) < need {
		return 0, fi, decoder.ResultBufTooSmall, nil
	}
	for i := 0; i < need; i++ {
		out[i] = byte(i)
	}
	return need, fi, decoder.ResultOk, nil
}
func (d *fakeVideoDecoder) Stop() error { return nil }

type recordingVideoSink struct {
	mu    sync.Mutex
	sizes []int
}

func (s *recordingVideoSink) Configure(media.VideoFrameInfo) error { return nil }
func (s *recordingVideoSink) Render(data []byte, pts uint32) error {
	s.mu.Lock()
	s.sizes = append(s.sizes, len(data))
	s.mu.Unlock()
	return nil
}
func (s *recordingVideoSink) Close() error { return nil }

func (s *recordingVideoSink) snapshot() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.sizes))
	copy(out, s.sizes)
	return out
}

// TestVideoDecodeBufTooSmallRedrives exercises the header-first decode
// contract: a 640x480 BGR24 frame (921600 bytes) is far larger than the
// decode loop's initial 256KB scratch buffer, forcing a BufTooSmall
// report on the first attempt. The frame must still be rendered at
// full size, not dropped.
func TestVideoDecodeBufTooSmallRedrives(t *testing.T) {
	r := Open(Config{SyncMode: SyncNone, VideoRenderFIFOBytes: 4, VideoRawFIFOBytes: 4 << 20})
	sink := &recordingVideoSink{}
	dec := &fakeVideoDecoder{}
	info := media.VideoInfo{Codec: media.VideoCodecMJPEG, Width: 640, Height: 480, FPS: 30}
	if err := r.AddVideoStream(info, dec, sink); err != nil {
		t.Fatalf("AddVideoStream: %v", err)
	}
	defer r.Close()

	payload := make([]byte, 4096) // fake encoded bitstream; fakeVideoDecoder ignores contents
	for i := 0; i < 3; i++ {
		if err := r.AddVideoData(payload, uint32(i*33), nil); err != nil {
			t.Fatalf("AddVideoData: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.snapshot()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	got := sink.snapshot()
	if len(got) != 3 {
		t.Fatalf("rendered %d video frames, want 3", len(got))
	}
	want := 640 * 480 * 3
	for _, n := range got {
		if n != want {
			t.Fatalf("rendered frame size = %d, want %d", n, want)
		}
	}
}

func TestAddVideoStreamWiresOutputFormat(t *testing.T) {
	r := Open(Config{VideoOutputFormat: media.VideoCodecRGB565})
	dec := &fakeVideoDecoder{}
	sink := &recordingVideoSink{}
	info := media.VideoInfo{Codec: media.VideoCodecMJPEG, Width: 64, Height: 48, FPS: 30}
	if err := r.AddVideoStream(info, dec, sink); err != nil {
		t.Fatalf("AddVideoStream: %v", err)
	}
	defer r.Close()
	if dec.wantFormat != media.VideoCodecRGB565 {
		t.Fatalf("decoder wantFormat = %v, want RGB565", dec.wantFormat)
	}
}

// TestFollowAudioDropBoundRendersFarFutureFrame: with no audio stream
// attached, the render clock never advances past 0. A video frame far
// enough in the future must still render under AllowDropData rather
// than stalling forever waiting for a clock that will never catch up.
func TestFollowAudioDropBoundRendersFarFutureFrame(t *testing.T) {
	r := Open(Config{SyncMode: SyncFollowAudio, AllowDropData: true, VideoRenderFIFOBytes: 4, VideoRawFIFOBytes: 1 << 20})
	sink := &recordingVideoSink{}
	dec := &fakeVideoDecoder{}
	info := media.VideoInfo{Codec: media.VideoCodecMJPEG, Width: 16, Height: 16, FPS: 30}
	if err := r.AddVideoStream(info, dec, sink); err != nil {
		t.Fatalf("AddVideoStream: %v", err)
	}
	defer r.Close()

	if err := r.AddVideoData(make([]byte, 64), 50000, nil); err != nil {
		t.Fatalf("AddVideoData: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for len(sink.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(sink.snapshot()) == 0 {
		t.Fatal("far-future video frame never rendered; drop bound not honored")
	}
}

// TestDataPoolFreeCalledExactlyOnce covers the data-pool contract: every
// buffer handed to AddAudioData with a pool-free callback and consumed
// is released exactly once (the rejected-push case is
// TestDataPoolFreeCalledOnceOnRejectedPush).
func TestDataPoolFreeCalledExactlyOnce(t *testing.T) {
	r := Open(Config{AudioRenderFIFOBytes: 8})
	sink := &recordingSink{}
	dec := &passthroughDecoder{}
	info := media.AudioInfo{Codec: media.AudioCodecPCM, SampleRate: 8000, Channels: 1, BitsPerSample: 16}
	if err := r.AddAudioStream(info, dec, sink); err != nil {
		t.Fatalf("AddAudioStream: %v", err)
	}
	defer r.Close()

	var mu sync.Mutex
	freeCount := map[int]int{}
	r.UseDataPool(func(data []byte, ctx any) {
		mu.Lock()
		freeCount[ctx.(int)]++
		mu.Unlock()
	})

	const n = 5
	for i := 0; i < n; i++ {
		buf := []byte{byte(i), byte(i), byte(i), byte(i)}
		if err := r.AddAudioData(buf, uint32(i*20), i); err != nil {
			t.Fatalf("AddAudioData(%d): %v", i, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.snapshot()) < n && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(freeCount) != n {
		t.Fatalf("free callback invoked for %d distinct buffers, want %d", len(freeCount), n)
	}
	for ctx, c := range freeCount {
		if c != 1 {
			t.Fatalf("buffer %d freed %d times, want exactly 1", ctx, c)
		}
	}
}

// TestDataPoolFreeCalledOnceOnRejectedPush: a buffer too large for the
// raw FIFO is rejected by Reserve before any copy happens, but the
// pool-free callback must still fire exactly once.
func TestDataPoolFreeCalledOnceOnRejectedPush(t *testing.T) {
	r := Open(Config{AudioRawFIFOBytes: 64, AudioRenderFIFOBytes: 8})
	sink := &recordingSink{}
	dec := &passthroughDecoder{}
	info := media.AudioInfo{Codec: media.AudioCodecPCM, SampleRate: 8000, Channels: 1, BitsPerSample: 16}
	if err := r.AddAudioStream(info, dec, sink); err != nil {
		t.Fatalf("AddAudioStream: %v", err)
	}
	defer r.Close()

	freed := 0
	r.UseDataPool(func(data []byte, ctx any) { freed++ })

	tooBig := make([]byte, 4096)
	if err := r.AddAudioData(tooBig, 0, nil); err == nil {
		t.Fatal("AddAudioData with an oversized buffer should fail")
	}
	if freed != 1 {
		t.Fatalf("pool free called %d times, want exactly 1", freed)
	}
}

func TestPauseIsIdempotent(t *testing.T) {
	r := Open(Config{AudioRenderFIFOBytes: 8})
	sink := &recordingSink{}
	dec := &passthroughDecoder{}
	info := media.AudioInfo{Codec: media.AudioCodecPCM, SampleRate: 8000, Channels: 1, BitsPerSample: 16}
	r.AddAudioStream(info, dec, sink)
	defer r.Close()

	r.Pause(true)
	r.Pause(true) // repeated pause must not deadlock or panic
	r.Pause(false)
	r.Pause(false)

	r.AddAudioData([]byte{1, 2, 3, 4}, 10, nil)
	deadline := time.Now().Add(time.Second)
	for len(sink.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(sink.snapshot()) == 0 {
		t.Fatal("frame never rendered after pause/unpause cycle")
	}
}
