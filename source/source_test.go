package source

import (
	"testing"
	"time"

	"github.com/edgemedia/avrtc/media"
)

func TestSilenceAudioProducesPacedFrames(t *testing.T) {
	info := media.AudioInfo{SampleRate: 8000, Channels: 1, BitsPerSample: 16}
	s := NewSilenceAudio(info, 10)
	got, err := s.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got != info {
		s.Close()
		t.Fatalf("Open returned %+v, want %+v", got, info)
	}
	defer s.Close()

	want := info.FrameBytes(10)
	var lastPTS uint32
	for i := 0; i < 3; i++ {
		frame, err := s.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if len(frame.Data) != want {
			t.Fatalf("frame %d size = %d, want %d", i, len(frame.Data), want)
		}
		if i > 0 && frame.PTS <= lastPTS {
			t.Fatalf("PTS did not advance: %d -> %d", lastPTS, frame.PTS)
		}
		lastPTS = frame.PTS
	}
}

func TestSilenceAudioReadBeforeOpen(t *testing.T) {
	s := NewSilenceAudio(media.AudioInfo{SampleRate: 8000, Channels: 1, BitsPerSample: 16}, 10)
	if _, err := s.ReadFrame(); err == nil {
		t.Fatal("ReadFrame before Open should fail")
	}
}

func TestSilenceAudioEOSAfterClose(t *testing.T) {
	s := NewSilenceAudio(media.AudioInfo{SampleRate: 8000, Channels: 1, BitsPerSample: 16}, 5)
	s.Open()
	s.Close()
	frame, err := s.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !frame.IsEOS() {
		t.Fatal("ReadFrame after Close should return an EOS frame")
	}
}

func TestSilenceAudioPacing(t *testing.T) {
	s := NewSilenceAudio(media.AudioInfo{SampleRate: 8000, Channels: 1, BitsPerSample: 16}, 15)
	s.Open()
	defer s.Close()
	start := time.Now()
	for i := 0; i < 2; i++ {
		if _, err := s.ReadFrame(); err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("two 15ms frames returned too fast: %v", elapsed)
	}
}
