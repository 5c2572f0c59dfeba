// Package source implements the capture-side producers: something
// that opens a device or file and hands raw audio/video frames to a
// CapturePath. The video backend wraps gocv's VideoCapture; the audio
// backend is a synthetic silence generator since this module has
// no real microphone driver to bind to.
package source

import (
	"time"

	"github.com/edgemedia/avrtc/media"
	"github.com/edgemedia/avrtc/mediaerr"
)

// Video is the capture-side video producer contract.
type Video interface {
	// Open prepares the device/file and reports the raw format it will
	// produce (resolution and FPS are source-determined, not
	// negotiated — CapturePath negotiates the encoder side instead).
	Open() (media.VideoInfo, error)
	// ReadFrame blocks until the next raw frame is available, or
	// returns an EOS frame once the source is exhausted (file sources
	// only; live sources never EOS on their own).
	ReadFrame() (media.StreamFrame, error)
	Close() error
}

// Audio is the capture-side audio producer contract.
type Audio interface {
	Open() (media.AudioInfo, error)
	ReadFrame() (media.StreamFrame, error)
	Close() error
}

var errNotOpened = mediaerr.New(mediaerr.WrongState, "source: Open not called")
var errClosed = mediaerr.New(mediaerr.WrongState, "source: already closed")

// SilenceAudio is a synthetic Audio source producing fixed-size
// all-zero PCM frames at a steady pace, standing in for a real
// microphone driver collaborator.
type SilenceAudio struct {
	info    media.AudioInfo
	frameMs int
	opened  bool
	closed  bool
	pts     uint32
	ticker  *time.Ticker
}

// NewSilenceAudio builds a synthetic source at the given format,
// pacing frameMs-millisecond frames (defaults to 20ms).
func NewSilenceAudio(info media.AudioInfo, frameMs int) *SilenceAudio {
	if frameMs <= 0 {
		frameMs = 20
	}
	return &SilenceAudio{info: info, frameMs: frameMs}
}

func (s *SilenceAudio) Open() (media.AudioInfo, error) {
	if s.closed {
		return media.AudioInfo{}, errClosed
	}
	s.opened = true
	s.ticker = time.NewTicker(time.Duration(s.frameMs) * time.Millisecond)
	return s.info, nil
}

func (s *SilenceAudio) ReadFrame() (media.StreamFrame, error) {
	if !s.opened {
		return media.StreamFrame{}, errNotOpened
	}
	if s.closed {
		return media.EOSFrame(media.Audio), nil
	}
	<-s.ticker.C
	n := s.info.FrameBytes(s.frameMs)
	frame := media.StreamFrame{Kind: media.Audio, PTS: s.pts, Data: make([]byte, n)}
	s.pts += uint32(s.frameMs)
	return frame, nil
}

func (s *SilenceAudio) Close() error {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.closed = true
	return nil
}
