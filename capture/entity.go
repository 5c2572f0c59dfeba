package capture

import (
	"github.com/edgemedia/avrtc/encoder"
	"github.com/edgemedia/avrtc/media"
	"github.com/edgemedia/avrtc/mediaerr"
	"github.com/edgemedia/avrtc/source"
)

// State is Capture's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateOpen
	StateStarted
	StateClosed
)

var (
	errNotOpen    = mediaerr.New(mediaerr.WrongState, "capture: not open")
	errNoPath     = mediaerr.New(mediaerr.WrongState, "capture: no path set up")
	errNotStarted = mediaerr.New(mediaerr.WrongState, "capture: not started")
)

// Capture owns zero-or-more sources and the one CapturePath bound to
// them, exposing the open/setup_path/enable_path/start/acquire/
// release/stop/close lifecycle.
type Capture struct {
	cfg   Config
	state State
	path  *CapturePath
}

// New builds an idle Capture.
func New(cfg Config) *Capture {
	return &Capture{cfg: cfg.withDefaults(), state: StateIdle}
}

// Open transitions Idle -> Open; no sources are touched yet.
func (c *Capture) Open() error {
	if c.state != StateIdle {
		return mediaerr.New(mediaerr.WrongState, "Capture.Open")
	}
	c.state = StateOpen
	return nil
}

// SetupPath creates and negotiates the one supported CapturePath.
func (c *Capture) SetupPath(sink media.SinkConfig, aSrc source.Audio, aEnc encoder.Audio, vSrc source.Video, vEnc encoder.Video) error {
	if c.state != StateOpen {
		return errNotOpen
	}
	c.path = NewCapturePath(c.cfg)
	return c.path.AddPath(sink, aSrc, aEnc, vSrc, vEnc)
}

// EnablePath starts or stops the negotiated path's encoder threads.
func (c *Capture) EnablePath(enable bool) error {
	if c.path == nil {
		return errNoPath
	}
	return c.path.EnablePath(enable)
}

// Start marks Capture as actively serving Acquire/Release calls.
func (c *Capture) Start() error {
	if c.path == nil {
		return errNoPath
	}
	c.state = StateStarted
	return nil
}

// Available reports how many committed, unread blocks are queued for
// kind k, letting a non-blocking caller (the orchestrator's send loop)
// decide whether an Acquire call would return immediately.
func (c *Capture) Available(k media.Kind) int {
	if c.path == nil {
		return 0
	}
	q := c.path.Queue(k)
	if q == nil {
		return 0
	}
	n, _ := q.Query()
	return n
}

// Closed reports whether kind k's stream has hit EOS (its DataQueue
// was deinited) or was never negotiated at all — the latter case is
// reported as "closed" too so a poller waiting on every configured
// stream to close doesn't wait forever on one that was demoted.
func (c *Capture) Closed(k media.Kind) bool {
	if c.path == nil {
		return true
	}
	q := c.path.Queue(k)
	if q == nil {
		return true
	}
	return q.Closed()
}

// Acquire non-destructively reads the head block of kind k's queue:
// the data is on loan until Release advances the read pointer.
func (c *Capture) Acquire(k media.Kind) ([]byte, error) {
	if c.state != StateStarted {
		return nil, errNotStarted
	}
	q := c.path.Queue(k)
	if q == nil {
		return nil, mediaerr.New(mediaerr.NotSupported, "Capture.Acquire: stream demoted or absent")
	}
	return q.ReadLock()
}

// Release advances the read pointer past the most recently acquired
// block for kind k.
func (c *Capture) Release(k media.Kind) error {
	q := c.path.Queue(k)
	if q == nil {
		return mediaerr.New(mediaerr.NotSupported, "Capture.Release: stream demoted or absent")
	}
	return q.ReadUnlock()
}

// SetPathBitrate forwards a live bitrate change to kind k's encoder on
// the negotiated path.
func (c *Capture) SetPathBitrate(k media.Kind, bps int) error {
	if c.path == nil {
		return errNoPath
	}
	return c.path.SetPathBitrate(k, bps)
}

// Stop disables the path's encoder threads without closing sources.
func (c *Capture) Stop() error {
	if c.path != nil {
		return c.path.EnablePath(false)
	}
	return nil
}

// Close tears down the path and transitions to Closed; Capture cannot
// be reused afterward (construct a new one).
func (c *Capture) Close() error {
	if c.state == StateClosed {
		return nil
	}
	err := c.Stop()
	c.state = StateClosed
	return err
}
