// Package render implements AVRender: per-stream raw FIFO -> decode
// thread -> render FIFO -> render thread -> sink, with cross-stream
// PTS synchronization, pause/flush/reset/speed control, and a
// data-pool buffer-ownership contract.
package render

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgemedia/avrtc/decoder"
	"github.com/edgemedia/avrtc/logx"
	"github.com/edgemedia/avrtc/media"
	"github.com/edgemedia/avrtc/mediaerr"
	"github.com/edgemedia/avrtc/sched"
)

// SyncMode selects how audio and video streams are paced against
// each other.
type SyncMode int

const (
	SyncNone SyncMode = iota
	SyncFollowAudio
	SyncFollowTime
)

// State is a single stream's position in the per-stream state machine.
type State int

const (
	StateIdle State = iota
	StateConfigured
	StateRunning
	StatePaused
	StateFlushed
	StateClosed
)

// EventKind identifies an asynchronous AVRender event.
type EventKind int

const (
	EventAudioRendered EventKind = iota
	EventVideoRendered
	EventAudioEOS
	EventVideoEOS
	EventAudioDecodeErr
	EventVideoDecodeErr
)

// Event is the payload handed to the caller's EventCB.
type Event struct {
	Kind EventKind
	PTS  uint32
	Err  error
}

// EventCB receives AVRender events. It is called synchronously on the
// decode or render goroutine that raised the event, so a slow callback
// delays that stage; a panicking callback is recovered and logged, not
// retried.
type EventCB func(Event)

// AudioSink is the hardware/application collaborator that consumes
// decoded audio frames.
type AudioSink interface {
	Configure(info media.AudioFrameInfo) error
	Render(data []byte, pts uint32) error
	Close() error
}

// VideoSink is the hardware/application collaborator that consumes
// decoded video frames.
type VideoSink interface {
	Configure(info media.VideoFrameInfo) error
	Render(data []byte, pts uint32) error
	Close() error
}

// Config mirrors the av_render_open option set.
type Config struct {
	SyncMode SyncMode

	AudioRawFIFOBytes    int
	VideoRawFIFOBytes    int
	// The render FIFO sizes count decoded frames, not bytes.
	AudioRenderFIFOBytes int
	VideoRenderFIFOBytes int

	QuitWhenEOS       bool
	AllowDropData     bool
	PauseRenderOnly   bool
	PauseOnFirstFrame bool
	VideoCvtInRender  bool

	// VideoOutputFormat is the pixel format AddVideoStream requests
	// from the video decoder's color-convert stage. VideoCodecNone
	// keeps the decoder's native output format (no conversion).
	VideoOutputFormat media.VideoCodec

	NameHook sched.NameHook
}

func (c Config) withDefaults() Config {
	if c.AudioRawFIFOBytes <= 0 {
		c.AudioRawFIFOBytes = 64 * 1024
	}
	if c.VideoRawFIFOBytes <= 0 {
		c.VideoRawFIFOBytes = 512 * 1024
	}
	if c.AudioRenderFIFOBytes <= 0 {
		c.AudioRenderFIFOBytes = 8
	}
	if c.VideoRenderFIFOBytes <= 0 {
		c.VideoRenderFIFOBytes = 4
	}
	return c
}

// AVRender owns up to one audio and one video stream.
type AVRender struct {
	cfg Config
	log *logx.Logger

	eventMu sync.Mutex
	eventCB EventCB

	audio *stream
	video *stream

	speedBits  uint64 // math.Float64bits(speed), atomic
	renderPTS  uint32 // atomic: audio's played-out clock, ms
	videoStart uint32 // atomic: video_start_pts

	poolFree func(data []byte, ctx any)

	fixedFrameInfoSet  bool
	fixedFrameInfo     media.VideoFrameInfo

	startWall     time.Time
	startWallOnce sync.Once
}

var (
	errWrongState = mediaerr.New(mediaerr.WrongState, "render: stream not in required state")
)

// Open builds an idle AVRender; streams are added with AddAudioStream/
// AddVideoStream.
func Open(cfg Config) *AVRender {
	r := &AVRender{cfg: cfg.withDefaults(), log: logx.Default()}
	atomic.StoreUint64(&r.speedBits, floatBits(1.0))
	return r
}

// SetEventCB installs (or clears, with nil) the async event callback.
func (r *AVRender) SetEventCB(cb EventCB) {
	r.eventMu.Lock()
	defer r.eventMu.Unlock()
	r.eventCB = cb
}

func (r *AVRender) emit(ev Event) {
	r.eventMu.Lock()
	cb := r.eventCB
	r.eventMu.Unlock()
	if cb == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Debugc(logx.CategoryRender, "event callback panicked", "panic", p)
		}
	}()
	cb(ev)
}

// UseDataPool installs a pool-free callback; buffers subsequently
// passed to AddAudioData/AddVideoData are considered pool-owned and
// free is called exactly once per buffer on every exit path.
func (r *AVRender) UseDataPool(free func(data []byte, ctx any)) {
	r.poolFree = free
}

// AddAudioStream configures and starts the audio decode+render
// threads for info, transitioning Idle -> Configured -> Running.
func (r *AVRender) AddAudioStream(info media.AudioInfo, dec decoder.Audio, sink AudioSink) error {
	if r.audio != nil && r.audio.state() != StateIdle && r.audio.state() != StateClosed {
		return errWrongState
	}
	if err := dec.Start(info); err != nil {
		return err
	}
	st := newStream(media.Audio, r.cfg.AudioRawFIFOBytes, r.cfg.AudioRenderFIFOBytes, r.cfg, r, r.log)
	st.audioDec = dec
	st.audioSink = sink
	r.audio = st
	st.start()
	return nil
}

// AddVideoStream mirrors AddAudioStream for video. The decoder's
// color-convert stage is configured from cfg.VideoOutputFormat, and if
// a fixed-frame-info hint was set, the sink is configured with it up
// front.
func (r *AVRender) AddVideoStream(info media.VideoInfo, dec decoder.Video, sink VideoSink) error {
	if r.video != nil && r.video.state() != StateIdle && r.video.state() != StateClosed {
		return errWrongState
	}
	if err := dec.Start(info); err != nil {
		return err
	}
	if err := dec.SetOutputFormat(r.cfg.VideoOutputFormat); err != nil {
		return err
	}
	st := newStream(media.Video, r.cfg.VideoRawFIFOBytes, r.cfg.VideoRenderFIFOBytes, r.cfg, r, r.log)
	st.videoDec = dec
	st.videoSink = sink
	r.video = st
	if sink != nil && r.fixedFrameInfoSet {
		if err := sink.Configure(r.fixedFrameInfo); err != nil {
			return err
		}
	}
	st.start()
	return nil
}

// SetFixedFrameInfo hints the video sink about a fixed framebuffer
// layout to configure up front (e.g. a display with no per-frame
// rescale path) rather than waiting on the first decoded frame. If a
// video stream is already attached, the sink is configured
// immediately; otherwise the hint applies to the next AddVideoStream.
func (r *AVRender) SetFixedFrameInfo(info media.VideoFrameInfo) error {
	r.fixedFrameInfo = info
	r.fixedFrameInfoSet = true
	if r.video != nil && r.video.videoSink != nil {
		return r.video.videoSink.Configure(info)
	}
	return nil
}

// AddAudioData pushes one encoded audio frame into the raw FIFO,
// blocking until space is available (unless the stream is closing).
// If a data pool is installed, pool releases frame.Pool/buf's owner
// exactly once on every path (consumed, dropped, or flushed).
func (r *AVRender) AddAudioData(data []byte, pts uint32, poolCtx any) error {
	if r.audio == nil {
		return mediaerr.New(mediaerr.NotSupported, "AddAudioData: no audio stream")
	}
	return r.audio.pushRaw(data, pts, poolCtx, r.poolFree)
}

// AddVideoData mirrors AddAudioData for video.
func (r *AVRender) AddVideoData(data []byte, pts uint32, poolCtx any) error {
	if r.video == nil {
		return mediaerr.New(mediaerr.NotSupported, "AddVideoData: no video stream")
	}
	return r.video.pushRaw(data, pts, poolCtx, r.poolFree)
}

// AudioFifoEnough reports whether the next AddAudioData of frameSize
// bytes would not block.
func (r *AVRender) AudioFifoEnough(frameSize int) bool {
	if r.audio == nil {
		return false
	}
	return r.audio.rawFIFO.Enough(frameSize)
}

// VideoFifoEnough mirrors AudioFifoEnough for video.
func (r *AVRender) VideoFifoEnough(frameSize int) bool {
	if r.video == nil {
		return false
	}
	return r.video.rawFIFO.Enough(frameSize)
}

// GetAudioFifoLevel reports (blockCount, bytes) currently queued in
// the audio raw FIFO.
func (r *AVRender) GetAudioFifoLevel() (int, int) {
	if r.audio == nil {
		return 0, 0
	}
	return r.audio.rawFIFO.Query()
}

// GetVideoFifoLevel mirrors GetAudioFifoLevel for video.
func (r *AVRender) GetVideoFifoLevel() (int, int) {
	if r.video == nil {
		return 0, 0
	}
	return r.video.rawFIFO.Query()
}

// GetRenderPts returns the audio clock's current played-out PTS, the
// basis for FollowAudio sync; monotonic during continuous playback,
// reset to 0 by Flush.
func (r *AVRender) GetRenderPts() uint32 {
	return atomic.LoadUint32(&r.renderPTS)
}

// SetVideoStartPts configures the drop threshold: decoded video
// frames with PTS below this are dropped (used to align video with a
// known audio start point).
func (r *AVRender) SetVideoStartPts(pts uint32) {
	atomic.StoreUint32(&r.videoStart, pts)
}

func (r *AVRender) videoStartAtomic() uint32 {
	return atomic.LoadUint32(&r.videoStart)
}

// SetSpeed stores the playback speed factor (a non-positive speed is
// stored as 1). The decode and render loops do not read it, so audio
// consumption rate and video sync are the same at every speed.
func (r *AVRender) SetSpeed(speed float64) {
	if speed <= 0 {
		speed = 1
	}
	atomic.StoreUint64(&r.speedBits, floatBits(speed))
}

func (r *AVRender) speed() float64 {
	return floatFromBits(atomic.LoadUint64(&r.speedBits))
}

// Pause suspends both streams (or only the render stage, per
// PauseRenderOnly) as a level, not an edge: repeated calls with the
// same value are idempotent.
func (r *AVRender) Pause(paused bool) {
	if r.audio != nil {
		r.audio.setPaused(paused)
	}
	if r.video != nil {
		r.video.setPaused(paused)
	}
}

// Flush clears both FIFOs and any stage-local buffers in both
// streams, and resets the audio render clock to 0.
func (r *AVRender) Flush() {
	if r.audio != nil {
		r.audio.flush()
	}
	if r.video != nil {
		r.video.flush()
	}
	atomic.StoreUint32(&r.renderPTS, 0)
	r.startWallOnce = sync.Once{}
}

// Reset stops the stream threads and tears down decoder state;
// streams return to Idle and can be re-added.
func (r *AVRender) Reset() {
	if r.audio != nil {
		r.audio.reset()
		r.audio = nil
	}
	if r.video != nil {
		r.video.reset()
		r.video = nil
	}
	atomic.StoreUint32(&r.renderPTS, 0)
}

// Close tears down everything; the AVRender cannot be reused
// afterward.
func (r *AVRender) Close() {
	r.Reset()
}

func floatBits(f float64) uint64      { return math.Float64bits(f) }
func floatFromBits(b uint64) float64 { return math.Float64frombits(b) }
