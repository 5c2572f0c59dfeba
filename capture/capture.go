// Package capture implements CapturePath and Capture: a per-sink
// source→[encoder]→DataQueue pipeline with codec-negotiation
// encoder-bypass, plus the owning Capture entity that manages path
// lifecycle and frame acquire/release.
package capture

import (
	"context"
	"time"

	"github.com/edgemedia/avrtc/dataqueue"
	"github.com/edgemedia/avrtc/encoder"
	"github.com/edgemedia/avrtc/internal/worker"
	"github.com/edgemedia/avrtc/logx"
	"github.com/edgemedia/avrtc/media"
	"github.com/edgemedia/avrtc/mediaerr"
	"github.com/edgemedia/avrtc/sched"
	"github.com/edgemedia/avrtc/source"
)

// Config tunes CapturePath's timing and queue sizing.
type Config struct {
	QueueBytes          int
	AudioDisableTimeout time.Duration // default 100s
	VideoDisableTimeout time.Duration // default 10s
	NameHook            sched.NameHook
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.QueueBytes <= 0 {
		out.QueueBytes = 1 << 20
	}
	if out.AudioDisableTimeout <= 0 {
		out.AudioDisableTimeout = 100 * time.Second
	}
	if out.VideoDisableTimeout <= 0 {
		out.VideoDisableTimeout = 10 * time.Second
	}
	return out
}

// streamPath is one stream's (audio or video) negotiated pipeline.
type streamPath struct {
	kind media.Kind

	audioSrc source.Audio
	videoSrc source.Video
	audioEnc encoder.Audio
	videoEnc encoder.Video
	bypass   bool

	queue *dataqueue.Queue

	worker  *worker.Worker
	enabled bool
	timeout time.Duration
}

// CapturePath is one negotiated sink's source→[encoder]→DataQueue
// pipeline; see Capture for the owning lifecycle entity.
type CapturePath struct {
	cfg Config
	log *logx.Logger

	audio *streamPath
	video *streamPath
}

var errDuplicatePath = mediaerr.New(mediaerr.WrongState, "capture: add_path called twice without close")

// NewCapturePath builds an un-added path; call AddPath to negotiate.
func NewCapturePath(cfg Config) *CapturePath {
	return &CapturePath{cfg: cfg.withDefaults(), log: logx.Default()}
}

// AddPath negotiates codecs for the requested sink and wires up the
// DataQueue(s). aSrc/vSrc may be nil to disable that stream. aEnc/vEnc
// may be nil if the stream has no encoder at all (pure passthrough).
func (p *CapturePath) AddPath(sink media.SinkConfig, aSrc source.Audio, aEnc encoder.Audio, vSrc source.Video, vEnc encoder.Video) error {
	if p.audio != nil || p.video != nil {
		return errDuplicatePath
	}
	if aSrc != nil {
		sp, err := p.negotiateAudio(sink.Audio, aSrc, aEnc)
		if err != nil {
			return err
		}
		p.audio = sp
	}
	if vSrc != nil {
		sp, err := p.negotiateVideo(sink.Video, vSrc, vEnc)
		if err != nil {
			return err
		}
		p.video = sp
	}
	return nil
}

func (p *CapturePath) negotiateAudio(sink media.AudioInfo, src source.Audio, enc encoder.Audio) (*streamPath, error) {
	srcInfo, err := src.Open()
	if err != nil {
		return nil, err
	}

	sp := &streamPath{kind: media.Audio, audioSrc: src, timeout: p.cfg.AudioDisableTimeout}

	if srcInfo.Codec == sink.Codec {
		sp.bypass = true
		sp.queue = dataqueue.New(p.cfg.QueueBytes)
		return sp, nil
	}
	if enc == nil {
		// no encoder to bridge the gap: demote to None, stream continues disabled.
		p.log.Debugc(logx.CategoryCapture, "audio path demoted: no encoder for codec mismatch")
		sink.Codec = media.AudioCodecNone
		return sp, nil
	}
	supported := false
	for _, c := range enc.SupportedCodecs() {
		if c == sink.Codec {
			supported = true
			break
		}
	}
	if !supported {
		p.log.Debugc(logx.CategoryCapture, "audio path demoted: encoder does not support sink codec")
		return sp, nil
	}
	if err := enc.Start(srcInfo); err != nil {
		return nil, err
	}
	sp.audioEnc = enc
	sp.queue = dataqueue.New(p.cfg.QueueBytes)
	return sp, nil
}

func (p *CapturePath) negotiateVideo(sink media.VideoInfo, src source.Video, enc encoder.Video) (*streamPath, error) {
	srcInfo, err := src.Open()
	if err != nil {
		return nil, err
	}

	sp := &streamPath{kind: media.Video, videoSrc: src, timeout: p.cfg.VideoDisableTimeout}

	if srcInfo.Codec == sink.Codec {
		sp.bypass = true
		sp.queue = dataqueue.New(p.cfg.QueueBytes)
		return sp, nil
	}
	if enc == nil {
		p.log.Debugc(logx.CategoryCapture, "video path demoted: no encoder for codec mismatch")
		return sp, nil
	}
	feasible := false
	for _, in := range enc.InputCodecs(sink.Codec) {
		if in == srcInfo.Codec {
			feasible = true
			break
		}
	}
	if !feasible {
		p.log.Debugc(logx.CategoryCapture, "video path demoted: source format not accepted by encoder")
		return sp, nil
	}
	if err := enc.Start(srcInfo); err != nil {
		return nil, err
	}
	sp.videoEnc = enc
	sp.queue = dataqueue.New(p.cfg.QueueBytes)
	return sp, nil
}

// GetAudioFrameSamples reports the sample count CapturePath pulls per
// encode call: the encoder's required input size when active, 20ms
// otherwise.
func (p *CapturePath) GetAudioFrameSamples(rate int) int {
	if p.audio != nil && p.audio.audioEnc != nil {
		in, _ := p.audio.audioEnc.FrameSizes()
		return in
	}
	return rate * 20 / 1000
}

// EnablePath starts or stops the encoder thread(s) for whichever
// streams were successfully negotiated.
func (p *CapturePath) EnablePath(enable bool) error {
	if enable {
		if p.audio != nil && p.audio.queue != nil && !p.audio.enabled {
			p.startStream(p.audio, sched.AEnc)
		}
		if p.video != nil && p.video.queue != nil && !p.video.enabled {
			p.startStream(p.video, sched.VEnc)
		}
		return nil
	}
	var firstErr error
	if p.audio != nil {
		if err := p.stopStream(p.audio); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.video != nil {
		if err := p.stopStream(p.video); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *CapturePath) startStream(sp *streamPath, name string) {
	sp.enabled = true
	hint := sched.Resolve(p.cfg.NameHook, name)
	_ = hint // stack/priority/core sizing hook; this Go port has no thread-level knob to apply it to
	sp.worker = worker.Start(context.Background(), func(ctx context.Context) {
		runEncodeLoop(ctx, sp, p.log)
	})
}

func (p *CapturePath) stopStream(sp *streamPath) error {
	if !sp.enabled {
		return nil
	}
	sp.enabled = false
	if sp.queue != nil {
		sp.queue.Wakeup()
	}
	var err error
	if sp.worker != nil {
		err = sp.worker.Stop(sp.timeout)
	}
	if sp.audioEnc != nil {
		sp.audioEnc.Stop()
	}
	if sp.videoEnc != nil {
		sp.videoEnc.Stop()
	}
	return err
}

// Queue exposes the negotiated DataQueue for kind k, or nil if that
// stream was demoted or never added.
func (p *CapturePath) Queue(k media.Kind) *dataqueue.Queue {
	switch k {
	case media.Audio:
		if p.audio != nil {
			return p.audio.queue
		}
	case media.Video:
		if p.video != nil {
			return p.video.queue
		}
	}
	return nil
}

// SetPathBitrate updates the live encoder bitrate for kind k's stream.
// A no-op if that stream is bypassed or was demoted to no encoder.
func (p *CapturePath) SetPathBitrate(k media.Kind, bps int) error {
	switch k {
	case media.Audio:
		if p.audio != nil && p.audio.audioEnc != nil {
			return p.audio.audioEnc.SetBitrate(bps)
		}
	case media.Video:
		if p.video != nil && p.video.videoEnc != nil {
			return p.video.videoEnc.SetBitrate(bps)
		}
	}
	return nil
}
