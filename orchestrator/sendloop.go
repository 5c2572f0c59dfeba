package orchestrator

import (
	"context"
	"time"

	"github.com/edgemedia/avrtc/internal/worker"
	"github.com/edgemedia/avrtc/logx"
	"github.com/edgemedia/avrtc/media"
	"github.com/edgemedia/avrtc/sched"
)

// startSendLoop launches the capture-to-peer pump once per connection:
// every tick it pulls all currently-available audio frames from the
// capture path and hands them to the peer, plus up to one video frame.
func (o *Orchestrator) startSendLoop() {
	if o.cfg.Capture == nil {
		return // receive-only orchestrator: nothing to pump
	}
	o.mu.Lock()
	already := o.sendWorker != nil
	if !already {
		o.sendWorker = worker.Start(context.Background(), o.runSendLoop)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) stopSendLoop() {
	o.mu.Lock()
	w := o.sendWorker
	o.sendWorker = nil
	o.mu.Unlock()
	if w != nil {
		_ = w.Stop(2 * time.Second)
	}
	o.audioPTS.Store(0)
	o.videoPTS.Store(0)
}

func (o *Orchestrator) runSendLoop(ctx context.Context) {
	hint := sched.Resolve(o.cfg.NameHook, sched.PCSend)
	_ = hint

	ticker := time.NewTicker(o.cfg.SendLoopInterval)
	defer ticker.Stop()
	tickMs := uint32(o.cfg.SendLoopInterval.Milliseconds())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.pumpAudio()
			o.pumpOneVideo(tickMs)
			// Once every negotiated stream has drained and deinited,
			// there is nothing left to pump.
			if o.cfg.Capture.Closed(media.Audio) && o.cfg.Capture.Closed(media.Video) {
				return
			}
		}
	}
}

// pumpAudio drains every currently-buffered audio frame.
func (o *Orchestrator) pumpAudio() {
	for o.cfg.Capture.Available(media.Audio) > 0 {
		data, err := o.cfg.Capture.Acquire(media.Audio)
		if err != nil {
			return
		}
		pts := o.audioPTS.Load()
		if err := o.cfg.Peer.SendAudio(data, pts); err != nil {
			o.log.Debugc(logx.CategoryPeer, "send_audio failed", "err", err)
		}
		if err := o.cfg.Capture.Release(media.Audio); err != nil {
			o.log.Debugc(logx.CategoryPeer, "release audio frame failed", "err", err)
		}
		o.audioPTS.Add(uint32(o.cfg.SendLoopInterval.Milliseconds()))
	}
}

// pumpOneVideo pulls at most one video frame per tick.
func (o *Orchestrator) pumpOneVideo(tickMs uint32) {
	if o.cfg.Capture.Available(media.Video) == 0 {
		return
	}
	data, err := o.cfg.Capture.Acquire(media.Video)
	if err != nil {
		return
	}
	defer func() {
		if err := o.cfg.Capture.Release(media.Video); err != nil {
			o.log.Debugc(logx.CategoryPeer, "release video frame failed", "err", err)
		}
	}()
	if len(data) == 0 {
		return
	}
	pts := o.videoPTS.Load()
	if o.cfg.VideoOverDataChannel {
		if err := o.cfg.Peer.SendData(encodeDCVideoFrame(data, pts)); err != nil {
			o.log.Debugc(logx.CategoryPeer, "send_data (video fallback) failed", "err", err)
		}
	} else if err := o.cfg.Peer.SendVideo(data, pts); err != nil {
		o.log.Debugc(logx.CategoryPeer, "send_video failed", "err", err)
	}
	o.videoPTS.Add(tickMs)
}
