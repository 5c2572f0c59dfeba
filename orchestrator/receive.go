package orchestrator

import (
	"github.com/edgemedia/avrtc/logx"
	"github.com/edgemedia/avrtc/media"
)

// Data-channel frame-kind prefix byte, used only when
// VideoOverDataChannel routes encoded video through send_data/on_data
// instead of send_video/on_video_data, as a fallback for peers without
// a negotiated video track. Every other data-channel byte stream is
// assumed to be application-level custom data and passed to
// DataHandler whole.
const (
	dcKindVideo byte = 0x01
	dcPTSLen         = 4
)

func encodeDCVideoFrame(data []byte, pts uint32) []byte {
	out := make([]byte, 1+dcPTSLen+len(data))
	out[0] = dcKindVideo
	out[1] = byte(pts)
	out[2] = byte(pts >> 8)
	out[3] = byte(pts >> 16)
	out[4] = byte(pts >> 24)
	copy(out[1+dcPTSLen:], data)
	return out
}

func decodeDCVideoFrame(raw []byte) (data []byte, pts uint32, ok bool) {
	if len(raw) < 1+dcPTSLen || raw[0] != dcKindVideo {
		return nil, 0, false
	}
	pts = uint32(raw[1]) | uint32(raw[2])<<8 | uint32(raw[3])<<16 | uint32(raw[4])<<24
	return raw[1+dcPTSLen:], pts, true
}

// handleAudioInfo configures the renderer's audio stream on the first
// callback only; later calls for the same stream are ignored.
func (o *Orchestrator) handleAudioInfo(info media.AudioInfo) {
	if o.audioInfoSeen.Swap(true) {
		return
	}
	if o.cfg.Render == nil || o.cfg.AudioDecoder == nil {
		return
	}
	if err := o.cfg.Render.AddAudioStream(info, o.cfg.AudioDecoder, o.cfg.AudioSink); err != nil {
		o.log.Debugc(logx.CategoryRender, "add audio stream failed", "err", err)
	}
}

// handleVideoInfo mirrors handleAudioInfo for video.
func (o *Orchestrator) handleVideoInfo(info media.VideoInfo) {
	if o.videoInfoSeen.Swap(true) {
		return
	}
	if o.cfg.Render == nil || o.cfg.VideoDecoder == nil {
		return
	}
	if err := o.cfg.Render.AddVideoStream(info, o.cfg.VideoDecoder, o.cfg.VideoSink); err != nil {
		o.log.Debugc(logx.CategoryRender, "add video stream failed", "err", err)
	}
}

func (o *Orchestrator) handleAudioData(data []byte, pts uint32) {
	if o.cfg.Render == nil {
		return
	}
	if err := o.cfg.Render.AddAudioData(data, pts, nil); err != nil {
		o.log.Debugc(logx.CategoryRender, "add audio data failed", "err", err)
	}
}

func (o *Orchestrator) handleVideoData(data []byte, pts uint32) {
	if o.cfg.VideoOverDataChannel {
		// Video arrives over on_data instead; on_video_data is not
		// expected to fire, but ignore defensively rather than double-push.
		return
	}
	if o.cfg.Render == nil {
		return
	}
	if err := o.cfg.Render.AddVideoData(data, pts, nil); err != nil {
		o.log.Debugc(logx.CategoryRender, "add video data failed", "err", err)
	}
}

// handleData demultiplexes data-channel bytes: a video-fallback frame
// goes to the renderer, everything else goes to the caller's
// application-level handler.
func (o *Orchestrator) handleData(data []byte) {
	if o.cfg.VideoOverDataChannel {
		if frame, pts, ok := decodeDCVideoFrame(data); ok {
			if o.cfg.Render != nil {
				if err := o.cfg.Render.AddVideoData(frame, pts, nil); err != nil {
					o.log.Debugc(logx.CategoryRender, "add video data (data channel) failed", "err", err)
				}
			}
			return
		}
	}
	if o.cfg.DataHandler != nil {
		o.cfg.DataHandler(data)
	}
}
