package capture

import (
	"context"

	"github.com/edgemedia/avrtc/encoder"
	"github.com/edgemedia/avrtc/logx"
	"github.com/edgemedia/avrtc/media"
	"github.com/edgemedia/avrtc/mediaerr"
)

// runEncodeLoop is the per-stream encoder thread: acquire a source
// frame, bypass-forward or encode-and-commit it into the DataQueue,
// release the source frame, repeat until EOS or ctx cancellation.
func runEncodeLoop(ctx context.Context, sp *streamPath, log *logx.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := readSourceFrame(sp)
		if err != nil {
			log.Debugc(logx.CategoryCapture, "source read error", "err", err)
			return
		}
		if frame.IsEOS() {
			sp.queue.Deinit()
			return
		}

		if sp.bypass {
			forward(sp, frame)
		} else {
			switch sp.kind {
			case media.Audio:
				encodeAudioFrame(sp, frame, log)
			case media.Video:
				encodeVideoFrame(sp, frame, log)
			}
		}
		frame.Release()
	}
}

func readSourceFrame(sp *streamPath) (media.StreamFrame, error) {
	if sp.kind == media.Audio {
		return sp.audioSrc.ReadFrame()
	}
	return sp.videoSrc.ReadFrame()
}

func forward(sp *streamPath, frame media.StreamFrame) {
	buf, err := sp.queue.Reserve(len(frame.Data))
	if err != nil {
		return
	}
	n := copy(buf, frame.Data)
	sp.queue.Commit(n)
}

func encodeAudioFrame(sp *streamPath, frame media.StreamFrame, log *logx.Logger) {
	_, outSize := sp.audioEnc.FrameSizes()
	out, err := sp.queue.Reserve(outSize)
	if err != nil {
		return
	}
	n, res, err := sp.audioEnc.Encode(frame.Data, out)
	if err != nil || res != encoder.ResultOk {
		sp.queue.Commit(0)
		if err != nil {
			log.Debugc(logx.CategoryCapture, "audio encode error", "err", err)
		}
		return
	}
	sp.queue.Commit(n)
}

func encodeVideoFrame(sp *streamPath, frame media.StreamFrame, log *logx.Logger) {
	_, outSize := sp.videoEnc.FrameSizes()
	out, err := sp.queue.Reserve(outSize)
	if err != nil {
		return
	}
	n, res, err := sp.videoEnc.Encode(frame.Data, out)
	if err != nil {
		if mediaerr.CodeOf(err) == mediaerr.NotEnough {
			sp.queue.Commit(0)
			return
		}
		sp.queue.Commit(0)
		log.Debugc(logx.CategoryCapture, "video encode error", "err", err)
		return
	}
	if res != encoder.ResultOk {
		sp.queue.Commit(0)
		return
	}
	sp.queue.Commit(n)
}
