package render

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgemedia/avrtc/dataqueue"
	"github.com/edgemedia/avrtc/decoder"
	"github.com/edgemedia/avrtc/internal/worker"
	"github.com/edgemedia/avrtc/logx"
	"github.com/edgemedia/avrtc/media"
)

// stream is one audio-or-video pipeline: raw FIFO -> decode thread ->
// render FIFO -> render thread -> sink.
type stream struct {
	kind media.Kind
	cfg  Config
	r    *AVRender
	log  *logx.Logger

	rawFIFO   *dataqueue.Queue
	renderFIFO *frameFIFO

	audioDec  decoder.Audio
	videoDec  decoder.Video
	audioSink AudioSink
	videoSink VideoSink

	stMu       sync.Mutex
	st         State
	paused     bool
	eosSeen    bool
	firstFrame bool

	decodeWorker *worker.Worker
	renderWorker *worker.Worker
}

func newStream(kind media.Kind, rawBytes, renderFrames int, cfg Config, r *AVRender, log *logx.Logger) *stream {
	return &stream{
		kind:       kind,
		cfg:        cfg,
		r:          r,
		log:        log,
		rawFIFO:    dataqueue.New(rawBytes),
		renderFIFO: newFrameFIFO(renderFrames),
		st:         StateIdle,
	}
}

func (s *stream) state() State {
	s.stMu.Lock()
	defer s.stMu.Unlock()
	return s.st
}

func (s *stream) setState(st State) {
	s.stMu.Lock()
	s.st = st
	s.stMu.Unlock()
}

func (s *stream) setPaused(p bool) {
	s.stMu.Lock()
	s.paused = p
	s.stMu.Unlock()
	if !p {
		s.renderFIFO.wakeup()
	}
}

func (s *stream) isPaused() bool {
	s.stMu.Lock()
	defer s.stMu.Unlock()
	return s.paused
}

func (s *stream) start() {
	s.setState(StateConfigured)
	s.setState(StateRunning)
	s.decodeWorker = worker.Start(context.Background(), func(ctx context.Context) { s.decodeLoop(ctx) })
	s.renderWorker = worker.Start(context.Background(), func(ctx context.Context) { s.renderLoop(ctx) })
}

// pushRaw reserves space in the raw FIFO and copies data in, honoring
// the data-pool contract: if free is non-nil, it is called exactly
// once regardless of whether the push succeeds.
func (s *stream) pushRaw(data []byte, pts uint32, poolCtx any, poolFree func([]byte, any)) error {
	var release func()
	if poolFree != nil {
		release = func() { poolFree(data, poolCtx) }
	}
	defer func() {
		if release != nil {
			release()
		}
	}()

	buf, err := s.rawFIFO.Reserve(len(data) + ptsHeaderSize)
	if err != nil {
		return err
	}
	putPTSHeader(buf, pts)
	copy(buf[ptsHeaderSize:], data)
	return s.rawFIFO.Commit(len(data) + ptsHeaderSize)
}

const ptsHeaderSize = 4

func putPTSHeader(buf []byte, pts uint32) {
	buf[0] = byte(pts)
	buf[1] = byte(pts >> 8)
	buf[2] = byte(pts >> 16)
	buf[3] = byte(pts >> 24)
}

func getPTSHeader(buf []byte) uint32 {
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
}

// decodeLoop reads raw encoded frames, decodes them, and pushes
// decoded frames into the render FIFO. It honors the header-first
// decode contract: a ResultBufTooSmall report carries the frame's true
// VideoFrameInfo, which is used to size a fresh buffer and redrive the
// same payload rather than dropping it.
func (s *stream) decodeLoop(ctx context.Context) {
	decodeBuf := make([]byte, 256*1024)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if s.isPaused() && !s.cfg.PauseRenderOnly {
			time.Sleep(5 * time.Millisecond)
			continue
		}

		view, err := s.rawFIFO.ReadLock()
		if err != nil {
			return // closed
		}
		if len(view) == ptsHeaderSize {
			// zero-length payload with just a PTS header is this
			// stream's EOS marker (see flush/reset, which never
			// produce one; only an upstream EOS frame does).
			s.rawFIFO.ReadUnlock()
			s.handleEOS()
			if s.cfg.QuitWhenEOS {
				return
			}
			continue
		}

		pts := getPTSHeader(view)
		payload := append([]byte(nil), view[ptsHeaderSize:]...)
		s.rawFIFO.ReadUnlock()

		n, dropped := s.decodeOne(payload, &decodeBuf)
		if dropped {
			continue
		}
		out := make([]byte, n)
		copy(out, decodeBuf[:n])

		if s.kind == media.Video && pts < s.r.videoStartAtomic() {
			continue // video_start_pts drop
		}

		fr := decodedFrame{data: out, pts: pts}
		// never drop audio, even under allow_drop_data: only video is
		// permitted to shed late frames when it falls behind.
		dropOldest := s.cfg.AllowDropData && s.kind == media.Video
		s.renderFIFO.push(fr, dropOldest)
	}
}

// decodeOne decodes one frame into *out, growing *out and redriving
// the decode once if the decoder reports ResultBufTooSmall along with
// the frame's true size.
func (s *stream) decodeOne(in []byte, out *[]byte) (n int, dropped bool) {
	if s.kind == media.Audio {
		n, _, res, err := s.audioDec.Decode(in, *out)
		if res == decoder.ResultBufTooSmall {
			*out = make([]byte, len(*out)*2+len(in))
			n, _, res, err = s.audioDec.Decode(in, *out)
		}
		if err != nil || res != decoder.ResultOk {
			s.r.emit(Event{Kind: EventAudioDecodeErr, Err: err})
			return 0, true
		}
		return n, false
	}

	n, frameInfo, res, err := s.videoDec.Decode(in, *out)
	if res == decoder.ResultBufTooSmall {
		need := frameInfo.RawSize()
		if need <= len(*out) {
			need = len(*out) * 2
		}
		*out = make([]byte, need)
		n, frameInfo, res, err = s.videoDec.Decode(in, *out)
	}
	if err != nil || res != decoder.ResultOk {
		s.r.emit(Event{Kind: EventVideoDecodeErr, Err: err})
		return 0, true
	}
	return n, false
}

func (s *stream) handleEOS() {
	s.stMu.Lock()
	s.eosSeen = true
	s.stMu.Unlock()
	kind := EventAudioEOS
	if s.kind == media.Video {
		kind = EventVideoEOS
	}
	// EOS is in-band on the render FIFO too, so the render thread
	// drains whatever preceded it before surfacing the event itself;
	// push a sentinel frame rather than emitting here directly.
	s.renderFIFO.push(decodedFrame{eos: true}, false)
	_ = kind
}

// renderLoop drains the render FIFO and drives the sink, applying
// sync-mode pacing and pause.
func (s *stream) renderLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if s.isPaused() && !s.cfg.PauseRenderOnly {
			time.Sleep(5 * time.Millisecond)
			continue
		}

		fr, ok := s.renderFIFO.pop()
		if !ok {
			return // closed
		}
		if fr.eos {
			kind := EventAudioEOS
			if s.kind == media.Video {
				kind = EventVideoEOS
			}
			s.r.emit(Event{Kind: kind})
			if s.cfg.QuitWhenEOS {
				return
			}
			continue
		}

		for s.isPaused() {
			time.Sleep(5 * time.Millisecond)
			select {
			case <-ctx.Done():
				return
			default:
			}
		}

		s.waitForSync(fr.pts)
		s.renderOne(fr)

		if s.cfg.PauseOnFirstFrame && !s.firstFrame {
			s.firstFrame = true
			s.setPaused(true)
		}
	}
}

func (s *stream) waitForSync(pts uint32) {
	switch s.cfg.SyncMode {
	case SyncFollowAudio:
		if s.kind == media.Video {
			for {
				clock := s.r.GetRenderPts()
				if pts <= clock {
					return
				}
				if s.cfg.AllowDropData && pts > clock+5000 {
					return // too far in the future; render isn't meant to stall forever
				}
				time.Sleep(2 * time.Millisecond)
			}
		}
	case SyncFollowTime:
		s.r.startWallOnce.Do(func() { s.r.startWall = time.Now() })
		target := s.r.startWall.Add(time.Duration(pts) * time.Millisecond)
		if d := time.Until(target); d > 0 {
			time.Sleep(d)
		}
	}
}

func (s *stream) renderOne(fr decodedFrame) {
	if s.kind == media.Audio {
		if s.audioSink != nil {
			if err := s.audioSink.Render(fr.data, fr.pts); err != nil {
				s.r.emit(Event{Kind: EventAudioDecodeErr, Err: err})
				return
			}
		}
		atomicStoreMax(&s.r.renderPTS, fr.pts)
		s.r.emit(Event{Kind: EventAudioRendered, PTS: fr.pts})
		return
	}
	if s.videoSink != nil {
		if err := s.videoSink.Render(fr.data, fr.pts); err != nil {
			s.r.emit(Event{Kind: EventVideoDecodeErr, Err: err})
			return
		}
	}
	s.r.emit(Event{Kind: EventVideoRendered, PTS: fr.pts})
}

// flush clears both FIFOs without stopping the threads.
func (s *stream) flush() {
	s.rawFIFO.ConsumeAll()
	s.renderFIFO.drain()
	s.setState(StateFlushed)
	s.setState(StateRunning)
}

// reset stops both threads and tears down decoder state.
func (s *stream) reset() {
	s.rawFIFO.Deinit()
	s.renderFIFO.closeQueue()
	if s.decodeWorker != nil {
		s.decodeWorker.Stop(2 * time.Second)
	}
	if s.renderWorker != nil {
		s.renderWorker.Stop(2 * time.Second)
	}
	if s.audioDec != nil {
		s.audioDec.Stop()
	}
	if s.videoDec != nil {
		s.videoDec.Stop()
	}
	s.setState(StateConfigured)
}

func atomicStoreMax(addr *uint32, v uint32) {
	for {
		old := atomic.LoadUint32(addr)
		if v <= old {
			return
		}
		if atomic.CompareAndSwapUint32(addr, old, v) {
			return
		}
	}
}
