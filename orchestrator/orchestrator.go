// Package orchestrator wires Capture -> PeerConnection -> AVRender
// together: the PC main loop and send loop, receive-side callback
// fan-out, and the BYE/Disconnected reconnect policy.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgemedia/avrtc/capture"
	"github.com/edgemedia/avrtc/decoder"
	"github.com/edgemedia/avrtc/internal/worker"
	"github.com/edgemedia/avrtc/logx"
	"github.com/edgemedia/avrtc/mediaerr"
	"github.com/edgemedia/avrtc/peer"
	"github.com/edgemedia/avrtc/render"
	"github.com/edgemedia/avrtc/sched"
	"github.com/edgemedia/avrtc/signaling"
)

// Config wires the collaborators an Orchestrator drives. Capture and
// Render are optional independently: a receive-only orchestrator needs
// no Capture, a send-only one needs no decoders/sinks.
type Config struct {
	Capture      *capture.Capture
	Render       *render.AVRender
	Peer         peer.Connection
	Signaling    signaling.Transport
	SignalingCfg signaling.Config
	PeerCfg      peer.Config

	AudioDecoder decoder.Audio
	VideoDecoder decoder.Video
	AudioSink    render.AudioSink
	VideoSink    render.VideoSink

	// NoAutoReconnect disables the BYE/Disconnected reconnect policy;
	// the caller is responsible for recovery instead.
	NoAutoReconnect bool

	// VideoOverDataChannel routes encoded video frames through
	// send_data/on_data instead of send_video/on_video_data, for the
	// data-channel video fallback.
	VideoOverDataChannel bool

	// PendingConnect makes Start skip new_connection and makes
	// UpdateICEInfo stash ICE server info instead of applying it,
	// until EnableConnect is called.
	PendingConnect bool

	// DataHandler receives data-channel bytes that are not a
	// video-fallback frame (custom application payloads).
	DataHandler func(data []byte)

	PCLoopInterval   time.Duration
	SendLoopInterval time.Duration

	NameHook sched.NameHook
}

func (c Config) withDefaults() Config {
	if c.PCLoopInterval <= 0 {
		c.PCLoopInterval = 10 * time.Millisecond
	}
	if c.SendLoopInterval <= 0 {
		c.SendLoopInterval = 20 * time.Millisecond
	}
	return c
}

// Orchestrator is the top-level glue entity tying capture, peer
// connection, and rendering together into one managed session.
type Orchestrator struct {
	cfg Config
	log *logx.Logger

	mu             sync.Mutex
	pendingICE     []peer.ICEServerConfig
	pendingConnect bool

	pcWorker   *worker.Worker
	sendWorker *worker.Worker

	pcPaused atomic.Bool

	audioInfoSeen atomic.Bool
	videoInfoSeen atomic.Bool

	audioPTS atomic.Uint32
	videoPTS atomic.Uint32

	closed atomic.Bool
}

// New builds an Orchestrator and wires its callbacks onto cfg.Peer and
// cfg.Signaling. It does not start any threads; call Start for that.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{cfg: cfg.withDefaults(), log: logx.Default()}
	o.pendingConnect = cfg.PendingConnect
	o.wireCallbacks()
	return o
}

func (o *Orchestrator) wireCallbacks() {
	p := o.cfg.Peer
	if p == nil {
		return
	}
	p.OnState(o.handlePeerState)
	p.OnMsg(o.handlePeerMsg)
	p.OnAudioInfo(o.handleAudioInfo)
	p.OnVideoInfo(o.handleVideoInfo)
	p.OnAudioData(o.handleAudioData)
	p.OnVideoData(o.handleVideoData)
	p.OnData(o.handleData)
}

// Start opens the peer and signaling transports and launches the PC
// main loop thread. If PendingConnect is not set, it immediately
// requests a new connection.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.cfg.Peer == nil {
		return mediaerr.New(mediaerr.InvalidArg, "orchestrator.Start: no Peer configured")
	}
	if err := o.cfg.Peer.Open(o.cfg.PeerCfg); err != nil {
		return mediaerr.Wrap(mediaerr.Internal, "orchestrator.Start: peer open", err)
	}

	if o.cfg.Signaling != nil {
		if err := o.cfg.Signaling.Start(o.cfg.SignalingCfg, o); err != nil {
			return mediaerr.Wrap(mediaerr.Internal, "orchestrator.Start: signaling start", err)
		}
	}

	hint := sched.Resolve(o.cfg.NameHook, sched.PCTask)
	_ = hint
	o.pcWorker = worker.Start(context.Background(), o.runPCLoop)

	o.mu.Lock()
	pending := o.pendingConnect
	o.mu.Unlock()
	if !pending {
		if err := o.cfg.Peer.NewConnection(); err != nil {
			return mediaerr.Wrap(mediaerr.Internal, "orchestrator.Start: new_connection", err)
		}
	}
	return nil
}

// EnableConnect clears PendingConnect and, if ICE info had been
// stashed while pending, hands it to the peer and requests a new
// connection — the other half of the pending-connect stash.
func (o *Orchestrator) EnableConnect() error {
	o.mu.Lock()
	o.pendingConnect = false
	ice := o.pendingICE
	o.pendingICE = nil
	o.mu.Unlock()

	if len(ice) > 0 {
		if err := o.cfg.Peer.UpdateICEInfo(ice); err != nil {
			return err
		}
	}
	return o.cfg.Peer.NewConnection()
}

func (o *Orchestrator) runPCLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.PCLoopInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if o.pcPaused.Load() {
				continue
			}
			if err := o.cfg.Peer.MainLoop(ctx); err != nil {
				o.log.Debugc(logx.CategoryPeer, "pc main_loop tick error", "err", err)
			}
		}
	}
}

// PausePC suspends the PC loop's ticks without tearing down the
// worker goroutine.
func (o *Orchestrator) PausePC(paused bool) {
	o.pcPaused.Store(paused)
}

// Stop tears down the send loop, the PC loop, and the signaling
// transport, but leaves the peer connection itself to the caller
// (Close handles that).
func (o *Orchestrator) Stop() error {
	o.stopSendLoop()
	if o.pcWorker != nil {
		_ = o.pcWorker.Stop(2 * time.Second)
		o.pcWorker = nil
	}
	if o.cfg.Signaling != nil {
		return o.cfg.Signaling.Stop()
	}
	return nil
}

// Close tears everything down; the Orchestrator cannot be reused
// afterward.
func (o *Orchestrator) Close() error {
	if o.closed.Swap(true) {
		return nil
	}
	err := o.Stop()
	if o.cfg.Peer != nil {
		if cerr := o.cfg.Peer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (o *Orchestrator) handlePeerState(s peer.State) {
	switch s {
	case peer.StateConnected:
		o.startSendLoop()
	case peer.StateDisconnected, peer.StateConnectFailed:
		o.onDisconnected()
	}
}

// handlePeerMsg relays a message the peer produced locally (its own
// SDP offer/answer, a gathered ICE candidate) out through signaling.
func (o *Orchestrator) handlePeerMsg(kind peer.MsgKind, payload []byte) {
	if o.cfg.Signaling == nil {
		return
	}
	skind, ok := peerKindToSignaling(kind)
	if !ok {
		return
	}
	if err := o.cfg.Signaling.SendMsg(signaling.Message{Kind: skind, Payload: payload}); err != nil {
		o.log.Debugc(logx.CategorySignaling, "relay peer msg failed", "err", err)
	}
}

func peerKindToSignaling(k peer.MsgKind) (signaling.MsgKind, bool) {
	switch k {
	case peer.MsgSDPOffer:
		return signaling.MsgSDPOffer, true
	case peer.MsgSDPAnswer:
		return signaling.MsgSDPAnswer, true
	case peer.MsgCandidate:
		return signaling.MsgCandidate, true
	case peer.MsgBye:
		return signaling.MsgBye, true
	case peer.MsgCustomized:
		return signaling.MsgCustomized, true
	default:
		return 0, false
	}
}

func signalingKindToPeer(k signaling.MsgKind) (peer.MsgKind, bool) {
	switch k {
	case signaling.MsgSDPOffer:
		return peer.MsgSDPOffer, true
	case signaling.MsgSDPAnswer:
		return peer.MsgSDPAnswer, true
	case signaling.MsgCandidate:
		return peer.MsgCandidate, true
	case signaling.MsgBye:
		return peer.MsgBye, true
	case signaling.MsgCustomized:
		return peer.MsgCustomized, true
	default:
		return 0, false
	}
}

// OnMessage implements signaling.Handler: a remote signaling message
// arrived and is handed to the peer.
func (o *Orchestrator) OnMessage(msg signaling.Message) {
	if msg.Kind == signaling.MsgBye {
		o.onDisconnected()
		return
	}
	kind, ok := signalingKindToPeer(msg.Kind)
	if !ok {
		return
	}
	if err := o.cfg.Peer.SendMsg(kind, msg.Payload); err != nil {
		o.log.Debugc(logx.CategoryPeer, "deliver signaling msg to peer failed", "err", err)
	}
}

// OnConnected implements signaling.Handler.
func (o *Orchestrator) OnConnected() {}

// OnDisconnected implements signaling.Handler: a signaling-level
// disconnect triggers the same reconnect policy as a peer-level one.
func (o *Orchestrator) OnDisconnected(err error) {
	o.onDisconnected()
}

// onDisconnected is the BYE/Disconnected reconnect policy: pause the
// PC loop, reset the renderer's codec state for both streams, stop
// the send loop, request a new connection, resume.
func (o *Orchestrator) onDisconnected() {
	if o.cfg.NoAutoReconnect {
		return
	}
	o.PausePC(true)
	o.stopSendLoop()
	if o.cfg.Render != nil {
		o.cfg.Render.Reset()
	}
	o.audioInfoSeen.Store(false)
	o.videoInfoSeen.Store(false)

	if o.cfg.Peer != nil {
		if err := o.cfg.Peer.NewConnection(); err != nil {
			o.log.Debugc(logx.CategoryPeer, "reconnect new_connection failed", "err", err)
		}
	}
	o.PausePC(false)
}

// UpdateICEInfo is called by the caller's signaling-ICE-delivery glue
// (outside this package, since ICE credential fetch is transport- and
// TURN-server specific) once server info is available. If a connect is
// still pending, the info is stashed instead of applied immediately.
func (o *Orchestrator) UpdateICEInfo(servers []peer.ICEServerConfig) error {
	o.mu.Lock()
	pending := o.pendingConnect
	if pending {
		o.pendingICE = servers
	}
	o.mu.Unlock()
	if pending {
		return nil
	}
	return o.cfg.Peer.UpdateICEInfo(servers)
}
