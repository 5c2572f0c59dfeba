package peer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	rtcsample "github.com/pion/webrtc/v4/pkg/media"

	"github.com/edgemedia/avrtc/logx"
	"github.com/edgemedia/avrtc/media"
	"github.com/edgemedia/avrtc/mediaerr"
)

func mediaSample(data []byte, dur time.Duration) rtcsample.Sample {
	return rtcsample.Sample{Data: data, Duration: dur}
}

// TrackCodecs pins the SDP codec lines this adapter negotiates: a
// fixed H.264@109/Opus@111 MediaEngine registration.
var TrackCodecs = struct {
	VideoMimeType string
	VideoClock    uint32
	AudioMimeType string
	AudioClock    uint32
	AudioChannels uint16
}{
	VideoMimeType: webrtc.MimeTypeH264,
	VideoClock:    90000,
	AudioMimeType: webrtc.MimeTypeOpus,
	AudioClock:    48000,
	AudioChannels: 2,
}

// PionConnection is the reference Connection implementation backed by
// github.com/pion/webrtc/v4, grounded on webrtc/client.go's and
// client/client.go's PC lifecycle (SDP offer/answer, ICE candidates,
// TURN credentials, ICE restart on failure).
type PionConnection struct {
	log *logx.Logger

	mu   sync.Mutex
	cfg  Config
	api  *webrtc.API
	pc   *webrtc.PeerConnection
	dc   *webrtc.DataChannel

	sm *stateMachine
	dcState DataChannelState

	videoTrack *webrtc.TrackLocalStaticSample
	audioTrack *webrtc.TrackLocalStaticSample

	onMsg       MsgCB
	onVideoInfo VideoInfoCB
	onAudioInfo AudioInfoCB
	onVideoData VideoDataCB
	onAudioData AudioDataCB
	onData      DataCB

	videoInfoSent bool
	audioInfoSent bool
}

// NewPionConnection builds an unopened adapter; call Open to create
// the underlying pion PeerConnection.
func NewPionConnection() *PionConnection {
	return &PionConnection{log: logx.Default(), sm: newStateMachine()}
}

func (c *PionConnection) OnState(cb StateCB)         { c.sm.setCB(cb) }
func (c *PionConnection) OnMsg(cb MsgCB)             { c.mu.Lock(); c.onMsg = cb; c.mu.Unlock() }
func (c *PionConnection) OnVideoInfo(cb VideoInfoCB) { c.mu.Lock(); c.onVideoInfo = cb; c.mu.Unlock() }
func (c *PionConnection) OnAudioInfo(cb AudioInfoCB) { c.mu.Lock(); c.onAudioInfo = cb; c.mu.Unlock() }
func (c *PionConnection) OnVideoData(cb VideoDataCB) { c.mu.Lock(); c.onVideoData = cb; c.mu.Unlock() }
func (c *PionConnection) OnAudioData(cb AudioDataCB) { c.mu.Lock(); c.onAudioData = cb; c.mu.Unlock() }
func (c *PionConnection) OnData(cb DataCB)           { c.mu.Lock(); c.onData = cb; c.mu.Unlock() }

// Open builds the pion API/MediaEngine and local tracks; it does not
// yet create a PeerConnection (that happens on NewConnection, matching
// the Closed -> Disconnected -> NewConnection flow).
func (c *PionConnection) Open(cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg

	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    TrackCodecs.VideoMimeType,
			ClockRate:   TrackCodecs.VideoClock,
			SDPFmtpLine: "packetization-mode=1;profile-level-id=42e01f",
		},
		PayloadType: 109,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return mediaerr.Wrap(mediaerr.Internal, "peer.Open: RegisterCodec video", err)
	}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  TrackCodecs.AudioMimeType,
			ClockRate: TrackCodecs.AudioClock,
			Channels:  TrackCodecs.AudioChannels,
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return mediaerr.Wrap(mediaerr.Internal, "peer.Open: RegisterCodec audio", err)
	}
	c.api = webrtc.NewAPI(webrtc.WithMediaEngine(m))

	var err error
	c.videoTrack, err = webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: TrackCodecs.VideoMimeType}, "video", "avrtc-video")
	if err != nil {
		return mediaerr.Wrap(mediaerr.Internal, "peer.Open: NewTrackLocalStaticSample video", err)
	}
	c.audioTrack, err = webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: TrackCodecs.AudioMimeType}, "audio", "avrtc-audio")
	if err != nil {
		return mediaerr.Wrap(mediaerr.Internal, "peer.Open: NewTrackLocalStaticSample audio", err)
	}

	c.sm.transition(StateDisconnected)
	return nil
}

func (c *PionConnection) iceServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.cfg.ICEServers)+1)
	out = append(out, webrtc.ICEServer{URLs: []string{"stun:stun.l.google.com:19302"}})
	for _, s := range c.cfg.ICEServers {
		out = append(out, webrtc.ICEServer{URLs: s.URLs, Username: s.Username, Credential: s.Credential})
	}
	return out
}

// NewConnection tears down any existing PeerConnection and builds a
// fresh one, wiring track/ICE/state callbacks before moving to
// Pairing (ready to exchange SDP).
func (c *PionConnection) NewConnection() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pc != nil {
		_ = c.pc.Close()
	}

	pc, err := c.api.NewPeerConnection(webrtc.Configuration{ICEServers: c.iceServers()})
	if err != nil {
		c.sm.transition(StateConnectFailed)
		return mediaerr.Wrap(mediaerr.Internal, "peer.NewConnection", err)
	}
	c.pc = pc
	c.videoInfoSent = false
	c.audioInfoSent = false

	if _, err := pc.AddTrack(c.videoTrack); err != nil {
		return mediaerr.Wrap(mediaerr.Internal, "peer.NewConnection: AddTrack video", err)
	}
	if _, err := pc.AddTrack(c.audioTrack); err != nil {
		return mediaerr.Wrap(mediaerr.Internal, "peer.NewConnection: AddTrack audio", err)
	}

	dc, err := pc.CreateDataChannel("avrtc", nil)
	if err == nil {
		c.dc = dc
		dc.OnOpen(func() {
			c.mu.Lock()
			c.dcState = DataChannelOpened
			c.mu.Unlock()
		})
		dc.OnClose(func() {
			c.mu.Lock()
			c.dcState = DataChannelClosed
			c.mu.Unlock()
		})
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			c.mu.Lock()
			cb := c.onData
			c.mu.Unlock()
			if cb != nil {
				cb(msg.Data)
			}
		})
	}

	pc.OnTrack(c.handleRemoteTrack)

	pc.OnICECandidate(func(ice *webrtc.ICECandidate) {
		if ice == nil {
			return
		}
		c.emitMsg(MsgCandidate, []byte(ice.ToJSON().Candidate))
	})

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		if s == webrtc.ICEConnectionStateFailed {
			c.restartICE()
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateConnecting:
			c.sm.transition(StateConnecting)
		case webrtc.PeerConnectionStateConnected:
			c.sm.transition(StateConnected)
		case webrtc.PeerConnectionStateFailed:
			c.sm.transition(StateConnectFailed)
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
			c.sm.transition(StateDisconnected)
		}
	})

	c.sm.transition(StateNewConnection)
	c.sm.transition(StatePairing)
	return c.createAndSendOffer(pc, false)
}

func (c *PionConnection) createAndSendOffer(pc *webrtc.PeerConnection, iceRestart bool) error {
	var opts *webrtc.OfferOptions
	if iceRestart {
		opts = &webrtc.OfferOptions{ICERestart: true}
	}
	offer, err := pc.CreateOffer(opts)
	if err != nil {
		return mediaerr.Wrap(mediaerr.Internal, "peer: CreateOffer", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return mediaerr.Wrap(mediaerr.Internal, "peer: SetLocalDescription", err)
	}
	c.emitMsg(MsgSDPOffer, []byte(pc.LocalDescription().SDP))
	return nil
}

func (c *PionConnection) restartICE() {
	c.mu.Lock()
	pc := c.pc
	c.mu.Unlock()
	if pc == nil || pc.SignalingState() != webrtc.SignalingStateStable {
		return
	}
	if err := c.createAndSendOffer(pc, true); err != nil {
		c.log.Debugc(logx.CategoryPeer, "ICE restart failed", "err", err)
	}
}

func (c *PionConnection) handleRemoteTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	clockRate := track.Codec().ClockRate
	if clockRate == 0 {
		clockRate = 90000
	}
	startTS := uint32(0)
	haveStart := false

	if track.Kind() == webrtc.RTPCodecTypeVideo {
		c.mu.Lock()
		sent := c.videoInfoSent
		c.videoInfoSent = true
		cb := c.onVideoInfo
		c.mu.Unlock()
		if !sent && cb != nil {
			cb(media.VideoInfo{Codec: media.VideoCodecH264})
		}
	} else {
		c.mu.Lock()
		sent := c.audioInfoSent
		c.audioInfoSent = true
		cb := c.onAudioInfo
		c.mu.Unlock()
		if !sent && cb != nil {
			cb(media.AudioInfo{Codec: media.AudioCodecOpus, SampleRate: int(clockRate), Channels: int(track.Codec().Channels)})
		}
	}

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if !haveStart {
			startTS = pkt.Timestamp
			haveStart = true
		}
		pts := uint32(uint64(pkt.Timestamp-startTS) * 1000 / uint64(clockRate))

		if track.Kind() == webrtc.RTPCodecTypeVideo {
			c.mu.Lock()
			cb := c.onVideoData
			c.mu.Unlock()
			if cb != nil {
				cb(pkt.Payload, pts)
			}
		} else {
			c.mu.Lock()
			cb := c.onAudioData
			c.mu.Unlock()
			if cb != nil {
				cb(pkt.Payload, pts)
			}
		}
	}
}

func (c *PionConnection) emitMsg(kind MsgKind, payload []byte) {
	c.mu.Lock()
	cb := c.onMsg
	c.mu.Unlock()
	if cb != nil {
		cb(kind, payload)
	}
}

// UpdateICEInfo feeds freshly resolved ICE servers to the next
// NewConnection call (pion has no live-update API for an existing PC's
// ICEServers; this is normally applied before pairing).
func (c *PionConnection) UpdateICEInfo(servers []ICEServerConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.ICEServers = servers
	return nil
}

// SendMsg delivers a remote signaling message (answer/candidate/bye)
// into the PC.
func (c *PionConnection) SendMsg(kind MsgKind, payload []byte) error {
	c.mu.Lock()
	pc := c.pc
	c.mu.Unlock()
	if pc == nil {
		return mediaerr.New(mediaerr.WrongState, "peer.SendMsg: no active connection")
	}

	switch kind {
	case MsgSDPAnswer:
		if pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
			return mediaerr.New(mediaerr.WrongState, "peer.SendMsg: not awaiting an answer")
		}
		if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: string(payload)}); err != nil {
			return mediaerr.Wrap(mediaerr.BadData, "peer.SendMsg: SetRemoteDescription(answer)", err)
		}
		c.sm.transition(StatePaired)
		c.sm.transition(StateConnecting)
	case MsgSDPOffer:
		if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: string(payload)}); err != nil {
			return mediaerr.Wrap(mediaerr.BadData, "peer.SendMsg: SetRemoteDescription(offer)", err)
		}
		answer, err := pc.CreateAnswer(nil)
		if err != nil {
			return mediaerr.Wrap(mediaerr.Internal, "peer.SendMsg: CreateAnswer", err)
		}
		if err := pc.SetLocalDescription(answer); err != nil {
			return mediaerr.Wrap(mediaerr.Internal, "peer.SendMsg: SetLocalDescription(answer)", err)
		}
		c.emitMsg(MsgSDPAnswer, []byte(pc.LocalDescription().SDP))
	case MsgCandidate:
		if err := pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: string(payload)}); err != nil {
			return mediaerr.Wrap(mediaerr.BadData, "peer.SendMsg: AddICECandidate", err)
		}
	case MsgBye:
		c.sm.transition(StateDisconnected)
	default:
		return mediaerr.New(mediaerr.NotSupported, fmt.Sprintf("peer.SendMsg: unhandled kind %d", kind))
	}
	return nil
}

func (c *PionConnection) SendVideo(data []byte, pts uint32) error {
	c.mu.Lock()
	track := c.videoTrack
	c.mu.Unlock()
	if track == nil {
		return mediaerr.New(mediaerr.WrongState, "peer.SendVideo: not opened")
	}
	return track.WriteSample(mediaSample(data, time.Millisecond*time.Duration(33)))
}

func (c *PionConnection) SendAudio(data []byte, pts uint32) error {
	c.mu.Lock()
	track := c.audioTrack
	c.mu.Unlock()
	if track == nil {
		return mediaerr.New(mediaerr.WrongState, "peer.SendAudio: not opened")
	}
	return track.WriteSample(mediaSample(data, 20*time.Millisecond))
}

func (c *PionConnection) SendData(data []byte) error {
	c.mu.Lock()
	dc := c.dc
	c.mu.Unlock()
	if dc == nil {
		return mediaerr.New(mediaerr.WrongState, "peer.SendData: no data channel")
	}
	return dc.Send(data)
}

// MainLoop is a non-blocking tick; pion drives its callbacks off its
// own internal goroutines, so there is no per-tick protocol work left
// to do here beyond honoring cancellation.
func (c *PionConnection) MainLoop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (c *PionConnection) Disconnect() error {
	c.mu.Lock()
	pc := c.pc
	c.mu.Unlock()
	if pc != nil {
		_ = pc.Close()
	}
	c.sm.transition(StateDisconnected)
	return nil
}

func (c *PionConnection) Query() State { return c.sm.current() }

func (c *PionConnection) Close() error {
	c.mu.Lock()
	pc := c.pc
	c.pc = nil
	c.mu.Unlock()
	if pc != nil {
		_ = pc.Close()
	}
	c.sm.transition(StateDisconnected)
	c.sm.transition(StateClosed)
	return nil
}
