// Package peer defines the PeerConnection contract: a single
// bidirectional media+data session with a remote endpoint, abstracted
// behind an interface so the orchestrator never depends on a concrete
// WebRTC stack directly. PionConnection (pion.go) is the reference
// implementation.
package peer

import (
	"context"

	"github.com/edgemedia/avrtc/media"
)

// State is the peer connection's position in its lifecycle state
// machine.
type State int

const (
	StateClosed State = iota
	StateDisconnected
	StateNewConnection
	StatePairing
	StatePaired
	StateConnecting
	StateConnected
	StateConnectFailed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateDisconnected:
		return "disconnected"
	case StateNewConnection:
		return "new_connection"
	case StatePairing:
		return "pairing"
	case StatePaired:
		return "paired"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateConnectFailed:
		return "connect_failed"
	default:
		return "unknown"
	}
}

// DataChannelState is the parallel sub-state for the data channel.
type DataChannelState int

const (
	DataChannelClosed DataChannelState = iota
	DataChannelOpened
)

// MsgKind identifies the kind of an opaque signaling-relayed message,
// mirroring signaling.MsgKind (kept as a separate type since a peer
// implementation should not import the signaling package).
type MsgKind int

const (
	MsgSDPOffer MsgKind = iota
	MsgSDPAnswer
	MsgCandidate
	MsgBye
	MsgCustomized
)

// ICEServerConfig mirrors webrtc.ICEServer without depending on pion
// from this package's public surface.
type ICEServerConfig struct {
	URLs       []string
	Username   string
	Credential string
}

// Config configures a Connection at Open time.
type Config struct {
	ICEServers []ICEServerConfig
}

// StateCB, MsgCB and friends are the "callbacks produced" side of
// the Peer interface.
type (
	StateCB     func(State)
	MsgCB       func(kind MsgKind, payload []byte)
	VideoInfoCB func(media.VideoInfo)
	AudioInfoCB func(media.AudioInfo)
	VideoDataCB func(data []byte, pts uint32)
	AudioDataCB func(data []byte, pts uint32)
	DataCB      func(data []byte)
)

// Connection is the peer-connection contract consumed by the
// orchestrator: capabilities consumed (methods) and capabilities
// produced (On* callback setters).
type Connection interface {
	Open(cfg Config) error
	NewConnection() error
	UpdateICEInfo(servers []ICEServerConfig) error
	SendMsg(kind MsgKind, payload []byte) error
	SendVideo(data []byte, pts uint32) error
	SendAudio(data []byte, pts uint32) error
	SendData(data []byte) error
	// MainLoop performs one non-blocking tick of protocol housekeeping;
	// the orchestrator's PC thread calls it repeatedly.
	MainLoop(ctx context.Context) error
	Disconnect() error
	Query() State
	Close() error

	OnState(cb StateCB)
	OnMsg(cb MsgCB)
	OnVideoInfo(cb VideoInfoCB)
	OnAudioInfo(cb AudioInfoCB)
	OnVideoData(cb VideoDataCB)
	OnAudioData(cb AudioDataCB)
	OnData(cb DataCB)
}
