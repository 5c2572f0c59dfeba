package signaling

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/edgemedia/avrtc/mediaerr"
)

// WSSignaling is the reference Transport implementation over a
// gorilla/websocket client connection, grounded on client/client.go's
// ConnectAndSignal dial+read-loop and websocket/websocket.go's JSON
// message shape (type/from/to/room plus a kind-specific payload key).
// Incoming frames are field-extracted with gjson rather than fully
// unmarshaled, since only a handful of top-level fields are ever read
// off an otherwise free-form, server-controlled blob.
type WSSignaling struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	h       Handler
	cfg     Config
	writeMu sync.Mutex
	done    chan struct{}
	stopped bool
}

// NewWSSignaling builds an unconnected transport.
func NewWSSignaling() *WSSignaling {
	return &WSSignaling{}
}

func (s *WSSignaling) Start(cfg Config, h Handler) error {
	url := fmt.Sprintf("%s?room=%s&playerId=%s", cfg.URL, cfg.Room, cfg.ID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return mediaerr.Wrap(mediaerr.Internal, "signaling.Start: dial", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.h = h
	s.cfg = cfg
	s.done = make(chan struct{})
	s.mu.Unlock()

	if err := s.writeJSON(map[string]any{
		"type": "join", "join": cfg.ID, "from": cfg.ID, "room": cfg.Room,
	}); err != nil {
		return mediaerr.Wrap(mediaerr.Internal, "signaling.Start: join", err)
	}

	h.OnConnected()
	go s.readLoop()
	return nil
}

func (s *WSSignaling) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return // Stop was called; not a real disconnect
			default:
			}
			s.h.OnDisconnected(err)
			return
		}
		msg, ok := parseIncoming(data, s.cfg.ID)
		if !ok {
			continue
		}
		s.h.OnMessage(msg)
	}
}

func parseIncoming(data []byte, myID string) (Message, bool) {
	root := gjson.ParseBytes(data)
	typ := root.Get("type").String()
	from := root.Get("from").String()
	to := root.Get("to").String()

	if typ != "join" && to != "" && to != myID {
		return Message{}, false
	}
	if typ == "join" && from == myID {
		return Message{}, false
	}

	msg := Message{From: from, To: to}
	switch typ {
	case "offer":
		msg.Kind = MsgSDPOffer
		msg.Payload = []byte(root.Get("offer.sdp").String())
	case "answer":
		msg.Kind = MsgSDPAnswer
		msg.Payload = []byte(root.Get("answer.sdp").String())
	case "candidate":
		msg.Kind = MsgCandidate
		msg.Payload = []byte(root.Get("candidate.candidate").String())
	case "leave", "bye":
		msg.Kind = MsgBye
	case "join":
		return Message{}, false
	default:
		msg.Kind = MsgCustomized
		msg.Payload = []byte(root.Get("content").Raw)
	}
	return msg, true
}

func (s *WSSignaling) SendMsg(msg Message) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	payload := map[string]any{"from": cfg.ID, "to": msg.To, "room": cfg.Room}
	switch msg.Kind {
	case MsgSDPOffer:
		payload["type"] = "offer"
		payload["offer"] = map[string]string{"type": "offer", "sdp": string(msg.Payload)}
	case MsgSDPAnswer:
		payload["type"] = "answer"
		payload["answer"] = map[string]string{"type": "answer", "sdp": string(msg.Payload)}
	case MsgCandidate:
		payload["type"] = "candidate"
		payload["candidate"] = map[string]string{"candidate": string(msg.Payload)}
	case MsgBye:
		payload["type"] = "leave"
	case MsgCustomized:
		payload["type"] = "custom"
		payload["content"] = json.RawMessage(msg.Payload)
	default:
		return mediaerr.New(mediaerr.InvalidArg, "signaling.SendMsg: unknown kind")
	}
	return s.writeJSON(payload)
}

func (s *WSSignaling) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return mediaerr.New(mediaerr.WrongState, "signaling: not started")
	}
	return conn.WriteJSON(v)
}

func (s *WSSignaling) Stop() error {
	s.mu.Lock()
	conn := s.conn
	done := s.done
	already := s.stopped
	s.stopped = true
	s.mu.Unlock()
	if already {
		return nil
	}
	if done != nil {
		close(done)
	}
	if conn == nil {
		return nil
	}
	return conn.Close()
}
