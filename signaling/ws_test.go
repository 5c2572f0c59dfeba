package signaling

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

type recordingHandler struct {
	mu         sync.Mutex
	messages   []Message
	connected  int
	disconnect error
	gotMsg     chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{gotMsg: make(chan struct{}, 16)}
}

func (h *recordingHandler) OnMessage(msg Message) {
	h.mu.Lock()
	h.messages = append(h.messages, msg)
	h.mu.Unlock()
	h.gotMsg <- struct{}{}
}
func (h *recordingHandler) OnConnected()            { h.mu.Lock(); h.connected++; h.mu.Unlock() }
func (h *recordingHandler) OnDisconnected(err error) { h.mu.Lock(); h.disconnect = err; h.mu.Unlock() }

func (h *recordingHandler) snapshot() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// echoOfferServer upgrades, drains the join message, then pushes a
// single "offer" message addressed to the connecting client.
func echoOfferServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var join map[string]any
		if err := conn.ReadJSON(&join); err != nil {
			return
		}
		myID, _ := join["from"].(string)

		conn.WriteJSON(map[string]any{
			"type":  "offer",
			"offer": map[string]string{"type": "offer", "sdp": "v=0 fake-sdp"},
			"from":  "remote-peer",
			"to":    myID,
			"room":  "room-1",
		})

		// keep the connection open until the client closes it
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestWSSignalingReceivesOffer(t *testing.T) {
	srv := echoOfferServer(t)
	defer srv.Close()

	h := newRecordingHandler()
	tr := NewWSSignaling()
	if err := tr.Start(Config{URL: wsURL(srv.URL), Room: "room-1", ID: "me"}, h); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop()

	select {
	case <-h.gotMsg:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for offer message")
	}

	msgs := h.snapshot()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Kind != MsgSDPOffer {
		t.Fatalf("kind = %v, want MsgSDPOffer", msgs[0].Kind)
	}
	if string(msgs[0].Payload) != "v=0 fake-sdp" {
		t.Fatalf("payload = %q, want the fake SDP", msgs[0].Payload)
	}
	if h.connected != 1 {
		t.Fatalf("OnConnected called %d times, want 1", h.connected)
	}
}

func TestWSSignalingSendMsgRoundTrip(t *testing.T) {
	var received chan map[string]any = make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var join map[string]any
		conn.ReadJSON(&join)

		var answer map[string]any
		if err := conn.ReadJSON(&answer); err == nil {
			received <- answer
		}
	}))
	defer srv.Close()

	h := newRecordingHandler()
	tr := NewWSSignaling()
	if err := tr.Start(Config{URL: wsURL(srv.URL), Room: "room-1", ID: "me"}, h); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop()

	if err := tr.SendMsg(Message{Kind: MsgSDPAnswer, To: "remote-peer", Payload: []byte("v=0 answer-sdp")}); err != nil {
		t.Fatalf("SendMsg: %v", err)
	}

	select {
	case got := <-received:
		if got["type"] != "answer" {
			t.Fatalf("type = %v, want answer", got["type"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for answer on the wire")
	}
}

func TestWSSignalingStopIsIdempotent(t *testing.T) {
	srv := echoOfferServer(t)
	defer srv.Close()

	h := newRecordingHandler()
	tr := NewWSSignaling()
	if err := tr.Start(Config{URL: wsURL(srv.URL), Room: "room-1", ID: "me"}, h); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tr.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := tr.Stop(); err != nil {
		t.Fatalf("second Stop should be a no-op, got: %v", err)
	}
}
