// cmd/avrtc-demo/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/edgemedia/avrtc/capture"
	"github.com/edgemedia/avrtc/decoder"
	"github.com/edgemedia/avrtc/encoder"
	"github.com/edgemedia/avrtc/logx"
	"github.com/edgemedia/avrtc/media"
	"github.com/edgemedia/avrtc/orchestrator"
	"github.com/edgemedia/avrtc/peer"
	"github.com/edgemedia/avrtc/render"
	"github.com/edgemedia/avrtc/signaling"
	"github.com/edgemedia/avrtc/source"
)

func main() {
	// CLI flags
	server := flag.String("server", "ws://localhost:8080/ws/hub", "signaling server URL")
	room := flag.String("room", "demo", "signaling room name")
	device := flag.String("video-device", "", "webcam device index or file path; empty disables video capture")
	turnSecret := flag.String("turn-secret", "", "shared secret for short-lived TURN credentials; empty uses STUN only")
	turnURL := flag.String("turn-url", "", "turn: URL, required if -turn-secret is set")
	dataChanVideo := flag.Bool("dc-video", false, "route video over the data channel instead of a media track")
	flag.Parse()

	myID := uuid.NewString()
	log.Printf("My ID: %s", myID)

	capt, rend, closeMedia := setupMedia(*device)
	defer closeMedia()

	iceServers := []peer.ICEServerConfig{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	if *turnSecret != "" {
		if *turnURL == "" {
			log.Fatalf("-turn-url is required when -turn-secret is set")
		}
		user, pass := peer.ShortLivedCredential(*turnSecret, myID, time.Hour)
		iceServers = append(iceServers, peer.ICEServerConfig{URLs: []string{*turnURL}, Username: user, Credential: pass})
	}

	orch := orchestrator.New(orchestrator.Config{
		Capture:   capt,
		Render:    rend,
		Peer:      peer.NewPionConnection(),
		Signaling: signaling.NewWSSignaling(),
		SignalingCfg: signaling.Config{
			URL:  *server,
			Room: *room,
			ID:   myID,
		},
		PeerCfg:              peer.Config{ICEServers: iceServers},
		AudioDecoder:         decoder.NewPCMPassthrough(),
		VideoDecoder:         decoder.NewMJPEGDecoder(),
		AudioSink:            &audioLogSink{},
		VideoSink:            &videoLogSink{},
		VideoOverDataChannel: *dataChanVideo,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := orch.Start(ctx); err != nil {
		log.Fatalf("orchestrator.Start: %v", err)
	}

	// handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutting down...")
	if err := orch.Close(); err != nil {
		log.Printf("orchestrator.Close: %v", err)
	}
}

// setupMedia wires a send-side Capture and a receive-side AVRender,
// returning a closer for both. If device is empty, video capture is
// skipped and Capture only carries the synthetic audio stream.
func setupMedia(device string) (*capture.Capture, *render.AVRender, func()) {
	audioInfo := media.AudioInfo{Codec: media.AudioCodecPCM, SampleRate: 8000, Channels: 1, BitsPerSample: 16}
	sink := media.SinkConfig{Audio: audioInfo}

	var vSrc source.Video
	var vEnc encoder.Video
	if device != "" {
		vSrc = source.NewWebcamVideo(device, 30)
		vEnc = encoder.NewMJPEGEncoder(0)
		sink.Video = media.VideoInfo{Codec: media.VideoCodecMJPEG, Width: 640, Height: 480, FPS: 30}
	}

	capt := capture.New(capture.Config{})
	if err := capt.Open(); err != nil {
		log.Fatalf("capture.Open: %v", err)
	}
	aSrc := source.NewSilenceAudio(audioInfo, 20)
	if err := capt.SetupPath(sink, aSrc, encoder.NewPCMPassthrough(20), vSrc, vEnc); err != nil {
		log.Fatalf("capture.SetupPath: %v", err)
	}
	if err := capt.EnablePath(true); err != nil {
		log.Fatalf("capture.EnablePath: %v", err)
	}
	if err := capt.Start(); err != nil {
		log.Fatalf("capture.Start: %v", err)
	}

	rend := render.Open(render.Config{SyncMode: render.SyncFollowAudio})
	rend.SetEventCB(func(ev render.Event) {
		logx.Default().Debugc(logx.CategoryRender, "render event", "kind", ev.Kind, "pts", ev.PTS, "err", ev.Err)
	})

	return capt, rend, func() {
		_ = capt.Close()
		rend.Close()
	}
}

// audioLogSink and videoLogSink are minimal AudioSink/VideoSink
// implementations that just log frame arrival — a stand-in for a real
// speaker/display collaborator, which is out of scope for this
// module.
type audioLogSink struct{}

func (s *audioLogSink) Configure(info media.AudioFrameInfo) error {
	logx.Default().Debugc(logx.CategoryRender, "audio sink configured", "rate", info.SampleRate, "channels", info.Channels)
	return nil
}

func (s *audioLogSink) Render(data []byte, pts uint32) error {
	logx.Default().Debugc(logx.CategoryRender, "audio sink render", "bytes", len(data), "pts", pts)
	return nil
}

func (s *audioLogSink) Close() error { return nil }

type videoLogSink struct{}

func (s *videoLogSink) Configure(info media.VideoFrameInfo) error {
	logx.Default().Debugc(logx.CategoryRender, "video sink configured", "width", info.Width, "height", info.Height)
	return nil
}

func (s *videoLogSink) Render(data []byte, pts uint32) error {
	logx.Default().Debugc(logx.CategoryRender, "video sink render", "bytes", len(data), "pts", pts)
	return nil
}

func (s *videoLogSink) Close() error { return nil }
