package source

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/edgemedia/avrtc/media"
	"github.com/edgemedia/avrtc/mediaerr"
)

// WebcamVideo captures raw BGR frames from a camera device or video
// file via gocv.VideoCapture, the standard OpenCV binding the CV
// pipeline in the wider pack already links against.
type WebcamVideo struct {
	devicePath string // "0", "1", ... for a device index, or a file path
	fps        int

	cap    *gocv.VideoCapture
	mat    gocv.Mat
	pts    uint32
	opened bool
	closed bool

	// DumpDir, when non-empty, writes every captured frame as a JPEG
	// into this directory for offline inspection — the debug-dump
	// sidecar is a plain config field here, never a package-level
	// singleton, so multiple sources can run with independent dump
	// policies in the same process.
	DumpDir string
	dumpSeq int
}

// NewWebcamVideo opens device/file devicePath, pacing frames at fps
// (used only to report VideoInfo.FPS; gocv.VideoCapture itself reads
// frames as fast as the device produces them).
func NewWebcamVideo(devicePath string, fps int) *WebcamVideo {
	if fps <= 0 {
		fps = 30
	}
	return &WebcamVideo{devicePath: devicePath, fps: fps}
}

func (v *WebcamVideo) Open() (media.VideoInfo, error) {
	if v.closed {
		return media.VideoInfo{}, errClosed
	}
	cap, err := gocv.OpenVideoCapture(v.devicePath)
	if err != nil {
		return media.VideoInfo{}, mediaerr.Wrap(mediaerr.Internal, "WebcamVideo.Open", err)
	}
	v.cap = cap
	v.mat = gocv.NewMat()
	v.opened = true

	info := media.VideoInfo{
		Codec:  media.VideoCodecYUV420P,
		Width:  int(cap.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(cap.Get(gocv.VideoCaptureFrameHeight)),
		FPS:    v.fps,
	}
	if info.Width == 0 || info.Height == 0 {
		info.Width, info.Height = 640, 480
	}
	return info, nil
}

func (v *WebcamVideo) ReadFrame() (media.StreamFrame, error) {
	if !v.opened {
		return media.StreamFrame{}, errNotOpened
	}
	if v.closed {
		return media.EOSFrame(media.Video), nil
	}
	if ok := v.cap.Read(&v.mat); !ok || v.mat.Empty() {
		return media.EOSFrame(media.Video), nil
	}

	if v.DumpDir != "" {
		v.dumpSeq++
		path := fmt.Sprintf("%s/frame-%06d.jpg", v.DumpDir, v.dumpSeq)
		gocv.IMWrite(path, v.mat)
	}

	data := make([]byte, v.mat.Total()*v.mat.Channels())
	copy(data, v.mat.ToBytes())
	frame := media.StreamFrame{Kind: media.Video, PTS: v.pts, Data: data}
	v.pts += uint32(1000 / v.fps)
	return frame, nil
}

func (v *WebcamVideo) Close() error {
	v.closed = true
	if v.cap != nil {
		v.cap.Close()
	}
	if v.opened {
		v.mat.Close()
	}
	return nil
}
