package encoder

import (
	"github.com/edgemedia/avrtc/media"
	"github.com/edgemedia/avrtc/mediaerr"
)

// PCMPassthrough is the trivial "encoder" for the PCM codec: the wire
// format already matches the raw samples, so Encode is a straight
// copy. It exists so CapturePath's negotiation has a real encoder to
// bypass instead of special-casing "no encoder" — bypass is still
// preferred whenever source codec == sink codec.
type PCMPassthrough struct {
	info    media.AudioInfo
	frameMs int
	started bool
}

// NewPCMPassthrough builds a PCM encoder pacing frameMs-millisecond
// frames (20ms is the default when no encoder paces input).
func NewPCMPassthrough(frameMs int) *PCMPassthrough {
	if frameMs <= 0 {
		frameMs = 20
	}
	return &PCMPassthrough{frameMs: frameMs}
}

func (e *PCMPassthrough) SupportedCodecs() []media.AudioCodec {
	return []media.AudioCodec{media.AudioCodecPCM}
}

func (e *PCMPassthrough) Start(info media.AudioInfo) error {
	e.info = info
	e.started = true
	return nil
}

func (e *PCMPassthrough) FrameSizes() (inBytes, outBytes int) {
	n := e.info.FrameBytes(e.frameMs)
	return n, n
}

func (e *PCMPassthrough) SetBitrate(int) error { return nil } // uncompressed: no-op

func (e *PCMPassthrough) Encode(in, out []byte) (int, Result, error) {
	if !e.started {
		return 0, ResultBadInput, errNotStarted
	}
	if len(out) < len(in) {
		return 0, ResultBufTooSmall, nil
	}
	n := copy(out, in)
	return n, ResultOk, nil
}

func (e *PCMPassthrough) Stop() error { e.started = false; return nil }

func (e *PCMPassthrough) Clone() Audio { return NewPCMPassthrough(e.frameMs) }

// linearToALaw/linearToMuLaw (below) implement the ITU-T G.711 A-law
// and mu-law companding curves: a closed-form bit transform, not a
// perceptual codec, so wrapping it in-process (rather than treating it
// as an opaque external codec like Opus/H.264) gives CapturePath/
// AVRender a real non-bypass encode path to exercise in tests.

// G711ALaw encodes 16-bit linear PCM to 8-bit A-law.
type G711ALaw struct {
	info    media.AudioInfo
	frameMs int
	started bool
}

func NewG711ALaw(frameMs int) *G711ALaw {
	if frameMs <= 0 {
		frameMs = 20
	}
	return &G711ALaw{frameMs: frameMs}
}

func (e *G711ALaw) SupportedCodecs() []media.AudioCodec { return []media.AudioCodec{media.AudioCodecG711A} }

func (e *G711ALaw) Start(info media.AudioInfo) error {
	if info.BitsPerSample != 16 {
		return mediaerr.New(mediaerr.InvalidArg, "G711ALaw.Start: requires 16-bit linear PCM input")
	}
	e.info = info
	e.started = true
	return nil
}

func (e *G711ALaw) FrameSizes() (inBytes, outBytes int) {
	in := e.info.FrameBytes(e.frameMs) // 16-bit samples
	return in, in / 2                  // one A-law byte per 16-bit sample
}

func (e *G711ALaw) SetBitrate(int) error { return nil } // fixed-rate codec

func (e *G711ALaw) Encode(in, out []byte) (int, Result, error) {
	if !e.started {
		return 0, ResultBadInput, errNotStarted
	}
	if len(in)%2 != 0 {
		return 0, ResultBadInput, mediaerr.New(mediaerr.BadData, "G711ALaw.Encode: odd input length")
	}
	n := len(in) / 2
	if len(out) < n {
		return 0, ResultBufTooSmall, nil
	}
	for i := 0; i < n; i++ {
		sample := int16(uint16(in[2*i]) | uint16(in[2*i+1])<<8)
		out[i] = linearToALaw(sample)
	}
	return n, ResultOk, nil
}

func (e *G711ALaw) Stop() error { e.started = false; return nil }

func (e *G711ALaw) Clone() Audio { return NewG711ALaw(e.frameMs) }

// G711MuLaw encodes 16-bit linear PCM to 8-bit mu-law.
type G711MuLaw struct {
	info    media.AudioInfo
	frameMs int
	started bool
}

func NewG711MuLaw(frameMs int) *G711MuLaw {
	if frameMs <= 0 {
		frameMs = 20
	}
	return &G711MuLaw{frameMs: frameMs}
}

func (e *G711MuLaw) SupportedCodecs() []media.AudioCodec { return []media.AudioCodec{media.AudioCodecG711U} }

func (e *G711MuLaw) Start(info media.AudioInfo) error {
	if info.BitsPerSample != 16 {
		return mediaerr.New(mediaerr.InvalidArg, "G711MuLaw.Start: requires 16-bit linear PCM input")
	}
	e.info = info
	e.started = true
	return nil
}

func (e *G711MuLaw) FrameSizes() (inBytes, outBytes int) {
	in := e.info.FrameBytes(e.frameMs)
	return in, in / 2
}

func (e *G711MuLaw) SetBitrate(int) error { return nil }

func (e *G711MuLaw) Encode(in, out []byte) (int, Result, error) {
	if !e.started {
		return 0, ResultBadInput, errNotStarted
	}
	if len(in)%2 != 0 {
		return 0, ResultBadInput, mediaerr.New(mediaerr.BadData, "G711MuLaw.Encode: odd input length")
	}
	n := len(in) / 2
	if len(out) < n {
		return 0, ResultBufTooSmall, nil
	}
	for i := 0; i < n; i++ {
		sample := int16(uint16(in[2*i]) | uint16(in[2*i+1])<<8)
		out[i] = linearToMuLaw(sample)
	}
	return n, ResultOk, nil
}

func (e *G711MuLaw) Stop() error { e.started = false; return nil }

func (e *G711MuLaw) Clone() Audio { return NewG711MuLaw(e.frameMs) }

// segAEnd/segUEnd and search implement the standard CCITT reference
// companding algorithm (the same segment-table approach used in most
// production G.711 implementations): find which of the 8 logarithmic
// segments a magnitude falls in, then pack segment+mantissa.
var segAEnd = [8]int32{0x1F, 0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF}
var segUEnd = [8]int32{0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF, 0x1FFF}

func search(val int32, table [8]int32) int {
	for i, bound := range table {
		if val <= bound {
			return i
		}
	}
	return len(table)
}

func linearToMuLaw(sample int16) byte {
	const bias = 0x84 >> 2
	const clip = 8159

	pcm := int32(sample) >> 2
	mask := byte(0xFF)
	if pcm < 0 {
		pcm = -pcm
		mask = 0x7F
	}
	if pcm > clip {
		pcm = clip
	}
	pcm += bias

	seg := search(pcm, segUEnd)
	if seg >= 8 {
		return 0x7F ^ mask
	}
	uval := byte(seg<<4) | byte((pcm>>(seg+1))&0x0F)
	return uval ^ mask
}

func linearToALaw(sample int16) byte {
	pcm := int32(sample) >> 3
	var mask byte
	if pcm >= 0 {
		mask = 0xD5
	} else {
		mask = 0x55
		pcm = -pcm - 1
	}

	seg := search(pcm, segAEnd)
	if seg >= 8 {
		return 0x7F ^ mask
	}
	var aval byte
	if seg < 2 {
		aval = byte(seg<<4) | byte((pcm>>1)&0x0F)
	} else {
		aval = byte(seg<<4) | byte((pcm>>uint(seg))&0x0F)
	}
	return aval ^ mask
}
