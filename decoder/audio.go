package decoder

import (
	"github.com/edgemedia/avrtc/media"
)

// PCMPassthrough decodes PCM "encoded" frames by copying them
// verbatim, mirroring encoder.PCMPassthrough for the reverse
// direction.
type PCMPassthrough struct {
	info    media.AudioInfo
	started bool
}

func NewPCMPassthrough() *PCMPassthrough { return &PCMPassthrough{} }

func (d *PCMPassthrough) SupportedCodecs() []media.AudioCodec {
	return []media.AudioCodec{media.AudioCodecPCM}
}

func (d *PCMPassthrough) Start(info media.AudioInfo) error {
	d.info = info
	d.started = true
	return nil
}

func (d *PCMPassthrough) Decode(in, out []byte) (int, media.AudioFrameInfo, Result, error) {
	if !d.started {
		return 0, media.AudioFrameInfo{}, ResultBadInput, errNotStarted
	}
	fi := media.AudioFrameInfo{SampleRate: d.info.SampleRate, Channels: d.info.Channels, BitsPerSample: d.info.BitsPerSample}
	if len(out) < len(in) {
		return 0, fi, ResultBufTooSmall, nil
	}
	n := copy(out, in)
	return n, fi, ResultOk, nil
}

func (d *PCMPassthrough) Stop() error { d.started = false; return nil }

// G711ALaw decodes 8-bit A-law back to 16-bit linear PCM.
type G711ALaw struct {
	info    media.AudioInfo
	started bool
}

func NewG711ALaw() *G711ALaw { return &G711ALaw{} }

func (d *G711ALaw) SupportedCodecs() []media.AudioCodec { return []media.AudioCodec{media.AudioCodecG711A} }

func (d *G711ALaw) Start(info media.AudioInfo) error {
	d.info = info
	d.info.BitsPerSample = 16
	d.started = true
	return nil
}

func (d *G711ALaw) Decode(in, out []byte) (int, media.AudioFrameInfo, Result, error) {
	if !d.started {
		return 0, media.AudioFrameInfo{}, ResultBadInput, errNotStarted
	}
	fi := media.AudioFrameInfo{SampleRate: d.info.SampleRate, Channels: d.info.Channels, BitsPerSample: 16}
	need := len(in) * 2
	if len(out) < need {
		return 0, fi, ResultBufTooSmall, nil
	}
	for i, b := range in {
		s := aLawToLinear(b)
		out[2*i] = byte(uint16(s))
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return need, fi, ResultOk, nil
}

func (d *G711ALaw) Stop() error { d.started = false; return nil }

// G711MuLaw decodes 8-bit mu-law back to 16-bit linear PCM.
type G711MuLaw struct {
	info    media.AudioInfo
	started bool
}

func NewG711MuLaw() *G711MuLaw { return &G711MuLaw{} }

func (d *G711MuLaw) SupportedCodecs() []media.AudioCodec { return []media.AudioCodec{media.AudioCodecG711U} }

func (d *G711MuLaw) Start(info media.AudioInfo) error {
	d.info = info
	d.info.BitsPerSample = 16
	d.started = true
	return nil
}

func (d *G711MuLaw) Decode(in, out []byte) (int, media.AudioFrameInfo, Result, error) {
	if !d.started {
		return 0, media.AudioFrameInfo{}, ResultBadInput, errNotStarted
	}
	fi := media.AudioFrameInfo{SampleRate: d.info.SampleRate, Channels: d.info.Channels, BitsPerSample: 16}
	need := len(in) * 2
	if len(out) < need {
		return 0, fi, ResultBufTooSmall, nil
	}
	for i, b := range in {
		s := muLawToLinear(b)
		out[2*i] = byte(uint16(s))
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return need, fi, ResultOk, nil
}

func (d *G711MuLaw) Stop() error { d.started = false; return nil }

func aLawToLinear(a byte) int16 {
	a ^= 0x55
	sign := a & 0x80
	exponent := (a & 0x70) >> 4
	mantissa := int32(a & 0x0F)

	var sample int32
	if exponent == 0 {
		sample = (mantissa << 4) + 8
	} else {
		sample = ((mantissa << 4) + 0x108) << (exponent - 1)
	}
	if sign == 0 {
		sample = -sample
	}
	return int16(sample)
}

func muLawToLinear(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exponent := (u & 0x70) >> 4
	mantissa := int32(u & 0x0F)

	sample := ((mantissa << 3) + 0x84) << exponent
	sample -= 0x84
	if sign != 0 {
		sample = -sample
	}
	return int16(sample)
}
