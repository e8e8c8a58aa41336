package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// Browser Opus capture is 48 kHz with 20 ms packets.
const (
	OpusSampleRate = 48000
	opusFrameSize  = OpusSampleRate * 20 / 1000 // 960 samples per channel
)

// OpusDecoder turns Opus packets from a single client into PCM frames.
// Decoder state carries across packets, so each client needs its own.
type OpusDecoder struct {
	dec      *gopus.Decoder
	channels int
}

// NewOpusDecoder creates a 48 kHz decoder for the given channel count.
func NewOpusDecoder(channels int) (*OpusDecoder, error) {
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("audio: opus: unsupported channel count %d", channels)
	}
	dec, err := gopus.NewDecoder(OpusSampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec, channels: channels}, nil
}

// Decode decodes one Opus packet into a PCM frame.
func (d *OpusDecoder) Decode(packet []byte) (Frame, error) {
	pcm, err := d.dec.Decode(packet, opusFrameSize, false)
	if err != nil {
		return Frame{}, fmt.Errorf("audio: opus decode: %w", err)
	}
	return Frame{Data: Int16ToBytes(pcm), SampleRate: OpusSampleRate, Channels: d.channels}, nil
}
