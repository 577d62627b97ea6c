package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// maxPacketBytes bounds a single encoded opus packet.
const maxPacketBytes = frameBytes

type OpusEncoder struct {
	encoder *gopus.Encoder
}

func NewOpusEncoder() (Encoder, error) {
	encoder, err := gopus.NewEncoder(SampleRate, Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	return &OpusEncoder{
		encoder: encoder,
	}, nil
}

func (e *OpusEncoder) Encode(pcm []int16) ([]byte, error) {
	opus, err := e.encoder.Encode(pcm, FrameSize, maxPacketBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode opus: %w", err)
	}

	return opus, nil
}
