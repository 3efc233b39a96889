package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 decodes an MP3 stream to a mono buffer at its native rate.
// go-mp3 always yields interleaved 16-bit stereo, which is averaged down.
func DecodeMP3(r io.Reader) (*Buffer, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode error: %w", err)
	}

	frames := len(raw) / 4
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		left := int16(binary.LittleEndian.Uint16(raw[i*4:]))
		right := int16(binary.LittleEndian.Uint16(raw[i*4+2:]))
		out[i] = (float64(left) + float64(right)) * 0.5 / fullScale
	}
	return NewBuffer(dec.SampleRate(), out), nil
}

// DecodeClip decodes a synthesized clip, WAV or MP3, and resamples it to
// sampleRate.
func DecodeClip(data []byte, sampleRate int) (*Buffer, error) {
	var (
		buf *Buffer
		err error
	)
	if IsWAV(data) {
		buf, err = DecodeWAV(bytes.NewReader(data))
	} else {
		buf, err = DecodeMP3(bytes.NewReader(data))
	}
	if err != nil {
		return nil, err
	}
	return buf.Resample(sampleRate), nil
}
