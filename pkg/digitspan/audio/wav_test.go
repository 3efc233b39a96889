package audio

import (
	"bytes"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	in := sine(DefaultSampleRate, 250, 440, 0.5)
	in.Quantize()

	data, err := EncodeWAV(in)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if !IsWAV(data) {
		t.Fatal("encoded data lacks RIFF/WAVE header")
	}

	out, err := DecodeWAV(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if out.SampleRate != DefaultSampleRate || out.Len() != in.Len() {
		t.Fatalf("got %d frames @ %d Hz, want %d @ %d", out.Len(), out.SampleRate, in.Len(), DefaultSampleRate)
	}
	for i := range in.Samples {
		if in.Samples[i] != out.Samples[i] {
			t.Fatalf("sample %d differs: %f vs %f", i, in.Samples[i], out.Samples[i])
		}
	}
}

func TestDecodeClipRejectsGarbage(t *testing.T) {
	if _, err := DecodeClip([]byte("definitely not audio"), DefaultSampleRate); err == nil {
		t.Error("expected an error for non-audio input")
	}
}

func TestDecodeClipResamplesWAV(t *testing.T) {
	data, err := EncodeWAV(sine(24000, 400, 300, 0.3))
	if err != nil {
		t.Fatal(err)
	}
	buf, err := DecodeClip(data, DefaultSampleRate)
	if err != nil {
		t.Fatalf("DecodeClip failed: %v", err)
	}
	if buf.SampleRate != DefaultSampleRate || buf.DurationMs() != 400 {
		t.Errorf("got %d Hz / %d ms", buf.SampleRate, buf.DurationMs())
	}
}
