package audio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEncodeWAV_DecodesAtFixedRate(t *testing.T) {
	samples := make([]int16, SampleRate/10)
	for i := range samples {
		samples[i] = int16((i % 200) * 50)
	}

	path := filepath.Join(t.TempDir(), "reply.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := EncodeWAV(f, samples, SampleRate); err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	f.Close()

	r, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	decoded, rate, err := DecodeWAV(r)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != SampleRate {
		t.Errorf("Expected sample rate %d, got %d", SampleRate, rate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Fatalf("Sample %d differs: expected %d, got %d", i, samples[i], decoded[i])
		}
	}
}

func TestEncodeWAV_Empty(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "empty.wav"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := EncodeWAV(f, nil, SampleRate); err == nil {
		t.Error("Expected error for empty samples")
	}
}

func TestDecodeWAV_NotWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	if err := os.WriteFile(path, []byte("definitely not riff data"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if _, _, err := DecodeWAV(r); err == nil {
		t.Error("Expected error decoding non-WAV data")
	}
}
