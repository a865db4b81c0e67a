package wav

import (
	"math"
	"testing"

	"github.com/AIGelman23/Connectify-sub001/internal/media"
)

func sine(n int, amp float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = amp * float32(math.Sin(2*math.Pi*float64(i)/32))
	}
	return out
}

func TestDecode_RoundTripFormats(t *testing.T) {
	src := &media.AudioBuffer{SampleRate: 8000, Channels: [][]float32{sine(800, 0.5), sine(800, 0.25)}}

	tests := []struct {
		name      string
		format    uint16
		tolerance float64
	}{
		{"pcm16", FormatPCM, 1.0 / 16384},
		{"float32", FormatIEEEFloat, 1e-6},
		{"mulaw", FormatMuLaw, 0.035},
		{"alaw", FormatALaw, 0.035},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(src, tt.format)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got.SampleRate != 8000 {
				t.Errorf("Expected sample rate 8000, got %d", got.SampleRate)
			}
			if len(got.Channels) != 2 {
				t.Fatalf("Expected 2 channels, got %d", len(got.Channels))
			}
			if len(got.Channels[0]) != 800 {
				t.Fatalf("Expected 800 frames, got %d", len(got.Channels[0]))
			}
			for i := 0; i < 800; i += 7 {
				if d := math.Abs(float64(got.Channels[0][i] - src.Channels[0][i])); d > tt.tolerance {
					t.Fatalf("Sample %d differs by %f (got %f, want %f)", i, d, got.Channels[0][i], src.Channels[0][i])
				}
			}
		})
	}
}

func TestDecode_PCM8And24(t *testing.T) {
	// Hand-built 8-bit mono file: 0x80 is silence, 0xFF near full scale.
	data := []byte("RIFF\x00\x00\x00\x00WAVEfmt \x10\x00\x00\x00")
	data = append(data, 0x01, 0x00, 0x01, 0x00, 0x40, 0x1F, 0x00, 0x00, 0x40, 0x1F, 0x00, 0x00, 0x01, 0x00, 0x08, 0x00)
	data = append(data, []byte("data\x02\x00\x00\x00")...)
	data = append(data, 0x80, 0xFF)

	buf, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode 8-bit failed: %v", err)
	}
	if buf.Channels[0][0] != 0 {
		t.Errorf("Expected silence for 0x80, got %f", buf.Channels[0][0])
	}
	if buf.Channels[0][1] < 0.99 {
		t.Errorf("Expected near full scale for 0xFF, got %f", buf.Channels[0][1])
	}

	// 24-bit mono, one negative full-scale sample.
	data = []byte("RIFF\x00\x00\x00\x00WAVEfmt \x10\x00\x00\x00")
	data = append(data, 0x01, 0x00, 0x01, 0x00, 0x40, 0x1F, 0x00, 0x00, 0xC0, 0x5D, 0x00, 0x00, 0x03, 0x00, 0x18, 0x00)
	data = append(data, []byte("data\x03\x00\x00\x00")...)
	data = append(data, 0x00, 0x00, 0x80)

	buf, err = Decode(data)
	if err != nil {
		t.Fatalf("Decode 24-bit failed: %v", err)
	}
	if buf.Channels[0][0] != -1 {
		t.Errorf("Expected -1 for 0x800000, got %f", buf.Channels[0][0])
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not riff", []byte("OggS\x00\x00\x00\x00WAVE")},
		{"no fmt", []byte("RIFF\x00\x00\x00\x00WAVEdata\x00\x00\x00\x00")},
		{"no data", append([]byte("RIFF\x00\x00\x00\x00WAVEfmt \x10\x00\x00\x00"),
			0x01, 0x00, 0x01, 0x00, 0x40, 0x1F, 0x00, 0x00, 0x40, 0x1F, 0x00, 0x00, 0x01, 0x00, 0x08, 0x00)},
		{"unsupported", append(append([]byte("RIFF\x00\x00\x00\x00WAVEfmt \x10\x00\x00\x00"),
			0x55, 0x00, 0x01, 0x00, 0x40, 0x1F, 0x00, 0x00, 0x40, 0x1F, 0x00, 0x00, 0x01, 0x00, 0x08, 0x00),
			[]byte("data\x00\x00\x00\x00")...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.data); err == nil {
				t.Error("Expected decode error")
			}
		})
	}
}
