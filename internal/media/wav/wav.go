// Package wav decodes RIFF/WAVE files into float PCM.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/zaf/g711"

	"github.com/AIGelman23/Connectify-sub001/internal/media"
)

// WAVE format tags.
const (
	FormatPCM        uint16 = 0x0001
	FormatIEEEFloat  uint16 = 0x0003
	FormatALaw       uint16 = 0x0006
	FormatMuLaw      uint16 = 0x0007
	FormatExtensible uint16 = 0xFFFE
)

var ErrNotWAV = errors.New("not a RIFF/WAVE file")

type fmtChunk struct {
	Format        uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// Decode parses a WAV file. Supported payloads: integer PCM of 8, 16, 24 and
// 32 bits, 32-bit IEEE float, and G.711 µ-law/A-law.
func Decode(data []byte) (*media.AudioBuffer, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var format *fmtChunk
	var payload []byte
	r := data[12:]
	for len(r) >= 8 {
		id := string(r[0:4])
		size := int(binary.LittleEndian.Uint32(r[4:8]))
		r = r[8:]
		if size > len(r) {
			size = len(r) // tolerate truncated trailing chunks
		}
		body := r[:size]
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("wav: fmt chunk too short (%d bytes)", size)
			}
			format = &fmtChunk{}
			if err := binary.Read(bytes.NewReader(body[:16]), binary.LittleEndian, format); err != nil {
				return nil, fmt.Errorf("wav: fmt chunk: %w", err)
			}
			if format.Format == FormatExtensible && size >= 26 {
				// first two bytes of the sub-format GUID carry the real tag
				format.Format = binary.LittleEndian.Uint16(body[24:26])
			}
		case "data":
			payload = body
		}
		r = r[size:]
		if size%2 == 1 && len(r) > 0 {
			r = r[1:]
		}
	}

	if format == nil {
		return nil, fmt.Errorf("wav: missing fmt chunk")
	}
	if payload == nil {
		return nil, fmt.Errorf("wav: missing data chunk")
	}
	if format.Channels == 0 || format.SampleRate == 0 {
		return nil, fmt.Errorf("wav: invalid format: %d channels at %d Hz", format.Channels, format.SampleRate)
	}

	sample, width, err := sampleReader(format)
	if err != nil {
		return nil, err
	}

	nch := int(format.Channels)
	frames := len(payload) / (width * nch)
	buf := &media.AudioBuffer{SampleRate: int(format.SampleRate), Channels: make([][]float32, nch)}
	for c := range buf.Channels {
		buf.Channels[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < nch; c++ {
			off := (i*nch + c) * width
			buf.Channels[c][i] = sample(payload[off : off+width])
		}
	}
	return buf, nil
}

func sampleReader(f *fmtChunk) (func([]byte) float32, int, error) {
	switch f.Format {
	case FormatPCM:
		switch f.BitsPerSample {
		case 8:
			return func(b []byte) float32 { return (float32(b[0]) - 128) / 128 }, 1, nil
		case 16:
			return func(b []byte) float32 {
				return float32(int16(binary.LittleEndian.Uint16(b))) / 32768
			}, 2, nil
		case 24:
			return func(b []byte) float32 {
				v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
				if v&0x800000 != 0 {
					v |= ^0xFFFFFF
				}
				return float32(v) / 8388608
			}, 3, nil
		case 32:
			return func(b []byte) float32 {
				return float32(float64(int32(binary.LittleEndian.Uint32(b))) / 2147483648)
			}, 4, nil
		}
	case FormatIEEEFloat:
		if f.BitsPerSample == 32 {
			return func(b []byte) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }, 4, nil
		}
	case FormatMuLaw:
		return func(b []byte) float32 { return float32(g711.DecodeUlawFrame(b[0])) / 32768 }, 1, nil
	case FormatALaw:
		return func(b []byte) float32 { return float32(g711.DecodeAlawFrame(b[0])) / 32768 }, 1, nil
	}
	return nil, 0, fmt.Errorf("wav: unsupported format 0x%04x with %d bits", f.Format, f.BitsPerSample)
}

// Encode writes interleaved samples as a WAV file using format, which must
// be FormatPCM (16-bit), FormatIEEEFloat, FormatMuLaw or FormatALaw.
func Encode(buf *media.AudioBuffer, format uint16) ([]byte, error) {
	if buf == nil || len(buf.Channels) == 0 {
		return nil, errors.New("wav: empty buffer")
	}
	var bits uint16
	var put func(*bytes.Buffer, float32)
	switch format {
	case FormatPCM:
		bits = 16
		put = func(w *bytes.Buffer, v float32) {
			_ = binary.Write(w, binary.LittleEndian, toInt16(v))
		}
	case FormatIEEEFloat:
		bits = 32
		put = func(w *bytes.Buffer, v float32) {
			_ = binary.Write(w, binary.LittleEndian, math.Float32bits(v))
		}
	case FormatMuLaw:
		bits = 8
		put = func(w *bytes.Buffer, v float32) { w.WriteByte(g711.EncodeUlawFrame(toInt16(v))) }
	case FormatALaw:
		bits = 8
		put = func(w *bytes.Buffer, v float32) { w.WriteByte(g711.EncodeAlawFrame(toInt16(v))) }
	default:
		return nil, fmt.Errorf("wav: cannot encode format 0x%04x", format)
	}

	nch := len(buf.Channels)
	frames := len(buf.Channels[0])
	var data bytes.Buffer
	for i := 0; i < frames; i++ {
		for c := 0; c < nch; c++ {
			put(&data, buf.Channels[c][i])
		}
	}

	blockAlign := uint16(nch) * bits / 8
	f := fmtChunk{
		Format:        format,
		Channels:      uint16(nch),
		SampleRate:    uint32(buf.SampleRate),
		ByteRate:      uint32(buf.SampleRate) * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: bits,
	}

	var out bytes.Buffer
	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(4+8+16+8+data.Len()))
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	_ = binary.Write(&out, binary.LittleEndian, uint32(16))
	_ = binary.Write(&out, binary.LittleEndian, f)
	out.WriteString("data")
	_ = binary.Write(&out, binary.LittleEndian, uint32(data.Len()))
	out.Write(data.Bytes())
	return out.Bytes(), nil
}

func toInt16(v float32) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(math.Round(float64(v) * 32767))
}
