package virtual

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"github.com/AIGelman23/Connectify-sub001/internal/media"
)

// Container layout: "VMC1", big-endian uint32 header length, JSON header,
// then frame records of (int64 timestamp µs, uint32 length, payload).
// A stream split into chunks at any record boundary concatenates back into
// a valid container.
const containerMagic = "VMC1"

var errBadContainer = errors.New("not a virtual media container")

type containerHeader struct {
	MimeType  string   `json:"mime"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	FrameRate int      `json:"fps"`
	Audio     []string `json:"audio,omitempty"`
}

type container struct {
	header containerHeader
	frames [][]byte
}

func (c *container) fps() int {
	if c.header.FrameRate <= 0 {
		return 30
	}
	return c.header.FrameRate
}

// duration is the frame count times the frame interval.
func (c *container) duration() time.Duration {
	return frameTime(len(c.frames), c.fps())
}

// frameTime is the presentation time of frame n, computed without
// accumulating the rounding of a truncated frame interval.
func frameTime(n, fps int) time.Duration {
	return time.Duration(int64(n) * int64(time.Second) / int64(fps))
}

// frameIndex is the frame presented at pos.
func frameIndex(pos time.Duration, fps int) int {
	return int(int64(pos) * int64(fps) / int64(time.Second))
}

func encodeHeader(h containerHeader) ([]byte, error) {
	js, err := sonic.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("failed to encode container header: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(containerMagic)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(js)))
	buf.Write(js)
	return buf.Bytes(), nil
}

func appendFrameRecord(buf *bytes.Buffer, ts time.Duration, payload []byte) {
	_ = binary.Write(buf, binary.BigEndian, ts.Microseconds())
	_ = binary.Write(buf, binary.BigEndian, uint32(len(payload)))
	buf.Write(payload)
}

func decodeContainer(data []byte) (*container, error) {
	if len(data) < len(containerMagic)+4 || string(data[:len(containerMagic)]) != containerMagic {
		return nil, errBadContainer
	}
	r := bytes.NewReader(data[len(containerMagic):])
	var hlen uint32
	if err := binary.Read(r, binary.BigEndian, &hlen); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadContainer, err)
	}
	if int(hlen) > r.Len() {
		return nil, fmt.Errorf("%w: truncated header", errBadContainer)
	}
	js := make([]byte, hlen)
	_, _ = r.Read(js)

	c := &container{}
	if err := sonic.Unmarshal(js, &c.header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", errBadContainer, err)
	}
	for r.Len() > 0 {
		var ts int64
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &ts); err != nil {
			return nil, fmt.Errorf("%w: truncated frame record", errBadContainer)
		}
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, fmt.Errorf("%w: truncated frame record", errBadContainer)
		}
		if int(n) > r.Len() {
			return nil, fmt.Errorf("%w: truncated frame payload", errBadContainer)
		}
		payload := make([]byte, n)
		_, _ = r.Read(payload)
		c.frames = append(c.frames, payload)
	}
	return c, nil
}

// Info describes a container produced by the virtual encoder.
type Info struct {
	MimeType  string
	Width     int
	Height    int
	FrameRate int
	Frames    int
	Duration  time.Duration
	Audio     []string
}

// Probe parses a blob written by the virtual encoder.
func Probe(data []byte) (Info, error) {
	c, err := decodeContainer(data)
	if err != nil {
		return Info{}, err
	}
	return Info{
		MimeType:  c.header.MimeType,
		Width:     c.header.Width,
		Height:    c.header.Height,
		FrameRate: c.header.FrameRate,
		Frames:    len(c.frames),
		Duration:  c.duration(),
		Audio:     c.header.Audio,
	}, nil
}

// BuildContainer returns a container with n synthetic frames, for seeding
// trim sources.
func BuildContainer(mime string, size media.Size, fps, n int, audio ...string) []byte {
	hdr, _ := encodeHeader(containerHeader{MimeType: mime, Width: size.Width, Height: size.Height, FrameRate: fps, Audio: audio})
	buf := bytes.NewBuffer(hdr)
	for i := 0; i < n; i++ {
		payload := make([]byte, 8)
		binary.BigEndian.PutUint64(payload, uint64(i+1))
		appendFrameRecord(buf, frameTime(i, fps), payload)
	}
	return buf.Bytes()
}
