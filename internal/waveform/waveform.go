// Package waveform reduces an audio file to a fixed number of amplitude
// buckets for drawing a scrub track.
package waveform

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/AIGelman23/Connectify-sub001/internal/media"
)

const (
	// DefaultGain scales mean absolute amplitude so typical music fills the
	// track.
	DefaultGain    = 4.0
	DefaultBuckets = 50
)

// Waveform is amplitude data for one audio source.
type Waveform struct {
	Samples    []float64 `json:"samples"`              // bucket amplitudes (0.0 - 1.0)
	Duration   float64   `json:"duration"`             // seconds, zero when synthetic
	SampleRate int       `json:"sample_rate,omitempty"`
	Synthetic  bool      `json:"synthetic"`
}

// Options configures an Extractor.
type Options struct {
	Gain float64
	// Fetch reads the source. Defaults to media.Fetch.
	Fetch func(ctx context.Context, src string) ([]byte, error)
}

// Extractor computes waveforms with a platform decoder.
type Extractor struct {
	decoder media.AudioDecoder
	gain    float64
	fetch   func(ctx context.Context, src string) ([]byte, error)
}

// New creates an Extractor.
func New(decoder media.AudioDecoder, opts Options) *Extractor {
	if opts.Gain <= 0 {
		opts.Gain = DefaultGain
	}
	if opts.Fetch == nil {
		opts.Fetch = media.Fetch
	}
	return &Extractor{decoder: decoder, gain: opts.Gain, fetch: opts.Fetch}
}

// Extract returns exactly buckets samples in [0,1] for the audio at src. A
// source that cannot be fetched or decoded yields a synthetic waveform that
// is stable for a given src.
func (x *Extractor) Extract(ctx context.Context, src string, buckets int) Waveform {
	if buckets <= 0 {
		buckets = DefaultBuckets
	}
	buf, err := x.decode(ctx, src)
	if err != nil {
		slog.Warn("Waveform decode failed, using synthetic data", "source", src, "error", err)
		return Waveform{Samples: Synthetic(src, buckets), Synthetic: true}
	}
	return Waveform{
		Samples:    Buckets(buf.Channels[0], buckets, x.gain),
		Duration:   buf.Duration(),
		SampleRate: buf.SampleRate,
	}
}

func (x *Extractor) decode(ctx context.Context, src string) (*media.AudioBuffer, error) {
	data, err := x.fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	if x.decoder == nil {
		return nil, media.NewError(media.KindUnsupported, "decode audio", errors.New("no decoder"))
	}
	buf, err := x.decoder.DecodeAudioData(ctx, data)
	if err != nil {
		return nil, media.NewError(media.KindDecodeFailure, "decode audio", err)
	}
	if len(buf.Channels) == 0 || len(buf.Channels[0]) == 0 {
		return nil, media.NewError(media.KindDecodeFailure, "decode audio", errors.New("no samples"))
	}
	return buf, nil
}

// Buckets splits pcm into n contiguous blocks and returns each block's mean
// absolute amplitude times gain, clamped to [0,1]. Trailing samples that do
// not fill a block are dropped. When pcm is shorter than n each block holds
// at most one sample and empty blocks are zero.
func Buckets(pcm []float32, n int, gain float64) []float64 {
	out := make([]float64, n)
	block := len(pcm) / n
	if block == 0 {
		for i := 0; i < n && i < len(pcm); i++ {
			out[i] = clamp01(math.Abs(float64(pcm[i])) * gain)
		}
		return out
	}
	for i := range out {
		var sum float64
		for _, s := range pcm[i*block : (i+1)*block] {
			sum += math.Abs(float64(s))
		}
		out[i] = clamp01(sum / float64(block) * gain)
	}
	return out
}

// Synthetic returns n pseudo-random values in [0.2,1) seeded from src.
func Synthetic(src string, n int) []float64 {
	h := fnv.New64a()
	h.Write([]byte(src))
	seed := h.Sum64()
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Min(0.2+0.8*r.Float64(), math.Nextafter(1, 0))
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, 1)
}
