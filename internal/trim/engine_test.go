package trim

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/AIGelman23/Connectify-sub001/internal/media"
	"github.com/AIGelman23/Connectify-sub001/internal/media/virtual"
)

const frameInterval = time.Second / 30

type trimOutcome struct {
	res *Result
	err error
}

func startTrim(e *Engine, blob media.Blob, start, end time.Duration) <-chan trimOutcome {
	out := make(chan trimOutcome, 1)
	go func() {
		res, err := e.Trim(context.Background(), blob, start, end)
		out <- trimOutcome{res, err}
	}()
	return out
}

// playOut steps the fake clock one frame at a time, waiting for each tick to
// be drawn, until the trim finishes.
func playOut(t *testing.T, p *virtual.Platform, clock clockwork.FakeClock, done <-chan trimOutcome, limit int) trimOutcome {
	t.Helper()
	for i := 0; i < limit; i++ {
		before := p.Draws()
		clock.Advance(frameInterval)
		deadline := time.Now().Add(50 * time.Millisecond)
		for p.Draws() == before && time.Now().Before(deadline) {
			select {
			case o := <-done:
				return o
			default:
			}
			time.Sleep(50 * time.Microsecond)
		}
	}
	select {
	case o := <-done:
		return o
	case <-time.After(time.Second):
		t.Fatal("Trim did not finish")
		return trimOutcome{}
	}
}

func newEngine(vopts virtual.Options) (*Engine, *virtual.Platform, clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	vopts.Clock = clock
	p := virtual.New(vopts)
	opts := DefaultOptions()
	opts.Clock = clock
	return NewEngine(p, opts), p, clock
}

func source(seconds int) media.Blob {
	return media.Blob{
		Data:     virtual.BuildContainer("video/webm;codecs=vp9,opus", media.Size{Width: 1280, Height: 720}, 30, seconds*30, "Microphone"),
		MimeType: "video/webm;codecs=vp9,opus",
	}
}

func assertReleased(t *testing.T, p *virtual.Platform) {
	t.Helper()
	st := p.Stats()
	if st.Elements != 0 || st.Surfaces != 0 || st.AudioContexts != 0 {
		t.Errorf("Expected all trim resources released, got %+v", st)
	}
}

func TestTrim_ThirtySecondsOfForty(t *testing.T) {
	e, p, clock := newEngine(virtual.Options{})

	o := playOut(t, p, clock, startTrim(e, source(40), 5*time.Second, 35*time.Second), 1000)
	if o.err != nil {
		t.Fatalf("Trim failed: %v", o.err)
	}

	info, err := virtual.Probe(o.res.Blob.Data)
	if err != nil {
		t.Fatalf("Trimmed blob is not a valid container: %v", err)
	}
	diff := info.Duration - 30*time.Second
	if diff < 0 {
		diff = -diff
	}
	if diff > 34*time.Millisecond {
		t.Errorf("Expected ~30s output, got %v", info.Duration)
	}
	if info.Width != 1280 || info.Height != 720 {
		t.Errorf("Expected 1280x720 output, got %dx%d", info.Width, info.Height)
	}
	if !o.res.AudioRouted || len(info.Audio) != 1 {
		t.Errorf("Expected source audio routed into the output, got %v", info.Audio)
	}
	if o.res.Start != 5*time.Second || o.res.End != 35*time.Second {
		t.Errorf("Expected 5s-35s, got %v-%v", o.res.Start, o.res.End)
	}
	if o.res.Blob.MimeType != "video/webm;codecs=vp9,opus" {
		t.Errorf("Expected source mime type kept, got %q", o.res.Blob.MimeType)
	}
	assertReleased(t, p)
}

func TestTrim_NoAudioContextIsVideoOnly(t *testing.T) {
	e, p, clock := newEngine(virtual.Options{NoAudioContext: true})

	o := playOut(t, p, clock, startTrim(e, source(3), time.Second, 2*time.Second), 100)
	if o.err != nil {
		t.Fatalf("Trim failed: %v", o.err)
	}
	if o.res.AudioRouted {
		t.Error("Expected video-only trim")
	}
	info, err := virtual.Probe(o.res.Blob.Data)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if len(info.Audio) != 0 {
		t.Errorf("Expected no audio tracks, got %v", info.Audio)
	}
	if info.Frames != 30 {
		t.Errorf("Expected 30 frames, got %d", info.Frames)
	}
	assertReleased(t, p)
}

func TestTrim_StalledPlaybackTimesOut(t *testing.T) {
	e, p, clock := newEngine(virtual.Options{StallPlayback: true})
	done := startTrim(e, source(3), 0, time.Second)

	var o trimOutcome
advance:
	for i := 0; i < 200; i++ {
		clock.Advance(50 * time.Millisecond)
		select {
		case o = <-done:
			break advance
		case <-time.After(time.Millisecond):
		}
	}
	if o.err == nil {
		t.Fatalf("Expected the trim to time out, got %+v", o.res)
	}
	if media.KindOf(o.err) != media.KindTrimTimeout {
		t.Fatalf("Expected TrimTimeout, got %v", o.err)
	}
	assertReleased(t, p)
}

func TestTrim_ClampsToSource(t *testing.T) {
	e, p, clock := newEngine(virtual.Options{})

	o := playOut(t, p, clock, startTrim(e, source(2), -3*time.Second, 10*time.Second), 200)
	if o.err != nil {
		t.Fatalf("Trim failed: %v", o.err)
	}
	if o.res.Start != 0 || o.res.End != 2*time.Second {
		t.Errorf("Expected the whole 2s source, got %v-%v", o.res.Start, o.res.End)
	}
	if o.res.Frames != 60 {
		t.Errorf("Expected 60 frames drawn, got %d", o.res.Frames)
	}
}

func TestTrim_BadSource(t *testing.T) {
	e, p, _ := newEngine(virtual.Options{})
	_, err := e.Trim(context.Background(), media.Blob{Data: []byte("not a clip")}, 0, time.Second)
	if media.KindOf(err) != media.KindDecodeFailure {
		t.Errorf("Expected DecodeFailure, got %v", err)
	}
	assertReleased(t, p)
}

func TestClamp(t *testing.T) {
	const minWidth = 100 * time.Millisecond
	tests := []struct {
		name                 string
		start, end, duration time.Duration
		wantStart, wantEnd   time.Duration
	}{
		{"inside", time.Second, 2 * time.Second, 5 * time.Second, time.Second, 2 * time.Second},
		{"negative start", -time.Second, time.Second, 5 * time.Second, 0, time.Second},
		{"end past duration", time.Second, 9 * time.Second, 5 * time.Second, time.Second, 5 * time.Second},
		{"too narrow", time.Second, time.Second, 5 * time.Second, time.Second, time.Second + minWidth},
		{"narrow at the end", 5 * time.Second, 5 * time.Second, 5 * time.Second, 5*time.Second - minWidth, 5 * time.Second},
		{"source shorter than min", 0, 0, 50 * time.Millisecond, 0, 50 * time.Millisecond},
		{"empty source", time.Second, 2 * time.Second, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, e := Clamp(tt.start, tt.end, tt.duration, minWidth)
			if s != tt.wantStart || e != tt.wantEnd {
				t.Errorf("Expected %v-%v, got %v-%v", tt.wantStart, tt.wantEnd, s, e)
			}
		})
	}
}
