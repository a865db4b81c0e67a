package recorder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/AIGelman23/Connectify-sub001/internal/media"
	"github.com/AIGelman23/Connectify-sub001/internal/media/virtual"
)

func newRecorder(t *testing.T, vopts virtual.Options) (*Recorder, clockwork.FakeClock, media.Stream) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	vopts.Clock = clock
	p := virtual.New(vopts)

	cam, err := p.GetUserMedia(context.Background(), media.Constraints{
		Video: &media.VideoConstraints{FacingMode: media.FacingFront},
		Audio: &media.AudioConstraints{},
	})
	if err != nil {
		t.Fatalf("GetUserMedia failed: %v", err)
	}
	t.Cleanup(func() { media.StopTracks(cam) })

	opts := DefaultOptions()
	opts.Clock = clock
	return New(p, opts), clock, cam
}

// advanceUntil steps the fake clock until done is closed or limit is spent.
func advanceUntil(clock clockwork.FakeClock, done <-chan struct{}, step, limit time.Duration) bool {
	for spent := time.Duration(0); spent <= limit; spent += step {
		select {
		case <-done:
			return true
		default:
		}
		clock.Advance(step)
		time.Sleep(time.Millisecond)
	}
	select {
	case <-done:
		return true
	case <-time.After(time.Second):
		return false
	}
}

func TestRecorder_AutoStopAtMaxDuration(t *testing.T) {
	r, clock, cam := newRecorder(t, virtual.Options{})

	autoStops := make(chan bool, 4)
	r.OnStop(func(s Session, blob media.Blob, err error, auto bool) {
		autoStops <- auto
	})

	if err := r.Start(cam); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if r.State() != StateRecording {
		t.Fatalf("Expected RECORDING, got %s", r.State())
	}

	if !advanceUntil(clock, r.Done(), 100*time.Millisecond, 65*time.Second) {
		t.Fatal("Recorder did not auto-stop")
	}

	sess := r.Session()
	if sess.State != StateStopped {
		t.Errorf("Expected STOPPED, got %s", sess.State)
	}
	if sess.Elapsed < 60*time.Second || sess.Elapsed > 61*time.Second {
		t.Errorf("Expected elapsed at or just past 60s, got %v", sess.Elapsed)
	}
	if r.Remaining() != 0 {
		t.Errorf("Expected no time remaining, got %v", r.Remaining())
	}

	blob, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop after auto-stop failed: %v", err)
	}
	if blob.Empty() {
		t.Fatal("Expected a non-empty blob")
	}
	info, err := virtual.Probe(blob.Data)
	if err != nil {
		t.Fatalf("Blob is not a valid container: %v", err)
	}
	if info.Frames == 0 {
		t.Error("Expected recorded frames")
	}
	select {
	case auto := <-autoStops:
		if !auto {
			t.Error("Expected the stop notification to be flagged automatic")
		}
	case <-time.After(time.Second):
		t.Error("Expected a stop notification")
	}
}

func TestRecorder_StopIsIdempotent(t *testing.T) {
	r, clock, cam := newRecorder(t, virtual.Options{})

	// Stop on an idle recorder is a no-op.
	if blob, err := r.Stop(context.Background()); err != nil || !blob.Empty() {
		t.Errorf("Expected idle stop to be a no-op, got %d bytes, %v", blob.Size(), err)
	}

	if err := r.Start(cam); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	clock.Advance(time.Second)

	first, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	second, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("Second stop returned an error: %v", err)
	}
	if string(first.Data) != string(second.Data) || first.MimeType != second.MimeType {
		t.Error("Expected second stop to return the same blob")
	}
	if first.MimeType != "video/webm;codecs=vp9,opus" {
		t.Errorf("Expected preferred mime type, got %q", first.MimeType)
	}
	if r.State() != StateStopped {
		t.Errorf("Expected STOPPED, got %s", r.State())
	}
	if r.Elapsed() != time.Second {
		t.Errorf("Expected elapsed frozen at 1s, got %v", r.Elapsed())
	}
}

func TestRecorder_PauseFreezesElapsed(t *testing.T) {
	r, clock, cam := newRecorder(t, virtual.Options{})
	if err := r.Start(cam); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Clear()

	clock.Advance(time.Second)
	if err := r.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if r.State() != StatePaused {
		t.Errorf("Expected PAUSED, got %s", r.State())
	}

	clock.Advance(5 * time.Second)
	if got := r.Elapsed(); got != time.Second {
		t.Errorf("Expected elapsed frozen at 1s while paused, got %v", got)
	}

	// A second pause acts on the encoder state and must not change anything.
	if err := r.Pause(); !errors.Is(err, media.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState for double pause, got %v", err)
	}
	if got := r.Elapsed(); got != time.Second {
		t.Errorf("Expected elapsed unchanged after double pause, got %v", got)
	}

	if err := r.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if err := r.Resume(); !errors.Is(err, media.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState for double resume, got %v", err)
	}
	clock.Advance(2 * time.Second)
	if got := r.Elapsed(); got != 3*time.Second {
		t.Errorf("Expected elapsed 3s after resume, got %v", got)
	}
	if got := r.Remaining(); got != 57*time.Second {
		t.Errorf("Expected 57s remaining, got %v", got)
	}
}

func TestRecorder_ElapsedIsMonotonic(t *testing.T) {
	r, clock, cam := newRecorder(t, virtual.Options{})
	if err := r.Start(cam); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Clear()

	var last time.Duration
	for i := 0; i < 20; i++ {
		clock.Advance(37 * time.Millisecond)
		got := r.Elapsed()
		if got < last {
			t.Fatalf("Elapsed went backwards: %v after %v", got, last)
		}
		last = got
	}
}

func TestRecorder_EncoderFault(t *testing.T) {
	r, clock, cam := newRecorder(t, virtual.Options{EncoderFailAfter: 2})
	if err := r.Start(cam); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !advanceUntil(clock, r.Done(), 100*time.Millisecond, 5*time.Second) {
		t.Fatal("Recorder did not stop after encoder fault")
	}

	blob, err := r.Stop(context.Background())
	if media.KindOf(err) != media.KindEncoderFault {
		t.Fatalf("Expected EncoderFault, got %v", err)
	}
	if blob.Empty() {
		t.Error("Expected the partial recording to be kept")
	}
	if r.State() != StateError {
		t.Errorf("Expected ERROR, got %s", r.State())
	}
	if err := r.Pause(); err == nil {
		t.Error("Expected pause to fail after a fault")
	}
}

func TestRecorder_StartTwiceFails(t *testing.T) {
	r, _, cam := newRecorder(t, virtual.Options{})
	if err := r.Start(cam); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Clear()
	if err := r.Start(cam); !errors.Is(err, media.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState, got %v", err)
	}
}

func TestRecorder_ClearResets(t *testing.T) {
	r, clock, cam := newRecorder(t, virtual.Options{})

	var notified bool
	r.OnStop(func(Session, media.Blob, error, bool) { notified = true })

	if err := r.Start(cam); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	clock.Advance(time.Second)
	r.Clear()

	sess := r.Session()
	if sess.State != StateIdle || sess.Elapsed != 0 || sess.Chunks != 0 {
		t.Errorf("Expected a reset session, got %+v", sess)
	}
	if err := r.Start(cam); err != nil {
		t.Fatalf("Restart after clear failed: %v", err)
	}
	defer r.Clear()
	time.Sleep(10 * time.Millisecond)
	if notified {
		t.Error("Expected no stop notification for a cleared session")
	}
}

func TestNegotiateMimeType(t *testing.T) {
	tests := []struct {
		name      string
		supported []string
		want      string
	}{
		{"first preference", virtual.DefaultMimeTypes, "video/webm;codecs=vp9,opus"},
		{"later preference", []string{"video/mp4"}, "video/mp4"},
		{"fallback", []string{"video/x-matroska"}, "video/webm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := virtual.New(virtual.Options{SupportedMimeTypes: tt.supported})
			if got := NegotiateMimeType(p, DefaultMimeTypes, "video/webm"); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRecorder_UnsupportedFallback(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := virtual.New(virtual.Options{Clock: clock, SupportedMimeTypes: []string{"video/x-matroska"}})
	r := New(p, Options{Clock: clock})

	err := r.Start(media.NewStream("empty"))
	if media.KindOf(err) != media.KindUnsupported {
		t.Errorf("Expected Unsupported when no container is available, got %v", err)
	}
	if r.State() != StateIdle {
		t.Errorf("Expected IDLE, got %s", r.State())
	}
}
