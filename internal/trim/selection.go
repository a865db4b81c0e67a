package trim

import (
	"math"
	"time"
)

// MinSelection is the shortest selectable clip.
const MinSelection = time.Second

// Handle identifies a selection edge.
type Handle int

const (
	HandleStart Handle = iota
	HandleEnd
)

// Selection is the trim window over a source clip. It keeps
// 0 ≤ start < end ≤ duration and end − start ≥ the minimum length; a
// source shorter than the minimum is selected whole.
type Selection struct {
	duration time.Duration
	min      time.Duration
	start    time.Duration
	end      time.Duration
}

// NewSelection selects the whole clip. A non-positive minLen uses
// MinSelection.
func NewSelection(duration, minLen time.Duration) *Selection {
	if minLen <= 0 {
		minLen = MinSelection
	}
	duration = max(duration, 0)
	return &Selection{duration: duration, min: minLen, end: duration}
}

// Start returns the selected window's start offset.
func (s *Selection) Start() time.Duration { return s.start }

// End returns the selected window's end offset.
func (s *Selection) End() time.Duration { return s.end }

// SourceDuration returns the duration of the clip being trimmed.
func (s *Selection) SourceDuration() time.Duration { return s.duration }

// Length is end − start.
func (s *Selection) Length() time.Duration { return s.end - s.start }

// Valid reports whether the window can be trimmed.
func (s *Selection) Valid() bool {
	if s.duration <= 0 {
		return false
	}
	return s.start >= 0 && s.start < s.end && s.end <= s.duration &&
		(s.Length() >= s.min || (s.start == 0 && s.end == s.duration))
}

// minLength is the enforced minimum, capped at the clip length.
func (s *Selection) minLength() time.Duration {
	return min(s.min, s.duration)
}

// PositionToTime maps a pointer x within a track of the given width to a
// time in the source, clamped to [0, duration].
func (s *Selection) PositionToTime(x, width float64) time.Duration {
	if width <= 0 || math.IsNaN(x) {
		return 0
	}
	ratio := math.Min(math.Max(x/width, 0), 1)
	return time.Duration(math.Round(ratio * float64(s.duration)))
}

// TimeToPosition is the inverse of PositionToTime.
func (s *Selection) TimeToPosition(t time.Duration, width float64) float64 {
	if s.duration <= 0 {
		return 0
	}
	return float64(t) / float64(s.duration) * width
}

// SetStart moves the start edge, keeping the minimum length. It returns the
// applied start.
func (s *Selection) SetStart(t time.Duration) time.Duration {
	s.start = min(max(t, 0), s.end-s.minLength())
	return s.start
}

// SetEnd moves the end edge, keeping the minimum length. It returns the
// applied end.
func (s *Selection) SetEnd(t time.Duration) time.Duration {
	s.end = max(min(t, s.duration), s.start+s.minLength())
	return s.end
}

// Drag moves handle h to the pointer position x.
func (s *Selection) Drag(h Handle, x, width float64) time.Duration {
	t := s.PositionToTime(x, width)
	if h == HandleStart {
		return s.SetStart(t)
	}
	return s.SetEnd(t)
}

// Shift moves the whole window by delta, keeping its length.
func (s *Selection) Shift(delta time.Duration) {
	length := s.Length()
	start := min(max(s.start+delta, 0), s.duration-length)
	s.start, s.end = start, start+length
}

// Clamp fits [start, end) into [0, duration] with at least minWidth between
// the edges. A source shorter than minWidth yields the whole source.
func Clamp(start, end, duration, minWidth time.Duration) (time.Duration, time.Duration) {
	if duration <= 0 {
		return 0, 0
	}
	start = min(max(start, 0), duration)
	end = min(max(end, 0), duration)
	if minWidth > duration {
		return 0, duration
	}
	if end-start < minWidth {
		end = start + minWidth
		if end > duration {
			end = duration
			start = end - minWidth
		}
	}
	return start, end
}
