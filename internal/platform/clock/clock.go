package clock

import (
	"sync"
	"time"
)

// Clock abstracts the wall clock so peak-hour and timestamp logic can be tested.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func System() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

// Fixed is a settable clock for tests.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixed(t time.Time) *Fixed { return &Fixed{t: t} }

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.t = t
	f.mu.Unlock()
}

func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// PeakWindow decides whether an instant falls in high-demand hours.
// Both bounds are inclusive whole hours in Location.
type PeakWindow struct {
	StartHour int
	EndHour   int
	Location  *time.Location
}

func NewPeakWindow(start, end int, tz string) (PeakWindow, error) {
	loc := time.Local
	if tz != "" && tz != "Local" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return PeakWindow{}, err
		}
		loc = l
	}
	return PeakWindow{StartHour: start, EndHour: end, Location: loc}, nil
}

func (w PeakWindow) IsPeak(t time.Time) bool {
	loc := w.Location
	if loc == nil {
		loc = time.Local
	}
	h := t.In(loc).Hour()
	if w.StartHour <= w.EndHour {
		return h >= w.StartHour && h <= w.EndHour
	}
	// window wraps midnight, e.g. 22..5
	return h >= w.StartHour || h <= w.EndHour
}
