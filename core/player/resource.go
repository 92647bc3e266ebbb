package player

import (
	"sync"
	"time"
)

// Resource is a playback-capable handle for one version's audio. The
// engine drives every registered resource in lockstep and owns all
// transport mutations; nothing else touches these methods once a
// resource is registered.
type Resource interface {
	// Play starts playback. A start rejection is reported but treated
	// as non-fatal by the engine.
	Play() error
	// Pause halts playback, keeping the position.
	Pause()
	// Position returns the current playhead in seconds.
	Position() float64
	// SetPosition moves the playhead.
	SetPosition(seconds float64)
	// Duration returns the resource length in seconds and whether it
	// is known yet. Resources still loading report false.
	Duration() (float64, bool)
	// SetMuted forces the output silent or restores it.
	SetMuted(muted bool)
	// SetVolume sets the output level in [0,1].
	SetVolume(volume float64)
}

// TimelineResource is a wall-clock playhead: a Resource whose position
// advances in real time while playing, used for server-hosted review
// sessions where no device output exists. Mute and volume are tracked
// so session members can read back effective output state.
type TimelineResource struct {
	mu        sync.Mutex
	duration  float64
	known     bool
	playing   bool
	base      float64 // position when startedAt was taken
	startedAt time.Time
	muted     bool
	volume    float64
}

// NewTimelineResource creates a timeline resource. A non-positive
// duration means the length is not yet known; set it later with
// SetDuration once metadata arrives.
func NewTimelineResource(duration float64) *TimelineResource {
	return &TimelineResource{
		duration: duration,
		known:    duration > 0,
		volume:   1,
	}
}

// SetDuration records the resource length once known.
func (r *TimelineResource) SetDuration(duration float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if duration > 0 {
		r.duration = duration
		r.known = true
	}
}

// Play starts the playhead.
func (r *TimelineResource) Play() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.playing {
		return nil
	}
	r.base = r.positionLocked()
	r.startedAt = time.Now()
	r.playing = true
	return nil
}

// Pause halts the playhead.
func (r *TimelineResource) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.playing {
		return
	}
	r.base = r.positionLocked()
	r.playing = false
}

// Position returns the current playhead in seconds.
func (r *TimelineResource) Position() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.positionLocked()
}

func (r *TimelineResource) positionLocked() float64 {
	pos := r.base
	if r.playing {
		pos += time.Since(r.startedAt).Seconds()
	}
	if r.known && pos > r.duration {
		pos = r.duration
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

// SetPosition moves the playhead.
func (r *TimelineResource) SetPosition(seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	if r.known && seconds > r.duration {
		seconds = r.duration
	}
	r.base = seconds
	r.startedAt = time.Now()
}

// Duration returns the length and whether it is known.
func (r *TimelineResource) Duration() (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.duration, r.known
}

// SetMuted forces the output silent or restores it.
func (r *TimelineResource) SetMuted(muted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muted = muted
}

// Muted reports the effective mute state.
func (r *TimelineResource) Muted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.muted
}

// SetVolume sets the output level.
func (r *TimelineResource) SetVolume(volume float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volume = volume
}

// Volume returns the output level.
func (r *TimelineResource) Volume() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.volume
}

// Playing reports whether the playhead is advancing.
func (r *TimelineResource) Playing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing
}
