package player

import (
	"context"
	"sync"
	"time"

	"versionvibe/logger"
)

const (
	// defaultVolume is applied to the current version when no stored
	// level exists for it.
	defaultVolume = 0.9

	// driftInterval is how often playing resources are re-aligned to
	// the logical playhead.
	driftInterval = 2 * time.Second

	// driftThreshold is the largest tolerated offset, in seconds,
	// before a resource is snapped back.
	driftThreshold = 0.05
)

// VolumeStore persists the per-version volume map across sessions.
type VolumeStore interface {
	Load(ctx context.Context) (map[int64]float64, error)
	Set(ctx context.Context, versionID int64, volume float64) error
}

// VersionResource pairs a version id with its playback resource.
type VersionResource struct {
	ID       int64
	Resource Resource
}

// State is a snapshot of the engine's transport, suitable for
// broadcasting to session members.
type State struct {
	CurrentVersionID int64   `json:"currentVersionId"`
	Playing          bool    `json:"playing"`
	Position         float64 `json:"position"`
	Duration         float64 `json:"duration"`
	Muted            bool    `json:"muted"`
	Volume           float64 `json:"volume"`
}

type deepLink struct {
	versionID int64
	at        float64
}

// Engine presents a single logical transport over N independently
// loaded playback resources, one per version. Every resource is
// driven in lockstep so switching versions is a silent swap with the
// position preserved; only the current version is ever audible.
type Engine struct {
	mu        sync.Mutex
	resources map[int64]Resource
	order     []int64

	currentID   int64 // 0 means no version selected
	playing     bool
	currentTime float64
	duration    float64
	muted       bool
	volumes     map[int64]float64

	store VolumeStore

	applied     map[deepLink]bool
	pendingSeek *float64

	driftStop chan struct{}
	closed    bool
}

// NewEngine constructs an engine and rehydrates the volume map from
// the store. A store load failure is logged and treated as an empty
// map.
func NewEngine(ctx context.Context, store VolumeStore) *Engine {
	e := &Engine{
		resources: make(map[int64]Resource),
		volumes:   make(map[int64]float64),
		applied:   make(map[deepLink]bool),
		store:     store,
	}

	if store != nil {
		volumes, err := store.Load(ctx)
		if err != nil {
			logger.Warn("failed to load volume map", logger.ErrorField(err))
		} else if volumes != nil {
			e.volumes = volumes
		}
	}

	return e
}

// SetVersions replaces the set of playable versions. Resources absent
// from the new list are dropped. The current selection is kept when
// still present; otherwise the first version becomes current without
// touching the play flag.
func (e *Engine) SetVersions(items []VersionResource) {
	e.mu.Lock()
	defer e.mu.Unlock()

	resources := make(map[int64]Resource, len(items))
	order := make([]int64, 0, len(items))
	for _, item := range items {
		if item.Resource == nil {
			continue
		}
		resources[item.ID] = item.Resource
		order = append(order, item.ID)
	}
	e.resources = resources
	e.order = order

	if _, ok := e.resources[e.currentID]; !ok {
		e.currentID = 0
		if len(e.order) > 0 {
			e.switchToLocked(e.order[0])
		}
	}

	if e.playing {
		e.playAllLocked()
	}
	e.reconcileLocked()
}

// TogglePlay flips between play and pause.
func (e *Engine) TogglePlay() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setPlayingLocked(!e.playing)
}

// Play starts playback of every loaded resource in lockstep.
func (e *Engine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setPlayingLocked(true)
}

// Pause halts playback of every loaded resource.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setPlayingLocked(false)
}

func (e *Engine) setPlayingLocked(playing bool) {
	if e.playing == playing {
		return
	}
	e.playing = playing

	if playing {
		e.playAllLocked()
		e.startDriftLoopLocked()
	} else {
		e.syncTimeLocked()
		for _, res := range e.resources {
			res.Pause()
		}
		e.stopDriftLoopLocked()
	}
}

// playAllLocked starts every resource. Start rejections reflect host
// policy, not user intent, so they are logged and swallowed.
func (e *Engine) playAllLocked() {
	for id, res := range e.resources {
		if err := res.Play(); err != nil {
			logger.Warn("playback start rejected",
				logger.Int64("version", id),
				logger.ErrorField(err))
		}
	}
}

// Seek sets the logical position and forces every loaded resource to
// min(value, its own duration). Resources without a known duration
// are skipped.
func (e *Engine) Seek(value float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seekLocked(value)
}

func (e *Engine) seekLocked(value float64) {
	if value < 0 {
		value = 0
	}
	e.currentTime = value

	for _, res := range e.resources {
		duration, known := res.Duration()
		if !known {
			continue
		}
		target := value
		if target > duration {
			target = duration
		}
		res.SetPosition(target)
	}
}

// SelectVersion makes a version current. Selecting the already
// current version toggles play/pause instead (click-to-toggle). A
// real switch clamps the logical time to the target's duration,
// adopts that duration, and swaps silently without touching the play
// flag.
func (e *Engine) SelectVersion(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id == e.currentID {
		e.setPlayingLocked(!e.playing)
		return
	}

	if _, ok := e.resources[id]; !ok {
		logger.Warn("select of unknown version ignored", logger.Int64("version", id))
		return
	}

	e.syncTimeLocked()
	e.switchToLocked(id)
	e.reconcileLocked()
}

func (e *Engine) switchToLocked(id int64) {
	res, ok := e.resources[id]
	if !ok {
		return
	}

	if duration, known := res.Duration(); known {
		if e.currentTime > duration {
			e.currentTime = duration
			res.SetPosition(duration)
		}
		e.duration = duration
	}
	e.currentID = id
}

// SetVolume updates the current version's stored level. Any value
// above zero clears the global mute (adjusting the knob means the
// user wants to hear it). The map is persisted on every change.
func (e *Engine) SetVolume(value float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.currentID == 0 {
		return
	}
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}

	e.volumes[e.currentID] = value
	if value > 0 {
		e.muted = false
	}
	e.reconcileLocked()

	if e.store != nil {
		if err := e.store.Set(context.Background(), e.currentID, value); err != nil {
			logger.Warn("failed to persist volume",
				logger.Int64("version", e.currentID),
				logger.ErrorField(err))
		}
	}
}

// ToggleMute flips the global mute. It affects only the current
// version's output; all others stay forced silent regardless.
func (e *Engine) ToggleMute() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted = !e.muted
	e.reconcileLocked()
}

// reconcileLocked recomputes every resource's effective output state:
// non-current resources are always silent; the current one is muted
// iff the global mute is on or its stored volume is zero.
func (e *Engine) reconcileLocked() {
	for id, res := range e.resources {
		if id != e.currentID {
			res.SetMuted(true)
			continue
		}

		volume, ok := e.volumes[id]
		if !ok {
			volume = defaultVolume
		}
		res.SetMuted(e.muted || volume == 0)
		res.SetVolume(volume)
	}
}

// ApplyDeepLink navigates to an externally addressed version and/or
// time, once per unique (version, time) pair. The seek is deferred
// until the target resource reports a known duration.
func (e *Engine) ApplyDeepLink(versionID int64, at float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	link := deepLink{versionID: versionID, at: at}
	if e.applied[link] {
		return
	}
	e.applied[link] = true

	if versionID != 0 && versionID != e.currentID {
		if _, ok := e.resources[versionID]; ok {
			e.switchToLocked(versionID)
		}
	}

	if at >= 0 {
		if res, ok := e.resources[e.currentID]; ok {
			if _, known := res.Duration(); known {
				e.seekLocked(at)
			} else {
				pending := at
				e.pendingSeek = &pending
			}
		}
	}

	e.reconcileLocked()
}

// syncTimeLocked refreshes the logical time from the current
// resource's playhead.
func (e *Engine) syncTimeLocked() {
	if res, ok := e.resources[e.currentID]; ok {
		e.currentTime = res.Position()
	}
}

func (e *Engine) startDriftLoopLocked() {
	if e.driftStop != nil || e.closed {
		return
	}
	stop := make(chan struct{})
	e.driftStop = stop

	go func() {
		ticker := time.NewTicker(driftInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.correctDrift()
			case <-stop:
				return
			}
		}
	}()
}

func (e *Engine) stopDriftLoopLocked() {
	if e.driftStop != nil {
		close(e.driftStop)
		e.driftStop = nil
	}
}

// correctDrift snaps every resource back onto the logical playhead.
// Independently loaded media drifts apart under real playback even
// when started together.
func (e *Engine) correctDrift() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.playing {
		return
	}

	e.syncTimeLocked()

	if e.pendingSeek != nil {
		if res, ok := e.resources[e.currentID]; ok {
			if _, known := res.Duration(); known {
				at := *e.pendingSeek
				e.pendingSeek = nil
				e.seekLocked(at)
				return
			}
		}
	}

	for id, res := range e.resources {
		if id == e.currentID {
			continue
		}
		duration, known := res.Duration()
		if !known {
			continue
		}

		target := e.currentTime
		if target > duration {
			target = duration
		}
		if diff := res.Position() - target; diff > driftThreshold || diff < -driftThreshold {
			res.SetPosition(target)
		}
	}
}

// Snapshot returns the transport state for broadcast.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.syncTimeLocked()

	volume := defaultVolume
	if v, ok := e.volumes[e.currentID]; ok {
		volume = v
	}

	return State{
		CurrentVersionID: e.currentID,
		Playing:          e.playing,
		Position:         e.currentTime,
		Duration:         e.duration,
		Muted:            e.muted,
		Volume:           volume,
	}
}

// CurrentVersion returns the current version id, 0 if none.
func (e *Engine) CurrentVersion() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentID
}

// Playing reports the play flag.
func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// Close stops the drift loop and pauses every resource. The engine is
// unusable afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	e.playing = false
	for _, res := range e.resources {
		res.Pause()
	}
	e.stopDriftLoopLocked()
}
