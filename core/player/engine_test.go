package player

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResource records transport calls so tests can assert on the
// engine's fan-out behavior.
type fakeResource struct {
	playing  bool
	position float64
	duration float64
	known    bool
	muted    bool
	volume   float64
	playErr  error

	playCalls int
	seekCalls int
}

func newFakeResource(duration float64) *fakeResource {
	return &fakeResource{duration: duration, known: duration > 0, volume: 1}
}

func (r *fakeResource) Play() error {
	r.playCalls++
	if r.playErr != nil {
		return r.playErr
	}
	r.playing = true
	return nil
}

func (r *fakeResource) Pause() { r.playing = false }

func (r *fakeResource) Position() float64 { return r.position }

func (r *fakeResource) Duration() (float64, bool) { return r.duration, r.known }

func (r *fakeResource) SetMuted(muted bool) { r.muted = muted }

func (r *fakeResource) SetVolume(volume float64) { r.volume = volume }

func (r *fakeResource) SetPosition(seconds float64) {
	r.seekCalls++
	r.position = seconds
}

type fakeVolumeStore struct {
	loaded  map[int64]float64
	loadErr error
	setErr  error
	sets    map[int64]float64
}

func (s *fakeVolumeStore) Load(ctx context.Context) (map[int64]float64, error) {
	return s.loaded, s.loadErr
}

func (s *fakeVolumeStore) Set(ctx context.Context, versionID int64, volume float64) error {
	if s.setErr != nil {
		return s.setErr
	}
	if s.sets == nil {
		s.sets = make(map[int64]float64)
	}
	s.sets[versionID] = volume
	return nil
}

func newTestEngine(t *testing.T, durations ...float64) (*Engine, []*fakeResource) {
	t.Helper()
	e := NewEngine(context.Background(), nil)
	resources := make([]*fakeResource, len(durations))
	items := make([]VersionResource, len(durations))
	for i, d := range durations {
		resources[i] = newFakeResource(d)
		items[i] = VersionResource{ID: int64(i + 1), Resource: resources[i]}
	}
	e.SetVersions(items)
	t.Cleanup(e.Close)
	return e, resources
}

func TestEngineOnlyCurrentAudible(t *testing.T) {
	e, resources := newTestEngine(t, 100, 120, 90)

	assert.Equal(t, int64(1), e.CurrentVersion())
	assert.False(t, resources[0].muted)
	assert.True(t, resources[1].muted)
	assert.True(t, resources[2].muted)

	e.SelectVersion(2)
	assert.True(t, resources[0].muted)
	assert.False(t, resources[1].muted)
	assert.True(t, resources[2].muted)
}

func TestEnginePlayStartsAllResources(t *testing.T) {
	e, resources := newTestEngine(t, 100, 120)

	e.Play()
	require.True(t, e.Playing())
	for _, r := range resources {
		assert.True(t, r.playing, "all resources run in lockstep")
	}

	e.Pause()
	require.False(t, e.Playing())
	for _, r := range resources {
		assert.False(t, r.playing)
	}
}

func TestEnginePlayRejectionIsNonFatal(t *testing.T) {
	e, resources := newTestEngine(t, 100, 120)
	resources[0].playErr = errors.New("autoplay blocked")

	e.Play()
	assert.True(t, e.Playing(), "one rejection must not block the transport")
	assert.True(t, resources[1].playing)
}

func TestEngineTogglePlay(t *testing.T) {
	e, _ := newTestEngine(t, 100)

	e.TogglePlay()
	assert.True(t, e.Playing())
	e.TogglePlay()
	assert.False(t, e.Playing())
}

func TestEngineSeekClampsPerResource(t *testing.T) {
	e, resources := newTestEngine(t, 100, 60, 0)

	e.Seek(80)

	assert.Equal(t, 80.0, resources[0].position)
	assert.Equal(t, 60.0, resources[1].position, "clamped to its own duration")
	assert.Equal(t, 0, resources[2].seekCalls, "unknown duration is skipped")
	assert.Equal(t, 80.0, e.Snapshot().Position)
}

func TestEngineSeekNegativeClampsToZero(t *testing.T) {
	e, resources := newTestEngine(t, 100)

	e.Seek(-5)
	assert.Equal(t, 0.0, resources[0].position)
}

func TestEngineSelectSameVersionToggles(t *testing.T) {
	e, _ := newTestEngine(t, 100, 120)

	e.SelectVersion(1)
	assert.True(t, e.Playing(), "selecting the current version toggles play")
	e.SelectVersion(1)
	assert.False(t, e.Playing())
	assert.Equal(t, int64(1), e.CurrentVersion())
}

func TestEngineSelectClampsTimeToTargetDuration(t *testing.T) {
	e, resources := newTestEngine(t, 100, 60)

	e.Seek(90)
	e.SelectVersion(2)

	assert.Equal(t, int64(2), e.CurrentVersion())
	assert.Equal(t, 60.0, resources[1].position, "position clamped into the shorter take")
	assert.Equal(t, 60.0, e.Snapshot().Duration)
}

func TestEngineSelectPreservesPlayFlag(t *testing.T) {
	e, resources := newTestEngine(t, 100, 120)

	e.Play()
	e.SelectVersion(2)

	assert.True(t, e.Playing(), "switching takes must not interrupt playback")
	assert.True(t, resources[1].playing)
}

func TestEngineSelectUnknownVersionIgnored(t *testing.T) {
	e, _ := newTestEngine(t, 100)

	e.SelectVersion(42)
	assert.Equal(t, int64(1), e.CurrentVersion())
}

func TestEngineVolumeClampAndUnmute(t *testing.T) {
	e, resources := newTestEngine(t, 100)

	e.ToggleMute()
	require.True(t, resources[0].muted)

	e.SetVolume(1.5)
	assert.Equal(t, 1.0, resources[0].volume)
	assert.False(t, resources[0].muted, "raising the knob clears mute")

	e.SetVolume(-0.2)
	assert.Equal(t, 0.0, resources[0].volume)
	assert.True(t, resources[0].muted, "zero volume mutes output")
}

func TestEngineVolumePersistedPerVersion(t *testing.T) {
	store := &fakeVolumeStore{}
	e := NewEngine(context.Background(), store)
	defer e.Close()

	r1, r2 := newFakeResource(100), newFakeResource(120)
	e.SetVersions([]VersionResource{{ID: 1, Resource: r1}, {ID: 2, Resource: r2}})

	e.SetVolume(0.5)
	e.SelectVersion(2)
	e.SetVolume(0.8)

	assert.Equal(t, 0.5, store.sets[1])
	assert.Equal(t, 0.8, store.sets[2])

	e.SelectVersion(1)
	assert.Equal(t, 0.5, r1.volume, "each version keeps its own level")
}

func TestEngineRehydratesVolumes(t *testing.T) {
	store := &fakeVolumeStore{loaded: map[int64]float64{1: 0.3}}
	e := NewEngine(context.Background(), store)
	defer e.Close()

	r := newFakeResource(100)
	e.SetVersions([]VersionResource{{ID: 1, Resource: r}})

	assert.Equal(t, 0.3, r.volume)
}

func TestEngineLoadFailureFallsBackToDefaults(t *testing.T) {
	store := &fakeVolumeStore{loadErr: errors.New("redis down")}
	e := NewEngine(context.Background(), store)
	defer e.Close()

	r := newFakeResource(100)
	e.SetVersions([]VersionResource{{ID: 1, Resource: r}})

	assert.Equal(t, defaultVolume, r.volume)
}

func TestEngineSetVersionsKeepsSelection(t *testing.T) {
	e, _ := newTestEngine(t, 100, 120)

	e.SelectVersion(2)
	r3 := newFakeResource(80)
	e.SetVersions([]VersionResource{
		{ID: 2, Resource: newFakeResource(120)},
		{ID: 3, Resource: r3},
	})

	assert.Equal(t, int64(2), e.CurrentVersion())
	assert.True(t, r3.muted)
}

func TestEngineSetVersionsDroppedCurrentFallsToFirst(t *testing.T) {
	e, _ := newTestEngine(t, 100, 120)

	e.SetVersions([]VersionResource{{ID: 2, Resource: newFakeResource(120)}})
	assert.Equal(t, int64(2), e.CurrentVersion())
	assert.False(t, e.Playing())
}

func TestEngineDeepLinkOncePerPair(t *testing.T) {
	e, resources := newTestEngine(t, 100, 120)

	e.ApplyDeepLink(2, 30)
	assert.Equal(t, int64(2), e.CurrentVersion())
	assert.Equal(t, 30.0, resources[1].position)

	e.Seek(50)
	e.ApplyDeepLink(2, 30)
	assert.Equal(t, 50.0, resources[1].position, "same link applies only once")

	e.ApplyDeepLink(2, 40)
	assert.Equal(t, 40.0, resources[1].position, "a different time is a new link")
}

func TestEngineDeepLinkDeferredUntilDurationKnown(t *testing.T) {
	e, resources := newTestEngine(t, 0)
	target := resources[0]

	e.ApplyDeepLink(1, 30)
	assert.Equal(t, 0, target.seekCalls, "seek deferred while length unknown")

	target.duration = 100
	target.known = true
	e.Play()
	e.correctDrift()

	assert.Equal(t, 30.0, target.position)
}

func TestEngineDriftCorrection(t *testing.T) {
	e, resources := newTestEngine(t, 100, 120, 60)

	e.Play()
	e.Seek(40)

	resources[1].position = 40.2
	resources[2].position = 40.03
	e.correctDrift()

	assert.Equal(t, 40.0, resources[1].position, "beyond threshold gets snapped")
	assert.Equal(t, 40.03, resources[2].position, "within threshold left alone")
}

func TestEngineDriftClampsToShorterTake(t *testing.T) {
	e, resources := newTestEngine(t, 100, 30)

	e.Play()
	e.Seek(50)
	resources[1].position = 10
	e.correctDrift()

	assert.Equal(t, 30.0, resources[1].position)
}

func TestEngineSnapshotDefaults(t *testing.T) {
	e, _ := newTestEngine(t, 100)

	state := e.Snapshot()
	assert.Equal(t, int64(1), state.CurrentVersionID)
	assert.Equal(t, defaultVolume, state.Volume)
	assert.False(t, state.Muted)
}

func TestTimelineResourceAdvancesWhilePlaying(t *testing.T) {
	r := NewTimelineResource(100)

	require.NoError(t, r.Play())
	assert.True(t, r.Playing())

	r.SetPosition(150)
	pos := r.Position()
	assert.LessOrEqual(t, pos, 100.0, "position never exceeds duration")

	r.Pause()
	assert.False(t, r.Playing())
}

func TestTimelineResourceUnknownDuration(t *testing.T) {
	r := NewTimelineResource(0)

	_, known := r.Duration()
	assert.False(t, known)

	r.SetDuration(80)
	d, known := r.Duration()
	assert.True(t, known)
	assert.Equal(t, 80.0, d)
}
