package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tekton-fabric/core/internal/clock"
)

func newTestRegistry(fake *clock.Fake) *Registry {
	return New(Options{
		CheckInterval:     time.Minute,
		OfflineMultiplier: 3,
		Clock:             fake,
	})
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := newTestRegistry(fake)

	stored, err := r.Register(ComponentDescriptor{
		ID:           "comp-1",
		Name:         "ingest-worker",
		Type:         "worker",
		Capabilities: []string{"tools.web.search"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, stored.Availability.Status)
	assert.Equal(t, fake.Now(), stored.RegisteredAt)

	got, ok := r.Get("comp-1")
	require.True(t, ok)
	assert.Equal(t, "ingest-worker", got.Name)
}

func TestRegistry_RegisterRejectsEmptyID(t *testing.T) {
	r := newTestRegistry(clock.NewFake(time.Now()))
	_, err := r.Register(ComponentDescriptor{Name: "no-id"})
	require.Error(t, err)
}

func TestRegistry_RegisterPreservesRegisteredAtOnReplace(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := newTestRegistry(fake)

	first, err := r.Register(ComponentDescriptor{ID: "comp-1", Name: "v1"})
	require.NoError(t, err)

	fake.Advance(time.Hour)
	second, err := r.Register(ComponentDescriptor{ID: "comp-1", Name: "v2"})
	require.NoError(t, err)

	assert.Equal(t, first.RegisteredAt, second.RegisteredAt)
	assert.Equal(t, fake.Now(), second.LastSeen)
	assert.Equal(t, "v2", second.Name)
}

func TestRegistry_Unregister(t *testing.T) {
	r := newTestRegistry(clock.NewFake(time.Now()))
	_, err := r.Register(ComponentDescriptor{ID: "comp-1"})
	require.NoError(t, err)

	assert.True(t, r.Unregister("comp-1"))
	assert.False(t, r.Unregister("comp-1"))

	_, ok := r.Get("comp-1")
	assert.False(t, ok)
}

func TestRegistry_FindByCapability_ExactAndStructured(t *testing.T) {
	r := newTestRegistry(clock.NewFake(time.Now()))
	_, err := r.Register(ComponentDescriptor{ID: "a", Capabilities: []string{"tools.web.search"}})
	require.NoError(t, err)
	_, err = r.Register(ComponentDescriptor{ID: "b", Capabilities: []string{"tools.web.fetch"}})
	require.NoError(t, err)
	_, err = r.Register(ComponentDescriptor{ID: "c", Capabilities: []string{"search"}})
	require.NoError(t, err)

	exact := r.FindByCapability("tools.web.search")
	require.Len(t, exact, 1)
	assert.Equal(t, "a", exact[0].ID)

	prefix := r.FindByCapability("tools.web")
	ids := idsOf(prefix)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	flat := r.FindByCapability("search")
	require.Len(t, flat, 1)
	assert.Equal(t, "c", flat[0].ID)
}

func TestRegistry_FindForCapabilities_Intersection(t *testing.T) {
	r := newTestRegistry(clock.NewFake(time.Now()))
	_, err := r.Register(ComponentDescriptor{ID: "a", Capabilities: []string{"tools.web.search", "tools.web.fetch"}})
	require.NoError(t, err)
	_, err = r.Register(ComponentDescriptor{ID: "b", Capabilities: []string{"tools.web.search"}})
	require.NoError(t, err)

	both := r.FindForCapabilities([]string{"tools.web.search", "tools.web.fetch"})
	require.Len(t, both, 1)
	assert.Equal(t, "a", both[0].ID)
}

func TestRegistry_FindByType(t *testing.T) {
	r := newTestRegistry(clock.NewFake(time.Now()))
	_, err := r.Register(ComponentDescriptor{ID: "a", Type: "agent"})
	require.NoError(t, err)
	_, err = r.Register(ComponentDescriptor{ID: "b", Type: "worker"})
	require.NoError(t, err)

	agents := r.FindByType("agent")
	require.Len(t, agents, 1)
	assert.Equal(t, "a", agents[0].ID)
}

func TestRegistry_UpdateStatus_HeartbeatHealsOffline(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := newTestRegistry(fake)
	_, err := r.Register(ComponentDescriptor{ID: "comp-1"})
	require.NoError(t, err)

	r.UpdateStatus("comp-1", StatusOffline)
	got, _ := r.Get("comp-1")
	assert.Equal(t, StatusOffline, got.Availability.Status)

	ok := r.UpdateStatus("comp-1", "")
	require.True(t, ok)
	got, _ = r.Get("comp-1")
	assert.Equal(t, StatusAvailable, got.Availability.Status)
}

func TestRegistry_UpdateStatus_UnknownID(t *testing.T) {
	r := newTestRegistry(clock.NewFake(time.Now()))
	assert.False(t, r.UpdateStatus("ghost", StatusAvailable))
}

func TestRegistry_Sweep_MarksOfflineAfterThreshold(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := newTestRegistry(fake)
	_, err := r.Register(ComponentDescriptor{ID: "comp-1"})
	require.NoError(t, err)

	fake.Advance(2 * time.Minute)
	r.Sweep()
	got, _ := r.Get("comp-1")
	assert.Equal(t, StatusAvailable, got.Availability.Status, "below 3x interval should not flip offline")

	fake.Advance(2 * time.Minute)
	r.Sweep()
	got, _ = r.Get("comp-1")
	assert.Equal(t, StatusOffline, got.Availability.Status)
}

func TestRegistry_Sweep_FiresCallbackOnlyOnce(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := newTestRegistry(fake)
	_, err := r.Register(ComponentDescriptor{ID: "comp-1"})
	require.NoError(t, err)

	var updates int
	r.Observe(func(event ChangeEvent, d *ComponentDescriptor) {
		if event == EventUpdated {
			updates++
		}
	})

	fake.Advance(10 * time.Minute)
	r.Sweep()
	r.Sweep()
	r.Sweep()

	assert.Equal(t, 1, updates)
}

func TestRegistry_Observe_FiresOnRegisterAndUnregister(t *testing.T) {
	r := newTestRegistry(clock.NewFake(time.Now()))

	var events []ChangeEvent
	r.Observe(func(event ChangeEvent, d *ComponentDescriptor) {
		events = append(events, event)
	})

	_, err := r.Register(ComponentDescriptor{ID: "comp-1"})
	require.NoError(t, err)
	r.Unregister("comp-1")

	require.Len(t, events, 2)
	assert.Equal(t, EventRegistered, events[0])
	assert.Equal(t, EventUnregistered, events[1])
}

func idsOf(descriptors []*ComponentDescriptor) []string {
	ids := make([]string, len(descriptors))
	for i, d := range descriptors {
		ids[i] = d.ID
	}
	return ids
}
