package urp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tekton-fabric/core/bus"
	"github.com/tekton-fabric/core/internal/clock"
	"github.com/tekton-fabric/core/registry"
)

func newTestManager(t *testing.T, fake *clock.Fake) (*Manager, *registry.Registry, *bus.LocalBus) {
	t.Helper()
	reg := registry.New(registry.Options{Clock: fake})
	b := bus.NewLocalBus()
	mgr := NewManager(Options{
		Registry: reg,
		Bus:      b,
		Secret:   StaticSecret("test-secret"),
		Clock:    fake,
	})
	return mgr, reg, b
}

func TestManager_RegisterPublishesCompletedEvent(t *testing.T) {
	fake := clock.NewFake(time.Now())
	mgr, reg, b := newTestManager(t, fake)
	defer b.Close()

	events := make(chan map[string]any, 1)
	unsub, err := b.Subscribe(context.Background(), bus.TopicRegistrationCompleted, func(ctx context.Context, topic string, payload map[string]any) {
		events <- payload
	})
	require.NoError(t, err)
	defer unsub()

	token, err := mgr.Register(context.Background(), registry.ComponentDescriptor{ID: "comp-1", Name: "worker"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "comp-1", token.ComponentID)

	_, ok := reg.Get("comp-1")
	assert.True(t, ok)

	select {
	case payload := <-events:
		assert.Equal(t, "comp-1", payload["component_id"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for registration.completed")
	}
}

func TestManager_RegisterRejectsMissingFields(t *testing.T) {
	fake := clock.NewFake(time.Now())
	mgr, _, b := newTestManager(t, fake)
	defer b.Close()

	_, err := mgr.Register(context.Background(), registry.ComponentDescriptor{Name: "no-id"}, nil)
	require.Error(t, err)

	_, err = mgr.Register(context.Background(), registry.ComponentDescriptor{ID: "comp-1"}, nil)
	require.Error(t, err)
}

func TestManager_ValidateImmediatelyAfterRegister(t *testing.T) {
	fake := clock.NewFake(time.Now())
	mgr, _, b := newTestManager(t, fake)
	defer b.Close()

	token, err := mgr.Register(context.Background(), registry.ComponentDescriptor{ID: "comp-1", Name: "w"}, nil)
	require.NoError(t, err)

	assert.True(t, mgr.Validate("comp-1", token))
}

func TestManager_ValidateFalseAfterUnregister(t *testing.T) {
	fake := clock.NewFake(time.Now())
	mgr, _, b := newTestManager(t, fake)
	defer b.Close()

	token, err := mgr.Register(context.Background(), registry.ComponentDescriptor{ID: "comp-1", Name: "w"}, nil)
	require.NoError(t, err)

	ok, err := mgr.Unregister(context.Background(), "comp-1", token)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.False(t, mgr.Validate("comp-1", token))
}

func TestManager_TokenExpires(t *testing.T) {
	fake := clock.NewFake(time.Now())
	reg := registry.New(registry.Options{Clock: fake})
	b := bus.NewLocalBus()
	defer b.Close()
	mgr := NewManager(Options{
		Registry: reg,
		Bus:      b,
		Secret:   StaticSecret("test-secret"),
		Clock:    fake,
		TokenTTL: time.Minute,
	})

	token, err := mgr.Register(context.Background(), registry.ComponentDescriptor{ID: "comp-1", Name: "w"}, nil)
	require.NoError(t, err)
	assert.True(t, mgr.Validate("comp-1", token))

	fake.Advance(2 * time.Minute)
	assert.False(t, mgr.Validate("comp-1", token))
}

func TestManager_HeartbeatUpdatesLastSeenAndPublishes(t *testing.T) {
	fake := clock.NewFake(time.Now())
	mgr, reg, b := newTestManager(t, fake)
	defer b.Close()

	events := make(chan map[string]any, 1)
	unsub, err := b.Subscribe(context.Background(), bus.TopicRegistrationHeartbeat, func(ctx context.Context, topic string, payload map[string]any) {
		events <- payload
	})
	require.NoError(t, err)
	defer unsub()

	token, err := mgr.Register(context.Background(), registry.ComponentDescriptor{ID: "comp-1", Name: "w"}, nil)
	require.NoError(t, err)

	fake.Advance(30 * time.Second)
	require.NoError(t, mgr.Heartbeat(context.Background(), "comp-1", token, ""))

	descriptor, _ := reg.Get("comp-1")
	assert.Equal(t, fake.Now(), descriptor.LastSeen)

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for heartbeat event")
	}
}

func TestManager_HeartbeatFailsWithoutLiveToken(t *testing.T) {
	fake := clock.NewFake(time.Now())
	mgr, _, b := newTestManager(t, fake)
	defer b.Close()

	err := mgr.Heartbeat(context.Background(), "ghost", &RegistrationToken{ComponentID: "ghost"}, "")
	require.Error(t, err)
}

func TestManager_UnregisterUnknownReturnsNotFound(t *testing.T) {
	fake := clock.NewFake(time.Now())
	mgr, _, b := newTestManager(t, fake)
	defer b.Close()

	_, err := mgr.Unregister(context.Background(), "ghost", &RegistrationToken{ComponentID: "ghost"})
	require.Error(t, err)
}

func TestManager_ReRegisterWithValidTokenSucceeds(t *testing.T) {
	fake := clock.NewFake(time.Now())
	mgr, _, b := newTestManager(t, fake)
	defer b.Close()

	token, err := mgr.Register(context.Background(), registry.ComponentDescriptor{ID: "comp-1", Name: "v1"}, nil)
	require.NoError(t, err)

	second, err := mgr.Register(context.Background(), registry.ComponentDescriptor{ID: "comp-1", Name: "v2"}, token)
	require.NoError(t, err)
	assert.NotEqual(t, token.TokenID, second.TokenID)
}

func TestManager_ReRegisterWithoutTokenFails(t *testing.T) {
	fake := clock.NewFake(time.Now())
	mgr, _, b := newTestManager(t, fake)
	defer b.Close()

	_, err := mgr.Register(context.Background(), registry.ComponentDescriptor{ID: "comp-1", Name: "v1"}, nil)
	require.NoError(t, err)

	_, err = mgr.Register(context.Background(), registry.ComponentDescriptor{ID: "comp-1", Name: "v2"}, nil)
	require.Error(t, err)
}
