package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tekton-fabric/core/internal/clock"
)

func newTestSupervisor(fake *clock.Fake) *Supervisor {
	return New(Options{
		InitializingTimeout:    time.Minute,
		OperationTimeout:       time.Minute,
		OperationSweepInterval: time.Second,
		Clock:                  fake,
	})
}

func TestSupervisor_StartComponent_Success(t *testing.T) {
	s := newTestSupervisor(clock.NewFake(time.Now()))

	err := s.StartComponent(context.Background(), "a", func(ctx context.Context) bool {
		return true
	}, time.Second)
	require.NoError(t, err)

	state, ok := s.State("a")
	require.True(t, ok)
	assert.Equal(t, StateReady, state)
}

func TestSupervisor_StartComponent_FailsToFailedWithNoDependencies(t *testing.T) {
	s := newTestSupervisor(clock.NewFake(time.Now()))

	err := s.StartComponent(context.Background(), "a", func(ctx context.Context) bool {
		return false
	}, time.Second)
	require.NoError(t, err)

	state, _ := s.State("a")
	assert.Equal(t, StateFailed, state)
}

func TestSupervisor_StartComponent_DemotesToDegradedWhenDependencyNotReady(t *testing.T) {
	s := newTestSupervisor(clock.NewFake(time.Now()))
	s.RegisterDependency("a", []string{"b"})
	// "b" is never started, so its state is UNKNOWN (not READY).

	err := s.StartComponent(context.Background(), "a", func(ctx context.Context) bool {
		return false
	}, time.Second)
	require.NoError(t, err)

	state, _ := s.State("a")
	assert.Equal(t, StateDegraded, state)
}

func TestSupervisor_StartComponent_TimeoutTriggersResolution(t *testing.T) {
	s := newTestSupervisor(clock.NewFake(time.Now()))

	err := s.StartComponent(context.Background(), "a", func(ctx context.Context) bool {
		<-ctx.Done()
		return false
	}, 10*time.Millisecond)
	require.NoError(t, err)

	state, _ := s.State("a")
	assert.Equal(t, StateFailed, state)
}

func TestSupervisor_ObserveState_FiresOnTransition(t *testing.T) {
	s := newTestSupervisor(clock.NewFake(time.Now()))

	var events []TransitionEvent
	s.ObserveState(StateReady, func(event TransitionEvent) {
		events = append(events, event)
	})

	err := s.StartComponent(context.Background(), "a", func(ctx context.Context) bool {
		return true
	}, time.Second)
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].ComponentID)
	assert.Equal(t, StateInitializing, events[0].From)
	assert.Equal(t, StateReady, events[0].To)
}

func TestSupervisor_ObserverPanicIsolated(t *testing.T) {
	s := newTestSupervisor(clock.NewFake(time.Now()))

	s.ObserveState(StateReady, func(event TransitionEvent) {
		panic("boom")
	})

	var called bool
	s.ObserveState(StateReady, func(event TransitionEvent) {
		called = true
	})

	err := s.StartComponent(context.Background(), "a", func(ctx context.Context) bool {
		return true
	}, time.Second)
	require.NoError(t, err)
	assert.True(t, called, "second observer should still run after the first panics")
}

func TestSupervisor_IllegalTransitionRejected(t *testing.T) {
	s := newTestSupervisor(clock.NewFake(time.Now()))
	err := s.Heal(context.Background(), "a") // UNKNOWN -> READY is not a valid edge
	assert.Error(t, err)
}

func TestSupervisor_Sweep_ForcesOverdueOperationToFailed(t *testing.T) {
	fake := clock.NewFake(time.Now())
	s := newTestSupervisor(fake)

	require.NoError(t, s.StartComponent(context.Background(), "a", func(ctx context.Context) bool {
		return true
	}, time.Second))

	s.TrackOperation("op-1", "a", "rebuild_index")
	require.NoError(t, s.Stop(context.Background(), "a"))

	fake.Advance(2 * time.Minute)
	s.Sweep(context.Background())

	// Stop() moved "a" to STOPPING; the operation timeout force-fails it
	// anyway, and the operation itself must no longer be tracked afterward.
	state, _ := s.State("a")
	assert.Equal(t, StateFailed, state)
	s.operationsMu.Lock()
	_, tracked := s.operations["op-1"]
	s.operationsMu.Unlock()
	assert.False(t, tracked)
}

func TestSupervisor_Sweep_ResolvesStuckInitializing(t *testing.T) {
	fake := clock.NewFake(time.Now())
	s := newTestSupervisor(fake)

	s.mu.Lock()
	s.components["a"] = &componentState{id: "a", state: StateInitializing, startTime: fake.Now()}
	s.mu.Unlock()

	fake.Advance(2 * time.Minute)
	s.Sweep(context.Background())

	state, _ := s.State("a")
	assert.Equal(t, StateFailed, state)
}

func TestSupervisor_Sweep_ResolvesStuckInitializingAtExactTimeoutBoundary(t *testing.T) {
	fake := clock.NewFake(time.Now())
	s := newTestSupervisor(fake)

	s.mu.Lock()
	s.components["a"] = &componentState{id: "a", state: StateInitializing, startTime: fake.Now()}
	s.mu.Unlock()

	// Elapsed time exactly equal to InitializingTimeout must be treated as a
	// timeout (closed upper bound), not left alone.
	fake.Advance(s.opts.InitializingTimeout)
	s.Sweep(context.Background())

	state, _ := s.State("a")
	assert.Equal(t, StateFailed, state)
}

func TestSupervisor_Sweep_ForcesOperationOverdueAtExactTimeoutBoundary(t *testing.T) {
	fake := clock.NewFake(time.Now())
	s := newTestSupervisor(fake)

	require.NoError(t, s.StartComponent(context.Background(), "a", func(ctx context.Context) bool {
		return true
	}, time.Second))

	s.TrackOperation("op-1", "a", "rebuild_index")

	// Elapsed time exactly equal to OperationTimeout must be treated as
	// overdue (closed upper bound).
	fake.Advance(s.opts.OperationTimeout)
	s.Sweep(context.Background())

	s.operationsMu.Lock()
	_, tracked := s.operations["op-1"]
	s.operationsMu.Unlock()
	assert.False(t, tracked)
}

func TestSupervisor_DetectAndResolveCycles(t *testing.T) {
	s := newTestSupervisor(clock.NewFake(time.Now()))
	s.RegisterDependency("a", []string{"b"})
	s.RegisterDependency("b", []string{"a"})

	require.NotEmpty(t, s.DetectCycles())

	var resolvedCount int
	s.ResolveCycles(func(cycle Cycle, from, to string) {
		resolvedCount++
	})
	assert.Equal(t, 1, resolvedCount)
	assert.Empty(t, s.DetectCycles())
}

func TestSupervisor_Sweep_InvokesOnDeadlockDetectedForBrokenCycles(t *testing.T) {
	fake := clock.NewFake(time.Now())
	var calls int
	s := New(Options{
		InitializingTimeout:    time.Minute,
		OperationTimeout:       time.Minute,
		OperationSweepInterval: time.Second,
		Clock:                  fake,
		OnDeadlockDetected: func(ctx context.Context, cycle Cycle, removedFrom, removedTo string) {
			calls++
		},
	})
	s.RegisterDependency("a", []string{"b"})
	s.RegisterDependency("b", []string{"a"})

	s.Sweep(context.Background())

	assert.Equal(t, 1, calls)
	assert.Empty(t, s.DetectCycles())
}
