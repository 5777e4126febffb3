package lifecycle

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tekton-fabric/core/errs"
	"github.com/tekton-fabric/core/internal/clock"
)

const component = "lifecycle"

// TransitionEvent describes a single state transition fired to observers.
type TransitionEvent struct {
	ComponentID string
	From        State
	To          State
	Reason      string
	BlockedBy   []string
}

// TransitionObserver reacts to a TransitionEvent. Observer panics are
// isolated per spec §4.3 ("observer exceptions are isolated") — Go has no
// exceptions, so isolation means each observer call is wrapped in its own
// recover.
type TransitionObserver func(event TransitionEvent)

type componentState struct {
	id             string
	state          State
	startTime      time.Time
	degradedReason string
	failureReason  string
	blockedBy      []string
}

type operation struct {
	id            string
	componentID   string
	operationType string
	startedAt     time.Time
}

// Options configures a Supervisor.
type Options struct {
	// InitializingTimeout bounds how long a component may sit in
	// INITIALIZING before the periodic sweep examines it. Default 120s.
	InitializingTimeout time.Duration

	// OperationTimeout bounds a tracked long-running operation. Default 60s.
	OperationTimeout time.Duration

	// OperationSweepInterval is how often the sweep runs. Default 5s.
	OperationSweepInterval time.Duration

	Clock  clock.Clock
	Tracer trace.Tracer

	// OnDeadlockDetected is called once per cycle broken by the periodic
	// sweep's dependency-cycle check, with the ctx the sweep was driven
	// with. Defaults to a no-op; wire it to publish a
	// bus.TopicDeadlockDetected event.
	OnDeadlockDetected func(ctx context.Context, cycle Cycle, removedFrom, removedTo string)
}

func (o *Options) setDefaults() {
	if o.InitializingTimeout <= 0 {
		o.InitializingTimeout = 120 * time.Second
	}
	if o.OperationTimeout <= 0 {
		o.OperationTimeout = 60 * time.Second
	}
	if o.OperationSweepInterval <= 0 {
		o.OperationSweepInterval = 5 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer("tekton-fabric/lifecycle")
	}
	if o.OnDeadlockDetected == nil {
		o.OnDeadlockDetected = func(context.Context, Cycle, string, string) {}
	}
}

// Supervisor is the Lifecycle Supervisor (spec §4.3).
type Supervisor struct {
	opts  Options
	graph *DependencyGraph

	mu         sync.RWMutex
	components map[string]*componentState

	observersMu        sync.RWMutex
	stateObservers     map[State][]TransitionObserver
	componentObservers map[string][]TransitionObserver

	operationsMu sync.Mutex
	operations   map[string]*operation
}

// New constructs a Supervisor.
func New(opts Options) *Supervisor {
	opts.setDefaults()
	return &Supervisor{
		opts:               opts,
		graph:              newDependencyGraph(),
		components:         make(map[string]*componentState),
		stateObservers:     make(map[State][]TransitionObserver),
		componentObservers: make(map[string][]TransitionObserver),
		operations:         make(map[string]*operation),
	}
}

// RegisterDependency records that id depends on each of deps.
func (s *Supervisor) RegisterDependency(id string, deps []string) {
	s.graph.RegisterDependency(id, deps)
}

// DetectCycles exposes the dependency graph's cycle detection.
func (s *Supervisor) DetectCycles() []Cycle {
	return s.graph.DetectCycles()
}

// ResolveCycles breaks every detected cycle by removing the last edge in
// its discovered path, invoking onResolve for each removal (use it to log).
func (s *Supervisor) ResolveCycles(onResolve func(cycle Cycle, removedFrom, removedTo string)) []Cycle {
	return s.graph.ResolveCycles(onResolve)
}

// ObserveState registers cb for every transition into state.
func (s *Supervisor) ObserveState(state State, cb TransitionObserver) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.stateObservers[state] = append(s.stateObservers[state], cb)
}

// ObserveComponent registers cb for every transition of component id.
func (s *Supervisor) ObserveComponent(id string, cb TransitionObserver) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.componentObservers[id] = append(s.componentObservers[id], cb)
}

func (s *Supervisor) fire(event TransitionEvent) {
	s.observersMu.RLock()
	observers := append(append([]TransitionObserver{}, s.stateObservers[event.To]...), s.componentObservers[event.ComponentID]...)
	s.observersMu.RUnlock()

	for _, obs := range observers {
		s.safeCall(obs, event)
	}
}

func (s *Supervisor) safeCall(obs TransitionObserver, event TransitionEvent) {
	defer func() { recover() }()
	obs(event)
}

// State returns id's current state, or (StateUnknown, false) if id has
// never been seen.
func (s *Supervisor) State(id string) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.components[id]
	if !ok {
		return StateUnknown, false
	}
	return cs.state, true
}

// transition validates and applies from -> to for id, stamping reason and
// blockedBy, then fires observers and an OpenTelemetry span event.
func (s *Supervisor) transition(ctx context.Context, id string, to State, reason string, blockedBy []string) error {
	s.mu.Lock()
	cs, ok := s.components[id]
	if !ok {
		cs = &componentState{id: id, state: StateUnknown}
		s.components[id] = cs
	}
	from := cs.state
	// An operation timeout force-fails the component from any live state,
	// bypassing the edge table.
	forced := to == StateFailed && reason == "operation_timeout" && from != StateUnknown && from != StateFailed
	if !forced && !canTransition(from, to) {
		s.mu.Unlock()
		return errs.New(component, "transition", errs.Conflict, "illegal transition").
			WithDetails(map[string]any{"component_id": id, "from": string(from), "to": string(to)})
	}
	cs.state = to
	switch to {
	case StateDegraded:
		cs.degradedReason = reason
		cs.blockedBy = blockedBy
	case StateFailed:
		cs.failureReason = reason
	case StateInitializing:
		cs.startTime = s.opts.Clock.Now()
	}
	s.mu.Unlock()

	_, span := s.opts.Tracer.Start(ctx, "lifecycle.transition",
		trace.WithAttributes(
			attribute.String("component_id", id),
			attribute.String("from_state", string(from)),
			attribute.String("to_state", string(to)),
		))
	span.End()

	s.fire(TransitionEvent{ComponentID: id, From: from, To: to, Reason: reason, BlockedBy: blockedBy})
	return nil
}

// StartComponent transitions id into INITIALIZING and runs startFn under a
// deadline of timeout. startFn's boolean return is interpreted as health:
// true moves id to READY, false or a deadline overrun triggers the
// stuck-INITIALIZING resolution (demote to DEGRADED if any dependency
// isn't READY, else FAILED).
func (s *Supervisor) StartComponent(ctx context.Context, id string, startFn func(ctx context.Context) bool, timeout time.Duration) error {
	if err := s.transition(ctx, id, StateInitializing, "", nil); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	healthy := make(chan bool, 1)
	go func() {
		healthy <- startFn(runCtx)
	}()

	select {
	case ok := <-healthy:
		if ok {
			return s.transition(ctx, id, StateReady, "", nil)
		}
		return s.resolveStuckInitializing(ctx, id)
	case <-runCtx.Done():
		return s.resolveStuckInitializing(ctx, id)
	}
}

// resolveStuckInitializing implements spec §4.3's examination of a
// component that failed to reach READY: if any dependency isn't READY,
// demote to DEGRADED with blocked_by; otherwise fail it outright.
func (s *Supervisor) resolveStuckInitializing(ctx context.Context, id string) error {
	blockedBy := s.blockedDependencies(id)
	if len(blockedBy) > 0 {
		return s.transition(ctx, id, StateDegraded, "dependency_timeout", blockedBy)
	}
	return s.transition(ctx, id, StateFailed, "initializing_timeout", nil)
}

func (s *Supervisor) blockedDependencies(id string) []string {
	deps := s.graph.DependenciesOf(id)
	var blocked []string
	for _, dep := range deps {
		state, ok := s.State(dep)
		if !ok || state != StateReady {
			blocked = append(blocked, dep)
		}
	}
	return blocked
}

// Stop transitions id from READY or DEGRADED to STOPPING.
func (s *Supervisor) Stop(ctx context.Context, id string) error {
	return s.transition(ctx, id, StateStopping, "", nil)
}

// Restart transitions id from STOPPING to RESTARTING.
func (s *Supervisor) Restart(ctx context.Context, id string) error {
	return s.transition(ctx, id, StateRestarting, "", nil)
}

// Heal transitions id from DEGRADED back to READY once its dependencies
// recover.
func (s *Supervisor) Heal(ctx context.Context, id string) error {
	return s.transition(ctx, id, StateReady, "", nil)
}

// TrackOperation registers a long-running operation so the sweep can force
// its component to FAILED if it outlives OperationTimeout.
func (s *Supervisor) TrackOperation(operationID, componentID, operationType string) {
	s.operationsMu.Lock()
	defer s.operationsMu.Unlock()
	s.operations[operationID] = &operation{
		id:            operationID,
		componentID:   componentID,
		operationType: operationType,
		startedAt:     s.opts.Clock.Now(),
	}
}

// CompleteOperation stops tracking operationID, whether it finished
// successfully or was handled some other way.
func (s *Supervisor) CompleteOperation(operationID string) {
	s.operationsMu.Lock()
	defer s.operationsMu.Unlock()
	delete(s.operations, operationID)
}

// Sweep examines components stuck in INITIALIZING past InitializingTimeout
// and operations stuck past OperationTimeout, force-transitioning their
// components per spec §4.3.
func (s *Supervisor) Sweep(ctx context.Context) {
	now := s.opts.Clock.Now()

	s.mu.RLock()
	var stuck []string
	for id, cs := range s.components {
		if cs.state == StateInitializing && now.Sub(cs.startTime) >= s.opts.InitializingTimeout {
			stuck = append(stuck, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range stuck {
		_ = s.resolveStuckInitializing(ctx, id)
	}

	s.operationsMu.Lock()
	var overdue []*operation
	for opID, op := range s.operations {
		if now.Sub(op.startedAt) >= s.opts.OperationTimeout {
			overdue = append(overdue, op)
			delete(s.operations, opID)
		}
	}
	s.operationsMu.Unlock()

	for _, op := range overdue {
		_ = s.transition(ctx, op.componentID, StateFailed, "operation_timeout", nil)
	}

	s.ResolveCycles(func(cycle Cycle, removedFrom, removedTo string) {
		s.opts.OnDeadlockDetected(ctx, cycle, removedFrom, removedTo)
	})
}

// Run drives Sweep on OperationSweepInterval until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.OperationSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
