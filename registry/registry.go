// Package registry implements the Service/Agent Registry (spec §4.2): the
// fabric's single authoritative, in-memory directory of every component and
// agent currently known to the cluster. The Registry itself never persists
// across a process restart — durability, if any, is layered on top by
// ClusterMirror, a side-effect-only etcd projection that the Registry never
// reads back from, preserving the spec's non-persistence invariant.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/tekton-fabric/core/errs"
	"github.com/tekton-fabric/core/internal/clock"
)

const component = "registry"

// Availability status values.
const (
	StatusAvailable = "available"
	StatusDegraded  = "degraded"
	StatusOffline   = "offline"
)

// ChangeEvent identifies why an observer callback fired.
type ChangeEvent int

const (
	// EventRegistered fires exactly once per successful Register.
	EventRegistered ChangeEvent = iota
	// EventUnregistered fires exactly once per successful Unregister, including
	// unregistration driven by the liveness sweep.
	EventUnregistered
	// EventUpdated fires exactly once per accepted UpdateStatus mutation.
	EventUpdated
)

// ChangeCallback is invoked synchronously from the Registry's notification
// path; implementations must not block and must not call back into the
// Registry that invoked them.
type ChangeCallback func(event ChangeEvent, descriptor *ComponentDescriptor)

// Options configures a Registry.
type Options struct {
	// CheckInterval is how often the liveness sweep runs. A component is
	// marked offline once CheckInterval*OfflineMultiplier has elapsed since
	// its LastSeen. Defaults to 60s.
	CheckInterval time.Duration

	// OfflineMultiplier scales CheckInterval into the offline threshold.
	// Defaults to 3, matching spec §4.2's explicit correction of the
	// original's equal-to-interval threshold (which flapped components
	// offline on every heartbeat missed by a hair).
	OfflineMultiplier int

	// Clock abstracts time for deterministic tests. Defaults to clock.Real().
	Clock clock.Clock
}

func (o *Options) setDefaults() {
	if o.CheckInterval <= 0 {
		o.CheckInterval = 60 * time.Second
	}
	if o.OfflineMultiplier <= 0 {
		o.OfflineMultiplier = 3
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
}

func (o Options) offlineThreshold() time.Duration {
	return time.Duration(o.OfflineMultiplier) * o.CheckInterval
}

// Registry is the authoritative in-memory component/agent directory.
type Registry struct {
	opts Options

	mu          sync.RWMutex
	descriptors map[string]*ComponentDescriptor
	byType      map[string]map[string]struct{}
	capIndex    *capabilityIndex

	callbacksMu sync.RWMutex
	callbacks   []ChangeCallback
}

// New creates an empty Registry.
func New(opts Options) *Registry {
	opts.setDefaults()
	return &Registry{
		opts:        opts,
		descriptors: make(map[string]*ComponentDescriptor),
		byType:      make(map[string]map[string]struct{}),
		capIndex:    newCapabilityIndex(),
	}
}

// Observe registers cb to run on every subsequent registry mutation.
func (r *Registry) Observe(cb ChangeCallback) {
	r.callbacksMu.Lock()
	defer r.callbacksMu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

func (r *Registry) notify(event ChangeEvent, descriptor *ComponentDescriptor) {
	r.callbacksMu.RLock()
	defer r.callbacksMu.RUnlock()
	for _, cb := range r.callbacks {
		cb(event, descriptor.Clone())
	}
}

// Register inserts or replaces the descriptor for descriptor.ID. RegisteredAt
// is preserved across a replace; LastSeen is set to now and Availability
// defaults to available if the caller left it zero-valued.
func (r *Registry) Register(descriptor ComponentDescriptor) (*ComponentDescriptor, error) {
	if descriptor.ID == "" {
		return nil, errs.New(component, "register", errs.InvalidArgument, "descriptor id is required")
	}

	now := r.opts.Clock.Now()

	r.mu.Lock()
	if existing, ok := r.descriptors[descriptor.ID]; ok {
		r.capIndex.remove(descriptor.ID, existing.Capabilities)
		r.removeFromTypeIndex(descriptor.ID, existing.Type)
		descriptor.RegisteredAt = existing.RegisteredAt
	} else {
		descriptor.RegisteredAt = now
	}
	descriptor.LastSeen = now
	if descriptor.Availability.Status == "" {
		descriptor.Availability.Status = StatusAvailable
	}

	stored := descriptor
	r.descriptors[stored.ID] = &stored
	r.capIndex.add(stored.ID, stored.Capabilities)
	r.addToTypeIndex(stored.ID, stored.Type)
	r.mu.Unlock()

	r.notify(EventRegistered, &stored)
	return stored.Clone(), nil
}

func (r *Registry) addToTypeIndex(id, typ string) {
	if typ == "" {
		return
	}
	if r.byType[typ] == nil {
		r.byType[typ] = make(map[string]struct{})
	}
	r.byType[typ][id] = struct{}{}
}

func (r *Registry) removeFromTypeIndex(id, typ string) {
	if set, ok := r.byType[typ]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byType, typ)
		}
	}
}

// Unregister removes id's descriptor. Returns false if id was not present.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	existing, ok := r.descriptors[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.descriptors, id)
	r.capIndex.remove(id, existing.Capabilities)
	r.removeFromTypeIndex(id, existing.Type)
	r.mu.Unlock()

	r.notify(EventUnregistered, existing)
	return true
}

// Get returns a defensive copy of id's descriptor.
func (r *Registry) Get(id string) (*ComponentDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[id]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// All returns a defensive copy of every registered descriptor, keyed by ID.
func (r *Registry) All() map[string]*ComponentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*ComponentDescriptor, len(r.descriptors))
	for id, d := range r.descriptors {
		out[id] = d.Clone()
	}
	return out
}

// FindByCapability returns every descriptor declaring cap, either verbatim
// or as a structured prefix (spec §3, §4.2).
func (r *Registry) FindByCapability(cap string) []*ComponentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.capIndex.find(cap)
	out := make([]*ComponentDescriptor, 0, len(ids))
	for id := range ids {
		if d, ok := r.descriptors[id]; ok {
			out = append(out, d.Clone())
		}
	}
	return out
}

// FindForCapabilities returns every descriptor that declares ALL of caps.
func (r *Registry) FindForCapabilities(caps []string) []*ComponentDescriptor {
	if len(caps) == 0 {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	matching := r.capIndex.find(caps[0])
	for _, cap := range caps[1:] {
		next := r.capIndex.find(cap)
		for id := range matching {
			if _, ok := next[id]; !ok {
				delete(matching, id)
			}
		}
	}

	out := make([]*ComponentDescriptor, 0, len(matching))
	for id := range matching {
		if d, ok := r.descriptors[id]; ok {
			out = append(out, d.Clone())
		}
	}
	return out
}

// FindByType returns every descriptor with the given Type.
func (r *Registry) FindByType(typ string) []*ComponentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byType[typ]
	out := make([]*ComponentDescriptor, 0, len(ids))
	for id := range ids {
		if d, ok := r.descriptors[id]; ok {
			out = append(out, d.Clone())
		}
	}
	return out
}

// UpdateStatus touches id's LastSeen and, if status is non-empty, sets
// Availability.Status to it. If the component was previously offline and
// status is empty (a bare heartbeat), its status flips back to available —
// a missed-heartbeat timeout self-heals the moment contact resumes. Returns
// false if id is not registered.
func (r *Registry) UpdateStatus(id string, status string) bool {
	now := r.opts.Clock.Now()

	r.mu.Lock()
	existing, ok := r.descriptors[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	existing.LastSeen = now
	switch {
	case status != "":
		existing.Availability.Status = status
	case existing.Availability.Status == StatusOffline:
		existing.Availability.Status = StatusAvailable
	}
	snapshot := existing.Clone()
	r.mu.Unlock()

	r.notify(EventUpdated, snapshot)
	return true
}

// Sweep marks every descriptor whose LastSeen predates the offline
// threshold as offline, firing EventUpdated exactly once per descriptor it
// transitions (already-offline descriptors are left alone so repeated
// sweeps don't re-fire the callback). Exported for deterministic tests; Run
// drives it on a ticker in production.
func (r *Registry) Sweep() {
	now := r.opts.Clock.Now()
	threshold := r.opts.offlineThreshold()

	var transitioned []*ComponentDescriptor
	r.mu.Lock()
	for _, d := range r.descriptors {
		if d.Availability.Status == StatusOffline {
			continue
		}
		if now.Sub(d.LastSeen) >= threshold {
			d.Availability.Status = StatusOffline
			transitioned = append(transitioned, d.Clone())
		}
	}
	r.mu.Unlock()

	for _, d := range transitioned {
		r.notify(EventUpdated, d)
	}
}

// Run drives the liveness sweep on opts.CheckInterval until ctx is
// cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.opts.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
