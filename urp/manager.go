package urp

import (
	"context"
	"sync"
	"time"

	"github.com/tekton-fabric/core/bus"
	"github.com/tekton-fabric/core/errs"
	"github.com/tekton-fabric/core/internal/clock"
	"github.com/tekton-fabric/core/registry"
)

// Manager is the Registration Manager (spec §4.1): the gate for identity.
// It mints and verifies tokens, delegates descriptor storage to a
// *registry.Registry, and republishes registration lifecycle events on a
// bus.Bus. The Registry remains the source of truth — a bus publish
// failure is logged as advisory and never rolls back a Registry mutation,
// but a Registry failure always aborts before a token is minted or an
// event is published (spec §4.1 ordering/tie-breaks).
type Manager struct {
	registry *registry.Registry
	bus      bus.Bus
	secret   SecretSource
	clock    clock.Clock
	ttl      time.Duration

	tokensMu sync.RWMutex
	tokens   map[string]*RegistrationToken // component_id -> live token

	onPublishError func(err error)
}

// Options configures a Manager.
type Options struct {
	Registry *registry.Registry
	Bus      bus.Bus
	Secret   SecretSource
	TokenTTL time.Duration
	Clock    clock.Clock

	// OnPublishError is called when a bus publish fails after a successful
	// Registry mutation. Defaults to a no-op; wire a logger here.
	OnPublishError func(err error)
}

// NewManager constructs a Manager. Registry, Bus, and Secret are required.
func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTTL
	}
	if opts.OnPublishError == nil {
		opts.OnPublishError = func(error) {}
	}
	return &Manager{
		registry:       opts.Registry,
		bus:            opts.Bus,
		secret:         opts.Secret,
		clock:          opts.Clock,
		ttl:            opts.TokenTTL,
		tokens:         make(map[string]*RegistrationToken),
		onPublishError: opts.OnPublishError,
	}
}

// Register inserts descriptor into the Registry and, on success, mints a
// signed token and publishes tekton.registration.completed. If a live
// token already exists for descriptor.ID, presentedToken must validate
// against it to authorize re-registration; pass a nil presentedToken for
// a first-time register.
func (m *Manager) Register(ctx context.Context, descriptor registry.ComponentDescriptor, presentedToken *RegistrationToken) (*RegistrationToken, error) {
	if descriptor.ID == "" {
		return nil, errs.New(component, "register", errs.InvalidArgument, "descriptor id is required")
	}
	if descriptor.Name == "" {
		return nil, errs.New(component, "register", errs.InvalidArgument, "descriptor name is required")
	}

	m.tokensMu.RLock()
	existing := m.tokens[descriptor.ID]
	m.tokensMu.RUnlock()

	if existing != nil {
		if err := verifyToken(m.secret, m.clock, descriptor.ID, presentedToken); err != nil {
			return nil, errs.New(component, "register", errs.AlreadyExists,
				"component already registered; presented token does not authorize re-registration").WithCause(err)
		}
	}

	stored, err := m.registry.Register(descriptor)
	if err != nil {
		return nil, errs.New(component, "register", errs.Unavailable, "registry refused insertion").WithCause(err)
	}

	token, err := mintToken(m.secret, m.clock, stored.ID, m.ttl)
	if err != nil {
		return nil, err
	}

	m.tokensMu.Lock()
	m.tokens[stored.ID] = token
	m.tokensMu.Unlock()

	m.publish(ctx, bus.TopicRegistrationCompleted, map[string]any{
		"component_id": stored.ID,
		"name":         stored.Name,
		"type":         stored.Type,
	})

	return token, nil
}

// Unregister verifies token, removes the descriptor from the Registry, and
// publishes tekton.registration.revoked.
func (m *Manager) Unregister(ctx context.Context, componentID string, token *RegistrationToken) (bool, error) {
	if err := m.checkToken(componentID, token); err != nil {
		return false, err
	}

	if !m.registry.Unregister(componentID) {
		return false, errs.New(component, "unregister", errs.NotFound, "component not registered")
	}

	m.tokensMu.Lock()
	delete(m.tokens, componentID)
	m.tokensMu.Unlock()

	m.publish(ctx, bus.TopicRegistrationRevoked, map[string]any{"component_id": componentID})
	return true, nil
}

// Validate verifies token and the component's continued existence in the
// Registry without side effects.
func (m *Manager) Validate(componentID string, token *RegistrationToken) bool {
	if err := m.checkToken(componentID, token); err != nil {
		return false
	}
	_, ok := m.registry.Get(componentID)
	return ok
}

// Heartbeat verifies token, touches the Registry's last_seen (and status,
// if provided), and publishes tekton.registration.heartbeat. Heartbeats
// are lossy: duplicate or out-of-order heartbeats are idempotent.
func (m *Manager) Heartbeat(ctx context.Context, componentID string, token *RegistrationToken, status string) error {
	if err := m.checkToken(componentID, token); err != nil {
		return err
	}

	if !m.registry.UpdateStatus(componentID, status) {
		return errs.New(component, "heartbeat", errs.NotFound, "component not registered")
	}

	m.publish(ctx, bus.TopicRegistrationHeartbeat, map[string]any{
		"component_id": componentID,
		"status":       status,
	})
	return nil
}

func (m *Manager) checkToken(componentID string, token *RegistrationToken) error {
	if componentID == "" {
		return errs.New(component, "verify", errs.InvalidArgument, "component id is required")
	}
	m.tokensMu.RLock()
	live := m.tokens[componentID]
	m.tokensMu.RUnlock()
	if live == nil {
		return errs.New(component, "verify", errs.Unauthenticated, "no live token for component")
	}
	if token == nil || token.TokenID != live.TokenID {
		return errs.New(component, "verify", errs.Unauthenticated, "presented token does not match live token")
	}
	return verifyToken(m.secret, m.clock, componentID, token)
}

// publish is advisory: a failure is reported via onPublishError and never
// rolls back the Registry mutation that already succeeded (spec §4.1).
func (m *Manager) publish(ctx context.Context, topic string, payload map[string]any) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ctx, topic, payload, nil); err != nil {
		m.onPublishError(err)
	}
}
