// Package fabric assembles the four core subsystems — the Registration
// Manager (urp), the Registry, the Lifecycle Supervisor, and the Database
// Facade — into one process-wide Context, replacing the teacher's
// package-level agent/tool/plugin registries and Mission store with a
// single constructed value threaded through explicitly rather than reached
// for as global state.
package fabric

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tekton-fabric/core/bus"
	"github.com/tekton-fabric/core/dbfacade"
	"github.com/tekton-fabric/core/internal/clock"
	"github.com/tekton-fabric/core/lifecycle"
	"github.com/tekton-fabric/core/manifest"
	"github.com/tekton-fabric/core/registry"
	"github.com/tekton-fabric/core/task"
	"github.com/tekton-fabric/core/transport"
	"github.com/tekton-fabric/core/urp"
)

// contextConfig accumulates ContextOption values before Context
// construction, mirroring the teacher's frameworkConfig/FrameworkOption
// split.
type contextConfig struct {
	logger *slog.Logger
	clock  clock.Clock

	bus bus.Bus

	registryOpts registry.Options

	lifecycleOpts lifecycle.Options

	urpSecret urp.SecretSource
	urpTTL    time.Duration // zero means urp.DefaultTTL

	dbFactory *dbfacade.Factory

	manifestRoot string

	transportCfg    transport.Config
	withTransport   bool
	healthComponent string
}

// ContextOption configures a Context at construction time.
type ContextOption func(*contextConfig)

// WithLogger overrides the default JSON stdout logger.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *contextConfig) { c.logger = logger }
}

// WithClock overrides the default real clock, for deterministic tests.
func WithClock(clk clock.Clock) ContextOption {
	return func(c *contextConfig) { c.clock = clk }
}

// WithBus overrides the default in-process LocalBus, e.g. with a Redis-backed
// bus for a real deployment.
func WithBus(b bus.Bus) ContextOption {
	return func(c *contextConfig) { c.bus = b }
}

// WithRegistryOptions configures the Registry's liveness sweep.
func WithRegistryOptions(opts registry.Options) ContextOption {
	return func(c *contextConfig) { c.registryOpts = opts }
}

// WithLifecycleOptions configures the Lifecycle Supervisor's timeouts and
// tracer.
func WithLifecycleOptions(opts lifecycle.Options) ContextOption {
	return func(c *contextConfig) { c.lifecycleOpts = opts }
}

// WithRegistrationSecret sets the HMAC secret the Registration Manager uses
// to mint and verify tokens. Required in any deployment that calls Register.
func WithRegistrationSecret(secret urp.SecretSource) ContextOption {
	return func(c *contextConfig) { c.urpSecret = secret }
}

// WithRegistrationTTL overrides the default one-hour registration token
// lifetime.
func WithRegistrationTTL(ttl time.Duration) ContextOption {
	return func(c *contextConfig) { c.urpTTL = ttl }
}

// WithDBFactory overrides the default empty Factory, letting callers
// pre-register backend constructors before the Context is built.
func WithDBFactory(f *dbfacade.Factory) ContextOption {
	return func(c *contextConfig) { c.dbFactory = f }
}

// WithManifestRoot directs Start to walk root for component.yaml/component.yml
// files and register every valid manifest it finds.
func WithManifestRoot(root string) ContextOption {
	return func(c *contextConfig) { c.manifestRoot = root }
}

// WithTransport enables a grpc_health_v1 server wired to the Lifecycle
// Supervisor's state for componentID, the identity this process registers
// itself under.
func WithTransport(cfg transport.Config, componentID string) ContextOption {
	return func(c *contextConfig) {
		c.withTransport = true
		c.transportCfg = cfg
		c.healthComponent = componentID
	}
}

// Context is the process-wide handle on the fabric's core subsystems. It is
// built once at startup via NewContext and carried explicitly by callers —
// there is no package-level instance.
type Context struct {
	logger *slog.Logger
	clock  clock.Clock

	Bus        bus.Bus
	Registry   *registry.Registry
	Supervisor *lifecycle.Supervisor
	URP        *urp.Manager
	DBFactory  *dbfacade.Factory
	Tasks      *task.Manager

	manifestRoot string
	manifests    []*manifest.Manifest

	transport *transport.Server

	mu      sync.Mutex
	started bool
}

// NewContext wires the Bus, Registry, Lifecycle Supervisor, Registration
// Manager, Database Facade, and Task Manager into a single Context. It does
// not start background sweeps or bind network listeners — call Start for
// that.
func NewContext(opts ...ContextOption) (*Context, error) {
	cfg := &contextConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if cfg.clock == nil {
		cfg.clock = clock.Real()
	}
	if cfg.bus == nil {
		cfg.bus = bus.NewLocalBus()
	}
	if cfg.dbFactory == nil {
		cfg.dbFactory = dbfacade.NewFactory()
	}
	if cfg.urpSecret == nil {
		cfg.urpSecret = urp.StaticSecret(fmt.Sprintf("tekton-dev-secret-%d", os.Getpid()))
		cfg.logger.Warn("no registration secret configured; generated an ephemeral one for this process only")
	}

	cfg.registryOpts.Clock = cfg.clock
	reg := registry.New(cfg.registryOpts)

	cfg.lifecycleOpts.Clock = cfg.clock
	cfg.lifecycleOpts.OnDeadlockDetected = func(ctx context.Context, cycle lifecycle.Cycle, removedFrom, removedTo string) {
		if err := cfg.bus.Publish(ctx, bus.TopicDeadlockDetected, map[string]any{
			"cycle":        cycle.Path,
			"removed_from": removedFrom,
			"removed_to":   removedTo,
		}, nil); err != nil {
			cfg.logger.Error("deadlock detection event publish failed", "error", err)
		}
	}
	sup := lifecycle.New(cfg.lifecycleOpts)

	urpMgr := urp.NewManager(urp.Options{
		Registry: reg,
		Bus:      cfg.bus,
		Secret:   cfg.urpSecret,
		TokenTTL: cfg.urpTTL,
		Clock:    cfg.clock,
		OnPublishError: func(err error) {
			cfg.logger.Error("registration event publish failed", "error", err)
		},
	})

	tasks := task.NewManager(task.Options{Clock: cfg.clock})

	fc := &Context{
		logger:       cfg.logger,
		clock:        cfg.clock,
		Bus:          cfg.bus,
		Registry:     reg,
		Supervisor:   sup,
		URP:          urpMgr,
		DBFactory:    cfg.dbFactory,
		Tasks:        tasks,
		manifestRoot: cfg.manifestRoot,
	}

	if cfg.withTransport {
		srv, err := transport.NewServer(cfg.transportCfg)
		if err != nil {
			return nil, fmt.Errorf("fabric: build transport server: %w", err)
		}
		srv.WireLifecycle(sup, cfg.healthComponent)
		fc.transport = srv
	}

	return fc, nil
}

// Logger returns the Context's configured logger.
func (c *Context) Logger() *slog.Logger { return c.logger }

// Transport returns the wired health/gRPC server, or nil if WithTransport
// was not supplied to NewContext.
func (c *Context) Transport() *transport.Server { return c.transport }

// Manifests returns the manifests discovered by the most recent Start call.
func (c *Context) Manifests() []*manifest.Manifest {
	out := make([]*manifest.Manifest, len(c.manifests))
	copy(out, c.manifests)
	return out
}

// DBClientFor returns a pooled database adapter for componentID's namespace,
// routing through DBFactory.ClientFor so two components passing the same
// bare namespace never collide on the same adapter. Components reached
// through a Context should always obtain their database client this way
// rather than calling DBFactory.Create directly with a raw namespace.
func (c *Context) DBClientFor(componentID, namespace string, dbType dbfacade.DBType, backend string) (dbfacade.Adapter, error) {
	return c.DBFactory.ClientFor(componentID, namespace, dbType, backend)
}

// Start brings the Context's background work online: the Registry's
// liveness sweep, the Lifecycle Supervisor's operation-timeout sweep, any
// wired transport server, and — if a manifest root was configured — a
// one-shot discovery-and-registration pass. Start is idempotent; a second
// call returns an error without side effects, matching the teacher's
// started-bool guard.
func (c *Context) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("fabric: context already started")
	}
	c.started = true
	c.mu.Unlock()

	c.logger.Info("starting tekton fabric context")

	go c.Registry.Run(ctx)
	go c.Supervisor.Run(ctx)

	if _, err := c.URP.ListenForRequests(ctx); err != nil {
		return fmt.Errorf("fabric: subscribe registration requests: %w", err)
	}

	if c.transport != nil {
		go func() {
			if err := c.transport.Serve(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error("transport server stopped", "error", err)
			}
		}()
	}

	if c.manifestRoot != "" {
		found, errs := manifest.Discover(c.manifestRoot)
		for _, err := range errs {
			c.logger.Warn("manifest discovery skipped a file", "error", err)
		}
		c.manifests = found
		for _, m := range found {
			c.registerManifest(m)
		}
	}

	return nil
}

// registerManifest inserts a discovered manifest's component into the
// Registry directly, bypassing token issuance: manifests describe
// components this process owns and trusts at startup, not a remote caller
// presenting credentials over URP.
func (c *Context) registerManifest(m *manifest.Manifest) {
	now := c.clock.Now()
	descriptor := registry.ComponentDescriptor{
		ID:           m.Component.ID,
		Name:         m.Component.Name,
		Version:      m.Component.Version,
		Capabilities: m.CapabilityIDs(),
		RegisteredAt: now,
		LastSeen:     now,
		Availability: registry.Availability{Status: registry.StatusAvailable},
	}
	if m.Component.Port != 0 {
		descriptor.Endpoint = fmt.Sprintf(":%d", m.Component.Port)
	}

	if _, err := c.Registry.Register(descriptor); err != nil {
		c.logger.Error("failed to register discovered manifest", "component_id", m.Component.ID, "error", err)
	}
}

// Shutdown gracefully stops any wired transport server. Shutdown on a
// Context that was never started is a no-op, matching the teacher's guard.
func (c *Context) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	c.mu.Unlock()

	c.logger.Info("shutting down tekton fabric context")

	if c.transport != nil {
		c.transport.GracefulStop()
	}
	return c.Bus.Close()
}
