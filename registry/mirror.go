package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// MirrorConfig configures a ClusterMirror's connection to etcd.
type MirrorConfig struct {
	// Endpoints is the list of etcd endpoints.
	Endpoints []string `json:"endpoints"`

	// Namespace is the etcd key prefix under which this cluster's
	// component entries live. Default: "tekton".
	Namespace string `json:"namespace"`

	// TTL is the lease time-to-live in seconds. Default: 30.
	TTL int `json:"ttl"`

	// TLS holds optional mTLS configuration for the etcd connection.
	TLS *TLSConfig `json:"tls"`
}

// TLSConfig holds TLS certificate configuration for secure etcd communication.
type TLSConfig struct {
	Enabled  bool   `json:"enabled"`
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`
	CAFile   string `json:"ca_file"`
}

// ClusterMirror projects Registry mutations into etcd as a cross-process,
// best-effort visibility layer. It is strictly a side effect: nothing in
// this package, the urp package, or the lifecycle package ever reads a
// ComponentDescriptor back out of etcd. The Registry's in-memory map
// remains the only source of truth, so if the mirror falls behind or the
// etcd cluster is unreachable, component discovery inside this process is
// unaffected (spec §4.2's non-persistence invariant). A second process
// wanting cross-cluster visibility reads the mirrored keys directly; it
// never reconstructs a Registry from them.
//
// Each mirrored component holds its own etcd lease, renewed at TTL/3,
// grounded on the same keepalive pattern the SDK's registry client used for
// per-instance leases (registry/client.go in the source tree this package
// started from).
type ClusterMirror struct {
	client    *clientv3.Client
	namespace string
	ttl       int

	mu        sync.Mutex
	leases    map[string]clientv3.LeaseID
	cancelFns map[string]context.CancelFunc
	wg        sync.WaitGroup
	closed    bool
}

// NewClusterMirror dials etcd and verifies connectivity.
func NewClusterMirror(cfg MirrorConfig) (*ClusterMirror, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("registry: cluster mirror endpoints cannot be empty")
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "tekton"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30
	}

	clientCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: 5 * time.Second,
	}

	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsConfig, err := cfg.TLS.clientTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("registry: build tls config: %w", err)
		}
		clientCfg.TLS = tlsConfig
	}

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("registry: create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := cli.Get(ctx, "health-check"); err != nil && err != context.DeadlineExceeded {
		cli.Close()
		return nil, fmt.Errorf("registry: etcd health check failed: %w", err)
	}

	return &ClusterMirror{
		client:    cli,
		namespace: namespace,
		ttl:       ttl,
		leases:    make(map[string]clientv3.LeaseID),
		cancelFns: make(map[string]context.CancelFunc),
	}, nil
}

// NewClusterMirrorFromEnv builds a ClusterMirror from the TEKTON_ETCD_ENDPOINTS
// environment variable (comma-separated). Returns (nil, nil) when unset so a
// component can run without cross-process mirroring — this is never treated
// as an error.
func NewClusterMirrorFromEnv() (*ClusterMirror, error) {
	endpoints := os.Getenv("TEKTON_ETCD_ENDPOINTS")
	if endpoints == "" {
		return nil, nil
	}
	list := strings.Split(endpoints, ",")
	for i, ep := range list {
		list[i] = strings.TrimSpace(ep)
	}
	return NewClusterMirror(MirrorConfig{Endpoints: list})
}

// Attach subscribes m to registry's change stream and mirrors every
// registration and unregistration into etcd. Intended to be called once at
// fabric wiring time.
func (m *ClusterMirror) Attach(r *Registry) {
	r.Observe(func(event ChangeEvent, d *ComponentDescriptor) {
		switch event {
		case EventRegistered:
			_ = m.put(context.Background(), d)
		case EventUnregistered:
			_ = m.delete(context.Background(), d.ID)
		case EventUpdated:
			_ = m.put(context.Background(), d)
		}
	})
}

func (m *ClusterMirror) put(ctx context.Context, d *ComponentDescriptor) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("registry: cluster mirror is closed")
	}
	m.mu.Unlock()

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("registry: marshal descriptor: %w", err)
	}
	key := m.buildKey(d.Type, d.ID)

	m.mu.Lock()
	leaseID, hasLease := m.leases[d.ID]
	m.mu.Unlock()

	if !hasLease {
		leaseResp, err := m.client.Grant(ctx, int64(m.ttl))
		if err != nil {
			return fmt.Errorf("registry: grant lease: %w", err)
		}
		leaseID = leaseResp.ID

		m.mu.Lock()
		m.leases[d.ID] = leaseID
		keepaliveCtx, cancel := context.WithCancel(context.Background())
		m.cancelFns[d.ID] = cancel
		m.wg.Add(1)
		m.mu.Unlock()

		go m.keepalive(keepaliveCtx, leaseID, d.ID)
	}

	_, err = m.client.Put(ctx, key, string(data), clientv3.WithLease(leaseID))
	if err != nil {
		return fmt.Errorf("registry: mirror put %s: %w", d.ID, err)
	}
	return nil
}

func (m *ClusterMirror) delete(ctx context.Context, id string) error {
	m.mu.Lock()
	if cancel, ok := m.cancelFns[id]; ok {
		cancel()
		delete(m.cancelFns, id)
	}
	leaseID, hasLease := m.leases[id]
	delete(m.leases, id)
	m.mu.Unlock()

	if hasLease {
		if _, err := m.client.Revoke(ctx, leaseID); err != nil {
			return fmt.Errorf("registry: revoke lease for %s: %w", id, err)
		}
	}
	return nil
}

func (m *ClusterMirror) keepalive(ctx context.Context, leaseID clientv3.LeaseID, id string) {
	defer m.wg.Done()

	interval := time.Duration(m.ttl) * time.Second / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.client.KeepAliveOnce(context.Background(), leaseID); err != nil {
				m.mu.Lock()
				delete(m.leases, id)
				delete(m.cancelFns, id)
				m.mu.Unlock()
				return
			}
		}
	}
}

func (m *ClusterMirror) buildKey(typ, id string) string {
	if typ == "" {
		typ = "component"
	}
	return fmt.Sprintf("/%s/%s/%s", m.namespace, typ, id)
}

// Close revokes every outstanding lease and closes the etcd client.
func (m *ClusterMirror) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for _, cancel := range m.cancelFns {
		cancel()
	}
	m.cancelFns = make(map[string]context.CancelFunc)
	m.mu.Unlock()

	m.wg.Wait()
	m.mu.Lock()
	leases := m.leases
	m.leases = make(map[string]clientv3.LeaseID)
	m.mu.Unlock()
	for _, leaseID := range leases {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_, _ = m.client.Revoke(ctx, leaseID)
		cancel()
	}
	return m.client.Close()
}
