package fabric

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tekton-fabric/core/internal/clock"
	"github.com/tekton-fabric/core/transport"
	"github.com/tekton-fabric/core/urp"
)

func TestContextLifecycleIsIdempotent(t *testing.T) {
	fc, err := NewContext(WithRegistrationSecret(urp.StaticSecret("test-secret")))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, fc.Start(ctx))
	require.Error(t, fc.Start(ctx), "starting twice should fail")

	require.NoError(t, fc.Shutdown(context.Background()))
	require.NoError(t, fc.Shutdown(context.Background()), "shutting down twice should be a no-op")
}

func TestContextWiresSubsystems(t *testing.T) {
	fc, err := NewContext(WithRegistrationSecret(urp.StaticSecret("test-secret")))
	require.NoError(t, err)

	assert.NotNil(t, fc.Bus)
	assert.NotNil(t, fc.Registry)
	assert.NotNil(t, fc.Supervisor)
	assert.NotNil(t, fc.URP)
	assert.NotNil(t, fc.DBFactory)
	assert.NotNil(t, fc.Tasks)
	assert.Nil(t, fc.Transport())
}

func TestContextStartRegistersDiscoveredManifests(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "component.yaml"), []byte(`
component:
  id: scan-worker
  name: Scan Worker
  version: 1.0.0
  port: 9001
capabilities:
  - id: scan.port
    name: Port Scan
`), 0o644))

	fake := clock.NewFake(time.Unix(0, 0))
	fc, err := NewContext(
		WithRegistrationSecret(urp.StaticSecret("test-secret")),
		WithManifestRoot(dir),
		WithClock(fake),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fc.Start(ctx))
	defer fc.Shutdown(context.Background())

	manifests := fc.Manifests()
	require.Len(t, manifests, 1)
	assert.Equal(t, "scan-worker", manifests[0].Component.ID)

	descriptor, ok := fc.Registry.Get("scan-worker")
	require.True(t, ok)
	assert.Equal(t, "Scan Worker", descriptor.Name)
	assert.Contains(t, descriptor.Capabilities, "scan.port")
}

func TestContextWithTransportWiresHealthServer(t *testing.T) {
	fc, err := NewContext(
		WithRegistrationSecret(urp.StaticSecret("test-secret")),
		WithTransport(transport.Config{Port: 0}, "svc-a"),
	)
	require.NoError(t, err)
	require.NotNil(t, fc.Transport())
	assert.NotZero(t, fc.Transport().Port())
	fc.Transport().Stop()
}
