package health

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworkCheck(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	port := listener.Addr().(*net.TCPAddr).Port

	tests := []struct {
		name          string
		host          string
		port          int
		expectHealthy bool
	}{
		{name: "reachable", host: "127.0.0.1", port: port, expectHealthy: true},
		{name: "unreachable port", host: "127.0.0.1", port: 1, expectHealthy: false},
		{name: "negative port", host: "127.0.0.1", port: -1, expectHealthy: false},
		{name: "port too large", host: "127.0.0.1", port: 70000, expectHealthy: false},
		{name: "empty host", host: "", port: 80, expectHealthy: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()

			report := NetworkCheck(ctx, tt.host, tt.port)
			assert.Equal(t, tt.expectHealthy, report.IsHealthy())
			assert.NotEmpty(t, report.Message)
		})
	}
}

func TestNetworkCheckNilContextDefaultsTimeout(t *testing.T) {
	report := NetworkCheck(nil, "127.0.0.1", 1)
	assert.True(t, report.IsUnhealthy())
}

func TestFileCheck(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test.txt")
	require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0o644))

	tests := []struct {
		name          string
		path          string
		expectHealthy bool
	}{
		{name: "existing file", path: tmpFile, expectHealthy: true},
		{name: "existing directory", path: tmpDir, expectHealthy: true},
		{name: "missing path", path: "/this/path/does/not/exist/ever", expectHealthy: false},
		{name: "empty path", path: "", expectHealthy: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := FileCheck(tt.path)
			assert.Equal(t, tt.expectHealthy, report.IsHealthy())
			assert.NotEmpty(t, report.Message)
		})
	}
}

func TestCombine(t *testing.T) {
	tests := []struct {
		name       string
		checks     []Report
		wantStatus Status
	}{
		{
			name: "all healthy",
			checks: []Report{
				healthy("a"), healthy("b"),
			},
			wantStatus: StatusHealthy,
		},
		{
			name: "one unhealthy wins",
			checks: []Report{
				healthy("a"), unhealthy("b failed", nil), degraded("c degraded", nil),
			},
			wantStatus: StatusUnhealthy,
		},
		{
			name: "degraded without unhealthy",
			checks: []Report{
				healthy("a"), degraded("b degraded", nil),
			},
			wantStatus: StatusDegraded,
		},
		{
			name:       "no checks",
			checks:     nil,
			wantStatus: StatusHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Combine(tt.checks...)
			assert.Equal(t, tt.wantStatus, report.Status)
			assert.NotEmpty(t, report.Message)
		})
	}
}
