package profiler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) *Server {
	t.Helper()

	server := New("127.0.0.1:0")
	require.NoError(t, server.Start(context.Background()), "Start() error")
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})
	return server
}

func TestServer_StartAndShutdown(t *testing.T) {
	server := New("127.0.0.1:0")
	assert.Empty(t, server.Addr())

	require.NoError(t, server.Start(context.Background()), "Start() error")
	assert.NotEmpty(t, server.Addr())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, server.Shutdown(shutdownCtx), "Shutdown() error")
}

func TestServer_BadAddr(t *testing.T) {
	require.Error(t, New("not an address").Start(context.Background()))
}

func TestServer_Endpoints(t *testing.T) {
	baseURL := "http://" + startServer(t).Addr()

	tests := []struct {
		name     string
		endpoint string
	}{
		{name: "index", endpoint: "/debug/pprof/"},
		{name: "cmdline", endpoint: "/debug/pprof/cmdline"},
		{name: "symbol", endpoint: "/debug/pprof/symbol"},
		{name: "goroutine", endpoint: "/debug/pprof/goroutine"},
		{name: "vars", endpoint: "/debug/vars"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(baseURL + tt.endpoint)
			require.NoError(t, err, "GET %s error", tt.endpoint)
			defer func() {
				_ = resp.Body.Close()
			}()

			assert.Equal(t, http.StatusOK, resp.StatusCode, "GET %s", tt.endpoint)
		})
	}
}
