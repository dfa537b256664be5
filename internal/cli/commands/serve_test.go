package commands

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/searchy/internal/web/middleware"
	"github.com/conduit-lang/searchy/internal/web/searchapi"
)

func TestServe_Wiring(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg, dbPath := writeConfig(t, "server:\n  host: 127.0.0.1\n  port: 0\n"+
		"redis:\n  url: redis://"+mr.Addr()+"\n  limit: 2\n  window: 1m\n"+
		"cache:\n  store: redis\n  ttl: 1m\n")
	seed(t, dbPath,
		"CREATE TABLE persons (id INTEGER PRIMARY KEY, first_name TEXT)",
		"INSERT INTO persons (id, first_name) VALUES (1, 'John')",
	)

	a, err := newApp(&rootOptions{configPath: cfg, noColor: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv, err := a.server(ctx)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	base := "http://" + srv.Addr()

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	search := func() *http.Response {
		resp, err := http.Post(base+"/search/person", "application/json",
			strings.NewReader(`{"filter": {"field": "firstName", "value": "John"}}`))
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	first := search()
	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.Equal(t, "miss", first.Header.Get(searchapi.CacheStatusHeader))
	assert.NotEmpty(t, first.Header.Get(middleware.RequestIDHeader))

	second := search()
	assert.Equal(t, "hit", second.Header.Get(searchapi.CacheStatusHeader))
	assert.Equal(t, "0", second.Header.Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusTooManyRequests, search().StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServe_Profiling(t *testing.T) {
	for _, enabled := range []bool{false, true} {
		cfg, _ := writeConfig(t, fmt.Sprintf("server:\n  host: 127.0.0.1\n  port: 0\n  profiling: %t\n", enabled))
		a, err := newApp(&rootOptions{configPath: cfg, noColor: true})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		srv, err := a.server(ctx)
		require.NoError(t, err)
		require.NoError(t, srv.Listen())
		done := make(chan error, 1)
		go func() { done <- srv.Run(ctx) }()

		resp, err := http.Get("http://" + srv.Addr() + "/debug/pprof/stats")
		require.NoError(t, err)
		resp.Body.Close()
		if enabled {
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		} else {
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		}

		cancel()
		require.NoError(t, <-done)
	}
}
