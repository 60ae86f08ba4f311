package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/doublezero/internal/core/observability/log"
	"github.com/zeusync/doublezero/internal/core/patch"
	"github.com/zeusync/doublezero/internal/core/protocol"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newTestServer(t *testing.T, config Config) *Server {
	t.Helper()
	config.CookieSecret = "test-secret"
	registry := NewRegistry(config.SessionQueueSize)
	registry.Init()
	t.Cleanup(registry.Shutdown)

	s, err := NewServer(config, registry, log.NewNop())
	require.NoError(t, err)
	return s
}

func register(t *testing.T, srv *httptest.Server) *http.Cookie {
	t.Helper()
	resp, err := http.Get(srv.URL + protocol.PathClient)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, c := range resp.Cookies() {
		if c.Name == protocol.CookieClientID {
			return c
		}
	}
	t.Fatal("no client_id cookie")
	return nil
}

func cookieClient(t *testing.T, s *Server, c *http.Cookie) string {
	t.Helper()
	id, err := s.signer.Verify(c.Value)
	require.NoError(t, err)
	return string(id)
}

func push(t *testing.T, srv *httptest.Server, cookie *http.Cookie, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+protocol.PathPush, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", protocol.ContentTypeJSON)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp
}

func TestAuthorityPush(t *testing.T) {
	t.Run("last record of a batch wins", func(t *testing.T) {
		registry := NewRegistry(8)
		registry.Init()
		a := NewAuthority(registry, nil, nil)

		session, err := a.Subscribe()
		require.NoError(t, err)

		p, err := a.Push("A", protocol.Batch{
			map[string]any{"x": 1, "y": 1},
			map[string]any{"x": 2, "y": 2},
		})
		require.NoError(t, err)
		require.Equal(t, patch.Patch{{
			Op:    patch.OpAdd,
			Path:  "/A",
			Value: map[string]any{"x": 2.0, "y": 2.0},
		}}, p)

		frame := <-session.Frames()
		require.JSONEq(t, `[{"op":"add","path":"/A","value":{"x":2,"y":2}}]`, string(frame))

		state, version := a.State()
		require.Equal(t, map[string]any{"A": map[string]any{"x": 2.0, "y": 2.0}}, state)
		require.Equal(t, uint64(1), version)
	})

	t.Run("unchanged value broadcasts nothing", func(t *testing.T) {
		registry := NewRegistry(8)
		registry.Init()
		a := NewAuthority(registry, nil, nil)

		_, err := a.Push("A", protocol.Batch{map[string]any{"x": 1}})
		require.NoError(t, err)

		session, err := a.Subscribe()
		require.NoError(t, err)
		p, err := a.Push("A", protocol.Batch{map[string]any{"x": 1}})
		require.NoError(t, err)
		require.True(t, p.IsEmpty())
		require.Empty(t, session.Frames())
	})

	t.Run("empty batch", func(t *testing.T) {
		registry := NewRegistry(8)
		registry.Init()
		_, err := NewAuthority(registry, nil, nil).Push("A", protocol.Batch{})
		require.ErrorIs(t, err, ErrEmptyBatch)
	})
}

func TestBroadcastFidelity(t *testing.T) {
	registry := NewRegistry(8)
	registry.Init()
	a := NewAuthority(registry, nil, nil)

	early, err := a.Subscribe()
	require.NoError(t, err)

	_, err = a.Push("A", protocol.Batch{map[string]any{"x": 1}})
	require.NoError(t, err)

	late, err := a.Subscribe()
	require.NoError(t, err)

	_, err = a.Push("B", protocol.Batch{map[string]any{"x": 2}})
	require.NoError(t, err)

	first := <-early.Frames()
	second := <-early.Frames()
	require.JSONEq(t, `[{"op":"add","path":"/A","value":{"x":1}}]`, string(first))
	require.JSONEq(t, `[{"op":"add","path":"/B","value":{"x":2}}]`, string(second))

	only := <-late.Frames()
	require.Equal(t, second, only)
	require.Empty(t, late.Frames())

	a.Unsubscribe(early)
	_, err = a.Push("A", protocol.Batch{map[string]any{"x": 3}})
	require.NoError(t, err)
	require.Empty(t, early.Frames())
	require.Len(t, late.Frames(), 1)
}

func TestSlowConsumerIsClosed(t *testing.T) {
	registry := NewRegistry(1)
	registry.Init()
	a := NewAuthority(registry, nil, nil)

	session, err := a.Subscribe()
	require.NoError(t, err)

	_, err = a.Push("A", protocol.Batch{map[string]any{"x": 1}})
	require.NoError(t, err)
	_, err = a.Push("A", protocol.Batch{map[string]any{"x": 2}})
	require.NoError(t, err)

	<-session.Done()
	require.ErrorIs(t, session.Err(), ErrSlowConsumer)
	require.Zero(t, registry.Len())
}

func TestRegistryLifecycle(t *testing.T) {
	registry := NewRegistry(4)
	_, err := registry.Open()
	require.ErrorIs(t, err, ErrRegistryClosed)

	registry.Init()
	session, err := registry.Open()
	require.NoError(t, err)
	require.Equal(t, 1, registry.Len())

	registry.Shutdown()
	<-session.Done()
	require.ErrorIs(t, session.Err(), ErrServerClosed)
	require.Zero(t, registry.Len())

	_, err = registry.Open()
	require.ErrorIs(t, err, ErrRegistryClosed)
}

func TestRegister(t *testing.T) {
	s := newTestServer(t, DefaultServerConfig())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + protocol.PathClient)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `"client_id"`)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == protocol.CookieClientID {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.Secure)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteNoneMode, cookie.SameSite)

	id := cookieClient(t, s, cookie)
	require.Contains(t, string(body), id)
}

func TestPush(t *testing.T) {
	s := newTestServer(t, DefaultServerConfig())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	cookie := register(t, srv)

	t.Run("without cookie", func(t *testing.T) {
		require.Equal(t, http.StatusUnauthorized, push(t, srv, nil, `[{"x":1}]`).StatusCode)
	})

	t.Run("with forged cookie", func(t *testing.T) {
		other, err := NewCookieSigner("other-secret", time.Hour)
		require.NoError(t, err)
		token, err := other.Issue("mallory")
		require.NoError(t, err)
		forged := &http.Cookie{Name: protocol.CookieClientID, Value: token}
		require.Equal(t, http.StatusUnauthorized, push(t, srv, forged, `[{"x":1}]`).StatusCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		require.Equal(t, http.StatusBadRequest, push(t, srv, cookie, `{not json`).StatusCode)
		require.Equal(t, http.StatusBadRequest, push(t, srv, cookie, `{"x":1}`).StatusCode)
		require.Equal(t, http.StatusBadRequest, push(t, srv, cookie, `[]`).StatusCode)
	})

	t.Run("accepted", func(t *testing.T) {
		require.Equal(t, http.StatusNoContent, push(t, srv, cookie, `[{"x":1,"y":1},{"x":2,"y":2}]`).StatusCode)
		state, _ := s.Authority().State()
		require.Equal(t, map[string]any{"x": 2.0, "y": 2.0}, state[cookieClient(t, s, cookie)])
	})

	t.Run("wrong method", func(t *testing.T) {
		resp, err := http.Get(srv.URL + protocol.PathPush)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestPushRateLimit(t *testing.T) {
	config := DefaultServerConfig()
	config.PushRate = 0.001
	config.PushBurst = 1
	s := newTestServer(t, config)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	cookie := register(t, srv)

	require.Equal(t, http.StatusNoContent, push(t, srv, cookie, `[{"x":1}]`).StatusCode)
	require.Equal(t, http.StatusTooManyRequests, push(t, srv, cookie, `[{"x":2}]`).StatusCode)

	// Limits are per client.
	require.Equal(t, http.StatusNoContent, push(t, srv, register(t, srv), `[{"x":3}]`).StatusCode)
}

func TestPullStream(t *testing.T) {
	s := newTestServer(t, DefaultServerConfig())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	cookie := register(t, srv)
	id := cookieClient(t, s, cookie)

	resp, err := http.Get(srv.URL + protocol.PathPull)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, protocol.ContentTypeNDJSON, resp.Header.Get("Content-Type"))

	require.Equal(t, http.StatusNoContent, push(t, srv, cookie, `[{"x":1,"y":1},{"x":2,"y":2}]`).StatusCode)
	require.Equal(t, http.StatusNoContent, push(t, srv, cookie, `[{"x":3,"y":2}]`).StatusCode)

	frames := protocol.NewFrameReader(resp.Body, 0)
	first, err := frames.ReadFrame()
	require.NoError(t, err)
	require.JSONEq(t, `[{"op":"add","path":"/`+id+`","value":{"x":2,"y":2}}]`, string(first))

	second, err := frames.ReadFrame()
	require.NoError(t, err)
	require.JSONEq(t, `[{"op":"replace","path":"/`+id+`/x","value":3}]`, string(second))
}

func TestState(t *testing.T) {
	s := newTestServer(t, DefaultServerConfig())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	get := func(etag string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, srv.URL+protocol.PathState, nil)
		require.NoError(t, err)
		if etag != "" {
			req.Header.Set("If-None-Match", etag)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := get("")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.JSONEq(t, `{}`, string(body))
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	resp = get(etag)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNotModified, resp.StatusCode)

	require.Equal(t, http.StatusNoContent, push(t, srv, register(t, srv), `[{"x":1}]`).StatusCode)

	resp = get(etag)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEqual(t, etag, resp.Header.Get("ETag"))
}

func TestCORS(t *testing.T) {
	config := DefaultServerConfig()
	config.AllowedOrigins = []string{"https://app.example"}
	s := newTestServer(t, config)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	do := func(method, origin string) *http.Response {
		req, err := http.NewRequest(method, srv.URL+protocol.PathState, nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp
	}

	resp := do(http.MethodGet, "https://app.example")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	resp = do(http.MethodOptions, "https://app.example")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(http.MethodGet, "https://evil.example")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, DefaultServerConfig())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	require.Equal(t, http.StatusNoContent, push(t, srv, register(t, srv), `[{"x":1}]`).StatusCode)

	resp, err := http.Get(srv.URL + protocol.PathMetrics)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "doublezero_authority_broadcasts_total 1")
	require.Contains(t, string(body), `doublezero_authority_pushes_total{result="accepted"} 1`)
}

func TestServeShutsDownOpenStreams(t *testing.T) {
	config := DefaultServerConfig()
	config.CookieSecret = "test-secret"
	registry := NewRegistry(config.SessionQueueSize)
	registry.Init()
	s, err := NewServer(config, registry, log.NewNop())
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + protocol.PathPull)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 1, registry.Len())

	cancel()
	select {
	case err = <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("server did not shut down")
	}

	_, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Zero(t, registry.Len())
	require.ErrorIs(t, s.Stop(context.Background()), ErrServerNotRunning)
}
