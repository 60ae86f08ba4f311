// Package client provides the Go SDK for syncing a local store with a
// doublezero authority: records are batched and pushed on an interval,
// and patches from the authority's stream are applied to the store.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/doublezero/internal/core/document"
	"github.com/zeusync/doublezero/internal/core/observability/log"
	"github.com/zeusync/doublezero/internal/core/patch"
	"github.com/zeusync/doublezero/internal/core/protocol"
	"github.com/zeusync/doublezero/internal/core/protocol/websocket"
	"github.com/zeusync/doublezero/internal/core/store"
)

// Client syncs one store with the authority.
type Client struct {
	store *store.Store
	http  *http.Client
	base  *url.URL

	// Identity issued by the authority
	idMu   sync.RWMutex
	id     protocol.ClientID
	cookie *http.Cookie

	// Outbound records waiting for the next flush
	queueMu sync.Mutex
	queue   protocol.Batch

	eventHandlers []EventHandler
	handlerMutex  sync.RWMutex

	closed int32 // atomic bool

	config Config
	logger log.Log
}

// NewClient creates a client that applies inbound patches to st.
func NewClient(config Config, st *store.Store, logger log.Log) (*Client, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrInvalidConfig
	}
	base, err := url.Parse(strings.TrimRight(config.ServerURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &Client{
		store:  st,
		http:   httpClient,
		base:   base,
		config: config,
		logger: logger.With(log.String("component", "client"), log.String("store", st.Name())),
	}
	c.logger.Info("Client created",
		log.String("server_url", base.String()),
		log.String("transport", config.Transport))
	return c, nil
}

// ID returns the identifier issued by Register.
func (c *Client) ID() protocol.ClientID {
	c.idMu.RLock()
	defer c.idMu.RUnlock()
	return c.id
}

// Register asks the authority for a client identity and keeps the signed
// cookie for later requests.
func (c *Client) Register(ctx context.Context) (protocol.ClientID, error) {
	if atomic.LoadInt32(&c.closed) == 1 {
		return "", ErrClientClosed
	}

	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(protocol.PathClient), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", transportError("register", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return "", transportError("register", fmt.Errorf("%w: %s", ErrUnexpectedCode, resp.Status))
	}

	var body protocol.ClientResponse
	if err = json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", transportError("register", err)
	}

	var cookie *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == protocol.CookieClientID {
			cookie = ck
		}
	}
	if body.ClientID == "" || cookie == nil {
		return "", transportError("register", errors.New("response carries no client identity"))
	}

	c.idMu.Lock()
	c.id, c.cookie = body.ClientID, &http.Cookie{Name: cookie.Name, Value: cookie.Value}
	c.idMu.Unlock()

	c.logger.Info("Registered", log.String("client_id", string(body.ClientID)))
	c.emitEvent(Event{Type: EventTypeRegistered, Data: map[string]interface{}{"client_id": string(body.ClientID)}})
	return body.ClientID, nil
}

// Enqueue adds record to the next batch.
func (c *Client) Enqueue(record any) {
	c.queueMu.Lock()
	c.queue = append(c.queue, record)
	c.queueMu.Unlock()
}

// Pending returns the number of queued records.
func (c *Client) Pending() int {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	return len(c.queue)
}

// Flush pushes every queued record as one batch. The queue is cleared
// before sending, so a failed push loses its batch.
func (c *Client) Flush(ctx context.Context) error {
	c.queueMu.Lock()
	batch := c.queue
	c.queue = nil
	c.queueMu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := c.push(ctx, batch); err != nil {
		c.logger.Warn("Push failed, batch dropped", log.Int("records", len(batch)), log.Error(err))
		c.emitEvent(Event{Type: EventTypePushFailed, Error: err, Data: map[string]interface{}{"records": len(batch)}})
		return err
	}

	c.logger.Debug("Pushed batch", log.Int("records", len(batch)))
	c.emitEvent(Event{Type: EventTypePushed, Data: map[string]interface{}{"records": len(batch)}})
	return nil
}

func (c *Client) push(ctx context.Context, batch protocol.Batch) error {
	cookie := c.identity()
	if cookie == nil {
		return ErrNotRegistered
	}
	body, err := json.Marshal(batch)
	if err != nil {
		return err
	}

	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(protocol.PathPush), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", protocol.ContentTypeJSON)
	req.AddCookie(cookie)

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError("push", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return transportError("push", fmt.Errorf("%w: %s", ErrUnexpectedCode, resp.Status))
	}
	return nil
}

// Pull opens the authority's patch stream and applies every patch to the
// store until the stream ends or ctx is done. It does not reconnect.
func (c *Client) Pull(ctx context.Context) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrClientClosed
	}
	if c.config.Transport == TransportWebSocket {
		return c.pullWebSocket(ctx)
	}
	return c.pullHTTP(ctx)
}

func (c *Client) pullHTTP(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(protocol.PathPull), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", protocol.ContentTypeNDJSON)
	if cookie := c.identity(); cookie != nil {
		req.AddCookie(cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError("pull", err)
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return transportError("pull", fmt.Errorf("%w: %s", ErrUnexpectedCode, resp.Status))
	}

	c.streamOpened(TransportHTTP)
	frames := protocol.NewFrameReader(resp.Body, c.config.Protocol.MaxMessageSize)
	for {
		frame, err := frames.ReadFrame()
		switch {
		case err == nil:
			c.handleFrame(ctx, frame)
		case errors.Is(err, protocol.ErrMessageTooLarge):
			c.dropFrame(nil, err)
		case errors.Is(err, io.EOF):
			c.streamClosed(nil)
			return nil
		case ctx.Err() != nil:
			c.streamClosed(nil)
			return nil
		default:
			err = transportError("pull", err)
			c.streamClosed(err)
			return err
		}
	}
}

func (c *Client) pullWebSocket(ctx context.Context) error {
	header := http.Header{}
	if cookie := c.identity(); cookie != nil {
		header.Set("Cookie", cookie.String())
	}

	conn, err := websocket.Dial(ctx, c.websocketURL(), header, c.tlsConfig(), c.config.Protocol)
	if err != nil {
		return transportError("pull", err)
	}
	defer conn.Close()

	// Receive does not watch ctx.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c.streamOpened(TransportWebSocket)
	for {
		frame, err := conn.Receive()
		if err != nil {
			if ctx.Err() != nil {
				c.streamClosed(nil)
				return nil
			}
			err = transportError("pull", err)
			c.streamClosed(err)
			return err
		}
		c.handleFrame(ctx, frame)
	}
}

// handleFrame applies one inbound patch. Malformed frames and patches
// that do not apply are logged and skipped; the stream goes on.
func (c *Client) handleFrame(ctx context.Context, frame []byte) {
	p, err := patch.Decode(frame)
	if err != nil {
		c.dropFrame(frame, err)
		return
	}
	if err = c.store.ApplyPatch(ctx, p); err != nil {
		c.logger.Warn("Failed to apply patch", log.Int("operations", len(p)), log.Error(err))
		c.emitEvent(Event{Type: EventTypeApplyFailed, Error: err, Data: map[string]interface{}{"operations": len(p)}})
		return
	}
	c.emitEvent(Event{Type: EventTypePatchApplied, Data: map[string]interface{}{"operations": len(p)}})
}

func (c *Client) dropFrame(frame []byte, err error) {
	c.logger.Warn("Dropping malformed frame", log.Int("bytes", len(frame)), log.Error(err))
	c.emitEvent(Event{Type: EventTypeFrameDropped, Error: err, Data: map[string]interface{}{"frame": string(frame)}})
}

func (c *Client) streamOpened(transport string) {
	c.logger.Info("Pull stream opened", log.String("transport", transport))
	c.emitEvent(Event{Type: EventTypeStreamOpened, Data: map[string]interface{}{"transport": transport}})
}

func (c *Client) streamClosed(err error) {
	if err != nil {
		c.logger.Warn("Pull stream failed", log.Error(err))
	} else {
		c.logger.Info("Pull stream closed")
	}
	c.emitEvent(Event{Type: EventTypeStreamClosed, Error: err})
}

// Resync replaces the store's document with the authority's current
// state. It is only ever called explicitly.
func (c *Client) Resync(ctx context.Context) error {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(protocol.PathState), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return transportError("resync", err)
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return transportError("resync", fmt.Errorf("%w: %s", ErrUnexpectedCode, resp.Status))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError("resync", err)
	}
	state, err := document.Unmarshal(raw)
	if err != nil {
		return transportError("resync", err)
	}
	if err = c.store.Set(ctx, state); err != nil {
		return err
	}

	c.logger.Info("Resynced from authority", log.String("etag", resp.Header.Get("ETag")))
	c.emitEvent(Event{Type: EventTypeResynced})
	return nil
}

// Run registers if needed, then flushes on every interval and follows the
// pull stream until ctx is done. A failed or ended stream is logged and
// not reopened; flushing goes on.
func (c *Client) Run(ctx context.Context) error {
	if c.identity() == nil {
		if _, err := c.Register(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.flushLoop(gctx)
		return nil
	})
	g.Go(func() error {
		if err := c.Pull(gctx); err != nil && !errors.Is(err, ErrClientClosed) {
			c.logger.Error("Pull stream ended with error", log.Error(err))
		}
		return nil
	})
	return g.Wait()
}

func (c *Client) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.Flush(ctx)
		}
	}
}

// Close stops further registration and pulls.
func (c *Client) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil // Already closed
	}
	c.logger.Info("Client closed")
	return nil
}

func (c *Client) identity() *http.Cookie {
	c.idMu.RLock()
	defer c.idMu.RUnlock()
	return c.cookie
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

func (c *Client) websocketURL() string {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String() + protocol.PathWS
}

func (c *Client) tlsConfig() *tls.Config {
	if t, ok := c.http.Transport.(*http.Transport); ok {
		return t.TLSClientConfig
	}
	return nil
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.RequestTimeout > 0 {
		return context.WithTimeout(ctx, c.config.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

func transportError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
