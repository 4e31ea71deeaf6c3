package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"localshare/broadcast"
	"localshare/gateway"
	pushws "localshare/handlers/websocket"
	"localshare/netutil"
	"localshare/server"
	"localshare/stores/filesystem"
	"localshare/stores/memory"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// swappableNative lets a test drop every push connection and keep serving.
type swappableNative struct {
	hub    *broadcast.Hub
	mu     sync.Mutex
	cur    *pushws.NativeServer
	paused bool
}

func (s *swappableNative) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cur, paused := s.cur, s.paused
	s.mu.Unlock()
	if paused {
		http.Error(w, "push paused", http.StatusServiceUnavailable)
		return
	}
	cur.ServeHTTP(w, r)
}

// setPaused makes new push connections fail while true.
func (s *swappableNative) setPaused(paused bool) {
	s.mu.Lock()
	s.paused = paused
	s.mu.Unlock()
}

func (s *swappableNative) kick() {
	s.mu.Lock()
	old := s.cur
	s.cur = pushws.NewNativeServer(s.hub)
	s.mu.Unlock()
	old.Close()
}

type testHost struct {
	srv    *httptest.Server
	gw     *gateway.Gateway
	hub    *broadcast.Hub
	native *swappableNative
	store  interface{ Clear(context.Context) error }
}

func newTestHost(t *testing.T) *testHost {
	t.Helper()
	hub := broadcast.NewHub()
	files := filesystem.NewReceiver(afero.NewMemMapFs(), "/uploads")
	store := memory.NewItemStore(hub, files)
	gw := gateway.New(store, files, 0)
	native := &swappableNative{hub: hub, cur: pushws.NewNativeServer(hub)}

	router := server.NewRouter(server.Routes{
		Gateway: gw,
		Handle:  netutil.ServerHandle{BoundAddress: "127.0.0.1", BoundPort: 3000},
		Clients: hub,
		Native:  native,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		native.mu.Lock()
		native.cur.Close()
		native.mu.Unlock()
		srv.Close()
	})
	return &testHost{srv: srv, gw: gw, hub: hub, native: native, store: store}
}

func TestNewNormalizesURL(t *testing.T) {
	c, err := New("192.168.1.5:3000")
	require.NoError(t, err)
	assert.Equal(t, "ws://192.168.1.5:3000/ws", c.PushURL())
	assert.Equal(t, "http://192.168.1.5:3000/items", c.endpoint("/items"))

	c, err = New("https://share.lan/")
	require.NoError(t, err)
	assert.Equal(t, "wss://share.lan/ws", c.PushURL())

	_, err = New("http://")
	assert.Error(t, err)
}

func TestClientRoundTrip(t *testing.T) {
	host := newTestHost(t)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/local/a.txt", []byte("alpha"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/local/b.bin", []byte{0, 1, 2}, 0644))

	c, err := New(host.srv.URL, WithFs(fs))
	require.NoError(t, err)
	ctx := context.Background()

	item, err := c.SendText(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", item.Content)

	resp, err := c.Upload(ctx, "/local/a.txt", "/local/b.bin")
	require.NoError(t, err)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "a.txt", resp.Items[0].Filename)
	assert.EqualValues(t, 3, resp.Items[1].Size)

	list, err := c.Items(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, item.ID, list[0].ID)

	path, err := c.Download(ctx, "a.txt", "/downloads")
	require.NoError(t, err)
	assert.Equal(t, "/downloads/a.txt", path)
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))

	app, err := c.AppData(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:3000", app.URL)
}

func TestClientErrors(t *testing.T) {
	host := newTestHost(t)
	c, err := New(host.srv.URL, WithFs(afero.NewMemMapFs()))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.SendText(ctx, "   ")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.NotEmpty(t, apiErr.Message)

	_, err = c.Download(ctx, "missing.txt", "/downloads")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	_, err = c.Upload(ctx)
	assert.Error(t, err)

	_, err = c.Upload(ctx, "/does/not/exist")
	assert.Error(t, err)
}

func TestAgentSyncsAndResyncs(t *testing.T) {
	host := newTestHost(t)
	c, err := New(host.srv.URL)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err = host.gw.SubmitText(ctx, "before connect")
	require.NoError(t, err)

	settings := DefaultAgentSettings()
	settings.ReconnectTimeout = 50 * time.Millisecond
	agent := NewAgent(c, NewView(), settings)

	done := make(chan error, 1)
	go func() { done <- agent.Run(ctx) }()

	// catch-up on first connect
	require.Eventually(t, func() bool { return agent.View().Len() == 1 }, 3*time.Second, 10*time.Millisecond)

	// live push
	_, err = c.SendText(ctx, "while connected")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return agent.View().Len() == 2 }, 3*time.Second, 10*time.Millisecond)

	// drop the connection and add an item the agent only sees through re-sync
	host.native.kick()
	_, err = host.gw.SubmitText(ctx, "during reconnect")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return agent.Sessions() >= 2 && agent.View().Len() == 3
	}, 3*time.Second, 10*time.Millisecond)

	items := agent.View().Items()
	assert.Equal(t, "before connect", items[0].Content)
	assert.Equal(t, "during reconnect", items[2].Content)

	require.NoError(t, host.store.Clear(ctx))
	require.Eventually(t, func() bool { return agent.View().Len() == 0 }, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("agent did not stop after cancel")
	}
}

func TestAgentRecoversClearMissedWhileDisconnected(t *testing.T) {
	host := newTestHost(t)
	c, err := New(host.srv.URL)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err = host.gw.SubmitText(ctx, "stale")
	require.NoError(t, err)

	settings := DefaultAgentSettings()
	settings.ReconnectTimeout = 20 * time.Millisecond
	agent := NewAgent(c, NewView(), settings)
	go agent.Run(ctx)
	require.Eventually(t, func() bool { return agent.View().Len() == 1 }, 3*time.Second, 10*time.Millisecond)

	// keep the agent offline while the host clears and adds a new item
	host.native.setPaused(true)
	host.native.kick()
	require.Eventually(t, func() bool { return host.hub.Count() == 0 }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, host.store.Clear(ctx))
	fresh, err := host.gw.SubmitText(ctx, "fresh")
	require.NoError(t, err)
	host.native.setPaused(false)

	require.Eventually(t, func() bool { return agent.Sessions() >= 2 }, 3*time.Second, 10*time.Millisecond)

	list, err := host.gw.Items(ctx)
	require.NoError(t, err)
	items := agent.View().Items()
	require.Len(t, items, len(list), "view %v, host %v", items, list)
	assert.Equal(t, fresh.ID, items[0].ID)
}

func TestAgentRetriesUnreachableHost(t *testing.T) {
	c, err := New("127.0.0.1:1")
	require.NoError(t, err)

	settings := DefaultAgentSettings()
	settings.ReconnectTimeout = 10 * time.Millisecond
	settings.HandshakeTimeout = 100 * time.Millisecond
	agent := NewAgent(c, NewView(), settings)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err = agent.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, agent.Sessions())
}
