package client

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"localshare/broadcast"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type AgentSettings struct {
	// ReconnectTimeout is the minimum time between two connection attempts.
	ReconnectTimeout time.Duration
	HandshakeTimeout time.Duration
	// ReadTimeout must exceed the host ping period.
	ReadTimeout time.Duration
}

func DefaultAgentSettings() *AgentSettings {
	return &AgentSettings{
		ReconnectTimeout: 2 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      75 * time.Second,
	}
}

// Agent keeps a View in sync with the host. Each session subscribes first
// and only then fetches the full list, so no change can fall between the two.
// The fetched list replaces what earlier sessions left in the view, which is
// how a clear missed while disconnected is recovered.
type Agent struct {
	client   *Client
	view     *View
	settings *AgentSettings
	dialer   *websocket.Dialer

	sessions atomic.Int64
}

func NewAgent(c *Client, view *View, settings *AgentSettings) *Agent {
	if settings == nil {
		settings = DefaultAgentSettings()
	}
	return &Agent{
		client:   c,
		view:     view,
		settings: settings,
		dialer: &websocket.Dialer{
			HandshakeTimeout: settings.HandshakeTimeout,
		},
	}
}

func (a *Agent) View() *View {
	return a.view
}

// Sessions counts push sessions that completed their initial sync.
func (a *Agent) Sessions() int64 {
	return a.sessions.Load()
}

type reconnect struct {
	start   time.Time
	timeout time.Duration
}

func newReconnect(timeout time.Duration) *reconnect {
	return &reconnect{start: time.Now(), timeout: timeout}
}

func (r *reconnect) After() <-chan time.Time {
	remaining := r.timeout - time.Since(r.start)
	if remaining < 0 {
		remaining = 0
	}
	return time.After(remaining)
}

// Run connects and resynchronizes until ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	log := logrus.WithField("server", a.client.PushURL())
	for {
		reconnect := newReconnect(a.settings.ReconnectTimeout)
		err := a.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Warn("Push connection lost, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reconnect.After():
		}
	}
}

func (a *Agent) session(ctx context.Context) error {
	conn, _, err := a.dialer.DialContext(ctx, a.client.PushURL(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetReadDeadline(time.Now().Add(a.settings.HandshakeTimeout))
	var hello broadcast.Event
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	if hello.Type != broadcast.EventSubscribed {
		return fmt.Errorf("handshake: unexpected frame %q", hello.Type)
	}

	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(a.settings.ReadTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	gen := a.view.BeginSession()
	errc := make(chan error, 1)
	go func() { errc <- a.readEvents(conn) }()

	list, err := a.client.Items(ctx)
	if err != nil {
		conn.Close()
		<-errc
		return fmt.Errorf("catch-up: %w", err)
	}
	applied := a.view.ApplySnapshot(gen, list)
	a.sessions.Add(1)
	logrus.WithFields(logrus.Fields{
		"items":   len(list),
		"applied": applied,
	}).Info("Synchronized with host")

	return <-errc
}

func (a *Agent) readEvents(conn *websocket.Conn) error {
	for {
		conn.SetReadDeadline(time.Now().Add(a.settings.ReadTimeout))
		var ev broadcast.Event
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}

		switch ev.Type {
		case broadcast.EventItemAdded:
			if ev.Item != nil {
				a.view.Merge(*ev.Item)
			}
		case broadcast.EventItemsCleared:
			a.view.Clear()
		default:
			logrus.WithField("event", ev.Type).Debug("Ignoring unknown push frame")
		}
	}
}
