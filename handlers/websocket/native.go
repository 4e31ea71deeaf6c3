package websocket

import (
	"net/http"
	"sync"
	"time"

	"localshare/broadcast"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// NativeServer serves the hub over plain WebSocket with JSON frames, one
// broadcast.Event per text message.
type NativeServer struct {
	hub      *broadcast.Hub
	upgrader websocket.Upgrader

	done     chan struct{}
	doneOnce sync.Once
}

func NewNativeServer(hub *broadcast.Hub) *NativeServer {
	return &NativeServer{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool {
				return true // LAN clients come from arbitrary origins
			},
		},
		done: make(chan struct{}),
	}
}

// Close disconnects every native client.
func (s *NativeServer) Close() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *NativeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("Failed to upgrade connection to WebSocket")
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	log := logrus.WithFields(logrus.Fields{
		"remote":     r.RemoteAddr,
		"subscriber": sub.ID,
	})
	log.Info("WebSocket client connected")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.WithError(err).Debug("WebSocket closed unexpectedly")
				}
				return
			}
		}
	}()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(broadcast.Event{Type: broadcast.EventSubscribed}); err != nil {
		log.WithError(err).Warn("Failed to send subscribed frame")
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				log.Warn("Client fell behind, disconnecting")
				s.closeWith(conn, websocket.CloseTryAgainLater, "lagging")
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.WithError(err).Debug("WebSocket write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			log.Info("WebSocket client disconnected")
			return
		case <-s.done:
			s.flush(conn, sub)
			s.closeWith(conn, websocket.CloseGoingAway, "server shutting down")
			return
		}
	}
}

// flush writes events already queued for sub without waiting for more.
func (s *NativeServer) flush(conn *websocket.Conn, sub *broadcast.Subscription) {
	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *NativeServer) closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
