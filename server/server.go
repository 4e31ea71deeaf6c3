// Package server wires the share host together and owns its lifecycle.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"localshare/broadcast"
	"localshare/config"
	"localshare/gateway"
	"localshare/handlers/websocket"
	"localshare/netutil"
	"localshare/stores"

	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

type Server struct {
	cfg    *config.Config
	hub    *broadcast.Hub
	store  *stores.Store
	gw     *gateway.Gateway
	native *websocket.NativeServer
	ioo    *socketio.Server

	httpSrv  *http.Server
	handle   netutil.ServerHandle
	failed   chan error
	stopOnce sync.Once
	stopErr  error
}

// New builds the host from cfg. When cfg.SweepOnStart is set the storage
// directory is emptied first, removing leftovers of an unclean exit.
func New(cfg *config.Config) (*Server, error) {
	hub := broadcast.NewHub()
	store, err := stores.GetStore(cfg, hub)
	if err != nil {
		return nil, err
	}

	if cfg.SweepOnStart {
		if err := store.Files.Clear(context.Background()); err != nil {
			logrus.WithError(err).Warn("Start-up sweep left files behind")
		}
	}

	gw := gateway.New(store.Items, store.Files, cfg.MaxUploadFiles)
	return &Server{
		cfg:    cfg,
		hub:    hub,
		store:  store,
		gw:     gw,
		native: websocket.NewNativeServer(hub),
		ioo:    websocket.SetupSocketIO(hub, gw),
		failed: make(chan error, 1),
	}, nil
}

func (s *Server) Gateway() *gateway.Gateway {
	return s.gw
}

func (s *Server) Hub() *broadcast.Hub {
	return s.hub
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() (netutil.ServerHandle, error) {
	ln, handle, err := netutil.Listen(s.cfg.ListenAddr, s.cfg.AdvertiseHost)
	if err != nil {
		return netutil.ServerHandle{}, err
	}
	s.handle = handle

	r := NewRouter(Routes{
		Gateway:  s.gw,
		Handle:   handle,
		Clients:  s.hub,
		Native:   s.native,
		SocketIO: s.ioo.ServeHandler(nil),
	})
	s.httpSrv = &http.Server{Handler: r}

	logrus.WithFields(logrus.Fields{
		"addr": ln.Addr().String(),
		"url":  handle.URL(),
	}).Info("starting server")

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").WithError(err).Error("Server stopped")
			s.failed <- err
		}
	}()
	return handle, nil
}

// Failed delivers a serve error that stopped the server.
func (s *Server) Failed() <-chan error {
	return s.failed
}

// Shutdown stops accepting requests, waits for in-flight ones, clears the
// registry and storage directory, then disconnects push clients. It is safe
// to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		var errs []error
		if s.httpSrv != nil {
			if err := s.httpSrv.Shutdown(ctx); err != nil {
				logrus.WithError(err).Warn("HTTP shutdown did not complete")
				errs = append(errs, err)
			}
		}

		if err := s.store.Items.Clear(ctx); err != nil {
			logrus.WithError(err).Error("Cleanup on shutdown failed")
			errs = append(errs, err)
		}

		if s.httpSrv != nil {
			// the engine exists only once ServeHandler has been mounted
			s.ioo.Close(nil)
		}
		s.native.Close()
		s.stopErr = errors.Join(errs...)
	})
	return s.stopErr
}
