package server

import (
	"net/http"

	"localshare/gateway"
	"localshare/handlers/api/items"
	"localshare/handlers/api/status"
	"localshare/netutil"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes are the pieces the HTTP router dispatches to. Push handlers are
// optional and left unmounted when nil.
type Routes struct {
	Gateway  *gateway.Gateway
	Handle   netutil.ServerHandle
	Clients  status.ClientCounter
	Native   http.Handler
	SocketIO http.Handler
}

func NewRouter(routes Routes) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	// Devices on the LAN reach the host under arbitrary origins.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length"},
		MaxAge:         300,
	}))

	gw := routes.Gateway
	r.Get("/items", items.HandleList(gw))
	r.Post("/text", items.HandleText(gw))
	r.Post("/upload", items.HandleUpload(gw))
	r.Get("/download/{filename}", items.HandleDownload(gw))
	r.Get("/app-data", status.HandleAppData(routes.Handle, routes.Clients))

	if routes.Native != nil {
		r.Handle("/ws", routes.Native)
	}
	if routes.SocketIO != nil {
		r.Handle("/socket.io/", routes.SocketIO)
	}
	return r
}
