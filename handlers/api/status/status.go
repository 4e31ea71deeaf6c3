package status

import (
	"net/http"

	"localshare/netutil"

	"github.com/go-chi/render"
)

type (
	// ClientCounter reports how many push subscribers are connected.
	ClientCounter interface {
		Count() int
	}

	AppDataResponse struct {
		IP      string `json:"ip"`
		Port    int    `json:"port"`
		URL     string `json:"url"`
		Clients int    `json:"clients"`
	}
)

// HandleAppData tells a control surface which address to advertise to other
// devices.
func HandleAppData(handle netutil.ServerHandle, clients ClientCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := AppDataResponse{
			IP:   handle.BoundAddress,
			Port: handle.BoundPort,
			URL:  handle.URL(),
		}
		if clients != nil {
			resp.Clients = clients.Count()
		}
		render.JSON(w, r, resp)
	}
}
