package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"localshare/netutil"
)

type fixedCounter int

func (c fixedCounter) Count() int { return int(c) }

func TestHandleAppData(t *testing.T) {
	handle := netutil.ServerHandle{BoundAddress: "192.168.1.20", BoundPort: 3000}
	handler := HandleAppData(handle, fixedCounter(3))

	req := httptest.NewRequest(http.MethodGet, "/app-data", http.NoBody)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}

	var resp AppDataResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.URL != "http://192.168.1.20:3000" {
		t.Errorf("URL mismatch: got %q", resp.URL)
	}
	if resp.IP != "192.168.1.20" || resp.Port != 3000 {
		t.Errorf("Address mismatch: %+v", resp)
	}
	if resp.Clients != 3 {
		t.Errorf("Clients mismatch: got %d, want 3", resp.Clients)
	}
}

func TestHandleAppDataWithoutCounter(t *testing.T) {
	handler := HandleAppData(netutil.ServerHandle{BoundAddress: "10.0.0.2", BoundPort: 8080}, nil)

	req := httptest.NewRequest(http.MethodGet, "/app-data", http.NoBody)
	rec := httptest.NewRecorder()
	handler(rec, req)

	var resp AppDataResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Clients != 0 {
		t.Errorf("Expected zero clients, got %d", resp.Clients)
	}
}
