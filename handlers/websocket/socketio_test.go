package websocket

import (
	"errors"
	"sync"
	"testing"
	"time"

	"localshare/broadcast"
	"localshare/core"
)

type emitCall struct {
	event string
	args  []any
}

type fakeEmitter struct {
	mu    sync.Mutex
	calls []emitCall
	err   error
}

func (f *fakeEmitter) Emit(ev string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, emitCall{event: ev, args: args})
	return f.err
}

func TestForwardRelaysEventsInOrder(t *testing.T) {
	hub := broadcast.NewHub()
	sub := hub.Subscribe()
	em := &fakeEmitter{}

	done := make(chan bool)
	go func() { done <- forward(sub, em) }()

	hub.BroadcastAdded(core.Item{ID: "a", Kind: core.KindText, Content: "a"})
	hub.BroadcastAdded(core.Item{ID: "b", Kind: core.KindFile, Filename: "b.png"})
	hub.BroadcastCleared()
	hub.Unsubscribe(sub)

	select {
	case dropped := <-done:
		if dropped {
			t.Error("Unsubscribed client must not be reported as dropped")
		}
	case <-time.After(time.Second):
		t.Fatal("forward did not return after unsubscribe")
	}

	if len(em.calls) != 3 {
		t.Fatalf("Expected 3 emits, got %d", len(em.calls))
	}
	if em.calls[0].event != "item-added" || em.calls[0].args[0].(core.Item).ID != "a" {
		t.Errorf("First emit mismatch: %+v", em.calls[0])
	}
	if em.calls[1].args[0].(core.Item).Filename != "b.png" {
		t.Errorf("Second emit mismatch: %+v", em.calls[1])
	}
	if em.calls[2].event != "items-cleared" || len(em.calls[2].args) != 0 {
		t.Errorf("Third emit mismatch: %+v", em.calls[2])
	}
}

func TestForwardSurvivesEmitErrors(t *testing.T) {
	hub := broadcast.NewHub()
	sub := hub.Subscribe()
	em := &fakeEmitter{err: errors.New("transport closed")}

	done := make(chan bool)
	go func() { done <- forward(sub, em) }()

	hub.BroadcastCleared()
	hub.BroadcastCleared()
	hub.Unsubscribe(sub)
	<-done

	if len(em.calls) != 2 {
		t.Errorf("Expected 2 emit attempts, got %d", len(em.calls))
	}
}

func TestForwardReportsDrop(t *testing.T) {
	hub := broadcast.NewHubWithBuffer(1)
	sub := hub.Subscribe()

	hub.BroadcastCleared()
	hub.BroadcastCleared() // overflows the single slot

	if !forward(sub, &fakeEmitter{}) {
		t.Error("Expected forward to report a dropped subscriber")
	}
}

func TestWrapAckVariadic(t *testing.T) {
	var got []any
	ack := wrapAck(func(args ...any) { got = args })
	if ack == nil {
		t.Fatal("Expected ack for variadic func")
	}

	ack(map[string]any{"status": "ok"})
	if len(got) != 1 || got[0].(map[string]any)["status"] != "ok" {
		t.Errorf("Unexpected ack args: %v", got)
	}
}

func TestWrapAckSliceAndError(t *testing.T) {
	var got []any
	var gotErr error = errors.New("sentinel")
	ack := wrapAck(func(args []any, err error) {
		got = args
		gotErr = err
	})

	ack(map[string]any{"status": "ok"})
	if len(got) != 1 {
		t.Errorf("Expected payload wrapped in slice, got %v", got)
	}
	if gotErr != nil {
		t.Errorf("Expected nil error, got %v", gotErr)
	}
}

func TestWrapAckMap(t *testing.T) {
	var got map[string]any
	ack := wrapAck(func(payload map[string]any) { got = payload })

	ack(map[string]any{"items": []core.Item{}})
	if _, ok := got["items"]; !ok {
		t.Errorf("Expected items key, got %v", got)
	}
}

func TestExtractAck(t *testing.T) {
	if extractAck(nil) != nil {
		t.Error("Expected nil ack for no args")
	}
	if extractAck([]any{"not a func"}) != nil {
		t.Error("Expected nil ack for non-func trailing arg")
	}
	if extractAck([]any{"x", func(...any) {}}) == nil {
		t.Error("Expected ack for trailing func")
	}
}

func TestRespondWithoutAckEmitsReply(t *testing.T) {
	em := &fakeEmitter{}
	respond(em, nil, map[string]any{"status": "ok"})

	if len(em.calls) != 1 || em.calls[0].event != "request-items-ack" {
		t.Errorf("Expected reply event, got %+v", em.calls)
	}
}

func TestSocketCorsAllowsAnyOriginWithoutCredentials(t *testing.T) {
	c := socketCors()
	if c.Origin != "*" {
		t.Errorf("Expected wildcard origin, got %v", c.Origin)
	}
	if c.Credentials {
		t.Error("Credentials must be off with a wildcard origin")
	}
}
