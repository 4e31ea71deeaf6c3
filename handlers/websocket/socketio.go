package websocket

import (
	"context"
	"reflect"

	"localshare/broadcast"
	"localshare/core"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

// EventRequestItems lets a socket.io client fetch the registry over the push
// connection instead of GET /items.
const EventRequestItems = "request-items"

type (
	// ItemLister is the catch-up source for request-items.
	ItemLister interface {
		Items(ctx context.Context) ([]core.Item, error)
	}

	emitter interface {
		Emit(ev string, args ...any) error
	}

	ackInvoker func(payload map[string]any)
)

// SetupSocketIO builds the socket.io server. Every connected socket gets its
// own hub subscription, released on disconnect.
func SetupSocketIO(hub *broadcast.Hub, lister ItemLister) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(socketCors())
	srv := socketio.NewServer(nil, opts)

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}

		me := socket.Id()
		sub := hub.Subscribe()
		log := logrus.WithFields(logrus.Fields{
			"socket":     me,
			"subscriber": sub.ID,
		})
		log.Info("Client connected")

		go func() {
			if forward(sub, socket) {
				log.Warn("Client fell behind, disconnecting")
				socket.Disconnect(true)
			}
		}()

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On(EventRequestItems, func(datas ...any) {
			ack := extractAck(datas)
			items, err := lister.Items(context.Background())
			if err != nil {
				log.WithError(err).Error("Failed to list items for socket")
				respond(socket, ack, map[string]any{"status": "error", "error": err.Error()})
				return
			}
			respond(socket, ack, map[string]any{"status": "ok", "items": items})
		})

		socket.On("disconnect", func(datas ...any) {
			hub.Unsubscribe(sub)
			log.WithField("reason", datas).Info("Client disconnected")
			socket.RemoveAllListeners("")
		})
	})

	return srv
}

// socketCors admits any LAN origin. Credentials stay off: browsers reject
// credentialed requests against a wildcard origin, and the host uses no cookies.
func socketCors() *types.Cors {
	return &types.Cors{Origin: "*"}
}

// forward relays hub events to one socket until the subscription closes. It
// reports whether the hub dropped the subscriber.
func forward(sub *broadcast.Subscription, to emitter) bool {
	for ev := range sub.Events {
		var err error
		switch ev.Type {
		case broadcast.EventItemAdded:
			if ev.Item == nil {
				continue
			}
			err = to.Emit(string(ev.Type), *ev.Item)
		case broadcast.EventItemsCleared:
			err = to.Emit(string(ev.Type))
		}
		if err != nil {
			logrus.WithError(err).WithField("event", ev.Type).Debug("Failed to emit event")
		}
	}
	return sub.Dropped()
}

// respond answers through the ack callback when the client sent one, and as a
// plain reply event otherwise.
func respond(socket emitter, ack ackInvoker, payload map[string]any) {
	if ack != nil {
		ack(payload)
		return
	}
	_ = socket.Emit(EventRequestItems+"-ack", payload)
}

// extractAck returns the trailing ack callback of a socket.io event, if any.
func extractAck(datas []any) ackInvoker {
	if len(datas) == 0 {
		return nil
	}
	return wrapAck(datas[len(datas)-1])
}

func wrapAck(candidate any) ackInvoker {
	if candidate == nil {
		return nil
	}
	fn := reflect.ValueOf(candidate)
	if fn.Kind() != reflect.Func {
		return nil
	}

	typ := fn.Type()
	return func(payload map[string]any) {
		if typ.IsVariadic() && typ.NumIn() == 1 {
			fn.Call([]reflect.Value{reflect.ValueOf(payload)})
			return
		}
		args := make([]reflect.Value, typ.NumIn())
		for i := range args {
			paramType := typ.In(i)
			if i == 0 {
				args[i] = ackArg(payload, paramType)
				continue
			}
			args[i] = reflect.Zero(paramType)
		}
		fn.Call(args)
	}
}

func ackArg(payload map[string]any, target reflect.Type) reflect.Value {
	value := reflect.ValueOf(payload)
	switch {
	case value.Type().AssignableTo(target):
		return value
	case target.Kind() == reflect.Slice && target.Elem().Kind() == reflect.Interface:
		return reflect.ValueOf([]any{payload}).Convert(target)
	}
	return reflect.Zero(target)
}
