// Package broadcast fans domain events out to subscribed browsers. A Hub
// holds the websocket connections of one instance; publishers move messages
// between instances (Redis) or to downstream consumers (AMQP).
package broadcast

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Message is one event on a named channel
type Message struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
	// ExceptSocketID names the connection that caused the event. It never
	// receives the message.
	ExceptSocketID string `json:"except_socket_id,omitempty"`
}

// delivery is what a subscribed socket receives
type delivery struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

func (m Message) wire() ([]byte, error) {
	return json.Marshal(delivery{Channel: m.Channel, Event: m.Event, Data: m.Data})
}

// Publisher hands a message to a transport
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, msg Message) error

func (f PublisherFunc) Publish(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Multi publishes to every publisher in order. All publishers are tried;
// their errors are combined.
func Multi(publishers ...Publisher) Publisher {
	return PublisherFunc(func(ctx context.Context, msg Message) error {
		var combined error
		for _, p := range publishers {
			if p == nil {
				continue
			}
			combined = errors.CombineErrors(combined, p.Publish(ctx, msg))
		}
		return combined
	})
}

type socketIDKey struct{}

// ContextWithSocketID records the socket id of the browser that issued the
// current request.
func ContextWithSocketID(ctx context.Context, socketID string) context.Context {
	if socketID == "" {
		return ctx
	}
	return context.WithValue(ctx, socketIDKey{}, socketID)
}

// SocketIDFromContext returns the socket id stored by ContextWithSocketID
func SocketIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(socketIDKey{}).(string)
	return id
}
