package bus

import (
	"context"
	"errors"
)

// Errors
var (
	ErrClosed        = errors.New("bus closed")
	ErrNotSubscribed = errors.New("not subscribed to channel")
)

// Handler receives messages delivered on a subscribed channel.
type Handler func(channel string, payload []byte)

// Bus is the publish/subscribe transport shared by all fleet nodes.
type Bus interface {
	// Publish sends a payload to all current subscribers of channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe registers a handler for a channel. A channel has at most
	// one handler; subscribing twice replaces the previous handler.
	Subscribe(channel string, h Handler) error

	// Unsubscribe removes the channel subscription and its handler.
	Unsubscribe(channel string) error

	// Close tears down all subscriptions.
	Close() error
}
