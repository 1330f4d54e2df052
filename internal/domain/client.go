package domain

import "context"

// Client is the boundary to the messaging network. Implementations own the
// transport, authentication, and wire protocol.
type Client interface {
	// Subscribe publishes every incoming message from the given source chats
	// to the bus until ctx is cancelled or the connection is torn down.
	Subscribe(ctx context.Context, sourceIDs []int64, bus MessageBus) error

	// ResolveEntity returns display metadata for a chat or user.
	ResolveEntity(ctx context.Context, id int64) (EntityInfo, error)

	// SendForward delivers msg to target with the network's native
	// "forwarded from" attribution.
	SendForward(ctx context.Context, target int64, msg Message) error

	// SendCopy delivers msg to target as a freshly composed message carrying
	// the same content, without attribution to the source.
	SendCopy(ctx context.Context, target int64, msg Message) error
}

// MessageBus carries incoming messages from the client to the dispatch engine.
type MessageBus interface {
	Publish(msg Message)
	Subscribe() <-chan Message
	Close()
}
