// Package transport defines the boundary to the shared remote append-only
// log. How a connection to the log store is established is outside the
// engine; implementations only need per-conversation append and subscribe
// over an ordered, at-least-once delivery channel.
package transport

import (
	"context"
	"fmt"
)

// Entry is one record of a per-conversation remote log.
type Entry struct {
	SenderAddress    string
	RecipientAddress string
	Content          string
	Timestamp        int64
	Signature        []byte
}

// Handler receives remotely observed entries with their log-assigned key.
type Handler func(remoteID string, e Entry)

// Transport appends to and subscribes to remote logs keyed by conversation.
type Transport interface {
	// Append writes an entry to the log for logKey and returns the key the
	// log assigned to it.
	Append(ctx context.Context, logKey string, e Entry) (remoteID string, err error)
	// Subscribe registers h for every entry of logKey, replaying existing
	// entries first (at-least-once). The returned func cancels delivery.
	Subscribe(logKey string, h Handler) (unsubscribe func(), err error)
}

// Error wraps a transport-layer failure. Local data is always retained when
// one occurs; the affected message is marked failed instead.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
