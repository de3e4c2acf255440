// Package sync bridges the local store to the shared remote append-only
// log: it publishes locally-originated messages and admits peer-originated
// entries after authentication and deduplication.
package sync

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/tello-im/tello/internal/bus"
	"github.com/tello-im/tello/internal/identity"
	"github.com/tello-im/tello/internal/policy"
	"github.com/tello-im/tello/internal/store"
	"github.com/tello-im/tello/internal/transport"
	"go.uber.org/zap"
)

var errRemoteDisabled = errors.New("remote sync disabled")

// Bridge connects one account session to the remote per-conversation logs.
// A nil remote means local-only operation: nothing is published and no
// subscriptions exist.
type Bridge struct {
	db     *store.DB
	bus    *bus.Bus
	remote transport.Transport
	logger *zap.Logger

	mu     sync.Mutex
	self   string
	gen    int // session generation; bumped on Bind/Unbind to fence stale callbacks
	unsubs map[string]func()

	// admitMu serializes the dedup-check-then-insert admission step per
	// conversation against concurrent deliveries.
	admitMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewBridge creates a bridge over the given transport. remote may be nil.
func NewBridge(db *store.DB, b *bus.Bus, remote transport.Transport, logger *zap.Logger) *Bridge {
	return &Bridge{
		db:     db,
		bus:    b,
		remote: remote,
		logger: logger,
		unsubs: make(map[string]func()),
		locks:  make(map[string]*sync.Mutex),
	}
}

// RemoteEnabled reports whether a remote log store is configured.
func (b *Bridge) RemoteEnabled() bool {
	return b.remote != nil
}

// Bind scopes the bridge to one local account. Any previous binding's
// subscriptions are torn down first.
func (b *Bridge) Bind(self string) {
	b.UnsubscribeAll()
	b.mu.Lock()
	b.self = identity.Normalize(self)
	b.gen++
	b.mu.Unlock()
}

// Publish appends one entry to the remote log for conversationID and
// returns the remote-assigned key. The caller decides the local message's
// status from the result; the bridge itself never retries.
func (b *Bridge) Publish(ctx context.Context, conversationID string, e transport.Entry) (string, error) {
	if b.remote == nil {
		return "", &transport.Error{Op: "append", Err: errRemoteDisabled}
	}
	remoteID, err := b.remote.Append(ctx, conversationID, e)
	if err != nil {
		return "", &transport.Error{Op: "append", Err: err}
	}
	return remoteID, nil
}

// Subscribe establishes the live subscription for one conversation.
// Idempotent: a second call for the same id is a no-op. A subscription
// dropped by the transport can be re-established by calling Subscribe again
// after the error is observed.
func (b *Bridge) Subscribe(conversationID string) error {
	if b.remote == nil {
		return nil
	}

	b.mu.Lock()
	if _, ok := b.unsubs[conversationID]; ok {
		b.mu.Unlock()
		return nil
	}
	gen := b.gen
	b.mu.Unlock()

	unsub, err := b.remote.Subscribe(conversationID, func(remoteID string, e transport.Entry) {
		b.handleEntry(gen, conversationID, remoteID, e)
	})
	if err != nil {
		b.logger.Error("subscribe failed",
			zap.String("conversation", conversationID), zap.Error(err))
		return &transport.Error{Op: "subscribe", Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		// Session ended while the subscription was being set up.
		unsub()
		return nil
	}
	if _, ok := b.unsubs[conversationID]; ok {
		unsub()
		return nil
	}
	b.unsubs[conversationID] = unsub
	return nil
}

// UnsubscribeAll tears down every live subscription. Called on logout and
// account switch; callbacks from the old session are fenced out afterwards.
func (b *Bridge) UnsubscribeAll() {
	b.mu.Lock()
	unsubs := b.unsubs
	b.unsubs = make(map[string]func())
	b.gen++
	b.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// handleEntry is the admission pipeline for one remotely observed entry:
// skip own publishes, dedup by remote key, authenticate, sanitize, insert
// confirmed, bump unread, emit. Failures drop the entry and never propagate.
func (b *Bridge) handleEntry(gen int, conversationID, remoteID string, e transport.Entry) {
	b.mu.Lock()
	if gen != b.gen || b.self == "" {
		b.mu.Unlock()
		return
	}
	self := b.self
	b.mu.Unlock()

	lock := b.conversationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	sender := identity.Normalize(e.SenderAddress)
	if !identity.Valid(sender) {
		b.logger.Warn("dropping entry with invalid sender address",
			zap.String("conversation", conversationID), zap.String("remote_id", remoteID))
		return
	}
	if sender == self {
		return
	}

	seen, err := b.db.HasRemote(remoteID)
	if err != nil {
		b.logger.Error("dedup lookup failed", zap.Error(err), zap.String("remote_id", remoteID))
		return
	}
	if seen {
		return
	}

	recipient := identity.Normalize(e.RecipientAddress)
	content := policy.Sanitize(e.Content)
	timestamp := e.Timestamp
	if timestamp <= 0 {
		timestamp = time.Now().UnixMilli()
	}

	// Recompute the signing payload from the entry's own fields; a payload
	// shipped alongside the data is never trusted.
	payload := identity.SigningPayload(sender, recipient, content, timestamp)
	recovered, err := identity.RecoverAddress(payload, e.Signature)
	if err != nil || recovered != sender {
		b.logger.Warn("dropping entry with invalid signature",
			zap.String("conversation", conversationID),
			zap.String("claimed_sender", identity.Shorten(sender)),
			zap.Error(err))
		return
	}

	if content == "" {
		return
	}

	if err := b.db.ApplyInbound(conversationID, sender, content, timestamp); err != nil {
		b.logger.Error("conversation upsert failed", zap.Error(err),
			zap.String("conversation", conversationID))
		return
	}

	msg := &store.Message{
		ConversationID:   conversationID,
		SenderAddress:    sender,
		RecipientAddress: recipient,
		Content:          content,
		Timestamp:        timestamp,
		Status:           store.StatusConfirmed,
		RemoteID:         remoteID,
		Signature:        hex.EncodeToString(e.Signature),
	}
	if _, err := b.db.InsertMessage(msg); err != nil {
		b.logger.Error("message insert failed", zap.Error(err),
			zap.String("remote_id", remoteID))
		return
	}

	b.bus.Publish(bus.Event{Kind: bus.KindMessageReceived, Timestamp: time.Now(), Payload: msg})
	b.bus.Publish(bus.Event{Kind: bus.KindConversation, Timestamp: time.Now(), Payload: conversationID})
}

func (b *Bridge) conversationLock(conversationID string) *sync.Mutex {
	b.admitMu.Lock()
	defer b.admitMu.Unlock()
	lock, ok := b.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		b.locks[conversationID] = lock
	}
	return lock
}
