// Package service composes the store, content policy, rate limiter and sync
// bridge into the public message engine API consumed by the UI layer.
package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tello-im/tello/internal/bus"
	"github.com/tello-im/tello/internal/identity"
	"github.com/tello-im/tello/internal/policy"
	"github.com/tello-im/tello/internal/ratelimit"
	"github.com/tello-im/tello/internal/status"
	"github.com/tello-im/tello/internal/store"
	intsync "github.com/tello-im/tello/internal/sync"
	"github.com/tello-im/tello/internal/transport"
	"go.uber.org/zap"
)

// ErrNotInitialized is returned by operations called before Initialize or
// after Cleanup.
var ErrNotInitialized = errors.New("session not initialized")

// Options are the engine tunables, normally loaded from config.
type Options struct {
	MessagePageSize      int
	ConversationPageSize int
	RateLimitPerMinute   int
	// PublishRetries is how many extra publish attempts follow a failed
	// one before the message is marked failed.
	PublishRetries int
}

func (o Options) withDefaults() Options {
	if o.MessagePageSize <= 0 {
		o.MessagePageSize = 70
	}
	if o.ConversationPageSize <= 0 {
		o.ConversationPageSize = 20
	}
	if o.RateLimitPerMinute <= 0 {
		o.RateLimitPerMinute = ratelimit.DefaultMaxPerWindow
	}
	if o.PublishRetries < 0 {
		o.PublishRetries = 0
	}
	return o
}

// Session is the engine bound to one local account. Constructed explicitly
// and passed by handle; all account-scoped state lives here, never in a
// package-level singleton.
type Session struct {
	db      *store.DB
	bus     *bus.Bus
	bridge  *intsync.Bridge
	signer  identity.Signer
	limiter *ratelimit.Limiter
	machine *status.Machine
	logger  *zap.Logger
	opts    Options
	now     func() time.Time

	mu          sync.Mutex
	self        string
	correlation map[string]int64 // client send id -> local message id
}

// NewSession creates an unbound session. machine may be nil.
func NewSession(db *store.DB, b *bus.Bus, bridge *intsync.Bridge, signer identity.Signer, machine *status.Machine, logger *zap.Logger, opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		db:          db,
		bus:         b,
		bridge:      bridge,
		signer:      signer,
		limiter:     ratelimit.New(opts.RateLimitPerMinute, time.Minute),
		machine:     machine,
		logger:      logger,
		opts:        opts,
		now:         time.Now,
		correlation: make(map[string]int64),
	}
}

// Initialize binds the session to one local account, discarding any state
// held for a previous account. No data from a prior binding survives: live
// subscriptions, the rate-limit window and the correlation map all reset.
func (s *Session) Initialize(selfAddress string) error {
	self := identity.Normalize(selfAddress)
	if !identity.Valid(self) {
		return &policy.ValidationError{Reason: "enter a valid wallet address"}
	}

	s.bridge.Bind(self)
	s.limiter.ResetAll()

	s.mu.Lock()
	s.self = self
	s.correlation = make(map[string]int64)
	s.mu.Unlock()

	s.transition(status.Booting)
	if s.bridge.RemoteEnabled() {
		s.transition(status.Ready)
	} else {
		s.transition(status.LocalOnly)
	}

	s.logger.Info("session initialized", zap.String("account", identity.Shorten(self)))
	return nil
}

// Self returns the bound account address, or empty if unbound.
func (s *Session) Self() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

// Send validates, rate-limits and stores an outbound message optimistically,
// then publishes it to the remote log. The local id is returned as soon as
// the pending row exists; if publishing exhausts its retry budget the
// message is marked failed and the transport error is returned alongside
// the id, so the caller can still reference the retained row.
func (s *Session) Send(ctx context.Context, peerAddress, rawContent string) (int64, error) {
	return s.SendWithClientID(ctx, uuid.New().String(), peerAddress, rawContent)
}

// SendWithClientID is Send with a caller-chosen client id. A UI that
// renders an optimistic row under its own temporary id can resolve it to
// the local message id through ClientLocalID instead of matching ids by
// string.
func (s *Session) SendWithClientID(ctx context.Context, clientID, peerAddress, rawContent string) (int64, error) {
	self := s.Self()
	if self == "" {
		return 0, ErrNotInitialized
	}

	peer := identity.Normalize(peerAddress)
	if !identity.Valid(peer) {
		return 0, &policy.ValidationError{Reason: "enter a valid wallet address"}
	}
	content, err := policy.Enforce(rawContent)
	if err != nil {
		return 0, err
	}
	if err := s.limiter.Admit(self); err != nil {
		return 0, err
	}

	timestamp := s.now().UnixMilli()
	conversationID := identity.ConversationID(self, peer)
	payload := identity.SigningPayload(self, peer, content, timestamp)
	signature, err := s.signer.Sign(payload)
	if err != nil {
		return 0, fmt.Errorf("sign message: %w", err)
	}

	if err := s.db.ApplyOutbound(conversationID, peer, content, timestamp); err != nil {
		return 0, fmt.Errorf("upsert conversation: %w", err)
	}
	msg := &store.Message{
		ConversationID:   conversationID,
		SenderAddress:    self,
		RecipientAddress: peer,
		Content:          content,
		Timestamp:        timestamp,
		Status:           store.StatusPending,
		Signature:        hex.EncodeToString(signature),
	}
	localID, err := s.db.InsertMessage(msg)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}

	s.mu.Lock()
	s.correlation[clientID] = localID
	s.mu.Unlock()

	// Optimistic insert is visible before any network I/O completes.
	s.publish(bus.KindMessageCreated, msg)
	s.publish(bus.KindConversation, conversationID)

	if err := s.bridge.Subscribe(conversationID); err != nil {
		s.logger.Warn("subscribe after send failed", zap.Error(err),
			zap.String("conversation", conversationID))
	}

	if !s.bridge.RemoteEnabled() {
		// Local-only mode is a legitimate terminal-confirmed state.
		if err := s.db.MarkConfirmed(localID, ""); err != nil {
			return localID, fmt.Errorf("confirm message: %w", err)
		}
		msg.Status = store.StatusConfirmed
		s.publish(bus.KindMessageConfirmed, msg)
		return localID, nil
	}

	entry := transport.Entry{
		SenderAddress:    self,
		RecipientAddress: peer,
		Content:          content,
		Timestamp:        timestamp,
		Signature:        signature,
	}
	remoteID, pubErr := s.publishWithRetry(ctx, conversationID, entry, clientID)
	if pubErr != nil {
		if err := s.db.MarkFailed(localID); err != nil {
			s.logger.Error("mark failed", zap.Error(err), zap.Int64("local_id", localID))
		}
		msg.Status = store.StatusFailed
		s.publish(bus.KindMessageFailed, msg)
		s.transition(status.Degraded)
		return localID, pubErr
	}

	if err := s.db.MarkConfirmed(localID, remoteID); err != nil {
		return localID, fmt.Errorf("confirm message: %w", err)
	}
	msg.Status = store.StatusConfirmed
	msg.RemoteID = remoteID
	s.publish(bus.KindMessageConfirmed, msg)
	s.transition(status.Ready)
	return localID, nil
}

func (s *Session) publishWithRetry(ctx context.Context, conversationID string, e transport.Entry, clientID string) (string, error) {
	attempts := 1 + s.opts.PublishRetries
	var lastErr error
	for i := 0; i < attempts; i++ {
		remoteID, err := s.bridge.Publish(ctx, conversationID, e)
		if err == nil {
			return remoteID, nil
		}
		lastErr = err
		s.logger.Warn("publish attempt failed",
			zap.String("client_id", clientID),
			zap.Int("attempt", i+1),
			zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

// ClientLocalID resolves a client send id to the local message id it
// produced. Consumers correlating optimistic renders use this instead of
// matching ids by string.
func (s *Session) ClientLocalID(clientID string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.correlation[clientID]
	return id, ok
}

// MarkRead resets the unread counter of a conversation.
func (s *Session) MarkRead(conversationID string) error {
	if s.Self() == "" {
		return ErrNotInitialized
	}
	if err := s.db.MarkRead(conversationID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	s.publish(bus.KindConversation, conversationID)
	return nil
}

// OnMessage registers a callback fired for every locally created and every
// admitted remote message. Each callback runs on its own goroutine with its
// own buffered channel, so one stuck handler cannot starve the others.
// Returns an unsubscribe function.
func (s *Session) OnMessage(callback func(*store.Message)) func() {
	ch, unsub := s.bus.Subscribe("message.", 64)
	stop := make(chan struct{})

	go func() {
		for {
			select {
			case evt := <-ch:
				msg, ok := evt.Payload.(*store.Message)
				if !ok {
					continue
				}
				s.dispatch(callback, msg)
			case <-stop:
				return
			}
		}
	}()

	return func() {
		unsub()
		close(stop)
	}
}

// dispatch isolates a handler panic to this subscriber.
func (s *Session) dispatch(callback func(*store.Message), msg *store.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("message handler panicked", zap.Any("panic", r))
		}
	}()
	callback(msg)
}

// Logout performs the bulk-clear: every message and conversation row is
// discarded along with all in-memory engine state.
func (s *Session) Logout() error {
	if err := s.db.PurgeAll(); err != nil {
		return err
	}
	s.Cleanup()
	return nil
}

// Cleanup unsubscribes everything, clears rate-limit and correlation state
// and unbinds the account. Idempotent; no callback from the previous
// binding mutates state once Cleanup has started.
func (s *Session) Cleanup() {
	s.bridge.UnsubscribeAll()
	s.limiter.ResetAll()

	s.mu.Lock()
	bound := s.self != ""
	s.self = ""
	s.correlation = make(map[string]int64)
	s.mu.Unlock()

	s.transition(status.Stopped)
	if bound {
		s.logger.Info("session cleaned up")
	}
}

func (s *Session) publish(kind string, payload any) {
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: s.now(), Payload: payload})
}

func (s *Session) transition(to status.State) {
	if s.machine == nil {
		return
	}
	if err := s.machine.Transition(to); err != nil {
		s.logger.Debug("status transition skipped", zap.Error(err))
	}
}
