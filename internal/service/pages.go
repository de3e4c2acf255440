package service

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tello-im/tello/internal/identity"
	"github.com/tello-im/tello/internal/policy"
	"github.com/tello-im/tello/internal/store"
	"go.uber.org/zap"
)

// MessagesPage is one page of a conversation's history, oldest first.
// NextCursor is the timestamp boundary for the next (older) page; zero when
// HasMore is false.
type MessagesPage struct {
	ConversationID string
	PeerAddress    string
	Messages       []store.Message
	HasMore        bool
	NextCursor     int64
}

// ConversationsPage is one page of the recency-ordered conversation list.
type ConversationsPage struct {
	Conversations []store.Conversation
	HasMore       bool
	NextCursor    int64
}

// LoadMessagesPage returns a page of messages with the given peer, newest
// page first when cursor is zero, and ensures the conversation's remote
// subscription is live. Pages are returned in ascending timestamp order for
// display.
func (s *Session) LoadMessagesPage(peerAddress string, cursor int64) (*MessagesPage, error) {
	self := s.Self()
	if self == "" {
		return nil, ErrNotInitialized
	}
	peer := identity.Normalize(peerAddress)
	if !identity.Valid(peer) {
		return nil, &policy.ValidationError{Reason: "enter a valid wallet address"}
	}
	conversationID := identity.ConversationID(self, peer)

	limit := s.opts.MessagePageSize
	// Over-fetch by one to learn whether an older page exists.
	rows, err := s.db.ListMessagesPage(conversationID, cursor, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	// Fetched newest-first; reverse for display.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	var nextCursor int64
	if hasMore && len(rows) > 0 {
		nextCursor = rows[0].Timestamp
	}

	if err := s.bridge.Subscribe(conversationID); err != nil {
		s.logger.Warn("subscribe on page load failed", zap.Error(err),
			zap.String("conversation", conversationID))
	}

	return &MessagesPage{
		ConversationID: conversationID,
		PeerAddress:    peer,
		Messages:       rows,
		HasMore:        hasMore,
		NextCursor:     nextCursor,
	}, nil
}

// ListConversationsPage returns a page of the account's conversations,
// most recent activity first. Rows whose id does not contain the bound
// account are a data-integrity defect: they are logged and excluded, never
// returned. The filter applies unconditionally; returning another
// account's conversation is a data leak, not a display glitch.
func (s *Session) ListConversationsPage(cursor int64) (*ConversationsPage, error) {
	self := s.Self()
	if self == "" {
		return nil, ErrNotInitialized
	}

	limit := s.opts.ConversationPageSize
	rows, err := s.db.ListConversationsPage(cursor, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	items := make([]store.Conversation, 0, len(rows))
	for _, c := range rows {
		peer, err := identity.PeerOf(c.ID, self)
		if err != nil {
			var ie *identity.IntegrityError
			if errors.As(err, &ie) {
				s.logger.Warn("excluding conversation not owned by account",
					zap.String("conversation", c.ID))
				continue
			}
			return nil, err
		}
		// Resolve the peer relative to the bound account rather than
		// trusting the stored column.
		c.PeerAddress = peer
		items = append(items, c)

		if err := s.bridge.Subscribe(c.ID); err != nil {
			s.logger.Warn("subscribe on listing failed", zap.Error(err),
				zap.String("conversation", c.ID))
		}
	}

	var nextCursor int64
	if hasMore && len(rows) > 0 {
		nextCursor = rows[len(rows)-1].LastMessageTime
	}

	return &ConversationsPage{
		Conversations: items,
		HasMore:       hasMore,
		NextCursor:    nextCursor,
	}, nil
}

// MergeMessages combines previously loaded messages with a newly fetched
// page, deduplicating by local id and restoring display order. Loading
// older pages while new messages arrive concurrently must never produce
// duplicate or out-of-order entries.
func MergeMessages(existing, incoming []store.Message) []store.Message {
	seen := make(map[int64]struct{}, len(existing)+len(incoming))
	merged := make([]store.Message, 0, len(existing)+len(incoming))
	for _, batch := range [][]store.Message{existing, incoming} {
		for _, m := range batch {
			if _, ok := seen[m.LocalID]; ok {
				continue
			}
			seen[m.LocalID] = struct{}{}
			merged = append(merged, m)
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Timestamp != merged[j].Timestamp {
			return merged[i].Timestamp < merged[j].Timestamp
		}
		return merged[i].LocalID < merged[j].LocalID
	})
	return merged
}
