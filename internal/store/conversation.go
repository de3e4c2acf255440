package store

import (
	"database/sql"
	"math"
	"time"
)

// previewLimit caps the stored last-message preview.
const previewLimit = 140

// ApplyOutbound upserts a conversation after a local send. Outbound activity
// implies the thread was read, so the unread counter resets to zero.
func (db *DB) ApplyOutbound(id, peerAddress, preview string, ts int64) error {
	return db.applyActivity(id, peerAddress, preview, ts, false)
}

// ApplyInbound upserts a conversation after admitting a remote message and
// increments its unread counter.
func (db *DB) ApplyInbound(id, peerAddress, preview string, ts int64) error {
	return db.applyActivity(id, peerAddress, preview, ts, true)
}

func (db *DB) applyActivity(id, peerAddress, preview string, ts int64, inbound bool) error {
	now := time.Now().UnixMilli()
	unreadDelta := 0
	if inbound {
		unreadDelta = 1
	}
	// last_message_time only moves forward; the preview follows whichever
	// message holds that time.
	_, err := db.Exec(`
		INSERT INTO conversations (id, peer_address, last_message_time, last_message_preview, unread_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			peer_address = excluded.peer_address,
			last_message_preview = CASE WHEN excluded.last_message_time >= conversations.last_message_time
				THEN excluded.last_message_preview ELSE conversations.last_message_preview END,
			last_message_time = MAX(conversations.last_message_time, excluded.last_message_time),
			unread_count = CASE WHEN ? THEN conversations.unread_count + 1 ELSE 0 END,
			updated_at = excluded.updated_at`,
		id, peerAddress, ts, truncatePreview(preview), unreadDelta, now, inbound)
	return err
}

// MarkRead resets the unread counter for a conversation.
func (db *DB) MarkRead(id string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE conversations SET unread_count = 0, updated_at = ? WHERE id = ?`, now, id)
	return err
}

// GetConversation returns a single conversation by id, or nil if absent.
func (db *DB) GetConversation(id string) (*Conversation, error) {
	var c Conversation
	err := db.QueryRow(`
		SELECT id, peer_address, last_message_time, last_message_preview, unread_count
		FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.PeerAddress, &c.LastMessageTime, &c.LastMessagePreview, &c.UnreadCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversationsPage returns up to limit conversations with
// last_message_time strictly older than beforeTime, most recent first.
// beforeTime <= 0 means "most recent page".
func (db *DB) ListConversationsPage(beforeTime int64, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	if beforeTime <= 0 {
		beforeTime = math.MaxInt64
	}
	rows, err := db.Query(`
		SELECT id, peer_address, last_message_time, last_message_preview, unread_count
		FROM conversations
		WHERE last_message_time < ?
		ORDER BY last_message_time DESC, id DESC
		LIMIT ?`, beforeTime, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convos []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.PeerAddress, &c.LastMessageTime, &c.LastMessagePreview, &c.UnreadCount); err != nil {
			return nil, err
		}
		convos = append(convos, c)
	}
	return convos, rows.Err()
}

func truncatePreview(s string) string {
	if len(s) <= previewLimit {
		return s
	}
	// Cut on a rune boundary.
	cut := previewLimit
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}
