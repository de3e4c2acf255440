package store

import (
	"database/sql"
	"math"
	"time"
)

// InsertMessage appends a message and returns its local id. Local ids are
// assigned by the database, strictly increasing and never reused.
func (db *DB) InsertMessage(m *Message) (int64, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		INSERT INTO messages (conversation_id, sender_address, recipient_address, content, timestamp, status, remote_id, signature, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ConversationID, m.SenderAddress, m.RecipientAddress, m.Content, m.Timestamp, m.Status,
		nullable(m.RemoteID), nullable(m.Signature), now)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	m.LocalID = id
	return id, nil
}

// HasRemote reports whether a message with the given remote-log key already
// exists. Index lookup, not a scan; this is the dedup gate for admission.
func (db *DB) HasRemote(remoteID string) (bool, error) {
	if remoteID == "" {
		return false, nil
	}
	var one int
	err := db.QueryRow(`SELECT 1 FROM messages WHERE remote_id = ?`, remoteID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkConfirmed moves a pending message to confirmed and records the
// remote-log key. A no-op for rows already confirmed or failed, keeping
// visible state monotonic.
func (db *DB) MarkConfirmed(localID int64, remoteID string) error {
	_, err := db.Exec(`
		UPDATE messages SET status = ?, remote_id = ?
		WHERE id = ? AND status = ?`,
		StatusConfirmed, nullable(remoteID), localID, StatusPending)
	return err
}

// MarkFailed moves a pending message to failed. The row is retained with
// its content so the user can resend.
func (db *DB) MarkFailed(localID int64) error {
	_, err := db.Exec(`
		UPDATE messages SET status = ?
		WHERE id = ? AND status = ?`,
		StatusFailed, localID, StatusPending)
	return err
}

// GetMessage returns a single message by local id, or nil if absent.
func (db *DB) GetMessage(localID int64) (*Message, error) {
	row := db.QueryRow(`
		SELECT id, conversation_id, sender_address, recipient_address, content, timestamp, status, remote_id, signature
		FROM messages WHERE id = ?`, localID)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessagesPage returns up to limit messages of a conversation strictly
// older than beforeTs, newest first (keyset pagination over the
// conversation_id+timestamp index). beforeTs <= 0 means "most recent page".
// Callers reverse the slice for display.
func (db *DB) ListMessagesPage(conversationID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = math.MaxInt64
	}
	rows, err := db.Query(`
		SELECT id, conversation_id, sender_address, recipient_address, content, timestamp, status, remote_id, signature
		FROM messages
		WHERE conversation_id = ? AND timestamp < ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, conversationID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(r rowScanner) (*Message, error) {
	var m Message
	var remoteID, signature sql.NullString
	if err := r.Scan(&m.LocalID, &m.ConversationID, &m.SenderAddress, &m.RecipientAddress,
		&m.Content, &m.Timestamp, &m.Status, &remoteID, &signature); err != nil {
		return nil, err
	}
	m.RemoteID = remoteID.String
	m.Signature = signature.String
	return &m, nil
}

// nullable maps the empty string to SQL NULL so the partial unique index on
// remote_id only covers acknowledged rows.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
