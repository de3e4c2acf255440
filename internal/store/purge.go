package store

import "fmt"

// PurgeAll deletes every message and conversation row. This is the logout
// bulk-clear; the append-only rule for messages has no other exception.
func (db *DB) PurgeAll() error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin purge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages`); err != nil {
		return fmt.Errorf("purge messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM conversations`); err != nil {
		return fmt.Errorf("purge conversations: %w", err)
	}
	return tx.Commit()
}
