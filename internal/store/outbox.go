package store

import (
	"fmt"

	"github.com/matheus3301/wlite/internal/model"
)

// QueueOutbox stores an outgoing message whose remote write has not
// succeeded yet. It is listed locally right away and picked up by
// PendingOutbox until MarkPushed is called.
func (db *DB) QueueOutbox(m *model.Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := upsertMessage(tx, m, false); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkPushed records that the remote store accepted a queued message.
func (db *DB) MarkPushed(id string) error {
	_, err := db.Exec(`UPDATE messages SET pushed = 1 WHERE id = ?`, id)
	return err
}

// PendingOutbox returns queued messages in send order.
func (db *DB) PendingOutbox() ([]model.Message, error) {
	return db.queryMessages(`
		SELECT ` + messageColumns + `
		FROM messages
		WHERE pushed = 0
		ORDER BY created_at ASC, seq ASC`)
}
