package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/matheus3301/wlite/internal/model"
)

const messageColumns = `id, chat_id, sender_id, recipient_id, text, is_voice, duration, audio_url,
	display_time, created_at, is_me, sent, delivered, read`

// UpsertMessage stores m, or merges its delivery flags into the stored copy
// when the id is already known. The boolean reports whether a row was
// inserted.
func (db *DB) UpsertMessage(m *model.Message) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := upsertMessage(tx, m, true)
	if err != nil {
		return false, err
	}
	return inserted, tx.Commit()
}

// UpsertMessages merges a batch in one transaction and returns the ids of
// the rows that were new.
func (db *DB) UpsertMessages(msgs []model.Message) ([]string, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var added []string
	for i := range msgs {
		inserted, err := upsertMessage(tx, &msgs[i], true)
		if err != nil {
			return nil, err
		}
		if inserted {
			added = append(added, msgs[i].ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	return added, nil
}

// upsertMessage never overwrites body, sender or is_me of a stored row;
// sent, delivered and read only move from false to true.
func upsertMessage(tx *sql.Tx, m *model.Message, pushed bool) (bool, error) {
	m.Normalize()
	res, err := tx.Exec(`
		INSERT OR IGNORE INTO messages (`+messageColumns+`, pushed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChatID, m.SenderID, m.RecipientID, m.Text, m.IsVoice, m.Duration, m.AudioURL,
		m.Timestamp, millis(m.CreatedAt), m.IsMe, m.Sent, m.Delivered, m.Read, pushed)
	if err != nil {
		return false, fmt.Errorf("insert message %q: %w", m.ID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	if _, err := tx.Exec(`
		UPDATE messages SET
			sent = MAX(sent, ?),
			delivered = MAX(delivered, ?),
			read = MAX(read, ?)
		WHERE id = ?`,
		m.Sent, m.Delivered, m.Read, m.ID); err != nil {
		return false, fmt.Errorf("merge message %q: %w", m.ID, err)
	}
	return false, nil
}

// GetMessage returns a message by id, or nil if unknown.
func (db *DB) GetMessage(id string) (*model.Message, error) {
	m, err := scanMessage(db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// ListMessages returns a chat's messages ordered by creation time, ties
// broken by insertion order.
func (db *DB) ListMessages(chatID string) ([]model.Message, error) {
	return db.queryMessages(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE chat_id = ?
		ORDER BY created_at ASC, seq ASC`, chatID)
}

// MarkDelivered flips delivered on senderID's messages in a chat that are
// not delivered yet and returns the ids that changed.
func (db *DB) MarkDelivered(chatID, senderID string) ([]string, error) {
	return db.queryIDs(`
		UPDATE messages SET delivered = 1, sent = 1
		WHERE chat_id = ? AND sender_id = ? AND delivered = 0
		RETURNING id`, chatID, senderID)
}

// MarkRead flips read on the messages in a chat that viewerID did not send
// and has not read yet, returning the ids that changed.
func (db *DB) MarkRead(chatID, viewerID string) ([]string, error) {
	return db.queryIDs(`
		UPDATE messages SET read = 1, delivered = 1, sent = 1
		WHERE chat_id = ? AND sender_id != ? AND read = 0
		RETURNING id`, chatID, viewerID)
}

func (db *DB) queryIDs(query string, args ...any) ([]string, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *DB) queryMessages(query string, args ...any) ([]model.Message, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

func scanMessage(row rowScanner) (*model.Message, error) {
	var (
		m         model.Message
		createdAt int64
	)
	if err := row.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.RecipientID, &m.Text, &m.IsVoice, &m.Duration,
		&m.AudioURL, &m.Timestamp, &createdAt, &m.IsMe, &m.Sent, &m.Delivered, &m.Read); err != nil {
		return nil, err
	}
	m.CreatedAt = fromMillis(createdAt)
	return &m, nil
}
