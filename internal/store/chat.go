package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/wlite/internal/model"
)

const chatColumns = `c.id, c.name, c.avatar_url, c.is_group, c.is_community, c.description,
	c.last_message, c.display_time, c.last_message_at, c.unread_count, c.admin`

// InsertChat stores a new chat with its participants. Nothing is written when
// the id or, for direct chats, the participant pair is already known; the
// boolean reports whether the row was inserted.
func (db *DB) InsertChat(c *model.Chat) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := insertChat(tx, c)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}
	return true, tx.Commit()
}

// MergeChat adopts a chat record read from the remote store. Unknown chats
// are inserted; known ones take the remote metadata and participants while
// the unread counter stays local and the last message only moves forward.
func (db *DB) MergeChat(c *model.Chat) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := insertChat(tx, c)
	if err != nil {
		return false, err
	}
	if !inserted {
		res, err := tx.Exec(`
			UPDATE chats SET
				name = CASE WHEN ? != '' THEN ? ELSE name END,
				avatar_url = ?,
				description = ?,
				admin = CASE WHEN ? != '' THEN ? ELSE admin END,
				last_message = CASE WHEN ? > last_message_at THEN ? ELSE last_message END,
				display_time = CASE WHEN ? > last_message_at THEN ? ELSE display_time END,
				last_message_at = MAX(last_message_at, ?),
				updated_at = ?
			WHERE id = ?`,
			c.Name, c.Name, c.AvatarURL, c.Description, c.Admin, c.Admin,
			millis(c.LastMessageAt), c.LastMessage,
			millis(c.LastMessageAt), c.Timestamp,
			millis(c.LastMessageAt), time.Now().UnixMilli(), c.ID)
		if err != nil {
			return false, fmt.Errorf("update chat %q: %w", c.ID, err)
		}
		// A remote duplicate of a known participant pair is ignored.
		if n, _ := res.RowsAffected(); n == 0 {
			return false, nil
		}
		if (c.IsGroup || c.IsCommunity) && len(c.Participants) > 0 {
			if _, err := tx.Exec(`DELETE FROM chat_participants WHERE chat_id = ?`, c.ID); err != nil {
				return false, fmt.Errorf("clear participants: %w", err)
			}
			if err := insertParticipants(tx, c); err != nil {
				return false, err
			}
		}
	}
	return inserted, tx.Commit()
}

func insertChat(tx *sql.Tx, c *model.Chat) (bool, error) {
	var pairKey sql.NullString
	if key := c.PairKey(); key != "" {
		pairKey = sql.NullString{String: key, Valid: true}
	}
	res, err := tx.Exec(`
		INSERT OR IGNORE INTO chats (id, name, avatar_url, is_group, is_community, description,
			last_message, display_time, last_message_at, unread_count, admin, pair_key, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.AvatarURL, c.IsGroup, c.IsCommunity, c.Description,
		c.LastMessage, c.Timestamp, millis(c.LastMessageAt), c.UnreadCount, c.Admin, pairKey,
		time.Now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("insert chat %q: %w", c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil || n == 0 {
		return false, err
	}
	return true, insertParticipants(tx, c)
}

func insertParticipants(tx *sql.Tx, c *model.Chat) error {
	for i, p := range c.Participants {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO chat_participants (chat_id, user_id, position) VALUES (?, ?, ?)`,
			c.ID, p, i); err != nil {
			return fmt.Errorf("insert participant %q: %w", p, err)
		}
	}
	return nil
}

// GetChat returns a single chat by id, or nil if unknown.
func (db *DB) GetChat(id string) (*model.Chat, error) {
	chats, err := db.queryChats(`SELECT `+chatColumns+` FROM chats c WHERE c.id = ?`, id)
	if err != nil || len(chats) == 0 {
		return nil, err
	}
	return &chats[0], nil
}

// ChatByPairKey returns the direct chat between two participants, or nil.
func (db *DB) ChatByPairKey(key string) (*model.Chat, error) {
	chats, err := db.queryChats(`SELECT `+chatColumns+` FROM chats c WHERE c.pair_key = ?`, key)
	if err != nil || len(chats) == 0 {
		return nil, err
	}
	return &chats[0], nil
}

// ListChats returns every local chat, most recently active first.
func (db *DB) ListChats() ([]model.Chat, error) {
	return db.queryChats(`SELECT ` + chatColumns + ` FROM chats c ORDER BY c.last_message_at DESC, c.id`)
}

// ListChatsForUser returns the chats userID participates in, most recently
// active first.
func (db *DB) ListChatsForUser(userID string) ([]model.Chat, error) {
	return db.queryChats(`
		SELECT `+chatColumns+`
		FROM chats c
		JOIN chat_participants p ON p.chat_id = c.id
		WHERE p.user_id = ?
		ORDER BY c.last_message_at DESC, c.id`, userID)
}

// SearchChats matches query against chat names and last messages,
// case-insensitively. Only chats userID participates in are returned.
func (db *DB) SearchChats(userID, query string) ([]model.Chat, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	return db.queryChats(`
		SELECT `+chatColumns+`
		FROM chats c
		JOIN chat_participants p ON p.chat_id = c.id
		WHERE p.user_id = ?
		  AND (lower(c.name) LIKE ? ESCAPE '\' OR lower(c.last_message) LIKE ? ESCAPE '\')
		ORDER BY c.last_message_at DESC, c.id`, userID, pattern, pattern)
}

// UpdateLastMessage sets a chat's denormalized last message unless a newer
// one is already recorded. It reports whether the chat changed.
func (db *DB) UpdateLastMessage(chatID, preview, displayTime string, at time.Time) (bool, error) {
	res, err := db.Exec(`
		UPDATE chats SET last_message = ?, display_time = ?, last_message_at = ?, updated_at = ?
		WHERE id = ? AND last_message_at <= ?`,
		preview, displayTime, millis(at), time.Now().UnixMilli(), chatID, millis(at))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// IncrementUnread bumps a chat's unread counter.
func (db *DB) IncrementUnread(chatID string) error {
	_, err := db.Exec(`UPDATE chats SET unread_count = unread_count + 1, updated_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), chatID)
	return err
}

// ResetUnread zeroes a chat's unread counter and reports whether it was
// non-zero.
func (db *DB) ResetUnread(chatID string) (bool, error) {
	res, err := db.Exec(`UPDATE chats SET unread_count = 0, updated_at = ? WHERE id = ? AND unread_count != 0`,
		time.Now().UnixMilli(), chatID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (db *DB) queryChats(query string, args ...any) ([]model.Chat, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []model.Chat
	for rows.Next() {
		var (
			c      model.Chat
			lastAt int64
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.AvatarURL, &c.IsGroup, &c.IsCommunity, &c.Description,
			&c.LastMessage, &c.Timestamp, &lastAt, &c.UnreadCount, &c.Admin); err != nil {
			return nil, err
		}
		c.LastMessageAt = fromMillis(lastAt)
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	_ = rows.Close()

	for i := range chats {
		if chats[i].Participants, err = db.participants(chats[i].ID); err != nil {
			return nil, err
		}
	}
	return chats, nil
}

func (db *DB) participants(chatID string) ([]string, error) {
	rows, err := db.Query(`SELECT user_id FROM chat_participants WHERE chat_id = ? ORDER BY position, user_id`, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
