package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/matheus3301/wlite/internal/model"
)

const statusColumns = `id, user_id, content, type, background_color, caption, created_at, expires_at`

// UpsertStatus stores a status and merges its viewer set.
func (db *DB) UpsertStatus(s *model.Status) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertStatus(tx, s); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertStatus(tx *sql.Tx, s *model.Status) error {
	if _, err := tx.Exec(`
		INSERT OR IGNORE INTO statuses (`+statusColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.Content, string(s.Type), s.BackgroundColor, s.Caption,
		millis(s.CreatedAt), millis(s.ExpiresAt)); err != nil {
		return fmt.Errorf("insert status %q: %w", s.ID, err)
	}
	for _, viewer := range s.ViewedBy {
		if _, err := addView(tx, s.ID, viewer); err != nil {
			return err
		}
	}
	return nil
}

// AddStatusView records viewerID in a status's viewer set and reports
// whether it was not already there.
func (db *DB) AddStatusView(statusID, viewerID string) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	added, err := addView(tx, statusID, viewerID)
	if err != nil || !added {
		return false, err
	}
	return true, tx.Commit()
}

func addView(tx *sql.Tx, statusID, viewerID string) (bool, error) {
	res, err := tx.Exec(`
		INSERT OR IGNORE INTO status_views (status_id, viewer_id, seq)
		VALUES (?, ?, (SELECT COUNT(*) FROM status_views WHERE status_id = ?))`,
		statusID, viewerID, statusID)
	if err != nil {
		return false, fmt.Errorf("add view %q: %w", statusID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetStatus returns a status regardless of expiry, or nil if unknown.
func (db *DB) GetStatus(id string) (*model.Status, error) {
	list, err := db.queryStatuses(`SELECT `+statusColumns+` FROM statuses WHERE id = ?`, id)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

// ListStatuses returns the unexpired statuses of the given users, newest
// first.
func (db *DB) ListStatuses(userIDs []string, now time.Time) ([]model.Status, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]byte, 0, len(userIDs)*2)
	args := make([]any, 0, len(userIDs)+1)
	for i, id := range userIDs {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, id)
	}
	args = append(args, now.UnixMilli())
	return db.queryStatuses(`
		SELECT `+statusColumns+`
		FROM statuses
		WHERE user_id IN (`+string(placeholders)+`) AND expires_at > ?
		ORDER BY created_at DESC, id`, args...)
}

// ListStatusesExcept returns the unexpired statuses of everyone but userID,
// newest first.
func (db *DB) ListStatusesExcept(userID string, now time.Time) ([]model.Status, error) {
	return db.queryStatuses(`
		SELECT `+statusColumns+`
		FROM statuses
		WHERE user_id != ? AND expires_at > ?
		ORDER BY created_at DESC, id`, userID, now.UnixMilli())
}

// ReplaceOthersStatuses swaps the cached statuses of other users for list,
// leaving userID's own statuses untouched. Statuses present in both keep
// their locally recorded viewers; the viewers in list are merged in.
func (db *DB) ReplaceOthersStatuses(userID string, list []model.Status) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	keep := make(map[string]bool, len(list))
	for _, s := range list {
		if s.UserID != userID {
			keep[s.ID] = true
		}
	}
	rows, err := tx.Query(`SELECT id FROM statuses WHERE user_id != ?`, userID)
	if err != nil {
		return fmt.Errorf("list cached statuses: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return err
		}
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, id := range stale {
		if _, err := tx.Exec(`DELETE FROM statuses WHERE id = ?`, id); err != nil {
			return fmt.Errorf("drop status %q: %w", id, err)
		}
	}
	for i := range list {
		if list[i].UserID == userID {
			continue
		}
		if err := upsertStatus(tx, &list[i]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (db *DB) queryStatuses(query string, args ...any) ([]model.Status, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var list []model.Status
	for rows.Next() {
		var (
			s                  model.Status
			typ                string
			created, expiresAt int64
		)
		if err := rows.Scan(&s.ID, &s.UserID, &s.Content, &typ, &s.BackgroundColor, &s.Caption,
			&created, &expiresAt); err != nil {
			return nil, err
		}
		s.Type = model.StatusType(typ)
		s.CreatedAt = fromMillis(created)
		s.ExpiresAt = fromMillis(expiresAt)
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	_ = rows.Close()

	for i := range list {
		if list[i].ViewedBy, err = db.viewers(list[i].ID); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (db *DB) viewers(statusID string) ([]string, error) {
	rows, err := db.Query(`SELECT viewer_id FROM status_views WHERE status_id = ? ORDER BY seq, viewer_id`, statusID)
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
