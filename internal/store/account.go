package store

import (
	"fmt"
	"time"

	"github.com/matheus3301/wlite/internal/model"
)

// SetAccount records u as the profile's logged-in user.
func (db *DB) SetAccount(u *model.User) error {
	if err := db.UpsertUser(u); err != nil {
		return fmt.Errorf("cache user: %w", err)
	}
	_, err := db.Exec(`
		INSERT INTO account (slot, user_id, logged_in_at) VALUES (1, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET user_id = excluded.user_id, logged_in_at = excluded.logged_in_at`,
		u.ID, time.Now().UnixMilli())
	return err
}

// Account returns the logged-in user, or nil when nobody is logged in.
func (db *DB) Account() (*model.User, error) {
	return scanUser(db.QueryRow(`
		SELECT ` + prefixed("u.", userColumns) + `
		FROM account a
		JOIN users u ON u.id = a.user_id
		WHERE a.slot = 1`))
}

// ClearAccount forgets the logged-in user. Cached data stays.
func (db *DB) ClearAccount() error {
	_, err := db.Exec(`DELETE FROM account`)
	return err
}
