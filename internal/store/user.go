package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/matheus3301/wlite/internal/model"
)

const userColumns = `id, phone, first_name, last_name, name, country_code, status, avatar_url,
	is_online, last_seen, last_login, registered_at`

// UpsertUser inserts or refreshes a cached user profile.
func (db *DB) UpsertUser(u *model.User) error {
	_, err := db.Exec(`
		INSERT INTO users (`+userColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phone = excluded.phone,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			name = excluded.name,
			country_code = excluded.country_code,
			status = excluded.status,
			avatar_url = excluded.avatar_url,
			is_online = excluded.is_online,
			last_seen = MAX(users.last_seen, excluded.last_seen),
			last_login = MAX(users.last_login, excluded.last_login),
			registered_at = CASE WHEN users.registered_at = 0 THEN excluded.registered_at ELSE users.registered_at END,
			updated_at = excluded.updated_at`,
		u.ID, u.Phone, u.FirstName, u.LastName, u.Name, u.CountryCode, u.Status, u.AvatarURL,
		u.IsOnline, millis(u.LastSeen), millis(u.LastLogin), millis(u.RegisteredAt), time.Now().UnixMilli())
	return err
}

// GetUser returns a cached user, or nil if unknown.
func (db *DB) GetUser(id string) (*model.User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// UserByPhone returns the cached user registered with phone, or nil.
func (db *DB) UserByPhone(phone string) (*model.User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE phone = ? LIMIT 1`, phone))
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u                               model.User
		lastSeen, lastLogin, registered int64
	)
	err := row.Scan(&u.ID, &u.Phone, &u.FirstName, &u.LastName, &u.Name, &u.CountryCode, &u.Status,
		&u.AvatarURL, &u.IsOnline, &lastSeen, &lastLogin, &registered)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.LastSeen = fromMillis(lastSeen)
	u.LastLogin = fromMillis(lastLogin)
	u.RegisteredAt = fromMillis(registered)
	return &u, nil
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
