package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/wlite/internal/model"
)

// UpsertContact inserts or updates a contact.
func (db *DB) UpsertContact(c *model.Contact) error {
	_, err := db.Exec(`
		INSERT INTO contacts (id, name, phone, status, avatar_url, online, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE contacts.name END,
			phone = CASE WHEN excluded.phone != '' THEN excluded.phone ELSE contacts.phone END,
			status = excluded.status,
			avatar_url = excluded.avatar_url,
			online = excluded.online,
			updated_at = excluded.updated_at`,
		c.ID, c.Name, c.Phone, c.Status, c.AvatarURL, c.Online, time.Now().UnixMilli())
	return err
}

// BulkUpsertContacts inserts or updates multiple contacts in a single transaction.
func (db *DB) BulkUpsertContacts(contacts []model.Contact) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, c := range contacts {
		if _, err := tx.Exec(`
			INSERT INTO contacts (id, name, phone, status, avatar_url, online, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = CASE WHEN excluded.name != '' THEN excluded.name ELSE contacts.name END,
				phone = CASE WHEN excluded.phone != '' THEN excluded.phone ELSE contacts.phone END,
				status = excluded.status,
				avatar_url = excluded.avatar_url,
				online = excluded.online,
				updated_at = excluded.updated_at`,
			c.ID, c.Name, c.Phone, c.Status, c.AvatarURL, c.Online, now); err != nil {
			return fmt.Errorf("upsert contact %q: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// ListContacts returns contacts sorted by name.
func (db *DB) ListContacts() ([]model.Contact, error) {
	rows, err := db.Query(`SELECT id, name, phone, status, avatar_url, online FROM contacts ORDER BY name COLLATE NOCASE, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []model.Contact
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Status, &c.AvatarURL, &c.Online); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// ContactByPhone returns the contact saved under phone, or nil.
func (db *DB) ContactByPhone(phone string) (*model.Contact, error) {
	var c model.Contact
	err := db.QueryRow(`SELECT id, name, phone, status, avatar_url, online FROM contacts WHERE phone = ? LIMIT 1`, phone).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Status, &c.AvatarURL, &c.Online)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ChatCount returns the total number of chats.
func (db *DB) ChatCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
