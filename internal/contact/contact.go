// Package contact manages the address book.
package contact

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/matheus3301/wlite/internal/model"
	"github.com/matheus3301/wlite/internal/remote"
	"github.com/matheus3301/wlite/internal/store"
	"go.uber.org/zap"
)

var (
	ErrContactExists = errors.New("contact already exists")
	ErrInvalidPhone  = errors.New("invalid phone number")
)

// Service reads and writes contacts through the remote store, caching
// them locally.
type Service struct {
	db     *store.DB
	remote *remote.Client
	logger *zap.Logger
}

// New creates a contact service.
func New(db *store.DB, rc *remote.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, remote: rc, logger: logger}
}

// Add saves a new contact. The remote write is best-effort; the contact is
// kept locally either way.
func (s *Service) Add(ctx context.Context, name, phone string) (*model.Contact, error) {
	phone = model.NormalizePhone(phone)
	if phone == "" {
		return nil, ErrInvalidPhone
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = phone
	}

	existing, err := s.db.ContactByPhone(phone)
	if err != nil {
		return nil, fmt.Errorf("check contact: %w", err)
	}
	if existing == nil {
		var remoteHits []model.Contact
		if err := s.remote.List(ctx, remote.Contacts, url.Values{"phone": {phone}}, &remoteHits); err != nil {
			s.logger.Warn("remote contact check skipped", zap.Error(err))
		} else if len(remoteHits) > 0 {
			existing = &remoteHits[0]
		}
	}
	if existing != nil {
		return nil, ErrContactExists
	}

	c := model.Contact{ID: model.NewID(), Name: name, Phone: phone}
	// A registered user keeps the same id in the address book so chats
	// with the contact address the right participant.
	var users []model.User
	if err := s.remote.List(ctx, remote.Users, url.Values{"phone": {phone}}, &users); err == nil && len(users) > 0 {
		c.ID = users[0].ID
		c.AvatarURL = users[0].AvatarURL
		c.Status = users[0].Status
		c.Online = users[0].IsOnline
	}

	if err := s.remote.Create(ctx, remote.Contacts, c, nil); err != nil {
		s.logger.Warn("contact kept locally only", zap.Error(err), zap.String("contact_id", c.ID))
	}
	if err := s.db.UpsertContact(&c); err != nil {
		return nil, fmt.Errorf("save contact: %w", err)
	}
	return &c, nil
}

// List returns all contacts. A remote failure degrades to the local cache.
func (s *Service) List(ctx context.Context) ([]model.Contact, error) {
	var remoteContacts []model.Contact
	if err := s.remote.List(ctx, remote.Contacts, nil, &remoteContacts); err != nil {
		s.logger.Warn("listing cached contacts", zap.Error(err))
	} else if err := s.db.BulkUpsertContacts(remoteContacts); err != nil {
		s.logger.Warn("failed to cache contacts", zap.Error(err))
	}
	return s.db.ListContacts()
}

// Search returns contacts whose name contains query, case-insensitively.
func (s *Service) Search(ctx context.Context, query string) ([]model.Contact, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return all, nil
	}
	var out []model.Contact
	for _, c := range all {
		if strings.Contains(strings.ToLower(c.Name), q) {
			out = append(out, c)
		}
	}
	return out, nil
}
