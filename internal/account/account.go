// Package account registers users and keeps track of who is logged in on
// this profile. Identity comes from the remote store, so remote failures
// are returned to the caller instead of degrading.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/matheus3301/wlite/internal/bus"
	"github.com/matheus3301/wlite/internal/model"
	"github.com/matheus3301/wlite/internal/remote"
	"github.com/matheus3301/wlite/internal/session"
	"github.com/matheus3301/wlite/internal/store"
	"go.uber.org/zap"
)

var (
	ErrPhoneTaken   = errors.New("phone number already registered")
	ErrUnknownPhone = errors.New("no account for this phone number")
	ErrNotLoggedIn  = errors.New("not logged in")
	ErrInvalidPhone = errors.New("invalid phone number")
	ErrNoChanges    = errors.New("no profile fields to update")
)

// Registration holds the fields a new account is created from.
type Registration struct {
	Phone       string
	FirstName   string
	LastName    string
	CountryCode string
}

// ProfileUpdate lists the profile fields to change. Nil fields are left
// as they are.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Status    *string
	AvatarURL *string
}

// Service owns the logged-in account.
type Service struct {
	db     *store.DB
	remote *remote.Client
	sess   *session.Session
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time
}

// New creates an account service.
func New(db *store.DB, rc *remote.Client, sess *session.Session, b *bus.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, remote: rc, sess: sess, bus: b, logger: logger, now: time.Now}
}

// Restore loads the account saved by a previous run into the session.
// It returns nil when nobody is logged in.
func (s *Service) Restore() (*model.User, error) {
	u, err := s.db.Account()
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if u != nil {
		s.sess.SetUser(u)
	}
	return u, nil
}

// Register creates a user on the backend and logs it in.
func (s *Service) Register(ctx context.Context, r Registration) (*model.User, error) {
	phone := fullPhone(r.CountryCode, r.Phone)
	if phone == "" {
		return nil, ErrInvalidPhone
	}

	existing, err := s.lookup(ctx, phone)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrPhoneTaken
	}

	now := s.now().UTC()
	u := model.User{
		ID:           model.NewID(),
		Phone:        phone,
		FirstName:    strings.TrimSpace(r.FirstName),
		LastName:     strings.TrimSpace(r.LastName),
		CountryCode:  r.CountryCode,
		IsOnline:     true,
		LastSeen:     now,
		LastLogin:    now,
		RegisteredAt: now,
	}
	u.Name = strings.TrimSpace(u.FirstName + " " + u.LastName)
	if u.Name == "" {
		u.Name = phone
	}

	var created model.User
	if err := s.remote.Create(ctx, remote.Users, u, &created); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	if created.ID == "" {
		created = u
	}

	if err := s.activate(&created); err != nil {
		return nil, err
	}
	s.logger.Info("account registered", zap.String("user_id", created.ID))
	return &created, nil
}

// Login looks the phone up on the backend and makes that user current.
func (s *Service) Login(ctx context.Context, phone string) (*model.User, error) {
	phone = model.NormalizePhone(phone)
	if phone == "" {
		return nil, ErrInvalidPhone
	}

	u, err := s.lookup(ctx, phone)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUnknownPhone
	}

	now := s.now().UTC()
	u.IsOnline = true
	u.LastLogin = now
	u.LastSeen = now
	if err := s.remote.Patch(ctx, remote.Users, u.ID, map[string]any{
		"isOnline":  true,
		"lastLogin": now,
		"lastSeen":  now,
	}, nil); err != nil {
		s.logger.Warn("failed to record login remotely", zap.Error(err), zap.String("user_id", u.ID))
	}

	if err := s.activate(u); err != nil {
		return nil, err
	}
	s.logger.Info("logged in", zap.String("user_id", u.ID))
	return u, nil
}

// Logout forgets the current account locally and marks it offline remotely.
func (s *Service) Logout(ctx context.Context) error {
	u := s.sess.User()
	if u == nil {
		return ErrNotLoggedIn
	}

	if err := s.remote.Patch(ctx, remote.Users, u.ID, map[string]any{
		"isOnline": false,
		"lastSeen": s.now().UTC(),
	}, nil); err != nil {
		s.logger.Warn("failed to record logout remotely", zap.Error(err), zap.String("user_id", u.ID))
	}

	if err := s.db.ClearAccount(); err != nil {
		return fmt.Errorf("clear account: %w", err)
	}
	s.sess.SetUser(nil)
	s.bus.Emit(bus.SessionLoggedOut, bus.UserPayload{User: *u})
	s.logger.Info("logged out", zap.String("user_id", u.ID))
	return nil
}

// UpdateProfile edits the current user's profile on the backend and then
// in the local account and session.
func (s *Service) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*model.User, error) {
	cur := s.sess.User()
	if cur == nil {
		return nil, ErrNotLoggedIn
	}
	u := *cur
	fields := map[string]any{}
	set := func(key string, v *string, dst *string) {
		if v == nil {
			return
		}
		*dst = strings.TrimSpace(*v)
		fields[key] = *dst
	}
	set("firstName", upd.FirstName, &u.FirstName)
	set("lastName", upd.LastName, &u.LastName)
	set("status", upd.Status, &u.Status)
	set("avatarUrl", upd.AvatarURL, &u.AvatarURL)
	if len(fields) == 0 {
		return nil, ErrNoChanges
	}
	if upd.FirstName != nil || upd.LastName != nil {
		u.Name = strings.TrimSpace(u.FirstName + " " + u.LastName)
		if u.Name == "" {
			u.Name = u.Phone
		}
		fields["name"] = u.Name
	}

	if err := s.remote.Patch(ctx, remote.Users, u.ID, fields, nil); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if err := s.db.UpsertUser(&u); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	s.sess.SetUser(&u)
	s.bus.Emit(bus.SessionProfileUpdated, bus.UserPayload{User: u})
	s.logger.Info("profile updated", zap.String("user_id", u.ID), zap.Int("fields", len(fields)))
	return &u, nil
}

// Current returns the logged-in user.
func (s *Service) Current() (*model.User, error) {
	if u := s.sess.User(); u != nil {
		return u, nil
	}
	return nil, ErrNotLoggedIn
}

// Lookup resolves a user profile, preferring the backend and falling back
// to the local cache. It returns nil when the user is unknown everywhere.
func (s *Service) Lookup(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	err := s.remote.Get(ctx, remote.Users, userID, &u)
	if err == nil {
		if err := s.db.UpsertUser(&u); err != nil {
			s.logger.Warn("failed to cache user", zap.Error(err), zap.String("user_id", userID))
		}
		return &u, nil
	}
	if !errors.Is(err, remote.ErrNotFound) {
		s.logger.Warn("user lookup degraded to local cache", zap.Error(err), zap.String("user_id", userID))
	}
	return s.db.GetUser(userID)
}

func (s *Service) lookup(ctx context.Context, phone string) (*model.User, error) {
	var users []model.User
	if err := s.remote.List(ctx, remote.Users, url.Values{"phone": {phone}}, &users); err != nil {
		return nil, fmt.Errorf("look up phone: %w", err)
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

func (s *Service) activate(u *model.User) error {
	if err := s.db.SetAccount(u); err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	s.sess.SetUser(u)
	s.bus.Emit(bus.SessionLoggedIn, bus.UserPayload{User: *u})
	return nil
}

func fullPhone(countryCode, phone string) string {
	phone = strings.TrimSpace(phone)
	if countryCode != "" && !strings.HasPrefix(phone, "+") {
		phone = countryCode + phone
	}
	return model.NormalizePhone(phone)
}
