// Package account implements user identity operations: claiming a user slug
// from a verified email, profile updates, and the PIN-based email login
// request lifecycle.
package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/teamstatus-dev/backend/internal/bus"
	"github.com/teamstatus-dev/backend/internal/errs"
	"github.com/teamstatus-dev/backend/internal/ident"
	"github.com/teamstatus-dev/backend/internal/schema"
	"github.com/teamstatus-dev/backend/internal/store"
	"go.uber.org/zap"
)

var (
	errMissingStore = errors.New("account: store client is required")
	errMissingBus   = errors.New("account: event bus is required")
)

const (
	opServiceNew     = "account.service.new"
	opClaimUser      = "account.claim_user"
	opUpdateProfile  = "account.update_profile"
	opGetUserByEmail = "account.get_user_by_email"
)

// User is an immutable snapshot of one user entity.
type User struct {
	ID       ident.UserID
	Email    string
	Name     string
	Pronouns string
	Version  int64
}

// ServiceConfig describes the dependencies for account operations.
type ServiceConfig struct {
	Store  *store.Client
	Bus    *bus.Bus
	Clock  func() time.Time
	Logger *zap.Logger
}

// Service executes account operations.
type Service struct {
	store  *store.Client
	bus    *bus.Bus
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errs.Internal(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.Bus == nil {
		return nil, errs.Internal(opServiceNew, "missing_bus", errMissingBus)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  cfg.Store,
		bus:    cfg.Bus,
		clock:  clock,
		logger: logger,
	}, nil
}

// ClaimUser binds a verified email to a user slug. A taken slug conflicts;
// the email must not already map to another user. Publishes USER_CREATED,
// which the onboarding subscriber turns into a feedback-project enrollment.
func (s *Service) ClaimUser(ctx context.Context, email string, id ident.UserID, name, pronouns string) (User, error) {
	normalizedEmail := strings.ToLower(strings.TrimSpace(email))
	if normalizedEmail == "" || !strings.Contains(normalizedEmail, "@") {
		return User{}, errs.BadRequest(opClaimUser, "invalid_email", nil)
	}

	if existing, err := s.GetUserByEmail(ctx, normalizedEmail); err == nil {
		if existing.ID.Key() == id.Key() {
			return existing, nil
		}
		return User{}, errs.Conflict(opClaimUser, "email_already_claimed", nil)
	} else if !errs.IsKind(err, errs.KindNotFound) {
		return User{}, err
	}

	attributes := map[string]string{
		schema.AttrID:    id.String(),
		schema.AttrEmail: normalizedEmail,
	}
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		attributes[schema.AttrName] = trimmed
	}
	if trimmed := strings.TrimSpace(pronouns); trimmed != "" {
		attributes[schema.AttrPronouns] = trimmed
	}
	if err := s.store.PutIfAbsent(ctx, store.Item{
		ID:         id.Key(),
		Type:       schema.TypeUser,
		Attributes: attributes,
	}); err != nil {
		return User{}, err
	}

	created := User{
		ID:       id,
		Email:    normalizedEmail,
		Name:     strings.TrimSpace(name),
		Pronouns: strings.TrimSpace(pronouns),
		Version:  1,
	}
	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindUserCreated, s.clock(), map[string]any{
		"id":    id.Key(),
		"email": normalizedEmail,
	})); err != nil {
		return User{}, errs.Internal(opClaimUser, "notify_failed", err)
	}
	return created, nil
}

// UpdateProfile sets display name and pronouns. Self-only, version-guarded.
func (s *Service) UpdateProfile(ctx context.Context, actor ident.UserID, version int64, name, pronouns string) (User, error) {
	trimmedName := strings.TrimSpace(name)
	trimmedPronouns := strings.TrimSpace(pronouns)
	updated, err := s.store.ConditionalUpdate(ctx, actor.Key(), schema.TypeUser, version, func(attributes map[string]string) {
		if trimmedName == "" {
			delete(attributes, schema.AttrName)
		} else {
			attributes[schema.AttrName] = trimmedName
		}
		if trimmedPronouns == "" {
			delete(attributes, schema.AttrPronouns)
		} else {
			attributes[schema.AttrPronouns] = trimmedPronouns
		}
	})
	if err != nil {
		return User{}, err
	}

	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindUserUpdated, s.clock(), map[string]any{
		"id": actor.Key(),
	})); err != nil {
		return User{}, errs.Internal(opUpdateProfile, "notify_failed", err)
	}
	return toUser(updated), nil
}

// GetUser loads one user by id.
func (s *Service) GetUser(ctx context.Context, id ident.UserID) (User, error) {
	item, err := s.store.GetByKey(ctx, id.Key(), schema.TypeUser)
	if err != nil {
		return User{}, err
	}
	return toUser(item), nil
}

// GetUserByEmail resolves a user through the email index. The index is
// eventually consistent; a user claimed a moment ago may not resolve yet.
func (s *Service) GetUserByEmail(ctx context.Context, email string) (User, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	items, err := s.store.QueryByIndex(ctx, schema.IndexEmailUsers, normalized, store.QueryOptions{Limit: 1})
	if err != nil {
		return User{}, err
	}
	if len(items) == 0 {
		return User{}, errs.NotFound(opGetUserByEmail, "no_user_for_email", nil)
	}
	return toUser(items[0]), nil
}

func toUser(item store.Item) User {
	raw, _ := item.Attribute(schema.AttrID)
	id, err := ident.NewUserID(raw)
	if err != nil {
		id = ident.UserID(item.ID)
	}
	email, _ := item.Attribute(schema.AttrEmail)
	name, _ := item.Attribute(schema.AttrName)
	pronouns, _ := item.Attribute(schema.AttrPronouns)
	return User{ID: id, Email: email, Name: name, Pronouns: pronouns, Version: item.Version}
}
