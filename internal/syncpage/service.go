// Package syncpage implements sync entities: owner-curated bundles of
// projects with an optional title and date range. A sync can be shared
// one-way by attaching a random token that grants anonymous read access.
package syncpage

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teamstatus-dev/backend/internal/bus"
	"github.com/teamstatus-dev/backend/internal/errs"
	"github.com/teamstatus-dev/backend/internal/ident"
	"github.com/teamstatus-dev/backend/internal/roster"
	"github.com/teamstatus-dev/backend/internal/schema"
	"github.com/teamstatus-dev/backend/internal/store"
	"go.uber.org/zap"
)

var (
	errMissingStore  = errors.New("syncpage: store client is required")
	errMissingBus    = errors.New("syncpage: event bus is required")
	errMissingRoster = errors.New("syncpage: roster service is required")
)

const (
	opServiceNew = "syncpage.service.new"
	opCreate     = "syncpage.create"
	opUpdate     = "syncpage.update"
	opDelete     = "syncpage.delete"
	opShare      = "syncpage.share"
	opGet        = "syncpage.get"
)

// Sync is an immutable snapshot of one sync entity.
type Sync struct {
	ID         string
	Owner      ident.UserID
	Projects   []ident.ProjectID
	Title      string
	DateFrom   string
	DateTo     string
	ShareToken string
	Version    int64
}

// ServiceConfig describes the dependencies for sync operations.
type ServiceConfig struct {
	Store  *store.Client
	Bus    *bus.Bus
	Roster *roster.Service
	Clock  func() time.Time
	Logger *zap.Logger
}

// Service executes sync operations.
type Service struct {
	store  *store.Client
	bus    *bus.Bus
	roster *roster.Service
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the sync service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errs.Internal(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.Bus == nil {
		return nil, errs.Internal(opServiceNew, "missing_bus", errMissingBus)
	}
	if cfg.Roster == nil {
		return nil, errs.Internal(opServiceNew, "missing_roster", errMissingRoster)
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
		roster: cfg.Roster,
		clock:  clock,
		logger: logger,
	}, nil
}

// CreateInput shapes a sync creation. The caller supplies a freshly minted
// ULID as the sync id.
type CreateInput struct {
	ID       string
	Projects []ident.ProjectID
	Title    string
	DateFrom string
	DateTo   string
}

// Create writes a new sync owned by the caller. The caller must be a member
// of every referenced project.
func (s *Service) Create(ctx context.Context, actor ident.UserID, input CreateInput) (Sync, error) {
	now := s.clock().UTC()
	if err := ident.VerifyRecentULID(input.ID, now); err != nil {
		return Sync{}, errs.BadRequest(opCreate, "stale_or_malformed_id", err)
	}
	if len(input.Projects) == 0 {
		return Sync{}, errs.BadRequest(opCreate, "no_projects", nil)
	}
	for _, project := range input.Projects {
		member, err := s.roster.IsProjectMember(ctx, actor, project)
		if err != nil {
			return Sync{}, err
		}
		if !member {
			return Sync{}, errs.AccessDenied(opCreate, "not_a_member", nil)
		}
	}

	projectKeys := make([]string, 0, len(input.Projects))
	for _, project := range input.Projects {
		projectKeys = append(projectKeys, project.Key())
	}
	encoded, err := json.Marshal(projectKeys)
	if err != nil {
		return Sync{}, errs.Internal(opCreate, "encode_failed", err)
	}

	attributes := map[string]string{
		schema.AttrID:       input.ID,
		schema.AttrOwner:    actor.Key(),
		schema.AttrProjects: string(encoded),
	}
	if trimmed := strings.TrimSpace(input.Title); trimmed != "" {
		attributes[schema.AttrTitle] = trimmed
	}
	if trimmed := strings.TrimSpace(input.DateFrom); trimmed != "" {
		attributes[schema.AttrDateFrom] = trimmed
	}
	if trimmed := strings.TrimSpace(input.DateTo); trimmed != "" {
		attributes[schema.AttrDateTo] = trimmed
	}
	if err := s.store.PutIfAbsent(ctx, store.Item{
		ID:         input.ID,
		Type:       schema.TypeSync,
		Attributes: attributes,
	}); err != nil {
		return Sync{}, err
	}

	created := Sync{
		ID:       input.ID,
		Owner:    actor,
		Projects: input.Projects,
		Title:    strings.TrimSpace(input.Title),
		DateFrom: strings.TrimSpace(input.DateFrom),
		DateTo:   strings.TrimSpace(input.DateTo),
		Version:  1,
	}
	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindSyncCreated, now, map[string]any{
		"id":    input.ID,
		"owner": actor.Key(),
	})); err != nil {
		return Sync{}, errs.Internal(opCreate, "notify_failed", err)
	}
	return created, nil
}

// Update replaces title and date range. Owner-only, version-guarded.
func (s *Service) Update(ctx context.Context, actor ident.UserID, id string, version int64, title, dateFrom, dateTo string) (Sync, error) {
	if err := s.requireOwner(ctx, opUpdate, actor, id); err != nil {
		return Sync{}, err
	}

	updated, err := s.store.ConditionalUpdate(ctx, id, schema.TypeSync, version, func(attributes map[string]string) {
		setOrDelete(attributes, schema.AttrTitle, title)
		setOrDelete(attributes, schema.AttrDateFrom, dateFrom)
		setOrDelete(attributes, schema.AttrDateTo, dateTo)
	})
	if err != nil {
		return Sync{}, err
	}

	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindSyncUpdated, s.clock(), map[string]any{
		"id": id,
	})); err != nil {
		return Sync{}, errs.Internal(opUpdate, "notify_failed", err)
	}
	return toSync(updated)
}

// Delete removes the sync. Owner-only, version-guarded. Syncs are
// hard-deleted; they carry no cross-entity references worth tombstoning.
func (s *Service) Delete(ctx context.Context, actor ident.UserID, id string, version int64) error {
	if err := s.requireOwner(ctx, opDelete, actor, id); err != nil {
		return err
	}
	if err := s.store.ConditionalDelete(ctx, id, schema.TypeSync, version); err != nil {
		return err
	}
	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindSyncDeleted, s.clock(), map[string]any{
		"id": id,
	})); err != nil {
		return errs.Internal(opDelete, "notify_failed", err)
	}
	return nil
}

// Share attaches the sharing token. Owner-only, one-way: once set, the token
// never changes and never comes off. Returns the token either way.
func (s *Service) Share(ctx context.Context, actor ident.UserID, id string, version int64) (string, error) {
	if err := s.requireOwner(ctx, opShare, actor, id); err != nil {
		return "", err
	}

	current, err := s.store.GetByKey(ctx, id, schema.TypeSync)
	if err != nil {
		return "", err
	}
	if existing, ok := current.Attribute(schema.AttrShareToken); ok {
		return existing, nil
	}

	shareToken := uuid.NewString()
	if _, err := s.store.ConditionalUpdate(ctx, id, schema.TypeSync, version, func(attributes map[string]string) {
		attributes[schema.AttrShareToken] = shareToken
	}); err != nil {
		return "", err
	}

	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindSyncShared, s.clock(), map[string]any{
		"id": id,
	})); err != nil {
		return "", errs.Internal(opShare, "notify_failed", err)
	}
	return shareToken, nil
}

// Get reads one sync. The owner always may; anyone else must present the
// exact sharing token. Token comparison is constant-time.
func (s *Service) Get(ctx context.Context, actor ident.UserID, shareToken, id string) (Sync, error) {
	item, err := s.store.GetByKey(ctx, id, schema.TypeSync)
	if err != nil {
		return Sync{}, err
	}

	owner, _ := item.Attribute(schema.AttrOwner)
	if actor != "" && owner == actor.Key() {
		return toSync(item)
	}

	stored, shared := item.Attribute(schema.AttrShareToken)
	if !shared || shareToken == "" ||
		subtle.ConstantTimeCompare([]byte(stored), []byte(shareToken)) != 1 {
		return Sync{}, errs.AccessDenied(opGet, "not_owner_or_shared", nil)
	}
	return toSync(item)
}

// List returns the caller's syncs, oldest first.
func (s *Service) List(ctx context.Context, actor ident.UserID) ([]Sync, error) {
	items, err := s.store.QueryByIndex(ctx, schema.IndexOwnerSyncs, actor.Key(), store.QueryOptions{})
	if err != nil {
		return nil, err
	}
	syncs := make([]Sync, 0, len(items))
	for _, item := range items {
		sync, err := toSync(item)
		if err != nil {
			return nil, err
		}
		syncs = append(syncs, sync)
	}
	return syncs, nil
}

func (s *Service) requireOwner(ctx context.Context, operation string, actor ident.UserID, id string) error {
	if err := ident.VerifyOlderULID(id, s.clock()); err != nil {
		return errs.BadRequest(operation, "malformed_id", err)
	}
	item, err := s.store.GetByKey(ctx, id, schema.TypeSync)
	if err != nil {
		return err
	}
	if owner, _ := item.Attribute(schema.AttrOwner); owner != actor.Key() {
		return errs.AccessDenied(operation, "not_owner", nil)
	}
	return nil
}

func setOrDelete(attributes map[string]string, key, value string) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		delete(attributes, key)
		return
	}
	attributes[key] = trimmed
}

func toSync(item store.Item) (Sync, error) {
	rawOwner, _ := item.Attribute(schema.AttrOwner)
	encoded, _ := item.Attribute(schema.AttrProjects)

	var projectKeys []string
	if encoded != "" {
		if err := json.Unmarshal([]byte(encoded), &projectKeys); err != nil {
			return Sync{}, errs.Internal(opGet, "corrupt_project_set", err)
		}
	}
	projects := make([]ident.ProjectID, 0, len(projectKeys))
	for _, key := range projectKeys {
		projects = append(projects, ident.ProjectID(key))
	}

	title, _ := item.Attribute(schema.AttrTitle)
	dateFrom, _ := item.Attribute(schema.AttrDateFrom)
	dateTo, _ := item.Attribute(schema.AttrDateTo)
	shareToken, _ := item.Attribute(schema.AttrShareToken)

	return Sync{
		ID:         item.ID,
		Owner:      ident.UserID(rawOwner),
		Projects:   projects,
		Title:      title,
		DateFrom:   dateFrom,
		DateTo:     dateTo,
		ShareToken: shareToken,
		Version:    item.Version,
	}, nil
}
