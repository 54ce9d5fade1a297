// Package status implements the status-update state machine: creation by
// project members, author-only edits, and soft deletion by attribute rename
// so tombstoned rows leave the project index while staying retrievable by
// key. Reactions ride the same lifecycle against their parent status.
package status

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/teamstatus-dev/backend/internal/bus"
	"github.com/teamstatus-dev/backend/internal/errs"
	"github.com/teamstatus-dev/backend/internal/ident"
	"github.com/teamstatus-dev/backend/internal/roster"
	"github.com/teamstatus-dev/backend/internal/schema"
	"github.com/teamstatus-dev/backend/internal/store"
	"go.uber.org/zap"
)

var (
	errMissingStore  = errors.New("status: store client is required")
	errMissingBus    = errors.New("status: event bus is required")
	errMissingRoster = errors.New("status: roster service is required")
	errMissingIDs    = errors.New("status: ulid source is required")
)

const (
	opServiceNew = "status.service.new"
	opCreate     = "status.create"
	opUpdate     = "status.update"
	opDelete     = "status.delete"
	opList       = "status.list"
)

const defaultListLimit = 50

// Status is an immutable snapshot of one status update.
type Status struct {
	ID          string
	Project     ident.ProjectID
	Author      ident.UserID
	Message     string
	Attribution string
	Version     int64
	DeletedAt   *time.Time
	Reactions   []Reaction
}

// ServiceConfig describes the dependencies for status operations.
type ServiceConfig struct {
	Store  *store.Client
	Bus    *bus.Bus
	Roster *roster.Service
	IDs    *ident.ULIDSource
	Clock  func() time.Time
	Logger *zap.Logger
}

// Service executes status and reaction operations.
type Service struct {
	store  *store.Client
	bus    *bus.Bus
	roster *roster.Service
	ids    *ident.ULIDSource
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the status service.
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
	if cfg.IDs == nil {
		return nil, errs.Internal(opServiceNew, "missing_ids", errMissingIDs)
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
		ids:    cfg.IDs,
		clock:  clock,
		logger: logger,
	}, nil
}

// CreateInput shapes a status creation. ID is optional; when supplied by the
// caller it must be a recently minted ULID.
type CreateInput struct {
	ID          string
	Project     ident.ProjectID
	Message     string
	Attribution string
}

// Create writes a new status with version 1. Requires project membership.
func (s *Service) Create(ctx context.Context, actor ident.UserID, input CreateInput) (Status, error) {
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return Status{}, errs.BadRequest(opCreate, "empty_message", nil)
	}

	now := s.clock().UTC()
	id := input.ID
	if id == "" {
		minted, err := s.ids.NewID()
		if err != nil {
			return Status{}, errs.Internal(opCreate, "id_generation_failed", err)
		}
		id = minted
	} else if err := ident.VerifyRecentULID(id, now); err != nil {
		return Status{}, errs.BadRequest(opCreate, "stale_or_malformed_id", err)
	}

	member, err := s.roster.IsProjectMember(ctx, actor, input.Project)
	if err != nil {
		return Status{}, err
	}
	if !member {
		return Status{}, errs.AccessDenied(opCreate, "not_a_member", nil)
	}

	attributes := map[string]string{
		schema.AttrID:        id,
		schema.AttrProjectID: input.Project.Key(),
		schema.AttrUserID:    actor.Key(),
		schema.AttrMessage:   message,
	}
	if attribution := strings.TrimSpace(input.Attribution); attribution != "" {
		attributes[schema.AttrAttribution] = attribution
	}
	if err := s.store.PutIfAbsent(ctx, store.Item{
		ID:         id,
		Type:       schema.TypeStatus,
		Attributes: attributes,
	}); err != nil {
		return Status{}, err
	}

	created := Status{
		ID:          id,
		Project:     input.Project,
		Author:      actor,
		Message:     message,
		Attribution: strings.TrimSpace(input.Attribution),
		Version:     1,
	}
	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindStatusCreated, now, map[string]any{
		"id":        id,
		"projectId": input.Project.Key(),
		"userId":    actor.Key(),
	})); err != nil {
		return Status{}, errs.Internal(opCreate, "notify_failed", err)
	}
	return created, nil
}

// Update replaces the message. Author-only, version-guarded. A tombstoned
// status cannot be updated.
func (s *Service) Update(ctx context.Context, actor ident.UserID, id string, version int64, message string) (Status, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return Status{}, errs.BadRequest(opUpdate, "empty_message", nil)
	}
	if err := ident.VerifyOlderULID(id, s.clock()); err != nil {
		return Status{}, errs.BadRequest(opUpdate, "malformed_id", err)
	}

	current, err := s.store.GetByKey(ctx, id, schema.TypeStatus)
	if err != nil {
		return Status{}, err
	}
	if author, _ := current.Attribute(schema.AttrUserID); author != actor.Key() {
		return Status{}, errs.AccessDenied(opUpdate, "not_the_author", nil)
	}
	if _, tombstoned := current.Attribute(schema.AttrDeletedProjectID); tombstoned {
		return Status{}, errs.NotFound(opUpdate, "deleted", nil)
	}

	updated, err := s.store.ConditionalUpdate(ctx, id, schema.TypeStatus, version, func(attributes map[string]string) {
		attributes[schema.AttrMessage] = trimmed
	})
	if err != nil {
		return Status{}, err
	}

	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindStatusUpdated, s.clock(), map[string]any{
		"id":     id,
		"userId": actor.Key(),
	})); err != nil {
		return Status{}, errs.Internal(opUpdate, "notify_failed", err)
	}
	return s.toStatus(updated), nil
}

// Delete tombstones the status: the live project reference moves to the
// non-indexed deleted attribute and a deletion timestamp is stamped. The row
// stays retrievable by key; there is no transition out of the tombstone.
// Author-only, version-guarded.
func (s *Service) Delete(ctx context.Context, actor ident.UserID, id string, version int64) error {
	if err := ident.VerifyOlderULID(id, s.clock()); err != nil {
		return errs.BadRequest(opDelete, "malformed_id", err)
	}

	current, err := s.store.GetByKey(ctx, id, schema.TypeStatus)
	if err != nil {
		return err
	}
	if author, _ := current.Attribute(schema.AttrUserID); author != actor.Key() {
		return errs.AccessDenied(opDelete, "not_the_author", nil)
	}
	if _, tombstoned := current.Attribute(schema.AttrDeletedProjectID); tombstoned {
		return errs.NotFound(opDelete, "already_deleted", nil)
	}

	now := s.clock().UTC()
	if _, err := s.store.ConditionalUpdate(ctx, id, schema.TypeStatus, version, func(attributes map[string]string) {
		attributes[schema.AttrDeletedProjectID] = attributes[schema.AttrProjectID]
		delete(attributes, schema.AttrProjectID)
		attributes[schema.AttrDeletedAt] = strconv.FormatInt(now.Unix(), 10)
	}); err != nil {
		return err
	}

	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindStatusDeleted, now, map[string]any{
		"id":     id,
		"userId": actor.Key(),
	})); err != nil {
		return errs.Internal(opDelete, "notify_failed", err)
	}
	return nil
}

// List returns the project's live statuses newest-first with their reactions
// attached in creation order. Requires project membership.
func (s *Service) List(ctx context.Context, actor ident.UserID, project ident.ProjectID, limit int) ([]Status, error) {
	member, err := s.roster.IsProjectMember(ctx, actor, project)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, errs.AccessDenied(opList, "not_a_member", nil)
	}
	return s.ListForProject(ctx, project, limit)
}

// ListForProject lists without an authorization check. Callers gate access
// themselves (sync share-token reads use this path).
func (s *Service) ListForProject(ctx context.Context, project ident.ProjectID, limit int) ([]Status, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	items, err := s.store.QueryByIndex(ctx, schema.IndexProjectStatuses, project.Key(), store.QueryOptions{
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}

	statuses := make([]Status, 0, len(items))
	for _, item := range items {
		status := s.toStatus(item)
		reactions, err := s.ListReactions(ctx, status.ID)
		if err != nil {
			return nil, err
		}
		status.Reactions = reactions
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Get loads one status by key, tombstoned or not.
func (s *Service) Get(ctx context.Context, id string) (Status, error) {
	item, err := s.store.GetByKey(ctx, id, schema.TypeStatus)
	if err != nil {
		return Status{}, err
	}
	return s.toStatus(item), nil
}

func (s *Service) toStatus(item store.Item) Status {
	projectKey, live := item.Attribute(schema.AttrProjectID)
	if !live {
		projectKey, _ = item.Attribute(schema.AttrDeletedProjectID)
	}
	rawAuthor, _ := item.Attribute(schema.AttrUserID)
	message, _ := item.Attribute(schema.AttrMessage)
	attribution, _ := item.Attribute(schema.AttrAttribution)

	status := Status{
		ID:          item.ID,
		Project:     ident.ProjectID(projectKey),
		Author:      ident.UserID(rawAuthor),
		Message:     message,
		Attribution: attribution,
		Version:     item.Version,
	}
	if raw, ok := item.Attribute(schema.AttrDeletedAt); ok {
		if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
			at := time.Unix(seconds, 0).UTC()
			status.DeletedAt = &at
		}
	}
	return status
}
