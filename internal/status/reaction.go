package status

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/teamstatus-dev/backend/internal/bus"
	"github.com/teamstatus-dev/backend/internal/errs"
	"github.com/teamstatus-dev/backend/internal/ident"
	"github.com/teamstatus-dev/backend/internal/schema"
	"github.com/teamstatus-dev/backend/internal/store"
)

const (
	opReact          = "status.react"
	opDeleteReaction = "status.delete_reaction"
)

// Reaction is an immutable snapshot of one reaction on a status.
type Reaction struct {
	ID          string
	Status      string
	Author      ident.UserID
	Emoji       string
	Role        string
	Description string
	Version     int64
	DeletedAt   *time.Time
}

// React attaches a reaction to a live status. The status author and every
// member of the status's project may react.
func (s *Service) React(ctx context.Context, actor ident.UserID, statusID, emoji, role, description string) (Reaction, error) {
	if strings.TrimSpace(emoji) == "" {
		return Reaction{}, errs.BadRequest(opReact, "empty_emoji", nil)
	}
	now := s.clock().UTC()
	if err := ident.VerifyOlderULID(statusID, now); err != nil {
		return Reaction{}, errs.BadRequest(opReact, "malformed_status_id", err)
	}

	current, err := s.store.GetByKey(ctx, statusID, schema.TypeStatus)
	if err != nil {
		return Reaction{}, err
	}
	projectKey, live := current.Attribute(schema.AttrProjectID)
	if !live {
		return Reaction{}, errs.NotFound(opReact, "status_deleted", nil)
	}

	author, _ := current.Attribute(schema.AttrUserID)
	if author != actor.Key() {
		projectID, err := ident.NewProjectID(projectKey)
		if err != nil {
			return Reaction{}, errs.Internal(opReact, "corrupt_status", err)
		}
		member, err := s.roster.IsProjectMember(ctx, actor, projectID)
		if err != nil {
			return Reaction{}, err
		}
		if !member {
			return Reaction{}, errs.AccessDenied(opReact, "not_author_or_member", nil)
		}
	}

	reactionID, err := s.ids.NewID()
	if err != nil {
		return Reaction{}, errs.Internal(opReact, "id_generation_failed", err)
	}
	attributes := map[string]string{
		schema.AttrID:       reactionID,
		schema.AttrStatusID: statusID,
		schema.AttrUserID:   actor.Key(),
		schema.AttrEmoji:    strings.TrimSpace(emoji),
	}
	if trimmed := strings.TrimSpace(role); trimmed != "" {
		attributes[schema.AttrRole] = trimmed
	}
	if trimmed := strings.TrimSpace(description); trimmed != "" {
		attributes[schema.AttrDescription] = trimmed
	}
	if err := s.store.PutIfAbsent(ctx, store.Item{
		ID:         reactionID,
		Type:       schema.TypeReaction,
		Attributes: attributes,
	}); err != nil {
		return Reaction{}, err
	}

	created := Reaction{
		ID:          reactionID,
		Status:      statusID,
		Author:      actor,
		Emoji:       strings.TrimSpace(emoji),
		Role:        strings.TrimSpace(role),
		Description: strings.TrimSpace(description),
		Version:     1,
	}
	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindReactionCreated, now, map[string]any{
		"id":       reactionID,
		"statusId": statusID,
		"userId":   actor.Key(),
		"emoji":    created.Emoji,
	})); err != nil {
		return Reaction{}, errs.Internal(opReact, "notify_failed", err)
	}
	return created, nil
}

// DeleteReaction tombstones a reaction the same way statuses are deleted:
// the status reference moves to the non-indexed deleted attribute.
// Author-only, version-guarded.
func (s *Service) DeleteReaction(ctx context.Context, actor ident.UserID, reactionID string, version int64) error {
	if err := ident.VerifyOlderULID(reactionID, s.clock()); err != nil {
		return errs.BadRequest(opDeleteReaction, "malformed_id", err)
	}

	current, err := s.store.GetByKey(ctx, reactionID, schema.TypeReaction)
	if err != nil {
		return err
	}
	if author, _ := current.Attribute(schema.AttrUserID); author != actor.Key() {
		return errs.AccessDenied(opDeleteReaction, "not_the_author", nil)
	}
	if _, tombstoned := current.Attribute(schema.AttrDeletedStatusID); tombstoned {
		return errs.NotFound(opDeleteReaction, "already_deleted", nil)
	}

	now := s.clock().UTC()
	if _, err := s.store.ConditionalUpdate(ctx, reactionID, schema.TypeReaction, version, func(attributes map[string]string) {
		attributes[schema.AttrDeletedStatusID] = attributes[schema.AttrStatusID]
		delete(attributes, schema.AttrStatusID)
		attributes[schema.AttrDeletedAt] = strconv.FormatInt(now.Unix(), 10)
	}); err != nil {
		return err
	}

	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindReactionDeleted, now, map[string]any{
		"id":     reactionID,
		"userId": actor.Key(),
	})); err != nil {
		return errs.Internal(opDeleteReaction, "notify_failed", err)
	}
	return nil
}

// ListReactions returns the live reactions on a status in creation order.
func (s *Service) ListReactions(ctx context.Context, statusID string) ([]Reaction, error) {
	items, err := s.store.QueryByIndex(ctx, schema.IndexStatusReactions, statusID, store.QueryOptions{})
	if err != nil {
		return nil, err
	}

	reactions := make([]Reaction, 0, len(items))
	for _, item := range items {
		rawAuthor, _ := item.Attribute(schema.AttrUserID)
		emoji, _ := item.Attribute(schema.AttrEmoji)
		role, _ := item.Attribute(schema.AttrRole)
		description, _ := item.Attribute(schema.AttrDescription)
		reactions = append(reactions, Reaction{
			ID:          item.ID,
			Status:      statusID,
			Author:      ident.UserID(rawAuthor),
			Emoji:       emoji,
			Role:        role,
			Description: description,
			Version:     item.Version,
		})
	}
	return reactions, nil
}
