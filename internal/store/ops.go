package store

import (
	"context"
	"errors"

	"github.com/teamstatus-dev/backend/internal/errs"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PutIfAbsent inserts the item only if its primary key is not already
// present, with version 1. A duplicate key yields errs.KindConflict.
func (c *Client) PutIfAbsent(ctx context.Context, item Item) error {
	if item.ID == "" || item.Type == "" {
		return errs.BadRequest(opPutIfAbsent, "missing_key", nil)
	}

	row, err := c.toRecord(item, 1)
	if err != nil {
		return errs.Internal(opPutIfAbsent, "encode_failed", err)
	}

	result := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if result.Error != nil {
		c.logError(opPutIfAbsent, "insert_failed", result.Error, item)
		return errs.Internal(opPutIfAbsent, "insert_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.Conflict(opPutIfAbsent, "already_exists", nil)
	}

	return c.enqueueSync(opPutIfAbsent, row)
}

// Put writes the item unconditionally, replacing any previous row with the
// same primary key. The stored version resets to 1; entities that need the
// optimistic-concurrency protocol must use PutIfAbsent and
// ConditionalUpdate instead.
func (c *Client) Put(ctx context.Context, item Item) error {
	if item.ID == "" || item.Type == "" {
		return errs.BadRequest(opPut, "missing_key", nil)
	}

	row, err := c.toRecord(item, 1)
	if err != nil {
		return errs.Internal(opPut, "encode_failed", err)
	}

	result := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}, {Name: "type"}},
			UpdateAll: true,
		}).
		Create(&row)
	if result.Error != nil {
		c.logError(opPut, "upsert_failed", result.Error, item)
		return errs.Internal(opPut, "upsert_failed", result.Error)
	}

	return c.enqueueSync(opPut, row)
}

// GetByKey reads one item by primary key. Expired items report
// errs.KindNotFound even before the sweeper reaps them.
func (c *Client) GetByKey(ctx context.Context, id, entityType string) (Item, error) {
	if id == "" || entityType == "" {
		return Item{}, errs.BadRequest(opGetByKey, "missing_key", nil)
	}

	var row record
	err := c.db.WithContext(ctx).
		Where("id = ? AND type = ?", id, entityType).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Item{}, errs.NotFound(opGetByKey, "absent", nil)
	}
	if err != nil {
		c.logError(opGetByKey, "select_failed", err, Item{ID: id, Type: entityType})
		return Item{}, errs.Internal(opGetByKey, "select_failed", err)
	}
	if c.expired(row.ExpiresAt, c.now()) {
		return Item{}, errs.NotFound(opGetByKey, "expired", nil)
	}

	item, err := row.toItem()
	if err != nil {
		return Item{}, errs.Internal(opGetByKey, "decode_failed", err)
	}
	return item, nil
}

// ConditionalUpdate applies the mutation to the item's attribute set only if
// the stored version still equals expected, atomically bumping the version to
// expected+1. A stale version yields errs.KindConflict; an absent row yields
// errs.KindNotFound. The mutation may add, change, rename, or remove
// attributes.
func (c *Client) ConditionalUpdate(ctx context.Context, id, entityType string, expected int64, mutate func(attributes map[string]string)) (Item, error) {
	if id == "" || entityType == "" {
		return Item{}, errs.BadRequest(opConditionalUpdate, "missing_key", nil)
	}
	if expected < 1 {
		return Item{}, errs.BadRequest(opConditionalUpdate, "invalid_version", nil)
	}
	if mutate == nil {
		return Item{}, errs.BadRequest(opConditionalUpdate, "missing_mutation", nil)
	}

	var updated record
	txErr := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row record
		err := tx.Where("id = ? AND type = ?", id, entityType).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.NotFound(opConditionalUpdate, "absent", nil)
		}
		if err != nil {
			return errs.Internal(opConditionalUpdate, "select_failed", err)
		}
		if c.expired(row.ExpiresAt, c.now()) {
			return errs.NotFound(opConditionalUpdate, "expired", nil)
		}
		if row.Version != expected {
			return errs.Conflict(opConditionalUpdate, "stale_version", nil)
		}

		attributes, err := decodeAttributes(row.Attributes)
		if err != nil {
			return errs.Internal(opConditionalUpdate, "decode_failed", err)
		}
		mutate(attributes)
		encoded, err := encodeAttributes(attributes)
		if err != nil {
			return errs.Internal(opConditionalUpdate, "encode_failed", err)
		}

		result := tx.Model(&record{}).
			Where("id = ? AND type = ? AND version = ?", id, entityType, expected).
			Updates(map[string]any{
				"attributes": encoded,
				"version":    expected + 1,
			})
		if result.Error != nil {
			return errs.Internal(opConditionalUpdate, "update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return errs.Conflict(opConditionalUpdate, "stale_version", nil)
		}

		updated = row
		updated.Version = expected + 1
		updated.Attributes = encoded
		return nil
	})
	if txErr != nil {
		var typed *errs.Error
		if !errors.As(txErr, &typed) {
			c.logError(opConditionalUpdate, "transaction_failed", txErr, Item{ID: id, Type: entityType})
			return Item{}, errs.Internal(opConditionalUpdate, "transaction_failed", txErr)
		}
		return Item{}, txErr
	}

	if err := c.enqueueSync(opConditionalUpdate, updated); err != nil {
		return Item{}, err
	}
	item, err := updated.toItem()
	if err != nil {
		return Item{}, errs.Internal(opConditionalUpdate, "decode_failed", err)
	}
	return item, nil
}

// ConditionalDelete removes the row only if the stored version still equals
// expected. A stale version yields errs.KindConflict; an absent row yields
// errs.KindNotFound.
func (c *Client) ConditionalDelete(ctx context.Context, id, entityType string, expected int64) error {
	if id == "" || entityType == "" {
		return errs.BadRequest(opConditionalDelete, "missing_key", nil)
	}
	if expected < 1 {
		return errs.BadRequest(opConditionalDelete, "invalid_version", nil)
	}

	txErr := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND type = ? AND version = ?", id, entityType, expected).
			Delete(&record{})
		if result.Error != nil {
			return errs.Internal(opConditionalDelete, "delete_failed", result.Error)
		}
		if result.RowsAffected > 0 {
			return nil
		}

		var row record
		err := tx.Where("id = ? AND type = ?", id, entityType).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.NotFound(opConditionalDelete, "absent", nil)
		}
		if err != nil {
			return errs.Internal(opConditionalDelete, "select_failed", err)
		}
		return errs.Conflict(opConditionalDelete, "stale_version", nil)
	})
	if txErr != nil {
		var typed *errs.Error
		if !errors.As(txErr, &typed) {
			c.logError(opConditionalDelete, "transaction_failed", txErr, Item{ID: id, Type: entityType})
			return errs.Internal(opConditionalDelete, "transaction_failed", txErr)
		}
		return txErr
	}

	return c.enqueueRemove(opConditionalDelete, id, entityType)
}

func (c *Client) toRecord(item Item, version int64) (record, error) {
	encoded, err := encodeAttributes(item.Attributes)
	if err != nil {
		return record{}, err
	}
	row := record{
		ID:         item.ID,
		Type:       item.Type,
		Version:    version,
		Attributes: encoded,
	}
	if item.ExpiresAt != nil {
		expiry := item.ExpiresAt.UTC().Unix()
		row.ExpiresAt = &expiry
	}
	return row, nil
}

func (c *Client) enqueueSync(operation string, row record) error {
	if err := c.enqueue(indexJob{sync: &row}); err != nil {
		c.logError(operation, "index_enqueue_failed", err, Item{ID: row.ID, Type: row.Type})
		return errs.Internal(operation, "index_enqueue_failed", err)
	}
	return nil
}

func (c *Client) enqueueRemove(operation, id, entityType string) error {
	if err := c.enqueue(indexJob{remove: &itemKey{ID: id, Type: entityType}}); err != nil {
		c.logError(operation, "index_enqueue_failed", err, Item{ID: id, Type: entityType})
		return errs.Internal(operation, "index_enqueue_failed", err)
	}
	return nil
}

func (c *Client) logError(operation, reason string, err error, item Item) {
	c.logger.Error("store operation failed",
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.String("item_id", item.ID),
		zap.String("item_type", item.Type),
		zap.Error(err))
}
