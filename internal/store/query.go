package store

import (
	"context"
	"errors"

	"github.com/teamstatus-dev/backend/internal/errs"
	"gorm.io/gorm"
)

// QueryOptions shape an index query. The zero value queries the whole
// partition in ascending sort order.
type QueryOptions struct {
	// RangeStart bounds the sort attribute from below, inclusive.
	RangeStart string
	// Descending reverses the sort order (newest-first for ULID sorts).
	Descending bool
	// Limit caps the result count; zero means unlimited.
	Limit int
}

// QueryByIndex returns items from a declared secondary index, ordered by the
// index's sort attribute. Index reads are eventually consistent with writes;
// callers that must observe their own writes use GetByKey or Barrier.
func (c *Client) QueryByIndex(ctx context.Context, indexName, partition string, opts QueryOptions) ([]Item, error) {
	definition, declared := c.indexes[indexName]
	if !declared {
		return nil, errs.BadRequest(opQueryByIndex, "undeclared_index", nil)
	}
	if partition == "" {
		return nil, errs.BadRequest(opQueryByIndex, "missing_partition", nil)
	}

	query := c.db.WithContext(ctx).
		Where("index_name = ? AND partition_value = ?", indexName, partition)
	if opts.RangeStart != "" {
		query = query.Where("sort_value >= ?", opts.RangeStart)
	}
	order := "sort_value ASC"
	if opts.Descending {
		order = "sort_value DESC"
	}
	query = query.Order(order)
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	var entries []indexEntry
	if err := query.Find(&entries).Error; err != nil {
		c.logError(opQueryByIndex, "entry_select_failed", err, Item{Type: indexName})
		return nil, errs.Internal(opQueryByIndex, "entry_select_failed", err)
	}

	now := c.now()
	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		if definition.ItemType != "" && entry.ItemType != definition.ItemType {
			// Stale entry from before the index was type-scoped.
			continue
		}
		if len(definition.Projected) > 0 {
			attributes, err := decodeAttributes(entry.Projected)
			if err != nil {
				return nil, errs.Internal(opQueryByIndex, "projection_decode_failed", err)
			}
			items = append(items, Item{ID: entry.ItemID, Type: entry.ItemType, Attributes: attributes})
			continue
		}

		var row record
		err := c.db.WithContext(ctx).
			Where("id = ? AND type = ?", entry.ItemID, entry.ItemType).
			Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Entry outlived its base row; the worker reconciles later.
			continue
		}
		if err != nil {
			c.logError(opQueryByIndex, "item_select_failed", err, Item{ID: entry.ItemID, Type: entry.ItemType})
			return nil, errs.Internal(opQueryByIndex, "item_select_failed", err)
		}
		if c.expired(row.ExpiresAt, now) {
			continue
		}
		item, err := row.toItem()
		if err != nil {
			return nil, errs.Internal(opQueryByIndex, "decode_failed", err)
		}
		items = append(items, item)
	}
	return items, nil
}
