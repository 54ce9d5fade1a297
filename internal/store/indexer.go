package store

import (
	"encoding/json"

	"go.uber.org/zap"
)

type itemKey struct {
	ID   string
	Type string
}

// indexJob is one unit of secondary-index maintenance. Exactly one field is
// set: sync re-derives all entries for an item snapshot, remove drops every
// entry for a deleted item, barrier signals queue drain.
type indexJob struct {
	sync    *record
	remove  *itemKey
	barrier chan struct{}
}

func (c *Client) runIndexWorker() {
	defer c.workerWG.Done()
	for job := range c.jobs {
		switch {
		case job.barrier != nil:
			close(job.barrier)
		case job.sync != nil:
			c.applySync(*job.sync)
		case job.remove != nil:
			c.applyRemove(*job.remove)
		}
	}
}

func (c *Client) applySync(row record) {
	attributes, err := decodeAttributes(row.Attributes)
	if err != nil {
		c.logger.Error("index sync skipped, attributes undecodable",
			zap.String("item_id", row.ID),
			zap.String("item_type", row.Type),
			zap.Error(err))
		return
	}

	entries := make([]indexEntry, 0, len(c.indexes))
	for _, definition := range c.indexes {
		if definition.ItemType != "" && definition.ItemType != row.Type {
			continue
		}
		partition, hasPartition := attributes[definition.PartitionAttribute]
		sort, hasSort := attributes[definition.SortAttribute]
		if !hasPartition || !hasSort {
			continue
		}
		entry := indexEntry{
			IndexName: definition.Name,
			ItemID:    row.ID,
			ItemType:  row.Type,
			Partition: partition,
			Sort:      sort,
		}
		if len(definition.Projected) > 0 {
			projected := make(map[string]string, len(definition.Projected))
			for _, name := range definition.Projected {
				if value, ok := attributes[name]; ok {
					projected[name] = value
				}
			}
			encoded, err := json.Marshal(projected)
			if err != nil {
				c.logger.Error("index projection encoding failed",
					zap.String("index", definition.Name),
					zap.String("item_id", row.ID),
					zap.Error(err))
				continue
			}
			entry.Projected = string(encoded)
		}
		entries = append(entries, entry)
	}

	if err := c.db.Where("item_id = ? AND item_type = ?", row.ID, row.Type).
		Delete(&indexEntry{}).Error; err != nil {
		c.logger.Error("index entry cleanup failed",
			zap.String("item_id", row.ID),
			zap.String("item_type", row.Type),
			zap.Error(err))
		return
	}
	if len(entries) == 0 {
		return
	}
	if err := c.db.Create(&entries).Error; err != nil {
		c.logger.Error("index entry insert failed",
			zap.String("item_id", row.ID),
			zap.String("item_type", row.Type),
			zap.Error(err))
	}
}

func (c *Client) applyRemove(key itemKey) {
	if err := c.db.Where("item_id = ? AND item_type = ?", key.ID, key.Type).
		Delete(&indexEntry{}).Error; err != nil {
		c.logger.Error("index entry removal failed",
			zap.String("item_id", key.ID),
			zap.String("item_type", key.Type),
			zap.Error(err))
	}
}
