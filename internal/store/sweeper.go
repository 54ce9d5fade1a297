package store

import (
	"time"

	"go.uber.org/zap"
)

// runSweeper reaps expired items in the background. Expiry timing is
// best-effort; reads filter expired rows regardless of sweeper progress.
func (c *Client) runSweeper(interval time.Duration) {
	defer c.sweepWG.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweepExpired()
		}
	}
}

func (c *Client) sweepExpired() {
	now := c.now().Unix()

	var expired []record
	if err := c.db.
		Select("id", "type").
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Find(&expired).Error; err != nil {
		c.logger.Error("ttl sweep select failed", zap.Error(err))
		return
	}
	if len(expired) == 0 {
		return
	}

	for _, row := range expired {
		if err := c.db.Where("id = ? AND type = ?", row.ID, row.Type).
			Delete(&record{}).Error; err != nil {
			c.logger.Error("ttl sweep delete failed",
				zap.String("item_id", row.ID),
				zap.String("item_type", row.Type),
				zap.Error(err))
			continue
		}
		// Orphaned index entries are cleaned on the worker like any delete.
		if err := c.enqueue(indexJob{remove: &itemKey{ID: row.ID, Type: row.Type}}); err != nil {
			c.logger.Error("ttl sweep index cleanup enqueue failed",
				zap.String("item_id", row.ID),
				zap.String("item_type", row.Type),
				zap.Error(err))
			return
		}
	}

	c.logger.Debug("ttl sweep completed", zap.Int("reaped", len(expired)))
}
