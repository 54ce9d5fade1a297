package store

import (
	"encoding/json"
	"time"
)

// Item is an immutable snapshot of one row in the entity collection. The
// primary key is (ID, Type); everything else lives in the schemaless
// attribute set. Callers never share mutable state with the store: attribute
// maps are copied on the way in and on the way out.
type Item struct {
	ID         string
	Type       string
	Version    int64
	Attributes map[string]string
	ExpiresAt  *time.Time
}

// Attribute returns the named attribute and whether it is present.
func (i Item) Attribute(name string) (string, bool) {
	value, ok := i.Attributes[name]
	return value, ok
}

// IndexDefinition declares a secondary index over the collection. An item
// appears in the index only while it matches the index's item type and
// carries both the partition and the sort attribute; queries return items
// ordered by the sort attribute value.
type IndexDefinition struct {
	Name               string
	PartitionAttribute string
	SortAttribute      string
	// ItemType restricts the index to one entity type. Attribute names are
	// shared across types in the single collection, so an unscoped index
	// would enroll every row that happens to carry the attribute pair.
	// Empty means unscoped.
	ItemType string
	// Projected optionally lists attributes materialized onto the index
	// entry. When set, queries answer from the projection without loading
	// the base row.
	Projected []string
}

// record is the persisted form of an Item.
type record struct {
	ID         string `gorm:"column:id;primaryKey;size:190;not null"`
	Type       string `gorm:"column:type;primaryKey;size:64;not null"`
	Version    int64  `gorm:"column:version;not null;default:1"`
	Attributes string `gorm:"column:attributes;type:text;not null"`
	ExpiresAt  *int64 `gorm:"column:expires_at;index:idx_records_expiry"`
}

func (record) TableName() string {
	return "entity_records"
}

// indexEntry is one derived row in a declared secondary index. Entries are
// maintained asynchronously from base-row writes.
type indexEntry struct {
	IndexName string `gorm:"column:index_name;primaryKey;size:64;not null;index:idx_entries_lookup,priority:1"`
	ItemID    string `gorm:"column:item_id;primaryKey;size:190;not null"`
	ItemType  string `gorm:"column:item_type;primaryKey;size:64;not null"`
	Partition string `gorm:"column:partition_value;size:190;not null;index:idx_entries_lookup,priority:2"`
	Sort      string `gorm:"column:sort_value;size:190;not null;index:idx_entries_lookup,priority:3"`
	Projected string `gorm:"column:projected;type:text;not null;default:''"`
}

func (indexEntry) TableName() string {
	return "entity_index_entries"
}

// Models lists the gorm models migrated for the store schema.
func Models() []any {
	return []any{&record{}, &indexEntry{}}
}

func encodeAttributes(attributes map[string]string) (string, error) {
	if attributes == nil {
		attributes = map[string]string{}
	}
	encoded, err := json.Marshal(attributes)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func decodeAttributes(encoded string) (map[string]string, error) {
	attributes := map[string]string{}
	if encoded == "" {
		return attributes, nil
	}
	if err := json.Unmarshal([]byte(encoded), &attributes); err != nil {
		return nil, err
	}
	return attributes, nil
}

func copyAttributes(attributes map[string]string) map[string]string {
	copied := make(map[string]string, len(attributes))
	for key, value := range attributes {
		copied[key] = value
	}
	return copied
}

func (r record) toItem() (Item, error) {
	attributes, err := decodeAttributes(r.Attributes)
	if err != nil {
		return Item{}, err
	}
	item := Item{
		ID:         r.ID,
		Type:       r.Type,
		Version:    r.Version,
		Attributes: attributes,
	}
	if r.ExpiresAt != nil {
		expiry := time.Unix(*r.ExpiresAt, 0).UTC()
		item.ExpiresAt = &expiry
	}
	return item, nil
}
