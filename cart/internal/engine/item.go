package engine

import (
	"github.com/google/uuid"

	"github.com/Alturino/storefront/internal/catalog"
)

// StoredItem is the persisted shape of a cart line. It never carries the
// presentation handle.
type StoredItem struct {
	InstanceID string         `json:"instanceId,omitempty" firestore:"instanceId"`
	ID         catalog.ID     `json:"id"                   firestore:"id"`
	Name       string         `json:"name"                 firestore:"name"`
	Price      string         `json:"price"                firestore:"price"`
	Rarity     catalog.Rarity `json:"rarity"               firestore:"rarity"`
	Status     catalog.Status `json:"status"               firestore:"status"`
}

func (s StoredItem) PriceLabel() string { return s.Price }

// DisplayItem is a StoredItem joined with its catalog icon. Icon is nil when
// the catalog no longer knows the id.
type DisplayItem struct {
	StoredItem
	Icon *catalog.Icon `json:"icon"`
}

// Record is the document written to either backend.
type Record struct {
	Items []StoredItem `json:"items" firestore:"items"`
}

func NewStoredItem(entry catalog.Entry) StoredItem {
	return StoredItem{
		InstanceID: uuid.NewString(),
		ID:         entry.ID,
		Name:       entry.Name,
		Price:      entry.Price,
		Rarity:     entry.Rarity,
		Status:     entry.Status,
	}
}

func Sanitize(items []DisplayItem) []StoredItem {
	out := make([]StoredItem, len(items))
	for i, item := range items {
		out[i] = item.StoredItem
	}
	return out
}

// Rehydrate joins icons back from the catalog. Lines persisted before
// instance ids existed get a fresh one.
func Rehydrate(items []StoredItem, c *catalog.Catalog) []DisplayItem {
	out := make([]DisplayItem, len(items))
	for i, item := range items {
		if item.InstanceID == "" {
			item.InstanceID = uuid.NewString()
		}
		out[i] = DisplayItem{StoredItem: item, Icon: c.IconOf(item.ID)}
	}
	return out
}
