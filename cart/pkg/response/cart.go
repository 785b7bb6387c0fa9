package response

import (
	"time"

	"github.com/shopspring/decimal"
)

type Item struct {
	InstanceID string `json:"instance_id"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	Price      string `json:"price"`
	Rarity     string `json:"rarity"`
	Status     string `json:"status"`
	Icon       string `json:"icon,omitempty"`
}

type Cart struct {
	Identity   string    `json:"identity"`
	Items      []Item    `json:"items"`
	Total      int64     `json:"total"`
	SyncState  string    `json:"sync_state"`
	LastUpdate time.Time `json:"last_update"`
}

type CatalogEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Rarity      string `json:"rarity"`
	Price       string `json:"price"`
	Status      string `json:"status"`
	Description string `json:"description"`
	Icon        string `json:"icon,omitempty"`
}

type Receipt struct {
	ID         string          `json:"id"`
	Identity   string          `json:"identity"`
	Items      []Item          `json:"items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	PaidAt     time.Time       `json:"paid_at"`
}
