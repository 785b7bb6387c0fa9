// Package catalog is the read-only item table the storefront sells from.
// Entries are never mutated after construction; lookups return copies.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusSoldOut   Status = "sold_out"
	StatusPreOrder  Status = "pre_order"
)

type Category string

const (
	CategoryWeapons   Category = "WEAPONS"
	CategoryCyberware Category = "CYBERWARE"
)

// PriceUndisclosed marks an item whose price is not public yet.
const PriceUndisclosed = "???"

// ID identifies a catalog entry. Older records stored ids as json numbers,
// so both numbers and strings decode.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("failed decoding catalog id=%s with error=%w", string(b), err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

func IntID(n int) ID { return ID(strconv.Itoa(n)) }

// Icon is the presentation handle of an entry. It only exists in memory and
// is joined back by id whenever a cart is read.
type Icon struct {
	Name  string `json:"name"`
	Glyph string `json:"glyph"`
}

type Entry struct {
	ID          ID       `json:"id"`
	Name        string   `json:"name"`
	Category    Category `json:"category"`
	Rarity      Rarity   `json:"rarity"`
	Price       string   `json:"price"`
	Status      Status   `json:"status"`
	Description string   `json:"description"`
	Icon        *Icon    `json:"icon,omitempty"`
}

func (e Entry) Purchasable() bool { return e.Status != StatusSoldOut }

func (e Entry) clone() Entry {
	if e.Icon != nil {
		icon := *e.Icon
		e.Icon = &icon
	}
	return e
}

type Catalog struct {
	entries []Entry
	byID    map[ID]int
}

func New(entries ...Entry) *Catalog {
	c := &Catalog{
		entries: make([]Entry, 0, len(entries)),
		byID:    make(map[ID]int, len(entries)),
	}
	for _, e := range entries {
		id := ID(strings.TrimSpace(string(e.ID)))
		if _, ok := c.byID[id]; ok {
			continue
		}
		e.ID = id
		c.byID[id] = len(c.entries)
		c.entries = append(c.entries, e.clone())
	}
	return c
}

func (c *Catalog) Find(id ID) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	i, ok := c.byID[ID(strings.TrimSpace(string(id)))]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i].clone(), true
}

// IconOf returns a fresh copy of the icon for id, or nil when the id is not
// in the table anymore.
func (c *Catalog) IconOf(id ID) *Icon {
	e, ok := c.Find(id)
	if !ok {
		return nil
	}
	return e.Icon
}

func (c *Catalog) Entries() []Entry {
	if c == nil {
		return nil
	}
	out := make([]Entry, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.clone()
	}
	return out
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}
