package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected ID
		wantErr  bool
	}{
		{name: "given number should decode as string id", input: `7`, expected: ID("7")},
		{name: "given string should decode as is", input: `"abc-1"`, expected: ID("abc-1")},
		{name: "given object should fail", input: `{}`, wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var id ID
			err := json.Unmarshal([]byte(test.input), &id)
			if test.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, id)
		})
	}
}

func TestInventory(t *testing.T) {
	inv := Inventory()
	assert.Equal(t, 12, inv.Len())

	entry, ok := inv.Find(IntID(2))
	require.True(t, ok)
	assert.Equal(t, "25,000", entry.Price)
	assert.True(t, entry.Purchasable())

	soldOut, ok := inv.Find(IntID(5))
	require.True(t, ok)
	assert.False(t, soldOut.Purchasable())

	_, ok = inv.Find(ID("404"))
	assert.False(t, ok)
	assert.Nil(t, inv.IconOf(ID("404")))
}

func TestLookupsReturnCopies(t *testing.T) {
	tests := []struct {
		name string
		icon func(c *Catalog) *Icon
	}{
		{name: "given IconOf should not share the icon", icon: func(c *Catalog) *Icon { return c.IconOf(IntID(1)) }},
		{name: "given Find should not share the icon", icon: func(c *Catalog) *Icon {
			e, _ := c.Find(IntID(1))
			return e.Icon
		}},
		{name: "given Entries should not share the icon", icon: func(c *Catalog) *Icon { return c.Entries()[0].Icon }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			inv := Inventory()
			icon := test.icon(inv)
			require.NotNil(t, icon)
			icon.Name = "mutated"

			assert.Equal(t, "flame", inv.IconOf(IntID(1)).Name)
			e, _ := inv.Find(IntID(1))
			assert.Equal(t, "flame", e.Icon.Name)
			assert.Equal(t, "flame", inv.Entries()[0].Icon.Name)
		})
	}
}

func TestNewSkipsDuplicateIDs(t *testing.T) {
	c := New(Entry{ID: "1", Name: "first"}, Entry{ID: " 1 ", Name: "second"})
	assert.Equal(t, 1, c.Len())
	e, _ := c.Find("1")
	assert.Equal(t, "first", e.Name)
}
