package models

import "time"

type CollectionItem struct {
	ItemKey        string    `json:"key"`
	Quantity       int       `json:"qty"`
	UnitPriceMinor int64     `json:"price"`
	UpdatedAt      time.Time `json:"ts"`
}

// Equal compares items by value; UpdatedAt is compared as an instant.
func (c CollectionItem) Equal(other CollectionItem) bool {
	return c.ItemKey == other.ItemKey &&
		c.Quantity == other.Quantity &&
		c.UnitPriceMinor == other.UnitPriceMinor &&
		c.UpdatedAt.Equal(other.UpdatedAt)
}

// Collection maps item keys to items. Iteration order is not defined.
type Collection map[string]CollectionItem

func (c Collection) Equal(other Collection) bool {
	if len(c) != len(other) {
		return false
	}
	for key, item := range c {
		if otherItem, found := other[key]; !found || !item.Equal(otherItem) {
			return false
		}
	}
	return true
}

type TieBreak uint8

const (
	TieBreak_Local TieBreak = iota
	TieBreak_Remote
)
