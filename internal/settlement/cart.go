package settlement

import (
	"github.com/shopspring/decimal"

	"motocadena/backend/internal/domain"
)

// Cart holds the in-progress counter selection. Entries are keyed by
// (catalog id, kind); append order is preserved for display.
type Cart struct {
	items []domain.CartItem
}

// Add increments the quantity of an existing entry or appends a new one with
// quantity 1. The unit price is snapshotted from the catalog line.
func (c *Cart) Add(line domain.CatalogLine) {
	for i := range c.items {
		if c.items[i].CatalogID == line.ID && c.items[i].Kind == line.Kind {
			c.items[i].Quantity++
			return
		}
	}
	c.items = append(c.items, domain.CartItem{
		CatalogID: line.ID,
		Kind:      line.Kind,
		Name:      line.Name,
		UnitPrice: line.UnitPrice,
		Quantity:  1,
	})
}

// Remove deletes the matching entry. Absent entries are a no-op.
func (c *Cart) Remove(catalogID string, kind domain.ItemKind) {
	kept := c.items[:0]
	for _, item := range c.items {
		if item.CatalogID == catalogID && item.Kind == kind {
			continue
		}
		kept = append(kept, item)
	}
	c.items = kept
}

// SetQuantity replaces the quantity of the matching entry. A quantity of zero
// or less removes it.
func (c *Cart) SetQuantity(catalogID string, kind domain.ItemKind, quantity int) {
	if quantity <= 0 {
		c.Remove(catalogID, kind)
		return
	}
	for i := range c.items {
		if c.items[i].CatalogID == catalogID && c.items[i].Kind == kind {
			c.items[i].Quantity = quantity
			return
		}
	}
}

// Subtotal is the base-currency sum of unit price times quantity.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// Items returns a copy of the cart lines in display order.
func (c *Cart) Items() []domain.CartItem {
	items := make([]domain.CartItem, len(c.items))
	copy(items, c.items)
	return items
}

func (c *Cart) Len() int {
	return len(c.items)
}

func (c *Cart) Clear() {
	c.items = nil
}
