package cart

import (
	"database/sql"

	"github.com/shopspring/decimal"
)

// ShoppingCart is the database record that ties a session to its items.
type ShoppingCart struct {
	ID         int64
	SessionID  string
	PaymentRef string
}

type LineItem struct {
	ProductID int64           `json:"productId"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`
}

// Subtotal is UnitPrice * Quantity.
func (item LineItem) Subtotal() decimal.Decimal {
	return item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
}

/*
Cart holds at most one LineItem per product id. Items keep the order in
which their product was first added. A product that is not in the cart has
no entry at all; quantities are always >= 1.
*/
type Cart struct {
	order []int64
	items map[int64]*LineItem
}

func New() *Cart {
	return &Cart{items: map[int64]*LineItem{}}
}

// AddItem increments the quantity of an existing line or appends a new one
// with quantity 1. Title, price and image are only captured on the first add.
func (c *Cart) AddItem(productID int64, title string, unitPrice decimal.Decimal, image string) {
	if item, ok := c.items[productID]; ok {
		item.Quantity++
		return
	}
	c.items[productID] = &LineItem{
		ProductID: productID,
		Title:     title,
		UnitPrice: unitPrice,
		Quantity:  1,
		Image:     image,
	}
	c.order = append(c.order, productID)
}

// SetQuantity sets an absolute quantity. Anything <= 0 removes the line.
func (c *Cart) SetQuantity(productID int64, quantity int) {
	if quantity <= 0 {
		c.RemoveItem(productID)
		return
	}
	if item, ok := c.items[productID]; ok {
		item.Quantity = quantity
	}
}

func (c *Cart) RemoveItem(productID int64) {
	if _, ok := c.items[productID]; !ok {
		return
	}
	delete(c.items, productID)
	for i, id := range c.order {
		if id == productID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Cart) Clear() {
	c.order = nil
	c.items = map[int64]*LineItem{}
}

// Total is recomputed on every call.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, id := range c.order {
		total = total.Add(c.items[id].Subtotal())
	}
	return total
}

// ItemCount is the sum of all quantities, used for the cart badge.
func (c *Cart) ItemCount() int {
	count := 0
	for _, item := range c.items {
		count += item.Quantity
	}
	return count
}

// Len is the number of distinct lines.
func (c *Cart) Len() int {
	return len(c.order)
}

func (c *Cart) Get(productID int64) (LineItem, bool) {
	item, ok := c.items[productID]
	if !ok {
		return LineItem{}, false
	}
	return *item, true
}

// Items returns copies of the line items in display order.
func (c *Cart) Items() []LineItem {
	items := make([]LineItem, 0, len(c.order))
	for _, id := range c.order {
		items = append(items, *c.items[id])
	}
	return items
}

type SQLiteDatabase struct {
	db *sql.DB
}
