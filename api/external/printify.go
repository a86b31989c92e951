package external

/* Shipping quotes from the Printify API */

import (
	"context"
	"fmt"
	"log"

	"storefront/cart"

	go_printify "github.com/ericdbishop/go-printify"
	"github.com/shopspring/decimal"
)

// PrintifyQuoter prices shipping through Printify. Printify quotes in
// cents; quotes are returned in currency units.
type PrintifyQuoter struct {
	client  *go_printify.Client
	shop_id int
	country string
}

func NewPrintifyQuoter(api_token string, shopID int, country string) *PrintifyQuoter {
	client := go_printify.NewClient(api_token)
	client.UserAgent = "Go"
	return &PrintifyQuoter{client: client, shop_id: shopID, country: country}
}

// SKU of a catalog product in the Printify shop.
func SKU(product_id int64) string {
	return fmt.Sprintf("RETRO_%d", product_id)
}

// Initializes an Order struct for use with go_printify. Printify wants one
// line per unit.
func formOrderShipping(items []cart.LineItem, postal_code string, country string) *go_printify.OrderSubmission {
	line_items := []*go_printify.LineItem{}

	for _, item := range items {
		for i := 0; i < item.Quantity; i++ {
			sku := SKU(item.ProductID)
			line_items = append(line_items, &go_printify.LineItem{
				Sku:      &sku,
				Quantity: 1,
			})
		}
	}

	return &go_printify.OrderSubmission{
		LineItems: line_items,
		AddressTo: &go_printify.AddressTo{
			Country: country,
			Zip:     postal_code,
		},
	}
}

func (q *PrintifyQuoter) ShippingQuote(ctx context.Context, postal_code string, items []cart.LineItem) (decimal.Decimal, error) {
	if len(items) == 0 {
		return decimal.Zero, fmt.Errorf("ShippingQuote: printify needs at least one item to quote")
	}

	order := formOrderShipping(items, postal_code, q.country)

	shipping_cost, err := q.client.CalculateShippingCosts(q.shop_id, order)
	if err != nil {
		log.Printf("ShippingQuote: Error calculating shipping cost: client.CalculateShippingCosts(): %v\n", err)
		return decimal.Zero, err
	}

	return decimal.New(int64(shipping_cost.Standard), -2), nil
}
