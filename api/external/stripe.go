package external

/* Stripe Checkout as the order service: the buyer is sent to a hosted
 * Stripe payment page instead of the store's own order endpoint */

import (
	"context"
	"fmt"
	"log"
	"strings"

	"storefront/catalog"
	"storefront/checkout"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v74"
	checkoutsession "github.com/stripe/stripe-go/v74/checkout/session"
)

// ProductLookup must not answer from a cache: its prices are what the buyer
// is charged.
type ProductLookup interface {
	CurrentProduct(ctx context.Context, id int64) (*catalog.Product, error)
}

type PaymentRefStore interface {
	UpdatePaymentRef(session_id string, payment_ref string) error
}

type StripeCheckout struct {
	products   ProductLookup
	refs       PaymentRefStore
	currency   string
	successURL string
	cancelURL  string

	newSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewStripeCheckout(secret string, products ProductLookup, refs PaymentRefStore, currency string, siteURL string) *StripeCheckout {
	stripe.Key = secret
	siteURL = strings.TrimRight(siteURL, "/")
	return &StripeCheckout{
		products:   products,
		refs:       refs,
		currency:   currency,
		successURL: siteURL + "/api/checkout/success",
		cancelURL:  siteURL + "/comprar",
		newSession: checkoutsession.New,
	}
}

// toMinorUnits converts an amount to the integer cents Stripe expects.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// formSessionParams prices every line from the catalog, never from the cart.
func (s *StripeCheckout) formSessionParams(ctx context.Context, order checkout.Order) (*stripe.CheckoutSessionParams, error) {
	line_items := []*stripe.CheckoutSessionLineItemParams{}

	for _, item := range order.Items {
		product, err := s.products.CurrentProduct(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("formSessionParams: product %d: %w", item.ProductID, err)
		}

		product_data := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(product.Name),
		}
		if image := product.Image(); strings.HasPrefix(image, "http") {
			product_data.Images = []*string{stripe.String(image)}
		}

		line_items = append(line_items, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(s.currency),
				ProductData: product_data,
				UnitAmount:  stripe.Int64(toMinorUnits(product.Price)),
			},
			Quantity: stripe.Int64(int64(item.Quantity)),
		})
	}

	if order.ShippingQuote.IsPositive() {
		line_items = append(line_items, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(s.currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Envío a " + order.PostalCode),
				},
				UnitAmount: stripe.Int64(toMinorUnits(order.ShippingQuote)),
			},
			Quantity: stripe.Int64(1),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:     line_items,
		CustomerEmail: stripe.String(order.Email),
		SuccessURL:    stripe.String(s.successURL),
		CancelURL:     stripe.String(s.cancelURL),
	}
	params.AddMetadata("postal_code", order.PostalCode)
	key := order.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	params.SetIdempotencyKey(key)

	return params, nil
}

func (s *StripeCheckout) CreateOrder(ctx context.Context, order checkout.Order) (string, error) {
	params, err := s.formSessionParams(ctx, order)
	if err != nil {
		return "", err
	}

	cs, err := s.newSession(params)
	if err != nil {
		log.Printf("CreateOrder: checkoutsession.New: %v\n", err)
		return "", err
	}

	if err := s.refs.UpdatePaymentRef(order.SessionID, cs.ID); err != nil {
		log.Printf("CreateOrder: could not store checkout session %s for cart: %v\n", cs.ID, err)
		return "", err
	}

	log.Printf("Checkout session %s created, redirecting buyer\n", cs.ID)
	return cs.URL, nil
}
