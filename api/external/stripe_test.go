package external

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storefront/catalog"
	"storefront/checkout"
	"storefront/error_messages"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"
)

type fakeProducts map[int64]*catalog.Product

func (f fakeProducts) CurrentProduct(ctx context.Context, id int64) (*catalog.Product, error) {
	p, ok := f[id]
	if !ok {
		return nil, error_messages.ErrNotExists
	}
	return p, nil
}

type fakeRefs struct {
	refs map[string]string
	err  error
}

func (f *fakeRefs) UpdatePaymentRef(session_id string, payment_ref string) error {
	if f.err != nil {
		return f.err
	}
	f.refs[session_id] = payment_ref
	return nil
}

func newTestStripe(refs *fakeRefs) *StripeCheckout {
	products := fakeProducts{
		1: {ID: 1, Name: "Halo 2", Price: decimal.RequireFromString("15000.50"), Images: catalog.Single("https://img.example.com/halo.png")},
		2: {ID: 2, Name: "Ico", Price: decimal.NewFromInt(9000), Images: catalog.Single("")},
	}
	return NewStripeCheckout("sk_test", products, refs, "ars", "https://retro.example.com/")
}

func testOrder() checkout.Order {
	return checkout.Order{
		SessionID:     "sess",
		Items:         []checkout.OrderItem{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}},
		Email:         "player@example.com",
		PostalCode:    "1406",
		ShippingQuote: decimal.NewFromInt(2500),
	}
}

func TestToMinorUnits(t *testing.T) {
	assert.EqualValues(t, 1500050, toMinorUnits(decimal.RequireFromString("15000.50")))
	assert.EqualValues(t, 100, toMinorUnits(decimal.NewFromInt(1)))
	assert.EqualValues(t, 13, toMinorUnits(decimal.RequireFromString("0.125")))
}

func TestFormSessionParams_PricesFromCatalog(t *testing.T) {
	s := newTestStripe(&fakeRefs{refs: map[string]string{}})

	params, err := s.formSessionParams(context.Background(), testOrder())
	require.NoError(t, err)

	require.Len(t, params.LineItems, 3)
	halo := params.LineItems[0]
	assert.Equal(t, "Halo 2", *halo.PriceData.ProductData.Name)
	assert.EqualValues(t, 1500050, *halo.PriceData.UnitAmount)
	assert.EqualValues(t, 2, *halo.Quantity)
	assert.Equal(t, "ars", *halo.PriceData.Currency)
	require.Len(t, halo.PriceData.ProductData.Images, 1)

	// relative placeholder images are not sent
	assert.Empty(t, params.LineItems[1].PriceData.ProductData.Images)

	shipping := params.LineItems[2]
	assert.True(t, strings.HasSuffix(*shipping.PriceData.ProductData.Name, "1406"))
	assert.EqualValues(t, 250000, *shipping.PriceData.UnitAmount)

	assert.Equal(t, "player@example.com", *params.CustomerEmail)
	assert.Equal(t, "https://retro.example.com/api/checkout/success", *params.SuccessURL)
	assert.Equal(t, "1406", params.Metadata["postal_code"])
	assert.NotNil(t, params.IdempotencyKey)
}

func TestFormSessionParams_ReusesOrderKey(t *testing.T) {
	s := newTestStripe(&fakeRefs{refs: map[string]string{}})
	order := testOrder()
	order.IdempotencyKey = "attempt-1"

	for i := 0; i < 2; i++ {
		params, err := s.formSessionParams(context.Background(), order)
		require.NoError(t, err)
		require.NotNil(t, params.IdempotencyKey)
		assert.Equal(t, "attempt-1", *params.IdempotencyKey)
	}
}

func TestFormSessionParams_FreeShippingHasNoLine(t *testing.T) {
	s := newTestStripe(&fakeRefs{refs: map[string]string{}})
	order := testOrder()
	order.ShippingQuote = decimal.Zero

	params, err := s.formSessionParams(context.Background(), order)
	require.NoError(t, err)
	assert.Len(t, params.LineItems, 2)
}

func TestFormSessionParams_UnknownProduct(t *testing.T) {
	s := newTestStripe(&fakeRefs{refs: map[string]string{}})
	order := testOrder()
	order.Items = append(order.Items, checkout.OrderItem{ProductID: 99, Quantity: 1})

	_, err := s.formSessionParams(context.Background(), order)
	assert.ErrorIs(t, err, error_messages.ErrNotExists)
}

func TestStripeCreateOrder(t *testing.T) {
	refs := &fakeRefs{refs: map[string]string{}}
	s := newTestStripe(refs)
	s.newSession = func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/cs_test_1"}, nil
	}

	url, err := s.CreateOrder(context.Background(), testOrder())
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_test_1", url)
	assert.Equal(t, "cs_test_1", refs.refs["sess"])
}

func TestStripeCreateOrder_Errors(t *testing.T) {
	refs := &fakeRefs{refs: map[string]string{}}
	s := newTestStripe(refs)
	s.newSession = func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		return nil, errors.New("card network down")
	}
	_, err := s.CreateOrder(context.Background(), testOrder())
	assert.Error(t, err)
	assert.Empty(t, refs.refs)

	refs.err = error_messages.ErrUpdateFailed
	s.newSession = func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		return &stripe.CheckoutSession{ID: "cs_test_2", URL: "https://checkout.stripe.com/c/cs_test_2"}, nil
	}
	_, err = s.CreateOrder(context.Background(), testOrder())
	assert.ErrorIs(t, err, error_messages.ErrUpdateFailed)
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	mux := http.NewServeMux()
	InitWebhook(mux, "whsec_test")

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"type": "checkout.session.completed"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	InitMetrics(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
