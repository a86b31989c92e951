package site

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"storefront/cart"
	"storefront/catalog"
	"storefront/checkout"
	"storefront/error_messages"
	"storefront/session"
	"storefront/theme"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	products map[int64]*catalog.Product
}

func (f *fakeStore) Categories(ctx context.Context) ([]catalog.Category, error) {
	return []catalog.Category{{ID: 1, Name: "Xbox", Subcategories: []catalog.Subcategory{{ID: 10, Name: "Shooters"}}}}, nil
}

func (f *fakeStore) Products(ctx context.Context, q catalog.ListQuery) (*catalog.Page, error) {
	page := &catalog.Page{Meta: catalog.Meta{CurrentPage: q.Page, LastPage: 1}}
	for _, id := range []int64{1, 2} {
		page.Data = append(page.Data, *f.products[id])
	}
	return page, nil
}

func (f *fakeStore) Product(ctx context.Context, id int64) (*catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, error_messages.ErrNotExists
	}
	return p, nil
}

type fakeQuotes struct{}

func (fakeQuotes) ShippingQuote(ctx context.Context, postalCode string, items []cart.LineItem) (decimal.Decimal, error) {
	if postalCode == "9999" {
		return decimal.Zero, &error_messages.InvalidPostalCodeError{Message: "No llegamos a ese código postal"}
	}
	return decimal.NewFromInt(2500), nil
}

type fakeOrders struct {
	mu     sync.Mutex
	orders []checkout.Order

	// when set, CreateOrder signals started and waits for release
	started chan struct{}
	release chan struct{}
}

func (f *fakeOrders) CreateOrder(ctx context.Context, order checkout.Order) (string, error) {
	f.mu.Lock()
	f.orders = append(f.orders, order)
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	return "https://pay.example.com/order", nil
}

func (f *fakeOrders) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

type client struct {
	t       *testing.T
	mux     *http.ServeMux
	cookies []*http.Cookie
}

func newClient(t *testing.T) (*client, *fakeOrders) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	cart.Repo = cart.NewSQLiteDatabase(db)
	require.NoError(t, cart.Repo.Migrate())

	orders := &fakeOrders{}
	session.InitCheckout(fakeQuotes{}, orders, true)

	store := &fakeStore{products: map[int64]*catalog.Product{
		1: {ID: 1, Name: "Halo 2", Price: decimal.NewFromInt(15000), Images: catalog.Single("halo.png")},
		2: {ID: 2, Name: "Ico", Price: decimal.NewFromInt(9000), Images: catalog.Gallery{"ico1.png", "ico2.png"}},
	}}

	mux := http.NewServeMux()
	InitHandlers(mux, store, theme.NewHub(), "https://retro.example.com/")
	return &client{t: t, mux: mux}, orders
}

func (c *client) do(method string, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Accept", "application/json")
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	c.mux.ServeHTTP(rec, req)
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == "session" {
			c.cookies = append(c.cookies, cookie)
		}
	}
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

type testCart struct {
	Items []struct {
		ProductID      int64  `json:"productId"`
		Title          string `json:"title"`
		Quantity       int    `json:"quantity"`
		Image          string `json:"image"`
		FormattedPrice string `json:"formattedPrice"`
	} `json:"items"`
	ItemCount      int    `json:"itemCount"`
	FormattedTotal string `json:"formattedTotal"`
}

func TestCartFlow(t *testing.T) {
	c, _ := newClient(t)

	rec := c.do(http.MethodPost, "/api/add_to_cart", `{"productId": 2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	c.do(http.MethodPost, "/api/add_to_cart", `{"productId": 1}`)
	rec = c.do(http.MethodPost, "/api/add_to_cart", `{"productId": 2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got testCart
	decode(t, rec, &got)
	require.Len(t, got.Items, 2)
	assert.Equal(t, int64(2), got.Items[0].ProductID)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.Equal(t, "ico1.png", got.Items[0].Image)
	assert.Equal(t, "$ 9.000,00", got.Items[0].FormattedPrice)
	assert.Equal(t, 3, got.ItemCount)
	assert.Equal(t, "$ 33.000,00", got.FormattedTotal)

	rec = c.do(http.MethodPost, "/api/update_quantity", `{"productId": 2, "quantity": 0}`)
	decode(t, rec, &got)
	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(1), got.Items[0].ProductID)

	rec = c.do(http.MethodPost, "/api/remove_from_cart", `{"productId": 1}`)
	decode(t, rec, &got)
	assert.Empty(t, got.Items)

	rec = c.do(http.MethodGet, "/api/items", "")
	assert.JSONEq(t, `{"items": 0}`, rec.Body.String())
}

func TestAddToCart_UnknownProduct(t *testing.T) {
	c, _ := newClient(t)

	rec := c.do(http.MethodPost, "/api/add_to_cart", `{"productId": 42}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = c.do(http.MethodPost, "/api/add_to_cart", `{"productId": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do(http.MethodGet, "/api/add_to_cart", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCatalogRoutes(t *testing.T) {
	c, _ := newClient(t)

	rec := c.do(http.MethodGet, "/api/categories", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Shooters")

	rec = c.do(http.MethodGet, "/api/products?search=ico", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page catalog.Page
	decode(t, rec, &page)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Ico", page.Data[0].Name)

	rec = c.do(http.MethodGet, "/api/products/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Halo 2")

	rec = c.do(http.MethodGet, "/api/products/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutFlow(t *testing.T) {
	c, orders := newClient(t)
	c.do(http.MethodPost, "/api/add_to_cart", `{"productId": 1}`)

	// nothing is sent without an email
	rec := c.do(http.MethodPost, "/api/checkout/confirm", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"field": "email", "error": "email is required"}`, rec.Body.String())

	c.do(http.MethodPost, "/api/checkout/email", `{"email": "player@example.com"}`)
	c.do(http.MethodPost, "/api/checkout/postal_code", `{"postalCode": "9999"}`)

	rec = c.do(http.MethodPost, "/api/checkout/shipping", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"field": "postalCode", "error": "No llegamos a ese código postal"}`, rec.Body.String())

	rec = c.do(http.MethodPost, "/api/checkout/confirm", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, orders.orders)

	c.do(http.MethodPost, "/api/checkout/postal_code", `{"postalCode": "1406"}`)
	rec = c.do(http.MethodPost, "/api/checkout/shipping", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var state struct {
		Status         string `json:"status"`
		FormattedTotal string `json:"formattedTotal"`
	}
	rec = c.do(http.MethodGet, "/api/checkout", "")
	decode(t, rec, &state)
	assert.Equal(t, "idle", state.Status)
	assert.Equal(t, "$ 17.500,00", state.FormattedTotal)

	rec = c.do(http.MethodPost, "/api/checkout/confirm", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"redirect": "https://pay.example.com/order"}`, rec.Body.String())

	require.Len(t, orders.orders, 1)
	order := orders.orders[0]
	assert.Equal(t, "player@example.com", order.Email)
	assert.Equal(t, "1406", order.PostalCode)
	assert.True(t, order.ShippingQuote.Equal(decimal.NewFromInt(2500)))
	assert.Equal(t, []checkout.OrderItem{{ProductID: 1, Quantity: 1}}, order.Items)

	rec = c.do(http.MethodGet, "/api/checkout/success", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "https://retro.example.com/success", rec.Header().Get("Location"))

	rec = c.do(http.MethodGet, "/api/items", "")
	assert.JSONEq(t, `{"items": 0}`, rec.Body.String())
}

func TestConfirm_EmptyCart(t *testing.T) {
	c, orders := newClient(t)
	c.do(http.MethodPost, "/api/checkout/email", `{"email": "player@example.com"}`)
	c.do(http.MethodPost, "/api/checkout/postal_code", `{"postalCode": "1406"}`)
	c.do(http.MethodPost, "/api/checkout/shipping", "")

	rec := c.do(http.MethodPost, "/api/checkout/confirm", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, orders.orders)
}

func TestTheme(t *testing.T) {
	c, _ := newClient(t)

	rec := c.do(http.MethodGet, "/api/theme", "")
	assert.Contains(t, rec.Body.String(), `"theme":"light"`)
	assert.Contains(t, rec.Body.String(), `"name":"xbox"`)

	rec = c.do(http.MethodPost, "/api/theme", `{"theme": "dark"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"ps2"`)

	rec = c.do(http.MethodGet, "/api/theme", "")
	assert.Contains(t, rec.Body.String(), `"theme":"dark"`)
}

func TestThemeEvents_SendsCurrent(t *testing.T) {
	c, _ := newClient(t)
	c.do(http.MethodPost, "/api/theme", `{"theme": "dark"}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/theme/events", nil).WithContext(ctx)
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	c.mux.ServeHTTP(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "event: theme\ndata: "))
	assert.Contains(t, rec.Body.String(), `"theme":"dark"`)
}

func TestAddToCart_Quantity(t *testing.T) {
	c, _ := newClient(t)

	rec := c.do(http.MethodPost, "/api/add_to_cart", `{"productId": 1, "quantity": 3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got testCart
	decode(t, rec, &got)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 3, got.Items[0].Quantity)
	assert.Equal(t, 3, got.ItemCount)

	rec = c.do(http.MethodPost, "/api/add_to_cart", `{"productId": 1, "quantity": -2}`)
	decode(t, rec, &got)
	assert.Equal(t, 4, got.ItemCount)
}

func TestPricesAreNumbers(t *testing.T) {
	c, _ := newClient(t)

	rec := c.do(http.MethodPost, "/api/add_to_cart", `{"productId": 1}`)
	var got map[string]interface{}
	decode(t, rec, &got)
	assert.Equal(t, float64(15000), got["total"])
	item := got["items"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, float64(15000), item["unitPrice"])

	rec = c.do(http.MethodGet, "/api/products/1", "")
	decode(t, rec, &got)
	assert.Equal(t, float64(15000), got["price"])
}

func readyToConfirm(c *client) {
	c.do(http.MethodPost, "/api/add_to_cart", `{"productId": 1}`)
	c.do(http.MethodPost, "/api/checkout/email", `{"email": "player@example.com"}`)
	c.do(http.MethodPost, "/api/checkout/postal_code", `{"postalCode": "1406"}`)
	c.do(http.MethodPost, "/api/checkout/shipping", "")
}

func TestConfirm_RepeatSendsOneOrder(t *testing.T) {
	c, orders := newClient(t)
	readyToConfirm(c)

	first := c.do(http.MethodPost, "/api/checkout/confirm", "")
	require.Equal(t, http.StatusOK, first.Code)

	// the cart is gone once the store has the order
	rec := c.do(http.MethodGet, "/api/items", "")
	assert.JSONEq(t, `{"items": 0}`, rec.Body.String())

	second := c.do(http.MethodPost, "/api/checkout/confirm", "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, orders.count())

	// a new cart is a new purchase
	readyToConfirm(c)
	rec = c.do(http.MethodPost, "/api/checkout/confirm", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, orders.count())
}

func TestConfirm_WhileSubmittingIsConflict(t *testing.T) {
	c, orders := newClient(t)
	readyToConfirm(c)
	orders.started = make(chan struct{})
	orders.release = make(chan struct{})

	confirm := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/checkout/confirm", nil)
		req.Header.Set("Accept", "application/json")
		for _, cookie := range c.cookies {
			req.AddCookie(cookie)
		}
		rec := httptest.NewRecorder()
		c.mux.ServeHTTP(rec, req)
		return rec
	}

	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- confirm() }()
	<-orders.started

	rec := confirm()
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(orders.release)
	assert.Equal(t, http.StatusOK, (<-done).Code)
	assert.Equal(t, 1, orders.count())
}
