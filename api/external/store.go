package external

/* Client for the remote store API: catalog, shipping quotes and orders */

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront/cart"
	"storefront/catalog"
	"storefront/checkout"
	"storefront/error_messages"
	"storefront/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status the shipping quote endpoint answers with for a postal code it does
// not deliver to.
const StatusInvalidPostalCode = http.StatusTeapot

const maxBodyBytes = int64(1 << 20)

// ProductCache is consulted before fetching product detail.
type ProductCache interface {
	Get(ctx context.Context, id int64) (*catalog.Product, error)
	Set(ctx context.Context, p *catalog.Product) error
}

type StoreClient struct {
	baseURL     string
	bypassToken string
	http        *http.Client
	cache       ProductCache
}

func NewStoreClient(baseURL string, bypassToken string) *StoreClient {
	return &StoreClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		bypassToken: bypassToken,
		http:        &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *StoreClient) WithProductCache(cache ProductCache) *StoreClient {
	c.cache = cache
	return c
}

func (c *StoreClient) Categories(ctx context.Context) ([]catalog.Category, error) {
	var categories []catalog.Category
	if err := c.getJSON(ctx, "categories", "/categories", &categories); err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []catalog.Category{}
	}
	return categories, nil
}

func (c *StoreClient) Products(ctx context.Context, q catalog.ListQuery) (*catalog.Page, error) {
	var page catalog.Page
	if err := c.getJSON(ctx, "products", "/products?"+q.Values().Encode(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Product returns a single product, from the cache when there is one. A 404
// from the API is reported as error_messages.ErrNotExists.
func (c *StoreClient) Product(ctx context.Context, id int64) (*catalog.Product, error) {
	if c.cache != nil {
		p, err := c.cache.Get(ctx, id)
		if err != nil {
			log.Printf("Product: cache get %d: %v\n", id, err)
		} else if p != nil {
			return p, nil
		}
	}
	return c.CurrentProduct(ctx, id)
}

// CurrentProduct always asks the store and refreshes the cache. Used where
// the price must be the one the store has right now.
func (c *StoreClient) CurrentProduct(ctx context.Context, id int64) (*catalog.Product, error) {
	var p catalog.Product
	if err := c.getJSON(ctx, "product", "/products/"+strconv.FormatInt(id, 10), &p); err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, &p); err != nil {
			log.Printf("CurrentProduct: cache set %d: %v\n", id, err)
		}
	}
	return &p, nil
}

type quoteResponse struct {
	ShippingQuote decimal.Decimal `json:"shippingQuote"`
}

type apiMessage struct {
	Message string `json:"message"`
}

// ShippingQuote asks the store what shipping to postalCode costs. The store
// prices by postal code alone, so items are not sent.
func (c *StoreClient) ShippingQuote(ctx context.Context, postalCode string, items []cart.LineItem) (decimal.Decimal, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/shipping-quote/"+url.PathEscape(postalCode), nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("shipping_quote", "error").Inc()
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	metrics.UpstreamRequests.WithLabelValues("shipping_quote", strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == StatusInvalidPostalCode {
		var msg apiMessage
		_ = json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&msg)
		return decimal.Zero, &error_messages.InvalidPostalCodeError{Message: msg.Message}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decimal.Zero, error_messages.StatusError("ShippingQuote", resp.StatusCode)
	}

	var quote quoteResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&quote); err != nil {
		return decimal.Zero, fmt.Errorf("ShippingQuote: decode: %w", err)
	}
	return quote.ShippingQuote, nil
}

type orderResponse struct {
	RedirectURL string `json:"redirectUrl"`
}

// CreateOrder posts the order and returns the payment URL the store hands
// back. The order's idempotency key is sent along so a repeated attempt does
// not create a second order; calls are never retried.
func (c *StoreClient) CreateOrder(ctx context.Context, order checkout.Order) (string, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/orders", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	key := order.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	req.Header.Set("Idempotency-Key", key)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("orders", "error").Inc()
		return "", err
	}
	defer resp.Body.Close()
	metrics.UpstreamRequests.WithLabelValues("orders", strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", error_messages.StatusError("CreateOrder", resp.StatusCode)
	}

	var created orderResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&created); err != nil {
		return "", fmt.Errorf("CreateOrder: decode: %w", err)
	}
	if created.RedirectURL == "" {
		return "", fmt.Errorf("CreateOrder: response has no redirect url")
	}

	log.Printf("Created order for %s with %d lines\n", order.SessionID, len(order.Items))
	return created.RedirectURL, nil
}

func (c *StoreClient) newRequest(ctx context.Context, method string, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.bypassToken != "" {
		req.Header.Set("x-vercel-protection-bypass", c.bypassToken)
	}
	return req, nil
}

func (c *StoreClient) getJSON(ctx context.Context, endpoint string, path string, v interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		return err
	}
	defer resp.Body.Close()
	metrics.UpstreamRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusNotFound {
		return error_messages.ErrNotExists
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return error_messages.StatusError(endpoint, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("%s: decode: %w", endpoint, err)
	}
	return nil
}
