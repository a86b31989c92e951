package site

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"storefront/cart"
	"storefront/catalog"
	"storefront/error_messages"
	"storefront/metrics"
	"storefront/session"
	"storefront/theme"

	"github.com/gorilla/csrf"
	"github.com/shopspring/decimal"
)

// Store is the part of the remote store API the site handlers read from.
type Store interface {
	Categories(ctx context.Context) ([]catalog.Category, error)
	Products(ctx context.Context, q catalog.ListQuery) (*catalog.Page, error)
	Product(ctx context.Context, id int64) (*catalog.Product, error)
}

var (
	store   Store
	themes  *theme.Hub
	siteURL string
)

func InitHandlers(mux *http.ServeMux, s Store, hub *theme.Hub, site_url string) {
	store = s
	themes = hub
	siteURL = strings.TrimRight(site_url, "/")

	// prices, totals and quotes go to the browser as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	handle(mux, "/api/categories", listCategories)
	handle(mux, "/api/products", listProducts)
	handle(mux, "/api/products/", productDetail)

	handle(mux, "/api/items", retrieveItemCount)
	handle(mux, "/api/retrieve_cart", retrieveCartItems)
	handle(mux, "/api/add_to_cart", addToCart)
	handle(mux, "/api/update_quantity", updateQuantity)
	handle(mux, "/api/remove_from_cart", removeFromCart)

	handle(mux, "/api/checkout", checkoutState)
	handle(mux, "/api/checkout/email", setEmail)
	handle(mux, "/api/checkout/postal_code", setPostalCode)
	handle(mux, "/api/checkout/shipping", calculateShipping)
	handle(mux, "/api/checkout/confirm", confirmPurchase)
	handle(mux, "/api/checkout/success", checkoutSuccess)

	handle(mux, "/api/theme", themeHandler)
	handle(mux, "/api/theme/events", themeEvents)
}

func handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, metrics.Middleware(pattern, h))
}

/***********/
/* CATALOG */
/***********/

func listCategories(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	categories, err := store.Categories(r.Context())
	if err != nil {
		error_upstream(w, "listCategories: Failed to fetch categories", err)
		return
	}

	writeJSON(w, r, http.StatusOK, categories)
}

/* Fetch a page from the store and narrow/sort it with the search, price and
 * sort parameters, which the store API does not understand */
func listProducts(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	values := r.URL.Query()
	page, err := store.Products(r.Context(), catalog.ParseListQuery(values))
	if err != nil {
		error_upstream(w, "listProducts: Failed to fetch products", err)
		return
	}

	page.Data = catalog.ParseFilter(values).Apply(page.Data)
	writeJSON(w, r, http.StatusOK, page)
}

func productDetail(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/api/products/"), 10, 64)
	if err != nil {
		error_bad_request(w, "productDetail: Invalid product id", err)
		return
	}

	product, err := store.Product(r.Context(), id)
	if err != nil {
		error_upstream(w, "productDetail: Failed to fetch product", err)
		return
	}

	writeJSON(w, r, http.StatusOK, product)
}

/********/
/* CART */
/********/

type cartLine struct {
	cart.LineItem
	Subtotal       decimal.Decimal `json:"subtotal"`
	FormattedPrice string          `json:"formattedPrice"`
}

type cartResponse struct {
	Items          []cartLine      `json:"items"`
	ItemCount      int             `json:"itemCount"`
	Total          decimal.Decimal `json:"total"`
	FormattedTotal string          `json:"formattedTotal"`
}

func newCartResponse(c *cart.Cart) cartResponse {
	resp := cartResponse{
		Items:          []cartLine{},
		ItemCount:      c.ItemCount(),
		Total:          c.Total(),
		FormattedTotal: catalog.FormatPrice(c.Total()),
	}
	for _, item := range c.Items() {
		resp.Items = append(resp.Items, cartLine{
			LineItem:       item,
			Subtotal:       item.Subtotal(),
			FormattedPrice: catalog.FormatPrice(item.UnitPrice),
		})
	}
	return resp
}

/* Send the number of items in the client's cart in a response */
func retrieveItemCount(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	session_id := session.BeginSession(w, r)

	c, err := session.LoadCart(session_id)
	if err != nil {
		error_server(w, "retrieveItemCount: Failed to load cart", err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]int{"items": c.ItemCount()})
}

/* Send the items in the client's cart in a response */
func retrieveCartItems(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	session_id := session.BeginSession(w, r)

	c, err := session.LoadCart(session_id)
	if err != nil {
		error_server(w, "retrieveCartItems: Failed to load cart", err)
		return
	}

	writeJSON(w, r, http.StatusOK, newCartResponse(c))
}

type cartRequest struct {
	ProductID int64 `json:"productId"`
	// for add_to_cart, how many units to add; anything below 1 adds one
	Quantity int `json:"quantity"`
}

func decodeCartRequest(r *http.Request) (*cartRequest, error) {
	var req cartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	if req.ProductID <= 0 {
		return nil, error_messages.ErrInvalidItem
	}
	return &req, nil
}

/* Add a product to the client's cart. Title, price and image are taken from
 * the store, not from the request */
func addToCart(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	req, err := decodeCartRequest(r)
	if err != nil {
		error_bad_request(w, "addToCart: Can not decode JSON", err)
		return
	}

	product, err := store.Product(r.Context(), req.ProductID)
	if err != nil {
		error_upstream(w, "addToCart: Failed to fetch product", err)
		return
	}

	session_id := session.BeginSession(w, r)
	units := req.Quantity
	if units < 1 {
		units = 1
	}
	c, err := session.UpdateCart(session_id, func(c *cart.Cart) {
		for i := 0; i < units; i++ {
			c.AddItem(product.ID, product.Name, product.Price, product.Image())
		}
	})
	if err != nil {
		error_server(w, "addToCart: Failed to update cart", err)
		return
	}
	metrics.CartOperations.WithLabelValues("add").Inc()

	log.Printf("%s: Added %d x %d to cart\n", session_id, units, product.ID)
	writeJSON(w, r, http.StatusOK, newCartResponse(c))
}

func updateQuantity(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	req, err := decodeCartRequest(r)
	if err != nil {
		error_bad_request(w, "updateQuantity: Can not decode JSON", err)
		return
	}

	session_id := session.BeginSession(w, r)
	c, err := session.UpdateCart(session_id, func(c *cart.Cart) {
		c.SetQuantity(req.ProductID, req.Quantity)
	})
	if err != nil {
		error_server(w, "updateQuantity: Failed to update cart", err)
		return
	}
	metrics.CartOperations.WithLabelValues("set_quantity").Inc()

	writeJSON(w, r, http.StatusOK, newCartResponse(c))
}

/* Remove a product from the client's cart */
func removeFromCart(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	req, err := decodeCartRequest(r)
	if err != nil {
		error_bad_request(w, "removeFromCart: Can not decode JSON", err)
		return
	}

	session_id := session.BeginSession(w, r)
	c, err := session.UpdateCart(session_id, func(c *cart.Cart) {
		c.RemoveItem(req.ProductID)
	})
	if err != nil {
		error_server(w, "removeFromCart: Failed to update cart", err)
		return
	}
	metrics.CartOperations.WithLabelValues("remove").Inc()

	log.Printf("%s: Removed %d from cart\n", session_id, req.ProductID)
	writeJSON(w, r, http.StatusOK, newCartResponse(c))
}

/***********/
/* HELPERS */
/***********/

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		log.Printf("%s: Wrong request method: %s\n", r.URL.Path, r.Method)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	jsonResp, err := json.Marshal(v)
	if err != nil {
		error_server(w, "writeJSON: json.Marshal", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-CSRF-Token", csrf.Token(r))
	w.WriteHeader(status)
	w.Write(jsonResp)
}

func error_bad_request(w http.ResponseWriter, print string, err error) {
	log.Printf("Error in %s: %v\n", print, err)
	http.Error(w, "Bad Request", http.StatusBadRequest)
}

func error_server(w http.ResponseWriter, print string, err error) {
	log.Printf("Error in %s: %v\n", print, err)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// error_upstream reports a failed store API call. Unknown products are a 404,
// everything else is a generic failure.
func error_upstream(w http.ResponseWriter, print string, err error) {
	log.Printf("Error in %s: %v\n", print, err)
	if errors.Is(err, error_messages.ErrNotExists) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	http.Error(w, "Bad Gateway", http.StatusBadGateway)
}
