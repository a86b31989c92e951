package session

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"storefront/cart"
	"storefront/checkout"
	"storefront/error_messages"
	"storefront/theme"
)

// CookieLifetime is how long a session cookie lives, and so how long an idle
// session's in-memory state is worth keeping.
const CookieLifetime = 7 * 24 * time.Hour

// per-session state that lives only in memory
type state struct {
	mu       sync.Mutex
	checkout *checkout.Sequencer
	lastSeen time.Time
}

var (
	sessionsMu sync.Mutex
	sessions   = map[string]*state{}

	quotes checkout.QuoteService
	orders checkout.OrderService

	// the order service's payment page does not come back through
	// /api/checkout/success, so the cart is detached as soon as the order exists
	detachOnOrder bool
)

// InitCheckout sets the services every session's checkout uses.
// detach_on_order is set when nothing else will clear a paid cart.
func InitCheckout(quoteService checkout.QuoteService, orderService checkout.OrderService, detach_on_order bool) {
	quotes = quoteService
	orders = orderService
	detachOnOrder = detach_on_order
}

// lookup returns the session's state, creating it only when create is set.
func lookup(session_id string, create bool) *state {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()
	s, ok := sessions[session_id]
	if !ok {
		if !create {
			return nil
		}
		s = &state{checkout: checkout.NewSequencer(quotes, orders, nil)}
		sessions[session_id] = s
	}
	s.lastSeen = time.Now()
	return s
}

// Sweep drops the in-memory state of sessions idle for longer than max_idle.
// Sessions with a purchase being submitted are kept.
func Sweep(max_idle time.Duration) int {
	cutoff := time.Now().Add(-max_idle)

	sessionsMu.Lock()
	defer sessionsMu.Unlock()
	removed := 0
	for id, s := range sessions {
		if s.lastSeen.After(cutoff) || s.checkout.State().Status == checkout.StatusSubmitting {
			continue
		}
		delete(sessions, id)
		removed++
	}
	return removed
}

func retrieveCart(session_id string) (*cart.ShoppingCart, error) {
	// Retrieve database entry
	shopping_cart, err := cart.Repo.GetCartBySessionID(session_id)
	if err == error_messages.ErrNotExists {
		// Create new session and cart record
		shopping_cart, err = cart.Repo.CreateCartEntry(session_id)
		if err != nil {
			log.Printf("Error: RetrieveCart: Could not create new cart entry for %s, error: %v\n", session_id, err)
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	return shopping_cart, nil
}

// BeginSession creates a new user session ID and stores it in the user's
// cookie if the user doesn't have one yet.
func BeginSession(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie("session")
	// Along with checking if cookie exists, make sure the length is valid
	if err != nil || len(cookie.Value) != 44 {
		// Create cookie and attach it to the server response
		session_id := SessionId()
		setSessionCookie(w, session_id)
		log.Printf("New session cookie created: %s\n", session_id)
		return session_id
	} else {
		return cookie.Value
	}
}

// LoadCart returns the session's cart as stored. Sessions without a cart get
// an empty one and nothing is written or kept in memory.
func LoadCart(session_id string) (*cart.Cart, error) {
	c, err := cart.Repo.LoadCart(session_id)
	if err != nil {
		log.Printf("Failure in session.LoadCart: %v\n", err)
		return nil, err
	}
	return c, nil
}

// UpdateCart applies fn to the session's cart and stores the result. Calls
// for the same session are serialised. Changing the cart after an order was
// created starts a new purchase.
func UpdateCart(session_id string, fn func(c *cart.Cart)) (*cart.Cart, error) {
	s := lookup(session_id, true)
	s.mu.Lock()
	defer s.mu.Unlock()

	shopping_cart, err := retrieveCart(session_id)
	if err != nil {
		return nil, err
	}

	c, err := cart.Repo.LoadCart(session_id)
	if err != nil {
		return nil, err
	}

	fn(c)

	if err := cart.Repo.SaveCart(shopping_cart.ID, c); err != nil {
		log.Printf("Failure in session.UpdateCart: %v\n", err)
		return nil, err
	}

	if s.checkout.State().Status == checkout.StatusRedirecting {
		s.checkout.Reset()
	}
	return c, nil
}

// Checkout returns the session's checkout sequencer, creating it if needed.
func Checkout(session_id string) *checkout.Sequencer {
	return lookup(session_id, true).checkout
}

// CheckoutState is the session's checkout snapshot. Sessions that never
// started a checkout report an idle one without being registered.
func CheckoutState(session_id string) checkout.State {
	if s := lookup(session_id, false); s != nil {
		return s.checkout.State()
	}
	return checkout.State{Status: checkout.StatusIdle}
}

// OrderPlaced is called once the order service accepted the session's order.
// When configured, the cart row is detached from the session like
// ClearSession does; the checkout keeps its redirect so a repeated confirm
// gets the same payment URL.
func OrderPlaced(session_id string) error {
	if !detachOnOrder {
		return nil
	}
	s := lookup(session_id, true)
	s.mu.Lock()
	defer s.mu.Unlock()

	err := cart.Repo.UpdateSessionID(session_id, SessionId())
	if err != nil && err != error_messages.ErrNotExists {
		log.Printf("OrderPlaced: Could not detach cart: %v\n", err)
		return err
	}
	return nil
}

// ClearSession is called once a purchase went through. The cart row is
// detached from the session by giving it a random session id, so the buyer
// starts over with an empty cart while the order's cart stays in the db.
func ClearSession(session_id string) error {
	sessionsMu.Lock()
	delete(sessions, session_id)
	sessionsMu.Unlock()

	err := cart.Repo.UpdateSessionID(session_id, SessionId())
	if err != nil && err != error_messages.ErrNotExists {
		log.Printf("ClearSession: Could not clear session id: %v\n", err)
		return err
	}
	return nil
}

// Create and set the user's cookie in the http response
func setSessionCookie(w http.ResponseWriter, session_id string) {
	expiration := time.Now().Add(7 * 24 * time.Hour)
	cookie := http.Cookie{
		Name:     "session",
		Value:    session_id,
		Path:     "/",
		Expires:  expiration,
		HttpOnly: true,
		// lax, so the cookie comes back on the redirect from the payment page
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(w, &cookie)
}

// Generate a random session id
func SessionId() string {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(b)
}

// Theme reads the theme preference cookie, defaulting to light.
func Theme(r *http.Request) theme.Theme {
	cookie, err := r.Cookie("theme")
	if err != nil {
		return theme.Light
	}
	return theme.Parse(cookie.Value)
}

func SetThemeCookie(w http.ResponseWriter, t theme.Theme) {
	http.SetCookie(w, &http.Cookie{
		Name:     "theme",
		Value:    string(t),
		Path:     "/",
		Expires:  time.Now().Add(365 * 24 * time.Hour),
		SameSite: http.SameSiteStrictMode,
	})
}
