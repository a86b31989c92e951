package site

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"storefront/catalog"
	"storefront/checkout"
	"storefront/error_messages"
	"storefront/metrics"
	"storefront/session"
	"storefront/theme"

	"github.com/shopspring/decimal"
)

/************/
/* CHECKOUT */
/************/

type checkoutResponse struct {
	checkout.State
	Cart           cartResponse    `json:"cart"`
	Total          decimal.Decimal `json:"total"`
	FormattedTotal string          `json:"formattedTotal"`
}

func writeCheckout(w http.ResponseWriter, r *http.Request, session_id string) {
	c, err := session.LoadCart(session_id)
	if err != nil {
		error_server(w, "writeCheckout: Failed to load cart", err)
		return
	}
	state := session.CheckoutState(session_id)
	total := state.Total(c.Total())

	writeJSON(w, r, http.StatusOK, checkoutResponse{
		State:          state,
		Cart:           newCartResponse(c),
		Total:          total,
		FormattedTotal: catalog.FormatPrice(total),
	})
}

func checkoutState(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeCheckout(w, r, session.BeginSession(w, r))
}

type fieldRequest struct {
	Email      string `json:"email"`
	PostalCode string `json:"postalCode"`
}

func setEmail(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req fieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		error_bad_request(w, "setEmail: Can not decode JSON", err)
		return
	}

	session_id := session.BeginSession(w, r)
	session.Checkout(session_id).SetEmail(req.Email)
	writeCheckout(w, r, session_id)
}

func setPostalCode(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req fieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		error_bad_request(w, "setPostalCode: Can not decode JSON", err)
		return
	}

	session_id := session.BeginSession(w, r)
	session.Checkout(session_id).SetPostalCode(req.PostalCode)
	writeCheckout(w, r, session_id)
}

/* Look up the shipping quote for the postal code currently set on the
 * session's checkout */
func calculateShipping(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	session_id := session.BeginSession(w, r)

	c, err := session.LoadCart(session_id)
	if err != nil {
		error_server(w, "calculateShipping: Failed to load cart", err)
		return
	}

	_, err = session.Checkout(session_id).CalculateShipping(r.Context(), c.Items())
	if err != nil {
		metrics.CheckoutOutcomes.WithLabelValues("quote", "failed").Inc()
		error_checkout(w, r, "calculateShipping", err)
		return
	}
	metrics.CheckoutOutcomes.WithLabelValues("quote", "resolved").Inc()

	writeCheckout(w, r, session_id)
}

/* Submit the order. JSON clients get the payment URL back, plain form posts
 * are redirected to it */
func confirmPurchase(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	session_id := session.BeginSession(w, r)

	c, err := session.LoadCart(session_id)
	if err != nil {
		error_server(w, "confirmPurchase: Failed to load cart", err)
		return
	}

	url, err := session.Checkout(session_id).ConfirmPurchase(r.Context(), session_id, c.Items())
	if err != nil {
		metrics.CheckoutOutcomes.WithLabelValues("order", "failed").Inc()
		error_checkout(w, r, "confirmPurchase", err)
		return
	}
	metrics.CheckoutOutcomes.WithLabelValues("order", "created").Inc()
	log.Printf("%s: Order created, redirecting to %s\n", session_id, url)

	if err := session.OrderPlaced(session_id); err != nil {
		log.Printf("confirmPurchase: %v\n", err)
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		writeJSON(w, r, http.StatusOK, map[string]string{"redirect": url})
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

/* The payment provider sends the buyer here after paying */
func checkoutSuccess(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	if cookie, err := r.Cookie("session"); err == nil {
		if err := session.ClearSession(cookie.Value); err != nil {
			log.Printf("checkoutSuccess: %v\n", err)
		}
	}
	http.Redirect(w, r, siteURL+"/success", http.StatusSeeOther)
}

type checkoutError struct {
	Field string `json:"field,omitempty"`
	Error string `json:"error"`
}

func error_checkout(w http.ResponseWriter, r *http.Request, print string, err error) {
	log.Printf("Error in %s: %v\n", print, err)

	var field_err *error_messages.FieldError
	switch {
	case errors.As(err, &field_err):
		writeJSON(w, r, http.StatusUnprocessableEntity, checkoutError{Field: field_err.Field, Error: field_err.Err.Error()})
	case errors.Is(err, error_messages.ErrSubmissionInProgress):
		writeJSON(w, r, http.StatusConflict, checkoutError{Error: err.Error()})
	case errors.Is(err, error_messages.ErrEmptyCart):
		writeJSON(w, r, http.StatusBadRequest, checkoutError{Error: err.Error()})
	case errors.Is(err, error_messages.ErrOrderFailed):
		writeJSON(w, r, http.StatusBadGateway, checkoutError{Error: error_messages.ErrOrderFailed.Error()})
	default:
		error_server(w, print, err)
	}
}

/*********/
/* THEME */
/*********/

type themeResponse struct {
	Theme theme.Theme `json:"theme"`
	Skin  theme.Skin  `json:"skin"`
}

func currentTheme(r *http.Request, session_id string) theme.Theme {
	return themes.Get(session_id, session.Theme(r))
}

func themeHandler(w http.ResponseWriter, r *http.Request) {
	session_id := session.BeginSession(w, r)

	switch r.Method {
	case http.MethodGet:
		t := currentTheme(r, session_id)
		writeJSON(w, r, http.StatusOK, themeResponse{Theme: t, Skin: t.Skin()})
	case http.MethodPost:
		var req struct {
			Theme string `json:"theme"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			error_bad_request(w, "themeHandler: Can not decode JSON", err)
			return
		}
		t := theme.Parse(req.Theme)
		themes.Set(session_id, t)
		session.SetThemeCookie(w, t)
		writeJSON(w, r, http.StatusOK, themeResponse{Theme: t, Skin: t.Skin()})
	default:
		allow(w, r, http.MethodGet)
	}
}

/* Stream theme changes for the session as server-sent events, starting with
 * the current one */
func themeEvents(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		error_server(w, "themeEvents", errors.New("streaming unsupported"))
		return
	}
	session_id := session.BeginSession(w, r)

	changes, cancel := themes.Subscribe(session_id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(t theme.Theme) error {
		data, err := json.Marshal(themeResponse{Theme: t, Skin: t.Skin()})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: theme\ndata: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := send(currentTheme(r, session_id)); err != nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case t, ok := <-changes:
			if !ok {
				return
			}
			if err := send(t); err != nil {
				log.Printf("themeEvents: %v\n", err)
				return
			}
		}
	}
}
