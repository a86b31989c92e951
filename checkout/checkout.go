// Package checkout sequences a purchase: contact email and a shipping quote
// for the current postal code must both be in place before the cart is
// handed to the order service, whose redirect target is then followed.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"

	"storefront/cart"
	"storefront/error_messages"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	FieldEmail      = "email"
	FieldPostalCode = "postalCode"
)

type Status string

const (
	StatusIdle        Status = "idle"
	StatusQuoteLookup Status = "quote_lookup"
	StatusSubmitting  Status = "submitting"
	StatusRedirecting Status = "redirecting"
	StatusFailed      Status = "failed"
)

type QuoteService interface {
	ShippingQuote(ctx context.Context, postalCode string, items []cart.LineItem) (decimal.Decimal, error)
}

type OrderService interface {
	// CreateOrder returns the URL the buyer must be sent to in order to pay.
	CreateOrder(ctx context.Context, order Order) (string, error)
}

// Redirector hands the buyer off to the payment page.
type Redirector func(url string)

type OrderItem struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// Order is what gets sent to the order service. Prices are absent; the order
// service prices the items itself. IdempotencyKey is the same for every send
// of one attempt.
type Order struct {
	SessionID      string          `json:"-"`
	IdempotencyKey string          `json:"-"`
	Items          []OrderItem     `json:"items"`
	Email          string          `json:"email"`
	PostalCode     string          `json:"postalCode"`
	ShippingQuote  decimal.Decimal `json:"shippingQuote"`
}

// sameAttempt reports whether two orders carry the same purchase.
func (o Order) sameAttempt(other Order) bool {
	if o.Email != other.Email || o.PostalCode != other.PostalCode || !o.ShippingQuote.Equal(other.ShippingQuote) {
		return false
	}
	if len(o.Items) != len(other.Items) {
		return false
	}
	for i := range o.Items {
		if o.Items[i] != other.Items[i] {
			return false
		}
	}
	return true
}

// MarshalJSON writes the quote as a plain JSON number.
func (o Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Items         []OrderItem `json:"items"`
		Email         string      `json:"email"`
		PostalCode    string      `json:"postalCode"`
		ShippingQuote json.Number `json:"shippingQuote"`
	}{
		Items:         o.Items,
		Email:         o.Email,
		PostalCode:    o.PostalCode,
		ShippingQuote: json.Number(o.ShippingQuote.String()),
	})
}

func OrderItems(items []cart.LineItem) []OrderItem {
	out := make([]OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, OrderItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return out
}

// State is a snapshot of a Sequencer.
type State struct {
	Email         string              `json:"email"`
	PostalCode    string              `json:"postalCode"`
	ShippingQuote decimal.NullDecimal `json:"shippingQuote"`
	Status        Status              `json:"status"`
	Failure       string              `json:"failure,omitempty"`
	EmailError    string              `json:"emailError,omitempty"`
	PostalError   string              `json:"postalCodeError,omitempty"`
	Redirect      string              `json:"redirect,omitempty"`
}

type Sequencer struct {
	quotes   QuoteService
	orders   OrderService
	redirect Redirector

	mu          sync.Mutex
	email       string
	postalCode  string
	quote       decimal.NullDecimal
	status      Status
	failure     string
	emailErr    error
	postalErr   error
	redirectURL string

	// last order sent, kept so a retry of the same purchase reuses its key
	attempt *Order
}

func NewSequencer(quotes QuoteService, orders OrderService, redirect Redirector) *Sequencer {
	return &Sequencer{
		quotes:   quotes,
		orders:   orders,
		redirect: redirect,
		status:   StatusIdle,
	}
}

func (s *Sequencer) SetEmail(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.email = email
	s.emailErr = nil
}

// SetPostalCode stores the code and drops any quote resolved for a
// different one.
func (s *Sequencer) SetPostalCode(postalCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if postalCode != s.postalCode {
		s.quote = decimal.NullDecimal{}
	}
	s.postalCode = postalCode
	s.postalErr = nil
}

// CalculateShipping asks the quote service for the current postal code. The
// result is kept only if the postal code was not edited in the meantime.
func (s *Sequencer) CalculateShipping(ctx context.Context, items []cart.LineItem) (decimal.Decimal, error) {
	s.mu.Lock()
	if s.status == StatusSubmitting {
		s.mu.Unlock()
		return decimal.Zero, error_messages.ErrSubmissionInProgress
	}
	postalCode := s.postalCode
	if strings.TrimSpace(postalCode) == "" {
		s.postalErr = error_messages.ErrPostalCodeRequired
		s.mu.Unlock()
		return decimal.Zero, &error_messages.FieldError{Field: FieldPostalCode, Err: error_messages.ErrPostalCodeRequired}
	}
	s.status = StatusQuoteLookup
	s.postalErr = nil
	s.quote = decimal.NullDecimal{}
	s.mu.Unlock()

	quote, err := s.quotes.ShippingQuote(ctx, postalCode, items)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusQuoteLookup {
		s.status = StatusIdle
	}

	if s.postalCode != postalCode {
		log.Printf("CalculateShipping: postal code changed during lookup, dropping quote for %s\n", postalCode)
		return decimal.Zero, &error_messages.FieldError{Field: FieldPostalCode, Err: error_messages.ErrQuoteRequired}
	}

	if err != nil {
		var fieldErr error
		var invalid *error_messages.InvalidPostalCodeError
		switch {
		case errors.As(err, &invalid):
			fieldErr = invalid
		default:
			log.Printf("CalculateShipping: quote lookup for %s failed: %v\n", postalCode, err)
			fieldErr = error_messages.ErrQuoteFailed
		}
		s.postalErr = fieldErr
		return decimal.Zero, &error_messages.FieldError{Field: FieldPostalCode, Err: fieldErr}
	}

	s.quote = decimal.NewNullDecimal(quote)
	return quote, nil
}

// ConfirmPurchase checks the preconditions, creates the order and follows
// its redirect. Nothing is sent to the order service unless the email is
// well formed, a postal code is present and a quote is resolved for it.
// Once an order is created the sequencer stays redirecting until Reset, and
// further confirms return the same URL without sending anything.
func (s *Sequencer) ConfirmPurchase(ctx context.Context, sessionID string, items []cart.LineItem) (string, error) {
	s.mu.Lock()
	switch s.status {
	case StatusSubmitting:
		s.mu.Unlock()
		return "", error_messages.ErrSubmissionInProgress
	case StatusRedirecting:
		url := s.redirectURL
		s.mu.Unlock()
		log.Printf("ConfirmPurchase: order for %s already created, repeating redirect\n", sessionID)
		return url, nil
	}
	if err := s.validate(); err != nil {
		s.mu.Unlock()
		return "", err
	}
	if len(items) == 0 {
		s.mu.Unlock()
		return "", error_messages.ErrEmptyCart
	}

	order := Order{
		SessionID:     sessionID,
		Items:         OrderItems(items),
		Email:         s.email,
		PostalCode:    s.postalCode,
		ShippingQuote: s.quote.Decimal,
	}
	if s.attempt != nil && s.attempt.sameAttempt(order) {
		order.IdempotencyKey = s.attempt.IdempotencyKey
	} else {
		order.IdempotencyKey = uuid.NewString()
	}
	s.attempt = &order
	s.status = StatusSubmitting
	s.failure = ""
	s.mu.Unlock()

	url, err := s.orders.CreateOrder(ctx, order)

	s.mu.Lock()
	if err != nil {
		s.status = StatusFailed
		s.failure = err.Error()
		s.mu.Unlock()
		log.Printf("ConfirmPurchase: order creation for %s failed: %v\n", sessionID, err)
		return "", fmt.Errorf("%w: %v", error_messages.ErrOrderFailed, err)
	}
	s.status = StatusRedirecting
	s.redirectURL = url
	s.mu.Unlock()

	if s.redirect != nil {
		s.redirect(url)
	}
	return url, nil
}

// validate must be called with s.mu held.
func (s *Sequencer) validate() error {
	if strings.TrimSpace(s.email) == "" {
		s.emailErr = error_messages.ErrEmailRequired
		return &error_messages.FieldError{Field: FieldEmail, Err: s.emailErr}
	}
	if !emailPattern.MatchString(s.email) {
		s.emailErr = error_messages.ErrEmailInvalid
		return &error_messages.FieldError{Field: FieldEmail, Err: s.emailErr}
	}
	if strings.TrimSpace(s.postalCode) == "" {
		s.postalErr = error_messages.ErrPostalCodeRequired
		return &error_messages.FieldError{Field: FieldPostalCode, Err: s.postalErr}
	}
	if !s.quote.Valid {
		s.postalErr = error_messages.ErrQuoteRequired
		return &error_messages.FieldError{Field: FieldPostalCode, Err: s.postalErr}
	}
	return nil
}

func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Email:         s.email,
		PostalCode:    s.postalCode,
		ShippingQuote: s.quote,
		Status:        s.status,
		Failure:       s.failure,
		Redirect:      s.redirectURL,
	}
	if s.emailErr != nil {
		st.EmailError = s.emailErr.Error()
	}
	if s.postalErr != nil {
		st.PostalError = s.postalErr.Error()
	}
	return st
}

// Total adds the resolved quote, if any, to the cart subtotal.
func (st State) Total(subtotal decimal.Decimal) decimal.Decimal {
	if st.ShippingQuote.Valid {
		return subtotal.Add(st.ShippingQuote.Decimal)
	}
	return subtotal
}

// Reset returns the sequencer to a fresh idle state.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.email = ""
	s.postalCode = ""
	s.quote = decimal.NullDecimal{}
	s.status = StatusIdle
	s.failure = ""
	s.emailErr = nil
	s.postalErr = nil
	s.redirectURL = ""
	s.attempt = nil
}
