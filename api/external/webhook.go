package external

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"storefront/cart"
	"storefront/metrics"
	"storefront/session"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

var endpointSecret string

func InitWebhook(mux *http.ServeMux, webhook_secret string) {
	endpointSecret = webhook_secret

	mux.HandleFunc("/webhook", handleWebhook)
	InitMetrics(mux)
}

// InitMetrics exposes the prometheus registry on the internal mux.
func InitMetrics(mux *http.ServeMux) {
	mux.Handle("/metrics", metrics.Handler())
}

func handleWebhook(w http.ResponseWriter, req *http.Request) {
	const MaxBodyBytes = int64(65536)
	req.Body = http.MaxBytesReader(w, req.Body, MaxBodyBytes)
	payload, err := io.ReadAll(req.Body)
	if err != nil {
		log.Printf("handleWebhook: Error reading request body: %v\n", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	signatureHeader := req.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, signatureHeader, endpointSecret)
	if err != nil {
		log.Printf("Error in handleWebhook: Webhook signature verification failed. %v\n", err)
		w.WriteHeader(http.StatusBadRequest) // Return a 400 error on a bad signature
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		err := json.Unmarshal(event.Data.Raw, &cs)
		if err != nil {
			log.Printf("Error parsing webhook JSON: %v\n", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		log.Printf("Checkout session %s completed\n", cs.ID)
		metrics.CheckoutOutcomes.WithLabelValues("payment", "completed").Inc()
		if err := handleCheckoutCompleted(cs); err != nil {
			log.Printf("Error in handleCheckoutCompleted: %v\n", err)
		}
	case "checkout.session.expired":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			log.Printf("Error parsing webhook JSON: %v\n", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		log.Printf("Checkout session %s expired without payment\n", cs.ID)
		metrics.CheckoutOutcomes.WithLabelValues("payment", "expired").Inc()
	}

	w.WriteHeader(http.StatusOK)
}

// handleCheckoutCompleted empties the paid cart for the buyer.
func handleCheckoutCompleted(cs stripe.CheckoutSession) error {
	shopping_cart, err := cart.Repo.GetCartByPaymentRef(cs.ID)
	if err != nil {
		log.Printf("handleCheckoutCompleted: Could not retrieve cart for %s: %v\n", cs.ID, err)
		return err
	}
	return session.ClearSession(shopping_cart.SessionID)
}
