package main

import (
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"storefront/api/external"
	"storefront/api/site"
	"storefront/cache"
	"storefront/cart"
	"storefront/checkout"
	"storefront/config"
	"storefront/session"
	"storefront/theme"

	"github.com/gorilla/csrf"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	config.InitConf()

	// set log output, rotated by size
	logFile := &lumberjack.Logger{
		Filename:   config.LOGFILE,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
	}
	defer logFile.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))

	CSRF := csrf.Protect(
		[]byte(config.CSRF_AUTH_TOKEN),
		csrf.SameSite(csrf.SameSiteStrictMode),
		//csrf.Secure(false), // REMOVE IN PRODUCTION
	)

	mux := http.NewServeMux()
	webhook_mux := http.NewServeMux()

	cart.InitDatabase(config.DATABASE)

	store := external.NewStoreClient(config.STORE_API_URL, config.STORE_API_BYPASS_TOKEN)
	if config.REDIS_ADDR != "" {
		rdb := redis.NewClient(&redis.Options{Addr: config.REDIS_ADDR})
		defer rdb.Close()
		store.WithProductCache(cache.NewRedisProductCache(rdb, config.PRODUCT_CACHE_TTL))
		log.Printf("Caching products in redis at %s\n", config.REDIS_ADDR)
	}

	var quotes checkout.QuoteService = store
	if config.SHIPPING_PROVIDER == "printify" {
		quotes = external.NewPrintifyQuoter(config.PRINTIFY_API_TOKEN, config.SHOP_ID, config.SHIPPING_COUNTRY)
	}

	var orders checkout.OrderService = store
	if config.ORDER_PROVIDER == "stripe" {
		orders = external.NewStripeCheckout(config.STRIPE_SECRET, store, cart.Repo, config.CURRENCY, config.SITE_URL)
		external.InitWebhook(webhook_mux, config.STRIPE_WEBHOOK_SECRET)
	} else {
		external.InitMetrics(webhook_mux)
	}
	log.Printf("Shipping quotes from %s, orders through %s\n", config.SHIPPING_PROVIDER, config.ORDER_PROVIDER)

	// stripe returns through /api/checkout/success and the webhook, the store's
	// payment page does not
	session.InitCheckout(quotes, orders, config.ORDER_PROVIDER != "stripe")
	hub := theme.NewHub()
	site.InitHandlers(mux, store, hub, config.SITE_URL)

	go func() {
		for range time.Tick(time.Hour) {
			sessions := session.Sweep(session.CookieLifetime)
			themes := hub.Expire(session.CookieLifetime)
			log.Printf("Swept %d idle sessions and %d themes\n", sessions, themes)
		}
	}()

	log.Printf("Beginning to listen on %s and %s\n", config.LISTEN_ADDR, config.WEBHOOK_ADDR)
	go http.ListenAndServe(config.WEBHOOK_ADDR, webhook_mux)
	err := http.ListenAndServe(config.LISTEN_ADDR, CSRF(mux))
	log.Fatal(err)
}
