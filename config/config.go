package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var (
	STORE_API_URL          = ""
	STORE_API_BYPASS_TOKEN = ""
	SITE_URL               = ""
	LISTEN_ADDR            = "localhost:4242"
	WEBHOOK_ADDR           = "localhost:4343"
	DATABASE               = "sqlite.db"
	LOGFILE                = "storefront.log"
	CSRF_AUTH_TOKEN        = ""

	// "store" or "printify"
	SHIPPING_PROVIDER = "store"
	// "store" or "stripe"
	ORDER_PROVIDER = "store"

	PRINTIFY_API_TOKEN = ""
	SHOP_ID            = 0
	SHIPPING_COUNTRY   = "AR"

	STRIPE_SECRET         = ""
	STRIPE_WEBHOOK_SECRET = ""
	CURRENCY              = "ars"

	REDIS_ADDR        = ""
	PRODUCT_CACHE_TTL = 5 * time.Minute
)

func InitConf() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Error loading .env file")
	}

	STORE_API_URL = os.Getenv("STORE_API_URL")
	if STORE_API_URL == "" {
		log.Fatal("STORE_API_URL is required")
	}
	STORE_API_BYPASS_TOKEN = os.Getenv("STORE_API_BYPASS_TOKEN")

	SITE_URL = getenv("SITE_URL", "http://localhost:5173")
	LISTEN_ADDR = getenv("LISTEN_ADDR", LISTEN_ADDR)
	WEBHOOK_ADDR = getenv("WEBHOOK_ADDR", WEBHOOK_ADDR)
	DATABASE = getenv("DATABASE", DATABASE)
	LOGFILE = getenv("LOGFILE", LOGFILE)

	CSRF_AUTH_TOKEN = os.Getenv("CSRF_AUTH_TOKEN")
	if len(CSRF_AUTH_TOKEN) != 32 {
		log.Fatal("CSRF_AUTH_TOKEN must be 32 bytes long")
	}

	SHIPPING_PROVIDER = getenv("SHIPPING_PROVIDER", SHIPPING_PROVIDER)
	ORDER_PROVIDER = getenv("ORDER_PROVIDER", ORDER_PROVIDER)

	PRINTIFY_API_TOKEN = os.Getenv("PRINTIFY_API_TOKEN")
	if SHIPPING_PROVIDER == "printify" {
		SHOP_ID, err = strconv.Atoi(os.Getenv("SHOP_ID"))
		if err != nil {
			log.Fatal("SHOP_ID could not be converted to int")
		}
	}
	SHIPPING_COUNTRY = getenv("SHIPPING_COUNTRY", SHIPPING_COUNTRY)

	STRIPE_SECRET = os.Getenv("STRIPE_SECRET")
	STRIPE_WEBHOOK_SECRET = os.Getenv("STRIPE_WEBHOOK_SECRET")
	CURRENCY = getenv("CURRENCY", CURRENCY)

	REDIS_ADDR = os.Getenv("REDIS_ADDR")
	if ttl := os.Getenv("PRODUCT_CACHE_TTL"); ttl != "" {
		PRODUCT_CACHE_TTL, err = time.ParseDuration(ttl)
		if err != nil {
			log.Fatal("PRODUCT_CACHE_TTL could not be parsed as a duration")
		}
	}
}

func getenv(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
