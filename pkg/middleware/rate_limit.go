package middleware

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/bizdash/orgsync/pkg/httpapi"
)

const rateLimitPrefix = "orgsync:limiter"

func NewMemoryStore() limiter.Store {
	return memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: rateLimitPrefix})
}

func NewRedisStore(client *redis.Client) (limiter.Store, error) {
	return sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: rateLimitPrefix})
}

type RateLimitConfig struct {
	// Rate in limiter format, e.g. "100-M".
	Rate  string
	Store limiter.Store
}

// RateLimit limits requests per client IP and answers 429 with the JSON error
// envelope once the budget is spent.
func RateLimit(cfg RateLimitConfig) (mux.MiddlewareFunc, error) {
	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", cfg.Rate, err)
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	mw := stdlib.NewMiddleware(
		limiter.New(store, rate),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, _ *http.Request) {
			_ = httpapi.WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
		}),
	)
	return mw.Handler, nil
}
