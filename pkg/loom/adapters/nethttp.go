package adapters

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/toyz/loom/pkg/loom"
)

// maxBodyBytes caps the request body read by the net/http based adapters
const maxBodyBytes = 10 << 20

// dispatchHandler is the catch-all net/http handler shared by the
// net/http, chi and gorilla/mux adapters
func dispatchHandler(app *loom.Application, cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		serve(app, cfg, inbound{
			ctx:       r.Context(),
			method:    r.Method,
			path:      r.URL.Path,
			rawQuery:  r.URL.RawQuery,
			body:      body,
			requestID: r.Header.Get(RequestIDHeader),
		}).write(w)
	}
}

// HTTPHandler serves app with the standard library mux, wrapped with the
// optional metrics endpoint, rate limiting and CORS
func HTTPHandler(app *loom.Application, cfg Config) http.Handler {
	mux := http.NewServeMux()
	if cfg.Metrics != nil {
		mux.Handle(cfg.metricsPath(), cfg.Metrics.Handler())
	}
	mux.Handle("/", dispatchHandler(app, cfg))

	var handler http.Handler = mux
	if cfg.RateLimit > 0 {
		handler = NewRateLimiter(cfg.RateLimit, cfg.RateBurst, 0).Handler(handler)
	}
	if len(cfg.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
			ExposedHeaders:   []string{RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}).Handler(handler)
	}
	if cfg.Metrics != nil {
		handler = cfg.Metrics.InstrumentHandler(handler)
	}
	return handler
}

// limiterIdle is how long an unused per-client limiter is kept
const limiterIdle = 10 * time.Minute

// RateLimiter limits requests per client address. Limiters of clients that
// stay idle longer than the idle timeout are evicted.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *cache.Cache
	rate     rate.Limit
	burst    int
}

// NewRateLimiter allows perSecond requests per client with the given burst.
// A non-positive idle uses the ten minute default.
func NewRateLimiter(perSecond float64, burst int, idle time.Duration) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if idle <= 0 {
		idle = limiterIdle
	}
	return &RateLimiter{
		limiters: cache.New(idle, idle),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	var limiter *rate.Limiter
	if v, ok := rl.limiters.Get(key); ok {
		limiter = v.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
	}
	// refresh the idle deadline on every request
	rl.limiters.Set(key, limiter, cache.DefaultExpiration)
	return limiter
}

// Prune drops the limiters of idle clients without waiting for the janitor
func (rl *RateLimiter) Prune() {
	rl.limiters.DeleteExpired()
}

// Len returns the number of tracked clients, including expired ones not yet pruned
func (rl *RateLimiter) Len() int {
	return rl.limiters.ItemCount()
}

// Handler answers 429 once a client exceeds its budget
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if host, _, err := net.SplitHostPort(key); err == nil {
			key = host
		}
		if !rl.limiter(key).Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
