// Package middleware provides per-client rate limiting for the login and
// token endpoints.
//
// Each client IP gets a golang.org/x/time/rate token bucket. Buckets live in
// an expiring LRU so the table stays bounded:
//
//	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{RequestsPerSecond: 5, BurstSize: 20})
//	router.Handle("/-/v1/login", limiter.Handler(loginHandler))
package middleware
