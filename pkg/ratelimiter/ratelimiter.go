package ratelimiter

// RateLimiter is the interface for rate limiting. Allow returns true
// if the request may proceed.
type RateLimiter interface {
	Allow() bool
}
