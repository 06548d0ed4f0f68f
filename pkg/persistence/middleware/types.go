package middleware

import "github.com/aretw0/callflow/pkg/adapters/redis"

// Middleware allows wrapping a transcript Store to add behavior.
type Middleware func(redis.Store) redis.Store

// Wrappers converts middleware for redis.WithStoreMiddleware.
func Wrappers(mw ...Middleware) []func(redis.Store) redis.Store {
	out := make([]func(redis.Store) redis.Store, len(mw))
	for i, m := range mw {
		out[i] = m
	}
	return out
}
