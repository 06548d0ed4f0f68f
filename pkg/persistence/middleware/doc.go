// Package middleware wraps transcript stores to protect what they keep.
//
// NewPIIMiddleware masks sensitive text (card numbers, emails) before it is
// written. NewEncryptionMiddleware seals entry text with AES-GCM and reads
// entries sealed with rotated keys. Compose them with the Recorder option:
//
//	rec := redis.New(addr, "", 0,
//		redis.WithStoreMiddleware(middleware.Wrappers(pii, enc)...),
//	)
//
// Put masking before encryption so the masked text is what gets sealed.
package middleware
