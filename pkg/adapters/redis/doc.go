// Package redis records conversation transcripts in Redis. Transcripts are an
// audit trail; sessions are never restored from them.
package redis
