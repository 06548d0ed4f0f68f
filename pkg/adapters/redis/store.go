package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/callflow/pkg/domain"
)

// Store is the storage behind a Recorder.
type Store interface {
	Append(ctx context.Context, sessionID string, entry Entry) error
	// Transcript returns domain.ErrSessionNotFound when nothing is recorded.
	Transcript(ctx context.Context, sessionID string) ([]Entry, error)
	Sessions(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, sessionID string) error
}

// neverExpires is the index score of transcripts without a TTL (2100-01-01).
const neverExpires = 4102444800

type redisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

func (s *redisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *redisStore) indexKey() string {
	return s.prefix + "index"
}

func (s *redisStore) Append(ctx context.Context, sessionID string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.key(sessionID), data)

	// Index score is the expiry time, so Sessions can prune lazily.
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(sessionID), s.ttl)
	} else {
		score = neverExpires
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: sessionID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append to redis: %w", err)
	}
	return nil
}

func (s *redisStore) Transcript(ctx context.Context, sessionID string) ([]Entry, error) {
	vals, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	if len(vals) == 0 {
		return nil, domain.ErrSessionNotFound
	}

	entries := make([]Entry, 0, len(vals))
	for _, v := range vals {
		var e Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *redisStore) Sessions(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired transcripts: %w", err)
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	return ids, nil
}

func (s *redisStore) Delete(ctx context.Context, sessionID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(sessionID))
	pipe.ZRem(ctx, s.indexKey(), sessionID)
	_, err := pipe.Exec(ctx)
	return err
}
