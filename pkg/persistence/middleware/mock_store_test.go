package middleware_test

import (
	"context"

	"github.com/aretw0/callflow/pkg/adapters/redis"
	"github.com/aretw0/callflow/pkg/domain"
)

// MockStore is a simple map-based store for testing middleware.
type MockStore struct {
	data map[string][]redis.Entry
}

func NewMockStore() *MockStore {
	return &MockStore{
		data: make(map[string][]redis.Entry),
	}
}

func (s *MockStore) Append(ctx context.Context, sessionID string, entry redis.Entry) error {
	s.data[sessionID] = append(s.data[sessionID], entry)
	return nil
}

func (s *MockStore) Transcript(ctx context.Context, sessionID string) ([]redis.Entry, error) {
	entries, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return append([]redis.Entry(nil), entries...), nil
}

func (s *MockStore) Sessions(ctx context.Context) ([]string, error) {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *MockStore) Delete(ctx context.Context, sessionID string) error {
	delete(s.data, sessionID)
	return nil
}

var _ redis.Store = (*MockStore)(nil)
