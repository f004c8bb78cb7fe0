package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/code-payments/purchase-engine/model"
	"github.com/code-payments/purchase-engine/verified"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*verified.Record
}

func NewInMemory() verified.Store {
	return &InMemoryStore{
		records: map[string]*verified.Record{},
	}
}

func (s *InMemoryStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*verified.Record)
}

func key(platform model.Platform, productID string) string {
	return string(platform) + ":" + productID
}

func (s *InMemoryStore) Put(ctx context.Context, record *verified.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key(record.Platform, record.ProductID)] = record.Clone()
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, platform model.Platform, productID string) (*verified.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[key(platform, productID)]
	if !ok {
		return nil, verified.ErrNotFound
	}
	return record.Clone(), nil
}

func (s *InMemoryStore) List(ctx context.Context, platform model.Platform) ([]*verified.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*verified.Record
	for _, record := range s.records {
		if record.Platform == platform {
			out = append(out, record.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out, nil
}
