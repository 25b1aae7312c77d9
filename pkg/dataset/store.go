package dataset

import (
	"context"
	"sync/atomic"

	"github.com/nutriempower/nutriempower/pkg/models"
)

type loaded struct {
	records []models.FoodRecord
	source  models.DatasetSource
}

// Store holds the process-wide record set. It is published once and read
// concurrently without locking.
type Store struct {
	current atomic.Pointer[loaded]
}

// NewStore returns an empty, not yet ready Store.
func NewStore() *Store {
	return &Store{}
}

// Set publishes the record set. Callers must not mutate records afterwards.
func (s *Store) Set(records []models.FoodRecord, source models.DatasetSource) {
	s.current.Store(&loaded{records: records, source: source})
}

// Records returns the published record set, or nil before Set.
func (s *Store) Records() []models.FoodRecord {
	if l := s.current.Load(); l != nil {
		return l.records
	}
	return nil
}

// Info describes the published record set.
func (s *Store) Info() models.DatasetInfo {
	l := s.current.Load()
	if l == nil {
		return models.DatasetInfo{Source: models.SourceNone}
	}
	return models.DatasetInfo{Source: l.source, Records: len(l.records), Ready: true}
}

// LoadInBackground runs loader.Load on its own goroutine and publishes the
// result. The returned channel is closed once the store is populated.
func (s *Store) LoadInBackground(ctx context.Context, loader *Loader) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		records, source := loader.Load(ctx)
		s.Set(records, source)
	}()
	return done
}
