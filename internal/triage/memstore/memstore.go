// Package memstore provides a bounded in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/linnemanlabs/medassist/internal/triage"
)

// DefaultSize is the number of results retained when New is given a
// non-positive size.
const DefaultSize = 1024

// Store holds the most recent triage results in memory. The oldest result
// is evicted once the store is full. Suitable for dev/testing.
type Store struct {
	cache *lru.Cache[string, *triage.Result] // request ID -> result
}

// New initializes a new in-memory Store holding at most size results.
func New(size int) (*Store, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[string, *triage.Result](size)
	if err != nil {
		return nil, fmt.Errorf("memstore: %w", err)
	}
	return &Store{cache: c}, nil
}

// Get retrieves a triage result by its request ID. Returns a copy.
// Lookups do not affect eviction order.
func (s *Store) Get(_ context.Context, id string) (*triage.Result, bool, error) {
	r, ok := s.cache.Peek(id)
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

// Put stores a copy of the triage result.
func (s *Store) Put(_ context.Context, r *triage.Result) error {
	if r == nil || r.RequestID == "" {
		return fmt.Errorf("memstore: result without request id")
	}
	s.cache.Add(r.RequestID, r.Clone())
	return nil
}

// Recent returns up to limit results, newest first by timestamp with the
// request ID breaking ties, matching the postgres store's ordering.
func (s *Store) Recent(_ context.Context, limit int) ([]*triage.Result, error) {
	keys := s.cache.Keys()
	all := make([]*triage.Result, 0, len(keys))
	for _, k := range keys {
		// evicted between Keys and Peek
		r, ok := s.cache.Peek(k)
		if !ok {
			continue
		}
		all = append(all, r)
	}

	slices.SortFunc(all, func(a, b *triage.Result) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(b.RequestID, a.RequestID)
	})

	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]*triage.Result, limit)
	for i, r := range all[:limit] {
		out[i] = r.Clone()
	}
	return out, nil
}

// Len reports the number of stored results.
func (s *Store) Len() int {
	return s.cache.Len()
}
