package exam

import (
	"context"
	"sync"

	"github.com/mind-engage/sashakt-gateway/internal/storage"
)

// Registry hands out one SessionStore per active attempt so concurrent requests
// of the same attempt share its lock.
type Registry struct {
	records storage.RecordStore

	mu     sync.Mutex
	stores map[string]*SessionStore
}

func NewRegistry(records storage.RecordStore) *Registry {
	return &Registry{records: records, stores: map[string]*SessionStore{}}
}

func (r *Registry) Records() storage.RecordStore { return r.records }

func (r *Registry) For(c Candidate) *SessionStore {
	key := SessionKey(c)
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[key]; ok && s.candidate == c {
		return s
	}
	s := NewSessionStore(c, r.records)
	r.stores[key] = s
	return s
}

// Finish clears the stored session of c and forgets its store.
func (r *Registry) Finish(ctx context.Context, c Candidate) error {
	err := r.For(c).Clear(ctx)
	r.Drop(SessionKey(c))
	return err
}

// Drop forgets the store held for key without touching its record.
func (r *Registry) Drop(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stores, key)
}
