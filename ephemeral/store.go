// Package ephemeral provides the short-lived flow token caches: email
// verification, profile completion, password reset, and 2FA challenges.
// Each store is an independent in-memory cache bounded by both a TTL and
// a capacity; under sustained load the least recently used entries are
// evicted before they expire, which callers must tolerate.
package ephemeral

import (
	"container/list"
	"sync"
	"time"

	"github.com/halverstam/accountd/internal"
)

// Record is one flow token. Secret is the opaque value handed to the
// user; either AccountID or Email identifies the subject depending on
// the flow. EmailVerified rides along on profile-completion tokens.
type Record struct {
	Secret        string
	AccountID     string
	Email         string
	EmailVerified bool
	ExpiresAt     time.Time
}

type entry struct {
	key    string
	record Record
}

// Store is a mutex-guarded TTL+LRU cache. All methods are safe for
// concurrent use.
type Store struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	now      func() time.Time
}

// DefaultCapacity bounds each store when New is given capacity <= 0.
const DefaultCapacity = 1000

// New creates a store whose entries live for ttl.
func New(capacity int, ttl time.Duration) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Save mints a fresh secret, stamps the record's expiry, and inserts it.
// The record is stored under primaryKey, or under the minted secret when
// primaryKey is empty. A full store evicts its least recently used entry
// first. The minted secret is returned.
func (s *Store) Save(primaryKey string, record Record) (string, error) {
	secret, err := internal.NewFlowSecret()
	if err != nil {
		return "", err
	}
	record.Secret = secret
	record.ExpiresAt = s.now().Add(s.ttl)

	key := primaryKey
	if key == "" {
		key = secret
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok {
		elem.Value.(*entry).record = record
		s.order.MoveToFront(elem)
		return secret, nil
	}
	for len(s.entries) >= s.capacity {
		s.evictOldest()
	}
	s.entries[key] = s.order.PushFront(&entry{key: key, record: record})
	return secret, nil
}

// Get returns the record stored under key. An expired record is evicted
// and reported as absent; callers cannot tell expiry from absence.
func (s *Store) Get(key string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[key]
	if !ok {
		return Record{}, false
	}
	ent := elem.Value.(*entry)
	if !s.now().Before(ent.record.ExpiresAt) {
		s.removeElement(elem)
		return Record{}, false
	}
	s.order.MoveToFront(elem)
	return ent.record, true
}

// FindBySecret scans for the record embedding the given secret. Needed
// by the email-verification store, which is keyed by address rather than
// by the secret handed to the user. Expired matches are evicted.
func (s *Store) FindBySecret(secret string) (Record, bool) {
	if secret == "" {
		return Record{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for elem := s.order.Front(); elem != nil; elem = elem.Next() {
		ent := elem.Value.(*entry)
		if ent.record.Secret != secret {
			continue
		}
		if !s.now().Before(ent.record.ExpiresAt) {
			s.removeElement(elem)
			return Record{}, false
		}
		s.order.MoveToFront(elem)
		return ent.record, true
	}
	return Record{}, false
}

// Remove deletes the entry under key, if any.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok {
		s.removeElement(elem)
	}
}

// RemoveAllFor deletes every record whose account id or email equals
// subject. Used when a signup is cancelled or stale reset tokens are
// cleared for one address.
func (s *Store) RemoveAllFor(subject string) {
	if subject == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var next *list.Element
	for elem := s.order.Front(); elem != nil; elem = next {
		next = elem.Next()
		ent := elem.Value.(*entry)
		if ent.record.AccountID == subject || ent.record.Email == subject {
			s.removeElement(elem)
		}
	}
}

// Len reports the current entry count, counting not-yet-evicted expired
// entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) evictOldest() {
	if elem := s.order.Back(); elem != nil {
		s.removeElement(elem)
	}
}

func (s *Store) removeElement(elem *list.Element) {
	s.order.Remove(elem)
	delete(s.entries, elem.Value.(*entry).key)
}
