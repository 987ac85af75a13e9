// Package memorystate is an in-memory StateStore used by tests and local
// runs. It honors the same versioning and TTL contract as the Redis adapter.
package memorystate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taxops/season-orchestrator/internal/core/domain"
	"github.com/taxops/season-orchestrator/internal/core/ports"
)

type entry struct {
	value     []byte
	version   uint64
	expiresAt time.Time
}

type Store struct {
	mu   sync.Mutex
	data map[string]entry
	sets map[string]map[string]struct{}

	// Now is swappable so TTL expiry is testable.
	Now func() time.Time
}

func New() *Store {
	return &Store{
		data: make(map[string]entry),
		sets: make(map[string]map[string]struct{}),
		Now:  time.Now,
	}
}

func (s *Store) live(e entry) bool {
	return e.expiresAt.IsZero() || s.Now().Before(e.expiresAt)
}

func (s *Store) Get(_ context.Context, key string) (ports.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok || !s.live(e) {
		return ports.Record{}, domain.WrapError(domain.ErrNotFound, "state get", fmt.Errorf("key %s", key))
	}
	value := make([]byte, len(e.value))
	copy(value, e.value)
	return ports.Record{Value: value, Version: e.version}, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = entry{value: append([]byte(nil), value...), version: 1, expiresAt: s.expiry(ttl)}
	return nil
}

func (s *Store) SetIfVersion(_ context.Context, key string, value []byte, version uint64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := uint64(0)
	if e, ok := s.data[key]; ok && s.live(e) {
		current = e.version
	}
	if current != version {
		return domain.WrapError(domain.ErrConflict, "state cas",
			fmt.Errorf("key %s at version %d, caller had %d", key, current, version))
	}
	s.data[key] = entry{value: append([]byte(nil), value...), version: version + 1, expiresAt: s.expiry(ttl)}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *Store) AddMember(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

func (s *Store) RemoveMember(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.sets[key]; ok {
		delete(set, member)
	}
	return nil
}

func (s *Store) Members(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.sets[key]
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	return members, nil
}

func (s *Store) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.Now().Add(ttl)
}
