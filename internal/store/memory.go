package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// MemorySessionStore is a concurrency-safe in-memory session store.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session)}
}

func (s *MemorySessionStore) Get(_ context.Context, orgID string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[orgID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

func (s *MemorySessionStore) Put(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.OrgID] = session
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[orgID]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, orgID)
	return nil
}

func (s *MemorySessionStore) List(_ context.Context) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out, nil
}

// MemoryStateStore is a concurrency-safe in-memory pending-state store.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]State)}
}

func (s *MemoryStateStore) Put(_ context.Context, state string, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state] = st
	return nil
}

// Consume returns the entry and deletes it in the same critical section,
// so a state token can be redeemed at most once.
func (s *MemoryStateStore) Consume(_ context.Context, state string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[state]
	if !ok {
		return State{}, ErrNotFound
	}
	delete(s.states, state)
	return st, nil
}

func (s *MemoryStateStore) DeleteExpired(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int
	for key, st := range s.states {
		if st.CreatedAt.Before(olderThan) {
			delete(s.states, key)
			removed++
		}
	}
	return removed, nil
}

// MemoryStationCache caches station entities per organization.
type MemoryStationCache struct {
	mu       sync.RWMutex
	stations map[string][]json.RawMessage
}

func NewMemoryStationCache() *MemoryStationCache {
	return &MemoryStationCache{stations: make(map[string][]json.RawMessage)}
}

func (c *MemoryStationCache) Get(orgID string) ([]json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list, ok := c.stations[orgID]
	if !ok || len(list) == 0 {
		return nil, false
	}
	out := make([]json.RawMessage, len(list))
	copy(out, list)
	return out, true
}

func (c *MemoryStationCache) Replace(orgID string, stations []json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stations[orgID] = stations
}

func (c *MemoryStationCache) Append(orgID string, station json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stations[orgID] = append(c.stations[orgID], station)
}

// Remove drops the cached entity whose "id" field matches stationID.
func (c *MemoryStationCache) Remove(orgID, stationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.stations[orgID]
	filtered := list[:0]
	for _, raw := range list {
		if entityID(raw) != stationID {
			filtered = append(filtered, raw)
		}
	}
	c.stations[orgID] = filtered
}

func (c *MemoryStationCache) Clear(orgID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.stations, orgID)
}

// Sizes reports the cached station count per organization.
func (c *MemoryStationCache) Sizes() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]int, len(c.stations))
	for org, list := range c.stations {
		out[org] = len(list)
	}
	return out
}

func entityID(raw json.RawMessage) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.ID
}

// MemoryFeedCache caches feed definitions keyed by "{org}-{feed name}".
type MemoryFeedCache struct {
	mu   sync.RWMutex
	defs map[string]json.RawMessage
}

func NewMemoryFeedCache() *MemoryFeedCache {
	return &MemoryFeedCache{defs: make(map[string]json.RawMessage)}
}

func (c *MemoryFeedCache) Get(key string) (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.defs[key]
	return def, ok
}

func (c *MemoryFeedCache) Put(key string, def json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.defs[key] = def
}

// ClearOrg removes every definition whose key is prefixed by the
// organization identifier.
func (c *MemoryFeedCache) ClearOrg(orgID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.defs {
		if strings.HasPrefix(key, orgID+"-") {
			delete(c.defs, key)
		}
	}
}
