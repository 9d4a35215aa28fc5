package refmap

import (
	"sort"
	"strings"
	"sync"

	"squeeze/internal/cachekey"
)

// Map provides thread-safe access to business-key references.
type Map struct {
	mu      sync.RWMutex
	entries map[cachekey.BusinessKey]string
}

// New returns an empty reference map.
func New() *Map {
	return &Map{entries: make(map[cachekey.BusinessKey]string)}
}

// Record associates key with storeKey, replacing any prior association.
// It returns the store key that was displaced, if any. Empty store keys
// are ignored.
func (m *Map) Record(key cachekey.BusinessKey, storeKey string) (string, bool) {
	storeKey = strings.TrimSpace(storeKey)
	if m == nil || storeKey == "" {
		return "", false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	previous, existed := m.entries[key]
	m.entries[key] = storeKey
	if !existed || previous == storeKey {
		return "", false
	}
	return previous, true
}

// Lookup returns the store key recorded for key, if any.
func (m *Map) Lookup(key cachekey.BusinessKey) (string, bool) {
	if m == nil {
		return "", false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	storeKey, found := m.entries[key]
	return storeKey, found
}

// Remove drops the association for key and returns the store key it held.
func (m *Map) Remove(key cachekey.BusinessKey) (string, bool) {
	if m == nil {
		return "", false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	storeKey, found := m.entries[key]
	if found {
		delete(m.entries, key)
	}
	return storeKey, found
}

// PurgeTask drops every association belonging to taskID, across all
// roles, and returns the store keys they held. An empty taskID addresses
// the current single-file session.
func (m *Map) PurgeTask(taskID string) []string {
	return m.purge(func(key cachekey.BusinessKey) bool {
		return key.TaskID == taskID
	})
}

// PurgeRole drops every association with the given role and returns the
// store keys they held.
func (m *Map) PurgeRole(role cachekey.Role) []string {
	return m.purge(func(key cachekey.BusinessKey) bool {
		return key.Role == role
	})
}

// Clear drops all associations and returns the store keys they held.
func (m *Map) Clear() []string {
	return m.purge(func(cachekey.BusinessKey) bool { return true })
}

// Len returns the number of recorded associations.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

func (m *Map) purge(match func(cachekey.BusinessKey) bool) []string {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for key, storeKey := range m.entries {
		if !match(key) {
			continue
		}
		removed = append(removed, storeKey)
		delete(m.entries, key)
	}

	// Sort for deterministic output
	sort.Strings(removed)
	return removed
}
