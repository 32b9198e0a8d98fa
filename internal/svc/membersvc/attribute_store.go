package membersvc

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// AttributeStore is the identity host's per-member storage for generic
// attributes and first-class profile values. Values are always copied in and out.
type AttributeStore interface {
	Attribute(ctx context.Context, name string) []string
	Attributes(ctx context.Context) map[string][]string
	SetAttribute(ctx context.Context, name string, values []string)
	RemoveAttribute(ctx context.Context, name string)

	// SetProfile sets a profile value; nil clears it.
	SetProfile(ctx context.Context, field ProfileField, value *string)
	Profile(ctx context.Context, field ProfileField) (string, bool)
}

// MemoryAttributeStore is an in-process AttributeStore.
type MemoryAttributeStore struct {
	mu         sync.RWMutex
	attributes map[string][]string
	profile    map[ProfileField]string
}

var _ AttributeStore = (*MemoryAttributeStore)(nil)

// NewMemoryAttributeStore creates an empty store.
func NewMemoryAttributeStore() *MemoryAttributeStore {
	return &MemoryAttributeStore{
		attributes: make(map[string][]string),
		profile:    make(map[ProfileField]string),
	}
}

func (s *MemoryAttributeStore) Attribute(_ context.Context, name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.attributes[name])
}

func (s *MemoryAttributeStore) Attributes(_ context.Context) map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]string, len(s.attributes))
	for name, values := range s.attributes {
		out[name] = slices.Clone(values)
	}

	return out
}

func (s *MemoryAttributeStore) SetAttribute(_ context.Context, name string, values []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attributes[name] = slices.Clone(values)
}

func (s *MemoryAttributeStore) RemoveAttribute(_ context.Context, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.attributes, name)
}

func (s *MemoryAttributeStore) SetProfile(_ context.Context, field ProfileField, value *string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value == nil {
		delete(s.profile, field)

		return
	}

	s.profile[field] = *value
}

func (s *MemoryAttributeStore) Profile(_ context.Context, field ProfileField) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.profile[field]

	return value, ok
}

// ProfileSnapshot returns a copy of all profile values.
func (s *MemoryAttributeStore) ProfileSnapshot() map[ProfileField]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.profile)
}
