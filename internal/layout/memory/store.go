// Package memory is an in-memory layout store, used as the default backend
// and in tests.
package memory

import (
	"fmt"
	"sync"

	"github.com/openkbd/kbscand/internal/ime"
	"github.com/openkbd/kbscand/internal/input"
	"github.com/openkbd/kbscand/internal/layout"
)

type Store struct {
	mu      sync.Mutex
	layouts map[string]layout.Layout
}

func NewStore() *Store {
	return &Store{
		layouts: make(map[string]layout.Layout),
	}
}

func key(dev input.Identity, method ime.MethodID, subtype ime.SubtypeID) string {
	return fmt.Sprintf("%s|%s|%s", dev.Descriptor, method, subtype)
}

func (s *Store) LayoutFor(dev input.Identity, method ime.MethodID, subtype ime.SubtypeID) (*layout.Layout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.layouts[key(dev, method, subtype)]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (s *Store) SetLayout(dev input.Identity, method ime.MethodID, subtype ime.SubtypeID, l layout.Layout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layouts[key(dev, method, subtype)] = l
	return nil
}

func (s *Store) Close() error {
	return nil
}
