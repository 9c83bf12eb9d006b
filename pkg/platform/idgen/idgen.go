// Package idgen generates opaque identifiers for values a real provider or
// ledger would assign.
package idgen

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// UUID yields "<prefix>-<uuid>" identifiers.
type UUID struct{}

func (UUID) NewID(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}

// Sequence yields "<prefix>-<n>" with a per-prefix counter. Used by tests and
// local runs that want readable token ids.
type Sequence struct {
	mu    sync.Mutex
	start int
	next  map[string]int
}

// NewSequence starts every prefix at start.
func NewSequence(start int) *Sequence {
	return &Sequence{start: start, next: make(map[string]int)}
}

func (s *Sequence) NewID(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.next[prefix]
	if !ok {
		n = s.start
	}
	s.next[prefix] = n + 1
	return strings.TrimPrefix(fmt.Sprintf("%s-%d", prefix, n), "-")
}
