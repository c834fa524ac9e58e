// Package idgen provides the identifier generators used by the emulations:
// prefixed sequential IDs for records that need stable, assertable ordering,
// and random hexadecimal entity tags for object versions. Generators are
// plain values owned by their component rather than package globals, so
// resetting one component never disturbs another.
package idgen

import (
	"encoding/hex"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// Sequence issues monotonically increasing identifiers starting at 1. The
// zero value is usable and produces bare numeric IDs; NewSequence attaches a
// prefix.
//
// All methods are safe for concurrent use.
type Sequence struct {
	mu     sync.Mutex
	prefix string
	last   int64
}

// NewSequence creates a sequence whose IDs carry the given prefix, formatted
// as "prefix-N".
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// Next returns the next identifier in the sequence.
func (s *Sequence) Next() string {
	n := s.NextInt()
	if s.prefix == "" {
		return strconv.FormatInt(n, 10)
	}
	return s.prefix + "-" + strconv.FormatInt(n, 10)
}

// NextInt returns the next raw sequence number. The first call returns 1.
func (s *Sequence) NextInt() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last++
	return s.last
}

// Current returns the most recently issued sequence number without advancing.
func (s *Sequence) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Reset rewinds the sequence so the next identifier is 1 again.
func (s *Sequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = 0
}

// ETag returns a fresh random 32-character lowercase hexadecimal entity tag,
// the shape object stores report for uploaded content.
func ETag() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
