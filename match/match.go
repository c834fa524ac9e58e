// Package match implements the first-match-wins rule resolution used by the
// scripted emulations in this module. A chain holds plain substring rules and
// regular-expression rules; lookups consult every substring rule, in the
// order they were added, before any regular-expression rule is tried.
package match

import (
	"regexp"
	"strings"
	"sync"
)

// Chain resolves values against an ordered set of rules. The zero value is
// not usable; construct with New.
//
// All methods are safe for concurrent use.
type Chain[T any] struct {
	mu      sync.Mutex
	strings []stringRule[T]
	regexps []regexpRule[T]
}

type stringRule[T any] struct {
	substr string
	value  T
}

type regexpRule[T any] struct {
	re    *regexp.Regexp
	value T
}

// New creates an empty rule chain.
func New[T any]() *Chain[T] {
	return &Chain[T]{}
}

// AddString registers a rule matching any input that contains substr.
func (c *Chain[T]) AddString(substr string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strings = append(c.strings, stringRule[T]{substr: substr, value: value})
}

// AddRegexp registers a rule matching any input the expression matches. Nil
// expressions are ignored.
func (c *Chain[T]) AddRegexp(re *regexp.Regexp, value T) {
	if re == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regexps = append(c.regexps, regexpRule[T]{re: re, value: value})
}

// Resolve returns the value of the first rule matching input. Substring rules
// always win over regular-expression rules regardless of the order the rules
// were registered in; within each kind, insertion order decides.
func (c *Chain[T]) Resolve(input string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range c.strings {
		if strings.Contains(input, r.substr) {
			return r.value, true
		}
	}
	for _, r := range c.regexps {
		if r.re.MatchString(input) {
			return r.value, true
		}
	}

	var zero T
	return zero, false
}

// Len returns the total number of registered rules.
func (c *Chain[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.strings) + len(c.regexps)
}

// Clear removes every registered rule.
func (c *Chain[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strings = nil
	c.regexps = nil
}
