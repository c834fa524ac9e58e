package kv

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	testutils "github.com/FlashGalatine/xivdyetools-test-utils"
	"github.com/FlashGalatine/xivdyetools-test-utils/opmetrics"
)

// DefaultListLimit caps List results when no explicit limit is provided.
const DefaultListLimit = 1000

// Operation names used for instrumentation.
const (
	opGet             = "get"
	opGetWithMetadata = "get_with_metadata"
	opPut             = "put"
	opDelete          = "delete"
	opList            = "list"
)

// ValueType selects the shape Get returns a stored value in.
type ValueType string

const (
	// TypeText returns the value as a string. This is the default.
	TypeText ValueType = "text"

	// TypeJSON decodes the value as JSON. Values that fail to decode are
	// returned as their raw text instead.
	TypeJSON ValueType = "json"

	// TypeArrayBuffer returns the value as a byte slice.
	TypeArrayBuffer ValueType = "arrayBuffer"

	// TypeStream returns the value as an io.Reader.
	TypeStream ValueType = "stream"
)

// GetOptions controls how Get and GetWithMetadata materialize values.
type GetOptions struct {
	// Type selects the returned value shape. Empty defaults to TypeText.
	Type ValueType `json:"type"`
}

// PutOptions carries the optional attributes of a write.
type PutOptions struct {
	// ExpirationTTL is the number of seconds from now until the entry
	// expires. It wins over Expiration when both are set.
	ExpirationTTL int64 `json:"expirationTtl"`

	// Expiration is an absolute expiry instant in Unix seconds.
	Expiration int64 `json:"expiration"`

	// Metadata is an arbitrary JSON-serializable value stored alongside
	// the entry.
	Metadata any `json:"metadata"`
}

// ListOptions filters and bounds a List call.
type ListOptions struct {
	// Prefix restricts results to keys beginning with this string.
	Prefix string `json:"prefix"`

	// Limit caps the number of returned keys. Zero or negative values
	// default to DefaultListLimit.
	Limit int `json:"limit"`
}

// Key describes one live entry in a ListResult.
type Key struct {
	// Name is the entry key.
	Name string `json:"name"`

	// Expiration is the expiry instant in Unix seconds, absent for
	// entries that never expire.
	Expiration int64 `json:"expiration,omitempty"`

	// Metadata is the metadata stored with the entry, if any.
	Metadata any `json:"metadata,omitempty"`
}

// ListResult is the result of a List call.
type ListResult struct {
	// Keys holds the matching live entries in lexicographic name order.
	Keys []Key `json:"keys"`

	// ListComplete reports whether the listing reached the end of the
	// matching keys. False means the limit cut results off.
	ListComplete bool `json:"list_complete"`

	// Cursor is always empty; pagination is not emulated.
	Cursor string `json:"cursor"`
}

// GetWithMetadataResult pairs a value with its stored metadata.
type GetWithMetadataResult struct {
	// Value is the materialized value, nil when the key is absent.
	Value any `json:"value"`

	// Metadata is the metadata stored with the entry, nil when absent.
	Metadata any `json:"metadata"`

	// CacheStatus is always nil; edge cache state is not emulated.
	CacheStatus *string `json:"cacheStatus"`
}

// Config controls construction of a Store.
type Config struct {
	// Seed pre-populates the store with plain text values carrying no
	// expiration or metadata. Reset restores exactly this state.
	Seed map[string]string

	// Clock supplies time for expiry decisions and defaults to the wall
	// clock. Every operation takes a single snapshot from it.
	Clock testutils.Clock

	// Logger receives debug output. Nil discards all output.
	Logger *slog.Logger

	// Binding names this instance in instrumentation labels.
	Binding string

	// Metrics optionally registers operation counters for this instance.
	Metrics prometheus.Registerer
}

// Store is an in-memory key/value namespace with per-key expiration.
//
// Expired entries are reaped lazily: they stay in the map until an operation
// touches them, at which point the value and its metadata are removed
// together. All methods are safe for concurrent use and every multi-step
// mutation is atomic.
type Store struct {
	mu      sync.Mutex
	clock   testutils.Clock
	logger  *slog.Logger
	metrics *opmetrics.Recorder
	seed    map[string]string
	entries map[string]entry
}

// entry is one stored record. A zero expiresAt means the entry never expires.
type entry struct {
	value     string
	metadata  any
	expiresAt int64
}

// expired reports whether the entry is past its expiry at the given instant.
// An entry expires at its expiry instant, not after it.
func (e entry) expired(now int64) bool {
	return e.expiresAt != 0 && e.expiresAt <= now
}

// Ensure Store satisfies the shared reset contract at compile time.
var _ testutils.Resetter = (*Store)(nil)

// New creates a Store with the provided configuration. The only error source
// is metrics registration.
func New(config Config) (*Store, error) {
	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	recorder, err := opmetrics.New(opmetrics.Config{
		Component: "kv",
		Binding:   config.Binding,
		Registry:  config.Metrics,
	})
	if err != nil {
		return nil, err
	}

	seed := make(map[string]string, len(config.Seed))
	for k, v := range config.Seed {
		seed[k] = v
	}

	s := &Store{
		clock:   clock,
		logger:  logger,
		metrics: recorder,
		seed:    seed,
		entries: entriesFromSeed(seed),
	}
	s.metrics.SetItems(len(s.entries))

	return s, nil
}

// Get returns the value stored under key, shaped according to the options,
// or nil when the key is absent or expired. Reading an expired entry removes
// it.
func (s *Store) Get(key string, opts ...GetOptions) any {
	value, _, ok := s.lookup(key, opGet)
	if !ok {
		return nil
	}
	return materialize(value, optionType(opts))
}

// GetWithMetadata returns the value and the metadata stored under key. Both
// are nil when the key is absent or expired.
func (s *Store) GetWithMetadata(key string, opts ...GetOptions) GetWithMetadataResult {
	value, metadata, ok := s.lookup(key, opGetWithMetadata)
	if !ok {
		return GetWithMetadataResult{}
	}
	return GetWithMetadataResult{
		Value:    materialize(value, optionType(opts)),
		Metadata: cloneJSON(metadata),
	}
}

// Put stores value under key, fully replacing any existing entry. Omitted
// options clear the corresponding attributes: a put without expiration makes
// the entry permanent and a put without metadata drops prior metadata.
func (s *Store) Put(key, value string, opts ...PutOptions) {
	var o PutOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	now := s.clock().Unix()
	e := entry{value: value, metadata: o.Metadata}
	switch {
	case o.ExpirationTTL > 0:
		e.expiresAt = now + o.ExpirationTTL
	case o.Expiration > 0:
		e.expiresAt = o.Expiration
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.Op(opPut)
	s.entries[key] = e
	s.metrics.SetItems(len(s.entries))
	s.logger.Debug("kv put", "key", key, "expires_at", e.expiresAt)
}

// Delete removes the entry stored under key. Missing keys are ignored.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.Op(opDelete)
	delete(s.entries, key)
	s.metrics.SetItems(len(s.entries))
	s.logger.Debug("kv delete", "key", key)
}

// List returns the live keys matching the options in lexicographic order.
// The scan judges every entry against one clock snapshot; expired entries
// encountered along the way are collected and removed only after the scan
// completes, so the iteration itself never mutates the map.
func (s *Store) List(opts ...ListOptions) ListResult {
	var o ListOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	limit := o.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	now := s.clock().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.Op(opList)

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	keys := make([]Key, 0, limit)
	var expired []string
	complete := true
	for _, name := range names {
		e := s.entries[name]
		if e.expired(now) {
			expired = append(expired, name)
			continue
		}
		if !strings.HasPrefix(name, o.Prefix) {
			continue
		}
		if len(keys) >= limit {
			complete = false
			continue
		}
		keys = append(keys, Key{
			Name:       name,
			Expiration: e.expiresAt,
			Metadata:   cloneJSON(e.metadata),
		})
	}

	for _, name := range expired {
		delete(s.entries, name)
	}
	if len(expired) > 0 {
		s.metrics.SetItems(len(s.entries))
		s.logger.Debug("kv expired entries removed", "count", len(expired))
	}

	return ListResult{Keys: keys, ListComplete: complete}
}

// Size returns the physical entry count, including expired entries that no
// operation has touched yet.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Reset restores the store to its construction state, dropping everything
// but the configured seed.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entriesFromSeed(s.seed)
	s.metrics.SetItems(len(s.entries))
	s.logger.Debug("kv reset", "seeded", len(s.entries))
}

// lookup fetches a live entry, removing it when found expired. The value and
// its metadata always leave together.
func (s *Store) lookup(key, op string) (string, any, bool) {
	now := s.clock().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.Op(op)

	e, ok := s.entries[key]
	if !ok {
		return "", nil, false
	}
	if e.expired(now) {
		delete(s.entries, key)
		s.metrics.SetItems(len(s.entries))
		s.logger.Debug("kv expired entry removed", "key", key)
		return "", nil, false
	}
	return e.value, e.metadata, true
}

// optionType extracts the requested value type from variadic options.
func optionType(opts []GetOptions) ValueType {
	if len(opts) == 0 || opts[0].Type == "" {
		return TypeText
	}
	return opts[0].Type
}

// materialize shapes a stored value according to the requested type.
func materialize(value string, t ValueType) any {
	switch t {
	case TypeJSON:
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err != nil {
			// Malformed payloads surface as raw text rather than failing.
			return value
		}
		return decoded
	case TypeArrayBuffer:
		return []byte(value)
	case TypeStream:
		return strings.NewReader(value)
	default:
		return value
	}
}

// cloneJSON deep-copies a JSON-serializable value so callers can never
// mutate stored state through returned metadata. Values that do not survive
// a JSON round trip are returned as-is.
func cloneJSON(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

// entriesFromSeed builds the entry map for a fresh or reset store.
func entriesFromSeed(seed map[string]string) map[string]entry {
	entries := make(map[string]entry, len(seed))
	for k, v := range seed {
		entries[k] = entry{value: v}
	}
	return entries
}
