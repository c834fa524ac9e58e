package objectstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	testutils "github.com/FlashGalatine/xivdyetools-test-utils"
	"github.com/FlashGalatine/xivdyetools-test-utils/idgen"
	"github.com/FlashGalatine/xivdyetools-test-utils/opmetrics"
)

// DefaultListLimit caps List results when no explicit limit is provided.
const DefaultListLimit = 1000

// Operation names used for instrumentation.
const (
	opPut    = "put"
	opGet    = "get"
	opHead   = "head"
	opDelete = "delete"
	opList   = "list"
)

// ErrUnsupportedValueType is returned by Put for values that are not nil, a
// string, a byte slice, or an io.Reader.
var ErrUnsupportedValueType = errors.New("unsupported value type for object store put")

// HTTPMetadata carries the HTTP presentation attributes stored with an
// object.
type HTTPMetadata struct {
	ContentType        string    `json:"contentType,omitempty"`
	ContentLanguage    string    `json:"contentLanguage,omitempty"`
	ContentDisposition string    `json:"contentDisposition,omitempty"`
	ContentEncoding    string    `json:"contentEncoding,omitempty"`
	CacheControl       string    `json:"cacheControl,omitempty"`
	CacheExpiry        time.Time `json:"cacheExpiry,omitzero"`
}

// Object describes one stored object without its payload.
type Object struct {
	// Key is the object key.
	Key string `json:"key"`

	// Version is a random identifier minted on every write.
	Version string `json:"version"`

	// Size is the payload length in bytes.
	Size int64 `json:"size"`

	// ETag is a random 32-character hex tag minted on every write.
	ETag string `json:"etag"`

	// HTTPEtag is the quoted form of ETag.
	HTTPEtag string `json:"httpEtag"`

	// Uploaded is the write instant.
	Uploaded time.Time `json:"uploaded"`

	// HTTPMetadata holds the HTTP presentation attributes from PutOptions.
	HTTPMetadata HTTPMetadata `json:"httpMetadata"`

	// CustomMetadata holds the caller-defined attributes from PutOptions.
	CustomMetadata map[string]string `json:"customMetadata"`
}

// ObjectBody pairs an Object with its payload. Each materializer derives its
// result fresh from the payload on every call.
type ObjectBody struct {
	Object

	value []byte
}

// Bytes returns a copy of the payload.
func (b *ObjectBody) Bytes() []byte {
	return append([]byte(nil), b.value...)
}

// Text returns the payload as a string.
func (b *ObjectBody) Text() string {
	return string(b.value)
}

// JSON decodes the payload as JSON. Payloads that fail to decode are returned
// as their raw text instead.
func (b *ObjectBody) JSON() any {
	var decoded any
	if err := json.Unmarshal(b.value, &decoded); err != nil {
		return string(b.value)
	}
	return decoded
}

// Body returns a fresh reader over the payload.
func (b *ObjectBody) Body() io.Reader {
	return bytes.NewReader(append([]byte(nil), b.value...))
}

// PutOptions carries the optional attributes of a write.
type PutOptions struct {
	// HTTPMetadata sets the HTTP presentation attributes of the object.
	HTTPMetadata HTTPMetadata `json:"httpMetadata"`

	// CustomMetadata sets caller-defined string attributes.
	CustomMetadata map[string]string `json:"customMetadata"`
}

// ListOptions filters and bounds a List call.
type ListOptions struct {
	// Prefix restricts results to keys beginning with this string.
	Prefix string `json:"prefix"`

	// Limit caps the number of returned objects. Zero or negative values
	// default to DefaultListLimit.
	Limit int `json:"limit"`
}

// ListResult is the result of a List call.
type ListResult struct {
	// Objects holds the matching objects in insertion order.
	Objects []*Object `json:"objects"`

	// Truncated reports whether the listing filled the limit. A listing
	// that ends exactly at the limit reports true even when no further
	// objects exist.
	Truncated bool `json:"truncated"`

	// Cursor is always empty; pagination is not emulated.
	Cursor string `json:"cursor"`
}

// Config controls construction of a Bucket.
type Config struct {
	// Seed pre-populates the bucket, keyed in lexicographic order with no
	// HTTP or custom metadata. Reset restores exactly this state with
	// freshly minted etags and versions.
	Seed map[string][]byte

	// Clock supplies upload timestamps and defaults to the wall clock.
	// Every operation takes a single snapshot from it.
	Clock testutils.Clock

	// Logger receives debug output. Nil discards all output.
	Logger *slog.Logger

	// Binding names this instance in instrumentation labels.
	Binding string

	// Metrics optionally registers operation counters for this instance.
	Metrics prometheus.Registerer
}

// Bucket is an in-memory object storage namespace.
//
// Keys keep their insertion position across overwrites, so a re-put object
// lists where it first appeared. All methods are safe for concurrent use and
// every multi-step mutation is atomic.
type Bucket struct {
	mu      sync.Mutex
	clock   testutils.Clock
	logger  *slog.Logger
	metrics *opmetrics.Recorder
	seed    map[string][]byte
	objects map[string]*storedObject
	order   []string
}

// storedObject is one stored record.
type storedObject struct {
	meta  Object
	value []byte
}

// Ensure Bucket satisfies the shared reset contract at compile time.
var _ testutils.Resetter = (*Bucket)(nil)

// New creates a Bucket with the provided configuration. The only error source
// is metrics registration.
func New(config Config) (*Bucket, error) {
	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	recorder, err := opmetrics.New(opmetrics.Config{
		Component: "objectstore",
		Binding:   config.Binding,
		Registry:  config.Metrics,
	})
	if err != nil {
		return nil, err
	}

	seed := make(map[string][]byte, len(config.Seed))
	for k, v := range config.Seed {
		seed[k] = append([]byte(nil), v...)
	}

	b := &Bucket{
		clock:   clock,
		logger:  logger,
		metrics: recorder,
		seed:    seed,
	}
	b.mu.Lock()
	b.reseed()
	b.mu.Unlock()

	return b, nil
}

// Put stores value under key, fully replacing any existing object, and
// returns the minted object metadata. Accepted value shapes are nil (empty
// payload), string, []byte (copied), and io.Reader (drained); anything else
// returns ErrUnsupportedValueType.
func (b *Bucket) Put(key string, value any, opts ...PutOptions) (*Object, error) {
	data, err := normalizeValue(value)
	if err != nil {
		return nil, err
	}

	var o PutOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.Op(opPut)

	meta := b.mint(key, data)
	meta.HTTPMetadata = o.HTTPMetadata
	meta.CustomMetadata = cloneStringMap(o.CustomMetadata)

	if _, exists := b.objects[key]; !exists {
		b.order = append(b.order, key)
	}
	b.objects[key] = &storedObject{meta: meta, value: data}
	b.metrics.SetItems(len(b.objects))
	b.logger.Debug("objectstore put", "key", key, "size", meta.Size)

	out := cloneObject(meta)
	return &out, nil
}

// Get returns the object and its payload, or nil when the key is absent.
func (b *Bucket) Get(key string) *ObjectBody {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.Op(opGet)

	stored, ok := b.objects[key]
	if !ok {
		return nil
	}
	return &ObjectBody{
		Object: cloneObject(stored.meta),
		value:  append([]byte(nil), stored.value...),
	}
}

// Head returns the object metadata without its payload, or nil when the key
// is absent.
func (b *Bucket) Head(key string) *Object {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.Op(opHead)

	stored, ok := b.objects[key]
	if !ok {
		return nil
	}
	out := cloneObject(stored.meta)
	return &out
}

// Delete removes one or more objects. Missing keys are ignored.
func (b *Bucket) Delete(keys ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.Op(opDelete)

	for _, key := range keys {
		if _, ok := b.objects[key]; !ok {
			continue
		}
		delete(b.objects, key)
		b.order = removeKey(b.order, key)
	}
	b.metrics.SetItems(len(b.objects))
}

// List returns the objects matching the options in insertion order, cut off
// at the limit.
func (b *Bucket) List(opts ...ListOptions) ListResult {
	var o ListOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	limit := o.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.Op(opList)

	objects := make([]*Object, 0)
	for _, key := range b.order {
		if !strings.HasPrefix(key, o.Prefix) {
			continue
		}
		if len(objects) >= limit {
			break
		}
		out := cloneObject(b.objects[key].meta)
		objects = append(objects, &out)
	}

	return ListResult{Objects: objects, Truncated: len(objects) >= limit}
}

// Size returns the number of stored objects.
func (b *Bucket) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

// Reset restores the bucket to its construction state. Seeded objects come
// back with freshly minted etags, versions, and upload instants.
func (b *Bucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reseed()
	b.logger.Debug("objectstore reset", "seeded", len(b.objects))
}

// reseed rebuilds the object map and insertion order from the seed. Seeded
// keys enter in lexicographic order sharing one upload instant. Callers must
// hold mu.
func (b *Bucket) reseed() {
	keys := make([]string, 0, len(b.seed))
	for k := range b.seed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := b.clock()
	b.objects = make(map[string]*storedObject, len(b.seed))
	b.order = make([]string, 0, len(b.seed))
	for _, key := range keys {
		data := append([]byte(nil), b.seed[key]...)
		meta := b.mintAt(key, data, now)
		b.order = append(b.order, key)
		b.objects[key] = &storedObject{meta: meta, value: data}
	}
	b.metrics.SetItems(len(b.objects))
}

// mint builds fresh object metadata stamped with the current clock snapshot.
// Callers must hold mu.
func (b *Bucket) mint(key string, data []byte) Object {
	return b.mintAt(key, data, b.clock())
}

// mintAt builds fresh object metadata stamped with the given instant.
func (b *Bucket) mintAt(key string, data []byte, uploaded time.Time) Object {
	etag := idgen.ETag()
	return Object{
		Key:      key,
		Version:  idgen.ETag(),
		Size:     int64(len(data)),
		ETag:     etag,
		HTTPEtag: `"` + etag + `"`,
		Uploaded: uploaded,
	}
}

// normalizeValue flattens an accepted value shape into one payload.
func normalizeValue(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return []byte{}, nil
	case []byte:
		return append([]byte(nil), v...), nil
	case string:
		return []byte(v), nil
	case io.Reader:
		data, err := io.ReadAll(v)
		if err != nil {
			return nil, fmt.Errorf("failed to read object value: %w", err)
		}
		return data, nil
	default:
		return nil, ErrUnsupportedValueType
	}
}

// cloneObject copies object metadata so callers can never mutate stored
// state.
func cloneObject(o Object) Object {
	out := o
	out.CustomMetadata = cloneStringMap(o.CustomMetadata)
	return out
}

// cloneStringMap copies m, preserving nil.
func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// removeKey splices key out of order, preserving relative positions.
func removeKey(order []string, key string) []string {
	for i, k := range order {
		if k == key {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
