package bindings

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	testutils "github.com/FlashGalatine/xivdyetools-test-utils"
	"github.com/FlashGalatine/xivdyetools-test-utils/analytics"
	"github.com/FlashGalatine/xivdyetools-test-utils/kv"
	"github.com/FlashGalatine/xivdyetools-test-utils/objectstore"
	"github.com/FlashGalatine/xivdyetools-test-utils/service"
	"github.com/FlashGalatine/xivdyetools-test-utils/sql"
)

// Config controls construction of an Env. Every field is shared by all
// bindings the environment creates.
type Config struct {
	// Clock supplies time to every binding and defaults to the wall clock.
	Clock testutils.Clock

	// Logger receives debug output from every binding. Nil discards all
	// output.
	Logger *slog.Logger

	// Metrics optionally registers operation counters for every binding.
	// A binding whose registration fails is created uninstrumented and
	// the failure is logged.
	Metrics prometheus.Registerer
}

// Env is a set of named emulated bindings. Bindings are created lazily on
// first access and live until the environment is dropped; Reset restores all
// of them without discarding instances, so references held by code under
// test stay valid.
//
// All methods are safe for concurrent use.
type Env struct {
	mu       sync.Mutex
	cfg      Config
	logger   *slog.Logger
	kv       map[string]*kv.Store
	db       map[string]*sql.DB
	buckets  map[string]*objectstore.Bucket
	services map[string]*service.Client
	datasets map[string]*analytics.Dataset
}

// Ensure Env satisfies the shared reset contract at compile time.
var _ testutils.Resetter = (*Env)(nil)

// New creates an empty environment.
func New(config Config) *Env {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Env{
		cfg:      config,
		logger:   logger,
		kv:       make(map[string]*kv.Store),
		db:       make(map[string]*sql.DB),
		buckets:  make(map[string]*objectstore.Bucket),
		services: make(map[string]*service.Client),
		datasets: make(map[string]*analytics.Dataset),
	}
}

// KV returns the kv store bound under name, creating an empty one on first
// access.
func (e *Env) KV(name string) *kv.Store {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kvLocked(name, nil)
}

// DB returns the query engine bound under name, creating one on first
// access.
func (e *Env) DB(name string) *sql.DB {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dbLocked(name, 0)
}

// Bucket returns the object bucket bound under name, creating an empty one
// on first access.
func (e *Env) Bucket(name string) *objectstore.Bucket {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bucketLocked(name, nil)
}

// Service returns the service client bound under name, creating an
// unscripted one on first access.
func (e *Env) Service(name string) *service.Client {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.serviceLocked(name, nil)
}

// Dataset returns the analytics dataset bound under name, creating one on
// first access.
func (e *Env) Dataset(name string) *analytics.Dataset {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.datasetLocked(name, 0)
}

// Reset restores every created binding to its initial state. Bindings stay
// bound under their names.
func (e *Env) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	components := make([]testutils.Resetter, 0,
		len(e.kv)+len(e.db)+len(e.buckets)+len(e.services)+len(e.datasets))
	for _, s := range e.kv {
		components = append(components, s)
	}
	for _, d := range e.db {
		components = append(components, d)
	}
	for _, b := range e.buckets {
		components = append(components, b)
	}
	for _, c := range e.services {
		components = append(components, c)
	}
	for _, d := range e.datasets {
		components = append(components, d)
	}

	testutils.ResetAll(components...)
	e.logger.Debug("environment reset", "bindings", len(components))
}

// kvLocked returns or creates the named kv store. Callers must hold mu.
func (e *Env) kvLocked(name string, seed map[string]string) *kv.Store {
	if store, ok := e.kv[name]; ok {
		return store
	}

	cfg := kv.Config{
		Seed:    seed,
		Clock:   e.cfg.Clock,
		Logger:  e.cfg.Logger,
		Binding: name,
		Metrics: e.cfg.Metrics,
	}
	store, err := kv.New(cfg)
	if err != nil {
		e.logger.Warn("kv binding created without instrumentation", "binding", name, "error", err)
		cfg.Metrics = nil
		store, _ = kv.New(cfg)
	}
	e.kv[name] = store
	return store
}

// dbLocked returns or creates the named query engine. Callers must hold mu.
func (e *Env) dbLocked(name string, maxHistory int) *sql.DB {
	if db, ok := e.db[name]; ok {
		return db
	}

	cfg := sql.Config{
		MaxHistory: maxHistory,
		Logger:     e.cfg.Logger,
		Binding:    name,
		Metrics:    e.cfg.Metrics,
	}
	db, err := sql.New(cfg)
	if err != nil {
		e.logger.Warn("sql binding created without instrumentation", "binding", name, "error", err)
		cfg.Metrics = nil
		db, _ = sql.New(cfg)
	}
	e.db[name] = db
	return db
}

// bucketLocked returns or creates the named object bucket. Callers must hold
// mu.
func (e *Env) bucketLocked(name string, seed map[string][]byte) *objectstore.Bucket {
	if bucket, ok := e.buckets[name]; ok {
		return bucket
	}

	cfg := objectstore.Config{
		Seed:    seed,
		Clock:   e.cfg.Clock,
		Logger:  e.cfg.Logger,
		Binding: name,
		Metrics: e.cfg.Metrics,
	}
	bucket, err := objectstore.New(cfg)
	if err != nil {
		e.logger.Warn("bucket binding created without instrumentation", "binding", name, "error", err)
		cfg.Metrics = nil
		bucket, _ = objectstore.New(cfg)
	}
	e.buckets[name] = bucket
	return bucket
}

// serviceLocked returns or creates the named service client. Callers must
// hold mu.
func (e *Env) serviceLocked(name string, def *service.Response) *service.Client {
	if client, ok := e.services[name]; ok {
		return client
	}

	cfg := service.Config{
		Default: def,
		Clock:   e.cfg.Clock,
		Logger:  e.cfg.Logger,
		Binding: name,
		Metrics: e.cfg.Metrics,
	}
	client, err := service.New(cfg)
	if err != nil {
		e.logger.Warn("service binding created without instrumentation", "binding", name, "error", err)
		cfg.Metrics = nil
		client, _ = service.New(cfg)
	}
	e.services[name] = client
	return client
}

// datasetLocked returns or creates the named analytics dataset. Callers must
// hold mu.
func (e *Env) datasetLocked(name string, maxPoints int) *analytics.Dataset {
	if dataset, ok := e.datasets[name]; ok {
		return dataset
	}

	cfg := analytics.Config{
		MaxDataPoints: maxPoints,
		Clock:         e.cfg.Clock,
		Logger:        e.cfg.Logger,
		Binding:       name,
		Metrics:       e.cfg.Metrics,
	}
	dataset, err := analytics.New(cfg)
	if err != nil {
		e.logger.Warn("analytics binding created without instrumentation", "binding", name, "error", err)
		cfg.Metrics = nil
		dataset, _ = analytics.New(cfg)
	}
	e.datasets[name] = dataset
	return dataset
}
