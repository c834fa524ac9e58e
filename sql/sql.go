package sql

import (
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/FlashGalatine/xivdyetools-test-utils/history"
	"github.com/FlashGalatine/xivdyetools-test-utils/match"
	"github.com/FlashGalatine/xivdyetools-test-utils/opmetrics"
)

// DefaultBookmark is reported by sessions created without an explicit
// bookmark.
const DefaultBookmark = "mock-bookmark"

// Operation names used for instrumentation.
const (
	opPrepare = "prepare"
	opBind    = "bind"
	opFirst   = "first"
	opAll     = "all"
	opRun     = "run"
	opRaw     = "raw"
	opBatch   = "batch"
	opExec    = "exec"
)

// Dispatch produces the response for one executed query. Implementations
// receive the query text and a copy of the bound parameter values. Returning
// nil means the query produced no rows, which shapes into the zero-effect
// defaults of each terminal.
type Dispatch func(query string, params []any) *Response

// Response is the scripted or dispatched outcome of a query. Exactly one of
// the row-set form (Columns and Rows), the pass-through form (Result), or
// the failure form (Err) should be populated; a nil *Response stands for no
// rows at all.
type Response struct {
	// Columns names the row-set columns in enumeration order.
	Columns []string

	// Rows holds positional row values matching Columns.
	Rows [][]any

	// Result, when set, is passed through to the caller as-is after
	// normalization, carrying its own success flag and meta block.
	Result *Result

	// Err marks the query as failed. Terminals surface it as an
	// unsuccessful Result rather than a Go error.
	Err error
}

// Meta carries the execution statistics block attached to every Result.
type Meta struct {
	Duration    float64 `json:"duration"`
	LastRowID   int64   `json:"last_row_id"`
	Changes     int64   `json:"changes"`
	ChangedDB   bool    `json:"changed_db"`
	RowsRead    int64   `json:"rows_read"`
	RowsWritten int64   `json:"rows_written"`
	SizeAfter   int64   `json:"size_after"`
	ServedBy    string  `json:"served_by"`
}

// Result is the shape returned by the All and Run terminals.
type Result struct {
	// Results holds the returned rows as column-keyed records. It is
	// never nil in returned values.
	Results []map[string]any `json:"results"`

	// Success reports whether the statement executed without failure.
	Success bool `json:"success"`

	// Meta summarizes the execution.
	Meta Meta `json:"meta"`
}

// ExecResult reports a multi-statement Exec call.
type ExecResult struct {
	// Count is the number of statements executed.
	Count int64 `json:"count"`

	// Duration is always zero; the emulation does not measure time.
	Duration float64 `json:"duration"`
}

// RawOptions controls the Raw terminal.
type RawOptions struct {
	// ColumnNames prepends a header row naming the columns.
	ColumnNames bool `json:"columnNames"`
}

// BindRecord captures one Bind call: the statement text and the values bound
// at that moment.
type BindRecord struct {
	Query  string
	Values []any
}

// Config controls construction of a DB.
type Config struct {
	// Dispatch, when set, produces every query response and bypasses the
	// rule chain. Reset restores this dispatch.
	Dispatch Dispatch

	// MaxHistory bounds the query and binding histories. Zero falls back
	// to the history package default.
	MaxHistory int

	// Logger receives debug output. Nil discards all output.
	Logger *slog.Logger

	// Binding names this instance in instrumentation labels.
	Binding string

	// Metrics optionally registers operation counters for this instance.
	Metrics prometheus.Registerer
}

// DB emulates a relational query binding. Queries resolve against an
// injectable dispatch function, then scripted rules, then built-in
// zero-effect defaults; nothing is ever actually parsed or stored.
//
// All methods are safe for concurrent use.
type DB struct {
	mu       sync.Mutex
	cfg      Config
	dispatch Dispatch
	rules    *match.Chain[*Response]
	queries  *history.Log[string]
	bindings *history.Log[BindRecord]
	logger   *slog.Logger
	metrics  *opmetrics.Recorder
}

// Statement is a prepared query holding one mutable set of bound values.
// Statements are created by Prepare and stay attached to their DB.
type Statement struct {
	db    *DB
	query string
	bound []any
}

// Session scopes statement execution to a consistency bookmark. The session
// shares its parent's histories, rules, and dispatch; only the bookmark is
// session-local.
type Session struct {
	db       *DB
	bookmark string
}

// New creates a DB with the provided configuration. The only error source is
// metrics registration.
func New(config Config) (*DB, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	recorder, err := opmetrics.New(opmetrics.Config{
		Component: "sql",
		Binding:   config.Binding,
		Registry:  config.Metrics,
	})
	if err != nil {
		return nil, err
	}

	return &DB{
		cfg:      config,
		dispatch: config.Dispatch,
		rules:    match.New[*Response](),
		queries:  history.New[string](config.MaxHistory),
		bindings: history.New[BindRecord](config.MaxHistory),
		logger:   logger,
		metrics:  recorder,
	}, nil
}

// Prepare creates a statement for the given query text. Nothing is recorded
// until the statement executes.
func (db *DB) Prepare(query string) *Statement {
	db.metrics.Op(opPrepare)
	return &Statement{db: db, query: query}
}

// Batch executes the statements sequentially with their currently bound
// values and returns one Result per statement, in order. Every statement
// reports success; failure injection belongs to the dispatch layer.
func (db *DB) Batch(stmts []*Statement) []Result {
	db.metrics.Op(opBatch)

	results := make([]Result, 0, len(stmts))
	for _, stmt := range stmts {
		if stmt == nil {
			results = append(results, emptyResult())
			continue
		}
		results = append(results, stmt.Run())
	}
	return results
}

// Exec runs a multi-statement script. The script is split on newlines; each
// non-empty line is dispatched and recorded as its own query.
func (db *DB) Exec(query string) ExecResult {
	var count int64
	for _, line := range strings.Split(query, "\n") {
		stmt := strings.TrimSpace(line)
		if stmt == "" {
			continue
		}
		db.execute(opExec, stmt, nil)
		count++
	}
	return ExecResult{Count: count}
}

// WithSession opens a session scoped to the given bookmark. Without an
// explicit bookmark the session reports DefaultBookmark.
func (db *DB) WithSession(bookmark ...string) *Session {
	bm := DefaultBookmark
	if len(bookmark) > 0 && bookmark[0] != "" {
		bm = bookmark[0]
	}
	return &Session{db: db, bookmark: bm}
}

// On starts a scripted response rule matching queries that contain substr.
func (db *DB) On(substr string) *ResponseBuilder {
	return &ResponseBuilder{db: db, substr: substr}
}

// OnRegexp starts a scripted response rule matching queries against re.
// Substring rules always resolve before regular-expression rules.
func (db *DB) OnRegexp(re *regexp.Regexp) *ResponseBuilder {
	return &ResponseBuilder{db: db, re: re, regex: true}
}

// SetDispatch installs a dispatch function, replacing any current one.
// A non-nil dispatch bypasses the rule chain entirely.
func (db *DB) SetDispatch(d Dispatch) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.dispatch = d
}

// ClearDispatch removes the current dispatch so scripted rules apply again.
func (db *DB) ClearDispatch() {
	db.SetDispatch(nil)
}

// ClearRules removes every scripted response rule.
func (db *DB) ClearRules() {
	db.rules.Clear()
}

// QueryHistory returns the executed query texts, oldest first. Statements
// are recorded at execution time, once per terminal call.
func (db *DB) QueryHistory() []string {
	return db.queries.Items()
}

// BindingHistory returns the recorded Bind calls, oldest first.
func (db *DB) BindingHistory() []BindRecord {
	records := db.bindings.Items()
	for i := range records {
		records[i].Values = append([]any(nil), records[i].Values...)
	}
	return records
}

// Reset restores the DB to its construction state: histories emptied, rules
// removed, and the configured dispatch reinstated.
func (db *DB) Reset() {
	db.queries.Reset()
	db.bindings.Reset()
	db.rules.Clear()

	db.mu.Lock()
	db.dispatch = db.cfg.Dispatch
	db.mu.Unlock()

	db.metrics.SetItems(0)
	db.logger.Debug("sql reset")
}

// execute records the query and resolves its response. Dispatch runs outside
// the lock so it may itself use the DB.
func (db *DB) execute(op, query string, params []any) *Response {
	db.metrics.Op(op)
	db.queries.Append(query)
	db.metrics.SetItems(db.queries.Len())
	db.logger.Debug("sql execute", "op", op, "query", query)

	db.mu.Lock()
	dispatch := db.dispatch
	db.mu.Unlock()

	if dispatch != nil {
		return dispatch(query, append([]any(nil), params...))
	}
	if resp, ok := db.rules.Resolve(query); ok {
		return resp
	}
	return nil
}

// Bind replaces the statement's bound values wholesale and records the call.
// It returns the same statement for chaining.
func (s *Statement) Bind(values ...any) *Statement {
	bound := append([]any(nil), values...)

	s.db.mu.Lock()
	s.bound = bound
	s.db.mu.Unlock()

	s.db.metrics.Op(opBind)
	s.db.bindings.Append(BindRecord{
		Query:  s.query,
		Values: append([]any(nil), bound...),
	})
	return s
}

// First returns the first row as a column-keyed record, or the named
// column's value when one is given. It returns nil when the query produces
// no rows, the column is absent, or the response carries an error.
func (s *Statement) First(column ...string) any {
	resp := s.db.execute(opFirst, s.query, s.values())

	rows := responseRecords(resp)
	if len(rows) == 0 {
		return nil
	}
	if len(column) > 0 && column[0] != "" {
		return rows[0][column[0]]
	}
	return rows[0]
}

// All executes the statement and returns every row. A query with no
// response shapes into an empty successful Result.
func (s *Statement) All() Result {
	resp := s.db.execute(opAll, s.query, s.values())
	return buildResult(resp, false)
}

// Run executes the statement for its side effects. A query with no response
// reports one synthetic affected row so code asserting on write meta keeps
// working without scripting.
func (s *Statement) Run() Result {
	resp := s.db.execute(opRun, s.query, s.values())
	return buildResult(resp, true)
}

// Raw executes the statement and returns positional row values, preserving
// the response's column enumeration order and row order. With ColumnNames
// set, a header row naming the columns is prepended when the response
// carries column knowledge.
func (s *Statement) Raw(opts ...RawOptions) [][]any {
	withColumns := len(opts) > 0 && opts[0].ColumnNames

	resp := s.db.execute(opRaw, s.query, s.values())
	cols, rows := responsePositional(resp)

	out := make([][]any, 0, len(rows)+1)
	if withColumns && len(cols) > 0 {
		header := make([]any, len(cols))
		for i, c := range cols {
			header[i] = c
		}
		out = append(out, header)
	}
	return append(out, rows...)
}

// values snapshots the currently bound values.
func (s *Statement) values() []any {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return append([]any(nil), s.bound...)
}

// Prepare creates a statement on the parent DB.
func (s *Session) Prepare(query string) *Statement {
	return s.db.Prepare(query)
}

// Batch executes the statements through the parent DB.
func (s *Session) Batch(stmts []*Statement) []Result {
	return s.db.Batch(stmts)
}

// Exec runs a multi-statement script through the parent DB.
func (s *Session) Exec(query string) ExecResult {
	return s.db.Exec(query)
}

// GetBookmark returns the session's consistency bookmark.
func (s *Session) GetBookmark() string {
	return s.bookmark
}

// ResponseBuilder finishes registration of a scripted response rule.
type ResponseBuilder struct {
	db     *DB
	substr string
	re     *regexp.Regexp
	regex  bool
}

// Return registers the response for the configured rule and returns the DB
// for chaining.
func (b *ResponseBuilder) Return(resp *Response) *DB {
	if b.regex {
		b.db.rules.AddRegexp(b.re, resp)
	} else {
		b.db.rules.AddString(b.substr, resp)
	}
	return b.db
}

// emptyResult is the zero-effect read default.
func emptyResult() Result {
	return Result{Results: []map[string]any{}, Success: true}
}

// buildResult shapes a response into the Result form shared by All and Run.
func buildResult(resp *Response, write bool) Result {
	switch {
	case resp == nil:
		r := emptyResult()
		if write {
			r.Meta = Meta{Changes: 1, RowsWritten: 1, ChangedDB: true}
		}
		return r
	case resp.Err != nil:
		return Result{Results: []map[string]any{}, Success: false}
	case resp.Result != nil:
		return normalizeResult(resp.Result)
	default:
		rows := recordsFromRows(resp.Columns, resp.Rows)
		return Result{
			Results: rows,
			Success: true,
			Meta:    Meta{RowsRead: int64(len(rows))},
		}
	}
}

// responseRecords extracts column-keyed rows from a response, or nil when it
// has none.
func responseRecords(resp *Response) []map[string]any {
	switch {
	case resp == nil || resp.Err != nil:
		return nil
	case resp.Result != nil:
		return cloneRecords(resp.Result.Results)
	case len(resp.Rows) > 0:
		return recordsFromRows(resp.Columns, resp.Rows)
	default:
		return nil
	}
}

// responsePositional extracts ordered columns and positional rows from a
// response. Pass-through results without explicit columns fall back to the
// sorted keys of the first record so the order stays deterministic.
func responsePositional(resp *Response) ([]string, [][]any) {
	switch {
	case resp == nil || resp.Err != nil:
		return nil, nil
	case resp.Result != nil:
		cols := append([]string(nil), resp.Columns...)
		records := resp.Result.Results
		if len(cols) == 0 && len(records) > 0 {
			for k := range records[0] {
				cols = append(cols, k)
			}
			sort.Strings(cols)
		}
		rows := make([][]any, 0, len(records))
		for _, rec := range records {
			row := make([]any, len(cols))
			for i, c := range cols {
				row[i] = rec[c]
			}
			rows = append(rows, row)
		}
		return cols, rows
	default:
		cols := append([]string(nil), resp.Columns...)
		rows := make([][]any, 0, len(resp.Rows))
		for _, row := range resp.Rows {
			rows = append(rows, append([]any(nil), row...))
		}
		return cols, rows
	}
}

// recordsFromRows zips positional rows with their column names. Cells beyond
// the named columns get positional fallback names.
func recordsFromRows(cols []string, rows [][]any) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		rec := make(map[string]any, len(row))
		for i, cell := range row {
			rec[columnName(cols, i)] = cell
		}
		out = append(out, rec)
	}
	return out
}

// columnName resolves the name for a cell position.
func columnName(cols []string, i int) string {
	if i < len(cols) {
		return cols[i]
	}
	return "column" + strconv.Itoa(i+1)
}

// normalizeResult copies a pass-through result, guaranteeing a non-nil row
// slice and a populated rows-read count.
func normalizeResult(r *Result) Result {
	out := *r
	out.Results = cloneRecords(r.Results)
	if out.Meta.RowsRead == 0 {
		out.Meta.RowsRead = int64(len(out.Results))
	}
	return out
}

// cloneRecords copies records so callers never alias scripted state.
func cloneRecords(records []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		c := make(map[string]any, len(rec))
		for k, v := range rec {
			c[k] = v
		}
		out = append(out, c)
	}
	return out
}
