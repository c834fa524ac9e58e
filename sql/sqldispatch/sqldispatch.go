/*
Package sqldispatch runs engine queries against a real database.

New wraps a *database/sql.DB in a dispatch function so prepared statements
execute against actual tables instead of scripted rules, while the engine
keeps recording histories and shaping results. Tests typically back the
dispatcher with an in-memory SQLite database:

	backing, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		// handle error
	}
	backing.SetMaxOpenConns(1)

	db, err := enginesql.New(enginesql.Config{
		Dispatch: sqldispatch.New(backing),
	})

where enginesql is this module's sql package. Row-producing statements are
classified by their leading keyword; everything else runs as a write and
surfaces the driver's affected-row and last-insert counters.
*/
package sqldispatch

import (
	"database/sql"
	"strings"

	enginesql "github.com/FlashGalatine/xivdyetools-test-utils/sql"
)

// rowKeywords mark statements that produce a row set.
var rowKeywords = []string{"SELECT", "WITH", "PRAGMA", "EXPLAIN", "VALUES"}

// New adapts db into a dispatch function for the query engine. Row queries
// return the row-set response form in column enumeration order with []byte
// cells normalized to string; writes surface RowsAffected and LastInsertId
// through the result meta block. Database errors become failed responses.
// A nil db returns a nil dispatch.
func New(db *sql.DB) enginesql.Dispatch {
	if db == nil {
		return nil
	}
	return func(query string, params []any) *enginesql.Response {
		if isRowQuery(query) {
			return queryRows(db, query, params)
		}
		return execStatement(db, query, params)
	}
}

// isRowQuery reports whether the statement's leading keyword produces rows.
func isRowQuery(query string) bool {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return false
	}

	keyword := strings.ToUpper(fields[0])
	for _, k := range rowKeywords {
		if keyword == k {
			return true
		}
	}
	return false
}

// queryRows executes a row-producing statement and shapes the rows into the
// positional response form.
func queryRows(db *sql.DB, query string, params []any) *enginesql.Response {
	rows, err := db.Query(query, params...)
	if err != nil {
		return &enginesql.Response{Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return &enginesql.Response{Err: err}
	}

	out := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return &enginesql.Response{Err: err}
		}

		// Drivers hand text cells back as []byte.
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return &enginesql.Response{Err: err}
	}

	return &enginesql.Response{Columns: cols, Rows: out}
}

// execStatement executes a write statement and surfaces the driver counters
// as a pass-through result.
func execStatement(db *sql.DB, query string, params []any) *enginesql.Response {
	res, err := db.Exec(query, params...)
	if err != nil {
		return &enginesql.Response{Err: err}
	}

	affected, _ := res.RowsAffected()
	last, _ := res.LastInsertId()

	return &enginesql.Response{Result: &enginesql.Result{
		Results: []map[string]any{},
		Success: true,
		Meta: enginesql.Meta{
			LastRowID:   last,
			Changes:     affected,
			ChangedDB:   affected > 0,
			RowsWritten: affected,
		},
	}}
}
