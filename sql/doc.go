/*
Package sql emulates a relational query binding with prepared statements,
batches, and read sessions.

Nothing is parsed or persisted: every executed statement resolves against an
injectable dispatch function, then scripted response rules, then built-in
zero-effect defaults. Result shapes mirror the real platform binding, with
the results, success, and meta fields production code expects, so query code
runs unchanged in tests.

# Basic Usage

	db, err := sql.New(sql.Config{})
	if err != nil {
		t.Fatal(err)
	}

	db.On("SELECT name FROM dyes").Return(&sql.Response{
		Columns: []string{"id", "name"},
		Rows:    [][]any{{1, "snow white"}, {2, "jet black"}},
	})

	res := db.Prepare("SELECT name FROM dyes WHERE id = ?").Bind(1).All()
	// res.Results, res.Success, res.Meta

Rules match a statement when the registered substring occurs in the query
text; OnRegexp rules apply after every substring rule has been tried. Rules
are consulted in registration order and the first match wins.

# Dispatch

Config.Dispatch replaces the rule chain with a single function receiving the
query text and bound values. The sqldispatch subpackage adapts a real
database handle into such a function for tests that want genuine SQL
semantics behind the binding.

# Introspection

Executed statements and Bind calls are recorded into bounded histories.
Binding records capture values at bind time; query records are appended at
execution time, once per terminal call, which keeps assertion counts
independent of how often a statement was re-bound.
*/
package sql
