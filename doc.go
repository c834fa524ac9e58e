/*
Package testutils provides in-memory emulations of the storage and
networking bindings exposed by a serverless edge-compute runtime.

Application code that talks to a key/value namespace, a relational
database binding, an object bucket, a bound service, or an analytics
dataset can be exercised in tests against these emulations without any
real infrastructure. Each binding lives in its own subpackage and
mirrors the method names, option fields, and result shapes of the real
platform so that observable behaviour matches what production code
sees:

  - kv: key/value namespace with per-key expiration and prefix listing
  - sql: relational query binding with prepared statements and sessions
  - objectstore: blob bucket with etags and metadata
  - service: service-to-service fetch binding with scripted responses
  - analytics: append-only data-point sink

The bindings subpackage assembles named instances of all of the above
into a single environment, optionally loaded from a YAML fixture, and
logcapture records slog output in memory so tests can assert on what
the code under test logged.

This root package carries the plumbing shared by every emulation: the
Clock function type that components read time through, a deterministic
ManualClock for expiry and timestamp tests, and the Resetter contract
that lets a suite return every component to its construction state
between cases.
*/
package testutils
