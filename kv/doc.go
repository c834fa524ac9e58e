/*
Package kv emulates a key/value namespace binding with per-key expiration,
metadata, and prefix listing.

The store keeps everything in memory and mirrors the method names, option
fields, and result shapes of the real platform binding, so code written
against the production namespace behaves identically in tests. Expiration is
lazy: expired entries linger physically until an operation touches them and
are then removed together with their metadata.

# Basic Usage

Create a store with optional seed data:

	import (
		"testing"

		"github.com/FlashGalatine/xivdyetools-test-utils/kv"
	)

	func TestSomething(t *testing.T) {
		store, err := kv.New(kv.Config{Seed: map[string]string{"color:snow": "#fafafa"}})
		if err != nil {
			t.Fatal(err)
		}
		v := store.Get("color:snow")
		// v is "#fafafa"
	}

# Expiration

Writes accept a relative TTL or an absolute expiry; the relative TTL wins
when both are set:

	store.Put("session", "token", kv.PutOptions{ExpirationTTL: 60})

Deterministic expiry tests inject a manual clock through Config.Clock and
advance it instead of sleeping.

# Listing

List returns live keys in lexicographic order, filtered by prefix and capped
by a limit. ListComplete reports whether the limit cut anything off; the
cursor is always empty because pagination is not emulated.
*/
package kv
