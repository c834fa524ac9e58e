package kv_test

import (
	"io"
	"reflect"
	"sync"
	"testing"
	"time"

	testutils "github.com/FlashGalatine/xivdyetools-test-utils"
	"github.com/FlashGalatine/xivdyetools-test-utils/kv"
)

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// newStore builds a store on a frozen manual clock for deterministic expiry.
func newStore(t testing.TB, cfg kv.Config) (*kv.Store, *testutils.ManualClock) {
	t.Helper()
	clock := testutils.NewManualClock(base)
	cfg.Clock = clock.Clock()
	store, err := kv.New(cfg)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store, clock
}

// TestStoreGetTypes verifies the value shapes Get can materialize.
func TestStoreGetTypes(t *testing.T) {
	tt := []struct {
		Name   string
		Stored string
		Opts   []kv.GetOptions
		Want   any
	}{
		{
			Name:   "Text Default",
			Stored: "hello",
			Want:   "hello",
		},
		{
			Name:   "Explicit Text",
			Stored: "hello",
			Opts:   []kv.GetOptions{{Type: kv.TypeText}},
			Want:   "hello",
		},
		{
			Name:   "JSON Object",
			Stored: `{"hex":"#fafafa","shades":2}`,
			Opts:   []kv.GetOptions{{Type: kv.TypeJSON}},
			Want:   map[string]any{"hex": "#fafafa", "shades": float64(2)},
		},
		{
			Name:   "JSON Array",
			Stored: `[1,2,3]`,
			Opts:   []kv.GetOptions{{Type: kv.TypeJSON}},
			Want:   []any{float64(1), float64(2), float64(3)},
		},
		{
			Name:   "Malformed JSON Falls Back To Text",
			Stored: `{"hex":`,
			Opts:   []kv.GetOptions{{Type: kv.TypeJSON}},
			Want:   `{"hex":`,
		},
		{
			Name:   "Array Buffer",
			Stored: "raw-bytes",
			Opts:   []kv.GetOptions{{Type: kv.TypeArrayBuffer}},
			Want:   []byte("raw-bytes"),
		},
	}

	for _, tc := range tt {
		t.Run(tc.Name, func(t *testing.T) {
			store, _ := newStore(t, kv.Config{})
			store.Put("key", tc.Stored)

			got := store.Get("key", tc.Opts...)
			if !reflect.DeepEqual(got, tc.Want) {
				t.Fatalf("Expected value %#v, got %#v", tc.Want, got)
			}
		})
	}

	t.Run("Stream", func(t *testing.T) {
		store, _ := newStore(t, kv.Config{})
		store.Put("key", "streamed")

		got := store.Get("key", kv.GetOptions{Type: kv.TypeStream})
		r, ok := got.(io.Reader)
		if !ok {
			t.Fatalf("Expected io.Reader, got %T", got)
		}
		b, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("Expected readable stream, got error %v", err)
		}
		if string(b) != "streamed" {
			t.Fatalf("Expected stream content %q, got %q", "streamed", string(b))
		}
	})

	t.Run("Missing Key", func(t *testing.T) {
		store, _ := newStore(t, kv.Config{})
		if got := store.Get("absent"); got != nil {
			t.Fatalf("Expected nil for missing key, got %#v", got)
		}
	})
}

// TestStoreExpiration covers the timing rules around TTLs.
func TestStoreExpiration(t *testing.T) {
	t.Run("Boundary", func(t *testing.T) {
		store, clock := newStore(t, kv.Config{})
		store.Put("k59", "v", kv.PutOptions{ExpirationTTL: 60})
		store.Put("k60", "v", kv.PutOptions{ExpirationTTL: 60})
		store.Put("k61", "v", kv.PutOptions{ExpirationTTL: 60})

		clock.Advance(59 * time.Second)
		if got := store.Get("k59"); got != "v" {
			t.Fatalf("Expected value one second before expiry, got %#v", got)
		}

		clock.Advance(time.Second)
		if got := store.Get("k60"); got != nil {
			t.Fatalf("Expected nil at the expiry instant, got %#v", got)
		}

		clock.Advance(time.Second)
		if got := store.Get("k61"); got != nil {
			t.Fatalf("Expected nil after expiry, got %#v", got)
		}

		// k60 and k61 were removed by their reads; k59 is expired but
		// untouched since, so it still occupies a physical slot.
		if size := store.Size(); size != 1 {
			t.Fatalf("Expected physical size 1, got %d", size)
		}
	})

	t.Run("Absolute Expiration", func(t *testing.T) {
		store, clock := newStore(t, kv.Config{})
		store.Put("key", "v", kv.PutOptions{Expiration: base.Unix() + 100})

		clock.Advance(99 * time.Second)
		if got := store.Get("key"); got != "v" {
			t.Fatalf("Expected value before absolute expiry, got %#v", got)
		}

		clock.Advance(time.Second)
		if got := store.Get("key"); got != nil {
			t.Fatalf("Expected nil at absolute expiry, got %#v", got)
		}
	})

	t.Run("TTL Wins Over Expiration", func(t *testing.T) {
		store, clock := newStore(t, kv.Config{})
		store.Put("key", "v", kv.PutOptions{
			ExpirationTTL: 10,
			Expiration:    base.Unix() + 1000,
		})

		clock.Advance(10 * time.Second)
		if got := store.Get("key"); got != nil {
			t.Fatalf("Expected relative TTL to win, got %#v", got)
		}
	})

	t.Run("Rewrite Clears Expiration", func(t *testing.T) {
		store, clock := newStore(t, kv.Config{})
		store.Put("key", "v", kv.PutOptions{ExpirationTTL: 10})
		store.Put("key", "v2")

		clock.Advance(20 * time.Second)
		if got := store.Get("key"); got != "v2" {
			t.Fatalf("Expected rewrite to clear the TTL, got %#v", got)
		}
	})

	t.Run("Value And Metadata Leave Together", func(t *testing.T) {
		store, clock := newStore(t, kv.Config{})
		store.Put("key", "v", kv.PutOptions{
			ExpirationTTL: 5,
			Metadata:      map[string]any{"source": "seed"},
		})

		clock.Advance(5 * time.Second)
		res := store.GetWithMetadata("key")
		if res.Value != nil || res.Metadata != nil {
			t.Fatalf("Expected empty result after expiry, got %+v", res)
		}
		if size := store.Size(); size != 0 {
			t.Fatalf("Expected expired entry to be removed, size %d", size)
		}
	})
}

// TestStoreGetWithMetadata verifies metadata retrieval and isolation.
func TestStoreGetWithMetadata(t *testing.T) {
	t.Run("Returns Stored Metadata", func(t *testing.T) {
		store, _ := newStore(t, kv.Config{})
		store.Put("key", "v", kv.PutOptions{Metadata: map[string]any{"owner": "dyes"}})

		res := store.GetWithMetadata("key")
		if res.Value != "v" {
			t.Fatalf("Expected value %q, got %#v", "v", res.Value)
		}
		want := map[string]any{"owner": "dyes"}
		if !reflect.DeepEqual(res.Metadata, want) {
			t.Fatalf("Expected metadata %#v, got %#v", want, res.Metadata)
		}
		if res.CacheStatus != nil {
			t.Fatalf("Expected nil cache status, got %v", *res.CacheStatus)
		}
	})

	t.Run("Metadata Copies Are Isolated", func(t *testing.T) {
		store, _ := newStore(t, kv.Config{})
		store.Put("key", "v", kv.PutOptions{Metadata: map[string]any{"owner": "dyes"}})

		first := store.GetWithMetadata("key")
		m, ok := first.Metadata.(map[string]any)
		if !ok {
			t.Fatalf("Expected map metadata, got %T", first.Metadata)
		}
		m["owner"] = "mutated"

		second := store.GetWithMetadata("key")
		want := map[string]any{"owner": "dyes"}
		if !reflect.DeepEqual(second.Metadata, want) {
			t.Fatalf("Stored metadata was mutated through a returned copy: %#v", second.Metadata)
		}
	})

	t.Run("No Metadata", func(t *testing.T) {
		store, _ := newStore(t, kv.Config{})
		store.Put("key", "v")

		res := store.GetWithMetadata("key")
		if res.Metadata != nil {
			t.Fatalf("Expected nil metadata, got %#v", res.Metadata)
		}
	})

	t.Run("Rewrite Clears Metadata", func(t *testing.T) {
		store, _ := newStore(t, kv.Config{})
		store.Put("key", "v", kv.PutOptions{Metadata: "note"})
		store.Put("key", "v2")

		res := store.GetWithMetadata("key")
		if res.Metadata != nil {
			t.Fatalf("Expected rewrite to clear metadata, got %#v", res.Metadata)
		}
	})
}

// TestStoreDelete verifies removal semantics.
func TestStoreDelete(t *testing.T) {
	store, _ := newStore(t, kv.Config{})
	store.Put("key", "v")

	store.Delete("key")
	if got := store.Get("key"); got != nil {
		t.Fatalf("Expected nil after delete, got %#v", got)
	}

	// Deleting a missing key is silent.
	store.Delete("absent")
	if size := store.Size(); size != 0 {
		t.Fatalf("Expected empty store, size %d", size)
	}
}

// TestStoreList verifies filtering, ordering, and completeness reporting.
func TestStoreList(t *testing.T) {
	t.Run("Prefix And Order", func(t *testing.T) {
		store, _ := newStore(t, kv.Config{})
		store.Put("color:snow", "#fafafa")
		store.Put("preset:winter", "x")
		store.Put("color:ash", "#999999")
		store.Put("color:jet", "#131313")

		res := store.List(kv.ListOptions{Prefix: "color:"})
		wantNames := []string{"color:ash", "color:jet", "color:snow"}
		if len(res.Keys) != len(wantNames) {
			t.Fatalf("Expected %d keys, got %d", len(wantNames), len(res.Keys))
		}
		for i, want := range wantNames {
			if res.Keys[i].Name != want {
				t.Fatalf("Expected key %q at position %d, got %q", want, i, res.Keys[i].Name)
			}
		}
		if !res.ListComplete {
			t.Fatal("Expected complete listing")
		}
		if res.Cursor != "" {
			t.Fatalf("Expected empty cursor, got %q", res.Cursor)
		}
	})

	t.Run("Limit And Completeness", func(t *testing.T) {
		store, _ := newStore(t, kv.Config{})
		for _, k := range []string{"a", "b", "c", "d", "e"} {
			store.Put(k, "v")
		}

		res := store.List(kv.ListOptions{Limit: 3})
		if len(res.Keys) != 3 || res.ListComplete {
			t.Fatalf("Expected truncated listing of 3, got %d complete=%v", len(res.Keys), res.ListComplete)
		}

		// A limit that exactly covers the matches is still complete.
		res = store.List(kv.ListOptions{Limit: 5})
		if len(res.Keys) != 5 || !res.ListComplete {
			t.Fatalf("Expected complete listing of 5, got %d complete=%v", len(res.Keys), res.ListComplete)
		}
	})

	t.Run("Expired Keys Collected", func(t *testing.T) {
		store, clock := newStore(t, kv.Config{})
		store.Put("live", "v")
		store.Put("gone-1", "v", kv.PutOptions{ExpirationTTL: 5})
		store.Put("gone-2", "v", kv.PutOptions{ExpirationTTL: 5})

		clock.Advance(10 * time.Second)
		res := store.List()
		if len(res.Keys) != 1 || res.Keys[0].Name != "live" {
			t.Fatalf("Expected only the live key, got %+v", res.Keys)
		}
		if size := store.Size(); size != 1 {
			t.Fatalf("Expected expired entries removed after list, size %d", size)
		}
	})

	t.Run("Key Fields", func(t *testing.T) {
		store, _ := newStore(t, kv.Config{})
		store.Put("key", "v", kv.PutOptions{
			ExpirationTTL: 60,
			Metadata:      map[string]any{"tag": "x"},
		})

		res := store.List()
		if len(res.Keys) != 1 {
			t.Fatalf("Expected one key, got %d", len(res.Keys))
		}
		k := res.Keys[0]
		if k.Expiration != base.Unix()+60 {
			t.Fatalf("Expected expiration %d, got %d", base.Unix()+60, k.Expiration)
		}
		if !reflect.DeepEqual(k.Metadata, map[string]any{"tag": "x"}) {
			t.Fatalf("Expected metadata on listed key, got %#v", k.Metadata)
		}
	})
}

// TestStoreListSingleSnapshot proves a listing judges every key against one
// clock reading even while the clock ticks between operations.
func TestStoreListSingleSnapshot(t *testing.T) {
	store, clock := newStore(t, kv.Config{})
	expiry := base.Unix() + 10
	for i := 0; i < 100; i++ {
		store.Put(key(i), "v", kv.PutOptions{Expiration: expiry})
	}

	clock.Set(base.Add(9 * time.Second))
	clock.AutoAdvance(time.Second)

	res := store.List()
	if len(res.Keys) != 100 {
		t.Fatalf("Expected all 100 keys under a single snapshot, got %d", len(res.Keys))
	}

	// The listing must have consumed exactly one clock reading.
	if now := clock.Now(); !now.Equal(base.Add(10 * time.Second)) {
		t.Fatalf("Expected exactly one clock read during list, next reading %v", now)
	}

	// One second later every key sits at or past its expiry.
	res = store.List()
	if len(res.Keys) != 0 {
		t.Fatalf("Expected all keys expired, got %d", len(res.Keys))
	}
	if size := store.Size(); size != 0 {
		t.Fatalf("Expected expired keys collected, size %d", size)
	}
}

// TestStoreLazyReap confirms expired entries occupy space until touched.
func TestStoreLazyReap(t *testing.T) {
	store, clock := newStore(t, kv.Config{})
	store.Put("key", "v", kv.PutOptions{ExpirationTTL: 5})

	clock.Advance(10 * time.Second)
	if size := store.Size(); size != 1 {
		t.Fatalf("Expected untouched expired entry to remain, size %d", size)
	}

	if got := store.Get("key"); got != nil {
		t.Fatalf("Expected nil for expired key, got %#v", got)
	}
	if size := store.Size(); size != 0 {
		t.Fatalf("Expected read to remove expired entry, size %d", size)
	}
}

// TestStoreReset verifies reset restores the seeded construction state.
func TestStoreReset(t *testing.T) {
	store, _ := newStore(t, kv.Config{Seed: map[string]string{"a": "1", "b": "2"}})
	store.Put("c", "3")
	store.Delete("a")
	store.Put("b", "overwritten", kv.PutOptions{ExpirationTTL: 5})

	store.Reset()

	if got := store.Get("a"); got != "1" {
		t.Fatalf("Expected seeded value restored, got %#v", got)
	}
	if got := store.Get("b"); got != "2" {
		t.Fatalf("Expected seed overwrite undone, got %#v", got)
	}
	if got := store.Get("c"); got != nil {
		t.Fatalf("Expected added key dropped, got %#v", got)
	}
	if size := store.Size(); size != 2 {
		t.Fatalf("Expected size 2 after reset, got %d", size)
	}
}

// TestStoreConcurrent exercises the store from many goroutines at once.
func TestStoreConcurrent(t *testing.T) {
	store, _ := newStore(t, kv.Config{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			store.Put(key(n), "v")
			_ = store.Get(key(n))
			_ = store.List(kv.ListOptions{Limit: 10})
		}(i)
	}
	wg.Wait()

	if size := store.Size(); size != 50 {
		t.Fatalf("Expected 50 entries, got %d", size)
	}
}

// key formats a deterministic two-digit key so listings sort predictably.
func key(n int) string {
	return "key-" + string(rune('a'+n/10)) + string(rune('a'+n%10))
}
