package registry

import (
	"testing"
	"time"

	"s7gateway/internal/plcsession"
)

func testOpts() plcsession.Options {
	return plcsession.Options{
		MaxRetries: 1, RetryDelay: time.Millisecond, LockTimeout: time.Second,
		ConnectTimeout: 50 * time.Millisecond, CacheTime: time.Millisecond,
		ConsecutiveReads: 1, MaxCacheEntries: 10,
	}
}

// plcsession's dial function is package-private by design (see
// internal/plcsession/session_test.go for its own fake-wire coverage),
// so registry tests exercise the map bookkeeping directly rather than
// a live connection: Get/Remove/All on an empty registry, and that a
// failed GetOrCreate never caches a half-built session.

func TestGetReturnsFalseForUnknownEndpoint(t *testing.T) {
	r := New(testOpts())
	endpoint := plcsession.EndpointKey{Host: "192.0.2.1", Rack: 0, Slot: 1}
	if _, ok := r.Get(endpoint); ok {
		t.Fatal("expected no session registered yet")
	}
}

func TestGetOrCreateFailureIsNotCached(t *testing.T) {
	r := New(testOpts())
	// 192.0.2.0/24 is TEST-NET-1 (RFC 5737): guaranteed unroutable, so
	// the dial fails fast and deterministically.
	endpoint := plcsession.EndpointKey{Host: "192.0.2.1", Rack: 0, Slot: 1}

	if _, err := r.GetOrCreate(endpoint); err == nil {
		t.Fatal("expected ConnectionFailed dialing an unroutable address")
	}
	if r.Len() != 0 {
		t.Fatalf("expected failed creation to leave registry empty, got %d entries", r.Len())
	}
	if _, ok := r.Get(endpoint); ok {
		t.Fatal("expected no session cached after failed GetOrCreate")
	}
}

func TestRemoveOnEmptyRegistryIsNoop(t *testing.T) {
	r := New(testOpts())
	endpoint := plcsession.EndpointKey{Host: "192.0.2.1", Rack: 0, Slot: 1}
	r.Remove(endpoint) // must not panic
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}

func TestAllReturnsIndependentSnapshot(t *testing.T) {
	r := New(testOpts())
	snap := r.All()
	snap[plcsession.EndpointKey{Host: "x", Rack: 0, Slot: 0}] = nil
	if r.Len() != 0 {
		t.Fatal("mutating the snapshot must not affect the registry")
	}
}
