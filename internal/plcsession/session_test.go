package plcsession

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"s7gateway/internal/faults"
)

// fakeWire is an in-memory stand-in for gos7.Client, addressed as a
// flat byte space per DB number.
type fakeWire struct {
	mu       sync.Mutex
	dbs      map[int][]byte
	failNext int // number of upcoming calls (read+write) to fail
}

func newFakeWire() *fakeWire {
	return &fakeWire{dbs: make(map[int][]byte)}
}

func (f *fakeWire) dbBuf(db, need int) []byte {
	buf, ok := f.dbs[db]
	if !ok || len(buf) < need {
		grown := make([]byte, need)
		copy(grown, buf)
		buf = grown
		f.dbs[db] = buf
	}
	return buf
}

func (f *fakeWire) AGReadDB(db, start, size int, buffer []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errors.New("simulated wire failure")
	}
	buf := f.dbBuf(db, start+size)
	copy(buffer, buf[start:start+size])
	return nil
}

func (f *fakeWire) AGWriteDB(db, start, size int, buffer []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errors.New("simulated wire failure")
	}
	buf := f.dbBuf(db, start+size)
	copy(buf[start:start+size], buffer)
	return nil
}

type fakeCloser struct{ closed int }

func (c *fakeCloser) Close() error { c.closed++; return nil }

func newTestSession(t *testing.T, wire *fakeWire) *Session {
	t.Helper()
	closer := &fakeCloser{}
	dial := func(endpoint EndpointKey, timeout time.Duration) (wireClient, io.Closer, error) {
		return wire, closer, nil
	}
	opts := Options{
		MaxRetries:       2,
		RetryDelay:       time.Millisecond,
		LockTimeout:      time.Second,
		ConnectTimeout:   time.Second,
		CacheTime:        10 * time.Millisecond,
		ConsecutiveReads: 2,
		MaxCacheEntries:  100,
	}
	s, err := New(EndpointKey{Host: "10.0.0.1", Rack: 0, Slot: 1}, opts, dial)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSessionWriteThenReadIntRoundTrip(t *testing.T) {
	wire := newFakeWire()
	s := newTestSession(t, wire)

	if err := s.WriteInt(1, 0, -17); err != nil {
		t.Fatalf("WriteInt: %v", err)
	}
	v, err := s.ReadInt(1, 0)
	if err != nil {
		t.Fatalf("ReadInt: %v", err)
	}
	if v != -17 {
		t.Fatalf("expected -17, got %d", v)
	}
}

func TestSessionBoolBitAddressing(t *testing.T) {
	wire := newFakeWire()
	s := newTestSession(t, wire)

	if err := s.WriteBool(2, 4, 3, true); err != nil {
		t.Fatalf("WriteBool: %v", err)
	}
	v, err := s.ReadBool(2, 4, 3)
	if err != nil {
		t.Fatalf("ReadBool: %v", err)
	}
	if !v {
		t.Fatal("expected true")
	}

	other, err := s.ReadBool(2, 4, 5)
	if err != nil {
		t.Fatalf("ReadBool other bit: %v", err)
	}
	if other {
		t.Fatal("expected false for untouched bit")
	}
}

func TestSessionWriteInvalidatesCache(t *testing.T) {
	wire := newFakeWire()
	s := newTestSession(t, wire)

	if err := s.WriteDInt(3, 0, 100); err != nil {
		t.Fatalf("WriteDInt: %v", err)
	}
	if v, _ := s.ReadDInt(3, 0); v != 100 {
		t.Fatalf("expected 100, got %d", v)
	}
	if err := s.WriteDInt(3, 0, 200); err != nil {
		t.Fatalf("WriteDInt: %v", err)
	}
	v, err := s.ReadDInt(3, 0)
	if err != nil {
		t.Fatalf("ReadDInt: %v", err)
	}
	if v != 200 {
		t.Fatalf("expected fresh read of 200 after write invalidated cache, got %d", v)
	}
}

func TestSessionWriteRetriesThenFails(t *testing.T) {
	wire := newFakeWire()
	wire.failNext = 100 // every attempt fails
	s := newTestSession(t, wire)
	s.opts.MaxRetries = 2
	s.opts.RetryDelay = time.Millisecond

	err := s.WriteReal(4, 0, 1.5)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	kind, ok := faults.KindOf(err)
	if !ok || kind != faults.OperationFailed {
		t.Fatalf("expected OperationFailed, got %v", err)
	}
}

func TestSessionStringRoundTrip(t *testing.T) {
	wire := newFakeWire()
	s := newTestSession(t, wire)

	if err := s.WriteString(5, 0, "HELLO WORLD THIS IS LONG", 10); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	v, err := s.ReadString(5, 0, 10)
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if v != "HELLO WORL" {
		t.Fatalf("expected truncated 'HELLO WORL', got %q", v)
	}
}

func TestSessionRawReadWriteBypassesCache(t *testing.T) {
	wire := newFakeWire()
	s := newTestSession(t, wire)

	if err := s.RawWrite(6, 0, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("RawWrite: %v", err)
	}
	buf, err := s.RawRead(6, 0, 4)
	if err != nil {
		t.Fatalf("RawRead: %v", err)
	}
	want := []byte{1, 2, 3, 4}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("byte %d: got %d want %d", i, buf[i], want[i])
		}
	}
}
