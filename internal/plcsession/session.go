// Package plcsession implements the PLC session layer: one live
// connection per (host, rack, slot) endpoint, lock-serialized I/O,
// reconnect-with-retry, and a debounce/confirmation read cache.
package plcsession

import (
	"fmt"
	"io"
	"time"

	"s7gateway/internal/codec"
	"s7gateway/internal/faults"
	"s7gateway/internal/metrics"
	"s7gateway/pkg/logger"
)

// EndpointKey uniquely identifies a PLC session.
type EndpointKey struct {
	Host string
	Rack int
	Slot int
}

func (k EndpointKey) String() string {
	return fmt.Sprintf("%s:%d:%d", k.Host, k.Rack, k.Slot)
}

// ConnState mirrors the connection lifecycle in spec.md §4.2:
// Disconnected -> Connecting -> Connected -> (Disconnected on error).
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

// wireClient is the subset of github.com/robinson/gos7's Client
// interface the session needs. Production sessions are backed by a
// real gos7.Client (see connect.go); tests inject a fake.
type wireClient interface {
	AGReadDB(dbNumber, start, size int, buffer []byte) error
	AGWriteDB(dbNumber, start, size int, buffer []byte) error
}

// dialFunc opens a new wire connection to endpoint. The returned
// io.Closer tears the connection down; it may be nil.
type dialFunc func(endpoint EndpointKey, timeout time.Duration) (wireClient, io.Closer, error)

// Options configures session behavior; zero values fall back to the
// documented spec defaults.
type Options struct {
	MaxRetries       int
	RetryDelay       time.Duration
	LockTimeout      time.Duration
	ConnectTimeout   time.Duration
	CacheTime        time.Duration
	ConsecutiveReads int
	MaxCacheEntries  int
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 1 * time.Second
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = 5 * time.Second
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.CacheTime <= 0 {
		o.CacheTime = 50 * time.Millisecond
	}
	if o.ConsecutiveReads <= 0 {
		o.ConsecutiveReads = 3
	}
	if o.MaxCacheEntries <= 0 {
		o.MaxCacheEntries = 1000
	}
	return o
}

// Session owns one TCP connection to an S7 PLC and serializes every
// read/write against it.
type Session struct {
	endpoint EndpointKey
	opts     Options
	dial     dialFunc

	lockCh chan struct{}

	// Fields below are only ever touched while holding lockCh.
	client    wireClient
	closer    io.Closer
	state     ConnState
	cache     *debounceCache
}

// New creates a session for endpoint and connects eagerly, matching
// spec.md §3 ("socket comes up eagerly"). A nil dial uses the real
// gos7 client.
func New(endpoint EndpointKey, opts Options, dial dialFunc) (*Session, error) {
	opts = opts.withDefaults()
	if dial == nil {
		dial = dialGos7
	}
	s := &Session{
		endpoint: endpoint,
		opts:     opts,
		dial:     dial,
		lockCh:   make(chan struct{}, 1),
		cache:    newDebounceCache(opts.CacheTime, opts.ConsecutiveReads, opts.MaxCacheEntries),
	}
	if err := s.acquire(opts.LockTimeout); err != nil {
		return nil, err
	}
	err := s.connectLocked()
	s.release()
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) Endpoint() EndpointKey { return s.endpoint }

func (s *Session) acquire(timeout time.Duration) error {
	select {
	case s.lockCh <- struct{}{}:
		return nil
	case <-time.After(timeout):
		return faults.New(faults.Busy, "acquire_lock")
	}
}

func (s *Session) release() {
	<-s.lockCh
}

// connectLocked attempts to (re)establish the wire connection up to
// MaxRetries times, spaced by RetryDelay. Caller must hold lockCh.
func (s *Session) connectLocked() error {
	s.teardownLocked()
	s.state = Connecting

	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		client, closer, err := s.dial(s.endpoint, s.opts.ConnectTimeout)
		if err == nil {
			s.client = client
			s.closer = closer
			s.state = Connected
			return nil
		}
		lastErr = err
		logger.Warnf("plcsession %s: connect attempt %d/%d failed: %v", s.endpoint, attempt, s.opts.MaxRetries, err)
		if attempt < s.opts.MaxRetries {
			time.Sleep(s.opts.RetryDelay)
		}
	}
	s.state = Disconnected
	return faults.WrapAttempts(faults.ConnectionFailed, "connect", s.opts.MaxRetries, lastErr)
}

// teardownLocked is idempotent and swallows its own errors. Caller
// must hold lockCh.
func (s *Session) teardownLocked() {
	if s.closer != nil {
		_ = s.closer.Close()
	}
	s.closer = nil
	s.client = nil
	s.state = Disconnected
}

func (s *Session) ensureConnectedLocked() error {
	if s.state == Connected && s.client != nil {
		return nil
	}
	return s.connectLocked()
}

// IsConnected reports the session's current connection state.
func (s *Session) IsConnected() bool {
	if err := s.acquire(s.opts.LockTimeout); err != nil {
		return false
	}
	defer s.release()
	return s.state == Connected
}

// readTyped performs the debounce-aware typed read described in
// spec.md §4.2 steps 1-7 for descriptor d.
func (s *Session) readTyped(op string, d codec.Descriptor) (interface{}, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	size, err := codec.Size(d)
	if err != nil {
		return nil, err
	}
	key := keyFor(d, size)
	now := time.Now()

	if v, ok := s.cache.fresh(key, now); ok {
		metrics.RecordCacheHit()
		return v, nil
	}

	if err := s.acquire(s.opts.LockTimeout); err != nil {
		return nil, err
	}
	defer s.release()

	if err := s.ensureConnectedLocked(); err != nil {
		return nil, err
	}

	start := time.Now()
	buf := make([]byte, size)
	if err := s.client.AGReadDB(d.DBNumber, d.Offset, size, buf); err != nil {
		s.teardownLocked()
		metrics.RecordRead(op, "error", time.Since(start))
		return nil, faults.WrapAttempts(faults.OperationFailed, op, 1, err)
	}
	metrics.RecordRead(op, "success", time.Since(start))

	raw, err := codec.Decode(d, buf)
	if err != nil {
		return nil, err
	}

	return s.cache.observe(key, raw, now), nil
}

// writeTyped performs the retrying typed write described in spec.md
// §4.2 "Writes": invalidate-on-success, teardown-and-retry on
// failure, OperationFailed after max_retries. BOOL is read-modify-write
// on the single byte per spec.md §4.1, so it re-reads the current byte
// on every attempt rather than encoding once upfront.
func (s *Session) writeTyped(op string, d codec.Descriptor, value interface{}) error {
	if err := d.Validate(); err != nil {
		return err
	}
	size, err := codec.Size(d)
	if err != nil {
		return err
	}
	key := keyFor(d, size)

	var payload []byte
	if d.Type == codec.Bool {
		if _, err := codec.CoerceBool(value); err != nil {
			return err
		}
	} else {
		payload, err = codec.Encode(d, value)
		if err != nil {
			return err
		}
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		if d.Type == codec.Bool {
			lastErr = s.tryWriteBoolOnce(d, value, key)
		} else {
			lastErr = s.tryWriteOnce(d.DBNumber, d.Offset, payload, key)
		}
		if lastErr == nil {
			metrics.RecordWrite(op, "success", time.Since(start))
			return nil
		}
		logger.Warnf("plcsession %s: %s attempt %d/%d failed: %v", s.endpoint, op, attempt, s.opts.MaxRetries, lastErr)
		if attempt < s.opts.MaxRetries {
			time.Sleep(s.opts.RetryDelay)
		}
	}
	metrics.RecordWrite(op, "error", time.Since(start))
	return faults.WrapAttempts(faults.OperationFailed, op, s.opts.MaxRetries, lastErr)
}

func (s *Session) tryWriteOnce(db, offset int, payload []byte, key cacheKey) error {
	if err := s.acquire(s.opts.LockTimeout); err != nil {
		return err
	}
	defer s.release()

	if err := s.ensureConnectedLocked(); err != nil {
		return err
	}
	if err := s.client.AGWriteDB(db, offset, len(payload), payload); err != nil {
		s.teardownLocked()
		return err
	}
	s.cache.invalidate(key)
	return nil
}

// tryWriteBoolOnce reads the current byte at d.Offset, sets or clears
// d.BitPos, and writes the byte back, all under a single lock hold so
// no other writer can interleave between the read and the write.
func (s *Session) tryWriteBoolOnce(d codec.Descriptor, value interface{}, key cacheKey) error {
	if err := s.acquire(s.opts.LockTimeout); err != nil {
		return err
	}
	defer s.release()

	if err := s.ensureConnectedLocked(); err != nil {
		return err
	}
	v, err := codec.CoerceBool(value)
	if err != nil {
		return err
	}

	buf := make([]byte, 1)
	if err := s.client.AGReadDB(d.DBNumber, d.Offset, 1, buf); err != nil {
		s.teardownLocked()
		return err
	}
	newByte, err := codec.EncodeBoolByte(d, buf[0], v)
	if err != nil {
		return err
	}
	out := []byte{newByte}
	if err := s.client.AGWriteDB(d.DBNumber, d.Offset, 1, out); err != nil {
		s.teardownLocked()
		return err
	}
	s.cache.invalidate(key)
	return nil
}

// ReadBool reads a single addressed bit.
func (s *Session) ReadBool(db, offset, bit int) (bool, error) {
	d := codec.Descriptor{DBNumber: db, Offset: offset, Type: codec.Bool, BitPos: bit, HasBitPos: true}
	v, err := s.readTyped("read_bool", d)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// WriteBool writes a single addressed bit.
func (s *Session) WriteBool(db, offset, bit int, value bool) error {
	d := codec.Descriptor{DBNumber: db, Offset: offset, Type: codec.Bool, BitPos: bit, HasBitPos: true}
	return s.writeTyped("write_bool", d, value)
}

// ReadInt reads a 16-bit signed INT.
func (s *Session) ReadInt(db, offset int) (int16, error) {
	d := codec.Descriptor{DBNumber: db, Offset: offset, Type: codec.Int}
	v, err := s.readTyped("read_int", d)
	if err != nil {
		return 0, err
	}
	return v.(int16), nil
}

// WriteInt writes a 16-bit signed INT.
func (s *Session) WriteInt(db, offset int, value int16) error {
	d := codec.Descriptor{DBNumber: db, Offset: offset, Type: codec.Int}
	return s.writeTyped("write_int", d, value)
}

// ReadDInt reads a 32-bit signed DINT.
func (s *Session) ReadDInt(db, offset int) (int32, error) {
	d := codec.Descriptor{DBNumber: db, Offset: offset, Type: codec.Dint}
	v, err := s.readTyped("read_dint", d)
	if err != nil {
		return 0, err
	}
	return v.(int32), nil
}

// WriteDInt writes a 32-bit signed DINT.
func (s *Session) WriteDInt(db, offset int, value int32) error {
	d := codec.Descriptor{DBNumber: db, Offset: offset, Type: codec.Dint}
	return s.writeTyped("write_dint", d, value)
}

// ReadReal reads an IEEE-754 REAL.
func (s *Session) ReadReal(db, offset int) (float32, error) {
	d := codec.Descriptor{DBNumber: db, Offset: offset, Type: codec.Real}
	v, err := s.readTyped("read_real", d)
	if err != nil {
		return 0, err
	}
	return v.(float32), nil
}

// WriteReal writes an IEEE-754 REAL.
func (s *Session) WriteReal(db, offset int, value float32) error {
	d := codec.Descriptor{DBNumber: db, Offset: offset, Type: codec.Real}
	return s.writeTyped("write_real", d, value)
}

// ReadString reads an S7 STRING (2-byte header + content).
func (s *Session) ReadString(db, offset, maxLength int) (string, error) {
	d := codec.Descriptor{DBNumber: db, Offset: offset, Type: codec.String, MaxLength: maxLength}
	v, err := s.readTyped("read_string", d)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// WriteString writes an S7 STRING, truncating to maxLength.
func (s *Session) WriteString(db, offset int, value string, maxLength int) error {
	d := codec.Descriptor{DBNumber: db, Offset: offset, Type: codec.String, MaxLength: maxLength}
	return s.writeTyped("write_string", d, value)
}

// RawRead reads n untyped bytes, bypassing the debounce cache.
func (s *Session) RawRead(db, offset, n int) ([]byte, error) {
	if err := s.acquire(s.opts.LockTimeout); err != nil {
		return nil, err
	}
	defer s.release()

	if err := s.ensureConnectedLocked(); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := s.client.AGReadDB(db, offset, n, buf); err != nil {
		s.teardownLocked()
		return nil, faults.WrapAttempts(faults.OperationFailed, "raw_read", 1, err)
	}
	return buf, nil
}

// RawWrite writes untyped bytes with the same retry policy as typed
// writes, invalidating every cache entry at (db, offset) regardless of
// its size/bit — mirroring original_source/plc.py's plc_write prefix
// sweep, since a raw write may straddle several typed signals.
func (s *Session) RawWrite(db, offset int, data []byte) error {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		lastErr = s.tryRawWriteOnce(db, offset, data)
		if lastErr == nil {
			return nil
		}
		logger.Warnf("plcsession %s: raw_write attempt %d/%d failed: %v", s.endpoint, attempt, s.opts.MaxRetries, lastErr)
		if attempt < s.opts.MaxRetries {
			time.Sleep(s.opts.RetryDelay)
		}
	}
	return faults.WrapAttempts(faults.OperationFailed, "raw_write", s.opts.MaxRetries, lastErr)
}

func (s *Session) tryRawWriteOnce(db, offset int, data []byte) error {
	if err := s.acquire(s.opts.LockTimeout); err != nil {
		return err
	}
	defer s.release()

	if err := s.ensureConnectedLocked(); err != nil {
		return err
	}
	if err := s.client.AGWriteDB(db, offset, len(data), data); err != nil {
		s.teardownLocked()
		return err
	}
	s.cache.invalidatePrefix(db, offset)
	return nil
}

// Close tears down the underlying connection. The session remains
// usable afterward — the next operation reconnects inline.
func (s *Session) Close() {
	_ = s.acquire(s.opts.LockTimeout)
	s.teardownLocked()
	s.release()
}
