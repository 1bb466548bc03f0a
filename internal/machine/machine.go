// Package machine holds the per-machine configuration data model —
// machine descriptors, signal descriptors, and monitor plans — and the
// file-backed store that owns them. These are read-only to the core
// per spec.md §3; the core only ever resolves through them.
package machine

import "s7gateway/internal/codec"

// AckValue is either a literal scalar or the sentinel "same", meaning
// "acknowledge with whatever value was just sampled".
type AckValue struct {
	Literal interface{}
	Same    bool
}

// AckSpec describes the acknowledgement behavior for one monitored
// signal, per spec.md §3 "Monitor plan".
type AckSpec struct {
	Ack       bool
	AckSignal string
	AckValue  AckValue
}

// MonitorPlan is the reserved `monitor_signals` entry in a machine's
// signals_configuration: which signals to watch under each mode, and
// how to acknowledge them.
type MonitorPlan struct {
	OnChange   map[string]AckSpec
	Continuous map[string]AckSpec
}

// Descriptor is a signal's wire-addressing configuration, as stored in
// a machine's signals_configuration. It carries exactly the fields
// internal/codec.Descriptor needs.
type Descriptor struct {
	DBNumber  int
	Offset    int
	Type      codec.Type
	BitPos    int
	HasBitPos bool
	MaxLength int
}

// CodecDescriptor converts to the codec package's addressing type.
func (d Descriptor) CodecDescriptor() codec.Descriptor {
	return codec.Descriptor{
		DBNumber:  d.DBNumber,
		Offset:    d.Offset,
		Type:      d.Type,
		BitPos:    d.BitPos,
		HasBitPos: d.HasBitPos,
		MaxLength: d.MaxLength,
	}
}

// Machine is a per-machine endpoint plus its signal map, matching
// spec.md §3 "Machine descriptor" — the in-memory form the core works
// with, decoded from the store's on-disk JSON record.
type Machine struct {
	MachineName string
	Host        string
	Rack        int
	Slot        int
	Signals     map[string]Descriptor
	Monitor     MonitorPlan
}
