// Package signalops implements the four public signal operations
// (C4): read_signal, write_signal, read_many, write_many. Grounded on
// original_source/call_functions.py's send_signal/read_signal/
// send_multiple_signals/read_multiple_signals, including their
// response shapes and per-signal degrade-to-null/false behavior.
package signalops

import (
	"s7gateway/internal/codec"
	"s7gateway/internal/faults"
	"s7gateway/internal/machine"
	"s7gateway/internal/plcsession"
	"s7gateway/internal/registry"
)

// Ops resolves machine_id + signal_name (+ value, for writes) through
// the machine store into a codec + session call.
type Ops struct {
	store    *machine.Store
	registry *registry.Registry
}

// New builds a signal operations resolver over store and registry.
func New(store *machine.Store, reg *registry.Registry) *Ops {
	return &Ops{store: store, registry: reg}
}

// ReadSignalResult is the read_signal response shape: {signal, value}
// on success, {signal, value: null, error} on failure.
type ReadSignalResult struct {
	Signal string
	Value  interface{}
	Err    error
}

// WriteSignalResult is the write_signal response shape: {signal,
// success} on success, {signal, success: false, error} on failure.
type WriteSignalResult struct {
	Signal  string
	Success bool
	Err     error
}

// resolve loads the machine, its signal descriptor, and its session.
func (o *Ops) resolve(machineID, signal string) (machine.Descriptor, *plcsession.Session, error) {
	m, err := o.store.Get(machineID)
	if err != nil {
		return machine.Descriptor{}, nil, err
	}
	d, ok := m.Signals[signal]
	if !ok {
		return machine.Descriptor{}, nil, faults.New(faults.UnknownSignal, signal)
	}
	endpoint := plcsession.EndpointKey{Host: m.Host, Rack: m.Rack, Slot: m.Slot}
	sess, err := o.registry.GetOrCreate(endpoint)
	if err != nil {
		return machine.Descriptor{}, nil, err
	}
	return d, sess, nil
}

// ReadSignal reads one named signal off machineID.
func (o *Ops) ReadSignal(machineID, signal string) ReadSignalResult {
	d, sess, err := o.resolve(machineID, signal)
	if err != nil {
		return ReadSignalResult{Signal: signal, Err: err}
	}
	v, err := readTyped(sess, d)
	if err != nil {
		return ReadSignalResult{Signal: signal, Err: err}
	}
	return ReadSignalResult{Signal: signal, Value: v}
}

// WriteSignal writes value to one named signal on machineID.
func (o *Ops) WriteSignal(machineID, signal string, value interface{}) WriteSignalResult {
	d, sess, err := o.resolve(machineID, signal)
	if err != nil {
		return WriteSignalResult{Signal: signal, Err: err}
	}
	if err := writeTyped(sess, d, value); err != nil {
		return WriteSignalResult{Signal: signal, Err: err}
	}
	return WriteSignalResult{Signal: signal, Success: true}
}

// ReadMany reads every named signal; a per-signal failure becomes a
// nil value in the result map, the overall call always succeeds.
func (o *Ops) ReadMany(machineID string, signals []string) map[string]interface{} {
	out := make(map[string]interface{}, len(signals))
	for _, name := range signals {
		r := o.ReadSignal(machineID, name)
		if r.Err != nil {
			out[name] = nil
			continue
		}
		out[name] = r.Value
	}
	return out
}

// WriteManyResult is the write_many response shape: success is the
// logical AND of every per-signal result.
type WriteManyResult struct {
	Success bool
	Results map[string]bool
	Err     error
}

// WriteMany writes values[i] to signals[i] in array order. Writes
// proceed independently — one signal's failure never stops the rest
// (spec.md §5 "no atomicity across signals"). len(signals) must equal
// len(values) or the whole call fails with Arity.
func (o *Ops) WriteMany(machineID string, signals []string, values []interface{}) WriteManyResult {
	if len(signals) != len(values) {
		return WriteManyResult{Err: faults.New(faults.Arity, "write_many")}
	}
	results := make(map[string]bool, len(signals))
	success := true
	for i, name := range signals {
		r := o.WriteSignal(machineID, name, values[i])
		results[name] = r.Success
		success = success && r.Success
	}
	return WriteManyResult{Success: success, Results: results}
}

func readTyped(sess *plcsession.Session, d machine.Descriptor) (interface{}, error) {
	switch d.Type {
	case codec.Bool:
		return sess.ReadBool(d.DBNumber, d.Offset, d.BitPos)
	case codec.Int:
		return sess.ReadInt(d.DBNumber, d.Offset)
	case codec.Dint:
		return sess.ReadDInt(d.DBNumber, d.Offset)
	case codec.Real:
		return sess.ReadReal(d.DBNumber, d.Offset)
	case codec.String:
		return sess.ReadString(d.DBNumber, d.Offset, d.MaxLength)
	default:
		return nil, faults.New(faults.TypeUnsupported, string(d.Type))
	}
}

func writeTyped(sess *plcsession.Session, d machine.Descriptor, value interface{}) error {
	switch d.Type {
	case codec.Bool:
		v, err := codec.CoerceBool(value)
		if err != nil {
			return err
		}
		return sess.WriteBool(d.DBNumber, d.Offset, d.BitPos, v)
	case codec.Int:
		v, err := codec.CoerceInt16(value)
		if err != nil {
			return err
		}
		return sess.WriteInt(d.DBNumber, d.Offset, v)
	case codec.Dint:
		v, err := codec.CoerceInt32(value)
		if err != nil {
			return err
		}
		return sess.WriteDInt(d.DBNumber, d.Offset, v)
	case codec.Real:
		v, err := codec.CoerceFloat32(value)
		if err != nil {
			return err
		}
		return sess.WriteReal(d.DBNumber, d.Offset, v)
	case codec.String:
		v, err := codec.CoerceString(value)
		if err != nil {
			return err
		}
		maxLen := d.MaxLength
		return sess.WriteString(d.DBNumber, d.Offset, v, maxLen)
	default:
		return faults.New(faults.TypeUnsupported, string(d.Type))
	}
}
