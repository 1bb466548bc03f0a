package machine

import (
	"encoding/json"
	"fmt"

	"s7gateway/internal/codec"
	"s7gateway/internal/faults"
)

// rawMachine mirrors the on-disk JSON shape written by the external
// config store: a flat record per uid with signals_configuration
// holding both signal descriptors and the reserved monitor_signals
// key, matching original_source/connection/config.py's add_machine_config.
type rawMachine struct {
	MachineName          string          `json:"machine_name"`
	Host                 string          `json:"host"`
	Rack                 *int            `json:"rack"`
	Slot                 *int            `json:"slot"`
	SignalsConfiguration json.RawMessage `json:"signals_configuration"`
}

type rawDescriptor struct {
	DBNumber  int    `json:"db_number"`
	Offset    int    `json:"offset"`
	Type      string `json:"type"`
	BitPos    *int   `json:"bit_pos,omitempty"`
	MaxLength int    `json:"max_length,omitempty"`
}

type rawAckSpec struct {
	Ack       bool            `json:"ack"`
	AckSignal string          `json:"ack_signal,omitempty"`
	AckValue  json.RawMessage `json:"ack_value,omitempty"`
}

type rawMonitorPlan struct {
	OnChange   map[string]rawAckSpec `json:"on_change,omitempty"`
	Continuous map[string]rawAckSpec `json:"continuous,omitempty"`
}

const monitorSignalsKey = "monitor_signals"

// UnmarshalJSON decodes a machine record, splitting
// signals_configuration into signal descriptors plus the reserved
// monitor_signals plan.
func (m *Machine) UnmarshalJSON(data []byte) error {
	var raw rawMachine
	if err := json.Unmarshal(data, &raw); err != nil {
		return faults.Wrap(faults.InvalidDescriptor, "decode machine", err)
	}

	m.MachineName = raw.MachineName
	m.Host = raw.Host
	m.Rack = 0
	if raw.Rack != nil {
		m.Rack = *raw.Rack
	}
	m.Slot = 1
	if raw.Slot != nil {
		m.Slot = *raw.Slot
	}

	m.Signals = make(map[string]Descriptor)
	m.Monitor = MonitorPlan{}

	if len(raw.SignalsConfiguration) == 0 {
		return nil
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw.SignalsConfiguration, &entries); err != nil {
		return faults.Wrap(faults.InvalidDescriptor, "decode signals_configuration", err)
	}

	if planRaw, ok := entries[monitorSignalsKey]; ok {
		plan, err := decodeMonitorPlan(planRaw)
		if err != nil {
			return err
		}
		m.Monitor = plan
		delete(entries, monitorSignalsKey)
	}

	for name, raw := range entries {
		d, err := decodeDescriptor(raw)
		if err != nil {
			return faults.Wrap(faults.InvalidDescriptor, fmt.Sprintf("signal %q", name), err)
		}
		m.Signals[name] = d
	}
	return nil
}

func decodeDescriptor(data []byte) (Descriptor, error) {
	var r rawDescriptor
	if err := json.Unmarshal(data, &r); err != nil {
		return Descriptor{}, err
	}
	d := Descriptor{
		DBNumber:  r.DBNumber,
		Offset:    r.Offset,
		Type:      codec.Type(r.Type),
		MaxLength: r.MaxLength,
	}
	if r.BitPos != nil {
		d.BitPos = *r.BitPos
		d.HasBitPos = true
	}
	return d, nil
}

func decodeMonitorPlan(data []byte) (MonitorPlan, error) {
	var r rawMonitorPlan
	if err := json.Unmarshal(data, &r); err != nil {
		return MonitorPlan{}, faults.Wrap(faults.InvalidDescriptor, "decode monitor_signals", err)
	}
	plan := MonitorPlan{
		OnChange:   make(map[string]AckSpec, len(r.OnChange)),
		Continuous: make(map[string]AckSpec, len(r.Continuous)),
	}
	for name, spec := range r.OnChange {
		s, err := decodeAckSpec(spec)
		if err != nil {
			return MonitorPlan{}, err
		}
		plan.OnChange[name] = s
	}
	for name, spec := range r.Continuous {
		s, err := decodeAckSpec(spec)
		if err != nil {
			return MonitorPlan{}, err
		}
		plan.Continuous[name] = s
	}
	return plan, nil
}

func decodeAckSpec(r rawAckSpec) (AckSpec, error) {
	spec := AckSpec{Ack: r.Ack, AckSignal: r.AckSignal}
	if len(r.AckValue) == 0 {
		spec.AckValue = AckValue{Same: true}
		return spec, nil
	}
	var asString string
	if err := json.Unmarshal(r.AckValue, &asString); err == nil && asString == "same" {
		spec.AckValue = AckValue{Same: true}
		return spec, nil
	}
	var literal interface{}
	if err := json.Unmarshal(r.AckValue, &literal); err != nil {
		return AckSpec{}, faults.Wrap(faults.InvalidDescriptor, "decode ack_value", err)
	}
	spec.AckValue = AckValue{Literal: literal}
	return spec, nil
}

// MarshalJSON re-encodes a machine back into the on-disk shape,
// reassembling signals_configuration with monitor_signals folded in.
func (m Machine) MarshalJSON() ([]byte, error) {
	entries := make(map[string]interface{}, len(m.Signals)+1)
	for name, d := range m.Signals {
		entries[name] = encodeDescriptor(d)
	}
	entries[monitorSignalsKey] = encodeMonitorPlan(m.Monitor)

	out := struct {
		MachineName          string      `json:"machine_name"`
		Host                 string      `json:"host"`
		Rack                 int         `json:"rack"`
		Slot                 int         `json:"slot"`
		SignalsConfiguration interface{} `json:"signals_configuration"`
	}{
		MachineName:          m.MachineName,
		Host:                 m.Host,
		Rack:                 m.Rack,
		Slot:                 m.Slot,
		SignalsConfiguration: entries,
	}
	return json.Marshal(out)
}

func encodeDescriptor(d Descriptor) rawDescriptor {
	r := rawDescriptor{DBNumber: d.DBNumber, Offset: d.Offset, Type: string(d.Type), MaxLength: d.MaxLength}
	if d.HasBitPos {
		bp := d.BitPos
		r.BitPos = &bp
	}
	return r
}

func encodeMonitorPlan(p MonitorPlan) rawMonitorPlan {
	r := rawMonitorPlan{
		OnChange:   make(map[string]rawAckSpec, len(p.OnChange)),
		Continuous: make(map[string]rawAckSpec, len(p.Continuous)),
	}
	for name, spec := range p.OnChange {
		r.OnChange[name] = encodeAckSpec(spec)
	}
	for name, spec := range p.Continuous {
		r.Continuous[name] = encodeAckSpec(spec)
	}
	return r
}

func encodeAckSpec(spec AckSpec) rawAckSpec {
	r := rawAckSpec{Ack: spec.Ack, AckSignal: spec.AckSignal}
	if spec.AckValue.Same {
		raw, _ := json.Marshal("same")
		r.AckValue = raw
	} else if spec.AckValue.Literal != nil {
		raw, _ := json.Marshal(spec.AckValue.Literal)
		r.AckValue = raw
	}
	return r
}
