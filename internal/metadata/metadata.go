// Package metadata loads the RPC vocabulary and error-code table from
// a YAML document, grounded on original_source/server.py's
// S7commServer.yaml_loader/get_machine_details/get_error_details
// (machine_detail.yml). Where the original hardcodes a literal error
// code per call site (e.g. "1.1.4" for error_executing_function_call),
// this generalizes it into a name -> code table with that literal
// preserved as the default fallback.
package metadata

import (
	"os"

	"gopkg.in/yaml.v2"

	"s7gateway/internal/faults"
)

// defaultErrorCode is the literal code original_source/server.py sends
// for every RPC-layer failure, used when a name has no table entry.
const defaultErrorCode = "1.1.4"

// FunctionSpec describes one call_functions/monitor_functions entry:
// its argument schema, by context, as the original's get_options
// exposes to callers.
type FunctionSpec struct {
	Kwargs map[string]ArgSpec `yaml:"kwargs"`
}

// ArgSpec lists the option values accepted for one keyword argument.
type ArgSpec struct {
	Options []string `yaml:"options"`
}

type document struct {
	CallFunctions    map[string]FunctionSpec `yaml:"call_functions"`
	MonitorFunctions map[string]FunctionSpec `yaml:"monitor_functions"`
	Errors           map[string]string       `yaml:"errors"`
}

// Metadata is the resolved RPC vocabulary and error-code table.
type Metadata struct {
	doc document
}

// Load reads and parses the YAML document at path.
func Load(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.Wrap(faults.InvalidDescriptor, "read metadata", err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, faults.Wrap(faults.InvalidDescriptor, "parse metadata", err)
	}
	return &Metadata{doc: doc}, nil
}

// IsCallFunction reports whether name is a registered call_functions
// entry — used by rpcserver to validate function_name before dispatch.
func (m *Metadata) IsCallFunction(name string) bool {
	_, ok := m.doc.CallFunctions[name]
	return ok
}

// IsMonitorFunction reports whether name is a registered
// monitor_functions entry — used by rpcserver to validate
// monitor_name before dispatch.
func (m *Metadata) IsMonitorFunction(name string) bool {
	_, ok := m.doc.MonitorFunctions[name]
	return ok
}

// CallFunctionOptions returns the accepted option values for one
// call_functions argument, mirroring get_options(..., "call_functions").
func (m *Metadata) CallFunctionOptions(functionName, arg string) []string {
	return optionsFor(m.doc.CallFunctions, functionName, arg)
}

// MonitorFunctionOptions returns the accepted option values for one
// monitor_functions argument.
func (m *Metadata) MonitorFunctionOptions(functionName, arg string) []string {
	return optionsFor(m.doc.MonitorFunctions, functionName, arg)
}

func optionsFor(table map[string]FunctionSpec, name, arg string) []string {
	spec, ok := table[name]
	if !ok {
		return nil
	}
	return spec.Kwargs[arg].Options
}

// ErrorCode resolves an error_name to its dotted major.minor.patch
// code, falling back to the table's default or the original's literal
// "1.1.4" when nothing matches.
func (m *Metadata) ErrorCode(errorName string) string {
	if code, ok := m.doc.Errors[errorName]; ok {
		return code
	}
	if code, ok := m.doc.Errors["default"]; ok {
		return code
	}
	return defaultErrorCode
}

// ErrorCodeFor resolves a faults.Kind to a dotted error code via its
// string form as the error_name, for callers that only have a
// structured fault and not an RPC-level error_name.
func (m *Metadata) ErrorCodeFor(kind faults.Kind) string {
	return m.ErrorCode(string(kind))
}
