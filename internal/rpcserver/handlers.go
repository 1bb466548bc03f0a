package rpcserver

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"s7gateway/internal/eventbus"
	"s7gateway/internal/faults"
	"s7gateway/internal/machine"
	"s7gateway/internal/monitor"
)

// executeRequest is the execute RPC body: function_name selects one of
// send_signal/read_signal/send_multiple_signals/read_multiple_signals,
// kargs carries that function's keyword arguments.
type executeRequest struct {
	FunctionName string          `json:"function_name"`
	UID          string          `json:"uid"`
	Kargs        json.RawMessage `json:"kargs"`
}

type signalArgs struct {
	SignalName string      `json:"signal"`
	Value      interface{} `json:"value"`
}

type multiSignalArgs struct {
	Signals []string      `json:"signals"`
	Values  []interface{} `json:"values"`
}

// handleExecute dispatches function_name to the matching signalops
// call, mirroring original_source/server.py's execute() — including
// its swallow-and-report-error-then-respond-false behavior.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if s.meta != nil && !s.meta.IsCallFunction(req.FunctionName) {
		s.reportFailure(req.UID, req.FunctionName, faults.New(faults.OperationFailed, req.FunctionName))
		respondJSON(w, http.StatusOK, map[string]interface{}{"success": false, "error": "unknown function"})
		return
	}

	switch req.FunctionName {
	case "send_signal":
		var args signalArgs
		if err := json.Unmarshal(req.Kargs, &args); err != nil {
			respondError(w, http.StatusBadRequest, "invalid kargs")
			return
		}
		res := s.ops.WriteSignal(req.UID, args.SignalName, args.Value)
		if res.Err != nil {
			s.reportFailure(req.UID, req.FunctionName, res.Err)
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"signal": res.Signal, "success": res.Success})

	case "read_signal":
		var args signalArgs
		if err := json.Unmarshal(req.Kargs, &args); err != nil {
			respondError(w, http.StatusBadRequest, "invalid kargs")
			return
		}
		res := s.ops.ReadSignal(req.UID, args.SignalName)
		if res.Err != nil {
			s.reportFailure(req.UID, req.FunctionName, res.Err)
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"signal": res.Signal, "value": res.Value})

	case "send_multiple_signals":
		var args multiSignalArgs
		if err := json.Unmarshal(req.Kargs, &args); err != nil {
			respondError(w, http.StatusBadRequest, "invalid kargs")
			return
		}
		res := s.ops.WriteMany(req.UID, args.Signals, args.Values)
		if res.Err != nil {
			s.reportFailure(req.UID, req.FunctionName, res.Err)
			respondJSON(w, http.StatusOK, map[string]interface{}{"success": false, "error": res.Err.Error()})
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"success": res.Success, "results": res.Results})

	case "read_multiple_signals":
		var args struct {
			Signals []string `json:"signals"`
		}
		if err := json.Unmarshal(req.Kargs, &args); err != nil {
			respondError(w, http.StatusBadRequest, "invalid kargs")
			return
		}
		respondJSON(w, http.StatusOK, s.ops.ReadMany(req.UID, args.Signals))

	default:
		s.reportFailure(req.UID, req.FunctionName, faults.New(faults.OperationFailed, req.FunctionName))
		respondJSON(w, http.StatusOK, map[string]interface{}{"success": false, "error": "unknown function"})
	}
}

type executeMonitorRequest struct {
	MonitorName string `json:"monitor_name"`
	UID         string `json:"uid"`
}

func modeForMonitorName(name string) (monitor.Mode, bool) {
	switch name {
	case "monitor_on_change":
		return monitor.OnChange, true
	case "monitor_continuously":
		return monitor.Continuous, true
	default:
		return "", false
	}
}

// handleExecuteMonitor starts a monitor worker, mirroring
// original_source/server.py's execute_monitor() dispatching onto
// MONITOR_FUNCTIONS_MAP.
func (s *Server) handleExecuteMonitor(w http.ResponseWriter, r *http.Request) {
	var req executeMonitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.meta != nil && !s.meta.IsMonitorFunction(req.MonitorName) {
		respondError(w, http.StatusBadRequest, "unknown monitor function")
		return
	}
	mode, ok := modeForMonitorName(req.MonitorName)
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown monitor function")
		return
	}
	if _, err := s.store.Get(req.UID); err != nil {
		respondError(w, http.StatusNotFound, "machine not found")
		return
	}
	result := s.mon.Start(req.UID, mode)
	respondJSON(w, http.StatusOK, map[string]interface{}{"already_running": result.AlreadyRunning})
}

// handleDisableMonitor stops a monitor worker, mirroring
// original_source/server.py's disable_monitor()/stop_thread().
func (s *Server) handleDisableMonitor(w http.ResponseWriter, r *http.Request) {
	var req executeMonitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode, ok := modeForMonitorName(req.MonitorName)
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown monitor function")
		return
	}
	stopped := s.mon.Stop(req.UID, mode)
	respondJSON(w, http.StatusOK, map[string]interface{}{"stopped": stopped})
}

// handleAddMachine adds/replaces a machine descriptor then triggers a
// reconnect broadcast, mirroring original_source/server.py's
// add_machine() -> StoppableThread.reconnect(uid). The request body is
// a machine record (decoded by machine.Machine's own UnmarshalJSON)
// plus a top-level "uid" field read separately, since Machine's custom
// UnmarshalJSON would otherwise be promoted over an embedding struct
// and silently swallow the uid field.
func (s *Server) handleAddMachine(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var uidHolder struct {
		UID string `json:"uid"`
	}
	if err := json.Unmarshal(body, &uidHolder); err != nil || uidHolder.UID == "" {
		respondError(w, http.StatusBadRequest, "uid is required")
		return
	}

	var m machine.Machine
	if err := json.Unmarshal(body, &m); err != nil {
		respondError(w, http.StatusBadRequest, "invalid machine descriptor")
		return
	}

	if err := s.store.Add(uidHolder.UID, m); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to store machine")
		return
	}
	s.mon.Reconnect(uidHolder.UID)
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "machine added successfully"})
}

// handleGetMachine returns a machine descriptor, mirroring
// original_source/server.py's get_machine().
func (s *Server) handleGetMachine(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]
	m, err := s.store.Get(uid)
	if err != nil {
		respondError(w, http.StatusNotFound, "machine not found")
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// handleDeleteMachine removes a machine descriptor and stops any
// monitor workers for it, mirroring
// original_source/server.py's delete_machine().
func (s *Server) handleDeleteMachine(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]
	_, existed, err := s.store.Delete(uid)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete machine")
		return
	}
	s.mon.StopAll(uid)
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "existed": existed})
}

// handlePing reports whether uid resolves to a known machine,
// mirroring original_source/server.py's ping().
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]
	_, err := s.store.Get(uid)
	respondJSON(w, http.StatusOK, map[string]interface{}{"ok": uid != "" && err == nil})
}

func (s *Server) reportFailure(uid, op string, err error) {
	if s.bus == nil {
		return
	}
	kind, _ := faults.KindOf(err)
	code := ""
	if s.meta != nil {
		code = s.meta.ErrorCodeFor(kind)
	}
	s.bus.PublishError(uid, eventbus.ErrorRecord{
		ErrorName:    "error_executing_function_call",
		ErrorCode:    code,
		ErrorMessage: err.Error(),
	})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
