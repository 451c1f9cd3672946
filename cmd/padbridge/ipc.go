package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"padbridge/internal/bridge"
	"padbridge/internal/filter"
	"padbridge/internal/mapping"
	"padbridge/internal/metrics"
	"padbridge/internal/pad"
	"padbridge/internal/ring"
)

// ============================================================================
// IPC Server - Unix Domain Socket Control Interface
// ============================================================================
// Every runtime-tunable parameter of the pipeline is reachable here, used by
// padctl and by scripts.
//
// Protocol: line-delimited JSON
//   - Client sends: {"type": "command_name", "data": {...}}
//   - Server responds: {"status": "ok", "data": ...} or
//     {"status": "error", "error": "msg"}
//
// Numeric parameters are clamped by the pipeline, never rejected. Unknown
// signal names, malformed payloads and failed profile loads are errors.
// ============================================================================

// IPCRequest is one command line.
type IPCRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the response sent back to IPC clients.
type IPCResponse struct {
	Status string          `json:"status"`          // "ok" or "error"
	Error  string          `json:"error,omitempty"` // error message if status == "error"
	Data   json.RawMessage `json:"data,omitempty"`
}

// Command payloads.
type (
	hzData struct {
		Hz float64 `json:"hz"`
	}
	windowData struct {
		Seconds float64 `json:"seconds"`
	}
	filterModeData struct {
		Signal     string  `json:"signal"`
		Kind       string  `json:"kind"`
		MaxPulseMS float64 `json:"max_pulse_ms,omitempty"`
		Delta      float64 `json:"delta,omitempty"`
	}
	// filterParamsData only changes the fields that are present.
	filterParamsData struct {
		MaxPulseMS  *float64 `json:"max_pulse_ms,omitempty"`
		Delta       *float64 `json:"delta,omitempty"`
		Strategy    *string  `json:"strategy,omitempty"`
		RatePercent *float64 `json:"rate_percent,omitempty"`
	}
	triggerDigitalData struct {
		Trigger string `json:"trigger"`
		Digital bool   `json:"digital"`
	}
	enableData struct {
		Enabled bool `json:"enabled"`
	}
	testPulseData struct {
		Target string `json:"target,omitempty"`
	}
	idData struct {
		ID string `json:"id"`
	}
	pathData struct {
		Path string `json:"path,omitempty"`
	}
	snapshotData struct {
		Signal   string `json:"signal"`
		View     string `json:"view,omitempty"`
		Baseline bool   `json:"baseline,omitempty"`
	}
	snapshotReply struct {
		Signal  string        `json:"signal"`
		View    bridge.View   `json:"view"`
		Window  float64       `json:"window_sec"`
		Samples []ring.Sample `json:"samples"`
	}
	filterModeReply struct {
		Signal string      `json:"signal"`
		Mode   filter.Mode `json:"mode"`
	}
)

// commandHandler executes control commands against the pipeline.
type commandHandler struct {
	bridge  *bridge.Bridge
	profile string // used when load/save_profile give no path
	metrics *metrics.Metrics
	logger  *slog.Logger
}

var knownCommands = map[string]bool{
	"set_target_hz": true, "set_publish_hz": true, "set_window": true,
	"set_filter_mode": true, "get_filter_mode": true, "set_filter_params": true,
	"set_trigger_digital": true, "enable_filter": true, "enable_output": true,
	"test_pulse": true, "clear": true,
	"add_mapping": true, "remove_mapping": true, "list_mappings": true,
	"load_profile": true, "save_profile": true,
	"get_status": true, "list_signals": true, "snapshot": true,
}

// handle parses and executes one request line.
func (h *commandHandler) handle(line []byte) IPCResponse {
	var req IPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return errorResponse(fmt.Errorf("parse command: %w", err))
	}

	label := req.Type
	if !knownCommands[label] {
		label = "unknown"
	}

	out, err := h.dispatch(req)
	h.metrics.ObserveCommand(label, err)
	if err != nil {
		h.logger.Debug("IPC command failed", "type", req.Type, "error", err)
		return errorResponse(err)
	}
	if out == nil {
		return IPCResponse{Status: "ok"}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return errorResponse(fmt.Errorf("encode reply: %w", err))
	}
	return IPCResponse{Status: "ok", Data: b}
}

func errorResponse(err error) IPCResponse {
	return IPCResponse{Status: "error", Error: err.Error()}
}

func (h *commandHandler) dispatch(req IPCRequest) (any, error) {
	b := h.bridge
	switch req.Type {
	case "set_target_hz":
		var d hzData
		if err := decodeData(req.Data, &d); err != nil {
			return nil, err
		}
		b.SetTargetHz(d.Hz)
		h.logger.Info("target rate changed", "target_hz", b.TargetHz())
		return nil, nil

	case "set_publish_hz":
		var d hzData
		if err := decodeData(req.Data, &d); err != nil {
			return nil, err
		}
		b.SetPublishHz(d.Hz)
		return nil, nil

	case "set_window":
		var d windowData
		if err := decodeData(req.Data, &d); err != nil {
			return nil, err
		}
		b.SetWindow(d.Seconds)
		return nil, nil

	case "set_filter_mode":
		var d filterModeData
		if err := decodeData(req.Data, &d); err != nil {
			return nil, err
		}
		m, err := ModeConfig{Kind: d.Kind, MaxPulseMS: d.MaxPulseMS, Delta: d.Delta}.toMode()
		if err != nil {
			return nil, err
		}
		if err := b.SetFilterMode(d.Signal, m); err != nil {
			return nil, err
		}
		h.logger.Info("filter mode changed", "signal", d.Signal, "mode", m.String())
		return nil, nil

	case "get_filter_mode":
		var d filterModeData
		if err := decodeData(req.Data, &d); err != nil {
			return nil, err
		}
		m, err := b.FilterMode(d.Signal)
		if err != nil {
			return nil, err
		}
		return filterModeReply{Signal: d.Signal, Mode: m}, nil

	case "set_filter_params":
		var d filterParamsData
		if err := decodeData(req.Data, &d); err != nil {
			return nil, err
		}
		p := b.FilterParams()
		if d.MaxPulseMS != nil {
			p.MaxPulse = msToDuration(*d.MaxPulseMS)
		}
		if d.Delta != nil {
			p.Delta = *d.Delta
		}
		if d.Strategy != nil {
			s, err := filter.ParseStrategy(*d.Strategy)
			if err != nil {
				return nil, err
			}
			p.Strategy = s
		}
		if d.RatePercent != nil {
			p.RatePercent = *d.RatePercent
		}
		b.SetFilterParams(p)
		return b.FilterParams(), nil

	case "set_trigger_digital":
		var d triggerDigitalData
		if err := decodeData(req.Data, &d); err != nil {
			return nil, err
		}
		sig, err := parseTrigger(d.Trigger)
		if err != nil {
			return nil, err
		}
		return nil, b.SetTriggerDigital(sig, d.Digital)

	case "enable_filter":
		var d enableData
		if err := decodeData(req.Data, &d); err != nil {
			return nil, err
		}
		b.EnableFilter(d.Enabled)
		return nil, nil

	case "enable_output":
		var d enableData
		if err := decodeData(req.Data, &d); err != nil {
			return nil, err
		}
		b.EnableOutput(d.Enabled)
		h.logger.Info("direct output toggled", "enabled", d.Enabled)
		return nil, nil

	case "test_pulse":
		var d testPulseData
		if err := decodeData(req.Data, &d); err != nil {
			return nil, err
		}
		return nil, b.TestPulse(d.Target)

	case "clear":
		b.Clear()
		return nil, nil

	case "add_mapping":
		var e mapping.Entry
		if len(req.Data) == 0 {
			return nil, errors.New("add_mapping requires data")
		}
		if err := json.Unmarshal(req.Data, &e); err != nil {
			return nil, fmt.Errorf("parse mapping: %w", err)
		}
		added, err := b.AddMapping(e)
		if err != nil {
			return nil, err
		}
		return added, nil

	case "remove_mapping":
		var d idData
		if err := decodeData(req.Data, &d); err != nil {
			return nil, err
		}
		return nil, b.RemoveMapping(d.ID)

	case "list_mappings":
		return mapping.Profile{Mappings: b.ListMappings()}, nil

	case "load_profile":
		var d pathData
		if err := decodeData(req.Data, &d); err != nil {
			return nil, err
		}
		return nil, b.LoadProfile(h.profilePath(d.Path))

	case "save_profile":
		var d pathData
		if err := decodeData(req.Data, &d); err != nil {
			return nil, err
		}
		return nil, b.SaveProfile(h.profilePath(d.Path))

	case "get_status":
		return b.Status(), nil

	case "list_signals":
		return b.Signals(), nil

	case "snapshot":
		var d snapshotData
		if err := decodeData(req.Data, &d); err != nil {
			return nil, err
		}
		sig, err := pad.ParseSignal(d.Signal)
		if err != nil {
			return nil, err
		}
		view, err := bridge.ParseView(d.View)
		if err != nil {
			return nil, err
		}
		return snapshotReply{
			Signal:  sig.String(),
			View:    view,
			Window:  b.Window(),
			Samples: b.Snapshot(view, sig, d.Baseline),
		}, nil
	}
	return nil, fmt.Errorf("unknown command type: %q", req.Type)
}

func (h *commandHandler) profilePath(p string) string {
	if p == "" {
		p = h.profile
	}
	return ExpandPath(p)
}

// decodeData strictly decodes an optional payload. An absent payload leaves
// v at its zero value.
func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("parse data: %w", err)
	}
	return nil
}

func parseTrigger(name string) (pad.Signal, error) {
	switch strings.ToLower(name) {
	case "left", "lt":
		return pad.LeftTrigger, nil
	case "right", "rt":
		return pad.RightTrigger, nil
	}
	return pad.ParseSignal(name)
}

// runIPCServer serves the control socket until ctx is canceled.
func runIPCServer(ctx context.Context, socketPath string, h *commandHandler, logger *slog.Logger) error {
	// Remove a stale socket left by a previous run.
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0660); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Closing the listener unblocks Accept.
	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}
			logger.Error("IPC accept error", "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		go handleIPCConnection(conn, h, logger)
	}
}

// handleIPCConnection answers every line of one connection in order.
func handleIPCConnection(conn net.Conn, h *commandHandler, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), ipcMaxLine)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		logger.Debug("IPC received", "line", string(line))

		if err := encoder.Encode(h.handle(line)); err != nil {
			logger.Error("IPC failed to send response", "error", err)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("IPC read error", "error", err)
	}

	logger.Debug("IPC connection closed")
}
