package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// ============================================================================
// padctl - Command-line IPC Client
// ============================================================================
// Sends one control command to a running padbridge daemon and prints the
// reply.
//
// Usage:
//   padctl status
//   padctl hz 500
//   padctl filter-mode button_b digital 8
//   padctl map-add stick:trigger x360:button_a
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/padbridge.sock)
// ============================================================================

// Request is one line sent to the daemon.
type Request struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

var errUsage = errors.New("usage")

func main() {
	socketPath := "/tmp/padbridge.sock"

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	switch args[0] {
	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)
	}

	req, err := buildRequest(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errUsage) {
			printUsage()
		}
		os.Exit(1)
	}

	data, err := send(socketPath, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if len(data) == 0 {
		fmt.Println("ok")
		return
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(out.String())
}

// buildRequest turns command-line arguments into a daemon request.
func buildRequest(args []string) (Request, error) {
	cmd, rest := args[0], args[1:]

	need := func(n int, what string) error {
		if len(rest) < n {
			return fmt.Errorf("%w: %s requires %s", errUsage, cmd, what)
		}
		return nil
	}
	num := func(s string) (float64, error) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", s)
		}
		return v, nil
	}
	onOff := func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "on", "true", "1", "enable":
			return true, nil
		case "off", "false", "0", "disable":
			return false, nil
		}
		return false, fmt.Errorf("expected on or off, got %q", s)
	}

	switch cmd {
	case "status":
		return Request{Type: "get_status"}, nil

	case "signals":
		return Request{Type: "list_signals"}, nil

	case "hz", "publish-hz":
		if err := need(1, "a rate in Hz"); err != nil {
			return Request{}, err
		}
		hz, err := num(rest[0])
		if err != nil {
			return Request{}, err
		}
		typ := "set_target_hz"
		if cmd == "publish-hz" {
			typ = "set_publish_hz"
		}
		return Request{Type: typ, Data: map[string]float64{"hz": hz}}, nil

	case "window":
		if err := need(1, "seconds"); err != nil {
			return Request{}, err
		}
		sec, err := num(rest[0])
		if err != nil {
			return Request{}, err
		}
		return Request{Type: "set_window", Data: map[string]float64{"seconds": sec}}, nil

	case "filter-mode":
		if err := need(1, "a signal"); err != nil {
			return Request{}, err
		}
		if len(rest) == 1 {
			return Request{Type: "get_filter_mode", Data: map[string]string{"signal": rest[0]}}, nil
		}
		data := map[string]any{"signal": rest[0], "kind": rest[1]}
		if len(rest) > 2 {
			v, err := num(rest[2])
			if err != nil {
				return Request{}, err
			}
			// The optional parameter is the pulse length for digital and
			// the threshold for analog.
			if strings.EqualFold(rest[1], "analog") {
				data["delta"] = v
			} else {
				data["max_pulse_ms"] = v
			}
		}
		return Request{Type: "set_filter_mode", Data: data}, nil

	case "filter-params":
		if err := need(1, "key=value pairs"); err != nil {
			return Request{}, err
		}
		data := map[string]any{}
		for _, kv := range rest {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return Request{}, fmt.Errorf("%w: expected key=value, got %q", errUsage, kv)
			}
			switch k {
			case "max_pulse_ms", "delta", "rate_percent":
				f, err := num(v)
				if err != nil {
					return Request{}, err
				}
				data[k] = f
			case "strategy":
				data[k] = v
			default:
				return Request{}, fmt.Errorf("unknown filter parameter %q", k)
			}
		}
		return Request{Type: "set_filter_params", Data: data}, nil

	case "trigger-digital":
		if err := need(2, "a trigger and on|off"); err != nil {
			return Request{}, err
		}
		on, err := onOff(rest[1])
		if err != nil {
			return Request{}, err
		}
		return Request{Type: "set_trigger_digital", Data: map[string]any{"trigger": rest[0], "digital": on}}, nil

	case "filter", "output":
		if err := need(1, "on|off"); err != nil {
			return Request{}, err
		}
		on, err := onOff(rest[0])
		if err != nil {
			return Request{}, err
		}
		return Request{Type: "enable_" + cmd, Data: map[string]bool{"enabled": on}}, nil

	case "pulse":
		target := "both"
		if len(rest) > 0 {
			target = rest[0]
		}
		return Request{Type: "test_pulse", Data: map[string]string{"target": target}}, nil

	case "clear":
		return Request{Type: "clear"}, nil

	case "map-add":
		if err := need(2, "a signal id and an action"); err != nil {
			return Request{}, err
		}
		entry := map[string]any{"signal_id": rest[0], "action": rest[1]}
		for _, kv := range rest[2:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return Request{}, fmt.Errorf("%w: expected key=value, got %q", errUsage, kv)
			}
			switch k {
			case "id":
				entry[k] = v
			case "priority":
				p, err := strconv.Atoi(v)
				if err != nil {
					return Request{}, fmt.Errorf("invalid priority %q", v)
				}
				entry[k] = p
			case "deadband":
				f, err := num(v)
				if err != nil {
					return Request{}, err
				}
				entry[k] = f
			case "invert":
				on, err := onOff(v)
				if err != nil {
					return Request{}, err
				}
				entry[k] = on
			default:
				return Request{}, fmt.Errorf("unknown mapping field %q", k)
			}
		}
		return Request{Type: "add_mapping", Data: entry}, nil

	case "map-rm":
		if err := need(1, "a mapping id"); err != nil {
			return Request{}, err
		}
		return Request{Type: "remove_mapping", Data: map[string]string{"id": rest[0]}}, nil

	case "map-list":
		return Request{Type: "list_mappings"}, nil

	case "load", "save":
		req := Request{Type: cmd + "_profile"}
		if len(rest) > 0 {
			req.Data = map[string]string{"path": rest[0]}
		}
		return req, nil

	case "snapshot":
		if err := need(1, "a signal"); err != nil {
			return Request{}, err
		}
		data := map[string]any{"signal": rest[0]}
		if len(rest) > 1 {
			data["view"] = rest[1]
		}
		if len(rest) > 2 && rest[2] == "baseline" {
			data["baseline"] = true
		}
		return Request{Type: "snapshot", Data: data}, nil
	}

	return Request{}, fmt.Errorf("%w: unknown command: %s", errUsage, cmd)
}

// send writes req and returns the reply payload.
func send(socketPath string, req Request) (json.RawMessage, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var resp IPCResponse
	if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status == "error" {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return resp.Data, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `padctl - Control the padbridge daemon via IPC

Usage:
  padctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/padbridge.sock)

Commands:
  status                               Show pipeline status
  signals                              List signal ids accepted by filter-mode
  hz <hz>                              Set the input polling rate
  publish-hz <hz>                      Set the mapped output rate
  window <sec>                         Set the rolling sample window
  filter-mode <signal> [kind [param]]  Show or set a signal's filter
                                       (kind: none|digital|analog; param is
                                       max pulse ms or analog delta)
  filter-params key=value...           Set global filter parameters
                                       (max_pulse_ms, delta, strategy, rate_percent)
  trigger-digital <left|right> <on|off>
  filter <on|off>                      Enable or disable the input filters
  output <on|off>                      Enable or disable direct forwarding
  pulse [forward|mapped|both]          Send one diagnostic report
  clear                                Empty all sample buffers
  map-add <signal> <action> [id=.. priority=.. deadband=.. invert=on]
  map-rm <id>                          Remove a mapping
  map-list                             List mappings
  load [path]                          Load a mapping profile
  save [path]                          Save the mapping profile
  snapshot <signal> [raw|filtered|mapped] [baseline]
  help, -h, --help                     Show this help message

Examples:
  padctl hz 2000
  padctl filter-mode button_a digital 10
  padctl map-add stick:trigger x360:right_trigger priority=5
  padctl -socket /run/padbridge.sock status
`)
}
