package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"padbridge/internal/bridge"
	"padbridge/internal/compose"
	"padbridge/internal/evdev"
	"padbridge/internal/gpio"
	"padbridge/internal/hotas"
	"padbridge/internal/pad"
	"padbridge/internal/poller"
	"padbridge/internal/remote"
	"padbridge/internal/telemetry"
	"padbridge/internal/uinput"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("padbridge v%s\n", version)
	fmt.Println("Gamepad and HOTAS signal conditioning bridge")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  padbridge [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Polls a physical gamepad at a fixed rate, removes ghost presses and")
	fmt.Println("  analog spikes, and re-emits the cleaned state on a virtual gamepad.")
	fmt.Println("  Named inputs from HOTAS devices and GPIO switches can be remapped onto")
	fmt.Println("  gamepad controls, keys and mouse buttons through a mapping profile.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML config file; flags override its values")
	fmt.Println()
	fmt.Println("  -input-source string")
	fmt.Println("        Input source: evdev|none (default \"evdev\")")
	fmt.Println()
	fmt.Println("  -input-device string")
	fmt.Println("        evdev device path (default: first joystick in /dev/input/by-id)")
	fmt.Println()
	fmt.Println("  -target-hz float")
	fmt.Printf("        Input polling rate in Hz (default %.0f)\n", defaultTargetHz)
	fmt.Println()
	fmt.Println("  -window-sec float")
	fmt.Printf("        Rolling sample window in seconds (default %.0f)\n", defaultWindowSec)
	fmt.Println()
	fmt.Println("  -filter")
	fmt.Println("        Enable the input filters (default true)")
	fmt.Println()
	fmt.Println("  -max-pulse-ms float")
	fmt.Printf("        Digital gate: shortest accepted press in ms (default %.0f)\n", defaultMaxPulseMS)
	fmt.Println()
	fmt.Println("  -analog-delta float")
	fmt.Printf("        Analog spike threshold per cycle (default %.2f)\n", defaultAnalogDelta)
	fmt.Println()
	fmt.Println("  -output-sink string")
	fmt.Println("        Output sink: uinput|remote|none (default \"uinput\")")
	fmt.Println()
	fmt.Println("  -forward")
	fmt.Println("        Forward the filtered gamepad state to the sink (default true)")
	fmt.Println()
	fmt.Println("  -publish-hz float")
	fmt.Printf("        Mapped output rate in Hz (default %.0f)\n", defaultPublishHz)
	fmt.Println()
	fmt.Println("  -remote-url string")
	fmt.Println("        WebSocket URL of a remote sink (e.g. \"ws://gamehost:3030/pad\")")
	fmt.Println()
	fmt.Println("  -mapping-profile string")
	fmt.Println("        Mapping profile to load at startup")
	fmt.Println()
	fmt.Println("  -hotas")
	fmt.Println("        Enable the HOTAS reader (default false)")
	fmt.Println()
	fmt.Println("  -hotas-device string")
	fmt.Println("        hidraw device path for the HOTAS (implies -hotas)")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Println("        Unix domain socket path for IPC (default \"/tmp/padbridge.sock\")")
	fmt.Println()
	fmt.Println("  -http-port int")
	fmt.Println("        HTTP port for /metrics, /status and /ws/state; 0 disables (default 3020)")
	fmt.Println()
	fmt.Println("  -mqtt-broker string")
	fmt.Println("        MQTT broker URL (e.g. \"tcp://broker:1883\"); enables telemetry")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Filter a pad at 1 kHz onto a local virtual pad")
	fmt.Println("  padbridge")
	fmt.Println()
	fmt.Println("  # Remap an X56 stick with a saved profile")
	fmt.Println("  padbridge -hotas -mapping-profile ~/.config/padbridge/x56.yaml")
	fmt.Println()
	fmt.Println("  # Send to another machine instead of uinput")
	fmt.Println("  padbridge -output-sink remote -remote-url ws://gamehost:3030/pad")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires read access to /dev/input and /dev/hidraw (input group)")
	fmt.Println("  - uinput output requires write access to /dev/uinput")
	fmt.Println("  - Control the running daemon with padctl; watch it with padview")
	fmt.Println()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath     = flag.String("config", "", "YAML config file")
		inputSource    = flag.String("input-source", "evdev", "Input source: evdev|none")
		inputDevice    = flag.String("input-device", "", "evdev device path")
		targetHz       = flag.Float64("target-hz", defaultTargetHz, "Input polling rate in Hz")
		windowSec      = flag.Float64("window-sec", defaultWindowSec, "Rolling sample window in seconds")
		filterEnabled  = flag.Bool("filter", true, "Enable the input filters")
		maxPulseMS     = flag.Float64("max-pulse-ms", defaultMaxPulseMS, "Digital gate: shortest accepted press in ms")
		analogDelta    = flag.Float64("analog-delta", defaultAnalogDelta, "Analog spike threshold per cycle")
		outputSink     = flag.String("output-sink", "uinput", "Output sink: uinput|remote|none")
		forward        = flag.Bool("forward", true, "Forward the filtered gamepad state")
		publishHz      = flag.Float64("publish-hz", defaultPublishHz, "Mapped output rate in Hz")
		remoteURL      = flag.String("remote-url", "", "WebSocket URL of a remote sink")
		mappingProfile = flag.String("mapping-profile", "", "Mapping profile to load at startup")
		hotasEnabled   = flag.Bool("hotas", false, "Enable the HOTAS reader")
		hotasDevice    = flag.String("hotas-device", "", "hidraw device path for the HOTAS")
		ipcSocketPath  = flag.String("ipc-socket", "/tmp/padbridge.sock", "Unix domain socket path for IPC")
		httpPort       = flag.Int("http-port", 3020, "HTTP port; 0 disables")
		mqttBroker     = flag.String("mqtt-broker", "", "MQTT broker URL")
		logLevelStr    = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		showVersion    = flag.Bool("version", false, "Print version and exit")
		showHelp       = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Only flags given on the command line override the file.
	var ov FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input-source":
			ov.InputSource = inputSource
		case "input-device":
			ov.InputDevice = inputDevice
		case "target-hz":
			ov.TargetHz = targetHz
		case "window-sec":
			ov.WindowSec = windowSec
		case "filter":
			ov.FilterEnabled = filterEnabled
		case "max-pulse-ms":
			ov.MaxPulseMS = maxPulseMS
		case "analog-delta":
			ov.AnalogDelta = analogDelta
		case "output-sink":
			ov.OutputSink = outputSink
		case "forward":
			ov.Forward = forward
		case "publish-hz":
			ov.PublishHz = publishHz
		case "remote-url":
			ov.RemoteURL = remoteURL
		case "mapping-profile":
			ov.MappingProfile = mappingProfile
		case "hotas":
			ov.HotasEnabled = hotasEnabled
		case "hotas-device":
			ov.HotasDevice = hotasDevice
		case "ipc-socket":
			ov.IPCSocketPath = ipcSocketPath
		case "http-port":
			ov.HTTPPort = httpPort
		case "mqtt-broker":
			ov.MQTTBroker = mqttBroker
		case "log-level":
			ov.LogLevel = logLevelStr
		}
	})
	ov.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(logLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("padbridge failed", "error", err)
		os.Exit(1)
	}
}

// run builds the pipeline from cfg and blocks until SIGINT or SIGTERM.
func run(cfg Config, logger *slog.Logger) error {
	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	// Input
	var (
		source poller.Source
		device *evdev.Device
	)
	switch cfg.Input.Source {
	case "evdev":
		device = evdev.NewDevice(cfg.Input.Device, logger)
		source = device
	default:
		source = poller.SourceFunc(func() (pad.State, bool) { return pad.State{}, false })
	}

	// Output
	sink, emitter, err := openOutputs(cfg, logger)
	if err != nil {
		return err
	}
	if c, ok := sink.(io.Closer); ok {
		closers = append(closers, c)
	}
	if c, ok := emitter.(io.Closer); ok && any(emitter) != any(sink) {
		closers = append(closers, c)
	}

	modes, keyed := cfg.FilterModes()
	b, err := bridge.New(bridge.Config{
		Source:         source,
		Sink:           sink,
		Emitter:        emitter,
		TargetHz:       cfg.Input.TargetHz,
		Window:         cfg.Input.WindowSec,
		Capacity:       cfg.Input.RingCapacity,
		PublishHz:      cfg.Output.PublishHz,
		MonitorMapped:  cfg.Output.MonitorMapped,
		Filter:         cfg.FilterParams(),
		FilterEnabled:  cfg.Filter.Enabled,
		OutputEnabled:  cfg.Output.Forward,
		Modes:          modes,
		KeyedModes:     keyed,
		TriggerDigital: cfg.TriggerDigital(),
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	if device != nil {
		b.AddRunner("evdev", device)
	}

	if cfg.Mapping.Autoload {
		if err := b.LoadProfile(ExpandPath(cfg.Mapping.Profile)); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load mapping profile: %w", err)
			}
			logger.Warn("mapping profile not found, starting empty", "path", cfg.Mapping.Profile)
		}
	}

	if cfg.Hotas.Enabled {
		if err := attachHotas(b, cfg.Hotas, logger); err != nil {
			return err
		}
	}

	if cfg.GPIO.Enabled {
		r, err := gpio.NewRealReader(cfg.GPIO.Chip, cfg.GPIO.Lines)
		if err != nil {
			return fmt.Errorf("open gpio: %w", err)
		}
		closers = append(closers, r)
		s := gpio.NewSampler(r, cfg.GPIO.Lines, b.Publisher(), b.Epoch(), cfg.GPIO.PollHz, logger)
		b.AttachGPIO(s, cfg.GPIO.Lines)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		wg           sync.WaitGroup
		reasonMu     sync.Mutex
		shutdownWhy  = "shutdown"
		setReason    = func(r string) { reasonMu.Lock(); shutdownWhy = r; reasonMu.Unlock() }
		readReason   = func() string { reasonMu.Lock(); defer reasonMu.Unlock(); return shutdownWhy }
		goBackground = func(name string, fn func(context.Context) error) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := fn(ctx); err != nil {
					logger.Error(name+" stopped", "error", err)
				}
			}()
		}
	)

	b.Start(ctx)

	handler := &commandHandler{
		bridge:  b,
		profile: cfg.Mapping.Profile,
		metrics: b.Metrics(),
		logger:  logger,
	}
	goBackground("IPC server", func(ctx context.Context) error {
		return runIPCServer(ctx, cfg.IPC.SocketPath, handler, logger)
	})

	if cfg.HTTP.Port > 0 {
		state := NewStateServer(logger, b, HubConfig{})
		goBackground("ws hub", func(ctx context.Context) error {
			state.Hub().Run(ctx)
			return nil
		})
		goBackground("ws broadcaster", func(ctx context.Context) error {
			RunBroadcaster(ctx, state.Hub(), b, logger)
			return nil
		})
		mux := newHTTPMux(b, state, logger)
		goBackground("HTTP server", func(ctx context.Context) error {
			return runHTTPServer(ctx, cfg.HTTP.Port, mux, logger)
		})
	}

	if cfg.MQTT.Enabled {
		pub, err := telemetry.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.TopicPrefix)
		if err != nil {
			// Telemetry is optional; the bridge keeps running without it.
			logger.Warn("mqtt unavailable", "broker", cfg.MQTT.Broker, "error", err)
		} else {
			closers = append(closers, pub)
			hb := &telemetry.Heartbeat{
				Publisher: pub,
				Interval:  time.Duration(cfg.MQTT.HeartbeatSec) * time.Second,
				Snapshot:  b.Telemetry,
				Logger:    logger,
				Reason:    readReason,
			}
			goBackground("mqtt heartbeat", func(ctx context.Context) error {
				hb.Run(ctx)
				return nil
			})
		}
	}

	logger.Info("listening",
		"input", cfg.Input.Source,
		"target_hz", cfg.Input.TargetHz,
		"output", cfg.Output.Sink,
		"publish_hz", cfg.Output.PublishHz,
		"ipc", cfg.IPC.SocketPath,
		"http_port", cfg.HTTP.Port,
		"hotas", cfg.Hotas.Enabled,
		"gpio", cfg.GPIO.Enabled,
		"mqtt", cfg.MQTT.Enabled)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	logger.Info("shutting down", "signal", sig.String())
	setReason(sig.String())

	cancel()
	b.Stop()
	wg.Wait()
	return nil
}

// openOutputs creates the report sink and the key/mouse emitter. A nil
// sink discards reports; a nil emitter drops key and mouse actions.
func openOutputs(cfg Config, logger *slog.Logger) (compose.ReportSink, compose.Emitter, error) {
	switch cfg.Output.Sink {
	case "uinput":
		gp, err := uinput.NewGamepad(cfg.Output.DeviceName)
		if err != nil {
			return nil, nil, fmt.Errorf("create virtual gamepad: %w", err)
		}
		if !cfg.Output.Keyboard {
			return gp, nil, nil
		}
		kb, err := uinput.NewKeyboard(cfg.Output.DeviceName + " keys")
		if err != nil {
			_ = gp.Close()
			return nil, nil, fmt.Errorf("create virtual keyboard: %w", err)
		}
		return gp, kb, nil

	case "remote":
		c, err := remote.NewClient(remote.Config{
			URL:          cfg.Output.RemoteURL,
			Device:       cfg.Output.DeviceName,
			WriteTimeout: time.Duration(cfg.Output.RemoteWriteTimeoutMS) * time.Millisecond,
			Logger:       logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("remote sink: %w", err)
		}
		if err := c.Connect(); err != nil {
			// Sends fail fast and redial in the background until it is up.
			logger.Warn("remote sink not reachable yet", "url", cfg.Output.RemoteURL, "error", err)
		}
		return c, c, nil
	}
	return nil, nil, nil
}

// attachHotas opens the configured HOTAS device and feeds its named values
// into the mapped path.
func attachHotas(b *bridge.Bridge, hc HotasConfig, logger *slog.Logger) error {
	layout := hotas.X56Stick()
	if hc.Layout != "" {
		l, err := hotas.LoadLayout(ExpandPath(hc.Layout))
		if err != nil {
			return fmt.Errorf("load hotas layout: %w", err)
		}
		layout = l
	}

	path := hc.Device
	if path == "" {
		devs, err := hotas.ListHidraw()
		if err != nil {
			return fmt.Errorf("list hidraw devices: %w", err)
		}
		for _, d := range devs {
			if d.VendorID == layout.VendorID && d.ProductID == layout.ProductID {
				path = d.Path
				break
			}
		}
		if path == "" {
			return fmt.Errorf("no hidraw device matches %04x:%04x", layout.VendorID, layout.ProductID)
		}
	}
	logger.Info("hotas device", "path", path, "layout", layout.Device)

	p, err := hotas.NewPump(hotas.PumpConfig{
		Layout: layout,
		Open:   hotas.OpenHidraw(layout, path),
		Sink:   b.Publisher(),
		Epoch:  b.Epoch(),
		Hz:     hc.PollHz,
		Stale:  time.Duration(hc.StaleMS) * time.Millisecond,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("hotas: %w", err)
	}
	b.AttachHotas(p)
	return nil
}
