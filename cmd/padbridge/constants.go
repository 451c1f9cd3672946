package main

// Stock settings for the config file and flags.
const (
	defaultTargetHz     = 1000.0
	defaultWindowSec    = 30.0
	defaultRingCapacity = 1 << 16
	defaultPublishHz    = 250.0

	defaultMaxPulseMS  = 5.0
	defaultAnalogDelta = 0.25
	defaultRatePercent = 10.0

	defaultHotasHz = 50.0
	defaultStaleMS = 500
)

// State websocket cadence.
const (
	wsStatsInterval   = 250 // ms between "stats" frames
	wsSamplesInterval = 100 // ms between "samples" frames
	wsSamplesMax      = 512 // newest samples per signal per frame
)

// Control socket limits.
const (
	ipcMaxLine = 64 * 1024
)
