package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/afroash/airmon/internal/config"
	"github.com/afroash/airmon/internal/device"
	"github.com/afroash/airmon/internal/sensor"
)

const version = "v1.0.0"

func main() {
	configPath := flag.String("config", "configs/device.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadDeviceConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Each boot gets a session id so log lines from different runs of the
	// same device can be told apart.
	logger := newLogger(cfg.Logging).With().Str("session_id", uuid.NewString()).Logger()

	logger.Info().
		Str("version", version).
		Str("device_id", cfg.Device.ID).
		Str("location", cfg.Device.Location).
		Bool("mock", cfg.Sensors.Mock).
		Msg("Starting airmon device agent")

	dht, gas, err := buildSensors(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize sensors")
	}

	sampler := sensor.NewSampler(dht, gas, cfg.Device.ID, logger)
	defer sampler.Close()

	state := device.NewConnectivityState()

	var wifi device.WifiStatus = &device.ProcNetWireless{Interface: cfg.Uplink.WifiInterface}
	if cfg.Sensors.Mock {
		wifi = alwaysConnected{}
	}

	uplink := device.NewUplink(device.UplinkConfig{
		URL:         cfg.Uplink.URL,
		Timeout:     cfg.Uplink.Timeout,
		MaxAttempts: cfg.Uplink.MaxAttempts,
	}, wifi, state, sampler, logger)

	display := device.NewDisplay(os.Stdout, sampler, state)

	loop := device.NewLoop(
		sampler,
		uplink,
		display,
		cfg.Sensors.SampleInterval,
		cfg.Uplink.UploadInterval,
		cfg.Display.Interval,
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := loop.Run(ctx); err != nil && err != context.Canceled {
		logger.Error().Err(err).Msg("Device loop exited")
	}

	logger.Info().Msg("Device agent stopped")
}

// buildSensors constructs hardware drivers, or simulated ones when running
// off-device.
func buildSensors(cfg *config.DeviceConfig) (sensor.DHTSensor, sensor.GasSensor, error) {
	if cfg.Sensors.Mock {
		return &sensor.SimulatedDHT{FailureRate: 0.05}, &sensor.SimulatedGas{}, nil
	}

	dht, err := sensor.NewDHT11Reader(cfg.Sensors.DHTPin)
	if err != nil {
		return nil, nil, err
	}

	gas, err := sensor.NewMQ2Sensor(cfg.Sensors.GPIOChip, cfg.Sensors.GasAlarmPin, &sensor.IIOADC{Path: cfg.Sensors.GasADCPath})
	if err != nil {
		dht.Close()
		return nil, nil, err
	}

	return dht, gas, nil
}

// alwaysConnected stands in for the WiFi probe in mock mode.
type alwaysConnected struct{}

func (alwaysConnected) Status() (bool, int, error) { return true, -40, nil }

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	if cfg.Format == "console" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger
}
