package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ericogr/ina219-exporter/pkg/config"
	"github.com/ericogr/ina219-exporter/pkg/errors"
	"github.com/ericogr/ina219-exporter/pkg/exposition"
	"github.com/ericogr/ina219-exporter/pkg/logger"
	"github.com/ericogr/ina219-exporter/pkg/output"
	"github.com/ericogr/ina219-exporter/pkg/output/console"
	"github.com/ericogr/ina219-exporter/pkg/output/mqtt"
	"github.com/ericogr/ina219-exporter/pkg/sampler"
	"github.com/ericogr/ina219-exporter/pkg/sensor"
	"github.com/ericogr/ina219-exporter/pkg/server"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if cfg.PrintConfig {
		b, err := cfg.YAML()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		_, _ = os.Stdout.Write(b)
		return 0
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	logger.Info().Str("version", config.Version).Str("sensor_type", cfg.SensorType).Msg("Starting INA219 exporter")

	// Hardware init is the one fatal error: never serve from a chip that
	// did not come up.
	s, err := newSensor(cfg)
	if err != nil {
		logger.FatalWithCode(err).Msg("Failed to initialize sensor")
	}
	defer s.Close()
	logger.Debug().Int("read_try_count", cfg.ReadTryCount).Msg("Sensor initialized")

	var metrics *server.Metrics
	opts := []sampler.Option{sampler.WithLogger(logger.With("sampler"))}
	if cfg.TelemetryPath != "" {
		metrics = server.NewMetrics(cfg.Namespace)
		opts = append(opts, sampler.WithObserver(metrics))
	}
	smp, err := sampler.New(sampler.PowerChannels(s), cfg.ReadTryCount, opts...)
	if err != nil {
		logger.ErrorWithCode(err).Msg("Failed to create sampler")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Probe {
		return probe(ctx, smp)
	}
	bootRead(ctx, smp)

	id := identity(cfg)
	srv := server.New(smp, exposition.NewFormatter(cfg.MaxBodyBytes), metrics, server.Options{
		MetricsPath:   cfg.MetricsPath,
		TelemetryPath: cfg.TelemetryPath,
		Identity:      id,
	}, logger.With("http"))

	hostname, _ := os.Hostname()
	url := metricsURL(cfg.ListenAddress, cfg.MetricsPath, hostname)
	outputs, err := initOutputs(cfg, output.NewStatus(output.StateOffline, id, url, time.Now().UTC()))
	if err != nil {
		logger.ErrorWithCode(err).Msg("Failed to initialize outputs")
		return 1
	}
	defer closeOutputs(outputs)

	logger.Info().Str("namespace", cfg.Namespace).Msg("Prometheus namespace")
	logger.Info().Str("path", cfg.MetricsPath).Msg("Metrics endpoint")
	if cfg.TelemetryPath != "" {
		logger.Info().Str("path", cfg.TelemetryPath).Msg("Exporter telemetry endpoint")
	}
	logger.Info().Str("address", cfg.ListenAddress).Msg("Setting up HTTP server")

	publishAll(outputs, output.NewStatus(output.StateOnline, id, url, time.Now().UTC()))

	err = srv.ListenAndServe(ctx, cfg.ListenAddress)
	publishAll(outputs, output.NewStatus(output.StateOffline, id, url, time.Now().UTC()))
	if err != nil {
		logger.Error().Err(err).Msg("HTTP server failed")
		return 1
	}
	logger.Info().Msg("Shutdown complete")
	return 0
}

func newSensor(cfg config.Config) (sensor.Sensor, error) {
	switch cfg.SensorType {
	case config.SensorSimulation:
		return sensor.NewFakeSensor(cfg)
	case config.SensorReal, "":
		return sensor.NewINA219Sensor(cfg)
	}
	return nil, errors.WithData(errors.ErrInvalidConfig, fmt.Sprintf("unknown sensor_type %q", cfg.SensorType))
}

// bootRead runs one sampling cycle at startup. A failure is logged only;
// runtime faults are tolerated.
func bootRead(ctx context.Context, smp *sampler.Sampler) {
	set, err := smp.Refresh(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Test read failed")
		return
	}
	ev := logger.Info()
	for _, r := range set.Readings {
		ev = ev.Float64(r.Name, r.Value)
	}
	ev.Msg("Test read succeeded")
}

func probe(ctx context.Context, smp *sampler.Sampler) int {
	set, err := smp.Refresh(ctx)
	if err != nil {
		logger.ErrorWithCode(err).Msg("Probe failed")
		return 1
	}
	console.PrintSampleSet(set)
	return 0
}

func identity(cfg config.Config) exposition.Identity {
	return exposition.Identity{
		Namespace: cfg.Namespace,
		Version:   cfg.Identity.Version,
		Board:     cfg.Identity.Board,
		Sensor:    cfg.Identity.Sensor,
	}
}

// metricsURL derives the scrape URL announced by outputs. A wildcard listen
// host is replaced by hostname.
func metricsURL(listen, path, hostname string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		host, port = listen, ""
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = hostname
	}
	if host == "" {
		host = "localhost"
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	}
	return "http://" + host + path
}

func initOutputs(cfg config.Config, offline output.Status) ([]output.Output, error) {
	var outs []output.Output
	for _, o := range cfg.Outputs {
		switch strings.ToLower(o.Type) {
		case config.OutputConsole:
			outs = append(outs, console.NewConsole())
		case config.OutputMQTT:
			if o.MQTT == nil {
				closeOutputs(outs)
				return nil, errors.WithData(errors.ErrInvalidConfig, "mqtt output requires mqtt settings")
			}
			m, err := mqtt.NewMQTT(*o.MQTT, offline)
			if err != nil {
				closeOutputs(outs)
				return nil, err
			}
			outs = append(outs, m)
		default:
			closeOutputs(outs)
			return nil, errors.WithData(errors.ErrInvalidConfig, fmt.Sprintf("unknown output type %q", o.Type))
		}
	}
	return outs, nil
}

func publishAll(outs []output.Output, s output.Status) {
	for _, o := range outs {
		if err := o.Publish(s); err != nil {
			logger.ErrorWithCode(err).Str("state", string(s.State)).Msg("Failed to publish status")
		}
	}
}

func closeOutputs(outs []output.Output) {
	for _, o := range outs {
		if err := o.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close output")
		}
	}
}
