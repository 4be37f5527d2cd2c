package main

import (
	"context"
	"testing"
	"time"

	"github.com/ericogr/ina219-exporter/pkg/config"
	"github.com/ericogr/ina219-exporter/pkg/errors"
	"github.com/ericogr/ina219-exporter/pkg/output"
	"github.com/ericogr/ina219-exporter/pkg/sampler"
)

func TestNewSensorSimulation(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SensorType = config.SensorSimulation
	s, err := newSensor(cfg)
	if err != nil {
		t.Fatalf("newSensor: %v", err)
	}
	defer s.Close()

	smp, err := sampler.New(sampler.PowerChannels(s), cfg.ReadTryCount)
	if err != nil {
		t.Fatalf("sampler.New: %v", err)
	}
	set, err := smp.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(set.Readings) != 2 {
		t.Fatalf("readings len: %d", len(set.Readings))
	}
}

func TestNewSensorUnknownType(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SensorType = "spi"
	if _, err := newSensor(cfg); errors.CodeOf(err) != errors.ErrInvalidConfig {
		t.Fatalf("expected invalid configuration, got %v", err)
	}
}

func TestInitOutputs(t *testing.T) {
	cfg := config.Config{Outputs: []config.OutputConfig{{Type: "console"}, {Type: "CONSOLE"}}}
	outs, err := initOutputs(cfg, output.Status{State: output.StateOffline})
	if err != nil {
		t.Fatalf("initOutputs: %v", err)
	}
	if len(outs) != 2 {
		t.Fatalf("outputs len: %d", len(outs))
	}

	cfg.Outputs = []config.OutputConfig{{Type: "syslog"}}
	if _, err := initOutputs(cfg, output.Status{}); errors.CodeOf(err) != errors.ErrInvalidConfig {
		t.Fatalf("expected invalid configuration, got %v", err)
	}

	cfg.Outputs = []config.OutputConfig{{Type: "mqtt"}}
	if _, err := initOutputs(cfg, output.Status{}); errors.CodeOf(err) != errors.ErrInvalidConfig {
		t.Fatalf("expected invalid configuration for mqtt without settings, got %v", err)
	}
}

func TestIdentity(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Namespace = "batt"
	cfg.Identity = config.IdentityConfig{Version: "1.2.0", Board: "esp_x", Sensor: "ina219"}
	id := identity(cfg)
	if id.Namespace != "batt" || id.Version != "1.2.0" || id.Board != "esp_x" || id.Sensor != "ina219" {
		t.Fatalf("identity mismatch: %+v", id)
	}
}

func TestMetricsURL(t *testing.T) {
	tests := []struct {
		listen, path, hostname, want string
	}{
		{":9100", "/metrics", "rpi4", "http://rpi4:9100/metrics"},
		{"0.0.0.0:9100", "/metrics", "rpi4", "http://rpi4:9100/metrics"},
		{"192.168.1.5:8080", "/m", "rpi4", "http://192.168.1.5:8080/m"},
		{"[::]:9100", "/metrics", "", "http://localhost:9100/metrics"},
		{"[fe80::1]:9100", "/metrics", "rpi4", "http://[fe80::1]:9100/metrics"},
	}
	for _, tt := range tests {
		if got := metricsURL(tt.listen, tt.path, tt.hostname); got != tt.want {
			t.Fatalf("metricsURL(%q): got %q want %q", tt.listen, got, tt.want)
		}
	}
}

func TestRunPrintConfig(t *testing.T) {
	if code := run([]string{"--print-config"}); code != 0 {
		t.Fatalf("print-config exit code: %d", code)
	}
	if code := run([]string{"--help"}); code != 0 {
		t.Fatalf("help exit code: %d", code)
	}
	if code := run([]string{"--read-try-count", "0"}); code != 2 {
		t.Fatalf("invalid config exit code: %d", code)
	}
}

func TestRunProbeSimulation(t *testing.T) {
	done := make(chan int, 1)
	go func() {
		done <- run([]string{"--sensor-type", "simulation", "--probe", "--log-level", "error"})
	}()
	select {
	case code := <-done:
		if code != 0 {
			t.Fatalf("probe exit code: %d", code)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("probe did not finish")
	}
}
