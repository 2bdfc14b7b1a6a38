package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/plant-trainer/internal/equipment"
	"github.com/signalsfoundry/plant-trainer/internal/process"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TRAINER_CONFIG", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TickPeriod != 500*time.Millisecond || cfg.InitialSpeed != 1 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Kafka.Enabled() {
		t.Fatalf("kafka enabled without brokers")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trainer.yaml")
	body := "tick_period: 250ms\ninitial_speed: 5\nkafka:\n  brokers: [a:9092]\n  codec: msgpack\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("TRAINER_CONFIG", path)
	t.Setenv("TRAINER_INITIAL_SPEED", "10")
	t.Setenv("TRAINER_KAFKA_BROKERS", "b:9092, c:9092")
	t.Setenv("TRAINER_ALLOWED_ORIGINS", "http://localhost:3000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TickPeriod != 250*time.Millisecond {
		t.Fatalf("tick period = %v", cfg.TickPeriod)
	}
	if cfg.InitialSpeed != 10 {
		t.Fatalf("env did not override speed: %d", cfg.InitialSpeed)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "c:9092" || cfg.Kafka.Codec != "msgpack" {
		t.Fatalf("kafka = %+v", cfg.Kafka)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("allowed origins = %v", cfg.AllowedOrigins)
	}
	if cfg.Kafka.PublishEvery != 10 {
		t.Fatalf("file dropped default publish_every: %d", cfg.Kafka.PublishEvery)
	}
}

func TestLoadTracingSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trainer.yaml")
	body := "tracing:\n  enabled: true\n  exporter: otlp\n  sample_ratio: 0.5\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("TRAINER_CONFIG", path)
	t.Setenv("TRAINER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("TRAINER_TRACING_SAMPLE_RATIO", "0.25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tr := cfg.Tracing
	if !tr.Enabled || tr.Exporter != "otlp" || tr.Endpoint != "collector:4317" || tr.SampleRatio != 0.25 {
		t.Fatalf("tracing = %+v", tr)
	}
	if tr.ServiceName != "plant-trainer" {
		t.Fatalf("file dropped default service name: %q", tr.ServiceName)
	}

	t.Setenv("TRAINER_TRACING_EXPORTER", "zipkin")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for exporter zipkin")
	}
}

func TestValidateRejectsBadSpeed(t *testing.T) {
	cfg := Defaults()
	cfg.InitialSpeed = 3
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for speed 3")
	}
	cfg = Defaults()
	cfg.Kafka.Codec = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for codec xml")
	}
	cfg = Defaults()
	cfg.Tracing.SampleRatio = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for sample ratio 1.5")
	}
}

func TestDefaultPlant(t *testing.T) {
	p, err := DefaultPlant()
	if err != nil {
		t.Fatalf("DefaultPlant: %v", err)
	}
	if len(p.Equipment) != 9 || len(p.Alarms) != 9 {
		t.Fatalf("equipment=%d alarms=%d", len(p.Equipment), len(p.Alarms))
	}
	if p.Name != "Riverside WTP" {
		t.Fatalf("plant name = %q", p.Name)
	}
	if p.BackwashDuration != 10*time.Minute || p.HysteresisFraction != 0.05 {
		t.Fatalf("plant settings = %v %v", p.BackwashDuration, p.HysteresisFraction)
	}
	if p.Params != process.DefaultParams() {
		t.Fatalf("params changed without a params block: %+v", p.Params)
	}
	if _, err := equipment.NewRegistry(p.Equipment); err != nil {
		t.Fatalf("embedded equipment invalid: %v", err)
	}
}

func TestParsePlantKeepsUnsetParams(t *testing.T) {
	doc := `
equipment:
  - {id: p1, tag: P-1, name: Pump, kind: pump, speed: 50}
layout:
  intake_pumps: [p1]
params:
  base_raw_turbidity_ntu: 30
`
	p, err := ParsePlant([]byte(doc))
	if err != nil {
		t.Fatalf("ParsePlant: %v", err)
	}
	if p.Params.BaseRawTurbidityNTU != 30 {
		t.Fatalf("override ignored: %v", p.Params.BaseRawTurbidityNTU)
	}
	if p.Params.DesignFlowM3h != process.DefaultParams().DesignFlowM3h {
		t.Fatalf("unset param lost its default: %v", p.Params.DesignFlowM3h)
	}
}

func TestParsePlantRejectsDanglingLayout(t *testing.T) {
	doc := `
equipment:
  - {id: p1, tag: P-1, name: Pump, kind: pump}
layout:
  intake_pumps: [p1, p2]
`
	if _, err := ParsePlant([]byte(doc)); err == nil {
		t.Fatalf("expected error for unknown layout reference")
	}
}
