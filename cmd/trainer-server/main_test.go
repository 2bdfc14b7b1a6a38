package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/plant-trainer/internal/config"
	"github.com/signalsfoundry/plant-trainer/internal/logging"
	"github.com/signalsfoundry/plant-trainer/internal/rpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestTrainerServerStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	cfg := config.Defaults()
	cfg.GRPCAddr = lis.Addr().String()
	cfg.HTTPAddr = ""
	cfg.MetricsAddr = ""
	cfg.TickPeriod = 5 * time.Millisecond
	cfg.InitialSpeed = 10

	log := logging.New(logging.Config{Level: "warn", Format: "text"})

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, log, lis)
	}()

	conn, err := rpc.Dial(cfg.GRPCAddr)
	if err != nil {
		t.Fatalf("rpc.Dial: %v", err)
	}
	defer conn.Close()

	client := rpc.NewClient(conn)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := client.GetState(ctx)
		if err != nil {
			t.Fatalf("GetState: %v", err)
		}
		if resp.Frame.State != nil && resp.Frame.State.Tick > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("scheduler never ticked")
		}
		time.Sleep(10 * time.Millisecond)
	}

	health, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("health Check: %v", err)
	}
	if health.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health = %v, want SERVING", health.GetStatus())
	}

	cancel()

	if err := <-errCh; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer lis.Close()

	cfg := config.Defaults()
	cfg.InitialSpeed = 3
	if err := run(context.Background(), cfg, logging.Noop(), lis); err == nil {
		t.Fatalf("run accepted initial_speed 3")
	}
}

func TestLoadPlantAndCatalogFallbacks(t *testing.T) {
	if _, err := loadPlant(""); err != nil {
		t.Fatalf("loadPlant(\"\"): %v", err)
	}
	if _, err := loadCatalog(""); err != nil {
		t.Fatalf("loadCatalog(\"\"): %v", err)
	}

	missing := filepath.Join(t.TempDir(), "plant.yaml")
	if _, err := loadPlant(missing); err == nil {
		t.Fatalf("loadPlant(%s) succeeded for a missing file", missing)
	}

	bad := filepath.Join(t.TempDir(), "plant.yaml")
	if err := os.WriteFile(bad, []byte("equipment: [:"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := loadPlant(bad); err == nil {
		t.Fatalf("loadPlant accepted malformed YAML")
	}
}

func TestKafkaConfigConversion(t *testing.T) {
	kcfg, err := kafkaConfig(config.KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		TopicPrefix:  "wtp",
		PublishEvery: 5,
		Codec:        "msgpack",
	})
	if err != nil {
		t.Fatalf("kafkaConfig: %v", err)
	}
	if kcfg.Codec.Name() != "msgpack" || kcfg.SnapshotTopic() != "wtp.snapshots" || kcfg.EventTopic() != "wtp.events" {
		t.Fatalf("kafka config = %+v", kcfg)
	}
	if _, err := kafkaConfig(config.KafkaConfig{Codec: "xml"}); err == nil {
		t.Fatalf("kafkaConfig accepted codec xml")
	}
}
