package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/plant-trainer/internal/broadcast"
	"github.com/signalsfoundry/plant-trainer/internal/catalog"
	"github.com/signalsfoundry/plant-trainer/internal/config"
	"github.com/signalsfoundry/plant-trainer/internal/httpapi"
	"github.com/signalsfoundry/plant-trainer/internal/logging"
	"github.com/signalsfoundry/plant-trainer/internal/observability"
	"github.com/signalsfoundry/plant-trainer/internal/rpc"
	"github.com/signalsfoundry/plant-trainer/internal/sim"
)

func main() {
	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Error(ctx, "failed to load configuration", logging.Err(err))
		os.Exit(1)
	}

	flag.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "TCP address the trainer gRPC server listens on")
	flag.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP address for the REST and SSE API (empty disables)")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "HTTP address for Prometheus /metrics (empty disables)")
	flag.DurationVar(&cfg.TickPeriod, "tick", cfg.TickPeriod, "wall-clock period between simulation ticks")
	flag.IntVar(&cfg.InitialSpeed, "speed", cfg.InitialSpeed, "initial speed multiplier (1, 5 or 10)")
	flag.StringVar(&cfg.PlantPath, "plant", cfg.PlantPath, "path to a plant definition YAML file (empty uses the built-in plant)")
	flag.StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "directory holding tutorials.yaml and scenarios.yaml (empty uses the built-in catalog)")
	flag.Parse()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.GRPCAddr), logging.Err(err))
		os.Exit(1)
	}

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(stopCtx, cfg, log, lis); err != nil {
		log.Error(ctx, "trainer server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves until ctx is cancelled. lis is owned by the gRPC server.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	plant, err := loadPlant(cfg.PlantPath)
	if err != nil {
		return err
	}
	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, plant.Name, log)
	if err != nil {
		log.Warn(ctx, "tracing disabled", logging.Err(err))
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	rpcCollector, err := observability.NewRPCCollector(reg)
	if err != nil {
		return err
	}
	simCollector, err := observability.NewSimCollector(reg)
	if err != nil {
		return err
	}

	opts := []sim.Option{
		sim.WithLogger(log),
		sim.WithMetrics(simCollector),
		sim.WithTickPeriod(cfg.TickPeriod),
		sim.WithInitialSpeed(cfg.InitialSpeed),
		sim.WithAlarmHistoryLimit(cfg.AlarmHistoryLimit),
		sim.WithHistoryCapacity(cfg.HistoryCapacity),
		sim.WithTrendSamples(cfg.TrendSamples),
		sim.WithObserverBuffer(cfg.ObserverBuffer),
	}

	var sink *broadcast.KafkaSink
	if cfg.Kafka.Enabled() {
		kcfg, err := kafkaConfig(cfg.Kafka)
		if err != nil {
			return err
		}
		sink, err = broadcast.NewKafkaSink(kcfg, log)
		if err != nil {
			return err
		}
		opts = append(opts, sim.WithEventSink(sink.RecordEvent))
		log.Info(ctx, "kafka sink enabled",
			logging.Any("brokers", kcfg.Brokers),
			logging.String("snapshot_topic", kcfg.SnapshotTopic()),
			logging.String("event_topic", kcfg.EventTopic()),
		)
	}

	session, err := sim.New(plant, cat, opts...)
	if err != nil {
		return err
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var wg sync.WaitGroup
	if sink != nil {
		sub := session.Subscribe("kafka")
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sink.Run(runCtx, sub); err != nil {
				log.Warn(context.Background(), "kafka sink stopped", logging.Err(err))
			}
		}()
	}

	server := rpc.NewServer(rpc.NewTrainerService(session, log), log, rpcCollector)
	httpSrv := serveHTTP(cfg.HTTPAddr, httpapi.NewRouter(httpapi.New(session, log), rpcCollector, cfg.AllowedOrigins), log)
	metricsSrv := serveMetrics(cfg.MetricsAddr, rpcCollector, log)

	done := session.Run(runCtx)
	server.MarkServing()

	serveErr := make(chan error, 1)
	log.Info(ctx, "starting trainer gRPC server", logging.String("addr", lis.Addr().String()))
	go func() {
		serveErr <- server.Serve(lis)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = err
	}

	log.Info(context.Background(), "shutting down trainer server")
	server.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if httpSrv != nil {
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	cancelRun()
	<-done
	session.Close()
	wg.Wait()
	return runErr
}

func loadPlant(path string) (config.Plant, error) {
	if path == "" {
		return config.DefaultPlant()
	}
	return config.LoadPlant(path)
}

func loadCatalog(dir string) (catalog.Catalog, error) {
	if dir == "" {
		return catalog.Default()
	}
	return catalog.Load(dir)
}

func kafkaConfig(c config.KafkaConfig) (broadcast.KafkaConfig, error) {
	codec, err := broadcast.CodecByName(c.Codec)
	if err != nil {
		return broadcast.KafkaConfig{}, err
	}
	return broadcast.KafkaConfig{
		Brokers:      c.Brokers,
		TopicPrefix:  c.TopicPrefix,
		PublishEvery: c.PublishEvery,
		Codec:        codec,
	}, nil
}

func serveHTTP(addr string, handler http.Handler, log logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "http api server exited", logging.Err(err))
		}
	}()
	log.Info(context.Background(), "serving HTTP API", logging.String("addr", addr))
	return srv
}

func serveMetrics(addr string, collector *observability.RPCCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
