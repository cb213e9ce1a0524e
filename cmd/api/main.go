package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/your-org/coachwatch/internal/api"
	"github.com/your-org/coachwatch/internal/api/handlers"
	"github.com/your-org/coachwatch/internal/api/ws"
	"github.com/your-org/coachwatch/internal/config"
	"github.com/your-org/coachwatch/internal/identity"
	"github.com/your-org/coachwatch/internal/ingest"
	"github.com/your-org/coachwatch/internal/models"
	"github.com/your-org/coachwatch/internal/observability"
	"github.com/your-org/coachwatch/internal/queue"
	"github.com/your-org/coachwatch/internal/roster"
	"github.com/your-org/coachwatch/internal/storage"
	"github.com/your-org/coachwatch/internal/surveillance"
	"github.com/your-org/coachwatch/internal/vision"
	"github.com/your-org/coachwatch/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting coachwatch API service",
		"port", cfg.Server.Port,
		"cameras", len(cfg.Cameras),
		"match_threshold", cfg.Surveillance.MatchThreshold,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx, cfg.Vision.EmbeddingDim); err != nil {
		slog.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	// Face models load in the background; cycles and enrollment report
	// model-unavailable until they are ready.
	var analyzer *vision.Analyzer
	if err := vision.InitRuntime(onnxLibPath(cfg.Vision.RuntimeLib)); err != nil {
		slog.Warn("onnx runtime init failed, recognition unavailable", "error", err)
		analyzer = vision.Unavailable(err)
	} else {
		defer vision.DestroyRuntime()
		analyzer = vision.NewAnalyzer(cfg.Vision)
	}
	defer analyzer.Close()

	// Enrollment database
	store := identity.NewStore(cfg.Vision.EmbeddingDim)
	rost := roster.NewService(store, analyzer, roster.Options{
		Repository: db,
		Images:     minioStore,
		Backups:    minioStore,
	})
	if _, _, err := rost.LoadFromRepository(ctx); err != nil {
		slog.Error("restore enrollments", "error", err)
		os.Exit(1)
	}
	if cfg.Surveillance.SeedFile != "" {
		if _, err := rost.SeedFile(ctx, cfg.Surveillance.SeedFile); err != nil {
			slog.Warn("seed roster", "path", cfg.Surveillance.SeedFile, "error", err)
		}
	}
	matcher := identity.NewMatcher(store, cfg.Surveillance.MatchThreshold)

	zones := surveillance.NewZones(cfg.Surveillance.IntrusionLogSize)
	for _, z := range cfg.Zones {
		zones.Get(z)
	}

	emitter := surveillance.NewEmitter(cfg.Alerts.PublishTimeout,
		surveillance.LogSink(),
		surveillance.NamedSink{Name: "nats", Sink: surveillance.SinkFunc(producer.PublishAlert)},
	)

	onUpdate := func(u surveillance.Update) {
		hub.Broadcast(dto.WSMessage{Type: dto.WSTypeCycle, ZoneID: u.Result.ZoneID, Timestamp: u.Result.CompletedAt, Data: u.Result})
		hub.Broadcast(dto.WSMessage{Type: dto.WSTypeZoneState, ZoneID: u.State.ZoneID, Timestamp: u.Result.CompletedAt, Data: u.State})
	}

	// Cameras and their schedulers
	cameras := ingest.NewManager(cfg.Surveillance.FrameMaxAge)
	monitors := surveillance.NewMonitors()
	var autostart sync.WaitGroup

	for _, cam := range cfg.Cameras {
		src, err := cameras.Start(ctx, cam)
		if err != nil {
			slog.Error("start camera", "camera_id", cam.ID, "error", err)
			continue
		}
		cycle := surveillance.NewCycle(cam.ID, src, analyzer, matcher)
		monitors.Add(surveillance.NewScheduler(surveillance.SchedulerConfig{
			CameraID:     cam.ID,
			Interval:     cfg.Surveillance.MonitorInterval,
			CycleTimeout: cfg.Surveillance.CycleTimeout,
			OnUpdate:     onUpdate,
		}, cycle, zones, emitter))

		if cam.ZoneID == "" {
			continue
		}
		autostart.Add(1)
		go func(cameraID, zoneID string) {
			defer autostart.Done()
			if _, err := monitors.Start(ctx, cameraID, zoneID, 0); err != nil {
				slog.Warn("auto-start surveillance", "camera_id", cameraID, "zone_id", zoneID, "error", err)
			}
		}(cam.ID, cam.ZoneID)
	}

	// Alerts come back from the stream so every API replica pushes them.
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create alert consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeAlerts(ctx, "api-ws", func(_ context.Context, a models.Alert) error {
		hub.Broadcast(dto.WSMessage{Type: dto.WSTypeAlert, ZoneID: a.ZoneID, Timestamp: a.DetectedAt, Data: a})
		return nil
	}, queue.ConsumeOptions{Workers: 1, OnlyNew: true})
	if err != nil {
		slog.Warn("start alert consumer", "error", err)
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:   cfg.Server.APIKey,
		AdminKey: cfg.Server.AdminKey,
		Roster:   rost,
		Zones:    zones,
		Monitors: monitors,
		Logs:     db,
		Hub:      hub,
		Checks: []handlers.Check{
			{Name: "postgres", Ping: db.Ping},
			{Name: "minio", Ping: minioStore.Ping},
			{Name: "nats", Ping: func(context.Context) error { return producer.Ping() }},
			{Name: "vision", Ping: analyzer.Ready},
		},
		PreviewInterval: cfg.Surveillance.PreviewInterval,
		MonitorInterval: cfg.Surveillance.MonitorInterval,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	autostart.Wait()
	monitors.CloseAll()
	cameras.StopAll()
	emitter.Wait()

	slog.Info("API server stopped")
}

// onnxLibPath returns the configured ONNX Runtime library or the platform
// default name.
func onnxLibPath(configured string) string {
	if configured != "" {
		return configured
	}
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}
