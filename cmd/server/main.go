package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"liyu1981.xyz/vital-signs-service/pkg/bridge"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/db"
	vitalsGrpc "liyu1981.xyz/vital-signs-service/pkg/grpc"
	vitalsHttp "liyu1981.xyz/vital-signs-service/pkg/http"
	"liyu1981.xyz/vital-signs-service/pkg/iot"
	"liyu1981.xyz/vital-signs-service/pkg/notify"
	"liyu1981.xyz/vital-signs-service/pkg/telemetry"
	"liyu1981.xyz/vital-signs-service/pkg/vitals"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var err error

	err = godotenv.Load()
	if err != nil {
		log.Fatal("Error loading .env file, copy .env.example to .env first if in development")
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := common.GetLogger()

	telemetry.InitMetrics()
	if cfg.Tracing {
		shutdownTracer, err := telemetry.InitTracer(os.Stdout)
		if err != nil {
			log.Fatalf("failed to init tracer: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = shutdownTracer(ctx)
		}()
	}

	dialector, ok := db.UseDialector(cfg.DBType)
	if !ok {
		log.Fatal("Unknown VITALS_DB_TYPE: " + cfg.DBType)
	}
	core := iot.New(db.GetInstance(dialector))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, core, logger)
	if err != nil {
		log.Fatalf("failed to open backends: %v", err)
	}
	defer b.Close()

	ws := vitalsHttp.NewWSManager()
	defer ws.Close()

	dispatcher := notify.NewDispatcher(notify.DefaultBuffer, b.notifiers(cfg, core, ws.Notifier())...)
	defer dispatcher.Close()

	liveness := vitals.NewLivenessTracker(vitals.RealClock(), cfg.OfflineTimeout)
	liveness.OnChange(ws.BroadcastLiveness)

	opts := bridge.DefaultOptions()
	opts.Table = cfg.Table
	opts.HeartbeatInterval = cfg.HeartbeatInterval
	opts.Monitor = vitals.MonitorConfig{
		Unit:            vitals.Unit(cfg.TemperatureUnit),
		CriticalCount:   cfg.CriticalCount,
		Cooldown:        cfg.AlertCooldown,
		HistoryCapacity: cfg.HistoryCapacity,
		AlertLogSize:    vitals.DefaultAlertLogSize,
	}
	opts.Liveness = liveness
	opts.Alerts = dispatcher
	opts.OnApplied = ws.BroadcastReading

	supervisor := bridge.NewSupervisor(b.reader, b.subscriber, opts)
	defer supervisor.Close()
	for _, deviceID := range cfg.MonitorDevices {
		supervisor.Watch(deviceID)
	}
	logger.Info("Monitoring devices", zap.Strings("devices", cfg.MonitorDevices))

	defaultLimiter := zap.String("default_limiter",
		fmt.Sprintf("{\"default_rate\": %v, \"default_burst\": %v}", cfg.DefaultRate, cfg.DefaultBurst))

	g, gctx := errgroup.WithContext(ctx)

	var grpcServer *grpc.Server
	if cfg.GrpcHostPort != "" {
		vitalsGrpcServer := vitalsGrpc.VitalsServer{
			Iot:              core,
			RateLimiterStore: iot.NewRateLimiterStore(rate.Limit(cfg.DefaultRate), cfg.DefaultBurst),
			Supervisor:       supervisor,
			Liveness:         liveness,
			Unit:             vitals.Unit(cfg.TemperatureUnit),
			AutoWatch:        true,
		}
		interceptor := vitalsGrpcServer.CreateRateLimitInterceptor(vitalsGrpc.LimitedMethods)
		grpcServer = grpc.NewServer(grpc.UnaryInterceptor(interceptor))
		vitalsGrpc.RegisterVitalsServiceServer(grpcServer, &vitalsGrpcServer)
		logger.Info("gRPC server created with:", defaultLimiter)

		listener, err := net.Listen("tcp", cfg.GrpcHostPort)
		if err != nil {
			log.Fatalf("failed to listen: %v", err)
		}

		g.Go(func() error {
			logger.Info("start gRPC server on " + cfg.GrpcHostPort)
			return grpcServer.Serve(listener)
		})
	}

	rs := &vitalsHttp.RestfulServer{
		Server:           gin.Default(),
		Iot:              core,
		RateLimiterStore: iot.NewRateLimiterStore(rate.Limit(cfg.DefaultRate), cfg.DefaultBurst),
		Supervisor:       supervisor,
		Liveness:         liveness,
		Reader:           b.reader,
		Roster:           b.roster,
		WS:               ws,
		Unit:             vitals.Unit(cfg.TemperatureUnit),
		AutoWatch:        true,
	}
	rs.Setup()
	logger.Info("http server created with:", defaultLimiter)

	httpServer := &http.Server{Addr: cfg.HttpHostPort, Handler: rs.Handler()}
	g.Go(func() error {
		logger.Info("Starting HTTP server on: " + cfg.HttpHostPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
	}
}
