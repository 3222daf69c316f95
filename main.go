package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	alarmapp "optinet-monitor/internal/alarms/application"
	alarminterfaces "optinet-monitor/internal/alarms/interfaces"
	alarmhttp "optinet-monitor/internal/alarms/interfaces/http"
	"optinet-monitor/internal/collector"
	"optinet-monitor/internal/config"
	"optinet-monitor/internal/eventing"
	"optinet-monitor/internal/nms"
	"optinet-monitor/internal/observability/logging"
	"optinet-monitor/internal/observability/metrics"
	"optinet-monitor/internal/storage/postgres"
	redisstore "optinet-monitor/internal/storage/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "optinet-monitor")
	if err != nil {
		zap.NewExample().Fatal("logger build failed", zap.Error(err))
	}
	defer logger.Sync()

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("db ping failed", zap.Error(err))
	}

	cardRepo := postgres.NewCardRepository(db)
	measurementRepo := postgres.NewMeasurementRepository(db)
	ruleRepo := postgres.NewRuleRepository(db)
	alarmRepo := postgres.NewAlarmRepository(db)
	systemConfigRepo := postgres.NewSystemConfigRepository(db)

	var latest alarmapp.LatestReader = measurementRepo
	var latestWriter collector.LatestWriter
	if cfg.Redis.Addr != "" {
		redisClient := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		cache, err := redisstore.NewLatestCache(redisClient, measurementRepo, logger)
		if err != nil {
			logger.Fatal("latest cache init failed", zap.Error(err))
		}
		latest = cache
		latestWriter = cache
	}

	publisher, err := eventing.NewPublisher(eventing.BrokerConfig{
		URL:      cfg.Broker.URL,
		ClientID: cfg.Broker.ClientID + "-pub",
		Username: cfg.Broker.Username,
		Password: cfg.Broker.Password,
	}, logger)
	if err != nil {
		logger.Fatal("event publisher init failed", zap.Error(err))
	}
	defer publisher.Close()

	engine, err := alarmapp.NewEngine(ruleRepo, alarmRepo, measurementRepo, latest, publisher, logger)
	if err != nil {
		logger.Fatal("alarm engine init failed", zap.Error(err))
	}
	if err := engine.Hydrate(ctx); err != nil {
		logger.Fatal("alarm engine hydrate failed", zap.Error(err))
	}
	reconciler, err := alarmapp.NewReconciler(alarmRepo, logger)
	if err != nil {
		logger.Fatal("reconciler init failed", zap.Error(err))
	}

	nmsClient, err := nms.NewClient(cfg.NMS.BaseURL, cfg.NMS.Token, logger,
		nms.WithTimeout(time.Duration(cfg.NMS.TimeoutSeconds)*time.Second))
	if err != nil {
		logger.Fatal("nms client init failed", zap.Error(err))
	}

	writerOpts := []collector.WriterOption{}
	if latestWriter != nil {
		writerOpts = append(writerOpts, collector.WithLatestWriter(latestWriter))
	}
	writer, err := collector.NewWriter(cardRepo, measurementRepo, publisher, logger, writerOpts...)
	if err != nil {
		logger.Fatal("writer init failed", zap.Error(err))
	}
	jobs, err := collector.NewJobs(nmsClient, writer, reconciler, logger,
		collector.WithCriticalKeys(cfg.Collector.CriticalKeys))
	if err != nil {
		logger.Fatal("jobs init failed", zap.Error(err))
	}
	scheduler, err := collector.NewScheduler(jobs, collector.ScheduleConfig{
		AlarmInterval:    time.Duration(cfg.Collector.AlarmIntervalSeconds) * time.Second,
		CriticalInterval: time.Duration(cfg.Collector.CriticalIntervalSeconds) * time.Second,
		NormalInterval:   time.Duration(cfg.Collector.NormalIntervalSeconds) * time.Second,
		SweepInterval:    time.Duration(cfg.Collector.SweepIntervalSeconds) * time.Second,
		InventoryAt:      cfg.Collector.InventoryAt,
	}, logger, collector.WithRuleSweep(engine.CheckAllRules))
	if err != nil {
		logger.Fatal("scheduler init failed", zap.Error(err))
	}
	runtime, err := collector.NewRuntime(systemConfigRepo, nmsClient, scheduler, logger)
	if err != nil {
		logger.Fatal("runtime init failed", zap.Error(err))
	}
	if err := runtime.Reload(ctx); err != nil {
		logger.Warn("initial runtime config load failed", zap.Error(err))
	}

	consumer, err := eventing.NewConsumer(eventing.BrokerConfig{
		URL:      cfg.Broker.URL,
		ClientID: cfg.Broker.ClientID + "-sub",
		Username: cfg.Broker.Username,
		Password: cfg.Broker.Password,
	}, logger)
	if err != nil {
		logger.Fatal("event consumer init failed", zap.Error(err))
	}
	defer consumer.Close()
	measurementConsumer, err := alarminterfaces.NewMeasurementConsumer(engine)
	if err != nil {
		logger.Fatal("measurement consumer init failed", zap.Error(err))
	}
	if err := consumer.Subscribe(eventing.TopicMeasurementsCollected, measurementConsumer.Handle); err != nil {
		logger.Fatal("measurement subscription failed", zap.Error(err))
	}

	scheduler.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"service": "optinet-monitor",
			"jobs":    scheduler.Status(),
		})
	})
	mux.HandleFunc("/api/v1/collector/run", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		go jobs.RunAll(context.WithoutCancel(ctx))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"status":"started"}`))
	})
	mux.HandleFunc("/api/v1/config/reload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := runtime.Reload(r.Context()); err != nil {
			logger.Error("config reload failed", zap.Error(err))
			http.Error(w, "reload failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"reloaded"}`))
	})
	if alarmHandler, err := alarmhttp.NewHandler(alarmRepo); err == nil {
		mux.Handle("/api/v1/alarms", alarmHandler)
		mux.Handle("/api/v1/alarms/", alarmHandler)
	}

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	scheduler.Wait()
	logger.Info("stopped")
}
