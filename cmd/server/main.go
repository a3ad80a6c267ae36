package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/technosupport/ts-evcam/internal/api"
	"github.com/technosupport/ts-evcam/internal/data"
	"github.com/technosupport/ts-evcam/internal/eventsync"
	"github.com/technosupport/ts-evcam/internal/health"
	"github.com/technosupport/ts-evcam/internal/notify"
	"github.com/technosupport/ts-evcam/internal/retention"
	"github.com/technosupport/ts-evcam/internal/tokens"
)

const serviceName = "TS-EVCAM-Sync"

type config struct {
	Sync struct {
		Enabled         bool   `yaml:"enabled"`
		IntervalSeconds int    `yaml:"interval_seconds"`
		PassTimeoutSecs int    `yaml:"pass_timeout_seconds"`
		MaxParallel     int    `yaml:"max_parallel_cameras"`
		DropDir         string `yaml:"drop_dir"`
		WatchDropDir    bool   `yaml:"watch_drop_dir"`
		NoFallback      bool   `yaml:"no_fallback_attribution"`
	} `yaml:"sync"`

	Health struct {
		Enabled          bool `yaml:"enabled"`
		IntervalSeconds  int  `yaml:"interval_seconds"`
		ProbeTimeoutSecs int  `yaml:"probe_timeout_seconds"`
		MaxInflight      int  `yaml:"max_inflight"`
		FailureThreshold int  `yaml:"failure_threshold"`
	} `yaml:"health"`

	Retention struct {
		Enabled         bool `yaml:"enabled"`
		IntervalMinutes int  `yaml:"interval_minutes"`
		GracePeriodDays int  `yaml:"grace_period_days"`
	} `yaml:"retention"`

	Notify struct {
		NatsSubject     string            `yaml:"nats_subject"`
		PublishRetryMax int               `yaml:"publish_retry_max"`
		DedupMaxKeys    int               `yaml:"dedup_max_keys"`
		DedupTTLSeconds int               `yaml:"dedup_ttl_seconds"`
		EmailPerHour    int               `yaml:"email_per_hour"`
		SMTP            notify.SMTPConfig `yaml:"smtp"`
	} `yaml:"notify"`
}

func loadConfig() config {
	var cfg config
	raw, err := os.ReadFile("config/default.yaml")
	if err != nil {
		log.Printf("[WARN] config/default.yaml not readable (%v), using defaults", err)
		return cfg
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		log.Fatalf("Config parse error: %v", err)
	}
	return cfg
}

func main() {
	cfg := loadConfig()

	dbHost := os.Getenv("DB_HOST")
	dbUser := os.Getenv("DB_USER")
	dbPass := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")
	redisAddr := os.Getenv("REDIS_ADDR")
	jwtKey := os.Getenv("JWT_SIGNING_KEY")

	if jwtKey == "" {
		jwtKey = "dev-secret-do-not-use-in-prod"
	}
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=disable", dbUser, dbPass, dbHost, dbName)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})

	// Repositories
	eventRepo := data.EventModel{DB: db}
	camRepo := data.CameraModel{DB: db}
	userRepo := data.UserModel{DB: db}

	tokenMgr := tokens.NewManager(jwtKey, 24*time.Hour)

	// Notification pipeline. NATS mirror is optional: a dead broker
	// downgrades to push/email only.
	var mirror *notify.NATSPublisher
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}
	nc, err := nats.Connect(natsURL, nats.Name(serviceName))
	if err != nil {
		log.Printf("Warning: NATS Connect Failed: %v. Signal mirroring disabled.", err)
	} else {
		defer nc.Close()
		subject := cfg.Notify.NatsSubject
		if subject == "" {
			subject = "evcam.signals"
		}
		mirror = notify.NewNATSPublisher(nc, subject, cfg.Notify.PublishRetryMax)
	}

	hub := notify.NewHub()
	mailer := notify.NewMailer(cfg.Notify.SMTP)
	throttle := notify.NewEmailThrottle(rdb, cfg.Notify.EmailPerHour, time.Hour)
	dispatcher := notify.NewDispatcher(userRepo, hub, mailer, throttle, mirror, notify.DispatcherConfig{
		DedupMaxKeys: cfg.Notify.DedupMaxKeys,
		DedupTTL:     time.Duration(cfg.Notify.DedupTTLSeconds) * time.Second,
	})

	// Reconciliation engine
	var resolver eventsync.CameraResolver = eventsync.NameMatchResolver{}
	if cfg.Sync.NoFallback {
		resolver = eventsync.NoFallbackResolver{}
	}
	camSrc := eventsync.NewCameraSource(eventsync.DefaultClientFactory)
	dropSrc := eventsync.NewDropDirSource(cfg.Sync.DropDir)
	engine := eventsync.NewEngine(eventRepo, camRepo, camSrc, dropSrc, resolver, dispatcher, eventsync.EngineConfig{
		MaxParallel: cfg.Sync.MaxParallel,
	})

	scheduler := eventsync.NewScheduler(engine, eventsync.SchedulerConfig{
		Enabled:      cfg.Sync.Enabled,
		SyncInterval: time.Duration(cfg.Sync.IntervalSeconds) * time.Second,
		PassTimeout:  time.Duration(cfg.Sync.PassTimeoutSecs) * time.Second,
	})
	scheduler.Start()
	defer scheduler.Stop()

	var watcher *eventsync.Watcher
	if cfg.Sync.WatchDropDir && cfg.Sync.DropDir != "" {
		watcher, err = eventsync.NewWatcher(cfg.Sync.DropDir, scheduler, 0)
		if err != nil {
			log.Printf("Warning: drop dir watch failed: %v. Relying on the timer.", err)
		} else {
			watcher.Start()
			defer watcher.Stop()
		}
	}

	// Health monitor
	monitor := health.NewMonitor(camRepo, health.ClientProber{}, dispatcher, health.MonitorConfig{
		Enabled:          cfg.Health.Enabled,
		CheckInterval:    time.Duration(cfg.Health.IntervalSeconds) * time.Second,
		ProbeTimeout:     time.Duration(cfg.Health.ProbeTimeoutSecs) * time.Second,
		MaxInflight:      cfg.Health.MaxInflight,
		FailureThreshold: cfg.Health.FailureThreshold,
	})
	monitor.Start()
	defer monitor.Stop()

	// Retention reaper
	reaper := retention.NewReaper(eventRepo, retention.Config{
		Enabled:     cfg.Retention.Enabled,
		Interval:    time.Duration(cfg.Retention.IntervalMinutes) * time.Minute,
		GracePeriod: time.Duration(cfg.Retention.GracePeriodDays) * 24 * time.Hour,
	})
	reaper.Start()
	defer reaper.Stop()

	// HTTP surface
	eventHandler := &api.EventHandler{
		Events:  eventRepo,
		Cameras: camRepo,
		Sync:    scheduler,
		Clients: api.DefaultCommanderFactory,
	}
	cameraHandler := &api.CameraHandler{
		Cameras: camRepo,
		Active:  engine,
		Clients: api.DefaultCommanderFactory,
	}
	wsHandler := api.NewNotificationsWsHandler(tokenMgr, hub)

	router := api.NewRouter(eventHandler, cameraHandler, wsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Printf("Starting server on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Graceful shutdown error: %v", err)
	}
	log.Printf("Server stopped gracefully")
}
