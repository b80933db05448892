package main

import (
	"context"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tessaly/bookingd/internal/app"
	"github.com/tessaly/bookingd/internal/config"
	"github.com/tessaly/bookingd/internal/db"
	"github.com/tessaly/bookingd/internal/engine"
	"github.com/tessaly/bookingd/internal/handlers"
	"github.com/tessaly/bookingd/internal/hold"
	"github.com/tessaly/bookingd/internal/httpx"
	"github.com/tessaly/bookingd/internal/kafkax"
	"github.com/tessaly/bookingd/internal/oracle"
	"github.com/tessaly/bookingd/internal/otelx"
	"github.com/tessaly/bookingd/internal/outbox"
	"github.com/tessaly/bookingd/internal/runtime"
	"github.com/tessaly/bookingd/internal/storage"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "bookingd")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if err := app.Migrate(ctx, pool, logger); err != nil {
		logger.Error("migrations failed", "err", err)
		panic(err)
	}

	rdb, err := db.OpenRedis(ctx,
		config.String("REDIS_ADDR", ""),
		config.String("REDIS_PASSWORD", ""),
		config.Int("REDIS_DB", 0),
	)
	if err != nil {
		// Redis backs holds and rate limiting, neither of which gates booking.
		logger.Warn("redis unavailable; holds and rate limiting disabled", "err", err)
		rdb = nil
	}

	constraintRepo := storage.NewConstraintRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	bookingRepo := storage.NewBookingRepository(pool, outboxRepo)
	rankingRepo := storage.NewRankingRepository(pool)

	var freeBusy engine.Oracle = oracle.Noop{}
	if baseURL := config.String("FREEBUSY_BASE_URL", ""); baseURL != "" {
		freeBusy = oracle.NewClient(baseURL,
			config.String("FREEBUSY_TOKEN", ""),
			config.Duration("FREEBUSY_TIMEOUT", 3*time.Second),
		)
	}

	eng := engine.New(constraintRepo, bookingRepo, rankingRepo, freeBusy, logger, engine.Config{
		DefaultDurationMin: config.Int("DEFAULT_DURATION_MINUTES", 30),
		GranularityMin:     config.Int("SLOT_GRANULARITY_MINUTES", 15),
		MaxWindowDays:      config.Int("MAX_WINDOW_DAYS", 60),
		IdempotencyWindow:  config.Duration("IDEMPOTENCY_WINDOW", 7*24*time.Hour),
	})

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	var holdStore *hold.Store
	if rdb != nil {
		holdStore = hold.NewStore(rdb, config.Duration("HOLD_TTL", 5*time.Minute))
	}

	publicHandler := handlers.NewPublicHandler(eng, holdStore, logger)
	automationHandler := handlers.NewAutomationHandler(eng, config.String("AUTOMATION_API_KEY", ""), logger)
	staffHandler := handlers.NewStaffHandler(eng, bookingRepo, logger)
	adminHandler := handlers.NewAdminHandler(constraintRepo, logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if rdb != nil {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: db.RedisReadyCheck(rdb)})
	}
	if kafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)

	public := http.NewServeMux()
	public.HandleFunc("/api/v1/public/availability", publicHandler.Availability)
	public.HandleFunc("/api/v1/public/book", publicHandler.Book)
	public.HandleFunc("/api/v1/public/holds", publicHandler.PlaceHold)
	public.HandleFunc("/api/v1/public/holds/release", publicHandler.ReleaseHold)

	var publicRoutes http.Handler = public
	if rdb != nil {
		limiter := httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT_PER_MINUTE", 120),
			time.Minute,
			"rl:public",
		)
		publicRoutes = httpx.Chain(public, limiter.Middleware(logger, true))
	}
	mux.Handle("/api/v1/public/", publicRoutes)

	mux.HandleFunc("/api/v1/automation/book", automationHandler.Book)

	mux.HandleFunc("/api/v1/staff/appointments", staffHandler.List)
	mux.HandleFunc("/api/v1/staff/appointments/reschedule", staffHandler.Reschedule)
	mux.HandleFunc("/api/v1/staff/appointments/cancel", staffHandler.Cancel)
	mux.HandleFunc("/api/v1/staff/appointments/status", staffHandler.Status)

	mux.HandleFunc("/api/v1/admin/organizations", adminHandler.CreateOrganization)
	mux.HandleFunc("/api/v1/admin/organizations/get", adminHandler.GetOrganization)
	mux.HandleFunc("/api/v1/admin/organizations/rules", adminHandler.UpdateBookingRules)
	mux.HandleFunc("/api/v1/admin/opening-hours", adminHandler.UpsertOpeningHours)
	mux.HandleFunc("/api/v1/admin/holidays", adminHandler.Holidays)
	mux.HandleFunc("/api/v1/admin/staff", adminHandler.Staff)
	mux.HandleFunc("/api/v1/admin/staff/schedule", adminHandler.ReplaceSchedule)
	mux.HandleFunc("/api/v1/admin/services", adminHandler.Services)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(30*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, service)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
