package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/chairtime/chairtime/libs/config"
	"github.com/chairtime/chairtime/libs/db"
	"github.com/chairtime/chairtime/libs/httpx"
	"github.com/chairtime/chairtime/libs/kafkax"
	otelx "github.com/chairtime/chairtime/libs/otel"
	"github.com/chairtime/chairtime/libs/runtime"
	"github.com/chairtime/chairtime/services/booking-service/internal/availability"
	"github.com/chairtime/chairtime/services/booking-service/internal/booking"
	"github.com/chairtime/chairtime/services/booking-service/internal/clock"
	"github.com/chairtime/chairtime/services/booking-service/internal/conflict"
	"github.com/chairtime/chairtime/services/booking-service/internal/handlers"
	"github.com/chairtime/chairtime/services/booking-service/internal/outbox"
	"github.com/chairtime/chairtime/services/booking-service/internal/payments"
	"github.com/chairtime/chairtime/services/booking-service/internal/policy"
	"github.com/chairtime/chairtime/services/booking-service/internal/storage"
	"github.com/chairtime/chairtime/services/booking-service/internal/waitlist"
)

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
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

	clk := clock.NewSystem()
	calendar := storage.NewCalendar(pool)
	waitlistRepo := storage.NewWaitlistRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	policyStore := policy.NewStore(calendar, logger)
	validator := conflict.NewValidator(calendar, clk)
	resolver := availability.NewResolver(calendar, clk)

	var processor payments.Processor = payments.NoopProcessor{}
	if key := config.String("STRIPE_SECRET_KEY", ""); key != "" {
		processor = payments.NewStripeProcessor(key, logger)
	} else {
		logger.Warn("no stripe key configured; deposits disabled")
	}

	waitlistSvc := waitlist.NewService(waitlistRepo, outboxRepo, clk, logger)
	engine := booking.NewEngine(calendar, policyStore, validator, outboxRepo, processor, clk, logger)
	lifecycle := booking.NewLifecycle(calendar, policyStore, validator, outboxRepo, waitlistSvc, processor, clk, logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	bookingHandler := handlers.NewBookingHandler(engine, lifecycle, resolver, policyStore, calendar.BookingRepository, logger)
	waitlistHandler := handlers.NewWaitlistHandler(waitlistSvc, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/slots", bookingHandler.Slots)
	mux.HandleFunc("/api/v1/appointments", bookingHandler.Reserve)
	mux.HandleFunc("/api/v1/appointments/list", bookingHandler.List)
	mux.HandleFunc("/api/v1/appointments/reschedule", bookingHandler.Reschedule)
	mux.HandleFunc("/api/v1/appointments/cancel", bookingHandler.Cancel)
	mux.HandleFunc("/api/v1/waitlist", waitlistHandler.Join)
	mux.HandleFunc("/api/v1/waitlist/leave", waitlistHandler.Leave)

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key", "X-Actor-Id", "X-Actor-Role"},
			MaxAge:         10 * time.Minute,
		}),
	}
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		limiter := httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT_PER_MINUTE", 120), time.Minute, service)
		middlewares = append(middlewares, limiter.Middleware(logger, true))
	} else {
		limiter := httpx.NewRateLimiter(config.Int("RATE_LIMIT_PER_MINUTE", 120), time.Minute)
		middlewares = append(middlewares, limiter.Middleware())
	}

	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
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
