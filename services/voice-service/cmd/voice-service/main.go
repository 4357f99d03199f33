package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openpantry/pantryline/libs/config"
	"github.com/openpantry/pantryline/libs/db"
	"github.com/openpantry/pantryline/libs/httpx"
	"github.com/openpantry/pantryline/libs/kafkax"
	otelx "github.com/openpantry/pantryline/libs/otel"
	"github.com/openpantry/pantryline/libs/runtime"
	"github.com/openpantry/pantryline/services/voice-service/internal/availability"
	"github.com/openpantry/pantryline/services/voice-service/internal/dialog"
	"github.com/openpantry/pantryline/services/voice-service/internal/handlers"
	"github.com/openpantry/pantryline/services/voice-service/internal/intent"
	"github.com/openpantry/pantryline/services/voice-service/internal/outbox"
	"github.com/openpantry/pantryline/services/voice-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	config.Load()
	service := config.String("SERVICE_NAME", "voice-service")
	port, err := config.Port("PORT", "8091")
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

	outboxRepo := outbox.NewRepository(pool)
	callers := storage.NewCallerRepository(pool)
	appts := storage.NewAppointmentRepository(pool, outboxRepo)
	sessions := storage.NewSessionRepository(pool, outboxRepo)
	faqs := storage.NewFAQRepository(pool)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	engine := availability.NewEngine(appts, availability.Config{
		OpenMinute:   config.Int("PANTRY_OPEN_MINUTE", 9*60),
		CloseMinute:  config.Int("PANTRY_CLOSE_MINUTE", 17*60),
		SlotDuration: config.Duration("SLOT_DURATION", 30*time.Minute),
		SlotStep:     config.Duration("SLOT_STEP", 0),
		SearchWeeks:  config.Int("SEARCH_WEEKS", 4),
	})

	machine := dialog.NewMachine(callers, appts, sessions, faqs, engine,
		buildClassifier(logger), logger, dialog.Config{
			PantryAddress:  config.String("PANTRY_ADDRESS", "the food pantry"),
			OperatorNumber: config.String("OPERATOR_NUMBER", ""),
			GatherTimeout:  config.Int("GATHER_TIMEOUT_SECONDS", 5),
			StrikeLimit:    config.Int("STRIKE_LIMIT", 2),
		})

	voiceHandler := handlers.NewVoiceHandler(machine, logger, config.String("WEBHOOK_TOKEN", ""))

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/voice/v1/call", voiceHandler.Call)
	mux.HandleFunc("/voice/v1/turn/", voiceHandler.Turn)
	mux.HandleFunc("/voice/v1/status", voiceHandler.Status)

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	var rateLimitMW httpx.Middleware
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, config.String("RATE_LIMIT_FAIL_OPEN", "true") == "true")
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<16))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 10*time.Second)),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "voice")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
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

// buildClassifier picks the richest configured backend: OpenAI, then a
// generic classifier webhook, then keyword matching only.
func buildClassifier(logger *slog.Logger) intent.Classifier {
	if key := config.String("OPENAI_API_KEY", ""); key != "" {
		logger.Info("intent classifier: openai", "model", config.String("OPENAI_MODEL", ""))
		return intent.NewOpenAIClassifier(key, config.String("OPENAI_MODEL", ""))
	}
	if url := config.String("CLASSIFIER_URL", ""); url != "" {
		logger.Info("intent classifier: webhook", "url", url)
		return intent.NewWebhookClassifier(url, config.String("CLASSIFIER_TOKEN", ""))
	}
	logger.Warn("no intent classifier configured; keyword matching only")
	return intent.NewNoopClassifier()
}
