package main

import (
	"context"
	"encoding/json"
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
	"github.com/openpantry/pantryline/services/notify-service/internal/consumer"
	"github.com/openpantry/pantryline/services/notify-service/internal/inbox"
	"github.com/openpantry/pantryline/services/notify-service/internal/reminders"
	"github.com/openpantry/pantryline/services/notify-service/internal/sms"
	"github.com/openpantry/pantryline/services/notify-service/internal/storage"
	"github.com/robfig/cron/v3"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// appointmentEvent mirrors the payload the voice service publishes for
// booked, cancelled and rescheduled appointments.
type appointmentEvent struct {
	AppointmentID string    `json:"appointment_id"`
	Phone         string    `json:"phone"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Location      string    `json:"location"`
	ReplacedID    string    `json:"replaced_id"`
}

func main() {
	config.Load()
	service := config.String("SERVICE_NAME", "notify-service")
	port, err := config.Port("PORT", "8092")
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

	repo := storage.NewRepository(pool)
	inboxRepo := inbox.NewRepository(pool)
	sender := buildSender(logger)

	// text claims and sends one message. Failures are logged rather than
	// returned to the consumer loop; a dead SMS gateway must not wedge
	// the event stream.
	text := func(ctx context.Context, appointmentID, kind, to, body string) {
		claimed, err := repo.ClaimSend(ctx, appointmentID, kind, to, body, sender.ProviderID())
		if err != nil {
			logger.Error("notification claim failed", "err", err, "appointment_id", appointmentID, "kind", kind)
			return
		}
		if !claimed {
			return
		}
		if err := sender.Send(ctx, to, body); err != nil {
			logger.Error("notification send failed", "err", err, "appointment_id", appointmentID, "kind", kind)
		}
	}

	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "notify-service")
	startConsumer := func(topic string, handler consumer.Handler) {
		if strings.TrimSpace(topic) == "" || strings.TrimSpace(brokers) == "" {
			logger.Warn("consumer disabled", "topic", topic)
			return
		}
		c := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}, handler)
		go c.Run(ctx)
	}

	upsert := func(ctx context.Context, msg kafka.Message) error {
		var evt appointmentEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if evt.AppointmentID == "" || evt.Phone == "" {
			logger.Error("missing required event fields", "topic", msg.Topic)
			return nil
		}
		if evt.ReplacedID != "" {
			if err := repo.DeleteAppointment(ctx, evt.ReplacedID); err != nil {
				return err
			}
		}
		if err := repo.UpsertAppointment(ctx, storage.Reminder{
			AppointmentID: evt.AppointmentID,
			Phone:         evt.Phone,
			Start:         evt.Start,
			End:           evt.End,
			Location:      evt.Location,
		}); err != nil {
			return err
		}
		body := "You're booked for a food pickup on " + evt.Start.UTC().Format("Monday, January 2") +
			" at " + evt.Start.UTC().Format("3:04 PM") + ", at " + evt.Location + "."
		text(ctx, evt.AppointmentID, "confirmation", evt.Phone, body)
		return nil
	}
	remove := func(ctx context.Context, msg kafka.Message) error {
		var evt appointmentEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if evt.AppointmentID == "" {
			return nil
		}
		if err := repo.DeleteAppointment(ctx, evt.AppointmentID); err != nil {
			return err
		}
		if evt.Phone != "" {
			body := "Your food pickup on " + evt.Start.UTC().Format("Monday, January 2") +
				" at " + evt.Start.UTC().Format("3:04 PM") + " is cancelled. Call us any time to rebook."
			text(ctx, evt.AppointmentID, "cancellation", evt.Phone, body)
		}
		return nil
	}

	startConsumer(config.String("TOPIC_BOOKED", "voice.appointment.booked.v1"), upsert)
	startConsumer(config.String("TOPIC_RESCHEDULED", "voice.appointment.rescheduled.v1"), upsert)
	startConsumer(config.String("TOPIC_CANCELLED", "voice.appointment.cancelled.v1"), remove)

	if alertTo := config.String("OPERATOR_ALERT_NUMBER", ""); alertTo != "" {
		startConsumer(config.String("TOPIC_FORWARDED", "voice.call.forwarded.v1"), func(ctx context.Context, msg kafka.Message) error {
			var evt struct {
				Phone  string `json:"phone"`
				Reason string `json:"reason"`
			}
			if err := json.Unmarshal(msg.Value, &evt); err != nil {
				logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			return sender.Send(ctx, alertTo, "Pantry line transferred a call from "+evt.Phone+" ("+evt.Reason+").")
		})
	}

	job := reminders.NewJob(repo, sender, logger, reminders.Config{
		Lead:   config.Duration("REMINDER_LEAD", 24*time.Hour),
		Window: config.Duration("REMINDER_WINDOW", 5*time.Minute),
	})
	sched := cron.New()
	if _, err := sched.AddFunc(config.String("REMINDER_CRON", "@every 5m"), func() {
		job.RunOnce(ctx, time.Now())
	}); err != nil {
		logger.Error("cron setup failed", "err", err)
		panic(err)
	}
	sched.Start()
	defer sched.Stop()

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notify")
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

func buildSender(logger *slog.Logger) sms.Sender {
	url := config.String("SMS_WEBHOOK_URL", "")
	if url == "" {
		logger.Warn("sms gateway not configured; texts are dropped")
		return sms.NewNoopSender()
	}
	return sms.NewWebhookSender(url, config.String("SMS_WEBHOOK_TOKEN", ""), config.String("SMS_FROM_NUMBER", ""))
}
