// Package reminders texts callers the day before their pickup. The job runs
// on a fixed cadence and each run scans the slice of calendar exactly one
// cadence wide, one lead time ahead; the notification log keeps overlapping
// runs from double-texting.
package reminders

import (
	"context"
	"log/slog"
	"time"

	"github.com/openpantry/pantryline/services/notify-service/internal/sms"
	"github.com/openpantry/pantryline/services/notify-service/internal/storage"
)

type Store interface {
	DueBetween(ctx context.Context, from, to time.Time) ([]storage.Reminder, error)
	ClaimSend(ctx context.Context, appointmentID, kind, recipient, body, provider string) (bool, error)
}

type Config struct {
	Lead   time.Duration // how far before the pickup the text goes out
	Window time.Duration // scan width; must match the run cadence
}

type Job struct {
	store  Store
	sender sms.Sender
	logger *slog.Logger
	lead   time.Duration
	window time.Duration
}

func NewJob(store Store, sender sms.Sender, logger *slog.Logger, cfg Config) *Job {
	if cfg.Lead <= 0 {
		cfg.Lead = 24 * time.Hour
	}
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}
	return &Job{
		store:  store,
		sender: sender,
		logger: logger,
		lead:   cfg.Lead,
		window: cfg.Window,
	}
}

// RunOnce scans [now+lead, now+lead+window) and texts each pickup in it.
// A failed send is logged and skipped; the rest of the batch still goes out.
// Returns the number of texts handed to the sender.
func (j *Job) RunOnce(ctx context.Context, now time.Time) int {
	from := now.UTC().Add(j.lead)
	due, err := j.store.DueBetween(ctx, from, from.Add(j.window))
	if err != nil {
		j.logger.Error("reminder scan failed", "err", err)
		return 0
	}

	sent := 0
	for _, rem := range due {
		body := "Reminder: your food pickup is tomorrow at " + rem.Start.UTC().Format("3:04 PM") +
			" at " + rem.Location + ". Call us if you need to change it."
		claimed, err := j.store.ClaimSend(ctx, rem.AppointmentID, "reminder", rem.Phone, body, j.sender.ProviderID())
		if err != nil {
			j.logger.Error("reminder claim failed", "err", err, "appointment_id", rem.AppointmentID)
			continue
		}
		if !claimed {
			continue
		}
		if err := j.sender.Send(ctx, rem.Phone, body); err != nil {
			j.logger.Error("reminder send failed", "err", err, "appointment_id", rem.AppointmentID)
			continue
		}
		sent++
	}
	if sent > 0 {
		j.logger.Info("reminders sent", "count", sent)
	}
	return sent
}
