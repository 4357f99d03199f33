package dialog

import (
	"context"
	"time"

	"github.com/openpantry/pantryline/services/voice-service/internal/model"
)

// The machine talks to storage through these interfaces so the conversation
// logic can be exercised against in-memory fakes.

type CallerStore interface {
	FindByPhone(ctx context.Context, phone string) (model.CallerProfile, error)
	Create(ctx context.Context, c model.CallerProfile) (model.CallerProfile, error)
	Update(ctx context.Context, c model.CallerProfile) (model.CallerProfile, error)
}

type AppointmentStore interface {
	ListByDate(ctx context.Context, day time.Time) ([]model.Appointment, error)
	ListUpcomingByCaller(ctx context.Context, callerID string, now time.Time) ([]model.Appointment, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	Book(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	Cancel(ctx context.Context, id string) (model.Appointment, error)
	Replace(ctx context.Context, oldID string, appt model.Appointment) (model.Appointment, error)
}

type SessionStore interface {
	Start(ctx context.Context, phone, language string) (*model.CallSession, error)
	Latest(ctx context.Context, phone string) (*model.CallSession, error)
	Save(ctx context.Context, s *model.CallSession) error
}

type FAQStore interface {
	List(ctx context.Context) ([]model.FAQEntry, error)
	Get(ctx context.Context, id string) (model.FAQEntry, error)
}
