package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (production-style: event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types emitted by the voice service. The notify service consumes
// the booked event to schedule confirmation texts.
const (
	EventAppointmentBooked      = "voice.appointment.booked.v1"
	EventAppointmentCancelled   = "voice.appointment.cancelled.v1"
	EventAppointmentRescheduled = "voice.appointment.rescheduled.v1"
	EventCallForwarded          = "voice.call.forwarded.v1"
	EventCallEnded              = "voice.call.ended.v1"
)
