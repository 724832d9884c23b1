package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/averyhale/booking-concierge/internal/calendar"
	"github.com/averyhale/booking-concierge/pkg/logging"
)

// idempotencyNamespace scopes booking idempotency keys. UUIDv5 over
// context ID + slot start makes a duplicated commit for the same choice
// collapse to one provider event.
var idempotencyNamespace = uuid.MustParse("5ba3e8cf-9a14-4fbe-9a6f-27d31c0f83d2")

// BookingParams carries everything the transactor needs to commit one
// calendar event.
type BookingParams struct {
	ContextID       string
	Start           time.Time
	DurationMinutes int
	TimeZone        string
	AttendeeEmail   string
	AttendeeName    string
	Summary         string
	Description     string
}

// Transactor commits a chosen slot as a calendar event. Exactly one
// network call per Book; retries live in the request client beneath the
// provider, and the idempotency key keeps a retried commit single.
type Transactor struct {
	provider calendar.Provider
	logger   *logging.Logger
}

// NewTransactor creates a booking transactor over the calendar provider.
func NewTransactor(provider calendar.Provider, logger *logging.Logger) *Transactor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Transactor{provider: provider, logger: logger}
}

// Book commits the event and returns the provider's confirmation.
func (t *Transactor) Book(ctx context.Context, params BookingParams) (*calendar.BookingConfirmation, error) {
	if params.AttendeeEmail == "" {
		return nil, fmt.Errorf("scheduler: attendee email is required")
	}
	if params.Start.IsZero() {
		return nil, fmt.Errorf("scheduler: slot start is required")
	}
	summary := params.Summary
	if summary == "" {
		summary = fmt.Sprintf("%d-minute meeting", params.DurationMinutes)
	}

	key := IdempotencyKey(params.ContextID, params.Start)
	conf, err := t.provider.CreateBooking(ctx, calendar.BookingRequest{
		StartISO:        params.Start.UTC().Format(time.RFC3339),
		DurationMinutes: params.DurationMinutes,
		TimeZone:        params.TimeZone,
		AttendeeEmail:   params.AttendeeEmail,
		AttendeeName:    params.AttendeeName,
		Summary:         summary,
		Description:     params.Description,
	}, key)
	if err != nil {
		return nil, err
	}

	t.logger.Info("booking committed",
		"event_id", conf.EventID,
		"start", params.Start.UTC().Format(time.RFC3339),
		"duration_minutes", params.DurationMinutes,
	)
	return conf, nil
}

// IdempotencyKey derives a stable key from the context instance and the
// chosen slot start.
func IdempotencyKey(contextID string, start time.Time) string {
	name := contextID + "|" + start.UTC().Format(time.RFC3339)
	return uuid.NewSHA1(idempotencyNamespace, []byte(name)).String()
}
