package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/averyhale/booking-concierge/internal/calendar"
)

type bookingProvider struct {
	req calendar.BookingRequest
	key string
	err error
}

func (p *bookingProvider) QuerySlots(context.Context, calendar.SlotQuery) ([]calendar.SlotWindow, error) {
	return nil, nil
}

func (p *bookingProvider) CreateBooking(_ context.Context, req calendar.BookingRequest, key string) (*calendar.BookingConfirmation, error) {
	p.req = req
	p.key = key
	if p.err != nil {
		return nil, p.err
	}
	return &calendar.BookingConfirmation{EventID: "evt_9", MeetURL: "https://meet.example.com/xyz"}, nil
}

func TestBookCommitsEvent(t *testing.T) {
	p := &bookingProvider{}
	tr := NewTransactor(p, nil)
	start := time.Date(2026, time.March, 2, 15, 4, 0, 0, time.UTC)

	conf, err := tr.Book(context.Background(), BookingParams{
		ContextID:       "ctx-1",
		Start:           start,
		DurationMinutes: 45,
		TimeZone:        "America/New_York",
		AttendeeEmail:   "avery@example.com",
		AttendeeName:    "Avery",
	})

	require.NoError(t, err)
	assert.Equal(t, "evt_9", conf.EventID)
	assert.Equal(t, "2026-03-02T15:04:00Z", p.req.StartISO)
	assert.Equal(t, "45-minute meeting", p.req.Summary)
	assert.Equal(t, IdempotencyKey("ctx-1", start), p.key)
}

func TestBookKeepsExplicitSummary(t *testing.T) {
	p := &bookingProvider{}
	tr := NewTransactor(p, nil)

	_, err := tr.Book(context.Background(), BookingParams{
		ContextID:       "ctx-1",
		Start:           time.Now(),
		DurationMinutes: 30,
		AttendeeEmail:   "avery@example.com",
		Summary:         "Portfolio review",
	})

	require.NoError(t, err)
	assert.Equal(t, "Portfolio review", p.req.Summary)
}

func TestBookValidatesParams(t *testing.T) {
	tr := NewTransactor(&bookingProvider{}, nil)

	_, err := tr.Book(context.Background(), BookingParams{Start: time.Now()})
	assert.ErrorContains(t, err, "email")

	_, err = tr.Book(context.Background(), BookingParams{AttendeeEmail: "avery@example.com"})
	assert.ErrorContains(t, err, "start")
}

func TestIdempotencyKeyIsStable(t *testing.T) {
	start := time.Date(2026, time.March, 2, 15, 4, 0, 0, time.UTC)

	key := IdempotencyKey("ctx-1", start)
	assert.Equal(t, key, IdempotencyKey("ctx-1", start))

	// Same instant in another zone derives the same key.
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	assert.Equal(t, key, IdempotencyKey("ctx-1", start.In(ny)))

	assert.NotEqual(t, key, IdempotencyKey("ctx-2", start))
	assert.NotEqual(t, key, IdempotencyKey("ctx-1", start.Add(time.Minute)))
}
