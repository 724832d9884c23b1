package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/averyhale/booking-concierge/internal/calendar"
)

type recordingProvider struct {
	query calendar.SlotQuery
	slots []calendar.SlotWindow
	err   error
}

func (p *recordingProvider) QuerySlots(_ context.Context, q calendar.SlotQuery) ([]calendar.SlotWindow, error) {
	p.query = q
	return p.slots, p.err
}

func (p *recordingProvider) CreateBooking(context.Context, calendar.BookingRequest, string) (*calendar.BookingConfirmation, error) {
	return nil, fmt.Errorf("not used")
}

func TestResolveBuildsLocalizedChips(t *testing.T) {
	p := &recordingProvider{slots: []calendar.SlotWindow{
		{StartISO: "2026-03-02T15:04:00Z", EndISO: "2026-03-02T15:34:00Z"},
	}}
	r := NewSlotResolver(p, nil)
	windowStart := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	chips, err := r.Resolve(context.Background(), 30, "America/New_York", windowStart, windowStart.AddDate(0, 0, 14))

	require.NoError(t, err)
	require.Len(t, chips, 1)
	// 15:04 UTC is 10:04 in New York on that date.
	assert.Equal(t, "Mon Mar 2 at 10:04 AM", chips[0].Label)
	assert.Equal(t, "America/New_York", chips[0].Start.Location().String())

	assert.Equal(t, 30, p.query.DurationMinutes)
	assert.Equal(t, "2026-03-01T00:00:00Z", p.query.StartISO)
	assert.Equal(t, "2026-03-15T00:00:00Z", p.query.EndISO)
	assert.Equal(t, maxCandidateSlots, p.query.MaxCandidates)
}

func TestResolveCapsPresentedSlots(t *testing.T) {
	var windows []calendar.SlotWindow
	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	for i := 0; i < maxCandidateSlots; i++ {
		start := base.Add(time.Duration(i) * time.Hour)
		windows = append(windows, calendar.SlotWindow{
			StartISO: start.Format(time.RFC3339),
			EndISO:   start.Add(30 * time.Minute).Format(time.RFC3339),
		})
	}
	r := NewSlotResolver(&recordingProvider{slots: windows}, nil)

	chips, err := r.Resolve(context.Background(), 30, "UTC", base, base.AddDate(0, 0, 14))

	require.NoError(t, err)
	assert.Len(t, chips, maxPresentedSlots)
}

func TestResolveSkipsUnparseableSlots(t *testing.T) {
	p := &recordingProvider{slots: []calendar.SlotWindow{
		{StartISO: "not-a-timestamp"},
		{StartISO: "2026-03-02T15:04:00Z", EndISO: "2026-03-02T15:34:00Z"},
	}}
	r := NewSlotResolver(p, nil)

	chips, err := r.Resolve(context.Background(), 30, "UTC", time.Now(), time.Now().AddDate(0, 0, 14))

	require.NoError(t, err)
	require.Len(t, chips, 1)
	assert.Equal(t, "Mon Mar 2 at 3:04 PM", chips[0].Label)
}

func TestResolvePropagatesProviderError(t *testing.T) {
	p := &recordingProvider{err: fmt.Errorf("calendar unreachable")}
	r := NewSlotResolver(p, nil)

	chips, err := r.Resolve(context.Background(), 30, "UTC", time.Now(), time.Now().AddDate(0, 0, 14))

	require.Error(t, err)
	assert.Nil(t, chips)
}

func TestLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, location(""))
	assert.Equal(t, time.UTC, location("Not/AZone"))
	loc := location("America/Chicago")
	assert.Equal(t, "America/Chicago", loc.String())
}
