package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/averyhale/booking-concierge/internal/calendar"
	"github.com/averyhale/booking-concierge/pkg/logging"
)

const (
	// maxCandidateSlots is how many candidates are requested from the
	// provider per fetch.
	maxCandidateSlots = 24
	// maxPresentedSlots caps how many chips one turn shows.
	maxPresentedSlots = 12
)

// SlotResolver turns negotiated booking parameters into a bounded list of
// human-labeled candidate slots. It makes exactly one provider call per
// Resolve and propagates provider errors unchanged; the state machine
// decides the user-facing behavior.
type SlotResolver struct {
	provider      calendar.Provider
	maxCandidates int
	maxPresented  int
	logger        *logging.Logger
}

// NewSlotResolver creates a resolver over the calendar provider.
func NewSlotResolver(provider calendar.Provider, logger *logging.Logger) *SlotResolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &SlotResolver{
		provider:      provider,
		maxCandidates: maxCandidateSlots,
		maxPresented:  maxPresentedSlots,
		logger:        logger,
	}
}

// SetLimits overrides the candidate and presentation caps. Zero or
// negative values keep the defaults.
func (r *SlotResolver) SetLimits(maxCandidates, maxPresented int) {
	if maxCandidates > 0 {
		r.maxCandidates = maxCandidates
	}
	if maxPresented > 0 {
		r.maxPresented = maxPresented
	}
}

// Resolve fetches open slots for the window and returns at most 12 chips,
// each labeled in the query timezone.
func (r *SlotResolver) Resolve(ctx context.Context, durationMinutes int, timeZone string, windowStart, windowEnd time.Time) ([]SlotChip, error) {
	windows, err := r.provider.QuerySlots(ctx, calendar.SlotQuery{
		DurationMinutes: durationMinutes,
		StartISO:        windowStart.UTC().Format(time.RFC3339),
		EndISO:          windowEnd.UTC().Format(time.RFC3339),
		TimeZone:        timeZone,
		MaxCandidates:   r.maxCandidates,
	})
	if err != nil {
		return nil, err
	}

	loc := location(timeZone)
	chips := make([]SlotChip, 0, r.maxPresented)
	for _, w := range windows {
		start, err := time.Parse(time.RFC3339, w.StartISO)
		if err != nil {
			r.logger.Warn("skipping unparseable slot", "start", w.StartISO, "error", err)
			continue
		}
		local := start.In(loc)
		chips = append(chips, SlotChip{
			Label: formatSlotLabel(local),
			Start: local,
		})
		if len(chips) >= r.maxPresented {
			break
		}
	}

	r.logger.Info("slots resolved",
		"fetched", len(windows),
		"presented", len(chips),
		"time_zone", timeZone,
	)
	return chips, nil
}

// formatSlotLabel renders a slot start like "Mon Jan 2 at 3:04 PM".
func formatSlotLabel(t time.Time) string {
	return t.Format("Mon Jan 2 at 3:04 PM")
}

// location resolves a timezone name, falling back to UTC when it is
// empty or invalid.
func location(timeZone string) *time.Location {
	if timeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// numberedSlotList renders chips as a numbered list for the reply body.
func numberedSlotList(slots []SlotChip) string {
	out := ""
	for i, s := range slots {
		out += fmt.Sprintf("%d. %s\n", i+1, s.Label)
	}
	return out
}
