package scheduler

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/averyhale/booking-concierge/internal/abuse"
	"github.com/averyhale/booking-concierge/internal/calendar"
	"github.com/averyhale/booking-concierge/internal/httpclient"
	"github.com/averyhale/booking-concierge/internal/observability/metrics"
	"github.com/averyhale/booking-concierge/pkg/logging"
)

const (
	// defaultDurationMinutes is applied when the user's answer doesn't
	// match an offered duration. A policy, not an error.
	defaultDurationMinutes = 30
	// lookaheadDays is the fixed slot-search window from "now".
	lookaheadDays = 14
)

var durationChoices = map[int]bool{15: true, 30: true, 45: true}

// effect is the impure work a pure transition asks the machine to run.
type effect int

const (
	effectNone effect = iota
	effectFetchSlots
	effectBook
)

// Machine orchestrates the booking dialogue. Each Step consumes one user
// utterance, mutates the context once, and emits one reply. Network I/O
// happens only in the slot-fetch and booking effects.
type Machine struct {
	resolver   *SlotResolver
	transactor *Transactor
	guard      abuse.Guard
	metrics    *metrics.BookingMetrics
	logger     *logging.Logger
	now        func() time.Time
	lookahead  int
}

// NewMachine creates a dialogue state machine. The guard and metrics are
// optional.
func NewMachine(resolver *SlotResolver, transactor *Transactor, guard abuse.Guard, m *metrics.BookingMetrics, logger *logging.Logger) *Machine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Machine{
		resolver:   resolver,
		transactor: transactor,
		guard:      guard,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
		lookahead:  lookaheadDays,
	}
}

// SetLookaheadDays overrides the fixed slot-search window. Zero or
// negative values keep the default.
func (m *Machine) SetLookaheadDays(days int) {
	if days > 0 {
		m.lookahead = days
	}
}

// Step advances the dialogue by one turn. The pure transition decides the
// next state and any effect; effects run afterwards so failures can be
// folded back into a user-visible recovery instead of propagating.
func (m *Machine) Step(ctx context.Context, input string, bc *BookingContext) ConversationTurn {
	m.metrics.ObserveTurn(string(bc.State))

	turn, eff := m.decide(input, bc)
	switch eff {
	case effectFetchSlots:
		turn = m.fetchSlots(ctx, bc, turn.Reply)
	case effectBook:
		turn = m.book(ctx, bc)
	}
	if turn.Context == nil {
		turn.Context = bc
	}
	return turn
}

// decide is the pure transition: no I/O, one context mutation per turn.
func (m *Machine) decide(input string, bc *BookingContext) (ConversationTurn, effect) {
	text := strings.ToLower(strings.TrimSpace(input))

	switch bc.State {
	case StateIdle:
		bc.State = StateAskDuration
		return ConversationTurn{
			Reply:  askDurationReply(bc.Intent),
			Chips:  []string{"15", "30", "45"},
			Expect: ExpectDuration,
		}, effectNone

	case StateAskDuration:
		bc.DurationMinutes = parseDuration(text)
		bc.State = StateAskWindow
		return ConversationTurn{
			Reply:  askWindowReply(bc.DurationMinutes),
			Expect: ExpectWindow,
		}, effectNone

	case StateAskWindow:
		// Day/time preferences in the utterance are not parsed; the
		// search window is a fixed lookahead from now.
		now := m.now()
		bc.WindowStart = now
		bc.WindowEnd = now.AddDate(0, 0, m.lookahead)
		bc.State = StateConfirmTZ
		return ConversationTurn{
			Reply:  confirmTZReply(bc.TimeZone),
			Chips:  []string{"Yes", "No"},
			Expect: ExpectConfirmation,
		}, effectNone

	case StateConfirmTZ:
		if isAffirmative(text) {
			bc.State = StateFetchSlots
			bc.LastError = ""
			return ConversationTurn{}, effectFetchSlots
		}
		if isNegative(text) {
			// The re-ask flow for a different zone is not implemented;
			// acknowledge and keep the same zone.
			bc.TZRejected = true
			return ConversationTurn{
				Reply:  tzRejectedReply(bc.TimeZone),
				Chips:  []string{"Yes"},
				Expect: ExpectConfirmation,
			}, effectNone
		}
		return ConversationTurn{
			Reply:  confirmTZReply(bc.TimeZone),
			Chips:  []string{"Yes", "No"},
			Expect: ExpectConfirmation,
		}, effectNone

	case StateFetchSlots:
		// A context persisted mid-fetch resumes the search on any input.
		return ConversationTurn{}, effectFetchSlots

	case StatePresentSlots:
		if len(bc.CandidateSlots) == 0 {
			// Nothing on offer; any input triggers a fresh search.
			bc.State = StateFetchSlots
			return ConversationTurn{}, effectFetchSlots
		}
		if chip := matchSlot(text, bc.CandidateSlots); chip != nil {
			bc.ChosenSlot = chip
			bc.State = StateAskEmail
			return ConversationTurn{
				Reply:  askEmailReply(chip.Label),
				Expect: ExpectEmail,
			}, effectNone
		}
		return ConversationTurn{
			Reply:  slotsReprompt(bc.CandidateSlots),
			Chips:  chipLabels(bc.CandidateSlots),
			Expect: ExpectSlotChoice,
		}, effectNone

	case StateAskEmail:
		if bc.ChosenSlot == nil {
			bc.State = StateFetchSlots
			return ConversationTurn{}, effectFetchSlots
		}
		// Format validation is deferred to the calendar provider;
		// the raw value passes through.
		bc.AttendeeEmail = strings.TrimSpace(input)
		bc.State = StateConfirmSlot
		return ConversationTurn{
			Reply:  confirmSlotReply(bc.ChosenSlot.Label, bc.AttendeeEmail),
			Chips:  []string{"Yes", "No"},
			Expect: ExpectConfirmation,
		}, effectNone

	case StateConfirmSlot:
		if bc.ChosenSlot == nil {
			bc.State = StateFetchSlots
			return ConversationTurn{}, effectFetchSlots
		}
		if isAffirmative(text) {
			bc.State = StateBooking
			return ConversationTurn{}, effectBook
		}
		if isNegative(text) {
			bc.ChosenSlot = nil
			bc.State = StateFetchSlots
			return ConversationTurn{Reply: rejectedSlotPrefix}, effectFetchSlots
		}
		return ConversationTurn{
			Reply:  confirmSlotReply(bc.ChosenSlot.Label, bc.AttendeeEmail),
			Chips:  []string{"Yes", "No"},
			Expect: ExpectConfirmation,
		}, effectNone

	case StateBooking:
		// Only reachable if a prior turn failed mid-commit; treat as a
		// fresh confirmation rather than staying wedged here.
		if bc.ChosenSlot == nil {
			bc.State = StateFetchSlots
			return ConversationTurn{}, effectFetchSlots
		}
		bc.State = StateConfirmSlot
		return ConversationTurn{
			Reply:  confirmSlotReply(bc.ChosenSlot.Label, bc.AttendeeEmail),
			Chips:  []string{"Yes", "No"},
			Expect: ExpectConfirmation,
		}, effectNone

	case StateDone:
		// The completed context is terminal; a fresh one starts over.
		fresh := NewContext(IntentBook, bc.TimeZone)
		return ConversationTurn{
			Reply:   doneReply(bc.MeetURL),
			Expect:  ExpectAnything,
			Context: fresh,
		}, effectNone
	}

	// Unknown state: reset rather than crash.
	m.logger.Error("unknown dialogue state", "state", bc.State, "context_id", bc.ID)
	fresh := NewContext(IntentBook, bc.TimeZone)
	return ConversationTurn{
		Reply:   startOverReply,
		Expect:  ExpectAnything,
		Context: fresh,
	}, effectNone
}

// fetchSlots runs the slot-resolution effect. prefix carries any reply
// text decided before the fetch (e.g. the rejected-slot acknowledgement).
func (m *Machine) fetchSlots(ctx context.Context, bc *BookingContext, prefix string) ConversationTurn {
	started := m.now()
	chips, err := m.resolver.Resolve(ctx, bc.DurationMinutes, bc.TimeZone, bc.WindowStart, bc.WindowEnd)
	m.metrics.ObserveResolveLatency(m.now().Sub(started).Seconds())
	if err != nil {
		m.metrics.ObserveResolverFailure()
		m.logger.Warn("slot resolution failed",
			"context_id", bc.ID,
			"error_class", errorClass(err),
			"error", err,
		)
		bc.LastError = "slot fetch failed"
		bc.CandidateSlots = nil
		bc.State = StateConfirmTZ
		return ConversationTurn{
			Reply:  fetchFailedReply,
			Chips:  []string{"Yes"},
			Expect: ExpectConfirmation,
		}
	}

	bc.CandidateSlots = chips
	bc.ChosenSlot = nil
	bc.LastError = ""
	bc.State = StatePresentSlots
	if len(chips) == 0 {
		return ConversationTurn{
			Reply:  noSlotsReply,
			Expect: ExpectSlotChoice,
		}
	}
	return ConversationTurn{
		Reply:  joinReplies(prefix, presentSlotsReply(chips)),
		Chips:  chipLabels(chips),
		Expect: ExpectSlotChoice,
	}
}

// book runs the booking effect and folds every failure class into a
// recoverable dialogue path. The context never stays in BOOKING.
func (m *Machine) book(ctx context.Context, bc *BookingContext) ConversationTurn {
	// A context that already booked never books again.
	if bc.BookedEventID != "" {
		bc.State = StateDone
		return ConversationTurn{
			Reply:  doneReply(bc.MeetURL),
			Expect: ExpectAnything,
		}
	}

	if limited, remaining := m.isLimited(ctx, bc.AttendeeEmail); limited {
		m.metrics.ObserveLockout()
		bc.State = StateConfirmSlot
		return ConversationTurn{
			Reply:  lockedOutReply(remaining),
			Expect: ExpectConfirmation,
		}
	}

	conf, err := m.transactor.Book(ctx, BookingParams{
		ContextID:       bc.ID,
		Start:           bc.ChosenSlot.Start,
		DurationMinutes: bc.DurationMinutes,
		TimeZone:        bc.TimeZone,
		AttendeeEmail:   bc.AttendeeEmail,
		AttendeeName:    bc.AttendeeName,
		Summary:         bc.Summary,
		Description:     bc.Description,
	})
	if err != nil {
		return m.bookingFailed(ctx, bc, err)
	}

	if m.guard != nil {
		_ = m.guard.Clear(ctx, bc.AttendeeEmail)
	}
	m.metrics.ObserveBooking("success")
	bc.BookedEventID = conf.EventID
	bc.MeetURL = conf.MeetURL
	bc.CandidateSlots = nil
	bc.LastError = ""
	bc.State = StateDone
	return ConversationTurn{
		Reply:  bookedReply(bc.ChosenSlot.Label, conf.MeetURL),
		Expect: ExpectAnything,
	}
}

func (m *Machine) bookingFailed(ctx context.Context, bc *BookingContext, err error) ConversationTurn {
	class := errorClass(err)
	m.metrics.ObserveTransactorFailure(class)
	m.logger.Warn("booking failed",
		"context_id", bc.ID,
		"identifier", bc.AttendeeEmail,
		"error_class", class,
		"error", err,
	)
	if m.guard != nil {
		_ = m.guard.RecordFailure(ctx, bc.AttendeeEmail)
	}
	bc.LastError = class

	switch class {
	case "conflict":
		// The slot was taken between fetch and commit; re-enter the
		// search rather than failing terminally.
		bc.ChosenSlot = nil
		return m.fetchSlots(ctx, bc, slotTakenPrefix)
	case "transient":
		bc.State = StateConfirmSlot
		return ConversationTurn{
			Reply:  bookingRetryReply,
			Chips:  []string{"Yes", "No"},
			Expect: ExpectConfirmation,
		}
	default:
		// Fatal provider/auth error: generic apology, no retry chip,
		// back to a safe prior state.
		bc.ChosenSlot = nil
		if len(bc.CandidateSlots) > 0 {
			bc.State = StatePresentSlots
			return ConversationTurn{
				Reply:  joinReplies(bookingFatalReply, slotsReprompt(bc.CandidateSlots)),
				Chips:  chipLabels(bc.CandidateSlots),
				Expect: ExpectSlotChoice,
			}
		}
		bc.State = StateIdle
		return ConversationTurn{
			Reply:  bookingFatalReply,
			Expect: ExpectAnything,
		}
	}
}

func (m *Machine) isLimited(ctx context.Context, identifier string) (bool, time.Duration) {
	if m.guard == nil || identifier == "" {
		return false, 0
	}
	limited, err := m.guard.IsLimited(ctx, identifier)
	if err != nil {
		// A broken guard store must not block bookings.
		m.logger.Error("abuse guard check failed", "error", err)
		return false, 0
	}
	if !limited {
		return false, 0
	}
	remaining, _ := m.guard.RemainingLockout(ctx, identifier)
	return true, remaining
}

// errorClass maps provider errors onto the dialogue's failure taxonomy.
func errorClass(err error) string {
	if errors.Is(err, calendar.ErrSlotConflict) {
		return "conflict"
	}
	var apiErr *httpclient.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Retryable() {
			return "transient"
		}
		return "fatal"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "transient"
	}
	return "transient"
}

var digitsRE = regexp.MustCompile(`\d+`)

// parseDuration extracts the first digit run; anything outside the
// offered choices defaults to 30 minutes.
func parseDuration(text string) int {
	match := digitsRE.FindString(text)
	if match == "" {
		return defaultDurationMinutes
	}
	n, err := strconv.Atoi(match)
	if err != nil || !durationChoices[n] {
		return defaultDurationMinutes
	}
	return n
}

var affirmatives = []string{"yes", "yep", "yeah", "sure", "ok", "okay", "confirm", "correct", "sounds good", "that works", "book it"}
var negatives = []string{"no", "nope", "nah", "cancel", "different", "change"}

func isAffirmative(text string) bool {
	if text == "y" {
		return true
	}
	for _, a := range affirmatives {
		if strings.Contains(text, a) {
			return true
		}
	}
	return false
}

func isNegative(text string) bool {
	if text == "n" {
		return true
	}
	for _, n := range negatives {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

var optionRE = regexp.MustCompile(`^(?:option|number|#)?\s*(\d{1,2})$`)

// matchSlot matches user text against the presented chips: a 1-based
// index ("2", "option 2"), the exact label, or a label substring. Only a
// previously shown chip can ever match.
func matchSlot(text string, slots []SlotChip) *SlotChip {
	if text == "" || len(slots) == 0 {
		return nil
	}
	if m := optionRE.FindStringSubmatch(text); len(m) > 1 {
		if idx, err := strconv.Atoi(m[1]); err == nil && idx >= 1 && idx <= len(slots) {
			return &slots[idx-1]
		}
	}
	for i := range slots {
		if strings.EqualFold(slots[i].Label, text) {
			return &slots[i]
		}
	}
	// Substring matching needs enough text to be unambiguous ("mar 2",
	// "3:04 pm"), not a stray short token.
	if len(text) >= 4 {
		for i := range slots {
			if strings.Contains(strings.ToLower(slots[i].Label), text) {
				return &slots[i]
			}
		}
	}
	return nil
}
