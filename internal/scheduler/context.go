// Package scheduler implements the conversational booking negotiator:
// a dialogue state machine that turns chat turns into a confirmed
// calendar booking, backed by a slot resolver and a booking transactor.
package scheduler

import (
	"time"

	"github.com/google/uuid"
)

// State represents the dialogue's position in the booking flow.
type State string

const (
	// StateIdle indicates a fresh context awaiting the first turn.
	StateIdle State = "IDLE"
	// StateAskDuration waits for the meeting length.
	StateAskDuration State = "ASK_DURATION"
	// StateAskWindow waits for scheduling preferences before the search
	// window is fixed.
	StateAskWindow State = "ASK_WINDOW"
	// StateConfirmTZ waits for the user to confirm the timezone slots
	// will be shown in.
	StateConfirmTZ State = "CONFIRM_TZ"
	// StateFetchSlots queries the calendar provider for candidates.
	StateFetchSlots State = "FETCH_SLOTS"
	// StatePresentSlots waits for the user to pick one of the shown slots.
	StatePresentSlots State = "PRESENT_SLOTS"
	// StateAskEmail waits for the attendee's email address.
	StateAskEmail State = "ASK_EMAIL"
	// StateConfirmSlot waits for the final yes/no before booking.
	StateConfirmSlot State = "CONFIRM_SLOT"
	// StateBooking commits the calendar event.
	StateBooking State = "BOOKING"
	// StateDone indicates a completed booking; the next turn starts over.
	StateDone State = "DONE"
)

// Intent is the booking intention detected by the upstream classifier.
type Intent string

const (
	IntentBook       Intent = "BOOK"
	IntentReschedule Intent = "RESCHEDULE"
	IntentCancel     Intent = "CANCEL"
)

// ExpectedInput tells the chat front end what kind of reply the next
// turn expects, so it can render the matching input affordance.
type ExpectedInput string

const (
	ExpectDuration     ExpectedInput = "duration"
	ExpectWindow       ExpectedInput = "window"
	ExpectConfirmation ExpectedInput = "confirmation"
	ExpectSlotChoice   ExpectedInput = "slot_choice"
	ExpectEmail        ExpectedInput = "email"
	ExpectAnything     ExpectedInput = "anything"
)

// SlotChip is one user-facing slot choice: a timezone-localized label and
// the instant it stands for. Chips live for one presentation cycle and
// are never persisted beyond the context.
type SlotChip struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
}

// BookingContext holds one conversation's negotiated booking state.
// It is created in IDLE, mutated exactly once per turn, and terminates
// at DONE.
type BookingContext struct {
	ID     string `json:"id"`
	State  State  `json:"state"`
	Intent Intent `json:"intent"`

	DurationMinutes int       `json:"duration_minutes"`
	TimeZone        string    `json:"time_zone"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
	// TZRejected records that the user declined the proposed timezone;
	// the flow keeps the zone but acknowledges the rejection.
	TZRejected bool `json:"tz_rejected,omitempty"`

	// CandidateSlots is non-empty only between a fetch and the next
	// booking or re-fetch.
	CandidateSlots []SlotChip `json:"candidate_slots,omitempty"`
	// ChosenSlot is always an element of the most recent CandidateSlots.
	ChosenSlot *SlotChip `json:"chosen_slot,omitempty"`

	AttendeeEmail string `json:"attendee_email,omitempty"`
	AttendeeName  string `json:"attendee_name,omitempty"`
	Summary       string `json:"summary,omitempty"`
	Description   string `json:"description,omitempty"`

	// BookedEventID is set once a booking commit succeeded; it guards
	// against a second commit for the same context instance.
	BookedEventID string `json:"booked_event_id,omitempty"`
	MeetURL       string `json:"meet_url,omitempty"`

	// LastError holds the most recent recoverable error message.
	LastError string `json:"last_error,omitempty"`
}

// NewContext creates a fresh BookingContext in IDLE for the given intent
// and session-resolved timezone.
func NewContext(intent Intent, timeZone string) *BookingContext {
	if intent == "" {
		intent = IntentBook
	}
	if timeZone == "" {
		timeZone = "UTC"
	}
	return &BookingContext{
		ID:       uuid.New().String(),
		State:    StateIdle,
		Intent:   intent,
		TimeZone: timeZone,
	}
}

// ConversationTurn is the output of one state-machine step. It is built
// fresh each step and never mutated after emission.
type ConversationTurn struct {
	Reply   string          `json:"reply"`
	Chips   []string        `json:"chips,omitempty"`
	Expect  ExpectedInput   `json:"expect"`
	Context *BookingContext `json:"-"`
}

// chipLabels renders the current candidate slots as chip labels.
func chipLabels(slots []SlotChip) []string {
	if len(slots) == 0 {
		return nil
	}
	labels := make([]string, len(slots))
	for i, s := range slots {
		labels[i] = s.Label
	}
	return labels
}
