package scheduler

import (
	"fmt"
	"strings"
	"time"
)

const (
	rejectedSlotPrefix = "No problem, let's look at the times again."
	slotTakenPrefix    = "I'm sorry, that time was just taken."
	fetchFailedReply   = "I'm having trouble reaching the calendar right now. Say \"yes\" and I'll try again."
	noSlotsReply       = "I couldn't find any open times in the next two weeks. Send any message and I'll check again."
	bookingRetryReply  = "Something went wrong while booking. Should I try again?"
	bookingFatalReply  = "I'm sorry, I wasn't able to complete the booking."
	startOverReply     = "Let's start over. When you're ready, tell me you'd like to book a time."
)

func askDurationReply(intent Intent) string {
	switch intent {
	case IntentReschedule:
		return "Sure, let's find a new time. How long should the meeting be, in minutes?"
	case IntentCancel:
		return "I can set up a replacement time. How long should the meeting be, in minutes?"
	default:
		return "Happy to set that up! How long should the meeting be, in minutes?"
	}
}

func askWindowReply(durationMinutes int) string {
	return fmt.Sprintf("Got it, %d minutes. Any days or times that work best for you?", durationMinutes)
}

func confirmTZReply(timeZone string) string {
	return fmt.Sprintf("I'll show times in %s. Does that work?", timeZone)
}

func tzRejectedReply(timeZone string) string {
	return fmt.Sprintf("Changing the timezone isn't supported here yet, so I'll keep showing times in %s. Say \"yes\" to see them.", timeZone)
}

func presentSlotsReply(slots []SlotChip) string {
	var sb strings.Builder
	sb.WriteString("Here are the times I found:\n\n")
	sb.WriteString(numberedSlotList(slots))
	sb.WriteString("\nReply with the number or the time you'd like.")
	return sb.String()
}

func slotsReprompt(slots []SlotChip) string {
	var sb strings.Builder
	sb.WriteString("I didn't catch that. These times are available:\n\n")
	sb.WriteString(numberedSlotList(slots))
	sb.WriteString("\nReply with the number or the time you'd like.")
	return sb.String()
}

func askEmailReply(slotLabel string) string {
	return fmt.Sprintf("Great choice — %s. What email address should the invite go to?", slotLabel)
}

func confirmSlotReply(slotLabel, email string) string {
	return fmt.Sprintf("To confirm: %s, invite sent to %s. Book it?", slotLabel, email)
}

func bookedReply(slotLabel, meetURL string) string {
	return fmt.Sprintf("You're booked for %s! Join here: %s", slotLabel, meetURL)
}

func doneReply(meetURL string) string {
	if meetURL != "" {
		return fmt.Sprintf("You're all set — the meeting link is %s. Is there anything else I can help with?", meetURL)
	}
	return "You're all set. Is there anything else I can help with?"
}

func lockedOutReply(remaining time.Duration) string {
	minutes := int(remaining.Round(time.Minute).Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("There have been too many booking attempts for this address. Please try again in about %d minutes.", minutes)
}

// joinReplies concatenates non-empty reply fragments with a blank line.
func joinReplies(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}
