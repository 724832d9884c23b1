package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/averyhale/booking-concierge/pkg/logging"
)

// Confirmation carries the details of a committed booking for the
// attendee's confirmation email.
type Confirmation struct {
	AttendeeEmail   string
	AttendeeName    string
	Summary         string
	Start           time.Time
	DurationMinutes int
	TimeZone        string
	MeetURL         string
	HTMLLink        string
}

// Service sends attendee-facing booking notifications. A nil sender
// disables email without changing callers.
type Service struct {
	email  EmailSender
	logger *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, logger: logger}
}

// SendBookingConfirmation emails the attendee after a successful booking.
// Failures are logged and returned; the booking itself is already
// committed, so callers treat this as best-effort.
func (s *Service) SendBookingConfirmation(ctx context.Context, conf Confirmation) error {
	if s.email == nil {
		s.logger.Debug("notify: email sender not configured, skipping confirmation")
		return nil
	}
	if conf.AttendeeEmail == "" {
		return fmt.Errorf("notify: attendee email is required")
	}

	summary := conf.Summary
	if summary == "" {
		summary = fmt.Sprintf("%d-minute meeting", conf.DurationMinutes)
	}

	when := conf.Start.Format("Monday, January 2 at 3:04 PM")
	timezoneInfo := ""
	if conf.TimeZone != "" {
		timezoneInfo = fmt.Sprintf(" (%s)", conf.TimeZone)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "You're confirmed for %s on %s%s.\n", summary, when, timezoneInfo)
	fmt.Fprintf(&body, "Duration: %d minutes\n", conf.DurationMinutes)
	if conf.MeetURL != "" {
		fmt.Fprintf(&body, "\nJoin the meeting: %s\n", conf.MeetURL)
	}
	if conf.HTMLLink != "" {
		fmt.Fprintf(&body, "View in your calendar: %s\n", conf.HTMLLink)
	}

	msg := EmailMessage{
		To:      conf.AttendeeEmail,
		ToName:  conf.AttendeeName,
		Subject: fmt.Sprintf("Confirmed: %s on %s", summary, when),
		Body:    body.String(),
		HTML:    confirmationHTML(summary, when, timezoneInfo, conf),
	}

	if err := s.email.Send(ctx, msg); err != nil {
		s.logger.Error("notify: booking confirmation failed", "error", err, "to", conf.AttendeeEmail)
		return fmt.Errorf("notify: booking confirmation: %w", err)
	}
	s.logger.Info("booking confirmation sent", "to", conf.AttendeeEmail, "start", conf.Start.Format(time.RFC3339))
	return nil
}

func confirmationHTML(summary, when, timezoneInfo string, conf Confirmation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<p>You're confirmed for <strong>%s</strong> on %s%s.</p>",
		html.EscapeString(summary), html.EscapeString(when), html.EscapeString(timezoneInfo))
	fmt.Fprintf(&sb, "<p>Duration: %d minutes</p>", conf.DurationMinutes)
	if conf.MeetURL != "" {
		fmt.Fprintf(&sb, `<p><a href="%s">Join the meeting</a></p>`, html.EscapeString(conf.MeetURL))
	}
	if conf.HTMLLink != "" {
		fmt.Fprintf(&sb, `<p><a href="%s">View in your calendar</a></p>`, html.EscapeString(conf.HTMLLink))
	}
	return sb.String()
}
