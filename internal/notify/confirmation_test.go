package notify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	msgs []EmailMessage
	err  error
}

func (c *captureSender) Send(_ context.Context, msg EmailMessage) error {
	c.msgs = append(c.msgs, msg)
	return c.err
}

func testConfirmation() Confirmation {
	return Confirmation{
		AttendeeEmail:   "avery@example.com",
		AttendeeName:    "Avery",
		Start:           time.Date(2026, time.March, 2, 10, 4, 0, 0, time.UTC),
		DurationMinutes: 45,
		TimeZone:        "America/New_York",
		MeetURL:         "https://meet.example.com/abc",
		HTMLLink:        "https://calendar.example.com/event/1",
	}
}

func TestSendBookingConfirmation(t *testing.T) {
	sender := &captureSender{}
	svc := NewService(sender, nil)

	err := svc.SendBookingConfirmation(context.Background(), testConfirmation())

	require.NoError(t, err)
	require.Len(t, sender.msgs, 1)
	msg := sender.msgs[0]
	assert.Equal(t, "avery@example.com", msg.To)
	assert.Equal(t, "Avery", msg.ToName)
	assert.Equal(t, "Confirmed: 45-minute meeting on Monday, March 2 at 10:04 AM", msg.Subject)
	assert.Contains(t, msg.Body, "45-minute meeting")
	assert.Contains(t, msg.Body, "(America/New_York)")
	assert.Contains(t, msg.Body, "https://meet.example.com/abc")
	assert.Contains(t, msg.HTML, `<a href="https://meet.example.com/abc">`)
}

func TestSendBookingConfirmationKeepsExplicitSummary(t *testing.T) {
	sender := &captureSender{}
	svc := NewService(sender, nil)
	conf := testConfirmation()
	conf.Summary = "Portfolio review"

	require.NoError(t, svc.SendBookingConfirmation(context.Background(), conf))

	require.Len(t, sender.msgs, 1)
	assert.Contains(t, sender.msgs[0].Subject, "Portfolio review")
}

func TestSendBookingConfirmationRequiresEmail(t *testing.T) {
	svc := NewService(&captureSender{}, nil)
	conf := testConfirmation()
	conf.AttendeeEmail = ""

	err := svc.SendBookingConfirmation(context.Background(), conf)
	assert.Error(t, err)
}

func TestSendBookingConfirmationNoSenderIsNoop(t *testing.T) {
	svc := NewService(nil, nil)

	assert.NoError(t, svc.SendBookingConfirmation(context.Background(), testConfirmation()))
}

func TestSendBookingConfirmationPropagatesSendError(t *testing.T) {
	sender := &captureSender{err: fmt.Errorf("smtp down")}
	svc := NewService(sender, nil)

	err := svc.SendBookingConfirmation(context.Background(), testConfirmation())
	assert.ErrorContains(t, err, "smtp down")
}

func TestStubEmailSender(t *testing.T) {
	stub := NewStubEmailSender(nil)
	assert.NoError(t, stub.Send(context.Background(), EmailMessage{To: "avery@example.com", Subject: "hi"}))
}

func TestNewSendGridSenderWithoutKey(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{}, nil))
}
