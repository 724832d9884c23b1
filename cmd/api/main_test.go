package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	appconfig "github.com/averyhale/booking-concierge/internal/config"
	"github.com/averyhale/booking-concierge/internal/notify"
	"github.com/averyhale/booking-concierge/pkg/logging"
)

func TestNewEmailSenderDefaultsToStub(t *testing.T) {
	logger := logging.New("error")

	sender := newEmailSender(&appconfig.Config{}, logger)
	assert.IsType(t, &notify.StubEmailSender{}, sender)

	// SendGrid without a key also falls back to the stub.
	sender = newEmailSender(&appconfig.Config{EmailProvider: "sendgrid"}, logger)
	assert.IsType(t, &notify.StubEmailSender{}, sender)
}

func TestNewEmailSenderSendGrid(t *testing.T) {
	sender := newEmailSender(&appconfig.Config{
		EmailProvider:  "SendGrid",
		SendGridAPIKey: "SG.test",
		FromEmail:      "hello@avery.example",
	}, logging.New("error"))

	assert.IsType(t, &notify.SendGridSender{}, sender)
}

func TestSplitOrigins(t *testing.T) {
	assert.Nil(t, splitOrigins(""))
	assert.Nil(t, splitOrigins("   "))
	assert.Equal(t,
		[]string{"https://avery.example", "https://blog.avery.example"},
		splitOrigins(" https://avery.example, https://blog.avery.example ,"),
	)
}
