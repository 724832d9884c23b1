// Package calendar provides the integration client for the external
// calendar provider: slot queries and booking commits. Free/busy
// resolution lives in the provider; this layer only speaks its
// request/response contracts.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/averyhale/booking-concierge/internal/httpclient"
	"github.com/averyhale/booking-concierge/pkg/logging"
)

// ErrSlotConflict indicates the requested slot was taken between the
// availability query and the booking commit.
var ErrSlotConflict = errors.New("calendar: slot no longer available")

// SlotQuery asks the provider for open slots inside a window.
type SlotQuery struct {
	DurationMinutes int    `json:"durationMinutes"`
	StartISO        string `json:"startISO"`
	EndISO          string `json:"endISO"`
	TimeZone        string `json:"timeZone"`
	MaxCandidates   int    `json:"maxCandidates"`
}

// SlotWindow is one open slot returned by the provider.
type SlotWindow struct {
	StartISO string `json:"startISO"`
	EndISO   string `json:"endISO"`
}

type slotQueryResponse struct {
	Slots []SlotWindow `json:"slots"`
}

// BookingRequest commits one calendar event.
type BookingRequest struct {
	StartISO        string `json:"startISO"`
	DurationMinutes int    `json:"durationMinutes"`
	TimeZone        string `json:"timeZone"`
	AttendeeEmail   string `json:"attendeeEmail"`
	AttendeeName    string `json:"attendeeName,omitempty"`
	Summary         string `json:"summary"`
	Description     string `json:"description,omitempty"`
}

// BookingConfirmation is the provider's response to a committed event.
type BookingConfirmation struct {
	MeetURL  string `json:"meetUrl"`
	HTMLLink string `json:"htmlLink"`
	EventID  string `json:"eventId"`
}

// Provider is the calendar boundary consumed by the scheduler.
type Provider interface {
	QuerySlots(ctx context.Context, query SlotQuery) ([]SlotWindow, error)
	CreateBooking(ctx context.Context, req BookingRequest, idempotencyKey string) (*BookingConfirmation, error)
}

// Config controls the calendar client.
type Config struct {
	BaseURL     string
	APIKey      string
	CallTimeout time.Duration
	Retry       httpclient.RetryConfig
	Logger      *logging.Logger
}

// Client talks to the calendar provider through the resilient request
// client. Each call carries an explicit deadline so a stalled provider
// cannot wedge a session.
type Client struct {
	baseURL     string
	apiKey      string
	callTimeout time.Duration
	retry       httpclient.RetryConfig
	http        *httpclient.Client
	logger      *logging.Logger
}

// NewClient creates a calendar provider client.
func NewClient(cfg Config, rc *httpclient.Client) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("calendar: base URL is required")
	}
	if rc == nil {
		return nil, errors.New("calendar: request client is required")
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		callTimeout: callTimeout,
		retry:       cfg.Retry,
		http:        rc,
		logger:      logger,
	}, nil
}

// QuerySlots fetches open slots for the window. One provider call per
// invocation; errors propagate unchanged to the caller.
func (c *Client) QuerySlots(ctx context.Context, query SlotQuery) ([]SlotWindow, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var resp slotQueryResponse
	err := c.http.RequestJSON(ctx, http.MethodPost, c.baseURL+"/v1/slots/query", c.headers(""), query, &resp, c.retry)
	if err != nil {
		return nil, fmt.Errorf("calendar: slot query: %w", err)
	}
	return resp.Slots, nil
}

// CreateBooking commits a single calendar event. The idempotency key makes
// a retried or duplicated commit a no-op at the provider.
func (c *Client) CreateBooking(ctx context.Context, req BookingRequest, idempotencyKey string) (*BookingConfirmation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var resp BookingConfirmation
	err := c.http.RequestJSON(ctx, http.MethodPost, c.baseURL+"/v1/bookings", c.headers(idempotencyKey), req, &resp, c.retry)
	if err != nil {
		var apiErr *httpclient.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			return nil, fmt.Errorf("%w: %s", ErrSlotConflict, apiErr.Message)
		}
		return nil, fmt.Errorf("calendar: booking commit: %w", err)
	}
	return &resp, nil
}

func (c *Client) headers(idempotencyKey string) http.Header {
	h := http.Header{}
	if c.apiKey != "" {
		h.Set("Authorization", "Bearer "+c.apiKey)
	}
	if idempotencyKey != "" {
		h.Set("Idempotency-Key", idempotencyKey)
	}
	return h
}

var _ Provider = (*Client)(nil)
