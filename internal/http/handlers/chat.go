// Package handlers exposes the chat booking API over HTTP and WebSocket.
package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/averyhale/booking-concierge/internal/notify"
	"github.com/averyhale/booking-concierge/internal/scheduler"
	"github.com/averyhale/booking-concierge/internal/session"
	"github.com/averyhale/booking-concierge/pkg/logging"
)

// ChatHandler drives the booking dialogue for the embedded chat widget.
// Turns for the same session are serialized so the context is mutated by
// one request at a time.
type ChatHandler struct {
	machine  *scheduler.Machine
	sessions session.Store
	notifier *notify.Service
	logger   *logging.Logger

	defaultTimeZone string

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	refs int
}

// NewChatHandler creates the chat handler. The notifier is optional.
func NewChatHandler(machine *scheduler.Machine, sessions session.Store, notifier *notify.Service, defaultTimeZone string, logger *logging.Logger) *ChatHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if defaultTimeZone == "" {
		defaultTimeZone = "UTC"
	}
	return &ChatHandler{
		machine:         machine,
		sessions:        sessions,
		notifier:        notifier,
		logger:          logger,
		defaultTimeZone: defaultTimeZone,
		locks:           make(map[string]*sessionLock),
	}
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type      string `json:"type"` // "message", "ping"
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	TimeZone  string `json:"time_zone,omitempty"`
	Intent    string `json:"intent,omitempty"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type      string   `json:"type"` // "turn", "session", "pong", "error"
	SessionID string   `json:"session_id,omitempty"`
	Reply     string   `json:"reply,omitempty"`
	Chips     []string `json:"chips,omitempty"`
	Expect    string   `json:"expect,omitempty"`
	State     string   `json:"state,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// generateSessionID creates a random session identifier.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// acquire serializes turns per session. Entries are reference-counted so
// the lock map does not grow with finished sessions.
func (h *ChatHandler) acquire(sessionID string) *sessionLock {
	h.mu.Lock()
	l, ok := h.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		h.locks[sessionID] = l
	}
	l.refs++
	h.mu.Unlock()
	l.Lock()
	return l
}

func (h *ChatHandler) release(sessionID string, l *sessionLock) {
	l.Unlock()
	h.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(h.locks, sessionID)
	}
	h.mu.Unlock()
}

// processTurn loads the session's context, advances the dialogue by one
// turn, and persists the resulting context.
func (h *ChatHandler) processTurn(ctx context.Context, sessionID, text, timeZone, intent string) (scheduler.ConversationTurn, error) {
	l := h.acquire(sessionID)
	defer h.release(sessionID, l)

	bc, err := h.sessions.Load(ctx, sessionID)
	if err != nil {
		if err != session.ErrNotFound {
			return scheduler.ConversationTurn{}, err
		}
		if timeZone == "" {
			timeZone = h.defaultTimeZone
		}
		bc = scheduler.NewContext(scheduler.Intent(strings.ToUpper(intent)), timeZone)
	}

	bookedBefore := bc.BookedEventID

	turn := h.machine.Step(ctx, text, bc)

	if bookedBefore == "" && bc.BookedEventID != "" {
		h.sendConfirmation(bc)
	}

	if err := h.sessions.Save(ctx, sessionID, turn.Context); err != nil {
		// The reply is still valid; losing the context costs the user a
		// restart, not the committed booking.
		h.logger.Error("chat: failed to persist context", "error", err, "session_id", sessionID)
	}
	return turn, nil
}

// sendConfirmation emails the attendee off the request path.
func (h *ChatHandler) sendConfirmation(bc *scheduler.BookingContext) {
	if h.notifier == nil || bc.ChosenSlot == nil {
		return
	}
	conf := notify.Confirmation{
		AttendeeEmail:   bc.AttendeeEmail,
		AttendeeName:    bc.AttendeeName,
		Summary:         bc.Summary,
		Start:           bc.ChosenSlot.Start,
		DurationMinutes: bc.DurationMinutes,
		TimeZone:        bc.TimeZone,
		MeetURL:         bc.MeetURL,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := h.notifier.SendBookingConfirmation(ctx, conf); err != nil {
			h.logger.Error("chat: confirmation email failed", "error", err, "context_id", bc.ID)
		}
	}()
}

// HandleMessage is the HTTP endpoint for one chat turn.
func (h *ChatHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
		TimeZone  string `json:"time_zone"`
		Intent    string `json:"intent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = generateSessionID()
	}

	turn, err := h.processTurn(r.Context(), req.SessionID, req.Text, req.TimeZone, req.Intent)
	if err != nil {
		h.logger.Error("chat: turn failed", "error", err, "session_id", req.SessionID)
		http.Error(w, "failed to process message", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(OutboundMessage{
		Type:      "turn",
		SessionID: req.SessionID,
		Reply:     turn.Reply,
		Chips:     turn.Chips,
		Expect:    string(turn.Expect),
		State:     string(turn.Context.State),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleWebSocket upgrades to WebSocket and exchanges turns in real time.
func (h *ChatHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *ChatHandler) serveWS(conn *websocket.Conn, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = generateSessionID()
	}
	timeZone := r.URL.Query().Get("tz")

	_ = websocket.JSON.Send(conn, OutboundMessage{
		Type:      "session",
		SessionID: sessionID,
	})

	h.logger.Info("chat: connection opened", "session_id", sessionID)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("chat: connection closed", "session_id", sessionID, "error", err)
			return
		}

		if msg.Type == "ping" {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
			continue
		}
		if msg.Type != "message" || strings.TrimSpace(msg.Text) == "" {
			continue
		}
		if msg.TimeZone == "" {
			msg.TimeZone = timeZone
		}

		turn, err := h.processTurn(r.Context(), sessionID, msg.Text, msg.TimeZone, msg.Intent)
		if err != nil {
			h.logger.Error("chat: turn failed", "error", err, "session_id", sessionID)
			_ = websocket.JSON.Send(conn, OutboundMessage{
				Type:  "error",
				Reply: "Sorry, something went wrong. Please try again.",
			})
			continue
		}

		_ = websocket.JSON.Send(conn, OutboundMessage{
			Type:      "turn",
			SessionID: sessionID,
			Reply:     turn.Reply,
			Chips:     turn.Chips,
			Expect:    string(turn.Expect),
			State:     string(turn.Context.State),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// HandleReset ends a session, discarding any negotiated state.
func (h *ChatHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}

	if err := h.sessions.Delete(r.Context(), sessionID); err != nil {
		h.logger.Error("chat: failed to delete session", "error", err, "session_id", sessionID)
		http.Error(w, "failed to reset session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
}
