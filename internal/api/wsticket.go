package api

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"sync"
	"time"
)

const (
	// ticketTTL is how long a WebSocket ticket is valid.
	ticketTTL = 60 * time.Second

	// ticketBytes is the number of random bytes in a ticket.
	ticketBytes = 32

	// maxPendingTickets bounds unredeemed, unexpired tickets.
	maxPendingTickets = 1024
)

var errTooManyTickets = errors.New("too many pending websocket tickets")

// ticketStore holds single-use WebSocket tickets, each bound to the token
// subject that requested it.
type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]pendingTicket
}

type pendingTicket struct {
	subject string
	expires time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]pendingTicket)}
}

// issue creates a ticket for subject, pruning expired ones first.
func (t *ticketStore) issue(subject string) (string, error) {
	b := make([]byte, ticketBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	ticket := hex.EncodeToString(b)

	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	for k, p := range t.tickets {
		if now.After(p.expires) {
			delete(t.tickets, k)
		}
	}
	if len(t.tickets) >= maxPendingTickets {
		return "", errTooManyTickets
	}
	t.tickets[ticket] = pendingTicket{subject: subject, expires: now.Add(ticketTTL)}
	return ticket, nil
}

// redeem consumes a ticket and returns the subject it was issued to.
func (t *ticketStore) redeem(ticket string) (string, bool) {
	t.mu.Lock()
	p, ok := t.tickets[ticket]
	delete(t.tickets, ticket)
	t.mu.Unlock()

	if !ok || !time.Now().Before(p.expires) {
		return "", false
	}
	return p.subject, true
}

// handleWSTicket issues a single-use WebSocket ticket so clients need not
// put their bearer token in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	var subject string
	if claims := claimsFromContext(r.Context()); claims != nil {
		subject = claims.Subject
	}

	ticket, err := s.tickets.issue(subject)
	if err != nil {
		s.logger.Warn("websocket ticket refused", "subject", subject, "error", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "websocket tickets temporarily unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// handleWebSocket upgrades the connection. With JWT auth enabled a ticket
// from POST /ws/ticket is required.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var subject string
	if s.secCfg.JWT.Enabled {
		ticket := r.URL.Query().Get("ticket")
		if ticket == "" {
			writeUnauthorized(w, "ticket query parameter is required")
			return
		}
		var ok bool
		if subject, ok = s.tickets.redeem(ticket); !ok {
			writeUnauthorized(w, "invalid or expired ticket")
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn, subject)
	s.hub.Register(client)

	go client.writePump()
	go client.readPump()
}
