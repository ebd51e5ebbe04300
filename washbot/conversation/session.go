package conversation

import (
	"encoding/json"
	"time"

	"github.com/studcom-mm/washbot/washbot/booking"
)

// Session is the per-user conversational state. It is serialized as JSON
// into the session repository after every handled input, so a user mid-flow
// survives a process restart.
type Session struct {
	State State `json:"state"`

	// In-progress registration fields.
	Surname     string `json:"surname,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	Patronymic  string `json:"patronymic,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Room        string `json:"room,omitempty"`

	// Email verification.
	Email            string      `json:"email,omitempty"`
	VerificationCode string      `json:"verification_code,omitempty"`
	EmailSends       []time.Time `json:"email_sends,omitempty"`

	// Booking flow.
	Filters     booking.Filters  `json:"filters"`
	Page        int              `json:"page"`
	FilterPages map[string]int   `json:"filter_pages,omitempty"`
	PendingSlot *booking.SlotRef `json:"pending_slot,omitempty"`

	// Cancellation flow: reservation log position awaiting confirmation.
	PendingCancel int `json:"pending_cancel,omitempty"`
}

func newSession(state State) *Session {
	return &Session{State: state}
}

func decodeSession(raw json.RawMessage) (*Session, error) {
	sess := new(Session)
	if err := json.Unmarshal(raw, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Session) encode() (json.RawMessage, error) {
	return json.Marshal(s)
}

// reset drops everything except the state itself, for terminal transitions.
func (s *Session) reset(state State) {
	*s = Session{State: state}
}

func (s *Session) filterPage(category string) int {
	if s.FilterPages == nil {
		return 0
	}
	return s.FilterPages[category]
}

func (s *Session) setFilterPage(category string, page int) {
	if s.FilterPages == nil {
		s.FilterPages = make(map[string]int)
	}
	s.FilterPages[category] = page
}
