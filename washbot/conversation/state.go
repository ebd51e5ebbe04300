package conversation

// State enumerates the nodes of the conversation state machine. A session
// always sits in exactly one state between inputs.
type State int

const (
	// Registration steps.
	StateSurname State = iota
	StateName
	StatePatronymic
	StateDateOfBirth
	StateRoom
	StateRegistrationConfirm
	StateEmail
	StateEmailCode
	StateRulesAck

	// Absorbing state for an active user; every completed sub-flow
	// returns here.
	StateMainMenu

	// Booking steps.
	StateFilterSetup
	StateViewingSlots
	StateSlotConfirmation

	// History and cancellation steps.
	StateViewingHistory
	StateCancelConfirmation

	// Terminal state for blocked users.
	StateBlocked
)

func (s State) String() string {
	switch s {
	case StateSurname:
		return "surname"
	case StateName:
		return "name"
	case StatePatronymic:
		return "patronymic"
	case StateDateOfBirth:
		return "date_of_birth"
	case StateRoom:
		return "room"
	case StateRegistrationConfirm:
		return "registration_confirm"
	case StateEmail:
		return "email"
	case StateEmailCode:
		return "email_code"
	case StateRulesAck:
		return "rules_ack"
	case StateMainMenu:
		return "main_menu"
	case StateFilterSetup:
		return "filter_setup"
	case StateViewingSlots:
		return "viewing_slots"
	case StateSlotConfirmation:
		return "slot_confirmation"
	case StateViewingHistory:
		return "viewing_history"
	case StateCancelConfirmation:
		return "cancel_confirmation"
	case StateBlocked:
		return "blocked"
	}
	return "unknown"
}
