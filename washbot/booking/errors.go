package booking

import "errors"

var (
	// ErrSlotVanished means the captured position no longer holds any row:
	// the slot was claimed (or the row removed) and it was the last one.
	ErrSlotVanished = errors.New("booking: slot row vanished")

	// ErrSlotShifted means the captured position now holds a different slot:
	// a concurrent claim deleted an earlier row and everything moved up.
	ErrSlotShifted = errors.New("booking: slot row shifted")

	// ErrAlreadyCanceled rejects a release of a reservation whose status is
	// not Booked. Re-cancellation is a rejection, not a silent success.
	ErrAlreadyCanceled = errors.New("booking: reservation already canceled")

	// ErrReservationNotFound rejects a release referencing a log position
	// that does not exist.
	ErrReservationNotFound = errors.New("booking: reservation not found")
)

// IsRaceRejected reports whether err is one of the optimistic-concurrency
// rejections a user should see as "slot already taken, pick another".
func IsRaceRejected(err error) bool {
	return errors.Is(err, ErrSlotVanished) || errors.Is(err, ErrSlotShifted)
}
