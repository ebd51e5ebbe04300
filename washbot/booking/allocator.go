// Package booking holds the slot allocation protocol and slot discovery.
//
// The inventory is a remote, externally editable tabular store with no
// transactions and positional row identity, so a claim is optimistic:
// re-validate the captured snapshot at commit time, then append the
// reservation before deleting the slot row. A crash between the two writes
// leaves a duplicate (slot both listed and booked), which loses nothing;
// the reverse order could lose the booking entirely.
package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/studcom-mm/washbot/washbot/inventory"
)

// SlotRef is a slot reference captured at selection time: the position the
// slot was seen at plus the field snapshot used to detect drift.
type SlotRef struct {
	Pos       int    `json:"pos"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	Floor     string `json:"floor"`
}

// Ref captures a claimable reference to the slot.
func Ref(s inventory.Slot) SlotRef {
	return SlotRef{Pos: s.Pos, Date: s.Date, StartTime: s.StartTime, Floor: s.Floor}
}

// Claimant identifies who is booking.
type Claimant struct {
	AccountID string
	Username  string
	FullName  string
}

type Allocator struct {
	store *inventory.Store
	loc   *time.Location
	now   func() time.Time
}

func NewAllocator(store *inventory.Store, loc *time.Location, now func() time.Time) *Allocator {
	if now == nil {
		now = time.Now
	}
	return &Allocator{store: store, loc: loc, now: now}
}

// Claim books the referenced slot for the claimant. It re-reads the schedule
// row at the captured position, rejects with ErrSlotVanished when the row is
// gone and ErrSlotShifted when its fields no longer match the snapshot, and
// otherwise appends the reservation and removes the slot row.
func (a *Allocator) Claim(ctx context.Context, ref SlotRef, user Claimant) (inventory.Reservation, error) {
	slot, ok, err := a.store.SlotAt(ctx, ref.Pos)
	if err != nil {
		return inventory.Reservation{}, err
	}
	if !ok {
		slog.Warn("Claim rejected: row gone",
			slog.String("type", "db"),
			slog.Int("pos", ref.Pos),
			slog.String("account_id", user.AccountID))
		return inventory.Reservation{}, ErrSlotVanished
	}
	if slot.Date != ref.Date || slot.StartTime != ref.StartTime || slot.Floor != ref.Floor {
		slog.Warn("Claim rejected: row shifted",
			slog.String("type", "db"),
			slog.Int("pos", ref.Pos),
			slog.String("expected", ref.Date+" "+ref.StartTime+" fl."+ref.Floor),
			slog.String("actual", slot.Date+" "+slot.StartTime+" fl."+slot.Floor),
			slog.String("account_id", user.AccountID))
		return inventory.Reservation{}, ErrSlotShifted
	}

	res := inventory.Reservation{
		Date:             slot.Date,
		StartTime:        slot.StartTime,
		EndTime:          slot.EndTime,
		Floor:            slot.Floor,
		Responsible:      slot.Responsible,
		AccountID:        user.AccountID,
		Username:         user.Username,
		FullName:         user.FullName,
		BookingTimestamp: a.now().In(a.loc).Format(inventory.TimestampLayout),
		Status:           inventory.StatusBooked,
	}

	pos, err := a.store.AppendReservation(ctx, res)
	if err != nil {
		return inventory.Reservation{}, err
	}
	res.Pos = pos

	if err := a.store.DeleteSlot(ctx, ref.Pos); err != nil {
		// The reservation already exists; a lingering schedule row is the
		// accepted failure mode. Surface it in the log and move on.
		slog.Error("Failed to delete claimed slot row",
			slog.String("type", "db"),
			slog.Int("pos", ref.Pos),
			slog.Any("error", err))
	}

	return res, nil
}

// Release cancels the reservation at the given log position: the slot fields
// go back to the schedule and the status cell flips to Canceled in place.
// A reservation that is not currently Booked is rejected.
func (a *Allocator) Release(ctx context.Context, pos int) (inventory.Reservation, error) {
	res, ok, err := a.store.ReservationAt(ctx, pos)
	if err != nil {
		return inventory.Reservation{}, err
	}
	if !ok {
		return inventory.Reservation{}, ErrReservationNotFound
	}
	if res.Status != inventory.StatusBooked {
		return inventory.Reservation{}, ErrAlreadyCanceled
	}

	if _, err := a.store.AppendSlot(ctx, res.Slot()); err != nil {
		return inventory.Reservation{}, err
	}
	if err := a.store.SetReservationStatus(ctx, pos, inventory.StatusCanceled); err != nil {
		return inventory.Reservation{}, err
	}
	res.Status = inventory.StatusCanceled
	return res, nil
}
