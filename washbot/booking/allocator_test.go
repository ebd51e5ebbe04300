package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studcom-mm/washbot/washbot/inventory"
)

var testNow = time.Date(2026, 9, 1, 12, 0, 0, 0, moscow())

func moscow() *time.Location {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		panic(err)
	}
	return loc
}

func fixedNow() time.Time { return testNow }

func seedSlots(t *testing.T, store *inventory.Store, slots ...inventory.Slot) {
	t.Helper()
	for _, slot := range slots {
		_, err := store.AppendSlot(context.Background(), slot)
		require.NoError(t, err)
	}
}

func slotOn(date, start, floor string) inventory.Slot {
	return inventory.Slot{
		Date:        date,
		StartTime:   start,
		EndTime:     "19:30",
		Floor:       floor,
		Responsible: "ivanova",
	}
}

func TestClaimHappyPath(t *testing.T) {
	ctx := context.Background()
	store := inventory.NewStore(inventory.NewMemoryStore())
	seedSlots(t, store,
		slotOn("15.09.2026", "18:00", "5"),
		slotOn("16.09.2026", "10:00", "9"),
	)

	a := NewAllocator(store, moscow(), fixedNow)

	slot, ok, err := store.SlotAt(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := a.Claim(ctx, Ref(slot), Claimant{
		AccountID: "42", Username: "vasya", FullName: "Иванов Иван",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Pos)
	assert.Equal(t, "16.09.2026", res.Date)
	assert.Equal(t, inventory.StatusBooked, res.Status)
	assert.Equal(t, "01.09.2026 12:00", res.BookingTimestamp)

	// The claimed row is gone from the schedule; one slot remains.
	slots, err := store.AvailableSlots(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "15.09.2026", slots[0].Date)

	stored, ok, err := store.ReservationAt(ctx, res.Pos)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "42", stored.AccountID)
	assert.Equal(t, "Иванов Иван", stored.FullName)
}

func TestClaimRowVanished(t *testing.T) {
	ctx := context.Background()
	store := inventory.NewStore(inventory.NewMemoryStore())
	seedSlots(t, store, slotOn("15.09.2026", "18:00", "5"))

	a := NewAllocator(store, moscow(), fixedNow)

	slot, _, err := store.SlotAt(ctx, 1)
	require.NoError(t, err)
	ref := Ref(slot)

	// Someone else empties the schedule between selection and confirm.
	require.NoError(t, store.DeleteSlot(ctx, 1))

	_, err = a.Claim(ctx, ref, Claimant{AccountID: "42"})
	assert.ErrorIs(t, err, ErrSlotVanished)
	assert.True(t, IsRaceRejected(err))
}

func TestClaimRowShifted(t *testing.T) {
	ctx := context.Background()
	store := inventory.NewStore(inventory.NewMemoryStore())
	seedSlots(t, store,
		slotOn("14.09.2026", "10:00", "5"),
		slotOn("15.09.2026", "18:00", "5"),
		slotOn("16.09.2026", "20:00", "9"),
	)

	a := NewAllocator(store, moscow(), fixedNow)

	// User picks the middle slot at position 2.
	slot, _, err := store.SlotAt(ctx, 2)
	require.NoError(t, err)
	ref := Ref(slot)

	// A concurrent claim removes row 1; everything shifts up and position 2
	// now holds what used to be row 3.
	require.NoError(t, store.DeleteSlot(ctx, 1))

	_, err = a.Claim(ctx, ref, Claimant{AccountID: "42"})
	assert.ErrorIs(t, err, ErrSlotShifted)
	assert.True(t, IsRaceRejected(err))

	// Nothing was booked and no row was deleted by the rejected claim.
	slots, err := store.AvailableSlots(ctx)
	require.NoError(t, err)
	assert.Len(t, slots, 2)

	reservations, err := store.Reservations(ctx)
	require.NoError(t, err)
	assert.Empty(t, reservations)
}

func TestClaimSameContentDifferentRowSucceeds(t *testing.T) {
	ctx := context.Background()
	store := inventory.NewStore(inventory.NewMemoryStore())
	// Two identical offerings; deleting the first leaves an identical row at
	// the captured position, which is an acceptable claim.
	seedSlots(t, store,
		slotOn("15.09.2026", "18:00", "5"),
		slotOn("15.09.2026", "18:00", "5"),
	)

	a := NewAllocator(store, moscow(), fixedNow)

	slot, _, err := store.SlotAt(ctx, 1)
	require.NoError(t, err)
	ref := Ref(slot)

	require.NoError(t, store.DeleteSlot(ctx, 1))

	_, err = a.Claim(ctx, ref, Claimant{AccountID: "42"})
	assert.NoError(t, err)
}

func TestReleaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := inventory.NewStore(inventory.NewMemoryStore())
	seedSlots(t, store, slotOn("15.09.2026", "18:00", "5"))

	a := NewAllocator(store, moscow(), fixedNow)

	slot, _, err := store.SlotAt(ctx, 1)
	require.NoError(t, err)
	res, err := a.Claim(ctx, Ref(slot), Claimant{AccountID: "42", FullName: "Иванов Иван"})
	require.NoError(t, err)

	released, err := a.Release(ctx, res.Pos)
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusCanceled, released.Status)

	// The slot is advertisable again with the same fields.
	slots, err := store.AvailableSlots(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "18:00", slots[0].StartTime)
	assert.Equal(t, "5", slots[0].Floor)

	// The archive entry stays, flipped in place.
	stored, ok, err := store.ReservationAt(ctx, res.Pos)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, inventory.StatusCanceled, stored.Status)
}

func TestReleaseTwiceRejected(t *testing.T) {
	ctx := context.Background()
	store := inventory.NewStore(inventory.NewMemoryStore())
	seedSlots(t, store, slotOn("15.09.2026", "18:00", "5"))

	a := NewAllocator(store, moscow(), fixedNow)

	slot, _, err := store.SlotAt(ctx, 1)
	require.NoError(t, err)
	res, err := a.Claim(ctx, Ref(slot), Claimant{AccountID: "42"})
	require.NoError(t, err)

	_, err = a.Release(ctx, res.Pos)
	require.NoError(t, err)

	_, err = a.Release(ctx, res.Pos)
	assert.ErrorIs(t, err, ErrAlreadyCanceled)

	// Only one slot row came back.
	slots, err := store.AvailableSlots(ctx)
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}

func TestReleaseUnknownReservation(t *testing.T) {
	store := inventory.NewStore(inventory.NewMemoryStore())
	a := NewAllocator(store, moscow(), fixedNow)

	_, err := a.Release(context.Background(), 99)
	assert.ErrorIs(t, err, ErrReservationNotFound)
}
