// Package inventory models the shared slot inventory: two tabular
// collections addressed by 1-based row position, with no transactions and no
// stable row keys. Rows shift when earlier rows are deleted, which is why
// callers must never trust a captured position without re-validating the row
// content (see the booking package).
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	CollectionSchedule = "schedule"
	CollectionArchive  = "archive"
)

const (
	DateLayout      = "02.01.2006"
	TimeLayout      = "15:04"
	TimestampLayout = "02.01.2006 15:04"
)

const (
	StatusBooked   = "Booked"
	StatusCanceled = "Canceled"
)

// ErrRowNotFound is returned by position reads past the end of a collection.
var ErrRowNotFound = errors.New("inventory: row not found")

// RowStore is the raw tabular substrate. Positions are 1-based. Deleting a
// row shifts every later row up by one; the store gives no help in detecting
// that, callers must compensate.
type RowStore interface {
	ReadAll(ctx context.Context, collection string) ([][]string, error)
	ReadRow(ctx context.Context, collection string, pos int) ([]string, error)
	AppendRow(ctx context.Context, collection string, row []string) (int, error)
	DeleteRow(ctx context.Context, collection string, pos int) error
	UpdateCell(ctx context.Context, collection string, pos, col int, value string) error
}

// Slot is an advertisable, not-yet-claimed laundry time window. Pos is the
// row position it was observed at; it is a hint, not an identity.
type Slot struct {
	Pos         int
	Date        string
	StartTime   string
	EndTime     string
	Floor       string
	Responsible string
}

const (
	slotColDate = iota
	slotColStart
	slotColEnd
	slotColFloor
	slotColResponsible
	slotColumns
)

func (s Slot) EncodeRow() []string {
	return []string{s.Date, s.StartTime, s.EndTime, s.Floor, s.Responsible}
}

func DecodeSlot(pos int, row []string) (Slot, error) {
	if len(row) < slotColumns {
		return Slot{}, fmt.Errorf("inventory: malformed schedule row at %d: %d cells", pos, len(row))
	}
	return Slot{
		Pos:         pos,
		Date:        row[slotColDate],
		StartTime:   row[slotColStart],
		EndTime:     row[slotColEnd],
		Floor:       row[slotColFloor],
		Responsible: row[slotColResponsible],
	}, nil
}

// StartsAt resolves the slot's wall-clock start in the given zone.
func (s Slot) StartsAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, s.Date+" "+s.StartTime, loc)
}

// Reservation is a claimed slot bound to a user, retained permanently in the
// archive collection. Pos is its archive position, stable once assigned.
type Reservation struct {
	Pos              int
	Date             string
	StartTime        string
	EndTime          string
	Floor            string
	Responsible      string
	AccountID        string
	Username         string
	FullName         string
	BookingTimestamp string
	Status           string
}

const (
	resColDate = iota
	resColStart
	resColEnd
	resColFloor
	resColResponsible
	resColAccountID
	resColUsername
	resColFullName
	resColBookedAt
	resColStatus
	resColumns
)

func (r Reservation) EncodeRow() []string {
	return []string{
		r.Date, r.StartTime, r.EndTime, r.Floor, r.Responsible,
		r.AccountID, r.Username, r.FullName, r.BookingTimestamp, r.Status,
	}
}

func DecodeReservation(pos int, row []string) (Reservation, error) {
	if len(row) < resColumns {
		return Reservation{}, fmt.Errorf("inventory: malformed archive row at %d: %d cells", pos, len(row))
	}
	return Reservation{
		Pos:              pos,
		Date:             row[resColDate],
		StartTime:        row[resColStart],
		EndTime:          row[resColEnd],
		Floor:            row[resColFloor],
		Responsible:      row[resColResponsible],
		AccountID:        row[resColAccountID],
		Username:         row[resColUsername],
		FullName:         row[resColFullName],
		BookingTimestamp: row[resColBookedAt],
		Status:           row[resColStatus],
	}, nil
}

// Slot returns the slot fields of the reservation, for returning a canceled
// claim to the schedule.
func (r Reservation) Slot() Slot {
	return Slot{
		Date:        r.Date,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Floor:       r.Floor,
		Responsible: r.Responsible,
	}
}

func (r Reservation) StartsAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, r.Date+" "+r.StartTime, loc)
}

func (r Reservation) BookedAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, r.BookingTimestamp, loc)
}

// Store is the typed facade over the two collections.
type Store struct {
	rows RowStore
}

func NewStore(rows RowStore) *Store {
	return &Store{rows: rows}
}

func (s *Store) AvailableSlots(ctx context.Context) ([]Slot, error) {
	rows, err := s.rows.ReadAll(ctx, CollectionSchedule)
	if err != nil {
		return nil, err
	}
	slots := make([]Slot, 0, len(rows))
	for i, row := range rows {
		slot, err := DecodeSlot(i+1, row)
		if err != nil {
			// Externally edited rows can be arbitrarily broken; skip them.
			continue
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// SlotAt re-reads the schedule row at pos. The bool reports whether a row
// exists there at all.
func (s *Store) SlotAt(ctx context.Context, pos int) (Slot, bool, error) {
	row, err := s.rows.ReadRow(ctx, CollectionSchedule, pos)
	if errors.Is(err, ErrRowNotFound) {
		return Slot{}, false, nil
	}
	if err != nil {
		return Slot{}, false, err
	}
	slot, err := DecodeSlot(pos, row)
	if err != nil {
		return Slot{}, false, err
	}
	return slot, true, nil
}

func (s *Store) AppendSlot(ctx context.Context, slot Slot) (int, error) {
	return s.rows.AppendRow(ctx, CollectionSchedule, slot.EncodeRow())
}

func (s *Store) DeleteSlot(ctx context.Context, pos int) error {
	return s.rows.DeleteRow(ctx, CollectionSchedule, pos)
}

func (s *Store) Reservations(ctx context.Context) ([]Reservation, error) {
	rows, err := s.rows.ReadAll(ctx, CollectionArchive)
	if err != nil {
		return nil, err
	}
	res := make([]Reservation, 0, len(rows))
	for i, row := range rows {
		r, err := DecodeReservation(i+1, row)
		if err != nil {
			continue
		}
		res = append(res, r)
	}
	return res, nil
}

func (s *Store) ReservationAt(ctx context.Context, pos int) (Reservation, bool, error) {
	row, err := s.rows.ReadRow(ctx, CollectionArchive, pos)
	if errors.Is(err, ErrRowNotFound) {
		return Reservation{}, false, nil
	}
	if err != nil {
		return Reservation{}, false, err
	}
	r, err := DecodeReservation(pos, row)
	if err != nil {
		return Reservation{}, false, err
	}
	return r, true, nil
}

func (s *Store) AppendReservation(ctx context.Context, r Reservation) (int, error) {
	return s.rows.AppendRow(ctx, CollectionArchive, r.EncodeRow())
}

func (s *Store) SetReservationStatus(ctx context.Context, pos int, status string) error {
	return s.rows.UpdateCell(ctx, CollectionArchive, pos, resColStatus, status)
}
