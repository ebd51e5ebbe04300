package booking

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/studcom-mm/washbot/washbot/inventory"
)

// Time-of-day buckets for slot filtering. Evening wraps past midnight.
const (
	BucketMorning = "morning" // 04:00–11:59
	BucketDay     = "day"     // 12:00–17:59
	BucketEvening = "evening" // 18:00–03:59
)

// Filters are three independent accept-sets; an empty set matches everything.
type Filters struct {
	Dates  []string `json:"dates"`
	Floors []string `json:"floors"`
	Times  []string `json:"times"`
}

func (f Filters) matchesDate(date string) bool {
	return len(f.Dates) == 0 || contains(f.Dates, date)
}

func (f Filters) matchesFloor(floor string) bool {
	return len(f.Floors) == 0 || contains(f.Floors, floor)
}

func (f Filters) matchesTime(startTime string) bool {
	if len(f.Times) == 0 {
		return true
	}
	for _, bucket := range f.Times {
		if MatchesBucket(startTime, bucket) {
			return true
		}
	}
	return false
}

// Toggle adds or removes a value from the named filter set.
func (f *Filters) Toggle(category, value string) {
	set := f.set(category)
	if set == nil {
		return
	}
	if contains(*set, value) {
		out := (*set)[:0]
		for _, v := range *set {
			if v != value {
				out = append(out, v)
			}
		}
		*set = out
	} else {
		*set = append(*set, value)
	}
}

// Clear empties the named filter set (the wildcard choice).
func (f *Filters) Clear(category string) {
	if set := f.set(category); set != nil {
		*set = nil
	}
}

func (f *Filters) set(category string) *[]string {
	switch category {
	case "date":
		return &f.Dates
	case "floor":
		return &f.Floors
	case "time":
		return &f.Times
	}
	return nil
}

// MatchesBucket reports whether a "15:04" start time falls into the bucket.
func MatchesBucket(startTime, bucket string) bool {
	h, ok := startHour(startTime)
	if !ok {
		return false
	}
	switch bucket {
	case BucketMorning:
		return h >= 4 && h < 12
	case BucketDay:
		return h >= 12 && h < 18
	case BucketEvening:
		return h >= 18 || h < 4
	}
	return false
}

func startHour(startTime string) (int, bool) {
	parts := strings.SplitN(startTime, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	return h, true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Search scans the inventory for slot discovery and reservation listings.
type Search struct {
	store *inventory.Store
	loc   *time.Location
	now   func() time.Time
}

func NewSearch(store *inventory.Store, loc *time.Location, now func() time.Time) *Search {
	if now == nil {
		now = time.Now
	}
	return &Search{store: store, loc: loc, now: now}
}

// AvailableSlots returns future slots matching all three filters, sorted
// ascending by (date, time). A slot whose start is at or before "now" is
// never returned.
func (s *Search) AvailableSlots(ctx context.Context, f Filters) ([]inventory.Slot, error) {
	slots, err := s.store.AvailableSlots(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.loc)
	matched := make([]inventory.Slot, 0, len(slots))
	for _, slot := range slots {
		start, err := slot.StartsAt(s.loc)
		if err != nil {
			continue
		}
		if !start.After(now) {
			continue
		}
		if !f.matchesDate(slot.Date) || !f.matchesFloor(slot.Floor) || !f.matchesTime(slot.StartTime) {
			continue
		}
		matched = append(matched, slot)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, _ := matched[i].StartsAt(s.loc)
		b, _ := matched[j].StartsAt(s.loc)
		return a.Before(b)
	})
	return matched, nil
}

// UniqueDates returns the sorted distinct dates of future slots, for the
// date filter menu.
func (s *Search) UniqueDates(ctx context.Context) ([]string, error) {
	return s.uniqueColumn(ctx, func(slot inventory.Slot) string { return slot.Date })
}

// UniqueFloors returns the sorted distinct floors of future slots.
func (s *Search) UniqueFloors(ctx context.Context) ([]string, error) {
	return s.uniqueColumn(ctx, func(slot inventory.Slot) string { return slot.Floor })
}

func (s *Search) uniqueColumn(ctx context.Context, pick func(inventory.Slot) string) ([]string, error) {
	slots, err := s.AvailableSlots(ctx, Filters{})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var values []string
	for _, slot := range slots {
		v := pick(slot)
		if v != "" && !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	}
	sort.Strings(values)
	return values, nil
}

// UpcomingReservations returns the user's Booked reservations whose start is
// still in the future, newest booking first.
func (s *Search) UpcomingReservations(ctx context.Context, accountID string) ([]inventory.Reservation, error) {
	return s.reservations(ctx, accountID, true)
}

// AllReservations returns the user's whole booking history, newest first.
func (s *Search) AllReservations(ctx context.Context, accountID string) ([]inventory.Reservation, error) {
	return s.reservations(ctx, accountID, false)
}

func (s *Search) reservations(ctx context.Context, accountID string, upcomingOnly bool) ([]inventory.Reservation, error) {
	all, err := s.store.Reservations(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.loc)
	var out []inventory.Reservation
	for _, r := range all {
		if r.AccountID != accountID {
			continue
		}
		if upcomingOnly {
			if r.Status != inventory.StatusBooked {
				continue
			}
			start, err := r.StartsAt(s.loc)
			if err != nil || !start.After(now) {
				continue
			}
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, errA := out[i].BookedAt(s.loc)
		b, errB := out[j].BookedAt(s.loc)
		if errA != nil || errB != nil {
			return errA == nil
		}
		return a.After(b)
	})
	return out, nil
}

// Page slices items for a fixed-size page and reports the page count.
func Page[T any](items []T, page, perPage int) ([]T, int) {
	if perPage <= 0 || len(items) == 0 {
		return nil, 0
	}
	totalPages := (len(items) + perPage - 1) / perPage
	if page < 0 || page >= totalPages {
		return nil, totalPages
	}
	start := page * perPage
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], totalPages
}
