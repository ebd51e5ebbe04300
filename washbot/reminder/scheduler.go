// Package reminder schedules deferred, cancelable notifications tied to a
// reservation's archive position. Each pending reminder is a named timer;
// the deterministic name lets cancellation find every entry for a
// reservation without a separate index.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/studcom-mm/washbot/washbot/inventory"
)

type Role string

const (
	RoleUser       Role = "user"
	RoleSupervisor Role = "supervisor"
)

// Fixed reminder offsets before slot start. Users get both, the floor
// supervisor only the short one.
const (
	OffsetHour   = 60 * time.Minute
	OffsetTenMin = 10 * time.Minute
)

var wellKnown = []struct {
	Role   Role
	Offset time.Duration
}{
	{RoleUser, OffsetHour},
	{RoleUser, OffsetTenMin},
	{RoleSupervisor, OffsetTenMin},
}

// Item is one rendered reminder: who gets what, how long before the start.
// The scheduler carries the payload verbatim; rendering lives with callers.
type Item struct {
	Role    Role
	Offset  time.Duration
	ChatID  string
	Message string
}

// Sender delivers a reminder message to a chat. Delivery failures are logged
// and swallowed; there is no retry channel for a missed reminder.
type Sender interface {
	Send(ctx context.Context, chatID string, message string) error
}

type Scheduler struct {
	sender Sender
	loc    *time.Location
	now    func() time.Time

	mu       sync.Mutex
	timers   map[string]*time.Timer
	shutdown chan struct{}
	once     sync.Once
}

func NewScheduler(sender Sender, loc *time.Location, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		sender:   sender,
		loc:      loc,
		now:      now,
		timers:   make(map[string]*time.Timer),
		shutdown: make(chan struct{}),
	}
}

// Location is the zone the scheduler resolves slot start times in.
func (s *Scheduler) Location() *time.Location {
	return s.loc
}

func name(resPos int, role Role, offset time.Duration) string {
	bucket := "10min"
	if offset == OffsetHour {
		bucket = "hour"
	}
	return fmt.Sprintf("reminder_%d_%s_%s", resPos, role, bucket)
}

// Schedule registers reminders for the reservation at resPos, whose slot
// starts at startAt. Fire times already in the past are skipped silently.
// Scheduling the same (reservation, role, offset) twice replaces the timer.
func (s *Scheduler) Schedule(resPos int, startAt time.Time, items []Item) {
	now := s.now().In(s.loc)
	for _, item := range items {
		fireAt := startAt.Add(-item.Offset)
		if !fireAt.After(now) {
			continue
		}
		s.arm(name(resPos, item.Role, item.Offset), fireAt.Sub(now), item)
	}
}

func (s *Scheduler) arm(key string, d time.Duration, item Item) {
	timer := time.NewTimer(d)

	s.mu.Lock()
	if old, ok := s.timers[key]; ok {
		old.Stop()
	}
	s.timers[key] = timer
	s.mu.Unlock()

	go func() {
		select {
		case <-timer.C:
			s.mu.Lock()
			// Cancel may have raced the firing; only deliver if the entry
			// is still ours.
			current, ok := s.timers[key]
			if ok && current == timer {
				delete(s.timers, key)
			}
			s.mu.Unlock()
			if !ok || current != timer {
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.sender.Send(ctx, item.ChatID, item.Message); err != nil {
				slog.Error("Failed to deliver reminder",
					slog.String("type", "reminder"),
					slog.String("reminder", key),
					slog.Any("error", err))
				return
			}
			slog.Info("Reminder delivered",
				slog.String("type", "reminder"),
				slog.String("reminder", key))
		case <-s.shutdown:
			timer.Stop()
		}
	}()
}

// Cancel revokes every not-yet-fired reminder for the reservation. Revoking
// an absent or already-fired entry is a no-op.
func (s *Scheduler) Cancel(resPos int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wk := range wellKnown {
		key := name(resPos, wk.Role, wk.Offset)
		if timer, ok := s.timers[key]; ok {
			timer.Stop()
			delete(s.timers, key)
			slog.Info("Reminder canceled",
				slog.String("type", "reminder"),
				slog.String("reminder", key))
		}
	}
}

// Pending reports how many reminders are armed for the reservation.
func (s *Scheduler) Pending(resPos int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, wk := range wellKnown {
		if _, ok := s.timers[name(resPos, wk.Role, wk.Offset)]; ok {
			n++
		}
	}
	return n
}

// BuildFunc renders the reminder items for a reservation.
type BuildFunc func(ctx context.Context, res inventory.Reservation) ([]Item, error)

// RestoreAll re-arms reminders for every Booked reservation with a future
// start. Timers are process-local, so a restart drops them; this walk brings
// them back from the durable reservation log.
func (s *Scheduler) RestoreAll(ctx context.Context, store *inventory.Store, build BuildFunc) error {
	reservations, err := store.Reservations(ctx)
	if err != nil {
		return err
	}

	now := s.now().In(s.loc)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	restored := 0
	var mu sync.Mutex
	for _, res := range reservations {
		if res.Status != inventory.StatusBooked {
			continue
		}
		startAt, err := res.StartsAt(s.loc)
		if err != nil || !startAt.After(now) {
			continue
		}
		res := res
		g.Go(func() error {
			items, err := build(gctx, res)
			if err != nil {
				slog.Error("Failed to rebuild reminders",
					slog.String("type", "reminder"),
					slog.Int("reservation", res.Pos),
					slog.Any("error", err))
				return nil
			}
			s.Schedule(res.Pos, startAt, items)
			mu.Lock()
			restored++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("Reminders restored",
		slog.String("type", "reminder"),
		slog.Int("reservations", restored))
	return nil
}

// Shutdown stops every pending timer. Messages already in flight are not
// recalled.
func (s *Scheduler) Shutdown() {
	s.once.Do(func() {
		close(s.shutdown)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
	slog.Info("Reminder scheduler shut down", slog.String("type", "reminder"))
}
