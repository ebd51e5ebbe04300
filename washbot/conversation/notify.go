package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/studcom-mm/washbot/washbot/database/repositories"
	"github.com/studcom-mm/washbot/washbot/inventory"
	"github.com/studcom-mm/washbot/washbot/reminder"
)

// Notifier renders and dispatches everything that leaves the conversation:
// deferred reminders and the immediate booking/cancellation notices for the
// floor supervisor. The scheduler itself stays payload-agnostic.
type Notifier struct {
	config    repositories.ConfigRepository
	users     repositories.UserRepository
	scheduler *reminder.Scheduler
	sender    reminder.Sender
}

func NewNotifier(
	config repositories.ConfigRepository,
	users repositories.UserRepository,
	scheduler *reminder.Scheduler,
	sender reminder.Sender,
) *Notifier {
	return &Notifier{
		config:    config,
		users:     users,
		scheduler: scheduler,
		sender:    sender,
	}
}

// ResponsibleInfo resolves the contact and key-pickup room of a responsible
// party from the config mapping.
func (n *Notifier) ResponsibleInfo(ctx context.Context, responsible string) (contact, keyRoom string) {
	contact, _ = n.config.Get(ctx, fmt.Sprintf("responsible_%s_contact", responsible))
	keyRoom, _ = n.config.Get(ctx, fmt.Sprintf("responsible_%s_key_room", responsible))
	if contact == "" {
		contact = "не указан"
	}
	if keyRoom == "" {
		keyRoom = "не указана"
	}
	return contact, keyRoom
}

func (n *Notifier) notifyTarget(ctx context.Context, responsible string) string {
	target, _ := n.config.Get(ctx, fmt.Sprintf("responsible_%s_notify_target", responsible))
	return target
}

// BuildItems renders the reminder set for a reservation: two user reminders
// (60 and 10 minutes before) and, when a notification target is configured,
// one supervisor reminder at 10 minutes.
func (n *Notifier) BuildItems(ctx context.Context, res inventory.Reservation) ([]reminder.Item, error) {
	contact, keyRoom := n.ResponsibleInfo(ctx, res.Responsible)
	slotText := fmt.Sprintf("%s в %s (Этаж %s)", res.Date, res.StartTime, res.Floor)

	items := []reminder.Item{
		{
			Role:   reminder.RoleUser,
			Offset: reminder.OffsetHour,
			ChatID: res.AccountID,
			Message: fmt.Sprintf(
				"❗️ Напоминание о записи ❗️\n\nЧерез 60 минут у тебя стирка:\n%s\n\nКлюч — у ответственного в комнате %s.\nСвязь с ответственным: %s",
				slotText, keyRoom, contact),
		},
		{
			Role:   reminder.RoleUser,
			Offset: reminder.OffsetTenMin,
			ChatID: res.AccountID,
			Message: fmt.Sprintf(
				"❗️ Напоминание о записи ❗️\n\nЧерез 10 минут у тебя стирка:\n%s\n\nКлюч — у ответственного в комнате %s.\nСвязь с ответственным: %s",
				slotText, keyRoom, contact),
		},
	}

	if target := n.notifyTarget(ctx, res.Responsible); target != "" {
		items = append(items, reminder.Item{
			Role:    reminder.RoleSupervisor,
			Offset:  reminder.OffsetTenMin,
			ChatID:  target,
			Message: n.supervisorText(ctx, res, "Через 10 минут стирка"),
		})
	}

	return items, nil
}

func (n *Notifier) supervisorText(ctx context.Context, res inventory.Reservation, lead string) string {
	room := ""
	logged := "нет"
	if user, err := n.users.GetByAccountID(ctx, res.AccountID); err == nil {
		room = user.Room
		if user.HasLogEntry {
			logged = "да"
		}
	}
	return fmt.Sprintf(
		"%s: %s %s (Этаж %s)\nСтудент: %s (id %s), комната %s\nЗапись в журнале: %s",
		lead, res.Date, res.StartTime, res.Floor,
		res.FullName, res.AccountID, room, logged)
}

// ScheduleReminders arms the reminder set for a fresh reservation.
func (n *Notifier) ScheduleReminders(ctx context.Context, res inventory.Reservation) {
	startAt, err := res.StartsAt(n.scheduler.Location())
	if err != nil {
		slog.Error("Cannot schedule reminders for malformed reservation",
			slog.String("type", "reminder"),
			slog.Int("reservation", res.Pos),
			slog.Any("error", err))
		return
	}
	items, err := n.BuildItems(ctx, res)
	if err != nil {
		slog.Error("Failed to build reminder items",
			slog.String("type", "reminder"),
			slog.Int("reservation", res.Pos),
			slog.Any("error", err))
		return
	}
	n.scheduler.Schedule(res.Pos, startAt, items)
}

// CancelReminders revokes pending reminders for a canceled reservation.
func (n *Notifier) CancelReminders(resPos int) {
	n.scheduler.Cancel(resPos)
}

// NotifyBooked sends the supervisor an immediate notice of a new booking.
// Failures are logged and swallowed; the booking itself already happened.
func (n *Notifier) NotifyBooked(ctx context.Context, res inventory.Reservation) {
	n.notifySupervisor(ctx, res, "Новая запись на стирку")
}

// NotifyCanceled sends the supervisor an immediate cancellation notice.
func (n *Notifier) NotifyCanceled(ctx context.Context, res inventory.Reservation) {
	n.notifySupervisor(ctx, res, "Отмена записи на стирку")
}

func (n *Notifier) notifySupervisor(ctx context.Context, res inventory.Reservation, lead string) {
	target := n.notifyTarget(ctx, res.Responsible)
	if target == "" {
		return
	}
	if err := n.sender.Send(ctx, target, n.supervisorText(ctx, res, lead)); err != nil {
		slog.Error("Failed to notify supervisor",
			slog.String("type", "reminder"),
			slog.Int("reservation", res.Pos),
			slog.Any("error", err))
	}
}
