package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/studcom-mm/washbot/washbot/booking"
)

const (
	msgNoUpcoming    = "У тебя нет активных записей."
	msgUpcomingList  = "Твои активные записи. Нажми на запись, чтобы отменить ее:"
	msgHistoryEmpty  = "История записей пуста."
	msgConfirmCancel = "Отменить эту запись?\n\n📅 %s, %s–%s\n🏢 Этаж %s"

	btnConfirmCancel = "🗑 Да, отменить"

	historyPerPage = 10
)

// showUpcoming lists the user's active future reservations; each line doubles
// as a cancel entry point.
func (m *Machine) showUpcoming(ctx context.Context, t *turn) ([]Reply, error) {
	upcoming, err := m.search.UpcomingReservations(ctx, t.accountID)
	if err != nil {
		return nil, err
	}
	if len(upcoming) == 0 {
		t.sess.reset(StateMainMenu)
		return []Reply{menuReply(msgNoUpcoming)}, nil
	}

	t.sess.reset(StateViewingHistory)

	var rows [][]Button
	for _, res := range upcoming {
		label := fmt.Sprintf("%s • %s–%s • этаж %s", res.Date, res.StartTime, res.EndTime, res.Floor)
		rows = append(rows, []Button{btn(label, fmt.Sprintf("cancel_%d", res.Pos))})
	}
	rows = append(rows, []Button{btn(btnToMenu, "back_to_main_menu")})

	return []Reply{{Text: msgUpcomingList, Buttons: rows}}, nil
}

// showHistory renders the whole booking record, canceled entries included,
// newest first. Navigation across pages is the transport's concern.
func (m *Machine) showHistory(ctx context.Context, t *turn) ([]Reply, error) {
	all, err := m.search.AllReservations(ctx, t.accountID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return []Reply{menuReply(msgHistoryEmpty)}, nil
	}

	var pages []string
	for start := 0; start < len(all); start += historyPerPage {
		end := start + historyPerPage
		if end > len(all) {
			end = len(all)
		}
		var b strings.Builder
		b.WriteString("📖 История записей:\n")
		for _, res := range all[start:end] {
			fmt.Fprintf(&b, "\n%s, %s–%s, этаж %s — %s (бронь от %s)",
				res.Date, res.StartTime, res.EndTime, res.Floor,
				statusLabel(res.Status), res.BookingTimestamp)
		}
		pages = append(pages, b.String())
	}

	t.sess.reset(StateMainMenu)
	return []Reply{{Pages: pages, MainMenu: true}}, nil
}

func (m *Machine) handleViewingHistory(ctx context.Context, t *turn, in Input) ([]Reply, error) {
	cb := in.Callback
	switch {
	case cb == "back_to_main_menu":
		t.sess.reset(StateMainMenu)
		return []Reply{edit(msgMainMenu), menuReply(msgMainMenu)}, nil
	case strings.HasPrefix(cb, "cancel_"):
		pos, err := strconv.Atoi(strings.TrimPrefix(cb, "cancel_"))
		if err != nil {
			return []Reply{text(msgUseButtons)}, nil
		}
		return m.askCancelConfirmation(ctx, t, pos)
	}
	return []Reply{text(msgUseButtons)}, nil
}

func (m *Machine) askCancelConfirmation(ctx context.Context, t *turn, pos int) ([]Reply, error) {
	res, ok, err := m.store.ReservationAt(ctx, pos)
	if err != nil {
		return nil, err
	}
	if !ok || res.AccountID != t.accountID {
		return m.showUpcoming(ctx, t)
	}

	t.sess.PendingCancel = pos
	t.sess.State = StateCancelConfirmation

	return []Reply{
		edit(fmt.Sprintf(msgConfirmCancel, res.Date, res.StartTime, res.EndTime, res.Floor),
			[]Button{btn(btnConfirmCancel, fmt.Sprintf("confirm_cancel_%d", pos))},
			[]Button{btn(btnBack, "back_to_upcoming")},
		),
	}, nil
}

func (m *Machine) handleCancelConfirmation(ctx context.Context, t *turn, in Input) ([]Reply, error) {
	cb := in.Callback
	switch {
	case cb == "back_to_upcoming":
		t.sess.PendingCancel = 0
		return m.showUpcoming(ctx, t)
	case strings.HasPrefix(cb, "confirm_cancel_"):
		return m.confirmCancel(ctx, t)
	}
	return []Reply{text(msgUseButtons)}, nil
}

func (m *Machine) confirmCancel(ctx context.Context, t *turn) ([]Reply, error) {
	pos := t.sess.PendingCancel
	if pos == 0 {
		return m.toMainMenu(t), nil
	}

	res, err := m.allocator.Release(ctx, pos)
	if err == booking.ErrAlreadyCanceled || err == booking.ErrReservationNotFound {
		t.sess.reset(StateMainMenu)
		return []Reply{edit(msgCancelFailed), menuReply(msgMainMenu)}, nil
	}
	if err != nil {
		slog.Error("Cancellation failed",
			slog.String("type", "cmd"),
			slog.String("account_id", t.accountID),
			slog.Int("reservation", pos),
			slog.Any("error", err))
		t.sess.reset(StateMainMenu)
		return []Reply{edit(msgCancelFailed), menuReply(msgMainMenu)}, nil
	}

	m.notifier.CancelReminders(pos)
	m.notifier.NotifyCanceled(ctx, res)

	t.sess.reset(StateMainMenu)
	return []Reply{edit(msgCanceled), menuReply(msgMainMenu)}, nil
}
