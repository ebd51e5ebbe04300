package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/studcom-mm/washbot/washbot/booking"
	"github.com/studcom-mm/washbot/washbot/inventory"
)

const (
	msgFilterMenu  = "Выбери фильтры или сразу смотри свободные слоты:"
	msgPickSlot    = "Свободные слоты (стр. %d из %d). Выбери подходящий:"
	msgConfirmSlot = "Записать тебя на этот слот?\n\n📅 %s, %s–%s\n🏢 Этаж %s"
	msgBooked      = "✅ Ты записан(а) на стирку!\n\n📅 %s в %s (Этаж %s)\n🔑 Ключ — у ответственного в комнате %s\n📞 Связь с ответственным: %s\n\nЗа 60 и за 10 минут до начала придут напоминания."

	btnFilterDate  = "📅 Дата"
	btnFilterFloor = "🏢 Этаж"
	btnFilterTime  = "🕒 Время"
	btnShowSlots   = "🔍 Показать слоты"
	btnToMenu      = "⬅️ В меню"
	btnBack        = "⬅️ Назад"
	btnAnyOption   = "Любой вариант"
	btnConfirmBook = "✅ Подтвердить"
	btnPrevPage    = "◀️"
	btnNextPage    = "▶️"
)

var timeBucketLabels = map[string]string{
	booking.BucketMorning: "Утро (04:00–11:59)",
	booking.BucketDay:     "День (12:00–17:59)",
	booking.BucketEvening: "Вечер (18:00–03:59)",
}

var timeBucketOrder = []string{booking.BucketMorning, booking.BucketDay, booking.BucketEvening}

// startBooking opens the filter menu, unless the user already holds an
// active reservation.
func (m *Machine) startBooking(ctx context.Context, t *turn) ([]Reply, error) {
	upcoming, err := m.search.UpcomingReservations(ctx, t.accountID)
	if err != nil {
		return nil, err
	}
	if len(upcoming) > 0 {
		return []Reply{menuReply(msgActiveExists)}, nil
	}

	t.sess.reset(StateFilterSetup)
	return []Reply{m.filterMenu(t, false)}, nil
}

func (m *Machine) filterMenu(t *turn, editInPlace bool) Reply {
	f := t.sess.Filters
	label := func(base string, selected int) string {
		if selected == 0 {
			return base
		}
		return fmt.Sprintf("%s (%d)", base, selected)
	}
	r := Reply{
		Text: msgFilterMenu,
		Buttons: [][]Button{
			{
				btn(label(btnFilterDate, len(f.Dates)), "filter_select_date"),
				btn(label(btnFilterFloor, len(f.Floors)), "filter_select_floor"),
				btn(label(btnFilterTime, len(f.Times)), "filter_select_time"),
			},
			{btn(btnShowSlots, "filter_search")},
			{btn(btnToMenu, "filter_tomenu")},
		},
		Edit: editInPlace,
	}
	return r
}

func (m *Machine) handleFilterSetup(ctx context.Context, t *turn, in Input) ([]Reply, error) {
	cb := in.Callback
	switch {
	case cb == "filter_search":
		return m.showSlots(ctx, t, 0)
	case cb == "filter_tomenu":
		t.sess.reset(StateMainMenu)
		return []Reply{edit(msgMainMenu), menuReply(msgMainMenu)}, nil
	case cb == "filter_back":
		return []Reply{m.filterMenu(t, true)}, nil
	case strings.HasPrefix(cb, "filter_select_"):
		return m.showFilterOptions(ctx, t, strings.TrimPrefix(cb, "filter_select_"))
	case strings.HasPrefix(cb, "option_toggle_"):
		category, value, ok := splitOption(strings.TrimPrefix(cb, "option_toggle_"))
		if !ok {
			return []Reply{text(msgUseButtons)}, nil
		}
		t.sess.Filters.Toggle(category, value)
		return m.showFilterOptions(ctx, t, category)
	case strings.HasPrefix(cb, "option_set_"):
		category, _, ok := splitOption(strings.TrimPrefix(cb, "option_set_"))
		if !ok {
			return []Reply{text(msgUseButtons)}, nil
		}
		t.sess.Filters.Clear(category)
		return m.showFilterOptions(ctx, t, category)
	case strings.HasPrefix(cb, "option_page_"):
		category, pageStr, ok := splitOption(strings.TrimPrefix(cb, "option_page_"))
		page, err := strconv.Atoi(pageStr)
		if !ok || err != nil {
			return []Reply{text(msgUseButtons)}, nil
		}
		t.sess.setFilterPage(category, page)
		return m.showFilterOptions(ctx, t, category)
	}
	return []Reply{text(msgUseButtons)}, nil
}

func splitOption(s string) (category, value string, ok bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// showFilterOptions renders the toggle menu of one filter category. Date
// options are paginated; floors and time buckets fit on one screen.
func (m *Machine) showFilterOptions(ctx context.Context, t *turn, category string) ([]Reply, error) {
	var values []string
	var labels func(string) string
	switch category {
	case "date":
		dates, err := m.search.UniqueDates(ctx)
		if err != nil {
			return nil, err
		}
		values, labels = dates, func(v string) string { return v }
	case "floor":
		floors, err := m.search.UniqueFloors(ctx)
		if err != nil {
			return nil, err
		}
		values, labels = floors, func(v string) string { return "Этаж " + v }
	case "time":
		values, labels = timeBucketOrder, func(v string) string { return timeBucketLabels[v] }
	default:
		return []Reply{text(msgUseButtons)}, nil
	}

	page := t.sess.filterPage(category)
	pageValues, totalPages := values, 1
	if category == "date" {
		pageValues, totalPages = booking.Page(values, page, m.opts.DatesPerPage)
		if pageValues == nil && totalPages > 0 {
			page = 0
			t.sess.setFilterPage(category, 0)
			pageValues, totalPages = booking.Page(values, 0, m.opts.DatesPerPage)
		}
	}

	selected := t.sess.Filters
	isOn := func(v string) bool {
		switch category {
		case "date":
			return containsValue(selected.Dates, v)
		case "floor":
			return containsValue(selected.Floors, v)
		case "time":
			return containsValue(selected.Times, v)
		}
		return false
	}

	var rows [][]Button
	for _, v := range pageValues {
		label := labels(v)
		if isOn(v) {
			label = "✅ " + label
		}
		rows = append(rows, []Button{btn(label, fmt.Sprintf("option_toggle_%s:%s", category, v))})
	}
	rows = append(rows, []Button{btn(btnAnyOption, fmt.Sprintf("option_set_%s:any", category))})
	if nav := pageNav(page, totalPages, func(p int) string {
		return fmt.Sprintf("option_page_%s:%d", category, p)
	}); nav != nil {
		rows = append(rows, nav)
	}
	rows = append(rows, []Button{btn(btnBack, "filter_back")})

	return []Reply{edit(msgFilterMenu, rows...)}, nil
}

func containsValue(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func pageNav(page, totalPages int, token func(int) string) []Button {
	if totalPages <= 1 {
		return nil
	}
	var nav []Button
	if page > 0 {
		nav = append(nav, btn(btnPrevPage, token(page-1)))
	}
	nav = append(nav, btn(fmt.Sprintf("%d/%d", page+1, totalPages), token(page)))
	if page < totalPages-1 {
		nav = append(nav, btn(btnNextPage, token(page+1)))
	}
	return nav
}

// showSlots runs the filtered search and renders one page of results.
func (m *Machine) showSlots(ctx context.Context, t *turn, page int) ([]Reply, error) {
	slots, err := m.search.AvailableSlots(ctx, t.sess.Filters)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		t.sess.State = StateFilterSetup
		return []Reply{edit(msgNoSlots), m.filterMenu(t, false)}, nil
	}

	pageSlots, totalPages := booking.Page(slots, page, m.opts.SlotsPerPage)
	if pageSlots == nil {
		page = 0
		pageSlots, totalPages = booking.Page(slots, 0, m.opts.SlotsPerPage)
	}

	t.sess.State = StateViewingSlots
	t.sess.Page = page

	var rows [][]Button
	for _, slot := range pageSlots {
		label := fmt.Sprintf("%s • %s–%s • этаж %s", slot.Date, slot.StartTime, slot.EndTime, slot.Floor)
		rows = append(rows, []Button{btn(label, fmt.Sprintf("slot_%d", slot.Pos))})
	}
	if nav := pageNav(page, totalPages, func(p int) string {
		return fmt.Sprintf("page_%d", p)
	}); nav != nil {
		rows = append(rows, nav)
	}
	rows = append(rows, []Button{btn(btnBack, "filter_back")})

	return []Reply{edit(fmt.Sprintf(msgPickSlot, page+1, totalPages), rows...)}, nil
}

func (m *Machine) handleViewingSlots(ctx context.Context, t *turn, in Input) ([]Reply, error) {
	cb := in.Callback
	switch {
	case cb == "filter_back":
		t.sess.State = StateFilterSetup
		return []Reply{m.filterMenu(t, true)}, nil
	case strings.HasPrefix(cb, "page_"):
		page, err := strconv.Atoi(strings.TrimPrefix(cb, "page_"))
		if err != nil {
			return []Reply{text(msgUseButtons)}, nil
		}
		return m.showSlots(ctx, t, page)
	case strings.HasPrefix(cb, "slot_"):
		pos, err := strconv.Atoi(strings.TrimPrefix(cb, "slot_"))
		if err != nil {
			return []Reply{text(msgUseButtons)}, nil
		}
		return m.selectSlot(ctx, t, pos)
	}
	return []Reply{text(msgUseButtons)}, nil
}

// selectSlot re-reads the row behind the tapped button and captures the
// snapshot the later claim will be validated against. A row that is already
// gone or in the past sends the user back to a refreshed list.
func (m *Machine) selectSlot(ctx context.Context, t *turn, pos int) ([]Reply, error) {
	slot, ok, err := m.store.SlotAt(ctx, pos)
	if err != nil {
		return nil, err
	}
	if ok {
		start, err := slot.StartsAt(m.loc)
		if err != nil || !start.After(m.now().In(m.loc)) {
			ok = false
		}
	}
	if !ok {
		replies, err := m.showSlots(ctx, t, t.sess.Page)
		if err != nil {
			return nil, err
		}
		return append([]Reply{edit(msgSlotTaken)}, replies...), nil
	}

	ref := booking.Ref(slot)
	t.sess.PendingSlot = &ref
	t.sess.State = StateSlotConfirmation

	return []Reply{
		edit(fmt.Sprintf(msgConfirmSlot, slot.Date, slot.StartTime, slot.EndTime, slot.Floor),
			[]Button{btn(btnConfirmBook, fmt.Sprintf("confirm_book_%d", pos))},
			[]Button{btn(btnBack, "back_to_slots")},
		),
	}, nil
}

func (m *Machine) handleSlotConfirmation(ctx context.Context, t *turn, in Input) ([]Reply, error) {
	cb := in.Callback
	switch {
	case cb == "back_to_slots":
		t.sess.PendingSlot = nil
		return m.showSlots(ctx, t, t.sess.Page)
	case strings.HasPrefix(cb, "confirm_book_"):
		return m.confirmBooking(ctx, t)
	}
	return []Reply{text(msgUseButtons)}, nil
}

func (m *Machine) confirmBooking(ctx context.Context, t *turn) ([]Reply, error) {
	ref := t.sess.PendingSlot
	if ref == nil {
		return m.toMainMenu(t), nil
	}

	user, err := m.currentUser(ctx, t)
	if err != nil {
		return nil, err
	}

	res, err := m.allocator.Claim(ctx, *ref, booking.Claimant{
		AccountID: t.accountID,
		Username:  t.username,
		FullName:  user.FullName(),
	})
	if booking.IsRaceRejected(err) {
		t.sess.reset(StateMainMenu)
		return []Reply{edit(msgSlotTaken), menuReply(msgMainMenu)}, nil
	}
	if err != nil {
		slog.Error("Booking failed",
			slog.String("type", "cmd"),
			slog.String("account_id", t.accountID),
			slog.Any("error", err))
		t.sess.reset(StateMainMenu)
		return []Reply{edit(msgBookingError), menuReply(msgMainMenu)}, nil
	}

	m.notifier.ScheduleReminders(ctx, res)
	m.notifier.NotifyBooked(ctx, res)

	contact, keyRoom := m.notifier.ResponsibleInfo(ctx, res.Responsible)
	t.sess.reset(StateMainMenu)
	return []Reply{
		edit(fmt.Sprintf(msgBooked, res.Date, res.StartTime, res.Floor, keyRoom, contact)),
		menuReply(msgMainMenu),
	}, nil
}

// statusLabel renders a reservation status for listings.
func statusLabel(status string) string {
	switch status {
	case inventory.StatusBooked:
		return "активна"
	case inventory.StatusCanceled:
		return "отменена"
	}
	return status
}
