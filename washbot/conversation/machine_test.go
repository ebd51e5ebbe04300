package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studcom-mm/washbot/washbot/booking"
	"github.com/studcom-mm/washbot/washbot/database/models"
	"github.com/studcom-mm/washbot/washbot/database/repositories"
	"github.com/studcom-mm/washbot/washbot/inventory"
	"github.com/studcom-mm/washbot/washbot/mail"
	"github.com/studcom-mm/washbot/washbot/reminder"
)

type fakeUsers struct {
	mu   sync.Mutex
	byID map[string]*models.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[string]*models.User)}
}

func (f *fakeUsers) GetByAccountID(_ context.Context, accountID string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[accountID]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUsers) Upsert(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.byID[user.AccountID]; ok {
		user.Status = existing.Status
		user.RulesAcknowledged = existing.RulesAcknowledged
	}
	copied := *user
	f.byID[user.AccountID] = &copied
	return nil
}

func (f *fakeUsers) SetEmail(_ context.Context, accountID, email, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[accountID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	user.Email = email
	user.EmailStatus = status
	return nil
}

func (f *fakeUsers) CompleteRegistration(_ context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[accountID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	user.RulesAcknowledged = true
	user.Status = models.UserStatusOK
	return nil
}

func (f *fakeUsers) IsBlocked(_ context.Context, accountID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[accountID]
	if !ok {
		return false, nil
	}
	return user.Status == models.UserStatusBlocked, nil
}

func (f *fakeUsers) EmailTakenByOther(_ context.Context, email, accountID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, user := range f.byID {
		if id != accountID && user.Email == email && user.EmailStatus == models.EmailStatusConfirmed {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsers) block(accountID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.byID[accountID]; ok {
		user.Status = models.UserStatusBlocked
	} else {
		f.byID[accountID] = &models.User{AccountID: accountID, Status: models.UserStatusBlocked}
	}
}

type fakeSessions struct {
	mu   sync.Mutex
	byID map[string]json.RawMessage
	fail bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byID: make(map[string]json.RawMessage)}
}

func (f *fakeSessions) Get(_ context.Context, accountID string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[accountID], nil
}

func (f *fakeSessions) Put(_ context.Context, accountID string, state json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("session store down")
	}
	f.byID[accountID] = state
	return nil
}

func (f *fakeSessions) Delete(_ context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, accountID)
	return nil
}

func (f *fakeSessions) state(t *testing.T, accountID string) *Session {
	t.Helper()
	f.mu.Lock()
	raw := f.byID[accountID]
	f.mu.Unlock()
	require.NotNil(t, raw)
	sess, err := decodeSession(raw)
	require.NoError(t, err)
	return sess
}

type fakeConfig struct {
	values map[string]string
}

func (f *fakeConfig) Get(_ context.Context, key string) (string, error) {
	return f.values[key], nil
}

func (f *fakeConfig) GetAll(_ context.Context) (map[string]string, error) {
	return f.values, nil
}

type fakeMailer struct {
	mu      sync.Mutex
	sent    []string // codes, in send order
	lastTo  string
	sendErr error
}

func (f *fakeMailer) SendVerificationCode(_ context.Context, to, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, code)
	f.lastTo = to
	return nil
}

func (f *fakeMailer) lastCode() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

type fakeChatSender struct {
	mu   sync.Mutex
	sent []struct{ ChatID, Message string }
}

func (f *fakeChatSender) Send(_ context.Context, chatID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, struct{ ChatID, Message string }{chatID, message})
	return nil
}

func (f *fakeChatSender) messagesTo(chatID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sent {
		if s.ChatID == chatID {
			out = append(out, s.Message)
		}
	}
	return out
}

type env struct {
	machine   *Machine
	users     *fakeUsers
	sessions  *fakeSessions
	store     *inventory.Store
	scheduler *reminder.Scheduler
	mailer    *fakeMailer
	chat      *fakeChatSender
	now       time.Time
	loc       *time.Location
}

func newEnv(t *testing.T) *env {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	e := &env{
		users:    newFakeUsers(),
		sessions: newFakeSessions(),
		store:    inventory.NewStore(inventory.NewMemoryStore()),
		mailer:   &fakeMailer{},
		chat:     &fakeChatSender{},
		now:      time.Date(2026, 9, 1, 12, 0, 0, 0, loc),
		loc:      loc,
	}
	nowFn := func() time.Time { return e.now }

	e.scheduler = reminder.NewScheduler(e.chat, loc, nowFn)
	t.Cleanup(e.scheduler.Shutdown)

	config := &fakeConfig{values: map[string]string{
		"responsible_ivanova_contact":       "@ivanova",
		"responsible_ivanova_key_room":      "А1010",
		"responsible_ivanova_notify_target": "900",
	}}
	notifier := NewNotifier(config, e.users, e.scheduler, e.chat)

	e.machine = NewMachine(
		e.users,
		e.sessions,
		e.store,
		booking.NewAllocator(e.store, loc, nowFn),
		booking.NewSearch(e.store, loc, nowFn),
		notifier,
		e.mailer,
		mail.NewVerifier(2, nowFn),
		Options{
			EmailDomain:  "@math.msu.ru",
			SlotsPerPage: 5,
			DatesPerPage: 5,
		},
		loc,
		nowFn,
	)
	return e
}

func (e *env) handle(t *testing.T, in Input) []Reply {
	t.Helper()
	replies, err := e.machine.Handle(context.Background(), "42", "vasya", in)
	require.NoError(t, err)
	require.NotEmpty(t, replies)
	return replies
}

func (e *env) seedSlot(t *testing.T, date, start, floor string) {
	t.Helper()
	_, err := e.store.AppendSlot(context.Background(), inventory.Slot{
		Date: date, StartTime: start, EndTime: "19:30",
		Floor: floor, Responsible: "ivanova",
	})
	require.NoError(t, err)
}

// register walks a fresh user through the whole onboarding.
func (e *env) register(t *testing.T) {
	t.Helper()
	e.handle(t, Input{Command: "start"})
	e.handle(t, Input{Text: "Иванов"})
	e.handle(t, Input{Text: "Иван"})
	e.handle(t, Input{Callback: "skip_patronymic"})
	e.handle(t, Input{Text: "31.01.2005"})
	e.handle(t, Input{Text: "А901"})
	e.handle(t, Input{Callback: "confirm_reg"})
	e.handle(t, Input{Text: "ivanov"})
	e.handle(t, Input{Text: e.mailer.lastCode()})
	e.handle(t, Input{Callback: "rules_accepted"})
}

func TestBlockedUserIsRefusedEverywhere(t *testing.T) {
	e := newEnv(t)
	e.users.block("42")

	for _, in := range []Input{
		{Command: "start"},
		{Text: "Иванов"},
		{Callback: "menu_book"},
	} {
		replies := e.handle(t, in)
		require.Len(t, replies, 1)
		assert.Equal(t, msgBlocked, replies[0].Text)
	}

	// No session survives for a blocked user.
	e.sessions.mu.Lock()
	_, ok := e.sessions.byID["42"]
	e.sessions.mu.Unlock()
	assert.False(t, ok)
}

func TestRegistrationWalk(t *testing.T) {
	e := newEnv(t)

	replies := e.handle(t, Input{Command: "start"})
	assert.Contains(t, replies[0].Text, "фамилию")

	// Garbage is re-prompted without advancing.
	e.handle(t, Input{Text: "иванов"})
	assert.Equal(t, StateSurname, e.sessions.state(t, "42").State)

	e.handle(t, Input{Text: "Иванов"})
	e.handle(t, Input{Text: "Иван"})
	e.handle(t, Input{Text: "Иванович"})

	// Invalid date keeps the state.
	replies = e.handle(t, Input{Text: "2005-01-31"})
	assert.Equal(t, msgBadDOB, replies[0].Text)
	assert.Equal(t, StateDateOfBirth, e.sessions.state(t, "42").State)

	e.handle(t, Input{Text: "31.01.2005"})
	replies = e.handle(t, Input{Text: "А901"})
	assert.Contains(t, replies[0].Text, "Иванов Иван Иванович")

	e.handle(t, Input{Callback: "confirm_reg"})

	user, err := e.users.GetByAccountID(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "Иванов", user.Surname)
	assert.Equal(t, models.EmailStatusPending, user.EmailStatus)

	// Bare login gets the domain appended.
	replies = e.handle(t, Input{Text: "ivanov"})
	assert.Contains(t, replies[0].Text, "ivanov@math.msu.ru")
	require.Len(t, e.mailer.sent, 1)

	// A wrong code costs nothing and changes nothing.
	replies = e.handle(t, Input{Text: "000000"})
	assert.Equal(t, msgBadCode, replies[0].Text)
	assert.Equal(t, StateEmailCode, e.sessions.state(t, "42").State)

	e.handle(t, Input{Text: e.mailer.lastCode()})

	user, err = e.users.GetByAccountID(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, models.EmailStatusConfirmed, user.EmailStatus)

	e.handle(t, Input{Callback: "rules_accepted"})

	user, err = e.users.GetByAccountID(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, user.Registered())
	assert.Equal(t, StateMainMenu, e.sessions.state(t, "42").State)
}

func TestEmailResendPolicy(t *testing.T) {
	e := newEnv(t)
	e.handle(t, Input{Command: "start"})
	e.handle(t, Input{Text: "Иванов"})
	e.handle(t, Input{Text: "Иван"})
	e.handle(t, Input{Callback: "skip_patronymic"})
	e.handle(t, Input{Text: "31.01.2005"})
	e.handle(t, Input{Text: "А901"})
	e.handle(t, Input{Callback: "confirm_reg"})
	e.handle(t, Input{Text: "ivanov"})

	// Immediate resend is too soon.
	replies := e.handle(t, Input{Callback: "resend_code"})
	assert.Equal(t, msgResendSoon, replies[0].Text)
	assert.Len(t, e.mailer.sent, 1)

	// After the minimum interval one resend fits in the window.
	e.now = e.now.Add(time.Minute)
	e.handle(t, Input{Callback: "resend_code"})
	assert.Len(t, e.mailer.sent, 2)

	// The window of two is now exhausted, even after another minute.
	e.now = e.now.Add(time.Minute)
	replies = e.handle(t, Input{Callback: "resend_code"})
	assert.Equal(t, msgResendLimit, replies[0].Text)
	assert.Len(t, e.mailer.sent, 2)

	// Only the latest code is accepted.
	replies = e.handle(t, Input{Text: e.mailer.sent[0]})
	if e.mailer.sent[0] != e.mailer.sent[1] {
		assert.Equal(t, msgBadCode, replies[0].Text)
	}
	e.handle(t, Input{Text: e.mailer.lastCode()})
	assert.Equal(t, StateRulesAck, e.sessions.state(t, "42").State)
}

func TestEmailDeliveryFailureConsumesNoBudget(t *testing.T) {
	e := newEnv(t)
	e.handle(t, Input{Command: "start"})
	e.handle(t, Input{Text: "Иванов"})
	e.handle(t, Input{Text: "Иван"})
	e.handle(t, Input{Callback: "skip_patronymic"})
	e.handle(t, Input{Text: "31.01.2005"})
	e.handle(t, Input{Text: "А901"})
	e.handle(t, Input{Callback: "confirm_reg"})

	e.mailer.sendErr = errors.New("smtp down")
	replies := e.handle(t, Input{Text: "ivanov"})
	assert.Equal(t, msgEmailFailed, replies[0].Text)
	assert.Empty(t, e.sessions.state(t, "42").EmailSends)

	// Recovery needs no waiting.
	e.mailer.sendErr = nil
	e.handle(t, Input{Text: "ivanov"})
	assert.Len(t, e.mailer.sent, 1)
	assert.Equal(t, StateEmailCode, e.sessions.state(t, "42").State)
}

func TestEmailTakenByOtherAccount(t *testing.T) {
	e := newEnv(t)
	e.users.byID["77"] = &models.User{
		AccountID:   "77",
		Email:       "ivanov@math.msu.ru",
		EmailStatus: models.EmailStatusConfirmed,
	}

	e.handle(t, Input{Command: "start"})
	e.handle(t, Input{Text: "Иванов"})
	e.handle(t, Input{Text: "Иван"})
	e.handle(t, Input{Callback: "skip_patronymic"})
	e.handle(t, Input{Text: "31.01.2005"})
	e.handle(t, Input{Text: "А901"})
	e.handle(t, Input{Callback: "confirm_reg"})

	replies := e.handle(t, Input{Text: "ivanov"})
	assert.Equal(t, msgEmailTaken, replies[0].Text)
	assert.Empty(t, e.mailer.sent)
}

func TestBookingFlow(t *testing.T) {
	e := newEnv(t)
	e.register(t)
	e.seedSlot(t, "02.09.2026", "18:00", "5")
	e.seedSlot(t, "03.09.2026", "10:00", "9")

	e.handle(t, Input{Callback: "menu_book"})
	assert.Equal(t, StateFilterSetup, e.sessions.state(t, "42").State)

	e.handle(t, Input{Callback: "filter_select_floor"})
	e.handle(t, Input{Callback: "option_toggle_floor:5"})
	e.handle(t, Input{Callback: "filter_back"})
	e.handle(t, Input{Callback: "filter_search"})
	assert.Equal(t, StateViewingSlots, e.sessions.state(t, "42").State)

	e.handle(t, Input{Callback: "slot_1"})
	sess := e.sessions.state(t, "42")
	assert.Equal(t, StateSlotConfirmation, sess.State)
	require.NotNil(t, sess.PendingSlot)
	assert.Equal(t, "02.09.2026", sess.PendingSlot.Date)

	replies := e.handle(t, Input{Callback: "confirm_book_1"})
	assert.Contains(t, replies[0].Text, "записан")
	assert.Contains(t, replies[0].Text, "А1010")
	assert.Contains(t, replies[0].Text, "@ivanova")

	// The slot is off the market, the reservation is in the log.
	slots, err := e.store.AvailableSlots(context.Background())
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "9", slots[0].Floor)

	reservations, err := e.store.Reservations(context.Background())
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	assert.Equal(t, inventory.StatusBooked, reservations[0].Status)
	assert.Equal(t, "Иванов Иван", reservations[0].FullName)

	// Reminders armed, supervisor notified immediately.
	assert.Equal(t, 3, e.scheduler.Pending(1))
	require.NotEmpty(t, e.chat.messagesTo("900"))
	assert.Contains(t, e.chat.messagesTo("900")[0], "Новая запись")

	// A second booking attempt bounces off the one-active rule.
	replies = e.handle(t, Input{Callback: "menu_book"})
	assert.Equal(t, msgActiveExists, replies[0].Text)
}

func TestBookingRaceFallsBackToMenu(t *testing.T) {
	e := newEnv(t)
	e.register(t)
	e.seedSlot(t, "02.09.2026", "18:00", "5")

	e.handle(t, Input{Callback: "menu_book"})
	e.handle(t, Input{Callback: "filter_search"})
	e.handle(t, Input{Callback: "slot_1"})

	// Another user snatches the slot between selection and confirmation.
	require.NoError(t, e.store.DeleteSlot(context.Background(), 1))

	replies := e.handle(t, Input{Callback: "confirm_book_1"})
	assert.Equal(t, msgSlotTaken, replies[0].Text)
	assert.Equal(t, StateMainMenu, e.sessions.state(t, "42").State)

	reservations, err := e.store.Reservations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reservations)
}

func TestCancelFlow(t *testing.T) {
	e := newEnv(t)
	e.register(t)
	e.seedSlot(t, "02.09.2026", "18:00", "5")

	e.handle(t, Input{Callback: "menu_book"})
	e.handle(t, Input{Callback: "filter_search"})
	e.handle(t, Input{Callback: "slot_1"})
	e.handle(t, Input{Callback: "confirm_book_1"})
	require.Equal(t, 3, e.scheduler.Pending(1))

	e.handle(t, Input{Callback: "menu_upcoming"})
	assert.Equal(t, StateViewingHistory, e.sessions.state(t, "42").State)

	e.handle(t, Input{Callback: "cancel_1"})
	assert.Equal(t, StateCancelConfirmation, e.sessions.state(t, "42").State)

	replies := e.handle(t, Input{Callback: "confirm_cancel_1"})
	assert.Equal(t, msgCanceled, replies[0].Text)

	// Slot restored, archive flipped, reminders gone, supervisor told.
	slots, err := e.store.AvailableSlots(context.Background())
	require.NoError(t, err)
	assert.Len(t, slots, 1)

	res, ok, err := e.store.ReservationAt(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, inventory.StatusCanceled, res.Status)

	assert.Equal(t, 0, e.scheduler.Pending(1))

	messages := e.chat.messagesTo("900")
	require.NotEmpty(t, messages)
	assert.Contains(t, messages[len(messages)-1], "Отмена")

	// Canceling the same reservation again fails politely.
	e.handle(t, Input{Callback: "menu_upcoming"})
	assert.Equal(t, StateMainMenu, e.sessions.state(t, "42").State)
}

func TestHistoryListing(t *testing.T) {
	e := newEnv(t)
	e.register(t)

	replies := e.handle(t, Input{Callback: "menu_history"})
	assert.Equal(t, msgHistoryEmpty, replies[0].Text)

	e.seedSlot(t, "02.09.2026", "18:00", "5")
	e.handle(t, Input{Callback: "menu_book"})
	e.handle(t, Input{Callback: "filter_search"})
	e.handle(t, Input{Callback: "slot_1"})
	e.handle(t, Input{Callback: "confirm_book_1"})

	replies = e.handle(t, Input{Callback: "menu_history"})
	require.NotEmpty(t, replies[0].Pages)
	assert.Contains(t, replies[0].Pages[0], "02.09.2026")
	assert.Contains(t, replies[0].Pages[0], "активна")
}

func TestMainMenuFuzzyText(t *testing.T) {
	e := newEnv(t)
	e.register(t)
	e.seedSlot(t, "02.09.2026", "18:00", "5")

	// Typed text close to a menu label lands in the booking flow.
	e.handle(t, Input{Text: "Записаться"})
	assert.Equal(t, StateFilterSetup, e.sessions.state(t, "42").State)
}

func TestCancelCommandAbortsFlow(t *testing.T) {
	e := newEnv(t)
	e.register(t)
	e.seedSlot(t, "02.09.2026", "18:00", "5")

	e.handle(t, Input{Callback: "menu_book"})
	e.handle(t, Input{Callback: "filter_search"})
	e.handle(t, Input{Callback: "slot_1"})

	replies := e.handle(t, Input{Command: "cancel"})
	assert.Equal(t, msgActionAborted, replies[0].Text)

	sess := e.sessions.state(t, "42")
	assert.Equal(t, StateMainMenu, sess.State)
	assert.Nil(t, sess.PendingSlot)
}

func TestStartResumesAtEmailWhenUnconfirmed(t *testing.T) {
	e := newEnv(t)
	e.handle(t, Input{Command: "start"})
	e.handle(t, Input{Text: "Иванов"})
	e.handle(t, Input{Text: "Иван"})
	e.handle(t, Input{Callback: "skip_patronymic"})
	e.handle(t, Input{Text: "31.01.2005"})
	e.handle(t, Input{Text: "А901"})
	e.handle(t, Input{Callback: "confirm_reg"})

	// Restarting does not force re-entering the profile.
	replies := e.handle(t, Input{Command: "start"})
	assert.Contains(t, replies[0].Text, "почту")
	assert.Equal(t, StateEmail, e.sessions.state(t, "42").State)
}

func TestStoreFailureLeavesSessionIntact(t *testing.T) {
	e := newEnv(t)
	e.handle(t, Input{Command: "start"})
	e.handle(t, Input{Text: "Иванов"})

	before := e.sessions.state(t, "42")
	require.Equal(t, StateName, before.State)

	e.sessions.fail = true
	_, err := e.machine.Handle(context.Background(), "42", "vasya", Input{Text: "Иван"})
	assert.Error(t, err)
	e.sessions.fail = false

	// The persisted state is still the pre-input one.
	after := e.sessions.state(t, "42")
	assert.Equal(t, StateName, after.State)
	assert.Empty(t, after.FirstName)
}
