// Package conversation is the per-user state machine behind the bot: it maps
// (current state, input) to replies and a next state. All state lives in the
// session repository, so any process replica can handle any input.
package conversation

import (
	"context"
	"log/slog"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/studcom-mm/washbot/washbot/booking"
	"github.com/studcom-mm/washbot/washbot/database/models"
	"github.com/studcom-mm/washbot/washbot/database/repositories"
	"github.com/studcom-mm/washbot/washbot/inventory"
	"github.com/studcom-mm/washbot/washbot/mail"
)

// Options are the tunables the machine needs beyond its collaborators.
type Options struct {
	EmailDomain  string
	SlotsPerPage int
	DatesPerPage int
	RulesPath    string
	MemoPath     string
}

type Machine struct {
	users    repositories.UserRepository
	sessions repositories.SessionRepository
	store    *inventory.Store

	allocator *booking.Allocator
	search    *booking.Search
	notifier  *Notifier

	mailer   mail.Sender
	verifier *mail.Verifier

	opts Options
	loc  *time.Location
	now  func() time.Time
}

func NewMachine(
	users repositories.UserRepository,
	sessions repositories.SessionRepository,
	store *inventory.Store,
	allocator *booking.Allocator,
	search *booking.Search,
	notifier *Notifier,
	mailer mail.Sender,
	verifier *mail.Verifier,
	opts Options,
	loc *time.Location,
	now func() time.Time,
) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{
		users:     users,
		sessions:  sessions,
		store:     store,
		allocator: allocator,
		search:    search,
		notifier:  notifier,
		mailer:    mailer,
		verifier:  verifier,
		opts:      opts,
		loc:       loc,
		now:       now,
	}
}

// turn bundles the identity of the current input with its mutable session.
type turn struct {
	accountID string
	username  string
	sess      *Session
}

// Handle processes one user input. The block check runs fresh on every call,
// before any state logic. The session is persisted only when the handler
// succeeds; on failure the stored pre-input state stays untouched, so the
// user can simply retry.
func (m *Machine) Handle(ctx context.Context, accountID, username string, in Input) ([]Reply, error) {
	blocked, err := m.users.IsBlocked(ctx, accountID)
	if err != nil {
		slog.Error("Block check failed",
			slog.String("type", "cmd"),
			slog.String("account_id", accountID),
			slog.Any("error", err))
		return []Reply{text(msgStoreUnavailable)}, err
	}
	if blocked {
		if err := m.sessions.Delete(ctx, accountID); err != nil {
			slog.Error("Failed to drop session of blocked user",
				slog.String("type", "db"),
				slog.String("account_id", accountID),
				slog.Any("error", err))
		}
		return []Reply{text(msgBlocked)}, nil
	}

	raw, err := m.sessions.Get(ctx, accountID)
	if err != nil {
		return []Reply{text(msgStoreUnavailable)}, err
	}

	var sess *Session
	if raw != nil {
		sess, err = decodeSession(raw)
		if err != nil {
			// A session written by an older build may not decode; start over
			// rather than wedging the user.
			slog.Warn("Discarding undecodable session",
				slog.String("type", "cmd"),
				slog.String("account_id", accountID),
				slog.Any("error", err))
			sess = nil
		}
	}

	t := &turn{accountID: accountID, username: username, sess: sess}

	replies, err := m.route(ctx, t, in)
	if err != nil {
		slog.Error("Input handling failed",
			slog.String("type", "cmd"),
			slog.String("account_id", accountID),
			slog.String("state", stateName(t.sess)),
			slog.Any("error", err))
		return []Reply{text(msgStoreUnavailable)}, err
	}

	encoded, err := t.sess.encode()
	if err != nil {
		return []Reply{text(msgStoreUnavailable)}, err
	}
	if err := m.sessions.Put(ctx, accountID, encoded); err != nil {
		return []Reply{text(msgStoreUnavailable)}, err
	}
	return replies, nil
}

func stateName(sess *Session) string {
	if sess == nil {
		return "none"
	}
	return sess.State.String()
}

func (m *Machine) route(ctx context.Context, t *turn, in Input) ([]Reply, error) {
	if in.Command != "" {
		return m.handleCommand(ctx, t, in.Command)
	}
	if t.sess == nil {
		// Unknown user talking without /start; walk them in anyway.
		return m.handleStart(ctx, t)
	}
	return m.dispatch(ctx, t, in)
}

func (m *Machine) handleCommand(ctx context.Context, t *turn, command string) ([]Reply, error) {
	switch command {
	case "start":
		return m.handleStart(ctx, t)
	case "cancel":
		return m.handleCancelCommand(ctx, t)
	case "help":
		return m.handleHelp(ctx, t)
	case "my_bookings":
		return m.registeredFlow(ctx, t, m.showUpcoming)
	case "history":
		return m.registeredFlow(ctx, t, m.showHistory)
	}
	if t.sess == nil {
		return m.handleStart(ctx, t)
	}
	return []Reply{text(msgUseButtons)}, nil
}

// registeredFlow runs a shortcut command for registered users; anyone else is
// walked into onboarding instead.
func (m *Machine) registeredFlow(
	ctx context.Context,
	t *turn,
	flow func(context.Context, *turn) ([]Reply, error),
) ([]Reply, error) {
	user, err := m.users.GetByAccountID(ctx, t.accountID)
	if err != nil && err != repositories.ErrUserNotFound {
		return nil, err
	}
	if user == nil || !user.Registered() {
		return m.handleStart(ctx, t)
	}
	if t.sess == nil {
		t.sess = newSession(StateMainMenu)
	}
	return flow(ctx, t)
}

// handleStart is the entry point and the universal reset. Where it lands
// depends on how far the user previously got.
func (m *Machine) handleStart(ctx context.Context, t *turn) ([]Reply, error) {
	if t.sess == nil {
		t.sess = newSession(StateSurname)
	}

	user, err := m.users.GetByAccountID(ctx, t.accountID)
	if err != nil && err != repositories.ErrUserNotFound {
		return nil, err
	}

	switch {
	case user == nil:
		t.sess.reset(StateSurname)
		return []Reply{text(msgWelcome)}, nil
	case user.Registered():
		return m.toMainMenu(t), nil
	case user.Surname != "":
		// Profile captured earlier but email never confirmed; resume there.
		t.sess.reset(StateEmail)
		return []Reply{text(msgAskEmail(m.opts.EmailDomain))}, nil
	default:
		t.sess.reset(StateSurname)
		return []Reply{text(msgWelcome)}, nil
	}
}

// handleCancelCommand aborts whatever flow is active. A registered user lands
// in the main menu; an unregistered one restarts registration.
func (m *Machine) handleCancelCommand(ctx context.Context, t *turn) ([]Reply, error) {
	user, err := m.users.GetByAccountID(ctx, t.accountID)
	if err != nil && err != repositories.ErrUserNotFound {
		return nil, err
	}
	if user != nil && user.Registered() {
		if t.sess == nil {
			t.sess = newSession(StateMainMenu)
		}
		t.sess.reset(StateMainMenu)
		return []Reply{menuReply(msgActionAborted)}, nil
	}
	if t.sess == nil {
		t.sess = newSession(StateSurname)
	}
	t.sess.reset(StateSurname)
	return []Reply{text(msgAskSurname)}, nil
}

func (m *Machine) handleHelp(ctx context.Context, t *turn) ([]Reply, error) {
	if t.sess == nil {
		t.sess = newSession(StateSurname)
		replies, err := m.handleStart(ctx, t)
		if err != nil {
			return nil, err
		}
		return append([]Reply{text(msgHelp)}, replies...), nil
	}
	return []Reply{text(msgHelp)}, nil
}

func (m *Machine) dispatch(ctx context.Context, t *turn, in Input) ([]Reply, error) {
	switch t.sess.State {
	case StateSurname:
		return m.handleSurname(t, in)
	case StateName:
		return m.handleName(t, in)
	case StatePatronymic:
		return m.handlePatronymic(t, in)
	case StateDateOfBirth:
		return m.handleDateOfBirth(t, in)
	case StateRoom:
		return m.handleRoom(t, in)
	case StateRegistrationConfirm:
		return m.handleRegistrationConfirm(ctx, t, in)
	case StateEmail:
		return m.handleEmail(ctx, t, in)
	case StateEmailCode:
		return m.handleEmailCode(ctx, t, in)
	case StateRulesAck:
		return m.handleRulesAck(ctx, t, in)
	case StateMainMenu:
		return m.handleMainMenu(ctx, t, in)
	case StateFilterSetup:
		return m.handleFilterSetup(ctx, t, in)
	case StateViewingSlots:
		return m.handleViewingSlots(ctx, t, in)
	case StateSlotConfirmation:
		return m.handleSlotConfirmation(ctx, t, in)
	case StateViewingHistory:
		return m.handleViewingHistory(ctx, t, in)
	case StateCancelConfirmation:
		return m.handleCancelConfirmation(ctx, t, in)
	case StateBlocked:
		return []Reply{text(msgBlocked)}, nil
	}
	return m.toMainMenu(t), nil
}

// handleMainMenu accepts menu buttons and, for typed text, the closest menu
// label match.
func (m *Machine) handleMainMenu(ctx context.Context, t *turn, in Input) ([]Reply, error) {
	action := in.Callback
	if action == "" && in.Text != "" {
		if matches := fuzzy.Find(in.Text, menuLabels); len(matches) > 0 {
			switch menuLabels[matches[0].Index] {
			case menuBook:
				action = "menu_book"
			case menuUpcoming:
				action = "menu_upcoming"
			case menuHistory:
				action = "menu_history"
			}
		}
	}

	switch action {
	case "menu_book":
		return m.startBooking(ctx, t)
	case "menu_upcoming":
		return m.showUpcoming(ctx, t)
	case "menu_history":
		return m.showHistory(ctx, t)
	}
	return []Reply{menuReply(msgUseButtons)}, nil
}

func (m *Machine) toMainMenu(t *turn) []Reply {
	t.sess.reset(StateMainMenu)
	return []Reply{menuReply(msgMainMenu)}
}

// currentUser loads the user row; a missing row here is an inconsistency
// (flows past registration assume it exists) and is reported as an error.
func (m *Machine) currentUser(ctx context.Context, t *turn) (*models.User, error) {
	return m.users.GetByAccountID(ctx, t.accountID)
}
