package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/studcom-mm/washbot/washbot/database/models"
	"github.com/studcom-mm/washbot/washbot/inventory"
	"github.com/studcom-mm/washbot/washbot/mail"
)

const (
	msgHelp = "Этот бот записывает жителей ДСЛ на стирку.\n\n" +
		"/start — начать сначала\n" +
		"/cancel — отменить текущее действие\n\n" +
		"По всем вопросам: vk.com/studcom_mm"
	msgBadNamePart = "Пожалуйста, введи одно слово с большой буквы, без цифр."
	msgCodeSent    = "На адрес %s отправлено письмо с кодом. Введи 6-значный код из письма:"
	msgRulesPrompt = "Почта подтверждена! ✅\n\nОсталось ознакомиться с правилами стирки (файлы выше) и принять их:"
	msgRegistered  = "Регистрация завершена! Добро пожаловать 🎉"
	msgConfirmReg  = "Проверь, пожалуйста, свои данные:\n\n%s\n\nВсе верно?"
	msgBadEmail    = "Это не похоже на адрес в домене %s. Попробуй еще раз:"
	btnYes         = "Да, все верно"
	btnRetry       = "Заполнить заново"
	btnSkip        = "Пропустить"
	btnResendCode  = "Отправить код повторно"
	btnChangeEmail = "Изменить адрес"
	btnAcceptRules = "Принимаю правила"
)

func msgAskEmail(domain string) string {
	return fmt.Sprintf("Введи свою почту в домене %s (можно только логин, без домена):", domain)
}

// validNamePart accepts a single capitalized word with no digits.
func validNamePart(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t") {
		return false
	}
	first, _ := utf8.DecodeRuneInString(s)
	if !unicode.IsUpper(first) {
		return false
	}
	for _, r := range s {
		if unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func (m *Machine) handleSurname(t *turn, in Input) ([]Reply, error) {
	v := strings.TrimSpace(in.Text)
	if !validNamePart(v) {
		return []Reply{text(msgBadNamePart)}, nil
	}
	t.sess.Surname = v
	t.sess.State = StateName
	return []Reply{text(msgAskName)}, nil
}

func (m *Machine) handleName(t *turn, in Input) ([]Reply, error) {
	v := strings.TrimSpace(in.Text)
	if !validNamePart(v) {
		return []Reply{text(msgBadNamePart)}, nil
	}
	t.sess.FirstName = v
	t.sess.State = StatePatronymic
	return []Reply{
		{Text: msgAskPatronymic, Buttons: [][]Button{{btn(btnSkip, "skip_patronymic")}}},
	}, nil
}

func (m *Machine) handlePatronymic(t *turn, in Input) ([]Reply, error) {
	if in.Callback == "skip_patronymic" {
		t.sess.Patronymic = ""
		t.sess.State = StateDateOfBirth
		return []Reply{edit(msgAskDOB)}, nil
	}
	v := strings.TrimSpace(in.Text)
	if !validNamePart(v) {
		return []Reply{text(msgBadNamePart)}, nil
	}
	t.sess.Patronymic = v
	t.sess.State = StateDateOfBirth
	return []Reply{text(msgAskDOB)}, nil
}

func (m *Machine) handleDateOfBirth(t *turn, in Input) ([]Reply, error) {
	v := strings.TrimSpace(in.Text)
	dob, err := time.ParseInLocation(inventory.DateLayout, v, m.loc)
	if err != nil {
		return []Reply{text(msgBadDOB)}, nil
	}
	now := m.now().In(m.loc)
	if dob.After(now) || dob.Year() < now.Year()-100 {
		return []Reply{text(msgBadDOB)}, nil
	}
	t.sess.DateOfBirth = dob.Format(inventory.DateLayout)
	t.sess.State = StateRoom
	return []Reply{text(msgAskRoom)}, nil
}

func (m *Machine) handleRoom(t *turn, in Input) ([]Reply, error) {
	v := strings.TrimSpace(in.Text)
	if v == "" || utf8.RuneCountInString(v) > 10 {
		return []Reply{text(msgAskRoom)}, nil
	}
	t.sess.Room = v
	t.sess.State = StateRegistrationConfirm

	summary := fmt.Sprintf("ФИО: %s %s %s\nДата рождения: %s\nКомната: %s",
		t.sess.Surname, t.sess.FirstName, t.sess.Patronymic,
		t.sess.DateOfBirth, t.sess.Room)
	return []Reply{
		{
			Text: fmt.Sprintf(msgConfirmReg, summary),
			Buttons: [][]Button{
				{btn(btnYes, "confirm_reg")},
				{btn(btnRetry, "retry_reg")},
			},
		},
	}, nil
}

func (m *Machine) handleRegistrationConfirm(ctx context.Context, t *turn, in Input) ([]Reply, error) {
	switch in.Callback {
	case "confirm_reg":
		user := &models.User{
			AccountID:   t.accountID,
			Username:    t.username,
			Surname:     t.sess.Surname,
			FirstName:   t.sess.FirstName,
			Patronymic:  t.sess.Patronymic,
			DateOfBirth: t.sess.DateOfBirth,
			Room:        t.sess.Room,
			EmailStatus: models.EmailStatusPending,
		}
		if err := m.users.Upsert(ctx, user); err != nil {
			return nil, err
		}
		t.sess.State = StateEmail
		return []Reply{edit(msgAskEmail(m.opts.EmailDomain))}, nil
	case "retry_reg":
		t.sess.reset(StateSurname)
		return []Reply{edit(msgAskSurname)}, nil
	}
	return []Reply{text(msgUseButtons)}, nil
}

func (m *Machine) handleEmail(ctx context.Context, t *turn, in Input) ([]Reply, error) {
	v := strings.ToLower(strings.TrimSpace(in.Text))
	if v == "" {
		return []Reply{text(msgUseButtons)}, nil
	}
	if !strings.Contains(v, "@") {
		v += m.opts.EmailDomain
	}
	if !strings.HasSuffix(v, m.opts.EmailDomain) || strings.Count(v, "@") != 1 ||
		strings.TrimSuffix(v, m.opts.EmailDomain) == "" {
		return []Reply{text(fmt.Sprintf(msgBadEmail, m.opts.EmailDomain))}, nil
	}

	taken, err := m.users.EmailTakenByOther(ctx, v, t.accountID)
	if err != nil {
		return nil, err
	}
	if taken {
		return []Reply{text(msgEmailTaken)}, nil
	}

	t.sess.Email = v
	return m.sendVerificationCode(ctx, t)
}

// sendVerificationCode applies the resend policy, mails a fresh code and
// moves the session to the code prompt. A failed delivery consumes no budget.
func (m *Machine) sendVerificationCode(ctx context.Context, t *turn) ([]Reply, error) {
	pruned, err := m.verifier.Throttle(t.sess.EmailSends)
	t.sess.EmailSends = pruned
	switch err {
	case mail.ErrResendTooSoon:
		return []Reply{text(msgResendSoon)}, nil
	case mail.ErrWindowExhausted:
		return []Reply{text(msgResendLimit)}, nil
	}

	code := m.verifier.GenerateCode()
	if err := m.mailer.SendVerificationCode(ctx, t.sess.Email, code); err != nil {
		return []Reply{text(msgEmailFailed)}, nil
	}

	t.sess.VerificationCode = code
	t.sess.EmailSends = m.verifier.Record(t.sess.EmailSends)
	if err := m.users.SetEmail(ctx, t.accountID, t.sess.Email, models.EmailStatusSent); err != nil {
		return nil, err
	}

	t.sess.State = StateEmailCode
	return []Reply{
		{
			Text: fmt.Sprintf(msgCodeSent, t.sess.Email),
			Buttons: [][]Button{
				{btn(btnResendCode, "resend_code")},
				{btn(btnChangeEmail, "change_email")},
			},
		},
	}, nil
}

func (m *Machine) handleEmailCode(ctx context.Context, t *turn, in Input) ([]Reply, error) {
	switch in.Callback {
	case "resend_code":
		return m.sendVerificationCode(ctx, t)
	case "change_email":
		t.sess.Email = ""
		t.sess.VerificationCode = ""
		t.sess.State = StateEmail
		return []Reply{edit(msgAskEmail(m.opts.EmailDomain))}, nil
	}

	code := strings.TrimSpace(in.Text)
	if code == "" || t.sess.VerificationCode == "" || code != t.sess.VerificationCode {
		// Wrong guesses are free; only sends are metered.
		return []Reply{text(msgBadCode)}, nil
	}

	if err := m.users.SetEmail(ctx, t.accountID, t.sess.Email, models.EmailStatusConfirmed); err != nil {
		return nil, err
	}
	t.sess.VerificationCode = ""
	t.sess.State = StateRulesAck

	return []Reply{
		{
			Text:      msgRulesPrompt,
			Documents: []string{m.opts.RulesPath, m.opts.MemoPath},
			Buttons:   [][]Button{{btn(btnAcceptRules, "rules_accepted")}},
		},
	}, nil
}

func (m *Machine) handleRulesAck(ctx context.Context, t *turn, in Input) ([]Reply, error) {
	if in.Callback != "rules_accepted" {
		return []Reply{text(msgUseButtons)}, nil
	}
	if err := m.users.CompleteRegistration(ctx, t.accountID); err != nil {
		return nil, err
	}
	t.sess.reset(StateMainMenu)
	return []Reply{edit(msgRegistered), menuReply(msgMainMenu)}, nil
}
