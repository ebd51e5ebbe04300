package conversation

// Input is one turn of user input, already stripped of transport details:
// exactly one of Command, Text or Callback is set.
type Input struct {
	Command  string // slash command without the slash: start, help, ...
	Text     string // free text
	Callback string // structured button token
}

// Button is an inline button the transport should render under a message.
type Button struct {
	Label string
	Token string
}

// Reply is a transport-neutral outgoing message.
type Reply struct {
	Text      string
	Buttons   [][]Button
	Edit      bool     // replace the message whose button produced the input
	MainMenu  bool     // render the persistent main-menu keyboard
	Documents []string // file paths to attach
	Pages     []string // multi-page content; the transport owns navigation
}

func text(t string) Reply {
	return Reply{Text: t}
}

func menuReply(t string) Reply {
	return Reply{Text: t, MainMenu: true}
}

func edit(t string, buttons ...[]Button) Reply {
	return Reply{Text: t, Buttons: buttons, Edit: true}
}

func btn(label, token string) Button {
	return Button{Label: label, Token: token}
}

// Main-menu button labels; free text is matched against these.
const (
	menuBook     = "Записаться на стирку"
	menuUpcoming = "Мои записи"
	menuHistory  = "История записей"
)

var menuLabels = []string{menuBook, menuUpcoming, menuHistory}

// Fixed user-facing texts.
const (
	msgBlocked          = "К сожалению, твой доступ к боту заблокирован."
	msgMainMenu         = "Ты в главном меню:"
	msgUseButtons       = "Используй, пожалуйста, кнопки."
	msgStoreUnavailable = "Произошла ошибка при обращении к хранилищу. Попробуй, пожалуйста, позже."
	msgWelcome          = "Добро пожаловать в бот для записи на стирку от Студкома мехмата.\n\n" +
		"Для получения доступа к функционалу бота необходимо пройти регистрацию:\n\n" +
		"Введи свою фамилию с большой буквы (пример: Иванов):"
	msgAskSurname    = "Давай начнем сначала. Введи свою фамилию с большой буквы (пример: Иванов):"
	msgAskName       = "Теперь введи свое имя с большой буквы (пример: Иван):"
	msgAskPatronymic = "Введи свое отчество с большой буквы (пример: Иванович) (если нет, нажми «Пропустить»):"
	msgAskDOB        = "Введи свою дату рождения в формате ДД.ММ.ГГГГ (пример: 31.01.2000):"
	msgBadDOB        = "Неверный формат. Пожалуйста, введи дату в формате ДД.ММ.ГГГГ (пример: 31.01.2000):"
	msgAskRoom       = "Введи номер своей комнаты (пример: А901):"
	msgBadCode       = "Неверный код. Попробуй еще раз."
	msgResendSoon    = "Отправлять код можно не чаще раза в минуту. Подожди немного."
	msgResendLimit   = "Ты слишком часто запрашиваешь код. Пожалуйста, подожди 30 минут."
	msgEmailTaken    = "Этот email уже используется другим аккаунтом. Пожалуйста, введи другой."
	msgEmailFailed   = "Не удалось отправить письмо. Обратись в сообщения группы Студкома мехмата: vk.com/studcom_mm"
	msgSlotTaken     = "😔 Упс! Этот слот только что заняли."
	msgBookingError  = "Произошла серьезная ошибка при бронировании. Пожалуйста, сообщи об этом."
	msgNoSlots       = "😔 Свободных слотов не найдено."
	msgActiveExists  = "У тебя уже есть активная запись."
	msgCanceled      = "✅ Запись успешно отменена."
	msgCancelFailed  = "❌ Не удалось отменить запись."
	msgActionAborted = "Действие отменено. Ты возвращен в главное меню."
)

// MainMenuButtons is the persistent reply keyboard of the main menu. The
// transport renders it whenever Reply.MainMenu is set.
func MainMenuButtons() [][]Button {
	return [][]Button{
		{btn(menuBook, "menu_book")},
		{btn(menuUpcoming, "menu_upcoming"), btn(menuHistory, "menu_history")},
	}
}
