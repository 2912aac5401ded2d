// Package bot is a Telegram front-end for the booking widget of one business.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"reservo/internal/mode"
	"reservo/internal/widget"
)

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	SelfUser() tgbotapi.User
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) Request(msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return c.api.Request(msg)
}

func (c *realTelegramClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.api.GetUpdatesChan(cfg)
}

func (c *realTelegramClient) SelfUser() tgbotapi.User {
	return c.api.Self
}

const (
	btnBook = "🗓 Записаться"
	btnHelp = "ℹ️ Помощь"
)

var mainMenu = tgbotapi.NewReplyKeyboard(
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton(btnBook),
		tgbotapi.NewKeyboardButton(btnHelp),
	),
)

// Bot walks customers through choosing a slot and submits their booking.
type Bot struct {
	businessID string
	src        widget.Source
	sub        widget.Submitter
	opts       widget.Options
	tg         telegramClient
	state      *stateStore
	logger     *zerolog.Logger
}

func New(token string, debug bool, businessID string, src widget.Source, sub widget.Submitter, opts widget.Options, logger *zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = debug
	return newBot(&realTelegramClient{api: api}, businessID, src, sub, opts, logger)
}

// NewWithTelegramClient allows injecting a mocked Telegram client for tests.
func NewWithTelegramClient(tg telegramClient, businessID string, src widget.Source, sub widget.Submitter, opts widget.Options, logger *zerolog.Logger) (*Bot, error) {
	return newBot(tg, businessID, src, sub, opts, logger)
}

func newBot(tg telegramClient, businessID string, src widget.Source, sub widget.Submitter, opts widget.Options, logger *zerolog.Logger) (*Bot, error) {
	if tg == nil {
		return nil, fmt.Errorf("telegram client is nil")
	}
	if businessID == "" {
		return nil, fmt.Errorf("business id is required")
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Logger = logger
	return &Bot{
		businessID: businessID,
		src:        src,
		sub:        sub,
		opts:       opts,
		tg:         tg,
		state:      newStateStore(),
		logger:     logger,
	}, nil
}

// Start polls updates until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.tg.GetUpdatesChan(u)
	b.logger.Info().Str("username", b.tg.SelfUser().UserName).Str("business", b.businessID).Msg("Booking bot authorized")

	for {
		select {
		case <-ctx.Done():
			return
		case update := <-updates:
			l := b.logger.With().Str("request_id", uuid.New().String()).Logger()
			b.handleUpdate(l.WithContext(ctx), &update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update *tgbotapi.Update) {
	l := zerolog.Ctx(ctx)
	if update.CallbackQuery != nil {
		l.Debug().
			Int64("user_id", update.CallbackQuery.From.ID).
			Str("data", update.CallbackQuery.Data).
			Msg("Handling callback query")
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message != nil {
		l.Debug().
			Int64("user_id", update.Message.From.ID).
			Str("text", update.Message.Text).
			Msg("Handling message")
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.From == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	chatID, userID := msg.Chat.ID, msg.From.ID

	switch {
	case strings.HasPrefix(text, "/start"):
		b.state.reset(userID)
		b.sendMainMenu(chatID)
		return
	case text == btnBook || strings.HasPrefix(text, "/book"):
		b.startBookingFlow(ctx, chatID, userID)
		return
	case text == btnHelp || strings.HasPrefix(text, "/help"):
		b.reply(chatID, "Доступные команды: /book, /cancel, /help")
		return
	case strings.HasPrefix(text, "/cancel"):
		b.state.reset(userID)
		b.reply(chatID, "Операция отменена.")
		b.sendMainMenu(chatID)
		return
	}

	st := b.state.get(userID)
	switch st.Step {
	case stepName:
		if text == "" {
			b.reply(chatID, "Введите имя:")
			return
		}
		st.Draft.Name = text
		st.Step = stepContact
		out := tgbotapi.NewMessage(chatID, "Введите телефон или email для связи:")
		out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(backRow("name"))
		_, _ = b.tg.Send(out)
	case stepContact:
		if strings.Contains(text, "@") {
			st.Draft.Email, st.Draft.Phone = text, ""
		} else {
			phone, ok := normalizeAndValidatePhone(text)
			if !ok {
				b.reply(chatID, "Некорректный телефон. Пример: +7 999 123-45-67")
				return
			}
			st.Draft.Phone, st.Draft.Email = phone, ""
		}
		st.Step = stepConfirm
		b.sendConfirm(chatID, st)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq == nil || cq.Message == nil {
		return
	}
	data := cq.Data
	_ = b.answerCallback(cq.ID)
	if data == "noop" {
		return
	}

	chatID, userID := cq.Message.Chat.ID, cq.From.ID
	st := b.state.get(userID)
	if st.Session == nil && data != "cancel" {
		b.startBookingFlow(ctx, chatID, userID)
		return
	}

	switch {
	case strings.HasPrefix(data, "svc:"):
		b.handleServiceCallback(ctx, chatID, st, strings.TrimPrefix(data, "svc:"))
	case strings.HasPrefix(data, "pro:"):
		st.Draft.ProfessionalID = strings.TrimPrefix(data, "pro:")
		b.showCurrentMonth(ctx, chatID, st)
	case strings.HasPrefix(data, "cls:"):
		st.Draft.ClassID = strings.TrimPrefix(data, "cls:")
		b.showCurrentMonth(ctx, chatID, st)
	case strings.HasPrefix(data, "zone:"):
		st.Draft.Zone = strings.TrimPrefix(data, "zone:")
		b.showCurrentMonth(ctx, chatID, st)
	case strings.HasPrefix(data, "ws:"):
		st.Draft.WorkshopSessionID = strings.TrimPrefix(data, "ws:")
		b.askName(chatID, st)
	case strings.HasPrefix(data, "month:"):
		t, err := time.Parse("2006-01", strings.TrimPrefix(data, "month:"))
		if err != nil {
			return
		}
		b.sendCalendar(ctx, chatID, st, t.Year(), t.Month())
	case strings.HasPrefix(data, "date:"):
		st.Draft.Date = strings.TrimPrefix(data, "date:")
		b.sendSlots(ctx, chatID, st)
	case strings.HasPrefix(data, "slot:"):
		if st.Draft.Date == "" {
			b.reply(chatID, "Сначала выберите дату")
			return
		}
		st.Draft.Time = strings.TrimPrefix(data, "slot:")
		b.askName(chatID, st)
	case strings.HasPrefix(data, "back:"):
		b.handleBack(ctx, chatID, st, strings.TrimPrefix(data, "back:"))
	case data == "consent":
		if st.Step == stepConfirm {
			st.Draft.ContactConsent = !st.Draft.ContactConsent
			b.sendConfirm(chatID, st)
		}
	case data == "confirm":
		b.handleConfirm(ctx, chatID, userID, st)
	case data == "cancel":
		b.state.reset(userID)
		b.reply(chatID, "Бронирование отменено.")
		b.sendMainMenu(chatID)
	}
}

func (b *Bot) startBookingFlow(ctx context.Context, chatID, userID int64) {
	b.state.reset(userID)
	st := b.state.get(userID)
	st.Session = widget.Open(ctx, b.businessID, b.src, b.sub, b.opts)
	st.Step = stepItem
	b.sendItems(ctx, chatID, st)
}

func (b *Bot) sendItems(ctx context.Context, chatID int64, st *userState) {
	m := st.Session.Mode()
	var sessions []mode.WorkshopSession
	if _, ok := m.(mode.Workshop); ok {
		var err error
		sessions, err = st.Session.Workshops(ctx)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to load workshops")
			b.reply(chatID, "Не удалось загрузить список занятий. Попробуйте позже.")
			return
		}
	}

	text := "Выберите услугу:"
	switch m.(type) {
	case mode.Table:
		text = "Выберите зал:"
	case mode.Class:
		text = "Выберите занятие:"
	case mode.Workshop:
		text = "Выберите мастер-класс:"
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = ItemsKeyboard(m, sessions)
	_, _ = b.tg.Send(msg)
}

func (b *Bot) handleServiceCallback(ctx context.Context, chatID int64, st *userState, id string) {
	st.Draft.ServiceID = id
	appt, ok := st.Session.Mode().(mode.Appointment)
	if !ok {
		return
	}
	switch len(appt.Professionals) {
	case 0:
		b.reply(chatID, "Нет доступных специалистов.")
	case 1:
		st.Draft.ProfessionalID = appt.Professionals[0].ID
		b.showCurrentMonth(ctx, chatID, st)
	default:
		msg := tgbotapi.NewMessage(chatID, "Выберите специалиста:")
		msg.ReplyMarkup = ProfessionalsKeyboard(appt.Professionals)
		_, _ = b.tg.Send(msg)
	}
}

func (b *Bot) handleBack(ctx context.Context, chatID int64, st *userState, step string) {
	switch step {
	case "item":
		st.Step = stepItem
		b.sendItems(ctx, chatID, st)
	case "date":
		if st.Draft.Year == 0 {
			b.showCurrentMonth(ctx, chatID, st)
			return
		}
		b.sendCalendar(ctx, chatID, st, st.Draft.Year, st.Draft.Month)
	case "time":
		if st.Draft.WorkshopSessionID != "" {
			st.Step = stepItem
			b.sendItems(ctx, chatID, st)
			return
		}
		b.sendSlots(ctx, chatID, st)
	case "name":
		b.askName(chatID, st)
	}
}

func selection(d BookingDraft) mode.Selection {
	return mode.Selection{ServiceID: d.ServiceID, ClassID: d.ClassID, Zone: d.Zone}
}

func (b *Bot) showCurrentMonth(ctx context.Context, chatID int64, st *userState) {
	now := b.opts.Now().In(st.Session.Location())
	b.sendCalendar(ctx, chatID, st, now.Year(), now.Month())
}

func (b *Bot) sendCalendar(ctx context.Context, chatID int64, st *userState, year int, month time.Month) {
	st.Step = stepDate
	st.Draft.Year, st.Draft.Month = year, month

	m, err := st.Session.ShowMonth(ctx, year, month, selection(st.Draft))
	if errors.Is(err, widget.ErrStale) {
		return
	}
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to load calendar")
		b.reply(chatID, "Не удалось загрузить календарь. Попробуйте позже.")
		return
	}

	text := "Выберите дату:"
	if m.Unverified() {
		text += "\n" + markUnverified + " — не удалось проверить занятость, попробуйте позже."
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = CalendarKeyboard(year, month, m.Days)
	_, _ = b.tg.Send(msg)
}

func (b *Bot) sendSlots(ctx context.Context, chatID int64, st *userState) {
	st.Step = stepTime
	view, err := st.Session.SelectDate(ctx, st.Draft.Date, selection(st.Draft))
	switch {
	case errors.Is(err, widget.ErrStale):
		return
	case errors.Is(err, widget.ErrOccupancyUnavailable):
		msg := tgbotapi.NewMessage(chatID, "Не удалось проверить занятость на эту дату. Попробуйте позже.")
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(backRow("date"))
		_, _ = b.tg.Send(msg)
		return
	case err != nil:
		zerolog.Ctx(ctx).Error().Err(err).Str("date", st.Draft.Date).Msg("Failed to load slots")
		b.reply(chatID, "Не удалось загрузить расписание.")
		return
	}

	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Свободное время на %s:", st.Draft.Date))
	msg.ReplyMarkup = SlotsKeyboard(view)
	_, _ = b.tg.Send(msg)
}

func (b *Bot) askName(chatID int64, st *userState) {
	st.Step = stepName
	msg := tgbotapi.NewMessage(chatID, "Введите ваше имя:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(backRow("time"))
	_, _ = b.tg.Send(msg)
}

func (b *Bot) sendConfirm(chatID int64, st *userState) {
	d := st.Draft
	var sb strings.Builder
	sb.WriteString("Проверьте заявку:\n")
	switch {
	case d.WorkshopSessionID != "":
		fmt.Fprintf(&sb, "Мастер-класс: %s\n", d.WorkshopSessionID)
	default:
		fmt.Fprintf(&sb, "Дата: %s\nВремя: %s\n", d.Date, d.Time)
		if d.Zone != "" {
			fmt.Fprintf(&sb, "Зал: %s\n", d.Zone)
		}
	}
	fmt.Fprintf(&sb, "Гостей: %d\n", mode.DefaultPartySize(st.Session.Mode()))
	fmt.Fprintf(&sb, "Имя: %s\n", d.Name)
	if d.Phone != "" {
		fmt.Fprintf(&sb, "Телефон: %s\n", d.Phone)
	} else {
		fmt.Fprintf(&sb, "Email: %s\n", d.Email)
	}
	if d.ContactConsent {
		sb.WriteString("Согласие на связь: да")
	} else {
		sb.WriteString("Согласие на связь: нет")
	}

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = confirmKeyboard(d.ContactConsent)
	_, _ = b.tg.Send(msg)
}

func (b *Bot) handleConfirm(ctx context.Context, chatID, userID int64, st *userState) {
	if st.Step != stepConfirm {
		return
	}
	d := st.Draft
	req := mode.Request{
		ServiceID:         d.ServiceID,
		ProfessionalID:    d.ProfessionalID,
		ClassID:           d.ClassID,
		Zone:              d.Zone,
		WorkshopSessionID: d.WorkshopSessionID,
		Date:              d.Date,
		Time:              d.Time,
		Customer:          mode.Customer{Name: d.Name, Phone: d.Phone, Email: d.Email},
		ContactConsent:    d.ContactConsent,
	}

	p, err := st.Session.Submit(ctx, req)
	switch {
	case errors.Is(err, widget.ErrSubmissionRejected):
		b.reply(chatID, "Это время уже заняли. Выберите другое.")
		if d.WorkshopSessionID != "" {
			st.Step = stepItem
			b.sendItems(ctx, chatID, st)
			return
		}
		b.sendSlots(ctx, chatID, st)
		return
	case errors.Is(err, mode.ErrInvalidRequest), errors.Is(err, mode.ErrUnknownSelection):
		b.reply(chatID, "Заявка заполнена неверно. Начните заново: /book")
		b.state.reset(userID)
		return
	case err != nil:
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to submit booking")
		b.reply(chatID, "Не удалось отправить заявку. Попробуйте позже.")
		return
	}

	b.state.reset(userID)
	b.reply(chatID, fmt.Sprintf("Заявка отправлена. Номер: %s", p.Reference))
	b.sendMainMenu(chatID)
}

func (b *Bot) sendMainMenu(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "Выберите действие:")
	msg.ReplyMarkup = mainMenu
	_, _ = b.tg.Send(msg)
}

func (b *Bot) reply(chatID int64, text string) {
	_, _ = b.tg.Send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) answerCallback(id string) error {
	_, err := b.tg.Request(tgbotapi.NewCallback(id, ""))
	return err
}

func normalizeAndValidatePhone(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	repl := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "\t", "")
	s = repl.Replace(s)
	if strings.HasPrefix(s, "+") {
		s = "+" + filterDigits(s[1:])
	} else {
		s = filterDigits(s)
	}
	digits := strings.TrimPrefix(s, "+")
	if len(digits) < 10 || len(digits) > 15 {
		return "", false
	}
	if s[0] != '+' {
		return digits, true
	}
	return s, true
}

func filterDigits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
