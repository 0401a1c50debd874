package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/lapismyt/nowbot/internal/metrics"
)

const tokenHelpURL = "https://yandex-music.readthedocs.io/en/main/token.html"

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if b.adminID != 0 && msg.From.ID == b.adminID && strings.HasPrefix(msg.Text, "@all ") {
		b.broadcast(ctx, strings.TrimPrefix(msg.Text, "@all "))
		return
	}
	if !msg.IsCommand() {
		return
	}
	switch msg.Command() {
	case "start":
		b.handleStart(msg)
	case "token":
		b.handleToken(ctx, msg)
	case "reset":
		b.handleReset(msg)
	}
}

func (b *Bot) handleStart(msg *tgbotapi.Message) {
	usr, err := b.ensureUser(msg.From.ID)
	if err != nil {
		log.Errorf("ensure user: %v", err)
		return
	}
	me := b.api.Self.UserName

	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonSwitch("Или нажми на эту кнопку и выбери чат :)", ""),
		),
	)

	var text string
	if usr.Token == "" {
		text = fmt.Sprintf(
			"<b>Привет 👋</b>\n"+
				"Я помогу тебе делиться с другими музыкой которую ты слушаешь 🎧\n\n"+
				"Напиши в любом чате <code>@%s [запрос]</code> и подожди несколько секунд, пока появятся результаты.\n\n"+
				"Ты также можешь отправлять трек, который сейчас играет у тебя в Яндекс Музыке, "+
				"но для этого нужно добавить свой токен через <code>/token [токен]</code>.\n"+
				"<a href=\"%s\">🔮 Как получить токен 🔮</a>",
			me, tokenHelpURL)
	} else {
		text = fmt.Sprintf(
			"<b>Всё готово ✅</b>\n"+
				"Теперь в любом чате ты можешь написать (не отправляя) <code>@%s </code>, "+
				"подождать пару секунд и там появится трек, который сейчас играет у тебя.\n\n"+
				"Поиск тоже работает: <code>@%s [запрос]</code>.\n\n"+
				"Если захочешь удалить свой токен из базы данных бота, используй команду /reset.",
			me, me)
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ParseMode = tgbotapi.ModeHTML
	out.DisableWebPagePreview = true
	out.ReplyMarkup = markup
	b.send(out)
}

func (b *Bot) handleToken(ctx context.Context, msg *tgbotapi.Message) {
	if _, err := b.ensureUser(msg.From.ID); err != nil {
		log.Errorf("ensure user: %v", err)
		return
	}

	// The message contains a bearer secret; get it out of the chat first.
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, msg.MessageID)); err != nil {
		log.Debugf("delete token message: %v", err)
	}

	token := strings.TrimSpace(msg.CommandArguments())
	if token == "" || strings.ContainsAny(token, " \n") {
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "Использование: /token [токен]"))
		return
	}

	uid, err := b.catalog.AccountUID(ctx, token)
	if err != nil {
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "Прости, твой токен не подходит 🙁\nПопробуй ещё раз."))
		return
	}
	if err := b.store.SetToken(msg.From.ID, token, fmt.Sprintf("%d", uid)); err != nil {
		log.Errorf("save token: %v", err)
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "Не получилось сохранить токен, попробуй позже."))
		return
	}

	text := fmt.Sprintf(
		"Спасибо, твой токен сохранён 🎉\n"+
			"Твой ID Яндекс Музыки: <code>%d</code>\n\n"+
			"Теперь в любом чате напиши (не отправляя) <code>@%s </code> — появится трек, который сейчас играет у тебя.\n"+
			"Удалить токен можно командой /reset.",
		uid, b.api.Self.UserName)
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ParseMode = tgbotapi.ModeHTML
	b.send(out)
}

func (b *Bot) handleReset(msg *tgbotapi.Message) {
	if _, err := b.ensureUser(msg.From.ID); err != nil {
		log.Errorf("ensure user: %v", err)
		return
	}
	if err := b.store.ClearToken(msg.From.ID); err != nil {
		log.Errorf("clear token: %v", err)
		return
	}
	b.send(tgbotapi.NewMessage(msg.Chat.ID,
		"Готово ✅\n"+
			"Твой токен и ID стёрты из базы данных бота и больше не смогут использоваться.\n"+
			"Если захочешь снова делиться текущим треком, добавь токен ещё раз через /token."))
}

// broadcast sends text to every known user, waiting out Telegram flood
// limits as they come.
func (b *Bot) broadcast(ctx context.Context, text string) {
	ids, err := b.store.AllUserIDs()
	if err != nil {
		log.Errorf("broadcast: list users: %v", err)
		return
	}
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
		out := tgbotapi.NewMessage(id, text)
		out.ParseMode = tgbotapi.ModeHTML
		if _, err := b.api.Send(out); err != nil {
			if tgErr, ok := err.(*tgbotapi.Error); ok && tgErr.RetryAfter > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Duration(tgErr.RetryAfter) * time.Second):
				}
				continue
			}
			log.Debugf("broadcast to %d: %v", id, err)
			continue
		}
		metrics.BroadcastSends.Inc()
	}
}
