package bot

import (
	"crypto/md5"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func joinArtists(artists []string) string {
	return strings.Join(artists, ", ")
}

// resultID derives a stable inline-result id from the kind and track id.
func resultID(kind, trackID string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(kind+":"+trackID)))
}

func songLink(trackID string) string {
	return "https://song.link/ya/" + trackID
}

func nowPlayingCaption(artists, title string) string {
	return fmt.Sprintf("<b>Сейчас играет:</b>\n🎧 <code>%s - %s</code>",
		html.EscapeString(artists), html.EscapeString(title))
}

func searchCaption(query, artists, title string) string {
	return fmt.Sprintf("<b>Трек по запросу «%s»:</b>\n🎧 <code>%s - %s</code>",
		html.EscapeString(query), html.EscapeString(artists), html.EscapeString(title))
}

// trackButtons builds the song.link button plus a link back to the bot.
func trackButtons(botUser, trackID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("Ссылка на трек", songLink(trackID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("@"+botUser, "https://t.me/"+botUser),
		),
	)
}
