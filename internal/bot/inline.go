package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/lapismyt/nowbot/internal/catalog"
	"github.com/lapismyt/nowbot/internal/metrics"
	"github.com/lapismyt/nowbot/internal/ynison"
)

func (b *Bot) handleInline(ctx context.Context, q *tgbotapi.InlineQuery) {
	usr, err := b.ensureUser(q.From.ID)
	if err != nil {
		log.Errorf("ensure user: %v", err)
		b.answerInline(q.ID, nil, 20, true)
		return
	}

	if strings.TrimSpace(q.Query) == "" {
		metrics.InlineQueries.WithLabelValues("now_playing").Inc()
		b.inlineNowPlaying(ctx, q, usr.Token)
		return
	}
	metrics.InlineQueries.WithLabelValues("search").Inc()
	b.inlineSearch(ctx, q)
}

// inlineNowPlaying resolves the caller's live playback state and answers
// with the current track, or an onboarding article when no token is linked.
func (b *Bot) inlineNowPlaying(ctx context.Context, q *tgbotapi.InlineQuery, token string) {
	me := b.api.Self.UserName

	if token == "" {
		text := fmt.Sprintf(
			"Чтобы обнаружить текущий трек, мне нужен твой токен Яндекс Музыки. "+
				"Пожалуйста, открой бота @%s и введи токен командой <code>/token [токен]</code>.\n"+
				"<a href=\"%s\">🔮 Как получить токен 🔮</a>",
			me, tokenHelpURL)
		article := tgbotapi.NewInlineQueryResultArticleHTML(
			resultID("help", "token"),
			"Подключи токен Яндекс Музыки чтобы автоматически обнаруживать текущий трек",
			text)
		b.answerInline(q.ID, []interface{}{article}, 20, true)
		return
	}

	if err := b.store.IncrementCounter(counterRequests, 1); err != nil {
		log.Warnf("request counter: %v", err)
	}

	res := b.resolver.Resolve(ctx, token)
	metrics.Resolutions.WithLabelValues(outcomeLabel(res)).Inc()

	if res.Status != ynison.StatusPlaying {
		if res.Status == ynison.StatusFailed {
			log.Debugf("resolution failed for user %d: %s (%s)", q.From.ID, res.Err, res.Detail)
		}
		b.answerInline(q.ID, nil, 20, true)
		return
	}

	track := res.Track
	artists := joinArtists(track.Artists)
	audio := tgbotapi.NewInlineQueryResultAudio(resultID("now", track.ID), track.URL, track.Title)
	audio.Performer = artists
	audio.Duration = int(track.DurationMs / 1000)
	audio.Caption = nowPlayingCaption(artists, track.Title)
	audio.ParseMode = tgbotapi.ModeHTML
	markup := trackButtons(me, track.ID)
	audio.ReplyMarkup = &markup

	b.answerInline(q.ID, []interface{}{audio}, 5, true)
}

// inlineSearch answers a free-text query with up to four catalog matches,
// resolved with the bot's default token.
func (b *Bot) inlineSearch(ctx context.Context, q *tgbotapi.InlineQuery) {
	if err := b.store.IncrementCounter(counterRequests, 1); err != nil {
		log.Warnf("request counter: %v", err)
	}

	tracks, err := b.catalog.Search(ctx, b.defaultToken, q.Query, 4)
	if err != nil {
		log.Debugf("search %q: %v", q.Query, err)
		b.answerInline(q.ID, nil, 600, false)
		return
	}

	me := b.api.Self.UserName
	var results []interface{}
	for _, track := range tracks {
		url, err := b.trackURL(ctx, track.ID)
		if err != nil {
			log.Debugf("direct url for %s: %v", track.ID, err)
			continue
		}
		artists := joinArtists(track.Artists)
		audio := tgbotapi.NewInlineQueryResultAudio(resultID("search", track.ID), url, track.Title)
		audio.Performer = artists
		audio.Duration = int(track.DurationMs / 1000)
		audio.Caption = searchCaption(q.Query, artists, track.Title)
		audio.ParseMode = tgbotapi.ModeHTML
		markup := trackButtons(me, track.ID)
		audio.ReplyMarkup = &markup
		results = append(results, audio)
	}

	b.answerInline(q.ID, results, 600, false)
}

// trackURL fetches the preferred download variant for a track and signs a
// direct link for it.
func (b *Bot) trackURL(ctx context.Context, trackID string) (string, error) {
	variants, err := b.catalog.DownloadVariants(ctx, b.defaultToken, trackID)
	if err != nil {
		return "", err
	}
	variant, ok := catalog.PreferredVariant(variants, b.bitrateKbps)
	if !ok {
		return "", fmt.Errorf("no usable download variant")
	}
	return b.catalog.DirectURL(ctx, b.defaultToken, variant)
}

func (b *Bot) answerInline(queryID string, results []interface{}, cacheTime int, personal bool) {
	if results == nil {
		results = []interface{}{}
	}
	answer := tgbotapi.InlineConfig{
		InlineQueryID: queryID,
		Results:       results,
		CacheTime:     cacheTime,
		IsPersonal:    personal,
	}
	if _, err := b.api.Request(answer); err != nil {
		log.Warnf("answer inline query: %v", err)
	}
}

func outcomeLabel(res ynison.OperationResult) string {
	switch res.Status {
	case ynison.StatusPlaying:
		return "playing"
	case ynison.StatusNotPlaying:
		return "not_playing"
	default:
		return res.Err.String()
	}
}
