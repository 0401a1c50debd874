// Package bot wires the Telegram surface: commands, admin broadcast and the
// inline now-playing/search queries.
package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	logging "github.com/ipfs/go-log/v2"

	"github.com/lapismyt/nowbot/internal/catalog"
	"github.com/lapismyt/nowbot/internal/store"
	"github.com/lapismyt/nowbot/internal/ynison"
)

var log = logging.Logger("bot")

const (
	counterUsers    = "users"
	counterRequests = "total_requests"
)

// Bot is the Telegram frontend. All of its handlers treat failures as
// values: a broken resolution or catalog hiccup answers the query empty
// instead of surfacing an error to the chat.
type Bot struct {
	api      *tgbotapi.BotAPI
	store    *store.Store
	resolver *ynison.Resolver
	catalog  *catalog.Client

	adminID      int64
	defaultToken string
	bitrateKbps  int
}

// New authenticates against Telegram and builds the bot.
func New(token string, st *store.Store, res *ynison.Resolver, cat *catalog.Client, adminID int64, defaultToken string, bitrateKbps int) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	log.Infof("authorized as @%s", api.Self.UserName)
	return &Bot{
		api:          api,
		store:        st,
		resolver:     res,
		catalog:      cat,
		adminID:      adminID,
		defaultToken: defaultToken,
		bitrateKbps:  bitrateKbps,
	}, nil
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.InlineQuery != nil:
		// Inline answers have a tight client-side deadline anyway.
		qctx, cancel := context.WithTimeout(ctx, 45*time.Second)
		defer cancel()
		b.handleInline(qctx, update.InlineQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

// ensureUser loads the user record, creating it and bumping the user counter
// on first contact.
func (b *Bot) ensureUser(id int64) (store.User, error) {
	usr, created, err := b.store.EnsureUser(id)
	if err != nil {
		return store.User{}, err
	}
	if created {
		if err := b.store.IncrementCounter(counterUsers, 1); err != nil {
			log.Warnf("user counter: %v", err)
		}
	}
	return usr, nil
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		log.Warnf("send: %v", err)
	}
}
