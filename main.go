package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/lapismyt/nowbot/internal/admin"
	"github.com/lapismyt/nowbot/internal/bot"
	"github.com/lapismyt/nowbot/internal/catalog"
	"github.com/lapismyt/nowbot/internal/config"
	"github.com/lapismyt/nowbot/internal/store"
	"github.com/lapismyt/nowbot/internal/ynison"
)

var log = logging.Logger("nowbot")

var (
	configPath  = flag.String("config", "", "Optional config file (env vars win)")
	showVersion = flag.Bool("version", false, "Show version")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("nowbot v%s\n", appVersion)
		return
	}

	if err := run(); err != nil {
		log.Errorf("fatal: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	if lvl, err := logging.LevelFromString(cfg.Log.Level); err == nil {
		logging.SetAllLoggers(lvl)
	} else {
		logging.SetAllLoggers(logging.LevelInfo)
	}

	key, err := cfg.TokenKey()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.DB.Path, key)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	cat := catalog.New()
	resolver := ynison.New(cat, ynison.Options{
		ConnectTimeout:       time.Duration(cfg.Resolver.ConnectTimeoutSec) * time.Second,
		NegotiateTimeout:     time.Duration(cfg.Resolver.NegotiateTimeoutSec) * time.Second,
		ReceiveTimeout:       time.Duration(cfg.Resolver.ReceiveTimeoutSec) * time.Second,
		MaxConcurrent:        cfg.Resolver.MaxConcurrent,
		PreferredBitrateKbps: cfg.Resolver.PreferredBitrateKbps,
	})

	b, err := bot.New(cfg.Bot.Token, st, resolver, cat, cfg.Bot.AdminID, cfg.Bot.DefaultToken, cfg.Resolver.PreferredBitrateKbps)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adminSrv := admin.New(st, cfg.Admin.Addr)
	go func() {
		if err := adminSrv.Run(ctx); err != nil {
			log.Warnf("admin api: %v", err)
		}
	}()

	log.Infof("nowbot v%s up", appVersion)
	return b.Run(ctx)
}
