package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"idle_engine/internal/config"
	"idle_engine/internal/engine"
	"idle_engine/internal/httpapi"
	"idle_engine/internal/logbus"
	"idle_engine/internal/notify"
	"idle_engine/internal/provider/standard"
	"idle_engine/internal/store/sqlite"
	"idle_engine/internal/utils"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml")
	flag.Parse()

	// A missing .env is fine; the environment may already carry the overrides.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	bus := logbus.New(500)
	bus.Log("info", "server starting", map[string]any{"addr": cfg.Server.Addr, "steamId": cfg.Steam.SteamID})

	ctx := context.Background()
	store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath, sqlite.WithEventRetention(cfg.Storage.EventRetention))
	if err != nil {
		log.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()
	bus.SetSink(store)

	email := notify.NewEmailNotifier(store, bus, cfg.Notify)
	notifiers := notify.Multi{email}
	if cfg.Notify.Discord.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewDiscordNotifier(cfg.Notify.Discord.WebhookURL, bus))
	}
	if cfg.Notify.Telegram.Token != "" && cfg.Notify.Telegram.ChatID != 0 {
		notifiers = append(notifiers, notify.NewTelegramNotifier(cfg.Notify.Telegram.Token, cfg.Notify.Telegram.ChatID, bus))
	}

	prov := standard.New(cfg.Provider, bus)
	eng := engine.New(engine.Options{
		Store:      store,
		Provider:   prov,
		Bus:        bus,
		Notifier:   notifiers,
		Harvester:  utils.NewSteamLogin(cfg.Browser, bus),
		Steam:      cfg.Steam,
		Limits:     cfg.Limits,
		Automation: cfg.Automation,
	})
	if err := eng.SyncAntiAway(ctx); err != nil {
		bus.Log("warn", "anti-away not started", map[string]any{"error": err.Error()})
	}

	api := httpapi.New(httpapi.Options{
		Cfg:    cfg,
		Bus:    bus,
		Store:  store,
		Engine: eng,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		bus.Log("info", "shutdown signal received", map[string]any{"signal": sig.String()})
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			bus.Log("error", "http server error", map[string]any{"error": err.Error()})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_ = eng.StopAll(shutdownCtx)
	_ = server.Shutdown(shutdownCtx)
	_ = email.Close(shutdownCtx)
	bus.Log("info", "server stopped", nil)
	bus.Close()
}
