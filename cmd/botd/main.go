package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/gabepages/botkit/internal/config"
	"github.com/gabepages/botkit/internal/dialog"
	"github.com/gabepages/botkit/internal/models"
	"github.com/gabepages/botkit/internal/ops"
	"github.com/gabepages/botkit/internal/script"
	"github.com/gabepages/botkit/internal/store"
	"github.com/gabepages/botkit/internal/transport"
	"github.com/gabepages/botkit/internal/transport/discord"
	"github.com/gabepages/botkit/internal/transport/rtm"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the slot store
	st, err := newStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("store initialization failed")
	}
	defer st.Close()
	logger.Info().Str("backend", cfg.StoreBackend).Msg("slot store ready")

	// The transport needs the engine's dispatch and the engine needs the
	// transport's sender; the closure breaks the cycle.
	var eng *dialog.Engine
	handle := func(ctx context.Context, msg *models.Message) {
		eng.HandleMessage(ctx, msg)
	}

	var sender transport.Sender
	var console *transport.Loopback
	var rtmClient *rtm.Client
	var discordAdapter *discord.Adapter

	switch cfg.Transport {
	case "console":
		console = transport.NewLoopback()
		console.Notify = func(o transport.Outbound) {
			switch {
			case o.Reaction != "":
				fmt.Printf("%s reacted :%s:\n", cfg.BotName, o.Reaction)
			case o.Rich != nil:
				fmt.Printf("%s> [%s] %s\n", cfg.BotName, o.Rich.Title, o.Rich.Fallback)
			default:
				fmt.Printf("%s> %s\n", cfg.BotName, o.Text)
			}
		}
		sender = console
	case "rtm":
		rtmClient = rtm.NewClient(rtm.Options{
			URL:   cfg.RTMURL,
			BotID: models.Identity(cfg.RTMBotID),
			Log:   logger,
		}, handle)
		sender = rtmClient
	case "discord":
		discordAdapter = discord.NewAdapter(discord.Options{
			Token: cfg.DiscordToken,
			Log:   logger,
		}, handle)
		sender = discordAdapter
	default:
		logger.Fatal().Str("transport", cfg.Transport).Msg("unknown transport")
	}

	// Build the engine and register the bot script. The script's shutdown
	// command cancels the root context.
	eng = dialog.NewEngine(logger, sender, dialog.Options{
		BotName:    cfg.BotName,
		Timeout:    cfg.ConversationTimeout,
		MaxRepeats: cfg.MaxRepeats,
	})
	bot := script.New(script.Options{
		Log:      logger,
		Store:    st,
		Shutdown: cancel,
	})
	if err := bot.Register(eng); err != nil {
		logger.Fatal().Err(err).Msg("script registration failed")
	}

	// Start the inbound side once the engine exists.
	switch cfg.Transport {
	case "console":
		go runConsole(ctx, eng)
	case "rtm":
		go func() {
			if err := rtmClient.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("rtm client stopped")
			}
		}()
		defer rtmClient.Close()
	case "discord":
		if err := discordAdapter.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("discord connection failed")
		}
		defer discordAdapter.Stop()
	}

	// Ops HTTP surface: health, stats, metrics.
	srv := &http.Server{
		Addr:         cfg.OpsAddr,
		Handler:      ops.NewRouter(logger, st, eng),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info().
			Str("addr", cfg.OpsAddr).
			Str("env", cfg.Env).
			Str("bot", cfg.BotName).
			Msg("starting botd")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("ops server failed to start")
		}
	}()

	// Wait for interrupt signal or a confirmed shutdown command
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("ops server forced to shutdown")
	}

	logger.Info().Msg("stopped")
}

func newStore(ctx context.Context, cfg *config.Config) (store.SlotStore, error) {
	switch cfg.StoreBackend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "sqlite":
		return store.NewSQLiteStore(ctx, cfg.SQLitePath)
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.DatabaseURL)
	case "redis":
		return store.NewRedisStore(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// runConsole feeds stdin lines into the engine as direct messages from a
// single local user, for development without a chat platform.
func runConsole(ctx context.Context, eng *dialog.Engine) {
	const user = models.Identity("console")
	ch := transport.DirectChannel(user)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		eng.HandleMessage(ctx, transport.Inbound(user, ch, line, models.ScopeDirectMessage))
	}
}
