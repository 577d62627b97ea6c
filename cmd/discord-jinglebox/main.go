package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/user/discord-jinglebox/internal/bot"
	"github.com/user/discord-jinglebox/internal/config"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogging(cfg.LogLevel)

	log.Info().
		Str("prefix", cfg.CommandPrefix).
		Str("intro", cfg.IntroClip).
		Str("outro", cfg.OutroClip).
		Msg("Starting Discord Jinglebox Bot")

	jukebox, err := bot.NewBot(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	if err := jukebox.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start bot")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("Bot is running. Press Ctrl+C to exit.")
	<-ctx.Done()
	stop()

	shutdown(jukebox)
}

// shutdown leaves every voice channel and closes the gateway, giving up after
// shutdownTimeout. A second signal during shutdown kills the process.
func shutdown(jukebox *bot.Bot) {
	log.Info().Dur("timeout", shutdownTimeout).Msg("Shutting down bot...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	type result struct {
		sessions int
		err      error
	}
	done := make(chan result, 1)
	go func() {
		n, err := jukebox.Stop(ctx)
		done <- result{sessions: n, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			log.Error().Err(r.err).Int("sessions", r.sessions).Msg("Error during shutdown")
			return
		}
		log.Info().Int("sessions", r.sessions).Msg("Bot stopped gracefully")
	case <-ctx.Done():
		log.Warn().Msg("Shutdown timeout exceeded, forcing exit")
	}
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	log.Info().Str("level", lvl.String()).Msg("Logging configured")
}
