package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"labelfix/internal/cfg"
	"labelfix/internal/metrics"
	"labelfix/internal/pipeline"
	"labelfix/internal/server"
	"labelfix/internal/store"
)

func main() {
	_ = godotenv.Load()
	setupLogging()

	settings, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	st, err := store.Open(settings.DataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("store open failed")
	}
	defer st.Close()

	m := metrics.New()
	mw := metrics.NewWrapper(m)
	engine := pipeline.New(st, settings, mw)
	srv := server.New(engine, st, settings.ListenPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		s := <-sig
		log.Info().Str("signal", s.String()).Msg("shutting down")
		cancel()
	}()

	log.Info().Str("model", settings.ModelName).Int("port", settings.ListenPort).
		Msg("label correction engine starting")
	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if parsed, err := zerolog.ParseLevel(v); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
}
