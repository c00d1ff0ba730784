package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Logger
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg := LoadConfig()
	log.Info().
		Str("addr", cfg.HTTPAddr).
		Str("db", cfg.DBPath).
		Str("rabbit", cfg.RabbitURL).
		Msg("starting bookshop service")

	// Repo
	repo, err := NewRepository(cfg.DBPath)
	must(err)
	defer repo.Close()

	if cfg.SeedOnStart {
		must(repo.Seed(context.Background()))
		log.Info().Msg("seeded sample catalog")
	}

	// Rabbit (optional)
	var events *Events
	if cfg.RabbitURL != "" {
		rabbit, err := NewRabbit(cfg.RabbitURL, cfg.Exchange)
		must(err)
		defer rabbit.Close()
		events = NewEvents(rabbit)
		log.Info().Str("exchange", cfg.Exchange).Msg("event publishing enabled")
	}

	srv := NewServer(repo, events)
	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: cors.AllowAll().Handler(srv.Handler()),
	}

	// Clean shutdown on SIGINT/SIGTERM
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		log.Warn().Msg("shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
		defer cancel()
		_ = httpSrv.Shutdown(ctx)
	}()

	log.Info().Msg("HTTP listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("serve")
	}
}

func must(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}
