package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Nick-Bae/deepgram/internal/app"
	"github.com/Nick-Bae/deepgram/internal/config"
	"github.com/Nick-Bae/deepgram/internal/events"
	httpapi "github.com/Nick-Bae/deepgram/internal/http"
	"github.com/Nick-Bae/deepgram/internal/hub"
	"github.com/Nick-Bae/deepgram/internal/observability"
	"github.com/Nick-Bae/deepgram/internal/translator"
)

func main() {
	cfg := config.Load()

	application := app.New(cfg)
	_ = application.Start()
	log := application.Logger

	// Kafka publisher with separate topics for partial and final captions
	publisher := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	})
	defer publisher.Close()

	var tr translator.Translator = translator.Noop{}
	if cfg.Translator.APIKey != "" {
		tr = translator.NewOpenAIClient(translator.OpenAIConfig{
			APIKey:  cfg.Translator.APIKey,
			Model:   cfg.Translator.Model,
			BaseURL: cfg.Translator.BaseURL,
			Timeout: cfg.Translator.Timeout,
		})
	} else {
		log.Warn().Msg("no translator API key; captions pass through untranslated")
	}

	broadcastHub := hub.New()
	apiServer := httpapi.NewServer(cfg, broadcastHub, tr, publisher)

	obs := observability.NewServer(":" + cfg.Observability.MetricsPort)
	obs.Start()

	httpServer := &http.Server{
		Addr:        ":" + cfg.Service.HTTPPort,
		Handler:     apiServer.Router(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("live caption service listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := obs.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("observability shutdown failed")
	}
	broadcastHub.Close()
	application.Shutdown()
}
