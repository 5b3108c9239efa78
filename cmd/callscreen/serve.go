package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chadiek/callscreen/internal/config"
	"github.com/chadiek/callscreen/internal/events"
	"github.com/chadiek/callscreen/internal/httpserver"
	"github.com/chadiek/callscreen/internal/middleware"
	"github.com/chadiek/callscreen/internal/recording"
	"github.com/chadiek/callscreen/internal/screening"
	"github.com/chadiek/callscreen/internal/telephony"
	"github.com/chadiek/callscreen/internal/telephony/twilio"
	"github.com/chadiek/callscreen/internal/triage"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook and API server",
		Long:  "Answers Twilio voice webhooks, triages each incoming call and serves the recording API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if addr != "" {
				cfg.HTTPAddress = addr
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDRESS)")
	return cmd
}

func runServe(cfg config.Config) error {
	bus := events.NewBus()
	defer bus.Close()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	cache, closeCache, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	settings := &config.FileSettings{Path: cfg.SettingsFile, Defaults: cfg.Defaults()}
	classifier := newClassifier(cfg)

	prompts := screening.NewPromptCache(cfg.PromptDir, newRenderer(cfg))
	strategies := map[config.ScreeningMode]screening.Strategy{
		config.ModeVoice:  screening.NewVoice(nil, nil, newRefiner(cfg, classifier)),
		config.ModeSilent: screening.NewSilent(prompts),
	}

	coord := recording.NewCoordinator(cfg.RecordingDir, st, newTranscriber(cfg, classifier), bus)
	coord.Archiver = newArchiver(cfg)
	defer coord.Close()

	engine := triage.New(triage.Deps{
		Settings:   settings,
		Directory:  st.Contacts(),
		Cache:      cache,
		Classifier: classifier,
		Runner:     &screening.Runner{Bus: bus, Recorder: coord},
		Strategies: strategies,
		Bus:        bus,
	})
	defer engine.Close()

	gw := twilio.New(twilio.Config{
		AccountSID:    cfg.TwilioAccountSID,
		AuthToken:     cfg.TwilioAuthToken,
		BaseURL:       cfg.BaseURL,
		ForwardNumber: cfg.ForwardNumber,
	}, twilio.HandlerFunc(func(ev telephony.CallEvent, call telephony.Call) bool {
		return engine.HandleCallEvent(ev, call) == triage.Screen
	}))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go st.RecordClassifications(ctx, bus)

	sweeper, err := coord.StartSweeper(cfg.SweepSchedule, cfg.Retention)
	if err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	defer sweeper.Stop()

	router := httpserver.New(httpserver.Deps{
		AuthPassword: cfg.AuthPassword,
		Bus:          bus,
		Artifacts:    coord,
		Contacts:     st.Contacts(),
		Calls:        gw,
		Classifier:   engine,
		Prompts:      prompts,
		Settings:     settings,
		Webhooks:     gw,
		WebhookAuth: middleware.TwilioAuth(
			func() string { return cfg.TwilioAuthToken },
			func(r *http.Request) string { return twilio.BuildAbsoluteURL(r, cfg.BaseURL, r.URL.RequestURI()) },
		),
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
	return serveErr
}
