package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"bookmentor/internal/bookclient"
	"bookmentor/internal/config"
	"bookmentor/internal/forms"
	"bookmentor/internal/ratelimit"
	"bookmentor/internal/reason"
	"bookmentor/internal/server"
	"bookmentor/internal/util"
	"bookmentor/internal/webhooktoken"
	"bookmentor/pkg/llm"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	util.InitLogger(cfg.LogLevel)

	tokenGuard, err := llm.NewTokenGuard(llm.TokenGuardConfig{
		AuthURL:            cfg.AuthURL,
		Credential:         cfg.AuthCredential,
		Scope:              cfg.AuthScope,
		InsecureSkipVerify: cfg.TLSInsecureSkipVerify,
	})
	if err != nil {
		util.Fatal("failed to init token guard", "err", err)
	}
	llmClient, err := llm.NewClient(llm.ClientConfig{
		BaseURL:            cfg.LLMBaseURL,
		Model:              cfg.LLMModel,
		Tokens:             tokenGuard,
		InsecureSkipVerify: cfg.TLSInsecureSkipVerify,
	})
	if err != nil {
		util.Fatal("failed to init llm client", "err", err)
	}
	books := bookclient.NewClient(cfg.ParserURL)

	pipeline, err := reason.New(reason.Config{
		LLM:              llmClient,
		Books:            books,
		FixedSubchapters: cfg.FixedSubchapters,
	})
	if err != nil {
		util.Fatal("failed to init reasoning pipeline", "err", err)
	}

	var store forms.Store
	if cfg.DatabaseURL != "" {
		store, err = forms.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			util.Fatal("failed to init database store", "err", err)
		}
	} else {
		store, err = forms.NewFileStore(cfg.FormDataFile)
		if err != nil {
			util.Fatal("failed to init file store", "err", err)
		}
	}

	processor, err := forms.NewProcessor(forms.ProcessorConfig{
		Store:     store,
		Evaluate:  pipeline.EvaluateAnswer,
		SkipCount: cfg.SkipCount,
	})
	if err != nil {
		util.Fatal("failed to init form processor", "err", err)
	}

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" {
		limiter, err = ratelimit.New(cfg.RedisAddr, cfg.RedisPassword, "",
			cfg.RateLimit, time.Duration(cfg.RateWindowSec)*time.Second)
		if err != nil {
			util.Fatal("failed to init rate limiter", "err", err)
		}
	}

	var webhookVerifier *webhooktoken.Verifier
	if cfg.WebhookSecret != "" {
		webhookVerifier, err = webhooktoken.NewVerifier(cfg.WebhookSecret, cfg.WebhookIssuers, 0)
		if err != nil {
			util.Fatal("failed to init webhook verifier", "err", err)
		}
	}

	httpServer := server.New(server.Config{
		Reasoner:        pipeline,
		Tokens:          tokenGuard,
		Store:           store,
		Processor:       processor,
		IgnoredFields:   cfg.IgnoredFields,
		Limiter:         limiter,
		WebhookVerifier: webhookVerifier,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // reasoning runs several LLM calls
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
