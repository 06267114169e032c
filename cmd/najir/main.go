package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/najirlabs/najir/internal/ai"
	"github.com/najirlabs/najir/internal/bot"
	"github.com/najirlabs/najir/internal/chat"
	"github.com/najirlabs/najir/internal/config"
	"github.com/najirlabs/najir/internal/logger"
	"github.com/najirlabs/najir/internal/search"
	"github.com/najirlabs/najir/internal/session"
	"github.com/najirlabs/najir/internal/store"
	"github.com/najirlabs/najir/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg := logger.New(cfg.LogFile, cfg.IsProduction())
	defer lg.Sync()

	db, err := store.NewBoltStore(filepath.Join(cfg.DataDir, "najir.db"))
	if err != nil {
		lg.Fatal("store", zap.Error(err))
	}
	defer db.Close()

	gen, err := ai.NewGeminiGenerator(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		lg.Fatal("gemini", zap.Error(err))
	}

	searchClient := search.NewClient(cfg.SearchBaseURL, cfg.SearchAPIKey)
	agent := ai.NewAgent(gen, searchClient, cfg.AgentRatePerMinute, lg.Named("agent"))

	classifier := chat.NewClassifier(time.Hour)
	sessionMgr := session.NewManager(db, classifier, lg.Named("session"))

	// Evict idle conversations so memory tracks active users only.
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			sessionMgr.Cleanup(1 * time.Hour)
		}
	}()

	botHandler := bot.NewHandler(sessionMgr, db, agent, lg.Named("bot"))
	api := web.NewHandler(db, sessionMgr, botHandler, searchClient, agent, lg.Named("web"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api", api.Routes)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		lg.Info("listening", zap.String("port", cfg.Port), zap.String("base_url", cfg.BaseURL), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("shutdown", zap.Error(err))
	}
	lg.Info("stopped")
}
