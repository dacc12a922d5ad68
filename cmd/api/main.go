package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/josinaldojr/gemini-graph-rag/internal/app"
	"github.com/josinaldojr/gemini-graph-rag/internal/config"
	apphttp "github.com/josinaldojr/gemini-graph-rag/internal/http"
	"github.com/mudler/xlog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		xlog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	engine, err := app.NewEngine(ctx, cfg)
	if err != nil {
		xlog.Error("failed to init rag engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	h := apphttp.NewHandler(engine)
	router := apphttp.NewRouter(h, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			xlog.Warn("shutdown", "error", err)
		}
	}()

	xlog.Info("API listening", "addr", srv.Addr, "workingDir", cfg.WorkingDir)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		xlog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
