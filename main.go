package main

import (
	"log/slog"
	"os"

	"github.com/pyama86/feedback-control/config"
	"github.com/pyama86/feedback-control/handler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config.Load failed", slog.Any("err", err))
		os.Exit(1)
	}

	h, err := handler.NewHandler(cfg)
	if err != nil {
		slog.Error("NewHandler failed", slog.Any("err", err))
		os.Exit(1)
	}

	slog.Info("Starting socket mode", slog.String("db_driver", cfg.DBDriver), slog.String("comments_url", cfg.CommentsURL))
	if err := h.Handle(); err != nil {
		slog.Error("Server failed", slog.Any("err", err))
		os.Exit(1)
	}
}
