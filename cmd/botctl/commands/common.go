package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"cryptothreads/internal/app"
	"cryptothreads/internal/config"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
)

// openApp builds the shared collaborators without the Telegram bot, so
// commands never answer chat updates meant for the server.
var openApp = func(ctx context.Context) (*app.App, error) {
	_ = godotenv.Load(envFile)
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return app.Build(ctx, cfg, otel.Tracer("botctl"), app.Options{SkipTelegram: true})
}

func outputJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
