//go:build no_automation

package main

import (
	"log/slog"

	"home-hub/internal/home"
	"home-hub/internal/web"
)

func startAutomation(_ *home.Hub, _ *Config, logger *slog.Logger) (feature, []web.ServerOption, error) {
	logger.Info("automation not compiled in (no_automation)")
	return noFeature{}, nil, nil
}
