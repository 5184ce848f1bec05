//go:build no_mqtt

package main

import (
	"log/slog"

	"home-hub/internal/home"
)

func startMQTT(_ *home.Hub, cfg *Config, logger *slog.Logger) (feature, error) {
	if cfg.MQTT.Enabled {
		logger.Warn("mqtt.enabled ignored: built with no_mqtt")
	}
	return noFeature{}, nil
}
