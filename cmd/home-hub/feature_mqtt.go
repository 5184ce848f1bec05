//go:build !no_mqtt

package main

import (
	"log/slog"

	"home-hub/internal/home"
	"home-hub/internal/mqtt"
)

// startMQTT connects the bridge when mqtt.enabled is set.
func startMQTT(hub *home.Hub, cfg *Config, logger *slog.Logger) (feature, error) {
	if !cfg.MQTT.Enabled {
		return noFeature{}, nil
	}
	bridge, err := mqtt.NewBridge(hub, mqtt.Config{
		Broker:      cfg.MQTT.Broker,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		Discovery:   cfg.MQTT.Discovery,
	}, logger)
	if err != nil {
		return nil, err
	}
	bridge.Start()
	return bridge, nil
}
