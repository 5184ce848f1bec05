//go:build !no_automation

package main

import (
	"log/slog"
	"time"

	"home-hub/internal/automation"
	"home-hub/internal/home"
	"home-hub/internal/web"
)

// startAutomation loads the scene scripts directory and starts every enabled
// script.
func startAutomation(hub *home.Hub, cfg *Config, logger *slog.Logger) (feature, []web.ServerOption, error) {
	mgr, err := automation.NewManager(cfg.Automation.ScriptsDir)
	if err != nil {
		return nil, nil, err
	}
	engine := automation.NewEngine(hub, mgr, logger, automation.SystemConfig{
		ExecAllowlist: cfg.Automation.ExecAllowlist,
		ExecTimeout:   time.Duration(cfg.Automation.ExecTimeout),
	})
	engine.Start()
	return engine, []web.ServerOption{web.WithAutomation(engine, mgr)}, nil
}
