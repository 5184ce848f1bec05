// Package assistant runs the conversational assistant CLI as a one-shot
// subprocess: the user message goes to stdin and the cleaned stdout is the reply.
package assistant

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"home-hub/internal/metrics"
)

// DefaultTimeout bounds a single assistant call.
const DefaultTimeout = 30 * time.Second

const maxOutput = 64 << 10

// ErrDisabled is returned by Ask when no command is configured.
var ErrDisabled = errors.New("assistant not configured")

// ToolError is a failed or timed-out assistant run. Detail carries the
// tool's stderr or the failure reason.
type ToolError struct {
	Detail string
	Err    error
}

func (e *ToolError) Error() string {
	return "assistant failed: " + e.Err.Error()
}

func (e *ToolError) Unwrap() error { return e.Err }

// Config describes how to run the assistant.
type Config struct {
	Command string        // absolute path to the CLI
	Args    []string      // e.g. ["agent"]
	HomeDir string        // HOME for the subprocess, if set
	Timeout time.Duration // 0 means DefaultTimeout
}

// Client runs assistant requests.
type Client struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a client. An empty cfg.Command yields a client whose Ask
// always returns ErrDisabled.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{cfg: cfg, logger: logger.With("component", "assistant")}
}

// Enabled reports whether a command is configured.
func (c *Client) Enabled() bool {
	return c.cfg.Command != ""
}

// Ask sends message to the assistant and returns its cleaned reply.
// Failures, including the timeout, are returned as *ToolError.
func (c *Client) Ask(ctx context.Context, message string) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.cfg.Command, c.cfg.Args...)
	cmd.Stdin = strings.NewReader(message + "\n")
	cmd.WaitDelay = time.Second
	if c.cfg.HomeDir != "" {
		cmd.Env = append(os.Environ(), "HOME="+c.cfg.HomeDir)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		terr := &ToolError{Detail: strings.TrimSpace(stderr.String()), Err: err}
		if ctx.Err() == context.DeadlineExceeded {
			terr.Err = fmt.Errorf("timed out after %s", c.cfg.Timeout)
			if terr.Detail == "" {
				terr.Detail = terr.Err.Error()
			}
			c.logger.Warn("assistant timeout", "timeout", c.cfg.Timeout)
		} else {
			if terr.Detail == "" {
				terr.Detail = err.Error()
			}
			c.logger.Warn("assistant failed", "err", err, "stderr", terr.Detail)
		}
		metrics.AssistantCall(elapsed, terr)
		return "", terr
	}

	out := stdout.Bytes()
	if len(out) > maxOutput {
		out = out[:maxOutput]
	}
	metrics.AssistantCall(elapsed, nil)
	c.logger.Debug("assistant replied", "elapsed", elapsed, "bytes", len(out))
	return CleanReply(string(out)), nil
}

var (
	bannerLine    = regexp.MustCompile(`🦞\s*Interactive mode[^\n]*\n`)
	trailingBye   = regexp.MustCompile(`\nGoodbye!$`)
	leadingMarker = regexp.MustCompile(`(?m)^🦞\s*`)
)

// CleanReply strips the CLI's interactive banner, lobster prompt markers and
// closing "Goodbye!" from raw output.
func CleanReply(raw string) string {
	s := strings.TrimSpace(raw)
	s = bannerLine.ReplaceAllString(s, "")
	s = trailingBye.ReplaceAllString(s, "")
	s = leadingMarker.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
