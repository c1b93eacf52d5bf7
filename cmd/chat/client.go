package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatbot/internal/config"
	"github.com/capitalize-ai/chatbot/internal/gateway"
	"github.com/capitalize-ai/chatbot/internal/session"
	"github.com/capitalize-ai/chatbot/internal/tui"
	"github.com/capitalize-ai/chatbot/pkg/logger"
)

var errSignedOut = errors.New("not signed in: run `chat token --save` or set CHAT_TOKEN")

// client holds what every subcommand shares.
type client struct {
	cfg     *config.ClientConfig
	log     *logger.Logger
	session *session.TokenSession
	gateway *gateway.Client
}

func defaultConfigPath() string {
	return config.DefaultClientConfigPath()
}

func (c *client) setup(configPath string) error {
	cfg, err := config.LoadClient(configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg

	// The terminal belongs to the UI, so logs go to a file.
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o700); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	log, err := logger.NewFile(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	c.log = log
	logger.SetGlobal(log)

	c.session = session.NewTokenSession(cfg.TokenFile, cfg.Token)
	status, err := c.session.Resolve()
	if err != nil {
		return err
	}
	log.Debug("session resolved", zap.String("status", string(status)), zap.String("user_id", c.session.Subject()))

	gw, err := gateway.NewClient(cfg.GatewayURL, c.session, log)
	if err != nil {
		return err
	}
	c.gateway = gw
	return nil
}

func (c *client) teardown() {
	if c.log != nil {
		_ = c.log.Sync()
	}
}

// requireSession fails fast when there is no usable token.
func (c *client) requireSession() error {
	if c.session.Status() != session.StatusAuthenticated {
		return errSignedOut
	}
	return nil
}

func (c *client) runTUI(ctx context.Context) error {
	if err := c.requireSession(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app := tui.New(ctx, c.gateway, c.log)
	p := tea.NewProgram(app, tea.WithAltScreen())
	app.SetNotifier(p.Send)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run terminal UI: %w", err)
	}
	return nil
}
