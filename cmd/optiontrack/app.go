package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kjannette/optiontrack/internal/config"
	"github.com/kjannette/optiontrack/internal/db"
	"github.com/kjannette/optiontrack/internal/external"
	"github.com/kjannette/optiontrack/internal/httputil"
	"github.com/kjannette/optiontrack/internal/logger"
	"github.com/kjannette/optiontrack/internal/models"
	"github.com/kjannette/optiontrack/internal/notifications"
	"github.com/kjannette/optiontrack/internal/repository"
	"github.com/kjannette/optiontrack/internal/session"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg     *config.Config
	http    *http.Client
	conn    *sql.DB
	store   *repository.Store
	nasdaq  *external.NasdaqClient
	gateway *external.Gateway
	notify  *notifications.Sender
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if s, _ := cmd.Flags().GetString("symbol"); s != "" {
		cfg.Symbol = strings.ToUpper(s)
	}
	if l, _ := cmd.Flags().GetString("log-level"); l != "" {
		cfg.LogLevel = l
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

// newApp wires providers and, when withStore is set, the database.
func newApp(cmd *cobra.Command, withStore bool) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	client, err := httputil.NewClient(httputil.ClientOptions{
		Timeout:  cfg.HTTPTimeout,
		ProxyURL: cfg.HTTPProxyURL,
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:  cfg,
		http: client,
		nasdaq: external.NewNasdaqClient(client, external.NasdaqOptions{
			BaseURL:   cfg.NasdaqBaseURL,
			UserAgent: cfg.UserAgent,
		}),
		notify: notifications.NewSender(cfg.WebhookURL, cfg.BotName, client),
	}

	var secondary external.Provider
	if cfg.PolygonAPIKey != "" {
		secondary = external.NewPolygonClient(cfg.PolygonAPIKey, client, nil)
	}
	a.gateway = external.NewGateway(a.nasdaq, secondary, logger.For("gateway"))

	if withStore {
		if err := a.openStore(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *app) openStore() error {
	dialect, err := db.ParseDialect(a.cfg.DBDriver)
	if err != nil {
		return err
	}
	conn, err := db.Connect(dialect, a.cfg.DSN())
	if err != nil {
		return fmt.Errorf("db connection: %w", err)
	}
	if err := db.TestConnection(conn); err != nil {
		conn.Close()
		return err
	}
	a.conn = conn
	a.store = repository.Open(conn, dialect, repository.Options{
		Symbol:   a.cfg.Symbol,
		Interval: a.cfg.WriteInterval,
		Log:      logger.For("store"),
	})
	return nil
}

func (a *app) newSession() *session.Session {
	var writer session.Writer
	if a.store != nil {
		writer = a.store
	}
	return session.New(a.gateway, writer, a.notify, session.Config{
		Symbol:       a.cfg.Symbol,
		RiskFreeRate: a.cfg.RiskFreeRate,
		AlertAfter:   a.cfg.AlertAfterFailures,
		Log:          logger.For("session"),
	})
}

func (a *app) Close() {
	if a.conn != nil {
		a.conn.Close()
		log.WithField("component", "db").Debug("connection closed")
	}
}

func parseKind(s string) (models.ChainKind, error) {
	switch models.ChainKind(strings.ToLower(s)) {
	case models.KindNear:
		return models.KindNear, nil
	case models.KindLeap:
		return models.KindLeap, nil
	}
	return "", fmt.Errorf("unknown chain kind %q (near, leap)", s)
}
