// Package app assembles the workbook store, mailer, registration processor
// and service from configuration. The server and the CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/worksplit/internal/config"
	"github.com/JonMunkholm/worksplit/internal/core"
	"github.com/JonMunkholm/worksplit/internal/notify"
	"github.com/JonMunkholm/worksplit/internal/registration"
	"github.com/JonMunkholm/worksplit/internal/workbook"
	"github.com/JonMunkholm/worksplit/internal/workbook/pgstore"
	"github.com/JonMunkholm/worksplit/internal/workbook/sqlitestore"
)

// App holds the assembled dependencies.
type App struct {
	Config   *config.Config
	Workbook workbook.Workbook
	Mailer   notify.Mailer
	Service  *core.Service
}

// Open connects to the configured store and builds the service.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	wb, err := OpenWorkbook(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	mailer, err := NewMailer(cfg.Mail)
	if err != nil {
		wb.Close()
		return nil, err
	}

	opts, err := core.OptionsFromConfig(cfg)
	if err != nil {
		wb.Close()
		return nil, err
	}

	proc := registration.NewProcessor(wb, wb, &notify.RegistrationNotifier{
		Mailer:            mailer,
		WorkbookURL:       cfg.Workbook.URL,
		AdminEmail:        cfg.Mail.AdminEmail,
		RegistrantSubject: cfg.Mail.RegistrantSubject,
		AdminSubject:      cfg.Mail.AdminSubject,
	}, Labels(cfg.Registration))

	return &App{
		Config:   cfg,
		Workbook: wb,
		Mailer:   mailer,
		Service:  core.NewService(wb, proc, opts),
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Workbook.Close()
}

// OpenWorkbook opens the store selected by the database settings:
// PostgreSQL when a URL is set, SQLite when a path is set, otherwise an
// in-memory workbook.
func OpenWorkbook(ctx context.Context, db config.DatabaseConfig) (workbook.Workbook, error) {
	switch db.Backend() {
	case config.BackendPostgres:
		store, err := pgstore.Open(ctx, pgstore.PoolConfig{
			URL:             db.URL,
			MaxConns:        db.MaxConns,
			MinConns:        db.MinConns,
			MaxConnLifetime: db.MaxConnLifetime,
			MaxConnIdleTime: db.MaxConnIdleTime,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("connected to database", "backend", config.BackendPostgres, "name", databaseName(db.URL))
		return store, nil

	case config.BackendSQLite:
		store, err := sqlitestore.Open(db.SQLitePath)
		if err != nil {
			return nil, err
		}
		slog.Info("opened workbook file", "backend", config.BackendSQLite, "path", db.SQLitePath)
		return store, nil

	default:
		slog.Warn("no DATABASE_URL or SQLITE_PATH set, using a non-persistent in-memory workbook")
		return workbook.NewMemory(), nil
	}
}

// NewMailer returns an SMTP mailer when a host is configured and a logging
// mailer otherwise.
func NewMailer(cfg config.MailConfig) (notify.Mailer, error) {
	if cfg.Host == "" {
		slog.Info("no SMTP host set, registration mails are logged only")
		return notify.NewLogMailer(), nil
	}
	if cfg.From == "" {
		return nil, errors.New("MAIL_FROM is required when SMTP_HOST is set")
	}

	m, err := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:          cfg.Host,
		Port:          cfg.Port,
		Username:      cfg.Username,
		Password:      cfg.Password,
		From:          cfg.From,
		StartTLS:      cfg.StartTLS,
		Timeout:       cfg.Timeout,
		RatePerMinute: cfg.RatePerMinute,
	})
	if err != nil {
		return nil, fmt.Errorf("smtp mailer: %w", err)
	}
	return m, nil
}

// Labels converts the registration settings.
func Labels(c config.RegistrationConfig) registration.Labels {
	return registration.Labels{
		Name:        c.NameLabel,
		Email:       c.EmailLabel,
		Affiliation: c.AffiliationLabel,
		Timestamp:   c.TimestampLabel,
		Status:      c.StatusLabel,
		Approved:    registration.Status(c.Approved),
		Rejected:    registration.Status(c.Rejected),
	}
}

// databaseName returns the database part of a connection URL for logging.
func databaseName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}
