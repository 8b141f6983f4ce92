// Package config provides centralized configuration management for the application.
// It loads configuration from defaults, an optional YAML file and environment
// variables, and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Workbook     WorkbookConfig     `yaml:"workbook"`
	Registration RegistrationConfig `yaml:"registration"`
	Mail         MailConfig         `yaml:"mail"`
	Run          RunConfig          `yaml:"run"`
	Rate         RateLimitConfig    `yaml:"rate"`
	Security     SecurityConfig     `yaml:"security"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0" yaml:"host"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080" yaml:"port"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing response (default: 0, runs can be long)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s" yaml:"write_timeout"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s" yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s" yaml:"shutdown_timeout"`

	// MaxUploadSize is the maximum CSV upload size in bytes (default: 100MB)
	MaxUploadSize int64 `env:"SERVER_MAX_UPLOAD_SIZE" envAlt:"UPLOAD_MAX_FILE_SIZE" default:"104857600" yaml:"max_upload_size"`
}

// DatabaseConfig selects and tunes the workbook store.
// DATABASE_URL selects PostgreSQL; otherwise SQLITE_PATH selects a SQLite file.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" yaml:"url"`

	// SQLitePath is the workbook file used when URL is empty
	SQLitePath string `env:"SQLITE_PATH" yaml:"sqlite_path"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20" yaml:"max_conns"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4" yaml:"min_conns"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h" yaml:"max_conn_lifetime"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m" yaml:"max_conn_idle_time"`
}

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Backend returns the store selected by the settings.
func (c *DatabaseConfig) Backend() string {
	switch {
	case c.URL != "":
		return BackendPostgres
	case c.SQLitePath != "":
		return BackendSQLite
	default:
		return BackendMemory
	}
}

// Split modes.
const (
	SplitModeFilter = "filter"
	SplitModeGroup  = "group"
)

// WorkbookConfig holds the sheet names and layout of the survey workbook.
type WorkbookConfig struct {
	// SourceSheet is the master sheet that split reads
	SourceSheet string `env:"SOURCE_SHEET_NAME" envAlt:"MASTER_SHEET_NAME" yaml:"source_sheet"`

	// KeyColumn labels the column rows are split by (default: 都道府県)
	KeyColumn string `env:"KEY_COLUMN_LABEL" envAlt:"PREFECTURE_LABEL" default:"都道府県" yaml:"key_column"`

	// Prefix starts the name of every partition sheet (default: 分割_)
	Prefix string `env:"PARTITION_PREFIX" default:"分割_" yaml:"prefix"`

	// MergedSheet is the sheet merge writes (default: 【統合】)
	MergedSheet string `env:"MERGED_SHEET_NAME" default:"【統合】" yaml:"merged_sheet"`

	// DashboardSheet is the overview sheet (default: 【分割シート一覧】)
	DashboardSheet string `env:"DASHBOARD_SHEET_NAME" default:"【分割シート一覧】" yaml:"dashboard_sheet"`

	// CodeColumn is kept as text in partition sheets (default: 市町村コード)
	CodeColumn string `env:"CODE_COLUMN_NAME" default:"市町村コード" yaml:"code_column"`

	// HeaderBackground is the header colour of created sheets (default: #fff2cc)
	HeaderBackground string `env:"HEADER_BACKGROUND" default:"#fff2cc" yaml:"header_background"`

	// SplitMode is "filter" (one filter per distinct value) or "group" (default: filter)
	SplitMode string `env:"SPLIT_MODE" default:"filter" yaml:"split_mode"`

	// RequireMatches makes merge fail when no partition sheet exists (default: false)
	RequireMatches bool `env:"MERGE_REQUIRE_MATCHES" default:"false" yaml:"require_matches"`

	// URL is the workbook address used in sheet links and mails
	URL string `env:"WORKBOOK_URL" envAlt:"WORKSHEET_URL" yaml:"url"`

	// TargetColumn is the A1 column marking survey targets (default: E)
	TargetColumn string `env:"DASHBOARD_TARGET_COLUMN" default:"E" yaml:"target_column"`

	// TargetMarker marks a survey target (default: ○)
	TargetMarker string `env:"DASHBOARD_TARGET_MARKER" default:"○" yaml:"target_marker"`

	// DoneColumn is the A1 column holding survey results (default: H)
	DoneColumn string `env:"DASHBOARD_DONE_COLUMN" default:"H" yaml:"done_column"`
}

// RegistrationConfig holds the registration form layout.
type RegistrationConfig struct {
	// Sheet receives the form responses (default: フォームの回答 1)
	Sheet string `env:"REGISTRATION_SHEET_NAME" default:"フォームの回答 1" yaml:"sheet"`

	NameLabel        string `env:"REGISTRATION_NAME_LABEL" default:"名前（ニックネーム可）" yaml:"name_label"`
	EmailLabel       string `env:"REGISTRATION_EMAIL_LABEL" default:"メールアドレス" yaml:"email_label"`
	AffiliationLabel string `env:"REGISTRATION_AFFILIATION_LABEL" default:"所属（任意）" yaml:"affiliation_label"`
	TimestampLabel   string `env:"REGISTRATION_TIMESTAMP_LABEL" default:"タイムスタンプ" yaml:"timestamp_label"`
	StatusLabel      string `env:"REGISTRATION_STATUS_LABEL" default:"登録処理" yaml:"status_label"`

	// Approved and Rejected are the status values written back
	Approved string `env:"REGISTRATION_APPROVED_VALUE" default:"承認" yaml:"approved"`
	Rejected string `env:"REGISTRATION_REJECTED_VALUE" default:"却下" yaml:"rejected"`

	// PollInterval runs pending registrations periodically; 0 disables (default: 0s)
	PollInterval time.Duration `env:"REGISTRATION_POLL_INTERVAL" default:"0s" yaml:"poll_interval"`
}

// MailConfig holds SMTP settings. Without a host, mails are only logged.
type MailConfig struct {
	Host     string `env:"SMTP_HOST" envAlt:"MAIL_HOST" yaml:"host"`
	Port     int    `env:"SMTP_PORT" default:"587" yaml:"port"`
	Username string `env:"SMTP_USERNAME" yaml:"username"`
	Password string `env:"SMTP_PASSWORD" yaml:"password"`
	StartTLS bool   `env:"SMTP_STARTTLS" default:"false" yaml:"starttls"`

	// Timeout bounds one SMTP session (default: 30s)
	Timeout time.Duration `env:"SMTP_TIMEOUT" default:"30s" yaml:"timeout"`

	// From is the sender address
	From string `env:"MAIL_FROM" yaml:"from"`

	// AdminEmail receives approval summaries
	AdminEmail string `env:"ADMIN_EMAIL" yaml:"admin_email"`

	RegistrantSubject string `env:"MAIL_REGISTRANT_SUBJECT" default:"【saveMLAK】COVID-19全国図書館調査へのご参加を承認いたしました" yaml:"registrant_subject"`

	// AdminSubject replaces % with the number of approved registrants
	AdminSubject string `env:"MAIL_ADMIN_SUBJECT" default:"【covid-19-libdata】新たに%名を作業者として承認しました。" yaml:"admin_subject"`

	// RatePerMinute caps outgoing mails (default: 30)
	RatePerMinute int `env:"MAIL_RATE_PER_MINUTE" default:"30" yaml:"rate_per_minute"`
}

// RunConfig bounds split, merge and other workbook runs.
type RunConfig struct {
	// MaxConcurrent is the number of runs allowed at once (default: 1)
	MaxConcurrent int `env:"RUN_MAX_CONCURRENT" default:"1" yaml:"max_concurrent"`

	// MaxWait is how long a run waits for a slot (default: 30s)
	MaxWait time.Duration `env:"RUN_MAX_WAIT" default:"30s" yaml:"max_wait"`

	// Timeout is the maximum duration of a single run (default: 10m)
	Timeout time.Duration `env:"RUN_TIMEOUT" default:"10m" yaml:"timeout"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100" yaml:"requests_per_minute"`

	// RunLimit is requests per minute for run and import endpoints (default: 10)
	RunLimit int `env:"RATE_LIMIT_RUNS" envAlt:"RATE_LIMIT_UPLOAD" default:"10" yaml:"run_limit"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES" yaml:"trusted_proxies"`

	// RequireAPIKey enables API key auth on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false" yaml:"require_api_key"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS" yaml:"api_keys"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info" yaml:"level"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text" yaml:"format"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
