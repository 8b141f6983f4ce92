package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable pointing at an optional YAML file.
const FileEnv = "CONFIG_FILE"

// Load reads configuration from the file named by CONFIG_FILE (if any) and
// from environment variables. Precedence is defaults, then file, then env.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(FileEnv))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	v := reflect.ValueOf(cfg).Elem()

	if err := walk(v, applyDefault); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
	}

	if err := walk(v, applyEnv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := walk(v, checkRequired); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// loadYAML overlays the file onto cfg. Keys absent from the file keep their
// current value.
func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

type fieldFunc func(field reflect.StructField, val reflect.Value) error

// walk recursively visits every settable leaf field of a struct.
func walk(v reflect.Value, fn fieldFunc) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := walk(fieldVal, fn); err != nil {
				return err
			}
			continue
		}

		if field.Tag.Get("env") == "" {
			continue
		}

		if err := fn(field, fieldVal); err != nil {
			return err
		}
	}

	return nil
}

func applyDefault(field reflect.StructField, val reflect.Value) error {
	def := field.Tag.Get("default")
	if def == "" {
		return nil
	}
	if err := setField(val, def); err != nil {
		return fmt.Errorf("invalid default for %s=%q: %w", field.Tag.Get("env"), def, err)
	}
	return nil
}

func applyEnv(field reflect.StructField, val reflect.Value) error {
	envName := field.Tag.Get("env")

	// Try primary env var, then alternate
	value := os.Getenv(envName)
	if value == "" {
		if alt := field.Tag.Get("envAlt"); alt != "" {
			value = os.Getenv(alt)
		}
	}
	if value == "" {
		return nil
	}

	if err := setField(val, value); err != nil {
		return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
	}
	return nil
}

func checkRequired(field reflect.StructField, val reflect.Value) error {
	if field.Tag.Get("required") != "true" || !val.IsZero() {
		return nil
	}
	return fmt.Errorf("required environment variable %s is not set", field.Tag.Get("env"))
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		// Split comma-separated values, trim whitespace
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// ErrInvalidColumn is returned by ColumnIndex for malformed column letters.
var ErrInvalidColumn = errors.New("invalid column letter")

// ColumnIndex converts A1 column letters ("A", "H", "AA") to a zero-based index.
func ColumnIndex(letters string) (int, error) {
	if letters == "" {
		return 0, ErrInvalidColumn
	}
	n := 0
	for _, r := range strings.ToUpper(letters) {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidColumn, letters)
		}
		n = n*26 + int(r-'A'+1)
	}
	return n - 1, nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.Backend() == BackendPostgres {
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			errs = append(errs, "DB_MIN_CONNS must be non-negative")
		}
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.MaxUploadSize <= 0 {
		errs = append(errs, "SERVER_MAX_UPLOAD_SIZE must be positive")
	}

	// Workbook validation
	if c.Workbook.KeyColumn == "" {
		errs = append(errs, "KEY_COLUMN_LABEL must not be empty")
	}
	if c.Workbook.Prefix == "" {
		errs = append(errs, "PARTITION_PREFIX must not be empty")
	}
	if c.Workbook.MergedSheet == "" {
		errs = append(errs, "MERGED_SHEET_NAME must not be empty")
	}
	if strings.HasPrefix(c.Workbook.MergedSheet, c.Workbook.Prefix) {
		errs = append(errs, fmt.Sprintf("MERGED_SHEET_NAME (%q) must not start with PARTITION_PREFIX (%q)",
			c.Workbook.MergedSheet, c.Workbook.Prefix))
	}
	if strings.HasPrefix(c.Workbook.DashboardSheet, c.Workbook.Prefix) {
		errs = append(errs, fmt.Sprintf("DASHBOARD_SHEET_NAME (%q) must not start with PARTITION_PREFIX (%q)",
			c.Workbook.DashboardSheet, c.Workbook.Prefix))
	}
	switch c.Workbook.SplitMode {
	case SplitModeFilter, SplitModeGroup:
	default:
		errs = append(errs, fmt.Sprintf("SPLIT_MODE (%q) must be one of: filter, group", c.Workbook.SplitMode))
	}
	if _, err := ColumnIndex(c.Workbook.TargetColumn); err != nil {
		errs = append(errs, fmt.Sprintf("DASHBOARD_TARGET_COLUMN (%q) must be a column letter", c.Workbook.TargetColumn))
	}
	if _, err := ColumnIndex(c.Workbook.DoneColumn); err != nil {
		errs = append(errs, fmt.Sprintf("DASHBOARD_DONE_COLUMN (%q) must be a column letter", c.Workbook.DoneColumn))
	}

	// Registration validation
	if c.Registration.Approved == "" || c.Registration.Rejected == "" {
		errs = append(errs, "REGISTRATION_APPROVED_VALUE and REGISTRATION_REJECTED_VALUE must not be empty")
	}
	if c.Registration.Approved == c.Registration.Rejected {
		errs = append(errs, "REGISTRATION_APPROVED_VALUE must differ from REGISTRATION_REJECTED_VALUE")
	}
	if c.Registration.PollInterval < 0 {
		errs = append(errs, "REGISTRATION_POLL_INTERVAL must be non-negative")
	}

	// Mail validation
	if c.Mail.Host != "" && c.Mail.From == "" {
		errs = append(errs, "MAIL_FROM is required when SMTP_HOST is set")
	}
	if c.Mail.RatePerMinute < 0 {
		errs = append(errs, "MAIL_RATE_PER_MINUTE must be non-negative")
	}

	// Run validation
	if c.Run.MaxConcurrent <= 0 {
		errs = append(errs, "RUN_MAX_CONCURRENT must be positive")
	}
	if c.Run.MaxWait <= 0 {
		errs = append(errs, "RUN_MAX_WAIT must be positive")
	}
	if c.Run.Timeout <= 0 {
		errs = append(errs, "RUN_TIMEOUT must be positive")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.RunLimit <= 0 {
		errs = append(errs, "RATE_LIMIT_RUNS must be positive when rate limiting is enabled")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs, SMTP passwords and API keys are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {Backend: %s, URL: %s, SQLitePath: %q}, ",
		c.Database.Backend(), mask(c.Database.URL), c.Database.SQLitePath)
	fmt.Fprintf(&b, "Workbook: {Source: %q, Key: %q, Prefix: %q, Mode: %s}, ",
		c.Workbook.SourceSheet, c.Workbook.KeyColumn, c.Workbook.Prefix, c.Workbook.SplitMode)
	fmt.Fprintf(&b, "Mail: {Host: %q, Port: %d, Password: %s}, ",
		c.Mail.Host, c.Mail.Port, mask(c.Mail.Password))
	fmt.Fprintf(&b, "Run: {MaxConcurrent: %d, Timeout: %s}, ", c.Run.MaxConcurrent, c.Run.Timeout)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %v, APIKeys: %d}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}

func mask(s string) string {
	if s == "" {
		return `""`
	}
	return "[MASKED]"
}
