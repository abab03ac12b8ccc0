package config

import (
	"fmt"
	"net/netip"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables, applies defaults and
// validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := bindEnv(reflect.ValueOf(cfg).Elem(), os.Getenv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// parsers convert an environment value into a field of the keyed type.
var parsers = map[reflect.Type]func(string) (any, error){
	reflect.TypeFor[string](): func(s string) (any, error) { return s, nil },
	reflect.TypeFor[int](): func(s string) (any, error) {
		return strconv.Atoi(s)
	},
	reflect.TypeFor[int64](): func(s string) (any, error) {
		return strconv.ParseInt(s, 10, 64)
	},
	reflect.TypeFor[float64](): func(s string) (any, error) {
		return strconv.ParseFloat(s, 64)
	},
	reflect.TypeFor[bool](): func(s string) (any, error) {
		return strconv.ParseBool(s)
	},
	reflect.TypeFor[time.Duration](): func(s string) (any, error) {
		return time.ParseDuration(s)
	},
	reflect.TypeFor[[]string](): func(s string) (any, error) {
		return splitList(s), nil
	},
}

// bindEnv fills the tagged fields of the struct v, descending into nested
// config sections. Tags:
//
//	env      variable name
//	envAlt   fallback variable read when env is unset
//	default  value used when neither is set
//	required "true" fails the load when nothing is set
func bindEnv(v reflect.Value, getenv func(string) string) error {
	for _, f := range reflect.VisibleFields(v.Type()) {
		fv := v.FieldByIndex(f.Index)
		if !f.IsExported() {
			continue
		}
		if f.Type.Kind() == reflect.Struct {
			if err := bindEnv(fv, getenv); err != nil {
				return err
			}
			continue
		}

		name := f.Tag.Get("env")
		if name == "" {
			continue
		}
		raw := getenv(name)
		if alt := f.Tag.Get("envAlt"); raw == "" && alt != "" {
			raw = getenv(alt)
		}
		if raw == "" {
			if f.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", name)
			}
			raw = f.Tag.Get("default")
		}
		if raw == "" {
			continue
		}

		parse, ok := parsers[f.Type]
		if !ok {
			return fmt.Errorf("%s: unsupported field type %s", name, f.Type)
		}
		val, err := parse(raw)
		if err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", name, raw, err)
		}
		fv.Set(reflect.ValueOf(val))
	}
	return nil
}

// splitList splits a comma separated value, dropping blank entries.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// problems collects validation failures.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p *problems) oneOf(name, got string, allowed ...string) {
	for _, a := range allowed {
		if strings.EqualFold(got, a) {
			return
		}
	}
	p.addf("%s (%q) must be one of: %s", name, got, strings.Join(allowed, ", "))
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("validation failed:\n  - %s", strings.Join(p, "\n  - "))
}

// Validate reports every invalid setting in one error.
func (c *Config) Validate() error {
	var p problems

	db := c.Database
	if db.URL == "" {
		p.addf("DATABASE_URL is required")
	}
	if db.MaxConns < db.MinConns {
		p.addf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", db.MaxConns, db.MinConns)
	}
	if db.MaxConns <= 0 {
		p.addf("DB_MAX_CONNS must be positive")
	}
	if db.MinConns < 0 {
		p.addf("DB_MIN_CONNS must be non-negative")
	}

	srv := c.Server
	if srv.Port <= 0 || srv.Port > 65535 {
		p.addf("SERVER_PORT (%d) must be 1-65535", srv.Port)
	}
	if srv.ReadTimeout < 0 {
		p.addf("SERVER_READ_TIMEOUT must be non-negative")
	}
	if srv.ShutdownTimeout <= 0 {
		p.addf("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if srv.MaxUploadSize <= 0 {
		p.addf("SERVER_MAX_UPLOAD_SIZE must be positive")
	}

	pl := c.Pipeline
	switch pl.Environment {
	case EnvDevelopment, EnvProduction, EnvTesting:
	default:
		p.addf("ENVIRONMENT (%q) must be one of: development, production, testing", pl.Environment)
	}
	if pl.BatchSize <= 0 {
		p.addf("BATCH_SIZE must be positive")
	}
	if pl.ChunkSize <= 0 {
		p.addf("CHUNK_SIZE must be positive")
	}
	if pl.ValidationLevel != "strict" && pl.ValidationLevel != "lenient" {
		p.addf("VALIDATION_LEVEL (%q) must be strict or lenient", pl.ValidationLevel)
	}
	if pl.ErrorThreshold < 0 || pl.ErrorThreshold > 1 {
		p.addf("ERROR_THRESHOLD (%g) must be between 0 and 1", pl.ErrorThreshold)
	}
	if pl.OutputDir == "" {
		p.addf("OUTPUT_DATA_PATH must not be empty")
	}
	if pl.RunTimeout <= 0 {
		p.addf("PIPELINE_RUN_TIMEOUT must be positive")
	}
	if pl.WaitTime < 0 {
		p.addf("PIPELINE_WAIT_TIME must be non-negative")
	}

	ex := c.Export
	if len([]rune(ex.Delimiter)) != 1 {
		p.addf("EXPORT_DELIMITER (%q) must be a single character", ex.Delimiter)
	}
	p.oneOf("EXPORT_COMPRESSION", ex.Compression, "snappy", "gzip", "zstd", "brotli", "none")
	if u := ex.PublishURL; u != "" && !strings.HasPrefix(u, "s3://") && !strings.HasPrefix(u, "gs://") {
		p.addf("EXPORT_PUBLISH_URL (%q) must start with s3:// or gs://", u)
	}

	sec := c.Security
	if sec.RequireAPIKey && len(sec.APIKeys) == 0 {
		p.addf("REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}
	if sec.RateLimit < 0 {
		p.addf("RATE_LIMIT_PER_MINUTE must be non-negative (0 disables rate limiting)")
	}
	for _, proxy := range sec.TrustedProxies {
		if !validProxy(proxy) {
			p.addf("TRUSTED_PROXIES entry %q is not an IP or CIDR", proxy)
		}
	}

	p.oneOf("LOG_LEVEL", c.Logging.Level, "debug", "info", "warn", "error")
	p.oneOf("LOG_FORMAT", c.Logging.Format, "text", "json")

	return p.err()
}

func validProxy(s string) bool {
	if _, err := netip.ParsePrefix(s); err == nil {
		return true
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

// String renders the config for logs with the database URL and API keys
// masked.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Config{Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ", c.Database.MaxConns, c.Database.MinConns)
	fmt.Fprintf(&b, "Pipeline: {Environment: %q, BatchSize: %d, ChunkSize: %d, ValidationLevel: %q, ErrorThreshold: %g}, ",
		c.Pipeline.Environment, c.Pipeline.BatchSize, c.Pipeline.ChunkSize, c.Pipeline.ValidationLevel, c.Pipeline.ErrorThreshold)
	fmt.Fprintf(&b, "Export: {Delimiter: %q, Compression: %q, Publish: %v}, ", c.Export.Delimiter, c.Export.Compression, c.Export.PublishURL != "")
	fmt.Fprintf(&b, "Security: {APIKeys: %d, RequireAPIKey: %v}, ", len(c.Security.APIKeys), c.Security.RequireAPIKey)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}}", c.Logging.Level, c.Logging.Format)
	return b.String()
}
