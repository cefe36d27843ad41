package pgconnect

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"github.com/kelseyhightower/envconfig"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/rickchristie/postgres-connect/internal/protection"
	"github.com/rickchristie/postgres-connect/internal/store"
)

// DefaultMaxSQLLength is the longest query text accepted by query_data_read.
const DefaultMaxSQLLength = 100000

// Config is the server configuration, loaded from an optional TOML file.
// Connection settings are not part of it; they come from the environment on
// every call (see ConnectionConfig).
type Config struct {
	// RedactErrorDetail drops driver text from connection and internal error
	// payloads. The full text is still logged.
	RedactErrorDetail bool `toml:"redact_error_detail"`
	// DefaultErrorPrompts prepends errprompt.DefaultRules to ErrorPrompts.
	DefaultErrorPrompts bool `toml:"default_error_prompts"`

	Server       ServerConfig       `toml:"server"`
	Query        QueryConfig        `toml:"query"`
	ErrorPrompts []ErrorPromptRule  `toml:"error_prompts"`
	Sanitization []SanitizationRule `toml:"sanitization"`
	Logging      LoggingConfig      `toml:"logging"`
	HTTP         HTTPConfig         `toml:"http"`
}

// ServerConfig describes the server to the client during the handshake.
type ServerConfig struct {
	Name         string `toml:"name"`
	Version      string `toml:"version"`
	Instructions string `toml:"instructions"`
	// ProtocolVersions lists accepted versions, preferred first. The first
	// entry is what a client is told to retry with.
	ProtocolVersions []string `toml:"protocol_versions"`
	// AllowCallsBeforeInitialized lets tools/list and tools/call through
	// before the client sends notifications/initialized.
	AllowCallsBeforeInitialized bool `toml:"allow_calls_before_initialized"`
}

// QueryConfig holds query execution settings.
type QueryConfig struct {
	// MaxSQLLength bounds query text in bytes. Zero disables the check.
	MaxSQLLength int `toml:"max_sql_length"`
	// StrictParse adds a PostgreSQL parser check after the lexical classifier.
	StrictParse bool `toml:"strict_parse"`
	// BlockedFunctions only apply with StrictParse.
	BlockedFunctions []string `toml:"blocked_functions"`
	// DefaultTimeoutSeconds of zero means no deadline.
	DefaultTimeoutSeconds int           `toml:"default_timeout_seconds"`
	TimeoutRules          []TimeoutRule `toml:"timeout_rules"`
}

// TimeoutRule maps a SQL pattern to a specific timeout duration.
type TimeoutRule struct {
	Pattern        string `toml:"pattern"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ErrorPromptRule maps an error message pattern to a hint.
type ErrorPromptRule struct {
	Pattern string `toml:"pattern"`
	Message string `toml:"message"`
}

// SanitizationRule defines a regex-based field sanitization rule.
type SanitizationRule struct {
	Pattern     string `toml:"pattern"`
	Replacement string `toml:"replacement"`
	Description string `toml:"description"`
}

// LoggingConfig holds logging settings. Output is stderr or a file path;
// stdout carries protocol messages and is refused.
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json, text
	Output string `toml:"output"` // stderr, or file path
}

// HTTPConfig holds settings for the streamable HTTP transport.
type HTTPConfig struct {
	Port               int    `toml:"port"`
	HealthCheckEnabled bool   `toml:"health_check_enabled"`
	HealthCheckPath    string `toml:"health_check_path"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:             "postgres-connect",
			Version:          "dev",
			ProtocolVersions: append([]string(nil), mcp.ValidProtocolVersions...),
		},
		Query: QueryConfig{
			MaxSQLLength:     DefaultMaxSQLLength,
			BlockedFunctions: append([]string(nil), protection.DefaultBlockedFunctions...),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		HTTP: HTTPConfig{
			Port:            8080,
			HealthCheckPath: "/health-check",
		},
	}
}

// Load reads a TOML config over DefaultConfig. An empty path or a missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Validate reports every problem in c at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if strings.TrimSpace(c.Server.Name) == "" {
		result = multierror.Append(result, fmt.Errorf("server.name must be non-empty"))
	}
	if len(c.Server.ProtocolVersions) == 0 {
		result = multierror.Append(result, fmt.Errorf("server.protocol_versions must list at least one version"))
	}
	for i, v := range c.Server.ProtocolVersions {
		if strings.TrimSpace(v) == "" {
			result = multierror.Append(result, fmt.Errorf("server.protocol_versions[%d] is empty", i))
		}
	}

	if c.Query.MaxSQLLength < 0 {
		result = multierror.Append(result, fmt.Errorf("query.max_sql_length must be >= 0"))
	}
	if c.Query.DefaultTimeoutSeconds < 0 {
		result = multierror.Append(result, fmt.Errorf("query.default_timeout_seconds must be >= 0"))
	}
	for i, r := range c.Query.TimeoutRules {
		if r.Pattern == "" {
			result = multierror.Append(result, fmt.Errorf("query.timeout_rules[%d].pattern must be non-empty", i))
		}
		if r.TimeoutSeconds < 0 {
			result = multierror.Append(result, fmt.Errorf("query.timeout_rules[%d].timeout_seconds must be >= 0", i))
		}
	}
	for i, r := range c.ErrorPrompts {
		if r.Pattern == "" {
			result = multierror.Append(result, fmt.Errorf("error_prompts[%d].pattern must be non-empty", i))
		}
	}
	for i, r := range c.Sanitization {
		if r.Pattern == "" {
			result = multierror.Append(result, fmt.Errorf("sanitization[%d].pattern must be non-empty", i))
		}
	}

	if c.Logging.Level != "" {
		if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
			result = multierror.Append(result, fmt.Errorf("logging.level: %w", err))
		}
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		result = multierror.Append(result, fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format))
	}
	if c.Logging.Output == "stdout" || c.Logging.Output == "/dev/stdout" {
		result = multierror.Append(result, fmt.Errorf("logging.output cannot be stdout: it carries protocol messages"))
	}

	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("http.port must be between 0 and 65535, got %d", c.HTTP.Port))
	}
	if c.HTTP.HealthCheckEnabled && !strings.HasPrefix(c.HTTP.HealthCheckPath, "/") {
		result = multierror.Append(result, fmt.Errorf("http.health_check_path must start with /"))
	}
	if c.HTTP.HealthCheckEnabled && c.HTTP.HealthCheckPath == MCPEndpointPath {
		result = multierror.Append(result, fmt.Errorf("http.health_check_path cannot be %s", MCPEndpointPath))
	}

	return result.ErrorOrNil()
}

// ConnectionConfig is read from the standard libpq environment variables.
// The defaults suit a local development database only.
type ConnectionConfig struct {
	Database              string `envconfig:"PGDATABASE" default:"postgres"`
	User                  string `envconfig:"PGUSER" default:"postgres"`
	Password              string `envconfig:"PGPASSWORD" default:"password"`
	Host                  string `envconfig:"PGHOST" default:"localhost"`
	Port                  int    `envconfig:"PGPORT" default:"5432"`
	SSLMode               string `envconfig:"PGSSLMODE"`
	ConnectTimeoutSeconds int    `envconfig:"PGCONNECT_TIMEOUT" default:"10"`
}

// LoadConnectionConfig reads ConnectionConfig from the environment.
func LoadConnectionConfig() (ConnectionConfig, error) {
	var c ConnectionConfig
	if err := envconfig.Process("", &c); err != nil {
		return ConnectionConfig{}, fmt.Errorf("invalid connection environment: %w", err)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return ConnectionConfig{}, fmt.Errorf("invalid connection environment: PGPORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.ConnectTimeoutSeconds < 0 {
		return ConnectionConfig{}, fmt.Errorf("invalid connection environment: PGCONNECT_TIMEOUT must be >= 0, got %d", c.ConnectTimeoutSeconds)
	}
	return c, nil
}

// Params converts c into store connection parameters.
func (c ConnectionConfig) Params() store.Params {
	return store.Params{
		Host:           c.Host,
		Port:           c.Port,
		Database:       c.Database,
		User:           c.User,
		Password:       c.Password,
		SSLMode:        c.SSLMode,
		ConnectTimeout: secondsDuration(c.ConnectTimeoutSeconds),
	}
}

// ConnectionResolver yields the connection parameters for one call.
type ConnectionResolver func() (store.Params, error)

// EnvResolver resolves parameters from the environment on every call, so a
// changed PGHOST takes effect without a restart.
func EnvResolver() (store.Params, error) {
	c, err := LoadConnectionConfig()
	if err != nil {
		return store.Params{}, err
	}
	return c.Params(), nil
}
