package internal

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Disbursement  DisbursementConfig  `mapstructure:"disbursement"`
	FSP           FSPConfig           `mapstructure:"fsp"`
	Notification  NotificationConfig  `mapstructure:"notification"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	ConnectAttempts uint64        `mapstructure:"connect_attempts"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	JWTPrivateKey       string        `mapstructure:"jwt_private_key"`
	JWTPublicKey        string        `mapstructure:"jwt_public_key" validate:"required"`
	Issuer              string        `mapstructure:"issuer"`
	AccessTokenDuration time.Duration `mapstructure:"access_token_duration" validate:"required,min=1m"`
	BCryptCost          int           `mapstructure:"bcrypt_cost" validate:"required,min=10,max=15"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// DisbursementConfig tunes batch dispatch and the background scheduler.
type DisbursementConfig struct {
	Currency          string        `mapstructure:"currency"`
	BatchConcurrency  int           `mapstructure:"batch_concurrency"`
	DefaultMaxRetries int           `mapstructure:"default_max_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	RetryBackoffCap   time.Duration `mapstructure:"retry_backoff_cap"`
	MonitorInterval   time.Duration `mapstructure:"monitor_interval"`
	SchedulerInterval time.Duration `mapstructure:"scheduler_interval"`
	PollAcceptedAfter time.Duration `mapstructure:"poll_accepted_after"`
}

type FSPConfig struct {
	SandboxEnabled bool             `mapstructure:"sandbox_enabled"`
	DefaultTimeout time.Duration    `mapstructure:"default_timeout"`
	Providers      []ProviderConfig `mapstructure:"providers"`
}

// ProviderConfig describes one HTTP provider gateway.
type ProviderConfig struct {
	Code          string        `mapstructure:"code"`
	Name          string        `mapstructure:"name"`
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Channels      []string      `mapstructure:"channels"`
	MinAmount     string        `mapstructure:"min_amount"`
	MaxAmount     string        `mapstructure:"max_amount"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxConcurrent int64         `mapstructure:"max_concurrent"`
}

type NotificationConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ----------------- DEFAULTS -----------------

func (c *DisbursementConfig) ApplyDefaults() {
	if c.Currency == "" {
		c.Currency = "PHP"
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = 10
	}
	if c.DefaultMaxRetries <= 0 {
		c.DefaultMaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	if c.RetryBackoffCap <= 0 {
		c.RetryBackoffCap = time.Minute
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = 15 * time.Second
	}
	if c.SchedulerInterval <= 0 {
		c.SchedulerInterval = time.Minute
	}
	if c.PollAcceptedAfter <= 0 {
		c.PollAcceptedAfter = 2 * time.Minute
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

// LoadConfigFromEnv builds the configuration from plain environment
// variables, for container deployments without a config file.
func LoadConfigFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("PORT", 8080),
			BaseURL:           getEnv("BASE_URL", ""),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			ConnectAttempts: uint64(getEnvAsInt("DB_CONNECT_ATTEMPTS", 5)),
			Source:          getEnv("DATABASE_URL", ""),
		},
		Security: SecurityConfig{
			JWTPrivateKey:       getEnv("JWT_PRIVATE_KEY", ""),
			JWTPublicKey:        getEnv("JWT_PUBLIC_KEY", ""),
			Issuer:              getEnv("JWT_ISSUER", "disbursement"),
			AccessTokenDuration: getEnvAsDuration("ACCESS_TOKEN_DURATION", 15*time.Minute),
			BCryptCost:          getEnvAsInt("BCRYPT_COST", 12),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
		Disbursement: DisbursementConfig{
			Currency:          getEnv("DISBURSEMENT_CURRENCY", "PHP"),
			BatchConcurrency:  getEnvAsInt("DISBURSEMENT_BATCH_CONCURRENCY", 10),
			DefaultMaxRetries: getEnvAsInt("DISBURSEMENT_DEFAULT_MAX_RETRIES", 3),
			RetryBackoff:      getEnvAsDuration("DISBURSEMENT_RETRY_BACKOFF", 2*time.Second),
			RetryBackoffCap:   getEnvAsDuration("DISBURSEMENT_RETRY_BACKOFF_CAP", time.Minute),
			MonitorInterval:   getEnvAsDuration("DISBURSEMENT_MONITOR_INTERVAL", 15*time.Second),
			SchedulerInterval: getEnvAsDuration("DISBURSEMENT_SCHEDULER_INTERVAL", time.Minute),
			PollAcceptedAfter: getEnvAsDuration("DISBURSEMENT_POLL_ACCEPTED_AFTER", 2*time.Minute),
		},
		FSP: FSPConfig{
			SandboxEnabled: getEnvAsBool("FSP_SANDBOX_ENABLED", false),
			DefaultTimeout: getEnvAsDuration("FSP_DEFAULT_TIMEOUT", 30*time.Second),
		},
		Notification: NotificationConfig{
			WebhookURL: getEnv("NOTIFICATION_WEBHOOK_URL", ""),
			Timeout:    getEnvAsDuration("NOTIFICATION_TIMEOUT", 5*time.Second),
		},
	}
	cfg.Disbursement.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Disbursement.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("disbursement config: %v", err))
	}

	if err := c.FSP.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("fsp config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if _, err := c.GetPublicKey(); err != nil {
		return fmt.Errorf("invalid JWT public key: %w", err)
	}
	if c.JWTPrivateKey != "" {
		if _, err := c.GetPrivateKey(); err != nil {
			return fmt.Errorf("invalid JWT private key: %w", err)
		}
	}
	return nil
}

func (c *SecurityConfig) GetPrivateKey() (*rsa.PrivateKey, error) {
	keyData, err := base64.StdEncoding.DecodeString(c.JWTPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, errors.New("failed to parse PEM block")
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

func (c *SecurityConfig) GetPublicKey() (*rsa.PublicKey, error) {
	keyData, err := base64.StdEncoding.DecodeString(c.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, errors.New("failed to parse PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return rsaPub, nil
}

func (c *DisbursementConfig) Validate() error {
	if len(c.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter code, got %q", c.Currency)
	}
	if c.DefaultMaxRetries < 1 || c.DefaultMaxRetries > 10 {
		return errors.New("default_max_retries must be between 1 and 10")
	}
	if c.BatchConcurrency < 1 {
		return errors.New("batch_concurrency must be at least 1")
	}
	return nil
}

func (c *FSPConfig) Validate() error {
	seen := make(map[string]struct{}, len(c.Providers))
	for i, p := range c.Providers {
		if p.Code == "" {
			return fmt.Errorf("providers[%d]: code is required", i)
		}
		if _, dup := seen[p.Code]; dup {
			return fmt.Errorf("providers[%d]: duplicate code %s", i, p.Code)
		}
		seen[p.Code] = struct{}{}
		if _, err := url.ParseRequestURI(p.BaseURL); err != nil {
			return fmt.Errorf("providers[%d]: invalid base_url: %w", i, err)
		}
		if len(p.Channels) == 0 {
			return fmt.Errorf("providers[%d]: at least one channel is required", i)
		}
	}
	return nil
}
