package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultAppName         = "MedTreasury"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultTokenTTL        = time.Hour
	defaultJWTIssuer       = "medtreasury"
	defaultTreasury        = "treasury"
	defaultInitialSupply   = "1000000"
	defaultTokenDecimals   = 18
	defaultRateLimit       = "300-M"
	devJWTSecret           = "dev-only-insecure-secret"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	LogFormat      string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration

	AdminAccount    string
	DeployerAccount string
	TreasuryAccount string
	// InitialSupply is expressed in whole tokens.
	InitialSupply string
	TokenDecimals int32
	RateLimit     string
}

// Load reads configuration from the environment, after loading a .env file when one exists.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	v.SetDefault("APP_NAME", defaultAppName)
	v.SetDefault("APP_ENV", defaultAppEnv)
	v.SetDefault("PORT", defaultPort)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	v.SetDefault("LOG_FORMAT", defaultLogFormat)
	v.SetDefault("JWT_ISSUER", defaultJWTIssuer)
	v.SetDefault("TOKEN_TTL", defaultTokenTTL.String())
	v.SetDefault("TREASURY_ACCOUNT", defaultTreasury)
	v.SetDefault("INITIAL_SUPPLY", defaultInitialSupply)
	v.SetDefault("TOKEN_DECIMALS", defaultTokenDecimals)
	v.SetDefault("RATE_LIMIT", defaultRateLimit)

	cfg := Config{
		AppName:         v.GetString("APP_NAME"),
		AppEnv:          v.GetString("APP_ENV"),
		Port:            v.GetString("PORT"),
		LogLevel:        strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:       strings.ToLower(v.GetString("LOG_FORMAT")),
		DatabaseURL:     v.GetString("DATABASE_URL"),
		RedisURL:        v.GetString("REDIS_URL"),
		JWTSecret:       v.GetString("JWT_SECRET"),
		JWTIssuer:       v.GetString("JWT_ISSUER"),
		AdminAccount:    strings.TrimSpace(v.GetString("ADMIN_ACCOUNT")),
		DeployerAccount: strings.TrimSpace(v.GetString("DEPLOYER_ACCOUNT")),
		TreasuryAccount: strings.TrimSpace(v.GetString("TREASURY_ACCOUNT")),
		InitialSupply:   v.GetString("INITIAL_SUPPLY"),
		TokenDecimals:   v.GetInt32("TOKEN_DECIMALS"),
		RateLimit:       v.GetString("RATE_LIMIT"),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationOf(v, shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationOf(v, idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.TokenTTL, err = time.ParseDuration(v.GetString("TOKEN_TTL")); err != nil {
		return Config{}, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}

	if cfg.AdminAccount == "" {
		return Config{}, fmt.Errorf("ADMIN_ACCOUNT must be set")
	}
	if cfg.DeployerAccount == "" {
		cfg.DeployerAccount = cfg.AdminAccount
	}
	if cfg.TreasuryAccount == "" {
		return Config{}, fmt.Errorf("TREASURY_ACCOUNT must not be empty")
	}
	if cfg.TokenDecimals < 0 || cfg.TokenDecimals > 77 {
		return Config{}, fmt.Errorf("invalid TOKEN_DECIMALS: %d", cfg.TokenDecimals)
	}
	if cfg.JWTSecret == "" {
		if !cfg.IsDev() {
			return Config{}, fmt.Errorf("JWT_SECRET must be set when APP_ENV=%s", cfg.AppEnv)
		}
		cfg.JWTSecret = devJWTSecret
	}

	return cfg, nil
}

// IsDev reports whether the service runs in a development environment, where
// Postgres and Redis are optional.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func durationOf(v *viper.Viper, secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if raw := v.GetString(secondsKey); raw != "" {
		seconds, err := time.ParseDuration(raw + "s")
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return seconds, nil
	}
	if raw := v.GetString(durationKey); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}
