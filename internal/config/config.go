// Package config loads process configuration from the environment and an
// optional YAML genesis file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full process configuration for lottod.
type Config struct {
	HTTP    HTTPConfig
	Auth    AuthConfig
	Store   StoreConfig
	Bank    BankConfig
	Oracle  OracleConfig
	Sweeper SweeperConfig

	// GenesisPath points at an optional YAML file used to initialize the
	// engine configuration on first start.
	GenesisPath string `env:"GENESIS_PATH"`
}

type HTTPConfig struct {
	ListenAddr      string        `env:"HTTP_LISTEN_ADDR,default=:8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT,default=15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT,default=30s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT,default=10s"`
}

type AuthConfig struct {
	// JWTSecret signs and verifies caller tokens. Required.
	JWTSecret string `env:"JWT_SECRET,required"`
	// RateLimitRPS bounds command requests per client address.
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS,default=10"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST,default=20"`
}

type StoreConfig struct {
	// DatabaseURL selects the Postgres store when set; the in-memory
	// store is used otherwise.
	DatabaseURL  string `env:"DATABASE_URL"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS,default=10"`
	MaxIdleConns int    `env:"DB_MAX_IDLE_CONNS,default=5"`
}

type BankConfig struct {
	BaseURL   string `env:"BANK_BASE_URL"`
	AuthToken string `env:"BANK_AUTH_TOKEN"`
	Account   string `env:"BANK_ACCOUNT"`
}

type OracleConfig struct {
	BaseURL     string `env:"ORACLE_BASE_URL"`
	AuthToken   string `env:"ORACLE_AUTH_TOKEN"`
	CallbackURL string `env:"ORACLE_CALLBACK_URL"`
}

type SweeperConfig struct {
	// Schedule is a cron expression for the pending-settlement sweep.
	Schedule string `env:"SWEEP_SCHEDULE,default=@every 1m"`
	Enabled  bool   `env:"SWEEP_ENABLED,default=true"`
}

// Load reads .env when present, then decodes the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}

// Genesis is the engine configuration seeded on first start.
type Genesis struct {
	Manager                   string `yaml:"manager"`
	OracleAddress             string `yaml:"oracle_address"`
	CommunityPool             string `yaml:"community_pool"`
	ProtocolCommissionPercent int    `yaml:"protocol_commission_percent"`
	CreatorCommissionPercent  int    `yaml:"creator_commission_percent"`
}

// LoadGenesis parses the YAML genesis file at path.
func LoadGenesis(path string) (Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, fmt.Errorf("read genesis file: %w", err)
	}
	var g Genesis
	if err := yaml.Unmarshal(data, &g); err != nil {
		return Genesis{}, fmt.Errorf("parse genesis file: %w", err)
	}
	if g.Manager == "" || g.OracleAddress == "" || g.CommunityPool == "" {
		return Genesis{}, fmt.Errorf("genesis file %s is missing required addresses", path)
	}
	return g, nil
}
