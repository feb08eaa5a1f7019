// Package config loads service configuration from config.yaml, an optional .env
// file and PAYWALL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
)

// Payment providers and verifiers.
const (
	ProviderProof = "proof"
	ProviderRelay = "relay"

	VerifyTrust = "trust"
	VerifyRPC   = "rpc"
)

// Media backends.
const (
	MediaPublic   = "public"
	MediaSupabase = "supabase"
)

var (
	ErrUnknownDriver   = errors.New("config: unknown storage driver")
	ErrUnknownProvider = errors.New("config: unknown payment provider")
	ErrUnknownVerifier = errors.New("config: unknown payment verifier")
	ErrUnknownMedia    = errors.New("config: unknown media backend")
	ErrMissingSetting  = errors.New("config: missing required setting")
)

type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Solana  SolanaConfig  `mapstructure:"solana"`
	Payment PaymentConfig `mapstructure:"payment"`
	Media   MediaConfig   `mapstructure:"media"`
	App     AppConfig     `mapstructure:"app"`
}

type StorageConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`  // postgres / pgx, or a full mysql DSN
	Path     string `mapstructure:"path"` // sqlite file
	MaxConns int32  `mapstructure:"max_conns"`
	MySQL    struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		DBName   string `mapstructure:"dbname"`
	} `mapstructure:"mysql"`
}

// MySQLDSN returns DSN if set, otherwise builds one from the mysql block.
func (s StorageConfig) MySQLDSN() string {
	if s.DSN != "" {
		return s.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		s.MySQL.User, s.MySQL.Password, s.MySQL.Host, s.MySQL.Port, s.MySQL.DBName)
}

type SolanaConfig struct {
	RPCURL      string `mapstructure:"rpc_url"`
	WSURL       string `mapstructure:"ws_url"` // 例如 "wss://api.mainnet-beta.solana.com"
	PayerSecret string `mapstructure:"payer_secret"`
	Cluster     string `mapstructure:"cluster"`
	Commitment  string `mapstructure:"commitment"`
}

type PaymentConfig struct {
	Provider     string        `mapstructure:"provider"`
	Verify       string        `mapstructure:"verify"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type MediaConfig struct {
	Backend      string        `mapstructure:"backend"`
	BaseURL      string        `mapstructure:"base_url"`
	SupabaseURL  string        `mapstructure:"supabase_url"`
	SupabaseKey  string        `mapstructure:"supabase_key"`
	Bucket       string        `mapstructure:"bucket"`
	SignedURLTTL time.Duration `mapstructure:"signed_url_ttl"`
}

type AppConfig struct {
	Port       int           `mapstructure:"port"`
	LogLevel   string        `mapstructure:"log_level"`
	ReadyDelay time.Duration `mapstructure:"ready_delay"`
	FeedLimit  int           `mapstructure:"feed_limit"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.path", "paywall.db")
	v.SetDefault("storage.max_conns", 10)
	v.SetDefault("storage.mysql.host", "127.0.0.1")
	v.SetDefault("storage.mysql.port", 3306)
	v.SetDefault("storage.mysql.user", "")
	v.SetDefault("storage.mysql.password", "")
	v.SetDefault("storage.mysql.dbname", "paywall")

	v.SetDefault("solana.rpc_url", "https://api.devnet.solana.com")
	v.SetDefault("solana.ws_url", "wss://api.devnet.solana.com")
	v.SetDefault("solana.payer_secret", "")
	v.SetDefault("solana.cluster", "devnet")
	v.SetDefault("solana.commitment", "confirmed")

	v.SetDefault("payment.provider", ProviderProof)
	v.SetDefault("payment.verify", VerifyTrust)
	v.SetDefault("payment.timeout", 2*time.Minute)
	v.SetDefault("payment.poll_interval", 2*time.Second)

	v.SetDefault("media.backend", MediaPublic)
	v.SetDefault("media.base_url", "")
	v.SetDefault("media.supabase_url", "")
	v.SetDefault("media.supabase_key", "")
	v.SetDefault("media.bucket", "")
	v.SetDefault("media.signed_url_ttl", 10*time.Minute)

	v.SetDefault("app.port", 8080)
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.ready_delay", 0)
	v.SetDefault("app.feed_limit", 50)
}

// Load reads configuration. With an empty path it looks for ./config.yaml and
// tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("PAYWALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings and the secrets each mode needs.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite, DriverMySQL:
	case DriverPostgres, DriverPgx:
		if c.Storage.DSN == "" {
			return fmt.Errorf("%w: storage.dsn for driver %q", ErrMissingSetting, c.Storage.Driver)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Storage.Driver)
	}

	switch c.Payment.Provider {
	case ProviderProof:
	case ProviderRelay:
		if c.Solana.RPCURL == "" {
			return fmt.Errorf("%w: solana.rpc_url for relay provider", ErrMissingSetting)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.Payment.Provider)
	}

	switch c.Payment.Verify {
	case VerifyTrust:
	case VerifyRPC:
		if c.Solana.RPCURL == "" {
			return fmt.Errorf("%w: solana.rpc_url for rpc verifier", ErrMissingSetting)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownVerifier, c.Payment.Verify)
	}

	switch c.Media.Backend {
	case MediaPublic:
	case MediaSupabase:
		if c.Media.SupabaseURL == "" || c.Media.SupabaseKey == "" || c.Media.Bucket == "" {
			return fmt.Errorf("%w: media.supabase_url, media.supabase_key and media.bucket", ErrMissingSetting)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMedia, c.Media.Backend)
	}
	return nil
}
