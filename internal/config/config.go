package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	HTTP      ServerConfig    `mapstructure:"http"`
	GRPC      ServerConfig    `mapstructure:"grpc"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type EngineConfig struct {
	Variant           string        `mapstructure:"variant"`
	MaxMatchesPerCall int           `mapstructure:"max_matches_per_call"`
	MaxPriceAge       time.Duration `mapstructure:"max_price_age"`
	EscrowAddress     string        `mapstructure:"escrow_address"`
}

// PostgresConfig selects the Postgres repository when DSN is set.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig selects the Redis order cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// KafkaConfig selects the Kafka event publisher when Brokers is set.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type OracleConfig struct {
	Mode           string            `mapstructure:"mode"`
	RPCURL         string            `mapstructure:"rpc_url"`
	StaticPrices   map[string]string `mapstructure:"static_prices"`
	StaticDecimals uint8             `mapstructure:"static_decimals"`
}

// LedgerConfig drives the in-process token ledger. Seed entries read
// "asset:holder:amount" and are credited and approved for the escrow at start.
// Faucet exposes the deposit and approve routes.
type LedgerConfig struct {
	Seed   []string `mapstructure:"seed"`
	Faucet bool     `mapstructure:"faucet"`
}

// Seed is one parsed ledger.seed entry.
type Seed struct {
	Asset  common.Address
	Holder common.Address
	Amount decimal.Decimal
}

type RateLimitConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("grpc.addr", ":9090")
	v.SetDefault("engine.variant", "base")
	v.SetDefault("engine.max_matches_per_call", 64)
	v.SetDefault("engine.max_price_age", time.Duration(0))
	v.SetDefault("engine.escrow_address", "0x000000000000000000000000000000000000e5c0")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 5*time.Minute)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "escrowbook.events")
	v.SetDefault("oracle.mode", "static")
	v.SetDefault("oracle.rpc_url", "")
	v.SetDefault("oracle.static_prices", map[string]string{})
	v.SetDefault("oracle.static_decimals", 8)
	v.SetDefault("ratelimit.interval", 10*time.Millisecond)
	v.SetDefault("ledger.seed", []string{})
	v.SetDefault("ledger.faucet", true)
}

// Load reads configuration from the optional file at path and from
// ESCROWBOOK_* environment variables, e.g. ESCROWBOOK_POSTGRES_DSN.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("ESCROWBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// Env values arrive as one comma-separated string.
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.Ledger.Seed = splitList(cfg.Ledger.Seed)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(vals []string) []string {
	if len(vals) == 1 && strings.Contains(vals[0], ",") {
		return strings.Split(vals[0], ",")
	}
	return vals
}

func (c *Config) Validate() error {
	switch c.Engine.Variant {
	case "base", "extended":
	default:
		return fmt.Errorf("engine.variant: unknown variant %q", c.Engine.Variant)
	}
	if !common.IsHexAddress(c.Engine.EscrowAddress) {
		return fmt.Errorf("engine.escrow_address: %q is not an address", c.Engine.EscrowAddress)
	}
	switch c.Oracle.Mode {
	case "static":
		if _, err := c.Oracle.Prices(); err != nil {
			return err
		}
	case "chainlink":
		if c.Oracle.RPCURL == "" {
			return errors.New("oracle.rpc_url is required in chainlink mode")
		}
	default:
		return fmt.Errorf("oracle.mode: unknown mode %q", c.Oracle.Mode)
	}
	if _, err := c.Ledger.Seeds(); err != nil {
		return err
	}
	if c.RateLimit.Interval < 0 {
		return errors.New("ratelimit.interval must not be negative")
	}
	return nil
}

// Prices parses the static oracle table.
func (o OracleConfig) Prices() (map[common.Address]int64, error) {
	res := make(map[common.Address]int64, len(o.StaticPrices))
	for feed, raw := range o.StaticPrices {
		if !common.IsHexAddress(feed) {
			return nil, fmt.Errorf("oracle.static_prices: %q is not an address", feed)
		}
		p, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("oracle.static_prices[%s]: %w", feed, err)
		}
		res[common.HexToAddress(feed)] = p
	}
	return res, nil
}

// Seeds parses the ledger.seed entries.
func (l LedgerConfig) Seeds() ([]Seed, error) {
	res := make([]Seed, 0, len(l.Seed))
	for _, raw := range l.Seed {
		parts := strings.Split(strings.TrimSpace(raw), ":")
		if len(parts) != 3 || !common.IsHexAddress(parts[0]) || !common.IsHexAddress(parts[1]) {
			return nil, fmt.Errorf("ledger.seed: %q is not asset:holder:amount", raw)
		}
		amount, err := decimal.NewFromString(parts[2])
		if err != nil || amount.IsNegative() {
			return nil, fmt.Errorf("ledger.seed: %q has an invalid amount", raw)
		}
		res = append(res, Seed{
			Asset:  common.HexToAddress(parts[0]),
			Holder: common.HexToAddress(parts[1]),
			Amount: amount,
		})
	}
	return res, nil
}
