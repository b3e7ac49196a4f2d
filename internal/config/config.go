// Package config loads swap engine configuration from defaults, an optional
// YAML file, the environment (including a .env file) and command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Default addresses on the target ledger.
const (
	DefaultNodeURL       = "https://fullnode.mainnet.aptoslabs.com"
	DefaultVaultAddress  = "0xf9bf1298a04a1fe13ed75059e9e6950ec1ec2d6ed95f8a04a6e11af23c87381e"
	DefaultRouterAddress = "0xc7efb4076dbe143cbcd98cfaaa929ecfc8f299405d018d7e18f75ac2b0e95f60"
	DefaultSourceAsset   = "0x1::aptos_coin::AptosCoin"
	DefaultTargetAsset   = "0xf22bede237a07e121b56d91a491eb7bcdfd1f5907926a9e58338f964a01b17fa::asset::USDT"
)

// Duration wraps time.Duration to support YAML unmarshalling.
// Accepts Go duration strings ("2s", "1h") or plain numbers of seconds.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be scalar")
	}
	parsed, err := parseDuration(value.Value)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for the swap engine.
type Config struct {
	Env        string `yaml:"env"`
	NodeURL    string `yaml:"node_url"`
	Account    string `yaml:"account"`
	PrivateKey string `yaml:"-"` // environment only

	VaultAddress  string `yaml:"vault_address"`
	RouterAddress string `yaml:"router_address"`
	SourceAsset   string `yaml:"source_asset"`
	TargetAsset   string `yaml:"target_asset"`

	Swap    SwapConfig    `yaml:"swap"`
	Pricing PricingConfig `yaml:"pricing"`
	Monitor MonitorConfig `yaml:"monitor"`
	Gas     GasConfig     `yaml:"gas"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// SwapConfig holds the safety limits and the retry policy.
type SwapConfig struct {
	MaxSlippage       float64  `yaml:"max_slippage"`
	MinAmount         uint64   `yaml:"min_amount"`
	MaxAmount         uint64   `yaml:"max_amount"`
	Cooldown          Duration `yaml:"cooldown_period"`
	MaxRetries        int      `yaml:"max_retries"`
	RetryDelay        Duration `yaml:"retry_delay"`
	ExecutionDeadline Duration `yaml:"execution_deadline"`
	SettleTimeout     Duration `yaml:"settle_timeout"` // 0 disables waiting for a path's transaction to leave the mempool
}

// PricingConfig selects the quote source.
type PricingConfig struct {
	FeeBps int64 `yaml:"fee_bps"`

	// FixedRate, when positive, quotes every swap at this output/input rate
	// instead of reading pool reserves.
	FixedRate   float64 `yaml:"fixed_rate"`
	FixedImpact float64 `yaml:"fixed_impact"`
}

// MonitorConfig tunes the post-submission polling loop.
type MonitorConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Timeout      Duration `yaml:"timeout"`
	PollInterval Duration `yaml:"poll_interval"`
}

// GasConfig is forwarded to every submitted transaction.
type GasConfig struct {
	UnitPrice  uint64   `yaml:"unit_price"`
	MaxAmount  uint64   `yaml:"max_amount"`
	Expiration Duration `yaml:"expiration"`
}

// LedgerConfig tunes the ledger HTTP client.
type LedgerConfig struct {
	RequestTimeout Duration `yaml:"request_timeout"`
	MaxLag         Duration `yaml:"max_lag"`
	MaxRetries     int      `yaml:"max_retries"`
}

// ServerConfig configures the HTTP layer.
type ServerConfig struct {
	ListenAddress     string  `yaml:"listen"`
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
	TrustProxy        bool    `yaml:"trust_proxy"` // take the client address from X-Real-IP / X-Forwarded-For
}

// StorageConfig selects the attempt journal backends.
type StorageConfig struct {
	UseMemory     bool   `yaml:"use_memory"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
}

// LogConfig configures log output.
type LogConfig struct {
	File string `yaml:"file"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		NodeURL:       DefaultNodeURL,
		VaultAddress:  DefaultVaultAddress,
		RouterAddress: DefaultRouterAddress,
		SourceAsset:   DefaultSourceAsset,
		TargetAsset:   DefaultTargetAsset,
		Swap: SwapConfig{
			MaxSlippage:       0.05,
			MinAmount:         100_000,       // 0.1 APT
			MaxAmount:         1_000_000_000, // 1000 APT
			Cooldown:          Duration{time.Hour},
			MaxRetries:        3,
			RetryDelay:        Duration{2 * time.Second},
			ExecutionDeadline: Duration{time.Hour},
			SettleTimeout:     Duration{20 * time.Second},
		},
		Pricing: PricingConfig{FeeBps: 25},
		Monitor: MonitorConfig{
			Enabled:      true,
			Timeout:      Duration{300 * time.Second},
			PollInterval: Duration{2 * time.Second},
		},
		Gas: GasConfig{
			UnitPrice:  100,
			MaxAmount:  200_000,
			Expiration: Duration{10 * time.Minute},
		},
		Ledger: LedgerConfig{
			RequestTimeout: Duration{30 * time.Second},
			MaxLag:         Duration{time.Minute},
			MaxRetries:     3,
		},
		Server: ServerConfig{
			ListenAddress:     ":8080",
			RequestsPerMinute: 30,
			Burst:             5,
		},
		Storage: StorageConfig{UseMemory: true},
		Log:     LogConfig{File: "vault_swap.log"},
	}
}

// Load builds a Config from defaults, the optional YAML file at path and the
// process environment. It does not validate; call Validate after flags are parsed.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files when they exist.
// Existing environment variables are never overridden.
func LoadDotEnv(files ...string) error {
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// applyEnv overrides cfg from environment variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	num := func(key string, set func(string) error) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			if err := set(strings.TrimSpace(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}

	str("SWAP_ENV", &cfg.Env)
	str("SWAP_NODE_URL", &cfg.NodeURL)
	str("SWAP_ACCOUNT", &cfg.Account)
	str("SWAP_PRIVATE_KEY", &cfg.PrivateKey)
	str("SWAP_VAULT_ADDRESS", &cfg.VaultAddress)
	str("SWAP_ROUTER_ADDRESS", &cfg.RouterAddress)
	str("SWAP_SOURCE_ASSET", &cfg.SourceAsset)
	str("SWAP_TARGET_ASSET", &cfg.TargetAsset)
	str("SWAP_LISTEN", &cfg.Server.ListenAddress)
	str("POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	str("CLICKHOUSE_DSN", &cfg.Storage.ClickHouseDSN)
	str("SWAP_LOG_FILE", &cfg.Log.File)

	num("SWAP_MAX_SLIPPAGE", func(v string) (err error) {
		cfg.Swap.MaxSlippage, err = strconv.ParseFloat(v, 64)
		return err
	})
	num("SWAP_MIN_AMOUNT", func(v string) (err error) {
		cfg.Swap.MinAmount, err = strconv.ParseUint(v, 10, 64)
		return err
	})
	num("SWAP_MAX_AMOUNT", func(v string) (err error) {
		cfg.Swap.MaxAmount, err = strconv.ParseUint(v, 10, 64)
		return err
	})
	num("SWAP_MAX_RETRIES", func(v string) (err error) {
		cfg.Swap.MaxRetries, err = strconv.Atoi(v)
		return err
	})
	num("SWAP_COOLDOWN", func(v string) (err error) {
		cfg.Swap.Cooldown.Duration, err = parseDuration(v)
		return err
	})
	num("SWAP_RETRY_DELAY", func(v string) (err error) {
		cfg.Swap.RetryDelay.Duration, err = parseDuration(v)
		return err
	})
	num("SWAP_MONITOR_TIMEOUT", func(v string) (err error) {
		cfg.Monitor.Timeout.Duration, err = parseDuration(v)
		return err
	})
	num("SWAP_POLL_INTERVAL", func(v string) (err error) {
		cfg.Monitor.PollInterval.Duration, err = parseDuration(v)
		return err
	})
	num("SWAP_FIXED_RATE", func(v string) (err error) {
		cfg.Pricing.FixedRate, err = strconv.ParseFloat(v, 64)
		return err
	})
	num("SWAP_TRUST_PROXY", func(v string) (err error) {
		cfg.Server.TrustProxy, err = strconv.ParseBool(v)
		return err
	})
	num("SWAP_USE_MEMORY", func(v string) (err error) {
		cfg.Storage.UseMemory, err = strconv.ParseBool(v)
		return err
	})

	return errors.Join(errs...)
}

// RegisterFlags binds command-line flags to cfg using its current values as defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.NodeURL, "node-url", c.NodeURL, "Ledger REST endpoint")
	fs.StringVar(&c.Account, "account", c.Account, "Account address (derived from key when empty)")
	fs.StringVar(&c.VaultAddress, "vault-address", c.VaultAddress, "Vault module address (primary path)")
	fs.StringVar(&c.RouterAddress, "router-address", c.RouterAddress, "Router module address (secondary path)")
	fs.Float64Var(&c.Swap.MaxSlippage, "max-slippage", c.Swap.MaxSlippage, "Maximum slippage fraction (0-1)")
	fs.Uint64Var(&c.Swap.MinAmount, "min-amount", c.Swap.MinAmount, "Minimum swap amount (smallest unit)")
	fs.Uint64Var(&c.Swap.MaxAmount, "max-amount", c.Swap.MaxAmount, "Maximum swap amount (smallest unit)")
	fs.DurationVar(&c.Swap.Cooldown.Duration, "cooldown", c.Swap.Cooldown.Duration, "Minimum interval between swaps")
	fs.IntVar(&c.Swap.MaxRetries, "max-retries", c.Swap.MaxRetries, "Attempts per swap run")
	fs.DurationVar(&c.Swap.RetryDelay.Duration, "retry-delay", c.Swap.RetryDelay.Duration, "Delay between attempts")
	fs.DurationVar(&c.Swap.SettleTimeout.Duration, "settle-timeout", c.Swap.SettleTimeout.Duration, "Wait for a submitted path transaction to settle (0 disables)")
	fs.Float64Var(&c.Pricing.FixedRate, "fixed-rate", c.Pricing.FixedRate, "Quote at a fixed output/input rate instead of pool reserves (0 disables)")
	fs.DurationVar(&c.Monitor.Timeout.Duration, "monitor-timeout", c.Monitor.Timeout.Duration, "Transaction monitor budget")
	fs.DurationVar(&c.Monitor.PollInterval.Duration, "poll-interval", c.Monitor.PollInterval.Duration, "Transaction monitor poll interval")
	fs.BoolVar(&c.Monitor.Enabled, "monitor", c.Monitor.Enabled, "Monitor successful submissions")
	fs.StringVar(&c.Server.ListenAddress, "listen", c.Server.ListenAddress, "HTTP listen address")
	fs.BoolVar(&c.Server.TrustProxy, "trust-proxy", c.Server.TrustProxy, "Trust client address headers set by a reverse proxy")
	fs.BoolVar(&c.Storage.UseMemory, "use-memory", c.Storage.UseMemory, "Use in-memory journal instead of PostgreSQL/ClickHouse")
	fs.StringVar(&c.Storage.PostgresDSN, "postgres-dsn", c.Storage.PostgresDSN, "PostgreSQL connection string")
	fs.StringVar(&c.Storage.ClickHouseDSN, "clickhouse-dsn", c.Storage.ClickHouseDSN, "ClickHouse connection string")
	fs.StringVar(&c.Log.File, "log-file", c.Log.File, "Log file path (empty disables file output)")
}

// Validate checks invariants of the configuration.
func (c Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Swap.MinAmount == 0 {
		fail("min_amount must be positive")
	}
	if c.Swap.MinAmount > c.Swap.MaxAmount {
		fail("min_amount %d exceeds max_amount %d", c.Swap.MinAmount, c.Swap.MaxAmount)
	}
	if math.IsNaN(c.Swap.MaxSlippage) || c.Swap.MaxSlippage < 0 || c.Swap.MaxSlippage >= 1 {
		fail("max_slippage %v must be in [0, 1)", c.Swap.MaxSlippage)
	}
	if c.Swap.Cooldown.Duration < 0 {
		fail("cooldown_period must not be negative")
	}
	if c.Swap.MaxRetries < 1 {
		fail("max_retries must be at least 1")
	}
	if c.Swap.RetryDelay.Duration < 0 {
		fail("retry_delay must not be negative")
	}
	if c.Swap.ExecutionDeadline.Duration <= 0 {
		fail("execution_deadline must be positive")
	}
	if c.Swap.SettleTimeout.Duration < 0 {
		fail("settle_timeout must not be negative")
	}
	if c.Pricing.FeeBps < 0 || c.Pricing.FeeBps >= 10_000 {
		fail("pricing fee_bps %d must be in [0, 10000)", c.Pricing.FeeBps)
	}
	if c.Pricing.FixedRate < 0 || math.IsNaN(c.Pricing.FixedRate) {
		fail("pricing fixed_rate must not be negative")
	}
	if c.Monitor.Timeout.Duration <= 0 {
		fail("monitor timeout must be positive")
	}
	if c.Monitor.PollInterval.Duration <= 0 {
		fail("monitor poll_interval must be positive")
	}
	for name, v := range map[string]string{
		"node_url":       c.NodeURL,
		"vault_address":  c.VaultAddress,
		"router_address": c.RouterAddress,
		"source_asset":   c.SourceAsset,
		"target_asset":   c.TargetAsset,
	} {
		if strings.TrimSpace(v) == "" {
			fail("%s is required", name)
		}
	}
	if !c.Storage.UseMemory && (c.Storage.PostgresDSN == "" || c.Storage.ClickHouseDSN == "") {
		fail("postgres_dsn and clickhouse_dsn are required unless use_memory is set")
	}
	return errors.Join(errs...)
}

// parseDuration accepts Go duration strings or a number of seconds.
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
