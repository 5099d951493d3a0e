package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"monoswap/internal/model"
	"monoswap/internal/pricing"
	"monoswap/internal/wallet"
)

// TokenConfig is a token entry from the config file.
type TokenConfig struct {
	Address  string `mapstructure:"address"`
	Symbol   string `mapstructure:"symbol"`
	Name     string `mapstructure:"name"`
	Decimals uint8  `mapstructure:"decimals"`
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL           string
	PrivateKey       string
	Keystore         string
	KeystorePassword string
	Confirm          bool

	Router   string
	Factory  string
	Wrapped  TokenConfig
	Tokens   []TokenConfig
	Network  wallet.NetworkParams
	Networks []wallet.NetworkParams

	Slippage string
	Deadline time.Duration

	PriceBaseURL string
	PriceAPIKey  string
	PriceTimeout time.Duration
	Pricing      pricing.Config
	PollInterval time.Duration

	Store         string
	DataDir       string
	PGDSN         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string
	NATSSubject   string
	Journal       string

	MetricsAddr string
	LogLevel    string
}

// Sepolia is the default supported network.
var Sepolia = wallet.NetworkParams{
	ChainID:        11155111,
	Name:           "Sepolia Test Network",
	NativeCurrency: wallet.NativeCurrency{Name: "ETH", Symbol: "ETH", Decimals: 18},
	ExplorerURLs:   []string{"https://sepolia.etherscan.io"},
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SWAPPER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	defaults := pricing.DefaultConfig()
	v.SetDefault("slippage", "0.5")
	v.SetDefault("deadline", 1200*time.Second)
	v.SetDefault("price-base-url", pricing.DefaultBaseURL)
	v.SetDefault("price-timeout", pricing.DefaultTimeout)
	v.SetDefault("pricing.ttl", defaults.TTL)
	v.SetDefault("pricing.batch-size", defaults.BatchSize)
	v.SetDefault("pricing.min-interval", defaults.MinInterval)
	v.SetDefault("pricing.max-attempts", defaults.MaxAttempts)
	v.SetDefault("pricing.retry-delay", defaults.RetryDelay)
	v.SetDefault("pricing.quote", defaults.DefaultQuote)
	v.SetDefault("poll-interval", pricing.DefaultPollInterval)
	v.SetDefault("store", "file")
	v.SetDefault("data-dir", "./data")
	v.SetDefault("redis-addr", "localhost:6379")
	v.SetDefault("log-level", "info")
	v.SetDefault("confirm", true)
	v.SetDefault("wrapped.symbol", "WETH")
	v.SetDefault("wrapped.name", "Wrapped Ether")
	v.SetDefault("wrapped.decimals", 18)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:           v.GetString("rpc"),
		PrivateKey:       v.GetString("private-key"),
		Keystore:         v.GetString("keystore"),
		KeystorePassword: v.GetString("keystore-password"),
		Confirm:          v.GetBool("confirm"),
		Router:           v.GetString("router"),
		Factory:          v.GetString("factory"),
		Slippage:         v.GetString("slippage"),
		Deadline:         v.GetDuration("deadline"),
		PriceBaseURL:     v.GetString("price-base-url"),
		PriceAPIKey:      v.GetString("price-api-key"),
		PriceTimeout:     v.GetDuration("price-timeout"),
		Pricing: pricing.Config{
			TTL:          v.GetDuration("pricing.ttl"),
			BatchSize:    v.GetInt("pricing.batch-size"),
			MinInterval:  v.GetDuration("pricing.min-interval"),
			MaxAttempts:  v.GetInt("pricing.max-attempts"),
			RetryDelay:   v.GetDuration("pricing.retry-delay"),
			DefaultQuote: v.GetString("pricing.quote"),
		},
		PollInterval:  v.GetDuration("poll-interval"),
		Store:         v.GetString("store"),
		DataDir:       v.GetString("data-dir"),
		PGDSN:         v.GetString("pg-dsn"),
		RedisAddr:     v.GetString("redis-addr"),
		RedisPassword: v.GetString("redis-password"),
		RedisDB:       v.GetInt("redis-db"),
		NATSURL:       v.GetString("nats-url"),
		NATSSubject:   v.GetString("nats-subject"),
		Journal:       v.GetString("journal"),
		MetricsAddr:   v.GetString("metrics-addr"),
		LogLevel:      v.GetString("log-level"),
		Wrapped: TokenConfig{
			Address:  v.GetString("wrapped.address"),
			Symbol:   v.GetString("wrapped.symbol"),
			Name:     v.GetString("wrapped.name"),
			Decimals: uint8(v.GetUint("wrapped.decimals")),
		},
	}

	if err := v.UnmarshalKey("tokens", &cfg.Tokens); err != nil {
		return Config{}, fmt.Errorf("decode tokens: %w", err)
	}
	if err := v.UnmarshalKey("networks", &cfg.Networks); err != nil {
		return Config{}, fmt.Errorf("decode networks: %w", err)
	}
	cfg.Network = Sepolia
	if v.IsSet("network") {
		if err := v.UnmarshalKey("network", &cfg.Network); err != nil {
			return Config{}, fmt.Errorf("decode network: %w", err)
		}
	}
	if len(cfg.Network.RPCURLs) == 0 && cfg.RPCURL != "" {
		cfg.Network.RPCURLs = []string{cfg.RPCURL}
	}
	if cfg.RPCURL == "" && len(cfg.Network.RPCURLs) > 0 {
		cfg.RPCURL = cfg.Network.RPCURLs[0]
	}

	return cfg, nil
}

// Deployment returns the router and factory addresses.
func (c Config) Deployment() (router, factory common.Address, err error) {
	if router, err = parseAddress("router", c.Router); err != nil {
		return
	}
	factory, err = parseAddress("factory", c.Factory)
	return
}

// WrappedToken returns the wrapped native token.
func (c Config) WrappedToken() (model.Token, error) {
	t, err := c.Wrapped.token()
	if err != nil {
		return model.Token{}, fmt.Errorf("wrapped: %w", err)
	}
	if t.IsNative() {
		return model.Token{}, fmt.Errorf("wrapped: address is required")
	}
	return t, nil
}

// TokenList returns the configured tokens. The native token of the network
// is always included.
func (c Config) TokenList() ([]model.Token, error) {
	native := c.Network.NativeCurrency
	if native.Symbol == "" {
		native = Sepolia.NativeCurrency
	}
	out := []model.Token{{Symbol: native.Symbol, Name: native.Name, Decimals: native.Decimals}}
	for i, tc := range c.Tokens {
		t, err := tc.token()
		if err != nil {
			return nil, fmt.Errorf("tokens[%d]: %w", i, err)
		}
		if t.IsNative() {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (t TokenConfig) token() (model.Token, error) {
	if strings.TrimSpace(t.Symbol) == "" {
		return model.Token{}, fmt.Errorf("symbol is required")
	}
	var address common.Address
	if strings.TrimSpace(t.Address) != "" {
		var err error
		if address, err = parseAddress(t.Symbol, t.Address); err != nil {
			return model.Token{}, err
		}
	}
	return model.Token{Address: address, Symbol: t.Symbol, Name: t.Name, Decimals: t.Decimals}, nil
}

func parseAddress(field, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return common.Address{}, fmt.Errorf("%s address is required", field)
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", field, value)
	}
	return common.HexToAddress(value), nil
}
