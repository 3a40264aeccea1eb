package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL       string
	Wallets      []string
	Exclude      string
	GlobalLabel  string
	NativeSymbol string
	StartBlock   uint64
	UseBloom     bool

	ScanInterval      time.Duration
	ErrorSleep        time.Duration
	FailureThreshold  int
	ExtendedSleep     time.Duration
	MaxBlocksPerCycle uint64

	RPCTimeout           time.Duration
	RPCRequestsPerSecond float64
	RPCBurst             int
	RetryAttempts        int
	RetryDelay           time.Duration
	RateLimitAttempts    int
	RateLimitCooldown    time.Duration
	RateLimitMaxCooldown time.Duration

	TelegramToken      string
	TelegramChats      []string
	CTAURL             string
	ExplorerURL        string
	Animation          string
	EventsOut          string
	PGDSN              string
	NotifyAttempts     int
	NotifyBackoff      time.Duration
	NotifyBacklogWarn  int
	NotifyDrainTimeout time.Duration

	StatusInterval time.Duration
	HTTPAddr       string
	LogLevel       string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("native-symbol", "ETH")
	v.SetDefault("use-bloom", true)
	v.SetDefault("scan-interval", 60*time.Second)
	v.SetDefault("error-sleep", 30*time.Second)
	v.SetDefault("failure-threshold", 5)
	v.SetDefault("extended-sleep", 10*time.Minute)
	v.SetDefault("max-blocks-per-cycle", uint64(100))
	v.SetDefault("rpc-timeout", 20*time.Second)
	v.SetDefault("rpc-burst", 1)
	v.SetDefault("retry-attempts", 3)
	v.SetDefault("retry-delay", 2*time.Second)
	v.SetDefault("ratelimit-attempts", 6)
	v.SetDefault("ratelimit-cooldown", 15*time.Second)
	v.SetDefault("ratelimit-max-cooldown", 600*time.Second)
	v.SetDefault("explorer-url", "https://etherscan.io/tx/")
	v.SetDefault("notify-attempts", 3)
	v.SetDefault("notify-backoff", 2*time.Second)
	v.SetDefault("notify-backlog-warn", 256)
	v.SetDefault("notify-drain-timeout", 15*time.Second)
	v.SetDefault("http-addr", ":8080")
	v.SetDefault("log-level", "info")

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
		RPCURL:       v.GetString("rpc"),
		Wallets:      getWalletEntries(v, "wallet"),
		Exclude:      strings.TrimSpace(v.GetString("exclude")),
		GlobalLabel:  v.GetString("global-label"),
		NativeSymbol: v.GetString("native-symbol"),
		StartBlock:   v.GetUint64("start-block"),
		UseBloom:     v.GetBool("use-bloom"),

		ScanInterval:      v.GetDuration("scan-interval"),
		ErrorSleep:        v.GetDuration("error-sleep"),
		FailureThreshold:  v.GetInt("failure-threshold"),
		ExtendedSleep:     v.GetDuration("extended-sleep"),
		MaxBlocksPerCycle: v.GetUint64("max-blocks-per-cycle"),

		RPCTimeout:           v.GetDuration("rpc-timeout"),
		RPCRequestsPerSecond: v.GetFloat64("rpc-rps"),
		RPCBurst:             v.GetInt("rpc-burst"),
		RetryAttempts:        v.GetInt("retry-attempts"),
		RetryDelay:           v.GetDuration("retry-delay"),
		RateLimitAttempts:    v.GetInt("ratelimit-attempts"),
		RateLimitCooldown:    v.GetDuration("ratelimit-cooldown"),
		RateLimitMaxCooldown: v.GetDuration("ratelimit-max-cooldown"),

		TelegramToken:      v.GetString("telegram-token"),
		TelegramChats:      getStringSlice(v, "telegram-chat"),
		CTAURL:             v.GetString("cta-url"),
		ExplorerURL:        v.GetString("explorer-url"),
		Animation:          v.GetString("animation"),
		EventsOut:          v.GetString("events-out"),
		PGDSN:              v.GetString("pg-dsn"),
		NotifyAttempts:     v.GetInt("notify-attempts"),
		NotifyBackoff:      v.GetDuration("notify-backoff"),
		NotifyBacklogWarn:  v.GetInt("notify-backlog-warn"),
		NotifyDrainTimeout: v.GetDuration("notify-drain-timeout"),

		StatusInterval: v.GetDuration("status-interval"),
		HTTPAddr:       v.GetString("http-addr"),
		LogLevel:       v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate rejects configurations the watcher cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.RPCURL) == "" {
		return fmt.Errorf("rpc url is required")
	}
	wallets, err := ParseWallets(c.Wallets)
	if err != nil {
		return err
	}
	if len(wallets) == 0 {
		return fmt.Errorf("at least one wallet is required")
	}
	if _, err := ParseOptionalAddress(c.Exclude); err != nil {
		return fmt.Errorf("exclude: %w", err)
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("scan interval must be positive")
	}
	if c.MaxBlocksPerCycle == 0 {
		return fmt.Errorf("max blocks per cycle must be greater than zero")
	}
	if c.RateLimitMaxCooldown < c.RateLimitCooldown {
		return fmt.Errorf("ratelimit max cooldown must be >= ratelimit cooldown")
	}
	if len(c.TelegramChats) > 0 && c.TelegramToken == "" {
		return fmt.Errorf("telegram token is required when telegram chats are set")
	}
	if c.TelegramToken != "" && len(c.TelegramChats) == 0 {
		return fmt.Errorf("at least one telegram chat is required when a token is set")
	}
	return nil
}

// getWalletEntries reads wallets as "address=label" entries or, from a
// config file, as an address to label map.
func getWalletEntries(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}
	if typed, ok := v.Get(key).(map[string]interface{}); ok {
		entries := make([]string, 0, len(typed))
		for address, label := range typed {
			entries = append(entries, fmt.Sprintf("%s=%v", address, label))
		}
		return entries
	}
	return getStringSlice(v, key)
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
