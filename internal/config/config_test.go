package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
)

func testFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.StringArray("wallet", nil, "")
	flags.String("exclude", "", "")
	flags.Duration("scan-interval", 60*time.Second, "")
	flags.StringSlice("telegram-chat", nil, "")
	return flags
}

func TestLoadFromFlags(t *testing.T) {
	flags := testFlags()
	if err := flags.Parse([]string{
		"--rpc", "https://rpc.example",
		"--wallet", "0xd9aD5Acc883D8a67ab612B70C11abF33dD450A45=Switch FRIC/ETH",
		"--wallet", "0x1111111111111111111111111111111111111111",
		"--scan-interval", "15s",
	}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.ScanInterval != 15*time.Second || cfg.MaxBlocksPerCycle != 100 || cfg.NativeSymbol != "ETH" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	set, err := cfg.WalletSet()
	if err != nil {
		t.Fatalf("wallet set: %v", err)
	}
	w, ok := set.Lookup(common.HexToAddress("0xd9ad5acc883d8a67ab612b70c11abf33dd450a45"))
	if !ok || w.Label != "Switch FRIC/ETH" {
		t.Fatalf("unexpected wallet: %+v %v", w, ok)
	}
	w, _ = set.Lookup(common.HexToAddress("0x1111111111111111111111111111111111111111"))
	if w.Label != "0x1111111111111111111111111111111111111111" {
		t.Fatalf("expected address as fallback label, got %s", w.Label)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("WATCHER_RPC", "https://env.example")
	t.Setenv("WATCHER_WALLET", "0x1111111111111111111111111111111111111111=a,0x2222222222222222222222222222222222222222=b")
	t.Setenv("WATCHER_FAILURE_THRESHOLD", "7")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCURL != "https://env.example" || cfg.FailureThreshold != 7 || len(cfg.Wallets) != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadFromFileWithWalletMap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watcher.yaml")
	content := `rpc: https://file.example
exclude: "0x9999999999999999999999999999999999999999"
wallet:
  "0x1111111111111111111111111111111111111111": Treasury
telegram-token: abc
telegram-chat:
  - "-100123"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	excluded, err := cfg.ExcludedAddress()
	if err != nil || excluded == nil || *excluded != common.HexToAddress("0x9999999999999999999999999999999999999999") {
		t.Fatalf("unexpected excluded address: %v %v", excluded, err)
	}
	set, _ := cfg.WalletSet()
	if w, ok := set.Lookup(common.HexToAddress("0x1111111111111111111111111111111111111111")); !ok || w.Label != "Treasury" {
		t.Fatalf("unexpected wallet: %+v", w)
	}
	if len(cfg.TelegramChats) != 1 || cfg.TelegramChats[0] != "-100123" {
		t.Fatalf("unexpected chats: %v", cfg.TelegramChats)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	base := Config{
		RPCURL:               "https://rpc.example",
		Wallets:              []string{"0x1111111111111111111111111111111111111111=a"},
		ScanInterval:         time.Minute,
		MaxBlocksPerCycle:    10,
		RateLimitCooldown:    time.Second,
		RateLimitMaxCooldown: time.Minute,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	cases := map[string]func(c *Config){
		"missing rpc":      func(c *Config) { c.RPCURL = "" },
		"no wallets":       func(c *Config) { c.Wallets = nil },
		"bad wallet":       func(c *Config) { c.Wallets = []string{"0x123=short"} },
		"bad exclude":      func(c *Config) { c.Exclude = "nope" },
		"chat no token":    func(c *Config) { c.TelegramChats = []string{"1"} },
		"token no chat":    func(c *Config) { c.TelegramToken = "abc" },
		"zero max blocks":  func(c *Config) { c.MaxBlocksPerCycle = 0 },
		"cooldown inverse": func(c *Config) { c.RateLimitMaxCooldown = time.Millisecond },
	}
	for name, mutate := range cases {
		cfg := base
		cfg.Wallets = append([]string(nil), base.Wallets...)
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
