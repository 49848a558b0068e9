package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// RateLimit bounds how fast a single client may hit the RPC surface.
type RateLimit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

type Config struct {
	RPCAddress    string    `toml:"RPCAddress"`
	DataDir       string    `toml:"DataDir"`
	NetworkName   string    `toml:"NetworkName"`
	NativeToken   string    `toml:"NativeToken"`
	Operator      string    `toml:"Operator"`
	FeeCollector  string    `toml:"FeeCollector"`
	RPCAuthToken  string    `toml:"RPCAuthToken"`
	PausedModules []string  `toml:"PausedModules"`
	RateLimit     RateLimit `toml:"RateLimit"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./bazaar-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "bazaar-local"
	}
	if strings.TrimSpace(cfg.NativeToken) == "" {
		cfg.NativeToken = "BZR"
	}
	if cfg.PausedModules == nil {
		cfg.PausedModules = []string{}
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 20
	}
}

// Validate checks address fields and module names.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	if _, err := ParseAddress(cfg.Operator); err != nil {
		return fmt.Errorf("config: Operator: %w", err)
	}
	if _, err := ParseAddress(cfg.FeeCollector); err != nil {
		return fmt.Errorf("config: FeeCollector: %w", err)
	}
	for _, module := range cfg.PausedModules {
		switch strings.TrimSpace(module) {
		case "market", "fees":
		default:
			return fmt.Errorf("config: unknown module %q in PausedModules", module)
		}
	}
	return nil
}

// ParseAddress decodes a 20-byte hex address, with or without 0x prefix.
func ParseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", value, err)
	}
	if len(raw) != 20 {
		return addr, fmt.Errorf("invalid address %q: want 20 bytes, got %d", value, len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

// IsPaused satisfies the native/common pause view.
func (c *Config) IsPaused(module string) bool {
	if c == nil {
		return false
	}
	for _, paused := range c.PausedModules {
		if strings.TrimSpace(paused) == module {
			return true
		}
	}
	return false
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		Operator:     "0x" + strings.Repeat("00", 19) + "01",
		FeeCollector: "0x" + strings.Repeat("00", 19) + "02",
	}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
