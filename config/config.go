package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	ethcommon "github.com/ethereum/go-ethereum/common"

	"wishport/native/portion"
)

// FeeConfig carries the default fee portions applied to assets without a
// per-asset override. Portions are expressed against portion.BasePortion.
type FeeConfig struct {
	Activated                 bool   `toml:"Activated"`
	PlatformFeePortion        uint64 `toml:"PlatformFeePortion"`
	DisputeHandlingFeePortion uint64 `toml:"DisputeHandlingFeePortion"`
}

type Config struct {
	ChainID       uint64    `toml:"ChainID"`
	ListenAddress string    `toml:"ListenAddress"`
	DataDir       string    `toml:"DataDir"`
	Identity      string    `toml:"Identity"`
	Owner         string    `toml:"Owner"`
	AuthedSigner  string    `toml:"AuthedSigner"`
	BaseURI       string    `toml:"BaseURI"`
	ClaimAllowed  bool      `toml:"ClaimAllowed"`
	DefaultFees   FeeConfig `toml:"DefaultFees"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0])
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		ChainID:       31337,
		ListenAddress: "127.0.0.1:8645",
		DataDir:       "./wishport-data",
		ClaimAllowed:  true,
		DefaultFees: FeeConfig{
			Activated:                 true,
			PlatformFeePortion:        100_000,
			DisputeHandlingFeePortion: 100_000,
		},
	}
}

func createDefault(path string) (*Config, error) {
	cfg := defaultConfig()
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks address formats and fee bounds before the daemon boots.
func (c *Config) Validate() error {
	if c.ChainID == 0 {
		return fmt.Errorf("config: ChainID must not be zero")
	}
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress must not be empty")
	}
	for _, field := range []struct {
		name     string
		value    string
		required bool
	}{
		{"Identity", c.Identity, false},
		{"Owner", c.Owner, true},
		{"AuthedSigner", c.AuthedSigner, true},
	} {
		if strings.TrimSpace(field.value) == "" {
			if field.required {
				return fmt.Errorf("config: %s must be set", field.name)
			}
			continue
		}
		if !ethcommon.IsHexAddress(field.value) {
			return fmt.Errorf("config: %s is not a valid address: %s", field.name, field.value)
		}
	}
	if c.DefaultFees.PlatformFeePortion > portion.BasePortion {
		return fmt.Errorf("config: PlatformFeePortion exceeds base portion")
	}
	if c.DefaultFees.DisputeHandlingFeePortion > portion.BasePortion {
		return fmt.Errorf("config: DisputeHandlingFeePortion exceeds base portion")
	}
	return nil
}

// IdentityAddress returns the configured ledger identity, defaulting to a
// stable address derived from the chain id when unset.
func (c *Config) IdentityAddress() ethcommon.Address {
	if strings.TrimSpace(c.Identity) != "" {
		return ethcommon.HexToAddress(c.Identity)
	}
	var addr ethcommon.Address
	addr[0] = 0x77
	for i := 0; i < 8; i++ {
		addr[12+i] = byte(c.ChainID >> (8 * (7 - i)))
	}
	return addr
}

// OwnerAddress returns the configured platform owner address.
func (c *Config) OwnerAddress() ethcommon.Address {
	return ethcommon.HexToAddress(c.Owner)
}

// AuthedSignerAddress returns the configured instruction authority address.
func (c *Config) AuthedSignerAddress() ethcommon.Address {
	return ethcommon.HexToAddress(c.AuthedSigner)
}
