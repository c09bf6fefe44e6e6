package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models ciphermarket.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
		// PublicURL is the base URL the server uses when acting as its own
		// paying client (demo flow). Defaults to http://localhost<addr>.
		PublicURL string `yaml:"public_url"`
	} `yaml:"server"`
	Payment struct {
		PayTo          string `yaml:"pay_to"`
		BuyerKey       string `yaml:"buyer_key"`
		FacilitatorURL string `yaml:"facilitator_url"`
		Network        string `yaml:"network"`
		Asset          string `yaml:"asset"`
		// MaxWaitSeconds caps the client-side payment wait.
		MaxWaitSeconds int `yaml:"max_wait_seconds"`
	} `yaml:"payment"`
	Threshold struct {
		RPC string `yaml:"rpc"`
		// ChainID of the threshold-decryption chain.
		ChainID int64 `yaml:"chain_id"`
		// Address is the designated decryption address ciphertext
		// transactions are sent to.
		Address string `yaml:"address"`
		// SubmitterKey signs decryption transactions.
		SubmitterKey string `yaml:"submitter_key"`
		GasLimit     uint64 `yaml:"gas_limit"`
	} `yaml:"threshold"`
	Faucet struct {
		// RPC of the payment chain the faucet wallet lives on. Empty
		// disables the faucet.
		RPC      string `yaml:"rpc"`
		ChainID  int64  `yaml:"chain_id"`
		MaxDrips int    `yaml:"max_drips"`
	} `yaml:"faucet"`
	Explorers struct {
		Payment   string `yaml:"payment"`
		Threshold string `yaml:"threshold"`
	} `yaml:"explorers"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns Default() if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "ciphermarket.yml")
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Payment.PayTo != "" {
		if c.Payment.FacilitatorURL == "" {
			return fmt.Errorf("config.payment.facilitator_url is required when pay_to is set")
		}
		if c.Payment.Network == "" {
			return fmt.Errorf("config.payment.network is required when pay_to is set")
		}
		if c.Payment.Asset == "" {
			return fmt.Errorf("config.payment.asset is required when pay_to is set")
		}
	}
	if c.Threshold.RPC != "" {
		if c.Threshold.ChainID == 0 {
			return fmt.Errorf("config.threshold.chain_id is required when rpc is set")
		}
		if c.Threshold.Address == "" {
			return fmt.Errorf("config.threshold.address is required when rpc is set")
		}
	}
	if c.Payment.MaxWaitSeconds < 0 {
		return fmt.Errorf("config.payment.max_wait_seconds must not be negative")
	}
	if c.Faucet.RPC != "" && c.Faucet.ChainID == 0 {
		return fmt.Errorf("config.faucet.chain_id is required when rpc is set")
	}
	return nil
}

// FaucetEnabled reports whether the faucet can run: it reuses the demo
// buyer wallet, so both the chain RPC and the buyer key must be set.
func (c *Config) FaucetEnabled() bool {
	return c.Faucet.RPC != "" && c.Payment.BuyerKey != ""
}

// Gated reports whether the payment gate is active.
func (c *Config) Gated() bool {
	return strings.TrimSpace(c.Payment.PayTo) != ""
}

// PublicURL returns the base URL for self-addressed requests.
func (c *Config) PublicURL() string {
	if c.Server.PublicURL != "" {
		return strings.TrimRight(c.Server.PublicURL, "/")
	}
	addr := c.Server.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: ":4021"
  base_path: /v0

payment:
  pay_to: ""
  buyer_key: ""
  facilitator_url: https://x402.org/facilitator
  network: eip155:84532
  asset: "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
  max_wait_seconds: 60

faucet:
  rpc: https://sepolia.base.org
  chain_id: 84532
  max_drips: 200

threshold:
  rpc: ""
  chain_id: 103698795
  address: "0x42495445204d452049274d20454e435259505444"
  gas_limit: 300000

explorers:
  payment: https://sepolia.basescan.org
  threshold: https://base-sepolia-testnet-explorer.skalenodes.com:10032
`
