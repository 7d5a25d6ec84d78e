package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Hardhat's first two default accounts. The devnet deploys from the first
// and collects fees on the second.
const (
	DefaultDeployer   = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	DefaultFeeAccount = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

type Exchange struct {
	FeeAccount string `yaml:"fee_account"`
	FeePercent uint64 `yaml:"fee_percent"`
	// Custodian is the exchange's own account on the token ledger.
	// Empty derives it from the deployer like a contract address.
	Custodian string `yaml:"custodian"`
	ChainID   int64  `yaml:"chain_id"`
}

type Node struct {
	DataDir   string `yaml:"data_dir"`
	Ephemeral bool   `yaml:"ephemeral"` // keep state in memory only
	APIAddr   string `yaml:"api_addr"`
	LogFile   string `yaml:"log_file"`
	LogLevel  string `yaml:"log_level"`
	Journal   string `yaml:"journal"` // JSON-lines record trail, empty disables
}

type Kafka struct {
	Brokers []string `yaml:"brokers"` // empty disables publishing
	Topic   string   `yaml:"topic"`
}

// GenesisToken is deployed at start-up with its full supply minted to the deployer
type GenesisToken struct {
	Name     string `yaml:"name"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
	Supply   uint64 `yaml:"supply"` // whole tokens
}

type Genesis struct {
	Deployer string         `yaml:"deployer"`
	Tokens   []GenesisToken `yaml:"tokens"`
}

type Config struct {
	Exchange Exchange `yaml:"exchange"`
	Node     Node     `yaml:"node"`
	Kafka    Kafka    `yaml:"kafka"`
	Genesis  Genesis  `yaml:"genesis"`
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			FeeAccount: DefaultFeeAccount,
			FeePercent: 10,
			ChainID:    1337,
		},
		Node: Node{
			DataDir:  "./data/exchange.db",
			APIAddr:  ":8080",
			LogLevel: "info",
		},
		Kafka: Kafka{
			Topic: "exchange.events",
		},
		Genesis: Genesis{
			Deployer: DefaultDeployer,
			Tokens: []GenesisToken{
				{Name: "With Ease", Symbol: "WEAE", Decimals: 18, Supply: 1_000_000},
				{Name: "mini ETH", Symbol: "mETH", Decimals: 18, Supply: 1_000_000},
				{Name: "mini Dai", Symbol: "mDAI", Decimals: 18, Supply: 1_000_000},
			},
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()
	loadDotEnv(envPath)
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// LoadFile reads a YAML config on top of the defaults, then applies
// environment overrides
func LoadFile(path, envPath string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	loadDotEnv(envPath)
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func loadDotEnv(envPath string) {
	// optional, a missing file is fine
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}
}

func applyEnvOverrides(cfg *Config) error {
	cfg.Exchange.FeeAccount = getEnv("FEE_ACCOUNT", cfg.Exchange.FeeAccount)
	cfg.Exchange.Custodian = getEnv("CUSTODIAN", cfg.Exchange.Custodian)
	if v := os.Getenv("FEE_PERCENT"); v != "" {
		pct, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("FEE_PERCENT: %w", err)
		}
		cfg.Exchange.FeePercent = pct
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CHAIN_ID: %w", err)
		}
		cfg.Exchange.ChainID = id
	}

	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.Journal = getEnv("JOURNAL_FILE", cfg.Node.Journal)
	cfg.Node.LogLevel = getEnv("LOG_LEVEL", cfg.Node.LogLevel)
	if v := os.Getenv("VERBOSE"); v != "" {
		if v == "true" || v == "1" {
			cfg.Node.LogLevel = "debug"
		}
	}
	if v := os.Getenv("EPHEMERAL"); v != "" {
		cfg.Node.Ephemeral = v == "true" || v == "1"
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		cfg.Kafka.Brokers = brokers
	}
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)

	cfg.Genesis.Deployer = getEnv("DEPLOYER", cfg.Genesis.Deployer)
	return nil
}

// Validate checks addresses and required fields
func (c Config) Validate() error {
	if !common.IsHexAddress(c.Exchange.FeeAccount) {
		return fmt.Errorf("invalid fee account %q", c.Exchange.FeeAccount)
	}
	if c.Exchange.Custodian != "" && !common.IsHexAddress(c.Exchange.Custodian) {
		return fmt.Errorf("invalid custodian %q", c.Exchange.Custodian)
	}
	if !common.IsHexAddress(c.Genesis.Deployer) {
		return fmt.Errorf("invalid deployer %q", c.Genesis.Deployer)
	}
	if c.Exchange.ChainID <= 0 {
		return fmt.Errorf("chain id must be positive, got %d", c.Exchange.ChainID)
	}
	if !c.Node.Ephemeral && c.Node.DataDir == "" {
		return fmt.Errorf("data dir is required unless ephemeral")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic is required when brokers are set")
	}
	seen := make(map[string]bool)
	for _, t := range c.Genesis.Tokens {
		if t.Symbol == "" {
			return fmt.Errorf("genesis token %q has no symbol", t.Name)
		}
		if seen[t.Symbol] {
			return fmt.Errorf("duplicate genesis token %s", t.Symbol)
		}
		seen[t.Symbol] = true
	}
	return nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
