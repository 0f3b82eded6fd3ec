package params

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"fee over 100", func(c *Config) { c.Exchange.FeePercent = 101 }},
		{"zero rate", func(c *Config) { c.Swap.Rate = 0 }},
		{"zero custody", func(c *Config) { c.Exchange.Custody = common.Address{} }},
		{"no genesis", func(c *Config) { c.Genesis.Accounts = nil }},
		{"bad driver", func(c *Config) { c.Kafka.Driver = "nats" }},
		{"chain id", func(c *Config) { c.Node.ChainID = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate = %v, want ErrInvalidConfig", err)
			}
		})
	}

	c := Default()
	c.Exchange.FeePercent = 100
	if err := c.Validate(); err != nil {
		t.Errorf("fee of exactly 100 rejected: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "FEE_PERCENT=3\nTOKEN_SYMBOL=FILE\nSWAP_RATE=50\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TOKEN_SYMBOL", "ENV")
	t.Setenv("GENESIS_ACCOUNT", "0x1111111111111111111111111111111111111111, 0x2222222222222222222222222222222222222222")
	t.Setenv("EVENTS_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("DATA_DIR", "")
	// godotenv.Load does not override variables that already exist; register the
	// .env keys as unset so the file is the only source
	for _, k := range []string{"FEE_PERCENT", "SWAP_RATE"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := LoadFromEnv(envFile)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Exchange.FeePercent != 3 || cfg.Swap.Rate != 50 {
		t.Errorf(".env values not applied: fee=%d rate=%d", cfg.Exchange.FeePercent, cfg.Swap.Rate)
	}
	if cfg.Token.Symbol != "ENV" {
		t.Errorf("env should win over .env: symbol=%s", cfg.Token.Symbol)
	}
	if len(cfg.Genesis.Accounts) != 2 || cfg.Genesis.Accounts[1] != common.HexToAddress("0x2222222222222222222222222222222222222222") {
		t.Errorf("genesis accounts = %v", cfg.Genesis.Accounts)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Node.DataDir != "" {
		t.Errorf("explicit empty DATA_DIR should select memory mode, got %q", cfg.Node.DataDir)
	}
}

func TestLoadFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("FEE_ACCOUNT", "not-an-address")
	t.Setenv("FEE_PERCENT", "250")
	if _, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env")); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("LoadFromEnv = %v, want ErrInvalidConfig", err)
	}
}
