package params

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

var ErrInvalidConfig = errors.New("invalid config")

// Well-known local development accounts. Never fund these outside a devnet.
var (
	DevAccount0 = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	DevAccount1 = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	DevKey0 = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	DevKey1 = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

type Exchange struct {
	FeeAccount common.Address
	FeePercent uint64
	Custody    common.Address
}

// Token is the devnet token deployed at genesis
type Token struct {
	Address common.Address
	Name    string
	Symbol  string
	Supply  string // whole tokens, 18 decimals
}

type Swap struct {
	Address common.Address
	Rate    uint64
	Reserve string // whole tokens moved from the first genesis account
}

// Genesis funds accounts in an empty data dir. The first account receives
// the token supply; every account is minted Native.
type Genesis struct {
	Accounts []common.Address
	Native   string
}

type Node struct {
	DataDir       string // empty keeps state in memory
	APIAddr       string
	LogFile       string
	Verbose       bool
	ChainID       int64
	EventsJournal string // JSON-lines event log, empty to disable
}

type Kafka struct {
	Brokers []string
	Topic   string
	Driver  string // kafka-go | sarama
}

type Gossip struct {
	Listen    string // empty disables gossip
	Bootstrap []string
	Topic     string
}

type Config struct {
	Exchange Exchange
	Token    Token
	Swap     Swap
	Genesis  Genesis
	Node     Node
	Kafka    Kafka
	Gossip   Gossip
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			FeeAccount: DevAccount0,
			FeePercent: 10,
			Custody:    common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"),
		},
		Token: Token{
			Address: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
			Name:    "DApp Token",
			Symbol:  "DAPP",
			Supply:  "1000000",
		},
		Swap: Swap{
			Address: common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0"),
			Rate:    100,
			Reserve: "500000",
		},
		Genesis: Genesis{
			Accounts: []common.Address{DevAccount0, DevAccount1},
			Native:   "100",
		},
		Node: Node{
			DataDir: "data",
			APIAddr: ":8080",
			ChainID: 1337,
		},
		Kafka: Kafka{
			Topic:  "tokenex-events",
			Driver: "kafka-go",
		},
		Gossip: Gossip{
			Topic: "tokenex-events",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	var errs []error
	addr := func(key string, dst *common.Address) {
		if v := os.Getenv(key); v != "" {
			if !common.IsHexAddress(v) {
				errs = append(errs, fmt.Errorf("%s: not an address: %q", key, v))
				return
			}
			*dst = common.HexToAddress(v)
		}
	}
	num := func(key string, dst *uint64) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	addr("FEE_ACCOUNT", &cfg.Exchange.FeeAccount)
	num("FEE_PERCENT", &cfg.Exchange.FeePercent)
	addr("CUSTODY_ADDRESS", &cfg.Exchange.Custody)

	addr("TOKEN_ADDRESS", &cfg.Token.Address)
	str("TOKEN_NAME", &cfg.Token.Name)
	str("TOKEN_SYMBOL", &cfg.Token.Symbol)
	str("TOKEN_SUPPLY", &cfg.Token.Supply)

	addr("SWAP_ADDRESS", &cfg.Swap.Address)
	num("SWAP_RATE", &cfg.Swap.Rate)
	str("SWAP_RESERVE", &cfg.Swap.Reserve)

	if v := os.Getenv("GENESIS_ACCOUNT"); v != "" {
		var accounts []common.Address
		for _, s := range splitList(v) {
			if !common.IsHexAddress(s) {
				errs = append(errs, fmt.Errorf("GENESIS_ACCOUNT: not an address: %q", s))
				continue
			}
			accounts = append(accounts, common.HexToAddress(s))
		}
		cfg.Genesis.Accounts = accounts
	}
	str("GENESIS_NATIVE", &cfg.Genesis.Native)

	str("DATA_DIR", &cfg.Node.DataDir)
	str("API_ADDR", &cfg.Node.APIAddr)
	str("LOG_FILE", &cfg.Node.LogFile)
	str("EVENTS_JOURNAL", &cfg.Node.EventsJournal)
	if v := os.Getenv("VERBOSE"); v != "" {
		cfg.Node.Verbose = v == "true" || v == "1"
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("CHAIN_ID: %w", err))
		} else {
			cfg.Node.ChainID = n
		}
	}

	if v := os.Getenv("EVENTS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	str("EVENTS_KAFKA_TOPIC", &cfg.Kafka.Topic)
	str("EVENTS_KAFKA_DRIVER", &cfg.Kafka.Driver)

	str("GOSSIP_LISTEN", &cfg.Gossip.Listen)
	if v := os.Getenv("GOSSIP_BOOTSTRAP"); v != "" {
		cfg.Gossip.Bootstrap = splitList(v)
	}
	str("GOSSIP_TOPIC", &cfg.Gossip.Topic)

	if err := errors.Join(errs...); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the exchange cannot run with
func (c Config) Validate() error {
	var errs []error
	if c.Exchange.FeePercent > 100 {
		errs = append(errs, fmt.Errorf("fee percent %d exceeds 100", c.Exchange.FeePercent))
	}
	if c.Exchange.Custody == (common.Address{}) {
		errs = append(errs, errors.New("custody address is zero"))
	}
	if c.Swap.Rate == 0 {
		errs = append(errs, errors.New("swap rate must be positive"))
	}
	if c.Node.ChainID <= 0 {
		errs = append(errs, fmt.Errorf("chain id %d must be positive", c.Node.ChainID))
	}
	if len(c.Genesis.Accounts) == 0 {
		errs = append(errs, errors.New("no genesis account"))
	}
	switch c.Kafka.Driver {
	case "", "kafka-go", "sarama":
	default:
		errs = append(errs, fmt.Errorf("unknown kafka driver %q", c.Kafka.Driver))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
