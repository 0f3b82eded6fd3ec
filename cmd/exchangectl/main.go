// Command exchangectl signs and submits exchange actions against a node.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"

	"github.com/uhyunpark/tokenex/params"
	"github.com/uhyunpark/tokenex/pkg/api"
	"github.com/uhyunpark/tokenex/pkg/app/core/asset"
	"github.com/uhyunpark/tokenex/pkg/app/core/transaction"
	"github.com/uhyunpark/tokenex/pkg/crypto"
)

func main() {
	app := &cli.App{
		Name:  "exchangectl",
		Usage: "sign and submit token exchange actions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api", Value: "http://localhost:8080", EnvVars: []string{"TOKENEX_API"}, Usage: "node API base URL"},
			&cli.Int64Flag{Name: "chain-id", Value: 1337, EnvVars: []string{"CHAIN_ID"}, Usage: "EIP-712 domain chain id"},
		},
		Commands: []*cli.Command{
			keygenCommand,
			signCommand,
			submitCommand,
			balanceCommand,
			orderCommand,
			seedCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var actionFlags = []cli.Flag{
	&cli.StringFlag{Name: "key", Required: true, EnvVars: []string{"TOKENEX_KEY"}, Usage: "hex private key of the signer"},
	&cli.StringFlag{Name: "kind", Required: true, Usage: "deposit_native|deposit_token|withdraw|make|cancel|fill|token_approve|token_transfer|swap_buy|swap_sell"},
	&cli.StringFlag{Name: "asset", Usage: "asset address or \"native\""},
	&cli.StringFlag{Name: "amount", Usage: "amount in whole units, e.g. 0.5"},
	&cli.StringFlag{Name: "counter-asset", Usage: "asset given by a make order"},
	&cli.StringFlag{Name: "counter-amount", Usage: "amount given by a make order"},
	&cli.Uint64Flag{Name: "order", Usage: "order id for cancel/fill"},
	&cli.StringFlag{Name: "target", Usage: "spender or recipient address"},
	&cli.StringFlag{Name: "value", Usage: "native value attached to deposit_native/swap_buy"},
	&cli.Uint64Flag{Name: "nonce", Usage: "action nonce; 0 asks the node for the next one"},
}

var keygenCommand = &cli.Command{
	Name:  "keygen",
	Usage: "generate a new secp256k1 key",
	Action: func(c *cli.Context) error {
		s, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Printf("address: %s\nkey:     %s\n", s.Address().Hex(), s.PrivateKeyHex())
		return nil
	},
}

var signCommand = &cli.Command{
	Name:  "sign",
	Usage: "build and sign an action envelope without submitting it",
	Flags: actionFlags,
	Action: func(c *cli.Context) error {
		stx, err := signFromFlags(c)
		if err != nil {
			return err
		}
		return printJSON(stx)
	},
}

var submitCommand = &cli.Command{
	Name:  "submit",
	Usage: "submit a signed envelope (--file, - for stdin) or sign one from flags",
	Flags: append([]cli.Flag{
		&cli.StringFlag{Name: "file", Usage: "envelope JSON produced by sign"},
	}, optional(actionFlags)...),
	Action: func(c *cli.Context) error {
		var stx *transaction.SignedTransaction
		if path := c.String("file"); path != "" {
			raw, err := readInput(path)
			if err != nil {
				return err
			}
			if stx, err = transaction.Deserialize(raw); err != nil {
				return err
			}
		} else {
			var err error
			if stx, err = signFromFlags(c); err != nil {
				return err
			}
		}
		r, err := newClient(c.String("api")).submit(c.Context, stx)
		if err != nil {
			return err
		}
		return printJSON(r)
	},
}

var balanceCommand = &cli.Command{
	Name:      "balance",
	Usage:     "show exchange and wallet balances of an address",
	ArgsUsage: "<address>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "asset", Value: "native", Usage: "asset address or \"native\""},
	},
	Action: func(c *cli.Context) error {
		addr, err := addressArg(c)
		if err != nil {
			return err
		}
		a, err := asset.Parse(c.String("asset"))
		if err != nil {
			return err
		}
		cl := newClient(c.String("api"))

		var onExchange api.BalanceInfo
		if err := cl.get(c.Context, "/api/v1/balances/"+a.Hex()+"/"+addr.Hex(), &onExchange); err != nil {
			return err
		}
		var wallet api.WalletBalance
		path := "/api/v1/native/" + addr.Hex()
		if !a.IsNative() {
			path = "/api/v1/tokens/" + a.Hex() + "/balances/" + addr.Hex()
		}
		if err := cl.get(c.Context, path, &wallet); err != nil {
			return err
		}
		fmt.Printf("asset:    %s\nexchange: %s\nwallet:   %s\n", a, onExchange.Formatted, wallet.Formatted)
		return nil
	},
}

var orderCommand = &cli.Command{
	Name:      "order",
	Usage:     "show one order by id, or list orders",
	ArgsUsage: "[id]",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "status", Usage: "open|filled|cancelled"},
		&cli.StringFlag{Name: "maker", Usage: "maker address"},
	},
	Action: func(c *cli.Context) error {
		cl := newClient(c.String("api"))
		if c.Args().Len() > 0 {
			id, err := strconv.ParseUint(c.Args().First(), 10, 64)
			if err != nil {
				return fmt.Errorf("order id: %w", err)
			}
			var o api.OrderInfo
			if err := cl.get(c.Context, fmt.Sprintf("/api/v1/orders/%d", id), &o); err != nil {
				return err
			}
			return printJSON(o)
		}
		path := "/api/v1/orders?status=" + c.String("status")
		if m := c.String("maker"); m != "" {
			path += "&maker=" + m
		}
		var orders []api.OrderInfo
		if err := cl.get(c.Context, path, &orders); err != nil {
			return err
		}
		return printJSON(orders)
	},
}

// signFromFlags turns the action flags into a signed envelope, asking the
// node for the nonce when none is given.
func signFromFlags(c *cli.Context) (*transaction.SignedTransaction, error) {
	signer, err := crypto.FromPrivateKeyHex(c.String("key"))
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	a, err := actionFromFlags(c)
	if err != nil {
		return nil, err
	}
	a.Nonce = c.Uint64("nonce")
	if a.Nonce == 0 {
		if a.Nonce, err = newClient(c.String("api")).nextNonce(c.Context, signer.Address()); err != nil {
			return nil, fmt.Errorf("fetch nonce: %w", err)
		}
	}
	return transaction.Sign(crypto.NewEIP712Signer(crypto.DomainFor(c.Int64("chain-id"))), signer, a)
}

func actionFromFlags(c *cli.Context) (transaction.Action, error) {
	a := transaction.Action{Kind: transaction.Kind(c.String("kind")), OrderID: c.Uint64("order")}
	var err error
	if a.Asset, err = optionalAsset(c.String("asset")); err != nil {
		return a, err
	}
	if a.CounterAsset, err = optionalAsset(c.String("counter-asset")); err != nil {
		return a, err
	}
	if a.Amount, err = optionalUnits(c.String("amount")); err != nil {
		return a, err
	}
	if a.CounterAmount, err = optionalUnits(c.String("counter-amount")); err != nil {
		return a, err
	}
	if a.Value, err = optionalUnits(c.String("value")); err != nil {
		return a, err
	}
	if t := c.String("target"); t != "" {
		if !common.IsHexAddress(t) {
			return a, fmt.Errorf("target: not an address: %q", t)
		}
		a.Target = common.HexToAddress(t)
	}
	return a, nil
}

func optionalAsset(s string) (asset.Asset, error) {
	if s == "" {
		return asset.Native, nil
	}
	return asset.Parse(s)
}

func optionalUnits(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	return asset.ParseUnits(s, asset.Decimals)
}

// optional copies flags with Required cleared
func optional(flags []cli.Flag) []cli.Flag {
	out := make([]cli.Flag, 0, len(flags))
	for _, f := range flags {
		if sf, ok := f.(*cli.StringFlag); ok && sf.Required {
			cp := *sf
			cp.Required = false
			f = &cp
		}
		out = append(out, f)
	}
	return out
}

func addressArg(c *cli.Context) (common.Address, error) {
	s := c.Args().First()
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.New("expected an address argument")
	}
	return common.HexToAddress(s), nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// devKeys are the signers used by seed unless overridden
var devKeys = []string{params.DevKey0, params.DevKey1}
