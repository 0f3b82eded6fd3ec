package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/tokenex/pkg/api"
	"github.com/uhyunpark/tokenex/pkg/app/core/transaction"
	"github.com/uhyunpark/tokenex/pkg/app/exchange"
)

// apiError is a non-2xx answer from the node
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

type client struct {
	base string
	http *http.Client
}

func newClient(base string) *client {
	return &client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &apiError{Status: resp.StatusCode, Code: e.Error, Message: e.Message}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *client) submit(ctx context.Context, stx *transaction.SignedTransaction) (*exchange.Receipt, error) {
	var r exchange.Receipt
	if err := c.do(ctx, http.MethodPost, "/api/v1/tx", stx, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *client) nextNonce(ctx context.Context, addr common.Address) (uint64, error) {
	var n api.NonceInfo
	if err := c.get(ctx, "/api/v1/nonce/"+addr.Hex(), &n); err != nil {
		return 0, err
	}
	return n.Next, nil
}

func (c *client) exchangeInfo(ctx context.Context) (*api.ExchangeInfo, error) {
	var info api.ExchangeInfo
	if err := c.get(ctx, "/api/v1/exchange", &info); err != nil {
		return nil, err
	}
	return &info, nil
}
