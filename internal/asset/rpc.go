package asset

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"lendfact-backend/internal/domain/currency"
)

// RPCTransferor settles transfers through a JSON-RPC settlement node. It
// implements both TokenTransferor and NativeTransferor; the engine account is
// the implicit sender for Transfer and Send.
type RPCTransferor struct {
	url    string
	self   string
	client *http.Client
}

func NewRPCTransferor(url, self string) (*RPCTransferor, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("missing settlement RPC URL")
	}
	if self == "" {
		return nil, fmt.Errorf("missing engine account")
	}
	return &RPCTransferor{
		url:    url,
		self:   self,
		client: &http.Client{Timeout: 20 * time.Second},
	}, nil
}

func (t *RPCTransferor) TransferFrom(ctx context.Context, asset, from, to string, amount currency.Wad) error {
	return t.call(ctx, "lend_transferFrom", map[string]any{
		"asset":  asset,
		"from":   from,
		"to":     to,
		"amount": amount.String(),
	})
}

func (t *RPCTransferor) Transfer(ctx context.Context, asset, to string, amount currency.Wad) error {
	return t.TransferFrom(ctx, asset, t.self, to, amount)
}

func (t *RPCTransferor) Collect(ctx context.Context, from string, amount currency.Wad) error {
	return t.call(ctx, "lend_collectNative", map[string]any{
		"from":   from,
		"to":     t.self,
		"amount": amount.String(),
	})
}

func (t *RPCTransferor) Send(ctx context.Context, to string, amount currency.Wad) error {
	return t.call(ctx, "lend_sendNative", map[string]any{
		"from":   t.self,
		"to":     to,
		"amount": amount.String(),
	})
}

func (t *RPCTransferor) call(ctx context.Context, method string, params map[string]any) error {
	reqBody, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []any{params},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrTransferFailed, err)
	}
	if payload.Error != nil {
		return fmt.Errorf("%w: rpc error %d: %s", ErrTransferFailed, payload.Error.Code, payload.Error.Message)
	}
	var txHash string
	if err := json.Unmarshal(payload.Result, &txHash); err != nil || !strings.HasPrefix(txHash, "0x") {
		return fmt.Errorf("%w: bad tx hash in result", ErrTransferFailed)
	}
	return nil
}
