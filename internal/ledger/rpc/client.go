// Package rpc implements ledger.Client against the JSON-RPC gateway that
// fronts the deployed tracking contract.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"medtrace/internal/ledger"
	"medtrace/internal/platform/config"
)

const (
	methodRegister = "tracking_registerProduct"
	methodTransfer = "tracking_transferOwnership"
	methodHistory  = "tracking_getProductHistory"
	methodCurrent  = "tracking_getProduct"
)

// rpcErrNotFound is the gateway's error code for an unknown serial.
const rpcErrNotFound = -32004

// Client talks JSON-RPC to the ledger gateway. Submissions are serialized
// per signing address: the backend orders transactions by a per-signer
// sequence number, so two in-flight transactions from one signer would race.
type Client struct {
	endpoint      string
	http          *http.Client
	submitTimeout time.Duration
	queryTimeout  time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	signers map[string]*sync.Mutex
}

// New builds a client from ledger configuration.
func New(cfg config.LedgerConfig, logger *slog.Logger) *Client {
	return &Client{
		endpoint:      cfg.Endpoint,
		http:          &http.Client{},
		submitTimeout: cfg.SubmitTimeout,
		queryTimeout:  cfg.QueryTimeout,
		logger:        logger,
		signers:       make(map[string]*sync.Mutex),
	}
}

// signerLock returns the mutex guarding submissions for one wallet address.
func (c *Client) signerLock(addr string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.signers[addr]
	if !ok {
		lock = &sync.Mutex{}
		c.signers[addr] = lock
	}
	return lock
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type receiptResult struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
}

type recordResult struct {
	Serial    string `json:"serialNumber"`
	Owner     string `json:"owner"`
	Location  string `json:"location"`
	TxHash    string `json:"txHash"`
	Timestamp int64  `json:"timestamp"`
}

func (c *Client) Register(ctx context.Context, req ledger.RegisterRequest) (ledger.Receipt, error) {
	return c.submit(ctx, req.Factory, methodRegister, map[string]any{
		"serialNumber": req.Serial,
		"batchNumber":  req.BatchNumber,
		"productName":  req.MedicineName,
		"manufacturer": req.Factory,
		"location":     req.Location,
	})
}

func (c *Client) Transfer(ctx context.Context, req ledger.TransferRequest) (ledger.Receipt, error) {
	return c.submit(ctx, req.From, methodTransfer, map[string]any{
		"serialNumber":  req.Serial,
		"previousOwner": req.From,
		"newOwner":      req.To,
		"newLocation":   req.Location,
	})
}

func (c *Client) History(ctx context.Context, serial string) ([]ledger.CustodyRecord, error) {
	raw, err := c.call(ctx, methodHistory, map[string]any{"serialNumber": serial}, c.queryTimeout)
	if err != nil {
		return nil, err
	}
	var results []recordResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	records := make([]ledger.CustodyRecord, 0, len(results))
	for _, r := range results {
		records = append(records, toRecord(r))
	}
	return records, nil
}

func (c *Client) Current(ctx context.Context, serial string) (ledger.CustodyRecord, error) {
	raw, err := c.call(ctx, methodCurrent, map[string]any{"serialNumber": serial}, c.queryTimeout)
	if err != nil {
		return ledger.CustodyRecord{}, err
	}
	var result recordResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return ledger.CustodyRecord{}, fmt.Errorf("decode record: %w", err)
	}
	return toRecord(result), nil
}

// submit serializes on the signer and interprets the gateway response into a
// receipt. A deadline or transport failure is always ErrUnavailable; only an
// explicit RPC error counts as a rejection.
func (c *Client) submit(ctx context.Context, signer, method string, params map[string]any) (ledger.Receipt, error) {
	lock := c.signerLock(signer)
	lock.Lock()
	defer lock.Unlock()

	raw, err := c.call(ctx, method, params, c.submitTimeout)
	if err != nil {
		return ledger.Receipt{}, err
	}
	var result receiptResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return ledger.Receipt{}, fmt.Errorf("decode receipt: %w", err)
	}
	return ledger.Receipt{TxRef: result.TxHash, BlockNumber: result.BlockNumber}, nil
}

func (c *Client) call(ctx context.Context, method string, params map[string]any, timeout time.Duration) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal rpc request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rpc request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.WarnContext(ctx, "ledger call failed", "method", method, "error", err)
		return nil, fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: gateway status %d", ledger.ErrUnavailable, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ledger.ErrUnavailable, err)
	}
	if rpcResp.Error != nil {
		if rpcResp.Error.Code == rpcErrNotFound {
			return nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, rpcResp.Error.Message)
		}
		return nil, fmt.Errorf("%w: %s (code %d)", ledger.ErrRejected, rpcResp.Error.Message, rpcResp.Error.Code)
	}
	return rpcResp.Result, nil
}

func toRecord(r recordResult) ledger.CustodyRecord {
	return ledger.CustodyRecord{
		Serial:    r.Serial,
		Owner:     r.Owner,
		Location:  r.Location,
		TxRef:     r.TxHash,
		Timestamp: time.Unix(r.Timestamp, 0).UTC(),
	}
}

var _ ledger.Client = (*Client)(nil)
