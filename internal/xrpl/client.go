// Package xrpl implements ledger.Network against a rippled node over its
// websocket JSON API. Key generation and signing are delegated to the node
// (wallet_propose, sign), so the node must accept those admin-style commands.
package xrpl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/renmo-pay/renmo/internal/ledger"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultTxPollInterval   = time.Second
)

var errClosed = errors.New("connection closed")

// Options configures a Client.
type Options struct {
	URL              string
	FaucetURL        string
	HandshakeTimeout time.Duration
	TxPollInterval   time.Duration
	HTTPClient       *http.Client
	Logger           *slog.Logger
}

// RPCError is an error response from the node.
type RPCError struct {
	Command string
	Code    string
	Message string
}

func (e *RPCError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Command, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Code)
}

type response struct {
	ID           uint64          `json:"id"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result"`
	Error        string          `json:"error"`
	ErrorMessage string          `json:"error_message"`
}

// Client is a ledger.Network backed by one websocket connection.
type Client struct {
	opts   Options
	logger *slog.Logger
	http   *http.Client

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  chan struct{}
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[uint64]chan response
	nextID    atomic.Uint64
}

// New builds a client. Connect must be called before other methods.
func New(opts Options) *Client {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.TxPollInterval <= 0 {
		opts.TxPollInterval = defaultTxPollInterval
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		opts:    opts,
		logger:  opts.Logger,
		http:    opts.HTTPClient,
		pending: make(map[uint64]chan response),
	}
}

var _ ledger.Network = (*Client)(nil)

// Connect dials the node. Calling it on an open connection is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	c.conn = conn
	c.closed = make(chan struct{})
	go c.readLoop(conn, c.closed)
	c.logger.Info("connected to ledger node", slog.String("url", c.opts.URL))
	return nil
}

// Disconnect closes the connection and fails outstanding requests.
func (c *Client) Disconnect(_ context.Context) error {
	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := conn.Close()
	<-closed
	return err
}

func (c *Client) readLoop(conn *websocket.Conn, closed chan struct{}) {
	defer close(closed)
	for {
		var resp response
		if err := conn.ReadJSON(&resp); err != nil {
			c.failPending()
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
				c.logger.Warn("ledger connection lost", slog.Any("error", err))
			}
			c.mu.Unlock()
			return
		}
		if resp.Type != "" && resp.Type != "response" {
			continue
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.pendingMu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// call sends command with params and decodes the result into out.
func (c *Client) call(ctx context.Context, command string, params map[string]any, out any) error {
	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.mu.Unlock()
	if conn == nil {
		return ledger.ErrNotConnected
	}

	id := c.nextID.Add(1)
	req := make(map[string]any, len(params)+2)
	for k, v := range params {
		req[k] = v
	}
	req["id"] = id
	req["command"] = command

	ch := make(chan response, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	forget := func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}

	c.writeMu.Lock()
	err := conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		forget()
		return fmt.Errorf("%s: %w", command, err)
	}

	var resp response
	select {
	case <-ctx.Done():
		forget()
		return ctx.Err()
	case r, ok := <-ch:
		if !ok {
			return fmt.Errorf("%s: %w", command, errClosed)
		}
		resp = r
	case <-closed:
		select {
		case r, ok := <-ch:
			if !ok {
				return fmt.Errorf("%s: %w", command, errClosed)
			}
			resp = r
		default:
			forget()
			return fmt.Errorf("%s: %w", command, errClosed)
		}
	}

	if resp.Status == "error" || resp.Error != "" {
		return &RPCError{Command: command, Code: resp.Error, Message: resp.ErrorMessage}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", command, err)
	}
	return nil
}

func rpcCode(err error) string {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	return ""
}

// GenerateWallet asks the node for a fresh key pair.
func (c *Client) GenerateWallet(ctx context.Context) (ledger.Credential, error) {
	return c.propose(ctx, map[string]any{"key_type": "secp256k1"})
}

// DeriveWallet asks the node for the address belonging to seed.
func (c *Client) DeriveWallet(ctx context.Context, seed string) (ledger.Credential, error) {
	cred, err := c.propose(ctx, map[string]any{"seed": seed})
	if code := rpcCode(err); code == "badSeed" || code == "invalidParams" {
		return ledger.Credential{}, ledger.ErrInvalidSeed
	}
	return cred, err
}

func (c *Client) propose(ctx context.Context, params map[string]any) (ledger.Credential, error) {
	var out struct {
		MasterSeed string `json:"master_seed"`
		AccountID  string `json:"account_id"`
	}
	if err := c.call(ctx, "wallet_propose", params, &out); err != nil {
		return ledger.Credential{}, err
	}
	return ledger.Credential{Seed: out.MasterSeed, Address: out.AccountID}, nil
}

// AccountExists reports whether address is present in the validated ledger.
func (c *Client) AccountExists(ctx context.Context, address string) (bool, error) {
	err := c.call(ctx, "account_info", map[string]any{
		"account":      address,
		"ledger_index": "validated",
	}, nil)
	if rpcCode(err) == "actNotFound" {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ValidatedLedgerIndex returns the latest validated ledger index.
func (c *Client) ValidatedLedgerIndex(ctx context.Context) (uint32, error) {
	var out struct {
		LedgerIndex uint32 `json:"ledger_index"`
	}
	if err := c.call(ctx, "ledger", map[string]any{"ledger_index": "validated"}, &out); err != nil {
		return 0, err
	}
	return out.LedgerIndex, nil
}

// TrustLines lists the trust lines of address.
func (c *Client) TrustLines(ctx context.Context, address string) ([]ledger.TrustLine, error) {
	var out struct {
		Lines []struct {
			Account  string `json:"account"`
			Balance  string `json:"balance"`
			Currency string `json:"currency"`
			Limit    string `json:"limit"`
		} `json:"lines"`
	}
	err := c.call(ctx, "account_lines", map[string]any{
		"account":      address,
		"ledger_index": "validated",
	}, &out)
	if rpcCode(err) == "actNotFound" {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	lines := make([]ledger.TrustLine, len(out.Lines))
	for i, l := range out.Lines {
		lines[i] = ledger.TrustLine{Account: l.Account, Balance: l.Balance, Currency: l.Currency, Limit: l.Limit}
	}
	return lines, nil
}

// Transactions returns up to limit validated transactions of address, most
// recent first.
func (c *Client) Transactions(ctx context.Context, address string, limit int) ([]ledger.Transaction, error) {
	var out struct {
		Transactions []struct {
			Tx struct {
				Hash            string `json:"hash"`
				TransactionType string `json:"TransactionType"`
				Amount          amount `json:"Amount"`
				LimitAmount     amount `json:"LimitAmount"`
				Destination     string `json:"Destination"`
				Date            int64  `json:"date"`
			} `json:"tx"`
			Meta struct {
				TransactionResult string `json:"TransactionResult"`
			} `json:"meta"`
		} `json:"transactions"`
	}
	err := c.call(ctx, "account_tx", map[string]any{
		"account":          address,
		"limit":            limit,
		"forward":          false,
		"ledger_index_min": -1,
		"ledger_index_max": -1,
	}, &out)
	if rpcCode(err) == "actNotFound" {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	txs := make([]ledger.Transaction, 0, len(out.Transactions))
	for _, entry := range out.Transactions {
		amt := entry.Tx.Amount
		if entry.Tx.TransactionType == ledger.TypeTrustSet {
			amt = entry.Tx.LimitAmount
		}
		txs = append(txs, ledger.Transaction{
			Hash:        entry.Tx.Hash,
			Type:        entry.Tx.TransactionType,
			Amount:      ledger.Amount(amt),
			Destination: entry.Tx.Destination,
			Date:        fromRippleTime(entry.Tx.Date),
			Result:      entry.Meta.TransactionResult,
		})
	}
	return txs, nil
}
