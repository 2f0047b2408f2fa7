package xrpl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renmo-pay/renmo/internal/ledger"
	"github.com/renmo-pay/renmo/internal/logging"
)

// handler answers one command. A non-empty errCode produces an error response.
type handler func(req map[string]any) (result any, errCode string)

type fakeNode struct {
	mu       sync.Mutex
	handlers map[string]handler
	calls    map[string]int
}

func (n *fakeNode) on(command string, h handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[command] = h
}

func (n *fakeNode) count(command string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[command]
}

func (n *fakeNode) serve(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		var req map[string]any
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		command, _ := req["command"].(string)
		n.mu.Lock()
		h, ok := n.handlers[command]
		n.calls[command]++
		n.mu.Unlock()

		resp := map[string]any{"id": req["id"], "type": "response"}
		if !ok {
			resp["status"] = "error"
			resp["error"] = "unknownCmd"
		} else if result, code := h(req); code != "" {
			resp["status"] = "error"
			resp["error"] = code
		} else {
			resp["status"] = "success"
			resp["result"] = result
		}
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

func startNode(t *testing.T) (*fakeNode, *Client) {
	t.Helper()
	node := &fakeNode{handlers: make(map[string]handler), calls: make(map[string]int)}
	srv := httptest.NewServer(http.HandlerFunc(node.serve))
	t.Cleanup(srv.Close)

	client := New(Options{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		TxPollInterval: time.Millisecond,
		Logger:         logging.Discard(),
	})
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return node, client
}

func TestClient_RequiresConnection(t *testing.T) {
	client := New(Options{URL: "ws://127.0.0.1:1"})
	_, err := client.ValidatedLedgerIndex(context.Background())
	assert.ErrorIs(t, err, ledger.ErrNotConnected)
}

func TestClient_ValidatedLedgerIndex(t *testing.T) {
	node, client := startNode(t)
	node.on("ledger", func(req map[string]any) (any, string) {
		assert.Equal(t, "validated", req["ledger_index"])
		return map[string]any{"ledger_index": 4242, "validated": true}, ""
	})

	index, err := client.ValidatedLedgerIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(4242), index)
}

func TestClient_AccountExists(t *testing.T) {
	node, client := startNode(t)
	node.on("account_info", func(req map[string]any) (any, string) {
		if req["account"] == "rMissing" {
			return nil, "actNotFound"
		}
		return map[string]any{"account_data": map[string]any{"Account": req["account"]}}, ""
	})

	ok, err := client.AccountExists(context.Background(), "rMissing")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = client.AccountExists(context.Background(), "rPresent")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClient_DeriveWallet(t *testing.T) {
	node, client := startNode(t)
	node.on("wallet_propose", func(req map[string]any) (any, string) {
		if req["seed"] == "bogus" {
			return nil, "badSeed"
		}
		return map[string]any{"master_seed": req["seed"], "account_id": "rDerived"}, ""
	})

	cred, err := client.DeriveWallet(context.Background(), "sGood")
	require.NoError(t, err)
	assert.Equal(t, ledger.Credential{Seed: "sGood", Address: "rDerived"}, cred)

	_, err = client.DeriveWallet(context.Background(), "bogus")
	assert.ErrorIs(t, err, ledger.ErrInvalidSeed)
}

func TestClient_TrustLinesAndTransactions(t *testing.T) {
	node, client := startNode(t)
	node.on("account_lines", func(map[string]any) (any, string) {
		return map[string]any{"lines": []map[string]any{
			{"account": "rIssuer", "balance": "12.5", "currency": "USD", "limit": "1000000000"},
		}}, ""
	})
	node.on("account_tx", func(req map[string]any) (any, string) {
		assert.Equal(t, false, req["forward"])
		assert.EqualValues(t, 2, req["limit"])
		return map[string]any{"transactions": []map[string]any{
			{
				"tx": map[string]any{
					"hash": "AAA", "TransactionType": "Payment", "Destination": "rDest", "date": 0,
					"Amount": map[string]any{"currency": "USD", "issuer": "rIssuer", "value": "3"},
				},
				"meta": map[string]any{"TransactionResult": "tesSUCCESS"},
			},
			{
				"tx": map[string]any{
					"hash": "BBB", "TransactionType": "Payment", "Destination": "rDest", "date": 1,
					"Amount": "1000000",
				},
				"meta": map[string]any{"TransactionResult": "tecUNFUNDED_PAYMENT"},
			},
		}}, ""
	})

	lines, err := client.TrustLines(context.Background(), "rMe")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, ledger.TrustLine{Account: "rIssuer", Balance: "12.5", Currency: "USD", Limit: "1000000000"}, lines[0])

	txs, err := client.Transactions(context.Background(), "rMe", 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, ledger.Amount{Currency: "USD", Issuer: "rIssuer", Value: "3"}, txs[0].Amount)
	assert.Equal(t, ledger.Amount{Value: "1000000"}, txs[1].Amount)
	assert.Equal(t, "tecUNFUNDED_PAYMENT", txs[1].Result)
	assert.Equal(t, time.Date(2000, 1, 1, 0, 0, 1, 0, time.UTC), txs[1].Date)
}

func TestClient_TrustLinesUnknownAccount(t *testing.T) {
	node, client := startNode(t)
	node.on("account_lines", func(map[string]any) (any, string) { return nil, "actNotFound" })

	_, err := client.TrustLines(context.Background(), "rNew")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func signAndSubmit(node *fakeNode, engineResult string) {
	node.on("sign", func(req map[string]any) (any, string) {
		return map[string]any{"tx_blob": "BLOB", "tx_json": map[string]any{"hash": "HASH"}}, ""
	})
	node.on("submit", func(req map[string]any) (any, string) {
		return map[string]any{
			"engine_result":         engineResult,
			"engine_result_message": engineResult,
			"tx_json":               map[string]any{"hash": "HASH"},
		}, ""
	})
}

var payment = ledger.Instruction{
	Type:               ledger.TypePayment,
	Account:            "rFrom",
	Destination:        "rTo",
	Amount:             ledger.Amount{Currency: "USD", Issuer: "rIssuer", Value: "1"},
	LastLedgerSequence: 110,
}

func TestClient_SubmitAndWaitValidated(t *testing.T) {
	node, client := startNode(t)
	signAndSubmit(node, "tesSUCCESS")
	node.on("ledger", func(map[string]any) (any, string) {
		return map[string]any{"ledger_index": 100}, ""
	})
	var polls int
	node.on("tx", func(req map[string]any) (any, string) {
		polls++
		if polls < 3 {
			return nil, "txnNotFound"
		}
		return map[string]any{"validated": true, "ledger_index": 102, "meta": map[string]any{"TransactionResult": "tesSUCCESS"}}, ""
	})

	res, err := client.SubmitAndWait(context.Background(), "sSeed", payment)
	require.NoError(t, err)
	assert.Equal(t, ledger.SubmitResult{Hash: "HASH", Result: "tesSUCCESS", LedgerIndex: 102}, res)
	assert.Equal(t, 3, node.count("tx"))
}

func TestClient_SubmitAndWaitDeadlinePassed(t *testing.T) {
	node, client := startNode(t)
	signAndSubmit(node, "terQUEUED")
	node.on("ledger", func(map[string]any) (any, string) {
		return map[string]any{"ledger_index": 111}, ""
	})
	node.on("tx", func(map[string]any) (any, string) { return nil, "txnNotFound" })

	_, err := client.SubmitAndWait(context.Background(), "sSeed", payment)
	require.Error(t, err)
	assert.True(t, ledger.IsDeadlineExpired(err))
}

func TestClient_SubmitClassifiesEngineResults(t *testing.T) {
	cases := map[string]ledger.SubmitErrorKind{
		"tefPAST_SEQ":   ledger.SubmitDeadlineExpired,
		"tefMAX_LEDGER": ledger.SubmitDeadlineExpired,
		"temBAD_AMOUNT": ledger.SubmitRejected,
	}
	for code, kind := range cases {
		t.Run(code, func(t *testing.T) {
			node, client := startNode(t)
			signAndSubmit(node, code)

			_, err := client.SubmitAndWait(context.Background(), "sSeed", payment)
			var se *ledger.SubmitError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, kind, se.Kind)
			assert.Equal(t, code, se.Code)
		})
	}
}

func TestClient_SubmitFailedOnLedger(t *testing.T) {
	node, client := startNode(t)
	signAndSubmit(node, "tesSUCCESS")
	node.on("tx", func(map[string]any) (any, string) {
		return map[string]any{"validated": true, "meta": map[string]any{"TransactionResult": "tecPATH_DRY"}}, ""
	})

	_, err := client.SubmitAndWait(context.Background(), "sSeed", payment)
	var se *ledger.SubmitError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ledger.SubmitRejected, se.Kind)
	assert.Equal(t, "tecPATH_DRY", se.Code)
}

func TestTxJSON(t *testing.T) {
	tx, err := txJSON(ledger.Instruction{
		Type:    ledger.TypeTrustSet,
		Account: "rMe",
		Amount:  ledger.Amount{Currency: "USD", Issuer: "rIssuer", Value: "1000000000"},
	})
	require.NoError(t, err)
	raw, err := json.Marshal(tx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"TransactionType":"TrustSet","Account":"rMe","LimitAmount":{"currency":"USD","issuer":"rIssuer","value":"1000000000"}}`, string(raw))
}

func TestClient_Fund(t *testing.T) {
	var got map[string]string
	faucet := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer faucet.Close()

	client := New(Options{FaucetURL: faucet.URL + "/", Logger: logging.Discard()})
	require.NoError(t, client.Fund(context.Background(), "rNew"))
	assert.Equal(t, "rNew", got["destination"])

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer failing.Close()
	client = New(Options{FaucetURL: failing.URL})
	assert.Error(t, client.Fund(context.Background(), "rNew"))
}
