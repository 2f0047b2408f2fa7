package xrpl

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/renmo-pay/renmo/internal/ledger"
)

// rippleEpoch is 2000-01-01T00:00:00Z in Unix seconds.
const rippleEpoch = 946684800

func fromRippleTime(seconds int64) time.Time {
	if seconds == 0 {
		return time.Time{}
	}
	return time.Unix(seconds+rippleEpoch, 0).UTC()
}

// amount decodes both native drop strings and issued-currency objects.
type amount ledger.Amount

func (a *amount) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var drops string
		if err := json.Unmarshal(data, &drops); err != nil {
			return err
		}
		*a = amount{Value: drops}
		return nil
	}
	var obj ledger.Amount
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*a = amount(obj)
	return nil
}

func encodeAmount(a ledger.Amount) any {
	if a.Native() {
		return a.Value
	}
	return map[string]string{"currency": a.Currency, "issuer": a.Issuer, "value": a.Value}
}

func txJSON(ins ledger.Instruction) (map[string]any, error) {
	tx := map[string]any{
		"TransactionType": ins.Type,
		"Account":         ins.Account,
	}
	if ins.LastLedgerSequence != 0 {
		tx["LastLedgerSequence"] = ins.LastLedgerSequence
	}
	switch ins.Type {
	case ledger.TypePayment:
		tx["Destination"] = ins.Destination
		tx["Amount"] = encodeAmount(ins.Amount)
	case ledger.TypeTrustSet:
		tx["LimitAmount"] = encodeAmount(ins.Amount)
	default:
		return nil, fmt.Errorf("unsupported transaction type %q", ins.Type)
	}
	return tx, nil
}

func deadlineCode(code string) bool {
	return code == "tefMAX_LEDGER" || code == "tefPAST_SEQ"
}

// SubmitAndWait signs ins on the node, submits it and polls until it is
// validated or its LastLedgerSequence has passed.
func (c *Client) SubmitAndWait(ctx context.Context, seed string, ins ledger.Instruction) (ledger.SubmitResult, error) {
	tx, err := txJSON(ins)
	if err != nil {
		return ledger.SubmitResult{}, &ledger.SubmitError{Kind: ledger.SubmitRejected, Code: "temMALFORMED", Err: err}
	}

	var signed struct {
		TxBlob string `json:"tx_blob"`
		TxJSON struct {
			Hash string `json:"hash"`
		} `json:"tx_json"`
	}
	if err := c.call(ctx, "sign", map[string]any{"tx_json": tx, "secret": seed}, &signed); err != nil {
		return ledger.SubmitResult{}, classify(err)
	}

	var submitted struct {
		EngineResult        string `json:"engine_result"`
		EngineResultMessage string `json:"engine_result_message"`
		TxJSON              struct {
			Hash string `json:"hash"`
		} `json:"tx_json"`
	}
	if err := c.call(ctx, "submit", map[string]any{"tx_blob": signed.TxBlob}, &submitted); err != nil {
		return ledger.SubmitResult{}, classify(err)
	}
	hash := submitted.TxJSON.Hash
	if hash == "" {
		hash = signed.TxJSON.Hash
	}

	code := submitted.EngineResult
	switch {
	case deadlineCode(code):
		return ledger.SubmitResult{}, &ledger.SubmitError{Kind: ledger.SubmitDeadlineExpired, Code: code, Err: fmt.Errorf("%s", submitted.EngineResultMessage)}
	case strings.HasPrefix(code, "tem"), strings.HasPrefix(code, "tef"), strings.HasPrefix(code, "tel"):
		return ledger.SubmitResult{}, &ledger.SubmitError{Kind: ledger.SubmitRejected, Code: code, Err: fmt.Errorf("%s", submitted.EngineResultMessage)}
	}

	c.logger.Debug("transaction submitted", "hash", hash, "engine_result", code)
	return c.await(ctx, hash, ins.LastLedgerSequence)
}

func (c *Client) await(ctx context.Context, hash string, lastLedger uint32) (ledger.SubmitResult, error) {
	for {
		var out struct {
			Validated   bool   `json:"validated"`
			LedgerIndex uint32 `json:"ledger_index"`
			Meta        struct {
				TransactionResult string `json:"TransactionResult"`
			} `json:"meta"`
		}
		err := c.call(ctx, "tx", map[string]any{"transaction": hash}, &out)
		switch {
		case err == nil && out.Validated:
			result := out.Meta.TransactionResult
			if result != ledger.ResultSuccess {
				return ledger.SubmitResult{}, &ledger.SubmitError{Kind: ledger.SubmitRejected, Code: result, Err: fmt.Errorf("transaction %s failed", hash)}
			}
			return ledger.SubmitResult{Hash: hash, Result: result, LedgerIndex: out.LedgerIndex}, nil
		case err != nil && rpcCode(err) != "txnNotFound":
			return ledger.SubmitResult{}, classify(err)
		}

		if lastLedger != 0 {
			current, err := c.ValidatedLedgerIndex(ctx)
			if err != nil {
				return ledger.SubmitResult{}, classify(err)
			}
			if current > lastLedger {
				return ledger.SubmitResult{}, &ledger.SubmitError{
					Kind: ledger.SubmitDeadlineExpired,
					Code: "tefMAX_LEDGER",
					Err:  fmt.Errorf("ledger %d passed LastLedgerSequence %d", current, lastLedger),
				}
			}
		}

		timer := time.NewTimer(c.opts.TxPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ledger.SubmitResult{}, &ledger.SubmitError{Kind: ledger.SubmitTransport, Err: ctx.Err()}
		case <-timer.C:
		}
	}
}

func classify(err error) error {
	if code := rpcCode(err); code != "" {
		return &ledger.SubmitError{Kind: ledger.SubmitRejected, Code: code, Err: err}
	}
	return &ledger.SubmitError{Kind: ledger.SubmitTransport, Err: err}
}
