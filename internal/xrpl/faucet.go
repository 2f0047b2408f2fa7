package xrpl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Fund asks the test network faucet to create and fund address.
func (c *Client) Fund(ctx context.Context, address string) error {
	if c.opts.FaucetURL == "" {
		return fmt.Errorf("faucet url not configured")
	}
	body, err := json.Marshal(map[string]string{"destination": address})
	if err != nil {
		return err
	}
	url := strings.TrimRight(c.opts.FaucetURL, "/") + "/accounts"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("faucet request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("faucet returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
