package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultPinataAPIURL is the Pinata management API.
	DefaultPinataAPIURL = "https://api.pinata.cloud"
	// DefaultPinataGatewayURL serves pinned content.
	DefaultPinataGatewayURL = "https://gateway.pinata.cloud"

	pinNamePrefix = "renmo-account-"
)

// PinataClient stores each account document as a pinned JSON object on IPFS.
// The newest pin named after the address wins.
type PinataClient struct {
	apiURL     string
	gatewayURL string
	jwt        string
	httpClient *http.Client
}

// NewPinataClient builds a client. Empty URLs fall back to the public endpoints.
func NewPinataClient(apiURL, gatewayURL, jwt string) *PinataClient {
	if apiURL == "" {
		apiURL = DefaultPinataAPIURL
	}
	if gatewayURL == "" {
		gatewayURL = DefaultPinataGatewayURL
	}
	return &PinataClient{
		apiURL:     apiURL,
		gatewayURL: gatewayURL,
		jwt:        jwt,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type pinJSONRequest struct {
	Content  Account     `json:"pinataContent"`
	Metadata pinMetadata `json:"pinataMetadata"`
}

type pinMetadata struct {
	Name      string            `json:"name"`
	KeyValues map[string]string `json:"keyvalues,omitempty"`
}

type pinJSONResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

type pinListResponse struct {
	Count int `json:"count"`
	Rows  []struct {
		IpfsPinHash string    `json:"ipfs_pin_hash"`
		DatePinned  time.Time `json:"date_pinned"`
	} `json:"rows"`
}

// Get returns the newest pinned document for address.
func (c *PinataClient) Get(ctx context.Context, address string) (Account, bool, error) {
	query := url.Values{}
	query.Set("status", "pinned")
	query.Set("metadata[name]", pinNamePrefix+address)
	query.Set("pageLimit", "10")

	body, status, err := c.do(ctx, http.MethodGet, c.apiURL+"/data/pinList?"+query.Encode(), nil)
	if err != nil {
		return Account{}, false, err
	}
	if status != http.StatusOK {
		return Account{}, false, fmt.Errorf("pinata pinList: status %d: %s", status, truncate(body))
	}

	var list pinListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return Account{}, false, fmt.Errorf("failed to parse pin list: %w", err)
	}
	if len(list.Rows) == 0 {
		return Account{}, false, nil
	}
	newest := list.Rows[0]
	for _, row := range list.Rows[1:] {
		if row.DatePinned.After(newest.DatePinned) {
			newest = row
		}
	}

	content, status, err := c.do(ctx, http.MethodGet, c.gatewayURL+"/ipfs/"+newest.IpfsPinHash, nil)
	if err != nil {
		return Account{}, false, err
	}
	if status != http.StatusOK {
		return Account{}, false, fmt.Errorf("pinata gateway: status %d", status)
	}
	var acct Account
	if err := json.Unmarshal(content, &acct); err != nil {
		return Account{}, false, fmt.Errorf("failed to parse account metadata: %w", err)
	}
	return acct, true, nil
}

// Set pins a new document for address.
func (c *PinataClient) Set(ctx context.Context, address string, acct Account) error {
	acct.Address = address
	req := pinJSONRequest{
		Content: acct,
		Metadata: pinMetadata{
			Name:      pinNamePrefix + address,
			KeyValues: map[string]string{"address": address},
		},
	}
	body, status, err := c.do(ctx, http.MethodPost, c.apiURL+"/pinning/pinJSONToIPFS", req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("pinata pinJSONToIPFS: status %d: %s", status, truncate(body))
	}
	var resp pinJSONResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to parse pin response: %w", err)
	}
	if resp.IpfsHash == "" {
		return fmt.Errorf("pinata pinJSONToIPFS: empty hash")
	}
	return nil
}

// Update merges patch into the current document and pins the result.
func (c *PinataClient) Update(ctx context.Context, address string, patch Patch) error {
	return mergeUpdate(ctx, c, address, patch)
}

func (c *PinataClient) do(ctx context.Context, method, target string, payload any) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.jwt != "" {
		req.Header.Set("Authorization", "Bearer "+c.jwt)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
