package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"remux/internal/services"
)

// IPFSClient adds files through a Kubo RPC API node.
type IPFSClient struct {
	apiURL     string
	gatewayURL string
	client     HTTPDoer
}

func NewIPFSClient(apiURL, gatewayURL string, client HTTPDoer) *IPFSClient {
	apiURL = strings.TrimRight(strings.TrimSpace(apiURL), "/")
	gatewayURL = strings.TrimRight(strings.TrimSpace(gatewayURL), "/")
	if client == nil {
		client = http.DefaultClient
	}
	return &IPFSClient{apiURL: apiURL, gatewayURL: gatewayURL, client: client}
}

// Configured reports whether an API endpoint was set. Add fails with an
// upload error when it was not.
func (c *IPFSClient) Configured() bool {
	return c.apiURL != ""
}

type ipfsAddResponse struct {
	Hash string `json:"Hash"`
}

// Add pins a file on the node and returns the resulting CID.
func (c *IPFSClient) Add(ctx context.Context, path string) (string, error) {
	if !c.Configured() {
		return "", services.Wrap(services.ErrUpload, "ipfs", "add", "no api endpoint configured", nil)
	}

	body, contentType, err := multipartFile(path)
	if err != nil {
		return "", services.Wrap(services.ErrUpload, "ipfs", "add", path, err)
	}

	url := c.apiURL + "/api/v0/add?pin=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", services.Wrap(services.ErrUpload, "ipfs", "add", "build request", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrUpload, "ipfs", "add", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", services.Wrap(services.ErrUpload, "ipfs", "add",
			fmt.Sprintf("node returned %d", resp.StatusCode), nil)
	}

	var decoded ipfsAddResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", services.Wrap(services.ErrUpload, "ipfs", "add", "decode response", err)
	}
	if decoded.Hash == "" {
		return "", services.Wrap(services.ErrUpload, "ipfs", "add", "node returned empty hash", nil)
	}
	return decoded.Hash, nil
}

// Fetch downloads a CID through the configured gateway.
func (c *IPFSClient) Fetch(ctx context.Context, cid, dest string) error {
	if c.gatewayURL == "" {
		return services.Wrap(services.ErrFetch, "ipfs", "fetch", "no gateway configured", nil)
	}

	url := fmt.Sprintf("%s/ipfs/%s", c.gatewayURL, cid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return services.Wrap(services.ErrFetch, "ipfs", "fetch", "build request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrFetch, "ipfs", "fetch", cid, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "ipfs", "fetch", cid, nil)
	case resp.StatusCode != http.StatusOK:
		return services.Wrap(services.ErrFetch, "ipfs", "fetch",
			fmt.Sprintf("%s: gateway returned %d", cid, resp.StatusCode), nil)
	}

	return writeBody(resp.Body, dest)
}
