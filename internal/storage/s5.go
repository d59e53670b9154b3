package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"remux/internal/services"
)

// S5Client talks to an S5 portal. Blobs are fetched by CID from the blob
// endpoint; uploads go through the portal upload endpoint which returns the
// CID it assigned.
type S5Client struct {
	portalURL          string
	encryptedPortalURL string
	authToken          string
	client             HTTPDoer
}

// NewS5Client constructs a portal client. The encrypted portal falls back to
// the regular portal when empty.
func NewS5Client(portalURL, encryptedPortalURL, authToken string, client HTTPDoer) *S5Client {
	portalURL = strings.TrimRight(strings.TrimSpace(portalURL), "/")
	encryptedPortalURL = strings.TrimRight(strings.TrimSpace(encryptedPortalURL), "/")
	if encryptedPortalURL == "" {
		encryptedPortalURL = portalURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &S5Client{
		portalURL:          portalURL,
		encryptedPortalURL: encryptedPortalURL,
		authToken:          strings.TrimSpace(authToken),
		client:             client,
	}
}

// Fetch downloads a blob into dest via a temp file so a partial download
// never appears at the destination path.
func (c *S5Client) Fetch(ctx context.Context, cid, dest string, encrypted bool) error {
	base := c.portalURL
	if encrypted {
		base = c.encryptedPortalURL
	}
	url := fmt.Sprintf("%s/s5/blob/%s", base, cid)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return services.Wrap(services.ErrFetch, "s5", "fetch", "build request", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrFetch, "s5", "fetch", cid, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "s5", "fetch", cid, nil)
	case resp.StatusCode != http.StatusOK:
		return services.Wrap(services.ErrFetch, "s5", "fetch",
			fmt.Sprintf("%s: portal returned %d", cid, resp.StatusCode), nil)
	}

	return writeBody(resp.Body, dest)
}

type s5UploadResponse struct {
	CID string `json:"cid"`
}

// Upload sends a file to the portal and returns the CID it assigned.
func (c *S5Client) Upload(ctx context.Context, path string) (string, error) {
	body, contentType, err := multipartFile(path)
	if err != nil {
		return "", services.Wrap(services.ErrUpload, "s5", "upload", path, err)
	}

	url := c.portalURL + "/s5/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", services.Wrap(services.ErrUpload, "s5", "upload", "build request", err)
	}
	req.Header.Set("Content-Type", contentType)
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrUpload, "s5", "upload", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", services.Wrap(services.ErrUpload, "s5", "upload",
			fmt.Sprintf("portal returned %d", resp.StatusCode), nil)
	}

	var decoded s5UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", services.Wrap(services.ErrUpload, "s5", "upload", "decode response", err)
	}
	if decoded.CID == "" {
		return "", services.Wrap(services.ErrUpload, "s5", "upload", "portal returned empty cid", nil)
	}
	return decoded.CID, nil
}

func (c *S5Client) authorize(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

func writeBody(body io.Reader, dest string) error {
	tmp := dest + ".part"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return services.Wrap(services.ErrFetch, "s5", "fetch", "create temp file", err)
	}
	if _, err := io.Copy(out, body); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return services.Wrap(services.ErrFetch, "s5", "fetch", "write body", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return services.Wrap(services.ErrFetch, "s5", "fetch", "close temp file", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return services.Wrap(services.ErrFetch, "s5", "fetch", "finalize download", err)
	}
	return nil
}

// multipartFile buffers a file into a multipart body. Returns the body and
// its content type.
func multipartFile(path string) (io.Reader, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
