// Package storage adapts the two content-addressed backends behind one
// fetch/put interface. The core stays agnostic to backend internals: a fetch
// materializes a CID as a local file, a put returns the CID the backend
// assigned to an uploaded file.
package storage

import (
	"context"
	"fmt"
	"net/http"

	"remux/internal/config"
	"remux/internal/media"
	"remux/internal/metrics"
)

// HTTPDoer describes the HTTP client used by the backend adapters.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the contract the orchestrator needs from content storage.
type Client interface {
	// Fetch downloads the object named by cid into dest. Encrypted sources
	// are fetched through the encrypted portal; decryption is out of scope.
	Fetch(ctx context.Context, cid, dest string, encrypted bool) error
	// Put uploads the file to the named backend and returns its CID.
	Put(ctx context.Context, path string, backend media.Backend) (string, error)
}

// URI renders a backend-prefixed storage URI for a CID.
func URI(backend media.Backend, cid string) string {
	return fmt.Sprintf("%s://%s", backend, cid)
}

// Store dispatches between the S5 and IPFS adapters.
type Store struct {
	s5   *S5Client
	ipfs *IPFSClient
}

// NewStore builds the backend clients from configuration.
func NewStore(cfg *config.Config) *Store {
	httpClient := &http.Client{Timeout: cfg.StorageTimeout()}
	return &Store{
		s5:   NewS5Client(cfg.Storage.S5PortalURL, cfg.Storage.S5EncryptedPortalURL, cfg.Storage.S5AuthToken, httpClient),
		ipfs: NewIPFSClient(cfg.Storage.IPFSAPIURL, cfg.Storage.IPFSGatewayURL, httpClient),
	}
}

// Fetch retrieves sources from S5; the portal is where submitted CIDs live.
func (s *Store) Fetch(ctx context.Context, cid, dest string, encrypted bool) error {
	err := s.s5.Fetch(ctx, cid, dest, encrypted)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.StorageTransfersTotal.WithLabelValues(string(media.BackendS5), "fetch", status).Inc()
	return err
}

// Put uploads to the backend the format requested.
func (s *Store) Put(ctx context.Context, path string, backend media.Backend) (string, error) {
	var (
		cid string
		err error
	)
	switch backend {
	case media.BackendIPFS:
		cid, err = s.ipfs.Add(ctx, path)
	default:
		cid, err = s.s5.Upload(ctx, path)
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.StorageTransfersTotal.WithLabelValues(string(backend), "put", status).Inc()
	return cid, err
}
