// Package publisher uploads asset binaries and metadata documents to an
// external content-addressed pinning service and returns stable locators.
//
// Both operations are single network round-trips with no automatic retry:
// the caller decides whether to abort or re-run the whole creation
// workflow. Upstream failure reasons are carried in the returned error,
// never swallowed.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/tessella/bazaar/internal/market"
)

const (
	pinFilePath = "/pinning/pinFileToIPFS"
	pinJSONPath = "/pinning/pinJSONToIPFS"
)

// Client publishes content to a Pinata-compatible pinning API over an
// authenticated channel.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (for tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a publishing client with the given configuration.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// pinResponse is the payload returned by both pinning endpoints.
type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// PinFile streams a binary payload to the content store and returns its
// locator. The name is carried as the multipart filename; the store does
// not interpret it.
func (c *Client) PinFile(ctx context.Context, name string, r io.Reader) (market.Locator, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", market.NewPublishError("asset", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", market.NewPublishError("asset", err)
	}
	if err := mw.Close(); err != nil {
		return "", market.NewPublishError("asset", err)
	}

	hash, err := c.pin(ctx, pinFilePath, mw.FormDataContentType(), &body)
	if err != nil {
		return "", market.NewPublishError("asset", err)
	}
	loc, err := c.locatorFor(hash)
	if err != nil {
		return "", market.NewPublishError("asset", err)
	}
	c.logger.Debug("asset pinned", "hash", hash)
	return loc, nil
}

// PinJSON serializes a document and publishes it, returning the
// document's own locator.
func (c *Client) PinJSON(ctx context.Context, doc any) (market.Locator, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return "", market.NewPublishError("metadata", err)
	}

	hash, err := c.pin(ctx, pinJSONPath, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", market.NewPublishError("metadata", err)
	}
	loc, err := c.locatorFor(hash)
	if err != nil {
		return "", market.NewPublishError("metadata", err)
	}
	c.logger.Debug("metadata pinned", "hash", hash)
	return loc, nil
}

// pin performs one authenticated POST against the pinning API and
// returns the content hash from the response.
func (c *Client) pin(ctx context.Context, path, contentType string, body io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+path, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Surface the upstream reason; pinning services return a short
		// JSON or text body describing the rejection.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("pinning service returned %s: %s", resp.Status, bytes.TrimSpace(snippet))
	}

	var pr pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", fmt.Errorf("decoding pinning response: %w", err)
	}
	if pr.IpfsHash == "" {
		return "", fmt.Errorf("pinning response missing content hash")
	}
	return pr.IpfsHash, nil
}

// locatorFor validates the returned hash and forms the dereferenceable
// gateway locator for it.
func (c *Client) locatorFor(hash string) (market.Locator, error) {
	if err := ValidateHash(hash); err != nil {
		return "", err
	}
	return market.Locator(c.cfg.Gateway + hash), nil
}
