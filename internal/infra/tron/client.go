// Package tron implements the chainfeed.Blockchain interface over a TRON full
// node's HTTP wallet API. It speaks the native REST endpoints
// (/wallet/getnowblock, /wallet/getblockbynum) and converts the node's block
// JSON into the feed's raw model, leaving contract parameters untouched for
// downstream enrichment.
package tron

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/delphian/tronrelic-sub011/internal/chainfeed"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrUnexpectedStatus indicates the node answered with a non-200 status code.
var ErrUnexpectedStatus = errors.New("unexpected node response status")

// client talks to a single TRON full node.
type client struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time assertion that client implements the chainfeed.Blockchain interface.
var _ chainfeed.Blockchain = (*client)(nil)

// NewClient creates a TRON node client over the given retrying HTTP client.
// baseURL is the node's API root (e.g. "https://api.trongrid.io").
func NewClient(baseURL string, httpClient *retryablehttp.Client) *client {
	return &client{
		baseURL:    baseURL,
		httpClient: httpClient.StandardClient(),
	}
}

// post sends a JSON body to a wallet API path and decodes the JSON response
// into out.
func (c *client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: [%d] %s %s", ErrUnexpectedStatus, res.StatusCode, http.MethodPost, path)
	}

	return json.NewDecoder(res.Body).Decode(out)
}

// FetchLatestBlock retrieves the current chain head.
func (c *client) FetchLatestBlock(ctx context.Context) (chainfeed.RawBlock, error) {
	var res blockResponse
	if err := c.post(ctx, "/wallet/getnowblock", struct{}{}, &res); err != nil {
		return chainfeed.RawBlock{}, err
	}

	return res.toRawBlock()
}

// FetchBlockByNumber retrieves the block at the given height. The wallet API
// answers an empty object for heights the chain has not reached, which is
// mapped to chainfeed.ErrBlockNotProduced.
func (c *client) FetchBlockByNumber(ctx context.Context, number int64) (chainfeed.RawBlock, error) {
	body := struct {
		Num int64 `json:"num"`
	}{Num: number}

	var res blockResponse
	if err := c.post(ctx, "/wallet/getblockbynum", body, &res); err != nil {
		return chainfeed.RawBlock{}, err
	}

	if res.BlockID == "" {
		return chainfeed.RawBlock{}, chainfeed.ErrBlockNotProduced
	}
	return res.toRawBlock()
}
