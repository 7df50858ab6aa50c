// Package bridge implements a single Request(method, path, params)
// operation that signs, encodes, and decodes every call the client makes
// to the directory/contract-brokerage service, plus request logging.
package bridge

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"nimbus/internal/auth"
	"nimbus/internal/nimbuserr"
	"nimbus/internal/obslog"
)

// DefaultBaseURI is used when no baseURI option and no NIMBUS_BRIDGE_URL
// environment variable are set.
const DefaultBaseURI = "https://api.storj.io"

// Client issues signed, authenticated JSON requests to the bridge.
type Client struct {
	baseURI    string
	httpClient *http.Client
	signer     auth.Signer
	logger     obslog.Logger
}

// New constructs a bridge Client. baseURI must already be resolved (env
// var override and default are applied once by the caller at
// construction); signer may be nil, in which case requests are sent
// unauthenticated.
func New(baseURI string, signer auth.Signer, logger obslog.Logger) *Client {
	if logger == nil {
		logger = obslog.Noop()
	}
	return &Client{
		baseURI:    strings.TrimRight(baseURI, "/"),
		httpClient: &http.Client{},
		signer:     signer,
		logger:     logger,
	}
}

// Params is the parameter mapping passed to Request. For GET/DELETE it
// becomes the query string; for all other methods it becomes the JSON
// body.
type Params map[string]any

func randomNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", buf), nil
}

func encodeQuery(params Params) string {
	values := url.Values{}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		values.Set(k, fmt.Sprintf("%v", params[k]))
	}
	return values.Encode()
}

// Request performs one signed HTTP call and returns the decoded JSON body,
// or a typed error (BridgeError for HTTP >= 400, TransportError for network
// or serialization failures).
func (c *Client) Request(ctx context.Context, method, path string, params Params) (json.RawMessage, error) {
	if params == nil {
		params = Params{}
	}
	nonce, err := randomNonce()
	if err != nil {
		return nil, &nimbuserr.TransportError{Method: method, Path: path, Err: err}
	}
	params["__nonce"] = nonce

	fullURL := c.baseURI + path
	var body io.Reader
	var payload string

	switch method {
	case http.MethodGet, http.MethodDelete:
		qs := encodeQuery(params)
		payload = qs
		if qs != "" {
			fullURL += "?" + qs
		}
	default:
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, &nimbuserr.TransportError{Method: method, Path: path, Err: err}
		}
		payload = string(encoded)
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, &nimbuserr.TransportError{Method: method, Path: path, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.signer != nil {
		headers, err := c.signer.Headers(method, path, payload)
		if err != nil {
			return nil, &nimbuserr.TransportError{Method: method, Path: path, Err: err}
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.Warn("bridge request failed", "method", method, "path", path, "err", err)
		return nil, &nimbuserr.TransportError{Method: method, Path: path, Err: err}
	}
	c.logger.Debug("bridge request", "method", method, "path", path,
		"status", resp.StatusCode, "duration_ms", float64(elapsed)/float64(time.Millisecond))

	return decodeBridgeBody(resp, method, path)
}

// decodeBridgeBody reads and classifies a bridge HTTP response: a decoded
// JSON body on success, or a BridgeError carrying the status and message
// on HTTP >= 400.
func decodeBridgeBody(resp *http.Response, method, path string) (json.RawMessage, error) {
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &nimbuserr.TransportError{Method: method, Path: path, Err: err}
	}

	if resp.StatusCode >= 400 {
		msg := string(respBody)
		var decoded struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &decoded) == nil && decoded.Error != "" {
			msg = decoded.Error
		}
		return nil, &nimbuserr.BridgeError{Status: resp.StatusCode, Message: msg}
	}

	if len(respBody) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(respBody), nil
}
