package bridge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"nimbus/internal/nimbuserr"
)

// DefaultContractRetries is the retry budget for contract acquisition.
const DefaultContractRetries = 24

var bucketIDPattern = regexp.MustCompile(`^[0-9A-Fa-f]{24}$`)

// NormalizeBucketID applies the bucket-id normalization rule: a
// 24-hex-character id is used verbatim; otherwise one is derived
// deterministically from (email, name).
func NormalizeBucketID(id, email, name string) string {
	if bucketIDPattern.MatchString(id) {
		return id
	}
	sum := sha256.Sum256([]byte(email + ":" + name))
	return hex.EncodeToString(sum[:])[:24]
}

// CreateFrame requests a new staging frame.
func (c *Client) CreateFrame(ctx context.Context) (*Frame, error) {
	raw, err := c.Request(ctx, "POST", "/frames", nil)
	if err != nil {
		return nil, err
	}
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, &nimbuserr.TransportError{Method: "POST", Path: "/frames", Err: err}
	}
	return &f, nil
}

// GetFrame fetches a staging frame by id, used by the download path to
// recover a file's shard layout.
func (c *Client) GetFrame(ctx context.Context, frameID string) (*Frame, error) {
	raw, err := c.Request(ctx, "GET", "/frames/"+frameID, nil)
	if err != nil {
		return nil, err
	}
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, &nimbuserr.TransportError{Method: "GET", Path: "/frames/" + frameID, Err: err}
	}
	return &f, nil
}

// AddShardToFrame calls PUT /frames/{id}, retrying up to retries times with
// no backoff before failing. The caller is responsible for escalating a
// post-budget failure to farmer rotation (blacklist + re-frame).
//
// ctx governs cancellation of the whole retry loop.
func (c *Client) AddShardToFrame(ctx context.Context, frameID string, params AddShardParams, retries int) (*Pointer, error) {
	if retries <= 0 {
		retries = DefaultContractRetries
	}

	path := "/frames/" + frameID
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := c.Request(ctx, "PUT", path, Params{
			"hash":       params.Hash,
			"size":       params.Size,
			"index":      params.Index,
			"challenges": params.Challenges,
			"tree":       params.Tree,
			"exclude":    params.Exclude,
		})
		if err == nil {
			var p Pointer
			if uerr := json.Unmarshal(raw, &p); uerr != nil {
				lastErr = &nimbuserr.TransportError{Method: "PUT", Path: path, Err: uerr}
				continue
			}
			return &p, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("add shard %d to frame %s: exhausted %d attempts: %w", params.Index, frameID, retries, lastErr)
}

// FinalizeFile calls POST /buckets/{id}/files.
func (c *Client) FinalizeFile(ctx context.Context, bucketID string, params FinalizeFileParams) (*FileEntry, error) {
	raw, err := c.Request(ctx, "POST", "/buckets/"+bucketID+"/files", Params{
		"frame":    params.Frame,
		"mimetype": params.Mimetype,
		"filename": params.Filename,
	})
	if err != nil {
		return nil, err
	}
	var f FileEntry
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, &nimbuserr.TransportError{Method: "POST", Path: "/buckets/" + bucketID + "/files", Err: err}
	}
	return &f, nil
}

// CreateToken requests a short-lived data-channel session token for op on
// bucketID.
func (c *Client) CreateToken(ctx context.Context, bucketID string, op ChannelType) (string, error) {
	raw, err := c.Request(ctx, "POST", "/buckets/"+bucketID+"/tokens", Params{
		"operation": op,
	})
	if err != nil {
		return "", err
	}
	var tok Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return "", &nimbuserr.TransportError{Method: "POST", Path: "/buckets/" + bucketID + "/tokens", Err: err}
	}
	return tok.Token, nil
}

// GetFilePointers returns the ordered pointer array for the window
// [skip, skip+limit).
func (c *Client) GetFilePointers(ctx context.Context, bucketID, token, file string, skip, limit int, exclude []string) ([]Pointer, error) {
	raw, err := c.requestWithToken(ctx, "GET", "/buckets/"+bucketID+"/files/"+file, Params{
		"skip":    skip,
		"limit":   limit,
		"exclude": exclude,
	}, token)
	if err != nil {
		return nil, err
	}
	var pointers []Pointer
	if err := json.Unmarshal(raw, &pointers); err != nil {
		return nil, &nimbuserr.TransportError{Method: "GET", Path: "/buckets/" + bucketID + "/files/" + file, Err: err}
	}
	return pointers, nil
}

// ListFiles implements "GET /buckets/{id}/files".
func (c *Client) ListFiles(ctx context.Context, bucketID string) ([]FileEntry, error) {
	raw, err := c.Request(ctx, "GET", "/buckets/"+bucketID+"/files", nil)
	if err != nil {
		return nil, err
	}
	var files []FileEntry
	if err := json.Unmarshal(raw, &files); err != nil {
		return nil, &nimbuserr.TransportError{Method: "GET", Path: "/buckets/" + bucketID + "/files", Err: err}
	}
	return files, nil
}

// requestWithToken is like Request but attaches the x-token header
// GetFilePointers needs.
func (c *Client) requestWithToken(ctx context.Context, method, path string, params Params, token string) (json.RawMessage, error) {
	// Request does not expose a hook for extra headers, so getFilePointers
	// is implemented directly here rather than through Request: it needs
	// the x-token header in addition to whatever signer headers apply.
	if params == nil {
		params = Params{}
	}
	nonce, err := randomNonce()
	if err != nil {
		return nil, &nimbuserr.TransportError{Method: method, Path: path, Err: err}
	}
	params["__nonce"] = nonce

	qs := encodeQuery(params)
	fullURL := c.baseURI + path
	if qs != "" {
		fullURL += "?" + qs
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, &nimbuserr.TransportError{Method: method, Path: path, Err: err}
	}
	req.Header.Set("x-token", token)

	if c.signer != nil {
		headers, err := c.signer.Headers(method, path, qs)
		if err != nil {
			return nil, &nimbuserr.TransportError{Method: method, Path: path, Err: err}
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &nimbuserr.TransportError{Method: method, Path: path, Err: err}
	}
	return decodeBridgeBody(resp, method, path)
}
