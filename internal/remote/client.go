// Package remote talks to a peer server over its JSON-RPC API.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	types "github.com/yungbote/classr/internal/domain"
	"github.com/yungbote/classr/internal/platform/logger"
)

type Options struct {
	// URL is the peer's API root, e.g. http://peer:8000/api.
	URL    string
	APIKey string

	Timeout    time.Duration
	MaxRetries int

	HTTPClient *http.Client
	// Log receives retry attempts; nil keeps the client silent.
	Log *logger.Logger
}

type Client struct {
	url     string
	apiKey  string
	timeout time.Duration
	rc      *retryablehttp.Client
}

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.URL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: peer url required", types.ErrInvalidArgument)
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("%w: peer url: %v", types.ErrInvalidArgument, err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	rc := retryablehttp.NewClient()
	if opts.HTTPClient != nil {
		rc.HTTPClient = opts.HTTPClient
	}
	rc.RetryMax = maxRetries
	rc.RetryWaitMin = 250 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = nil
	if opts.Log != nil {
		rc.Logger = opts.Log.With("peer", base)
	}
	return &Client{
		url:     base,
		apiKey:  strings.TrimSpace(opts.APIKey),
		timeout: timeout,
		rc:      rc,
	}, nil
}

func (c *Client) URL() string { return c.url }

func (c *Client) GetAllClassifiers(ctx context.Context) ([]*types.Classifier, error) {
	var out []*types.Classifier
	if err := c.call(ctx, MethodClassifierGetAll, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetClassifier returns nil when the peer does not know uid.
func (c *Client) GetClassifier(ctx context.Context, uid string) (*types.Classifier, error) {
	var out types.Classifier
	if err := c.call(ctx, MethodClassifierGet, UIDParams{UID: uid}, &out); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// GetResource returns nil when the peer does not know uid.
func (c *Client) GetResource(ctx context.Context, uid string) (*types.Resource, error) {
	var out types.Resource
	if err := c.call(ctx, MethodResourceGet, UIDParams{UID: uid}, &out); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// DownloadResource streams the peer's tar.gz of uid into w.
func (c *Client) DownloadResource(ctx context.Context, uid string, w io.Writer) error {
	resp, err := c.do(ctx, http.MethodGet, c.url+DownloadPath+url.PathEscape(uid), nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("%w: download %s: %v", types.ErrRemote, uid, err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	id, err := uuid.NewUUID()
	if err != nil {
		return err
	}
	req := Request{JSONRPC: Version, Method: method, ID: id.String()}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return err
		}
		req.Params = raw
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.do(ctx, http.MethodPost, c.url, body, "application/json")
	if err != nil {
		return err
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	_ = resp.Body.Close()
	if err != nil {
		return fmt.Errorf("%w: read %s response: %v", types.ErrRemote, method, err)
	}

	var rpcResp Response
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", types.ErrRemote, method, err)
	}
	if rpcResp.JSONRPC == "" {
		return fmt.Errorf("%w: %s response is not JSON-RPC", types.ErrRemote, method)
	}
	if rpcResp.ID != req.ID {
		return fmt.Errorf("%w: %s response id %q does not match request id %q", types.ErrRemote, method, rpcResp.ID, req.ID)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%w: %s: %w", types.ErrRemote, method, rpcResp.Error)
	}
	if out == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("%w: decode %s result: %v", types.ErrRemote, method, err)
	}
	return nil
}

// do sends one request through the retrying client. Transport errors and
// 5xx responses are retried with exponential backoff; 401 and other 4xx
// statuses fail at once. The caller owns the returned body.
func (c *Client) do(ctx context.Context, method, target string, body []byte, contentType string) (*http.Response, error) {
	var raw any
	if body != nil {
		raw = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, raw)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", contentType)
	}
	if c.apiKey != "" {
		req.SetBasicAuth(APIUser, c.apiKey)
	}

	resp, err := c.rc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", types.ErrRemote, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: API-key verification failed", types.ErrRemote)
	case resp.StatusCode >= 500:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned %s", types.ErrRemote, req.URL.Path, resp.Status)
	case resp.StatusCode != http.StatusOK:
		_ = resp.Body.Close()
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Path: req.URL.Path}
	}
	return resp, nil
}

type HTTPError struct {
	StatusCode int
	Status     string
	Path       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: %s returned %s", types.ErrRemote, e.Path, e.Status)
}

func (e *HTTPError) Unwrap() error { return types.ErrRemote }

func isNotFound(err error) bool {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == CodeNotFound
	}
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}
