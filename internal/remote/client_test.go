package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/classr/internal/domain"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// rpcServer answers every call with result(method) or a not-found error when result returns nil.
func rpcServer(t *testing.T, key string, result func(method string, params json.RawMessage) any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		if key != "" {
			user, pass, ok := r.BasicAuth()
			if !ok || user != APIUser || pass != key {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := Response{JSONRPC: Version, ID: req.ID}
		if v := result(req.Method, req.Params); v != nil {
			raw, _ := json.Marshal(v)
			resp.Result = raw
		} else {
			resp.Error = &Error{Code: CodeNotFound, Message: "not found"}
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/api/resource.download/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("archive-bytes"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientCalls(t *testing.T) {
	srv := rpcServer(t, "secret", func(method string, params json.RawMessage) any {
		switch method {
		case MethodClassifierGetAll:
			return []*types.Classifier{{UID: "c1", ModelType: "KEYWORD", Resources: map[string]string{"vocab": "r1"}}}
		case MethodResourceGet:
			var p UIDParams
			_ = json.Unmarshal(params, &p)
			if p.UID == "r1" {
				return &types.Resource{UID: "r1", ResourceType: "vocab"}
			}
		}
		return nil
	})
	c, err := New(Options{URL: srv.URL + "/api", APIKey: "secret"})
	require.NoError(t, err)
	ctx := context.Background()

	all, err := c.GetAllClassifiers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "r1", all[0].Resources["vocab"])

	res, err := c.GetResource(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "vocab", res.ResourceType)

	missing, err := c.GetResource(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	var buf bytes.Buffer
	require.NoError(t, c.DownloadResource(ctx, "r1", &buf))
	assert.Equal(t, "archive-bytes", buf.String())

	err = c.DownloadResource(ctx, "missing", &buf)
	assert.True(t, errors.Is(err, types.ErrRemote), "got %v", err)
}

func TestClientBadKey(t *testing.T) {
	srv := rpcServer(t, "secret", func(string, json.RawMessage) any { return []any{} })
	c, err := New(Options{URL: srv.URL + "/api", APIKey: "wrong"})
	require.NoError(t, err)

	_, err = c.GetAllClassifiers(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrRemote))
	assert.Contains(t, err.Error(), "API-key verification failed")
}

func TestClientRejectsMismatchedID(t *testing.T) {
	hc := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		body := `{"jsonrpc":"2.0","id":"someone-else","result":[]}`
		return &http.Response{StatusCode: http.StatusOK, Body: ioNopCloser(body), Header: http.Header{}}, nil
	})}
	c, err := New(Options{URL: "http://peer/api", HTTPClient: hc})
	require.NoError(t, err)
	_, err = c.GetAllClassifiers(context.Background())
	assert.True(t, errors.Is(err, types.ErrRemote), "got %v", err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestClientRequiresEnvelope(t *testing.T) {
	hc := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: ioNopCloser(`{"result":[]}`), Header: http.Header{}}, nil
	})}
	c, err := New(Options{URL: "http://peer/api", HTTPClient: hc})
	require.NoError(t, err)
	_, err = c.GetAllClassifiers(context.Background())
	assert.True(t, errors.Is(err, types.ErrRemote), "got %v", err)
}

func TestClientRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	hc := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if calls.Add(1) < 3 {
			return &http.Response{StatusCode: http.StatusBadGateway, Status: "502 Bad Gateway", Body: ioNopCloser(""), Header: http.Header{}}, nil
		}
		var req Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		body, _ := json.Marshal(Response{JSONRPC: Version, ID: req.ID, Result: json.RawMessage(`[]`)})
		return &http.Response{StatusCode: http.StatusOK, Body: ioNopCloser(string(body)), Header: http.Header{}}, nil
	})}
	c, err := New(Options{URL: "http://peer/api", MaxRetries: 2, HTTPClient: hc})
	require.NoError(t, err)

	out, err := c.GetAllClassifiers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, int32(3), calls.Load())
}

func ioNopCloser(s string) io.ReadCloser { return io.NopCloser(strings.NewReader(s)) }
