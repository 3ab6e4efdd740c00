package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/classr/internal/domain"
	"github.com/yungbote/classr/internal/platform/ctxutil"
	"github.com/yungbote/classr/internal/platform/logger"
	"github.com/yungbote/classr/internal/remote"
	"github.com/yungbote/classr/internal/services"
)

const maxRPCBody = 4 << 20

type rpcMethod func(ctx context.Context, params json.RawMessage) (any, error)

// RPCHandler serves the JSON-RPC 2.0 peer API on POST /api.
type RPCHandler struct {
	log     *logger.Logger
	methods map[string]rpcMethod
}

type RPCHandlerDeps struct {
	Log         *logger.Logger
	Classifiers *services.ClassifierService
	Jobs        *services.JobService
	Resources   *services.ResourceService
}

type trainParams struct {
	UID       string `json:"uid"`
	InputPath string `json:"input_path,omitempty"`
	DescCol   string `json:"desc_col,omitempty"`
	ResCol    string `json:"res_col,omitempty"`
	LabelCol  string `json:"label_col,omitempty"`
}

var errParams = errors.New("invalid params")

func NewRPCHandler(deps RPCHandlerDeps) *RPCHandler {
	h := &RPCHandler{log: deps.Log.With("handler", "RPCHandler")}
	cls, jobs, res := deps.Classifiers, deps.Jobs, deps.Resources

	h.methods = map[string]rpcMethod{
		remote.MethodClassifierGetAll: func(ctx context.Context, _ json.RawMessage) (any, error) {
			return orEmpty(cls.GetAll(ctx))
		},
		remote.MethodClassifierGet: withUID(func(ctx context.Context, uid string) (any, error) {
			return found(cls.Get(ctx, uid))
		}),
		remote.MethodClassifierDelete: withUID(func(ctx context.Context, uid string) (any, error) {
			return true, cls.Remove(ctx, uid)
		}),
		remote.MethodClassifierEnable: withUID(func(ctx context.Context, uid string) (any, error) {
			return true, cls.SetEnabled(ctx, uid, true)
		}),
		remote.MethodClassifierDisable: withUID(func(ctx context.Context, uid string) (any, error) {
			return true, cls.SetEnabled(ctx, uid, false)
		}),
		remote.MethodClassifierTrain: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var p trainParams
			if err := decodeParams(raw, &p, &p.UID, &p.InputPath, &p.DescCol, &p.ResCol, &p.LabelCol); err != nil {
				return nil, err
			}
			if p.UID == "" {
				return nil, fmt.Errorf("%w: uid required", errParams)
			}
			return cls.Train(ctx, p.UID, services.TrainRequest{
				InputPath: p.InputPath,
				DescCol:   p.DescCol,
				ResCol:    p.ResCol,
				LabelCol:  p.LabelCol,
			})
		},
		remote.MethodJobGetStatus: withUID(func(ctx context.Context, uid string) (any, error) {
			return found(jobs.Status(ctx, uid))
		}),
		remote.MethodJobGetAll: func(ctx context.Context, _ json.RawMessage) (any, error) {
			return orEmpty(jobs.GetAll(ctx))
		},
		remote.MethodJobDelete: withUID(func(ctx context.Context, uid string) (any, error) {
			return true, jobs.Remove(ctx, uid)
		}),
		remote.MethodResourceGetAll: func(ctx context.Context, _ json.RawMessage) (any, error) {
			return orEmpty(res.GetAll(ctx))
		},
		remote.MethodResourceGet: withUID(func(ctx context.Context, uid string) (any, error) {
			return found(res.Get(ctx, uid))
		}),
		remote.MethodResourceDelete: withUID(func(ctx context.Context, uid string) (any, error) {
			return true, res.Remove(ctx, uid)
		}),
	}
	return h
}

// POST /api
func (h *RPCHandler) Serve(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRPCBody))
	if err != nil {
		h.reply(c, remote.Response{Error: &remote.Error{Code: remote.CodeParse, Message: err.Error()}})
		return
	}
	var req remote.Request
	if err := json.Unmarshal(body, &req); err != nil {
		h.reply(c, remote.Response{Error: &remote.Error{Code: remote.CodeParse, Message: "parse error: " + err.Error()}})
		return
	}
	resp := remote.Response{ID: req.ID}
	if req.JSONRPC != remote.Version {
		resp.Error = &remote.Error{Code: remote.CodeInvalidParams, Message: "jsonrpc must be \"2.0\""}
		h.reply(c, resp)
		return
	}
	method, ok := h.methods[req.Method]
	if !ok {
		resp.Error = &remote.Error{Code: remote.CodeMethodNotFound, Message: "method not found: " + req.Method}
		h.reply(c, resp)
		return
	}

	result, err := method(c.Request.Context(), req.Params)
	if err != nil {
		resp.Error = rpcError(err)
		if resp.Error.Code == remote.CodeServer {
			h.log.Warn("rpc call failed", "method", req.Method, "trace_id", ctxutil.TraceID(c.Request.Context()), "error", err)
		}
		h.reply(c, resp)
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		resp.Error = &remote.Error{Code: remote.CodeServer, Message: err.Error()}
		h.reply(c, resp)
		return
	}
	resp.Result = raw
	h.reply(c, resp)
}

func (h *RPCHandler) reply(c *gin.Context, resp remote.Response) {
	resp.JSONRPC = remote.Version
	c.JSON(http.StatusOK, resp)
}

func rpcError(err error) *remote.Error {
	code := remote.CodeServer
	switch {
	case errors.Is(err, types.ErrNotFound):
		code = remote.CodeNotFound
	case errors.Is(err, errParams), errors.Is(err, types.ErrInvalidArgument):
		code = remote.CodeInvalidParams
	}
	return &remote.Error{Code: code, Message: err.Error()}
}

// decodeParams accepts named params into out, or a positional string array
// assigned in order to fields.
func decodeParams(raw json.RawMessage, out any, fields ...*string) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return fmt.Errorf("%w: params required", errParams)
	}
	if raw[0] == '[' {
		var args []string
		if err := json.Unmarshal(raw, &args); err != nil {
			return fmt.Errorf("%w: %v", errParams, err)
		}
		if len(args) > len(fields) {
			return fmt.Errorf("%w: expected at most %d positional params, got %d", errParams, len(fields), len(args))
		}
		for i, a := range args {
			*fields[i] = a
		}
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", errParams, err)
	}
	return nil
}

func withUID(fn func(ctx context.Context, uid string) (any, error)) rpcMethod {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p remote.UIDParams
		if err := decodeParams(raw, &p, &p.UID); err != nil {
			return nil, err
		}
		if p.UID == "" {
			return nil, fmt.Errorf("%w: uid required", errParams)
		}
		return fn(ctx, p.UID)
	}
}

// found turns the store's (nil, nil) into ErrNotFound.
func found[T any](v *T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, types.ErrNotFound
	}
	return v, nil
}

func orEmpty[T any](v []T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = []T{}
	}
	return v, nil
}
