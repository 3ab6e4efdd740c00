package remote

import (
	"encoding/json"
	"fmt"
)

const Version = "2.0"

// Error codes carried in Error.Code.
const (
	CodeParse          = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeNotFound       = -32004
	CodeServer         = -32000
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      string          `json:"id"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

// UIDParams is the parameter object of every single-entity method.
type UIDParams struct {
	UID string `json:"uid"`
}

// Method names served under POST /api.
const (
	MethodClassifierGetAll  = "classifier.get_all"
	MethodClassifierGet     = "classifier.get"
	MethodClassifierDelete  = "classifier.delete"
	MethodClassifierEnable  = "classifier.enable"
	MethodClassifierDisable = "classifier.disable"
	MethodClassifierTrain   = "classifier.train"
	MethodJobGetStatus      = "job.get_status"
	MethodJobGetAll         = "job.get_all"
	MethodJobDelete         = "job.delete"
	MethodResourceGetAll    = "resource.get_all"
	MethodResourceGet       = "resource.get"
	MethodResourceDelete    = "resource.delete"
)

// DownloadPath is the resource archive endpoint relative to the peer's API url.
const DownloadPath = "/resource.download/"

// APIUser is the basic-auth user name; the API key is the password.
const APIUser = "api"
