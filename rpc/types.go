// Package rpc exposes battle, betting and chain state via a JSON-RPC 2.0
// HTTP endpoint, and accepts signed transactions into the mempool.
package rpc

import (
	"encoding/json"
	"errors"

	"github.com/tolelom/kombat/core"
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error represents a JSON-RPC error object. Data carries the settlement
// error code and kind when the failure maps to a *core.Error.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData identifies a settlement error by name and category.
type ErrorData struct {
	Code string         `json:"code"`
	Kind core.ErrorKind `json:"kind"`
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnauthorized   = -32000
	CodeNotFound       = -32001
)

func errResponse(id any, code int, msg string) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: msg},
	}
}

// errorResponse maps err to a JSON-RPC error, attaching ErrorData for
// settlement errors and CodeNotFound for missing records.
func errorResponse(id any, err error) Response {
	code := CodeInternalError
	if errors.Is(err, core.ErrNotFound) {
		code = CodeNotFound
	}
	resp := errResponse(id, code, err.Error())
	if ce, ok := core.AsError(err); ok {
		resp.Error.Data = &ErrorData{Code: ce.Code, Kind: ce.Kind}
	}
	return resp
}

func okResponse(id, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}
