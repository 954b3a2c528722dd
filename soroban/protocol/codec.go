package protocol

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/rpc/v2/json2"
)

const (
	// Version is the JSON-RPC version spoken by clients and server.
	Version = "2.0"

	// MaxBodySize limits a single request or response body.
	MaxBodySize = 1 << 20 // 1 MiB
)

// JSON-RPC error codes.
const (
	CodeParseError     = json2.E_PARSE
	CodeInvalidRequest = json2.E_INVALID_REQ
	CodeMethodNotFound = json2.E_NO_METHOD
	CodeInvalidParams  = json2.E_BAD_PARAMS
	CodeInternalError  = json2.E_INTERNAL
	CodeBackendFailure = json2.E_SERVER

	CodeUnauthorized json2.ErrorCode = -32001
	CodeRateLimited  json2.ErrorCode = -32005
)

var ErrBodyTooLarge = errors.New("protocol: body too large")

// Error is a JSON-RPC error object.
type Error = json2.Error

func NewError(code json2.ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// EncodeRequest encodes a call of m. args travel as the single element of
// a positional params array, which JSON-RPC 1.0 and 2.0 directories both
// accept.
func EncodeRequest(m Method, args any) ([]byte, error) {
	return json2.EncodeClientRequest(m.String(), []any{args})
}

// DecodeResponse decodes a response of at most MaxBodySize bytes into
// reply. A JSON-RPC error is returned as *Error.
func DecodeResponse(r io.Reader, reply any) error {
	lr := &io.LimitedReader{R: r, N: MaxBodySize + 1}
	err := json2.DecodeClientResponse(lr, reply)
	if lr.N <= 0 {
		return ErrBodyTooLarge
	}
	return err
}

type errorResponse struct {
	Version string           `json:"jsonrpc"`
	Error   *Error           `json:"error"`
	ID      *json.RawMessage `json:"id"`
}

// WriteError answers a request rejected before it was decoded, so the
// response carries a null id.
func WriteError(w http.ResponseWriter, code json2.ErrorCode, message string) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	return json.NewEncoder(w).Encode(errorResponse{
		Version: Version,
		Error:   NewError(code, message),
	})
}
