package protocol

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// decodeRequest strips the random id so the rest can be compared.
func decodeRequest(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	require.Contains(t, m, "id")
	delete(m, "id")
	return m
}

func TestRequestWireFormat(t *testing.T) {
	raw, err := EncodeRequest(MethodAdd, AddArgs{Name: "abc", Entry: "e", Mode: "short"})
	require.NoError(t, err)

	got, err := json.Marshal(decodeRequest(t, raw))
	require.NoError(t, err)
	require.JSONEq(t,
		`{"jsonrpc":"2.0","method":"directory.Add","params":[{"Name":"abc","Entry":"e","Mode":"short"}]}`,
		string(got))
}

func TestListWireFormat(t *testing.T) {
	raw, err := EncodeRequest(MethodList, ListArgs{Name: "n", Entries: []string{}})
	require.NoError(t, err)
	got, err := json.Marshal(decodeRequest(t, raw))
	require.NoError(t, err)
	require.JSONEq(t,
		`{"jsonrpc":"2.0","method":"directory.List","params":[{"Name":"n","Entries":[],"Limit":0}]}`,
		string(got))
}

func TestAuthFieldsAreFlattened(t *testing.T) {
	args := AddArgs{Name: "n", Entry: "e", Auth: Auth{PublicKey: "pk", Algorithm: "nacl", Signature: "sig", Timestamp: 42}}
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	require.JSONEq(t,
		`{"Name":"n","Entry":"e","Mode":"","PublicKey":"pk","Algorithm":"nacl","Signature":"sig","Timestamp":42}`,
		string(raw))
	require.Equal(t, "n.42.e", args.SignedMessage())

	list := ListArgs{Name: "n", Auth: Auth{Timestamp: 7}}
	require.Equal(t, "n.7", list.SignedMessage())
	rm := RemoveArgs{Name: "n", Entry: "x", Auth: Auth{Timestamp: 7}}
	require.Equal(t, "n.7.x", rm.SignedMessage())
}

func TestDecodeResponse(t *testing.T) {
	var st StatusReply
	require.NoError(t, DecodeResponse(strings.NewReader(`{"jsonrpc":"2.0","id":3,"result":{"Status":"success"}}`), &st))
	require.Equal(t, StatusSuccess, st.Status)

	err := DecodeResponse(strings.NewReader(`{"jsonrpc":"2.0","id":4,"error":{"code":-32005,"message":"rate limited"}}`), &st)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, CodeRateLimited, rpcErr.Code)

	// JSON-RPC 1.0 servers send a null error on success and a bare string
	// on failure.
	st = StatusReply{}
	require.NoError(t, DecodeResponse(strings.NewReader(`{"id":5,"result":{"Status":"success"},"error":null}`), &st))
	require.Equal(t, StatusSuccess, st.Status)
	err = DecodeResponse(strings.NewReader(`{"id":6,"result":null,"error":"boom"}`), &st)
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, CodeBackendFailure, rpcErr.Code)

	big := `{"jsonrpc":"2.0","id":1,"result":"` + strings.Repeat("a", MaxBodySize) + `"}`
	require.ErrorIs(t, DecodeResponse(strings.NewReader(big), &st), ErrBodyTooLarge)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteError(rec, CodeRateLimited, "rate limited"))
	var env map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, Version, env["jsonrpc"])
	require.Contains(t, env, "id")
	require.Nil(t, env["id"])

	var st StatusReply
	err := DecodeResponse(rec.Body, &st)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, CodeRateLimited, rpcErr.Code)
}

func TestMethodNames(t *testing.T) {
	require.Equal(t, "directory.List", MethodList.String())
	require.Equal(t, "directory.Remove", MethodRemove.String())
	require.Equal(t, "UNKNOWN", Method(0).String())
}
