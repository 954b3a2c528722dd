// Package protocol defines the JSON-RPC 2.0 messages spoken between
// soroban clients and a directory server.
package protocol

import "fmt"

// Service is the JSON-RPC service name of the directory.
const Service = "directory"

// Method identifies a directory call.
type Method uint8

const (
	MethodList   Method = 1
	MethodAdd    Method = 2
	MethodRemove Method = 3
)

func (m Method) String() string {
	switch m {
	case MethodList:
		return Service + ".List"
	case MethodAdd:
		return Service + ".Add"
	case MethodRemove:
		return Service + ".Remove"
	default:
		return "UNKNOWN"
	}
}

// Status values of Add and Remove results.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Auth is the optional signature a call carries for names covered by a
// confidential rule. Timestamp is in Unix nanoseconds.
type Auth struct {
	PublicKey string `json:",omitempty"`
	Algorithm string `json:",omitempty"`
	Signature string `json:",omitempty"`
	Timestamp int64  `json:",omitempty"`
}

// ListArgs are the parameters of directory.List.
type ListArgs struct {
	Name    string
	Entries []string
	Limit   int
	Auth
}

// SignedMessage is the text a signer signs for this call: "name.timestamp".
func (a *ListArgs) SignedMessage() string {
	return fmt.Sprintf("%s.%d", a.Name, a.Timestamp)
}

// ListReply is the result of directory.List.
type ListReply struct {
	Name    string
	Entries []string
}

// AddArgs are the parameters of directory.Add.
type AddArgs struct {
	Name  string
	Entry string
	Mode  string
	Auth
}

// SignedMessage is "name.timestamp.entry".
func (a *AddArgs) SignedMessage() string {
	return fmt.Sprintf("%s.%d.%s", a.Name, a.Timestamp, a.Entry)
}

// RemoveArgs are the parameters of directory.Remove.
type RemoveArgs struct {
	Name  string
	Entry string
	Auth
}

// SignedMessage is "name.timestamp.entry".
func (a *RemoveArgs) SignedMessage() string {
	return fmt.Sprintf("%s.%d.%s", a.Name, a.Timestamp, a.Entry)
}

// StatusReply is the result of directory.Add and directory.Remove.
type StatusReply struct {
	Status string
}
