package rpc

import (
	"errors"
	"fmt"
)

// ErrRetriesExhausted is returned once every attempt of a call failed
var ErrRetriesExhausted = errors.New("indexer call retries exhausted")

// ErrIncompatibleAPI is returned when the indexer API major version is not
// supported
var ErrIncompatibleAPI = errors.New("indexer API version is not compatible")

// Error is a JSON-RPC error object returned by the indexer. It is not
// retried.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
