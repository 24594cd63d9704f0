package server

import (
	"errors"
	"fmt"

	"github.com/dshills/jsonls/internal/jsonrpc"
)

// Standard errors returned by the server.
var (
	// ErrNotInitialized indicates a request arrived before initialize.
	ErrNotInitialized = errors.New("server not initialized")

	// ErrAlreadyInitialized indicates a second initialize request.
	ErrAlreadyInitialized = errors.New("server already initialized")

	// ErrShuttingDown indicates a request arrived after shutdown.
	ErrShuttingDown = errors.New("server is shutting down")

	// ErrInvalidParams indicates params that could not be decoded.
	ErrInvalidParams = errors.New("invalid params")

	errMissingParams = errors.New("missing params")
)

// toResponseError maps server errors onto JSON-RPC error codes.
func toResponseError(err error) error {
	var rerr *jsonrpc.ResponseError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &rerr):
		return rerr
	case errors.Is(err, ErrNotInitialized):
		return jsonrpc.NewResponseError(jsonrpc.CodeServerNotInitialized, err.Error(), nil)
	case errors.Is(err, ErrAlreadyInitialized), errors.Is(err, ErrShuttingDown):
		return jsonrpc.NewResponseError(jsonrpc.CodeInvalidRequest, err.Error(), nil)
	case errors.Is(err, ErrInvalidParams):
		return jsonrpc.NewResponseError(jsonrpc.CodeInvalidParams, err.Error(), nil)
	}
	return err
}

func invalidParams(method string, err error) error {
	return fmt.Errorf("%w for %s: %v", ErrInvalidParams, method, err)
}
