package server

import (
	"context"

	"github.com/dshills/jsonls/internal/jsonrpc"
)

// workDoneProgressCreateParams is the payload of
// window/workDoneProgress/create.
type workDoneProgressCreateParams struct {
	Token jsonrpc.ProgressToken `json:"token"`
}

// withProgress runs fn inside a work-done progress stream when the client
// supports server-initiated progress. fn runs without one when the client
// declines to create the token.
func (s *Server) withProgress(ctx context.Context, title, message string, fn func() error) error {
	s.mu.RLock()
	enabled := s.workDoneProgress
	s.mu.RUnlock()
	if !enabled {
		return fn()
	}

	token := jsonrpc.NewProgressToken()
	if err := s.conn.Call(ctx, methodWorkDoneProgressCreate, workDoneProgressCreateParams{Token: token}, nil); err != nil {
		s.logger.Debug("Creating progress %s failed: %v", token, err)
		return fn()
	}

	s.sendProgress(token, jsonrpc.WorkDoneProgressBegin{Kind: "begin", Title: title, Message: message})
	err := fn()
	end := jsonrpc.WorkDoneProgressEnd{Kind: "end"}
	if err != nil {
		end.Message = err.Error()
	}
	s.sendProgress(token, end)
	return err
}

func (s *Server) sendProgress(token jsonrpc.ProgressToken, value any) {
	if err := s.conn.SendProgress(jsonrpc.WorkDoneProgress, token, value); err != nil {
		s.logger.Debug("Reporting progress %s failed: %v", token, err)
	}
}
