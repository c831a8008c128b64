package steps

import "context"

// CloseConnection ends the downstream socket via AbortError (§4.3). Final.
type CloseConnection struct{}

func (s *CloseConnection) IsFinal() bool { return true }

func (s *CloseConnection) Handle(ctx context.Context, e *Exec) (Result, error) {
	return Result{}, &AbortError{Reset: false}
}

// ResetConnection forcibly RSTs the downstream socket, where the platform
// supports it (§4.3). Final.
type ResetConnection struct{}

func (s *ResetConnection) IsFinal() bool { return true }

func (s *ResetConnection) Handle(ctx context.Context, e *Exec) (Result, error) {
	return Result{}, &AbortError{Reset: true}
}

// Timeout never resolves, holding the connection open until the client
// gives up or the caller's context is canceled (§4.3). Final.
type Timeout struct{}

func (s *Timeout) IsFinal() bool { return true }

func (s *Timeout) Handle(ctx context.Context, e *Exec) (Result, error) {
	<-ctx.Done()
	return Result{}, ctx.Err()
}
