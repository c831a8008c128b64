package steps

import (
	"context"
	"time"
)

// Delay sleeps the pipeline for a fixed duration before continuing to the
// next step (§4.3). Non-final.
type Delay struct {
	Duration time.Duration
}

func (s *Delay) IsFinal() bool { return false }

func (s *Delay) Handle(ctx context.Context, e *Exec) (Result, error) {
	timer := time.NewTimer(s.Duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return Result{Continue: true}, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// WaitForRequestBody suspends the pipeline until the request body has been
// fully received (§4.3). Non-final.
type WaitForRequestBody struct{}

func (s *WaitForRequestBody) IsFinal() bool { return false }

func (s *WaitForRequestBody) Handle(ctx context.Context, e *Exec) (Result, error) {
	if _, err := e.Req.Body.AsBuffer(); err != nil {
		return Result{}, err
	}
	return Result{Continue: true}, nil
}
