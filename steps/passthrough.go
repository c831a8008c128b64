package steps

import "context"

// Forwarder performs the upstream HTTP pass-through (§4.4): target
// resolution, loop detection, transforms, TLS policy, H1/H2 bridging, DNS
// caching, upstream proxy resolution, and error classification. Package
// passthrough implements this so steps does not need to know any of that
// mechanics — only that forwarding either writes a response through e.Res or
// returns an error for the executor to classify.
type Forwarder interface {
	Forward(ctx context.Context, e *Exec) error
}

// PassThrough forwards the request to its resolved upstream target,
// applying any configured transforms (§4.4). Final.
type PassThrough struct {
	Forwarder Forwarder
}

func (s *PassThrough) IsFinal() bool { return true }

func (s *PassThrough) Handle(ctx context.Context, e *Exec) (Result, error) {
	if err := s.Forwarder.Forward(ctx, e); err != nil {
		return Result{}, err
	}
	return Result{Continue: false}, nil
}

// Dispose releases the forwarder's resources (agent pools, DNS cache, TLS
// contexts) if it exposes them (§5).
func (s *PassThrough) Dispose() {
	if d, ok := s.Forwarder.(interface{ Dispose() }); ok {
		d.Dispose()
	}
}

// WsForwarder performs the WebSocket pass-through (§4.5).
type WsForwarder interface {
	ForwardWebSocket(ctx context.Context, e *Exec) error
}

// WsPassThrough upgrades the downstream connection and tunnels it to the
// resolved upstream WebSocket (§4.5). Final.
type WsPassThrough struct {
	Forwarder WsForwarder
}

func (s *WsPassThrough) IsFinal() bool { return true }

func (s *WsPassThrough) Handle(ctx context.Context, e *Exec) (Result, error) {
	if err := s.Forwarder.ForwardWebSocket(ctx, e); err != nil {
		return Result{}, err
	}
	return Result{Continue: false}, nil
}

// Dispose releases the forwarder's resources if it exposes them (§5).
func (s *WsPassThrough) Dispose() {
	if d, ok := s.Forwarder.(interface{ Dispose() }); ok {
		d.Dispose()
	}
}
