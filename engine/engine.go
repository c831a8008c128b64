package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"mockproxy/channel"
	"mockproxy/config"
	"mockproxy/events"
	"mockproxy/passthrough"
	"mockproxy/reqres"
	"mockproxy/rpc"
	"mockproxy/rules"
	"mockproxy/steps"
)

// Engine owns the live rule list, the named parameter table, the event bus
// and the currently-attached serialization channel (§4.7/K). It implements
// channel.RuleInstaller so a connected channel can install/remove/reset
// rules without either package importing the other's concrete type.
type Engine struct {
	cfg *config.EngineConfig
	Bus *events.Bus

	mu        sync.RWMutex
	rules     []*rules.Rule
	nextOrder uint64

	connMu sync.RWMutex
	conn   *jsonrpc2.Conn
	ch     *channel.Channel
}

var _ channel.RuleInstaller = (*Engine)(nil)

// New constructs an Engine from a validated, defaulted EngineConfig. It
// does not bind a listener — the caller (the root package's bootstrap) attaches it
// to a transport via server.Attach.
func New(cfg *config.EngineConfig) *Engine {
	return &Engine{cfg: cfg, Bus: events.NewBus()}
}

func (e *Engine) Config() *config.EngineConfig { return e.cfg }

func (e *Engine) params() map[string]config.ParamDef { return e.cfg.Params }

// SetActiveChannel records the serialization channel a newly-connected
// admin client attached, so future `callback` matchers/steps and `stream`
// steps route through it (§4.6, §9). Passing nil detaches it (disconnect).
func (e *Engine) SetActiveChannel(ch *channel.Channel) {
	e.connMu.Lock()
	e.ch = ch
	if ch != nil {
		e.conn = ch.Conn()
	} else {
		e.conn = nil
	}
	e.connMu.Unlock()
}

func (e *Engine) activeConn() *jsonrpc2.Conn {
	e.connMu.RLock()
	defer e.connMu.RUnlock()
	return e.conn
}

func (e *Engine) activeChannel() *channel.Channel {
	e.connMu.RLock()
	defer e.connMu.RUnlock()
	return e.ch
}

func (e *Engine) channelPredicate(conn *jsonrpc2.Conn, id string) rpc.PredicateCallback {
	return &channel.RemotePredicate{Conn: conn, ID: id}
}

func (e *Engine) channelResponder(conn *jsonrpc2.Conn, id string) rpc.ResponderCallback {
	return &channel.RemoteResponder{Conn: conn, ID: id}
}

// AddRules implements channel.RuleInstaller (§4.6 "rules/add", §3, §4.2).
// Each def is validated and appended in registration order; a failure on
// any one def still returns the ids successfully built before it, so the
// caller can tell which of a batch landed.
func (e *Engine) AddRules(defs []config.RuleDef) ([]string, error) {
	ids := make([]string, 0, len(defs))
	for _, def := range defs {
		r, err := e.buildRule(def)
		if err != nil {
			return ids, err
		}
		e.mu.Lock()
		r.RegisteredOrder = e.nextOrder
		e.nextOrder++
		e.rules = append(e.rules, r)
		e.mu.Unlock()
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// RemoveRule drops a rule by id and disposes its resources (§5).
func (e *Engine) RemoveRule(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range e.rules {
		if r.ID == id {
			r.Dispose()
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("rule-not-found: %q", id)
}

// Reset disposes and clears every rule (§4.6 "rules/reset", §5).
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.rules {
		r.Dispose()
	}
	e.rules = nil
	e.nextOrder = 0
	return nil
}

// Snapshot returns the live rule list for inspection (admin/debug surfaces).
func (e *Engine) Snapshot() []*rules.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*rules.Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

func (e *Engine) buildRule(def config.RuleDef) (*rules.Rule, error) {
	if err := config.ValidateRuleDef(&def); err != nil {
		return nil, err
	}
	id := def.ID
	if id == "" {
		id = newRuleID()
	}
	priority := uint(1)
	if def.Priority != nil {
		priority = *def.Priority
	}

	matchers := make([]rules.Matcher, len(def.Matchers))
	for i, md := range def.Matchers {
		m, err := e.buildMatcher(md)
		if err != nil {
			return nil, fmt.Errorf("rule %q matcher[%d]: %w", id, i, err)
		}
		matchers[i] = m
	}

	stepList := make([]rules.Step, len(def.Steps))
	for i, sd := range def.Steps {
		s, err := e.buildStep(sd)
		if err != nil {
			return nil, fmt.Errorf("rule %q step[%d]: %w", id, i, err)
		}
		stepList[i] = s
	}

	completion := buildCompletion(def.CompletionChecker)
	return rules.NewRule(id, priority, matchers, stepList, completion, true)
}

func newRuleID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "rule-" + hex.EncodeToString(b)
}

// stepsOf recovers the concrete steps.Step pipeline from a rule's []rules.Step
// — both interfaces are satisfied by the same concrete step types built in
// buildStep; rules only needs IsFinal, the executor needs Handle too.
func stepsOf(r *rules.Rule) ([]steps.Step, error) {
	out := make([]steps.Step, len(r.Steps))
	for i, s := range r.Steps {
		st, ok := s.(steps.Step)
		if !ok {
			return nil, fmt.Errorf("step[%d] of rule %q does not implement the step executor interface", i, r.ID)
		}
		out[i] = st
	}
	return out, nil
}

// HandleRequest implements §4.2's top-level algorithm: select a rule (or
// apply the fallback policy), record the match, run its step pipeline, and
// resolve its recorded Future with the completed request.
func (e *Engine) HandleRequest(ctx context.Context, req *reqres.Fingerprint, res steps.ResponseWriter, ws *steps.WebSocketExec) error {
	active := e.Snapshot()
	rule, err := rules.Select(req, active)
	if err != nil {
		return err
	}

	e.Bus.Publish("request", requestSummary(req))

	if rule == nil {
		return e.applyFallback(ctx, req, res, ws)
	}

	_, future := rule.RecordMatch()

	pipeline, err := stepsOf(rule)
	if err != nil {
		return err
	}

	completed := &reqres.CompletedRequest{
		Method:     req.Method,
		URL:        req.URL.String(),
		RawHeaders: req.RawHeaders,
		Body:       req.Body,
		StartedAt:  time.Now(),
	}

	exec := &steps.Exec{Req: req, Res: res, Events: e.Bus, Completed: completed, WS: ws}
	runErr := steps.Run(ctx, exec, pipeline)

	completed.FinishedAt = time.Now()
	completed.Aborted = runErr != nil
	if future != nil {
		future.Resolve(completed)
	}

	if runErr != nil {
		if _, ok := runErr.(*steps.AbortError); ok {
			e.Bus.Publish("abort", req.URL.String())
		}
		return runErr
	}
	e.Bus.Publish("response", completed)
	return nil
}

// applyFallback implements §4.2 step 4: no rule matched.
func (e *Engine) applyFallback(ctx context.Context, req *reqres.Fingerprint, res steps.ResponseWriter, ws *steps.WebSocketExec) error {
	switch e.cfg.Fallback {
	case config.FallbackClose:
		return &steps.AbortError{}
	case config.FallbackPassthrough:
		exec := &steps.Exec{Req: req, Res: res, Events: e.Bus, WS: ws}
		step := &steps.PassThrough{Forwarder: passthrough.NewHTTPForwarder(nil, e.params())}
		_, err := step.Handle(ctx, exec)
		return err
	default: // FallbackUnmatchedRequest
		res.WriteHeader(503, "", map[string]string{"Content-Type": "text/plain"})
		_, err := res.Write([]byte("no rule matched this request"))
		return err
	}
}

func requestSummary(req *reqres.Fingerprint) map[string]interface{} {
	return map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	}
}
