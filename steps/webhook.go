package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Webhook asynchronously POSTs a description of each selected event
// (request/response) to a configured URL (§4.3). Failures are reported on
// the event bus but never fail the pipeline. Non-final.
type Webhook struct {
	URL    string
	Events []string // subset of {"request", "response"}
	Client *http.Client
}

func (s *Webhook) IsFinal() bool { return false }

func (s *Webhook) Handle(ctx context.Context, e *Exec) (Result, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	for _, ev := range s.Events {
		payload, err := json.Marshal(map[string]interface{}{
			"event":  ev,
			"method": e.Req.Method,
			"url":    e.Req.URL.String(),
		})
		if err != nil {
			e.Events.Publish("client-error", err.Error())
			continue
		}
		go s.post(client, payload, e)
	}
	return Result{Continue: true}, nil
}

func (s *Webhook) post(client *http.Client, payload []byte, e *Exec) {
	req, err := http.NewRequest(http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		e.Events.Publish("client-error", err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		e.Events.Publish("client-error", err.Error())
		return
	}
	resp.Body.Close()
}
