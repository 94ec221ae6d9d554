package queue

import (
	"context"
	"encoding/json"

	"github.com/unclebandit/outreach-engine/internal/engine"
)

// Dispatcher bridges the engine to a queue: send decisions are published as
// JSON for the worker to deliver.
type Dispatcher struct {
	Queue Queue
	Topic string
}

var _ engine.Dispatcher = (*Dispatcher)(nil)

func (d *Dispatcher) Dispatch(_ context.Context, decision engine.SendDecision) error {
	payload, err := json.Marshal(decision)
	if err != nil {
		return err
	}
	return d.Queue.Publish(d.Topic, payload)
}
