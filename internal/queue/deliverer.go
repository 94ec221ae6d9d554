package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/unclebandit/outreach-engine/internal/engine"
	"github.com/unclebandit/outreach-engine/internal/logging"
	"github.com/unclebandit/outreach-engine/internal/model"
)

// Transport hands a send decision to the delivery channel (SMS gateway,
// email provider).
type Transport func(decision engine.SendDecision) error

// MessageRecorder persists the outbound message after a successful send.
type MessageRecorder interface {
	Create(m *model.Message) error
}

// Deliverer consumes send decisions and confirms the outcome back into
// contact progress. Both the worker binary and the in-memory queue
// subscriber run payloads through it.
type Deliverer struct {
	Engine    *engine.Engine
	Messages  MessageRecorder
	Transport Transport

	logger zerolog.Logger
}

func NewDeliverer(eng *engine.Engine, messages MessageRecorder, transport Transport) *Deliverer {
	return &Deliverer{
		Engine:    eng,
		Messages:  messages,
		Transport: transport,
		logger:    logging.Component("deliverer"),
	}
}

// Deliver decodes one decision, sends it, and records the result. A transport
// failure rolls the contact back to awaiting so a later tick can retry, and
// the error is returned so the queue's own retry applies too.
func (d *Deliverer) Deliver(payload []byte) error {
	var decision engine.SendDecision
	if err := json.Unmarshal(payload, &decision); err != nil {
		// Malformed payloads are dropped, not retried.
		d.logger.Error().Err(err).Msg("invalid dispatch payload")
		return nil
	}

	if err := d.Transport(decision); err != nil {
		if markErr := d.Engine.MarkFailed(decision.CampaignID, decision.ContactID, decision.NodeID, err.Error()); markErr != nil {
			d.logger.Error().Err(markErr).
				Str("idempotency_key", decision.IdempotencyKey).
				Msg("failed to roll back progress")
		}
		return fmt.Errorf("transport send: %w", err)
	}

	sentAt := time.Now()
	if err := d.Engine.MarkDispatched(decision.CampaignID, decision.ContactID, decision.NodeID, sentAt); err != nil {
		return err
	}

	if d.Messages != nil {
		msg := &model.Message{
			CampaignID: decision.CampaignID,
			ContactID:  decision.ContactID,
			Direction:  model.MessageOutbound,
			NodeID:     decision.NodeID,
			TemplateID: decision.TemplateID,
			SentAt:     sentAt,
		}
		if err := d.Messages.Create(msg); err != nil {
			d.logger.Warn().Err(err).
				Str("idempotency_key", decision.IdempotencyKey).
				Msg("failed to record outbound message")
		}
	}

	d.logger.Info().
		Int("campaign_id", decision.CampaignID).
		Int("contact_id", decision.ContactID).
		Str("node_id", decision.NodeID).
		Str("template_id", decision.TemplateID).
		Msg("delivered")
	return nil
}

// StartDispatchSubscriber wires a deliverer onto an in-process queue.
func StartDispatchSubscriber(q Queue, topic string, d *Deliverer) error {
	return q.Subscribe(topic, d.Deliver)
}
