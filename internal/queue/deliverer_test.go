package queue_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unclebandit/outreach-engine/internal/engine"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/queue"
	"github.com/unclebandit/outreach-engine/internal/repository"
)

func scheduledContact(t *testing.T) (*engine.Engine, *repository.MemoryProgressRepository, *repository.MemoryMessageRepository) {
	t.Helper()

	campaigns := repository.NewMemoryCampaignRepository()
	graphs := repository.NewMemoryGraphRepository()
	progress := repository.NewMemoryProgressRepository()
	messages := repository.NewMemoryMessageRepository()

	require.NoError(t, progress.Create(&model.ContactProgress{
		CampaignID:    1,
		ContactID:     100,
		State:         model.StateScheduled,
		PendingNodeID: "f1",
		EnrolledAt:    time.Now(),
	}))

	eng := engine.New(engine.Config{}, campaigns, graphs, progress, nil)
	return eng, progress, messages
}

func decisionPayload(t *testing.T) []byte {
	t.Helper()
	payload, err := json.Marshal(engine.SendDecision{
		CampaignID:     1,
		ContactID:      100,
		NodeID:         "f1",
		TemplateID:     "tpl-f1",
		SendAt:         time.Now(),
		IdempotencyKey: "1:100:f1",
	})
	require.NoError(t, err)
	return payload
}

func TestDeliverConfirmsDispatch(t *testing.T) {
	eng, progress, messages := scheduledContact(t)
	d := queue.NewDeliverer(eng, messages, func(engine.SendDecision) error { return nil })

	require.NoError(t, d.Deliver(decisionPayload(t)))

	p, err := progress.Get(1, 100)
	require.NoError(t, err)
	assert.Equal(t, model.StateSent, p.State)
	assert.Equal(t, "f1", p.CurrentNodeID)
	assert.Empty(t, p.PendingNodeID)
	require.NotNil(t, p.LastSentAt)

	sent, err := messages.ListByContact(1, 100)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, model.MessageOutbound, sent[0].Direction)
	assert.Equal(t, "f1", sent[0].NodeID)
	assert.Equal(t, "tpl-f1", sent[0].TemplateID)
}

func TestDeliverRollsBackOnTransportFailure(t *testing.T) {
	eng, progress, messages := scheduledContact(t)
	d := queue.NewDeliverer(eng, messages, func(engine.SendDecision) error {
		return fmt.Errorf("gateway down")
	})

	err := d.Deliver(decisionPayload(t))
	require.Error(t, err)

	p, err := progress.Get(1, 100)
	require.NoError(t, err)
	assert.Equal(t, model.StateAwaitingCondition, p.State)
	assert.Empty(t, p.PendingNodeID)

	sent, err := messages.ListByContact(1, 100)
	require.NoError(t, err)
	assert.Empty(t, sent)
}

func TestDeliverDropsMalformedPayload(t *testing.T) {
	eng, _, messages := scheduledContact(t)
	called := false
	d := queue.NewDeliverer(eng, messages, func(engine.SendDecision) error {
		called = true
		return nil
	})

	// Malformed payloads must not be retried.
	assert.NoError(t, d.Deliver([]byte("{broken")))
	assert.False(t, called)
}

func TestInMemoryQueueDeliversToSubscriber(t *testing.T) {
	q := queue.NewInMemoryQueue()
	got := make(chan []byte, 1)
	require.NoError(t, q.Subscribe("dispatch", func(payload []byte) error {
		got <- payload
		return nil
	}))

	require.NoError(t, q.Publish("dispatch", []byte("hello")))
	select {
	case payload := <-got:
		assert.Equal(t, []byte("hello"), payload)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the payload")
	}

	assert.Error(t, q.Publish("ghost", []byte("x")))
}
