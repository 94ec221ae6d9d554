// Package queue carries send decisions from the engine to the dispatch
// worker.
package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/unclebandit/outreach-engine/internal/logging"
)

// Queue is the dispatch transport boundary.
type Queue interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler func(payload []byte) error) error
}

// InMemoryQueue is a process-local queue with retry, used for tests and
// single-binary runs.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload []byte) error
	logger   zerolog.Logger
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(payload []byte) error),
		logger:   logging.Component("queue"),
	}
}

type job struct {
	payload    []byte
	retryCount int
	maxRetries int
}

// Publish delivers the payload to all subscribers asynchronously.
func (q *InMemoryQueue) Publish(topic string, payload []byte) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	j := job{payload: payload, maxRetries: 3}
	for _, handler := range handlers {
		go q.process(topic, handler, j)
	}
	return nil
}

func (q *InMemoryQueue) process(topic string, handler func(payload []byte) error, j job) {
	for j.retryCount <= j.maxRetries {
		err := handler(j.payload)
		if err == nil {
			return
		}

		j.retryCount++
		q.logger.Warn().Err(err).
			Str("topic", topic).
			Int("attempt", j.retryCount).
			Int("max_retries", j.maxRetries).
			Msg("job failed")

		if j.retryCount > j.maxRetries {
			q.logger.Error().
				Str("topic", topic).
				Msg("job permanently failed")
			return
		}

		// Backoff grows with each attempt.
		time.Sleep(time.Duration(j.retryCount*500) * time.Millisecond)
	}
}

func (q *InMemoryQueue) Subscribe(topic string, handler func(payload []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}
