package engine

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrLoopAlreadyRunning = errors.New("evaluation loop already running")
	ErrLoopNotRunning     = errors.New("evaluation loop not running")
)

type loopState struct {
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Start begins the periodic evaluation loop over all active campaigns.
func (e *Engine) Start(ctx context.Context) error {
	e.loop.mu.Lock()
	defer e.loop.mu.Unlock()

	if e.loop.running {
		return ErrLoopAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	e.loop.cancel = cancel
	e.loop.running = true

	e.logger.Info().
		Dur("tick_interval", e.config.TickInterval).
		Msg("evaluation loop starting")

	e.loop.wg.Add(1)
	go e.runLoop(ctx)
	return nil
}

// Stop halts the loop and waits for the in-flight tick to finish. Already
// dispatched sends are not rolled back.
func (e *Engine) Stop() error {
	e.loop.mu.Lock()
	if !e.loop.running {
		e.loop.mu.Unlock()
		return ErrLoopNotRunning
	}
	e.loop.cancel()
	e.loop.running = false
	e.loop.mu.Unlock()

	e.loop.wg.Wait()
	e.logger.Info().Msg("evaluation loop stopped")
	return nil
}

func (e *Engine) runLoop(ctx context.Context) {
	defer e.loop.wg.Done()

	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.tick(ctx, now)
		}
	}
}

// tick evaluates every active campaign. One campaign's failure does not
// block the others.
func (e *Engine) tick(ctx context.Context, now time.Time) {
	ids, err := e.campaigns.ListActiveIDs()
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to list active campaigns")
		return
	}

	for _, id := range ids {
		decisions, err := e.EvaluateCampaign(ctx, id, now)
		if err != nil {
			e.logger.Error().Err(err).
				Int("campaign_id", id).
				Msg("campaign evaluation failed")
			continue
		}
		if len(decisions) > 0 {
			e.logger.Debug().
				Int("campaign_id", id).
				Int("decisions", len(decisions)).
				Msg("tick complete")
		}
	}
}
