// Package engine orchestrates follow-up sequencing: it decides, per contact
// per campaign, whether and when the next message in the sequence goes out.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/unclebandit/outreach-engine/internal/condition"
	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/graph"
	"github.com/unclebandit/outreach-engine/internal/logging"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/schedule"
)

// CampaignStore is the campaign state the engine reads.
type CampaignStore interface {
	GetByID(id int) (*model.Campaign, error)
	ListActiveIDs() ([]int, error)
	SetAttentionRequired(id int, required bool) error
}

// GraphStore loads a campaign's follow-up graph.
type GraphStore interface {
	GetGraph(campaignID int) (*graph.Graph, error)
}

// ProgressStore tracks per-contact sequence position.
type ProgressStore interface {
	Get(campaignID, contactID int) (*model.ContactProgress, error)
	ListByCampaign(campaignID int) ([]*model.ContactProgress, error)
	Update(p *model.ContactProgress) error
}

// Dispatcher hands send decisions to the external transport. Dispatch is
// fire-and-forget: the engine treats it as offered, not confirmed.
type Dispatcher interface {
	Dispatch(ctx context.Context, d SendDecision) error
}

// SendDecision is the engine's output: send this template to this contact at
// this instant. The idempotency key makes duplicate dispatch attempts
// downstream no-ops.
type SendDecision struct {
	CampaignID     int       `json:"campaign_id"`
	ContactID      int       `json:"contact_id"`
	NodeID         string    `json:"node_id"`
	TemplateID     string    `json:"template_id"`
	SendAt         time.Time `json:"send_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

type Config struct {
	// TickInterval is how often active campaigns are re-evaluated.
	// Default: 1 minute.
	TickInterval time.Duration
}

func DefaultConfig() Config {
	return Config{TickInterval: time.Minute}
}

type Engine struct {
	config     Config
	campaigns  CampaignStore
	graphs     GraphStore
	progress   ProgressStore
	dispatcher Dispatcher
	logger     zerolog.Logger

	contactLocks  *keyedMutex
	campaignLocks *campaignLocks

	loop loopState
}

func New(config Config, campaigns CampaignStore, graphs GraphStore, progress ProgressStore, dispatcher Dispatcher) *Engine {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultConfig().TickInterval
	}
	return &Engine{
		config:        config,
		campaigns:     campaigns,
		graphs:        graphs,
		progress:      progress,
		dispatcher:    dispatcher,
		logger:        logging.Component("engine"),
		contactLocks:  newKeyedMutex(),
		campaignLocks: newCampaignLocks(),
	}
}

// EvaluateCampaign is the pull-based tick entry point. It scans every
// enrolled contact of the campaign and returns the send decisions emitted.
// Non-active campaigns are frozen and produce nothing.
func (e *Engine) EvaluateCampaign(ctx context.Context, campaignID int, now time.Time) ([]SendDecision, error) {
	c, err := e.campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignActive {
		return nil, nil
	}

	// Evaluation holds the campaign read lock; graph edits take the write
	// lock. The graph is loaded under the lock so an edit cannot interleave
	// between load and validate.
	unlock := e.campaignLocks.rlock(campaignID)
	defer unlock()

	g, err := e.graphs.GetGraph(campaignID)
	if err != nil {
		return nil, err
	}

	if err := g.Validate(); err != nil {
		e.flagAttention(campaignID, err)
		return nil, appErrors.NewConfigurationError(campaignID, "invalid graph: %v", err)
	}

	progresses, err := e.progress.ListByCampaign(campaignID)
	if err != nil {
		return nil, err
	}

	var decisions []SendDecision
	for _, p := range progresses {
		select {
		case <-ctx.Done():
			return decisions, ctx.Err()
		default:
		}

		d, err := e.evaluateContactLocked(ctx, c, g, p, now)
		if err != nil {
			var confErr *appErrors.ConfigurationError
			if errors.As(err, &confErr) {
				// Fatal to this campaign's evaluation; the contact keeps its
				// last good state.
				e.flagAttention(campaignID, err)
				return decisions, err
			}
			// Scheduling and dispatch errors are per-contact: log and retry
			// the contact on the next tick.
			e.logger.Warn().Err(err).
				Int("campaign_id", campaignID).
				Int("contact_id", p.ContactID).
				Msg("contact evaluation failed, will retry next tick")
			continue
		}
		if d != nil {
			decisions = append(decisions, *d)
		}
	}
	return decisions, nil
}

// OnResponseReceived is the push-based event entry point. It records the
// inbound classification and immediately re-evaluates the contact so
// response-triggered branches fire without waiting for the next tick.
func (e *Engine) OnResponseReceived(ctx context.Context, campaignID, contactID int, msg *model.Message) error {
	c, err := e.campaigns.GetByID(campaignID)
	if err != nil {
		return err
	}

	unlockContact := e.contactLocks.lock(contactKey(campaignID, contactID))
	p, err := e.progress.Get(campaignID, contactID)
	if err != nil {
		unlockContact()
		return err
	}

	at := msg.SentAt
	p.LastResponseAt = &at
	p.LastResponseType = msg.ResponseType
	p.LastInboundBody = msg.Body
	if p.State == model.StateAwaitingCondition || p.State == model.StateSent {
		// A response reopens evaluation from the just-sent node.
		p.State = model.StateSent
	}
	if err := e.progress.Update(p); err != nil {
		unlockContact()
		return err
	}
	unlockContact()

	if c.Status != model.CampaignActive {
		return nil
	}

	unlock := e.campaignLocks.rlock(campaignID)
	defer unlock()

	g, err := e.graphs.GetGraph(campaignID)
	if err != nil {
		return err
	}

	if err := g.Validate(); err != nil {
		e.flagAttention(campaignID, err)
		return appErrors.NewConfigurationError(campaignID, "invalid graph: %v", err)
	}

	_, err = e.evaluateContactLocked(ctx, c, g, p, time.Now())
	return err
}

// MarkDispatched confirms a send decision: the transport accepted the
// message. The contact advances to the dispatched node.
func (e *Engine) MarkDispatched(campaignID, contactID int, nodeID string, at time.Time) error {
	unlock := e.contactLocks.lock(contactKey(campaignID, contactID))
	defer unlock()

	p, err := e.progress.Get(campaignID, contactID)
	if err != nil {
		return err
	}
	if p.State != model.StateScheduled || p.PendingNodeID != nodeID {
		// Stale or duplicated confirmation; idempotency makes this a no-op.
		return nil
	}
	p.State = model.StateSent
	p.CurrentNodeID = nodeID
	p.PendingNodeID = ""
	p.LastSentAt = &at
	return e.progress.Update(p)
}

// MarkFailed records a transport failure. The contact returns to awaiting
// state and the node is retried on the next tick; retry policy beyond that
// belongs to the transport.
func (e *Engine) MarkFailed(campaignID, contactID int, nodeID, reason string) error {
	unlock := e.contactLocks.lock(contactKey(campaignID, contactID))
	defer unlock()

	p, err := e.progress.Get(campaignID, contactID)
	if err != nil {
		return err
	}
	if p.State != model.StateScheduled || p.PendingNodeID != nodeID {
		return nil
	}
	e.logger.Warn().
		Int("campaign_id", campaignID).
		Int("contact_id", contactID).
		Str("node_id", nodeID).
		Str("reason", reason).
		Msg("dispatch failed")
	p.State = model.StateAwaitingCondition
	p.PendingNodeID = ""
	return e.progress.Update(p)
}

// GetContactState is read-only introspection for UI and analytics.
func (e *Engine) GetContactState(campaignID, contactID int) (*model.ContactProgress, error) {
	return e.progress.Get(campaignID, contactID)
}

// WithGraphLock runs fn while holding the campaign's structural write lock,
// excluding any in-flight evaluation of that campaign.
func (e *Engine) WithGraphLock(campaignID int, fn func() error) error {
	unlock := e.campaignLocks.lock(campaignID)
	defer unlock()
	return fn()
}

// evaluateContactLocked serializes the contact, advances it by at most one
// hop, emits at most one send decision, and persists the new state.
func (e *Engine) evaluateContactLocked(ctx context.Context, c *model.Campaign, g *graph.Graph, p *model.ContactProgress, now time.Time) (*SendDecision, error) {
	unlock := e.contactLocks.lock(contactKey(c.ID, p.ContactID))
	defer unlock()

	switch p.State {
	case model.StateTerminated:
		return nil, nil
	case model.StateScheduled:
		// Already offered to the transport; nothing to re-emit.
		return nil, nil
	}

	currentID := p.CurrentNodeID
	if currentID == "" {
		currentID = g.Initial.ID
	}
	if g.Node(currentID) == nil {
		return nil, appErrors.NewConfigurationError(c.ID,
			"contact %d references unknown node %s", p.ContactID, currentID)
	}

	history := p.History()
	node := e.pickCandidate(g, currentID, history, now)
	if node == nil {
		return e.settleNoCandidate(g, currentID, p)
	}

	window, excluded := e.schedulingConstraints(c, node, history)
	loc, err := c.Location()
	if err != nil {
		return nil, appErrors.NewConfigurationError(c.ID, "bad timezone %q: %v", c.Timezone, err)
	}
	sendAt, err := schedule.NextEligible(now, window, loc, excluded)
	if err != nil {
		return nil, err
	}

	decision := SendDecision{
		CampaignID:     c.ID,
		ContactID:      p.ContactID,
		NodeID:         node.ID,
		TemplateID:     e.templateFor(c, p, node),
		SendAt:         sendAt,
		IdempotencyKey: fmt.Sprintf("%d:%d:%s", c.ID, p.ContactID, node.ID),
	}

	p.State = model.StateScheduled
	p.PendingNodeID = node.ID
	if err := e.progress.Update(p); err != nil {
		return nil, err
	}

	if e.dispatcher != nil {
		if err := e.dispatcher.Dispatch(ctx, decision); err != nil {
			// Offered but rejected locally; roll back so the next tick
			// retries the node.
			p.State = model.StateAwaitingCondition
			p.PendingNodeID = ""
			if uerr := e.progress.Update(p); uerr != nil {
				return nil, uerr
			}
			return nil, appErrors.NewDispatchError(decision.IdempotencyKey, err.Error())
		}
	}

	e.logger.Info().
		Int("campaign_id", c.ID).
		Int("contact_id", p.ContactID).
		Str("node_id", node.ID).
		Time("send_at", sendAt).
		Msg("send decision emitted")
	return &decision, nil
}

// pickCandidate gathers the reachable next nodes from the contact's current
// position, filters by readiness (delay elapsed, conditions satisfied), and
// selects by highest priority, ties broken by lowest sequence.
func (e *Engine) pickCandidate(g *graph.Graph, currentID string, h model.ContactHistory, now time.Time) *model.FollowUpNode {
	kind := model.OnNoResponse
	if h.Responded() {
		kind = model.OnResponse
	}

	seen := map[string]struct{}{}
	var candidates []*model.FollowUpNode
	for _, n := range []*model.FollowUpNode{
		e.skipDisabled(g, g.BranchTarget(currentID, kind)),
		e.skipDisabled(g, g.DefaultNext(currentID)),
	} {
		if n == nil {
			continue
		}
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		candidates = append(candidates, n)
	}

	var best *model.FollowUpNode
	for _, n := range candidates {
		if !e.delayElapsed(n, h, now) {
			continue
		}
		if !condition.AnySatisfied(n.EffectiveConditions(), h) {
			continue
		}
		if best == nil ||
			n.Priority > best.Priority ||
			(n.Priority == best.Priority && n.Sequence < best.Sequence) {
			best = n
		}
	}
	return best
}

// skipDisabled walks past disabled nodes in default sequence order. Disabled
// nodes keep their position but never fire.
func (e *Engine) skipDisabled(g *graph.Graph, n *model.FollowUpNode) *model.FollowUpNode {
	for n != nil && !n.Enabled {
		n = g.DefaultNext(n.ID)
	}
	return n
}

func (e *Engine) delayElapsed(n *model.FollowUpNode, h model.ContactHistory, now time.Time) bool {
	due := h.ReferenceSentAt.Add(time.Duration(n.DelayDays) * 24 * time.Hour)
	return !now.Before(due)
}

// settleNoCandidate distinguishes "sequence exhausted" from "waiting on a
// condition or delay".
func (e *Engine) settleNoCandidate(g *graph.Graph, currentID string, p *model.ContactProgress) (*SendDecision, error) {
	next := e.skipDisabled(g, g.DefaultNext(currentID))
	if next == nil {
		if p.State != model.StateTerminated {
			p.State = model.StateTerminated
			return nil, e.progress.Update(p)
		}
		return nil, nil
	}
	if p.State != model.StateAwaitingCondition {
		p.State = model.StateAwaitingCondition
		return nil, e.progress.Update(p)
	}
	return nil, nil
}

// schedulingConstraints picks the time window and excluded days for a ready
// node: the first satisfied condition carrying a window wins, excluded days
// accumulate across satisfied conditions, and the campaign default window
// applies when no condition carries one.
func (e *Engine) schedulingConstraints(c *model.Campaign, n *model.FollowUpNode, h model.ContactHistory) (*model.TimeWindow, []string) {
	var window *model.TimeWindow
	var excluded []string
	for _, cond := range n.EffectiveConditions() {
		if !condition.Evaluate(cond, h) {
			continue
		}
		if window == nil && cond.Window != nil {
			window = cond.Window
		}
		excluded = append(excluded, cond.ExcludedDays...)
	}
	if window == nil {
		window = c.SendingWindow
	}
	return window, excluded
}

// templateFor resolves the node's template. Nodes without a template of
// their own fall through to the A/B test: a completed test's winner first,
// then the contact's assigned variant, then the campaign default.
func (e *Engine) templateFor(c *model.Campaign, p *model.ContactProgress, n *model.FollowUpNode) string {
	if n.TemplateID != "" {
		return n.TemplateID
	}
	if c.ABTest != nil {
		if c.ABTest.WinnerTemplateID != "" {
			return c.ABTest.WinnerTemplateID
		}
		if v := c.ABTest.Variant(p.VariantID); v != nil {
			return v.TemplateID
		}
	}
	return c.InitialTemplateID
}

func (e *Engine) flagAttention(campaignID int, cause error) {
	e.logger.Error().Err(cause).
		Int("campaign_id", campaignID).
		Msg("campaign requires attention")
	if err := e.campaigns.SetAttentionRequired(campaignID, true); err != nil {
		e.logger.Error().Err(err).
			Int("campaign_id", campaignID).
			Msg("failed to flag campaign")
	}
}

func contactKey(campaignID, contactID int) string {
	return fmt.Sprintf("%d:%d", campaignID, contactID)
}
