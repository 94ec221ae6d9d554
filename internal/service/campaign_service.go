package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/unclebandit/outreach-engine/internal/abtest"
	"github.com/unclebandit/outreach-engine/internal/engine"
	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/graph"
	"github.com/unclebandit/outreach-engine/internal/logging"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/repository"
)

// CampaignService owns campaign lifecycle, enrollment, graph edits, and A/B
// test operations, delegating evaluation to the engine.
type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	GraphRepo    repository.GraphRepositoryInterface
	ProgressRepo repository.ProgressRepositoryInterface
	MessageRepo  repository.MessageRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
	Engine       *engine.Engine
	ABTests      *abtest.Manager

	logger zerolog.Logger
}

func NewCampaignService(
	campaignRepo repository.CampaignRepositoryInterface,
	graphRepo repository.GraphRepositoryInterface,
	progressRepo repository.ProgressRepositoryInterface,
	messageRepo repository.MessageRepositoryInterface,
	contactRepo repository.ContactRepositoryInterface,
	eng *engine.Engine,
	tests *abtest.Manager,
) *CampaignService {
	return &CampaignService{
		CampaignRepo: campaignRepo,
		GraphRepo:    graphRepo,
		ProgressRepo: progressRepo,
		MessageRepo:  messageRepo,
		ContactRepo:  contactRepo,
		Engine:       eng,
		ABTests:      tests,
		logger:       logging.Component("service"),
	}
}

type CreateCampaignParams struct {
	Name              string            `json:"name"`
	Channel           string            `json:"channel"`
	Timezone          string            `json:"timezone"`
	InitialTemplateID string            `json:"initial_template_id"`
	SendingWindow     *model.TimeWindow `json:"sending_window,omitempty"`
}

// CreateCampaign creates a draft campaign with an empty follow-up graph (an
// initial node only).
func (s *CampaignService) CreateCampaign(params CreateCampaignParams) (*model.Campaign, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("campaign name is required")
	}
	if params.InitialTemplateID == "" {
		return nil, fmt.Errorf("initial template is required")
	}
	if params.Timezone != "" {
		if _, err := time.LoadLocation(params.Timezone); err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", params.Timezone, err)
		}
	}
	if params.SendingWindow != nil && !params.SendingWindow.Valid() {
		return nil, fmt.Errorf("invalid sending window: start must precede end")
	}

	c := &model.Campaign{
		Name:              params.Name,
		Channel:           params.Channel,
		Status:            model.CampaignDraft,
		Timezone:          params.Timezone,
		InitialTemplateID: params.InitialTemplateID,
		SendingWindow:     params.SendingWindow,
	}
	if err := s.CampaignRepo.Create(c); err != nil {
		return nil, err
	}

	g := graph.New(c.ID, &model.FollowUpNode{TemplateID: params.InitialTemplateID})
	if err := s.GraphRepo.SaveGraph(g); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCampaigns fetches campaigns with pagination.
func (s *CampaignService) ListCampaigns(page, pageSize int, channel string, status model.CampaignStatus) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(offset, pageSize, channel, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaign(id int) (*model.Campaign, error) {
	return s.CampaignRepo.GetByID(id)
}

// ActivateCampaign validates the graph and moves the campaign to active,
// freezing structural edits.
func (s *CampaignService) ActivateCampaign(campaignID int) error {
	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return err
	}
	if c.Status == model.CampaignActive {
		return nil
	}
	if c.Status == model.CampaignCompleted {
		return fmt.Errorf("completed campaign cannot be reactivated")
	}

	g, err := s.GraphRepo.GetGraph(campaignID)
	if err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return appErrors.NewConfigurationError(campaignID, "cannot activate: %v", err)
	}
	return s.CampaignRepo.UpdateStatus(campaignID, model.CampaignActive)
}

// PauseCampaign stops future ticks from considering the campaign's contacts.
// Already-dispatched sends are not rolled back.
func (s *CampaignService) PauseCampaign(campaignID int) error {
	return s.CampaignRepo.UpdateStatus(campaignID, model.CampaignPaused)
}

func (s *CampaignService) CompleteCampaign(campaignID int) error {
	return s.CampaignRepo.UpdateStatus(campaignID, model.CampaignCompleted)
}

// DeleteCampaign tears down the campaign with its graph and all contact
// progress state.
func (s *CampaignService) DeleteCampaign(campaignID int) error {
	if err := s.ProgressRepo.DeleteByCampaign(campaignID); err != nil {
		return err
	}
	if err := s.GraphRepo.DeleteGraph(campaignID); err != nil {
		return err
	}
	return s.CampaignRepo.Delete(campaignID)
}

// EnrollContacts creates progress state for each known contact and assigns
// A/B variants where a test is running. Ids with no matching contact are
// skipped. Enrollment is idempotent per contact.
func (s *CampaignService) EnrollContacts(campaignID int, contactIDs []int) (int, error) {
	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return 0, err
	}

	// Current allocation per variant, for percentage steering.
	assigned := map[string]int{}
	if c.ABTest != nil {
		existing, err := s.ProgressRepo.ListByCampaign(campaignID)
		if err != nil {
			return 0, err
		}
		for _, p := range existing {
			if p.VariantID != "" {
				assigned[p.VariantID]++
			}
		}
	}

	enrolled := 0
	for _, contactID := range contactIDs {
		contact, err := s.ContactRepo.GetByID(contactID)
		if err != nil {
			return enrolled, err
		}
		if contact == nil {
			s.logger.Warn().
				Int("campaign_id", campaignID).
				Int("contact_id", contactID).
				Msg("skipping unknown contact")
			continue
		}
		p := &model.ContactProgress{
			CampaignID: campaignID,
			ContactID:  contactID,
			State:      model.StateEnrolled,
			EnrolledAt: time.Now(),
		}
		if c.ABTest != nil && c.ABTest.Status == model.ABTestInProgress {
			if v := s.ABTests.AssignVariant(c.ABTest, assigned); v != nil {
				p.VariantID = v.ID
				assigned[v.ID]++
			}
		}
		if err := s.ProgressRepo.Create(p); err != nil {
			s.logger.Warn().Err(err).
				Int("campaign_id", campaignID).
				Int("contact_id", contactID).
				Msg("failed to enroll contact")
			continue
		}
		enrolled++
	}
	return enrolled, nil
}

// ListContacts returns the full contact book for enrollment pickers.
func (s *CampaignService) ListContacts() ([]model.Contact, error) {
	return s.ContactRepo.ListAll()
}

// RemoveContact drops a contact from the campaign, destroying its progress.
func (s *CampaignService) RemoveContact(campaignID, contactID int) error {
	return s.ProgressRepo.Delete(campaignID, contactID)
}

// GraphOp is one structural edit applied through MutateGraph.
type GraphOp struct {
	Kind      string              `json:"kind"` // add_node, remove_node, reorder, connect
	Node      *model.FollowUpNode `json:"node,omitempty"`
	NodeID    string              `json:"node_id,omitempty"`
	Direction graph.Direction     `json:"direction,omitempty"`
	Branch    model.BranchKind    `json:"branch,omitempty"`
	TargetID  string              `json:"target_id,omitempty"`
}

// MutateGraph applies a structural edit. Edits are rejected unless the
// campaign is in draft, and run under the campaign write lock so they
// exclude any in-flight evaluation.
func (s *CampaignService) MutateGraph(campaignID int, op GraphOp) error {
	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return err
	}
	if c.Status != model.CampaignDraft {
		return fmt.Errorf("graph is frozen: campaign %d is %s", campaignID, c.Status)
	}

	return s.Engine.WithGraphLock(campaignID, func() error {
		g, err := s.GraphRepo.GetGraph(campaignID)
		if err != nil {
			return err
		}

		switch op.Kind {
		case "add_node":
			if op.Node == nil {
				return fmt.Errorf("add_node requires a node")
			}
			err = g.AddNode(op.Node)
		case "remove_node":
			err = g.RemoveNode(op.NodeID)
		case "reorder":
			err = g.Reorder(op.NodeID, op.Direction)
		case "connect":
			err = g.Connect(op.NodeID, op.Branch, op.TargetID)
		default:
			return fmt.Errorf("unknown graph operation %q", op.Kind)
		}
		if err != nil {
			return err
		}

		if err := g.Validate(); err != nil {
			return appErrors.NewConfigurationError(campaignID, "edit rejected: %v", err)
		}
		return s.GraphRepo.SaveGraph(g)
	})
}

func (s *CampaignService) GetGraph(campaignID int) (*graph.Graph, error) {
	return s.GraphRepo.GetGraph(campaignID)
}

// RecordInboundMessage persists an inbound message and pushes it into the
// engine for immediate branch evaluation.
func (s *CampaignService) RecordInboundMessage(ctx context.Context, campaignID, contactID int, body string, responseType model.ResponseType, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	msg := &model.Message{
		CampaignID:   campaignID,
		ContactID:    contactID,
		Direction:    model.MessageInbound,
		Body:         body,
		ResponseType: responseType,
		SentAt:       at,
	}
	if err := s.MessageRepo.Create(msg); err != nil {
		return err
	}
	return s.Engine.OnResponseReceived(ctx, campaignID, contactID, msg)
}

// EvaluateCampaign is the manual tick entry point.
func (s *CampaignService) EvaluateCampaign(ctx context.Context, campaignID int, now time.Time) ([]engine.SendDecision, error) {
	return s.Engine.EvaluateCampaign(ctx, campaignID, now)
}

func (s *CampaignService) GetContactState(campaignID, contactID int) (*model.ContactProgress, error) {
	return s.Engine.GetContactState(campaignID, contactID)
}

// SetupABTest attaches a new test to a draft campaign.
func (s *CampaignService) SetupABTest(campaignID int, variants []*model.TemplateVariant, durationHours int, criteria model.WinnerCriteria) (*model.ABTest, error) {
	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	test, err := s.ABTests.SetupTest(variants, durationHours, criteria)
	if err != nil {
		return nil, err
	}
	c.ABTest = test
	if err := s.CampaignRepo.Update(c); err != nil {
		return nil, err
	}
	return test, nil
}

func (s *CampaignService) RemoveVariant(campaignID int, variantID string) error {
	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return err
	}
	if c.ABTest == nil {
		return appErrors.NewConfigurationError(campaignID, "no A/B test configured")
	}
	if err := s.ABTests.RemoveVariant(c.ABTest, variantID); err != nil {
		return err
	}
	return s.CampaignRepo.Update(c)
}

func (s *CampaignService) RecordVariantOutcome(campaignID int, variantID string, sent, responded, positive, negative int) error {
	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return err
	}
	if c.ABTest == nil {
		return appErrors.NewConfigurationError(campaignID, "no A/B test configured")
	}
	if err := s.ABTests.RecordOutcome(c.ABTest, variantID, sent, responded, positive, negative); err != nil {
		return err
	}
	return s.CampaignRepo.Update(c)
}

func (s *CampaignService) SelectWinner(campaignID int, variantID string) error {
	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return err
	}
	if err := s.ABTests.SelectWinner(c, variantID); err != nil {
		return err
	}
	return s.CampaignRepo.Update(c)
}

// AutoSelectWinners sweeps active campaigns and completes any A/B test whose
// duration has elapsed.
func (s *CampaignService) AutoSelectWinners() error {
	ids, err := s.CampaignRepo.ListActiveIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		c, err := s.CampaignRepo.GetByID(id)
		if err != nil {
			s.logger.Warn().Err(err).Int("campaign_id", id).Msg("skipping A/B sweep")
			continue
		}
		winner, err := s.ABTests.AutoSelectWinner(c)
		if err != nil {
			s.logger.Warn().Err(err).Int("campaign_id", id).Msg("auto winner selection failed")
			continue
		}
		if winner == nil {
			continue
		}
		if err := s.CampaignRepo.Update(c); err != nil {
			return err
		}
	}
	return nil
}
