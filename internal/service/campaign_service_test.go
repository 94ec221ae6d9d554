package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unclebandit/outreach-engine/internal/abtest"
	"github.com/unclebandit/outreach-engine/internal/engine"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/repository"
	"github.com/unclebandit/outreach-engine/internal/service"
)

func newService(t *testing.T) *service.CampaignService {
	t.Helper()

	campaigns := repository.NewMemoryCampaignRepository()
	graphs := repository.NewMemoryGraphRepository()
	progress := repository.NewMemoryProgressRepository()
	messages := repository.NewMemoryMessageRepository()

	known := make([]model.Contact, 0, 50)
	for id := 1; id <= 50; id++ {
		known = append(known, model.Contact{ID: id, Phone: fmt.Sprintf("+2547%08d", id)})
	}
	contacts := repository.NewMemoryContactRepository(known...)

	eng := engine.New(engine.Config{}, campaigns, graphs, progress, nil)
	return service.NewCampaignService(campaigns, graphs, progress, messages, contacts, eng, abtest.NewManager())
}

func createDraft(t *testing.T, s *service.CampaignService) *model.Campaign {
	t.Helper()
	c, err := s.CreateCampaign(service.CreateCampaignParams{
		Name:              "q2 outreach",
		Channel:           "sms",
		Timezone:          "UTC",
		InitialTemplateID: "tpl-initial",
	})
	require.NoError(t, err)
	return c
}

func TestCreateCampaignBuildsInitialGraph(t *testing.T) {
	s := newService(t)
	c := createDraft(t, s)

	assert.Equal(t, model.CampaignDraft, c.Status)

	g, err := s.GetGraph(c.ID)
	require.NoError(t, err)
	require.NotNil(t, g.Initial)
	assert.Equal(t, "tpl-initial", g.Initial.TemplateID)
	assert.Empty(t, g.FollowUps)
}

func TestCreateCampaignValidation(t *testing.T) {
	s := newService(t)

	_, err := s.CreateCampaign(service.CreateCampaignParams{InitialTemplateID: "tpl"})
	assert.Error(t, err)

	_, err = s.CreateCampaign(service.CreateCampaignParams{Name: "x"})
	assert.Error(t, err)

	_, err = s.CreateCampaign(service.CreateCampaignParams{
		Name: "x", InitialTemplateID: "tpl", Timezone: "Mars/Olympus",
	})
	assert.Error(t, err)

	_, err = s.CreateCampaign(service.CreateCampaignParams{
		Name: "x", InitialTemplateID: "tpl",
		SendingWindow: &model.TimeWindow{StartTime: "17:00", EndTime: "09:00"},
	})
	assert.Error(t, err)
}

func TestMutateGraphLifecycle(t *testing.T) {
	s := newService(t)
	c := createDraft(t, s)

	require.NoError(t, s.MutateGraph(c.ID, service.GraphOp{
		Kind: "add_node",
		Node: &model.FollowUpNode{ID: "f1", TemplateID: "tpl-f1", Enabled: true, DelayDays: 2},
	}))
	require.NoError(t, s.MutateGraph(c.ID, service.GraphOp{
		Kind: "add_node",
		Node: &model.FollowUpNode{ID: "f2", TemplateID: "tpl-f2", Enabled: true, DelayDays: 3},
	}))
	require.NoError(t, s.MutateGraph(c.ID, service.GraphOp{
		Kind: "connect", NodeID: "f1", Branch: model.OnResponse, TargetID: "f2",
	}))

	g, err := s.GetGraph(c.ID)
	require.NoError(t, err)
	assert.Len(t, g.FollowUps, 2)
	assert.Equal(t, "f2", g.Node("f1").Connections.OnResponse)

	// Activation freezes structural edits.
	require.NoError(t, s.ActivateCampaign(c.ID))
	err = s.MutateGraph(c.ID, service.GraphOp{Kind: "remove_node", NodeID: "f1"})
	assert.Error(t, err)
}

func TestActivatePauseResumeLifecycle(t *testing.T) {
	s := newService(t)
	c := createDraft(t, s)

	require.NoError(t, s.ActivateCampaign(c.ID))
	require.NoError(t, s.PauseCampaign(c.ID))
	require.NoError(t, s.ActivateCampaign(c.ID)) // paused campaigns can resume

	require.NoError(t, s.CompleteCampaign(c.ID))
	assert.Error(t, s.ActivateCampaign(c.ID))
}

func TestEnrollContactsAssignsVariants(t *testing.T) {
	s := newService(t)
	c := createDraft(t, s)

	_, err := s.SetupABTest(c.ID, []*model.TemplateVariant{
		{ID: "va", TemplateID: "tpl-a", ContactPercentage: 50},
		{ID: "vb", TemplateID: "tpl-b", ContactPercentage: 50},
	}, 48, model.CriteriaResponseRate)
	require.NoError(t, err)

	ids := make([]int, 10)
	for i := range ids {
		ids[i] = i + 1
	}
	enrolled, err := s.EnrollContacts(c.ID, ids)
	require.NoError(t, err)
	assert.Equal(t, 10, enrolled)

	counts := map[string]int{}
	for _, id := range ids {
		p, err := s.GetContactState(c.ID, id)
		require.NoError(t, err)
		require.NotEmpty(t, p.VariantID)
		counts[p.VariantID]++
	}
	assert.Equal(t, 5, counts["va"])
	assert.Equal(t, 5, counts["vb"])

	// Re-enrollment is idempotent.
	enrolled, err = s.EnrollContacts(c.ID, []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, enrolled)
	total, err := s.EnrollContacts(c.ID, []int{11})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestEnrollContactsSkipsUnknownContacts(t *testing.T) {
	s := newService(t)
	c := createDraft(t, s)

	enrolled, err := s.EnrollContacts(c.ID, []int{1, 999})
	require.NoError(t, err)
	assert.Equal(t, 1, enrolled)

	_, err = s.GetContactState(c.ID, 1)
	require.NoError(t, err)
	_, err = s.GetContactState(c.ID, 999)
	assert.Error(t, err)
}

func TestDeleteCampaignTearsDownProgress(t *testing.T) {
	s := newService(t)
	c := createDraft(t, s)

	_, err := s.EnrollContacts(c.ID, []int{1, 2, 3})
	require.NoError(t, err)

	require.NoError(t, s.DeleteCampaign(c.ID))

	_, err = s.GetCampaign(c.ID)
	assert.Error(t, err)
	_, err = s.GetContactState(c.ID, 1)
	assert.Error(t, err)
}

func TestRecordInboundMessageFlowsToEngine(t *testing.T) {
	s := newService(t)
	c := createDraft(t, s)

	require.NoError(t, s.MutateGraph(c.ID, service.GraphOp{
		Kind: "add_node",
		Node: &model.FollowUpNode{
			ID: "f1", TemplateID: "tpl-f1", Enabled: true,
			Conditions: []model.Condition{{Kind: model.ConditionKeyword, Keywords: []string{"pricing"}}},
		},
	}))
	require.NoError(t, s.ActivateCampaign(c.ID))
	_, err := s.EnrollContacts(c.ID, []int{42})
	require.NoError(t, err)

	err = s.RecordInboundMessage(context.Background(), c.ID, 42, "what is the pricing?", model.ResponseNeutral, time.Now())
	require.NoError(t, err)

	p, err := s.GetContactState(c.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, model.StateScheduled, p.State)
	assert.Equal(t, "f1", p.PendingNodeID)
	assert.Equal(t, "what is the pricing?", p.LastInboundBody)
}

func TestRemoveVariantPersists(t *testing.T) {
	s := newService(t)
	c := createDraft(t, s)

	_, err := s.SetupABTest(c.ID, []*model.TemplateVariant{
		{ID: "va", TemplateID: "a", ContactPercentage: 40},
		{ID: "vb", TemplateID: "b", ContactPercentage: 30},
		{ID: "vc", TemplateID: "c", ContactPercentage: 30},
	}, 24, model.CriteriaManual)
	require.NoError(t, err)

	require.NoError(t, s.RemoveVariant(c.ID, "vb"))

	fresh, err := s.GetCampaign(c.ID)
	require.NoError(t, err)
	require.Len(t, fresh.ABTest.Variants, 2)
	assert.InDelta(t, 50.0, fresh.ABTest.Variants[0].ContactPercentage, 0.001)
}

func TestListCampaignsPagination(t *testing.T) {
	s := newService(t)
	for i := 0; i < 25; i++ {
		createDraft(t, s)
	}

	campaigns, pagination, err := s.ListCampaigns(2, 10, "", "")
	require.NoError(t, err)
	assert.Len(t, campaigns, 10)
	assert.Equal(t, 25, pagination["total_count"])
	assert.Equal(t, 3, pagination["total_pages"])
	assert.Equal(t, 2, pagination["page"])
}
