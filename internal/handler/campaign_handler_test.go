package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unclebandit/outreach-engine/internal/abtest"
	"github.com/unclebandit/outreach-engine/internal/engine"
	"github.com/unclebandit/outreach-engine/internal/handler"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/repository"
	"github.com/unclebandit/outreach-engine/internal/service"
)

func newRouter(t *testing.T) (*chi.Mux, *service.CampaignService) {
	t.Helper()

	campaigns := repository.NewMemoryCampaignRepository()
	graphs := repository.NewMemoryGraphRepository()
	progress := repository.NewMemoryProgressRepository()
	messages := repository.NewMemoryMessageRepository()

	known := make([]model.Contact, 0, 10)
	for id := 1; id <= 10; id++ {
		known = append(known, model.Contact{ID: id, Phone: fmt.Sprintf("+2547%08d", id)})
	}
	contacts := repository.NewMemoryContactRepository(known...)

	eng := engine.New(engine.Config{}, campaigns, graphs, progress, nil)
	svc := service.NewCampaignService(campaigns, graphs, progress, messages, contacts, eng, abtest.NewManager())

	r := chi.NewRouter()
	handler.NewCampaignHandler(svc).Routes(r)
	return r, svc
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateAndGetCampaign(t *testing.T) {
	r, _ := newRouter(t)

	w := doJSON(t, r, "POST", "/campaigns", map[string]interface{}{
		"name":                "spring outreach",
		"channel":             "sms",
		"timezone":            "UTC",
		"initial_template_id": "tpl-1",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created model.Campaign
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.Equal(t, model.CampaignDraft, created.Status)

	w = doJSON(t, r, "GET", fmt.Sprintf("/campaigns/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, "GET", "/campaigns/9999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateCampaignRejectsBadBody(t *testing.T) {
	r, _ := newRouter(t)

	req := httptest.NewRequest("POST", "/campaigns", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, "POST", "/campaigns", map[string]interface{}{"name": "no template"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGraphMutationEndpoint(t *testing.T) {
	r, svc := newRouter(t)
	c, err := svc.CreateCampaign(service.CreateCampaignParams{
		Name: "g", InitialTemplateID: "tpl-1",
	})
	require.NoError(t, err)

	w := doJSON(t, r, "POST", fmt.Sprintf("/campaigns/%d/graph", c.ID), map[string]interface{}{
		"kind": "add_node",
		"node": map[string]interface{}{
			"id": "f1", "template_id": "tpl-f1", "enabled": true, "delay_days": 2,
		},
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, r, "GET", fmt.Sprintf("/campaigns/%d/graph", c.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var g struct {
		FollowUps []model.FollowUpNode `json:"follow_ups"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&g))
	require.Len(t, g.FollowUps, 1)
	assert.Equal(t, "f1", g.FollowUps[0].ID)

	// Frozen after activation.
	w = doJSON(t, r, "POST", fmt.Sprintf("/campaigns/%d/activate", c.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, r, "POST", fmt.Sprintf("/campaigns/%d/graph", c.ID), map[string]interface{}{
		"kind": "remove_node", "node_id": "f1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListContactsEndpoint(t *testing.T) {
	r, _ := newRouter(t)

	w := doJSON(t, r, "GET", "/contacts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var contacts []model.Contact
	require.NoError(t, json.NewDecoder(w.Body).Decode(&contacts))
	require.Len(t, contacts, 10)
	assert.Equal(t, 1, contacts[0].ID)
}

func TestEnrollAndInspectContactState(t *testing.T) {
	r, svc := newRouter(t)
	c, err := svc.CreateCampaign(service.CreateCampaignParams{
		Name: "e", InitialTemplateID: "tpl-1",
	})
	require.NoError(t, err)

	w := doJSON(t, r, "POST", fmt.Sprintf("/campaigns/%d/contacts", c.ID), map[string]interface{}{
		"contact_ids": []int{1, 2, 3},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var res map[string]int
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, 3, res["enrolled"])

	w = doJSON(t, r, "GET", fmt.Sprintf("/campaigns/%d/contacts/2/state", c.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p model.ContactProgress
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	assert.Equal(t, model.StateEnrolled, p.State)

	w = doJSON(t, r, "GET", fmt.Sprintf("/campaigns/%d/contacts/99/state", c.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResponseAndEvaluateEndpoints(t *testing.T) {
	r, svc := newRouter(t)
	c, err := svc.CreateCampaign(service.CreateCampaignParams{
		Name: "resp", InitialTemplateID: "tpl-1",
	})
	require.NoError(t, err)
	require.NoError(t, svc.MutateGraph(c.ID, service.GraphOp{
		Kind: "add_node",
		Node: &model.FollowUpNode{
			ID: "f1", TemplateID: "tpl-f1", Enabled: true,
			Conditions: []model.Condition{{Kind: model.ConditionPositiveResponse}},
		},
	}))
	require.NoError(t, svc.ActivateCampaign(c.ID))
	_, err = svc.EnrollContacts(c.ID, []int{7})
	require.NoError(t, err)

	w := doJSON(t, r, "POST", fmt.Sprintf("/campaigns/%d/responses", c.ID), map[string]interface{}{
		"contact_id":    7,
		"body":          "yes, interested",
		"response_type": "positive",
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = doJSON(t, r, "POST", fmt.Sprintf("/campaigns/%d/responses", c.ID), map[string]interface{}{
		"contact_id": 7, "body": "x", "response_type": "enthusiastic",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, "POST", fmt.Sprintf("/campaigns/%d/evaluate", c.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var eval struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&eval))
}

func TestABTestEndpoints(t *testing.T) {
	r, svc := newRouter(t)
	c, err := svc.CreateCampaign(service.CreateCampaignParams{
		Name: "ab", InitialTemplateID: "tpl-1",
	})
	require.NoError(t, err)

	w := doJSON(t, r, "POST", fmt.Sprintf("/campaigns/%d/abtest", c.ID), map[string]interface{}{
		"variants": []map[string]interface{}{
			{"id": "va", "template_id": "tpl-a", "contact_percentage": 60},
			{"id": "vb", "template_id": "tpl-b", "contact_percentage": 40},
		},
		"duration_hours":  48,
		"winner_criteria": "response-rate",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, "POST", fmt.Sprintf("/campaigns/%d/abtest/variants/va/outcome", c.ID), map[string]interface{}{
		"sent": 10, "responded": 4, "positive": 3, "negative": 1,
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, r, "DELETE", fmt.Sprintf("/campaigns/%d/abtest/variants/vb", c.ID), nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, r, "POST", fmt.Sprintf("/campaigns/%d/abtest/winner", c.ID), map[string]interface{}{
		"variant_id": "va",
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	fresh, err := svc.GetCampaign(c.ID)
	require.NoError(t, err)
	require.NotNil(t, fresh.ABTest)
	assert.Equal(t, model.ABTestCompleted, fresh.ABTest.Status)
	assert.Equal(t, "tpl-a", fresh.ABTest.WinnerTemplateID)
}

func TestListCampaignsEndpoint(t *testing.T) {
	r, svc := newRouter(t)
	for i := 0; i < 3; i++ {
		_, err := svc.CreateCampaign(service.CreateCampaignParams{
			Name: fmt.Sprintf("c%d", i), InitialTemplateID: "tpl",
		})
		require.NoError(t, err)
	}

	w := doJSON(t, r, "GET", "/campaigns?page=1&page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Data       []model.Campaign `json:"data"`
		Pagination map[string]int   `json:"pagination"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Len(t, res.Data, 2)
	assert.Equal(t, 3, res.Pagination["total_count"])
}
