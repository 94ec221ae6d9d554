package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/service"
)

// CampaignHandler holds the dependencies for campaign-related HTTP handlers.
type CampaignHandler struct {
	Service *service.CampaignService
}

func NewCampaignHandler(svc *service.CampaignService) *CampaignHandler {
	return &CampaignHandler{Service: svc}
}

// Routes mounts all campaign endpoints on a chi router.
func (h *CampaignHandler) Routes(r chi.Router) {
	r.Get("/contacts", h.ListContacts)
	r.Post("/campaigns", h.CreateCampaign)
	r.Get("/campaigns", h.ListCampaigns)
	r.Get("/campaigns/{id}", h.GetCampaign)
	r.Post("/campaigns/{id}/activate", h.ActivateCampaign)
	r.Post("/campaigns/{id}/pause", h.PauseCampaign)
	r.Delete("/campaigns/{id}", h.DeleteCampaign)
	r.Post("/campaigns/{id}/contacts", h.EnrollContacts)
	r.Delete("/campaigns/{id}/contacts/{contactID}", h.RemoveContact)
	r.Get("/campaigns/{id}/contacts/{contactID}/state", h.GetContactState)
	r.Post("/campaigns/{id}/graph", h.MutateGraph)
	r.Get("/campaigns/{id}/graph", h.GetGraph)
	r.Post("/campaigns/{id}/responses", h.RecordResponse)
	r.Post("/campaigns/{id}/evaluate", h.EvaluateCampaign)
	r.Post("/campaigns/{id}/abtest", h.SetupABTest)
	r.Delete("/campaigns/{id}/abtest/variants/{variantID}", h.RemoveVariant)
	r.Post("/campaigns/{id}/abtest/variants/{variantID}/outcome", h.RecordVariantOutcome)
	r.Post("/campaigns/{id}/abtest/winner", h.SelectWinner)
}

func (h *CampaignHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.Service.ListContacts()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (h *CampaignHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var params service.CreateCampaignParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	campaign, err := h.Service.CreateCampaign(params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (h *CampaignHandler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	channel := r.URL.Query().Get("channel")
	status := model.CampaignStatus(r.URL.Query().Get("status"))

	campaigns, pagination, err := h.Service.ListCampaigns(page, pageSize, channel, status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	campaign, err := h.Service.GetCampaign(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (h *CampaignHandler) ActivateCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Service.ActivateCampaign(id); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(model.CampaignActive)})
}

func (h *CampaignHandler) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Service.PauseCampaign(id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(model.CampaignPaused)})
}

func (h *CampaignHandler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Service.DeleteCampaign(id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CampaignHandler) EnrollContacts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		ContactIDs []int `json:"contact_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	enrolled, err := h.Service.EnrollContacts(id, body.ContactIDs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"enrolled": enrolled})
}

func (h *CampaignHandler) RemoveContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	contactID, ok := pathID(w, r, "contactID")
	if !ok {
		return
	}
	if err := h.Service.RemoveContact(id, contactID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CampaignHandler) GetContactState(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	contactID, ok := pathID(w, r, "contactID")
	if !ok {
		return
	}
	progress, err := h.Service.GetContactState(id, contactID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (h *CampaignHandler) MutateGraph(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var op service.GraphOp
	if err := json.NewDecoder(r.Body).Decode(&op); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.Service.MutateGraph(id, op); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CampaignHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	g, err := h.Service.GetGraph(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_id": g.CampaignID,
		"initial":     g.Initial,
		"follow_ups":  g.FollowUps,
	})
}

func (h *CampaignHandler) RecordResponse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		ContactID    int                `json:"contact_id"`
		Body         string             `json:"body"`
		ResponseType model.ResponseType `json:"response_type"`
		ReceivedAt   *time.Time         `json:"received_at,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if body.ResponseType != "" && !body.ResponseType.IsValid() {
		http.Error(w, "invalid response type", http.StatusBadRequest)
		return
	}

	at := time.Now()
	if body.ReceivedAt != nil {
		at = *body.ReceivedAt
	}
	if err := h.Service.RecordInboundMessage(r.Context(), id, body.ContactID, body.Body, body.ResponseType, at); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *CampaignHandler) EvaluateCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	decisions, err := h.Service.EvaluateCampaign(r.Context(), id, time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"decisions": decisions,
		"count":     len(decisions),
	})
}

func (h *CampaignHandler) SetupABTest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		Variants      []*model.TemplateVariant `json:"variants"`
		DurationHours int                      `json:"duration_hours"`
		Criteria      model.WinnerCriteria     `json:"winner_criteria"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	test, err := h.Service.SetupABTest(id, body.Variants, body.DurationHours, body.Criteria)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, test)
}

func (h *CampaignHandler) RemoveVariant(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	variantID := chi.URLParam(r, "variantID")
	if err := h.Service.RemoveVariant(id, variantID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CampaignHandler) RecordVariantOutcome(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	variantID := chi.URLParam(r, "variantID")
	var body struct {
		Sent      int `json:"sent"`
		Responded int `json:"responded"`
		Positive  int `json:"positive"`
		Negative  int `json:"negative"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.Service.RecordVariantOutcome(id, variantID, body.Sent, body.Responded, body.Positive, body.Negative); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CampaignHandler) SelectWinner(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		VariantID string `json:"variant_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.Service.SelectWinner(id, body.VariantID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
