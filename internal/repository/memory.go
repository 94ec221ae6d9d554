package repository

import (
	"sort"
	"sync"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/graph"
	"github.com/unclebandit/outreach-engine/internal/model"
)

// In-memory implementations of the repository interfaces, used in tests and
// for local runs without Postgres.

type MemoryCampaignRepository struct {
	mu        sync.RWMutex
	nextID    int
	campaigns map[int]*model.Campaign
}

var _ CampaignRepositoryInterface = (*MemoryCampaignRepository)(nil)

func NewMemoryCampaignRepository() *MemoryCampaignRepository {
	return &MemoryCampaignRepository{nextID: 1, campaigns: make(map[int]*model.Campaign)}
}

func (r *MemoryCampaignRepository) Create(c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	c.ID = r.nextID
	r.nextID++
	r.campaigns[c.ID] = c
	return nil
}

func (r *MemoryCampaignRepository) GetByID(id int) (*model.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return c, nil
}

func (r *MemoryCampaignRepository) ListCampaigns(offset, limit int, channel string, status model.CampaignStatus) ([]*model.Campaign, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := []*model.Campaign{}
	for _, c := range r.campaigns {
		if channel != "" && c.Channel != channel {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := len(matched)
	if offset >= total {
		return []*model.Campaign{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *MemoryCampaignRepository) ListActiveIDs() ([]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := []int{}
	for id, c := range r.campaigns {
		if c.Status == model.CampaignActive {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (r *MemoryCampaignRepository) Update(c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.campaigns[c.ID]; !ok {
		return appErrors.NewCampaignNotFound(c.ID)
	}
	r.campaigns[c.ID] = c
	return nil
}

func (r *MemoryCampaignRepository) UpdateStatus(campaignID int, status model.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	c.Status = status
	return nil
}

func (r *MemoryCampaignRepository) SetAttentionRequired(campaignID int, required bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	c.AttentionRequired = required
	return nil
}

func (r *MemoryCampaignRepository) Delete(campaignID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.campaigns, campaignID)
	return nil
}

type MemoryGraphRepository struct {
	mu     sync.RWMutex
	graphs map[int]*graph.Graph
}

var _ GraphRepositoryInterface = (*MemoryGraphRepository)(nil)

func NewMemoryGraphRepository() *MemoryGraphRepository {
	return &MemoryGraphRepository{graphs: make(map[int]*graph.Graph)}
}

func (r *MemoryGraphRepository) GetGraph(campaignID int) (*graph.Graph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.graphs[campaignID]
	if !ok {
		return nil, appErrors.NewConfigurationError(campaignID, "graph has no initial node")
	}
	return g, nil
}

func (r *MemoryGraphRepository) SaveGraph(g *graph.Graph) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.graphs[g.CampaignID] = g
	return nil
}

func (r *MemoryGraphRepository) DeleteGraph(campaignID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.graphs, campaignID)
	return nil
}

type progressKey struct {
	campaignID int
	contactID  int
}

type MemoryProgressRepository struct {
	mu       sync.RWMutex
	progress map[progressKey]*model.ContactProgress
}

var _ ProgressRepositoryInterface = (*MemoryProgressRepository)(nil)

func NewMemoryProgressRepository() *MemoryProgressRepository {
	return &MemoryProgressRepository{progress: make(map[progressKey]*model.ContactProgress)}
}

func (r *MemoryProgressRepository) Create(p *model.ContactProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := progressKey{p.CampaignID, p.ContactID}
	if _, exists := r.progress[key]; exists {
		return nil // enrollment is idempotent
	}
	if p.State == "" {
		p.State = model.StateEnrolled
	}
	r.progress[key] = p
	return nil
}

func (r *MemoryProgressRepository) Get(campaignID, contactID int) (*model.ContactProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.progress[progressKey{campaignID, contactID}]
	if !ok {
		return nil, appErrors.NewContactNotFound(campaignID, contactID)
	}
	return p, nil
}

func (r *MemoryProgressRepository) ListByCampaign(campaignID int) ([]*model.ContactProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*model.ContactProgress{}
	for key, p := range r.progress {
		if key.campaignID == campaignID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContactID < out[j].ContactID })
	return out, nil
}

func (r *MemoryProgressRepository) Update(p *model.ContactProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := progressKey{p.CampaignID, p.ContactID}
	if _, ok := r.progress[key]; !ok {
		return appErrors.NewContactNotFound(p.CampaignID, p.ContactID)
	}
	r.progress[key] = p
	return nil
}

func (r *MemoryProgressRepository) Delete(campaignID, contactID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.progress, progressKey{campaignID, contactID})
	return nil
}

func (r *MemoryProgressRepository) DeleteByCampaign(campaignID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.progress {
		if key.campaignID == campaignID {
			delete(r.progress, key)
		}
	}
	return nil
}

type MemoryContactRepository struct {
	mu       sync.RWMutex
	contacts map[int]model.Contact
}

var _ ContactRepositoryInterface = (*MemoryContactRepository)(nil)

func NewMemoryContactRepository(contacts ...model.Contact) *MemoryContactRepository {
	r := &MemoryContactRepository{contacts: make(map[int]model.Contact)}
	for _, c := range contacts {
		r.contacts[c.ID] = c
	}
	return r
}

// GetByID returns nil without an error for unknown contacts, like the SQL
// repository does.
func (r *MemoryContactRepository) GetByID(id int) (*model.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contacts[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *MemoryContactRepository) ListAll() ([]model.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []model.Contact{}
	for _, c := range r.contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type MemoryMessageRepository struct {
	mu       sync.RWMutex
	nextID   int
	messages []*model.Message
}

var _ MessageRepositoryInterface = (*MemoryMessageRepository)(nil)

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{nextID: 1}
}

func (r *MemoryMessageRepository) Create(m *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = r.nextID
	r.nextID++
	r.messages = append(r.messages, m)
	return nil
}

func (r *MemoryMessageRepository) LatestInbound(campaignID, contactID int) (*model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *model.Message
	for _, m := range r.messages {
		if m.CampaignID != campaignID || m.ContactID != contactID || m.Direction != model.MessageInbound {
			continue
		}
		if latest == nil || m.SentAt.After(latest.SentAt) {
			latest = m
		}
	}
	return latest, nil
}

func (r *MemoryMessageRepository) ListByContact(campaignID, contactID int) ([]*model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*model.Message{}
	for _, m := range r.messages {
		if m.CampaignID == campaignID && m.ContactID == contactID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out, nil
}
