package repository

import (
	"database/sql"
	"encoding/json"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/graph"
	"github.com/unclebandit/outreach-engine/internal/model"
)

type GraphRepositoryInterface interface {
	GetGraph(campaignID int) (*graph.Graph, error)
	SaveGraph(g *graph.Graph) error
	DeleteGraph(campaignID int) error
}

type GraphRepository struct {
	DB *sql.DB
}

var _ GraphRepositoryInterface = (*GraphRepository)(nil)

func (r *GraphRepository) GetGraph(campaignID int) (*graph.Graph, error) {
	query := `
        SELECT id, template_id, delay_days, enabled, sequence, priority, conditions, connections, is_initial
        FROM follow_up_nodes
        WHERE campaign_id=$1
        ORDER BY sequence
    `
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	g := &graph.Graph{CampaignID: campaignID}
	for rows.Next() {
		var n model.FollowUpNode
		var conditions, connections []byte
		var isInitial bool
		if err := rows.Scan(&n.ID, &n.TemplateID, &n.DelayDays, &n.Enabled,
			&n.Sequence, &n.Priority, &conditions, &connections, &isInitial); err != nil {
			return nil, err
		}
		if len(conditions) > 0 {
			if err := json.Unmarshal(conditions, &n.Conditions); err != nil {
				return nil, err
			}
		}
		if len(connections) > 0 {
			if err := json.Unmarshal(connections, &n.Connections); err != nil {
				return nil, err
			}
		}
		if isInitial {
			g.Initial = &n
		} else {
			g.FollowUps = append(g.FollowUps, &n)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if g.Initial == nil {
		return nil, appErrors.NewConfigurationError(campaignID, "graph has no initial node")
	}
	return g, nil
}

// SaveGraph replaces the stored graph wholesale inside one transaction.
// Graphs are small and only editable in draft, so a rewrite beats diffing.
func (r *GraphRepository) SaveGraph(g *graph.Graph) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM follow_up_nodes WHERE campaign_id=$1`, g.CampaignID); err != nil {
		return err
	}

	insert := `
        INSERT INTO follow_up_nodes (id, campaign_id, template_id, delay_days, enabled, sequence, priority, conditions, connections, is_initial)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	writeNode := func(n *model.FollowUpNode, initial bool) error {
		conditions, err := json.Marshal(n.Conditions)
		if err != nil {
			return err
		}
		connections, err := json.Marshal(n.Connections)
		if err != nil {
			return err
		}
		_, err = tx.Exec(insert, n.ID, g.CampaignID, n.TemplateID, n.DelayDays,
			n.Enabled, n.Sequence, n.Priority, conditions, connections, initial)
		return err
	}

	if err := writeNode(g.Initial, true); err != nil {
		return err
	}
	for _, n := range g.FollowUps {
		if err := writeNode(n, false); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *GraphRepository) DeleteGraph(campaignID int) error {
	_, err := r.DB.Exec(`DELETE FROM follow_up_nodes WHERE campaign_id=$1`, campaignID)
	return err
}
