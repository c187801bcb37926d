package campaign

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/dmflow/internal/tracing"
)

// nodeSelect loads nodes together with their linked encounter and drawing.
const nodeSelect = `
	SELECT n.id, n.campaign_id, n.type, n.label, n.description, n.position_x, n.position_y,
	       n.encounter_id, n.created_at, n.updated_at,
	       e.id, e.campaign_id, e.name, e.story_text, e.dm_notes, e.spotify_track_uri,
	       e.created_at, e.updated_at,
	       d.id, d.canvas_data, d.thumbnail_url, d.created_at, d.updated_at
	FROM flow_nodes n
	LEFT JOIN encounters e ON e.id = n.encounter_id
	LEFT JOIN drawings d ON d.flow_node_id = n.id
`

func scanNodeView(row scanner) (*FlowNode, error) {
	n := &FlowNode{}
	var (
		encID, encCampaignID, encName, encStory, encNotes, encTrack *string
		encCreated, encUpdated                                      *time.Time
		drawID, drawCanvas, drawThumb                               *string
		drawCreated, drawUpdated                                    *time.Time
	)
	err := row.Scan(
		&n.ID, &n.CampaignID, &n.Type, &n.Label, &n.Description, &n.PositionX, &n.PositionY,
		&n.EncounterID, &n.CreatedAt, &n.UpdatedAt,
		&encID, &encCampaignID, &encName, &encStory, &encNotes, &encTrack,
		&encCreated, &encUpdated,
		&drawID, &drawCanvas, &drawThumb, &drawCreated, &drawUpdated,
	)
	if err != nil {
		return nil, err
	}

	if encID != nil {
		n.Encounter = &Encounter{
			ID:              *encID,
			CampaignID:      *encCampaignID,
			Name:            *encName,
			StoryText:       *encStory,
			DMNotes:         *encNotes,
			SpotifyTrackURI: encTrack,
			CreatedAt:       *encCreated,
			UpdatedAt:       *encUpdated,
		}
	}
	if drawID != nil {
		n.Drawing = &Drawing{
			ID:           *drawID,
			FlowNodeID:   n.ID,
			CanvasData:   *drawCanvas,
			ThumbnailURL: drawThumb,
			CreatedAt:    *drawCreated,
			UpdatedAt:    *drawUpdated,
			CampaignID:   n.CampaignID,
		}
	}
	return n, nil
}

func (s *PostgresStore) listNodes(ctx context.Context, q querier, campaignID string) ([]FlowNode, error) {
	rows, err := q.QueryContext(ctx, nodeSelect+`
		WHERE n.campaign_id = $1
		ORDER BY n.created_at, n.id
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list flow nodes: %w", err)
	}
	defer rows.Close()

	nodes := []FlowNode{}
	for rows.Next() {
		n, err := scanNodeView(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow node: %w", err)
		}
		nodes = append(nodes, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flow nodes: %w", err)
	}
	return nodes, nil
}

const edgeColumns = `id, campaign_id, source_node_id, target_node_id, label, created_at`

func scanEdge(row scanner) (*FlowEdge, error) {
	e := &FlowEdge{}
	if err := row.Scan(&e.ID, &e.CampaignID, &e.SourceNodeID, &e.TargetNodeID, &e.Label, &e.CreatedAt); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *PostgresStore) listEdges(ctx context.Context, q querier, campaignID string) ([]FlowEdge, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+edgeColumns+`
		FROM flow_edges
		WHERE campaign_id = $1
		ORDER BY created_at, id
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list flow edges: %w", err)
	}
	defer rows.Close()

	edges := []FlowEdge{}
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow edge: %w", err)
		}
		edges = append(edges, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flow edges: %w", err)
	}
	return edges, nil
}

// GetFlow returns the nodes and edges of a campaign.
func (s *PostgresStore) GetFlow(ctx context.Context, campaignID string) (_ *Flow, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "flow_nodes", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	nodes, err := s.listNodes(ctx, s.db, campaignID)
	if err != nil {
		return nil, err
	}
	edges, err := s.listEdges(ctx, s.db, campaignID)
	if err != nil {
		return nil, err
	}
	return &Flow{Nodes: nodes, Edges: edges}, nil
}

// GetNode returns one node with its encounter and drawing.
func (s *PostgresStore) GetNode(ctx context.Context, id string) (_ *FlowNode, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "flow_nodes", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	return s.getNode(ctx, s.db, id)
}

func (s *PostgresStore) getNode(ctx context.Context, q querier, id string) (*FlowNode, error) {
	n, err := scanNodeView(q.QueryRowContext(ctx, nodeSelect+` WHERE n.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flow node: %w", err)
	}
	return n, nil
}

// CreateNode persists a new node.
func (s *PostgresStore) CreateNode(ctx context.Context, n *FlowNode) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "flow_nodes", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO flow_nodes (id, campaign_id, type, label, description, position_x, position_y, encounter_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, n.CampaignID, string(n.Type), n.Label, n.Description, n.PositionX, n.PositionY, n.EncounterID)
	if err != nil {
		return mapConstraintError("create flow node", err)
	}

	created, err := s.getNode(ctx, s.db, id)
	if err != nil {
		return err
	}
	*n = *created
	return nil
}

// UpdateNode applies the supplied fields and bumps updated_at.
func (s *PostgresStore) UpdateNode(ctx context.Context, id string, p NodePatch) (_ *FlowNode, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "flow_nodes", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	var b setBuilder
	if p.Type != nil {
		b.add("type", string(*p.Type))
	}
	if p.Label != nil {
		b.add("label", *p.Label)
	}
	if p.Description != nil {
		b.add("description", *p.Description)
	}
	if p.PositionX != nil {
		b.add("position_x", *p.PositionX)
	}
	if p.PositionY != nil {
		b.add("position_y", *p.PositionY)
	}
	if p.EncounterID.Set {
		b.add("encounter_id", p.EncounterID.Value)
	}
	b.raw("updated_at = NOW()")

	query := `UPDATE flow_nodes SET ` + b.clause() + ` WHERE id = ` + b.where(id)
	res, err := s.db.ExecContext(ctx, query, b.args...)
	if err != nil {
		return nil, mapConstraintError("update flow node", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to update flow node: %w", err)
	}
	if affected == 0 {
		return nil, ErrNodeNotFound
	}
	return s.getNode(ctx, s.db, id)
}

// DeleteNode removes the node; the schema cascades to its drawing and edges.
func (s *PostgresStore) DeleteNode(ctx context.Context, id string) (_ string, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "flow_nodes", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	var campaignID string
	err = s.db.QueryRowContext(ctx,
		`DELETE FROM flow_nodes WHERE id = $1 RETURNING campaign_id`, id).Scan(&campaignID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNodeNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to delete flow node: %w", err)
	}
	return campaignID, nil
}

// CreateEdge persists a new edge.
func (s *PostgresStore) CreateEdge(ctx context.Context, e *FlowEdge) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "flow_edges", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	created, err := scanEdge(s.db.QueryRowContext(ctx, `
		INSERT INTO flow_edges (id, campaign_id, source_node_id, target_node_id, label)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+edgeColumns,
		uuid.NewString(), e.CampaignID, e.SourceNodeID, e.TargetNodeID, e.Label,
	))
	if err != nil {
		return mapConstraintError("create flow edge", err)
	}
	*e = *created
	return nil
}

// UpdateEdge applies the supplied fields.
func (s *PostgresStore) UpdateEdge(ctx context.Context, id string, p EdgePatch) (_ *FlowEdge, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "flow_edges", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	query := `SELECT ` + edgeColumns + ` FROM flow_edges WHERE id = $1`
	args := []any{id}
	if p.Label.Set {
		query = `UPDATE flow_edges SET label = $2 WHERE id = $1 RETURNING ` + edgeColumns
		args = append(args, p.Label.Value)
	}

	e, err := scanEdge(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEdgeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update flow edge: %w", err)
	}
	return e, nil
}

// DeleteEdge removes one edge.
func (s *PostgresStore) DeleteEdge(ctx context.Context, id string) (_ string, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "flow_edges", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	var campaignID string
	err = s.db.QueryRowContext(ctx,
		`DELETE FROM flow_edges WHERE id = $1 RETURNING campaign_id`, id).Scan(&campaignID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrEdgeNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to delete flow edge: %w", err)
	}
	return campaignID, nil
}

// BulkUpdatePositions moves every listed node inside one transaction. The
// first unknown id aborts the batch and rolls back earlier moves.
func (s *PostgresStore) BulkUpdatePositions(ctx context.Context, campaignID string, positions []NodePosition) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "flow_nodes", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		s.logger.Error("failed to begin transaction",
			slog.String("error", err.Error()),
			slog.String("campaign_id", campaignID))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Always attempt rollback on function exit (no-op after successful commit)
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Warn("failed to rollback transaction",
				slog.String("error", err.Error()))
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE flow_nodes
		SET position_x = $1, position_y = $2, updated_at = NOW()
		WHERE id = $3 AND campaign_id = $4
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare position update: %w", err)
	}
	defer stmt.Close()

	for _, p := range positions {
		res, err := stmt.ExecContext(ctx, p.PositionX, p.PositionY, p.ID, campaignID)
		if err != nil {
			return fmt.Errorf("failed to move node %s: %w", p.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to move node %s: %w", p.ID, err)
		}
		if affected == 0 {
			s.logger.Debug("bulk position update aborted on unknown node",
				slog.String("campaign_id", campaignID),
				slog.String("node_id", p.ID))
			return ErrNodeNotFound
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("failed to commit position update",
			slog.String("error", err.Error()),
			slog.String("campaign_id", campaignID))
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
