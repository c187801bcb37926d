package campaign

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/onnwee/dmflow/internal/tracing"
)

const drawingColumns = `id, flow_node_id, canvas_data, thumbnail_url, created_at, updated_at`

func scanDrawing(row scanner) (*Drawing, error) {
	d := &Drawing{}
	err := row.Scan(&d.ID, &d.FlowNodeID, &d.CanvasData, &d.ThumbnailURL, &d.CreatedAt, &d.UpdatedAt, &d.CampaignID)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetDrawing returns the drawing of a node.
func (s *PostgresStore) GetDrawing(ctx context.Context, nodeID string) (_ *Drawing, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "drawings", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	d, err := scanDrawing(s.db.QueryRowContext(ctx, `
		SELECT d.id, d.flow_node_id, d.canvas_data, d.thumbnail_url, d.created_at, d.updated_at, n.campaign_id
		FROM drawings d
		JOIN flow_nodes n ON n.id = d.flow_node_id
		WHERE d.flow_node_id = $1
	`, nodeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDrawingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get drawing: %w", err)
	}
	return d, nil
}

// SaveDrawing upserts on flow_node_id so repeated saves keep one row and its id.
// A nil ThumbnailURL keeps the stored one.
func (s *PostgresStore) SaveDrawing(ctx context.Context, d *Drawing) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "drawings", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	saved, err := scanDrawing(s.db.QueryRowContext(ctx, `
		INSERT INTO drawings (id, flow_node_id, canvas_data, thumbnail_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (flow_node_id) DO UPDATE
		SET canvas_data   = EXCLUDED.canvas_data,
		    thumbnail_url = COALESCE(EXCLUDED.thumbnail_url, drawings.thumbnail_url),
		    updated_at    = NOW()
		RETURNING `+drawingColumns+`, (SELECT campaign_id FROM flow_nodes WHERE id = $2)`,
		uuid.NewString(), d.FlowNodeID, d.CanvasData, d.ThumbnailURL,
	))
	if err != nil {
		return mapConstraintError("save drawing", err)
	}
	*d = *saved
	return nil
}

// DeleteDrawing removes the drawing of a node.
func (s *PostgresStore) DeleteDrawing(ctx context.Context, nodeID string) (_ string, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "drawings", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	var campaignID string
	err = s.db.QueryRowContext(ctx, `
		DELETE FROM drawings d
		USING flow_nodes n
		WHERE d.flow_node_id = $1 AND n.id = d.flow_node_id
		RETURNING n.campaign_id
	`, nodeID).Scan(&campaignID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrDrawingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to delete drawing: %w", err)
	}
	return campaignID, nil
}
