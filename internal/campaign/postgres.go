package campaign

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/onnwee/dmflow/internal/tracing"
)

// PostgresStore implements Store using PostgreSQL. Cascades are enforced by
// the schema's foreign keys.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// foreignKeyErrors maps named foreign key constraints to the sentinel for the
// missing parent row.
var foreignKeyErrors = map[string]error{
	"encounters_campaign_fk":  ErrCampaignNotFound,
	"flow_nodes_campaign_fk":  ErrCampaignNotFound,
	"flow_edges_campaign_fk":  ErrCampaignNotFound,
	"flow_nodes_encounter_fk": ErrEncounterNotFound,
	"flow_edges_source_fk":    ErrNodeNotFound,
	"flow_edges_target_fk":    ErrNodeNotFound,
	"enemies_encounter_fk":    ErrEncounterNotFound,
	"loot_encounter_fk":       ErrEncounterNotFound,
	"drawings_flow_node_fk":   ErrNodeNotFound,
}

// mapConstraintError translates a foreign key violation into a not-found
// sentinel; any other error is wrapped with op.
func mapConstraintError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		if sentinel, ok := foreignKeyErrors[pqErr.Constraint]; ok {
			return sentinel
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// setBuilder accumulates "col = $n" assignments for partial updates.
type setBuilder struct {
	sets []string
	args []any
}

func (b *setBuilder) add(column string, value any) {
	b.args = append(b.args, value)
	b.sets = append(b.sets, fmt.Sprintf("%s = $%d", column, len(b.args)))
}

func (b *setBuilder) raw(assignment string) {
	b.sets = append(b.sets, assignment)
}

// where appends value as the next placeholder and returns it.
func (b *setBuilder) where(value any) string {
	b.args = append(b.args, value)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *setBuilder) empty() bool {
	return len(b.sets) == 0
}

func (b *setBuilder) clause() string {
	return strings.Join(b.sets, ", ")
}

const campaignColumns = `id, name, description, spotify_playlist_id, created_at, updated_at`

func scanCampaign(row scanner) (*Campaign, error) {
	c := &Campaign{}
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.SpotifyPlaylistID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCampaigns returns every campaign, most recently updated first.
func (s *PostgresStore) ListCampaigns(ctx context.Context) (_ []Campaign, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "campaigns", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		ORDER BY updated_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, *c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaigns: %w", err)
	}
	return campaigns, nil
}

// GetCampaign returns a campaign with its flowchart and encounters.
func (s *PostgresStore) GetCampaign(ctx context.Context, id string) (_ *Detail, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "campaigns", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	c, err := scanCampaign(s.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	nodes, err := s.listNodes(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	edges, err := s.listEdges(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	encounters, err := s.listEncounters(ctx, id)
	if err != nil {
		return nil, err
	}

	return &Detail{
		Campaign:   *c,
		FlowNodes:  nodes,
		FlowEdges:  edges,
		Encounters: encounters,
	}, nil
}

// CreateCampaign persists a new campaign.
func (s *PostgresStore) CreateCampaign(ctx context.Context, c *Campaign) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "campaigns", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	created, err := scanCampaign(s.db.QueryRowContext(ctx, `
		INSERT INTO campaigns (id, name, description, spotify_playlist_id)
		VALUES ($1, $2, $3, $4)
		RETURNING `+campaignColumns,
		uuid.NewString(), c.Name, c.Description, c.SpotifyPlaylistID,
	))
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	*c = *created
	return nil
}

// UpdateCampaign applies the supplied fields and bumps updated_at.
func (s *PostgresStore) UpdateCampaign(ctx context.Context, id string, p CampaignPatch) (_ *Campaign, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "campaigns", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	var b setBuilder
	if p.Name != nil {
		b.add("name", *p.Name)
	}
	if p.Description != nil {
		b.add("description", *p.Description)
	}
	if p.SpotifyPlaylistID.Set {
		b.add("spotify_playlist_id", p.SpotifyPlaylistID.Value)
	}
	b.raw("updated_at = NOW()")

	query := `UPDATE campaigns SET ` + b.clause() + ` WHERE id = ` + b.where(id) + ` RETURNING ` + campaignColumns
	c, err := scanCampaign(s.db.QueryRowContext(ctx, query, b.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update campaign: %w", err)
	}
	return c, nil
}

// DeleteCampaign removes the campaign; the schema cascades to its children.
func (s *PostgresStore) DeleteCampaign(ctx context.Context, id string) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "campaigns", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	res, err := s.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	if n == 0 {
		return ErrCampaignNotFound
	}
	return nil
}
