package campaign

import (
	"context"
	"errors"
)

// Common errors for campaign operations.
var (
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrNodeNotFound      = errors.New("flow node not found")
	ErrEdgeNotFound      = errors.New("flow edge not found")
	ErrEncounterNotFound = errors.New("encounter not found")
	ErrEnemyNotFound     = errors.New("enemy not found")
	ErrLootNotFound      = errors.New("loot not found")
	ErrDrawingNotFound   = errors.New("drawing not found")
)

// CampaignRepository defines the interface for campaign data operations.
type CampaignRepository interface {
	// ListCampaigns returns every campaign, most recently updated first.
	ListCampaigns(ctx context.Context) ([]Campaign, error)

	// GetCampaign returns a campaign with its nodes (including their encounter
	// and drawing), edges and encounters.
	GetCampaign(ctx context.Context, id string) (*Detail, error)

	// CreateCampaign assigns ID and timestamps and persists c.
	CreateCampaign(ctx context.Context, c *Campaign) error

	// UpdateCampaign applies the supplied fields of p and returns the result.
	UpdateCampaign(ctx context.Context, id string, p CampaignPatch) (*Campaign, error)

	// DeleteCampaign removes the campaign and everything it owns.
	DeleteCampaign(ctx context.Context, id string) error
}

// FlowRepository defines the interface for flowchart data operations.
// Mutations that only know a child id return the owning campaign id so
// callers can announce the change.
type FlowRepository interface {
	// GetFlow returns the nodes and edges of a campaign. An unknown campaign
	// yields an empty flow.
	GetFlow(ctx context.Context, campaignID string) (*Flow, error)
	GetNode(ctx context.Context, id string) (*FlowNode, error)

	// CreateNode returns ErrCampaignNotFound or ErrEncounterNotFound when a
	// referenced record does not exist.
	CreateNode(ctx context.Context, n *FlowNode) error
	UpdateNode(ctx context.Context, id string, p NodePatch) (*FlowNode, error)

	// DeleteNode removes the node, its drawing and every edge touching it.
	DeleteNode(ctx context.Context, id string) (string, error)

	// CreateEdge returns ErrNodeNotFound when either endpoint does not exist.
	// Endpoints are not required to belong to the edge's campaign.
	CreateEdge(ctx context.Context, e *FlowEdge) error
	UpdateEdge(ctx context.Context, id string, p EdgePatch) (*FlowEdge, error)
	DeleteEdge(ctx context.Context, id string) (string, error)

	// BulkUpdatePositions moves every listed node of the campaign atomically.
	// If any id is unknown (or belongs to another campaign) it returns
	// ErrNodeNotFound and no node moves.
	BulkUpdatePositions(ctx context.Context, campaignID string, positions []NodePosition) error
}

// EncounterRepository defines the interface for encounter, enemy and loot operations.
type EncounterRepository interface {
	// GetEncounter returns the encounter with enemies and loot in insertion
	// order and the node linking it, if any.
	GetEncounter(ctx context.Context, id string) (*Encounter, error)
	CreateEncounter(ctx context.Context, e *Encounter) error
	UpdateEncounter(ctx context.Context, id string, p EncounterPatch) (*Encounter, error)

	// DeleteEncounter removes enemies and loot and clears the link on any node.
	DeleteEncounter(ctx context.Context, id string) (string, error)

	AddEnemy(ctx context.Context, e *Enemy) error
	UpdateEnemy(ctx context.Context, id string, p EnemyPatch) (*Enemy, error)
	DeleteEnemy(ctx context.Context, id string) (string, error)

	AddLoot(ctx context.Context, l *Loot) error
	UpdateLoot(ctx context.Context, id string, p LootPatch) (*Loot, error)
	DeleteLoot(ctx context.Context, id string) (string, error)
}

// DrawingRepository defines the interface for node drawing operations.
type DrawingRepository interface {
	GetDrawing(ctx context.Context, nodeID string) (*Drawing, error)

	// SaveDrawing creates the node's drawing or overwrites the existing one,
	// keeping its id. Returns ErrNodeNotFound for an unknown node.
	SaveDrawing(ctx context.Context, d *Drawing) error
	DeleteDrawing(ctx context.Context, nodeID string) (string, error)
}

// Store groups every repository backing the API.
type Store interface {
	CampaignRepository
	FlowRepository
	EncounterRepository
	DrawingRepository
}

var (
	_ Store = (*InMemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
