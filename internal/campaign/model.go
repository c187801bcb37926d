// Package campaign provides the models and repositories behind a DM's campaign:
// the campaign itself, its story flowchart (nodes and edges), encounters with
// their enemies and loot, and the hand-drawn map attached to a node.
package campaign

import (
	"encoding/json"
	"time"
)

// NodeType classifies a node in the story flowchart.
type NodeType string

// Node types accepted by the flowchart editor.
const (
	NodeTypeStart     NodeType = "start"
	NodeTypeEncounter NodeType = "encounter"
	NodeTypeDecision  NodeType = "decision"
	NodeTypeEnd       NodeType = "end"
)

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeStart, NodeTypeEncounter, NodeTypeDecision, NodeTypeEnd:
		return true
	}
	return false
}

// Rarity is the ordinal quality tag of a loot item.
type Rarity string

// Loot rarities, lowest to highest.
const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityVeryRare  Rarity = "very_rare"
	RarityLegendary Rarity = "legendary"
)

// Valid reports whether r is one of the five known rarities.
func (r Rarity) Valid() bool {
	switch r {
	case RarityCommon, RarityUncommon, RarityRare, RarityVeryRare, RarityLegendary:
		return true
	}
	return false
}

// DefaultLootQuantity is used when a loot item is created without a quantity.
const DefaultLootQuantity = 1

// Campaign is the top-level container a DM authors.
type Campaign struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	SpotifyPlaylistID *string   `json:"spotifyPlaylistId"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Detail is a campaign with its flowchart and encounters loaded.
type Detail struct {
	Campaign
	FlowNodes  []FlowNode  `json:"flowNodes"`
	FlowEdges  []FlowEdge  `json:"flowEdges"`
	Encounters []Encounter `json:"encounters"`
}

// FlowNode is a vertex of the story flowchart.
// Encounter and Drawing are populated on reads; they are never written through the node.
type FlowNode struct {
	ID          string     `json:"id"`
	CampaignID  string     `json:"campaignId"`
	Type        NodeType   `json:"type"`
	Label       string     `json:"label"`
	Description string     `json:"description"`
	PositionX   float64    `json:"positionX"`
	PositionY   float64    `json:"positionY"`
	EncounterID *string    `json:"encounterId"`
	Encounter   *Encounter `json:"encounter"`
	Drawing     *Drawing   `json:"drawing"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// FlowEdge is a directed arc between two nodes of the same flowchart.
// Neither acyclicity nor uniqueness of (source, target) is enforced.
type FlowEdge struct {
	ID           string    `json:"id"`
	CampaignID   string    `json:"campaignId"`
	SourceNodeID string    `json:"sourceNodeId"`
	TargetNodeID string    `json:"targetNodeId"`
	Label        *string   `json:"label"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Flow is the full node and edge set of one campaign.
type Flow struct {
	Nodes []FlowNode `json:"nodes"`
	Edges []FlowEdge `json:"edges"`
}

// NodePosition is one entry of a bulk position update.
type NodePosition struct {
	ID        string  `json:"id"`
	PositionX float64 `json:"positionX"`
	PositionY float64 `json:"positionY"`
}

// Encounter bundles the narrative, enemies and loot of one story beat.
// StoryText is read to the players; DMNotes is private to the DM.
type Encounter struct {
	ID              string    `json:"id"`
	CampaignID      string    `json:"campaignId"`
	Name            string    `json:"name"`
	StoryText       string    `json:"storyText"`
	DMNotes         string    `json:"dmNotes"`
	SpotifyTrackURI *string   `json:"spotifyTrackUri"`
	Enemies         []Enemy   `json:"enemies"`
	Loot            []Loot    `json:"loot"`
	FlowNode        *FlowNode `json:"flowNode"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// MarshalJSON leaves out enemies, loot and flowNode when the children were
// not loaded (Enemies is nil), as for encounters nested in a node or campaign.
func (e Encounter) MarshalJSON() ([]byte, error) {
	type plain Encounter
	if e.Enemies != nil {
		return json.Marshal(plain(e))
	}
	return json.Marshal(struct {
		plain
		Enemies  []Enemy  `json:"enemies,omitempty"`
		Loot     []Loot   `json:"loot,omitempty"`
		FlowNode *FlowNode `json:"flowNode,omitempty"`
	}{plain: plain(e)})
}

// Enemy is a combatant of an encounter.
type Enemy struct {
	ID          string  `json:"id"`
	EncounterID string  `json:"encounterId"`
	Name        string  `json:"name"`
	HitPoints   int     `json:"hitPoints"`
	ArmorClass  int     `json:"armorClass"`
	Challenge   string  `json:"challenge"`
	Abilities   string  `json:"abilities"`
	ImageURL    *string `json:"imageUrl"`

	// CampaignID is the owning campaign, resolved through the encounter.
	CampaignID string    `json:"-"`
	CreatedAt  time.Time `json:"-"`
}

// Loot is a reward item of an encounter.
type Loot struct {
	ID          string `json:"id"`
	EncounterID string `json:"encounterId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	Rarity      Rarity `json:"rarity"`

	CampaignID string    `json:"-"`
	CreatedAt  time.Time `json:"-"`
}

// Drawing is the hand-drawn area map of a node. CanvasData is the serialized
// shape list produced by the editor and is stored without interpretation.
type Drawing struct {
	ID           string    `json:"id"`
	FlowNodeID   string    `json:"flowNodeId"`
	CanvasData   string    `json:"canvasData"`
	ThumbnailURL *string   `json:"thumbnailUrl"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	CampaignID string `json:"-"`
}

// ApplyDefaults fills in the quantity and rarity of a new loot item.
// A zero quantity counts as omitted.
func (l *Loot) ApplyDefaults() {
	if l.Quantity == 0 {
		l.Quantity = DefaultLootQuantity
	}
	if l.Rarity == "" {
		l.Rarity = RarityCommon
	}
}
