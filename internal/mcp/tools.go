package mcp

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/onnwee/dmflow/internal/campaign"
)

type ListCampaignsInput struct{}

type GetCampaignFlowInput struct {
	CampaignID string `json:"campaignId" jsonschema:"campaign id"`
}

type GetEncounterInput struct {
	EncounterID string `json:"encounterId" jsonschema:"encounter id"`
}

type CampaignSummaryOutput struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ListCampaignsOutput struct {
	Campaigns []CampaignSummaryOutput `json:"campaigns"`
}

type NodeOutput struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Label       string  `json:"label"`
	Description string  `json:"description"`
	EncounterID *string `json:"encounterId,omitempty"`
}

type EdgeOutput struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Label  *string `json:"label,omitempty"`
}

type CampaignFlowOutput struct {
	CampaignID string       `json:"campaignId"`
	Name       string       `json:"name"`
	Nodes      []NodeOutput `json:"nodes"`
	Edges      []EdgeOutput `json:"edges"`
}

type EnemyOutput struct {
	Name       string `json:"name"`
	HitPoints  int    `json:"hitPoints"`
	ArmorClass int    `json:"armorClass"`
	Challenge  string `json:"challenge"`
	Abilities  string `json:"abilities"`
}

type LootOutput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	Rarity      string `json:"rarity"`
}

type EncounterOutput struct {
	ID              string        `json:"id"`
	CampaignID      string        `json:"campaignId"`
	Name            string        `json:"name"`
	StoryText       string        `json:"storyText"`
	SpotifyTrackURI *string       `json:"spotifyTrackUri,omitempty"`
	Enemies         []EnemyOutput `json:"enemies"`
	Loot            []LootOutput  `json:"loot"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_campaigns",
		Description: "List every campaign, most recently updated first",
	}, s.handleListCampaigns)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_campaign_flow",
		Description: "Return the story flowchart (nodes and edges) of a campaign",
	}, s.handleGetCampaignFlow)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_encounter",
		Description: "Return an encounter's read-aloud text, enemies and loot",
	}, s.handleGetEncounter)
}

func (s *Server) handleListCampaigns(ctx context.Context, req *sdk.CallToolRequest, input ListCampaignsInput) (*sdk.CallToolResult, ListCampaignsOutput, error) {
	campaigns, err := s.store.ListCampaigns(ctx)
	if err != nil {
		return nil, ListCampaignsOutput{}, err
	}

	output := make([]CampaignSummaryOutput, 0, len(campaigns))
	for _, c := range campaigns {
		output = append(output, CampaignSummaryOutput{ID: c.ID, Name: c.Name, Description: c.Description})
	}
	return nil, ListCampaignsOutput{Campaigns: output}, nil
}

func (s *Server) handleGetCampaignFlow(ctx context.Context, req *sdk.CallToolRequest, input GetCampaignFlowInput) (*sdk.CallToolResult, CampaignFlowOutput, error) {
	if input.CampaignID == "" {
		return nil, CampaignFlowOutput{}, fmt.Errorf("campaignId is required")
	}
	detail, err := s.store.GetCampaign(ctx, input.CampaignID)
	if errors.Is(err, campaign.ErrCampaignNotFound) {
		return nil, CampaignFlowOutput{}, fmt.Errorf("campaign %q not found", input.CampaignID)
	}
	if err != nil {
		return nil, CampaignFlowOutput{}, err
	}

	out := CampaignFlowOutput{
		CampaignID: detail.ID,
		Name:       detail.Name,
		Nodes:      make([]NodeOutput, 0, len(detail.FlowNodes)),
		Edges:      make([]EdgeOutput, 0, len(detail.FlowEdges)),
	}
	for _, n := range detail.FlowNodes {
		out.Nodes = append(out.Nodes, NodeOutput{
			ID:          n.ID,
			Type:        string(n.Type),
			Label:       n.Label,
			Description: n.Description,
			EncounterID: n.EncounterID,
		})
	}
	for _, e := range detail.FlowEdges {
		out.Edges = append(out.Edges, EdgeOutput{Source: e.SourceNodeID, Target: e.TargetNodeID, Label: e.Label})
	}
	return nil, out, nil
}

func (s *Server) handleGetEncounter(ctx context.Context, req *sdk.CallToolRequest, input GetEncounterInput) (*sdk.CallToolResult, EncounterOutput, error) {
	if input.EncounterID == "" {
		return nil, EncounterOutput{}, fmt.Errorf("encounterId is required")
	}
	enc, err := s.store.GetEncounter(ctx, input.EncounterID)
	if errors.Is(err, campaign.ErrEncounterNotFound) {
		return nil, EncounterOutput{}, fmt.Errorf("encounter %q not found", input.EncounterID)
	}
	if err != nil {
		return nil, EncounterOutput{}, err
	}
	return nil, encounterOutput(enc), nil
}

// encounterOutput drops DMNotes.
func encounterOutput(e *campaign.Encounter) EncounterOutput {
	out := EncounterOutput{
		ID:              e.ID,
		CampaignID:      e.CampaignID,
		Name:            e.Name,
		StoryText:       e.StoryText,
		SpotifyTrackURI: e.SpotifyTrackURI,
		Enemies:         make([]EnemyOutput, 0, len(e.Enemies)),
		Loot:            make([]LootOutput, 0, len(e.Loot)),
	}
	for _, en := range e.Enemies {
		out.Enemies = append(out.Enemies, EnemyOutput{
			Name:       en.Name,
			HitPoints:  en.HitPoints,
			ArmorClass: en.ArmorClass,
			Challenge:  en.Challenge,
			Abilities:  en.Abilities,
		})
	}
	for _, l := range e.Loot {
		out.Loot = append(out.Loot, LootOutput{
			Name:        l.Name,
			Description: l.Description,
			Quantity:    l.Quantity,
			Rarity:      string(l.Rarity),
		})
	}
	return out
}
