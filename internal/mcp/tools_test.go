package mcp

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/onnwee/dmflow/internal/campaign"
)

func seedStore(t *testing.T) (*campaign.InMemoryStore, *campaign.Campaign, *campaign.Encounter) {
	t.Helper()
	ctx := context.Background()
	store := campaign.NewInMemoryStore()

	c := &campaign.Campaign{Name: "Lost Mine", Description: "Starter adventure"}
	if err := store.CreateCampaign(ctx, c); err != nil {
		t.Fatalf("CreateCampaign() error = %v", err)
	}
	enc := &campaign.Encounter{CampaignID: c.ID, Name: "Goblin Ambush", StoryText: "Arrows fly.", DMNotes: "Klarg is hiding"}
	if err := store.CreateEncounter(ctx, enc); err != nil {
		t.Fatalf("CreateEncounter() error = %v", err)
	}
	if err := store.AddEnemy(ctx, &campaign.Enemy{EncounterID: enc.ID, Name: "Goblin", HitPoints: 7, ArmorClass: 15, Challenge: "1/4"}); err != nil {
		t.Fatalf("AddEnemy() error = %v", err)
	}
	loot := &campaign.Loot{EncounterID: enc.ID, Name: "Gold"}
	if err := store.AddLoot(ctx, loot); err != nil {
		t.Fatalf("AddLoot() error = %v", err)
	}

	start := &campaign.FlowNode{CampaignID: c.ID, Type: campaign.NodeTypeStart, Label: "Road"}
	ambush := &campaign.FlowNode{CampaignID: c.ID, Type: campaign.NodeTypeEncounter, Label: "Ambush", EncounterID: &enc.ID}
	for _, n := range []*campaign.FlowNode{start, ambush} {
		if err := store.CreateNode(ctx, n); err != nil {
			t.Fatalf("CreateNode() error = %v", err)
		}
	}
	if err := store.CreateEdge(ctx, &campaign.FlowEdge{CampaignID: c.ID, SourceNodeID: start.ID, TargetNodeID: ambush.ID}); err != nil {
		t.Fatalf("CreateEdge() error = %v", err)
	}
	return store, c, enc
}

func TestListCampaigns(t *testing.T) {
	store, c, _ := seedStore(t)
	server := NewServer(store, "test")

	_, output, err := server.handleListCampaigns(context.Background(), nil, ListCampaignsInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(output.Campaigns) != 1 || output.Campaigns[0].ID != c.ID || output.Campaigns[0].Name != "Lost Mine" {
		t.Errorf("unexpected campaigns: %+v", output.Campaigns)
	}
}

func TestGetCampaignFlow(t *testing.T) {
	store, c, enc := seedStore(t)
	server := NewServer(store, "test")

	_, output, err := server.handleGetCampaignFlow(context.Background(), nil, GetCampaignFlowInput{CampaignID: c.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(output.Nodes) != 2 || len(output.Edges) != 1 {
		t.Fatalf("got %d nodes, %d edges; want 2, 1", len(output.Nodes), len(output.Edges))
	}
	if output.Nodes[1].EncounterID == nil || *output.Nodes[1].EncounterID != enc.ID {
		t.Errorf("encounter node lost its link: %+v", output.Nodes[1])
	}
	if output.Edges[0].Source != output.Nodes[0].ID || output.Edges[0].Target != output.Nodes[1].ID {
		t.Errorf("unexpected edge: %+v", output.Edges[0])
	}
}

func TestGetCampaignFlow_Errors(t *testing.T) {
	server := NewServer(campaign.NewInMemoryStore(), "test")

	if _, _, err := server.handleGetCampaignFlow(context.Background(), nil, GetCampaignFlowInput{}); err == nil {
		t.Error("expected error for missing campaignId")
	}
	_, _, err := server.handleGetCampaignFlow(context.Background(), nil, GetCampaignFlowInput{CampaignID: "missing"})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestGetEncounter_OmitsDMNotes(t *testing.T) {
	store, _, enc := seedStore(t)
	server := NewServer(store, "test")

	_, output, err := server.handleGetEncounter(context.Background(), nil, GetEncounterInput{EncounterID: enc.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output.StoryText != "Arrows fly." {
		t.Errorf("StoryText = %q", output.StoryText)
	}
	if len(output.Enemies) != 1 || output.Enemies[0].Challenge != "1/4" {
		t.Errorf("unexpected enemies: %+v", output.Enemies)
	}
	if len(output.Loot) != 1 || output.Loot[0].Quantity != 1 || output.Loot[0].Rarity != "common" {
		t.Errorf("unexpected loot: %+v", output.Loot)
	}

	raw, _ := json.Marshal(output)
	if strings.Contains(string(raw), "Klarg") {
		t.Errorf("DM notes leaked into tool output: %s", raw)
	}

	if _, _, err := server.handleGetEncounter(context.Background(), nil, GetEncounterInput{EncounterID: "missing"}); err == nil {
		t.Error("expected error for unknown encounter")
	}
}

func TestServer_ListsToolsOverTransport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := NewServer(campaign.NewInMemoryStore(), "test")
	clientTransport, serverTransport := sdk.NewInMemoryTransports()
	go func() { _ = server.Run(ctx, serverTransport) }()

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer session.Close()

	res, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools() error = %v", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	want := []string{"get_campaign_flow", "get_encounter", "list_campaigns"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("tools = %v, want %v", names, want)
	}
}
