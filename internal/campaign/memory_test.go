package campaign

import (
	"context"
	"errors"
	"testing"
)

func strPtr(s string) *string {
	return &s
}

func newCampaign(t *testing.T, s *InMemoryStore, name string) *Campaign {
	t.Helper()
	c := &Campaign{Name: name}
	if err := s.CreateCampaign(context.Background(), c); err != nil {
		t.Fatalf("CreateCampaign failed: %v", err)
	}
	return c
}

func newNode(t *testing.T, s *InMemoryStore, campaignID string, x, y float64) *FlowNode {
	t.Helper()
	n := &FlowNode{CampaignID: campaignID, Type: NodeTypeStart, Label: "Start", PositionX: x, PositionY: y}
	if err := s.CreateNode(context.Background(), n); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	return n
}

func TestInMemoryStore_CreateAndGetCampaign(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	c := newCampaign(t, s, "Curse of Strahd")
	if c.ID == "" {
		t.Fatal("Expected ID to be assigned")
	}
	if c.CreatedAt.IsZero() || c.UpdatedAt.IsZero() {
		t.Error("Expected timestamps to be set")
	}

	node := newNode(t, s, c.ID, 0, 0)

	detail, err := s.GetCampaign(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCampaign failed: %v", err)
	}
	if len(detail.FlowNodes) != 1 {
		t.Fatalf("Expected 1 node, got %d", len(detail.FlowNodes))
	}
	got := detail.FlowNodes[0]
	if got.ID != node.ID || got.PositionX != 0 || got.PositionY != 0 {
		t.Errorf("Unexpected node %+v", got)
	}

	if _, err := s.GetCampaign(ctx, "missing"); !errors.Is(err, ErrCampaignNotFound) {
		t.Errorf("Expected ErrCampaignNotFound, got %v", err)
	}
}

func TestInMemoryStore_ListCampaigns_MostRecentlyUpdatedFirst(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	first := newCampaign(t, s, "first")
	newCampaign(t, s, "second")

	if _, err := s.UpdateCampaign(ctx, first.ID, CampaignPatch{Description: strPtr("touched")}); err != nil {
		t.Fatalf("UpdateCampaign failed: %v", err)
	}

	list, err := s.ListCampaigns(ctx)
	if err != nil {
		t.Fatalf("ListCampaigns failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 campaigns, got %d", len(list))
	}
	if list[0].ID != first.ID {
		t.Errorf("Expected %s first, got %s", first.ID, list[0].ID)
	}
}

func TestInMemoryStore_UpdateCampaign_Merge(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	c := &Campaign{Name: "A", Description: "B", SpotifyPlaylistID: strPtr("playlist")}
	if err := s.CreateCampaign(ctx, c); err != nil {
		t.Fatalf("CreateCampaign failed: %v", err)
	}

	updated, err := s.UpdateCampaign(ctx, c.ID, CampaignPatch{Name: strPtr("C")})
	if err != nil {
		t.Fatalf("UpdateCampaign failed: %v", err)
	}
	if updated.Name != "C" || updated.Description != "B" {
		t.Errorf("Expected name C and description B, got %q %q", updated.Name, updated.Description)
	}
	if updated.SpotifyPlaylistID == nil || *updated.SpotifyPlaylistID != "playlist" {
		t.Error("Expected playlist to be unchanged")
	}

	updated, err = s.UpdateCampaign(ctx, c.ID, CampaignPatch{SpotifyPlaylistID: SetNull()})
	if err != nil {
		t.Fatalf("UpdateCampaign failed: %v", err)
	}
	if updated.SpotifyPlaylistID != nil {
		t.Error("Expected playlist to be cleared")
	}

	if _, err := s.UpdateCampaign(ctx, "missing", CampaignPatch{}); !errors.Is(err, ErrCampaignNotFound) {
		t.Errorf("Expected ErrCampaignNotFound, got %v", err)
	}
}

func TestInMemoryStore_DeleteCampaign_Cascade(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	c := newCampaign(t, s, "doomed")
	other := newCampaign(t, s, "survivor")

	enc := &Encounter{CampaignID: c.ID, Name: "Ambush"}
	if err := s.CreateEncounter(ctx, enc); err != nil {
		t.Fatalf("CreateEncounter failed: %v", err)
	}
	enemy := &Enemy{EncounterID: enc.ID, Name: "Goblin", HitPoints: 7, ArmorClass: 15, Challenge: "1/4"}
	if err := s.AddEnemy(ctx, enemy); err != nil {
		t.Fatalf("AddEnemy failed: %v", err)
	}
	loot := &Loot{EncounterID: enc.ID, Name: "Gold"}
	if err := s.AddLoot(ctx, loot); err != nil {
		t.Fatalf("AddLoot failed: %v", err)
	}

	a := newNode(t, s, c.ID, 0, 0)
	b := newNode(t, s, c.ID, 100, 0)
	if err := s.CreateEdge(ctx, &FlowEdge{CampaignID: c.ID, SourceNodeID: a.ID, TargetNodeID: b.ID}); err != nil {
		t.Fatalf("CreateEdge failed: %v", err)
	}
	if err := s.SaveDrawing(ctx, &Drawing{FlowNodeID: a.ID, CanvasData: "[]"}); err != nil {
		t.Fatalf("SaveDrawing failed: %v", err)
	}
	survivor := newNode(t, s, other.ID, 5, 5)

	if err := s.DeleteCampaign(ctx, c.ID); err != nil {
		t.Fatalf("DeleteCampaign failed: %v", err)
	}

	if len(s.nodes) != 1 || s.nodes[survivor.ID] == nil {
		t.Errorf("Expected only the other campaign's node to remain, got %d nodes", len(s.nodes))
	}
	if len(s.edges) != 0 || len(s.encounters) != 0 || len(s.enemies) != 0 || len(s.loot) != 0 || len(s.drawings) != 0 {
		t.Errorf("Expected no dependents to remain: edges=%d encounters=%d enemies=%d loot=%d drawings=%d",
			len(s.edges), len(s.encounters), len(s.enemies), len(s.loot), len(s.drawings))
	}
	if _, err := s.GetDrawing(ctx, a.ID); !errors.Is(err, ErrDrawingNotFound) {
		t.Errorf("Expected ErrDrawingNotFound, got %v", err)
	}
	if err := s.DeleteCampaign(ctx, c.ID); !errors.Is(err, ErrCampaignNotFound) {
		t.Errorf("Expected ErrCampaignNotFound on second delete, got %v", err)
	}
}

func TestInMemoryStore_UpdateNode_EncounterLink(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	c := newCampaign(t, s, "c")
	enc := &Encounter{CampaignID: c.ID, Name: "Bridge"}
	if err := s.CreateEncounter(ctx, enc); err != nil {
		t.Fatalf("CreateEncounter failed: %v", err)
	}
	n := newNode(t, s, c.ID, 1, 2)

	linked, err := s.UpdateNode(ctx, n.ID, NodePatch{EncounterID: SetString(enc.ID)})
	if err != nil {
		t.Fatalf("UpdateNode failed: %v", err)
	}
	if linked.Encounter == nil || linked.Encounter.Name != "Bridge" {
		t.Fatal("Expected nested encounter after linking")
	}

	// Omitting encounterId leaves the link alone.
	relabeled, err := s.UpdateNode(ctx, n.ID, NodePatch{Label: strPtr("Crossing")})
	if err != nil {
		t.Fatalf("UpdateNode failed: %v", err)
	}
	if relabeled.EncounterID == nil || *relabeled.EncounterID != enc.ID {
		t.Error("Expected encounter link to survive a label update")
	}
	if relabeled.PositionX != 1 || relabeled.PositionY != 2 {
		t.Error("Expected position to be unchanged")
	}

	unlinked, err := s.UpdateNode(ctx, n.ID, NodePatch{EncounterID: SetNull()})
	if err != nil {
		t.Fatalf("UpdateNode failed: %v", err)
	}
	if unlinked.EncounterID != nil || unlinked.Encounter != nil {
		t.Error("Expected encounter link to be cleared")
	}

	if _, err := s.UpdateNode(ctx, n.ID, NodePatch{EncounterID: SetString("missing")}); !errors.Is(err, ErrEncounterNotFound) {
		t.Errorf("Expected ErrEncounterNotFound, got %v", err)
	}
}

func TestInMemoryStore_DeleteNode_RemovesEdgesAndDrawing(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	c := newCampaign(t, s, "c")
	a := newNode(t, s, c.ID, 0, 0)
	b := newNode(t, s, c.ID, 1, 1)
	d := newNode(t, s, c.ID, 2, 2)

	for _, e := range []*FlowEdge{
		{CampaignID: c.ID, SourceNodeID: a.ID, TargetNodeID: b.ID},
		{CampaignID: c.ID, SourceNodeID: b.ID, TargetNodeID: d.ID},
		{CampaignID: c.ID, SourceNodeID: a.ID, TargetNodeID: d.ID},
	} {
		if err := s.CreateEdge(ctx, e); err != nil {
			t.Fatalf("CreateEdge failed: %v", err)
		}
	}
	if err := s.SaveDrawing(ctx, &Drawing{FlowNodeID: b.ID, CanvasData: "[]"}); err != nil {
		t.Fatalf("SaveDrawing failed: %v", err)
	}

	campaignID, err := s.DeleteNode(ctx, b.ID)
	if err != nil {
		t.Fatalf("DeleteNode failed: %v", err)
	}
	if campaignID != c.ID {
		t.Errorf("Expected campaign %s, got %s", c.ID, campaignID)
	}

	flow, err := s.GetFlow(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetFlow failed: %v", err)
	}
	if len(flow.Nodes) != 2 || len(flow.Edges) != 1 {
		t.Fatalf("Expected 2 nodes and 1 edge, got %d and %d", len(flow.Nodes), len(flow.Edges))
	}
	if flow.Edges[0].SourceNodeID != a.ID || flow.Edges[0].TargetNodeID != d.ID {
		t.Error("Expected the edge not touching the deleted node to remain")
	}
	if _, err := s.GetDrawing(ctx, b.ID); !errors.Is(err, ErrDrawingNotFound) {
		t.Errorf("Expected drawing to be deleted, got %v", err)
	}
}

func TestInMemoryStore_CreateEdge_UnknownEndpoint(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	c := newCampaign(t, s, "c")
	a := newNode(t, s, c.ID, 0, 0)

	err := s.CreateEdge(ctx, &FlowEdge{CampaignID: c.ID, SourceNodeID: a.ID, TargetNodeID: "missing"})
	if !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("Expected ErrNodeNotFound, got %v", err)
	}
}

func TestInMemoryStore_BulkUpdatePositions_AllOrNothing(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	c := newCampaign(t, s, "c")
	a := newNode(t, s, c.ID, 0, 0)
	b := newNode(t, s, c.ID, 10, 10)

	err := s.BulkUpdatePositions(ctx, c.ID, []NodePosition{
		{ID: a.ID, PositionX: 50, PositionY: 50},
		{ID: "missing", PositionX: 1, PositionY: 1},
	})
	if !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("Expected ErrNodeNotFound, got %v", err)
	}

	got, _ := s.GetNode(ctx, a.ID)
	if got.PositionX != 0 || got.PositionY != 0 {
		t.Errorf("Expected node to stay at (0,0), got (%v,%v)", got.PositionX, got.PositionY)
	}

	err = s.BulkUpdatePositions(ctx, c.ID, []NodePosition{
		{ID: a.ID, PositionX: 50, PositionY: 60},
		{ID: b.ID, PositionX: -5, PositionY: 0},
	})
	if err != nil {
		t.Fatalf("BulkUpdatePositions failed: %v", err)
	}
	got, _ = s.GetNode(ctx, a.ID)
	if got.PositionX != 50 || got.PositionY != 60 {
		t.Errorf("Expected (50,60), got (%v,%v)", got.PositionX, got.PositionY)
	}
	got, _ = s.GetNode(ctx, b.ID)
	if got.PositionX != -5 || got.PositionY != 0 {
		t.Errorf("Expected (-5,0), got (%v,%v)", got.PositionX, got.PositionY)
	}
}

func TestInMemoryStore_BulkUpdatePositions_ForeignNode(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	c := newCampaign(t, s, "c")
	other := newCampaign(t, s, "other")
	foreign := newNode(t, s, other.ID, 0, 0)

	err := s.BulkUpdatePositions(ctx, c.ID, []NodePosition{{ID: foreign.ID, PositionX: 9, PositionY: 9}})
	if !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("Expected ErrNodeNotFound, got %v", err)
	}
}

func TestInMemoryStore_Encounter_ChildrenAndUnlink(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	c := newCampaign(t, s, "c")
	enc := &Encounter{CampaignID: c.ID, Name: "Crypt"}
	if err := s.CreateEncounter(ctx, enc); err != nil {
		t.Fatalf("CreateEncounter failed: %v", err)
	}
	if enc.Enemies == nil || enc.Loot == nil {
		t.Error("Expected empty enemy and loot lists on a new encounter")
	}

	for _, name := range []string{"Skeleton", "Zombie", "Ghoul"} {
		if err := s.AddEnemy(ctx, &Enemy{EncounterID: enc.ID, Name: name, HitPoints: 10, ArmorClass: 12, Challenge: "1"}); err != nil {
			t.Fatalf("AddEnemy failed: %v", err)
		}
	}

	n := &FlowNode{CampaignID: c.ID, Type: NodeTypeEncounter, Label: "Crypt", EncounterID: strPtr(enc.ID)}
	if err := s.CreateNode(ctx, n); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	got, err := s.GetEncounter(ctx, enc.ID)
	if err != nil {
		t.Fatalf("GetEncounter failed: %v", err)
	}
	names := []string{}
	for _, e := range got.Enemies {
		names = append(names, e.Name)
	}
	if len(names) != 3 || names[0] != "Skeleton" || names[2] != "Ghoul" {
		t.Errorf("Expected enemies in insertion order, got %v", names)
	}
	if got.FlowNode == nil || got.FlowNode.ID != n.ID {
		t.Error("Expected linking flow node")
	}

	if _, err := s.DeleteEncounter(ctx, enc.ID); err != nil {
		t.Fatalf("DeleteEncounter failed: %v", err)
	}
	node, err := s.GetNode(ctx, n.ID)
	if err != nil {
		t.Fatalf("Expected node to survive encounter delete: %v", err)
	}
	if node.EncounterID != nil {
		t.Error("Expected node encounter link to be cleared")
	}
	if len(s.enemies) != 0 {
		t.Errorf("Expected enemies to be deleted, %d remain", len(s.enemies))
	}
}

func TestInMemoryStore_AddLoot_Defaults(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	c := newCampaign(t, s, "c")
	enc := &Encounter{CampaignID: c.ID, Name: "Hoard"}
	if err := s.CreateEncounter(ctx, enc); err != nil {
		t.Fatalf("CreateEncounter failed: %v", err)
	}

	l := &Loot{EncounterID: enc.ID, Name: "Gem"}
	if err := s.AddLoot(ctx, l); err != nil {
		t.Fatalf("AddLoot failed: %v", err)
	}
	if l.Quantity != 1 || l.Rarity != RarityCommon {
		t.Errorf("Expected quantity 1 and rarity common, got %d %s", l.Quantity, l.Rarity)
	}

	if err := s.AddLoot(ctx, &Loot{EncounterID: "missing", Name: "x"}); !errors.Is(err, ErrEncounterNotFound) {
		t.Errorf("Expected ErrEncounterNotFound, got %v", err)
	}
}

func TestInMemoryStore_SaveDrawing_Upsert(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	c := newCampaign(t, s, "c")
	n := newNode(t, s, c.ID, 0, 0)

	first := &Drawing{FlowNodeID: n.ID, CanvasData: `[{"type":"rect"}]`, ThumbnailURL: strPtr("https://cdn/x.png")}
	if err := s.SaveDrawing(ctx, first); err != nil {
		t.Fatalf("SaveDrawing failed: %v", err)
	}
	second := &Drawing{FlowNodeID: n.ID, CanvasData: `[{"type":"rect"}]`}
	if err := s.SaveDrawing(ctx, second); err != nil {
		t.Fatalf("SaveDrawing failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("Expected the same drawing id, got %s and %s", first.ID, second.ID)
	}
	if len(s.drawings) != 1 {
		t.Errorf("Expected exactly one drawing, got %d", len(s.drawings))
	}
	if second.ThumbnailURL == nil || *second.ThumbnailURL != "https://cdn/x.png" {
		t.Error("Expected thumbnail to be kept when omitted")
	}

	if err := s.SaveDrawing(ctx, &Drawing{FlowNodeID: "missing", CanvasData: "[]"}); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("Expected ErrNodeNotFound, got %v", err)
	}
}
