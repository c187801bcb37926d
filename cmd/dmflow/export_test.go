package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/onnwee/dmflow/internal/campaign"
)

func seedCampaign(t *testing.T) (*campaign.InMemoryStore, string) {
	t.Helper()
	ctx := context.Background()
	store := campaign.NewInMemoryStore()

	c := &campaign.Campaign{Name: "Lost Mine", Description: "Phandelver"}
	require.NoError(t, store.CreateCampaign(ctx, c))

	enc := &campaign.Encounter{CampaignID: c.ID, Name: "Goblin Ambush", DMNotes: "Klarg hides"}
	require.NoError(t, store.CreateEncounter(ctx, enc))
	require.NoError(t, store.AddEnemy(ctx, &campaign.Enemy{EncounterID: enc.ID, Name: "Goblin", HitPoints: 7, ArmorClass: 15, Challenge: "1/4"}))
	require.NoError(t, store.AddLoot(ctx, &campaign.Loot{EncounterID: enc.ID, Name: "Gold"}))

	start := &campaign.FlowNode{CampaignID: c.ID, Type: campaign.NodeTypeStart, Label: "Road"}
	require.NoError(t, store.CreateNode(ctx, start))
	ambush := &campaign.FlowNode{CampaignID: c.ID, Type: campaign.NodeTypeEncounter, Label: "Ambush", PositionX: 200, EncounterID: &enc.ID}
	require.NoError(t, store.CreateNode(ctx, ambush))

	label := "continue"
	require.NoError(t, store.CreateEdge(ctx, &campaign.FlowEdge{CampaignID: c.ID, SourceNodeID: start.ID, TargetNodeID: ambush.ID, Label: &label}))
	require.NoError(t, store.SaveDrawing(ctx, &campaign.Drawing{FlowNodeID: ambush.ID, CanvasData: "[]"}))

	return store, c.ID
}

func TestExport(t *testing.T) {
	store, id := seedCampaign(t)

	detail, err := loadExport(context.Background(), store, id)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeExport(&buf, detail))

	var doc exportDocument
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "Lost Mine", doc.Campaign.Name)
	require.Len(t, doc.Nodes, 2)
	assert.Equal(t, "start", doc.Nodes[0].Type)
	assert.Equal(t, 200.0, doc.Nodes[1].X)
	assert.True(t, doc.Nodes[1].HasDrawing)

	require.Len(t, doc.Edges, 1)
	assert.Equal(t, doc.Nodes[0].ID, doc.Edges[0].From)
	assert.Equal(t, "continue", *doc.Edges[0].Label)

	require.Len(t, doc.Encounters, 1)
	enc := doc.Encounters[0]
	assert.Equal(t, "Klarg hides", enc.DMNotes)
	require.Len(t, enc.Enemies, 1)
	assert.Equal(t, 15, enc.Enemies[0].ArmorClass)
	require.Len(t, enc.Loot, 1)
	assert.Equal(t, 1, enc.Loot[0].Quantity)
	assert.Equal(t, "common", enc.Loot[0].Rarity)
}

func TestExport_UnknownCampaign(t *testing.T) {
	_, err := loadExport(context.Background(), campaign.NewInMemoryStore(), "missing")
	assert.ErrorIs(t, err, campaign.ErrCampaignNotFound)
}

func TestExportCmd_RequiresCampaignID(t *testing.T) {
	root := rootCmd()
	root.SetArgs([]string{"export"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	root := rootCmd()
	root.SetArgs([]string{"version"})
	root.SetOut(&out)
	require.NoError(t, root.Execute())
	assert.Equal(t, version+"\n", out.String())
}
