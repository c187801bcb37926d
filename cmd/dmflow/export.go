package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/onnwee/dmflow/internal/campaign"
)

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <campaignId>",
		Short: "Write a campaign, its flowchart and encounters as YAML to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store, conn, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if conn != nil {
		defer conn.Close()
	}

	detail, err := loadExport(ctx, store, args[0])
	if err != nil {
		return err
	}
	return writeExport(cmd.OutOrStdout(), detail)
}

type exportReader interface {
	GetCampaign(ctx context.Context, id string) (*campaign.Detail, error)
	GetEncounter(ctx context.Context, id string) (*campaign.Encounter, error)
}

// loadExport reads the campaign and fills in each encounter's enemies and loot,
// which the campaign detail leaves out.
func loadExport(ctx context.Context, store exportReader, id string) (*campaign.Detail, error) {
	detail, err := store.GetCampaign(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign %s: %w", id, err)
	}
	for i, e := range detail.Encounters {
		full, err := store.GetEncounter(ctx, e.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load encounter %s: %w", e.ID, err)
		}
		detail.Encounters[i] = *full
	}
	return detail, nil
}

type exportDocument struct {
	Campaign   exportCampaign    `yaml:"campaign"`
	Nodes      []exportNode      `yaml:"nodes"`
	Edges      []exportEdge      `yaml:"edges"`
	Encounters []exportEncounter `yaml:"encounters"`
}

type exportCampaign struct {
	ID                string  `yaml:"id"`
	Name              string  `yaml:"name"`
	Description       string  `yaml:"description,omitempty"`
	SpotifyPlaylistID *string `yaml:"spotify_playlist_id,omitempty"`
}

type exportNode struct {
	ID          string  `yaml:"id"`
	Type        string  `yaml:"type"`
	Label       string  `yaml:"label"`
	Description string  `yaml:"description,omitempty"`
	X           float64 `yaml:"x"`
	Y           float64 `yaml:"y"`
	EncounterID *string `yaml:"encounter_id,omitempty"`
	Thumbnail   *string `yaml:"thumbnail,omitempty"`
	HasDrawing  bool    `yaml:"has_drawing,omitempty"`
}

type exportEdge struct {
	From  string  `yaml:"from"`
	To    string  `yaml:"to"`
	Label *string `yaml:"label,omitempty"`
}

type exportEncounter struct {
	ID           string        `yaml:"id"`
	Name         string        `yaml:"name"`
	StoryText    string        `yaml:"story_text,omitempty"`
	DMNotes      string        `yaml:"dm_notes,omitempty"`
	SpotifyTrack *string       `yaml:"spotify_track,omitempty"`
	Enemies      []exportEnemy `yaml:"enemies,omitempty"`
	Loot         []exportLoot  `yaml:"loot,omitempty"`
}

type exportEnemy struct {
	Name       string `yaml:"name"`
	HitPoints  int    `yaml:"hp"`
	ArmorClass int    `yaml:"ac"`
	Challenge  string `yaml:"cr"`
	Abilities  string `yaml:"abilities,omitempty"`
}

type exportLoot struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Quantity    int    `yaml:"quantity"`
	Rarity      string `yaml:"rarity"`
}

func buildExport(d *campaign.Detail) exportDocument {
	doc := exportDocument{
		Campaign: exportCampaign{
			ID:                d.ID,
			Name:              d.Name,
			Description:       d.Description,
			SpotifyPlaylistID: d.SpotifyPlaylistID,
		},
		Nodes:      make([]exportNode, 0, len(d.FlowNodes)),
		Edges:      make([]exportEdge, 0, len(d.FlowEdges)),
		Encounters: make([]exportEncounter, 0, len(d.Encounters)),
	}

	for _, n := range d.FlowNodes {
		node := exportNode{
			ID:          n.ID,
			Type:        string(n.Type),
			Label:       n.Label,
			Description: n.Description,
			X:           n.PositionX,
			Y:           n.PositionY,
			EncounterID: n.EncounterID,
		}
		if n.Drawing != nil {
			node.HasDrawing = true
			node.Thumbnail = n.Drawing.ThumbnailURL
		}
		doc.Nodes = append(doc.Nodes, node)
	}

	for _, e := range d.FlowEdges {
		doc.Edges = append(doc.Edges, exportEdge{From: e.SourceNodeID, To: e.TargetNodeID, Label: e.Label})
	}

	for _, e := range d.Encounters {
		enc := exportEncounter{
			ID:           e.ID,
			Name:         e.Name,
			StoryText:    e.StoryText,
			DMNotes:      e.DMNotes,
			SpotifyTrack: e.SpotifyTrackURI,
		}
		for _, en := range e.Enemies {
			enc.Enemies = append(enc.Enemies, exportEnemy{
				Name:       en.Name,
				HitPoints:  en.HitPoints,
				ArmorClass: en.ArmorClass,
				Challenge:  en.Challenge,
				Abilities:  en.Abilities,
			})
		}
		for _, l := range e.Loot {
			enc.Loot = append(enc.Loot, exportLoot{
				Name:        l.Name,
				Description: l.Description,
				Quantity:    l.Quantity,
				Rarity:      string(l.Rarity),
			})
		}
		doc.Encounters = append(doc.Encounters, enc)
	}
	return doc
}

// writeExport encodes d as a YAML document.
func writeExport(w io.Writer, d *campaign.Detail) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(buildExport(d)); err != nil {
		return fmt.Errorf("failed to encode campaign: %w", err)
	}
	return enc.Close()
}
