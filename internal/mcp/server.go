// Package mcp exposes read-only campaign lookups as Model Context Protocol
// tools so an assistant can answer "what happens next?" during a session.
// Output is player-safe: DM notes are never returned.
package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/onnwee/dmflow/internal/campaign"
)

// Reader is the subset of campaign.Store the tools need.
type Reader interface {
	ListCampaigns(ctx context.Context) ([]campaign.Campaign, error)
	GetCampaign(ctx context.Context, id string) (*campaign.Detail, error)
	GetEncounter(ctx context.Context, id string) (*campaign.Encounter, error)
}

type Server struct {
	store Reader
	mcp   *sdk.Server
}

func NewServer(store Reader, version string) *Server {
	s := &Server{
		store: store,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "dmflow",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s
}

func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}
