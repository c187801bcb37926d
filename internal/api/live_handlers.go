package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/onnwee/dmflow/internal/campaign"
	"github.com/onnwee/dmflow/internal/live"
)

// LiveHandlers upgrades player views to the campaign change feed.
type LiveHandlers struct {
	repo     campaign.CampaignRepository
	hub      *live.Hub
	upgrader websocket.Upgrader
}

// NewLiveHandlers creates a new LiveHandlers instance. A nil hub disables the
// feed. Browser connections are accepted from frontendURL only.
func NewLiveHandlers(repo campaign.CampaignRepository, hub *live.Hub, frontendURL string) *LiveHandlers {
	allowed := strings.TrimRight(frontendURL, "/")
	return &LiveHandlers{
		repo: repo,
		hub:  hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Non-browser clients send no Origin.
				return origin == "" || origin == allowed
			},
		},
	}
}

// Subscribe handles GET /campaigns/{id}/live.
func (h *LiveHandlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeCode(w, r, ErrCodeServiceUnavailable, "Live updates are disabled")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := h.repo.GetCampaign(r.Context(), id); err != nil {
		writeStoreError(w, r, err, "Failed to fetch campaign")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		slog.WarnContext(r.Context(), "live upgrade failed", "campaign_id", id, "error", err)
		return
	}
	h.hub.Serve(conn, id)
}
