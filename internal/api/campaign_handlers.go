package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/onnwee/dmflow/internal/campaign"
	"github.com/onnwee/dmflow/internal/live"
)

// CreateCampaignRequest represents the request body for creating a campaign.
type CreateCampaignRequest struct {
	Name              string  `json:"name" validate:"required"`
	Description       string  `json:"description"`
	SpotifyPlaylistID *string `json:"spotifyPlaylistId"`
}

// CampaignHandlers holds dependencies for campaign HTTP handlers.
type CampaignHandlers struct {
	repo      campaign.CampaignRepository
	publisher live.Publisher
}

// NewCampaignHandlers creates a new CampaignHandlers instance. publisher may be nil.
func NewCampaignHandlers(repo campaign.CampaignRepository, publisher live.Publisher) *CampaignHandlers {
	return &CampaignHandlers{repo: repo, publisher: publisher}
}

// ListCampaigns handles GET /campaigns.
func (h *CampaignHandlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.repo.ListCampaigns(r.Context())
	if err != nil {
		writeInternal(w, r, err, "Failed to fetch campaigns")
		return
	}
	writeJSON(w, r, http.StatusOK, campaigns)
}

// GetCampaign handles GET /campaigns/{id}.
func (h *CampaignHandlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	detail, err := h.repo.GetCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err, "Failed to fetch campaign")
		return
	}
	writeJSON(w, r, http.StatusOK, detail)
}

// CreateCampaign handles POST /campaigns.
func (h *CampaignHandlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CreateCampaignRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c := &campaign.Campaign{
		Name:              req.Name,
		Description:       req.Description,
		SpotifyPlaylistID: req.SpotifyPlaylistID,
	}
	if err := h.repo.CreateCampaign(r.Context(), c); err != nil {
		writeInternal(w, r, err, "Failed to create campaign")
		return
	}
	publish(h.publisher, c.ID, live.ResourceCampaign, live.ActionCreated)
	writeJSON(w, r, http.StatusCreated, c)
}

// UpdateCampaign handles PUT|PATCH /campaigns/{id}.
func (h *CampaignHandlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var patch campaign.CampaignPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	c, err := h.repo.UpdateCampaign(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeStoreError(w, r, err, "Failed to update campaign")
		return
	}
	publish(h.publisher, c.ID, live.ResourceCampaign, live.ActionUpdated)
	writeJSON(w, r, http.StatusOK, c)
}

// DeleteCampaign handles DELETE /campaigns/{id}.
func (h *CampaignHandlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.DeleteCampaign(r.Context(), id); err != nil {
		writeStoreError(w, r, err, "Failed to delete campaign")
		return
	}
	publish(h.publisher, id, live.ResourceCampaign, live.ActionDeleted)
	w.WriteHeader(http.StatusNoContent)
}

// publish announces a change when live updates are enabled.
func publish(p live.Publisher, campaignID, resource, action string) {
	if p == nil || campaignID == "" {
		return
	}
	p.Publish(campaignID, resource, action)
}
