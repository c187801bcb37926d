package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/onnwee/dmflow/internal/campaign"
	"github.com/onnwee/dmflow/internal/live"
	"github.com/onnwee/dmflow/internal/validate"
)

// CreateEncounterRequest represents the request body for creating an encounter.
type CreateEncounterRequest struct {
	Name            string  `json:"name" validate:"required"`
	StoryText       string  `json:"storyText"`
	DMNotes         string  `json:"dmNotes"`
	SpotifyTrackURI *string `json:"spotifyTrackUri"`
}

// CreateEnemyRequest represents the request body for adding an enemy.
// Stat pointers distinguish an explicit 0 from an omitted field.
type CreateEnemyRequest struct {
	Name       string  `json:"name" validate:"required"`
	HitPoints  *int    `json:"hitPoints" validate:"required,min=0"`
	ArmorClass *int    `json:"armorClass" validate:"required,min=0"`
	Challenge  string  `json:"challenge" validate:"required"`
	Abilities  string  `json:"abilities"`
	ImageURL   *string `json:"imageUrl" validate:"omitnil,weburl"`
}

// CreateLootRequest represents the request body for adding loot. A zero
// quantity counts as omitted.
type CreateLootRequest struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Quantity    *int            `json:"quantity" validate:"omitnil,min=0"`
	Rarity      campaign.Rarity `json:"rarity" validate:"omitempty,oneof=common uncommon rare very_rare legendary"`
}

// EncounterHandlers holds dependencies for encounter, enemy and loot handlers.
type EncounterHandlers struct {
	repo      campaign.EncounterRepository
	publisher live.Publisher
}

// NewEncounterHandlers creates a new EncounterHandlers instance. publisher may be nil.
func NewEncounterHandlers(repo campaign.EncounterRepository, publisher live.Publisher) *EncounterHandlers {
	return &EncounterHandlers{repo: repo, publisher: publisher}
}

// GetEncounter handles GET /encounters/{id}.
func (h *EncounterHandlers) GetEncounter(w http.ResponseWriter, r *http.Request) {
	enc, err := h.repo.GetEncounter(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err, "Failed to fetch encounter")
		return
	}
	writeJSON(w, r, http.StatusOK, enc)
}

// CreateEncounter handles POST /encounters/campaigns/{campaignId}.
func (h *EncounterHandlers) CreateEncounter(w http.ResponseWriter, r *http.Request) {
	var req CreateEncounterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	enc := &campaign.Encounter{
		CampaignID:      chi.URLParam(r, "campaignId"),
		Name:            req.Name,
		StoryText:       req.StoryText,
		DMNotes:         req.DMNotes,
		SpotifyTrackURI: req.SpotifyTrackURI,
	}
	if err := h.repo.CreateEncounter(r.Context(), enc); err != nil {
		writeStoreError(w, r, err, "Failed to create encounter")
		return
	}
	publish(h.publisher, enc.CampaignID, live.ResourceEncounter, live.ActionCreated)
	writeJSON(w, r, http.StatusCreated, enc)
}

// UpdateEncounter handles PUT|PATCH /encounters/{id}.
func (h *EncounterHandlers) UpdateEncounter(w http.ResponseWriter, r *http.Request) {
	var patch campaign.EncounterPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	enc, err := h.repo.UpdateEncounter(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeStoreError(w, r, err, "Failed to update encounter")
		return
	}
	publish(h.publisher, enc.CampaignID, live.ResourceEncounter, live.ActionUpdated)
	writeJSON(w, r, http.StatusOK, enc)
}

// DeleteEncounter handles DELETE /encounters/{id}.
func (h *EncounterHandlers) DeleteEncounter(w http.ResponseWriter, r *http.Request) {
	campaignID, err := h.repo.DeleteEncounter(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err, "Failed to delete encounter")
		return
	}
	publish(h.publisher, campaignID, live.ResourceEncounter, live.ActionDeleted)
	w.WriteHeader(http.StatusNoContent)
}

// AddEnemy handles POST /encounters/{id}/enemies.
func (h *EncounterHandlers) AddEnemy(w http.ResponseWriter, r *http.Request) {
	var req CreateEnemyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	e := &campaign.Enemy{
		EncounterID: chi.URLParam(r, "id"),
		Name:        req.Name,
		HitPoints:   *req.HitPoints,
		ArmorClass:  *req.ArmorClass,
		Challenge:   req.Challenge,
		Abilities:   req.Abilities,
		ImageURL:    req.ImageURL,
	}
	if err := h.repo.AddEnemy(r.Context(), e); err != nil {
		writeStoreError(w, r, err, "Failed to add enemy")
		return
	}
	publish(h.publisher, e.CampaignID, live.ResourceEnemy, live.ActionCreated)
	writeJSON(w, r, http.StatusCreated, e)
}

// UpdateEnemy handles PUT|PATCH /encounters/enemies/{id}.
func (h *EncounterHandlers) UpdateEnemy(w http.ResponseWriter, r *http.Request) {
	var patch campaign.EnemyPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	if patch.ImageURL.Value != nil {
		if _, err := validate.URL(*patch.ImageURL.Value, validate.WebURLConstraints); err != nil {
			writeCode(w, r, ErrCodeValidation, "imageUrl must be an http or https URL")
			return
		}
	}

	e, err := h.repo.UpdateEnemy(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeStoreError(w, r, err, "Failed to update enemy")
		return
	}
	publish(h.publisher, e.CampaignID, live.ResourceEnemy, live.ActionUpdated)
	writeJSON(w, r, http.StatusOK, e)
}

// DeleteEnemy handles DELETE /encounters/enemies/{id}.
func (h *EncounterHandlers) DeleteEnemy(w http.ResponseWriter, r *http.Request) {
	campaignID, err := h.repo.DeleteEnemy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err, "Failed to delete enemy")
		return
	}
	publish(h.publisher, campaignID, live.ResourceEnemy, live.ActionDeleted)
	w.WriteHeader(http.StatusNoContent)
}

// AddLoot handles POST /encounters/{id}/loot.
func (h *EncounterHandlers) AddLoot(w http.ResponseWriter, r *http.Request) {
	var req CreateLootRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	l := &campaign.Loot{
		EncounterID: chi.URLParam(r, "id"),
		Name:        req.Name,
		Description: req.Description,
		Rarity:      req.Rarity,
	}
	if req.Quantity != nil {
		l.Quantity = *req.Quantity
	}
	if err := h.repo.AddLoot(r.Context(), l); err != nil {
		writeStoreError(w, r, err, "Failed to add loot")
		return
	}
	publish(h.publisher, l.CampaignID, live.ResourceLoot, live.ActionCreated)
	writeJSON(w, r, http.StatusCreated, l)
}

// UpdateLoot handles PUT|PATCH /encounters/loot/{id}.
func (h *EncounterHandlers) UpdateLoot(w http.ResponseWriter, r *http.Request) {
	var patch campaign.LootPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	l, err := h.repo.UpdateLoot(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeStoreError(w, r, err, "Failed to update loot")
		return
	}
	publish(h.publisher, l.CampaignID, live.ResourceLoot, live.ActionUpdated)
	writeJSON(w, r, http.StatusOK, l)
}

// DeleteLoot handles DELETE /encounters/loot/{id}.
func (h *EncounterHandlers) DeleteLoot(w http.ResponseWriter, r *http.Request) {
	campaignID, err := h.repo.DeleteLoot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err, "Failed to delete loot")
		return
	}
	publish(h.publisher, campaignID, live.ResourceLoot, live.ActionDeleted)
	w.WriteHeader(http.StatusNoContent)
}
