package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/onnwee/dmflow/internal/campaign"
	"github.com/onnwee/dmflow/internal/live"
	"github.com/onnwee/dmflow/internal/validate"
)

// CreateNodeRequest represents the request body for creating a flow node.
// Positions are pointers so that 0 is accepted and absence is not.
type CreateNodeRequest struct {
	Type        campaign.NodeType `json:"type" validate:"required,oneof=start encounter decision end"`
	Label       string            `json:"label" validate:"required"`
	Description string            `json:"description"`
	PositionX   *float64          `json:"positionX" validate:"required"`
	PositionY   *float64          `json:"positionY" validate:"required"`
	EncounterID *string           `json:"encounterId"`
}

// CreateEdgeRequest represents the request body for creating a flow edge.
type CreateEdgeRequest struct {
	SourceNodeID string  `json:"sourceNodeId" validate:"required"`
	TargetNodeID string  `json:"targetNodeId" validate:"required"`
	Label        *string `json:"label"`
}

// BulkPosition is one entry of a bulk position update.
type BulkPosition struct {
	ID        string   `json:"id" validate:"required"`
	PositionX *float64 `json:"positionX" validate:"required"`
	PositionY *float64 `json:"positionY" validate:"required"`
}

// FlowHandlers holds dependencies for flowchart HTTP handlers.
type FlowHandlers struct {
	repo      campaign.FlowRepository
	publisher live.Publisher
}

// NewFlowHandlers creates a new FlowHandlers instance. publisher may be nil.
func NewFlowHandlers(repo campaign.FlowRepository, publisher live.Publisher) *FlowHandlers {
	return &FlowHandlers{repo: repo, publisher: publisher}
}

// GetFlow handles GET /flow/campaigns/{campaignId}.
func (h *FlowHandlers) GetFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := h.repo.GetFlow(r.Context(), chi.URLParam(r, "campaignId"))
	if err != nil {
		writeInternal(w, r, err, "Failed to fetch flow")
		return
	}
	writeJSON(w, r, http.StatusOK, flow)
}

// CreateNode handles POST /flow/campaigns/{campaignId}/nodes.
func (h *FlowHandlers) CreateNode(w http.ResponseWriter, r *http.Request) {
	var req CreateNodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	n := &campaign.FlowNode{
		CampaignID:  chi.URLParam(r, "campaignId"),
		Type:        req.Type,
		Label:       req.Label,
		Description: req.Description,
		PositionX:   *req.PositionX,
		PositionY:   *req.PositionY,
		EncounterID: req.EncounterID,
	}
	if err := h.repo.CreateNode(r.Context(), n); err != nil {
		writeStoreError(w, r, err, "Failed to create node")
		return
	}
	publish(h.publisher, n.CampaignID, live.ResourceNode, live.ActionCreated)
	writeJSON(w, r, http.StatusCreated, n)
}

// UpdateNode handles PUT|PATCH /flow/nodes/{id}. "encounterId": null unlinks
// the encounter; omitting it keeps the link.
func (h *FlowHandlers) UpdateNode(w http.ResponseWriter, r *http.Request) {
	var patch campaign.NodePatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	n, err := h.repo.UpdateNode(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeStoreError(w, r, err, "Failed to update node")
		return
	}
	publish(h.publisher, n.CampaignID, live.ResourceNode, live.ActionUpdated)
	writeJSON(w, r, http.StatusOK, n)
}

// DeleteNode handles DELETE /flow/nodes/{id}.
func (h *FlowHandlers) DeleteNode(w http.ResponseWriter, r *http.Request) {
	campaignID, err := h.repo.DeleteNode(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err, "Failed to delete node")
		return
	}
	publish(h.publisher, campaignID, live.ResourceNode, live.ActionDeleted)
	w.WriteHeader(http.StatusNoContent)
}

// CreateEdge handles POST /flow/campaigns/{campaignId}/edges.
func (h *FlowHandlers) CreateEdge(w http.ResponseWriter, r *http.Request) {
	var req CreateEdgeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	e := &campaign.FlowEdge{
		CampaignID:   chi.URLParam(r, "campaignId"),
		SourceNodeID: req.SourceNodeID,
		TargetNodeID: req.TargetNodeID,
		Label:        req.Label,
	}
	if err := h.repo.CreateEdge(r.Context(), e); err != nil {
		writeStoreError(w, r, err, "Failed to create edge")
		return
	}
	publish(h.publisher, e.CampaignID, live.ResourceEdge, live.ActionCreated)
	writeJSON(w, r, http.StatusCreated, e)
}

// UpdateEdge handles PUT|PATCH /flow/edges/{id}.
func (h *FlowHandlers) UpdateEdge(w http.ResponseWriter, r *http.Request) {
	var patch campaign.EdgePatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	e, err := h.repo.UpdateEdge(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeStoreError(w, r, err, "Failed to update edge")
		return
	}
	publish(h.publisher, e.CampaignID, live.ResourceEdge, live.ActionUpdated)
	writeJSON(w, r, http.StatusOK, e)
}

// DeleteEdge handles DELETE /flow/edges/{id}.
func (h *FlowHandlers) DeleteEdge(w http.ResponseWriter, r *http.Request) {
	campaignID, err := h.repo.DeleteEdge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err, "Failed to delete edge")
		return
	}
	publish(h.publisher, campaignID, live.ResourceEdge, live.ActionDeleted)
	w.WriteHeader(http.StatusNoContent)
}

// BulkUpdatePositions handles PUT /flow/campaigns/{campaignId}/bulk. Either
// every listed node moves or none does.
func (h *FlowHandlers) BulkUpdatePositions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Nodes json.RawMessage `json:"nodes"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeCode(w, r, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	if !bytes.HasPrefix(bytes.TrimSpace(body.Nodes), []byte("[")) {
		writeCode(w, r, ErrCodeValidation, "nodes must be an array")
		return
	}

	var entries []BulkPosition
	if err := json.Unmarshal(body.Nodes, &entries); err != nil {
		writeCode(w, r, ErrCodeBadRequest, "Invalid node positions")
		return
	}
	positions := make([]campaign.NodePosition, 0, len(entries))
	for i := range entries {
		if err := validate.Struct(&entries[i]); err != nil {
			writeValidation(w, r, err)
			return
		}
		positions = append(positions, campaign.NodePosition{
			ID:        entries[i].ID,
			PositionX: *entries[i].PositionX,
			PositionY: *entries[i].PositionY,
		})
	}

	campaignID := chi.URLParam(r, "campaignId")
	if err := h.repo.BulkUpdatePositions(r.Context(), campaignID, positions); err != nil {
		writeStoreError(w, r, err, "Failed to update node positions")
		return
	}
	if len(positions) > 0 {
		publish(h.publisher, campaignID, live.ResourceNode, live.ActionMoved)
	}
	writeJSON(w, r, http.StatusOK, successResponse{Success: true})
}
