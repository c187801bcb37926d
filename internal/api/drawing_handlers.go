package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/onnwee/dmflow/internal/campaign"
	"github.com/onnwee/dmflow/internal/live"
	"github.com/onnwee/dmflow/internal/upload"
	"github.com/onnwee/dmflow/internal/validate"
)

// SaveDrawingRequest represents the request body for saving a node drawing.
// canvasData may be a JSON string or any JSON value; non-strings are stored
// as their raw text.
type SaveDrawingRequest struct {
	CanvasData   json.RawMessage `json:"canvasData"`
	ThumbnailURL *string         `json:"thumbnailUrl" validate:"omitnil,weburl"`
}

// ThumbnailUploadRequest represents the request body for POST /drawings/nodes/{nodeId}/thumbnail.
type ThumbnailUploadRequest struct {
	ContentType string `json:"contentType" validate:"required"`
	SizeBytes   int64  `json:"sizeBytes"`
}

// ThumbnailPresigner issues presigned thumbnail uploads.
type ThumbnailPresigner interface {
	PresignThumbnail(ctx context.Context, req upload.ThumbnailRequest) (*upload.ThumbnailUpload, error)
}

// DrawingStore is the persistence DrawingHandlers needs.
type DrawingStore interface {
	campaign.DrawingRepository
	GetNode(ctx context.Context, id string) (*campaign.FlowNode, error)
}

// DrawingHandlers holds dependencies for drawing HTTP handlers.
type DrawingHandlers struct {
	repo      DrawingStore
	uploads   ThumbnailPresigner
	publisher live.Publisher
}

// NewDrawingHandlers creates a new DrawingHandlers instance. uploads and
// publisher may be nil.
func NewDrawingHandlers(repo DrawingStore, uploads ThumbnailPresigner, publisher live.Publisher) *DrawingHandlers {
	return &DrawingHandlers{repo: repo, uploads: uploads, publisher: publisher}
}

// GetDrawing handles GET /drawings/nodes/{nodeId}.
func (h *DrawingHandlers) GetDrawing(w http.ResponseWriter, r *http.Request) {
	d, err := h.repo.GetDrawing(r.Context(), chi.URLParam(r, "nodeId"))
	if err != nil {
		writeStoreError(w, r, err, "Failed to fetch drawing")
		return
	}
	writeJSON(w, r, http.StatusOK, d)
}

// SaveDrawing handles POST|PUT /drawings/nodes/{nodeId}. Saving twice leaves
// one drawing with a stable id.
func (h *DrawingHandlers) SaveDrawing(w http.ResponseWriter, r *http.Request) {
	var req SaveDrawingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	canvas, ok := canvasText(req.CanvasData)
	if !ok {
		writeCode(w, r, ErrCodeValidation, "canvasData is required")
		return
	}

	d := &campaign.Drawing{
		FlowNodeID:   chi.URLParam(r, "nodeId"),
		CanvasData:   canvas,
		ThumbnailURL: req.ThumbnailURL,
	}
	if err := h.repo.SaveDrawing(r.Context(), d); err != nil {
		writeStoreError(w, r, err, "Failed to save drawing")
		return
	}
	publish(h.publisher, d.CampaignID, live.ResourceDrawing, live.ActionUpdated)
	writeJSON(w, r, http.StatusOK, d)
}

// canvasText returns the stored form of canvasData and false when it is
// missing, null or an empty string.
func canvasText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return "", false
		}
		return s, true
	}
	return string(raw), true
}

// DeleteDrawing handles DELETE /drawings/nodes/{nodeId}.
func (h *DrawingHandlers) DeleteDrawing(w http.ResponseWriter, r *http.Request) {
	campaignID, err := h.repo.DeleteDrawing(r.Context(), chi.URLParam(r, "nodeId"))
	if err != nil {
		writeStoreError(w, r, err, "Failed to delete drawing")
		return
	}
	publish(h.publisher, campaignID, live.ResourceDrawing, live.ActionDeleted)
	w.WriteHeader(http.StatusNoContent)
}

// PresignThumbnail handles POST /drawings/nodes/{nodeId}/thumbnail. The
// client uploads the image itself and passes thumbnailUrl on its next save.
func (h *DrawingHandlers) PresignThumbnail(w http.ResponseWriter, r *http.Request) {
	if h.uploads == nil {
		writeCode(w, r, ErrCodeServiceUnavailable, "Thumbnail uploads are not configured")
		return
	}

	var req ThumbnailUploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	nodeID := chi.URLParam(r, "nodeId")
	if _, err := h.repo.GetNode(r.Context(), nodeID); err != nil {
		writeStoreError(w, r, err, "Failed to presign thumbnail")
		return
	}

	res, err := h.uploads.PresignThumbnail(r.Context(), upload.ThumbnailRequest{
		NodeID:      nodeID,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
	})
	switch {
	case err == nil:
		writeJSON(w, r, http.StatusOK, res)
	case errors.Is(err, validate.ErrInvalidMIMEType):
		writeCode(w, r, ErrCodeValidation, "contentType must be image/png, image/jpeg or image/webp")
	case errors.Is(err, validate.ErrFileTooLarge), errors.Is(err, validate.ErrFileTooSmall), errors.Is(err, validate.ErrEmpty):
		writeCode(w, r, ErrCodeValidation, "sizeBytes must be between 1 byte and 5MB")
	case errors.Is(err, upload.ErrInvalidNodeID):
		writeCode(w, r, ErrCodeBadRequest, "Invalid node id")
	default:
		writeInternal(w, r, err, "Failed to presign thumbnail")
	}
}
