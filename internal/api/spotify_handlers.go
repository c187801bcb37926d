package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/onnwee/dmflow/internal/spotify"
)

// SpotifyClient is the part of spotify.Client the handlers use.
type SpotifyClient interface {
	AuthURL() (string, error)
	VerifyState(state string) error
	Exchange(ctx context.Context, code string) error
	Connected(ctx context.Context) (bool, error)
	Playback(ctx context.Context) (*spotify.Playback, error)
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	PlayTrack(ctx context.Context, uri string) error
	Search(ctx context.Context, q string) ([]spotify.Track, error)
}

// PlayTrackRequest represents the request body for PUT /spotify/track.
type PlayTrackRequest struct {
	TrackURI string `json:"trackUri" validate:"required,spotifyuri"`
}

// Callback failure reasons passed to the front end.
const (
	callbackNotConfigured = "not_configured"
	callbackNoCode        = "no_code"
	callbackInvalidState  = "invalid_state"
	callbackFailed        = "callback_failed"
)

// SpotifyHandlers holds dependencies for Spotify HTTP handlers.
type SpotifyHandlers struct {
	client      SpotifyClient
	frontendURL string
}

// NewSpotifyHandlers creates a new SpotifyHandlers instance. With a nil
// client the callback redirects with not_configured, status reports
// disconnected and everything else answers 503.
func NewSpotifyHandlers(client SpotifyClient, frontendURL string) *SpotifyHandlers {
	return &SpotifyHandlers{client: client, frontendURL: frontendURL}
}

func (h *SpotifyHandlers) available(w http.ResponseWriter, r *http.Request) bool {
	if h.client == nil {
		writeCode(w, r, ErrCodeServiceUnavailable, "Spotify integration is not configured")
		return false
	}
	return true
}

// writeSpotifyError surfaces a missing login with its own message; any other
// provider failure is a generic 500.
func writeSpotifyError(w http.ResponseWriter, r *http.Request, err error, message string) {
	if errors.Is(err, spotify.ErrNotAuthenticated) {
		writeCode(w, r, ErrCodeInternal, spotify.ErrNotAuthenticated.Error())
		return
	}
	writeInternal(w, r, err, message)
}

// Auth handles GET /spotify/auth.
func (h *SpotifyHandlers) Auth(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	authURL, err := h.client.AuthURL()
	if err != nil {
		writeInternal(w, r, err, "Failed to build authorization URL")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"url": authURL})
}

// Callback handles GET /spotify/callback. It always redirects to the front end.
func (h *SpotifyHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	if h.client == nil {
		h.redirect(w, r, "spotify_error", callbackNotConfigured)
		return
	}

	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		h.redirect(w, r, "spotify_error", reason)
		return
	}
	code := q.Get("code")
	if code == "" {
		h.redirect(w, r, "spotify_error", callbackNoCode)
		return
	}
	if err := h.client.VerifyState(q.Get("state")); err != nil {
		slog.WarnContext(r.Context(), "rejected spotify callback", "error", err)
		h.redirect(w, r, "spotify_error", callbackInvalidState)
		return
	}
	if err := h.client.Exchange(r.Context(), code); err != nil {
		slog.ErrorContext(r.Context(), "spotify code exchange failed", "error", err)
		h.redirect(w, r, "spotify_error", callbackFailed)
		return
	}
	h.redirect(w, r, "spotify_connected", "true")
}

func (h *SpotifyHandlers) redirect(w http.ResponseWriter, r *http.Request, key, value string) {
	sep := "?"
	if strings.Contains(h.frontendURL, "?") {
		sep = "&"
	}
	target := h.frontendURL + sep + url.Values{key: {value}}.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

// Status handles GET /spotify/status.
func (h *SpotifyHandlers) Status(w http.ResponseWriter, r *http.Request) {
	if h.client == nil {
		writeJSON(w, r, http.StatusOK, map[string]bool{"connected": false})
		return
	}
	connected, err := h.client.Connected(r.Context())
	if err != nil {
		writeInternal(w, r, err, "Failed to check Spotify status")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"connected": connected})
}

// Playback handles GET /spotify/playback.
func (h *SpotifyHandlers) Playback(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	p, err := h.client.Playback(r.Context())
	if err != nil {
		writeSpotifyError(w, r, err, "Failed to get playback state")
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// Play handles PUT /spotify/play.
func (h *SpotifyHandlers) Play(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	if err := h.client.Play(r.Context()); err != nil {
		writeSpotifyError(w, r, err, "Failed to start playback")
		return
	}
	writeJSON(w, r, http.StatusOK, successResponse{Success: true})
}

// Pause handles PUT /spotify/pause.
func (h *SpotifyHandlers) Pause(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	if err := h.client.Pause(r.Context()); err != nil {
		writeSpotifyError(w, r, err, "Failed to pause playback")
		return
	}
	writeJSON(w, r, http.StatusOK, successResponse{Success: true})
}

// PlayTrack handles PUT /spotify/track.
func (h *SpotifyHandlers) PlayTrack(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	var req PlayTrackRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.client.PlayTrack(r.Context(), req.TrackURI); err != nil {
		writeSpotifyError(w, r, err, "Failed to play track")
		return
	}
	writeJSON(w, r, http.StatusOK, successResponse{Success: true})
}

// Search handles GET /spotify/search?q=.
func (h *SpotifyHandlers) Search(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeCode(w, r, ErrCodeValidation, "q is required")
		return
	}
	tracks, err := h.client.Search(r.Context(), q)
	if err != nil {
		writeSpotifyError(w, r, err, "Failed to search tracks")
		return
	}
	writeJSON(w, r, http.StatusOK, tracks)
}
