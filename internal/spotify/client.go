package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"

	"github.com/onnwee/dmflow/internal/tracing"
)

// Public endpoints.
const (
	DefaultAccountsURL = "https://accounts.spotify.com"
	DefaultAPIURL      = "https://api.spotify.com"
)

// Scopes requested during authorization.
var Scopes = []string{
	"user-read-playback-state",
	"user-modify-playback-state",
	"user-read-currently-playing",
	"streaming",
	"app-remote-control",
}

// SearchLimit is the number of tracks requested per search.
const SearchLimit = 10

const (
	defaultTimeout      = 10 * time.Second
	defaultTokenSeconds = 3600
	maxResponseBytes    = 1 << 20
)

// Config configures a Client.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// StateSecret signs the OAuth state. Empty means random per process.
	StateSecret string

	// AccountsURL and APIURL default to the public Spotify hosts.
	AccountsURL string
	APIURL      string

	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client
}

// Client talks to Spotify on behalf of the single stored account.
type Client struct {
	oauth   *oauth2.Config
	apiURL  string
	http    *http.Client
	tokens  TokenStore
	state   *StateSigner
	breaker *gobreaker.CircuitBreaker[*apiResponse]
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewClient returns ErrNotConfigured unless client id, secret and redirect URI
// are all set. metrics and logger may be nil.
func NewClient(cfg Config, tokens TokenStore, metrics *Metrics, logger *slog.Logger) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURI == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = slog.Default()
	}
	accounts := strings.TrimRight(cfg.AccountsURL, "/")
	if accounts == "" {
		accounts = DefaultAccountsURL
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	state, err := NewStateSigner(cfg.StateSecret)
	if err != nil {
		return nil, err
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   accounts + "/authorize",
				TokenURL:  accounts + "/api/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		apiURL:  apiURL,
		http:    httpClient,
		tokens:  tokens,
		state:   state,
		breaker: newBreaker(logger, metrics),
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// AuthURL builds the authorize URL the front end redirects the DM to.
func (c *Client) AuthURL() (string, error) {
	state, err := c.state.Issue()
	if err != nil {
		return "", fmt.Errorf("failed to issue oauth state: %w", err)
	}
	return c.oauth.AuthCodeURL(state), nil
}

// VerifyState checks the state echoed back to the callback.
func (c *Client) VerifyState(state string) error {
	return c.state.Verify(state)
}

// Exchange trades an authorization code for tokens and stores them for the
// default user, replacing any previous credentials.
func (c *Client) Exchange(ctx context.Context, code string) (err error) {
	ctx, endSpan := tracing.StartClientSpan(ctx, "spotify", "exchange_code")
	defer func() { endSpan(err) }()

	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return c.tokens.SaveToken(ctx, &Token{
		UserID:       DefaultUserID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    c.expiry(tok),
	})
}

// Connected reports whether credentials have been stored.
func (c *Client) Connected(ctx context.Context) (bool, error) {
	_, err := c.tokens.GetToken(ctx, DefaultUserID)
	if errors.Is(err, ErrTokenNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// accessToken loads the stored token, refreshing it first when it has
// expired. Concurrent callers may both refresh; the last write wins.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	t, err := c.tokens.GetToken(ctx, DefaultUserID)
	if errors.Is(err, ErrTokenNotFound) {
		return "", ErrNotAuthenticated
	}
	if err != nil {
		return "", err
	}
	if !t.Expired(c.now()) {
		return t.AccessToken, nil
	}
	return c.refresh(ctx, t)
}

func (c *Client) refresh(ctx context.Context, t *Token) (_ string, err error) {
	ctx, endSpan := tracing.StartClientSpan(ctx, "spotify", "refresh_token")
	defer func() { endSpan(err) }()

	src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: t.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		c.metrics.incTokenRefresh(outcomeFailure)
		return "", fmt.Errorf("failed to refresh spotify token: %w", err)
	}
	c.metrics.incTokenRefresh(outcomeSuccess)

	rotated := ""
	if tok.RefreshToken != "" && tok.RefreshToken != t.RefreshToken {
		rotated = tok.RefreshToken
	}
	if err := c.tokens.UpdateAccessToken(ctx, DefaultUserID, tok.AccessToken, rotated, c.expiry(tok)); err != nil {
		return "", err
	}
	c.logger.DebugContext(ctx, "spotify access token refreshed")
	return tok.AccessToken, nil
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

func (c *Client) expiry(tok *oauth2.Token) time.Time {
	if tok.Expiry.IsZero() {
		return c.now().Add(defaultTokenSeconds * time.Second)
	}
	return tok.Expiry
}

// Track is a normalized Spotify track.
type Track struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Artists  string `json:"artists"`
	Album    string `json:"album"`
	URI      string `json:"uri"`
	AlbumArt string `json:"albumArt,omitempty"`
}

// Playback is the current playback state of the account.
type Playback struct {
	IsPlaying bool   `json:"isPlaying"`
	Track     *Track `json:"track"`
	Progress  *int   `json:"progress"`
	Duration  *int   `json:"duration"`
}

type apiTrack struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	URI        string `json:"uri"`
	DurationMS int    `json:"duration_ms"`
	Artists    []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name   string `json:"name"`
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"album"`
}

func (t *apiTrack) normalize() Track {
	names := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		names[i] = a.Name
	}
	track := Track{
		ID:      t.ID,
		Name:    t.Name,
		Artists: strings.Join(names, ", "),
		Album:   t.Album.Name,
		URI:     t.URI,
	}
	if len(t.Album.Images) > 0 {
		track.AlbumArt = t.Album.Images[0].URL
	}
	return track
}

// Playback returns what is playing. No active device yields a stopped state
// with no track.
func (c *Client) Playback(ctx context.Context) (*Playback, error) {
	var body struct {
		IsPlaying  bool      `json:"is_playing"`
		ProgressMS *int      `json:"progress_ms"`
		Item       *apiTrack `json:"item"`
	}
	found, err := c.call(ctx, "playback", http.MethodGet, "/v1/me/player", nil, nil, &body)
	if err != nil {
		return nil, err
	}
	if !found {
		return &Playback{IsPlaying: false}, nil
	}

	p := &Playback{IsPlaying: body.IsPlaying, Progress: body.ProgressMS}
	if body.Item != nil {
		track := body.Item.normalize()
		duration := body.Item.DurationMS
		p.Track = &track
		p.Duration = &duration
	}
	return p, nil
}

// Play resumes playback on the active device.
func (c *Client) Play(ctx context.Context) error {
	_, err := c.call(ctx, "play", http.MethodPut, "/v1/me/player/play", nil, nil, nil)
	return err
}

// Pause pauses playback on the active device.
func (c *Client) Pause(ctx context.Context) error {
	_, err := c.call(ctx, "pause", http.MethodPut, "/v1/me/player/pause", nil, nil, nil)
	return err
}

// PlayTrack starts playing a single track URI.
func (c *Client) PlayTrack(ctx context.Context, uri string) error {
	body := map[string][]string{"uris": {uri}}
	_, err := c.call(ctx, "play_track", http.MethodPut, "/v1/me/player/play", nil, body, nil)
	return err
}

// Search returns up to SearchLimit tracks matching q.
func (c *Client) Search(ctx context.Context, q string) ([]Track, error) {
	query := url.Values{
		"q":     {q},
		"type":  {"track"},
		"limit": {strconv.Itoa(SearchLimit)},
	}
	var body struct {
		Tracks struct {
			Items []apiTrack `json:"items"`
		} `json:"tracks"`
	}
	if _, err := c.call(ctx, "search", http.MethodGet, "/v1/search", query, nil, &body); err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(body.Tracks.Items))
	for i := range body.Tracks.Items {
		tracks = append(tracks, body.Tracks.Items[i].normalize())
	}
	return tracks, nil
}

// APIError is a non-2xx answer from the Web API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("spotify api returned %d", e.Status)
	}
	return fmt.Sprintf("spotify api returned %d: %s", e.Status, e.Message)
}

type apiResponse struct {
	status int
	body   []byte
}

// call performs one authenticated Web API request through the breaker. It
// reports false when the response carried no content, which the player
// endpoint uses for "nothing playing".
func (c *Client) call(ctx context.Context, operation, method, path string, query url.Values, in, out any) (_ bool, err error) {
	ctx, endSpan := tracing.StartClientSpan(ctx, "spotify", operation)
	defer func() { endSpan(err) }()

	token, err := c.accessToken(ctx)
	if err != nil {
		return false, err
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*apiResponse, error) {
		return c.send(ctx, method, path, query, in, token)
	})
	switch {
	case err == nil:
		c.metrics.observeRequest(operation, outcomeSuccess, time.Since(start))
	case isRejected(err):
		c.metrics.observeRequest(operation, outcomeRejected, time.Since(start))
		c.logger.WarnContext(ctx, "spotify request rejected by circuit breaker",
			slog.String("operation", operation))
		return false, fmt.Errorf("spotify unavailable: %w", err)
	default:
		c.metrics.observeRequest(operation, outcomeFailure, time.Since(start))
		return false, err
	}

	if resp.status == http.StatusNoContent || len(bytes.TrimSpace(resp.body)) == 0 {
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal(resp.body, out); err != nil {
			return false, fmt.Errorf("failed to decode spotify %s response: %w", operation, err)
		}
	}
	return true, nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, in any, token string) (*apiResponse, error) {
	target := c.apiURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spotify request failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read spotify response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &APIError{Status: res.StatusCode, Message: errorMessage(body)}
	}
	return &apiResponse{status: res.StatusCode, body: body}, nil
}

// errorMessage extracts the message of a Web API error object.
func errorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Error.Message
}
