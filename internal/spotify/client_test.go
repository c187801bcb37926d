package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	gobreaker "github.com/sony/gobreaker/v2"
)

// fakeSpotify serves the accounts and Web API endpoints from one server.
type fakeSpotify struct {
	*httptest.Server
	mux *http.ServeMux
}

func newFakeSpotify(t *testing.T) *fakeSpotify {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			if r.PostForm.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				io.WriteString(w, `{"error":"invalid_grant"}`)
				return
			}
			io.WriteString(w, `{"access_token":"access-1","token_type":"Bearer","expires_in":3600,"refresh_token":"refresh-1"}`)
		case "refresh_token":
			if r.PostForm.Get("refresh_token") != "refresh-1" {
				w.WriteHeader(http.StatusBadRequest)
				io.WriteString(w, `{"error":"invalid_grant"}`)
				return
			}
			io.WriteString(w, `{"access_token":"access-2","token_type":"Bearer","expires_in":3600}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &fakeSpotify{Server: srv, mux: mux}
}

func newTestClient(t *testing.T, fake *fakeSpotify) (*Client, *InMemoryTokenStore, *Metrics) {
	t.Helper()
	store := NewInMemoryTokenStore()
	metrics := NewMetrics()
	c, err := NewClient(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost:3001/api/spotify/callback",
		StateSecret:  "state-secret",
		AccountsURL:  fake.URL,
		APIURL:       fake.URL,
	}, store, metrics, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c, store, metrics
}

func seedToken(t *testing.T, store TokenStore, expiresAt time.Time) {
	t.Helper()
	err := store.SaveToken(context.Background(), &Token{
		UserID:       DefaultUserID,
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}
}

func requireBearer(t *testing.T, r *http.Request, token string) {
	t.Helper()
	if got := r.Header.Get("Authorization"); got != "Bearer "+token {
		t.Errorf("Authorization = %q, want Bearer %s", got, token)
	}
}

func TestNewClient_NotConfigured(t *testing.T) {
	_, err := NewClient(Config{ClientID: "id"}, NewInMemoryTokenStore(), nil, nil)
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("NewClient() error = %v, want ErrNotConfigured", err)
	}
}

func TestClient_AuthURL(t *testing.T) {
	c, _, _ := newTestClient(t, newFakeSpotify(t))

	raw, err := c.AuthURL()
	if err != nil {
		t.Fatalf("AuthURL() error = %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse() error = %v", err)
	}
	if u.Path != "/authorize" {
		t.Errorf("path = %q, want /authorize", u.Path)
	}
	q := u.Query()
	if q.Get("client_id") != "client-id" {
		t.Errorf("client_id = %q", q.Get("client_id"))
	}
	if q.Get("response_type") != "code" {
		t.Errorf("response_type = %q, want code", q.Get("response_type"))
	}
	if q.Get("redirect_uri") != "http://localhost:3001/api/spotify/callback" {
		t.Errorf("redirect_uri = %q", q.Get("redirect_uri"))
	}
	if got, want := q.Get("scope"), strings.Join(Scopes, " "); got != want {
		t.Errorf("scope = %q, want %q", got, want)
	}
	if err := c.VerifyState(q.Get("state")); err != nil {
		t.Errorf("VerifyState() error = %v", err)
	}
}

func TestClient_ExchangeStoresDefaultToken(t *testing.T) {
	c, store, _ := newTestClient(t, newFakeSpotify(t))
	ctx := context.Background()

	connected, err := c.Connected(ctx)
	if err != nil || connected {
		t.Fatalf("Connected() = %v, %v before exchange", connected, err)
	}

	if err := c.Exchange(ctx, "good-code"); err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	tok, err := store.GetToken(ctx, DefaultUserID)
	if err != nil {
		t.Fatalf("GetToken() error = %v", err)
	}
	if tok.AccessToken != "access-1" || tok.RefreshToken != "refresh-1" {
		t.Errorf("stored token = %+v", tok)
	}
	if until := time.Until(tok.ExpiresAt); until < 59*time.Minute || until > 61*time.Minute {
		t.Errorf("ExpiresAt is %v from now, want about 1h", until)
	}

	connected, err = c.Connected(ctx)
	if err != nil || !connected {
		t.Errorf("Connected() = %v, %v after exchange", connected, err)
	}
}

func TestClient_ExchangeFailure(t *testing.T) {
	c, store, _ := newTestClient(t, newFakeSpotify(t))
	ctx := context.Background()

	if err := c.Exchange(ctx, "bad-code"); err == nil {
		t.Fatal("Exchange() with a rejected code should fail")
	}
	if _, err := store.GetToken(ctx, DefaultUserID); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("token stored after failed exchange: %v", err)
	}
}

func TestClient_NotAuthenticated(t *testing.T) {
	fake := newFakeSpotify(t)
	var hits atomic.Int32
	fake.mux.HandleFunc("/v1/me/player", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})
	c, _, _ := newTestClient(t, fake)

	_, err := c.Playback(context.Background())
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Playback() error = %v, want ErrNotAuthenticated", err)
	}
	if err.Error() != "Not authenticated with Spotify" {
		t.Errorf("error message = %q", err.Error())
	}
	if hits.Load() != 0 {
		t.Error("Web API was called without a token")
	}
}

func TestClient_PlaybackNothingPlaying(t *testing.T) {
	fake := newFakeSpotify(t)
	fake.mux.HandleFunc("GET /v1/me/player", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r, "access-1")
		w.WriteHeader(http.StatusNoContent)
	})
	c, store, _ := newTestClient(t, fake)
	seedToken(t, store, time.Now().Add(time.Hour))

	p, err := c.Playback(context.Background())
	if err != nil {
		t.Fatalf("Playback() error = %v", err)
	}
	body, _ := json.Marshal(p)
	if string(body) != `{"isPlaying":false,"track":null}` {
		t.Errorf("Playback() JSON = %s", body)
	}
}

func TestClient_PlaybackNormalizesTrack(t *testing.T) {
	fake := newFakeSpotify(t)
	fake.mux.HandleFunc("GET /v1/me/player", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"is_playing": true,
			"progress_ms": 42000,
			"item": {
				"id": "t1",
				"name": "Tavern Song",
				"uri": "spotify:track:t1",
				"duration_ms": 180000,
				"artists": [{"name": "Bard"}, {"name": "Lute"}],
				"album": {"name": "Inn", "images": [{"url": "https://i.scdn.co/large"}, {"url": "https://i.scdn.co/small"}]}
			}
		}`)
	})
	c, store, _ := newTestClient(t, fake)
	seedToken(t, store, time.Now().Add(time.Hour))

	p, err := c.Playback(context.Background())
	if err != nil {
		t.Fatalf("Playback() error = %v", err)
	}
	if !p.IsPlaying || p.Track == nil {
		t.Fatalf("Playback() = %+v, want playing with a track", p)
	}
	want := Track{
		ID:       "t1",
		Name:     "Tavern Song",
		Artists:  "Bard, Lute",
		Album:    "Inn",
		URI:      "spotify:track:t1",
		AlbumArt: "https://i.scdn.co/large",
	}
	if *p.Track != want {
		t.Errorf("Track = %+v, want %+v", *p.Track, want)
	}
	if p.Progress == nil || *p.Progress != 42000 {
		t.Errorf("Progress = %v, want 42000", p.Progress)
	}
	if p.Duration == nil || *p.Duration != 180000 {
		t.Errorf("Duration = %v, want 180000", p.Duration)
	}
}

func TestClient_RefreshesExpiredToken(t *testing.T) {
	fake := newFakeSpotify(t)
	fake.mux.HandleFunc("PUT /v1/me/player/pause", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r, "access-2")
		w.WriteHeader(http.StatusNoContent)
	})
	c, store, metrics := newTestClient(t, fake)
	seedToken(t, store, time.Now().Add(-time.Minute))

	if err := c.Pause(context.Background()); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}

	tok, _ := store.GetToken(context.Background(), DefaultUserID)
	if tok.AccessToken != "access-2" {
		t.Errorf("AccessToken = %q, want access-2", tok.AccessToken)
	}
	if tok.RefreshToken != "refresh-1" {
		t.Errorf("RefreshToken = %q, want refresh-1 to be kept", tok.RefreshToken)
	}
	if !tok.ExpiresAt.After(time.Now()) {
		t.Errorf("ExpiresAt = %v, want a future expiry", tok.ExpiresAt)
	}
	if got := testutil.ToFloat64(metrics.tokenRefreshes.WithLabelValues(outcomeSuccess)); got != 1 {
		t.Errorf("token refreshes = %v, want 1", got)
	}
}

func TestClient_PlayAndPlayTrack(t *testing.T) {
	fake := newFakeSpotify(t)
	var bodies []string
	fake.mux.HandleFunc("PUT /v1/me/player/play", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r, "access-1")
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		w.WriteHeader(http.StatusNoContent)
	})
	c, store, _ := newTestClient(t, fake)
	seedToken(t, store, time.Now().Add(time.Hour))
	ctx := context.Background()

	if err := c.Play(ctx); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if err := c.PlayTrack(ctx, "spotify:track:abc"); err != nil {
		t.Fatalf("PlayTrack() error = %v", err)
	}

	if len(bodies) != 2 {
		t.Fatalf("play called %d times, want 2", len(bodies))
	}
	if bodies[0] != "" {
		t.Errorf("Play() body = %q, want empty", bodies[0])
	}
	if bodies[1] != `{"uris":["spotify:track:abc"]}` {
		t.Errorf("PlayTrack() body = %q", bodies[1])
	}
}

func TestClient_Search(t *testing.T) {
	fake := newFakeSpotify(t)
	fake.mux.HandleFunc("GET /v1/search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("type") != "track" || q.Get("limit") != "10" {
			t.Errorf("search query = %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		if q.Get("q") == "nothing" {
			io.WriteString(w, `{"tracks":{"items":[]}}`)
			return
		}
		io.WriteString(w, `{"tracks":{"items":[
			{"id":"a","name":"Battle","uri":"spotify:track:a","artists":[{"name":"Drums"}],"album":{"name":"War","images":[]}},
			{"id":"b","name":"Rest","uri":"spotify:track:b","artists":[{"name":"Harp"}],"album":{"name":"Peace","images":[{"url":"https://img/b"}]}}
		]}}`)
	})
	c, store, _ := newTestClient(t, fake)
	seedToken(t, store, time.Now().Add(time.Hour))
	ctx := context.Background()

	tracks, err := c.Search(ctx, "battle music")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("Search() returned %d tracks, want 2", len(tracks))
	}
	if tracks[0].AlbumArt != "" || tracks[1].AlbumArt != "https://img/b" {
		t.Errorf("album art = %q, %q", tracks[0].AlbumArt, tracks[1].AlbumArt)
	}

	empty, err := c.Search(ctx, "nothing")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("Search() = %#v, want empty non-nil slice", empty)
	}
}

func TestClient_APIErrorDoesNotTripBreaker(t *testing.T) {
	fake := newFakeSpotify(t)
	fake.mux.HandleFunc("PUT /v1/me/player/play", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"status":404,"message":"Player command failed: No active device found"}}`)
	})
	c, store, _ := newTestClient(t, fake)
	seedToken(t, store, time.Now().Add(time.Hour))

	for i := 0; i < breakerMinRequests+2; i++ {
		err := c.Play(context.Background())
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("Play() error = %v, want *APIError", err)
		}
		if apiErr.Status != http.StatusNotFound || !strings.Contains(apiErr.Message, "No active device") {
			t.Errorf("APIError = %+v", apiErr)
		}
	}
	if state := c.breaker.State(); state != gobreaker.StateClosed {
		t.Errorf("breaker state = %v, want closed", state)
	}
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	fake := newFakeSpotify(t)
	var hits atomic.Int32
	fake.mux.HandleFunc("PUT /v1/me/player/pause", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	c, store, metrics := newTestClient(t, fake)
	seedToken(t, store, time.Now().Add(time.Hour))
	ctx := context.Background()

	for i := 0; i < breakerMinRequests; i++ {
		if err := c.Pause(ctx); err == nil {
			t.Fatal("Pause() should fail on 502")
		}
	}

	err := c.Pause(ctx)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("Pause() error = %v, want ErrOpenState", err)
	}
	if got := hits.Load(); got != breakerMinRequests {
		t.Errorf("upstream hits = %d, want %d", got, breakerMinRequests)
	}
	if got := testutil.ToFloat64(metrics.apiRequests.WithLabelValues("pause", outcomeRejected)); got != 1 {
		t.Errorf("rejected requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.circuitState); got != 2 {
		t.Errorf("circuit state gauge = %v, want 2 (open)", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.observeRequest("play", outcomeSuccess, time.Second)
	m.incTokenRefresh(outcomeFailure)
	m.setCircuitState(1)
}
