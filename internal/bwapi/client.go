package bwapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bwtools/internal/backoff"
	"bwtools/internal/services"
)

// Attributes is the replay attribute bag carried by both lookups.
type Attributes struct {
	GameID            string `json:"game_id"`
	GameName          string `json:"game_name"`
	MapTitle          string `json:"map_title"`
	ReplayPlayerNames string `json:"replay_player_names"`
	ReplayPlayerRaces string `json:"replay_player_races"`
	ReplayPlayerTypes string `json:"replay_player_types"`
}

// ProfileReplay is one replay entry from the profile payload.
type ProfileReplay struct {
	Attributes Attributes `json:"attributes"`
	CreateTime int64      `json:"create_time"`
	Link       string     `json:"link"`
}

// ScrProfile is the subset of the profile payload the pipeline reads.
type ScrProfile struct {
	Replays []ProfileReplay `json:"replays"`
}

// ReplayDescriptor is one downloadable binary from the matchmaker detail.
type ReplayDescriptor struct {
	URL        string     `json:"url"`
	MD5        string     `json:"md5"`
	CreateTime int64      `json:"create_time"`
	Attributes Attributes `json:"attributes"`
}

// MatchDetail is the matchmaker per-match payload.
type MatchDetail struct {
	Replays []ReplayDescriptor `json:"replays"`
}

// API lists the lookups used by the candidate resolver.
type API interface {
	Profile(ctx context.Context, toon string, gateway Gateway) (*ScrProfile, error)
	MatchReplays(ctx context.Context, link string) ([]ReplayDescriptor, error)
}

// Client talks to the local profile web API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	gate       *backoff.Gate
}

var _ API = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithGate shares call pacing with other remote callers.
func WithGate(gate *backoff.Gate) Option {
	return func(c *Client) {
		c.gate = gate
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// New creates a profile API client.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "bwapi", "new client", "base url required", nil)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "bwapi", "new client", "parse base url", err)
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Profile fetches the SCR profile for a toon on a gateway.
func (c *Client) Profile(ctx context.Context, toon string, gateway Gateway) (*ScrProfile, error) {
	toon = strings.TrimSpace(toon)
	if toon == "" {
		return nil, services.Wrap(services.ErrValidation, "bwapi", "profile", "toon must not be empty", nil)
	}
	endpoint := fmt.Sprintf("%s/web-api/v2/aurora-profile-by-toon/%s/%d?request_flags=scr_profile",
		c.baseURL, url.PathEscape(toon), int(gateway))

	var payload ScrProfile
	if err := c.getJSON(ctx, "profile", endpoint, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// MatchReplays returns the replay binaries the matchmaker lists for link.
func (c *Client) MatchReplays(ctx context.Context, link string) ([]ReplayDescriptor, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return nil, services.Wrap(services.ErrValidation, "bwapi", "match replays", "link must not be empty", nil)
	}
	endpoint := fmt.Sprintf("%s/web-api/v1/matchmaker-gameinfo-playerinfo/%s", c.baseURL, url.PathEscape(link))

	var payload MatchDetail
	if err := c.getJSON(ctx, "match replays", endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Replays, nil
}

func (c *Client) getJSON(ctx context.Context, operation, endpoint string, dest any) (err error) {
	if err := c.gate.Wait(ctx); err != nil {
		return err
	}
	defer func() { c.gate.Observe(err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, "bwapi", operation, "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return services.Wrap(services.ErrTransient, "bwapi", operation, fmt.Sprintf("execute request (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	if err := StatusError(operation, resp.StatusCode); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return services.Wrap(services.ErrExternalTool, "bwapi", operation, "decode response", err)
	}
	return nil
}

// StatusError classifies a non-2xx HTTP status. 429 is rate limiting, 5xx is
// transient, 404 is not-found, and other 4xx are permanent.
func StatusError(operation string, code int) error {
	if code >= 200 && code < 300 {
		return nil
	}
	message := "status " + strconv.Itoa(code)
	switch {
	case code == http.StatusTooManyRequests:
		return services.Wrap(services.ErrTransient, "bwapi", operation, message, backoff.ErrRateLimited)
	case code >= 500:
		return services.Wrap(services.ErrTransient, "bwapi", operation, message, nil)
	case code == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "bwapi", operation, message, nil)
	default:
		return services.Wrap(services.ErrValidation, "bwapi", operation, message, nil)
	}
}
