// Package stats imports recent match results from a third-party tracker API
// and condenses them into the short summaries the coaching prompt consumes.
//
// The tracker is treated as an unreliable upstream: requests are retried with
// backoff on transient failures, and a missing player simply yields an empty
// summary rather than an error, so coaching keeps working for players who
// have not linked their account.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 500 * time.Millisecond
	defaultTimeout     = 10 * time.Second
	defaultMatchLimit  = 20
)

// Match is one match result as reported by the tracker.
type Match struct {
	ID       string    `json:"id"`
	GameID   string    `json:"game_id"`
	Mode     string    `json:"mode"`
	Map      string    `json:"map"`
	Kills    int       `json:"kills"`
	Deaths   int       `json:"deaths"`
	Assists  int       `json:"assists"`
	Won      bool      `json:"won"`
	PlayedAt time.Time `json:"played_at"`
}

// PlayerStats is the aggregate over a set of matches.
type PlayerStats struct {
	Matches   int
	Wins      int
	WinRate   float64
	Kills     int
	Deaths    int
	Assists   int
	KDRatio   float64
	AvgKills  float64
	AvgDeaths float64
}

// Aggregate folds matches into a PlayerStats. An empty slice yields the zero
// value.
func Aggregate(matches []Match) PlayerStats {
	var s PlayerStats
	for _, m := range matches {
		s.Matches++
		if m.Won {
			s.Wins++
		}
		s.Kills += m.Kills
		s.Deaths += m.Deaths
		s.Assists += m.Assists
	}
	if s.Matches == 0 {
		return s
	}
	s.WinRate = float64(s.Wins) / float64(s.Matches)
	s.AvgKills = float64(s.Kills) / float64(s.Matches)
	s.AvgDeaths = float64(s.Deaths) / float64(s.Matches)
	if s.Deaths > 0 {
		s.KDRatio = float64(s.Kills) / float64(s.Deaths)
	} else {
		s.KDRatio = float64(s.Kills)
	}
	return s
}

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithAPIKey sets the bearer token sent to the tracker API.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithMatchLimit sets how many recent matches are fetched per player.
// Default: 20.
func WithMatchLimit(n int) Option {
	return func(c *Client) { c.matchLimit = n }
}

// WithMaxAttempts sets the number of attempts per request, including the
// first. Default: 3.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the delay before the first retry; it doubles after each
// failed attempt. Default: 500 ms.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client fetches match results from the tracker API and implements the
// coaching engine's stats source. Safe for concurrent use.
type Client struct {
	baseURL     string
	apiKey      string
	matchLimit  int
	maxAttempts int
	retryDelay  time.Duration
	httpClient  *http.Client
}

// NewClient creates a Client for the tracker API at baseURL
// (e.g., "https://tracker.example.com"). baseURL must be non-empty.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("stats: baseURL must not be empty")
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		matchLimit:  defaultMatchLimit,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// RecentMatches fetches the player's most recent matches for the given game,
// newest first. A player unknown to the tracker yields an empty slice.
func (c *Client) RecentMatches(ctx context.Context, playerID, gameID string) ([]Match, error) {
	if playerID == "" {
		return nil, errors.New("stats: playerID must not be empty")
	}

	var lastErr error
	delay := c.retryDelay
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}

		matches, retryable, err := c.fetch(ctx, playerID, gameID)
		if err == nil {
			return matches, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("stats: %d attempts failed: %w", c.maxAttempts, lastErr)
}

// fetch performs a single tracker round trip. retryable reports whether the
// failure is transient (connection errors, 5xx) rather than terminal (4xx,
// malformed response body).
func (c *Client) fetch(ctx context.Context, playerID, gameID string) (_ []Match, retryable bool, _ error) {
	params := url.Values{}
	params.Set("limit", fmt.Sprintf("%d", c.matchLimit))
	if gameID != "" {
		params.Set("game", gameID)
	}

	endpoint := fmt.Sprintf("%s/v1/players/%s/matches?%s", c.baseURL, url.PathEscape(playerID), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("stats: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("stats: GET matches: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Unlinked or unknown player: no stats, not an error.
		return nil, false, nil
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("stats: tracker returned status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("stats: tracker returned status %d", resp.StatusCode)
	}

	var matches []Match
	if err := json.NewDecoder(resp.Body).Decode(&matches); err != nil {
		return nil, false, fmt.Errorf("stats: decode matches: %w", err)
	}
	return matches, false, nil
}

// Summary implements the coaching engine's stats source. It fetches the
// player's recent matches and renders a one-paragraph Japanese summary for
// prompt injection. Players with no recorded matches get an empty string.
func (c *Client) Summary(ctx context.Context, playerID, gameID string) (string, error) {
	matches, err := c.RecentMatches(ctx, playerID, gameID)
	if err != nil {
		return "", err
	}
	agg := Aggregate(matches)
	if agg.Matches == 0 {
		return "", nil
	}
	return fmt.Sprintf(
		"直近%d試合: 勝率%.0f%%（%d勝）、K/D %.2f、平均キル%.1f、平均デス%.1f。",
		agg.Matches, agg.WinRate*100, agg.Wins, agg.KDRatio, agg.AvgKills, agg.AvgDeaths,
	), nil
}
