// Package twitch is the upstream live-platform API client (Helix-style):
// app-token auth, stream/user lookups, cursor pagination with a fixed
// inter-page delay, and a Redis-backed snapshot cache.
package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/streamvault/backend/internal/models"
)

const (
	defaultAPIBaseURL = "https://api.twitch.tv/helix"
	defaultAuthURL    = "https://id.twitch.tv/oauth2/token"

	// pagePause is the fixed delay between pages when walking a paginated
	// response.
	pagePause = 3 * time.Second

	pageSize = 100
)

// Config holds upstream API credentials and endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	APIBaseURL   string
	AuthURL      string
}

// Client calls the upstream live-platform API with an app access token,
// refreshing it when expired.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates an upstream API client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) appToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request status: %d", resp.StatusCode)
	}
	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}

	c.token = tok.AccessToken
	// Refresh a minute early so in-flight calls never race expiry.
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn-60) * time.Second)
	return c.token, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	token, err := c.appToken(ctx)
	if err != nil {
		return err
	}
	u := c.cfg.APIBaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("api request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Client-Id", c.cfg.ClientID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("api status %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type streamPayload struct {
	ID          string   `json:"id"`
	UserID      string   `json:"user_id"`
	UserLogin   string   `json:"user_login"`
	UserName    string   `json:"user_name"`
	GameName    string   `json:"game_name"`
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Tags        []string `json:"tags"`
	ViewerCount int      `json:"viewer_count"`
	StartedAt   string   `json:"started_at"`
	Language    string   `json:"language"`
}

type streamsResponse struct {
	Data       []streamPayload `json:"data"`
	Pagination struct {
		Cursor string `json:"cursor"`
	} `json:"pagination"`
}

// StreamSnapshot fetches the broadcaster's live stream state. Returns
// (nil, nil) when the broadcaster is offline.
func (c *Client) StreamSnapshot(ctx context.Context, broadcasterID string) (*models.StreamSnapshot, error) {
	var out streamsResponse
	if err := c.get(ctx, "/streams", url.Values{"user_id": {broadcasterID}}, &out); err != nil {
		return nil, err
	}
	for _, s := range out.Data {
		if s.Type != "live" {
			continue
		}
		startedAt, _ := time.Parse(time.RFC3339, s.StartedAt)
		return &models.StreamSnapshot{
			StreamID:      s.ID,
			BroadcasterID: s.UserID,
			Login:         s.UserLogin,
			DisplayName:   s.UserName,
			Title:         s.Title,
			Category:      s.GameName,
			Tags:          s.Tags,
			ViewerCount:   s.ViewerCount,
			Language:      s.Language,
			StartedAt:     startedAt,
		}, nil
	}
	return nil, nil
}

// Channel is a followed channel reference.
type Channel struct {
	BroadcasterID    string `json:"broadcaster_id"`
	BroadcasterLogin string `json:"broadcaster_login"`
	BroadcasterName  string `json:"broadcaster_name"`
}

type followedResponse struct {
	Data []struct {
		BroadcasterID    string `json:"broadcaster_id"`
		BroadcasterLogin string `json:"broadcaster_login"`
		BroadcasterName  string `json:"broadcaster_name"`
	} `json:"data"`
	Pagination struct {
		Cursor string `json:"cursor"`
	} `json:"pagination"`
}

// FollowedChannels walks the paginated followed-channels listing for a user,
// pausing pagePause between pages to stay friendly to upstream rate limits.
func (c *Client) FollowedChannels(ctx context.Context, userID string) ([]Channel, error) {
	var channels []Channel
	cursor := ""
	for {
		query := url.Values{
			"user_id": {userID},
			"first":   {fmt.Sprintf("%d", pageSize)},
		}
		if cursor != "" {
			query.Set("after", cursor)
		}
		var out followedResponse
		if err := c.get(ctx, "/channels/followed", query, &out); err != nil {
			return nil, err
		}
		for _, d := range out.Data {
			channels = append(channels, Channel(d))
		}
		cursor = out.Pagination.Cursor
		if cursor == "" {
			return channels, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pagePause):
		}
	}
}
