// Package directory looks up display metadata for user ids from the profile
// directory. Decoration only: it is never on the write path of a send, and
// every failure degrades to placeholder profiles.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNotConfigured is returned by Ping when no directory URL is set.
var ErrNotConfigured = errors.New("profile directory not configured")

// Profile is the display metadata the directory holds for one user id.
type Profile struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	AvatarURL     string         `json:"avatar_url,omitempty"`
	Kind          string         `json:"kind"` // "user" or "business"
	Online        bool           `json:"online"`
	BusinessHours *BusinessHours `json:"business_hours,omitempty"`
}

// BusinessHours is the advertised availability of a business profile.
type BusinessHours struct {
	OpensAt  string `json:"opens_at"`
	ClosesAt string `json:"closes_at"`
}

// Fallback is the profile rendered when the directory has no answer.
func Fallback(id string) Profile {
	return Profile{ID: id, Name: "Unknown User", Kind: "user"}
}

// ProfileOr returns the looked-up profile for id, or the fallback.
func ProfileOr(profiles map[string]Profile, id string) Profile {
	if p, ok := profiles[id]; ok {
		return p
	}
	return Fallback(id)
}

// Client is the read-only directory contract.
type Client interface {
	// Lookup fetches profiles for the given ids in one batch. Ids the
	// directory does not know are absent from the result.
	Lookup(ctx context.Context, ids []string) (map[string]Profile, error)
	// Ping probes directory health.
	Ping(ctx context.Context) error
}

// HTTPClient talks to the directory over HTTP with a bounded deadline.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// New returns an HTTP-backed client, or a no-op degraded client when
// baseURL is empty.
func New(baseURL string, timeout time.Duration, logger zerolog.Logger) Client {
	if baseURL == "" {
		return &noopClient{}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "directory").Logger(),
	}
}

type lookupResponse struct {
	Profiles []Profile `json:"profiles"`
}

func (c *HTTPClient) Lookup(ctx context.Context, ids []string) (map[string]Profile, error) {
	if len(ids) == 0 {
		return map[string]Profile{}, nil
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/profiles?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Int("ids", len(ids)).Msg("directory lookup failed")
		return nil, fmt.Errorf("directory lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Msg("directory lookup returned non-200")
		return nil, fmt.Errorf("directory lookup: status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode directory response: %w", err)
	}

	profiles := make(map[string]Profile, len(body.Profiles))
	for _, p := range body.Profiles {
		profiles[p.ID] = p
	}
	return profiles, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build directory health request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("directory health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("directory health: status %d", resp.StatusCode)
	}
	return nil
}

// noopClient serves the degraded mode: no lookups, unconfigured health.
type noopClient struct{}

func (*noopClient) Lookup(ctx context.Context, ids []string) (map[string]Profile, error) {
	return map[string]Profile{}, nil
}

func (*noopClient) Ping(ctx context.Context) error { return ErrNotConfigured }
