// Package catalog is a thin client for the Yandex Music HTTP API, covering
// only the calls the bot needs: track metadata, download variants and their
// signed direct links, search, and account identification.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://api.music.yandex.net"

// Variant is one download encoding offered for a track.
type Variant struct {
	Codec       string `json:"codec"`
	BitrateKbps int    `json:"bitrateInKbps"`
	InfoURL     string `json:"downloadInfoUrl"`
}

// TrackInfo is the subset of track metadata the bot renders.
type TrackInfo struct {
	ID         string
	Title      string
	Artists    []string
	DurationMs int64
}

// Client talks to the catalog API. Methods take the account token per call;
// the client itself holds no credentials and is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client against the production API.
func New() *Client {
	return NewWithBaseURL(defaultBaseURL)
}

// NewWithBaseURL is the test seam: point the client at an httptest server.
func NewWithBaseURL(base string) *Client {
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) get(ctx context.Context, token, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "OAuth "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog: %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type trackPayload struct {
	ID         json.Number `json:"id"`
	Title      string      `json:"title"`
	DurationMs int64       `json:"durationMs"`
	Artists    []struct {
		Name string `json:"name"`
	} `json:"artists"`
}

func (p trackPayload) info() TrackInfo {
	artists := make([]string, len(p.Artists))
	for i, a := range p.Artists {
		artists[i] = a.Name
	}
	return TrackInfo{
		ID:         p.ID.String(),
		Title:      p.Title,
		Artists:    artists,
		DurationMs: p.DurationMs,
	}
}

// Track fetches metadata for one track id.
func (c *Client) Track(ctx context.Context, token, trackID string) (TrackInfo, error) {
	var body struct {
		Result []trackPayload `json:"result"`
	}
	if err := c.get(ctx, token, "/tracks/"+url.PathEscape(trackID), nil, &body); err != nil {
		return TrackInfo{}, err
	}
	if len(body.Result) == 0 {
		return TrackInfo{}, fmt.Errorf("catalog: track %s not found", trackID)
	}
	return body.Result[0].info(), nil
}

// DownloadVariants lists the download encodings offered for a track.
// Preference between them is the caller's concern.
func (c *Client) DownloadVariants(ctx context.Context, token, trackID string) ([]Variant, error) {
	var body struct {
		Result []Variant `json:"result"`
	}
	path := "/tracks/" + url.PathEscape(trackID) + "/download-info"
	if err := c.get(ctx, token, path, nil, &body); err != nil {
		return nil, err
	}
	return body.Result, nil
}

// Search runs a track search and returns up to limit results.
func (c *Client) Search(ctx context.Context, token, text string, limit int) ([]TrackInfo, error) {
	q := url.Values{}
	q.Set("text", text)
	q.Set("type", "track")
	q.Set("page", "0")
	var body struct {
		Result struct {
			Tracks struct {
				Results []trackPayload `json:"results"`
			} `json:"tracks"`
		} `json:"result"`
	}
	if err := c.get(ctx, token, "/search", q, &body); err != nil {
		return nil, err
	}
	results := body.Result.Tracks.Results
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	out := make([]TrackInfo, len(results))
	for i, t := range results {
		out[i] = t.info()
	}
	return out, nil
}

// AccountUID validates a token by fetching the account it belongs to.
func (c *Client) AccountUID(ctx context.Context, token string) (int64, error) {
	var body struct {
		Result struct {
			Account struct {
				UID int64 `json:"uid"`
			} `json:"account"`
		} `json:"result"`
	}
	if err := c.get(ctx, token, "/account/status", nil, &body); err != nil {
		return 0, err
	}
	if body.Result.Account.UID == 0 {
		return 0, fmt.Errorf("catalog: token not bound to an account")
	}
	return body.Result.Account.UID, nil
}
