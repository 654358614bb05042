// Package github implements the tracking store over the GitHub Issues REST
// API. One issue per (game, mod); issues are found by the
// state=open + label filter and matched by exact title.
//
// Only the handful of endpoints the reconciler needs are wrapped; the token
// comes from the unified credential store or the environment.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdxkit/modlate/track"
)

// DefaultBaseURL is the public GitHub API endpoint. Overridable for GitHub
// Enterprise and for tests.
const DefaultBaseURL = "https://api.github.com"

// Client talks to one repository's issues.
type Client struct {
	base  string
	repo  string // "owner/name"
	token string
	http  *http.Client
	log   zerolog.Logger
}

// NewClient builds an issues client for repo ("owner/name").
func NewClient(baseURL, repo, token string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		base:  strings.TrimRight(baseURL, "/"),
		repo:  repo,
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
		log:   log,
	}
}

type issue struct {
	Number int64  `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

func (c *Client) record(is issue) track.Record {
	labels := make([]string, 0, len(is.Labels))
	for _, l := range is.Labels {
		labels = append(labels, l.Name)
	}
	return track.Record{
		ID:     is.Number,
		Title:  is.Title,
		Body:   is.Body,
		Labels: labels,
		Open:   is.State == "open",
	}
}

// OpenRecords lists the open issues carrying the game's label pair.
func (c *Client) OpenRecords(ctx context.Context, game track.Game) ([]track.Record, error) {
	query := url.Values{
		"state":    {"open"},
		"labels":   {strings.Join(track.Labels(game), ",")},
		"per_page": {"100"},
	}
	endpoint := fmt.Sprintf("%s/repos/%s/issues?%s", c.base, c.repo, query.Encode())

	var issues []issue
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &issues); err != nil {
		return nil, fmt.Errorf("listing open issues: %w", err)
	}

	records := make([]track.Record, 0, len(issues))
	for _, is := range issues {
		if is.PullRequest != nil {
			continue // the issues endpoint also returns PRs
		}
		records = append(records, c.record(is))
	}
	c.log.Debug().Str("game", game.ID).Int("open", len(records)).Msg("fetched open tracking issues")
	return records, nil
}

// Create opens a new issue.
func (c *Client) Create(ctx context.Context, title, body string, labels []string) (*track.Record, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/issues", c.base, c.repo)
	payload := map[string]any{
		"title":  title,
		"body":   body,
		"labels": labels,
	}

	var created issue
	if err := c.do(ctx, http.MethodPost, endpoint, payload, &created); err != nil {
		return nil, fmt.Errorf("creating issue %q: %w", title, err)
	}
	c.log.Info().Int64("issue", created.Number).Str("title", title).Msg("created tracking issue")

	rec := c.record(created)
	return &rec, nil
}

// Update replaces an issue's body.
func (c *Client) Update(ctx context.Context, id int64, body string) error {
	endpoint := fmt.Sprintf("%s/repos/%s/issues/%d", c.base, c.repo, id)
	if err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"body": body}, nil); err != nil {
		return fmt.Errorf("updating issue #%d: %w", id, err)
	}
	c.log.Info().Int64("issue", id).Msg("updated tracking issue")
	return nil
}

// Close replaces the body and closes the issue in one call.
func (c *Client) Close(ctx context.Context, id int64, body string) error {
	endpoint := fmt.Sprintf("%s/repos/%s/issues/%d", c.base, c.repo, id)
	payload := map[string]any{
		"body":         body,
		"state":        "closed",
		"state_reason": "completed",
	}
	if err := c.do(ctx, http.MethodPatch, endpoint, payload, nil); err != nil {
		return fmt.Errorf("closing issue #%d: %w", id, err)
	}
	c.log.Info().Int64("issue", id).Msg("closed tracking issue")
	return nil
}

// do performs one API request, encoding payload as JSON when non-nil and
// decoding the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, endpoint string, payload, out any) error {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("GitHub API returned status %d: %s", resp.StatusCode, snippet(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	return s
}
