// Package kibela fetches note content from the Kibela GraphQL API.
package kibela

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

const (
	DefaultUserAgent = "Slack-To-Kibela-Emoji-Syncer/1.0.0"
	defaultTimeout   = 10 * time.Second
	// maxErrorBody bounds how much of a failed response is kept in APIError.
	maxErrorBody = 512
)

const (
	noteContentQuery = `query($id: ID!) {
  note: note(id: $id) {
    content: contentHtml
  }
}`
	noteIDFromPathQuery = `query($path: String!) {
  note: noteFromPath(path: $path) {
    id
  }
}`
)

// ErrNotFound is returned when the API has no note for the id or path.
var ErrNotFound = errors.New("kibela: note not found")

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kibela: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Is lets a 404 response match ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// GraphQLError carries the errors array of a GraphQL response.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "kibela: graphql: " + strings.Join(e.Messages, "; ")
}

// EndpointForTeam returns the API endpoint of a Kibela team.
func EndpointForTeam(team string) string {
	return fmt.Sprintf("https://%s.kibe.la/api/v1", team)
}

// Client is a minimal Kibela GraphQL client.
type Client struct {
	endpoint  string
	token     string
	userAgent string
	http      *http.Client
	log       logr.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func WithLogger(log logr.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient returns a client for endpoint authenticated with token.
func NewClient(endpoint, token string, opts ...Option) *Client {
	c := &Client{
		endpoint:  endpoint,
		token:     token,
		userAgent: DefaultUserAgent,
		http:      &http.Client{Timeout: defaultTimeout},
		log:       logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type response[T any] struct {
	Data   *T         `json:"data"`
	Errors []gqlError `json:"errors"`
}

type noteContentData struct {
	Note *struct {
		Content string `json:"content"`
	} `json:"note"`
}

type noteIDData struct {
	Note *struct {
		ID string `json:"id"`
	} `json:"note"`
}

// NoteContent returns the HTML body of the note with the given id.
func (c *Client) NoteContent(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("note content: %w", ErrNotFound)
	}
	var resp response[noteContentData]
	if err := c.do(ctx, noteContentQuery, map[string]any{"id": id}, &resp); err != nil {
		return "", fmt.Errorf("note content %q: %w", id, err)
	}
	if resp.Data == nil || resp.Data.Note == nil {
		return "", fmt.Errorf("note content %q: %w", id, missing(resp.Errors))
	}
	return resp.Data.Note.Content, nil
}

// NoteIDFromPath resolves a note URL or path to its id.
func (c *Client) NoteIDFromPath(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("note id: %w", ErrNotFound)
	}
	var resp response[noteIDData]
	if err := c.do(ctx, noteIDFromPathQuery, map[string]any{"path": path}, &resp); err != nil {
		return "", fmt.Errorf("note id for %q: %w", path, err)
	}
	if resp.Data == nil || resp.Data.Note == nil || resp.Data.Note.ID == "" {
		return "", fmt.Errorf("note id for %q: %w", path, missing(resp.Errors))
	}
	return resp.Data.Note.ID, nil
}

func (c *Client) do(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(request{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	c.log.V(2).Info("Kibela request finished", "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// missing explains an absent note: not found unless the API reported a
// different failure.
func missing(errs []gqlError) error {
	if len(errs) == 0 {
		return ErrNotFound
	}
	msgs := make([]string, 0, len(errs))
	notFound := false
	for _, e := range errs {
		msgs = append(msgs, e.Message)
		if e.Extensions.Code == "NOT_FOUND" {
			notFound = true
		}
	}
	gerr := &GraphQLError{Messages: msgs}
	if notFound {
		return fmt.Errorf("%w: %w", ErrNotFound, gerr)
	}
	return gerr
}
