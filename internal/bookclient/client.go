package bookclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client calls the book-structure service over HTTP. All four lookups
// return the upstream body verbatim; the payloads are only ever handed
// to the LLM as context, so there is nothing to decode here.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError represents a book-structure service error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("book service: %s (status %d)", e.Message, e.Status)
}

// NewClient constructs a book-structure service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Parts lists all book parts with their descriptions.
func (c *Client) Parts(ctx context.Context) (string, error) {
	return c.get(ctx, "/parser/parts")
}

// Chapters lists the chapters of one part.
func (c *Client) Chapters(ctx context.Context, part int) (string, error) {
	return c.get(ctx, "/parser/parts/"+strconv.Itoa(part)+"/chapters")
}

// Subchapters lists the subchapters of one chapter.
func (c *Client) Subchapters(ctx context.Context, part, chapter int) (string, error) {
	return c.get(ctx, "/parser/parts/"+strconv.Itoa(part)+"/chapters/"+strconv.Itoa(chapter)+"/subchapters")
}

// SubchapterContent returns the page text and summaries of a
// subchapter identified by its dotted number, e.g. "3.11.2".
func (c *Client) SubchapterContent(ctx context.Context, id string) (string, error) {
	return c.get(ctx, "/parser/subchapters/"+id+"/content")
}

func (c *Client) get(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("book service: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("book service read: %w", err)
	}
	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = resp.Status
		}
		return "", &APIError{Status: resp.StatusCode, Message: msg}
	}
	return string(body), nil
}
