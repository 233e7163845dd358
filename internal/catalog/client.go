package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/tunecache/tunecache-go/internal/errors"
	"github.com/tunecache/tunecache-go/internal/monitoring"
	"github.com/tunecache/tunecache-go/internal/network"
)

// Client talks to the remote catalog service
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewClient creates a catalog client. requestsPerSecond bounds the request
// rate against the catalog's public API.
func NewClient(baseURL string, requestsPerSecond int) *Client {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10
	}
	return &Client{
		baseURL:     baseURL,
		httpClient:  network.GetDefaultClient(),
		rateLimiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

// NewClientWithHTTP creates a catalog client with an explicit HTTP client,
// used by tests and by callers that need custom transport behavior.
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:     baseURL,
		httpClient:  httpClient,
		rateLimiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 10),
	}
}

// ListItems fetches the catalog's recent items. Matching and visibility
// filtering happen in the search adapter; the wire call stays a plain list.
func (c *Client) ListItems(ctx context.Context, limit int) ([]*RemoteCatalogItem, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	var payload struct {
		Items []*RemoteCatalogItem `json:"items"`
	}
	if err := c.get(ctx, "/items", "/items", params, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// GetItem fetches a single catalog item by id
func (c *Client) GetItem(ctx context.Context, id string) (*RemoteCatalogItem, error) {
	if id == "" {
		return nil, apperrors.NewValidationError("item id cannot be empty")
	}

	var item RemoteCatalogItem
	if err := c.get(ctx, "/items/"+url.PathEscape(id), "/items/:id", nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetUploader resolves an uploader reference to its catalog record
func (c *Client) GetUploader(ctx context.Context, id string) (*Uploader, error) {
	if id == "" {
		return nil, apperrors.NewValidationError("uploader id cannot be empty")
	}

	var uploader Uploader
	if err := c.get(ctx, "/uploaders/"+url.PathEscape(id), "/uploaders/:id", nil, &uploader); err != nil {
		return nil, err
	}
	return &uploader, nil
}

// get performs one rate-limited GET and decodes the JSON response. route is
// the normalized endpoint shape used as the metric label; per-id paths must
// not leak into it or every id mints a new time series.
func (c *Client) get(ctx context.Context, endpoint, route string, params url.Values, out interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return apperrors.NewNetworkError("rate limiter interrupted", err)
	}

	requestURL := c.baseURL + endpoint
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return apperrors.NewValidationError("invalid catalog request: " + err.Error())
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		monitoring.RecordCatalogRequest(route, "error", time.Since(start))
		return apperrors.NewNetworkError("catalog request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		monitoring.RecordCatalogRequest(route, "not_found", time.Since(start))
		return apperrors.NewNotFoundError("catalog has no such resource")
	}
	if resp.StatusCode != http.StatusOK {
		monitoring.RecordCatalogRequest(route, "error", time.Since(start))
		return apperrors.NewNetworkError(
			fmt.Sprintf("catalog returned status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		monitoring.RecordCatalogRequest(route, "error", time.Since(start))
		return apperrors.NewNetworkError("failed to read catalog response", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		monitoring.RecordCatalogRequest(route, "error", time.Since(start))
		return apperrors.NewNetworkError("failed to decode catalog response", err)
	}

	monitoring.RecordCatalogRequest(route, "success", time.Since(start))
	return nil
}
