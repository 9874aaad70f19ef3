package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kurihiro0119/classroom-sync/internal/domain"
	apperrors "github.com/kurihiro0119/classroom-sync/internal/errors"
)

// Client is the API client for classroom-sync
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListRuns retrieves recent runs of an organization, newest first
func (c *Client) ListRuns(ctx context.Context, org string, limit int) ([]*domain.Run, error) {
	path := fmt.Sprintf("/api/v1/orgs/%s/runs", url.PathEscape(org))
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var response struct {
		Data []*domain.Run `json:"data"`
	}
	if err := c.get(ctx, path, params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetLatestRun retrieves the most recent run for org and prefix
func (c *Client) GetLatestRun(ctx context.Context, org, prefix string) (*domain.Run, error) {
	path := fmt.Sprintf("/api/v1/orgs/%s/runs/latest", url.PathEscape(org))
	params := url.Values{}
	params.Set("prefix", prefix)

	var response struct {
		Data *domain.Run `json:"data"`
	}
	if err := c.get(ctx, path, params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetRun retrieves a run with its result
func (c *Client) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	var response struct {
		Data *domain.Run `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(id), nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetSubmissions retrieves the records of a run. An empty status returns
// every record.
func (c *Client) GetSubmissions(ctx context.Context, id string, status domain.Status) ([]domain.SubmissionRecord, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", string(status))
	}

	var response struct {
		Data []domain.SubmissionRecord `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(id)+"/submissions", params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetInvalid retrieves the invalid submissions of a run
func (c *Client) GetInvalid(ctx context.Context, id string) ([]domain.InvalidSubmission, error) {
	var response struct {
		Data []domain.InvalidSubmission `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(id)+"/invalid", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetRunStats retrieves the totals of a run
func (c *Client) GetRunStats(ctx context.Context, id string) (*domain.RunStats, error) {
	var response struct {
		Data *domain.RunStats `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(id)+"/stats", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// CompareRuns retrieves the outcome changes from base to head
func (c *Client) CompareRuns(ctx context.Context, baseID, headID string) (*domain.RunDiff, error) {
	path := fmt.Sprintf("/api/v1/runs/%s/compare/%s", url.PathEscape(headID), url.PathEscape(baseID))

	var response struct {
		Data *domain.RunDiff `json:"data"`
	}
	if err := c.get(ctx, path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// decodeError turns an error response back into an AppError when the body
// carries a code
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var payload struct {
		Error struct {
			Code    apperrors.ErrCode `json:"code"`
			Message string            `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error.Code == "" {
		return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}
	return &apperrors.AppError{
		Code:    payload.Error.Code,
		Message: payload.Error.Message,
	}
}
