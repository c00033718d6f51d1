package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Yohan-Helitha/DesynFlow-sub000/models"

	"github.com/sony/gobreaker"
)

// ProjectClient reads project data from the projects service and pushes the
// recomputed progress back as a display cache.
type ProjectClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

func NewProjectClient(baseURL string, httpClient *http.Client, breaker *gobreaker.CircuitBreaker) *ProjectClient {
	return &ProjectClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		breaker:    breaker,
	}
}

func (c *ProjectClient) GetProject(ctx context.Context, projectID string) (*models.Project, error) {
	url := fmt.Sprintf("%s/api/projects/%s", c.baseURL, projectID)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, models.NewReferenceError("projectId", "project %s not found", projectID)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("projects service returned status %d", resp.StatusCode)
		}

		var project models.Project
		if err := json.NewDecoder(resp.Body).Decode(&project); err != nil {
			return nil, fmt.Errorf("failed to decode project: %w", err)
		}
		return &project, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch project %s: %w", projectID, err)
	}

	return result.(*models.Project), nil
}

// UpdateProgress refreshes the cached progress value on the projects service.
// Callers treat a failure here as non-critical.
func (c *ProjectClient) UpdateProgress(ctx context.Context, projectID string, progress int) error {
	url := fmt.Sprintf("%s/api/projects/%s/progress", c.baseURL, projectID)

	payload, err := json.Marshal(map[string]int{"progress": progress})
	if err != nil {
		return fmt.Errorf("failed to encode progress payload: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
			return nil, fmt.Errorf("projects service returned status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to update cached progress for project %s: %w", projectID, err)
	}

	return nil
}
