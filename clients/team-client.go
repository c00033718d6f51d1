package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Yohan-Helitha/DesynFlow-sub000/models"

	"github.com/sony/gobreaker"
)

// TeamClient reads team rosters from the teams service.
type TeamClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

func NewTeamClient(baseURL string, httpClient *http.Client, breaker *gobreaker.CircuitBreaker) *TeamClient {
	return &TeamClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		breaker:    breaker,
	}
}

func (c *TeamClient) GetTeamMembers(ctx context.Context, teamID string) ([]models.Member, error) {
	url := fmt.Sprintf("%s/api/teams/%s/members", c.baseURL, teamID)

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
			return nil, models.NewReferenceError("teamId", "team %s not found", teamID)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("teams service returned status %d", resp.StatusCode)
		}

		var members []models.Member
		if err := json.NewDecoder(resp.Body).Decode(&members); err != nil {
			return nil, fmt.Errorf("failed to decode team members: %w", err)
		}
		return members, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch members of team %s: %w", teamID, err)
	}

	return result.([]models.Member), nil
}
