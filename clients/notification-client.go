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

// NotificationClient forwards task events to the notifications service.
// Delivery is emit-only, the transition that produced an event never fails
// because of it.
type NotificationClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

func NewNotificationClient(baseURL string, httpClient *http.Client, breaker *gobreaker.CircuitBreaker) *NotificationClient {
	return &NotificationClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		breaker:    breaker,
	}
}

func (c *NotificationClient) SendTaskEvent(ctx context.Context, event models.TaskEvent) error {
	url := fmt.Sprintf("%s/api/notifications/task-events", c.baseURL)

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode task event: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return nil, fmt.Errorf("notifications service returned status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to send task event for task %s: %w", event.TaskID, err)
	}

	return nil
}
