package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPLister implements Lister against the assistant daemon's /mic/list endpoint
type HTTPLister struct {
	baseURL string
	client  *http.Client
}

// NewHTTPLister creates a lister for the daemon at baseURL
func NewHTTPLister(baseURL string, client *http.Client) *HTTPLister {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPLister{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// ListDevices fetches the daemon's device list
func (l *HTTPLister) ListDevices(ctx context.Context) ([]RawDevice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/mic/list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	var body struct {
		Devices []RawDevice `json:"devices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode device list: %w", err)
	}

	return body.Devices, nil
}
