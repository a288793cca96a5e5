package turkiye

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// DefaultBaseURL is the public provinces directory.
const DefaultBaseURL = "https://turkiyeapi.dev"

// Lookup resolves the district names for a province. Implementations are
// read-only and best-effort; callers must tolerate failure.
type Lookup interface {
	Districts(ctx context.Context, city string) ([]string, error)
}

// Client queries the provinces directory over HTTP. Every province entry
// already embeds its district list, so a single request answers any city.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a geography lookup client. baseURL may be empty to use
// the public directory.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type provincesResponse struct {
	Data []province `json:"data"`
}

type province struct {
	Name      string     `json:"name"`
	Districts []district `json:"districts"`
}

type district struct {
	Name string `json:"name"`
}

// Districts returns the lexicographically sorted district names of the
// province whose name equals city. An unknown city resolves to an empty
// list without error; transport and decode failures return an error so the
// caller can distinguish "failed" from "no districts".
func (c *Client) Districts(ctx context.Context, city string) ([]string, error) {
	url := fmt.Sprintf("%s/api/v1/provinces", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build provinces request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query provinces directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provinces directory returned status %d", resp.StatusCode)
	}

	var payload provincesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode provinces response: %w", err)
	}

	for _, p := range payload.Data {
		if p.Name != city {
			continue
		}
		names := make([]string, 0, len(p.Districts))
		for _, d := range p.Districts {
			if d.Name == "" {
				continue
			}
			names = append(names, d.Name)
		}
		sort.Strings(names)
		return names, nil
	}

	return []string{}, nil
}
