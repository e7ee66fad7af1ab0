// Package watch verifies a running netwatch deployment by querying the
// netwatch_* series from a Prometheus server and evaluating threshold
// criteria against them.
package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// Client wraps the Prometheus query API.
type Client struct {
	api     v1.API
	timeout time.Duration
}

// QueryResult is one sample from an instant query.
type QueryResult struct {
	Timestamp time.Time
	Value     float64
	Labels    map[string]string
}

// NewClient creates a Prometheus query client.
func NewClient(url string, timeout time.Duration) (*Client, error) {
	apiClient, err := api.NewClient(api.Config{Address: url})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &Client{
		api:     v1.NewAPI(apiClient),
		timeout: timeout,
	}, nil
}

// Query executes an instant query at the current time.
func (c *Client) Query(ctx context.Context, query string) ([]QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, _, err := c.api.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	return parseResult(result)
}

// TestConnection checks that the Prometheus server answers queries.
func (c *Client) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, _, err := c.api.Query(ctx, "up", time.Now()); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// parseResult converts a Prometheus model.Value to QueryResults.
func parseResult(value model.Value) ([]QueryResult, error) {
	results := make([]QueryResult, 0)

	switch v := value.(type) {
	case model.Vector:
		for _, sample := range v {
			results = append(results, QueryResult{
				Timestamp: sample.Timestamp.Time(),
				Value:     float64(sample.Value),
				Labels:    metricToMap(sample.Metric),
			})
		}

	case *model.Scalar:
		results = append(results, QueryResult{
			Timestamp: v.Timestamp.Time(),
			Value:     float64(v.Value),
			Labels:    make(map[string]string),
		})

	default:
		return nil, fmt.Errorf("unsupported result type: %T", value)
	}

	return results, nil
}

// metricToMap converts model.Metric to map[string]string
func metricToMap(metric model.Metric) map[string]string {
	labels := make(map[string]string)
	for k, v := range metric {
		labels[string(k)] = string(v)
	}
	return labels
}
