package watch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Criterion is one health condition to verify against the exported series.
type Criterion struct {
	Name      string
	Query     string
	Threshold string // e.g. ">= 0.9", "== 0"
	// AllSeries requires every series returned by the query to satisfy the
	// threshold, not just the first.
	AllSeries bool
}

// CriterionResult is the evaluation outcome for one criterion.
type CriterionResult struct {
	Criterion Criterion
	Passed    bool
	Values    []float64
	Message   string
}

// Checker evaluates criteria against a Prometheus server.
type Checker struct {
	client *Client
}

// NewChecker creates a checker backed by the given query client.
func NewChecker(client *Client) *Checker {
	return &Checker{client: client}
}

// Evaluate runs one criterion.
func (ch *Checker) Evaluate(ctx context.Context, criterion Criterion) (*CriterionResult, error) {
	result := &CriterionResult{Criterion: criterion}

	if criterion.Query == "" {
		result.Message = "query is empty"
		return result, fmt.Errorf("query is empty")
	}

	queryResults, err := ch.client.Query(ctx, criterion.Query)
	if err != nil {
		result.Message = fmt.Sprintf("query failed: %v", err)
		return result, err
	}

	if len(queryResults) == 0 {
		result.Message = "query returned no results"
		return result, nil
	}

	samples := queryResults
	if !criterion.AllSeries {
		samples = queryResults[:1]
	}

	result.Passed = true
	for _, sample := range samples {
		result.Values = append(result.Values, sample.Value)
		passed, err := EvaluateThreshold(sample.Value, criterion.Threshold)
		if err != nil {
			result.Passed = false
			result.Message = fmt.Sprintf("threshold evaluation failed: %v", err)
			return result, err
		}
		if !passed {
			result.Passed = false
			result.Message = fmt.Sprintf("value %.4f does not meet threshold %s", sample.Value, criterion.Threshold)
		}
	}

	if result.Passed {
		result.Message = fmt.Sprintf("%d series meet threshold %s", len(samples), criterion.Threshold)
	}
	return result, nil
}

// EvaluateAll evaluates every criterion, continuing past failures.
func (ch *Checker) EvaluateAll(ctx context.Context, criteria []Criterion) ([]*CriterionResult, error) {
	results := make([]*CriterionResult, 0, len(criteria))
	var firstErr error

	for _, criterion := range criteria {
		result, err := ch.Evaluate(ctx, criterion)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		results = append(results, result)
	}

	return results, firstErr
}

// EvaluateThreshold parses and evaluates a threshold expression.
// Supports: "> 0", "< 100", ">= 50", "<= 75", "== 0", "!= 0".
func EvaluateThreshold(value float64, threshold string) (bool, error) {
	threshold = strings.TrimSpace(threshold)

	var operator, rest string
	switch {
	case strings.HasPrefix(threshold, ">="):
		operator, rest = ">=", threshold[2:]
	case strings.HasPrefix(threshold, "<="):
		operator, rest = "<=", threshold[2:]
	case strings.HasPrefix(threshold, "!="):
		operator, rest = "!=", threshold[2:]
	case strings.HasPrefix(threshold, "=="):
		operator, rest = "==", threshold[2:]
	case strings.HasPrefix(threshold, ">"):
		operator, rest = ">", threshold[1:]
	case strings.HasPrefix(threshold, "<"):
		operator, rest = "<", threshold[1:]
	default:
		return false, fmt.Errorf("invalid threshold format: %s (expected: >, <, >=, <=, ==, !=)", threshold)
	}

	thresholdValue, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
	if err != nil {
		return false, fmt.Errorf("invalid threshold value in %q: %w", threshold, err)
	}

	switch operator {
	case ">":
		return value > thresholdValue, nil
	case "<":
		return value < thresholdValue, nil
	case ">=":
		return value >= thresholdValue, nil
	case "<=":
		return value <= thresholdValue, nil
	case "==":
		return value == thresholdValue, nil
	case "!=":
		return value != thresholdValue, nil
	default:
		return false, fmt.Errorf("unknown operator: %s", operator)
	}
}
