package watch

import "testing"

func TestEvaluateThreshold(t *testing.T) {
	tests := []struct {
		value     float64
		threshold string
		want      bool
	}{
		{0.95, ">= 0.9", true},
		{0.9, ">= 0.9", true},
		{0.85, ">= 0.9", false},
		{0.1, "< 0.5", true},
		{0.5, "< 0.5", false},
		{0.5, "<= 0.5", true},
		{1, "> 0", true},
		{0, "> 0", false},
		{0, "== 0", true},
		{3, "!= 0", true},
		{0, "!= 0", false},
		{0.95, ">=0.9", true}, // no space
	}

	for _, tt := range tests {
		got, err := EvaluateThreshold(tt.value, tt.threshold)
		if err != nil {
			t.Errorf("EvaluateThreshold(%v, %q) error = %v", tt.value, tt.threshold, err)
			continue
		}
		if got != tt.want {
			t.Errorf("EvaluateThreshold(%v, %q) = %v, want %v", tt.value, tt.threshold, got, tt.want)
		}
	}
}

func TestEvaluateThresholdRejectsGarbage(t *testing.T) {
	tests := []string{"", "0.9", "~ 0.9", ">= abc", "=>0.5"}

	for _, threshold := range tests {
		if _, err := EvaluateThreshold(1, threshold); err == nil {
			t.Errorf("EvaluateThreshold(1, %q) accepted an invalid expression", threshold)
		}
	}
}
