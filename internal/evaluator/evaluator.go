// Package evaluator defines the boundary to the external evaluation pipeline.
// The pipeline itself (document parsing, test-case generation, scoring) is a
// black box behind the Evaluator interface.
package evaluator

import "context"

// Request describes one evaluation run. Nil page bounds mean the whole document.
type Request struct {
	DocumentPath string `json:"document_path"`
	StartPage    *int   `json:"start_page,omitempty"`
	EndPage      *int   `json:"end_page,omitempty"`
	ModelURI     string `json:"model_uri"`
	NumTestCases int    `json:"num_test_cases"`
}

// Outcome is what a successful pipeline run reports back.
type Outcome struct {
	ResultPath     string             `json:"result_path"`
	DatasetPath    string             `json:"dataset_path"`
	AvgScore       float64            `json:"avg_score"`
	MetricsSummary map[string]float64 `json:"metrics_summary"`
}

type Evaluator interface {
	Evaluate(ctx context.Context, req Request) (*Outcome, error)
}

// Func adapts a plain function to the Evaluator interface.
type Func func(ctx context.Context, req Request) (*Outcome, error)

func (f Func) Evaluate(ctx context.Context, req Request) (*Outcome, error) {
	return f(ctx, req)
}
