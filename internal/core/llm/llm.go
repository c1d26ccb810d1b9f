// Package llm provides JSON-mode chat completions for campaign planning,
// query generation, and document evaluation. Prompt construction and
// response decoding belong to the callers; this package owns transport,
// rate limiting, and the circuit breaker.
package llm

import (
	"context"
)

// Task labels a completion request for logging and metrics.
type Task string

const (
	TaskPlanner    Task = "planner"
	TaskSourceRec  Task = "source_recommendation"
	TaskIssuerRec  Task = "issuer_identification"
	TaskQueryGen   Task = "query_generation"
	TaskEvaluation Task = "evaluation"
	TaskCrossPIR   Task = "cross_pir"
	TaskSelfTest   Task = "selftest"
)

// Request describes a single JSON-mode chat completion.
type Request struct {
	Task        Task
	Model       string
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// Client produces JSON completions. Implementations must return the
// response content with markdown fences and surrounding prose already
// stripped, so callers can unmarshal directly.
type Client interface {
	CompleteJSON(ctx context.Context, req Request) (string, error)
}
