package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the two fatal caller-side failure modes. Both abort
// the run; neither is retried internally.
var (
	// ErrDataUnavailable means the price provider returned zero usable
	// points for the requested symbol and window.
	ErrDataUnavailable = errors.New("no price data available")

	// ErrUnsupportedBenchmark means the benchmark symbol does not resolve
	// to a concrete market ticker.
	ErrUnsupportedBenchmark = errors.New("unsupported benchmark")
)

// FactorEvaluationError means the factor expression could not be evaluated
// at all. Per-day non-finite values are recovered locally to 0 and never
// produce this error.
type FactorEvaluationError struct {
	Formula string
	Reason  string
}

func (e *FactorEvaluationError) Error() string {
	return fmt.Sprintf("factor evaluation failed: %s", e.Reason)
}

// ExternalServiceError wraps a failure from the formula/code generation
// service or the execution sandbox. Message carries the external service's
// error text verbatim for diagnosis.
type ExternalServiceError struct {
	Service string
	Message string
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}
