package pipeline

// Result is the outcome of a stage or of a whole pipeline run. Exactly
// one of Output and Error is meaningful, selected by Success.
type Result[T any] struct {
	Success         bool     `json:"success"`
	Output          T        `json:"output,omitempty"`
	Error           string   `json:"error,omitempty"`
	ExecutionTimeMs int64    `json:"execution_time_ms"`
	Warnings        []string `json:"warnings,omitempty"`
	FailedDetectors []string `json:"failed_detectors,omitempty"`
}

// Ok builds a successful result.
func Ok[T any](output T, elapsedMs int64) Result[T] {
	return Result[T]{Success: true, Output: output, ExecutionTimeMs: elapsedMs}
}

// Fail builds a failed result carrying a human-readable error.
func Fail[T any](err string, elapsedMs int64) Result[T] {
	return Result[T]{Success: false, Error: err, ExecutionTimeMs: elapsedMs}
}
