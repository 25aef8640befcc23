package errors

import (
	"errors"
	"time"
)

// Report is the cross-boundary wire shape for a failure. An outer layer
// (HTTP, RPC) serializes it verbatim; the core only guarantees that
// every error kind carries enough structure to populate it.
type Report struct {
	Code          string         `json:"code"`
	Message       string         `json:"message"`
	Details       map[string]any `json:"details,omitempty"`
	CorrelationID string         `json:"correlation_id"`
	Timestamp     string         `json:"timestamp"`
}

// NewReport builds a Report from any failure error, flattening the
// structured fields of the known kinds into Details.
func NewReport(err error, correlationID string, now time.Time) Report {
	r := Report{
		Code:          Code(err),
		Message:       err.Error(),
		CorrelationID: correlationID,
		Timestamp:     now.UTC().Format(time.RFC3339),
	}

	var (
		validation *ValidationError
		notFound   *NotFoundError
		conflict   *ConflictError
		repo       *RepositoryError
		spec       *SpecificationError
		open       *CircuitOpenError
		timeout    *TimeoutError
		exhausted  *RetryExhaustedError
	)

	// The wrapper kind wins over whatever it wraps, mirroring Code.
	switch {
	case errors.As(err, &exhausted):
		r.Details = map[string]any{"attempts": exhausted.Attempts, "cause": exhausted.Err.Error()}
	case errors.As(err, &validation):
		violations := make([]map[string]string, 0, len(validation.Violations))
		for _, v := range validation.Violations {
			violations = append(violations, map[string]string{"field": v.Field, "message": v.Message})
		}
		r.Details = map[string]any{"violations": violations}
	case errors.As(err, &notFound):
		r.Details = map[string]any{"entity": notFound.Entity, "id": notFound.ID}
	case errors.As(err, &conflict):
		r.Details = map[string]any{"entity": conflict.Entity}
	case errors.As(err, &spec):
		r.Details = map[string]any{"reason": spec.Reason}
	case errors.As(err, &open):
		r.Details = map[string]any{"circuit": open.Name, "retry_after": open.RetryAfter.String()}
	case errors.As(err, &timeout):
		r.Details = map[string]any{"limit": timeout.Limit.String()}
	case errors.As(err, &repo):
		r.Details = map[string]any{"op": repo.Op, "cause": repo.Err.Error()}
	}

	return r
}
