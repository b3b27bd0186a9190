package errors

// ErrorCode is a typed, stable identifier for a failure category.  Codes are
// string-valued so they can be emitted directly as metric labels and embedded
// in API error payloads without a lookup table.
type ErrorCode string

// ─────────────────────────────────────────────────────────────────────────────
// Common codes (cross-cutting)
// ─────────────────────────────────────────────────────────────────────────────

const (
	ErrCodeInternal        ErrorCode = "COMMON_001"
	ErrCodeBadRequest      ErrorCode = "COMMON_002"
	ErrCodeNotFound        ErrorCode = "COMMON_003"
	ErrCodeConflict        ErrorCode = "COMMON_004"
	ErrCodeTimeout         ErrorCode = "COMMON_005"
	ErrCodeValidation      ErrorCode = "COMMON_006"
	ErrCodeSerialization   ErrorCode = "COMMON_007"
	ErrCodeExternalService ErrorCode = "COMMON_008"
)

// ─────────────────────────────────────────────────────────────────────────────
// Pipeline codes
//
// One code per stage-level failure mode from the ingestion pipeline.  A
// per-record failure carries the stage code; the stage itself keeps running
// and reports an aggregate count.
// ─────────────────────────────────────────────────────────────────────────────

const (
	// ErrCodeConfig marks malformed configuration or mapping tables.  Always
	// fatal: the pipeline refuses to start on a config error.
	ErrCodeConfig ErrorCode = "PIPE_001"

	// ErrCodeFetch marks a non-retryable HTTP failure while crawling the
	// portal.  Retryable transport failures are absorbed by the fetcher's
	// backoff and never surface with this code.
	ErrCodeFetch ErrorCode = "PIPE_002"

	// ErrCodeParse marks a structure mismatch in crawled HTML.
	ErrCodeParse ErrorCode = "PIPE_003"

	// ErrCodeNormalize marks an unrecoverable transformation failure.
	ErrCodeNormalize ErrorCode = "PIPE_004"

	// ErrCodeRelationService marks a failure of the study→dataset relation
	// service.
	ErrCodeRelationService ErrorCode = "PIPE_005"

	// ErrCodeStructure marks a cross-language merge or versioning failure.
	ErrCodeStructure ErrorCode = "PIPE_006"
)

// ─────────────────────────────────────────────────────────────────────────────
// Index codes
// ─────────────────────────────────────────────────────────────────────────────

const (
	// ErrCodeIndexConflict marks an optimistic-concurrency failure
	// (stale sequence number / primary term).  Not a pipeline-level error;
	// callers retry with a fresh read.
	ErrCodeIndexConflict ErrorCode = "IDX_001"

	// ErrCodeIndexIO marks an unrecoverable search-index I/O failure.
	ErrCodeIndexIO ErrorCode = "IDX_002"

	// ErrCodeDocumentNotFound marks a missing index document.
	ErrCodeDocumentNotFound ErrorCode = "IDX_003"

	// ErrCodeAllocExhausted marks repeated create-conflicts during humId
	// allocation.
	ErrCodeAllocExhausted ErrorCode = "IDX_004"
)

// ─────────────────────────────────────────────────────────────────────────────
// Validation codes
// ─────────────────────────────────────────────────────────────────────────────

const (
	// ErrCodeICD10Violation marks an ICD10 check failure: a disease without a
	// code, or a label that does not match the master table.
	ErrCodeICD10Violation ErrorCode = "VAL_001"

	// ErrCodeFacetUnknownField marks a facet-normalizer run against a field
	// that has no mapping table.
	ErrCodeFacetUnknownField ErrorCode = "VAL_002"
)

// String returns the code's string form.
func (c ErrorCode) String() string { return string(c) }

// HTTPStatus maps an ErrorCode to the HTTP status the API layer should emit.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrCodeBadRequest, ErrCodeValidation:
		return 400
	case ErrCodeNotFound, ErrCodeDocumentNotFound:
		return 404
	case ErrCodeConflict, ErrCodeIndexConflict:
		return 409
	case ErrCodeTimeout:
		return 504
	default:
		return 500
	}
}
