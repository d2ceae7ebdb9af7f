package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure. Every validator and referential check
// surfaces exactly one kind so callers can dispatch without string matching.
type Kind string

// Domain error kinds.
const (
	KindUnauthorizedAccess    Kind = "UNAUTHORIZED_ACCESS"
	KindInvalidGeofence       Kind = "INVALID_GEOFENCE"
	KindSeasonalRestriction   Kind = "SEASONAL_RESTRICTION_VIOLATION"
	KindYieldLimitExceeded    Kind = "YIELD_LIMIT_EXCEEDED"
	KindQualityGateFailed     Kind = "QUALITY_GATE_FAILED"
	KindCollectionNotFound    Kind = "COLLECTION_NOT_FOUND"
	KindQualityTestNotFound   Kind = "QUALITY_TEST_NOT_FOUND"
	KindProcessingNotFound    Kind = "PROCESSING_NOT_FOUND"
	KindBatchNotFound         Kind = "BATCH_NOT_FOUND"
	KindInvalidStatusChange   Kind = "INVALID_STATUS_CHANGE"
	KindDuplicateIdentifier   Kind = "DUPLICATE_IDENTIFIER"
	KindInvalidZoneDefinition Kind = "INVALID_ZONE_DEFINITION"
)

// Error is the structured (kind, message) pair surfaced for every domain
// failure.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError constructs a domain error.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf constructs a domain error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err. Blocking rule violations map to the
// kind carried on the first blocking violation.
func KindOf(err error) (Kind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	var rve RuleViolationError
	if errors.As(err, &rve) {
		if v, ok := rve.Result.FirstBlocking(); ok {
			return v.Kind, true
		}
	}
	return "", false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
