package errors

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	apperrors "github.com/tilerush/scoreboard/common/errors"
)

// InvalidRequest reports request fields that failed validation, in field order.
func InvalidRequest(fieldErrors map[string]string) *apperrors.AppError {
	parts := make([]string, 0, len(fieldErrors))
	for _, field := range slices.Sorted(maps.Keys(fieldErrors)) {
		parts = append(parts, field+" "+fieldErrors[field])
	}
	return apperrors.New(apperrors.CodeInvalidInput, "invalid request: "+strings.Join(parts, "; "))
}

func UnsupportedStore(driver string) *apperrors.AppError {
	return apperrors.New(apperrors.CodeInvalidInput, fmt.Sprintf("unsupported store driver %q", driver))
}

func UnsupportedIndexBackend(backend string) *apperrors.AppError {
	return apperrors.New(apperrors.CodeInvalidInput, fmt.Sprintf("unsupported rank index backend %q", backend))
}
