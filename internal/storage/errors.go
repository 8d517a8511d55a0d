package storage

import (
	"context"
	"errors"
	"fmt"

	"exproctor/pkg/types"

	"github.com/aws/smithy-go"
)

// wrapErr converts a backend failure into the storage error taxonomy. Only the
// message survives; the backend error value is dropped on purpose.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var typed *types.Error
	if errors.As(err, &typed) {
		return typed
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrTimeout, "%s: deadline exceeded", op)
	}

	if errors.Is(err, context.Canceled) {
		return types.NewError(types.ErrStorage, "%s: request canceled", op)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return types.NewError(types.ErrStorage, "%s: %s: %s", op, apiErr.ErrorCode(), apiErr.ErrorMessage())
	}

	return types.NewError(types.ErrStorage, "%s: %s", op, err.Error())
}

func isAPIErrorCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, c := range codes {
		if apiErr.ErrorCode() == c {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	return isAPIErrorCode(err, "NoSuchBucket", "NoSuchKey", "NotFound")
}

func opf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
