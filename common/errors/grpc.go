package errors

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ToGRPCError converts any error into a gRPC status error. AppErrors keep
// their message; everything else is reported as Internal.
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return status.Error(mapErrorCodeToGRPC(appErr.Code), appErr.Message)
	}

	return status.Error(codes.Internal, err.Error())
}

func mapErrorCodeToGRPC(code string) codes.Code {
	switch code {
	case CodeNotFound:
		return codes.NotFound
	case CodeAlreadyExists:
		return codes.AlreadyExists
	case CodeInvalidInput:
		return codes.InvalidArgument
	case CodeUnauthorized:
		return codes.Unauthenticated
	case CodeForbidden:
		return codes.PermissionDenied
	case CodeConflict:
		return codes.Aborted
	case CodeServiceUnavailable:
		return codes.Unavailable
	case CodeResourceExhausted:
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}

func FromGRPCError(err error) error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	return &AppError{
		Code:    mapGRPCToErrorCode(st.Code()),
		Message: st.Message(),
		Err:     err,
	}
}

func mapGRPCToErrorCode(code codes.Code) string {
	switch code {
	case codes.NotFound:
		return CodeNotFound
	case codes.AlreadyExists:
		return CodeAlreadyExists
	case codes.InvalidArgument, codes.FailedPrecondition:
		return CodeInvalidInput
	case codes.Unauthenticated:
		return CodeUnauthorized
	case codes.PermissionDenied:
		return CodeForbidden
	case codes.Aborted:
		return CodeConflict
	case codes.Unavailable:
		return CodeServiceUnavailable
	case codes.ResourceExhausted:
		return CodeResourceExhausted
	default:
		return CodeInternalServer
	}
}
