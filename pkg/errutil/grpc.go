package errutil

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorDomain tags the ErrorInfo detail attached to gRPC errors.
const ErrorDomain = "wavesight"

var grpcCodes = map[CoreStatus]codes.Code{
	StatusBadRequest:           codes.InvalidArgument,
	StatusValidationFailed:     codes.InvalidArgument,
	StatusUnsupportedMediaType: codes.InvalidArgument,
	StatusUnauthorized:         codes.Unauthenticated,
	StatusForbidden:            codes.PermissionDenied,
	StatusNotFound:             codes.NotFound,
	StatusConflict:             codes.AlreadyExists,
	StatusUnprocessableEntity:  codes.FailedPrecondition,
	StatusTooManyRequests:      codes.ResourceExhausted,
	StatusClientClosedRequest:  codes.Canceled,
	StatusNotImplemented:       codes.Unimplemented,
	StatusBadGateway:           codes.Unavailable,
	StatusServiceUnavailable:   codes.Unavailable,
	StatusTimeout:              codes.DeadlineExceeded,
	StatusGatewayTimeout:       codes.DeadlineExceeded,
	StatusInternal:             codes.Internal,
}

func (s CoreStatus) GRPCCode() codes.Code {
	if c, ok := grpcCodes[s]; ok {
		return c
	}
	return codes.Unknown
}

// ToGRPCError converts err to a gRPC status. Domain errors keep their code as ErrorInfo.Reason and their
// field details as BadRequest violations; internal causes are not exposed.
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	var base BaseError
	if !errors.As(err, &base) {
		return status.Error(codes.Internal, "internal error")
	}

	msg := base.Message
	if base.Code == StatusInternal || base.Code == StatusUnknown {
		msg = "internal error"
	}
	st := status.New(base.Code.GRPCCode(), msg)

	info := &errdetails.ErrorInfo{Reason: string(base.Code), Domain: ErrorDomain}
	if len(base.Details) == 0 {
		return withDetails(st, info)
	}

	violations := make([]*errdetails.BadRequest_FieldViolation, 0, len(base.Details))
	for _, d := range base.Details {
		violations = append(violations, &errdetails.BadRequest_FieldViolation{Field: d.Field, Description: d.Message})
	}
	return withDetails(st, info, &errdetails.BadRequest{FieldViolations: violations})
}

func withDetails(st *status.Status, info *errdetails.ErrorInfo, extra ...*errdetails.BadRequest) error {
	var (
		out *status.Status
		err error
	)
	if len(extra) == 0 {
		out, err = st.WithDetails(info)
	} else {
		out, err = st.WithDetails(info, extra[0])
	}
	if err != nil {
		return st.Err()
	}
	return out.Err()
}
