package rpc

import (
	"context"
	"errors"

	"github.com/signalsfoundry/plant-trainer/internal/export"
	"github.com/signalsfoundry/plant-trainer/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrInvalidRequest is a package-level sentinel used for malformed requests
// that never reached the simulation.
var ErrInvalidRequest = errors.New("invalid request")

// ToStatusError maps simulation errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, export.ErrUnknownFormat):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, model.ErrUnknownEntity):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, model.ErrOutOfRange):
		return status.Error(codes.OutOfRange, err.Error())

	case errors.Is(err, model.ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, model.ErrConflictingActivation):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
