package gcp

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/picklr-io/converge/pkg/cloud"
)

// classify maps Google API errors onto the cloud error classes. Context
// errors and unrecognized errors are returned unchanged.
func classify(op string, ref cloud.Ref, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return cloud.Wrap(classForHTTP(apiErr.Code), op, ref, err)
	}
	if s, ok := status.FromError(err); ok && s.Code() != codes.OK && s.Code() != codes.Unknown {
		return cloud.Wrap(classForGRPC(s.Code()), op, ref, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return cloud.Transient(op, ref, err)
	}
	return err
}

func classForHTTP(code int) cloud.Class {
	switch code {
	case http.StatusNotFound:
		return cloud.ClassNotFound
	case http.StatusConflict:
		return cloud.ClassConflict
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return cloud.ClassTransient
	default:
		return cloud.ClassRejected
	}
}

func classForGRPC(code codes.Code) cloud.Class {
	switch code {
	case codes.NotFound:
		return cloud.ClassNotFound
	case codes.AlreadyExists:
		return cloud.ClassConflict
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted,
		codes.Internal, codes.DeadlineExceeded:
		return cloud.ClassTransient
	default:
		return cloud.ClassRejected
	}
}

// policyConflict turns an etag mismatch on a policy write into a retryable
// error; the caller re-reads the policy on the next attempt.
func policyConflict(op string, ref cloud.Ref, err error) error {
	err = classify(op, ref, err)
	if cloud.IsConflict(err) {
		return cloud.Transient(op, ref, err)
	}
	return err
}

// grantFailed classifies a failed policy write. IAM answers 400 "does not
// exist" for a service account created moments ago until it has propagated;
// that is retried like an etag conflict.
func grantFailed(op string, ref cloud.Ref, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest &&
		strings.Contains(apiErr.Message, "does not exist") {
		return cloud.Transient(op, ref, err)
	}
	return policyConflict(op, ref, err)
}
