package firestore

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/Ngumi22/zami-web-sub001/internal/platform/firestore"
)

// notFoundError reports an empty query result the same way a missing document is reported.
func notFoundError(op, msg string) error {
	return pfirestore.WrapError(op, status.Error(codes.NotFound, msg))
}

func invalidError(op, msg string) error {
	return pfirestore.WrapError(op, status.Error(codes.InvalidArgument, msg))
}
