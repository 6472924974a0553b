package api

import (
	"errors"

	"github.com/matheus3301/wlite/internal/account"
	"github.com/matheus3301/wlite/internal/chat"
	"github.com/matheus3301/wlite/internal/contact"
	"github.com/matheus3301/wlite/internal/message"
	"github.com/matheus3301/wlite/internal/remote"
	"github.com/matheus3301/wlite/internal/story"
	intsync "github.com/matheus3301/wlite/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps domain errors to gRPC status codes.
func toStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	code := codes.Internal
	switch {
	case errors.Is(err, chat.ErrNotFound), errors.Is(err, story.ErrNotFound),
		errors.Is(err, account.ErrUnknownPhone), errors.Is(err, remote.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, account.ErrPhoneTaken), errors.Is(err, contact.ErrContactExists):
		code = codes.AlreadyExists
	case errors.Is(err, account.ErrNotLoggedIn), errors.Is(err, chat.ErrNotLoggedIn),
		errors.Is(err, message.ErrNotLoggedIn), errors.Is(err, story.ErrNotLoggedIn),
		errors.Is(err, intsync.ErrNotLoggedIn):
		code = codes.Unauthenticated
	case errors.Is(err, account.ErrInvalidPhone), errors.Is(err, account.ErrNoChanges),
		errors.Is(err, contact.ErrInvalidPhone),
		errors.Is(err, chat.ErrSelfChat), errors.Is(err, chat.ErrNoMembers),
		errors.Is(err, message.ErrEmptyMessage), errors.Is(err, story.ErrEmptyContent):
		code = codes.InvalidArgument
	case errors.Is(err, remote.ErrUnavailable):
		code = codes.Unavailable
	}
	return grpcstatus.Errorf(code, "%s: %v", op, err)
}
