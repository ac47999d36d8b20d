package handlers

import (
	"errors"

	"github.com/spec-kit/support-agent/internal/conversation"
	"github.com/spec-kit/support-agent/internal/service"
	apperrors "github.com/spec-kit/support-agent/pkg/util/errorutil"
)

// mapServiceError turns package sentinels into API errors. Anything else is
// left to the error middleware.
func mapServiceError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, conversation.ErrBusy):
		return apperrors.NewTooManyRequests("another message in this conversation is still being processed")
	case errors.Is(err, conversation.ErrForbidden):
		return apperrors.NewForbidden("conversation belongs to another customer")
	case errors.Is(err, conversation.ErrNotFound):
		return apperrors.NewNotFound("conversation", nil)
	case errors.Is(err, service.ErrInvalidTransition):
		return apperrors.NewConflict(err.Error(), nil)
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrStaffInactive):
		return apperrors.NewUnauthorized(err.Error())
	default:
		return err
	}
}
