package apperr

import "errors"

var (
	ErrBadRequest         = errors.New("bad request")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrInternal           = errors.New("internal error")
	ErrSendInFlight       = errors.New("send already in flight")
	ErrEmptyDraft         = errors.New("nothing to send")
	ErrAttachmentTooLarge = errors.New("attachment exceeds size limit")
	ErrAttachmentType     = errors.New("attachment type not allowed")
	ErrNoSurface          = errors.New("no surface selected")
	ErrServiceUnavailable = errors.New("service unavailable")
)
