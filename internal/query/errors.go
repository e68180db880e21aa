package query

import "errors"

// Errors returned by Service. ErrInvalidAddress and ErrQueryTooShort are
// client errors; ErrNotFound means no snapshot entry and no upstream record.
var (
	ErrInvalidAddress = errors.New("invalid token address")
	ErrNotFound       = errors.New("token not found")
	ErrQueryTooShort  = errors.New("search query must be at least 2 characters")
)
