package closing

import "errors"

var (
	// ErrNoWorkItems is returned when a run starts with an empty work list.
	ErrNoWorkItems = errors.New("closing: no records in user data")
	// ErrNoCompanyCode is returned when the request carries no company code.
	ErrNoCompanyCode = errors.New("closing: the message body contains no company code value")
)
