package exception

import "errors"

var (
	ErrInResponseError = errors.New("there is an error in response error field")
	ErrDirectoryFetch  = errors.New("directory fetch failed")
)
