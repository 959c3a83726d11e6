package exception

import "errors"

var (
	ErrUnknownEvent  = errors.New("market data: unknown event")
	ErrDecodePayload = errors.New("market data: decode payload")
	ErrLaneClosed    = errors.New("market data: lane closed")
)

var (
	// ErrInvalidNumber marks a price or quantity that could not be parsed.
	// The event is kept with the value defaulted to zero.
	ErrInvalidNumber = errors.New("market data: invalid number")
)
