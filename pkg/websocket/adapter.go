package websocket

import "context"

// Conn is a minimal interface for a WebSocket connection.
type Conn interface {
	// Read blocks until the next data frame arrives.
	Read(ctx context.Context) (MessageType, []byte, error)
	Write(ctx context.Context, msgType MessageType, payload []byte) error
	// Close sends a close frame best-effort and releases the connection.
	// It is safe to call more than once and from another goroutine than Read.
	Close(code CloseCode, reason string) error
}

// Dialer creates new connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}
