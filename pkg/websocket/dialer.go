package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/matrix-tang/ex-rs/pkg/exception"
	"github.com/yanun0323/errors"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
)

// DialOption configures a gorilla-backed dialer.
type DialOption struct {
	Header           http.Header
	HandshakeTimeout time.Duration
	// ReadTimeout is the idle limit between two frames. Zero disables it.
	ReadTimeout time.Duration
}

type dialer struct {
	url         string
	header      http.Header
	readTimeout time.Duration
	ws          *gws.Dialer
}

// NewDialer creates a Dialer for the given ws:// or wss:// url.
func NewDialer(url string, opt DialOption) Dialer {
	handshake := opt.HandshakeTimeout
	if handshake <= 0 {
		handshake = DefaultHandshakeTimeout
	}

	return &dialer{
		url:         url,
		header:      opt.Header,
		readTimeout: opt.ReadTimeout,
		ws: &gws.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshake,
		},
	}
}

func (d *dialer) Dial(ctx context.Context) (Conn, error) {
	c, resp, err := d.ws.DialContext(ctx, d.url, d.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrap(err, "dial websocket").With("url", d.url)
	}

	return &conn{
		ws:          c,
		readTimeout: d.readTimeout,
	}, nil
}

type conn struct {
	ws          *gws.Conn
	readTimeout time.Duration
	writeMu     sync.Mutex
	closeOnce   sync.Once
	closeErr    error
}

func (c *conn) Read(ctx context.Context) (MessageType, []byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}

		if c.readTimeout > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
		}

		msgType, payload, err := c.ws.ReadMessage()
		if err != nil {
			if ce, ok := err.(*gws.CloseError); ok {
				return 0, nil, errors.Wrap(exception.ErrWebSocketConnectionClose, ce.Error()).With("code", ce.Code)
			}
			return 0, nil, err
		}

		switch msgType {
		case gws.TextMessage:
			return MessageText, payload, nil
		case gws.BinaryMessage:
			return MessageBinary, payload, nil
		default:
			// control frames are answered by gorilla's handlers
			continue
		}
	}
}

func (c *conn) Write(ctx context.Context, msgType MessageType, payload []byte) error {
	if msgType != MessageText && msgType != MessageBinary {
		return errors.Wrap(exception.ErrWebSocketProtocol, "write non-data frame").With("type", msgType)
	}

	deadline := time.Now().Add(DefaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteMessage(int(msgType), payload)
}

func (c *conn) Close(code CloseCode, reason string) error {
	c.closeOnce.Do(func() {
		_ = c.ws.WriteControl(
			gws.CloseMessage,
			gws.FormatCloseMessage(int(code), reason),
			time.Now().Add(time.Second),
		)
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
