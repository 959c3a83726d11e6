package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := gws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			mt, p, err := c.ReadMessage()
			if err != nil {
				return
			}
			if err := c.WriteMessage(mt, p); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDialerRoundTrip(t *testing.T) {
	srv := newEchoServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := NewDialer(url, DialOption{ReadTimeout: time.Second}).Dial(ctx)
	require.NoError(t, err)
	defer c.Close(CloseNormal, "test done")

	require.NoError(t, c.Write(ctx, MessageText, []byte(`{"ping":1}`)))

	mt, payload, err := c.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, MessageText, mt)
	assert.Equal(t, `{"ping":1}`, string(payload))
}

func TestDialerFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := NewDialer("ws://127.0.0.1:1/ws", DialOption{HandshakeTimeout: time.Second}).Dial(ctx)
	require.Error(t, err)
}

func TestConnCloseUnblocksRead(t *testing.T) {
	srv := newEchoServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx := context.Background()
	c, err := NewDialer(url, DialOption{}).Dial(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, _, err := c.Read(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.Close(CloseNormal, "bye"))
	assert.NoError(t, c.Close(CloseNormal, "again"))

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("read was not unblocked by close")
	}
}

func TestConnRejectsControlWrite(t *testing.T) {
	srv := newEchoServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx := context.Background()
	c, err := NewDialer(url, DialOption{}).Dial(ctx)
	require.NoError(t, err)
	defer c.Close(CloseNormal, "test done")

	assert.Error(t, c.Write(ctx, MessagePing, nil))
}
