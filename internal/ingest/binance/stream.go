package binance

import (
	"github.com/bytedance/sonic"
	"github.com/matrix-tang/ex-rs/pkg/exception"
	"github.com/yanun0323/errors"
)

const (
	DefaultWsURL   = "wss://stream.binance.com:9443/ws"
	DefaultRestURL = "https://api.binance.com"

	StreamAllTicker     = "!ticker@arr"
	StreamAllBookTicker = "!bookTicker"

	methodSubscribe = "SUBSCRIBE"
)

// SubscribeRequest is the control message sent right after the connection opens.
type SubscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// EncodeSubscribe builds a SUBSCRIBE message for the given stream names.
func EncodeSubscribe(id int64, streams ...string) ([]byte, error) {
	if len(streams) == 0 {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "no streams to subscribe")
	}

	payload, err := sonic.ConfigFastest.Marshal(SubscribeRequest{
		Method: methodSubscribe,
		Params: streams,
		ID:     id,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal subscribe request")
	}
	return payload, nil
}
