package binance

import (
	"bytes"
	"encoding/json"

	"github.com/bytedance/sonic"
	"github.com/matrix-tang/ex-rs/internal/model"
	"github.com/matrix-tang/ex-rs/pkg/exception"
	"github.com/matrix-tang/ex-rs/pkg/scanner"
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
)

const (
	eventDayTicker  = "24hrTicker"
	eventBookTicker = "bookTicker"
)

// Frame is the decoded content of one websocket message.
type Frame struct {
	Events []model.Event
	// Dropped holds one error per element that could not be decoded at all.
	Dropped []error
	// Invalid holds one error per numeric field that defaulted to zero.
	// The owning event is still in Events.
	Invalid []error
	// Ack is set when the message answers a SUBSCRIBE/UNSUBSCRIBE request.
	Ack *Ack
}

// Ack is the response to a control request.
type Ack struct {
	ID  int64
	Err error
}

var (
	keyStream   = []byte(`"stream"`)
	keyEvent    = []byte(`"e"`)
	keyUpdateID = []byte(`"u"`)
	keyID       = []byte(`"id"`)
	keyResult   = []byte(`"result"`)
	keyError    = []byte(`"error"`)
)

// envelope wraps payloads delivered on a combined stream connection.
type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *responseError  `json:"error"`
}

type responseError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// dayTicker is the 'Individual Symbol Ticker Stream' payload, also delivered as
// an array by the all-market ticker stream.
type dayTicker struct {
	EventType   string  `json:"e"`
	EventTime   int64   `json:"E"`
	Symbol      string  `json:"s"`
	ClosePrice  *string `json:"c"`
	CloseTime   int64   `json:"C"`
	LowPrice    string  `json:"l"`
	LastTradeID int64   `json:"L"`
}

// bookTicker is the 'Individual Symbol Book Ticker Stream' payload.
type bookTicker struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	TxTime    int64  `json:"T"`
	UpdateID  int64  `json:"u"`
	Symbol    string `json:"s"`
	BestBid   string `json:"b"`
	BidQty    string `json:"B"`
	BestAsk   string `json:"a"`
	AskQty    string `json:"A"`
}

// DecodeFrame decodes a raw stream message. A returned error means the whole
// message was unusable; per-element problems are reported inside Frame.
func DecodeFrame(payload []byte, recvTime int64) (Frame, error) {
	var f Frame
	if err := f.decode(payload, recvTime); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func (f *Frame) decode(payload []byte, recvTime int64) error {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return errors.Wrap(exception.ErrDecodePayload, "empty payload")
	}

	switch payload[0] {
	case '[':
		var items []json.RawMessage
		if err := sonic.Unmarshal(payload, &items); err != nil {
			return errors.Wrap(exception.ErrDecodePayload, "unmarshal array").With("cause", err.Error())
		}
		for _, item := range items {
			if err := f.decodeObject(item, recvTime); err != nil {
				f.Dropped = append(f.Dropped, err)
			}
		}
		return nil
	case '{':
		return f.decodeObject(payload, recvTime)
	default:
		return errors.Wrap(exception.ErrDecodePayload, "unexpected leading byte").With("byte", string(payload[:1]))
	}
}

func (f *Frame) decodeObject(raw []byte, recvTime int64) error {
	if scanner.IndexOf(raw, keyStream) >= 0 {
		var env envelope
		if err := sonic.Unmarshal(raw, &env); err != nil {
			return errors.Wrap(exception.ErrDecodePayload, "unmarshal envelope").With("cause", err.Error())
		}
		if len(env.Data) == 0 {
			return errors.Wrap(exception.ErrDecodePayload, "envelope without data").With("stream", env.Stream)
		}
		return f.decode(env.Data, recvTime)
	}

	event, hasEvent := scanner.ScanStringField(raw, keyEvent)
	if !hasEvent && scanner.IndexOf(raw, keyID) >= 0 &&
		(scanner.IndexOf(raw, keyResult) >= 0 || scanner.IndexOf(raw, keyError) >= 0) {
		return f.decodeAck(raw)
	}

	switch {
	case string(event) == eventDayTicker:
		var p dayTicker
		if err := sonic.Unmarshal(raw, &p); err != nil {
			return errors.Wrap(exception.ErrDecodePayload, "unmarshal day ticker").With("cause", err.Error())
		}
		ev, invalid, err := p.event(recvTime)
		if err != nil {
			return err
		}
		f.Events = append(f.Events, ev)
		f.Invalid = append(f.Invalid, invalid...)
		return nil
	case string(event) == eventBookTicker, !hasEvent && scanner.IndexOf(raw, keyUpdateID) >= 0:
		var p bookTicker
		if err := sonic.Unmarshal(raw, &p); err != nil {
			return errors.Wrap(exception.ErrDecodePayload, "unmarshal book ticker").With("cause", err.Error())
		}
		ev, invalid, err := p.event(recvTime)
		if err != nil {
			return err
		}
		f.Events = append(f.Events, ev)
		f.Invalid = append(f.Invalid, invalid...)
		return nil
	default:
		return errors.Wrap(exception.ErrUnknownEvent, "decode object").With("event", string(event))
	}
}

func (f *Frame) decodeAck(raw []byte) error {
	var resp response
	if err := sonic.Unmarshal(raw, &resp); err != nil {
		return errors.Wrap(exception.ErrDecodePayload, "unmarshal response").With("cause", err.Error())
	}
	ack := &Ack{ID: resp.ID}
	if resp.Error != nil {
		ack.Err = errors.Wrapf(exception.ErrSubscribeRejected, "code: %d, msg: %s", resp.Error.Code, resp.Error.Msg)
	}
	f.Ack = ack
	return nil
}

func (p dayTicker) event(recvTime int64) (model.TickerEvent, []error, error) {
	if p.Symbol == "" {
		return model.TickerEvent{}, nil, errors.Wrap(exception.ErrDecodePayload, "day ticker without symbol")
	}

	ev := model.TickerEvent{
		Symbol:     p.Symbol,
		TradeID:    p.LastTradeID,
		EventTime:  p.EventTime,
		RecvTime:   recvTime,
		ClosePrice: decimal.Zero,
	}
	if p.ClosePrice == nil {
		return ev, nil, nil
	}

	ev.HasClosePrice = true
	price, err := parseDecimal(p.Symbol, "close_price", *p.ClosePrice)
	ev.ClosePrice = price
	if err != nil {
		return ev, []error{err}, nil
	}
	return ev, nil, nil
}

func (p bookTicker) event(recvTime int64) (model.BookTickerEvent, []error, error) {
	if p.Symbol == "" {
		return model.BookTickerEvent{}, nil, errors.Wrap(exception.ErrDecodePayload, "book ticker without symbol")
	}

	var invalid []error
	parse := func(field, value string) decimal.Decimal {
		d, err := parseDecimal(p.Symbol, field, value)
		if err != nil {
			invalid = append(invalid, err)
		}
		return d
	}

	q := model.QuoteState{
		UpdateID:   p.UpdateID,
		Symbol:     p.Symbol,
		BestBid:    parse("best_bid", p.BestBid),
		BestBidQty: parse("best_bid_qty", p.BidQty),
		BestAsk:    parse("best_ask", p.BestAsk),
		BestAskQty: parse("best_ask_qty", p.AskQty),
	}
	return model.BookTickerEvent{Quote: q, RecvTime: recvTime}, invalid, nil
}

// parseDecimal parses an exchange decimal string. Unparsable input yields zero
// together with an ErrInvalidNumber error.
func parseDecimal(symbol, field, value string) (decimal.Decimal, error) {
	d, err := decimal.New(value)
	if err != nil {
		return decimal.Zero, errors.Wrap(exception.ErrInvalidNumber, "parse decimal").
			With("symbol", symbol).
			With("field", field).
			With("value", value)
	}
	return d, nil
}
