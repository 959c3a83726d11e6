package model

import (
	"github.com/matrix-tang/ex-rs/internal/model/enum"
	"github.com/yanun0323/decimal"
)

// Event is a decoded stream event. The set of implementations is closed:
// TickerEvent and BookTickerEvent.
type Event interface {
	Kind() enum.EventKind
	EventSymbol() string
	sealed()
}

var (
	_ Event = TickerEvent{}
	_ Event = BookTickerEvent{}
)

// TickerEvent is one symbol's rolling-window ticker update.
type TickerEvent struct {
	Symbol    string
	TradeID   int64
	EventTime int64 // epoch millis
	RecvTime  int64 // epoch millis

	// ClosePrice is zero when the wire value could not be parsed.
	ClosePrice decimal.Decimal
	// HasClosePrice is false when the wire payload carried no close price at all.
	HasClosePrice bool
}

func (TickerEvent) Kind() enum.EventKind { return enum.EventTicker }
func (e TickerEvent) EventSymbol() string { return e.Symbol }
func (TickerEvent) sealed() {}

// BookTickerEvent is one symbol's best bid/ask update.
type BookTickerEvent struct {
	Quote    QuoteState
	RecvTime int64
}

func (BookTickerEvent) Kind() enum.EventKind { return enum.EventBookTicker }
func (e BookTickerEvent) EventSymbol() string { return e.Quote.Symbol }
func (BookTickerEvent) sealed() {}
