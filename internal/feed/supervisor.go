package feed

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/matrix-tang/ex-rs/internal/cache"
	"github.com/matrix-tang/ex-rs/internal/ingest/binance"
	"github.com/matrix-tang/ex-rs/internal/model"
	"github.com/matrix-tang/ex-rs/internal/model/enum"
	"github.com/matrix-tang/ex-rs/internal/obs"
	"github.com/matrix-tang/ex-rs/pkg/exception"
	"github.com/matrix-tang/ex-rs/pkg/websocket"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/channel"
)

const DefaultSubscribeTimeout = 10 * time.Second

// Dispatcher hands tick events to the lane pool.
type Dispatcher interface {
	Dispatch(ev model.TickerEvent) (int, error)
}

// Option configures a Supervisor.
type Option struct {
	// Name labels log records, e.g. "ticker" or "book_ticker".
	Name   string
	Dialer websocket.Dialer
	// Streams are subscribed right after connecting. Empty means the
	// stream is selected by the dial url and no SUBSCRIBE is sent.
	Streams          []string
	SubscribeTimeout time.Duration

	// MaxReconnects bounds consecutive failed sessions. Zero terminates on
	// the first failure, a negative value retries forever.
	MaxReconnects int
	Backoff       websocket.Backoff

	// CloseSignal receives true once the Supervisor terminates.
	CloseSignal chan<- bool
	Metrics     *obs.Metrics
}

// Supervisor owns one live stream connection and is the only writer of
// price and quote records.
type Supervisor struct {
	name             string
	cache            *cache.Cache
	router           Dispatcher
	dialer           websocket.Dialer
	streams          []string
	subscribeTimeout time.Duration
	maxReconnects    int
	backoff          websocket.Backoff
	closeSignal      chan<- bool
	metrics          *obs.Metrics

	state atomic.Uint32
	reqID atomic.Int64
}

// New creates a Supervisor. router may be nil for streams that carry no
// tick events.
func New(c *cache.Cache, router Dispatcher, opt Option) (*Supervisor, error) {
	if c == nil || opt.Dialer == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "new supervisor").With("name", opt.Name)
	}

	timeout := opt.SubscribeTimeout
	if timeout <= 0 {
		timeout = DefaultSubscribeTimeout
	}
	backoff := opt.Backoff
	if backoff == (websocket.Backoff{}) {
		backoff = websocket.DefaultBackoff()
	}
	name := opt.Name
	if name == "" {
		name = "feed"
	}

	s := &Supervisor{
		name:             name,
		cache:            c,
		router:           router,
		dialer:           opt.Dialer,
		streams:          opt.Streams,
		subscribeTimeout: timeout,
		maxReconnects:    opt.MaxReconnects,
		backoff:          backoff,
		closeSignal:      opt.CloseSignal,
		metrics:          opt.Metrics,
	}
	s.state.Store(uint32(StateDisconnected))
	return s, nil
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(state State) {
	if !state.IsAvailable() {
		return
	}
	prev := State(s.state.Swap(uint32(state)))
	if prev != state {
		logs.Debugf("%s supervisor, state: %s -> %s", s.name, prev, state)
	}
}

// Run connects, subscribes and streams until ctx is done or the reconnect
// budget is exhausted. It always ends in StateTerminated and signals the
// close channel. The returned error is nil on shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.terminate()

	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		streamed, err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.setState(StateDisconnected)

		if streamed {
			failures = 0
		}
		failures++
		logs.Warnf("%s supervisor, session ended, failures: %d, err: %+v", s.name, failures, err)

		if s.maxReconnects >= 0 && failures > s.maxReconnects {
			return errors.Wrap(exception.ErrStreamTerminated, "reconnect budget exhausted").
				With("name", s.name).
				With("failures", failures).
				With("cause", errString(err))
		}

		s.metrics.IncReconnect()
		if !s.backoff.Sleep(ctx, failures) {
			return nil
		}
	}
}

func (s *Supervisor) terminate() {
	s.setState(StateTerminated)
	if s.closeSignal != nil {
		channel.TryPush(s.closeSignal, true)
	}
}

// session runs one connection. streamed reports whether the subscription
// was confirmed before the connection ended.
func (s *Supervisor) session(ctx context.Context) (streamed bool, err error) {
	s.setState(StateConnecting)

	conn, err := s.dialer.Dial(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close(websocket.CloseNormal, "session end")

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close(websocket.CloseGoingAway, "shutdown")
	})
	defer stop()

	if err := s.subscribe(ctx, conn); err != nil {
		return false, err
	}

	s.setState(StateStreaming)
	logs.Infof("%s supervisor, streaming, streams: %v", s.name, s.streams)

	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			return true, err
		}
		s.handlePayload(payload)
	}
}

// subscribe sends SUBSCRIBE and waits for its acknowledgement. Events that
// arrive before the ack are processed normally.
func (s *Supervisor) subscribe(ctx context.Context, conn websocket.Conn) error {
	if len(s.streams) == 0 {
		return nil
	}

	id := s.reqID.Add(1)
	payload, err := binance.EncodeSubscribe(id, s.streams...)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return errors.Wrap(err, "write subscribe").With("name", s.name)
	}

	var timedOut atomic.Bool
	timer := time.AfterFunc(s.subscribeTimeout, func() {
		timedOut.Store(true)
		_ = conn.Close(websocket.CloseNormal, "subscribe timeout")
	})
	defer timer.Stop()

	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if timedOut.Load() {
				return errors.Wrap(exception.ErrSubscribeRejected, "subscribe timeout").
					With("name", s.name).
					With("timeout", s.subscribeTimeout.String())
			}
			return errors.Wrap(err, "await subscribe ack").With("name", s.name)
		}

		ack := s.handlePayload(msg)
		if ack == nil || ack.ID != id {
			continue
		}
		if ack.Err != nil {
			return ack.Err
		}
		return nil
	}
}

// handlePayload decodes one message and applies its events. It returns the
// control response carried by the message, if any.
func (s *Supervisor) handlePayload(payload []byte) *binance.Ack {
	frame, err := binance.DecodeFrame(payload, time.Now().UnixMilli())
	if err != nil {
		s.metrics.IncDecodeDrop()
		logs.Warnf("%s supervisor, drop payload, err: %+v", s.name, err)
		return nil
	}

	for _, err := range frame.Dropped {
		s.metrics.IncDecodeDrop()
		logs.Warnf("%s supervisor, drop event, err: %+v", s.name, err)
	}
	for _, err := range frame.Invalid {
		s.metrics.IncInvalidNumber()
		logs.Warnf("%s supervisor, number defaulted to zero, err: %+v", s.name, err)
	}

	s.HandleBatch(frame.Events)
	return frame.Ack
}

// HandleBatch applies a batch of decoded events. A routing failure for one
// event never stops the rest of the batch.
func (s *Supervisor) HandleBatch(events []model.Event) {
	for _, ev := range events {
		switch e := ev.(type) {
		case model.TickerEvent:
			s.handleTicker(e)
		case model.BookTickerEvent:
			s.handleBookTicker(e)
		default:
			logs.Errorf("%s supervisor, unexpected event type: %T", s.name, ev)
		}
	}
}

func (s *Supervisor) handleTicker(e model.TickerEvent) {
	s.metrics.ObserveEvent(enum.EventTicker, e.EventTime, e.RecvTime)

	if s.router != nil {
		if lane, err := s.router.Dispatch(e); err != nil {
			logs.Errorf("%s supervisor, route tick, lane: %d, symbol: %s, err: %+v", s.name, lane, e.Symbol, err)
		}
	}

	if !e.HasClosePrice {
		return
	}

	_, res := s.cache.UpdatePrice(e.Symbol, e.ClosePrice, e.EventTime)
	switch res {
	case cache.Updated:
		s.metrics.IncPriceUpdate()
	case cache.UnknownSymbol:
		s.metrics.IncUnknownSymbol()
		logs.Debugf("%s supervisor, skip unknown symbol: %s", s.name, e.Symbol)
	case cache.Stale:
		s.metrics.IncStaleTick()
		logs.Debugf("%s supervisor, skip stale tick, symbol: %s, event_time: %d", s.name, e.Symbol, e.EventTime)
	}
}

func (s *Supervisor) handleBookTicker(e model.BookTickerEvent) {
	s.metrics.ObserveEvent(enum.EventBookTicker, 0, e.RecvTime)
	s.cache.PutQuote(e.Quote.Symbol, e.Quote)
	s.metrics.IncQuoteUpdate()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
