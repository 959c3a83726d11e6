package enum

// EventKind tags the variants of a decoded stream event.
type EventKind uint8

const (
	_event_kind_beg EventKind = iota
	EventTicker
	EventBookTicker
	_event_kind_end
)

func (k EventKind) IsAvailable() bool {
	return k > _event_kind_beg && k < _event_kind_end
}

func (k EventKind) String() string {
	switch k {
	case EventTicker:
		return "ticker"
	case EventBookTicker:
		return "book_ticker"
	default:
		return "unknown"
	}
}
