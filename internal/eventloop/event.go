package eventloop

// CallbackResult is a readiness-model event callback's verdict
// (spec §4.7 step 4): whether the descriptor should stay registered,
// be torn down, or was fully handled.
type CallbackResult int

const (
	Success CallbackResult = iota
	Retry
	Failure
)

// Direction distinguishes in-ready (readable) from out-ready (writable)
// events; the readiness platform tracks each separately per descriptor
// (spec §4.7 "separates in-ready and out-ready events").
type Direction int

const (
	In Direction = iota
	Out
)

// Callback is invoked when an Event's descriptor becomes ready, or when
// its attached timeout fires first.
type Callback func(ev *Event, timedOut bool) CallbackResult

// Event is one registered wait: either an I/O readiness wait, a pure
// timeout, or both raced against each other (spec §4.7 "A waiter may
// attach a timeout by enqueuing itself both in the event queue and the
// timer heap; whichever wakes first marks the event as completed,
// decrementing a shared refcount so the loser drops its reference.").
type Event struct {
	FD        int
	Dir       Direction
	Callback  Callback
	completed bool

	// refs starts at 2 when both an I/O registration and a timer are
	// outstanding for the same wait, 1 otherwise; the side that fires
	// first decrements it and, on reaching zero, is responsible for
	// returning the Event to the loop's free list.
	refs int

	timer *timer
	next  *Event // per-descriptor queue link

	// pooled marks an Event currently sitting on the loop's free list,
	// guarding against double-release.
	pooled bool
}

func (ev *Event) reset() {
	ev.FD = 0
	ev.Dir = In
	ev.Callback = nil
	ev.completed = false
	ev.refs = 0
	ev.timer = nil
	ev.next = nil
	ev.pooled = false
}

// release decrements ev's outstanding-side refcount; once it reaches
// zero the caller (the Loop) returns ev to the free list.
func (ev *Event) release() bool {
	ev.refs--
	return ev.refs <= 0
}
