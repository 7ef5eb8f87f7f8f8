package internal

type EventType int8

const (
	ReadEvent EventType = iota
	WriteEvent
	MaxEvent
)

// Handler is dispatched by the Poller when the event it was registered for
// becomes ready. The pollers in this package always pass a nil error; they
// have no cancellation path.
type Handler func(error)

// PollerEvent is a platform-independent interest mask. The platform pollers
// translate it to epoll/kqueue terms.
type PollerEvent uint32

const (
	ReadFlags PollerEvent = 1 << iota
	WriteFlags
)

// Slot ties a file descriptor to the interest mask currently registered with
// the Poller and to the callbacks dispatched on readiness. Interest is
// persistent: a flag set with SetRead/SetWrite stays armed until the matching
// Del call, and the registered Handler fires on every readiness event.
//
// A Slot belongs to exactly one Poller and must only be touched from the
// goroutine running that Poller.
type Slot struct {
	Fd int // set by the owner at construction time, never changed afterwards

	// Events holds the interest flags currently registered with the Poller.
	Events PollerEvent

	// Handlers holds the callback dispatched for each event type in Events.
	Handlers [MaxEvent]Handler

	// Attachment is an opaque reference back to whatever owns this Slot.
	// The Poller never touches it.
	Attachment interface{}
}

func (s *Slot) Set(et EventType, h Handler) {
	s.Handlers[et] = h
}

func (s *Slot) DispatchRead(err error) {
	s.Handlers[ReadEvent](err)
}

func (s *Slot) DispatchWrite(err error) {
	s.Handlers[WriteEvent](err)
}
