// Package signal provides a typed multi-event pub/sub primitive with
// wildcard subscribers, one-shot subscriptions, and pull-based stream
// readers. It is the event plane described in spec.md §4.1, and plays the
// role the teacher's graph/emit package plays for the LangGraph engine: the
// single place lifecycle notifications fan out from.
package signal

import (
	"sync"
)

// Handler receives an emission: the event name it was delivered for, and
// the value passed to Emit. Wildcard subscribers always receive the real
// event name; non-wildcard subscribers receive the name of the event they
// subscribed to (useful when one Handler is registered for several names).
type Handler func(event string, data any)

const wildcard = "*"

type subscription struct {
	id      uint64
	events  map[string]bool
	wild    bool
	once    bool
	handler Handler
}

// Signaller is a multi-event emitter constructed with a closed set of legal
// event names (spec.md §4.1). Subscribing to a name outside that set is an
// UnknownEvent error. Emit does not validate names: emitting an undeclared
// name reaches only the wildcard subscribers.
type Signaller struct {
	mu        sync.Mutex
	legal     map[string]bool
	byEvent   map[string][]*subscription
	wildcards []*subscription
	nextID    uint64
}

// New constructs a Signaller whose legal event set is exactly the supplied
// names. The set is closed: On/Once reject any name not present here.
func New(events []string) *Signaller {
	legal := make(map[string]bool, len(events))
	for _, e := range events {
		legal[e] = true
	}
	return &Signaller{
		legal:   legal,
		byEvent: make(map[string][]*subscription),
	}
}

func (s *Signaller) validate(events []string) error {
	for _, e := range events {
		if e == wildcard {
			continue
		}
		if !s.legal[e] {
			return unknownEventError(e)
		}
	}
	return nil
}

// On subscribes handler to each named event. The event name "*" subscribes
// handler as a wildcard receiver invoked for every emission regardless of
// name. If cancel is non-nil, a close/receive on it auto-unsubscribes.
// Returns an unsubscribe function and an UnknownEvent error if any name is
// not declared.
func (s *Signaller) On(events []string, handler Handler, cancel <-chan struct{}) (func(), error) {
	return s.subscribe(events, handler, false, cancel)
}

// Once behaves like On, except the handler is unsubscribed by the first
// matching emission, after that emission has invoked every handler.
func (s *Signaller) Once(events []string, handler Handler) (func(), error) {
	return s.subscribe(events, handler, true, nil)
}

func (s *Signaller) subscribe(events []string, handler Handler, once bool, cancel <-chan struct{}) (func(), error) {
	if err := s.validate(events); err != nil {
		return nil, err
	}

	set := make(map[string]bool, len(events))
	wild := false
	for _, e := range events {
		if e == wildcard {
			wild = true
			continue
		}
		set[e] = true
	}

	s.mu.Lock()
	s.nextID++
	sub := &subscription{id: s.nextID, events: set, wild: wild, once: once, handler: handler}
	if wild {
		s.wildcards = append(s.wildcards, sub)
	}
	for e := range set {
		s.byEvent[e] = append(s.byEvent[e], sub)
	}
	s.mu.Unlock()

	unsub := func() { s.removeByID(sub.id) }

	if cancel != nil {
		go func() {
			<-cancel
			unsub()
		}()
	}

	return unsub, nil
}

func (s *Signaller) removeByID(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, w := range s.wildcards {
		if w.id == id {
			s.wildcards = append(s.wildcards[:i], s.wildcards[i+1:]...)
			break
		}
	}
	for event, subs := range s.byEvent {
		for i, sub := range subs {
			if sub.id == id {
				s.byEvent[event] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Off unsubscribes handler from the named events. Matching is by function
// pointer (reflect-free identity via a registered closure is not possible in
// Go), so Off is best-effort: prefer the unsubscribe closure On/Once return.
// Off is idempotent; unsubscribing a handler that was never subscribed, or
// already removed, is a no-op.
func (s *Signaller) Off(events []string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := funcPointer(handler)
	matches := func(h Handler) bool { return funcPointer(h) == want }

	for _, e := range events {
		if e == wildcard {
			kept := s.wildcards[:0]
			for _, sub := range s.wildcards {
				if !matches(sub.handler) {
					kept = append(kept, sub)
				}
			}
			s.wildcards = kept
			continue
		}
		subs := s.byEvent[e]
		kept := subs[:0]
		for _, sub := range subs {
			if !matches(sub.handler) {
				kept = append(kept, sub)
			}
		}
		s.byEvent[e] = kept
	}
}

// Clear removes all subscribers on the named events, or every subscriber
// (including wildcards) when names contains "*".
func (s *Signaller) Clear(events []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if e == wildcard {
			s.wildcards = nil
			s.byEvent = make(map[string][]*subscription)
			return
		}
		delete(s.byEvent, e)
	}
}

// Emit synchronously invokes wildcard receivers first with (event, data),
// then each registered handler for that event with data, in subscription
// order. A handler that panics propagates to the caller of Emit; Signaller
// does not isolate handler failures (spec.md §4.1).
func (s *Signaller) Emit(event string, data any) {
	s.mu.Lock()
	wild := append([]*subscription(nil), s.wildcards...)
	direct := append([]*subscription(nil), s.byEvent[event]...)
	s.mu.Unlock()

	var onceIDs []uint64
	for _, sub := range wild {
		sub.handler(event, data)
		if sub.once {
			onceIDs = append(onceIDs, sub.id)
		}
	}
	for _, sub := range direct {
		sub.handler(event, data)
		if sub.once {
			onceIDs = append(onceIDs, sub.id)
		}
	}
	for _, id := range onceIDs {
		s.removeByID(id)
	}
}

// Stream returns a pull-based lazy sequence of data values enqueued from the
// named events, plus a cancel function that unsubscribes and finalizes the
// sequence. The sequence buffers events that arrive while nothing is
// pulling, and delivers them in emission order; ranging over it blocks until
// the next event or until cancel is called.
func (s *Signaller) Stream(events []string) (func(yield func(data any) bool), func(), error) {
	q := newQueue()

	unsub, err := s.On(events, func(_ string, data any) {
		q.push(data)
	}, nil)
	if err != nil {
		return nil, nil, err
	}

	cancel := func() {
		unsub()
		q.close()
	}

	seq := func(yield func(data any) bool) {
		for {
			v, ok := q.pop()
			if !ok {
				return
			}
			if !yield(v) {
				return
			}
		}
	}

	return seq, cancel, nil
}
