package graph

import (
	"sync"

	"github.com/dshills/taskgraph-go/graph/signal"
)

// wildcardState is the StateMachine's "from any state" marker, matching
// spec.md §4.2's "*" transition wildcard.
const wildcardState = "*"

// TransitionDef declares one legal transition: the set of states it may be
// invoked from (or wildcardState for "any"), and the state it leads to.
type TransitionDef struct {
	// From lists the states this transition may be invoked from. A single
	// entry of "*" matches any current state.
	From []string

	// To is the state assigned once the transition completes.
	To string
}

// Definition is the declarative shape a StateMachine is built from: an
// initial state plus a transitionName -> TransitionDef table. This mirrors
// spec.md §4.2's "states and transitions as data" description, and the
// teacher's preference for declarative tables (NodePolicy, RetryPolicy) over
// imperative state graphs.
type Definition struct {
	Initial     string
	Transitions map[string]TransitionDef
}

// TransitionContext is the payload carried by all four events a single
// invoke() emits: "{transition}.before", "{from}.leave", "{to}.enter", and
// "{transition}.after". All four observe the identical context value.
type TransitionContext struct {
	ID         string
	Payload    any
	From       string
	To         string
	Transition string
}

// StateMachine is a declarative finite state machine over a closed set of
// states and named transitions. Every transition's four lifecycle events
// (before/leave/enter/after) are multiplexed through an embedded Signaller,
// so subscribers use the same on/once/off/stream contract documented in
// graph/signal.
type StateMachine struct {
	id      string
	payload any

	def Definition
	sig *signal.Signaller

	mu    sync.Mutex
	state string
}

// NewStateMachine constructs a StateMachine in def.Initial, with the given
// id/payload attached to every emitted TransitionContext. It panics if def
// declares no initial state — a programmer error, not a runtime condition.
func NewStateMachine(id string, payload any, def Definition) *StateMachine {
	if def.Initial == "" {
		panic("graph: StateMachine definition requires an Initial state")
	}

	events := make([]string, 0, len(def.Transitions)*2+declaredStateCount(def)*2)
	seenStates := map[string]bool{}
	addState := func(s string) {
		if s == "" || s == wildcardState || seenStates[s] {
			return
		}
		seenStates[s] = true
		events = append(events, s+".enter", s+".leave")
	}
	addState(def.Initial)
	for name, t := range def.Transitions {
		events = append(events, name+".before", name+".after")
		for _, f := range t.From {
			addState(f)
		}
		addState(t.To)
	}

	return &StateMachine{
		id:      id,
		payload: payload,
		def:     def,
		sig:     signal.New(events),
		state:   def.Initial,
	}
}

// declaredStateCount is a capacity hint only; correctness does not depend on
// its accuracy.
func declaredStateCount(def Definition) int {
	return len(def.Transitions) + 1
}

// State returns the current state name.
func (m *StateMachine) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Invoke atomically validates, transitions, and emits the four lifecycle
// events described in spec.md §4.2. The handler chain for one Invoke is
// synchronous end to end: a handler that panics aborts the remaining chain
// for this invocation (the panic propagates to the caller, matching the
// spec's "exceptions ... propagate to the emitter" contract for Signaller).
func (m *StateMachine) Invoke(transition string) error {
	t, ok := m.def.Transitions[transition]
	if !ok {
		return newInvalidTransitionError(transition, m.State())
	}

	m.mu.Lock()
	from := m.state
	if !fromMatches(t.From, from) {
		m.mu.Unlock()
		return newInvalidTransitionError(transition, from)
	}
	m.mu.Unlock()

	ctx := TransitionContext{ID: m.id, Payload: m.payload, From: from, To: t.To, Transition: transition}

	m.sig.Emit(transition+".before", ctx)
	m.sig.Emit(from+".leave", ctx)

	m.mu.Lock()
	m.state = t.To
	m.mu.Unlock()

	m.sig.Emit(t.To+".enter", ctx)
	m.sig.Emit(transition+".after", ctx)
	return nil
}

func fromMatches(from []string, current string) bool {
	for _, f := range from {
		if f == wildcardState || f == current {
			return true
		}
	}
	return false
}

// On subscribes cb to one or more raw event names (e.g. "start.before",
// "running.enter", or "*"). See graph/signal.Signaller.On for the full
// contract, including cancelToken-driven auto-unsubscribe.
func (m *StateMachine) On(events []string, cb func(string, any), cancel <-chan struct{}) (func(), error) {
	return m.sig.On(events, cb, cancel)
}

// OnBefore subscribes to "{transition}.before" for each named transition.
func (m *StateMachine) OnBefore(transitions []string, cb func(TransitionContext)) (func(), error) {
	return m.onSuffixed(transitions, ".before", cb)
}

// OnAfter subscribes to "{transition}.after" for each named transition.
func (m *StateMachine) OnAfter(transitions []string, cb func(TransitionContext)) (func(), error) {
	return m.onSuffixed(transitions, ".after", cb)
}

// OnEnter subscribes to "{state}.enter" for each named state.
func (m *StateMachine) OnEnter(states []string, cb func(TransitionContext)) (func(), error) {
	return m.onSuffixed(states, ".enter", cb)
}

// OnLeave subscribes to "{state}.leave" for each named state.
func (m *StateMachine) OnLeave(states []string, cb func(TransitionContext)) (func(), error) {
	return m.onSuffixed(states, ".leave", cb)
}

func (m *StateMachine) onSuffixed(names []string, suffix string, cb func(TransitionContext)) (func(), error) {
	full := make([]string, len(names))
	for i, n := range names {
		full[i] = n + suffix
	}
	return m.sig.On(full, func(_ string, data any) {
		if tc, ok := data.(TransitionContext); ok {
			cb(tc)
		}
	}, nil)
}

// Stream returns a pull-based sequence of TransitionContext values for the
// named raw events (same contract as graph/signal.Signaller.Stream).
func (m *StateMachine) Stream(events []string) (func(func(TransitionContext) bool), func(), error) {
	seq, cancel, err := m.sig.Stream(events)
	if err != nil {
		return nil, nil, err
	}
	return func(yield func(TransitionContext) bool) {
		seq(func(data any) bool {
			tc, ok := data.(TransitionContext)
			if !ok {
				return true
			}
			return yield(tc)
		})
	}, cancel, nil
}
