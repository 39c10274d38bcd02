package perch_arm

// transitionHandler runs a transition's side effect and returns the next
// state. Handlers run before the machine's state is reassigned, so they may
// inspect the state being left.
type transitionHandler func(Event) ArmState

type stateEventKey struct {
	state ArmState
	event Event
}

// stateMachine is a deterministic (state, event) transition table. Events
// with no matching entry are ignored. It performs no locking of its own;
// callers serialize access through a single mutual-exclusion domain.
type stateMachine struct {
	state  ArmState
	table  map[stateEventKey]transitionHandler
	notify func(ArmState, Event)
}

// newStateMachine creates a machine in the initial state. notify, if not
// nil, is called synchronously after every applied transition with the new
// state and the triggering event.
func newStateMachine(initial ArmState, notify func(ArmState, Event)) *stateMachine {
	return &stateMachine{
		state:  initial,
		table:  make(map[stateEventKey]transitionHandler),
		notify: notify,
	}
}

// add registers handler for every (state, event) pair in the cross product.
// Registering the same handler under several discrete events replaces the
// bitmasked multi-event entries some transition tables use.
func (m *stateMachine) add(states []ArmState, events []Event, handler transitionHandler) {
	for _, s := range states {
		for _, e := range events {
			m.table[stateEventKey{s, e}] = handler
		}
	}
}

// State returns the current state.
func (m *stateMachine) State() ArmState {
	return m.state
}

// Update applies e. If the table has no entry for the current state and e,
// nothing happens: no transition, no side effect.
func (m *stateMachine) Update(e Event) {
	handler, ok := m.table[stateEventKey{m.state, e}]
	if !ok {
		return
	}
	m.state = handler(e)
	if m.notify != nil {
		m.notify(m.state, e)
	}
}

// Force sets the state directly, bypassing the table. Used for manual
// recovery overrides and link-loss resets; it does not validate that the
// forced state is consistent with joint positions.
func (m *stateMachine) Force(s ArmState) {
	m.state = s
	if m.notify != nil {
		m.notify(s, Event(0))
	}
}
