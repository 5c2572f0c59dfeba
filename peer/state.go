package peer

import "sync"

// stateMachine tracks a Connection's position in its lifecycle and
// fans state-change events out to an optional callback. Invalid
// transitions are rejected rather than silently coerced, so a caller
// driving the machine incorrectly finds out immediately.
type stateMachine struct {
	mu    sync.Mutex
	cur   State
	cb    StateCB
}

// allowed lists the edges the lifecycle state diagram permits. Closed
// is reachable from anywhere via Close/Disconnect failure paths.
var allowed = map[State][]State{
	StateClosed:        {StateDisconnected},
	StateDisconnected:  {StateNewConnection, StateClosed},
	StateNewConnection: {StatePairing, StateDisconnected, StateClosed},
	StatePairing:       {StatePaired, StateConnecting, StateDisconnected, StateClosed},
	StatePaired:        {StateConnecting, StateDisconnected, StateClosed},
	StateConnecting:    {StateConnected, StateConnectFailed, StateDisconnected, StateClosed},
	StateConnected:     {StateDisconnected, StateClosed},
	StateConnectFailed: {StateDisconnected, StateClosed},
}

func newStateMachine() *stateMachine {
	return &stateMachine{cur: StateClosed}
}

func (m *stateMachine) setCB(cb StateCB) {
	m.mu.Lock()
	m.cb = cb
	m.mu.Unlock()
}

func (m *stateMachine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// transition moves to next if the edge is permitted, invoking the
// state callback outside the lock. Returns false if the edge is not
// in the allowed table (a no-op, not a panic — callers decide how to
// react).
func (m *stateMachine) transition(next State) bool {
	m.mu.Lock()
	ok := false
	for _, s := range allowed[m.cur] {
		if s == next {
			ok = true
			break
		}
	}
	if !ok {
		m.mu.Unlock()
		return false
	}
	m.cur = next
	cb := m.cb
	m.mu.Unlock()
	if cb != nil {
		cb(next)
	}
	return true
}
