package peer

import "testing"

func TestStateMachineHappyPath(t *testing.T) {
	sm := newStateMachine()
	var seen []State
	sm.setCB(func(s State) { seen = append(seen, s) })

	steps := []State{StateDisconnected, StateNewConnection, StatePairing, StatePaired, StateConnecting, StateConnected}
	for _, s := range steps {
		if !sm.transition(s) {
			t.Fatalf("transition to %s rejected from %s", s, sm.current())
		}
	}
	if sm.current() != StateConnected {
		t.Fatalf("current = %s, want connected", sm.current())
	}
	if len(seen) != len(steps) {
		t.Fatalf("callback fired %d times, want %d", len(seen), len(steps))
	}
}

func TestStateMachineRejectsInvalidEdge(t *testing.T) {
	sm := newStateMachine()
	if sm.transition(StateConnected) {
		t.Fatal("Closed -> Connected should be rejected")
	}
	if sm.current() != StateClosed {
		t.Fatalf("current = %s, want closed (unchanged)", sm.current())
	}
}

func TestStateMachineCalleePathSkipsPaired(t *testing.T) {
	sm := newStateMachine()
	sm.transition(StateDisconnected)
	sm.transition(StateNewConnection)
	sm.transition(StatePairing)
	if !sm.transition(StateConnecting) {
		t.Fatal("Pairing -> Connecting should be allowed (callee answers without an explicit Paired step)")
	}
}

func TestStateMachineDisconnectReachableFromConnected(t *testing.T) {
	sm := newStateMachine()
	sm.transition(StateDisconnected)
	sm.transition(StateNewConnection)
	sm.transition(StatePairing)
	sm.transition(StateConnecting)
	sm.transition(StateConnected)
	if !sm.transition(StateDisconnected) {
		t.Fatal("Connected -> Disconnected should be allowed (BYE/remote close)")
	}
}
