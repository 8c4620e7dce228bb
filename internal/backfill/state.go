package backfill

import "fmt"

var transitions = map[RunState][]RunState{
	StateIdle:       {StateFetching, StateReporting},
	StateFetching:   {StateExtracting},
	StateExtracting: {StateUpserting},
	StateUpserting:  {StateFetching, StateReporting},
	StateReporting:  {StateDone},
}

// stateMachine tracks one run's progress. Done is the only terminal state.
type stateMachine struct {
	current RunState
	history []RunState
}

func newStateMachine() *stateMachine {
	return &stateMachine{current: StateIdle, history: []RunState{StateIdle}}
}

func (m *stateMachine) advance(next RunState) error {
	for _, allowed := range transitions[m.current] {
		if allowed == next {
			m.current = next
			m.history = append(m.history, next)
			return nil
		}
	}
	return fmt.Errorf("invalid run state transition %s -> %s", m.current, next)
}

func (m *stateMachine) state() RunState {
	return m.current
}
