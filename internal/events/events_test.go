package events

import "testing"

func TestNoopSatisfiesHooks(t *testing.T) {
	var h Hooks = Noop{}
	h.OnExecutionProgress(ExecutionProgress{Total: 1, Completed: 1})
	h.OnCircuitStateChange(CircuitStateChange{EndpointID: "e1"})
}
