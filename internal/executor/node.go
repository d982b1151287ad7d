package executor

import (
	"sync"
	"sync/atomic"
)

// stageState tracks a stage node through its lifecycle.
type stageState int32

const (
	statePending stageState = iota
	stateRunning
	stateDone
	stateFailed
)

// stageNode pairs a Stage with its execution bookkeeping.
type stageNode struct {
	stage Stage

	// depCount is an atomic counter of unmet dependencies; a node becomes
	// ready when it reaches zero.
	depCount atomic.Int32
	// state is the node's current execution state, managed atomically.
	state atomic.Int32

	// err holds the run error, or the reason the node was skipped.
	err error
	// skippedByDependency is true when err comes from another stage's
	// failure rather than this stage's own Run.
	skippedByDependency bool

	// skipOnce guarantees a node is marked skipped and counted exactly once.
	skipOnce sync.Once
}

func (n *stageNode) SetState(s stageState) {
	n.state.Store(int32(s))
}

func (n *stageNode) State() stageState {
	return stageState(n.state.Load())
}

// DecrementDepCount atomically decrements the dependency counter and
// returns the new value.
func (n *stageNode) DecrementDepCount() int32 {
	return n.depCount.Add(-1)
}

// Skip marks the node as failed without running it and releases its slot in
// the WaitGroup. A sync.Once guarantees this happens only once even when a
// node is reachable through several failed ancestors.
func (n *stageNode) Skip(err error, wg *sync.WaitGroup) bool {
	var wasSkipped bool
	n.skipOnce.Do(func() {
		n.SetState(stateFailed)
		n.err = err
		n.skippedByDependency = true
		wg.Done()
		wasSkipped = true
	})
	return wasSkipped
}
