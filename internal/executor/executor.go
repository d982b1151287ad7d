package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vk/stormrisk/internal/ctxlog"
	"github.com/vk/stormrisk/internal/dag"
)

// Stage is one unit of work in the analysis pipeline.
type Stage struct {
	// ID is the unique, human-readable name of the stage.
	ID string
	// After lists the IDs of the stages that must complete first.
	After []string
	// Run performs the work. It must honor ctx cancellation.
	Run func(ctx context.Context) error
}

// Executor orchestrates the concurrent execution of a stage DAG with a
// fixed-size worker pool. Stages with no unmet dependencies run in parallel;
// the first failure cancels the run and skips every dependent stage.
type Executor struct {
	graph   *dag.Graph
	nodes   map[string]*stageNode
	order   []string
	workers int

	wg sync.WaitGroup
}

// New validates the stage set, builds the dependency graph, and returns an
// executor ready to run. Unknown references in After and dependency cycles
// are construction errors.
func New(stages []Stage, workers int) (*Executor, error) {
	if workers < 1 {
		return nil, fmt.Errorf("worker count must be at least 1, got %d", workers)
	}

	e := &Executor{
		graph:   dag.New(),
		nodes:   make(map[string]*stageNode, len(stages)),
		workers: workers,
	}

	for _, s := range stages {
		if s.ID == "" {
			return nil, fmt.Errorf("stage with empty ID")
		}
		if s.Run == nil {
			return nil, fmt.Errorf("stage %q has no Run function", s.ID)
		}
		if _, ok := e.nodes[s.ID]; ok {
			return nil, fmt.Errorf("duplicate stage ID %q", s.ID)
		}
		e.nodes[s.ID] = &stageNode{stage: s}
		e.order = append(e.order, s.ID)
		e.graph.AddNode(s.ID)
	}

	for _, s := range stages {
		for _, dep := range s.After {
			if _, ok := e.nodes[dep]; !ok {
				return nil, fmt.Errorf("stage %q depends on unknown stage %q", s.ID, dep)
			}
			if err := e.graph.AddEdge(dep, s.ID); err != nil {
				return nil, fmt.Errorf("failed to link stage %q: %w", s.ID, err)
			}
		}
	}

	if err := e.graph.DetectCycles(); err != nil {
		return nil, fmt.Errorf("invalid stage graph: %w", err)
	}

	return e, nil
}

// Run executes the whole graph. It blocks until every stage has either
// completed, failed, or been skipped, and returns the first stage error.
func (e *Executor) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readyChan := make(chan *stageNode, len(e.nodes))
	e.wg.Add(len(e.nodes))

	// Initialize dependency counters from the graph topology.
	for id, n := range e.nodes {
		deps, err := e.graph.Dependencies(id)
		if err != nil {
			return fmt.Errorf("failed to read graph topology: %w", err)
		}
		n.depCount.Store(int32(len(deps)))
	}

	var workerWg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		workerWg.Add(1)
		go func(workerID int) {
			defer workerWg.Done()
			e.worker(ctx, readyChan, cancel, workerID)
		}(i)
	}

	for _, id := range e.graph.Roots() {
		readyChan <- e.nodes[id]
	}
	logger.Debug("Executor started.", "stages", len(e.nodes), "workers", e.workers)

	e.wg.Wait()
	close(readyChan)
	workerWg.Wait()

	return e.firstError()
}

// firstError scans the stages in declaration order and returns the first
// genuine failure, preferring stage errors over cancellation side effects:
// when one stage fails, its running siblings often die with context.Canceled
// and their dependents are skipped, none of which is the root cause.
func (e *Executor) firstError() error {
	var secondary error
	for _, id := range e.order {
		n := e.nodes[id]
		if n.State() != stateFailed || n.err == nil {
			continue
		}
		if n.skippedByDependency {
			if secondary == nil {
				secondary = fmt.Errorf("stage %q skipped: %w", id, n.err)
			}
			continue
		}
		if errors.Is(n.err, context.Canceled) || errors.Is(n.err, context.DeadlineExceeded) {
			if secondary == nil {
				secondary = fmt.Errorf("stage %q: %w", id, n.err)
			}
			continue
		}
		return fmt.Errorf("stage %q: %w", id, n.err)
	}
	return secondary
}
