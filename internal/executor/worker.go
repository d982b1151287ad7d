package executor

import (
	"context"
	"fmt"

	"github.com/vk/stormrisk/internal/ctxlog"
)

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *stageNode, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for n := range readyChan {
		stageLogger := logger.With("workerID", workerID, "stage", n.stage.ID)

		if ctx.Err() != nil {
			n.Skip(ctx.Err(), &e.wg)
			continue
		}

		stageLogger.Debug("Worker picked up stage.")
		n.SetState(stateRunning)

		err := e.runStage(ctx, n)
		if err != nil {
			stageLogger.Error("Stage failed.", "error", err)
			n.SetState(stateFailed)
			n.err = err
			cancel()
			e.skipDependents(ctx, n)
			e.wg.Done()
			continue
		}

		stageLogger.Debug("Stage completed.")
		n.SetState(stateDone)
		e.unlockDependents(ctx, n, readyChan)
		e.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// runStage invokes the stage's Run function, converting panics into errors
// so one misbehaving stage cannot take down the whole process.
func (e *Executor) runStage(ctx context.Context, n *stageNode) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage panicked: %v", r)
		}
	}()
	return n.stage.Run(ctx)
}

// unlockDependents decrements dependency counters of the completed node's
// dependents and enqueues any that become ready.
func (e *Executor) unlockDependents(ctx context.Context, n *stageNode, readyChan chan *stageNode) {
	logger := ctxlog.FromContext(ctx)

	dependents, err := e.graph.Dependents(n.stage.ID)
	if err != nil {
		logger.Error("Failed to get dependents for completed stage.", "stage", n.stage.ID, "error", err)
		return
	}
	for _, depID := range dependents {
		dependent := e.nodes[depID]
		if dependent.DecrementDepCount() == 0 {
			logger.Debug("Unlocking dependent stage.", "stage", depID)
			readyChan <- dependent
		}
	}
}

// skipDependents transitively marks every stage downstream of a failed node
// as skipped. Skipped nodes never enter the ready channel via this path;
// the Skip method's once-semantics keep double accounting out.
func (e *Executor) skipDependents(ctx context.Context, n *stageNode) {
	logger := ctxlog.FromContext(ctx)

	dependents, err := e.graph.Dependents(n.stage.ID)
	if err != nil {
		logger.Error("Failed to get dependents for failed stage.", "stage", n.stage.ID, "error", err)
		return
	}
	for _, depID := range dependents {
		dependent := e.nodes[depID]
		if dependent.Skip(fmt.Errorf("dependency %q failed", n.stage.ID), &e.wg) {
			logger.Debug("Skipping dependent stage.", "stage", depID, "failedDependency", n.stage.ID)
			e.skipDependents(ctx, dependent)
		}
	}
}
