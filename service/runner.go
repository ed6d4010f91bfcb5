package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/franklinjsmith-create/SupplyVerify/metrics"
	"github.com/franklinjsmith-create/SupplyVerify/model"
	"github.com/franklinjsmith-create/SupplyVerify/pkg/logger"
)

const DefaultWindowSize = 5

var (
	ErrSessionNotInitialized = errors.New("session not initialized")
	ErrEmptyBatch            = errors.New("no operations to verify")
	ErrBatchAborted          = errors.New("batch aborted")
)

// emptyBatchMessage is the session error shown to pollers for an empty batch.
const emptyBatchMessage = "No operations to verify"

// OperationVerifier produces exactly one result per operation.
type OperationVerifier interface {
	Verify(ctx context.Context, op model.OperationInput) model.VerificationResult
}

// Runner drives verification batches. Operations are processed in windows:
// windows run one after another, the operations inside a window run
// concurrently, and a window must settle before the next starts.
type Runner struct {
	verifier   OperationVerifier
	store      SessionStore
	windowSize int
	metrics    *metrics.Metrics
	wg         sync.WaitGroup
}

func NewRunner(verifier OperationVerifier, store SessionStore, windowSize int, m *metrics.Metrics) *Runner {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Runner{
		verifier:   verifier,
		store:      store,
		windowSize: windowSize,
		metrics:    m,
	}
}

// Task is the handle of a submitted batch.
type Task struct {
	done chan struct{}
	err  error
}

// Done is closed when the batch reaches a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the batch finishes or ctx is done. Cancelling ctx only
// stops the wait; the batch keeps running.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the batch error once Done is closed, nil before that.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Submit checks that the session was created for exactly these operations and
// starts the batch in the background. The batch is detached from ctx
// cancellation but keeps its values for logging.
func (r *Runner) Submit(ctx context.Context, sessionID string, ops []model.OperationInput) (*Task, error) {
	sess, err := r.store.Get(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotInitialized, sessionID)
	}
	if err != nil {
		return nil, err
	}
	if sess.Status != model.SessionPending {
		return nil, fmt.Errorf("%w: session %s is %s", ErrSessionState, sessionID, sess.Status)
	}
	if sess.Total != len(ops) {
		return nil, fmt.Errorf("%w: session %s expects %d operations, got %d", ErrSessionState, sessionID, sess.Total, len(ops))
	}

	runCtx := logger.WithSessionID(context.WithoutCancel(ctx), sessionID)
	task := &Task{done: make(chan struct{})}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(task.done)
		task.err = r.Run(runCtx, sessionID, ops)
	}()
	return task, nil
}

// Run processes a batch synchronously. Per-operation failures become Failed
// results; only store errors and panics abort the batch, moving the session
// to the error state.
func (r *Runner) Run(ctx context.Context, sessionID string, ops []model.OperationInput) error {
	log := logger.WithContext(ctx)

	if len(ops) == 0 {
		if err := r.store.Fail(ctx, sessionID, emptyBatchMessage); err != nil {
			return fmt.Errorf("%w: %w", ErrBatchAborted, err)
		}
		r.metrics.IncrementSession(string(model.SessionError))
		log.Warn("empty batch rejected")
		return ErrEmptyBatch
	}

	if err := r.store.MarkProcessing(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: %w", ErrBatchAborted, err)
	}
	finished := r.metrics.BatchStarted()
	log.Info("batch started", "total", len(ops), "window_size", r.windowSize)

	err := r.process(ctx, sessionID, ops)
	if err == nil {
		err = r.store.Complete(ctx, sessionID)
	}
	if err != nil {
		log.Error("batch aborted", "error", err)
		if failErr := r.store.Fail(ctx, sessionID, err.Error()); failErr != nil {
			log.Error("failed to record batch error", "error", failErr)
		}
		finished(string(model.SessionError))
		return fmt.Errorf("%w: %w", ErrBatchAborted, err)
	}

	finished(string(model.SessionCompleted))
	log.Info("batch completed", "total", len(ops))
	return nil
}

func (r *Runner) process(ctx context.Context, sessionID string, ops []model.OperationInput) error {
	for start := 0; start < len(ops); start += r.windowSize {
		end := min(start+r.windowSize, len(ops))

		var g errgroup.Group
		for _, op := range ops[start:end] {
			g.Go(func() error {
				return r.processOne(ctx, sessionID, op)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) processOne(ctx context.Context, sessionID string, op model.OperationInput) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.metrics.IncrementPanic("runner")
			err = fmt.Errorf("panic while verifying %s: %v", op.ID, p)
		}
	}()

	// current is progress feedback only; losing an update must not cost the batch.
	if err := r.store.SetCurrent(ctx, sessionID, op.OperationName); err != nil {
		logger.Warn(ctx, "failed to update current operation", "registry_id", op.ID, "error", err)
	}
	result := r.verifier.Verify(ctx, op)
	if err := r.store.AppendResult(ctx, sessionID, result); err != nil {
		return fmt.Errorf("failed to store result for %s: %w", op.ID, err)
	}
	return nil
}

// Shutdown waits for running batches to finish or for ctx to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
