// Package taskqueue provides the single-consumer execution queue that
// serializes all mode-affecting work.
//
// Host notifications arrive on arbitrary goroutines and in no particular order
// relative to each other. Every unit of work that touches engine-visible state
// is wrapped in a Task and handed to Queue.Enqueue, which returns immediately.
// A single worker goroutine runs the tasks one at a time, in arrival order.
//
// # Causal nesting
//
// A task that enqueues further work while it runs (for example an edit whose
// side effect must be processed before anything else) passes its own context
// to Enqueue. Such children run right after their parent finishes and before
// any task that was waiting in the queue when the parent started:
//
//	q.Enqueue(ctx, func(ctx context.Context) error { // A
//	    q.Enqueue(ctx, d) // D runs before B and C
//	    return nil
//	})
//	q.Enqueue(ctx, b)
//	q.Enqueue(ctx, c)
//
// # Failures
//
// Returned errors and panics are caught at the queue boundary, logged and
// counted; the queue then advances. There is no priority, no cancellation and
// no deduplication: every task enqueued while the queue is alive runs.
package taskqueue
