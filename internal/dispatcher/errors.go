package dispatcher

import "errors"

var (
	// ErrClosed is returned by any public method called after Close.
	ErrClosed = errors.New("dispatcher: closed")

	// ErrPoolNotFound names the SubmissionRejected case of an unknown pool
	// name at submitPoolTask time (spec.md §4.3 step 1). SubmitPoolTask
	// does not return it: it reports that case as SubmitResult{OK:false}
	// with the message "Worker pool <name> does not exist".
	ErrPoolNotFound = errors.New("dispatcher: worker pool does not exist")

	// ErrEmptyPool is returned when a pool is registered with zero
	// workers and a task is submitted to it (spec.md §8 boundary
	// behavior: "submissions to it either fail (recommended) or block
	// forever (source behavior)" — this implementation fails fast).
	ErrEmptyPool = errors.New("dispatcher: worker pool has no workers")

	// ErrSpawnFailed wraps an underlying os/exec failure to start a
	// worker process.
	ErrSpawnFailed = errors.New("dispatcher: failed to spawn worker")
)
