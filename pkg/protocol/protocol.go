// Package protocol defines the wire schema and state rules exchanged
// between the manager and a child worker process.
//
// Design Principles:
//   1. Closed enumeration - MessageType has a fixed, small set of values
//   2. Symmetric for pool and one-shot workers - no special-casing in the wire format
//   3. JSON Serialization - newline-delimited JSON over a pipe is sufficient
//
// Core Types:
//   - MessageType: the closed set of message kinds
//   - Task: parent -> child request envelope
//   - Reply: child -> parent response envelope
package protocol

import (
	"encoding/json"
	"time"
)

// TaskID uniquely identifies a task. Assigned by the manager at submission
// time, never by the caller.
type TaskID string

// MessageType is the closed enumeration of message kinds exchanged between
// parent and child.
type MessageType string

const (
	Init       MessageType = "INIT"
	InitDone   MessageType = "INIT_DONE"
	Work       MessageType = "WORK"
	WorkDone   MessageType = "WORK_DONE"
	Terminate  MessageType = "TERMINATE"
	ErrorReply MessageType = "ERROR"
)

// Task is sent from the manager to a child process.
type Task struct {
	ID       TaskID          `json:"id"`
	Type     MessageType     `json:"type"`
	Data     json.RawMessage `json:"data,omitempty"`
	PoolName string          `json:"poolName,omitempty"`
}

// Reply is sent from a child process back to the manager.
type Reply struct {
	ID   TaskID          `json:"id"`
	Type MessageType     `json:"type"`
	OK   bool            `json:"ok"`
	Data json.RawMessage `json:"data,omitempty"`
}

// InitDonePayload is the data carried by an INIT_DONE reply.
type InitDonePayload struct {
	PID int `json:"pid"`
}

// CrashErrorData is the synthetic ERROR payload synthesized by the
// dispatcher when a worker exits abnormally while owning in-flight tasks.
const CrashErrorData = "worker exited unexpectedly"

// UnknownPoolErrorData is the synthetic ERROR payload synthesized when a
// task's pool cannot be resolved at dispatch time (should only be
// reachable after a late configuration change).
const UnknownPoolErrorData = "worker pool not found at dispatch time"

// Encode marshals v to a single line of JSON terminated by '\n', the wire
// framing used over the parent/child pipe.
func Encode(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// DefaultOneShotMemoryLimitMB is the default memory ceiling (MB) applied to
// a one-shot worker when the caller does not specify one.
const DefaultOneShotMemoryLimitMB = 4096

// DefaultStatsInterval is the default period of the Control Surface's
// periodic stats-sampling loop.
const DefaultStatsInterval = 1000 * time.Millisecond

// OneShotPoolName is the sentinel pool tag recorded on a WorkerHandle that
// was spawned to serve exactly one task.
const OneShotPoolName = "one-shot"
