package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// TaskIDGenerator is a pluggable dependency (spec.md §6: "UUID generation
// (pluggable dependency)"). Production code uses UUIDGenerator; tests
// substitute a deterministic generator to assert on exact task IDs.
type TaskIDGenerator interface {
	NewTaskID() TaskID
}

// UUIDGenerator is the default TaskIDGenerator, backed by RFC 4122 v4 UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewTaskID() TaskID {
	return TaskID(uuid.NewString())
}

// SequentialGenerator is a deterministic TaskIDGenerator for tests: it
// returns ids of the form "task-<n>" starting at 1.
type SequentialGenerator struct {
	next int
}

func (g *SequentialGenerator) NewTaskID() TaskID {
	g.next++
	return TaskID(fmt.Sprintf("task-%d", g.next))
}
