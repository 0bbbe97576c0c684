package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAppendsNewline(t *testing.T) {
	task := Task{ID: "t1", Type: Work}

	b, err := Encode(task)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), b[len(b)-1])

	var decoded Task
	require.NoError(t, json.Unmarshal(b[:len(b)-1], &decoded))
	assert.Equal(t, task, decoded)
}

func TestEncodeRoundTripsReply(t *testing.T) {
	reply := Reply{ID: "t1", Type: WorkDone, OK: true, Data: json.RawMessage(`{"x":1}`)}

	b, err := Encode(reply)
	require.NoError(t, err)

	var decoded Reply
	require.NoError(t, json.Unmarshal(b[:len(b)-1], &decoded))
	assert.Equal(t, reply, decoded)
}

func TestSequentialGeneratorProducesDistinctOrderedIDs(t *testing.T) {
	g := &SequentialGenerator{}
	first := g.NewTaskID()
	second := g.NewTaskID()

	assert.Equal(t, TaskID("task-1"), first)
	assert.Equal(t, TaskID("task-2"), second)
	assert.NotEqual(t, first, second)
}

func TestUUIDGeneratorProducesDistinctIDs(t *testing.T) {
	var g UUIDGenerator
	a := g.NewTaskID()
	b := g.NewTaskID()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}

func TestMessageTypeConstants(t *testing.T) {
	assert.Equal(t, MessageType("INIT"), Init)
	assert.Equal(t, MessageType("INIT_DONE"), InitDone)
	assert.Equal(t, MessageType("WORK"), Work)
	assert.Equal(t, MessageType("WORK_DONE"), WorkDone)
	assert.Equal(t, MessageType("TERMINATE"), Terminate)
	assert.Equal(t, MessageType("ERROR"), ErrorReply)
}
